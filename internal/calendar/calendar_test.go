package calendar

import (
	"context"
	"errors"
	"testing"
	"time"
)

type stubProvider struct {
	holidays map[string]bool
	err      error
	calls    int
}

func (s *stubProvider) IsHoliday(_ context.Context, date time.Time) (bool, error) {
	s.calls++
	if s.err != nil {
		return false, s.err
	}
	return s.holidays[date.Format("2006-01-02")], nil
}

func TestIsBusinessDay_Weekend(t *testing.T) {
	c := New(nil, nil)

	saturday := time.Date(2025, 6, 7, 0, 0, 0, 0, time.UTC)
	sunday := time.Date(2025, 6, 8, 0, 0, 0, 0, time.UTC)
	monday := time.Date(2025, 6, 9, 0, 0, 0, 0, time.UTC)

	if c.IsBusinessDay(context.Background(), saturday) {
		t.Fatalf("saturday must not be a business day")
	}
	if c.IsBusinessDay(context.Background(), sunday) {
		t.Fatalf("sunday must not be a business day")
	}
	if !c.IsBusinessDay(context.Background(), monday) {
		t.Fatalf("monday must be a business day")
	}
}

func TestIsBusinessDay_Holiday(t *testing.T) {
	provider := &stubProvider{holidays: map[string]bool{"2025-06-09": true}}
	c := New(provider, nil)

	monday := time.Date(2025, 6, 9, 0, 0, 0, 0, time.UTC)
	if c.IsBusinessDay(context.Background(), monday) {
		t.Fatalf("holiday must not be a business day")
	}
}

func TestIsBusinessDay_ProviderFailureFailsOpen(t *testing.T) {
	provider := &stubProvider{err: errors.New("connection refused")}
	c := New(provider, nil)

	monday := time.Date(2025, 6, 9, 0, 0, 0, 0, time.UTC)
	if !c.IsBusinessDay(context.Background(), monday) {
		t.Fatalf("provider failure must degrade to business day")
	}
}

func TestAddBusinessDays_ZeroReturnsStart(t *testing.T) {
	c := New(nil, nil)

	start := time.Date(2025, 6, 7, 15, 30, 0, 0, time.UTC) // суббота
	got := c.AddBusinessDays(context.Background(), start, 0)

	if !got.Equal(start) {
		t.Fatalf("AddBusinessDays(start, 0) = %v, want %v unchanged", got, start)
	}
}

func TestAddBusinessDays_SkipsWeekend(t *testing.T) {
	c := New(nil, nil)

	// Понедельник + 5 рабочих дней через одни выходные = следующий понедельник,
	// то есть 7 календарных дней.
	monday := time.Date(2025, 6, 2, 0, 0, 0, 0, time.UTC)
	got := c.AddBusinessDays(context.Background(), monday, 5)

	want := time.Date(2025, 6, 9, 0, 0, 0, 0, time.UTC)
	if !got.Equal(want) {
		t.Fatalf("AddBusinessDays = %v, want %v", got, want)
	}
}

func TestAddBusinessDays_SkipsHoliday(t *testing.T) {
	provider := &stubProvider{holidays: map[string]bool{"2025-06-03": true}}
	c := New(provider, nil)

	monday := time.Date(2025, 6, 2, 0, 0, 0, 0, time.UTC)
	got := c.AddBusinessDays(context.Background(), monday, 2)

	// Вторник — праздник, значит два рабочих дня — среда и четверг.
	want := time.Date(2025, 6, 5, 0, 0, 0, 0, time.UTC)
	if !got.Equal(want) {
		t.Fatalf("AddBusinessDays = %v, want %v", got, want)
	}
}

func TestDueDate(t *testing.T) {
	c := New(nil, nil)

	// Июнь 2025: 1-е — воскресенье, пятый рабочий день после него — пятница 6-е.
	got := c.DueDate(context.Background(), 6, 2025, 5, time.UTC)

	want := time.Date(2025, 6, 6, 0, 0, 0, 0, time.UTC)
	if !got.Equal(want) {
		t.Fatalf("DueDate = %v, want %v", got, want)
	}
}

func TestIsOverdue(t *testing.T) {
	due := time.Date(2025, 6, 6, 0, 0, 0, 0, time.UTC)

	tests := []struct {
		name string
		asOf time.Time
		want bool
	}{
		{name: "same day not overdue", asOf: time.Date(2025, 6, 6, 23, 59, 0, 0, time.UTC), want: false},
		{name: "day before not overdue", asOf: time.Date(2025, 6, 5, 0, 0, 0, 0, time.UTC), want: false},
		{name: "day after overdue", asOf: time.Date(2025, 6, 7, 0, 1, 0, 0, time.UTC), want: true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := IsOverdue(due, tt.asOf); got != tt.want {
				t.Fatalf("IsOverdue = %v, want %v", got, tt.want)
			}
		})
	}
}
