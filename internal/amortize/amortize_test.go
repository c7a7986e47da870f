package amortize

import (
	"math"
	"testing"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestMonthlyPayment_ZeroRate(t *testing.T) {
	principal := decimal.NewFromInt(120000)

	payment := MonthlyPayment(principal, decimal.Zero, 12)

	assert.True(t, payment.Equal(decimal.NewFromInt(10000)),
		"payment = %s, want 10000", payment)
}

func TestMonthlyPayment_AnnuityFormula(t *testing.T) {
	tests := []struct {
		name        string
		principal   int64
		monthlyRate float64
		termMonths  int
	}{
		{name: "reference scenario", principal: 1000000, monthlyRate: 0.02, termMonths: 12},
		{name: "small loan", principal: 500000, monthlyRate: 0.015, termMonths: 6},
		{name: "long term", principal: 2400000, monthlyRate: 0.01, termMonths: 60},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			principal := decimal.NewFromInt(tt.principal)
			rate := decimal.NewFromFloat(tt.monthlyRate)

			payment := MonthlyPayment(principal, rate, tt.termMonths)

			factor := math.Pow(1+tt.monthlyRate, float64(tt.termMonths))
			want := float64(tt.principal) * tt.monthlyRate * factor / (factor - 1)

			assert.InDelta(t, want, payment.InexactFloat64(), 0.01)
		})
	}
}

func TestMonthlyPayment_InvalidInput(t *testing.T) {
	assert.True(t, MonthlyPayment(decimal.Zero, decimal.NewFromFloat(0.02), 12).IsZero())
	assert.True(t, MonthlyPayment(decimal.NewFromInt(1000), decimal.NewFromFloat(0.02), 0).IsZero())
}

func TestSchedule_PrincipalSumsToLoanAmount(t *testing.T) {
	tests := []struct {
		name        string
		principal   int64
		monthlyRate float64
		termMonths  int
	}{
		{name: "reference scenario", principal: 1000000, monthlyRate: 0.02, termMonths: 12},
		{name: "zero rate", principal: 900000, monthlyRate: 0, termMonths: 9},
		{name: "single month", principal: 100000, monthlyRate: 0.03, termMonths: 1},
		{name: "awkward rounding", principal: 1000001, monthlyRate: 0.0175, termMonths: 37},
	}

	tolerance := decimal.NewFromFloat(0.01)

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			principal := decimal.NewFromInt(tt.principal)
			rate := decimal.NewFromFloat(tt.monthlyRate)

			schedule := Schedule(principal, rate, tt.termMonths)
			require.Len(t, schedule, tt.termMonths)

			sum := decimal.Zero
			for _, e := range schedule {
				sum = sum.Add(e.Principal)
			}

			diff := sum.Sub(principal).Abs()
			assert.True(t, diff.LessThanOrEqual(tolerance),
				"sum of principal portions = %s, principal = %s", sum, principal)

			last := schedule[tt.termMonths-1]
			assert.True(t, last.RemainingBalance.IsZero(),
				"final remaining balance = %s, want 0", last.RemainingBalance)
		})
	}
}

func TestSchedule_BalanceMonotonicallyDecreases(t *testing.T) {
	schedule := Schedule(decimal.NewFromInt(1000000), decimal.NewFromFloat(0.02), 12)
	require.NotEmpty(t, schedule)

	prev := decimal.NewFromInt(1000000)
	for _, e := range schedule {
		assert.True(t, e.RemainingBalance.LessThanOrEqual(prev),
			"month %d: balance %s exceeds previous %s", e.Month, e.RemainingBalance, prev)
		prev = e.RemainingBalance
	}
}

func TestSchedule_InterestComputedOnRemainingBalance(t *testing.T) {
	principal := decimal.NewFromInt(1000000)
	rate := decimal.NewFromFloat(0.02)

	schedule := Schedule(principal, rate, 12)
	require.NotEmpty(t, schedule)

	// Первый месяц: проценты от всего долга.
	wantFirst := principal.Mul(rate).Round(2)
	assert.True(t, schedule[0].Interest.Equal(wantFirst),
		"first interest = %s, want %s", schedule[0].Interest, wantFirst)

	// Доля процентов убывает от месяца к месяцу.
	assert.True(t, schedule[11].Interest.LessThan(schedule[0].Interest))
}

func TestTotalInterest(t *testing.T) {
	principal := decimal.NewFromInt(120000)

	// При нулевой ставке переплата отсутствует.
	assert.True(t, TotalInterest(principal, decimal.Zero, 12).IsZero())

	total := TotalInterest(principal, decimal.NewFromFloat(0.02), 12)
	assert.True(t, total.GreaterThan(decimal.Zero))

	payment := MonthlyPayment(principal, decimal.NewFromFloat(0.02), 12)
	want := payment.Mul(decimal.NewFromInt(12)).Sub(principal).Round(2)
	assert.True(t, total.Equal(want), "total = %s, want %s", total, want)
}

func TestMonthlyRate(t *testing.T) {
	annual := decimal.NewFromFloat(0.24)
	assert.True(t, MonthlyRate(annual).Equal(decimal.NewFromFloat(0.02)))
}
