// Package calendar реализует календарь рабочих дней с учётом выходных
// и государственных праздников страны.
package calendar

import (
	"context"
	"time"

	"go.uber.org/zap"
)

// HolidayProvider описывает источник данных о праздничных днях.
type HolidayProvider interface {
	IsHoliday(ctx context.Context, date time.Time) (bool, error)
}

// Calendar определяет рабочие дни и вычисляет расчётные даты.
type Calendar struct {
	provider HolidayProvider
	logger   *zap.Logger
}

// New создаёт календарь с указанным источником праздников.
// Провайдер может быть nil — тогда учитываются только выходные.
func New(provider HolidayProvider, logger *zap.Logger) *Calendar {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Calendar{
		provider: provider,
		logger:   logger,
	}
}

// IsBusinessDay возвращает false для субботы, воскресенья и праздничных дней.
// Ошибка источника праздников не фатальна: день считается рабочим,
// в лог пишется предупреждение.
func (c *Calendar) IsBusinessDay(ctx context.Context, date time.Time) bool {
	switch date.Weekday() {
	case time.Saturday, time.Sunday:
		return false
	}

	if c.provider == nil {
		return true
	}

	holiday, err := c.provider.IsHoliday(ctx, date)
	if err != nil {
		c.logger.Warn("holiday lookup failed, assuming business day",
			zap.Time("date", date), zap.Error(err))
		return true
	}

	return !holiday
}

// AddBusinessDays прибавляет к дате n рабочих дней, перебирая календарные
// дни по одному. При n = 0 возвращает исходную дату без изменений.
func (c *Calendar) AddBusinessDays(ctx context.Context, start time.Time, n int) time.Time {
	current := start
	remaining := n

	for remaining > 0 {
		current = current.AddDate(0, 0, 1)
		if c.IsBusinessDay(ctx, current) {
			remaining--
		}
	}

	return current
}

// DueDate вычисляет срок оплаты квоты: первый день месяца плюс
// льготные рабочие дни.
func (c *Calendar) DueDate(ctx context.Context, month, year, graceDays int, loc *time.Location) time.Time {
	first := time.Date(year, time.Month(month), 1, 0, 0, 0, 0, loc)
	return c.AddBusinessDays(ctx, first, graceDays)
}

// IsOverdue возвращает true, если asOf строго позже dueDate.
// Сравниваются только даты, время суток отбрасывается.
func IsOverdue(dueDate, asOf time.Time) bool {
	return truncateToDay(asOf).After(truncateToDay(dueDate))
}

func truncateToDay(t time.Time) time.Time {
	return time.Date(t.Year(), t.Month(), t.Day(), 0, 0, 0, 0, t.Location())
}
