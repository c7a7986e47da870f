// Package scheduler запускает ежедневные биллинговые задачи по расписанию
// в часовом поясе биллинга.
package scheduler

import (
	"context"
	"time"

	"go.uber.org/zap"

	"github.com/mmeshcher/billing-system/internal/model"
)

// BillingService описывает задачи, запускаемые по расписанию.
type BillingService interface {
	RunDailyInterest(ctx context.Context, asOf time.Time) (*model.AccrualSummary, error)
	RunBillingCycle(ctx context.Context, asOf time.Time) (*model.CycleSummary, error)
}

// Scheduler запускает начисление процентов и биллинговый цикл один раз в день,
// каждый в свой настроенный час. Задачи идемпотентны, поэтому совпадение с
// ручным запуском через API безопасно.
type Scheduler struct {
	svc    BillingService
	logger *zap.Logger
	loc    *time.Location

	interestHour int
	billingHour  int

	lastInterest time.Time
	lastBilling  time.Time
}

// New создаёт планировщик. Часы задаются в диапазоне 0-23.
func New(svc BillingService, logger *zap.Logger, loc *time.Location, interestHour, billingHour int) *Scheduler {
	if logger == nil {
		logger = zap.NewNop()
	}
	if loc == nil {
		loc = time.UTC
	}
	return &Scheduler{
		svc:          svc,
		logger:       logger,
		loc:          loc,
		interestHour: interestHour,
		billingHour:  billingHour,
	}
}

// Run крутит минутный тикер до отмены контекста.
func (s *Scheduler) Run(ctx context.Context) error {
	ticker := time.NewTicker(1 * time.Minute)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return nil
		case now := <-ticker.C:
			s.tick(ctx, now)
		}
	}
}

// tick запускает задачи, чей час уже наступил и которые сегодня ещё не
// выполнялись. Отставший после простоя запуск навёрстывается следующим тиком.
// День отмечается до запуска задачи, поэтому упавший запуск не повторяется
// до следующего дня: обе задачи идемпотентны, пропуск навёрстывается вручную
// через /api/admin/interest/run и /api/admin/billing/run.
func (s *Scheduler) tick(ctx context.Context, now time.Time) {
	now = now.In(s.loc)
	day := time.Date(now.Year(), now.Month(), now.Day(), 0, 0, 0, 0, s.loc)

	if now.Hour() >= s.interestHour && day.After(s.lastInterest) {
		s.lastInterest = day
		if _, err := s.svc.RunDailyInterest(ctx, now); err != nil {
			s.logger.Error("scheduled interest accrual failed", zap.Error(err))
		}
	}

	if now.Hour() >= s.billingHour && day.After(s.lastBilling) {
		s.lastBilling = day
		if _, err := s.svc.RunBillingCycle(ctx, now); err != nil {
			s.logger.Error("scheduled billing cycle failed", zap.Error(err))
		}
	}
}
