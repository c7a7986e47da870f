package service

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"go.uber.org/zap"

	"github.com/mmeshcher/billing-system/internal/amortize"
	"github.com/mmeshcher/billing-system/internal/model"
)

var daysPerMonth = decimal.NewFromInt(30)

// RunDailyInterest начисляет дневные проценты по всем активным кредитам с
// нерегулярным погашением. Дневная сумма — месячный процент, делённый на 30.
// Начисление за один и тот же день не дублируется: пропускается по дате
// последнего начисления и дополнительно блокируется уникальным индексом,
// поэтому повторный запуск за день безопасен.
func (s *Service) RunDailyInterest(ctx context.Context, asOf time.Time) (*model.AccrualSummary, error) {
	asOf = s.truncateToDay(asOf)
	summary := &model.AccrualSummary{AsOf: asOf}

	loans, err := s.repo.GetActiveLoanAccounts(ctx, model.LoanTypeVariableCapital)
	if err != nil {
		return summary, fmt.Errorf("get loan accounts: %w", err)
	}

	for _, loan := range loans {
		if loan.Details.LastAccrualDate != nil && !asOf.After(s.truncateToDay(*loan.Details.LastAccrualDate)) {
			summary.Skipped++
			continue
		}

		amount := s.dailyInterest(loan.Details)
		if !amount.IsPositive() {
			summary.Skipped++
			continue
		}

		accrual := &model.Transaction{
			ID:        uuid.New(),
			AccountID: loan.Account.ID,
			Amount:    amount,
			Type:      model.TransactionTypeInterestAccrued,
			Status:    model.TransactionStatusPending,
			Date:      asOf,
		}

		created, err := s.repo.CreateInterestAccrual(ctx, accrual)
		if err != nil {
			s.logger.Error("failed to accrue interest",
				zap.Int64("account_id", loan.Account.ID), zap.Error(err))
			summary.Errors++
			continue
		}
		if created {
			summary.Created++
		} else {
			summary.Skipped++
		}
	}

	s.logger.Info("daily interest accrual finished",
		zap.Time("as_of", asOf),
		zap.Int("created", summary.Created),
		zap.Int("skipped", summary.Skipped),
		zap.Int("errors", summary.Errors))

	return summary, nil
}

// dailyInterest возвращает дневную сумму процентов: фиксированный месячный
// процент из деталей кредита, иначе остаток долга по месячной ставке.
func (s *Service) dailyInterest(details model.LoanDetails) decimal.Decimal {
	monthly := details.MonthlyInterest
	if !monthly.IsPositive() {
		monthly = details.CurrentBalance.Mul(amortize.MonthlyRate(details.InterestRate))
	}
	return monthly.Div(daysPerMonth).Round(2)
}
