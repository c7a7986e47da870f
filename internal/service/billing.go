package service

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/mmeshcher/billing-system/internal/model"
)

// RunBillingCycle выполняет биллинговый цикл за период, в который попадает
// asOf: выставляет кредитные квоты, сберегательные квоты и комиссии,
// помечает просрочку и начисляет штрафы. Каждый шаг идемпотентен — повторный
// запуск за тот же период не создаёт дублей. Ошибка по одному счёту логируется
// и не прерывает обработку остальных.
func (s *Service) RunBillingCycle(ctx context.Context, asOf time.Time) (*model.CycleSummary, error) {
	asOf = s.truncateToDay(asOf)
	summary := &model.CycleSummary{AsOf: asOf}

	s.logger.Info("billing cycle started", zap.Time("as_of", asOf))

	if err := s.generateLoanDues(ctx, asOf, summary); err != nil {
		return summary, err
	}
	if err := s.generateSavingsQuotas(ctx, asOf, summary); err != nil {
		return summary, err
	}
	if err := s.chargeManagementFees(ctx, asOf, summary); err != nil {
		return summary, err
	}

	marked, err := s.repo.MarkOverdue(ctx, asOf)
	if err != nil {
		return summary, fmt.Errorf("mark overdue: %w", err)
	}
	summary.MarkedOverdue = int(marked)

	if err := s.createPenalties(ctx, asOf, summary); err != nil {
		return summary, err
	}

	s.logger.Info("billing cycle finished",
		zap.Int("dues_created", summary.DuesCreated),
		zap.Int("quotas_created", summary.QuotasCreated),
		zap.Int("fees_charged", summary.FeesCharged),
		zap.Int("marked_overdue", summary.MarkedOverdue),
		zap.Int("penalties_created", summary.PenaltiesCreated),
		zap.Int("skipped", summary.Skipped),
		zap.Int("errors", summary.Errors))

	return summary, nil
}

// generateLoanDues выставляет месячную квоту каждому активному аннуитетному
// кредиту. Срок оплаты — биллинговый день месяца.
func (s *Service) generateLoanDues(ctx context.Context, asOf time.Time, summary *model.CycleSummary) error {
	loans, err := s.repo.GetActiveLoanAccounts(ctx, model.LoanTypeFrenchSystem)
	if err != nil {
		return fmt.Errorf("get loan accounts: %w", err)
	}

	dueDate := time.Date(asOf.Year(), asOf.Month(), s.opts.BillingDay, 0, 0, 0, 0, s.opts.Location)

	for _, loan := range loans {
		// Занятость периода проверяется независимо от статуса записи:
		// полностью оплаченная квота не освобождает период.
		exists, err := s.repo.PeriodChargeExists(ctx, loan.Account.ID,
			model.TransactionTypeFeePayment, int(asOf.Month()), asOf.Year())
		if err != nil {
			s.logger.Error("failed to check loan due period",
				zap.Int64("account_id", loan.Account.ID), zap.Error(err))
			summary.Errors++
			continue
		}
		if exists {
			summary.Skipped++
			continue
		}

		due := &model.Transaction{
			ID:        uuid.New(),
			AccountID: loan.Account.ID,
			Amount:    loan.Details.MonthlyPayment,
			Type:      model.TransactionTypeFeePayment,
			Status:    model.TransactionStatusPending,
			DueDate:   &dueDate,
			Month:     int(asOf.Month()),
			Year:      asOf.Year(),
			Date:      asOf,
		}

		inserted, err := s.repo.CreateTransaction(ctx, due)
		if err != nil {
			s.logger.Error("failed to create loan due",
				zap.Int64("account_id", loan.Account.ID), zap.Error(err))
			summary.Errors++
			continue
		}
		if inserted {
			summary.DuesCreated++
		} else {
			summary.Skipped++
		}
	}

	return nil
}

// generateSavingsQuotas выставляет сберегательную квоту каждому активному
// сберегательному счёту с ненулевой квотой. Срок оплаты считается по
// календарю рабочих дней с учётом льготных дней продукта.
func (s *Service) generateSavingsQuotas(ctx context.Context, asOf time.Time, summary *model.CycleSummary) error {
	accounts, err := s.repo.GetActiveSavingsAccounts(ctx)
	if err != nil {
		return fmt.Errorf("get savings accounts: %w", err)
	}

	for _, sa := range accounts {
		if !sa.Product.MonthlyQuota.IsPositive() {
			continue
		}

		exists, err := s.repo.PeriodChargeExists(ctx, sa.Account.ID,
			model.TransactionTypeFeePayment, int(asOf.Month()), asOf.Year())
		if err != nil {
			s.logger.Error("failed to check savings quota period",
				zap.Int64("account_id", sa.Account.ID), zap.Error(err))
			summary.Errors++
			continue
		}
		if exists {
			summary.Skipped++
			continue
		}

		graceDays := sa.Product.GraceDays
		if graceDays == 0 {
			graceDays = s.opts.GraceDays
		}
		dueDate := s.cal.DueDate(ctx, int(asOf.Month()), asOf.Year(), graceDays, s.opts.Location)

		quota := &model.Transaction{
			ID:        uuid.New(),
			AccountID: sa.Account.ID,
			Amount:    sa.Product.MonthlyQuota,
			Type:      model.TransactionTypeFeePayment,
			Status:    model.TransactionStatusPending,
			DueDate:   &dueDate,
			Month:     int(asOf.Month()),
			Year:      asOf.Year(),
			Date:      asOf,
		}

		inserted, err := s.repo.CreateTransaction(ctx, quota)
		if err != nil {
			s.logger.Error("failed to create savings quota",
				zap.Int64("account_id", sa.Account.ID), zap.Error(err))
			summary.Errors++
			continue
		}
		if inserted {
			summary.QuotasCreated++
		} else {
			summary.Skipped++
		}
	}

	return nil
}

// chargeManagementFees списывает комиссию за обслуживание с активных
// сберегательных счетов. Списание и запись журнала атомарны.
func (s *Service) chargeManagementFees(ctx context.Context, asOf time.Time, summary *model.CycleSummary) error {
	accounts, err := s.repo.GetActiveSavingsAccounts(ctx)
	if err != nil {
		return fmt.Errorf("get savings accounts: %w", err)
	}

	for _, sa := range accounts {
		if !sa.Product.MonthlyFee.IsPositive() {
			continue
		}

		fee := &model.Transaction{
			ID:        uuid.New(),
			AccountID: sa.Account.ID,
			Amount:    sa.Product.MonthlyFee,
			Type:      model.TransactionTypeManagementFee,
			Status:    model.TransactionStatusCompleted,
			Month:     int(asOf.Month()),
			Year:      asOf.Year(),
			Date:      asOf,
		}

		charged, err := s.repo.ChargeManagementFee(ctx, fee)
		if err != nil {
			s.logger.Error("failed to charge management fee",
				zap.Int64("account_id", sa.Account.ID), zap.Error(err))
			summary.Errors++
			continue
		}
		if charged {
			summary.FeesCharged++
		} else {
			summary.Skipped++
		}
	}

	return nil
}

// createPenalties начисляет штраф по каждой просроченной квоте, у которой
// ещё нет штрафа за тот же период. Сумма штрафа — фиксированная из продукта,
// иначе доля от суммы квоты.
func (s *Service) createPenalties(ctx context.Context, asOf time.Time, summary *model.CycleSummary) error {
	overdue, err := s.repo.GetOverdueDuesWithoutPenalty(ctx)
	if err != nil {
		return fmt.Errorf("get overdue dues: %w", err)
	}

	for _, od := range overdue {
		amount := od.PenaltyAmount
		if !amount.IsPositive() {
			rate := od.PenaltyRate
			if !rate.IsPositive() {
				rate = s.opts.PenaltyRate
			}
			amount = od.Due.Amount.Mul(rate).Round(2)
		}
		if !amount.IsPositive() {
			summary.Skipped++
			continue
		}

		dueID := od.Due.ID
		penalty := &model.Transaction{
			ID:        uuid.New(),
			AccountID: od.Due.AccountID,
			Amount:    amount,
			Type:      model.TransactionTypePenaltyFee,
			Status:    model.TransactionStatusPending,
			Month:     od.Due.Month,
			Year:      od.Due.Year,
			RelatedID: &dueID,
			Date:      asOf,
		}

		inserted, err := s.repo.CreateTransaction(ctx, penalty)
		if err != nil {
			s.logger.Error("failed to create penalty",
				zap.Int64("account_id", od.Due.AccountID), zap.Error(err))
			summary.Errors++
			continue
		}
		if inserted {
			summary.PenaltiesCreated++
		} else {
			summary.Skipped++
		}
	}

	return nil
}
