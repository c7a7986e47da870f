package service

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"go.uber.org/zap"

	"github.com/mmeshcher/billing-system/internal/model"
	"github.com/mmeshcher/billing-system/internal/repository"
)

// ProcessPayment применяет входящий платёж к обязательствам счёта в порядке
// приоритета: сначала штрафы (от старых к новым), затем квоты (от старых
// периодов к новым). Для кредитных счетов остаток идёт в погашение процентов
// и капитала, для сберегательных — зачисляется на баланс. Весь план
// применяется в одной транзакции БД: либо всё, либо ничего.
func (s *Service) ProcessPayment(ctx context.Context, accountID int64, amount decimal.Decimal, date time.Time) (*model.PaymentResult, error) {
	if !amount.IsPositive() {
		return nil, ErrInvalidAmount
	}

	account, err := s.repo.GetAccount(ctx, accountID)
	if err != nil {
		return nil, err
	}

	switch account.Status {
	case model.AccountStatusClosed:
		return nil, ErrAccountClosed
	case model.AccountStatusBlocked:
		return nil, ErrAccountBlocked
	}

	product, err := s.repo.GetProduct(ctx, account.ProductID)
	if err != nil {
		return nil, err
	}

	if date.IsZero() {
		date = time.Now()
	}
	date = s.truncateToDay(date)

	penalties, dues, err := s.repo.GetPendingObligations(ctx, accountID)
	if err != nil {
		return nil, err
	}

	payment := &model.Transaction{
		ID:        uuid.New(),
		AccountID: accountID,
		Amount:    amount,
		Type:      model.TransactionTypeDeposit,
		Status:    model.TransactionStatusCompleted,
		Date:      date,
	}

	apply := repository.PaymentApply{
		AccountID: accountID,
		Payment:   payment,
	}

	result := &model.PaymentResult{
		PaymentID:         payment.ID,
		AccountID:         accountID,
		OriginalAmount:    amount,
		CompensatedAmount: decimal.Zero,
		RemainingAmount:   amount,
		Compensations:     []model.Compensation{},
	}

	remaining := amount
	var duesPaid []decimal.Decimal

	remaining = s.allocate(&apply, result, penalties, remaining, date, nil)
	remaining = s.allocate(&apply, result, dues, remaining, date, &duesPaid)

	switch product.Type {
	case model.ProductTypeLoan:
		details, err := s.repo.GetLoanDetails(ctx, accountID)
		if err != nil {
			return nil, err
		}
		strategy, err := strategyFor(details.LoanType)
		if err != nil {
			return nil, err
		}
		if err := strategy.applyPayment(ctx, s, account, details, &apply, result, duesPaid, remaining, date); err != nil {
			return nil, fmt.Errorf("apply loan payment: %w", err)
		}
	default:
		// Сберегательный счёт: оплаченные квоты и свободный остаток
		// зачисляются на баланс.
		credit := decimal.Zero
		for _, paid := range duesPaid {
			credit = credit.Add(paid)
		}
		credit = credit.Add(remaining)
		if credit.IsPositive() {
			newBalance := account.Balance.Add(credit)
			apply.NewAccountBalance = &newBalance
		}
	}

	if err := s.repo.ApplyPayment(ctx, apply); err != nil {
		if errors.Is(err, repository.ErrObligationChanged) {
			s.logger.Warn("payment rejected, obligations changed concurrently",
				zap.Int64("account_id", accountID))
		}
		return nil, fmt.Errorf("apply payment: %w", err)
	}

	s.logger.Info("payment processed",
		zap.Int64("account_id", accountID),
		zap.String("payment_id", payment.ID.String()),
		zap.String("amount", amount.String()),
		zap.String("compensated", result.CompensatedAmount.String()),
		zap.String("remaining", result.RemainingAmount.String()))

	return result, nil
}

// allocate распределяет остаток платежа по списку обязательств. Полное
// покрытие завершает обязательство, частичное уменьшает его сумму и создаёт
// завершённую запись на оплаченную часть. Возвращает нераспределённый остаток.
func (s *Service) allocate(apply *repository.PaymentApply, result *model.PaymentResult,
	obligations []model.Transaction, remaining decimal.Decimal, date time.Time,
	paidOut *[]decimal.Decimal) decimal.Decimal {

	for _, ob := range obligations {
		if !remaining.IsPositive() {
			break
		}

		if remaining.GreaterThanOrEqual(ob.Amount) {
			apply.Ops = append(apply.Ops, repository.CompensationOp{
				TransactionID: ob.ID,
				Amount:        ob.Amount,
				Full:          true,
			})
			result.Compensations = append(result.Compensations, model.Compensation{
				Type:         ob.Type,
				ID:           ob.ID,
				Amount:       ob.Amount,
				Compensation: model.CompensationTotal,
			})
			result.CompensatedAmount = result.CompensatedAmount.Add(ob.Amount)
			result.RemainingAmount = result.RemainingAmount.Sub(ob.Amount)
			remaining = remaining.Sub(ob.Amount)
			if paidOut != nil {
				*paidOut = append(*paidOut, ob.Amount)
			}
			continue
		}

		split := &model.Transaction{
			ID:        uuid.New(),
			AccountID: ob.AccountID,
			Amount:    remaining,
			Type:      ob.Type,
			Status:    model.TransactionStatusCompleted,
			RelatedID: &apply.Payment.ID,
			Date:      date,
		}
		// Оплаченная часть квоты сохраняет биллинговый период,
		// часть штрафа — нет.
		if ob.Type == model.TransactionTypeFeePayment {
			split.Month = ob.Month
			split.Year = ob.Year
		}

		apply.Ops = append(apply.Ops, repository.CompensationOp{
			TransactionID: ob.ID,
			Amount:        remaining,
			Split:         split,
		})
		result.Compensations = append(result.Compensations, model.Compensation{
			Type:         ob.Type,
			ID:           ob.ID,
			Amount:       remaining,
			Compensation: model.CompensationPartial,
		})
		result.CompensatedAmount = result.CompensatedAmount.Add(remaining)
		result.RemainingAmount = result.RemainingAmount.Sub(remaining)
		if paidOut != nil {
			*paidOut = append(*paidOut, remaining)
		}
		remaining = decimal.Zero
	}

	return remaining
}

// GetDebtSummary возвращает сводку задолженности счёта: штрафы, квоты,
// непогашенные проценты и остаток долга по кредиту.
func (s *Service) GetDebtSummary(ctx context.Context, accountID int64) (*model.DebtSummary, error) {
	if _, err := s.repo.GetAccount(ctx, accountID); err != nil {
		return nil, err
	}

	penalties, penaltiesCount, err := s.repo.SumByTypeAndStatus(ctx, accountID,
		model.TransactionTypePenaltyFee,
		model.TransactionStatusPending, model.TransactionStatusOverdue)
	if err != nil {
		return nil, fmt.Errorf("sum penalties: %w", err)
	}

	dues, duesCount, err := s.repo.SumByTypeAndStatus(ctx, accountID,
		model.TransactionTypeFeePayment,
		model.TransactionStatusPending, model.TransactionStatusOverdue)
	if err != nil {
		return nil, fmt.Errorf("sum dues: %w", err)
	}

	interest, _, err := s.repo.SumByTypeAndStatus(ctx, accountID,
		model.TransactionTypeInterestAccrued, model.TransactionStatusPending)
	if err != nil {
		return nil, fmt.Errorf("sum pending interest: %w", err)
	}

	loanBalance := decimal.Zero
	details, err := s.repo.GetLoanDetails(ctx, accountID)
	switch {
	case err == nil:
		loanBalance = details.CurrentBalance
	case errors.Is(err, repository.ErrLoanNotFound):
		// Сберегательный счёт.
	default:
		return nil, err
	}

	return &model.DebtSummary{
		AccountID:       accountID,
		PenaltiesAmount: penalties,
		PenaltiesCount:  penaltiesCount,
		DuesAmount:      dues,
		DuesCount:       duesCount,
		PendingInterest: interest,
		LoanBalance:     loanBalance,
		TotalDebt:       penalties.Add(dues).Add(interest).Add(loanBalance),
	}, nil
}
