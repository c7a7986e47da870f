package service

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"

	"github.com/mmeshcher/billing-system/internal/amortize"
	"github.com/mmeshcher/billing-system/internal/model"
	"github.com/mmeshcher/billing-system/internal/repository"
)

const maxFrenchTermMonths = 60

// LoanCreated — результат открытия кредитного счёта.
type LoanCreated struct {
	AccountID      int64            `json:"account_id"`
	LoanType       model.LoanType   `json:"loan_type"`
	Principal      decimal.Decimal  `json:"principal"`
	MonthlyPayment decimal.Decimal  `json:"monthly_payment,omitempty"`
	MaturityDate   time.Time        `json:"maturity_date"`
	Schedule       []amortize.Entry `json:"schedule,omitempty"`
}

// LoanStatus — текущее состояние кредита.
type LoanStatus struct {
	AccountID       int64               `json:"account_id"`
	Status          model.AccountStatus `json:"status"`
	LoanType        model.LoanType      `json:"loan_type"`
	Principal       decimal.Decimal     `json:"principal"`
	CurrentBalance  decimal.Decimal     `json:"current_balance"`
	MonthlyPayment  decimal.Decimal     `json:"monthly_payment,omitempty"`
	PendingInterest decimal.Decimal     `json:"pending_interest"`
	TotalDebt       decimal.Decimal     `json:"total_debt"`
	MaturityDate    time.Time           `json:"maturity_date"`
	LastPaymentDate *time.Time          `json:"last_payment_date,omitempty"`
}

// loanStrategy инкапсулирует поведение подтипа кредита: валидацию параметров
// при открытии и применение остатка платежа к долгу.
type loanStrategy interface {
	newDetails(product *model.Product, principal decimal.Decimal, termMonths int, now time.Time) (*model.LoanDetails, error)
	applyPayment(ctx context.Context, s *Service, account *model.Account, details *model.LoanDetails,
		apply *repository.PaymentApply, result *model.PaymentResult,
		duesPaid []decimal.Decimal, leftover decimal.Decimal, date time.Time) error
}

func strategyFor(lt model.LoanType) (loanStrategy, error) {
	switch lt {
	case model.LoanTypeFrenchSystem:
		return frenchSystem{}, nil
	case model.LoanTypeVariableCapital:
		return variableCapital{}, nil
	default:
		return nil, fmt.Errorf("%w: unknown loan type %q", ErrProductMisconfigured, lt)
	}
}

// CreateLoan открывает кредитный счёт: создаёт счёт с отрицательным балансом,
// кредитные детали и запись о выдаче в одной транзакции.
func (s *Service) CreateLoan(ctx context.Context, userID, productID int64, principal decimal.Decimal, termMonths int) (*LoanCreated, error) {
	if !principal.IsPositive() {
		return nil, ErrInvalidPrincipal
	}

	exists, err := s.repo.UserExists(ctx, userID)
	if err != nil {
		return nil, fmt.Errorf("check user: %w", err)
	}
	if !exists {
		return nil, repository.ErrUserNotFound
	}

	product, err := s.repo.GetProduct(ctx, productID)
	if err != nil {
		return nil, err
	}
	if product.Type != model.ProductTypeLoan {
		return nil, ErrWrongProductType
	}

	strategy, err := strategyFor(product.LoanType)
	if err != nil {
		return nil, err
	}

	now := s.truncateToDay(time.Now())
	details, err := strategy.newDetails(product, principal, termMonths, now)
	if err != nil {
		return nil, err
	}

	account := &model.Account{
		UserID:    userID,
		ProductID: productID,
		Balance:   principal.Neg(),
		Status:    model.AccountStatusActive,
		OpenedAt:  now,
	}

	disbursement := &model.Transaction{
		ID:        uuid.New(),
		Amount:    principal,
		Type:      model.TransactionTypeDisbursement,
		Status:    model.TransactionStatusCompleted,
		Date:      now,
	}

	accountID, err := s.repo.CreateLoanAccount(ctx, account, details, disbursement)
	if err != nil {
		return nil, fmt.Errorf("create loan account: %w", err)
	}

	created := &LoanCreated{
		AccountID:      accountID,
		LoanType:       product.LoanType,
		Principal:      principal,
		MonthlyPayment: details.MonthlyPayment,
		MaturityDate:   details.MaturityDate,
	}

	if product.LoanType == model.LoanTypeFrenchSystem {
		created.Schedule = amortize.Schedule(principal, amortize.MonthlyRate(product.InterestRate), termMonths)
	}

	return created, nil
}

// GetLoanStatus возвращает текущее состояние кредита по счёту.
func (s *Service) GetLoanStatus(ctx context.Context, accountID int64) (*LoanStatus, error) {
	account, err := s.repo.GetAccount(ctx, accountID)
	if err != nil {
		return nil, err
	}

	details, err := s.repo.GetLoanDetails(ctx, accountID)
	if err != nil {
		return nil, err
	}

	pendingInterest, _, err := s.repo.SumByTypeAndStatus(ctx, accountID,
		model.TransactionTypeInterestAccrued, model.TransactionStatusPending)
	if err != nil {
		return nil, fmt.Errorf("sum pending interest: %w", err)
	}

	lastPayment, err := s.repo.GetLastPaymentDate(ctx, accountID)
	if err != nil {
		return nil, err
	}

	return &LoanStatus{
		AccountID:       accountID,
		Status:          account.Status,
		LoanType:        details.LoanType,
		Principal:       details.PrincipalAmount,
		CurrentBalance:  details.CurrentBalance,
		MonthlyPayment:  details.MonthlyPayment,
		PendingInterest: pendingInterest,
		TotalDebt:       details.CurrentBalance.Add(pendingInterest),
		MaturityDate:    details.MaturityDate,
		LastPaymentDate: lastPayment,
	}, nil
}

// frenchSystem — аннуитетный кредит: фиксированная месячная квота,
// срок от 1 до 60 месяцев.
type frenchSystem struct{}

func (frenchSystem) newDetails(product *model.Product, principal decimal.Decimal, termMonths int, now time.Time) (*model.LoanDetails, error) {
	if termMonths < 1 || termMonths > maxFrenchTermMonths {
		return nil, fmt.Errorf("%w: term must be between 1 and %d months", ErrInvalidTerm, maxFrenchTermMonths)
	}
	if !product.InterestRate.IsPositive() {
		return nil, fmt.Errorf("%w: interest rate is required", ErrProductMisconfigured)
	}

	monthlyRate := amortize.MonthlyRate(product.InterestRate)
	payment := amortize.MonthlyPayment(principal, monthlyRate, termMonths)

	return &model.LoanDetails{
		LoanType:        model.LoanTypeFrenchSystem,
		PrincipalAmount: principal,
		CurrentBalance:  principal,
		TermMonths:      termMonths,
		MonthlyPayment:  payment,
		InterestRate:    product.InterestRate,
		MaturityDate:    now.AddDate(0, termMonths, 0),
	}, nil
}

// applyPayment уменьшает остаток долга на капитальную часть оплаченных квот:
// из каждой оплаченной суммы сначала вычитаются проценты за период, остальное
// гасит капитал. Остаток платежа после квот идёт в досрочное погашение.
func (frenchSystem) applyPayment(ctx context.Context, s *Service, account *model.Account, details *model.LoanDetails,
	apply *repository.PaymentApply, result *model.PaymentResult,
	duesPaid []decimal.Decimal, leftover decimal.Decimal, date time.Time) error {

	monthlyRate := amortize.MonthlyRate(details.InterestRate)
	balance := details.CurrentBalance

	for _, paid := range duesPaid {
		interest := balance.Mul(monthlyRate).Round(2)
		principalPart := paid.Sub(interest)
		if principalPart.IsNegative() {
			principalPart = decimal.Zero
		}
		if principalPart.GreaterThan(balance) {
			principalPart = balance
		}
		balance = balance.Sub(principalPart)
	}

	if leftover.IsPositive() && balance.IsPositive() {
		prepayment := leftover
		if prepayment.GreaterThan(balance) {
			prepayment = balance
		}

		apply.Extra = append(apply.Extra, &model.Transaction{
			ID:        uuid.New(),
			AccountID: account.ID,
			Amount:    prepayment,
			Type:      model.TransactionTypeLoanPayment,
			Status:    model.TransactionStatusCompleted,
			RelatedID: &apply.Payment.ID,
			Date:      date,
		})

		balance = balance.Sub(prepayment)
		result.CompensatedAmount = result.CompensatedAmount.Add(prepayment)
		result.RemainingAmount = result.RemainingAmount.Sub(prepayment)
	}

	newAccountBalance := balance.Neg()
	apply.NewLoanBalance = &balance
	apply.NewAccountBalance = &newAccountBalance

	if balance.IsZero() {
		apply.CloseAccount = true
		apply.ClosedAt = date
		result.LoanPaidOff = true
	}

	return nil
}

// variableCapital — кредит с нерегулярным погашением: проценты начисляются
// ежедневно, платежи гасят сначала накопленные проценты, затем капитал.
type variableCapital struct{}

func (variableCapital) newDetails(product *model.Product, principal decimal.Decimal, termMonths int, now time.Time) (*model.LoanDetails, error) {
	monthlyInterest := product.MonthlyFee
	if !monthlyInterest.IsPositive() {
		if !product.InterestRate.IsPositive() {
			return nil, fmt.Errorf("%w: monthly interest or rate is required", ErrProductMisconfigured)
		}
		monthlyInterest = principal.Mul(amortize.MonthlyRate(product.InterestRate)).Round(2)
	}

	// Срок погашения — 30 ноября текущего года.
	maturity := time.Date(now.Year(), time.November, 30, 0, 0, 0, 0, now.Location())
	if !now.Before(maturity) {
		return nil, ErrPastMaturity
	}

	return &model.LoanDetails{
		LoanType:        model.LoanTypeVariableCapital,
		PrincipalAmount: principal,
		CurrentBalance:  principal,
		MonthlyInterest: monthlyInterest,
		InterestRate:    product.InterestRate,
		MaturityDate:    maturity,
	}, nil
}

// applyPayment гасит накопленные начисления процентов от старых к новым,
// затем уменьшает остаток капитала. Частично покрытое начисление уменьшается
// на оплаченную часть и остаётся PENDING. Остаток долга ноль закрывает счёт.
func (variableCapital) applyPayment(ctx context.Context, s *Service, account *model.Account, details *model.LoanDetails,
	apply *repository.PaymentApply, result *model.PaymentResult,
	duesPaid []decimal.Decimal, leftover decimal.Decimal, date time.Time) error {

	if !leftover.IsPositive() {
		return nil
	}

	accruals, err := s.repo.GetPendingInterest(ctx, account.ID)
	if err != nil {
		return err
	}

	interestPaid := decimal.Zero
	for _, accrual := range accruals {
		if !leftover.IsPositive() {
			break
		}

		if leftover.GreaterThanOrEqual(accrual.Amount) {
			apply.Ops = append(apply.Ops, repository.CompensationOp{
				TransactionID: accrual.ID,
				Amount:        accrual.Amount,
				Full:          true,
			})
			interestPaid = interestPaid.Add(accrual.Amount)
			leftover = leftover.Sub(accrual.Amount)
			continue
		}

		// Частичное покрытие: уменьшаем сумму начисления, статус не меняется.
		apply.Ops = append(apply.Ops, repository.CompensationOp{
			TransactionID: accrual.ID,
			Amount:        leftover,
		})
		interestPaid = interestPaid.Add(leftover)
		leftover = decimal.Zero
	}

	if interestPaid.IsPositive() {
		apply.Extra = append(apply.Extra, &model.Transaction{
			ID:        uuid.New(),
			AccountID: account.ID,
			Amount:    interestPaid,
			Type:      model.TransactionTypeInterestPayment,
			Status:    model.TransactionStatusCompleted,
			RelatedID: &apply.Payment.ID,
			Date:      date,
		})
		result.CompensatedAmount = result.CompensatedAmount.Add(interestPaid)
		result.RemainingAmount = result.RemainingAmount.Sub(interestPaid)
	}

	balance := details.CurrentBalance
	if leftover.IsPositive() && balance.IsPositive() {
		principalPart := leftover
		if principalPart.GreaterThan(balance) {
			principalPart = balance
		}

		apply.Extra = append(apply.Extra, &model.Transaction{
			ID:        uuid.New(),
			AccountID: account.ID,
			Amount:    principalPart,
			Type:      model.TransactionTypeLoanPayment,
			Status:    model.TransactionStatusCompleted,
			RelatedID: &apply.Payment.ID,
			Date:      date,
		})

		balance = balance.Sub(principalPart)
		result.CompensatedAmount = result.CompensatedAmount.Add(principalPart)
		result.RemainingAmount = result.RemainingAmount.Sub(principalPart)
	}

	newAccountBalance := balance.Neg()
	apply.NewLoanBalance = &balance
	apply.NewAccountBalance = &newAccountBalance

	if balance.IsZero() {
		apply.CloseAccount = true
		apply.ClosedAt = date
		result.LoanPaidOff = true
	}

	return nil
}
