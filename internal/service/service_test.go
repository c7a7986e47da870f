package service

import (
	"context"
	"time"

	"github.com/shopspring/decimal"

	"github.com/mmeshcher/billing-system/internal/model"
	"github.com/mmeshcher/billing-system/internal/repository"
)

type sumResult struct {
	sum   decimal.Decimal
	count int
}

type stubRepo struct {
	userExists    bool
	userExistsErr error

	product    *model.Product
	productErr error

	account    *model.Account
	accountErr error

	details    *model.LoanDetails
	detailsErr error

	createLoanID   int64
	createLoanErr  error
	createdAccount *model.Account
	createdDetails *model.LoanDetails

	loanAccounts    map[model.LoanType][]repository.LoanAccount
	savingsAccounts []repository.SavingsAccount

	periodExists    bool
	periodExistsErr error

	createTxInserted bool
	createTxErr      error
	createdTxs       []*model.Transaction

	feeCharged  bool
	chargedFees []*model.Transaction

	markedOverdue int64
	overdueDues   []repository.OverdueDue

	accrualCreated bool
	accruals       []*model.Transaction

	penalties       []model.Transaction
	dues            []model.Transaction
	pendingInterest []model.Transaction

	applied  *repository.PaymentApply
	applyErr error

	sums        map[model.TransactionType]sumResult
	lastPayment *time.Time
}

func (s *stubRepo) Close() error { return nil }

func (s *stubRepo) UserExists(ctx context.Context, userID int64) (bool, error) {
	return s.userExists, s.userExistsErr
}

func (s *stubRepo) GetProduct(ctx context.Context, id int64) (*model.Product, error) {
	return s.product, s.productErr
}

func (s *stubRepo) GetAccount(ctx context.Context, id int64) (*model.Account, error) {
	return s.account, s.accountErr
}

func (s *stubRepo) GetLoanDetails(ctx context.Context, accountID int64) (*model.LoanDetails, error) {
	return s.details, s.detailsErr
}

func (s *stubRepo) CreateLoanAccount(ctx context.Context, account *model.Account, details *model.LoanDetails, disbursement *model.Transaction) (int64, error) {
	s.createdAccount = account
	s.createdDetails = details
	return s.createLoanID, s.createLoanErr
}

func (s *stubRepo) GetActiveLoanAccounts(ctx context.Context, loanType model.LoanType) ([]repository.LoanAccount, error) {
	return s.loanAccounts[loanType], nil
}

func (s *stubRepo) GetActiveSavingsAccounts(ctx context.Context) ([]repository.SavingsAccount, error) {
	return s.savingsAccounts, nil
}

func (s *stubRepo) PeriodChargeExists(ctx context.Context, accountID int64, txType model.TransactionType, month, year int) (bool, error) {
	return s.periodExists, s.periodExistsErr
}

func (s *stubRepo) CreateTransaction(ctx context.Context, t *model.Transaction) (bool, error) {
	if s.createTxErr != nil {
		return false, s.createTxErr
	}
	s.createdTxs = append(s.createdTxs, t)
	return s.createTxInserted, nil
}

func (s *stubRepo) ChargeManagementFee(ctx context.Context, fee *model.Transaction) (bool, error) {
	s.chargedFees = append(s.chargedFees, fee)
	return s.feeCharged, nil
}

func (s *stubRepo) MarkOverdue(ctx context.Context, asOf time.Time) (int64, error) {
	return s.markedOverdue, nil
}

func (s *stubRepo) GetOverdueDuesWithoutPenalty(ctx context.Context) ([]repository.OverdueDue, error) {
	return s.overdueDues, nil
}

func (s *stubRepo) CreateInterestAccrual(ctx context.Context, accrual *model.Transaction) (bool, error) {
	s.accruals = append(s.accruals, accrual)
	return s.accrualCreated, nil
}

func (s *stubRepo) GetPendingObligations(ctx context.Context, accountID int64) ([]model.Transaction, []model.Transaction, error) {
	return s.penalties, s.dues, nil
}

func (s *stubRepo) GetPendingInterest(ctx context.Context, accountID int64) ([]model.Transaction, error) {
	return s.pendingInterest, nil
}

func (s *stubRepo) ApplyPayment(ctx context.Context, apply repository.PaymentApply) error {
	if s.applyErr != nil {
		return s.applyErr
	}
	s.applied = &apply
	return nil
}

func (s *stubRepo) SumByTypeAndStatus(ctx context.Context, accountID int64, txType model.TransactionType, statuses ...model.TransactionStatus) (decimal.Decimal, int, error) {
	r, ok := s.sums[txType]
	if !ok {
		return decimal.Zero, 0, nil
	}
	return r.sum, r.count, nil
}

func (s *stubRepo) GetLastPaymentDate(ctx context.Context, accountID int64) (*time.Time, error) {
	return s.lastPayment, nil
}

// stubCalendar прибавляет льготные дни как календарные, без учёта выходных.
type stubCalendar struct{}

func (stubCalendar) DueDate(ctx context.Context, month, year, graceDays int, loc *time.Location) time.Time {
	return time.Date(year, time.Month(month), 1, 0, 0, 0, 0, loc).AddDate(0, 0, graceDays)
}

func newTestService(repo *stubRepo) *Service {
	return NewService(repo, stubCalendar{}, nil, Options{
		Location:    time.UTC,
		GraceDays:   5,
		PenaltyRate: decimal.NewFromFloat(0.10),
		BillingDay:  5,
	})
}
