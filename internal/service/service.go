// Package service содержит бизнес-логику биллингового движка: биллинговый
// цикл, начисление процентов, компенсацию платежей и жизненный цикл кредитов.
package service

import (
	"context"
	"errors"
	"time"

	"github.com/shopspring/decimal"
	"go.uber.org/zap"

	"github.com/mmeshcher/billing-system/internal/model"
	"github.com/mmeshcher/billing-system/internal/repository"
)

// ErrInvalidAmount возвращается при неположительной сумме платежа.
var (
	ErrInvalidAmount = errors.New("amount must be positive")
	// ErrInvalidPrincipal возвращается при неположительной сумме кредита.
	ErrInvalidPrincipal = errors.New("principal must be positive")
	// ErrInvalidTerm возвращается при сроке кредита вне допустимого диапазона.
	ErrInvalidTerm = errors.New("invalid loan term")
	// ErrAccountClosed возвращается при платеже по закрытому счёту.
	ErrAccountClosed = errors.New("account is closed")
	// ErrAccountBlocked возвращается при платеже по заблокированному счёту.
	ErrAccountBlocked = errors.New("account is blocked")
	// ErrWrongProductType возвращается, если продукт не кредитный.
	ErrWrongProductType = errors.New("product is not a loan product")
	// ErrProductMisconfigured возвращается, если у продукта нет параметров,
	// необходимых для выбранного подтипа кредита.
	ErrProductMisconfigured = errors.New("product is misconfigured")
	// ErrPastMaturity возвращается, если срок погашения уже прошёл.
	ErrPastMaturity = errors.New("maturity date is in the past")
)

// Repository описывает методы хранилища, используемые сервисом.
type Repository interface {
	UserExists(ctx context.Context, userID int64) (bool, error)
	GetProduct(ctx context.Context, id int64) (*model.Product, error)
	GetAccount(ctx context.Context, id int64) (*model.Account, error)
	GetLoanDetails(ctx context.Context, accountID int64) (*model.LoanDetails, error)
	CreateLoanAccount(ctx context.Context, account *model.Account, details *model.LoanDetails, disbursement *model.Transaction) (int64, error)
	GetActiveLoanAccounts(ctx context.Context, loanType model.LoanType) ([]repository.LoanAccount, error)
	GetActiveSavingsAccounts(ctx context.Context) ([]repository.SavingsAccount, error)
	PeriodChargeExists(ctx context.Context, accountID int64, txType model.TransactionType, month, year int) (bool, error)
	CreateTransaction(ctx context.Context, t *model.Transaction) (bool, error)
	ChargeManagementFee(ctx context.Context, fee *model.Transaction) (bool, error)
	MarkOverdue(ctx context.Context, asOf time.Time) (int64, error)
	GetOverdueDuesWithoutPenalty(ctx context.Context) ([]repository.OverdueDue, error)
	CreateInterestAccrual(ctx context.Context, accrual *model.Transaction) (bool, error)
	GetPendingObligations(ctx context.Context, accountID int64) (penalties, dues []model.Transaction, err error)
	GetPendingInterest(ctx context.Context, accountID int64) ([]model.Transaction, error)
	ApplyPayment(ctx context.Context, apply repository.PaymentApply) error
	SumByTypeAndStatus(ctx context.Context, accountID int64, txType model.TransactionType, statuses ...model.TransactionStatus) (decimal.Decimal, int, error)
	GetLastPaymentDate(ctx context.Context, accountID int64) (*time.Time, error)
	Close() error
}

// BusinessCalendar описывает календарь рабочих дней, используемый сервисом.
type BusinessCalendar interface {
	DueDate(ctx context.Context, month, year, graceDays int, loc *time.Location) time.Time
}

// Options содержит настройки биллинговой политики.
type Options struct {
	// Location — часовой пояс, в котором определяются биллинговые периоды.
	Location *time.Location
	// GraceDays — льготные рабочие дни по умолчанию, если продукт не задаёт свои.
	GraceDays int
	// PenaltyRate — ставка штрафа по умолчанию, если продукт не задаёт свою.
	PenaltyRate decimal.Decimal
	// BillingDay — день месяца, на который назначается срок оплаты кредитной квоты.
	BillingDay int
}

// Service реализует бизнес-логику биллингового движка.
type Service struct {
	repo   Repository
	cal    BusinessCalendar
	logger *zap.Logger
	opts   Options
}

// NewService создаёт сервис с указанным хранилищем и календарём.
func NewService(repo Repository, cal BusinessCalendar, logger *zap.Logger, opts Options) *Service {
	if logger == nil {
		logger = zap.NewNop()
	}
	if opts.Location == nil {
		opts.Location = time.UTC
	}
	if opts.BillingDay == 0 {
		opts.BillingDay = 5
	}
	return &Service{
		repo:   repo,
		cal:    cal,
		logger: logger,
		opts:   opts,
	}
}

// Close освобождает ресурсы хранилища.
func (s *Service) Close() error {
	return s.repo.Close()
}

// truncateToDay отбрасывает время суток, сохраняя часовой пояс биллинга.
func (s *Service) truncateToDay(t time.Time) time.Time {
	t = t.In(s.opts.Location)
	return time.Date(t.Year(), t.Month(), t.Day(), 0, 0, 0, 0, s.opts.Location)
}
