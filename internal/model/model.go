// Package model содержит доменные сущности биллингового сервиса.
package model

import (
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
)

// ProductType описывает категорию финансового продукта.
type ProductType string

const (
	ProductTypeSavings ProductType = "SAVINGS"
	ProductTypeLoan    ProductType = "LOAN"
)

// LoanType описывает подтип кредитного продукта.
type LoanType string

const (
	// LoanTypeFrenchSystem — кредит с фиксированной аннуитетной квотой.
	LoanTypeFrenchSystem LoanType = "FRENCH_SYSTEM"
	// LoanTypeVariableCapital — кредит с нерегулярным погашением капитала,
	// проценты начисляются на остаток долга.
	LoanTypeVariableCapital LoanType = "VARIABLE_CAPITAL"
)

// Product представляет шаблон финансового продукта, на который ссылаются счета.
type Product struct {
	ID       int64
	Name     string
	Type     ProductType
	LoanType LoanType // пустой для сберегательных продуктов

	// InterestRate — годовая номинальная ставка (0.24 = 24% годовых).
	InterestRate decimal.Decimal
	// MonthlyFee — для VARIABLE_CAPITAL фиксированный месячный процент,
	// для SAVINGS комиссия за обслуживание.
	MonthlyFee decimal.Decimal
	// MonthlyQuota — ежемесячная сберегательная квота.
	MonthlyQuota decimal.Decimal
	// PenaltyAmount — фиксированная сумма штрафа за просрочку.
	PenaltyAmount decimal.Decimal
	// PenaltyRate — ставка штрафа от суммы квоты, если фиксированной суммы нет.
	PenaltyRate decimal.Decimal

	TermMonths int
	GraceDays  int // льготные рабочие дни до срока оплаты квоты
	CreatedAt  time.Time
}

// AccountStatus описывает жизненный статус счёта.
type AccountStatus string

const (
	AccountStatusActive  AccountStatus = "ACTIVE"
	AccountStatusDormant AccountStatus = "DORMANT"
	AccountStatusClosed  AccountStatus = "CLOSED"
	AccountStatusBlocked AccountStatus = "BLOCKED"
)

// Account представляет счёт пользователя по конкретному продукту.
// Для кредитных счетов баланс отрицательный (долг), для сберегательных — положительный.
type Account struct {
	ID        int64
	UserID    int64
	ProductID int64
	Balance   decimal.Decimal
	Status    AccountStatus
	OpenedAt  time.Time
	ClosedAt  *time.Time
}

// LoanDetails хранит параметры кредита, связанные 1:1 со счётом типа LOAN.
type LoanDetails struct {
	AccountID       int64
	LoanType        LoanType
	PrincipalAmount decimal.Decimal
	// CurrentBalance — остаток долга; не возрастает, кроме явной выдачи.
	CurrentBalance  decimal.Decimal
	TermMonths      int
	MonthlyPayment  decimal.Decimal // фиксированная квота (FRENCH_SYSTEM)
	MonthlyInterest decimal.Decimal // фиксированный месячный процент (VARIABLE_CAPITAL)
	InterestRate    decimal.Decimal // годовая номинальная ставка
	MaturityDate    time.Time
	LastAccrualDate *time.Time // дата последнего начисления процентов (VARIABLE_CAPITAL)
}

// TransactionType описывает тип записи в журнале операций.
type TransactionType string

const (
	TransactionTypeDisbursement     TransactionType = "DISBURSEMENT"
	TransactionTypeFeePayment       TransactionType = "FEE_PAYMENT" // квота к оплате
	TransactionTypePenaltyFee       TransactionType = "PENALTY_FEE"
	TransactionTypeInterestAccrued  TransactionType = "INTEREST_ACCRUED"
	TransactionTypeInterestPayment  TransactionType = "INTEREST_PAYMENT"
	TransactionTypeLoanPayment      TransactionType = "LOAN_PAYMENT" // погашение капитала
	TransactionTypeManagementFee    TransactionType = "MANAGEMENT_FEE"
	TransactionTypeDeposit          TransactionType = "DEPOSIT"
	TransactionTypeWithdrawal       TransactionType = "WITHDRAWAL"
	TransactionTypeAdjustmentCredit TransactionType = "ADJUSTMENT_CREDIT"
	TransactionTypeAdjustmentDebit  TransactionType = "ADJUSTMENT_DEBIT"
)

// TransactionStatus описывает статус записи журнала.
type TransactionStatus string

const (
	TransactionStatusPending   TransactionStatus = "PENDING"
	TransactionStatusCompleted TransactionStatus = "COMPLETED"
	TransactionStatusOverdue   TransactionStatus = "OVERDUE"
	TransactionStatusCanceled  TransactionStatus = "CANCELED"
)

// Transaction — неизменяемая запись журнала о денежном событии.
// Сумма всегда положительная, знак эффекта определяется типом.
type Transaction struct {
	ID        uuid.UUID
	AccountID int64
	Amount    decimal.Decimal
	Type      TransactionType
	Status    TransactionStatus
	DueDate   *time.Time // срок оплаты для обязательств
	Month     int        // биллинговый период: месяц (1-12), 0 если не применимо
	Year      int        // биллинговый период: год, 0 если не применимо
	RelatedID *uuid.UUID // ссылка на связанную запись (штраф — на квоту, компенсация — на платёж)
	Date      time.Time
	CreatedAt time.Time
}

// CycleSummary — итог выполнения биллингового цикла.
type CycleSummary struct {
	AsOf             time.Time `json:"as_of"`
	DuesCreated      int       `json:"dues_created"`
	QuotasCreated    int       `json:"quotas_created"`
	FeesCharged      int       `json:"fees_charged"`
	MarkedOverdue    int       `json:"marked_overdue"`
	PenaltiesCreated int       `json:"penalties_created"`
	Skipped          int       `json:"skipped"`
	Errors           int       `json:"errors"`
}

// AccrualSummary — итог выполнения ежедневного начисления процентов.
type AccrualSummary struct {
	AsOf    time.Time `json:"as_of"`
	Created int       `json:"created"`
	Skipped int       `json:"skipped"`
	Errors  int       `json:"errors"`
}

// CompensationKind указывает, была ли компенсация обязательства полной или частичной.
type CompensationKind string

const (
	CompensationTotal   CompensationKind = "TOTAL"
	CompensationPartial CompensationKind = "PARTIAL"
)

// Compensation описывает одно погашенное (полностью или частично) обязательство.
type Compensation struct {
	Type         TransactionType  `json:"type"`
	ID           uuid.UUID        `json:"id"`
	Amount       decimal.Decimal  `json:"amount"`
	Compensation CompensationKind `json:"compensation"`
}

// PaymentResult — разбивка применения входящего платежа по обязательствам.
type PaymentResult struct {
	PaymentID         uuid.UUID       `json:"payment_id"`
	AccountID         int64           `json:"account_id"`
	OriginalAmount    decimal.Decimal `json:"original_amount"`
	CompensatedAmount decimal.Decimal `json:"compensated_amount"`
	RemainingAmount   decimal.Decimal `json:"remaining_amount"`
	Compensations     []Compensation  `json:"compensations"`
	LoanPaidOff       bool            `json:"loan_paid_off,omitempty"`
}

// DebtSummary — сводка задолженности по счёту.
type DebtSummary struct {
	AccountID       int64           `json:"account_id"`
	PenaltiesAmount decimal.Decimal `json:"penalties_amount"`
	PenaltiesCount  int             `json:"penalties_count"`
	DuesAmount      decimal.Decimal `json:"dues_amount"`
	DuesCount       int             `json:"dues_count"`
	PendingInterest decimal.Decimal `json:"pending_interest"`
	LoanBalance     decimal.Decimal `json:"loan_balance"`
	TotalDebt       decimal.Decimal `json:"total_debt"`
}
