package service

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/shopspring/decimal"

	"github.com/mmeshcher/billing-system/internal/model"
	"github.com/mmeshcher/billing-system/internal/repository"
)

func loanProduct(lt model.LoanType) *model.Product {
	return &model.Product{
		ID:           1,
		Name:         "test loan",
		Type:         model.ProductTypeLoan,
		LoanType:     lt,
		InterestRate: decimal.NewFromFloat(0.24),
	}
}

func TestCreateLoan_InvalidPrincipal(t *testing.T) {
	svc := newTestService(&stubRepo{})

	_, err := svc.CreateLoan(context.Background(), 1, 1, decimal.Zero, 12)
	if !errors.Is(err, ErrInvalidPrincipal) {
		t.Fatalf("expected ErrInvalidPrincipal, got %v", err)
	}
}

func TestCreateLoan_UnknownUser(t *testing.T) {
	repo := &stubRepo{userExists: false}
	svc := newTestService(repo)

	_, err := svc.CreateLoan(context.Background(), 42, 1, decimal.NewFromInt(1000), 12)
	if !errors.Is(err, repository.ErrUserNotFound) {
		t.Fatalf("expected ErrUserNotFound, got %v", err)
	}
}

func TestCreateLoan_WrongProductType(t *testing.T) {
	repo := &stubRepo{
		userExists: true,
		product:    &model.Product{ID: 1, Type: model.ProductTypeSavings},
	}
	svc := newTestService(repo)

	_, err := svc.CreateLoan(context.Background(), 1, 1, decimal.NewFromInt(1000), 12)
	if !errors.Is(err, ErrWrongProductType) {
		t.Fatalf("expected ErrWrongProductType, got %v", err)
	}
}

func TestCreateLoan_FrenchTermValidation(t *testing.T) {
	repo := &stubRepo{
		userExists: true,
		product:    loanProduct(model.LoanTypeFrenchSystem),
	}
	svc := newTestService(repo)

	for _, term := range []int{0, -1, 61} {
		_, err := svc.CreateLoan(context.Background(), 1, 1, decimal.NewFromInt(1000), term)
		if !errors.Is(err, ErrInvalidTerm) {
			t.Fatalf("term %d: expected ErrInvalidTerm, got %v", term, err)
		}
	}
}

func TestCreateLoan_French(t *testing.T) {
	repo := &stubRepo{
		userExists:   true,
		product:      loanProduct(model.LoanTypeFrenchSystem),
		createLoanID: 7,
	}
	svc := newTestService(repo)

	principal := decimal.NewFromInt(1_000_000)
	created, err := svc.CreateLoan(context.Background(), 1, 1, principal, 12)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	if created.AccountID != 7 {
		t.Fatalf("expected account id 7, got %d", created.AccountID)
	}
	if !created.MonthlyPayment.IsPositive() {
		t.Fatalf("expected positive monthly payment, got %s", created.MonthlyPayment)
	}
	if len(created.Schedule) != 12 {
		t.Fatalf("expected 12 schedule entries, got %d", len(created.Schedule))
	}

	// Баланс кредитного счёта — отрицательный долг.
	if !repo.createdAccount.Balance.Equal(principal.Neg()) {
		t.Fatalf("expected account balance %s, got %s", principal.Neg(), repo.createdAccount.Balance)
	}
	if !repo.createdDetails.CurrentBalance.Equal(principal) {
		t.Fatalf("expected loan balance %s, got %s", principal, repo.createdDetails.CurrentBalance)
	}
	if repo.createdAccount.Status != model.AccountStatusActive {
		t.Fatalf("expected ACTIVE account, got %s", repo.createdAccount.Status)
	}
}

func TestVariableCapitalDetails_MaturityCutoff(t *testing.T) {
	product := loanProduct(model.LoanTypeVariableCapital)
	principal := decimal.NewFromInt(100_000)

	now := time.Date(2025, time.March, 10, 0, 0, 0, 0, time.UTC)
	details, err := variableCapital{}.newDetails(product, principal, 0, now)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	want := time.Date(2025, time.November, 30, 0, 0, 0, 0, time.UTC)
	if !details.MaturityDate.Equal(want) {
		t.Fatalf("expected maturity %s, got %s", want, details.MaturityDate)
	}

	// После 30 ноября выдача до конца года невозможна.
	late := time.Date(2025, time.December, 1, 0, 0, 0, 0, time.UTC)
	_, err = variableCapital{}.newDetails(product, principal, 0, late)
	if !errors.Is(err, ErrPastMaturity) {
		t.Fatalf("expected ErrPastMaturity, got %v", err)
	}
}

func TestVariableCapitalDetails_MonthlyInterest(t *testing.T) {
	now := time.Date(2025, time.March, 10, 0, 0, 0, 0, time.UTC)
	principal := decimal.NewFromInt(120_000)

	// Фиксированный месячный процент из продукта имеет приоритет.
	fixed := loanProduct(model.LoanTypeVariableCapital)
	fixed.MonthlyFee = decimal.NewFromInt(3000)

	details, err := variableCapital{}.newDetails(fixed, principal, 0, now)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if !details.MonthlyInterest.Equal(decimal.NewFromInt(3000)) {
		t.Fatalf("expected monthly interest 3000, got %s", details.MonthlyInterest)
	}

	// Без фиксированной суммы процент считается от ставки: 120000 * 0.24/12.
	byRate := loanProduct(model.LoanTypeVariableCapital)
	details, err = variableCapital{}.newDetails(byRate, principal, 0, now)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if !details.MonthlyInterest.Equal(decimal.NewFromInt(2400)) {
		t.Fatalf("expected monthly interest 2400, got %s", details.MonthlyInterest)
	}
}

func TestGetLoanStatus(t *testing.T) {
	maturity := time.Date(2025, time.November, 30, 0, 0, 0, 0, time.UTC)
	repo := &stubRepo{
		account: &model.Account{ID: 3, Status: model.AccountStatusActive},
		details: &model.LoanDetails{
			AccountID:       3,
			LoanType:        model.LoanTypeVariableCapital,
			PrincipalAmount: decimal.NewFromInt(100_000),
			CurrentBalance:  decimal.NewFromInt(60_000),
			MaturityDate:    maturity,
		},
		sums: map[model.TransactionType]sumResult{
			model.TransactionTypeInterestAccrued: {sum: decimal.NewFromInt(500), count: 5},
		},
	}
	svc := newTestService(repo)

	status, err := svc.GetLoanStatus(context.Background(), 3)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	if !status.PendingInterest.Equal(decimal.NewFromInt(500)) {
		t.Fatalf("expected pending interest 500, got %s", status.PendingInterest)
	}
	if !status.TotalDebt.Equal(decimal.NewFromInt(60_500)) {
		t.Fatalf("expected total debt 60500, got %s", status.TotalDebt)
	}
}

func TestGetLoanStatus_NotFound(t *testing.T) {
	repo := &stubRepo{accountErr: repository.ErrAccountNotFound}
	svc := newTestService(repo)

	_, err := svc.GetLoanStatus(context.Background(), 99)
	if !errors.Is(err, repository.ErrAccountNotFound) {
		t.Fatalf("expected ErrAccountNotFound, got %v", err)
	}
}
