package service

import (
	"context"
	"testing"
	"time"

	"github.com/shopspring/decimal"

	"github.com/mmeshcher/billing-system/internal/model"
	"github.com/mmeshcher/billing-system/internal/repository"
)

func TestRunDailyInterest_CreatesAccrual(t *testing.T) {
	repo := &stubRepo{
		accrualCreated: true,
		loanAccounts: map[model.LoanType][]repository.LoanAccount{
			model.LoanTypeVariableCapital: {
				{
					Account: model.Account{ID: 1, Status: model.AccountStatusActive},
					Details: model.LoanDetails{
						CurrentBalance:  decimal.NewFromInt(100_000),
						MonthlyInterest: decimal.NewFromInt(3000),
					},
				},
			},
		},
	}
	svc := newTestService(repo)

	asOf := time.Date(2025, time.June, 10, 15, 30, 0, 0, time.UTC)
	summary, err := svc.RunDailyInterest(context.Background(), asOf)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	if summary.Created != 1 {
		t.Fatalf("expected 1 accrual, got %d", summary.Created)
	}
	if len(repo.accruals) != 1 {
		t.Fatalf("expected 1 accrual recorded, got %d", len(repo.accruals))
	}

	accrual := repo.accruals[0]
	if accrual.Type != model.TransactionTypeInterestAccrued || accrual.Status != model.TransactionStatusPending {
		t.Fatalf("unexpected accrual: %s/%s", accrual.Type, accrual.Status)
	}
	// 3000 / 30 = 100 в день.
	if !accrual.Amount.Equal(decimal.NewFromInt(100)) {
		t.Fatalf("expected daily interest 100, got %s", accrual.Amount)
	}
	// Дата начисления нормализуется до начала дня.
	want := time.Date(2025, time.June, 10, 0, 0, 0, 0, time.UTC)
	if !accrual.Date.Equal(want) {
		t.Fatalf("expected accrual date %s, got %s", want, accrual.Date)
	}
}

func TestRunDailyInterest_SkipsSameDay(t *testing.T) {
	last := time.Date(2025, time.June, 10, 0, 0, 0, 0, time.UTC)
	repo := &stubRepo{
		accrualCreated: true,
		loanAccounts: map[model.LoanType][]repository.LoanAccount{
			model.LoanTypeVariableCapital: {
				{
					Account: model.Account{ID: 1},
					Details: model.LoanDetails{
						CurrentBalance:  decimal.NewFromInt(100_000),
						MonthlyInterest: decimal.NewFromInt(3000),
						LastAccrualDate: &last,
					},
				},
			},
		},
	}
	svc := newTestService(repo)

	summary, err := svc.RunDailyInterest(context.Background(), last.Add(5*time.Hour))
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	if summary.Created != 0 || summary.Skipped != 1 {
		t.Fatalf("expected repeat run to skip, got %+v", summary)
	}
	if len(repo.accruals) != 0 {
		t.Fatalf("no accrual must be recorded on repeat run")
	}
}

func TestRunDailyInterest_RateFallback(t *testing.T) {
	repo := &stubRepo{
		accrualCreated: true,
		loanAccounts: map[model.LoanType][]repository.LoanAccount{
			model.LoanTypeVariableCapital: {
				{
					Account: model.Account{ID: 1},
					Details: model.LoanDetails{
						// Без фиксированного месячного процента:
						// 30000 * 0.24/12 / 30 = 20 в день.
						CurrentBalance: decimal.NewFromInt(30_000),
						InterestRate:   decimal.NewFromFloat(0.24),
					},
				},
			},
		},
	}
	svc := newTestService(repo)

	summary, err := svc.RunDailyInterest(context.Background(), time.Now())
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if summary.Created != 1 {
		t.Fatalf("expected 1 accrual, got %d", summary.Created)
	}
	if !repo.accruals[0].Amount.Equal(decimal.NewFromInt(20)) {
		t.Fatalf("expected daily interest 20, got %s", repo.accruals[0].Amount)
	}
}
