// Package handler содержит HTTP-обработчики API биллингового сервиса.
package handler

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"strconv"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/shopspring/decimal"
	"go.uber.org/zap"

	"github.com/mmeshcher/billing-system/internal/amortize"
	"github.com/mmeshcher/billing-system/internal/model"
	"github.com/mmeshcher/billing-system/internal/repository"
	"github.com/mmeshcher/billing-system/internal/service"
)

// Service определяет контракт бизнес-логики, используемой HTTP-обработчиками.
type Service interface {
	CreateLoan(ctx context.Context, userID, productID int64, principal decimal.Decimal, termMonths int) (*service.LoanCreated, error)
	GetLoanStatus(ctx context.Context, accountID int64) (*service.LoanStatus, error)
	ProcessPayment(ctx context.Context, accountID int64, amount decimal.Decimal, date time.Time) (*model.PaymentResult, error)
	GetDebtSummary(ctx context.Context, accountID int64) (*model.DebtSummary, error)
	RunBillingCycle(ctx context.Context, asOf time.Time) (*model.CycleSummary, error)
	RunDailyInterest(ctx context.Context, asOf time.Time) (*model.AccrualSummary, error)
}

// Handler реализует HTTP-обработчики API биллингового сервиса.
type Handler struct {
	service Service
	logger  *zap.Logger
}

// NewHandler создаёт новый экземпляр обработчика HTTP-запросов.
func NewHandler(s Service, logger *zap.Logger) *Handler {
	return &Handler{
		service: s,
		logger:  logger,
	}
}

type createLoanRequest struct {
	UserID     int64           `json:"user_id"`
	ProductID  int64           `json:"product_id"`
	Principal  decimal.Decimal `json:"principal"`
	TermMonths int             `json:"term_months"`
}

// CreateLoan открывает кредитный счёт.
func (h *Handler) CreateLoan(w http.ResponseWriter, r *http.Request) {
	var req createLoanRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		http.Error(w, http.StatusText(http.StatusBadRequest), http.StatusBadRequest)
		return
	}

	created, err := h.service.CreateLoan(r.Context(), req.UserID, req.ProductID, req.Principal, req.TermMonths)
	if err != nil {
		switch {
		case errors.Is(err, service.ErrInvalidPrincipal),
			errors.Is(err, service.ErrInvalidTerm),
			errors.Is(err, service.ErrPastMaturity):
			http.Error(w, err.Error(), http.StatusBadRequest)
		case errors.Is(err, repository.ErrUserNotFound),
			errors.Is(err, repository.ErrProductNotFound):
			http.Error(w, err.Error(), http.StatusNotFound)
		case errors.Is(err, service.ErrWrongProductType),
			errors.Is(err, service.ErrProductMisconfigured):
			http.Error(w, err.Error(), http.StatusUnprocessableEntity)
		default:
			h.logger.Error("create loan error", zap.Error(err))
			http.Error(w, http.StatusText(http.StatusInternalServerError), http.StatusInternalServerError)
		}
		return
	}

	h.writeJSON(w, http.StatusCreated, created)
}

// GetLoan возвращает текущее состояние кредита.
func (h *Handler) GetLoan(w http.ResponseWriter, r *http.Request) {
	accountID, ok := h.accountIDParam(w, r)
	if !ok {
		return
	}

	status, err := h.service.GetLoanStatus(r.Context(), accountID)
	if err != nil {
		if errors.Is(err, repository.ErrAccountNotFound) || errors.Is(err, repository.ErrLoanNotFound) {
			http.Error(w, http.StatusText(http.StatusNotFound), http.StatusNotFound)
			return
		}
		h.logger.Error("get loan error", zap.Error(err))
		http.Error(w, http.StatusText(http.StatusInternalServerError), http.StatusInternalServerError)
		return
	}

	h.writeJSON(w, http.StatusOK, status)
}

// GetSchedule строит предварительный график платежей без создания кредита.
// Параметры: principal, rate (годовая ставка), term.
func (h *Handler) GetSchedule(w http.ResponseWriter, r *http.Request) {
	principal, err := decimal.NewFromString(r.URL.Query().Get("principal"))
	if err != nil || !principal.IsPositive() {
		http.Error(w, "invalid principal", http.StatusBadRequest)
		return
	}

	rate, err := decimal.NewFromString(r.URL.Query().Get("rate"))
	if err != nil || rate.IsNegative() {
		http.Error(w, "invalid rate", http.StatusBadRequest)
		return
	}

	term, err := strconv.Atoi(r.URL.Query().Get("term"))
	if err != nil || term < 1 {
		http.Error(w, "invalid term", http.StatusBadRequest)
		return
	}

	monthlyRate := amortize.MonthlyRate(rate)
	resp := struct {
		MonthlyPayment decimal.Decimal  `json:"monthly_payment"`
		TotalInterest  decimal.Decimal  `json:"total_interest"`
		Schedule       []amortize.Entry `json:"schedule"`
	}{
		MonthlyPayment: amortize.MonthlyPayment(principal, monthlyRate, term),
		TotalInterest:  amortize.TotalInterest(principal, monthlyRate, term),
		Schedule:       amortize.Schedule(principal, monthlyRate, term),
	}

	h.writeJSON(w, http.StatusOK, resp)
}

type paymentRequest struct {
	AccountID int64           `json:"account_id"`
	Amount    decimal.Decimal `json:"amount"`
	Date      *time.Time      `json:"date,omitempty"`
}

// ProcessPayment применяет входящий платёж к обязательствам счёта.
func (h *Handler) ProcessPayment(w http.ResponseWriter, r *http.Request) {
	var req paymentRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		http.Error(w, http.StatusText(http.StatusBadRequest), http.StatusBadRequest)
		return
	}

	date := time.Time{}
	if req.Date != nil {
		date = *req.Date
	}

	result, err := h.service.ProcessPayment(r.Context(), req.AccountID, req.Amount, date)
	if err != nil {
		switch {
		case errors.Is(err, service.ErrInvalidAmount):
			http.Error(w, err.Error(), http.StatusBadRequest)
		case errors.Is(err, repository.ErrAccountNotFound):
			http.Error(w, err.Error(), http.StatusNotFound)
		case errors.Is(err, service.ErrAccountClosed),
			errors.Is(err, service.ErrAccountBlocked),
			errors.Is(err, repository.ErrObligationChanged):
			http.Error(w, err.Error(), http.StatusConflict)
		default:
			h.logger.Error("process payment error", zap.Error(err))
			http.Error(w, http.StatusText(http.StatusInternalServerError), http.StatusInternalServerError)
		}
		return
	}

	h.writeJSON(w, http.StatusOK, result)
}

// GetDebt возвращает сводку задолженности счёта.
func (h *Handler) GetDebt(w http.ResponseWriter, r *http.Request) {
	accountID, ok := h.accountIDParam(w, r)
	if !ok {
		return
	}

	summary, err := h.service.GetDebtSummary(r.Context(), accountID)
	if err != nil {
		if errors.Is(err, repository.ErrAccountNotFound) {
			http.Error(w, http.StatusText(http.StatusNotFound), http.StatusNotFound)
			return
		}
		h.logger.Error("get debt error", zap.Error(err))
		http.Error(w, http.StatusText(http.StatusInternalServerError), http.StatusInternalServerError)
		return
	}

	h.writeJSON(w, http.StatusOK, summary)
}

type runRequest struct {
	Date *time.Time `json:"date,omitempty"`
}

// RunBilling запускает биллинговый цикл вручную. Повторный запуск за тот же
// период безопасен.
func (h *Handler) RunBilling(w http.ResponseWriter, r *http.Request) {
	asOf := h.runDate(r)

	summary, err := h.service.RunBillingCycle(r.Context(), asOf)
	if err != nil {
		h.logger.Error("billing cycle error", zap.Error(err))
		http.Error(w, http.StatusText(http.StatusInternalServerError), http.StatusInternalServerError)
		return
	}

	h.writeJSON(w, http.StatusOK, summary)
}

// RunInterest запускает начисление дневных процентов вручную.
func (h *Handler) RunInterest(w http.ResponseWriter, r *http.Request) {
	asOf := h.runDate(r)

	summary, err := h.service.RunDailyInterest(r.Context(), asOf)
	if err != nil {
		h.logger.Error("interest accrual error", zap.Error(err))
		http.Error(w, http.StatusText(http.StatusInternalServerError), http.StatusInternalServerError)
		return
	}

	h.writeJSON(w, http.StatusOK, summary)
}

// runDate извлекает дату запуска из тела запроса, по умолчанию текущая.
// Тело запроса необязательно.
func (h *Handler) runDate(r *http.Request) time.Time {
	var req runRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err == nil && req.Date != nil {
		return *req.Date
	}
	return time.Now()
}

func (h *Handler) accountIDParam(w http.ResponseWriter, r *http.Request) (int64, bool) {
	id, err := strconv.ParseInt(chi.URLParam(r, "accountID"), 10, 64)
	if err != nil || id < 1 {
		http.Error(w, "invalid account id", http.StatusBadRequest)
		return 0, false
	}
	return id, true
}

func (h *Handler) writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(v); err != nil {
		h.logger.Error("encode response error", zap.Error(err))
	}
}
