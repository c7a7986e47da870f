// Package amortize содержит чистые функции расчёта аннуитетных кредитов
// (французская система амортизации).
//
// Все ставки — явные месячные периодические ставки. Вызывающая сторона
// обязана привести годовую ставку к месячной через MonthlyRate.
package amortize

import (
	"math"

	"github.com/shopspring/decimal"
)

var twelve = decimal.NewFromInt(12)

// Entry описывает одну строку графика платежей.
type Entry struct {
	Month            int             `json:"month"`
	Payment          decimal.Decimal `json:"payment"`
	Principal        decimal.Decimal `json:"principal"`
	Interest         decimal.Decimal `json:"interest"`
	RemainingBalance decimal.Decimal `json:"remaining_balance"`
}

// MonthlyRate приводит годовую номинальную ставку к месячной периодической.
func MonthlyRate(annualRate decimal.Decimal) decimal.Decimal {
	return annualRate.Div(twelve)
}

// MonthlyPayment вычисляет фиксированную месячную квоту по формуле аннуитета:
// PMT = P * r(1+r)^n / ((1+r)^n - 1), где r — месячная ставка.
// При нулевой ставке квота равна principal / termMonths.
// Результат округляется до 2 знаков.
func MonthlyPayment(principal, monthlyRate decimal.Decimal, termMonths int) decimal.Decimal {
	if termMonths <= 0 || principal.LessThanOrEqual(decimal.Zero) {
		return decimal.Zero
	}

	if monthlyRate.IsZero() {
		return principal.Div(decimal.NewFromInt(int64(termMonths))).Round(2)
	}

	// Возведение в степень через float64, денежная арифметика — в decimal.
	r := monthlyRate.InexactFloat64()
	factor := math.Pow(1+r, float64(termMonths))
	payment := principal.InexactFloat64() * r * factor / (factor - 1)

	return decimal.NewFromFloat(payment).Round(2)
}

// Schedule строит полный график платежей: для каждого месяца проценты
// считаются от остатка долга, остальное из квоты идёт в погашение капитала.
// Последний период поглощает накопленную ошибку округления, так что остаток
// долга в конце срока равен ровно нулю, а сумма погашений капитала — principal.
func Schedule(principal, monthlyRate decimal.Decimal, termMonths int) []Entry {
	if termMonths <= 0 || principal.LessThanOrEqual(decimal.Zero) {
		return nil
	}

	payment := MonthlyPayment(principal, monthlyRate, termMonths)
	remaining := principal
	entries := make([]Entry, 0, termMonths)

	for month := 1; month <= termMonths; month++ {
		interest := remaining.Mul(monthlyRate).Round(2)
		principalPart := payment.Sub(interest)

		if month == termMonths {
			// Закрываем остаток целиком, квота корректируется на округление.
			principalPart = remaining
			payment = principalPart.Add(interest)
		}

		remaining = remaining.Sub(principalPart)
		if remaining.LessThan(decimal.Zero) {
			remaining = decimal.Zero
		}

		entries = append(entries, Entry{
			Month:            month,
			Payment:          payment.Round(2),
			Principal:        principalPart.Round(2),
			Interest:         interest,
			RemainingBalance: remaining.Round(2),
		})
	}

	return entries
}

// TotalInterest возвращает суммарные проценты за весь срок кредита.
func TotalInterest(principal, monthlyRate decimal.Decimal, termMonths int) decimal.Decimal {
	payment := MonthlyPayment(principal, monthlyRate, termMonths)
	total := payment.Mul(decimal.NewFromInt(int64(termMonths)))
	return total.Sub(principal).Round(2)
}
