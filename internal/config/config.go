// Package config содержит логику чтения конфигурации биллингового сервиса.
package config

import (
	"flag"
	"fmt"
	"time"

	"github.com/caarlos0/env/v11"
)

// Config содержит параметры конфигурации биллингового сервиса.
type Config struct {
	RunAddress            string  `env:"RUN_ADDRESS"`
	DatabaseURI           string  `env:"DATABASE_URI"`
	HolidayServiceAddress string  `env:"HOLIDAY_SERVICE_ADDRESS"`
	CountryCode           string  `env:"COUNTRY_CODE"`
	Timezone              string  `env:"TIMEZONE"`
	GraceDays             int     `env:"GRACE_DAYS"`
	PenaltyRate           float64 `env:"PENALTY_RATE"`
	LoanBillingDay        int     `env:"LOAN_BILLING_DAY"`
	BillingHour           int     `env:"BILLING_HOUR"`
	InterestHour          int     `env:"INTEREST_HOUR"`
}

// envConfig повторяет Config с указателями на числовые поля: так отличается
// не заданная переменная окружения от явно выставленного нуля
// (PENALTY_RATE=0 или BILLING_HOUR=0 — валидные значения).
type envConfig struct {
	RunAddress            string   `env:"RUN_ADDRESS"`
	DatabaseURI           string   `env:"DATABASE_URI"`
	HolidayServiceAddress string   `env:"HOLIDAY_SERVICE_ADDRESS"`
	CountryCode           string   `env:"COUNTRY_CODE"`
	Timezone              string   `env:"TIMEZONE"`
	GraceDays             *int     `env:"GRACE_DAYS"`
	PenaltyRate           *float64 `env:"PENALTY_RATE"`
	LoanBillingDay        *int     `env:"LOAN_BILLING_DAY"`
	BillingHour           *int     `env:"BILLING_HOUR"`
	InterestHour          *int     `env:"INTEREST_HOUR"`
}

// Parse считывает конфигурацию из флагов командной строки и переменных окружения.
// Переменные окружения имеют приоритет над флагами.
func Parse() (*Config, error) {
	envCfg := &envConfig{}
	if err := env.Parse(envCfg); err != nil {
		return nil, fmt.Errorf("parse env: %w", err)
	}

	cfg := &Config{}

	flag.StringVar(&cfg.RunAddress, "a", "localhost:8080", "address and port for HTTP server")
	flag.StringVar(&cfg.DatabaseURI, "d", "", "database URI")
	flag.StringVar(&cfg.HolidayServiceAddress, "r", "", "public holidays service address")
	flag.StringVar(&cfg.CountryCode, "c", "CO", "holiday calendar country code")
	flag.StringVar(&cfg.Timezone, "tz", "America/Bogota", "timezone for schedule computations")
	flag.IntVar(&cfg.GraceDays, "grace", 5, "default grace business days for dues")
	flag.Float64Var(&cfg.PenaltyRate, "penalty", 0.10, "default penalty rate for overdue dues")
	flag.IntVar(&cfg.LoanBillingDay, "billing-day", 5, "day of month for loan due dates")
	flag.IntVar(&cfg.BillingHour, "billing-hour", 6, "hour of day to run the billing cycle")
	flag.IntVar(&cfg.InterestHour, "interest-hour", 1, "hour of day to run interest accrual")

	flag.Parse()

	if envCfg.RunAddress != "" {
		cfg.RunAddress = envCfg.RunAddress
	}
	if envCfg.DatabaseURI != "" {
		cfg.DatabaseURI = envCfg.DatabaseURI
	}
	if envCfg.HolidayServiceAddress != "" {
		cfg.HolidayServiceAddress = envCfg.HolidayServiceAddress
	}
	if envCfg.CountryCode != "" {
		cfg.CountryCode = envCfg.CountryCode
	}
	if envCfg.Timezone != "" {
		cfg.Timezone = envCfg.Timezone
	}
	if envCfg.GraceDays != nil {
		cfg.GraceDays = *envCfg.GraceDays
	}
	if envCfg.PenaltyRate != nil {
		cfg.PenaltyRate = *envCfg.PenaltyRate
	}
	if envCfg.LoanBillingDay != nil {
		cfg.LoanBillingDay = *envCfg.LoanBillingDay
	}
	if envCfg.BillingHour != nil {
		cfg.BillingHour = *envCfg.BillingHour
	}
	if envCfg.InterestHour != nil {
		cfg.InterestHour = *envCfg.InterestHour
	}

	if cfg.LoanBillingDay < 1 || cfg.LoanBillingDay > 28 {
		return nil, fmt.Errorf("loan billing day must be between 1 and 28, got %d", cfg.LoanBillingDay)
	}

	return cfg, nil
}

// Location возвращает часовой пояс для вычисления расчётных дат.
func (c *Config) Location() (*time.Location, error) {
	loc, err := time.LoadLocation(c.Timezone)
	if err != nil {
		return nil, fmt.Errorf("load timezone %q: %w", c.Timezone, err)
	}
	return loc, nil
}
