// Package main запускает HTTP-сервер биллингового сервиса.
package main

import (
	"context"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/shopspring/decimal"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"github.com/mmeshcher/billing-system/internal/calendar"
	"github.com/mmeshcher/billing-system/internal/config"
	"github.com/mmeshcher/billing-system/internal/handler"
	"github.com/mmeshcher/billing-system/internal/holiday"
	"github.com/mmeshcher/billing-system/internal/repository"
	"github.com/mmeshcher/billing-system/internal/scheduler"
	"github.com/mmeshcher/billing-system/internal/service"
)

func main() {
	logger, _ := zap.NewProduction()
	defer logger.Sync()

	sugar := logger.Sugar()

	cfg, err := config.Parse()
	if err != nil {
		sugar.Fatalw("configuration error", "error", err.Error())
	}

	loc, err := cfg.Location()
	if err != nil {
		sugar.Fatalw("timezone error", "error", err.Error())
	}

	repo, err := repository.NewPostgresRepository(cfg.DatabaseURI)
	if err != nil {
		sugar.Fatalw("database initialization error", "error", err.Error())
	}
	defer repo.Close()

	var provider calendar.HolidayProvider
	if cfg.HolidayServiceAddress != "" {
		provider = holiday.NewClient(cfg.HolidayServiceAddress, cfg.CountryCode)
	}
	cal := calendar.New(provider, logger)

	svc := service.NewService(repo, cal, logger, service.Options{
		Location:    loc,
		GraceDays:   cfg.GraceDays,
		PenaltyRate: decimal.NewFromFloat(cfg.PenaltyRate),
		BillingDay:  cfg.LoanBillingDay,
	})
	defer svc.Close()

	sched := scheduler.New(svc, logger, loc, cfg.InterestHour, cfg.BillingHour)

	h := handler.NewHandler(svc, logger)
	r := h.SetupRouter()

	server := &http.Server{
		Addr:    cfg.RunAddress,
		Handler: r,
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	g, ctx := errgroup.WithContext(ctx)

	// Запуск планировщика ежедневных задач
	g.Go(func() error {
		return sched.Run(ctx)
	})

	// Запуск HTTP-сервера
	g.Go(func() error {
		sugar.Infow("starting billing server", "addr", cfg.RunAddress)
		if err := server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			return fmt.Errorf("server error: %w", err)
		}
		return nil
	})

	// Graceful shutdown при отмене контекста (сигнал или ошибка в другой горутине)
	g.Go(func() error {
		<-ctx.Done()
		sugar.Info("shutting down server...")

		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()

		if err := server.Shutdown(shutdownCtx); err != nil {
			return fmt.Errorf("server shutdown error: %w", err)
		}
		sugar.Info("server stopped gracefully")
		return nil
	})

	if err := g.Wait(); err != nil {
		sugar.Fatalw("application terminated with error", "error", err)
	}
}
