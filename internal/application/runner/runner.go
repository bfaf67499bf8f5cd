package runner

import (
	"context"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/google/uuid"
	"golang.org/x/time/rate"

	"github.com/alejandrodnm/volbot/internal/domain"
	"github.com/alejandrodnm/volbot/internal/domain/montecarlo"
	"github.com/alejandrodnm/volbot/internal/domain/pricing"
	"github.com/alejandrodnm/volbot/internal/domain/vix"
	"github.com/alejandrodnm/volbot/internal/ports"
)

// FailurePolicy decide qué hacer con una ventana que falla.
type FailurePolicy string

const (
	PolicySkip  FailurePolicy = "skip"
	PolicyAbort FailurePolicy = "abort"
)

// ParsePolicy acepta "skip" o "abort"; vacío equivale a skip.
func ParsePolicy(s string) (FailurePolicy, error) {
	switch p := FailurePolicy(strings.ToLower(strings.TrimSpace(s))); p {
	case "", PolicySkip:
		return PolicySkip, nil
	case PolicyAbort:
		return PolicyAbort, nil
	default:
		return "", fmt.Errorf("runner.ParsePolicy: unknown policy %q", s)
	}
}

// ImpliedConfig agrupa los parámetros de la volatilidad implícita rolling
// (pseudo Monte Carlo y coste de cobertura).
type ImpliedConfig struct {
	TenorYears float64 // T de la call ATM
	AnnualDays float64
	Paths      int // M ventanas históricas por precio pseudo-MC
	Newton     pricing.NewtonOptions
	Bracket    pricing.BracketOptions
}

// Config contiene la configuración del runner.
type Config struct {
	Workers    int // goroutines por lote (0 = NumCPU)
	OnError    FailurePolicy
	AnnualDays float64 // anualización de los estimadores

	Implied ImpliedConfig
	VIX     vix.Config
	Phoenix montecarlo.GridParams
}

// Runner orquesta los cálculos rolling, el índice y la tabla phoenix, y
// publica los resultados.
type Runner struct {
	cfg      Config
	prices   ports.PriceProvider
	chains   ports.ChainProvider
	rates    ports.RateProvider
	storage  ports.Storage // nil = no persistir
	notifier ports.Notifier
	now      func() time.Time
}

// New crea un Runner con todas las dependencias inyectadas.
func New(
	cfg Config,
	prices ports.PriceProvider,
	chains ports.ChainProvider,
	rates ports.RateProvider,
	storage ports.Storage,
	notifier ports.Notifier,
) *Runner {
	if cfg.OnError == "" {
		cfg.OnError = PolicySkip
	}
	return &Runner{
		cfg:      cfg,
		prices:   prices,
		chains:   chains,
		rates:    rates,
		storage:  storage,
		notifier: notifier,
		now:      time.Now,
	}
}

func (r *Runner) loadRates(ctx context.Context) (*rateFor, error) {
	if r.rates == nil {
		return newRateFor(nil), nil
	}
	curve, err := r.rates.FetchRates(ctx)
	if err != nil {
		return nil, err
	}
	return newRateFor(curve), nil
}

// Publish asigna identificador y fecha a la ejecución, la persiste y la notifica.
// Un fallo de notificación se registra pero no invalida la ejecución guardada.
func (r *Runner) Publish(ctx context.Context, run domain.Run) (domain.Run, error) {
	if run.ID == "" {
		run.ID = uuid.NewString()
	}
	if run.CreatedAt.IsZero() {
		run.CreatedAt = r.now().UTC()
	}

	if r.storage != nil {
		if err := r.storage.SaveRun(ctx, run); err != nil {
			return run, fmt.Errorf("runner.Publish: %w", err)
		}
		slog.Info("run saved", "id", run.ID, "kind", run.Kind, "series", len(run.Series), "cells", len(run.Grid))
	}
	if r.notifier != nil {
		if err := r.notifier.Notify(ctx, run); err != nil {
			slog.Warn("notify failed", "id", run.ID, "err", err)
		}
	}
	return run, nil
}

// rateFor consulta la curva y registra los fallbacks. Los primeros se listan
// con su fecha; el total se reporta al final del lote.
type rateFor struct {
	curve     *domain.RateCurve
	fallbacks int
	warn      rate.Sometimes
}

func newRateFor(curve *domain.RateCurve) *rateFor {
	if curve == nil {
		curve = domain.NewRateCurve(domain.DefaultRate)
	}
	return &rateFor{curve: curve, warn: rate.Sometimes{First: 5}}
}

func (rf *rateFor) lookup(date time.Time) float64 {
	hit := rf.curve.Lookup(date)
	if hit.Fallback {
		rf.fallbacks++
		rf.warn.Do(func() {
			slog.Warn("rate fallback", "date", date.Format(time.DateOnly), "rate", hit.Rate)
		})
	}
	return hit.Rate
}

func (rf *rateFor) report(op string) {
	if rf.fallbacks > 0 {
		slog.Warn("rate fallbacks applied", "op", op, "count", rf.fallbacks, "default_rate", rf.curve.DefaultRate())
	}
}
