package runner

import (
	"context"
	"fmt"
	"log/slog"
	"strconv"
	"strings"
	"time"

	"github.com/alejandrodnm/volbot/internal/domain"
	"github.com/alejandrodnm/volbot/internal/domain/pricing"
	"github.com/alejandrodnm/volbot/internal/domain/volatility"
)

// RollingVolatility desliza una ventana de window observaciones de retorno por
// la serie OHLC y produce una serie por modelo, indexada por la fecha de la
// última barra de cada ventana. Un nombre de modelo desconocido aborta antes de
// calcular nada.
func (r *Runner) RollingVolatility(ctx context.Context, models []string, window int) (domain.Run, error) {
	parsed := make([]volatility.Model, 0, len(models))
	for _, name := range models {
		m, err := volatility.ParseModel(name)
		if err != nil {
			return domain.Run{}, fmt.Errorf("runner.RollingVolatility: %w", err)
		}
		parsed = append(parsed, m)
	}
	if len(parsed) == 0 {
		return domain.Run{}, fmt.Errorf("runner.RollingVolatility: no models: %w", domain.ErrInvalidModel)
	}
	if window < 1 {
		return domain.Run{}, fmt.Errorf("runner.RollingVolatility: window %d: %w", window, domain.ErrWindowTooShort)
	}

	o, err := r.prices.FetchOHLC(ctx)
	if err != nil {
		return domain.Run{}, fmt.Errorf("runner.RollingVolatility: fetch ohlc: %w", err)
	}
	if err := o.Validate(); err != nil {
		return domain.Run{}, fmt.Errorf("runner.RollingVolatility: %w", err)
	}

	annual := r.cfg.AnnualDays
	if annual <= 0 {
		annual = volatility.DefaultAnnualDays
	}
	run := domain.Run{
		Kind:  domain.RunVolatility,
		Label: joinModels(parsed),
		Params: map[string]string{
			"window":      strconv.Itoa(window),
			"annual_days": formatFloat(annual),
			"bars":        strconv.Itoa(o.Len()),
		},
	}

	for _, m := range parsed {
		if m != volatility.ModelRealized && len(o.High) == 0 {
			return domain.Run{}, fmt.Errorf("runner.RollingVolatility: %s needs open/high/low: %w", m, domain.ErrMismatchedSeries)
		}
		span := m.Span(window)
		positions := o.Len() - span + 1
		if positions < 1 {
			return domain.Run{}, fmt.Errorf("runner.RollingVolatility: %s: %d bars for span %d: %w",
				m, o.Len(), span, domain.ErrWindowTooShort)
		}

		// La posición i cubre las barras [i, i+span) y se fecha por la última.
		results, failures, err := runBatch(ctx, batch{
			op:      "vol/" + m.String(),
			n:       positions,
			workers: r.cfg.Workers,
			policy:  r.cfg.OnError,
			dateOf:  func(i int) time.Time { return o.Dates[i+span-1] },
		}, func(_ context.Context, i int) (float64, error) {
			return m.Estimate(o.Slice(i, i+span), annual)
		})
		if err != nil {
			return domain.Run{}, fmt.Errorf("runner.RollingVolatility: %w", err)
		}

		series := domain.Series{Name: m.String()}
		for i, res := range results {
			if res.ok {
				series.Points = append(series.Points, domain.Point{Date: o.Dates[i+span-1], Value: res.value})
			}
		}
		run.Series = append(run.Series, series)
		run.Failures += failures
		slog.Info("rolling volatility done", "model", m, "points", len(series.Points), "skipped", failures)
	}
	return run, nil
}

// RollingPseudoImplied calibra la volatilidad implícita pseudo Monte Carlo en
// cada ventana de M+n cierres (n = int(T·días)), fechada por su primera sesión.
func (r *Runner) RollingPseudoImplied(ctx context.Context) (domain.Run, error) {
	ic := r.impliedConfig()
	closes, dates, rates, err := r.closesAndRates(ctx)
	if err != nil {
		return domain.Run{}, fmt.Errorf("runner.RollingPseudoImplied: %w", err)
	}

	n := pricing.Steps(ic.TenorYears, ic.AnnualDays)
	span := ic.Paths + n
	positions := len(closes) - span + 1
	if n < 1 || positions < 1 {
		return domain.Run{}, fmt.Errorf("runner.RollingPseudoImplied: %d closes for n=%d M=%d: %w",
			len(closes), n, ic.Paths, domain.ErrWindowTooShort)
	}

	rs := make([]float64, positions)
	for i := range rs {
		rs[i] = rates.lookup(dates[i])
	}
	rates.report("implied")

	type calib struct {
		sigma     float64
		converged bool
	}
	results, failures, err := runBatch(ctx, batch{
		op:      "implied",
		n:       positions,
		workers: r.cfg.Workers,
		policy:  r.cfg.OnError,
		dateOf:  func(i int) time.Time { return dates[i] },
	}, func(_ context.Context, i int) (calib, error) {
		res, err := pricing.PseudoMCImpliedVol(closes[i:i+span], ic.Paths, rs[i], ic.TenorYears, ic.AnnualDays, ic.Newton)
		if err != nil {
			return calib{}, err
		}
		if !(res.Sigma > 0) {
			return calib{}, fmt.Errorf("sigma %g: %w", res.Sigma, domain.ErrDegenerate)
		}
		return calib{sigma: res.Sigma, converged: res.Converged}, nil
	})
	if err != nil {
		return domain.Run{}, fmt.Errorf("runner.RollingPseudoImplied: %w", err)
	}

	series := domain.Series{Name: "pseudo_implied"}
	unconverged := 0
	for i, res := range results {
		if !res.ok {
			continue
		}
		if !res.value.converged {
			unconverged++
		}
		series.Points = append(series.Points, domain.Point{Date: dates[i], Value: res.value.sigma})
	}
	if unconverged > 0 {
		slog.Warn("newton did not converge", "op", "implied", "windows", unconverged, "iterations", ic.Newton.Iterations)
	}

	return domain.Run{
		Kind:  domain.RunImplied,
		Label: "pseudo_mc",
		Params: map[string]string{
			"tenor_years": formatFloat(ic.TenorYears),
			"annual_days": formatFloat(ic.AnnualDays),
			"paths":       strconv.Itoa(ic.Paths),
			"iterations":  strconv.Itoa(ic.Newton.Iterations),
			"unconverged": strconv.Itoa(unconverged),
		},
		Series:    []domain.Series{series},
		Failures:  failures,
		Fallbacks: rates.fallbacks,
	}, nil
}

// RollingHedgeImplied resuelve, en cada ventana de n+1 cierres fechada por su
// primera sesión, la volatilidad que iguala el precio Black-Scholes de la call
// ATM con el coste real de cubrirla.
func (r *Runner) RollingHedgeImplied(ctx context.Context) (domain.Run, error) {
	ic := r.impliedConfig()
	closes, dates, rates, err := r.closesAndRates(ctx)
	if err != nil {
		return domain.Run{}, fmt.Errorf("runner.RollingHedgeImplied: %w", err)
	}

	n := pricing.Steps(ic.TenorYears, ic.AnnualDays)
	positions := len(closes) - n
	if n < 1 || positions < 1 {
		return domain.Run{}, fmt.Errorf("runner.RollingHedgeImplied: %d closes for n=%d: %w",
			len(closes), n, domain.ErrWindowTooShort)
	}

	rs := make([]float64, positions)
	for i := range rs {
		rs[i] = rates.lookup(dates[i])
	}
	rates.report("hedge")

	results, failures, err := runBatch(ctx, batch{
		op:      "hedge",
		n:       positions,
		workers: r.cfg.Workers,
		policy:  r.cfg.OnError,
		dateOf:  func(i int) time.Time { return dates[i] },
	}, func(_ context.Context, i int) (float64, error) {
		return pricing.HedgeImpliedVol(closes[i:i+n+1], rs[i], ic.TenorYears, ic.AnnualDays, ic.Bracket)
	})
	if err != nil {
		return domain.Run{}, fmt.Errorf("runner.RollingHedgeImplied: %w", err)
	}

	series := domain.Series{Name: "hedge_implied"}
	for i, res := range results {
		if res.ok {
			series.Points = append(series.Points, domain.Point{Date: dates[i], Value: res.value})
		}
	}

	return domain.Run{
		Kind:  domain.RunHedge,
		Label: "delta_hedge",
		Params: map[string]string{
			"tenor_years": formatFloat(ic.TenorYears),
			"annual_days": formatFloat(ic.AnnualDays),
			"bracket":     formatFloat(ic.Bracket.Lo) + "-" + formatFloat(ic.Bracket.Hi),
		},
		Series:    []domain.Series{series},
		Failures:  failures,
		Fallbacks: rates.fallbacks,
	}, nil
}

// --- helpers internos ---

func (r *Runner) impliedConfig() ImpliedConfig {
	ic := r.cfg.Implied
	if ic.TenorYears <= 0 {
		ic.TenorYears = 0.25
	}
	if ic.AnnualDays <= 0 {
		ic.AnnualDays = volatility.DefaultAnnualDays
	}
	if ic.Paths <= 0 {
		ic.Paths = 1200
	}
	if ic.Newton.Iterations <= 0 {
		ic.Newton.Iterations = pricing.DefaultIterations
	}
	if ic.Bracket.Lo <= 0 {
		ic.Bracket.Lo = pricing.DefaultBracketLo
	}
	if ic.Bracket.Hi <= 0 {
		ic.Bracket.Hi = pricing.DefaultBracketHi
	}
	return ic
}

func (r *Runner) closesAndRates(ctx context.Context) ([]float64, []time.Time, *rateFor, error) {
	o, err := r.prices.FetchOHLC(ctx)
	if err != nil {
		return nil, nil, nil, fmt.Errorf("fetch ohlc: %w", err)
	}
	rates, err := r.loadRates(ctx)
	if err != nil {
		return nil, nil, nil, fmt.Errorf("fetch rates: %w", err)
	}
	return o.Close, o.Dates, rates, nil
}

func joinModels(ms []volatility.Model) string {
	names := make([]string, len(ms))
	for i, m := range ms {
		names[i] = m.String()
	}
	return strings.Join(names, ",")
}

func formatFloat(v float64) string {
	return strconv.FormatFloat(v, 'g', -1, 64)
}
