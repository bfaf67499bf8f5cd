package runner

import (
	"context"
	"fmt"
	"log/slog"
	"strconv"
	"strings"
	"time"

	"github.com/alejandrodnm/volbot/internal/domain"
	"github.com/alejandrodnm/volbot/internal/domain/vix"
)

// VIXMethod selecciona la metodología del índice.
type VIXMethod string

const (
	MethodVarianceSwap VIXMethod = "varswap"
	MethodWhaley       VIXMethod = "whaley"
	MethodBoth         VIXMethod = "both"
)

// ParseVIXMethod acepta varswap, whaley o both; vacío equivale a both.
func ParseVIXMethod(s string) (VIXMethod, error) {
	switch m := VIXMethod(strings.ToLower(strings.TrimSpace(s))); m {
	case "", MethodBoth:
		return MethodBoth, nil
	case MethodVarianceSwap, MethodWhaley:
		return m, nil
	default:
		return "", fmt.Errorf("runner.ParseVIXMethod: unknown method %q", s)
	}
}

// VIXSeries calcula el índice a 30 días en cada snapshot de la cadena.
// Las dos series quedan en puntos de índice: la de Whaley, que el dominio
// devuelve en tanto por uno, se multiplica por 100.
func (r *Runner) VIXSeries(ctx context.Context, method VIXMethod) (domain.Run, error) {
	if method == "" {
		method = MethodBoth
	}
	chains, err := r.chains.FetchChains(ctx)
	if err != nil {
		return domain.Run{}, fmt.Errorf("runner.VIXSeries: fetch chains: %w", err)
	}
	if len(chains) == 0 {
		return domain.Run{}, fmt.Errorf("runner.VIXSeries: no option chains: %w", domain.ErrMissingTerm)
	}
	rates, err := r.loadRates(ctx)
	if err != nil {
		return domain.Run{}, fmt.Errorf("runner.VIXSeries: fetch rates: %w", err)
	}

	rs := make([]float64, len(chains))
	for i, c := range chains {
		rs[i] = rates.lookup(c.Date)
	}
	rates.report("vix")

	cfg := r.cfg.VIX
	b := batch{
		n:       len(chains),
		workers: r.cfg.Workers,
		policy:  r.cfg.OnError,
		dateOf:  func(i int) time.Time { return chains[i].Date },
	}
	run := domain.Run{
		Kind:  domain.RunVIX,
		Label: string(method),
		Params: map[string]string{
			"snapshots":     strconv.Itoa(len(chains)),
			"min_near_days": strconv.Itoa(cfg.MinNearDays),
			"target_days":   formatFloat(cfg.TargetDays),
		},
		Fallbacks: rates.fallbacks,
	}

	if method == MethodVarianceSwap || method == MethodBoth {
		b.op = "vix/varswap"
		results, failures, err := runBatch(ctx, b, func(_ context.Context, i int) (float64, error) {
			res, err := vix.VarianceSwap(chains[i], rs[i], cfg)
			return res.Index, err
		})
		if err != nil {
			return domain.Run{}, fmt.Errorf("runner.VIXSeries: %w", err)
		}
		run.Series = append(run.Series, collect("vix_varswap", results, chains))
		run.Failures += failures
	}

	if method == MethodWhaley || method == MethodBoth {
		b.op = "vix/whaley"
		results, failures, err := runBatch(ctx, b, func(_ context.Context, i int) (vix.WhaleyResult, error) {
			return vix.Whaley(chains[i], rs[i], cfg)
		})
		if err != nil {
			return domain.Run{}, fmt.Errorf("runner.VIXSeries: %w", err)
		}
		series := domain.Series{Name: "vix_whaley"}
		fallback := 0
		for i, res := range results {
			if !res.ok {
				continue
			}
			if res.value.Fallback {
				fallback++
			}
			series.Points = append(series.Points, domain.Point{Date: chains[i].Date, Value: 100 * res.value.Index})
		}
		if fallback > 0 {
			slog.Info("whaley used mean of available legs", "snapshots", fallback)
		}
		run.Params["whaley_fallbacks"] = strconv.Itoa(fallback)
		run.Series = append(run.Series, series)
		run.Failures += failures
	}
	return run, nil
}

func collect(name string, results []outcome[float64], chains []domain.OptionChain) domain.Series {
	s := domain.Series{Name: name}
	for i, res := range results {
		if res.ok {
			s.Points = append(s.Points, domain.Point{Date: chains[i].Date, Value: res.value})
		}
	}
	return s
}
