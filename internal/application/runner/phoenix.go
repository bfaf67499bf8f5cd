package runner

import (
	"context"
	"fmt"
	"log/slog"
	"strconv"
	"strings"

	"github.com/alejandrodnm/volbot/internal/domain"
	"github.com/alejandrodnm/volbot/internal/domain/montecarlo"
)

// PhoenixGrid valora el phoenix en cada (plazo, sigma) de la configuración.
// Workers del runner se usa como paralelismo de las trayectorias si la tabla
// no fija el suyo.
func (r *Runner) PhoenixGrid(ctx context.Context) (domain.Run, error) {
	p := r.cfg.Phoenix
	if p.Workers <= 0 {
		p.Workers = r.cfg.Workers
	}
	if p.Bump <= 0 {
		p.Bump = montecarlo.DefaultBump
	}
	total := len(p.Tenors) * len(p.Sigmas)

	slog.Info("phoenix grid starting",
		"cells", total,
		"paths", p.Paths,
		"seed", p.Seed,
		"spot", p.Template.Spot,
	)

	done := 0
	g, err := montecarlo.PhoenixGrid(ctx, p, func(c domain.GridCell) {
		done++
		slog.Debug("phoenix cell",
			"done", done,
			"total", total,
			"months", c.Months,
			"sigma", c.Sigma,
			"value", c.Value,
			"delta", c.Delta,
		)
	})
	if err != nil {
		return domain.Run{}, fmt.Errorf("runner.PhoenixGrid: %w", err)
	}

	return domain.Run{
		Kind:  domain.RunPhoenix,
		Label: "phoenix",
		Params: map[string]string{
			"spot":    formatFloat(p.Template.Spot),
			"upper":   formatFloat(p.Template.Upper),
			"lower":   formatFloat(p.Template.Lower),
			"coupon":  formatFloat(p.Template.Coupon),
			"rate":    formatFloat(p.Rate),
			"paths":   strconv.Itoa(p.Paths),
			"seed":    strconv.FormatUint(p.Seed, 10),
			"bump":    formatFloat(p.Bump),
			"tenors":  joinInts(p.Tenors),
			"sigmas":  joinFloats(p.Sigmas),
			"workers": strconv.Itoa(p.Workers),
		},
		Grid: g.Cells,
	}, nil
}

func joinInts(xs []int) string {
	parts := make([]string, len(xs))
	for i, x := range xs {
		parts[i] = strconv.Itoa(x)
	}
	return strings.Join(parts, ",")
}

func joinFloats(xs []float64) string {
	parts := make([]string, len(xs))
	for i, x := range xs {
		parts[i] = formatFloat(x)
	}
	return strings.Join(parts, ",")
}
