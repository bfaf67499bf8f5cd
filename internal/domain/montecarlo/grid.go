package montecarlo

import (
	"context"
	"fmt"

	"github.com/alejandrodnm/volbot/internal/domain"
)

// GridParams describe una tabla de precios y deltas por plazo y volatilidad.
// Template aporta barreras, cupón y calendario; Months se toma de Tenors.
type GridParams struct {
	Template PhoenixContract
	Sigmas   []float64
	Tenors   []int
	Rate     float64
	Paths    int
	Seed     uint64
	Bump     float64
	Workers  int
}

// Grid son las celdas ordenadas por plazo y después por sigma.
type Grid struct {
	Tenors []int
	Sigmas []float64
	Cells  []domain.GridCell
}

// Cell devuelve la celda (plazo i, sigma j).
func (g Grid) Cell(i, j int) domain.GridCell { return g.Cells[i*len(g.Sigmas)+j] }

// PhoenixGrid simula un PathSet nuevo por celda y calcula valor y delta.
// Todas las celdas usan la misma semilla: los mismos números aleatorios
// reaparecen en cada sigma y la superficie resulta suave.
// onCell, si no es nil, se llama al terminar cada celda.
func PhoenixGrid(ctx context.Context, p GridParams, onCell func(domain.GridCell)) (Grid, error) {
	if len(p.Sigmas) == 0 || len(p.Tenors) == 0 {
		return Grid{}, fmt.Errorf("montecarlo.PhoenixGrid: empty grid: %w", domain.ErrWindowTooShort)
	}
	if p.Template.DaysPerMonth == 0 {
		p.Template.DaysPerMonth = DefaultDaysPerMonth
	}

	g := Grid{Tenors: p.Tenors, Sigmas: p.Sigmas, Cells: make([]domain.GridCell, 0, len(p.Tenors)*len(p.Sigmas))}
	for _, months := range p.Tenors {
		contract := p.Template
		contract.Months = months
		engine := Phoenix{Contract: contract, Rate: p.Rate, Workers: p.Workers}

		for _, sigma := range p.Sigmas {
			ps, err := SimulatePaths(ctx, PathParams{
				Spot:         contract.Spot,
				Rate:         p.Rate,
				Sigma:        sigma,
				Months:       months,
				DaysPerMonth: contract.DaysPerMonth,
				Paths:        p.Paths,
				Seed:         p.Seed,
				Workers:      p.Workers,
			})
			if err != nil {
				return Grid{}, fmt.Errorf("montecarlo.PhoenixGrid: months=%d sigma=%g: %w", months, sigma, err)
			}
			value, err := engine.Value(ctx, ps)
			if err != nil {
				return Grid{}, fmt.Errorf("montecarlo.PhoenixGrid: months=%d sigma=%g: %w", months, sigma, err)
			}
			delta, err := engine.Delta(ctx, ps, p.Bump)
			if err != nil {
				return Grid{}, fmt.Errorf("montecarlo.PhoenixGrid: months=%d sigma=%g: %w", months, sigma, err)
			}
			cell := domain.GridCell{Months: months, Sigma: sigma, Value: value, Delta: delta}
			g.Cells = append(g.Cells, cell)
			if onCell != nil {
				onCell(cell)
			}
		}
	}
	return g, nil
}
