package montecarlo

import (
	"context"
	"fmt"
	"math"

	"gonum.org/v1/gonum/mat"

	"github.com/alejandrodnm/volbot/internal/domain"
)

// DefaultDaysPerMonth es el número de sesiones por mes del calendario simulado.
const DefaultDaysPerMonth = 20

// PathParams describe una simulación. Paso diario dt = 1/(12·DaysPerMonth).
type PathParams struct {
	Spot         float64
	Rate         float64
	Sigma        float64
	Months       int
	DaysPerMonth int
	Paths        int
	Seed         uint64
	Workers      int
}

// Steps devuelve el número de pasos diarios del horizonte.
func (p PathParams) Steps() int { return p.Months * p.DaysPerMonth }

// Validate comprueba los parámetros antes de reservar la matriz.
func (p PathParams) Validate() error {
	switch {
	case !(p.Spot > 0):
		return fmt.Errorf("spot %g: %w", p.Spot, domain.ErrNonPositive)
	case p.Sigma < 0 || math.IsNaN(p.Sigma):
		return fmt.Errorf("sigma %g: %w", p.Sigma, domain.ErrNonPositive)
	case p.Months < 1 || p.DaysPerMonth < 1:
		return fmt.Errorf("horizon %dx%d: %w", p.Months, p.DaysPerMonth, domain.ErrNonPositive)
	case p.Paths < 1:
		return fmt.Errorf("paths %d: %w", p.Paths, domain.ErrNonPositive)
	}
	return nil
}

// PathSet es la matriz (pasos+1) × M de precios simulados. La fila 0 es el spot.
// Pertenece a quien la generó; las valoraciones solo la leen.
type PathSet struct {
	m            *mat.Dense
	daysPerMonth int
}

// Steps devuelve el número de pasos (filas − 1).
func (ps *PathSet) Steps() int {
	r, _ := ps.m.Dims()
	return r - 1
}

// Paths devuelve el número de trayectorias (columnas).
func (ps *PathSet) Paths() int {
	_, c := ps.m.Dims()
	return c
}

// DaysPerMonth devuelve el calendario usado al simular.
func (ps *PathSet) DaysPerMonth() int { return ps.daysPerMonth }

// At devuelve el precio de la trayectoria j en el paso i.
func (ps *PathSet) At(i, j int) float64 { return ps.m.At(i, j) }

// Path copia la trayectoria j en dst (reservándolo si no tiene capacidad).
func (ps *PathSet) Path(j int, dst []float64) []float64 {
	rows, _ := ps.m.Dims()
	if cap(dst) < rows {
		dst = make([]float64, rows)
	}
	dst = dst[:rows]
	return mat.Col(dst, j, ps.m)
}

// Dense expone la matriz subyacente en solo lectura.
func (ps *PathSet) Dense() mat.Matrix { return ps.m }

// NewPathSet envuelve una matriz ya construida (filas = pasos, columnas = trayectorias).
func NewPathSet(m *mat.Dense, daysPerMonth int) *PathSet {
	return &PathSet{m: m, daysPerMonth: daysPerMonth}
}

// SimulatePaths genera M trayectorias GBM:
//
//	S(t+dt) = S(t)·exp((r − ½σ²)·dt + σ·√dt·Z),  Z ~ N(0,1) por Box-Muller
//
// Cada columna usa su propio flujo PCG(seed, columna), así que el resultado es
// idéntico con cualquier número de workers.
func SimulatePaths(ctx context.Context, p PathParams) (*PathSet, error) {
	if p.DaysPerMonth == 0 {
		p.DaysPerMonth = DefaultDaysPerMonth
	}
	if err := p.Validate(); err != nil {
		return nil, fmt.Errorf("montecarlo.SimulatePaths: %w", err)
	}

	steps := p.Steps()
	rows, cols := steps+1, p.Paths
	data := make([]float64, rows*cols)

	dt := 1 / (12 * float64(p.DaysPerMonth))
	drift := (p.Rate - 0.5*p.Sigma*p.Sigma) * dt
	diffusion := p.Sigma * math.Sqrt(dt)

	// Cada bloque escribe solo sus columnas; no hay escrituras compartidas.
	_, err := forChunks(ctx, cols, p.Workers, func(_, lo, hi int) error {
		for j := lo; j < hi; j++ {
			rng := pathRand(p.Seed, j)
			price := p.Spot
			data[j] = price
			for i := 1; i < rows; i++ {
				price *= math.Exp(drift + diffusion*BoxMuller(rng))
				data[i*cols+j] = price
			}
		}
		return nil
	})
	if err != nil {
		return nil, fmt.Errorf("montecarlo.SimulatePaths: %w", err)
	}
	return &PathSet{m: mat.NewDense(rows, cols, data), daysPerMonth: p.DaysPerMonth}, nil
}
