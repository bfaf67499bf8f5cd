package domain

import (
	"math"
	"time"

	"gonum.org/v1/gonum/floats"
	"gonum.org/v1/gonum/stat"
)

// RunKind identifica qué cálculo produjo una ejecución.
type RunKind string

const (
	RunVolatility RunKind = "vol"
	RunImplied    RunKind = "implied"
	RunHedge      RunKind = "hedge"
	RunVIX        RunKind = "vix"
	RunPhoenix    RunKind = "phoenix"
)

// GridCell es una celda (plazo, sigma) de la tabla phoenix.
type GridCell struct {
	Months int
	Sigma  float64
	Value  float64
	Delta  float64
}

// Run es el resultado completo de un cálculo: una o varias series por fecha o,
// para phoenix, la tabla de celdas. Es la unidad que se persiste y se notifica.
type Run struct {
	ID        string
	Kind      RunKind
	Label     string
	CreatedAt time.Time
	Params    map[string]string
	Series    []Series
	Grid      []GridCell

	// Failures cuenta ventanas o fechas descartadas; Fallbacks, búsquedas de
	// tasa que usaron la tasa por defecto.
	Failures  int
	Fallbacks int
}

// SeriesByName devuelve la serie con ese nombre.
func (r Run) SeriesByName(name string) (Series, bool) {
	for _, s := range r.Series {
		if s.Name == name {
			return s, true
		}
	}
	return Series{}, false
}

// Summary resume una serie para la salida por consola.
type Summary struct {
	Count int
	Mean  float64
	Std   float64
	Min   float64
	Max   float64
	First time.Time
	Last  time.Time
}

// Summarize calcula media, desviación y extremos de los valores finitos.
func Summarize(s Series) Summary {
	vals := make([]float64, 0, len(s.Points))
	var sum Summary
	for _, p := range s.Points {
		if math.IsNaN(p.Value) || math.IsInf(p.Value, 0) {
			continue
		}
		if len(vals) == 0 {
			sum.First = p.Date
		}
		sum.Last = p.Date
		vals = append(vals, p.Value)
	}
	sum.Count = len(vals)
	if sum.Count == 0 {
		return sum
	}
	sum.Min, sum.Max = floats.Min(vals), floats.Max(vals)
	if sum.Count == 1 {
		sum.Mean = vals[0]
		return sum
	}
	sum.Mean, sum.Std = stat.MeanStdDev(vals, nil)
	return sum
}
