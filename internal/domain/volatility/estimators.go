// Package volatility implementa los estimadores de volatilidad histórica sobre
// ventanas OHLC. Todas las funciones son puras: no guardan estado, no modifican
// la ventana y devuelven un error en lugar de NaN cuando la ventana no alcanza
// o un término es degenerado.
package volatility

import (
	"fmt"
	"math"

	"gonum.org/v1/gonum/stat"

	"github.com/alejandrodnm/volbot/internal/domain"
)

// DefaultAnnualDays es el número de sesiones por año usado para anualizar.
// El mercado doméstico tiene algo más de 240 sesiones; se redondea a 240.
const DefaultAnnualDays = 240

// gkCoef es el peso (2·ln2 − 1) del término close/open de Garman-Klass.
var gkCoef = 2*math.Ln2 - 1

// Realized calcula la desviación típica muestral de los log-retornos entre cierres
// consecutivos, anualizada: sqrt(Var(r) · N). Para n retornos hacen falta n+1 cierres.
//
// Requiere al menos 3 cierres: con 2 solo hay un retorno y la varianza con
// corrección de Bessel divide por cero.
func Realized(closes []float64, annualDays float64) (float64, error) {
	if len(closes) < 2 {
		return 0, fmt.Errorf("volatility.Realized: %d closes: %w", len(closes), domain.ErrWindowTooShort)
	}
	if len(closes) < 3 {
		return 0, fmt.Errorf("volatility.Realized: single return: %w", domain.ErrDegenerate)
	}
	rets, err := logReturns(closes)
	if err != nil {
		return 0, fmt.Errorf("volatility.Realized: %w", err)
	}
	return annualize("Realized", stat.Variance(rets, nil)*annualDays)
}

// Parkinson usa solo máximos y mínimos: sqrt(Σ ln(H/L)² · N / (4·n·ln2)).
//
// Precondición (no validada): H >= L en cada observación.
func Parkinson(high, low []float64, annualDays float64) (float64, error) {
	n := len(high)
	if n == 0 || len(low) != n {
		return 0, fmt.Errorf("volatility.Parkinson: high=%d low=%d: %w", n, len(low), domain.ErrWindowTooShort)
	}
	if err := positive(high, low); err != nil {
		return 0, fmt.Errorf("volatility.Parkinson: %w", err)
	}
	var sumHL float64
	for i := range high {
		hl := math.Log(high[i] / low[i])
		sumHL += hl * hl
	}
	return annualize("Parkinson", sumHL*annualDays/(4*float64(n)*math.Ln2))
}

// GarmanKlass combina el rango intradía y el salto open→close:
// sqrt((½Σln(H/L)² − (2ln2−1)Σln(C/O)²) · N/n).
func GarmanKlass(open, high, low, close []float64, annualDays float64) (float64, error) {
	n, err := aligned(open, high, low, close)
	if err != nil {
		return 0, fmt.Errorf("volatility.GarmanKlass: %w", err)
	}
	if n == 0 {
		return 0, fmt.Errorf("volatility.GarmanKlass: %w", domain.ErrWindowTooShort)
	}
	sumHL, sumCO := gkSums(open, high, low, close)
	return annualize("GarmanKlass", (sumHL/2-gkCoef*sumCO)*annualDays/float64(n))
}

// RogerSatchell es independiente del drift:
// sqrt(Σ[ln(H/C)·ln(H/O) + ln(L/C)·ln(L/O)] · N/n).
func RogerSatchell(open, high, low, close []float64, annualDays float64) (float64, error) {
	v, err := rogerSatchellVar(open, high, low, close, annualDays)
	if err != nil {
		return 0, fmt.Errorf("volatility.RogerSatchell: %w", err)
	}
	return annualize("RogerSatchell", v)
}

// GarmanKlassYangZhang añade a Garman-Klass el salto overnight (open frente al
// cierre anterior). La primera observación solo aporta su cierre, así que n
// observaciones dan n−1 grados de libertad.
func GarmanKlassYangZhang(open, high, low, close []float64, annualDays float64) (float64, error) {
	n, err := aligned(open, high, low, close)
	if err != nil {
		return 0, fmt.Errorf("volatility.GarmanKlassYangZhang: %w", err)
	}
	if n < 2 {
		return 0, fmt.Errorf("volatility.GarmanKlassYangZhang: %d bars: %w", n, domain.ErrWindowTooShort)
	}

	var sumOC float64
	for i := 1; i < n; i++ {
		oc := math.Log(open[i] / close[i-1])
		sumOC += oc * oc
	}
	sumHL, sumCO := gkSums(open[1:], high[1:], low[1:], close[1:])
	return annualize("GarmanKlassYangZhang", (sumOC+sumHL/2-gkCoef*sumCO)*annualDays/float64(n-1))
}

// YangZhang descompone la varianza en overnight, open→close y Roger-Satchell:
//
//	k   = 0.34 / (1.34 + (n+1)/(n−1))
//	σ²  = Var(overnight) + k·Var(open→close) + (1−k)·σ²_RS
//
// con n = número de retornos (barras − 1). Necesita al menos 3 barras.
func YangZhang(open, high, low, close []float64, annualDays float64) (float64, error) {
	bars, err := aligned(open, high, low, close)
	if err != nil {
		return 0, fmt.Errorf("volatility.YangZhang: %w", err)
	}
	if bars < 2 {
		return 0, fmt.Errorf("volatility.YangZhang: %d bars: %w", bars, domain.ErrWindowTooShort)
	}
	n := bars - 1
	if n < 2 {
		return 0, fmt.Errorf("volatility.YangZhang: single return: %w", domain.ErrDegenerate)
	}

	overnight := make([]float64, n)
	openClose := make([]float64, n)
	for i := 1; i < bars; i++ {
		overnight[i-1] = math.Log(open[i] / close[i-1])
		openClose[i-1] = math.Log(close[i] / open[i])
	}
	ocVar := stat.Variance(overnight, nil) * annualDays
	coVar := stat.Variance(openClose, nil) * annualDays

	rsVar, err := rogerSatchellVar(open[1:], high[1:], low[1:], close[1:], annualDays)
	if err != nil {
		return 0, fmt.Errorf("volatility.YangZhang: %w", err)
	}

	k := 0.34 / (1.34 + float64(n+1)/float64(n-1))
	return annualize("YangZhang", ocVar+k*coVar+(1-k)*rsVar)
}

// --- helpers internos ---

func rogerSatchellVar(open, high, low, close []float64, annualDays float64) (float64, error) {
	n, err := aligned(open, high, low, close)
	if err != nil {
		return 0, err
	}
	if n == 0 {
		return 0, domain.ErrWindowTooShort
	}
	var sum float64
	for i := 0; i < n; i++ {
		sum += math.Log(high[i]/close[i])*math.Log(high[i]/open[i]) +
			math.Log(low[i]/close[i])*math.Log(low[i]/open[i])
	}
	return sum * annualDays / float64(n), nil
}

func gkSums(open, high, low, close []float64) (sumHL, sumCO float64) {
	for i := range close {
		hl := math.Log(high[i] / low[i])
		co := math.Log(close[i] / open[i])
		sumHL += hl * hl
		sumCO += co * co
	}
	return sumHL, sumCO
}

// aligned verifica que las cuatro columnas tengan la misma longitud y precios > 0.
func aligned(open, high, low, close []float64) (int, error) {
	n := len(close)
	if len(open) != n || len(high) != n || len(low) != n {
		return 0, domain.ErrMismatchedSeries
	}
	if err := positive(open, high, low, close); err != nil {
		return 0, err
	}
	return n, nil
}

func positive(cols ...[]float64) error {
	for _, col := range cols {
		for _, v := range col {
			if !(v > 0) {
				return domain.ErrNonPositive
			}
		}
	}
	return nil
}

func logReturns(closes []float64) ([]float64, error) {
	if err := positive(closes); err != nil {
		return nil, err
	}
	rets := make([]float64, len(closes)-1)
	for i := 1; i < len(closes); i++ {
		rets[i-1] = math.Log(closes[i] / closes[i-1])
	}
	return rets, nil
}

// annualize devuelve sqrt(variance); una varianza negativa o no finita es un error.
func annualize(name string, variance float64) (float64, error) {
	if math.IsNaN(variance) || math.IsInf(variance, 0) || variance < 0 {
		return 0, fmt.Errorf("volatility.%s: variance %g: %w", name, variance, domain.ErrDegenerate)
	}
	return math.Sqrt(variance), nil
}
