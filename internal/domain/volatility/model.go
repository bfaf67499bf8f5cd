package volatility

import (
	"fmt"
	"strings"

	"github.com/alejandrodnm/volbot/internal/domain"
)

// Model identifica un estimador. Se resuelve por tabla fija, nunca por nombre dinámico.
type Model int

const (
	ModelRealized Model = iota
	ModelParkinson
	ModelGarmanKlass
	ModelRogerSatchell
	ModelGarmanKlassYangZhang
	ModelYangZhang
)

// Models lista todos los estimadores en orden de presentación.
var Models = []Model{
	ModelRealized,
	ModelParkinson,
	ModelGarmanKlass,
	ModelRogerSatchell,
	ModelGarmanKlassYangZhang,
	ModelYangZhang,
}

type modelDef struct {
	name string
	// lag = 1 si el modelo necesita el cierre anterior (W retornos ⇒ W+1 barras).
	lag      int
	estimate func(w domain.OHLC, annualDays float64) (float64, error)
}

var table = map[Model]modelDef{
	ModelRealized: {"realized", 1, func(w domain.OHLC, n float64) (float64, error) {
		return Realized(w.Close, n)
	}},
	ModelParkinson: {"parkinson", 0, func(w domain.OHLC, n float64) (float64, error) {
		return Parkinson(w.High, w.Low, n)
	}},
	ModelGarmanKlass: {"garman_klass", 0, func(w domain.OHLC, n float64) (float64, error) {
		return GarmanKlass(w.Open, w.High, w.Low, w.Close, n)
	}},
	ModelRogerSatchell: {"roger_satchell", 0, func(w domain.OHLC, n float64) (float64, error) {
		return RogerSatchell(w.Open, w.High, w.Low, w.Close, n)
	}},
	ModelGarmanKlassYangZhang: {"garkla_yangzh", 1, func(w domain.OHLC, n float64) (float64, error) {
		return GarmanKlassYangZhang(w.Open, w.High, w.Low, w.Close, n)
	}},
	ModelYangZhang: {"yang_zhang", 1, func(w domain.OHLC, n float64) (float64, error) {
		return YangZhang(w.Open, w.High, w.Low, w.Close, n)
	}},
}

// ParseModel traduce el nombre de configuración al identificador.
func ParseModel(name string) (Model, error) {
	key := strings.ToLower(strings.TrimSpace(name))
	for m, s := range table {
		if s.name == key {
			return m, nil
		}
	}
	return 0, fmt.Errorf("volatility.ParseModel: %q: %w", name, domain.ErrInvalidModel)
}

// String devuelve el nombre canónico del modelo.
func (m Model) String() string {
	if s, ok := table[m]; ok {
		return s.name
	}
	return fmt.Sprintf("model(%d)", int(m))
}

// Span devuelve cuántas barras consume una ventana de `window` observaciones de
// retorno. Los modelos basados en retornos (realized, garkla_yangzh, yang_zhang)
// necesitan window+1 barras; los de rango (parkinson, garman_klass,
// roger_satchell) exactamente window. Así todos reportan sobre el mismo número
// de observaciones y son comparables.
func (m Model) Span(window int) int {
	return window + table[m].lag
}

// Estimate aplica el modelo a la ventana completa.
func (m Model) Estimate(w domain.OHLC, annualDays float64) (float64, error) {
	s, ok := table[m]
	if !ok {
		return 0, fmt.Errorf("volatility.Estimate: %v: %w", m, domain.ErrInvalidModel)
	}
	if err := w.Validate(); err != nil {
		return 0, fmt.Errorf("volatility.Estimate: %s: %w", s.name, err)
	}
	if annualDays <= 0 {
		annualDays = DefaultAnnualDays
	}
	return s.estimate(w, annualDays)
}
