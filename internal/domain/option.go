package domain

import (
	"math"
	"sort"
	"time"
)

// OptionQuote es una fila de la cadena: call y put del mismo strike y vencimiento.
// Un precio ausente se representa con NaN (HasCall/HasPut lo consultan).
type OptionQuote struct {
	Date   time.Time
	Expiry time.Time
	Strike float64
	Call   float64
	Put    float64
}

// HasCall indica si la cotización trae precio de call.
func (q OptionQuote) HasCall() bool { return !math.IsNaN(q.Call) && q.Call >= 0 }

// HasPut indica si la cotización trae precio de put.
func (q OptionQuote) HasPut() bool { return !math.IsNaN(q.Put) && q.Put >= 0 }

// DaysToExpiry devuelve los días naturales hasta el vencimiento.
func (q OptionQuote) DaysToExpiry() int {
	return int(math.Round(q.Expiry.Sub(q.Date).Hours() / 24))
}

// OptionChain es el snapshot de un día de negociación: todas las cotizaciones
// con la misma fecha, más el cierre del subyacente y la tasa del día.
type OptionChain struct {
	Date   time.Time
	Spot   float64
	Quotes []OptionQuote
}

// Term es el subconjunto de una cadena con un único vencimiento,
// ordenado por strike ascendente.
type Term struct {
	Expiry time.Time
	Days   int
	Quotes []OptionQuote
}

// Terms agrupa la cadena por vencimiento, ordenados por días hasta vencimiento.
// Dentro de cada grupo los strikes quedan ordenados y únicos (gana la primera fila).
func (c OptionChain) Terms() []Term {
	byExpiry := make(map[string]*Term)
	var order []string
	for _, q := range c.Quotes {
		key := q.Expiry.Format(time.DateOnly)
		t, ok := byExpiry[key]
		if !ok {
			t = &Term{Expiry: q.Expiry, Days: q.DaysToExpiry()}
			byExpiry[key] = t
			order = append(order, key)
		}
		t.Quotes = append(t.Quotes, q)
	}

	terms := make([]Term, 0, len(order))
	for _, key := range order {
		t := byExpiry[key]
		sort.SliceStable(t.Quotes, func(i, j int) bool { return t.Quotes[i].Strike < t.Quotes[j].Strike })
		t.Quotes = dedupStrikes(t.Quotes)
		terms = append(terms, *t)
	}
	sort.Slice(terms, func(i, j int) bool { return terms[i].Days < terms[j].Days })
	return terms
}

// SelectTerms elige el vencimiento cercano (el menor con más de floorDays días)
// y el siguiente. Vencimientos a <= floorDays se descartan para evitar la
// distorsión cerca del vencimiento.
func (c OptionChain) SelectTerms(floorDays int) (near, next Term, err error) {
	var eligible []Term
	for _, t := range c.Terms() {
		if t.Days > floorDays {
			eligible = append(eligible, t)
		}
	}
	if len(eligible) < 2 {
		return Term{}, Term{}, ErrMissingTerm
	}
	return eligible[0], eligible[1], nil
}

func dedupStrikes(qs []OptionQuote) []OptionQuote {
	out := qs[:0]
	for _, q := range qs {
		if len(out) > 0 && q.Strike == out[len(out)-1].Strike {
			continue
		}
		out = append(out, q)
	}
	return out
}
