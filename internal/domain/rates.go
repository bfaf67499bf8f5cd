package domain

import "time"

// DefaultRate es la tasa libre de riesgo aplicada cuando la curva no tiene la fecha.
const DefaultRate = 0.03

// RateLookup es el resultado de consultar la curva.
// Fallback = true indica que la fecha no estaba y se aplicó la tasa por defecto.
type RateLookup struct {
	Rate     float64
	Fallback bool
}

// RateCurve mapea fecha → tasa anualizada de corto plazo (p.ej. Shibor 3M).
type RateCurve struct {
	rates       map[string]float64
	defaultRate float64
}

// NewRateCurve crea una curva vacía con la tasa por defecto dada.
// Una tasa por defecto <= 0 se reemplaza por DefaultRate.
func NewRateCurve(defaultRate float64) *RateCurve {
	if defaultRate <= 0 {
		defaultRate = DefaultRate
	}
	return &RateCurve{rates: make(map[string]float64), defaultRate: defaultRate}
}

// Set registra la tasa de una fecha.
func (c *RateCurve) Set(date time.Time, rate float64) {
	c.rates[dateKey(date)] = rate
}

// Len devuelve cuántas fechas tiene la curva.
func (c *RateCurve) Len() int { return len(c.rates) }

// DefaultRate devuelve la tasa aplicada en los fallos de búsqueda.
func (c *RateCurve) DefaultRate() float64 { return c.defaultRate }

// Lookup devuelve la tasa de la fecha. Un miss no es un error: es una política
// explícita, y el caller ve Fallback = true para poder registrarlo.
// Una curva nil siempre devuelve el fallback.
func (c *RateCurve) Lookup(date time.Time) RateLookup {
	if c == nil {
		return RateLookup{Rate: DefaultRate, Fallback: true}
	}
	if r, ok := c.rates[dateKey(date)]; ok {
		return RateLookup{Rate: r}
	}
	return RateLookup{Rate: c.defaultRate, Fallback: true}
}

func dateKey(t time.Time) string {
	return t.Format(time.DateOnly)
}
