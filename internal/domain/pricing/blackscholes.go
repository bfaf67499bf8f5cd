// Package pricing contiene el modelo Black-Scholes, los solvers de volatilidad
// implícita y la réplica delta-hedge de una call vendida.
package pricing

import (
	"fmt"
	"math"

	"gonum.org/v1/gonum/stat/distuv"

	"github.com/alejandrodnm/volbot/internal/domain"
)

var normal = distuv.UnitNormal

// Kind distingue call y put.
type Kind int

const (
	Call Kind = iota
	Put
)

func (k Kind) String() string {
	if k == Put {
		return "put"
	}
	return "call"
}

// Value devuelve el precio Black-Scholes de una call europea.
func Value(s0, k, r, sigma, t float64) (float64, error) {
	if err := checkInputs(s0, k, sigma, t); err != nil {
		return 0, fmt.Errorf("pricing.Value: %w", err)
	}
	return callValue(s0, k, r, sigma, t), nil
}

// PutValue devuelve el precio Black-Scholes de una put europea.
func PutValue(s0, k, r, sigma, t float64) (float64, error) {
	if err := checkInputs(s0, k, sigma, t); err != nil {
		return 0, fmt.Errorf("pricing.PutValue: %w", err)
	}
	return putValue(s0, k, r, sigma, t), nil
}

// Vega devuelve ∂V/∂σ = S0·φ(d1)·√T (igual para call y put).
func Vega(s0, k, r, sigma, t float64) (float64, error) {
	if err := checkInputs(s0, k, sigma, t); err != nil {
		return 0, fmt.Errorf("pricing.Vega: %w", err)
	}
	return vega(s0, k, r, sigma, t), nil
}

// Delta devuelve N(d1), la delta de la call.
func Delta(s0, k, r, sigma, t float64) (float64, error) {
	if err := checkInputs(s0, k, sigma, t); err != nil {
		return 0, fmt.Errorf("pricing.Delta: %w", err)
	}
	return delta(s0, k, r, sigma, t), nil
}

func checkInputs(s0, k, sigma, t float64) error {
	switch {
	case !(s0 > 0):
		return fmt.Errorf("spot %g: %w", s0, domain.ErrNonPositive)
	case !(k > 0):
		return fmt.Errorf("strike %g: %w", k, domain.ErrNonPositive)
	case !(sigma > 0):
		return fmt.Errorf("sigma %g: %w", sigma, domain.ErrNonPositive)
	case !(t > 0):
		return fmt.Errorf("maturity %g: %w", t, domain.ErrNonPositive)
	}
	return nil
}

// Las variantes sin validar las usan los solvers dentro del bucle: Newton puede
// pasar por sigmas no positivas y el resultado final se comprueba al salir.

func d1d2(s0, k, r, sigma, t float64) (float64, float64) {
	sq := sigma * math.Sqrt(t)
	d1 := (math.Log(s0/k) + (r+0.5*sigma*sigma)*t) / sq
	return d1, d1 - sq
}

func callValue(s0, k, r, sigma, t float64) float64 {
	d1, d2 := d1d2(s0, k, r, sigma, t)
	return s0*normal.CDF(d1) - k*math.Exp(-r*t)*normal.CDF(d2)
}

func putValue(s0, k, r, sigma, t float64) float64 {
	d1, d2 := d1d2(s0, k, r, sigma, t)
	return k*math.Exp(-r*t)*normal.CDF(-d2) - s0*normal.CDF(-d1)
}

func vega(s0, k, r, sigma, t float64) float64 {
	d1, _ := d1d2(s0, k, r, sigma, t)
	return s0 * normal.Prob(d1) * math.Sqrt(t)
}

func delta(s0, k, r, sigma, t float64) float64 {
	d1, _ := d1d2(s0, k, r, sigma, t)
	return normal.CDF(d1)
}

// Option describe un contrato europeo para calibrar su volatilidad implícita.
type Option struct {
	Kind   Kind
	Spot   float64
	Strike float64
	Rate   float64
	T      float64
}

func (o Option) validate() error {
	// sigma se fija a 1 solo para reutilizar la validación.
	return checkInputs(o.Spot, o.Strike, 1, o.T)
}

func (o Option) price(sigma float64) float64 {
	if o.Kind == Put {
		return putValue(o.Spot, o.Strike, o.Rate, sigma, o.T)
	}
	return callValue(o.Spot, o.Strike, o.Rate, sigma, o.T)
}

func (o Option) vega(sigma float64) float64 {
	return vega(o.Spot, o.Strike, o.Rate, sigma, o.T)
}

// Price valora el contrato con la volatilidad dada.
func (o Option) Price(sigma float64) (float64, error) {
	if err := checkInputs(o.Spot, o.Strike, sigma, o.T); err != nil {
		return 0, fmt.Errorf("pricing.Option.Price: %w", err)
	}
	return o.price(sigma), nil
}
