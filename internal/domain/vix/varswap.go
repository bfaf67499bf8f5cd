// Package vix construye un índice de volatilidad a 30 días a partir de un
// snapshot de la cadena de opciones, por dos métodos: el de varianza (swap de
// varianza replicado con la franja de strikes) y la interpolación de Whaley
// sobre volatilidades implícitas cerca del dinero.
package vix

import (
	"fmt"
	"math"
	"sort"

	"github.com/alejandrodnm/volbot/internal/domain"
)

// Config fija el calendario del índice. Los ceros toman el valor por defecto.
type Config struct {
	MinNearDays int     // vencimientos a <= MinNearDays días se descartan
	TargetDays  float64 // horizonte constante del índice
	YearDays    float64 // días naturales por año
}

const (
	DefaultMinNearDays = 7
	DefaultTargetDays  = 30
	DefaultYearDays    = 365
)

func (c Config) withDefaults() Config {
	if c.MinNearDays <= 0 {
		c.MinNearDays = DefaultMinNearDays
	}
	if c.TargetDays <= 0 {
		c.TargetDays = DefaultTargetDays
	}
	if c.YearDays <= 0 {
		c.YearDays = DefaultYearDays
	}
	return c
}

// TermVariance es la varianza implícita de un vencimiento.
type TermVariance struct {
	Days     int
	T        float64
	Forward  float64
	K0       float64
	Variance float64
}

// strip es la franja de strikes con call y put cotizadas, ordenada.
type strip struct {
	strikes []float64
	calls   []float64
	puts    []float64
}

func newStrip(term domain.Term) strip {
	var s strip
	for _, q := range term.Quotes {
		if !q.HasCall() || !q.HasPut() || !(q.Strike > 0) {
			continue
		}
		s.strikes = append(s.strikes, q.Strike)
		s.calls = append(s.calls, q.Call)
		s.puts = append(s.puts, q.Put)
	}
	return s
}

// forward usa la paridad put-call en el strike donde |C − P| es mínimo:
// F = K + (C − P)·e^{rT}.
func (s strip) forward(r, t float64) float64 {
	best := 0
	for i := range s.strikes {
		if math.Abs(s.calls[i]-s.puts[i]) < math.Abs(s.calls[best]-s.puts[best]) {
			best = i
		}
	}
	return s.strikes[best] + (s.calls[best]-s.puts[best])*math.Exp(r*t)
}

// k0 devuelve el índice del mayor strike <= F. Un strike exactamente igual a F
// es K0 (el empate no baja al strike anterior). Si F queda por debajo de toda
// la franja se toma el primero.
func (s strip) k0(f float64) int {
	i := sort.SearchFloat64s(s.strikes, f)
	if i < len(s.strikes) && s.strikes[i] == f {
		return i
	}
	return max(i-1, 0)
}

// deltaK: en los extremos el hueco con el vecino; dentro, (K[i+1] − K[i−1])/2.
func (s strip) deltaK(i int) float64 {
	n := len(s.strikes)
	switch i {
	case 0:
		return s.strikes[1] - s.strikes[0]
	case n - 1:
		return s.strikes[n-1] - s.strikes[n-2]
	}
	return (s.strikes[i+1] - s.strikes[i-1]) / 2
}

// q es la prima fuera del dinero: put bajo K0, call sobre K0, media en K0.
func (s strip) q(i, k0 int) float64 {
	switch {
	case i < k0:
		return s.puts[i]
	case i > k0:
		return s.calls[i]
	}
	return (s.calls[i] + s.puts[i]) / 2
}

// Variance calcula σ² = 2/T·Σ(ΔK/K²)·Q(K)·e^{rT} − (F/K0 − 1)²/T para un vencimiento.
func Variance(term domain.Term, r float64, cfg Config) (TermVariance, error) {
	cfg = cfg.withDefaults()
	if term.Days <= 0 {
		return TermVariance{}, fmt.Errorf("vix.Variance: %d days: %w", term.Days, domain.ErrNonPositive)
	}
	s := newStrip(term)
	if len(s.strikes) < 2 {
		return TermVariance{}, fmt.Errorf("vix.Variance: %d days: %d strikes: %w",
			term.Days, len(s.strikes), domain.ErrInsufficientStrikes)
	}

	t := float64(term.Days) / cfg.YearDays
	growth := math.Exp(r * t)
	f := s.forward(r, t)
	k0 := s.k0(f)

	var sum float64
	for i, k := range s.strikes {
		sum += s.deltaK(i) / (k * k) * s.q(i, k0) * growth
	}
	adj := f/s.strikes[k0] - 1
	return TermVariance{
		Days:     term.Days,
		T:        t,
		Forward:  f,
		K0:       s.strikes[k0],
		Variance: 2*sum/t - adj*adj/t,
	}, nil
}

// Index interpola linealmente las dos varianzas a TargetDays y devuelve
// 100·sqrt(σ²_30 · YearDays/TargetDays).
func Index(near, next TermVariance, cfg Config) (float64, error) {
	cfg = cfg.withDefaults()
	n1, n2 := float64(near.Days), float64(next.Days)
	if n2 <= n1 {
		return 0, fmt.Errorf("vix.Index: near=%d next=%d: %w", near.Days, next.Days, domain.ErrDegenerate)
	}
	w1 := (n2 - cfg.TargetDays) / (n2 - n1)
	w2 := (cfg.TargetDays - n1) / (n2 - n1)
	v := (near.Variance*near.T*w1 + next.Variance*next.T*w2) * cfg.YearDays / cfg.TargetDays
	if math.IsNaN(v) || v < 0 {
		return 0, fmt.Errorf("vix.Index: variance %g: %w", v, domain.ErrDegenerate)
	}
	return 100 * math.Sqrt(v), nil
}

// VarianceSwapResult agrupa el índice y las varianzas por vencimiento.
type VarianceSwapResult struct {
	Index float64
	Near  TermVariance
	Next  TermVariance
}

// VarianceSwap calcula el índice por el método de varianza sobre un snapshot.
func VarianceSwap(chain domain.OptionChain, r float64, cfg Config) (VarianceSwapResult, error) {
	cfg = cfg.withDefaults()
	nearTerm, nextTerm, err := chain.SelectTerms(cfg.MinNearDays)
	if err != nil {
		return VarianceSwapResult{}, fmt.Errorf("vix.VarianceSwap: %w", err)
	}
	near, err := Variance(nearTerm, r, cfg)
	if err != nil {
		return VarianceSwapResult{}, fmt.Errorf("vix.VarianceSwap: near: %w", err)
	}
	next, err := Variance(nextTerm, r, cfg)
	if err != nil {
		return VarianceSwapResult{}, fmt.Errorf("vix.VarianceSwap: next: %w", err)
	}
	idx, err := Index(near, next, cfg)
	if err != nil {
		return VarianceSwapResult{}, fmt.Errorf("vix.VarianceSwap: %w", err)
	}
	return VarianceSwapResult{Index: idx, Near: near, Next: next}, nil
}
