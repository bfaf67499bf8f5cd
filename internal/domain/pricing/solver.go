package pricing

import (
	"fmt"
	"math"
	"strings"

	"github.com/alejandrodnm/volbot/internal/domain"
)

const (
	DefaultIterations   = 50
	DefaultInitialSigma = 0.5
	DefaultBracketLo    = 0.05
	DefaultBracketHi    = 1.0
	DefaultTolerance    = 1e-8

	// tolerancia del residuo para marcar un resultado de Newton como convergido
	convergedResidual = 1e-6
	maxBrentIter      = 200
)

// Method selecciona el algoritmo de calibración.
type Method int

const (
	MethodNewton Method = iota
	MethodBracketed
)

func (m Method) String() string {
	if m == MethodBracketed {
		return "bracketed"
	}
	return "newton"
}

// ParseMethod traduce "newton" o "bracketed" (alias "brent").
func ParseMethod(name string) (Method, error) {
	switch strings.ToLower(strings.TrimSpace(name)) {
	case "newton", "":
		return MethodNewton, nil
	case "bracketed", "brent":
		return MethodBracketed, nil
	}
	return 0, fmt.Errorf("pricing.ParseMethod: %q: %w", name, domain.ErrInvalidModel)
}

// NewtonOptions configura el modo Newton. Los ceros toman el valor por defecto.
type NewtonOptions struct {
	Iterations   int
	InitialSigma float64
}

func (o NewtonOptions) withDefaults() NewtonOptions {
	if o.Iterations <= 0 {
		o.Iterations = DefaultIterations
	}
	if o.InitialSigma <= 0 {
		o.InitialSigma = DefaultInitialSigma
	}
	return o
}

// BracketOptions configura el modo acotado.
type BracketOptions struct {
	Lo        float64
	Hi        float64
	Tolerance float64
}

func (o BracketOptions) withDefaults() BracketOptions {
	if o.Lo <= 0 {
		o.Lo = DefaultBracketLo
	}
	if o.Hi <= o.Lo {
		o.Hi = DefaultBracketHi
	}
	if o.Tolerance <= 0 {
		o.Tolerance = DefaultTolerance
	}
	return o
}

// SolverOptions agrupa la elección de método y sus parámetros.
type SolverOptions struct {
	Method  Method
	Newton  NewtonOptions
	Bracket BracketOptions
}

// NewtonResult expone el diagnóstico de la iteración. Newton no se detiene al
// converger: siempre ejecuta Iterations pasos, y Converged solo informa de si el
// residuo final es pequeño. El llamador decide qué hacer con un resultado no convergido.
type NewtonResult struct {
	Sigma      float64
	Iterations int
	Residual   float64
	Converged  bool
}

// Newton ejecuta exactamente opts.Iterations pasos de
// sigma ← sigma − (price(sigma) − target)/vega(sigma).
// Solo falla con ErrDiverged si sigma deja de ser finita (por ejemplo vega → 0).
func Newton(price, vega func(sigma float64) float64, target float64, opts NewtonOptions) (NewtonResult, error) {
	opts = opts.withDefaults()
	sigma := opts.InitialSigma
	for i := 0; i < opts.Iterations; i++ {
		sigma -= (price(sigma) - target) / vega(sigma)
		if math.IsNaN(sigma) || math.IsInf(sigma, 0) {
			return NewtonResult{Sigma: sigma, Iterations: i + 1, Residual: math.NaN()},
				fmt.Errorf("pricing.Newton: iteration %d: %w", i+1, domain.ErrDiverged)
		}
	}
	res := price(sigma) - target
	return NewtonResult{
		Sigma:      sigma,
		Iterations: opts.Iterations,
		Residual:   res,
		Converged:  math.Abs(res) < convergedResidual && sigma > 0,
	}, nil
}

// Brent busca una raíz de f en [lo, hi] por el método de Brent.
// Falla con ErrNoRootInBracket si f(lo) y f(hi) tienen el mismo signo.
func Brent(f func(float64) float64, lo, hi, tol float64) (float64, error) {
	a, b := lo, hi
	fa, fb := f(a), f(b)
	if math.IsNaN(fa) || math.IsNaN(fb) {
		return 0, fmt.Errorf("pricing.Brent: f(%g)=%g f(%g)=%g: %w", lo, fa, hi, fb, domain.ErrDegenerate)
	}
	if fa == 0 {
		return a, nil
	}
	if fb == 0 {
		return b, nil
	}
	if (fa > 0) == (fb > 0) {
		return 0, fmt.Errorf("pricing.Brent: f(%g)=%g f(%g)=%g: %w", lo, fa, hi, fb, domain.ErrNoRootInBracket)
	}

	c, fc := b, fb
	var d, e float64
	for i := 0; i < maxBrentIter; i++ {
		if (fb > 0) == (fc > 0) {
			c, fc = a, fa
			d = b - a
			e = d
		}
		if math.Abs(fc) < math.Abs(fb) {
			a, b, c = b, c, b
			fa, fb, fc = fb, fc, fb
		}
		tol1 := 2*epsilon*math.Abs(b) + 0.5*tol
		xm := 0.5 * (c - b)
		if math.Abs(xm) <= tol1 || fb == 0 {
			return b, nil
		}
		if math.Abs(e) >= tol1 && math.Abs(fa) > math.Abs(fb) {
			// interpolación inversa (secante o cuadrática)
			s := fb / fa
			var p, q float64
			if a == c {
				p = 2 * xm * s
				q = 1 - s
			} else {
				qa := fa / fc
				r := fb / fc
				p = s * (2*xm*qa*(qa-r) - (b-a)*(r-1))
				q = (qa - 1) * (r - 1) * (s - 1)
			}
			if p > 0 {
				q = -q
			}
			p = math.Abs(p)
			if 2*p < math.Min(3*xm*q-math.Abs(tol1*q), math.Abs(e*q)) {
				e = d
				d = p / q
			} else {
				d = xm
				e = d
			}
		} else {
			d = xm
			e = d
		}
		a, fa = b, fb
		if math.Abs(d) > tol1 {
			b += d
		} else {
			b += math.Copysign(tol1, xm)
		}
		fb = f(b)
	}
	return b, fmt.Errorf("pricing.Brent: %d iterations: %w", maxBrentIter, domain.ErrMaxIterations)
}

const epsilon = 2.220446049250313e-16

// ImpliedVol calibra la volatilidad que reproduce target con el método elegido.
// Con Newton devuelve la sigma final aunque no haya convergido; el diagnóstico
// completo está disponible llamando a ImpliedVolNewton.
func ImpliedVol(o Option, target float64, opts SolverOptions) (float64, error) {
	switch opts.Method {
	case MethodNewton:
		res, err := ImpliedVolNewton(o, target, opts.Newton)
		if err != nil {
			return 0, err
		}
		return res.Sigma, nil
	case MethodBracketed:
		return ImpliedVolBracketed(o, target, opts.Bracket)
	}
	return 0, fmt.Errorf("pricing.ImpliedVol: method %d: %w", int(opts.Method), domain.ErrInvalidModel)
}

// ImpliedVolNewton calibra en modo Newton.
func ImpliedVolNewton(o Option, target float64, opts NewtonOptions) (NewtonResult, error) {
	if err := o.validate(); err != nil {
		return NewtonResult{}, fmt.Errorf("pricing.ImpliedVolNewton: %w", err)
	}
	res, err := Newton(o.price, o.vega, target, opts)
	if err != nil {
		return res, fmt.Errorf("pricing.ImpliedVolNewton: %s K=%g: %w", o.Kind, o.Strike, err)
	}
	return res, nil
}

// ImpliedVolBracketed calibra en modo acotado.
func ImpliedVolBracketed(o Option, target float64, opts BracketOptions) (float64, error) {
	if err := o.validate(); err != nil {
		return 0, fmt.Errorf("pricing.ImpliedVolBracketed: %w", err)
	}
	opts = opts.withDefaults()
	sigma, err := Brent(func(s float64) float64 { return o.price(s) - target }, opts.Lo, opts.Hi, opts.Tolerance)
	if err != nil {
		return 0, fmt.Errorf("pricing.ImpliedVolBracketed: %s K=%g: %w", o.Kind, o.Strike, err)
	}
	return sigma, nil
}
