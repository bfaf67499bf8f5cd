package montecarlo

import (
	"context"
	"fmt"

	"github.com/alejandrodnm/volbot/internal/domain"
)

// DefaultBump es el desplazamiento relativo de la delta por diferencias centradas.
const DefaultBump = 0.01

// PhoenixContract es la nota autocancelable con cupón condicional. Las barreras
// son niveles absolutos y no se desplazan con el bump de la delta.
type PhoenixContract struct {
	Spot         float64 // precio de emisión
	Months       int     // plazo en meses
	Upper        float64 // barrera de knock-out
	Lower        float64 // barrera de knock-in
	Coupon       float64 // cupón mensual sobre el spot
	DaysPerMonth int
}

// Validate comprueba el contrato.
func (c PhoenixContract) Validate() error {
	switch {
	case !(c.Spot > 0):
		return fmt.Errorf("spot %g: %w", c.Spot, domain.ErrNonPositive)
	case c.Months < 1 || c.DaysPerMonth < 1:
		return fmt.Errorf("tenor %dx%d: %w", c.Months, c.DaysPerMonth, domain.ErrNonPositive)
	case !(c.Lower > 0) || !(c.Upper > c.Lower):
		return fmt.Errorf("barriers lower=%g upper=%g: %w", c.Lower, c.Upper, domain.ErrDegenerate)
	case c.Coupon < 0:
		return fmt.Errorf("coupon %g: %w", c.Coupon, domain.ErrNonPositive)
	}
	return nil
}

// PhoenixOutcome es el detalle de una trayectoria.
type PhoenixOutcome struct {
	KnockedOut     bool
	ElapsedMonths  int
	KnockedInCount int
	Interest       float64
	Payoff         float64
}

// Evaluate aplica la regla de pago a una trayectoria multiplicada por scale
// (scale = 1 sin bump). path[0] es el spot y path debe cubrir Months·DaysPerMonth pasos.
//
// Cada mes se marca como knock-in si algún cierre diario cae por debajo de
// Lower; si el último cierre del mes supera Upper el contrato termina ahí.
// El cupón se paga en los meses transcurridos sin knock-in. Si no hubo
// knock-out y algún mes tuvo knock-in, el vendedor además asume la put:
// max(S0 − S_final, 0) − intereses.
func (c PhoenixContract) Evaluate(path []float64, scale float64) PhoenixOutcome {
	var out PhoenixOutcome
	days := c.DaysPerMonth
	for month := 0; month < c.Months; month++ {
		prices := path[days*month+1 : days*(month+1)+1]
		out.ElapsedMonths++
		for _, p := range prices {
			if p*scale < c.Lower {
				out.KnockedInCount++
				break
			}
		}
		if prices[len(prices)-1]*scale > c.Upper {
			out.KnockedOut = true
			break
		}
	}

	s0 := path[0] * scale
	out.Interest = s0 * c.Coupon * float64(out.ElapsedMonths-out.KnockedInCount)
	out.Payoff = out.Interest
	if !out.KnockedOut && out.KnockedInCount > 0 {
		final := path[len(path)-1] * scale
		out.Payoff = max(s0-final, 0) - out.Interest
	}
	return out
}

// Payoff es el resultado del vendedor para una trayectoria.
func (c PhoenixContract) Payoff(path []float64, scale float64) float64 {
	return c.Evaluate(path, scale).Payoff
}

// Phoenix valora un contrato sobre un PathSet ya simulado.
type Phoenix struct {
	Contract PhoenixContract
	Rate     float64
	Workers  int
}

func (p Phoenix) check(ps *PathSet) error {
	if err := p.Contract.Validate(); err != nil {
		return err
	}
	if ps == nil || ps.Paths() == 0 {
		return fmt.Errorf("empty path set: %w", domain.ErrWindowTooShort)
	}
	if need := p.Contract.Months * p.Contract.DaysPerMonth; ps.Steps() != need {
		return fmt.Errorf("path set has %d steps, contract needs %d: %w", ps.Steps(), need, domain.ErrMismatchedSeries)
	}
	return nil
}

// meanPayoff promedia el pago por trayectoria. Los parciales por bloque se
// suman en orden de bloque, así el resultado no depende de la planificación.
func (p Phoenix) meanPayoff(ctx context.Context, ps *PathSet, scale float64) (float64, error) {
	m := ps.Paths()
	partial := make([]float64, m) // una entrada por bloque como máximo
	chunks, err := forChunks(ctx, m, p.Workers, func(chunk, lo, hi int) error {
		buf := make([]float64, ps.Steps()+1)
		var sum float64
		for j := lo; j < hi; j++ {
			buf = ps.Path(j, buf)
			sum += p.Contract.Payoff(buf, scale)
		}
		partial[chunk] = sum
		return nil
	})
	if err != nil {
		return 0, err
	}
	var total float64
	for _, s := range partial[:chunks] {
		total += s
	}
	return total / float64(m), nil
}

// discount aplica interés simple sobre el plazo: 1/(1 + r·meses/12).
func (p Phoenix) discount(v float64) float64 {
	return v / (1 + p.Rate*float64(p.Contract.Months)/12)
}

// Value devuelve la media descontada del pago del vendedor.
func (p Phoenix) Value(ctx context.Context, ps *PathSet) (float64, error) {
	if err := p.check(ps); err != nil {
		return 0, fmt.Errorf("montecarlo.Phoenix.Value: %w", err)
	}
	mean, err := p.meanPayoff(ctx, ps, 1)
	if err != nil {
		return 0, fmt.Errorf("montecarlo.Phoenix.Value: %w", err)
	}
	return p.discount(mean), nil
}

// Delta estima ∂V/∂S por diferencias centradas. El bump escala la trayectoria
// entera por (1 ± bump), no solo el spot inicial: se reutiliza el mismo ruido
// en vez de simular de nuevo, a costa de mezclar nivel y realización.
func (p Phoenix) Delta(ctx context.Context, ps *PathSet, bump float64) (float64, error) {
	if err := p.check(ps); err != nil {
		return 0, fmt.Errorf("montecarlo.Phoenix.Delta: %w", err)
	}
	if bump <= 0 || bump >= 1 {
		bump = DefaultBump
	}
	up, err := p.meanPayoff(ctx, ps, 1+bump)
	if err != nil {
		return 0, fmt.Errorf("montecarlo.Phoenix.Delta: %w", err)
	}
	down, err := p.meanPayoff(ctx, ps, 1-bump)
	if err != nil {
		return 0, fmt.Errorf("montecarlo.Phoenix.Delta: %w", err)
	}
	return (p.discount(up) - p.discount(down)) / (2 * bump * ps.At(0, 0)), nil
}
