package pricing

import (
	"fmt"
	"math"

	"github.com/alejandrodnm/volbot/internal/domain"
)

// Steps convierte un plazo en años a sesiones: int(T·days).
// El pequeño margen evita que 0.7·240 = 167.999… trunque a 167.
func Steps(t, annualDays float64) int {
	return int(t*annualDays + 1e-9)
}

// HedgeCost reproduce la cobertura delta diaria de una call vendida at-the-money
// (K = S0 = path[0]) a lo largo de n = int(T·days) sesiones y devuelve el coste
// descontado a t=0. Usa path[0..n]; el resto del slice se ignora.
//
// En cada sesión se recalcula la delta con el plazo restante; en la última la
// delta pasa a 1 si el subyacente acaba por encima del strike y a 0 si no.
// La caja devenga r/days por sesión y absorbe cada compra o venta de acciones.
// Si la call acaba dentro del dinero se liquida entregando la acción contra el
// strike: al saldo de caja se le resta K, no S_n − K.
func HedgeCost(path []float64, r, sigma, t, annualDays float64) (float64, error) {
	n, err := checkHedge(path, sigma, t, annualDays)
	if err != nil {
		return 0, fmt.Errorf("pricing.HedgeCost: %w", err)
	}
	return hedgeCost(path, n, r, sigma, t, annualDays), nil
}

func checkHedge(path []float64, sigma, t, annualDays float64) (int, error) {
	if !(sigma > 0) || !(t > 0) || !(annualDays > 0) {
		return 0, fmt.Errorf("sigma=%g T=%g days=%g: %w", sigma, t, annualDays, domain.ErrNonPositive)
	}
	n := Steps(t, annualDays)
	if n < 1 || len(path) < n+1 {
		return 0, fmt.Errorf("path of %d prices for %d steps: %w", len(path), n, domain.ErrWindowTooShort)
	}
	for _, p := range path[:n+1] {
		if !(p > 0) {
			return 0, domain.ErrNonPositive
		}
	}
	return n, nil
}

func hedgeCost(path []float64, n int, r, sigma, t, annualDays float64) float64 {
	k := path[0]
	accrual := 1 + r/annualDays

	prev := delta(k, k, r, sigma, t)
	cash := k * prev * accrual
	for i := 1; i <= n; i++ {
		var d float64
		if i == n {
			if path[n] > k {
				d = 1
			}
		} else {
			d = delta(path[i], k, r, sigma, t-float64(i)/annualDays)
		}
		cash = (cash + (d-prev)*path[i]) * accrual
		prev = d
	}

	pl := cash
	if path[n] > k {
		pl -= k
	}
	return pl / (1 + r*t)
}

// HedgeImpliedVol resuelve BS(σ) − HedgeCost(σ) = 0 en modo acotado: la
// volatilidad para la que el precio teórico coincide con el coste real de
// cubrir la call sobre la trayectoria observada. No hay variante Newton porque
// el coste de réplica no tiene vega cerrada.
func HedgeImpliedVol(path []float64, r, t, annualDays float64, opts BracketOptions) (float64, error) {
	opts = opts.withDefaults()
	n, err := checkHedge(path, opts.Lo, t, annualDays)
	if err != nil {
		return 0, fmt.Errorf("pricing.HedgeImpliedVol: %w", err)
	}
	s0 := path[0]
	f := func(sigma float64) float64 {
		if sigma <= 0 {
			return math.NaN()
		}
		return callValue(s0, s0, r, sigma, t) - hedgeCost(path, n, r, sigma, t, annualDays)
	}
	sigma, err := Brent(f, opts.Lo, opts.Hi, opts.Tolerance)
	if err != nil {
		return 0, fmt.Errorf("pricing.HedgeImpliedVol: %w", err)
	}
	return sigma, nil
}
