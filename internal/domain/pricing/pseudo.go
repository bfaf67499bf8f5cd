package pricing

import (
	"fmt"

	"github.com/alejandrodnm/volbot/internal/domain"
)

// PseudoMCPrice trata M ventanas históricas solapadas de n sesiones como
// trayectorias Monte Carlo de una call at-the-money sobre spot unitario:
// media de max(close[n+i]/close[i] − 1, 0) para i < M. Los ceros cuentan en la media.
func PseudoMCPrice(closes []float64, n, m int) (float64, error) {
	if n < 1 || m < 1 {
		return 0, fmt.Errorf("pricing.PseudoMCPrice: n=%d M=%d: %w", n, m, domain.ErrNonPositive)
	}
	if len(closes) < n+m {
		return 0, fmt.Errorf("pricing.PseudoMCPrice: %d closes for n=%d M=%d: %w",
			len(closes), n, m, domain.ErrWindowTooShort)
	}
	var sum float64
	for i := 0; i < m; i++ {
		if !(closes[i] > 0) || !(closes[n+i] > 0) {
			return 0, fmt.Errorf("pricing.PseudoMCPrice: index %d: %w", i, domain.ErrNonPositive)
		}
		if ret := closes[n+i]/closes[i] - 1; ret > 0 {
			sum += ret
		}
	}
	return sum / float64(m), nil
}

// PseudoMCImpliedVol calibra por Newton la volatilidad de la call ATM (S0=K=1)
// cuyo precio es el pseudo-MC descontado a interés simple 1/(1+rT).
func PseudoMCImpliedVol(closes []float64, m int, r, t, annualDays float64, opts NewtonOptions) (NewtonResult, error) {
	if !(t > 0) || !(annualDays > 0) {
		return NewtonResult{}, fmt.Errorf("pricing.PseudoMCImpliedVol: T=%g days=%g: %w", t, annualDays, domain.ErrNonPositive)
	}
	price, err := PseudoMCPrice(closes, Steps(t, annualDays), m)
	if err != nil {
		return NewtonResult{}, fmt.Errorf("pricing.PseudoMCImpliedVol: %w", err)
	}
	o := Option{Kind: Call, Spot: 1, Strike: 1, Rate: r, T: t}
	res, err := ImpliedVolNewton(o, price/(1+r*t), opts)
	if err != nil {
		return res, fmt.Errorf("pricing.PseudoMCImpliedVol: %w", err)
	}
	return res, nil
}
