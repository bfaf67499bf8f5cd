package pricing

import (
	"fmt"
	"math"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/alejandrodnm/volbot/internal/domain"
)

func TestValue_KnownReference(t *testing.T) {
	call, err := Value(100, 100, 0.05, 0.2, 1)
	require.NoError(t, err)
	assert.InDelta(t, 10.4506, call, 1e-4)

	put, err := PutValue(100, 100, 0.05, 0.2, 1)
	require.NoError(t, err)
	assert.InDelta(t, 5.5735, put, 1e-4)

	v, err := Vega(100, 100, 0.05, 0.2, 1)
	require.NoError(t, err)
	assert.InDelta(t, 37.524, v, 1e-3)

	d, err := Delta(100, 100, 0.05, 0.2, 1)
	require.NoError(t, err)
	assert.InDelta(t, 0.6368, d, 1e-4)
}

func TestValue_PutCallParity(t *testing.T) {
	for _, k := range []float64{80, 100, 125} {
		call, err := Value(100, k, 0.03, 0.35, 0.75)
		require.NoError(t, err)
		put, err := PutValue(100, k, 0.03, 0.35, 0.75)
		require.NoError(t, err)
		assert.InDelta(t, 100-k*math.Exp(-0.03*0.75), call-put, 1e-9)
	}
}

func TestValue_DomainErrors(t *testing.T) {
	cases := []struct {
		name              string
		s0, k, sigma, mat float64
	}{
		{"zero sigma", 100, 100, 0, 1},
		{"negative maturity", 100, 100, 0.2, -1},
		{"zero spot", 0, 100, 0.2, 1},
		{"zero strike", 100, 0, 0.2, 1},
		{"nan sigma", 100, 100, math.NaN(), 1},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			_, err := Value(tc.s0, tc.k, 0.03, tc.sigma, tc.mat)
			assert.ErrorIs(t, err, domain.ErrNonPositive)
			_, err = Vega(tc.s0, tc.k, 0.03, tc.sigma, tc.mat)
			assert.ErrorIs(t, err, domain.ErrNonPositive)
		})
	}
}

func TestImpliedVolNewton_RoundTrip(t *testing.T) {
	for _, k := range []float64{95, 100, 105} {
		for _, sigma := range []float64{0.15, 0.3, 0.6} {
			for _, mat := range []float64{0.5, 1, 2} {
				name := fmt.Sprintf("K=%g/sigma=%g/T=%g", k, sigma, mat)
				t.Run(name, func(t *testing.T) {
					price, err := Value(100, k, 0.03, sigma, mat)
					require.NoError(t, err)

					o := Option{Kind: Call, Spot: 100, Strike: k, Rate: 0.03, T: mat}
					res, err := ImpliedVolNewton(o, price, NewtonOptions{})
					require.NoError(t, err)
					assert.InDelta(t, sigma, res.Sigma, 1e-4)
					assert.True(t, res.Converged)
					assert.Equal(t, DefaultIterations, res.Iterations)
				})
			}
		}
	}
}

func TestNewton_ZeroVegaDiverges(t *testing.T) {
	price := func(float64) float64 { return 1 }
	vega := func(float64) float64 { return 0 }

	res, err := Newton(price, vega, 2, NewtonOptions{Iterations: 10})
	assert.ErrorIs(t, err, domain.ErrDiverged)
	assert.Equal(t, 1, res.Iterations)
	assert.False(t, res.Converged)
}

func TestNewton_RunsAllIterationsWithoutConverging(t *testing.T) {
	// f(σ) = σ² con objetivo -1 no tiene raíz: Newton oscila sin divergir.
	price := func(s float64) float64 { return s * s }
	vega := func(s float64) float64 { return 2 * s }

	res, err := Newton(price, vega, -1, NewtonOptions{Iterations: 7, InitialSigma: 0.3})
	require.NoError(t, err)
	assert.Equal(t, 7, res.Iterations)
	assert.False(t, res.Converged)
}

func TestBrent_FindsRoot(t *testing.T) {
	root, err := Brent(func(s float64) float64 { return s*s*s - 0.027 }, 0.05, 1, 1e-10)
	require.NoError(t, err)
	assert.InDelta(t, 0.3, root, 1e-8)
}

func TestBrent_NoSignChange(t *testing.T) {
	_, err := Brent(func(s float64) float64 { return s + 1 }, 0.05, 1, 1e-10)
	assert.ErrorIs(t, err, domain.ErrNoRootInBracket)
}

func TestImpliedVol_BracketedPut(t *testing.T) {
	price, err := PutValue(100, 120, 0.02, 0.25, 1)
	require.NoError(t, err)

	o := Option{Kind: Put, Spot: 100, Strike: 120, Rate: 0.02, T: 1}
	sigma, err := ImpliedVol(o, price, SolverOptions{Method: MethodBracketed})
	require.NoError(t, err)
	assert.InDelta(t, 0.25, sigma, 1e-6)
}

func TestImpliedVol_BracketMissesTarget(t *testing.T) {
	// Precio por encima del valor con σ = 1: no hay raíz en [0.05, 1].
	o := Option{Kind: Call, Spot: 100, Strike: 100, Rate: 0, T: 1}
	_, err := ImpliedVol(o, 60, SolverOptions{Method: MethodBracketed})
	assert.ErrorIs(t, err, domain.ErrNoRootInBracket)
}

func TestParseMethod(t *testing.T) {
	m, err := ParseMethod("Brent")
	require.NoError(t, err)
	assert.Equal(t, MethodBracketed, m)

	m, err = ParseMethod("newton")
	require.NoError(t, err)
	assert.Equal(t, MethodNewton, m)

	_, err = ParseMethod("secant")
	assert.ErrorIs(t, err, domain.ErrInvalidModel)
}

func TestSteps(t *testing.T) {
	assert.Equal(t, 60, Steps(0.25, 240))
	assert.Equal(t, 168, Steps(0.7, 240))
}
