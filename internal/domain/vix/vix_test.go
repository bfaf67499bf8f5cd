package vix

import (
	"math"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/alejandrodnm/volbot/internal/domain"
	"github.com/alejandrodnm/volbot/internal/domain/pricing"
)

var tradeDate = time.Date(2018, 3, 1, 0, 0, 0, 0, time.UTC)

func quote(days int, strike, call, put float64) domain.OptionQuote {
	return domain.OptionQuote{
		Date:   tradeDate,
		Expiry: tradeDate.AddDate(0, 0, days),
		Strike: strike,
		Call:   call,
		Put:    put,
	}
}

// atmTerm: una única prima no nula en K = 100; las alas tienen prima cero y
// solo sirven para dar ΔK = 1 al strike central.
func atmTerm(days int) domain.Term {
	return domain.Term{
		Expiry: tradeDate.AddDate(0, 0, days),
		Days:   days,
		Quotes: []domain.OptionQuote{
			quote(days, 99, 1, 0),
			quote(days, 100, 0.5, 0.5),
			quote(days, 101, 0, 1),
		},
	}
}

func TestVariance_SingleStrikeClosedForm(t *testing.T) {
	tv, err := Variance(atmTerm(30), 0, Config{})
	require.NoError(t, err)

	tt := 30.0 / 365
	assert.InDelta(t, 100.0, tv.Forward, 1e-12)
	assert.Equal(t, 100.0, tv.K0)
	assert.InDelta(t, 2*0.5*1/(100*100*tt), tv.Variance, 1e-12)
}

func TestVariance_DiscountGrowth(t *testing.T) {
	const r = 0.05
	tv, err := Variance(atmTerm(30), r, Config{})
	require.NoError(t, err)

	tt := 30.0 / 365
	// F = 100 + 0·e^{rT}: sin término de ajuste.
	assert.InDelta(t, 2*0.5/(100*100*tt)*math.Exp(r*tt), tv.Variance, 1e-12)
}

func TestVariance_K0BelowForward(t *testing.T) {
	term := domain.Term{Days: 30, Quotes: []domain.OptionQuote{
		quote(30, 95, 6, 0.8),
		quote(30, 100, 2.6, 2.4), // |C−P| mínimo: F = 100.2
		quote(30, 105, 0.7, 5.5),
	}}
	tv, err := Variance(term, 0, Config{})
	require.NoError(t, err)
	assert.InDelta(t, 100.2, tv.Forward, 1e-12)
	assert.Equal(t, 100.0, tv.K0)
}

func TestVariance_InsufficientStrikes(t *testing.T) {
	term := domain.Term{Days: 30, Quotes: []domain.OptionQuote{
		quote(30, 100, 0.5, 0.5),
		quote(30, 101, math.NaN(), 1),
	}}
	_, err := Variance(term, 0, Config{})
	assert.ErrorIs(t, err, domain.ErrInsufficientStrikes)
}

func TestIndex_EqualVariances(t *testing.T) {
	near := TermVariance{Days: 20, T: 20.0 / 365, Variance: 0.04}
	next := TermVariance{Days: 40, T: 40.0 / 365, Variance: 0.04}
	idx, err := Index(near, next, Config{})
	require.NoError(t, err)
	assert.InDelta(t, 20.0, idx, 1e-9)
}

func TestIndex_SameExpiry(t *testing.T) {
	tv := TermVariance{Days: 30, T: 30.0 / 365, Variance: 0.04}
	_, err := Index(tv, tv, Config{})
	assert.ErrorIs(t, err, domain.ErrDegenerate)
}

func TestVarianceSwap_SkipsShortExpiry(t *testing.T) {
	chain := domain.OptionChain{Date: tradeDate, Spot: 100}
	// El vencimiento a 5 días tiene una franja inválida; debe ignorarse.
	chain.Quotes = append(chain.Quotes, quote(5, 100, 0.5, 0.5))
	chain.Quotes = append(chain.Quotes, atmTerm(20).Quotes...)
	chain.Quotes = append(chain.Quotes, atmTerm(40).Quotes...)

	res, err := VarianceSwap(chain, 0, Config{})
	require.NoError(t, err)
	assert.Equal(t, 20, res.Near.Days)
	assert.Equal(t, 40, res.Next.Days)

	near, err := Variance(atmTerm(20), 0, Config{})
	require.NoError(t, err)
	next, err := Variance(atmTerm(40), 0, Config{})
	require.NoError(t, err)
	want, err := Index(near, next, Config{})
	require.NoError(t, err)
	assert.InDelta(t, want, res.Index, 1e-12)
}

func TestVarianceSwap_MissingTerm(t *testing.T) {
	chain := domain.OptionChain{Date: tradeDate, Spot: 100, Quotes: atmTerm(20).Quotes}
	_, err := VarianceSwap(chain, 0, Config{})
	assert.ErrorIs(t, err, domain.ErrMissingTerm)
}

// bsChain genera cotizaciones Black-Scholes con volatilidad constante.
func bsChain(t *testing.T, sigma, r float64, strikes []float64, days ...int) domain.OptionChain {
	t.Helper()
	chain := domain.OptionChain{Date: tradeDate, Spot: 100}
	for _, d := range days {
		tt := float64(d) / 365
		for _, k := range strikes {
			c, err := pricing.Value(100, k, r, sigma, tt)
			require.NoError(t, err)
			p, err := pricing.PutValue(100, k, r, sigma, tt)
			require.NoError(t, err)
			chain.Quotes = append(chain.Quotes, quote(d, k, c, p))
		}
	}
	return chain
}

func TestWhaley_FlatSmileRecoversSigma(t *testing.T) {
	chain := bsChain(t, 0.25, 0.03, []float64{90, 95, 105, 110}, 20, 40)

	res, err := Whaley(chain, 0.03, Config{})
	require.NoError(t, err)
	assert.False(t, res.Fallback)
	assert.InDelta(t, 0.25, res.Index, 1e-4)
	assert.InDelta(t, 0.25, res.NearVol, 1e-4)
	require.Len(t, res.Legs, 4)
	for _, l := range res.Legs {
		assert.Equal(t, 5.0, l.Distance)
	}
}

func TestWhaley_FallbackWhenLegMissing(t *testing.T) {
	chain := bsChain(t, 0.25, 0.03, []float64{95, 105}, 20)
	// El siguiente vencimiento solo tiene strikes por encima del spot.
	next := bsChain(t, 0.25, 0.03, []float64{105, 110}, 40)
	chain.Quotes = append(chain.Quotes, next.Quotes...)

	res, err := Whaley(chain, 0.03, Config{})
	require.NoError(t, err)
	assert.True(t, res.Fallback)
	assert.InDelta(t, 0.25, res.Index, 1e-4)
}

func TestWhaley_NoLegs(t *testing.T) {
	chain := domain.OptionChain{Date: tradeDate, Spot: 100, Quotes: []domain.OptionQuote{
		quote(20, 105, math.NaN(), math.NaN()),
		quote(40, 95, math.NaN(), math.NaN()),
	}}
	_, err := Whaley(chain, 0.03, Config{})
	assert.ErrorIs(t, err, domain.ErrNoLegs)
}

func TestLeg_Vol(t *testing.T) {
	v, ok := Leg{CallVol: 0.2, PutVol: math.NaN()}.Vol()
	assert.True(t, ok)
	assert.Equal(t, 0.2, v)

	_, ok = Leg{CallVol: math.NaN(), PutVol: math.NaN()}.Vol()
	assert.False(t, ok)
}

func TestStrip_K0(t *testing.T) {
	s := strip{strikes: []float64{95, 100, 105}}
	tests := []struct {
		name string
		f    float64
		want int
	}{
		{"entre strikes", 102.5, 1},
		{"igual a un strike", 100, 1},
		{"bajo toda la franja", 90, 0},
		{"sobre toda la franja", 110, 2},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, s.k0(tt.f))
		})
	}
}
