// Package synthetic genera datos de mercado deterministas para -dry-run y tests:
// una serie OHLC simulada por GBM y cadenas de opciones valoradas con
// Black-Scholes a volatilidad constante.
package synthetic

import (
	"context"
	"fmt"
	"math"
	"time"

	"github.com/alejandrodnm/volbot/internal/domain"
	"github.com/alejandrodnm/volbot/internal/domain/montecarlo"
	"github.com/alejandrodnm/volbot/internal/domain/pricing"
)

// Cada sesión se simula en cuatro tramos: apertura, dos intermedios y cierre.
const (
	ticksPerDay    = 4
	sessionsPerMon = montecarlo.DefaultDaysPerMonth
	calendarYear   = 365.0
)

// Generator implementa ports.PriceProvider, ports.ChainProvider y ports.RateProvider.
type Generator struct {
	Spot    float64
	Rate    float64
	Sigma   float64
	Days    int
	Start   time.Time
	Seed    uint64
	Workers int

	ExpiryDays  []int   // días naturales hasta cada vencimiento (default 25, 55, 85)
	StrikeStep  float64 // separación entre strikes como fracción del spot (default 0.05)
	StrikeCount int     // strikes a cada lado del ATM (default 4)
	ChainEvery  int     // una cadena cada N sesiones (default 5)
}

// NewGenerator devuelve un generador con valores razonables para -dry-run.
func NewGenerator(seed uint64) *Generator {
	return &Generator{
		Spot:  3.0,
		Rate:  0.03,
		Sigma: 0.22,
		Days:  480,
		Start: time.Date(2016, 1, 4, 0, 0, 0, 0, time.UTC),
		Seed:  seed,
	}
}

func (g *Generator) withDefaults() Generator {
	c := *g
	if len(c.ExpiryDays) == 0 {
		c.ExpiryDays = []int{25, 55, 85}
	}
	if c.StrikeStep <= 0 {
		c.StrikeStep = 0.05
	}
	if c.StrikeCount <= 0 {
		c.StrikeCount = 4
	}
	if c.ChainEvery <= 0 {
		c.ChainEvery = 5
	}
	if c.Start.IsZero() {
		c.Start = time.Date(2016, 1, 4, 0, 0, 0, 0, time.UTC)
	}
	return c
}

// FetchOHLC simula Days sesiones. Open es el primer tramo de la sesión
// (hay gap overnight respecto al cierre anterior), High/Low el extremo de los
// cuatro tramos y Close el último.
func (g *Generator) FetchOHLC(ctx context.Context) (domain.OHLC, error) {
	c := g.withDefaults()
	if c.Days < 1 {
		return domain.OHLC{}, fmt.Errorf("synthetic.FetchOHLC: days %d: %w", c.Days, domain.ErrNonPositive)
	}

	months := (c.Days + sessionsPerMon - 1) / sessionsPerMon
	ps, err := montecarlo.SimulatePaths(ctx, montecarlo.PathParams{
		Spot:         c.Spot,
		Rate:         c.Rate,
		Sigma:        c.Sigma,
		Months:       months,
		DaysPerMonth: sessionsPerMon * ticksPerDay,
		Paths:        1,
		Seed:         c.Seed,
		Workers:      1,
	})
	if err != nil {
		return domain.OHLC{}, fmt.Errorf("synthetic.FetchOHLC: %w", err)
	}
	path := ps.Path(0, nil)

	bars := make([]domain.Bar, c.Days)
	dates := tradingDays(c.Start, c.Days)
	for d := range bars {
		ticks := path[d*ticksPerDay+1 : (d+1)*ticksPerDay+1]
		hi, lo := ticks[0], ticks[0]
		for _, p := range ticks[1:] {
			hi = math.Max(hi, p)
			lo = math.Min(lo, p)
		}
		bars[d] = domain.Bar{
			Date:  dates[d],
			Open:  ticks[0],
			High:  hi,
			Low:   lo,
			Close: ticks[len(ticks)-1],
		}
	}

	o, err := domain.NewOHLC(bars)
	if err != nil {
		return domain.OHLC{}, fmt.Errorf("synthetic.FetchOHLC: %w", err)
	}
	return o, nil
}

// FetchRates devuelve una curva plana con todas las sesiones salvo los lunes,
// que quedan sin dato y ejercitan el fallback.
func (g *Generator) FetchRates(_ context.Context) (*domain.RateCurve, error) {
	c := g.withDefaults()
	curve := domain.NewRateCurve(c.Rate)
	for _, d := range tradingDays(c.Start, c.Days) {
		if d.Weekday() == time.Monday {
			continue
		}
		curve.Set(d, c.Rate)
	}
	return curve, nil
}

// FetchChains valora una cadena cada ChainEvery sesiones a volatilidad Sigma.
func (g *Generator) FetchChains(ctx context.Context) ([]domain.OptionChain, error) {
	c := g.withDefaults()
	o, err := g.FetchOHLC(ctx)
	if err != nil {
		return nil, fmt.Errorf("synthetic.FetchChains: %w", err)
	}

	var chains []domain.OptionChain
	for i := 0; i < o.Len(); i += c.ChainEvery {
		chain, err := c.chain(o.Dates[i], o.Close[i])
		if err != nil {
			return nil, fmt.Errorf("synthetic.FetchChains: %s: %w", o.Dates[i].Format(time.DateOnly), err)
		}
		chains = append(chains, chain)
	}
	return chains, nil
}

func (c Generator) chain(date time.Time, spot float64) (domain.OptionChain, error) {
	chain := domain.OptionChain{Date: date, Spot: spot}
	atm := roundTo(spot, c.StrikeStep*c.Spot)
	for _, days := range c.ExpiryDays {
		expiry := date.AddDate(0, 0, days)
		t := float64(days) / calendarYear
		for k := -c.StrikeCount; k <= c.StrikeCount; k++ {
			strike := atm + float64(k)*c.StrikeStep*c.Spot
			if strike <= 0 {
				continue
			}
			call, err := pricing.Value(spot, strike, c.Rate, c.Sigma, t)
			if err != nil {
				return domain.OptionChain{}, err
			}
			put, err := pricing.PutValue(spot, strike, c.Rate, c.Sigma, t)
			if err != nil {
				return domain.OptionChain{}, err
			}
			chain.Quotes = append(chain.Quotes, domain.OptionQuote{
				Date:   date,
				Expiry: expiry,
				Strike: strike,
				Call:   call,
				Put:    put,
			})
		}
	}
	return chain, nil
}

// --- helpers internos ---

// tradingDays devuelve n días laborables a partir de start (incluido si lo es).
func tradingDays(start time.Time, n int) []time.Time {
	out := make([]time.Time, 0, n)
	for d := start; len(out) < n; d = d.AddDate(0, 0, 1) {
		if wd := d.Weekday(); wd == time.Saturday || wd == time.Sunday {
			continue
		}
		out = append(out, d)
	}
	return out
}

func roundTo(v, step float64) float64 {
	if step <= 0 {
		return v
	}
	return math.Round(v/step) * step
}
