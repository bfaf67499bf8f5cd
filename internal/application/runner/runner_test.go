package runner

import (
	"context"
	"errors"
	"math"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/alejandrodnm/volbot/internal/adapters/synthetic"
	"github.com/alejandrodnm/volbot/internal/domain"
	"github.com/alejandrodnm/volbot/internal/domain/montecarlo"
)

// --- mocks ---

type mockPrices struct {
	ohlc  domain.OHLC
	err   error
	calls atomic.Int32
}

func (m *mockPrices) FetchOHLC(context.Context) (domain.OHLC, error) {
	m.calls.Add(1)
	return m.ohlc, m.err
}

type mockRates struct {
	curve *domain.RateCurve
}

func (m *mockRates) FetchRates(context.Context) (*domain.RateCurve, error) {
	return m.curve, nil
}

type mockStorage struct {
	saved []domain.Run
	err   error
}

func (m *mockStorage) SaveRun(_ context.Context, run domain.Run) error {
	if m.err != nil {
		return m.err
	}
	m.saved = append(m.saved, run)
	return nil
}

func (m *mockStorage) GetRun(context.Context, string) (domain.Run, error) {
	return domain.Run{}, domain.ErrRunNotFound
}

func (m *mockStorage) ListRuns(context.Context, domain.RunKind, int) ([]domain.Run, error) {
	return m.saved, nil
}

func (m *mockStorage) Close() error { return nil }

type mockNotifier struct {
	runs []domain.Run
	err  error
}

func (m *mockNotifier) Notify(_ context.Context, run domain.Run) error {
	m.runs = append(m.runs, run)
	return m.err
}

// --- helpers ---

func day(i int) time.Time {
	return time.Date(2018, 1, 1, 0, 0, 0, 0, time.UTC).AddDate(0, 0, i)
}

// closeSeries construye una serie solo-close de n barras con un zigzag de ±1%.
func closeSeries(n int) domain.OHLC {
	var o domain.OHLC
	p := 100.0
	for i := 0; i < n; i++ {
		if i%2 == 0 {
			p *= 1.01
		} else {
			p /= 1.01
		}
		o.Dates = append(o.Dates, day(i))
		o.Close = append(o.Close, p)
	}
	return o
}

func newGenerator(days int) *synthetic.Generator {
	g := synthetic.NewGenerator(11)
	g.Days = days
	return g
}

// --- ParsePolicy / ParseVIXMethod ---

func TestParsePolicy(t *testing.T) {
	p, err := ParsePolicy("")
	require.NoError(t, err)
	assert.Equal(t, PolicySkip, p)

	p, err = ParsePolicy(" ABORT ")
	require.NoError(t, err)
	assert.Equal(t, PolicyAbort, p)

	_, err = ParsePolicy("retry")
	assert.Error(t, err)
}

func TestParseVIXMethod(t *testing.T) {
	m, err := ParseVIXMethod("")
	require.NoError(t, err)
	assert.Equal(t, MethodBoth, m)

	m, err = ParseVIXMethod("Whaley")
	require.NoError(t, err)
	assert.Equal(t, MethodWhaley, m)

	_, err = ParseVIXMethod("cboe")
	assert.Error(t, err)
}

// --- runBatch ---

func TestRunBatch_OrderIndependentOfWorkers(t *testing.T) {
	fn := func(_ context.Context, i int) (int, error) { return i * i, nil }
	for _, workers := range []int{1, 3, 16} {
		out, failures, err := runBatch(context.Background(), batch{
			op: "squares", n: 50, workers: workers, policy: PolicySkip, dateOf: day,
		}, fn)
		require.NoError(t, err)
		assert.Zero(t, failures)
		for i, o := range out {
			assert.True(t, o.ok)
			assert.Equal(t, i*i, o.value)
		}
	}
}

func TestRunBatch_SkipAndAbort(t *testing.T) {
	boom := errors.New("boom")
	fn := func(_ context.Context, i int) (int, error) {
		if i%10 == 3 {
			return 0, boom
		}
		return i, nil
	}

	out, failures, err := runBatch(context.Background(), batch{
		op: "skip", n: 30, workers: 4, policy: PolicySkip, dateOf: day,
	}, fn)
	require.NoError(t, err)
	assert.Equal(t, 3, failures)
	assert.False(t, out[3].ok)
	assert.True(t, out[4].ok)

	_, _, err = runBatch(context.Background(), batch{
		op: "abort", n: 30, workers: 1, policy: PolicyAbort, dateOf: day,
	}, fn)
	require.ErrorIs(t, err, boom)
	assert.Contains(t, err.Error(), "abort 2018-01-04")
}

func TestRunBatch_Cancelled(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	_, _, err := runBatch(ctx, batch{op: "c", n: 10, workers: 2, dateOf: day},
		func(context.Context, int) (int, error) { return 1, nil })
	assert.ErrorIs(t, err, context.Canceled)
}

// --- RollingVolatility ---

func TestRunner_RollingVolatility_WindowKeys(t *testing.T) {
	g := newGenerator(30)
	r := New(Config{Workers: 4}, g, nil, nil, nil, nil)

	run, err := r.RollingVolatility(context.Background(), []string{"realized", "parkinson", "yang_zhang"}, 10)
	require.NoError(t, err)
	require.Len(t, run.Series, 3)
	assert.Equal(t, domain.RunVolatility, run.Kind)
	assert.Equal(t, "realized,parkinson,yang_zhang", run.Label)

	o, err := g.FetchOHLC(context.Background())
	require.NoError(t, err)

	// Los modelos de retornos consumen W+1 barras; los de rango, W.
	realized := run.Series[0]
	require.Len(t, realized.Points, 30-11+1)
	assert.True(t, realized.Points[0].Date.Equal(o.Dates[10]))

	parkinson := run.Series[1]
	require.Len(t, parkinson.Points, 30-10+1)
	assert.True(t, parkinson.Points[0].Date.Equal(o.Dates[9]))

	yz := run.Series[2]
	assert.Len(t, yz.Points, 20)
	for _, s := range run.Series {
		assert.True(t, s.Points[len(s.Points)-1].Date.Equal(o.Dates[29]))
	}
}

func TestRunner_RollingVolatility_InvalidModel(t *testing.T) {
	prices := &mockPrices{ohlc: closeSeries(20)}
	r := New(Config{}, prices, nil, nil, nil, nil)

	_, err := r.RollingVolatility(context.Background(), []string{"realized", "magic"}, 5)
	assert.ErrorIs(t, err, domain.ErrInvalidModel)
	assert.Zero(t, prices.calls.Load(), "no debe cargar datos con un modelo inválido")
}

func TestRunner_RollingVolatility_CloseOnly(t *testing.T) {
	prices := &mockPrices{ohlc: closeSeries(20)}
	r := New(Config{}, prices, nil, nil, nil, nil)

	run, err := r.RollingVolatility(context.Background(), []string{"realized"}, 4)
	require.NoError(t, err)
	require.Len(t, run.Series[0].Points, 16)
	for _, p := range run.Series[0].Points {
		// Cuatro retornos alternos ±ln(1.01): media 0, varianza 4·l²/3.
		assert.InDelta(t, math.Log(1.01)*math.Sqrt(4.0/3*240), p.Value, 1e-9)
	}

	_, err = r.RollingVolatility(context.Background(), []string{"parkinson"}, 4)
	assert.ErrorIs(t, err, domain.ErrMismatchedSeries)
}

func TestRunner_RollingVolatility_TooShort(t *testing.T) {
	r := New(Config{}, &mockPrices{ohlc: closeSeries(5)}, nil, nil, nil, nil)
	_, err := r.RollingVolatility(context.Background(), []string{"realized"}, 5)
	assert.ErrorIs(t, err, domain.ErrWindowTooShort)
}

func TestRunner_RollingVolatility_FailurePolicy(t *testing.T) {
	o := closeSeries(12)
	o.Close[5] = 0 // invalida las ventanas que la contienen

	skip := New(Config{OnError: PolicySkip, Workers: 3}, &mockPrices{ohlc: o}, nil, nil, nil, nil)
	run, err := skip.RollingVolatility(context.Background(), []string{"realized"}, 3)
	require.NoError(t, err)
	// span 4 → 9 posiciones; las que empiezan en 2..5 contienen el cero.
	assert.Equal(t, 4, run.Failures)
	assert.Len(t, run.Series[0].Points, 5)

	abort := New(Config{OnError: PolicyAbort, Workers: 1}, &mockPrices{ohlc: o}, nil, nil, nil, nil)
	_, err = abort.RollingVolatility(context.Background(), []string{"realized"}, 3)
	require.ErrorIs(t, err, domain.ErrNonPositive)
	assert.Contains(t, err.Error(), o.Dates[5].Format(time.DateOnly))
}

func TestRunner_RollingVolatility_Deterministic(t *testing.T) {
	g := newGenerator(80)
	one, err := New(Config{Workers: 1}, g, nil, nil, nil, nil).RollingVolatility(context.Background(), []string{"garman_klass"}, 20)
	require.NoError(t, err)
	many, err := New(Config{Workers: 8}, g, nil, nil, nil, nil).RollingVolatility(context.Background(), []string{"garman_klass"}, 20)
	require.NoError(t, err)
	assert.Equal(t, one.Series, many.Series)
}

// --- RollingPseudoImplied / RollingHedgeImplied ---

func mondays(dates []time.Time) int {
	n := 0
	for _, d := range dates {
		if d.Weekday() == time.Monday {
			n++
		}
	}
	return n
}

func TestRunner_RollingPseudoImplied(t *testing.T) {
	g := newGenerator(200)
	cfg := Config{Implied: ImpliedConfig{TenorYears: 0.1, AnnualDays: 240, Paths: 50}}
	r := New(cfg, g, nil, g, nil, nil)

	run, err := r.RollingPseudoImplied(context.Background())
	require.NoError(t, err)
	assert.Equal(t, domain.RunImplied, run.Kind)

	o, err := g.FetchOHLC(context.Background())
	require.NoError(t, err)

	// n = 24, ventana de 74 cierres → 127 posiciones fechadas por su primera sesión.
	positions := 200 - 74 + 1
	pts := run.Series[0].Points
	assert.Equal(t, positions, len(pts)+run.Failures)
	assert.Equal(t, mondays(o.Dates[:positions]), run.Fallbacks)
	if run.Failures == 0 {
		assert.True(t, pts[0].Date.Equal(o.Dates[0]))
		assert.True(t, pts[len(pts)-1].Date.Equal(o.Dates[positions-1]))
	}
	for _, p := range pts {
		assert.Greater(t, p.Value, 0.0)
	}
}

func TestRunner_RollingHedgeImplied(t *testing.T) {
	g := newGenerator(100)
	cfg := Config{Implied: ImpliedConfig{TenorYears: 0.1, AnnualDays: 240}}
	r := New(cfg, g, nil, g, nil, nil)

	run, err := r.RollingHedgeImplied(context.Background())
	require.NoError(t, err)
	assert.Equal(t, domain.RunHedge, run.Kind)

	o, err := g.FetchOHLC(context.Background())
	require.NoError(t, err)

	positions := 100 - 24
	assert.Equal(t, positions, len(run.Series[0].Points)+run.Failures)
	assert.Equal(t, mondays(o.Dates[:positions]), run.Fallbacks)
	for _, p := range run.Series[0].Points {
		assert.GreaterOrEqual(t, p.Value, 0.05)
		assert.LessOrEqual(t, p.Value, 1.0)
	}
}

func TestRunner_RollingHedgeImplied_NoRates(t *testing.T) {
	r := New(Config{Implied: ImpliedConfig{TenorYears: 0.05}}, &mockPrices{ohlc: closeSeries(20)}, nil, nil, nil, nil)

	run, err := r.RollingHedgeImplied(context.Background())
	require.NoError(t, err)
	// Sin curva todas las búsquedas usan la tasa por defecto.
	assert.Equal(t, 20-12, run.Fallbacks)
}

func TestRunner_RollingHedgeImplied_TooShort(t *testing.T) {
	r := New(Config{}, &mockPrices{ohlc: closeSeries(30)}, nil, &mockRates{}, nil, nil)
	_, err := r.RollingHedgeImplied(context.Background())
	assert.ErrorIs(t, err, domain.ErrWindowTooShort)
}

// --- VIXSeries ---

func TestRunner_VIXSeries(t *testing.T) {
	g := newGenerator(30)
	g.StrikeStep = 0.02
	g.StrikeCount = 15
	r := New(Config{Workers: 2}, g, g, g, nil, nil)

	run, err := r.VIXSeries(context.Background(), MethodBoth)
	require.NoError(t, err)
	assert.Equal(t, domain.RunVIX, run.Kind)
	require.Len(t, run.Series, 2)

	varswap, ok := run.SeriesByName("vix_varswap")
	require.True(t, ok)
	whaley, ok := run.SeriesByName("vix_whaley")
	require.True(t, ok)

	require.Len(t, varswap.Points, 6)
	require.Len(t, whaley.Points, 6)
	for i := range whaley.Points {
		assert.InDelta(t, 100*g.Sigma, whaley.Points[i].Value, 0.1)
		assert.InDelta(t, 100*g.Sigma, varswap.Points[i].Value, 2.5)
	}
	assert.Equal(t, "0", run.Params["whaley_fallbacks"])
}

func TestRunner_VIXSeries_SingleMethod(t *testing.T) {
	g := newGenerator(10)
	r := New(Config{}, g, g, g, nil, nil)

	run, err := r.VIXSeries(context.Background(), MethodVarianceSwap)
	require.NoError(t, err)
	require.Len(t, run.Series, 1)
	assert.Equal(t, "vix_varswap", run.Series[0].Name)
}

// --- PhoenixGrid ---

func TestRunner_PhoenixGrid(t *testing.T) {
	cfg := Config{
		Workers: 4,
		Phoenix: montecarlo.GridParams{
			Template: montecarlo.PhoenixContract{Spot: 100, Upper: 101, Lower: 85, Coupon: 0.015},
			Sigmas:   []float64{0.2, 0.3},
			Tenors:   []int{1, 2},
			Rate:     0.04,
			Paths:    300,
			Seed:     9,
		},
	}
	r := New(cfg, nil, nil, nil, nil, nil)

	run, err := r.PhoenixGrid(context.Background())
	require.NoError(t, err)
	assert.Equal(t, domain.RunPhoenix, run.Kind)
	require.Len(t, run.Grid, 4)
	assert.Equal(t, 1, run.Grid[0].Months)
	assert.Equal(t, 0.3, run.Grid[1].Sigma)
	assert.Equal(t, "9", run.Params["seed"])
	assert.Equal(t, "1,2", run.Params["tenors"])

	again, err := r.PhoenixGrid(context.Background())
	require.NoError(t, err)
	assert.Equal(t, run.Grid, again.Grid)
}

func TestRunner_PhoenixGrid_Empty(t *testing.T) {
	r := New(Config{}, nil, nil, nil, nil, nil)
	_, err := r.PhoenixGrid(context.Background())
	assert.Error(t, err)
}

// --- Publish ---

func TestRunner_Publish(t *testing.T) {
	store := &mockStorage{}
	notifier := &mockNotifier{}
	r := New(Config{}, nil, nil, nil, store, notifier)
	fixed := time.Date(2024, 5, 1, 12, 0, 0, 0, time.UTC)
	r.now = func() time.Time { return fixed }

	run, err := r.Publish(context.Background(), domain.Run{Kind: domain.RunVIX})
	require.NoError(t, err)
	assert.NotEmpty(t, run.ID)
	assert.Equal(t, fixed, run.CreatedAt)
	require.Len(t, store.saved, 1)
	assert.Equal(t, run.ID, store.saved[0].ID)
	require.Len(t, notifier.runs, 1)
}

func TestRunner_Publish_Errors(t *testing.T) {
	failing := &mockStorage{err: errors.New("disk full")}
	notifier := &mockNotifier{}
	r := New(Config{}, nil, nil, nil, failing, notifier)

	_, err := r.Publish(context.Background(), domain.Run{Kind: domain.RunHedge})
	assert.ErrorContains(t, err, "disk full")
	assert.Empty(t, notifier.runs, "no se notifica lo que no se guardó")

	// Sin storage solo se notifica; un fallo de notificación no es un error.
	quiet := New(Config{}, nil, nil, nil, nil, &mockNotifier{err: errors.New("closed")})
	run, err := quiet.Publish(context.Background(), domain.Run{ID: "fixed", Kind: domain.RunHedge})
	require.NoError(t, err)
	assert.Equal(t, "fixed", run.ID)
}
