package volatility

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/alejandrodnm/volbot/internal/domain"
)

func TestParseModel(t *testing.T) {
	cases := map[string]Model{
		"realized":       ModelRealized,
		"parkinson":      ModelParkinson,
		"Garman_Klass":   ModelGarmanKlass,
		"roger_satchell": ModelRogerSatchell,
		"garkla_yangzh":  ModelGarmanKlassYangZhang,
		" yang_zhang ":   ModelYangZhang,
	}
	for name, want := range cases {
		got, err := ParseModel(name)
		require.NoError(t, err, name)
		assert.Equal(t, want, got)
	}
}

func TestParseModel_Unknown(t *testing.T) {
	_, err := ParseModel("realized()")
	assert.ErrorIs(t, err, domain.ErrInvalidModel)
}

func TestModel_Span(t *testing.T) {
	assert.Equal(t, 61, ModelRealized.Span(60))
	assert.Equal(t, 60, ModelParkinson.Span(60))
	assert.Equal(t, 60, ModelGarmanKlass.Span(60))
	assert.Equal(t, 60, ModelRogerSatchell.Span(60))
	assert.Equal(t, 61, ModelGarmanKlassYangZhang.Span(60))
	assert.Equal(t, 61, ModelYangZhang.Span(60))
}

func TestModel_EstimateInvalid(t *testing.T) {
	_, err := Model(99).Estimate(domain.OHLC{}, 240)
	assert.ErrorIs(t, err, domain.ErrInvalidModel)
	assert.Equal(t, "model(99)", Model(99).String())
}

func TestModel_EstimateCloseOnlySeries(t *testing.T) {
	w := domain.OHLC{Close: []float64{100, 101, 100, 102}}
	w.Dates = make([]time.Time, 4)
	vol, err := ModelRealized.Estimate(w, 0) // 0 → DefaultAnnualDays
	require.NoError(t, err)
	assert.Greater(t, vol, 0.0)

	_, err = ModelParkinson.Estimate(w, 240)
	assert.ErrorIs(t, err, domain.ErrWindowTooShort)
}
