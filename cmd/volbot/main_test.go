package main

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/alejandrodnm/volbot/config"
	"github.com/alejandrodnm/volbot/internal/adapters/synthetic"
	"github.com/alejandrodnm/volbot/internal/application/runner"
	"github.com/alejandrodnm/volbot/internal/domain"
)

func TestModelNames(t *testing.T) {
	assert.Len(t, modelNames("all"), 6)
	assert.Equal(t, []string{"realized", "parkinson"}, modelNames(" realized, parkinson ,"))
	assert.Empty(t, modelNames(""))
}

func TestRunnerConfig(t *testing.T) {
	cfg := config.Default()
	cfg.Runner.OnError = "abort"
	cfg.Phoenix.Seed = 5

	rc, err := runnerConfig(cfg)
	require.NoError(t, err)
	assert.Equal(t, runner.PolicyAbort, rc.OnError)
	assert.Equal(t, 50, rc.Implied.Newton.Iterations)
	assert.Equal(t, 1.0, rc.Implied.Bracket.Hi)
	assert.Equal(t, uint64(5), rc.Phoenix.Seed)
	assert.Equal(t, 101.0, rc.Phoenix.Template.Upper)
	assert.Equal(t, 30.0, rc.VIX.TargetDays)

	cfg.Runner.OnError = "retry"
	_, err = runnerConfig(cfg)
	assert.Error(t, err)
}

func TestExecute_DryRunModes(t *testing.T) {
	cfg := config.Default()
	cfg.Estimator.Window = 20
	cfg.Implied.TenorYears = 0.1
	cfg.Implied.Paths = 50
	cfg.Phoenix.Paths = 200
	cfg.Phoenix.Tenors = []int{1}
	cfg.Phoenix.Sigmas = []float64{0.2}
	cfg.Phoenix.Seed = 3

	rc, err := runnerConfig(cfg)
	require.NoError(t, err)
	data := synthetic.NewGenerator(3)
	data.Days = 150
	r := runner.New(rc, data, data, data, nil, nil)

	want := map[string]domain.RunKind{
		"vol":     domain.RunVolatility,
		"implied": domain.RunImplied,
		"hedge":   domain.RunHedge,
		"phoenix": domain.RunPhoenix,
		"vix":     domain.RunVIX,
	}
	for mode, kind := range want {
		run, err := execute(context.Background(), r, mode, cfg)
		require.NoError(t, err, mode)
		assert.Equal(t, kind, run.Kind, mode)
	}

	_, err = execute(context.Background(), r, "plot", cfg)
	assert.ErrorContains(t, err, "unknown mode")
}
