package config

import (
	"fmt"
	"os"
	"strconv"

	"github.com/joho/godotenv"
	"gopkg.in/yaml.v3"
)

// Config es la configuración completa de volbot.
type Config struct {
	Estimator EstimatorConfig `yaml:"estimator"`
	Runner    RunnerConfig    `yaml:"runner"`
	Implied   ImpliedConfig   `yaml:"implied"`
	Phoenix   PhoenixConfig   `yaml:"phoenix"`
	VIX       VIXConfig       `yaml:"vix"`
	Rates     RatesConfig     `yaml:"rates"`
	Data      DataConfig      `yaml:"data"`
	Storage   StorageConfig   `yaml:"storage"`
	Log       LogConfig       `yaml:"log"`
}

// EstimatorConfig controla la volatilidad histórica rolling.
type EstimatorConfig struct {
	Model      string  `yaml:"model"` // nombre o lista separada por comas; "all" = los seis
	Window     int     `yaml:"window"`
	AnnualDays float64 `yaml:"annual_days"`
}

// RunnerConfig controla el paralelismo y la política de fallos por ventana.
type RunnerConfig struct {
	Workers int    `yaml:"workers"`  // 0 = NumCPU
	OnError string `yaml:"on_error"` // skip | abort
}

// ImpliedConfig controla la volatilidad implícita pseudo-MC y de cobertura.
type ImpliedConfig struct {
	TenorYears   float64 `yaml:"tenor_years"`
	AnnualDays   float64 `yaml:"annual_days"`
	Paths        int     `yaml:"paths"` // M ventanas históricas
	Iterations   int     `yaml:"iterations"`
	InitialSigma float64 `yaml:"initial_sigma"`
	BracketLo    float64 `yaml:"bracket_lo"`
	BracketHi    float64 `yaml:"bracket_hi"`
}

// PhoenixConfig describe el contrato y la tabla plazo × sigma.
type PhoenixConfig struct {
	Spot         float64   `yaml:"spot"`
	Tenors       []int     `yaml:"tenors"` // meses
	Sigmas       []float64 `yaml:"sigmas"`
	Upper        float64   `yaml:"upper"`  // barrera knock-out
	Lower        float64   `yaml:"lower"`  // barrera knock-in
	Coupon       float64   `yaml:"coupon"` // cupón mensual sobre el spot
	Rate         float64   `yaml:"rate"`
	Paths        int       `yaml:"paths"`
	DaysPerMonth int       `yaml:"days_per_month"`
	Bump         float64   `yaml:"bump"`
	Seed         uint64    `yaml:"seed"` // 0 = derivada del reloj y registrada en el log
}

// VIXConfig fija el calendario del índice.
type VIXConfig struct {
	Method      string  `yaml:"method"` // varswap | whaley | both
	MinNearDays int     `yaml:"min_near_days"`
	TargetDays  float64 `yaml:"target_days"`
	YearDays    float64 `yaml:"year_days"`
}

// RatesConfig controla la curva libre de riesgo.
type RatesConfig struct {
	DefaultRate float64 `yaml:"default_rate"`
}

// DataConfig apunta a los CSV de entrada.
type DataConfig struct {
	OHLCCSV    string `yaml:"ohlc_csv"`
	OptionsCSV string `yaml:"options_csv"`
	RatesCSV   string `yaml:"rates_csv"`
	SpotCSV    string `yaml:"spot_csv"`
}

// StorageConfig controla dónde se persisten las ejecuciones.
type StorageConfig struct {
	DSN string `yaml:"dsn"` // ruta al archivo SQLite, o ":memory:"
}

// LogConfig controla el formato y nivel de logging.
type LogConfig struct {
	Level  string `yaml:"level"`  // debug | info | warn | error
	Format string `yaml:"format"` // text | json
}

// Load carga la configuración desde el archivo YAML y el archivo .env si existe.
// Las variables de entorno sobreescriben los valores del YAML.
func Load(path string) (*Config, error) {
	// Cargar .env si existe (silencia error si no hay archivo)
	_ = godotenv.Load()

	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("config.Load: read %q: %w", path, err)
	}

	var cfg Config
	if err := yaml.Unmarshal(data, &cfg); err != nil {
		return nil, fmt.Errorf("config.Load: parse YAML: %w", err)
	}

	if err := applyEnvOverrides(&cfg); err != nil {
		return nil, fmt.Errorf("config.Load: %w", err)
	}
	setDefaults(&cfg)

	return &cfg, nil
}

// Default devuelve la configuración por defecto, sin archivo.
func Default() *Config {
	var cfg Config
	setDefaults(&cfg)
	return &cfg
}

// applyEnvOverrides sobreescribe valores con variables de entorno si están presentes.
func applyEnvOverrides(cfg *Config) error {
	if v := os.Getenv("LOG_LEVEL"); v != "" {
		cfg.Log.Level = v
	}
	if v := os.Getenv("LOG_FORMAT"); v != "" {
		cfg.Log.Format = v
	}
	if v := os.Getenv("VOLBOT_DB"); v != "" {
		cfg.Storage.DSN = v
	}
	if v := os.Getenv("VOLBOT_SEED"); v != "" {
		seed, err := strconv.ParseUint(v, 10, 64)
		if err != nil {
			return fmt.Errorf("VOLBOT_SEED %q: %w", v, err)
		}
		cfg.Phoenix.Seed = seed
	}
	return nil
}

// setDefaults asegura que los valores requeridos tengan valores sensatos.
func setDefaults(cfg *Config) {
	if cfg.Estimator.Model == "" {
		cfg.Estimator.Model = "yang_zhang"
	}
	if cfg.Estimator.Window <= 0 {
		cfg.Estimator.Window = 60
	}
	if cfg.Estimator.AnnualDays <= 0 {
		cfg.Estimator.AnnualDays = 240
	}

	if cfg.Runner.OnError == "" {
		cfg.Runner.OnError = "skip"
	}

	if cfg.Implied.TenorYears <= 0 {
		cfg.Implied.TenorYears = 0.25
	}
	if cfg.Implied.AnnualDays <= 0 {
		cfg.Implied.AnnualDays = 240
	}
	if cfg.Implied.Paths <= 0 {
		cfg.Implied.Paths = 1200
	}
	if cfg.Implied.Iterations <= 0 {
		cfg.Implied.Iterations = 50
	}
	if cfg.Implied.InitialSigma <= 0 {
		cfg.Implied.InitialSigma = 0.5
	}
	if cfg.Implied.BracketLo <= 0 {
		cfg.Implied.BracketLo = 0.05
	}
	if cfg.Implied.BracketHi <= 0 {
		cfg.Implied.BracketHi = 1.0
	}

	if cfg.Phoenix.Spot <= 0 {
		cfg.Phoenix.Spot = 100
	}
	if len(cfg.Phoenix.Tenors) == 0 {
		cfg.Phoenix.Tenors = []int{3, 6, 9, 12}
	}
	if len(cfg.Phoenix.Sigmas) == 0 {
		cfg.Phoenix.Sigmas = []float64{0.2, 0.25, 0.3, 0.35, 0.4}
	}
	if cfg.Phoenix.Upper <= 0 {
		cfg.Phoenix.Upper = 101
	}
	if cfg.Phoenix.Lower <= 0 {
		cfg.Phoenix.Lower = 85
	}
	if cfg.Phoenix.Coupon <= 0 {
		cfg.Phoenix.Coupon = 0.015
	}
	if cfg.Phoenix.Rate == 0 {
		cfg.Phoenix.Rate = 0.04
	}
	if cfg.Phoenix.Paths <= 0 {
		cfg.Phoenix.Paths = 50000
	}
	if cfg.Phoenix.DaysPerMonth <= 0 {
		cfg.Phoenix.DaysPerMonth = 20
	}
	if cfg.Phoenix.Bump <= 0 {
		cfg.Phoenix.Bump = 0.01
	}

	if cfg.VIX.Method == "" {
		cfg.VIX.Method = "both"
	}
	if cfg.VIX.MinNearDays <= 0 {
		cfg.VIX.MinNearDays = 7
	}
	if cfg.VIX.TargetDays <= 0 {
		cfg.VIX.TargetDays = 30
	}
	if cfg.VIX.YearDays <= 0 {
		cfg.VIX.YearDays = 365
	}

	if cfg.Rates.DefaultRate <= 0 {
		cfg.Rates.DefaultRate = 0.03
	}

	if cfg.Storage.DSN == "" {
		cfg.Storage.DSN = "volbot.db"
	}
	if cfg.Log.Level == "" {
		cfg.Log.Level = "info"
	}
	if cfg.Log.Format == "" {
		cfg.Log.Format = "text"
	}
}
