package ports

import (
	"context"

	"github.com/alejandrodnm/volbot/internal/domain"
)

// PriceProvider entrega la serie histórica OHLC del subyacente, ordenada por fecha.
type PriceProvider interface {
	FetchOHLC(ctx context.Context) (domain.OHLC, error)
}

// ChainProvider entrega los snapshots diarios de la cadena de opciones,
// con el cierre del subyacente ya asignado a cada uno.
type ChainProvider interface {
	FetchChains(ctx context.Context) ([]domain.OptionChain, error)
}

// RateProvider entrega la curva de tasas libres de riesgo por fecha.
type RateProvider interface {
	FetchRates(ctx context.Context) (*domain.RateCurve, error)
}
