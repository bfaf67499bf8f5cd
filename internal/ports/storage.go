package ports

import (
	"context"

	"github.com/alejandrodnm/volbot/internal/domain"
)

// Storage persiste las ejecuciones terminadas.
type Storage interface {
	// SaveRun guarda la ejecución completa (series y tabla) en una transacción.
	SaveRun(ctx context.Context, run domain.Run) error

	// GetRun recupera una ejecución con todas sus series.
	// Devuelve domain.ErrRunNotFound si el ID no existe.
	GetRun(ctx context.Context, id string) (domain.Run, error)

	// ListRuns devuelve las últimas ejecuciones (sin puntos), más recientes primero.
	ListRuns(ctx context.Context, kind domain.RunKind, limit int) ([]domain.Run, error)

	// Close cierra la conexión a la base de datos limpiamente.
	Close() error
}
