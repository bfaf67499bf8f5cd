package ports

import (
	"context"

	"github.com/alejandrodnm/volbot/internal/domain"
)

// Notifier presenta una ejecución terminada al usuario.
type Notifier interface {
	// Notify muestra el resumen de las series o la tabla phoenix.
	// En la implementación de consola, imprime una tabla formateada.
	Notify(ctx context.Context, run domain.Run) error
}
