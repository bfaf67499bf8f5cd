package runner

// concurrent.go: worker pool para cálculos por ventana.
//
// Cada posición escribe solo su hueco del slice de resultados, así que el orden
// de salida es el de las posiciones y no depende del número de workers.

import (
	"context"
	"fmt"
	"log/slog"
	"runtime"
	"sync/atomic"
	"time"

	"golang.org/x/sync/errgroup"
	"golang.org/x/time/rate"
)

const progressInterval = 2 * time.Second

type outcome[T any] struct {
	value T
	ok    bool
}

// batch describe un lote de n posiciones independientes.
type batch struct {
	op      string
	n       int
	workers int
	policy  FailurePolicy
	dateOf  func(i int) time.Time // fecha con la que se reporta cada posición
}

// runBatch evalúa fn en cada posición con como mucho workers goroutines.
//
// Con PolicySkip un fallo se registra y la posición queda vacía; con
// PolicyAbort el primer fallo cancela el resto y se devuelve con su fecha.
// Si workers <= 0 usa runtime.NumCPU().
func runBatch[T any](ctx context.Context, b batch, fn func(ctx context.Context, i int) (T, error)) ([]outcome[T], int, error) {
	workers := b.workers
	if workers <= 0 {
		workers = runtime.NumCPU()
	}

	out := make([]outcome[T], b.n)
	var failures, done atomic.Int64
	progress := rate.Sometimes{Interval: progressInterval}

	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(workers)
	for i := 0; i < b.n; i++ {
		if gctx.Err() != nil {
			break
		}
		g.Go(func() error {
			if err := gctx.Err(); err != nil {
				return err
			}
			v, err := fn(gctx, i)
			if err != nil {
				date := b.dateOf(i).Format(time.DateOnly)
				if b.policy == PolicyAbort {
					return fmt.Errorf("%s %s: %w", b.op, date, err)
				}
				failures.Add(1)
				slog.Debug("window skipped", "op", b.op, "date", date, "err", err)
				return nil
			}
			out[i] = outcome[T]{value: v, ok: true}
			d := done.Add(1)
			progress.Do(func() {
				slog.Info("progress", "op", b.op, "done", d, "total", b.n)
			})
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return nil, int(failures.Load()), err
	}
	// La cancelación externa puede cortar el bucle sin que ninguna goroutine falle.
	if err := ctx.Err(); err != nil {
		return nil, int(failures.Load()), err
	}

	slog.Debug("batch complete",
		"op", b.op,
		"positions", b.n,
		"skipped", failures.Load(),
		"workers", workers,
	)
	return out, int(failures.Load()), nil
}
