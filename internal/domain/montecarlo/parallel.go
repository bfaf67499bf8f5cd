package montecarlo

import (
	"context"
	"runtime"

	"golang.org/x/sync/errgroup"
)

// forChunks reparte [0, n) en bloques contiguos y ejecuta fn sobre cada uno con
// como mucho `workers` goroutines. fn recibe el índice del bloque para que el
// llamador acumule resultados parciales sin compartir estado.
func forChunks(ctx context.Context, n, workers int, fn func(chunk, lo, hi int) error) (int, error) {
	if workers <= 0 {
		workers = runtime.NumCPU()
	}
	if workers > n {
		workers = n
	}
	if workers < 1 {
		workers = 1
	}
	size := (n + workers - 1) / workers
	chunks := (n + size - 1) / size
	if n == 0 {
		chunks = 0
	}

	g, ctx := errgroup.WithContext(ctx)
	g.SetLimit(workers)
	for c := 0; c < chunks; c++ {
		lo := c * size
		hi := min(lo+size, n)
		g.Go(func() error {
			if err := ctx.Err(); err != nil {
				return err
			}
			return fn(c, lo, hi)
		})
	}
	return chunks, g.Wait()
}
