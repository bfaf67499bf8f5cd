// Package montecarlo simula trayectorias de movimiento browniano geométrico y
// valora sobre ellas la nota autocancelable "phoenix".
//
// La aleatoriedad siempre entra por parámetro: una semilla explícita de la que
// se deriva un flujo PCG independiente por columna. El resultado depende solo
// de la semilla y no del número de workers.
package montecarlo

import (
	"math"
	"math/rand/v2"
)

// Uniform es cualquier fuente de uniformes en [0, 1). *rand.Rand la satisface.
type Uniform interface {
	Float64() float64
}

// BoxMuller devuelve una normal estándar a partir de dos uniformes:
// z = sqrt(−2·ln u1)·cos(2π·u2).
func BoxMuller(u Uniform) float64 {
	u1 := u.Float64()
	for u1 == 0 {
		u1 = u.Float64()
	}
	u2 := u.Float64()
	return math.Sqrt(-2*math.Log(u1)) * math.Cos(2*math.Pi*u2)
}

// pathRand devuelve el generador de la columna col para una semilla.
func pathRand(seed uint64, col int) *rand.Rand {
	return rand.New(rand.NewPCG(seed, uint64(col)))
}
