package main

import (
	"math"

	vmath "github.com/Faultbox/chunkstream/pkg/math"
)

// walker is a synthetic observer tracing a slowly widening spiral, so long
// sessions keep crossing into chunks they have not visited.
type walker struct {
	pos     vmath.Vec3
	heading float64
	speed   float64
	turn    float64
}

func newWalker(speed float64) *walker {
	return &walker{speed: speed, turn: 0.002}
}

// Step advances one simulation step and returns the new position.
func (w *walker) Step() vmath.Vec3 {
	w.heading += w.turn
	w.turn *= 0.99999
	w.pos = w.pos.Add(vmath.Vec3{
		X: math.Cos(w.heading) * w.speed,
		Y: math.Sin(w.heading) * w.speed,
	})
	return w.pos
}

// Ground rests the observer on the terrain surface.
func (w *walker) Ground(h float64) {
	w.pos.Z = h
}
