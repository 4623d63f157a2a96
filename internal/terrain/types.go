// Package terrain generates deterministic, normalized heightmaps from
// multi-octave Perlin noise.
package terrain

import (
	"errors"
	"fmt"
	"math"
)

var (
	// ErrInvalidParams is returned when generation parameters are out of range.
	ErrInvalidParams = errors.New("terrain: invalid generation parameters")

	// ErrNonFinite is returned when a heightmap holds a NaN, an Inf or a
	// sample outside [0, MaxHeight].
	ErrNonFinite = errors.New("terrain: heightmap sample out of range")
)

// Params controls heightmap generation.
type Params struct {
	Size        int     // Samples per side
	Scale       float64 // Spatial frequency divisor for the noise field
	Octaves     int     // Noise octaves
	Persistence float64 // Amplitude falloff per octave
	Lacunarity  float64 // Frequency growth per octave
	MaxHeight   float32 // Upper bound of the normalized range
}

// DefaultParams returns 32x32 chunks sampled at scale 10 with 4 octaves,
// normalized into [0, 1].
func DefaultParams() Params {
	return Params{
		Size:        32,
		Scale:       10.0,
		Octaves:     4,
		Persistence: 0.5,
		Lacunarity:  2.0,
		MaxHeight:   1.0,
	}
}

// Validate checks that p can produce a finite heightmap.
func (p Params) Validate() error {
	switch {
	case p.Size <= 0:
		return fmt.Errorf("%w: size %d", ErrInvalidParams, p.Size)
	case !positiveFinite(p.Scale):
		return fmt.Errorf("%w: scale %v", ErrInvalidParams, p.Scale)
	case p.Octaves <= 0:
		return fmt.Errorf("%w: octaves %d", ErrInvalidParams, p.Octaves)
	case !positiveFinite(p.Persistence):
		return fmt.Errorf("%w: persistence %v", ErrInvalidParams, p.Persistence)
	case !positiveFinite(p.Lacunarity):
		return fmt.Errorf("%w: lacunarity %v", ErrInvalidParams, p.Lacunarity)
	case !positiveFinite(float64(p.MaxHeight)):
		return fmt.Errorf("%w: max height %v", ErrInvalidParams, p.MaxHeight)
	}
	return nil
}

// Heightmap is a square elevation field.
type Heightmap struct {
	Altitudes [][]float32 // [i][j], Size x Size
	Size      int
	MaxHeight float32 // All samples lie in [0, MaxHeight]
}

// At returns the sample at (i, j).
func (h *Heightmap) At(i, j int) float32 {
	return h.Altitudes[i][j]
}

// Flatten returns the samples in row-major order.
func (h *Heightmap) Flatten() []float32 {
	out := make([]float32, 0, h.Size*h.Size)
	for _, row := range h.Altitudes {
		out = append(out, row...)
	}
	return out
}

// Min returns the lowest sample.
func (h *Heightmap) Min() float32 {
	lo := float32(math.Inf(1))
	for _, row := range h.Altitudes {
		for _, v := range row {
			lo = min(lo, v)
		}
	}
	return lo
}

// Max returns the highest sample.
func (h *Heightmap) Max() float32 {
	hi := float32(math.Inf(-1))
	for _, row := range h.Altitudes {
		for _, v := range row {
			hi = max(hi, v)
		}
	}
	return hi
}

// Validate checks the range postcondition: every sample finite and inside
// [0, MaxHeight], and the matrix really is Size x Size.
func (h *Heightmap) Validate() error {
	if h == nil || h.Size <= 0 || len(h.Altitudes) != h.Size {
		return fmt.Errorf("%w: malformed heightmap", ErrNonFinite)
	}
	for i, row := range h.Altitudes {
		if len(row) != h.Size {
			return fmt.Errorf("%w: row %d has %d samples", ErrNonFinite, i, len(row))
		}
		for j, v := range row {
			f := float64(v)
			if math.IsNaN(f) || math.IsInf(f, 0) || v < 0 || v > h.MaxHeight {
				return fmt.Errorf("%w: sample (%d,%d) = %v", ErrNonFinite, i, j, v)
			}
		}
	}
	return nil
}

func positiveFinite(v float64) bool {
	return v > 0 && !math.IsInf(v, 0) && !math.IsNaN(v)
}
