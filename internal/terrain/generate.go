package terrain

import (
	"math"
	"math/rand/v2"

	"github.com/aquilax/go-perlin"
)

// flatEpsilon is the smallest raw range that is normalized. Anything flatter
// is replaced by the fallback field.
const flatEpsilon = 1e-6

// fallbackStream selects the PCG stream used for the fallback field so it
// never shares a sequence with other seed consumers.
const fallbackStream = 0x9e3779b97f4a7c15

// Generate samples p.Octaves of Perlin noise over a p.Size x p.Size grid at
// (i/p.Scale, j/p.Scale) and normalizes the result into [0, p.MaxHeight].
// The output depends only on p and seed.
func Generate(p Params, seed uint32) (*Heightmap, error) {
	if err := p.Validate(); err != nil {
		return nil, err
	}

	noise := perlin.NewPerlin(1/p.Persistence, p.Lacunarity, int32(p.Octaves), int64(seed))

	raw := make([][]float64, p.Size)
	for i := range raw {
		raw[i] = make([]float64, p.Size)
		for j := range raw[i] {
			raw[i][j] = noise.Noise2D(float64(i)/p.Scale, float64(j)/p.Scale)
		}
	}

	hm := &Heightmap{
		Altitudes: normalize(raw, p.MaxHeight, seed),
		Size:      p.Size,
		MaxHeight: p.MaxHeight,
	}
	if err := hm.Validate(); err != nil {
		return nil, err
	}
	return hm, nil
}

// normalize maps raw into [0, maxHeight]. NaN and -Inf become 0, +Inf becomes
// maxHeight. A field whose finite range is below flatEpsilon is discarded in
// favour of a uniform field drawn from a generator seeded by seed.
func normalize(raw [][]float64, maxHeight float32, seed uint32) [][]float32 {
	lo, hi := math.Inf(1), math.Inf(-1)
	for _, row := range raw {
		for _, v := range row {
			if math.IsNaN(v) || math.IsInf(v, 0) {
				continue
			}
			lo = math.Min(lo, v)
			hi = math.Max(hi, v)
		}
	}

	out := make([][]float32, len(raw))
	if !(hi-lo >= flatEpsilon) {
		rng := rand.New(rand.NewPCG(uint64(seed), fallbackStream))
		for i, row := range raw {
			out[i] = make([]float32, len(row))
			for j := range row {
				out[i][j] = clamp32(float32(rng.Float64())*maxHeight, maxHeight)
			}
		}
		return out
	}

	span := hi - lo
	top := float64(maxHeight)
	for i, row := range raw {
		out[i] = make([]float32, len(row))
		for j, v := range row {
			var n float64
			switch {
			case math.IsNaN(v), math.IsInf(v, -1):
				n = 0
			case math.IsInf(v, 1):
				n = top
			default:
				n = (v - lo) / span * top
			}
			out[i][j] = clamp32(float32(n), maxHeight)
		}
	}
	return out
}

func clamp32(v, hi float32) float32 {
	if v != v || v < 0 {
		return 0
	}
	if v > hi {
		return hi
	}
	return v
}
