package terrain

// seedMultiplier spreads the x index before folding y in.
const seedMultiplier = 1000

// seedModulus keeps seeds inside the 32-bit unsigned range.
const seedModulus = 1<<32 - 1

// SeedFor derives the generation seed for grid cell (x, y) as
// |x*1000 + y| mod (2^32 - 1). Collisions are possible and harmless; the
// result depends on nothing but the pair.
func SeedFor(x, y int) uint32 {
	v := int64(x)*seedMultiplier + int64(y)
	var u uint64
	if v < 0 {
		u = uint64(-(v + 1)) + 1
	} else {
		u = uint64(v)
	}
	return uint32(u % seedModulus)
}
