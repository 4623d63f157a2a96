package terrain

// HeightAt returns the bilinearly interpolated elevation at local grid
// position (u, v), where u runs along i and v along j. Positions outside the
// map are clamped to its edge.
func (h *Heightmap) HeightAt(u, v float64) float32 {
	if h == nil || h.Size == 0 {
		return 0
	}
	if h.Size == 1 {
		return h.Altitudes[0][0]
	}

	last := float64(h.Size - 1)
	u = clamp(u, 0, last)
	v = clamp(v, 0, last)

	i0 := int(u)
	j0 := int(v)
	if i0 >= h.Size-1 {
		i0 = h.Size - 2
	}
	if j0 >= h.Size-1 {
		j0 = h.Size - 2
	}

	fu := float32(clamp(u-float64(i0), 0, 1))
	fv := float32(clamp(v-float64(j0), 0, 1))

	// Lerp along i on both j edges, then between the edges.
	near := h.Altitudes[i0][j0]*(1-fu) + h.Altitudes[i0+1][j0]*fu
	far := h.Altitudes[i0][j0+1]*(1-fu) + h.Altitudes[i0+1][j0+1]*fu
	return near*(1-fv) + far*fv
}

func clamp(v, lo, hi float64) float64 {
	if v < lo {
		return lo
	}
	if v > hi {
		return hi
	}
	return v
}
