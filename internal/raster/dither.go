package raster

// BuildDither returns the 16-row ordered-dither threshold matrix referenced
// by Options.Dither (spec.md §4.C "options.dither[y & 15]"). Each row holds
// one threshold byte per column phase, tiled across the image width by the
// caller. This is the standard 16x16 Bayer matrix scaled to 0-255, chosen
// because it is what the PNG path's row-threshold lookup expects and
// nothing in the retrieval pack ships a ready-made ordered-dither table.
func BuildDither() [16][]byte {
	const n = 16
	bayer := [n][n]int{}
	// Recursive Bayer construction: M(2k) built from M(k).
	base := [][]int{{0, 2}, {3, 1}}
	size := 2
	m := base
	for size < n {
		next := make([][]int, size*2)
		for i := range next {
			next[i] = make([]int, size*2)
		}
		for y := 0; y < size; y++ {
			for x := 0; x < size; x++ {
				v := m[y][x] * 4
				next[y][x] = v
				next[y][x+size] = v + 2
				next[y+size][x] = v + 3
				next[y+size][x+size] = v + 1
			}
		}
		m = next
		size *= 2
	}
	for y := 0; y < n; y++ {
		for x := 0; x < n; x++ {
			bayer[y][x] = m[y][x]
		}
	}

	var out [16][]byte
	for y := 0; y < n; y++ {
		row := make([]byte, n)
		for x := 0; x < n; x++ {
			row[x] = byte((bayer[y][x]*256 + n*n/2) / (n * n))
		}
		out[y] = row
	}
	return out
}

// thresholdAt returns the dither threshold for device column x, tiling the
// 16-wide row across the page.
func thresholdAt(row []byte, x int) byte {
	if len(row) == 0 {
		return 128
	}
	return row[x%len(row)]
}
