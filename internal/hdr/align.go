package hdr

// TileOffsets holds the per-tile (dx, dy) motion vector found for one
// non-reference frame during pyramid alignment (spec §4.E step 2:
// "Align every non-reference frame to the reference using a
// coarse-to-fine tile-based search").
type TileOffsets struct {
	TileSize    int
	TilesX      int
	TilesY      int
	DX, DY      []int // length TilesX*TilesY, row-major
}

// pyramidLevels is the number of pyramid levels, full resolution
// included (so resolution is halved pyramidLevels-1 times), matching the teacher's coarse-to-fine motion
// search used for thermal-probe frame comparison, generalized here to
// tile-granular HDR+ alignment.
const pyramidLevels = 3

// searchRadius bounds the per-level integer-pixel search window.
const searchRadius = 4

// AlignPyramid finds, for each tileSize x tileSize tile of ref, the
// (dx, dy) integer offset in cur that best matches it by sum of
// absolute luma differences, searched coarsest-level first and refined
// at each finer level (spec §4.E step 2). ref and cur are tightly
// packed RGBA8 buffers of identical width/height.
func AlignPyramid(ref, cur []byte, width, height, tileSize int) TileOffsets {
	tilesX := (width + tileSize - 1) / tileSize
	tilesY := (height + tileSize - 1) / tileSize
	out := TileOffsets{TileSize: tileSize, TilesX: tilesX, TilesY: tilesY, DX: make([]int, tilesX*tilesY), DY: make([]int, tilesX*tilesY)}

	refLuma := toLuma(ref, width, height)
	curLuma := toLuma(cur, width, height)

	// Build a simple box-filtered pyramid of both luma planes.
	refLevels := buildPyramid(refLuma, width, height, pyramidLevels)
	curLevels := buildPyramid(curLuma, width, height, pyramidLevels)

	for ty := 0; ty < tilesY; ty++ {
		for tx := 0; tx < tilesX; tx++ {
			x0 := tx * tileSize
			y0 := ty * tileSize
			x1 := min(x0+tileSize, width)
			y1 := min(y0+tileSize, height)

			dx, dy := 0, 0
			for lvl := pyramidLevels - 1; lvl >= 0; lvl-- {
				shift := uint(lvl)
				lw := width >> shift
				lh := height >> shift
				lx0, ly0, lx1, ly1 := x0>>shift, y0>>shift, x1>>shift, y1>>shift
				if lx1 <= lx0 || ly1 <= ly0 || lx1 > lw || ly1 > lh {
					continue
				}
				dx, dy = refineOffset(refLevels[lvl], curLevels[lvl], lw, lh, lx0, ly0, lx1, ly1, dx*2, dy*2)
			}
			out.DX[ty*tilesX+tx] = dx
			out.DY[ty*tilesX+tx] = dy
		}
	}
	return out
}

func toLuma(rgba []byte, width, height int) []float64 {
	out := make([]float64, width*height)
	for i := 0; i < width*height; i++ {
		r, g, b := float64(rgba[i*4]), float64(rgba[i*4+1]), float64(rgba[i*4+2])
		out[i] = 0.299*r + 0.587*g + 0.114*b
	}
	return out
}

// buildPyramid returns levels[0..n-1] where level 0 is full resolution
// and each subsequent level is a 2x2 box-downsampled copy.
func buildPyramid(luma []float64, width, height, levels int) [][]float64 {
	out := make([][]float64, levels)
	out[0] = luma
	w, h := width, height
	for l := 1; l < levels; l++ {
		nw, nh := (w+1)/2, (h+1)/2
		down := make([]float64, nw*nh)
		prev := out[l-1]
		for y := 0; y < nh; y++ {
			for x := 0; x < nw; x++ {
				sx, sy := x*2, y*2
				sum, n := 0.0, 0
				for oy := 0; oy < 2; oy++ {
					for ox := 0; ox < 2; ox++ {
						px, py := sx+ox, sy+oy
						if px < w && py < h {
							sum += prev[py*w+px]
							n++
						}
					}
				}
				down[y*nw+x] = sum / float64(n)
			}
		}
		out[l] = down
		w, h = nw, nh
	}
	return out
}

// refineOffset searches a small window around (guessDX, guessDY) for
// the (dx, dy) minimizing sum of absolute differences between ref's
// tile [x0,x1)x[y0,y1) and the same tile shifted in cur.
func refineOffset(ref, cur []float64, width, height, x0, y0, x1, y1, guessDX, guessDY int) (int, int) {
	bestDX, bestDY := guessDX, guessDY
	bestCost := tileSAD(ref, cur, width, height, x0, y0, x1, y1, guessDX, guessDY)

	for dy := -searchRadius; dy <= searchRadius; dy++ {
		for dx := -searchRadius; dx <= searchRadius; dx++ {
			cdx, cdy := guessDX+dx, guessDY+dy
			cost := tileSAD(ref, cur, width, height, x0, y0, x1, y1, cdx, cdy)
			if cost < bestCost {
				bestCost = cost
				bestDX, bestDY = cdx, cdy
			}
		}
	}
	return bestDX, bestDY
}

func tileSAD(ref, cur []float64, width, height, x0, y0, x1, y1, dx, dy int) float64 {
	var sum float64
	n := 0
	for y := y0; y < y1; y++ {
		cy := y + dy
		if cy < 0 || cy >= height {
			continue
		}
		for x := x0; x < x1; x++ {
			cx := x + dx
			if cx < 0 || cx >= width {
				continue
			}
			d := ref[y*width+x] - cur[cy*width+cx]
			if d < 0 {
				d = -d
			}
			sum += d
			n++
		}
	}
	if n == 0 {
		return 1e18
	}
	return sum / float64(n)
}

func min(a, b int) int {
	if a < b {
		return a
	}
	return b
}
