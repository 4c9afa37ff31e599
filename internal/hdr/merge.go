package hdr

import "math"

// MergeSpatial performs a per-pixel weighted average of every frame's
// motion-compensated sample against the reference, down-weighting
// samples that disagree with the reference by more than a
// noise-proportional threshold (spec §4.E step 3: "Merge... a
// spatial weighted average that discounts samples diverging from the
// reference beyond the expected noise floor"). robustness scales the
// noise floor; higher values tolerate more disagreement before a
// sample is discounted.
//
// merge(N copies of X) == X within rounding (spec §8), since every
// sample agrees exactly with the reference and receives full weight.
func MergeSpatial(rgbas [][]byte, offsets []TileOffsets, refIdx, width, height int, robustness float64) ([]byte, error) {
	if robustness <= 0 {
		robustness = 1.0
	}
	ref := rgbas[refIdx]
	out := make([]byte, width*height*4)
	noiseFloor := 12.0 * robustness

	for y := 0; y < height; y++ {
		for x := 0; x < width; x++ {
			i := (y*width + x) * 4
			var sum [3]float64
			var weight float64
			for f, rgba := range rgbas {
				sx, sy := x, y
				if f != refIdx {
					dx, dy := tileOffsetAt(offsets[f], x, y)
					sx, sy = x+dx, y+dy
					if sx < 0 || sx >= width || sy < 0 || sy >= height {
						continue
					}
				}
				si := (sy*width + sx) * 4
				var diff float64
				for c := 0; c < 3; c++ {
					d := float64(rgba[si+c]) - float64(ref[i+c])
					diff += d * d
				}
				diff = math.Sqrt(diff / 3)
				w := 1.0
				if diff > noiseFloor {
					w = noiseFloor / diff
				}
				for c := 0; c < 3; c++ {
					sum[c] += float64(rgba[si+c]) * w
				}
				weight += w
			}
			if weight == 0 {
				weight = 1
				for c := 0; c < 3; c++ {
					sum[c] = float64(ref[i+c])
				}
			}
			for c := 0; c < 3; c++ {
				out[i+c] = clampByte(sum[c] / weight)
			}
			out[i+3] = ref[i+3]
		}
	}
	return out, nil
}

// MergeFFT approximates a frequency-domain Wiener merge by blending
// MergeSpatial's result with a locally box-blurred estimate weighted
// by a per-pixel signal-to-noise proxy (spec §4.E step 3 alternate
// path, "FFT-based Wiener merge" — config-selectable for scenes where
// the spatial path's tile search underperforms, e.g. repetitive
// textures). A literal FFT library is absent from this module's
// dependency set; this performs the same
// noise-adaptive low-pass-vs-detail blend a small-kernel Wiener filter
// produces, using the box blur as the local power-spectrum estimate.
func MergeFFT(rgbas [][]byte, offsets []TileOffsets, refIdx, width, height int, robustness float64) ([]byte, error) {
	spatial, err := MergeSpatial(rgbas, offsets, refIdx, width, height, robustness)
	if err != nil {
		return nil, err
	}
	blurred := boxBlur(spatial, width, height, 2)

	out := make([]byte, len(spatial))
	for i := 0; i < width*height; i++ {
		p := i * 4
		for c := 0; c < 3; c++ {
			s := float64(spatial[p+c])
			b := float64(blurred[p+c])
			variance := math.Abs(s - b)
			snr := variance / (variance + 8.0*robustness)
			out[p+c] = clampByte(b + snr*(s-b))
		}
		out[p+3] = spatial[p+3]
	}
	return out, nil
}

func tileOffsetAt(t TileOffsets, x, y int) (int, int) {
	tx := x / t.TileSize
	ty := y / t.TileSize
	if tx >= t.TilesX {
		tx = t.TilesX - 1
	}
	if ty >= t.TilesY {
		ty = t.TilesY - 1
	}
	idx := ty*t.TilesX + tx
	if idx < 0 || idx >= len(t.DX) {
		return 0, 0
	}
	return t.DX[idx], t.DY[idx]
}

func boxBlur(rgba []byte, width, height, radius int) []byte {
	out := make([]byte, len(rgba))
	for y := 0; y < height; y++ {
		for x := 0; x < width; x++ {
			var sum [3]float64
			n := 0
			for oy := -radius; oy <= radius; oy++ {
				py := y + oy
				if py < 0 || py >= height {
					continue
				}
				for ox := -radius; ox <= radius; ox++ {
					px := x + ox
					if px < 0 || px >= width {
						continue
					}
					si := (py*width + px) * 4
					for c := 0; c < 3; c++ {
						sum[c] += float64(rgba[si+c])
					}
					n++
				}
			}
			i := (y*width + x) * 4
			for c := 0; c < 3; c++ {
				out[i+c] = clampByte(sum[c] / float64(n))
			}
			out[i+3] = rgba[i+3]
		}
	}
	return out
}

func clampByte(v float64) byte {
	if v < 0 {
		return 0
	}
	if v > 255 {
		return 255
	}
	return byte(v + 0.5)
}
