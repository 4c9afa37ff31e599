package video

// openH264PixelCap is the maximum total pixel count OpenH264 will
// encode before the pipeline must down-scale (spec §4.G "OpenH264
// resolution cap. Total pixels > 9,437,184 triggers a down-scale to
// 1920x1080").
const openH264PixelCap = 9437184

// NeedsOpenH264Downscale reports whether width x height exceeds the
// cap OpenH264 imposes.
func NeedsOpenH264Downscale(width, height int) bool {
	return width*height > openH264PixelCap
}

// OpenH264DownscaleDims returns the aspect-preserved target
// resolution, height rounded to the nearest even number (spec §4.G
// "down-scale to 1920x1080 (aspect-preserved, height rounded to
// even)"). Sources at 16:9 or wider are capped to width 1920; sources
// narrower than 16:9 are instead capped to height 1080 and width
// computed. Both dimensions are rounded up to even.
func OpenH264DownscaleDims(width, height int) (int, int) {
	if !NeedsOpenH264Downscale(width, height) {
		return width, height
	}
	const capW, capH = 1920, 1080
	srcAspect := float64(width) / float64(height)
	capAspect := float64(capW) / float64(capH)

	var w, h int
	if srcAspect >= capAspect {
		w = capW
		h = int(float64(capW) / srcAspect)
	} else {
		h = capH
		w = int(float64(capH) * srcAspect)
	}
	if h%2 != 0 {
		h++
	}
	if w%2 != 0 {
		w++
	}
	return w, h
}
