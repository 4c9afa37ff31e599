package hdr

// CropCenter crops a tightly packed RGBA8 buffer to the largest
// centered region matching targetAspect (width/height); targetAspect
// <= 0 returns the input unchanged (spec §4.E step 6: "crop
// centre-aligned to the requested aspect ratio, never upscaling").
func CropCenter(rgba []byte, width, height int, targetAspect float64) ([]byte, int, int) {
	if targetAspect <= 0 {
		return rgba, width, height
	}

	srcAspect := float64(width) / float64(height)
	cw, ch := width, height
	if srcAspect > targetAspect {
		cw = int(float64(height) * targetAspect)
	} else if srcAspect < targetAspect {
		ch = int(float64(width) / targetAspect)
	}
	if cw <= 0 {
		cw = 1
	}
	if ch <= 0 {
		ch = 1
	}
	if cw == width && ch == height {
		return rgba, width, height
	}

	x0 := (width - cw) / 2
	y0 := (height - ch) / 2
	out := make([]byte, cw*ch*4)
	for y := 0; y < ch; y++ {
		srcOff := ((y+y0)*width + x0) * 4
		dstOff := y * cw * 4
		copy(out[dstOff:dstOff+cw*4], rgba[srcOff:srcOff+cw*4])
	}
	return out, cw, ch
}
