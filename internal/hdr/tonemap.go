package hdr

import "math"

// ToneMap applies shadow lift and local-contrast enhancement in place
// over a tightly packed RGBA8 buffer, then soft-clips highlights (spec
// §4.E step 4: "shadow_boost lifts dark tones on a log curve,
// local_contrast sharpens mid-frequency detail via unsharp mask, and
// highlights are soft-clipped rather than hard-clamped").
func ToneMap(rgba []byte, width, height int, shadowBoost, localContrast float64) {
	if shadowBoost > 0 {
		applyShadowBoost(rgba, width, height, shadowBoost)
	}
	if localContrast > 0 {
		applyLocalContrast(rgba, width, height, localContrast)
	}
	applyHighlightSoftClip(rgba, width, height)
}

// applyShadowBoost lifts shadows via a log curve: out = 255 *
// log1p(boost * in/255) / log1p(boost). At boost=0 this is identity;
// higher values lift dark tones more than bright ones.
func applyShadowBoost(rgba []byte, width, height int, boost float64) {
	norm := math.Log1p(boost)
	if norm == 0 {
		return
	}
	for i := 0; i < width*height; i++ {
		p := i * 4
		for c := 0; c < 3; c++ {
			v := float64(rgba[p+c]) / 255.0
			lifted := math.Log1p(boost*v) / norm
			rgba[p+c] = clampByte(lifted * 255.0)
		}
	}
}

// applyLocalContrast runs a unsharp-mask pass: out = in + amount*(in -
// blur(in)).
func applyLocalContrast(rgba []byte, width, height int, amount float64) {
	blurred := boxBlur(rgba, width, height, 3)
	for i := 0; i < width*height; i++ {
		p := i * 4
		for c := 0; c < 3; c++ {
			in := float64(rgba[p+c])
			lp := float64(blurred[p+c])
			rgba[p+c] = clampByte(in + amount*(in-lp))
		}
	}
}

// applyHighlightSoftClip rolls off values above 235 toward 255 with a
// smooth curve instead of hard-clamping, preserving some detail in
// bright regions (spec §4.E step 4 "highlights are soft-clipped").
func applyHighlightSoftClip(rgba []byte, width, height int) {
	const knee = 235.0
	const ceiling = 255.0
	span := ceiling - knee
	for i := 0; i < width*height; i++ {
		p := i * 4
		for c := 0; c < 3; c++ {
			v := float64(rgba[p+c])
			if v <= knee {
				continue
			}
			t := (v - knee) / (ceiling - knee)
			if t > 1 {
				t = 1
			}
			rgba[p+c] = clampByte(knee + span*(1-math.Exp(-2*t)))
		}
	}
}
