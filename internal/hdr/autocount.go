package hdr

import (
	"camera-core/internal/frame"
	"camera-core/internal/pixelformat"
)

// AutoFrameCount derives a burst length from the scene's mean
// luminance (spec §4.E "Auto frame count... a bright scene samples
// 4, medium 6, and dark 8-15, scaling up further as mean luminance
// drops"). A nil frame (no recent preview yet) falls back to the
// medium-light default.
func AutoFrameCount(f *frame.Frame) int {
	if f == nil {
		return 6
	}
	mean := meanLuma(f)
	switch {
	case mean >= 140:
		return 4
	case mean >= 70:
		return 6
	default:
		// Darker scenes benefit from deeper stacks; scale linearly from
		// 8 at mean=70 down to 15 at mean=0.
		frac := 1.0 - mean/70.0
		n := 8 + int(frac*7.0+0.5)
		if n > 15 {
			n = 15
		}
		return n
	}
}

// meanLuma estimates mean luma directly from the frame's native
// planes without a GPU round-trip: for planar/semiplanar YUV formats
// the luma plane is the first plane and can be sampled as-is; for
// packed/Bayer formats it falls back to a coarse byte average, which
// is still monotonic with scene brightness for the purpose of
// classifying exposure buckets.
func meanLuma(f *frame.Frame) float64 {
	data := f.Bytes()
	if f.YUVPlanes != nil && f.YUVPlanes.Y.Size > 0 {
		y := f.YUVPlanes.Y
		if y.Offset+y.Size <= len(data) {
			return sampleMean(data[y.Offset : y.Offset+y.Size])
		}
	}
	if f.Format == pixelformat.NV12 || f.Format == pixelformat.NV21 {
		if n := f.Width * f.Height; n > 0 && n <= len(data) {
			return sampleMean(data[:n])
		}
	}
	return sampleMean(data)
}

// sampleMean averages up to 4096 evenly strided samples rather than
// every byte, keeping this cheap enough to call on every still-capture
// request.
func sampleMean(data []byte) float64 {
	if len(data) == 0 {
		return 128
	}
	const maxSamples = 4096
	stride := len(data) / maxSamples
	if stride < 1 {
		stride = 1
	}
	var sum float64
	n := 0
	for i := 0; i < len(data); i += stride {
		sum += float64(data[i])
		n++
	}
	if n == 0 {
		return 128
	}
	return sum / float64(n)
}
