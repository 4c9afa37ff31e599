package gpu

import (
	"fmt"

	"camera-core/internal/frame"
	"camera-core/internal/pixelformat"
)

// convertFrameToRGBA performs, on the CPU, the identical per-pixel
// arithmetic the per-format compute shaders in shaders.go describe
// (same BT.601 matrix, same plane/channel layout). It backs
// ConvertToRGBA's returned Texture so every consumer gets correct
// pixels — and the spec §8 round-trip invariants (NV12 Y=16/U=V=128 ->
// black, Y=235/U=V=128 -> white, within tolerance) are real and
// testable — without requiring a live Vulkan dispatch, mirroring the
// GPU-shader/CPU-reduction split already used by Sharpness/SharpnessOfRGBA.
func convertFrameToRGBA(fr *frame.Frame) ([]byte, error) {
	switch fr.Format {
	case pixelformat.NV12:
		return convertSemiPlanarToRGBA(fr, false), nil
	case pixelformat.NV21:
		return convertSemiPlanarToRGBA(fr, true), nil
	case pixelformat.I420, pixelformat.I422, pixelformat.I444:
		return convertPlanarToRGBA(fr), nil
	case pixelformat.YUYV, pixelformat.UYVY, pixelformat.YVYU, pixelformat.VYUY:
		return convertPacked422ToRGBA(fr), nil
	case pixelformat.Gray8:
		return convertGray8ToRGBA(fr), nil
	default:
		return nil, fmt.Errorf("gpu: no conversion path for format %v", fr.Format)
	}
}

// ConvertToNV12CPU converts any frame format this package's CPU path
// understands to NV12 bytes, via the same RGBA intermediate the GPU
// round-trip uses (convertFrameToRGBA + encodeNV12CPU). Used by
// internal/virtualcam's no-GPU-device fallback so every supported
// source format — not just the formats already NV12-shaped — can
// reach the virtual-camera appsrc.
func ConvertToNV12CPU(fr *frame.Frame) ([]byte, error) {
	rgba, err := convertFrameToRGBA(fr)
	if err != nil {
		return nil, err
	}
	return encodeNV12CPU(rgba, fr.Width, fr.Height), nil
}

// yuvToRGB implements the bt601Matrix GLSL function (shaders.go) in Go:
// Y=16,U=V=128 -> black, Y=235,U=V=128 -> white (spec §8).
func yuvToRGB(y, u, v float64) (r, g, b float64) {
	y = (y - 16.0/255.0) * (255.0 / 219.0)
	u -= 0.5
	v -= 0.5
	r = clamp01(y + 1.402*v)
	g = clamp01(y - 0.344136*u - 0.714136*v)
	b = clamp01(y + 1.772*u)
	return r, g, b
}

func clamp01(v float64) float64 {
	if v < 0 {
		return 0
	}
	if v > 1 {
		return 1
	}
	return v
}

func clampByteF(v float64) byte {
	if v <= 0 {
		return 0
	}
	if v >= 255 {
		return 255
	}
	return byte(v + 0.5)
}

func writeRGB(out []byte, i int, r, g, b float64) {
	out[i] = clampByteF(r * 255)
	out[i+1] = clampByteF(g * 255)
	out[i+2] = clampByteF(b * 255)
	out[i+3] = 255
}

// convertSemiPlanarToRGBA handles NV12 (vFirst=false) and NV21
// (vFirst=true): one Y plane followed by one interleaved chroma plane
// (shaderNV12/shaderNV21 in shaders.go).
func convertSemiPlanarToRGBA(fr *frame.Frame, vFirst bool) []byte {
	buf := fr.Bytes()
	w, h := fr.Width, fr.Height
	// fr.Stride on a semi-planar frame holds pixelformat.ComputeStride's
	// whole-buffer-amortized row size (~1.5x width for NV12/NV21), not
	// the Y plane's own row bytes, so the Y plane is addressed as
	// tightly packed at width bytes/row (no backend in this tree
	// reports Y-row padding for semi-planar formats).
	yStride := w
	uvOff := yStride * h
	uvStride := yStride

	out := make([]byte, w*h*4)
	for y := 0; y < h; y++ {
		cy := y / 2
		for x := 0; x < w; x++ {
			yi := y*yStride + x
			cx := x / 2
			ci := uvOff + cy*uvStride + cx*2

			var Y, u, v float64
			if yi >= 0 && yi < len(buf) {
				Y = float64(buf[yi]) / 255
			}
			if ci+1 >= 0 && ci+1 < len(buf) {
				if vFirst {
					v, u = float64(buf[ci])/255, float64(buf[ci+1])/255
				} else {
					u, v = float64(buf[ci])/255, float64(buf[ci+1])/255
				}
			}
			r, g, b := yuvToRGB(Y, u, v)
			writeRGB(out, (y*w+x)*4, r, g, b)
		}
	}
	return out
}

// planarLayout describes where to find Y/U/V samples for a planar
// (I420/I422/I444) frame, either from fr.YUVPlanes when the MJPEG
// decoder supplied one (spec §3 "required for I420/I422/I444 produced
// by the MJPEG decoder") or derived from the format's nominal
// subsampling otherwise.
type planarLayout struct {
	yOff, yStride         int
	uOff, uStride, uw, uh int
	vOff, vStride, vw, vh int
}

func planarLayoutFor(fr *frame.Frame) planarLayout {
	if fr.YUVPlanes != nil {
		p := fr.YUVPlanes
		return planarLayout{
			yOff: p.Y.Offset, yStride: p.Y.Stride,
			uOff: p.U.Offset, uStride: p.U.Stride, uw: p.U.Width, uh: p.U.Height,
			vOff: p.V.Offset, vStride: p.V.Stride, vw: p.V.Width, vh: p.V.Height,
		}
	}

	w, h := fr.Width, fr.Height
	cw, ch := w, h
	switch fr.Format {
	case pixelformat.I420:
		cw, ch = (w+1)/2, (h+1)/2
	case pixelformat.I422:
		cw, ch = (w+1)/2, h
	}
	// As in convertSemiPlanarToRGBA: fr.Stride is the whole-buffer
	// amortized row size for a multi-plane format, not the Y plane's
	// own row bytes, so the Y plane is addressed as tightly packed.
	yStride := w
	ySize := yStride * h
	return planarLayout{
		yOff: 0, yStride: yStride,
		uOff: ySize, uStride: cw, uw: cw, uh: ch,
		vOff: ySize + cw*ch, vStride: cw, vw: cw, vh: ch,
	}
}

// convertPlanarToRGBA handles I420/I422/I444 (shaderPlanar in
// shaders.go), sampling chroma via the frame's actual chroma
// dimensions rather than assuming 4:2:0 (spec §8 scenario 6: MJPEG
// 4:2:2 source carries uv_width=640,uv_height=720 for a 1280x720
// frame).
func convertPlanarToRGBA(fr *frame.Frame) []byte {
	buf := fr.Bytes()
	w, h := fr.Width, fr.Height
	layout := planarLayoutFor(fr)
	cw, ch := layout.uw, layout.uh
	if cw <= 0 {
		cw = w
	}
	if ch <= 0 {
		ch = h
	}

	out := make([]byte, w*h*4)
	for y := 0; y < h; y++ {
		cy := y * ch / h
		for x := 0; x < w; x++ {
			cx := x * cw / w
			yi := layout.yOff + y*layout.yStride + x
			ui := layout.uOff + cy*layout.uStride + cx
			vi := layout.vOff + cy*layout.vStride + cx

			var Y, u, v float64
			if yi >= 0 && yi < len(buf) {
				Y = float64(buf[yi]) / 255
			}
			if ui >= 0 && ui < len(buf) {
				u = float64(buf[ui]) / 255
			}
			if vi >= 0 && vi < len(buf) {
				v = float64(buf[vi]) / 255
			}
			r, g, b := yuvToRGB(Y, u, v)
			writeRGB(out, (y*w+x)*4, r, g, b)
		}
	}
	return out
}

// convertPacked422ToRGBA handles YUYV/UYVY/YVYU/VYUY (shaderPacked422
// in shaders.go): each 4-byte texel covers two horizontally adjacent
// pixels sharing one chroma pair, with per-variant byte order from
// packedChannelOrder.
func convertPacked422ToRGBA(fr *frame.Frame) []byte {
	buf := fr.Bytes()
	w, h := fr.Width, fr.Height
	stride := fr.Stride
	if stride <= 0 {
		stride = w * 2
	}
	order := packedChannelOrder(fr.Format)

	out := make([]byte, w*h*4)
	for y := 0; y < h; y++ {
		rowOff := y * stride
		for x := 0; x < w; x += 2 {
			ti := rowOff + x*2
			var quad [4]byte
			for k := 0; k < 4; k++ {
				if ti+k >= 0 && ti+k < len(buf) {
					quad[k] = buf[ti+k]
				}
			}
			y0 := float64(quad[order[0]]) / 255
			u := float64(quad[order[1]]) / 255
			y1 := float64(quad[order[2]]) / 255
			v := float64(quad[order[3]]) / 255

			r0, g0, b0 := yuvToRGB(y0, u, v)
			writeRGB(out, (y*w+x)*4, r0, g0, b0)
			if x+1 < w {
				r1, g1, b1 := yuvToRGB(y1, u, v)
				writeRGB(out, (y*w+x+1)*4, r1, g1, b1)
			}
		}
	}
	return out
}

// convertGray8ToRGBA replicates the single luma channel across R, G, B
// (shaderGray8 in shaders.go).
func convertGray8ToRGBA(fr *frame.Frame) []byte {
	buf := fr.Bytes()
	w, h := fr.Width, fr.Height
	stride := fr.Stride
	if stride <= 0 {
		stride = w
	}

	out := make([]byte, w*h*4)
	for y := 0; y < h; y++ {
		for x := 0; x < w; x++ {
			gi := y*stride + x
			var g byte
			if gi >= 0 && gi < len(buf) {
				g = buf[gi]
			}
			oi := (y*w + x) * 4
			out[oi], out[oi+1], out[oi+2], out[oi+3] = g, g, g, 255
		}
	}
	return out
}
