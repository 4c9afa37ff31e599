// Package photo implements the non-burst still pipeline (spec §4.F):
// post-process, encode (JPEG/PNG/DNG), and timestamped disk write, plus
// the depth-scene export supplementing spec §6 "Scenes".
package photo

import (
	"fmt"
	"image"
	"image/jpeg"
	"image/png"
	"log"
	"os"
	"path/filepath"
	"time"

	"golang.org/x/image/draw"

	"camera-core/internal/frame"
)

// OutputFormat selects the still encoder (spec §4.F step 2).
type OutputFormat string

const (
	FormatJPEG OutputFormat = "jpeg"
	FormatPNG  OutputFormat = "png"
	FormatDNG  OutputFormat = "dng"
)

// PostProcessOptions configures spec §4.F step 1: filter is applied
// upstream by internal/gpu before Encode is called (the GPU device
// owns the filter shaders), so this stage only handles crop/zoom,
// which are geometry operations independent of pixel format.
type PostProcessOptions struct {
	CropAspect float64 // 0 = native
	ZoomFactor float64 // 1.0 = no software zoom; >1 crops-then-upscales around center
}

// PostProcess crops to CropAspect (center-aligned) and then applies
// software zoom by cropping further around center and upscaling back
// to the cropped size, matching "zoom applied (if software zoom is in
// use; hardware zoom is applied on the sensor during capture)".
func PostProcess(rgba []byte, width, height int, opt PostProcessOptions) ([]byte, int, int) {
	out, w, h := cropCenterAspect(rgba, width, height, opt.CropAspect)
	if opt.ZoomFactor > 1.0 {
		out, w, h = zoomCenter(out, w, h, opt.ZoomFactor)
	}
	return out, w, h
}

func cropCenterAspect(rgba []byte, width, height int, aspect float64) ([]byte, int, int) {
	if aspect <= 0 {
		return rgba, width, height
	}
	srcAspect := float64(width) / float64(height)
	cw, ch := width, height
	if srcAspect > aspect {
		cw = int(float64(height) * aspect)
	} else if srcAspect < aspect {
		ch = int(float64(width) / aspect)
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

// zoomCenter crops a 1/zoom-sized region around center, then scales it
// back up to width x height using golang.org/x/image/draw's Catmull-Rom
// scaler (spec's "software zoom" path, used when the sensor has no
// hardware zoom).
func zoomCenter(rgba []byte, width, height int, zoom float64) ([]byte, int, int) {
	cw := int(float64(width) / zoom)
	ch := int(float64(height) / zoom)
	if cw < 1 {
		cw = 1
	}
	if ch < 1 {
		ch = 1
	}
	src := image.NewRGBA(image.Rect(0, 0, width, height))
	copy(src.Pix, rgba)
	x0 := (width - cw) / 2
	y0 := (height - ch) / 2
	sub := src.SubImage(image.Rect(x0, y0, x0+cw, y0+ch)).(*image.RGBA)

	dst := image.NewRGBA(image.Rect(0, 0, width, height))
	draw.CatmullRom.Scale(dst, dst.Bounds(), sub, sub.Bounds(), draw.Over, nil)
	return dst.Pix, width, height
}

// Encode serializes a tightly packed RGBA8 buffer to one of the three
// supported still formats (spec §4.F step 2).
func Encode(rgba []byte, width, height int, format OutputFormat, meta frame.Metadata, device string, depth *frame.DepthSideChannel) ([]byte, error) {
	switch format {
	case FormatJPEG:
		img := toImageRGBA(rgba, width, height)
		var buf bufferWriter
		if err := jpeg.Encode(&buf, img, &jpeg.Options{Quality: 92}); err != nil {
			return nil, fmt.Errorf("photo: jpeg encode: %w", err)
		}
		return buf.b, nil
	case FormatPNG:
		img := toImageRGBA(rgba, width, height)
		var buf bufferWriter
		if err := png.Encode(&buf, img); err != nil {
			return nil, fmt.Errorf("photo: png encode: %w", err)
		}
		return buf.b, nil
	case FormatDNG:
		return encodeDNG(rgba, width, height, meta, device, depth)
	default:
		return nil, fmt.Errorf("photo: unknown output format %q", format)
	}
}

func toImageRGBA(rgba []byte, width, height int) *image.RGBA {
	img := image.NewRGBA(image.Rect(0, 0, width, height))
	copy(img.Pix, rgba)
	return img
}

type bufferWriter struct{ b []byte }

func (w *bufferWriter) Write(p []byte) (int, error) {
	w.b = append(w.b, p...)
	return len(p), nil
}

// Save writes encoded bytes to a timestamped filename inside dir (spec
// §4.F step 3, "disk I/O uses OS-thread pool" — callers invoke Save
// from a goroutine dedicated to blocking I/O, matching the teacher's
// pattern of isolating camera I/O onto its own goroutine rather than
// running it on a shared worker pool).
func Save(dir string, format OutputFormat, data []byte, at time.Time) (string, error) {
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return "", fmt.Errorf("photo: mkdir %s: %w", dir, err)
	}
	ext := string(format)
	name := fmt.Sprintf("IMG_%s.%s", at.Format("20060102_150405"), ext)
	path := filepath.Join(dir, name)
	if err := os.WriteFile(path, data, 0o644); err != nil {
		return "", fmt.Errorf("photo: write %s: %w", path, err)
	}
	log.Printf("[Photo] saved %s (%d bytes)", path, len(data))
	return path, nil
}
