package photo

import (
	"bytes"
	"image/jpeg"
	"image/png"
	"os"
	"path/filepath"
	"testing"
	"time"

	"camera-core/internal/frame"
)

func solidRGBA(width, height int, r, g, b byte) []byte {
	out := make([]byte, width*height*4)
	for i := 0; i < width*height; i++ {
		out[i*4] = r
		out[i*4+1] = g
		out[i*4+2] = b
		out[i*4+3] = 255
	}
	return out
}

func TestPostProcessNativeAspectNoZoomIsIdentity(t *testing.T) {
	rgba := solidRGBA(20, 20, 1, 2, 3)
	out, w, h := PostProcess(rgba, 20, 20, PostProcessOptions{})
	if w != 20 || h != 20 {
		t.Fatalf("dimensions changed: got %dx%d", w, h)
	}
	if !bytes.Equal(out, rgba) {
		t.Fatalf("bytes changed with no-op options")
	}
}

func TestPostProcessCropNarrowsAspect(t *testing.T) {
	rgba := solidRGBA(200, 100, 5, 6, 7)
	out, w, h := PostProcess(rgba, 200, 100, PostProcessOptions{CropAspect: 1.0})
	if w != 100 || h != 100 {
		t.Fatalf("got %dx%d, want 100x100 for a 2:1 source cropped to 1:1", w, h)
	}
	if len(out) != w*h*4 {
		t.Fatalf("output length mismatch")
	}
}

func TestPostProcessZoomPreservesDimensions(t *testing.T) {
	rgba := solidRGBA(64, 64, 10, 20, 30)
	out, w, h := PostProcess(rgba, 64, 64, PostProcessOptions{ZoomFactor: 2.0})
	if w != 64 || h != 64 {
		t.Fatalf("zoom changed output dimensions: got %dx%d", w, h)
	}
	if len(out) != 64*64*4 {
		t.Fatalf("output length mismatch")
	}
}

func TestEncodeJPEGRoundTrips(t *testing.T) {
	rgba := solidRGBA(16, 16, 200, 100, 50)
	data, err := Encode(rgba, 16, 16, FormatJPEG, frame.Metadata{}, "test-cam", nil)
	if err != nil {
		t.Fatalf("Encode: %v", err)
	}
	img, err := jpeg.Decode(bytes.NewReader(data))
	if err != nil {
		t.Fatalf("jpeg.Decode: %v", err)
	}
	if img.Bounds().Dx() != 16 || img.Bounds().Dy() != 16 {
		t.Fatalf("decoded dimensions wrong: %v", img.Bounds())
	}
}

func TestEncodePNGRoundTrips(t *testing.T) {
	rgba := solidRGBA(8, 8, 1, 2, 3)
	data, err := Encode(rgba, 8, 8, FormatPNG, frame.Metadata{}, "test-cam", nil)
	if err != nil {
		t.Fatalf("Encode: %v", err)
	}
	img, err := png.Decode(bytes.NewReader(data))
	if err != nil {
		t.Fatalf("png.Decode: %v", err)
	}
	if img.Bounds().Dx() != 8 || img.Bounds().Dy() != 8 {
		t.Fatalf("decoded dimensions wrong: %v", img.Bounds())
	}
}

func TestEncodeDNGHasValidHeader(t *testing.T) {
	rgba := solidRGBA(4, 4, 1, 2, 3)
	data, err := Encode(rgba, 4, 4, FormatDNG, frame.Metadata{ExposureMicros: 8000, AnalogueGain: 2.0}, "test-cam", nil)
	if err != nil {
		t.Fatalf("Encode: %v", err)
	}
	if len(data) < 8 || string(data[0:2]) != "II" || data[2] != 42 {
		t.Fatalf("not a valid little-endian TIFF header: %x", data[:8])
	}
}

func TestSaveWritesTimestampedFile(t *testing.T) {
	dir := t.TempDir()
	at := time.Date(2026, 7, 31, 10, 30, 0, 0, time.UTC)
	path, err := Save(dir, FormatJPEG, []byte("fake-jpeg-bytes"), at)
	if err != nil {
		t.Fatalf("Save: %v", err)
	}
	if filepath.Dir(path) != dir {
		t.Fatalf("saved outside dir: %s", path)
	}
	if _, err := os.Stat(path); err != nil {
		t.Fatalf("saved file missing: %v", err)
	}
}

func TestSaveSceneWithoutDepthSkipsPointCloud(t *testing.T) {
	dir := t.TempDir()
	rgba := solidRGBA(4, 4, 1, 2, 3)
	colorPath, depthPath, plyPath, err := SaveScene(dir, rgba, 4, 4, FormatPNG, frame.Metadata{}, "test-cam", nil, DefaultIntrinsics(4, 4))
	if err != nil {
		t.Fatalf("SaveScene: %v", err)
	}
	if colorPath == "" {
		t.Fatalf("expected a color path")
	}
	if depthPath != "" || plyPath != "" {
		t.Fatalf("expected no depth/ply output without a depth side-channel")
	}
}

func TestSaveSceneWithDepthWritesAllThree(t *testing.T) {
	dir := t.TempDir()
	rgba := solidRGBA(4, 4, 1, 2, 3)
	depth := &frame.DepthSideChannel{Width: 4, Height: 4, Depth: make([]uint16, 16)}
	for i := range depth.Depth {
		depth.Depth[i] = uint16(500 + i)
	}
	colorPath, depthPath, plyPath, err := SaveScene(dir, rgba, 4, 4, FormatPNG, frame.Metadata{}, "test-cam", depth, DefaultIntrinsics(4, 4))
	if err != nil {
		t.Fatalf("SaveScene: %v", err)
	}
	for _, p := range []string{colorPath, depthPath, plyPath} {
		if _, err := os.Stat(p); err != nil {
			t.Fatalf("expected file at %s: %v", p, err)
		}
	}
}

func TestIsoFromGainFloor(t *testing.T) {
	if iso := isoFromGain(0, 0); iso != 100 {
		t.Fatalf("isoFromGain(0,0) = %d, want 100 (unity gain fallback)", iso)
	}
}
