package virtualcam

import (
	"testing"
	"time"

	"camera-core/internal/frame"
	"camera-core/internal/pixelformat"
)

func makeFrame(t *testing.T, format pixelformat.Format, width, height int) *frame.Frame {
	t.Helper()
	size := int(float64(width*height) * format.BytesPerPixel())
	stride := int(float64(width) * format.BytesPerPixel())
	if stride*height > size {
		size = stride * height
	}
	buf := frame.NewSharedBuffer(make([]byte, size), nil)
	f, err := frame.New(width, height, format, buf, stride, nil, time.Now())
	if err != nil {
		t.Fatalf("frame.New: %v", err)
	}
	return f
}

func TestCPUToNV12PassesThroughNV12(t *testing.T) {
	f := makeFrame(t, pixelformat.NV12, 4, 4)
	out, err := cpuToNV12(f)
	if err != nil {
		t.Fatalf("cpuToNV12: %v", err)
	}
	if len(out) != len(f.Bytes()) {
		t.Fatalf("NV12 passthrough changed length")
	}
}

func TestCPUToNV12SwapsNV21Chroma(t *testing.T) {
	width, height := 2, 2
	size := int(float64(width*height) * pixelformat.NV21.BytesPerPixel()) // 6: 4 luma + 2 chroma
	stride := int(float64(width) * pixelformat.NV21.BytesPerPixel())      // 3
	data := make([]byte, size)
	for i := 0; i < width*height; i++ {
		data[i] = byte(i + 1)
	}
	// chroma plane: V,U
	chromaStart := width * height
	data[chromaStart] = 10   // V
	data[chromaStart+1] = 20 // U

	buf := frame.NewSharedBuffer(data, nil)
	f, err := frame.New(width, height, pixelformat.NV21, buf, stride, nil, time.Now())
	if err != nil {
		t.Fatalf("frame.New: %v", err)
	}

	out, err := cpuToNV12(f)
	if err != nil {
		t.Fatalf("cpuToNV12: %v", err)
	}
	if out[chromaStart] != 20 || out[chromaStart+1] != 10 {
		t.Fatalf("chroma not swapped: got %d,%d want 20,10", out[chromaStart], out[chromaStart+1])
	}
}

func TestCPUToNV12ConvertsI420ConstantGrey(t *testing.T) {
	width, height := 4, 4
	ySize := width * height
	cw, ch := (width+1)/2, (height+1)/2
	data := make([]byte, ySize+2*cw*ch)
	for i := 0; i < ySize; i++ {
		data[i] = 128
	}
	for i := ySize; i < len(data); i++ {
		data[i] = 128
	}
	stride := pixelformat.ComputeStride(pixelformat.I420, width, len(data), height)
	buf := frame.NewSharedBuffer(data, nil)
	f, err := frame.New(width, height, pixelformat.I420, buf, stride, nil, time.Now())
	if err != nil {
		t.Fatalf("frame.New: %v", err)
	}

	out, err := cpuToNV12(f)
	if err != nil {
		t.Fatalf("cpuToNV12: %v", err)
	}
	if len(out) != ySize+2*cw*ch {
		t.Fatalf("NV12 output length = %d, want %d", len(out), ySize+2*cw*ch)
	}
	for i, v := range out {
		if int(v) < 126 || int(v) > 130 {
			t.Fatalf("byte %d = %d, want near 128 (grey)", i, v)
		}
	}
}

func TestCPUToNV12RejectsUnsupportedFormat(t *testing.T) {
	f := makeFrame(t, pixelformat.RGB24, 4, 4)
	if _, err := cpuToNV12(f); err == nil {
		t.Fatalf("expected error for RGB24 without a GPU device")
	}
}

func TestFrameDurationDefaultsWhenZero(t *testing.T) {
	if d := frameDuration(0); d != time.Second/30 {
		t.Fatalf("frameDuration(0) = %v, want %v", d, time.Second/30)
	}
}

func TestPushWithoutStartFails(t *testing.T) {
	s := NewSink(nil)
	f := makeFrame(t, pixelformat.NV12, 4, 4)
	if err := s.Push(f); err == nil {
		t.Fatalf("expected error pushing to a sink that hasn't Start'd")
	}
}
