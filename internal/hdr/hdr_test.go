package hdr

import (
	"testing"
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

func TestMergeSpatialIdenticalFramesIsIdentity(t *testing.T) {
	width, height := 16, 16
	frame := solidRGBA(width, height, 100, 120, 140)
	frames := [][]byte{frame, frame, frame, frame}
	offsets := make([]TileOffsets, len(frames))
	for i := range offsets {
		offsets[i] = TileOffsets{TileSize: 8, TilesX: 2, TilesY: 2, DX: make([]int, 4), DY: make([]int, 4)}
	}

	merged, err := MergeSpatial(frames, offsets, 0, width, height, 1.0)
	if err != nil {
		t.Fatalf("MergeSpatial: %v", err)
	}
	for i, v := range merged {
		want := frame[i]
		if v < want-1 || v > want+1 {
			t.Fatalf("byte %d = %d, want within 1 of %d", i, v, want)
		}
	}
}

func TestAlignPyramidZeroOffsetForIdenticalFrames(t *testing.T) {
	width, height := 64, 64
	frame := make([]byte, width*height*4)
	for y := 0; y < height; y++ {
		for x := 0; x < width; x++ {
			i := (y*width + x) * 4
			frame[i] = byte((x * 7) % 256)
			frame[i+1] = byte((y * 5) % 256)
			frame[i+2] = byte((x + y) % 256)
			frame[i+3] = 255
		}
	}

	offsets := AlignPyramid(frame, frame, width, height, 32)
	for i := range offsets.DX {
		if offsets.DX[i] != 0 || offsets.DY[i] != 0 {
			t.Fatalf("tile %d offset = (%d,%d), want (0,0) for identical frames", i, offsets.DX[i], offsets.DY[i])
		}
	}
}

func TestCropCenterNativeAspectUnchanged(t *testing.T) {
	rgba := solidRGBA(10, 10, 1, 2, 3)
	out, w, h := CropCenter(rgba, 10, 10, 0)
	if w != 10 || h != 10 {
		t.Fatalf("dimensions changed for aspect<=0: got %dx%d", w, h)
	}
	if len(out) != len(rgba) {
		t.Fatalf("length changed for aspect<=0")
	}
}

func TestCropCenterWidensCrop(t *testing.T) {
	rgba := solidRGBA(100, 100, 10, 20, 30)
	out, w, h := CropCenter(rgba, 100, 100, 16.0/9.0)
	if w != 100 {
		t.Fatalf("width = %d, want unchanged 100 for a wider target aspect", w)
	}
	if h >= 100 {
		t.Fatalf("height = %d, want < 100", h)
	}
	if len(out) != w*h*4 {
		t.Fatalf("output length %d != %d", len(out), w*h*4)
	}
}

func TestToneMapIdentityAtZeroParams(t *testing.T) {
	rgba := solidRGBA(8, 8, 50, 100, 150)
	before := append([]byte(nil), rgba...)
	ToneMap(rgba, 8, 8, 0, 0)
	for i := range rgba {
		// Highlight soft-clip only affects bytes > 235; none here should move.
		if rgba[i] != before[i] {
			t.Fatalf("byte %d changed from %d to %d with zero shadow/contrast params", i, before[i], rgba[i])
		}
	}
}

func TestToneMapSoftClipsHighlights(t *testing.T) {
	rgba := solidRGBA(4, 4, 250, 250, 250)
	ToneMap(rgba, 4, 4, 0, 0)
	for i := 0; i < len(rgba); i += 4 {
		for c := 0; c < 3; c++ {
			// Soft clip keeps a highlight above the 235 knee but below
			// full scale, rather than clamping it to 255.
			if v := rgba[i+c]; v <= 235 || v >= 255 {
				t.Fatalf("value %d not soft-clipped into (235,255)", v)
			}
		}
	}
}

func TestAutoFrameCountNilFrameFallsBackToMedium(t *testing.T) {
	if n := AutoFrameCount(nil); n != 6 {
		t.Fatalf("nil frame: got %d, want 6", n)
	}
}

func TestStateString(t *testing.T) {
	cases := map[State]string{
		Idle: "Idle", Collecting: "Collecting", Processing: "Processing",
		Done: "Done", Error: "Error", State(99): "Unknown",
	}
	for s, want := range cases {
		if got := s.String(); got != want {
			t.Fatalf("State(%d).String() = %q, want %q", s, got, want)
		}
	}
}

func TestEngineStartCaptureBoundaries(t *testing.T) {
	e := New(nil, DefaultConfig())

	if _, err := e.StartCapture(1, nil); err == nil {
		t.Fatalf("expected error for frame_count=1 (below minimum)")
	}
	if _, err := e.StartCapture(51, nil); err == nil {
		t.Fatalf("expected error for frame_count=51 (above maximum)")
	}
	if e.State() != Idle {
		t.Fatalf("state = %v after rejected StartCapture, want Idle", e.State())
	}
}

func TestEngineCollectNoopWhenIdle(t *testing.T) {
	e := New(nil, DefaultConfig())
	if e.State() != Idle {
		t.Fatalf("want Idle initially")
	}
	// Collect returns before touching the frame when not Collecting.
	e.Collect(nil)
	if n := e.CollectedCount(); n != 0 {
		t.Fatalf("CollectedCount = %d, want 0", n)
	}
}
