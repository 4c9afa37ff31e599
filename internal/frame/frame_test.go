package frame

import (
	"testing"
	"time"

	"camera-core/internal/pixelformat"
)

func TestNewRejectsShortStride(t *testing.T) {
	buf := NewSharedBuffer(make([]byte, 640*480*2), nil)
	_, err := New(640, 480, pixelformat.YUYV, buf, 640, nil, time.Now())
	if err == nil {
		t.Fatal("expected error for stride < width*bpp")
	}
}

func TestNewAcceptsPaddedStride(t *testing.T) {
	buf := NewSharedBuffer(make([]byte, (640*2+64)*480), nil)
	f, err := New(640, 480, pixelformat.YUYV, buf, 640*2+64, nil, time.Now())
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if f.Stride != 640*2+64 {
		t.Errorf("stride = %d", f.Stride)
	}
}

func TestNewRejectsOverlappingPlanes(t *testing.T) {
	buf := NewSharedBuffer(make([]byte, 1280*720*3/2), nil)
	planes := &YUVPlanes{
		Y: YUVPlane{Offset: 0, Size: 1280 * 720, Stride: 1280, Width: 1280, Height: 720},
		U: YUVPlane{Offset: 1280*720 - 10, Size: 320 * 360, Stride: 320, Width: 640, Height: 360},
		V: YUVPlane{Offset: 1280*720 + 320*360, Size: 320 * 360, Stride: 320, Width: 640, Height: 360},
	}
	_, err := New(1280, 720, pixelformat.I420, buf, 1280, planes, time.Now())
	if err == nil {
		t.Fatal("expected overlap error")
	}
}

func TestNewRejectsPlaneOutOfBounds(t *testing.T) {
	buf := NewSharedBuffer(make([]byte, 100), nil)
	planes := &YUVPlanes{
		Y: YUVPlane{Offset: 0, Size: 200, Stride: 10, Width: 10, Height: 20},
	}
	_, err := New(10, 20, pixelformat.I420, buf, 10, planes, time.Now())
	if err == nil {
		t.Fatal("expected out-of-bounds error")
	}
}

func TestAcquireReleaseRefcounting(t *testing.T) {
	freed := false
	buf := NewSharedBuffer(make([]byte, 100), func([]byte) { freed = true })
	f, err := New(10, 10, pixelformat.Gray8, buf, 10, nil, time.Now())
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	retained := f.Acquire()
	f.Release()
	if freed {
		t.Fatal("buffer freed while retained copy still live")
	}
	retained.Release()
	if !freed {
		t.Fatal("buffer not freed after last release")
	}
}

func TestWithSensorTimestampPrefersKernelClock(t *testing.T) {
	buf := NewSharedBuffer(make([]byte, 100), nil)
	f, _ := New(10, 10, pixelformat.Gray8, buf, 10, nil, time.Unix(1000, 0))
	f2 := f.WithSensorTimestamp(12345)
	if !f2.HasSensorTimestamp {
		t.Fatal("expected HasSensorTimestamp true")
	}
	if f2.TimestampForPTS() != 12345 {
		t.Errorf("TimestampForPTS = %v, want 12345", f2.TimestampForPTS())
	}
	if f.HasSensorTimestamp {
		t.Fatal("original frame must be unmodified (copy-on-write)")
	}
}

func TestSlotStoreReleasesPrevious(t *testing.T) {
	var s Slot
	freed1, freed2 := false, false

	buf1 := NewSharedBuffer(make([]byte, 100), func([]byte) { freed1 = true })
	f1, _ := New(10, 10, pixelformat.Gray8, buf1, 10, nil, time.Now())
	s.Store(f1)

	buf2 := NewSharedBuffer(make([]byte, 100), func([]byte) { freed2 = true })
	f2, _ := New(10, 10, pixelformat.Gray8, buf2, 10, nil, time.Now())
	s.Store(f2)

	if !freed1 {
		t.Error("previous frame should be released on Store")
	}
	if freed2 {
		t.Error("new frame must not be freed yet")
	}

	loaded := s.Load()
	if loaded == nil {
		t.Fatal("expected a frame from Load")
	}
	loaded.Release()
	if freed2 {
		t.Error("buffer still referenced by the slot itself, must not free yet")
	}

	s.Close()
	if !freed2 {
		t.Error("Close should release the slot's held frame")
	}
}

func TestSlotLoadEmpty(t *testing.T) {
	var s Slot
	if s.Load() != nil {
		t.Fatal("expected nil from empty slot")
	}
}
