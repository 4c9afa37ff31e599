package libcamera

import (
	"context"
	"testing"
	"time"

	"camera-core/internal/capture"
)

// The libcamera backend's shim (lc_manager_new) always returns NULL in
// this tree (spec §9 design note: no libcamera Go binding exists in
// the pack). Enumerate/Initialize/CapturePhoto must fail with the
// documented Kind rather than hang or panic.

func TestEnumerateReportsNotAvailable(t *testing.T) {
	b := New()
	devices, err := b.Enumerate(context.Background())
	if err == nil {
		t.Fatal("expected an error without a native libcamera manager")
	}
	if !capture.IsKind(err, capture.KindNotAvailable) {
		t.Fatalf("expected KindNotAvailable, got %v", err)
	}
	if len(devices) != 0 {
		t.Fatalf("expected no devices, got %d", len(devices))
	}
}

func TestInitializeFailsWithoutNativeManager(t *testing.T) {
	b := New()
	err := b.Initialize(context.Background(), capture.CameraDevice{Path: "libcamera:0"}, capture.CameraFormat{Width: 640, Height: 480})
	if err == nil {
		t.Fatal("expected Initialize to fail without a native libcamera manager")
	}
	if !capture.IsKind(err, capture.KindInitializationFailed) {
		t.Fatalf("expected KindInitializationFailed, got %v", err)
	}
	if _, active := b.CurrentDevice(); active {
		t.Fatal("backend should not report active after a failed Initialize")
	}
}

func TestCapturePhotoTimesOutWithNoFrameProducer(t *testing.T) {
	b := New()
	ctx, cancel := context.WithTimeout(context.Background(), time.Second)
	defer cancel()
	_, err := b.CapturePhoto(ctx)
	if err == nil {
		t.Fatal("expected an error with no capture thread ever started")
	}
	if !capture.IsKind(err, capture.KindCrashed) {
		t.Fatalf("expected KindCrashed, got %v", err)
	}
}

func TestDecodeNanosStartsAtZero(t *testing.T) {
	b := New()
	if n := b.DecodeNanos(); n != 0 {
		t.Fatalf("DecodeNanos() = %d, want 0 on a fresh backend", n)
	}
}
