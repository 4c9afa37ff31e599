package capture

import (
	"context"
	"fmt"
	"testing"

	"camera-core/internal/frame"
)

type fakeBackend struct {
	name       string
	initCalls  int
	failNInits int // Initialize fails this many times before succeeding
	slot       frame.Slot
	device     CameraDevice
	format     CameraFormat
}

func (f *fakeBackend) Name() string { return f.name }
func (f *fakeBackend) Enumerate(ctx context.Context) ([]CameraDevice, error) { return nil, nil }
func (f *fakeBackend) Formats(ctx context.Context, d CameraDevice, forVideo bool) ([]CameraFormat, error) {
	return nil, nil
}
func (f *fakeBackend) Initialize(ctx context.Context, d CameraDevice, fmt_ CameraFormat) error {
	f.initCalls++
	if f.initCalls <= f.failNInits {
		return newErr(f.name, KindInitializationFailed, fmt.Errorf("simulated failure %d", f.initCalls))
	}
	f.device, f.format = d, fmt_
	return nil
}
func (f *fakeBackend) Shutdown(ctx context.Context) error { return nil }
func (f *fakeBackend) CurrentDevice() (CameraDevice, bool) { return f.device, true }
func (f *fakeBackend) CurrentFormat() (CameraFormat, bool) { return f.format, true }
func (f *fakeBackend) CapturePhoto(ctx context.Context) (*frame.Frame, error) {
	return f.slot.Load(), nil
}
func (f *fakeBackend) StartRecording(ctx context.Context, path string) error { return nil }
func (f *fakeBackend) StopRecording(ctx context.Context) (string, error)    { return "", nil }
func (f *fakeBackend) PreviewFrames() *frame.Slot                           { return &f.slot }

func TestManagerSelectInitializes(t *testing.T) {
	m := NewManager()
	b := &fakeBackend{name: "fake"}
	dev := CameraDevice{Path: "/dev/video0"}
	fmt_ := CameraFormat{Width: 640, Height: 480, FPS: 30}

	if err := m.Select(context.Background(), b, dev, fmt_); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if b.initCalls != 1 {
		t.Fatalf("expected 1 init call, got %d", b.initCalls)
	}
}

func TestManagerHandleCrashRecoversWithinBound(t *testing.T) {
	m := NewManager()
	b := &fakeBackend{name: "fake", failNInits: 2}
	dev := CameraDevice{Path: "/dev/video0"}
	fmt_ := CameraFormat{Width: 640, Height: 480, FPS: 30}

	good := &fakeBackend{name: "fake"}
	if err := m.Select(context.Background(), good, dev, fmt_); err != nil {
		t.Fatalf("unexpected error priming manager state: %v", err)
	}

	var events []RecoveryEvent
	m.OnRecovery(func(ev RecoveryEvent) { events = append(events, ev) })

	err := m.HandleCrash(context.Background(), b)
	if err != nil {
		t.Fatalf("expected recovery to succeed within bound, got %v", err)
	}
	if b.initCalls != 3 {
		t.Fatalf("expected 3 attempts (2 fail + 1 success), got %d", b.initCalls)
	}

	succeeded := false
	for _, ev := range events {
		if ev.Phase == "succeeded" {
			succeeded = true
		}
	}
	if !succeeded {
		t.Fatal("expected a succeeded recovery event")
	}
}

func TestManagerHandleCrashExhaustsAttempts(t *testing.T) {
	m := NewManager()
	good := &fakeBackend{name: "fake"}
	dev := CameraDevice{Path: "/dev/video0"}
	fmt_ := CameraFormat{Width: 640, Height: 480, FPS: 30}
	m.Select(context.Background(), good, dev, fmt_)

	alwaysFails := &fakeBackend{name: "fake", failNInits: 99}
	err := m.HandleCrash(context.Background(), alwaysFails)
	if err == nil {
		t.Fatal("expected error after exhausting recovery attempts")
	}
	if !IsKind(err, KindCrashed) {
		t.Fatalf("expected KindCrashed, got %v", err)
	}
	if alwaysFails.initCalls != MaxRecoveryAttempts {
		t.Fatalf("expected exactly %d attempts, got %d", MaxRecoveryAttempts, alwaysFails.initCalls)
	}
}

func TestCameraFormatOrdering(t *testing.T) {
	hi := CameraFormat{Width: 1920, Height: 1080, FPS: 30}
	lo := CameraFormat{Width: 640, Height: 480, FPS: 60}
	if !hi.Less(lo) {
		t.Fatal("higher pixel count should sort first regardless of fps")
	}

	a := CameraFormat{Width: 640, Height: 480, FPS: 60}
	b := CameraFormat{Width: 640, Height: 480, FPS: 30}
	if !a.Less(b) {
		t.Fatal("equal resolution: higher fps should sort first")
	}
}

func TestReconcileDetectsPresenceAndIndex(t *testing.T) {
	devices := []CameraDevice{{Path: "a"}, {Path: "b"}, {Path: "c"}}
	present, idx := Reconcile(CameraDevice{Path: "b"}, devices)
	if !present || idx != 1 {
		t.Fatalf("expected present at index 1, got present=%v idx=%d", present, idx)
	}

	present, idx = Reconcile(CameraDevice{Path: "gone"}, devices)
	if present || idx != -1 {
		t.Fatalf("expected absent, got present=%v idx=%d", present, idx)
	}
}

func TestErrorIsKind(t *testing.T) {
	err := newErr("v4l2", KindDeviceNotFound, fmt.Errorf("vanished"))
	if !IsKind(err, KindDeviceNotFound) {
		t.Fatal("expected IsKind to match")
	}
	if IsKind(err, KindCrashed) {
		t.Fatal("expected IsKind not to match a different kind")
	}
}
