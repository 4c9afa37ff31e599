// Package capture implements the capture engine: a manager holding one
// of several interchangeable hardware backends behind a single
// contract (spec §4.C), generalizing the teacher's internal/camera
// Manager (single FFmpeg-subprocess worker pool keyed by device path)
// into a multi-backend design driven by an explicit Backend interface.
package capture

import (
	"context"
	"time"

	"camera-core/internal/frame"
)

// SensorKind tags whether a CameraDevice captures visible-light colour
// or depth data (spec §3 CameraDevice).
type SensorKind int

const (
	SensorColor SensorKind = iota
	SensorDepth
)

// CameraDevice is one enumerated hardware source.
type CameraDevice struct {
	Name         string
	Path         string // backend-opaque, prefixed per spec §6 (v4l2-depth:, pipewire-serial-<n>, ...)
	MetadataPath string // non-empty only for kernel-paired color+depth devices
	Rotation     int    // degrees, one of 0/90/180/270
	Sensor       SensorKind
}

// CameraFormat is a resolution x framerate x pixel-format x
// hardware-accelerated tuple a backend can be initialized with.
type CameraFormat struct {
	Width         int
	Height        int
	FPS           float64
	Format        string // pixelformat.Format.String(), kept as string so backends needn't import pixelformat for enumeration-only use
	HardwareAccel bool
}

// Less orders two formats for picker UIs: decreasing pixel count, then
// decreasing framerate, then hardware-accelerated first (spec §3).
func (f CameraFormat) Less(o CameraFormat) bool {
	fp, op := f.Width*f.Height, o.Width*o.Height
	if fp != op {
		return fp > op
	}
	if f.FPS != o.FPS {
		return f.FPS > o.FPS
	}
	return f.HardwareAccel && !o.HardwareAccel
}

// Backend is the single contract every capture implementation
// satisfies (spec §4.C). The manager owns exactly one Backend at a
// time and calls through to it; cold configuration methods
// (Enumerate/Formats/Initialize/Shutdown) may block briefly, the hot
// path (PreviewFrames) must not.
type Backend interface {
	Name() string
	Enumerate(ctx context.Context) ([]CameraDevice, error)
	Formats(ctx context.Context, device CameraDevice, forVideo bool) ([]CameraFormat, error)
	Initialize(ctx context.Context, device CameraDevice, format CameraFormat) error
	Shutdown(ctx context.Context) error

	CurrentDevice() (CameraDevice, bool)
	CurrentFormat() (CameraFormat, bool)

	CapturePhoto(ctx context.Context) (*frame.Frame, error)
	StartRecording(ctx context.Context, outputPath string) error
	StopRecording(ctx context.Context) (string, error)

	// PreviewFrames returns the backend's latest-preview-frame slot.
	// The manager reads it at whatever cadence the consumer wants; the
	// backend writes into it from its own capture thread.
	PreviewFrames() *frame.Slot
}

// recoveryAttempt record for observability of the bounded
// re-initialize recovery pattern (spec §7).
type recoveryAttempt struct {
	At        time.Time
	Device    CameraDevice
	Format    CameraFormat
	Succeeded bool
	Err       error
}
