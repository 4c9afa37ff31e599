// Package frame defines Frame, the immutable record of one captured
// image shared by reference across every consumer (preview renderer,
// video encoder, HDR+ collector, virtual-camera sink) (spec §3).
package frame

import (
	"fmt"
	"time"

	"camera-core/internal/pixelformat"
)

// YUVPlane describes one plane of a multi-plane YUV payload: its byte
// offset and size within the shared buffer, its row stride, and (for
// chroma planes) the plane's own width/height, which may be subsampled
// relative to the luma plane.
type YUVPlane struct {
	Offset int
	Size   int
	Stride int
	Width  int
	Height int
}

// YUVPlanes describes the plane layout of a planar YUV frame (I420,
// I422, I444). It is present only for multi-plane formats produced by
// the MJPEG decoder; semi-planar (NV12/NV21) and packed formats derive
// their single or double plane geometry from Format + Stride instead.
type YUVPlanes struct {
	Y YUVPlane
	U YUVPlane
	V YUVPlane
}

// DepthSideChannel is an optional per-pixel depth payload accompanying
// a colour frame from depth-capable backends (kernel-paired color+depth
// devices). Values are in the depth sensor's native units (commonly
// millimetres); width/height need not match the colour frame's if the
// depth sensor has a different native resolution.
type DepthSideChannel struct {
	Width  int
	Height int
	Depth  []uint16
}

// Metadata carries optional per-frame capture metadata exposed by some
// backends (exposure, gain, white balance, AF/AE/AWB state, etc). Zero
// values mean "not reported by this backend," not "zero."
type Metadata struct {
	ExposureMicros  int64
	AnalogueGain    float64
	DigitalGain     float64
	ColorTempKelvin int
	WBGainRed       float64
	WBGainBlue      float64
	BlackLevel      int
	Lux             float64
	LensPositionMM  float64
	AFState         string
	AEState         string
	AWBState        string
	Valid           bool
}

// Frame is an immutable record of one captured image. Once published to
// any consumer it is never mutated; consumers that need to retain it
// past the arrival of the next frame call Acquire() on the underlying
// buffer rather than copying bytes.
type Frame struct {
	Width  int
	Height int
	Format pixelformat.Format

	buffer *SharedBuffer
	Stride int

	YUVPlanes *YUVPlanes // nil for packed/semi-planar formats

	CapturedAt         time.Time
	SensorTimestampNs  int64 // 0 if not reported; CapturedAt is authoritative then
	HasSensorTimestamp bool

	Depth    *DepthSideChannel // nil unless a depth-capable backend supplied one
	Metadata Metadata
}

// New validates and constructs a Frame. It returns an error if the
// declared stride or yuv plane geometry would not fit inside buffer
// (spec §3 invariants; spec §8 "declared yuv_planes offsets+sizes fit
// within the buffer").
func New(width, height int, format pixelformat.Format, buffer *SharedBuffer, stride int, planes *YUVPlanes, capturedAt time.Time) (*Frame, error) {
	if width <= 0 || height <= 0 {
		return nil, fmt.Errorf("frame: invalid dimensions %dx%d", width, height)
	}
	if buffer == nil {
		return nil, fmt.Errorf("frame: nil buffer")
	}
	minStride := int(float64(width) * format.BytesPerPixel())
	if stride < minStride && !format.IsBayer() {
		return nil, fmt.Errorf("frame: stride %d < minimum %d for %v", stride, minStride, format)
	}

	bufLen := len(buffer.Bytes())
	if planes != nil {
		for name, p := range map[string]YUVPlane{"Y": planes.Y, "U": planes.U, "V": planes.V} {
			if p.Offset < 0 || p.Size < 0 || p.Offset+p.Size > bufLen {
				return nil, fmt.Errorf("frame: plane %s [%d,%d) out of bounds for buffer len %d", name, p.Offset, p.Offset+p.Size, bufLen)
			}
		}
		if overlaps(planes.Y, planes.U) || overlaps(planes.Y, planes.V) || overlaps(planes.U, planes.V) {
			return nil, fmt.Errorf("frame: yuv planes overlap")
		}
	} else if stride*height > bufLen && !format.IsBayer() {
		return nil, fmt.Errorf("frame: stride*height %d exceeds buffer len %d", stride*height, bufLen)
	}

	return &Frame{
		Width:      width,
		Height:     height,
		Format:     format,
		buffer:     buffer,
		Stride:     stride,
		YUVPlanes:  planes,
		CapturedAt: capturedAt,
	}, nil
}

func overlaps(a, b YUVPlane) bool {
	if a.Size == 0 || b.Size == 0 {
		return false
	}
	aEnd, bEnd := a.Offset+a.Size, b.Offset+b.Size
	return a.Offset < bEnd && b.Offset < aEnd
}

// Bytes returns the frame's pixel payload. The returned slice must
// never be mutated.
func (f *Frame) Bytes() []byte {
	return f.buffer.Bytes()
}

// Acquire returns a new Frame value sharing the same underlying buffer
// with its reference count incremented, so a consumer can retain the
// frame past the arrival of the next one without copying bytes. Release
// must be called exactly once when the retained frame is no longer
// needed.
func (f *Frame) Acquire() *Frame {
	clone := *f
	clone.buffer = f.buffer.Acquire()
	return &clone
}

// Release drops this Frame's reference to its shared buffer.
func (f *Frame) Release() {
	f.buffer.Release()
}

// WithSensorTimestamp returns a copy of f carrying a nanosecond
// sensor-kernel timestamp, preferred over CapturedAt for recording PTS
// when available (spec §3).
func (f *Frame) WithSensorTimestamp(ns int64) *Frame {
	clone := *f
	clone.SensorTimestampNs = ns
	clone.HasSensorTimestamp = true
	return &clone
}

// WithDepth returns a copy of f carrying a depth side-channel.
func (f *Frame) WithDepth(d *DepthSideChannel) *Frame {
	clone := *f
	clone.Depth = d
	return &clone
}

// WithMetadata returns a copy of f carrying capture metadata.
func (f *Frame) WithMetadata(m Metadata) *Frame {
	clone := *f
	clone.Metadata = m
	return &clone
}

// TimestampForPTS returns the sensor timestamp if present, otherwise
// derives one from CapturedAt, matching the video pipeline's PTS
// preference rule in spec §3.
func (f *Frame) TimestampForPTS() time.Duration {
	if f.HasSensorTimestamp {
		return time.Duration(f.SensorTimestampNs)
	}
	return time.Duration(f.CapturedAt.UnixNano())
}
