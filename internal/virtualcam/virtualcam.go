// Package virtualcam exposes the capture stream as a system camera
// source via a parallel GStreamer graph (spec §4.— "Virtual camera
// sink"): appsrc (NV12) -> pipewiresink advertising a Video/Source
// role Camera node.
package virtualcam

import (
	"fmt"
	"log"
	"os/exec"
	"strings"
	"sync"
	"time"

	"camera-core/internal/frame"
	"camera-core/internal/gpu"
	"camera-core/internal/pixelformat"
)

// NodeName is the PipeWire node name the sink advertises (spec §4.—
// "node name cosmic-camera-virtual").
const NodeName = "cosmic-camera-virtual"

// Sink owns the supervised gst-launch-1.0 subprocess backing the
// virtual camera node, plus the GPU device used for the
// filter+RGBA->NV12 round-trip.
type Sink struct {
	device *gpu.Device
	filter gpu.Filter

	mu      sync.Mutex
	cmd     *exec.Cmd
	stdin   writeCloser
	width   int
	height  int
	running bool
}

type writeCloser interface {
	Write(p []byte) (int, error)
	Close() error
}

// NewSink returns a Sink using device for the GPU filter+encode path.
// device may be nil, in which case Push always uses the CPU fallback
// (spec §4.— "(b) CPU-converted when the GPU is unavailable").
func NewSink(device *gpu.Device) *Sink {
	return &Sink{device: device, filter: gpu.FilterStandard}
}

// SetFilter selects the filter applied before the NV12 round-trip.
func (s *Sink) SetFilter(f gpu.Filter) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.filter = f
}

// Start launches the appsrc -> pipewiresink graph at the given
// dimensions and frame rate. Frames are pushed via Push once started.
func (s *Sink) Start(width, height, fps int) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.running {
		return fmt.Errorf("virtualcam: already running")
	}

	pipeline := fmt.Sprintf(
		"appsrc name=src is-live=true format=time block=true do-timestamp=true "+
			"caps=video/x-raw,format=NV12,width=%d,height=%d,framerate=%d/1 ! "+
			"queue ! pipewiresink client-properties=\"media.role=Camera\" "+
			"stream-properties=\"node.name=%s\"",
		width, height, fps, NodeName)

	args := strings.Fields(pipeline)
	cmd := exec.Command("gst-launch-1.0", args...)
	stdin, err := cmd.StdinPipe()
	if err != nil {
		return fmt.Errorf("virtualcam: stdin pipe: %w", err)
	}
	if err := cmd.Start(); err != nil {
		return fmt.Errorf("virtualcam: start gst-launch-1.0: %w", err)
	}

	s.cmd = cmd
	s.stdin = stdin
	s.width = width
	s.height = height
	s.running = true
	log.Printf("[VirtualCam] started %s at %dx%d@%d", NodeName, width, height, fps)
	return nil
}

// Stop tears down the appsrc pipeline.
func (s *Sink) Stop() error {
	s.mu.Lock()
	cmd := s.cmd
	stdin := s.stdin
	s.cmd = nil
	s.stdin = nil
	s.running = false
	s.mu.Unlock()

	if cmd == nil {
		return nil
	}
	if stdin != nil {
		_ = stdin.Close()
	}
	if cmd.Process != nil {
		_ = cmd.Process.Kill()
	}
	_ = cmd.Wait()
	return nil
}

// Push converts f to NV12 — through the GPU filter+round-trip when a
// device is available, or a CPU fallback otherwise — and writes it to
// the appsrc pipe with live timestamping (spec §4.— "Each frame... is
// either (a) run through the GPU filter shader and RGBA->NV12
// round-trip, or (b) CPU-converted... Frames are pushed to appsrc with
// live timestamping").
func (s *Sink) Push(f *frame.Frame) error {
	s.mu.Lock()
	stdin := s.stdin
	running := s.running
	s.mu.Unlock()
	if !running || stdin == nil {
		return fmt.Errorf("virtualcam: not running")
	}

	nv12, err := s.toNV12(f)
	if err != nil {
		return err
	}

	_, err = stdin.Write(nv12)
	return err
}

func (s *Sink) toNV12(f *frame.Frame) ([]byte, error) {
	if s.device != nil {
		tex, err := s.device.ConvertToRGBA(f)
		if err == nil {
			filtered, err := s.device.ApplyFilter(tex, s.filter)
			if err == nil {
				return s.device.EncodeNV12(filtered)
			}
		}
	}
	return cpuToNV12(f)
}

// cpuToNV12 is the fallback path when no GPU device is available. NV12
// passes through untouched and NV21 only needs its chroma bytes
// swapped; I420/I422/I444 (and any other format internal/gpu's CPU
// conversion path understands) go through the RGBA intermediate
// gpu.ConvertToNV12CPU uses for the GPU round-trip, since resampling
// their chroma planes down to NV12's 4:2:0 layout needs the same
// per-pixel BT.601 math either way. Raw Bayer has no CPU demosaic path
// and returns an error.
func cpuToNV12(f *frame.Frame) ([]byte, error) {
	switch f.Format {
	case pixelformat.NV12:
		return f.Bytes(), nil
	case pixelformat.NV21:
		return swapChromaNV(f.Bytes(), f.Width, f.Height), nil
	case pixelformat.I420, pixelformat.I422, pixelformat.I444,
		pixelformat.YUYV, pixelformat.UYVY, pixelformat.YVYU, pixelformat.VYUY,
		pixelformat.Gray8:
		return gpu.ConvertToNV12CPU(f)
	default:
		return nil, fmt.Errorf("virtualcam: no CPU NV12 fallback for format %v", f.Format)
	}
}

// swapChromaNV swaps the interleaved V,U bytes of an NV21 chroma plane
// to produce NV12 (U,V order), leaving the luma plane untouched.
func swapChromaNV(data []byte, width, height int) []byte {
	lumaSize := width * height
	out := make([]byte, len(data))
	copy(out[:lumaSize], data[:lumaSize])
	for i := lumaSize; i+1 < len(data); i += 2 {
		out[i] = data[i+1]
		out[i+1] = data[i]
	}
	return out
}

// frameDuration is a convenience for callers computing appsrc push
// cadence from a target frame rate.
func frameDuration(fps int) time.Duration {
	if fps <= 0 {
		fps = 30
	}
	return time.Second / time.Duration(fps)
}
