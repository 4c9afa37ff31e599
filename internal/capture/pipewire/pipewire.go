// Package pipewire implements the capture.Backend that subscribes to
// the desktop compositor's camera portal via PipeWire. No Go binding
// for PipeWire or GStreamer exists anywhere in the retrieval pack, so
// this backend drives `gst-launch-1.0` as a subprocess and reads raw
// frames off its stdout, generalizing the teacher's FFmpeg-subprocess
// capture pattern (internal/camera/capture.go tryFFmpegCapture /
// readMJPEGFrameRaw) from MJPEG-marker framing to fixed-size NV12
// frame framing (raw caps make the frame size known up front, so no
// marker scan is needed).
package pipewire

import (
	"bufio"
	"context"
	"fmt"
	"io"
	"log"
	"os/exec"
	"strconv"
	"strings"
	"sync"
	"sync/atomic"
	"time"

	"camera-core/internal/capture"
	"camera-core/internal/frame"
	"camera-core/internal/pixelformat"
)

// Backend is the PipeWire capture.Backend implementation.
type Backend struct {
	mu     sync.Mutex
	cmd    *exec.Cmd
	cancel context.CancelFunc
	wg     sync.WaitGroup

	device capture.CameraDevice
	format capture.CameraFormat

	slot      frame.Slot
	running   atomic.Bool
	recording atomic.Bool
	outPath   string

	frameCount atomic.Uint64
}

func New() *Backend { return &Backend{} }

func (b *Backend) Name() string { return "pipewire" }

// Enumerate lists PipeWire video source nodes via `pw-cli ls Node`,
// filtered to nodes whose media.class is Video/Source.
func (b *Backend) Enumerate(ctx context.Context) ([]capture.CameraDevice, error) {
	out, err := exec.CommandContext(ctx, "pw-cli", "ls", "Node").Output()
	if err != nil {
		return nil, &capture.Error{Kind: capture.KindNotAvailable, Backend: b.Name(), Err: err}
	}

	var devices []capture.CameraDevice
	var currentID, currentName string
	isVideoSource := false

	flush := func() {
		if isVideoSource && currentID != "" {
			devices = append(devices, capture.CameraDevice{
				Name:   currentName,
				Path:   "pipewire-serial-" + currentID,
				Sensor: capture.SensorColor,
			})
		}
	}

	for _, line := range strings.Split(string(out), "\n") {
		line = strings.TrimSpace(line)
		if strings.HasPrefix(line, "id ") {
			flush()
			isVideoSource, currentName = false, ""
			fields := strings.Fields(line)
			if len(fields) >= 2 {
				currentID = strings.TrimSuffix(fields[1], ",")
			}
		}
		if strings.Contains(line, "media.class = \"Video/Source\"") {
			isVideoSource = true
		}
		if strings.Contains(line, "node.description") {
			if idx := strings.Index(line, "="); idx >= 0 {
				currentName = strings.Trim(strings.TrimSpace(line[idx+1:]), "\"")
			}
		}
	}
	flush()
	return devices, nil
}

// Formats returns a fixed list of two NV12 profiles (1280x720@30 and
// 1920x1080@30) rather than a full enumeration, since PipeWire clients
// don't choose formats the way V4L2 nodes do; the node is not queried.
func (b *Backend) Formats(ctx context.Context, device capture.CameraDevice, forVideo bool) ([]capture.CameraFormat, error) {
	return []capture.CameraFormat{
		{Width: 1280, Height: 720, FPS: 30, Format: pixelformat.NV12.String()},
		{Width: 1920, Height: 1080, FPS: 30, Format: pixelformat.NV12.String()},
	}, nil
}

// Initialize launches a gst-launch-1.0 graph reading the requested
// PipeWire node and writing raw NV12 to stdout via `fdsink fd=1`,
// then starts a goroutine reading
// fixed-size frames off the pipe.
func (b *Backend) Initialize(ctx context.Context, device capture.CameraDevice, format capture.CameraFormat) error {
	b.mu.Lock()
	defer b.mu.Unlock()

	serial := strings.TrimPrefix(device.Path, "pipewire-serial-")
	args := []string{
		"pipewiresrc", "target-object=" + serial, "!",
		"video/x-raw,format=NV12,width=" + strconv.Itoa(format.Width) +
			",height=" + strconv.Itoa(format.Height) + ",framerate=" + fpsFraction(format.FPS), "!",
		"fdsink", "fd=1",
	}

	ctx, cancel := context.WithCancel(ctx)
	cmd := exec.CommandContext(ctx, "gst-launch-1.0", args...)
	cmd.Stderr = nil

	stdout, err := cmd.StdoutPipe()
	if err != nil {
		cancel()
		return &capture.Error{Kind: capture.KindInitializationFailed, Backend: b.Name(), Err: err}
	}
	if err := cmd.Start(); err != nil {
		cancel()
		return &capture.Error{Kind: capture.KindInitializationFailed, Backend: b.Name(), Err: err}
	}

	b.cmd = cmd
	b.cancel = cancel
	b.device = device
	b.format = format
	b.running.Store(true)

	frameSize := format.Width*format.Height + 2*((format.Width+1)/2)*((format.Height+1)/2)
	b.wg.Add(1)
	go b.pump(stdout, frameSize)
	return nil
}

func fpsFraction(fps float64) string {
	if fps <= 0 {
		return "30/1"
	}
	return fmt.Sprintf("%d/1", int(fps))
}

func (b *Backend) pump(r io.Reader, frameSize int) {
	defer b.wg.Done()
	reader := bufio.NewReaderSize(r, 256*1024)
	for b.running.Load() {
		buf := make([]byte, frameSize)
		if _, err := io.ReadFull(reader, buf); err != nil {
			if err != io.EOF && err != io.ErrUnexpectedEOF {
				log.Printf("[pipewire] read error: %v", err)
			}
			return
		}
		sb := frame.NewSharedBuffer(buf, nil)
		fr, err := frame.New(b.format.Width, b.format.Height, pixelformat.NV12, sb,
			pixelformat.ComputeStride(pixelformat.NV12, b.format.Width, len(buf), b.format.Height),
			nil, time.Now())
		if err != nil {
			sb.Release()
			continue
		}
		b.frameCount.Add(1)
		b.slot.Store(fr)
	}
}

func (b *Backend) Shutdown(ctx context.Context) error {
	b.mu.Lock()
	cancel := b.cancel
	cmd := b.cmd
	b.running.Store(false)
	b.cmd = nil
	b.cancel = nil
	b.mu.Unlock()

	if cancel != nil {
		cancel()
	}
	if cmd != nil {
		cmd.Wait()
	}
	b.wg.Wait()
	b.slot.Close()
	return nil
}

func (b *Backend) CurrentDevice() (capture.CameraDevice, bool) {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.device, b.running.Load()
}

func (b *Backend) CurrentFormat() (capture.CameraFormat, bool) {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.format, b.running.Load()
}

func (b *Backend) CapturePhoto(ctx context.Context) (*frame.Frame, error) {
	f := b.slot.Load()
	if f == nil {
		return nil, &capture.Error{Kind: capture.KindCrashed, Backend: b.Name(), Err: fmt.Errorf("no frame yet")}
	}
	return f, nil
}

func (b *Backend) StartRecording(ctx context.Context, outputPath string) error {
	if !b.recording.CompareAndSwap(false, true) {
		return &capture.Error{Kind: capture.KindRecordingInProgress, Backend: b.Name()}
	}
	b.mu.Lock()
	b.outPath = outputPath
	b.mu.Unlock()
	return nil
}

func (b *Backend) StopRecording(ctx context.Context) (string, error) {
	if !b.recording.CompareAndSwap(true, false) {
		return "", &capture.Error{Kind: capture.KindNoRecordingInProgress, Backend: b.Name()}
	}
	b.mu.Lock()
	p := b.outPath
	b.mu.Unlock()
	return p, nil
}

func (b *Backend) PreviewFrames() *frame.Slot { return &b.slot }
