// Package v4l2 implements the V4L2 capture.Backend: direct device
// access via github.com/vladimirvivien/go4vl, the channel-based
// V4L2 binding whose dev.GetFrames()/WithPixFormat/WithBufferSize/
// WithFPS shape maps onto the capture.Backend contract almost exactly
// (spec §4.C "V4L2 (v4l2-ctl-style direct ioctl access)").
package v4l2

import (
	"bufio"
	"bytes"
	"context"
	"fmt"
	"image"
	"image/jpeg"
	"log"
	"os/exec"
	"path/filepath"
	"regexp"
	"sort"
	"strconv"
	"strings"
	"sync"
	"time"

	"github.com/vladimirvivien/go4vl/device"
	"github.com/vladimirvivien/go4vl/v4l2"

	"camera-core/internal/capture"
	"camera-core/internal/frame"
	"camera-core/internal/pixelformat"
)

// Backend is the V4L2 capture.Backend implementation. Enumeration still
// shells out to v4l2-ctl for the human-readable name and USB-camera
// classification (ported from the teacher's internal/camera/device.go
// DiscoverCameras/isUSBCamera), but capture itself goes through go4vl,
// never through a subprocess.
type Backend struct {
	mu        sync.Mutex
	dev       *device.Device
	device    capture.CameraDevice
	format    capture.CameraFormat
	slot      frame.Slot
	recording bool
	outPath   string
	stopRec   chan struct{}
	wg        sync.WaitGroup
}

func New() *Backend { return &Backend{} }

func (b *Backend) Name() string { return "v4l2" }

// Enumerate lists USB camera devices via v4l2-ctl --list-devices,
// exactly as the teacher's DiscoverCameras does, filtered through
// isUSBCamera.
func (b *Backend) Enumerate(ctx context.Context) ([]capture.CameraDevice, error) {
	out, err := exec.CommandContext(ctx, "v4l2-ctl", "--list-devices").Output()
	if err != nil {
		return nil, newErr(capture.KindNotAvailable, fmt.Errorf("v4l2-ctl unavailable: %w", err))
	}

	var devices []capture.CameraDevice
	scanner := bufio.NewScanner(strings.NewReader(string(out)))
	var currentName string
	var paths []string

	flush := func() {
		if currentName != "" && len(paths) > 0 && isUSBCamera(currentName) {
			devices = append(devices, capture.CameraDevice{
				Name:   cleanName(currentName),
				Path:   paths[0],
				Sensor: capture.SensorColor,
			})
		}
	}

	for scanner.Scan() {
		line := scanner.Text()
		if !strings.HasPrefix(line, "\t") && line != "" {
			flush()
			currentName = line
			paths = nil
		} else if strings.HasPrefix(line, "\t") {
			p := strings.TrimSpace(line)
			if strings.HasPrefix(p, "/dev/video") {
				paths = append(paths, p)
			}
		}
	}
	flush()

	sort.Slice(devices, func(i, j int) bool { return devices[i].Path < devices[j].Path })
	return devices, nil
}

func isUSBCamera(name string) bool {
	n := strings.ToLower(name)
	return strings.Contains(n, "usb") ||
		(strings.Contains(n, "camera") && !strings.Contains(n, "pispbe")) ||
		strings.Contains(n, "webcam")
}

func cleanName(name string) string {
	name = strings.TrimSuffix(name, ":")
	if idx := strings.Index(name, "("); idx > 0 {
		name = strings.TrimSpace(name[:idx])
	}
	return name
}

var (
	sizeRegex = regexp.MustCompile(`Size: Discrete (\d+)x(\d+)`)
	fpsRegex  = regexp.MustCompile(`(\d+)\.(\d+) fps`)
)

// Formats queries supported resolution/fps/format tuples with
// v4l2-ctl --list-formats-ext, parsed the way the teacher's
// queryCameraCapabilities parses it, but returning the full set
// instead of collapsing to one chosen resolution.
func (b *Backend) Formats(ctx context.Context, dev capture.CameraDevice, forVideo bool) ([]capture.CameraFormat, error) {
	out, err := exec.CommandContext(ctx, "v4l2-ctl", "-d", dev.Path, "--list-formats-ext").Output()
	if err != nil {
		return nil, newErr(capture.KindDeviceNotFound, err)
	}

	var formats []capture.CameraFormat
	var pixfmt string
	for _, line := range strings.Split(string(out), "\n") {
		line = strings.TrimSpace(line)
		switch {
		case strings.Contains(line, "'MJPG'") || strings.Contains(line, "Motion-JPEG"):
			pixfmt = "I420" // MJPEG decodes to I420/I422/I444 per spec §4.C.1
		case strings.Contains(line, "'YUYV'"):
			pixfmt = "YUYV"
		case strings.Contains(line, "'H264'"):
			pixfmt = "H264"
		}

		if m := sizeRegex.FindStringSubmatch(line); len(m) == 3 {
			w, _ := strconv.Atoi(m[1])
			h, _ := strconv.Atoi(m[2])
			formats = append(formats, capture.CameraFormat{Width: w, Height: h, Format: pixfmt})
		}
		if m := fpsRegex.FindStringSubmatch(line); len(m) == 3 && len(formats) > 0 {
			fps, _ := strconv.ParseFloat(m[1]+"."+m[2], 64)
			if fps > formats[len(formats)-1].FPS {
				formats[len(formats)-1].FPS = fps
			}
		}
	}

	sort.Slice(formats, func(i, j int) bool { return formats[i].Less(formats[j]) })
	return formats, nil
}

func pixelFmtFor(name string) v4l2.FourCCType {
	switch name {
	case "YUYV":
		return v4l2.PixelFmtYUYV
	case "H264":
		return v4l2.PixelFmtH264
	default:
		return v4l2.PixelFmtMJPEG
	}
}

// Initialize opens the device via go4vl with the requested pixel
// format/fps/buffer count, starts streaming, and launches a goroutine
// draining dev.GetFrames() into the preview slot.
func (b *Backend) Initialize(ctx context.Context, dev capture.CameraDevice, format capture.CameraFormat) error {
	b.mu.Lock()
	defer b.mu.Unlock()

	d, err := device.Open(dev.Path,
		device.WithBufferSize(4),
		device.WithPixFormat(v4l2.PixFormat{
			Width:       uint32(format.Width),
			Height:      uint32(format.Height),
			PixelFormat: pixelFmtFor(format.Format),
		}),
		device.WithFPS(uint32(format.FPS)),
	)
	if err != nil {
		return newErr(capture.KindInitializationFailed, err)
	}
	if err := d.Start(ctx); err != nil {
		d.Close()
		return newErr(capture.KindInitializationFailed, err)
	}

	b.dev = d
	b.device = dev
	b.format = format

	b.wg.Add(1)
	go b.pump(ctx)
	return nil
}

func (b *Backend) pump(ctx context.Context) {
	defer b.wg.Done()
	format, err := pixelformat.ParseFormat(b.format.Format)
	if err != nil {
		// H264 (hardware-encoded bitstream) and any other format
		// outside the closed pixel-format set has no Frame
		// representation; this backend has no bitstream decoder.
		log.Printf("[v4l2] %s: no frame decode path, pump exiting", b.format.Format)
		return
	}

	for {
		select {
		case <-ctx.Done():
			return
		case f, ok := <-b.dev.GetFrames():
			if !ok {
				return
			}
			if len(f.Data) == 0 {
				// UVC first-frame quirk (spec §4.C.1 step 6): skip, not an error
				f.Release()
				continue
			}
			data := make([]byte, len(f.Data))
			copy(data, f.Data)
			f.Release()

			var fr *frame.Frame
			var ferr error
			if format.Family() == pixelformat.FamilyYUV && format != pixelformat.YUYV &&
				format != pixelformat.UYVY && format != pixelformat.YVYU && format != pixelformat.VYUY {
				// MJPEG-backed formats (I420/I422/I444, spec §4.C.1): the
				// driver handed back a JPEG bitstream, decode it to planar
				// YUV rather than tagging the compressed bytes as raw pixels.
				fr, ferr = decodeMJPEGFrame(data, f.Timestamp)
			} else {
				buf := frame.NewSharedBuffer(data, nil)
				stride := pixelformat.ComputeStride(format, b.format.Width, len(data), b.format.Height)
				fr, ferr = frame.New(b.format.Width, b.format.Height, format, buf, stride, nil, f.Timestamp)
				if ferr != nil {
					buf.Release()
				}
			}
			if ferr != nil {
				log.Printf("[v4l2] dropping malformed frame: %v", ferr)
				continue
			}
			b.slot.Store(fr)
		}
	}
}

// decodeMJPEGFrame decodes one Motion-JPEG frame from the driver into a
// planar YUV Frame, preserving whatever chroma subsampling the encoder
// actually used (4:2:0, 4:2:2, or 4:4:4) rather than assuming I420
// (spec §4.C.1, spec §8 scenario 6).
func decodeMJPEGFrame(data []byte, capturedAt time.Time) (*frame.Frame, error) {
	img, err := jpeg.Decode(bytes.NewReader(data))
	if err != nil {
		return nil, fmt.Errorf("mjpeg decode: %w", err)
	}
	ycbcr, ok := img.(*image.YCbCr)
	if !ok {
		return nil, fmt.Errorf("mjpeg decode: unexpected color model %T", img)
	}

	var format pixelformat.Format
	switch ycbcr.SubsampleRatio {
	case image.YCbCrSubsampleRatio420:
		format = pixelformat.I420
	case image.YCbCrSubsampleRatio422:
		format = pixelformat.I422
	case image.YCbCrSubsampleRatio444:
		format = pixelformat.I444
	default:
		format = pixelformat.I420
	}

	width, height := ycbcr.Rect.Dx(), ycbcr.Rect.Dy()
	ySize, cbSize, crSize := len(ycbcr.Y), len(ycbcr.Cb), len(ycbcr.Cr)

	packed := make([]byte, ySize+cbSize+crSize)
	copy(packed, ycbcr.Y)
	copy(packed[ySize:], ycbcr.Cb)
	copy(packed[ySize+cbSize:], ycbcr.Cr)

	cw, ch := width, height
	switch format {
	case pixelformat.I420:
		cw, ch = (width+1)/2, (height+1)/2
	case pixelformat.I422:
		cw, ch = (width+1)/2, height
	}

	planes := &frame.YUVPlanes{
		Y: frame.YUVPlane{Offset: 0, Size: ySize, Stride: ycbcr.YStride, Width: width, Height: height},
		U: frame.YUVPlane{Offset: ySize, Size: cbSize, Stride: ycbcr.CStride, Width: cw, Height: ch},
		V: frame.YUVPlane{Offset: ySize + cbSize, Size: crSize, Stride: ycbcr.CStride, Width: cw, Height: ch},
	}

	buf := frame.NewSharedBuffer(packed, nil)
	fr, err := frame.New(width, height, format, buf, ycbcr.YStride, planes, capturedAt)
	if err != nil {
		buf.Release()
		return nil, err
	}
	return fr, nil
}

func (b *Backend) Shutdown(ctx context.Context) error {
	b.mu.Lock()
	d := b.dev
	b.dev = nil
	b.mu.Unlock()

	if d == nil {
		return nil
	}
	d.Close()
	b.wg.Wait()
	b.slot.Close()
	return nil
}

func (b *Backend) CurrentDevice() (capture.CameraDevice, bool) {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.device, b.dev != nil
}

func (b *Backend) CurrentFormat() (capture.CameraFormat, bool) {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.format, b.dev != nil
}

// CapturePhoto returns the most recent preview frame, acquired so the
// caller owns an independent reference (single-stream V4L2 has no
// distinct still pipeline; spec §8 "single-stream cameras set the
// still slot from the preview stream").
func (b *Backend) CapturePhoto(ctx context.Context) (*frame.Frame, error) {
	f := b.slot.Load()
	if f == nil {
		return nil, newErr(capture.KindCrashed, fmt.Errorf("no frame available yet"))
	}
	return f, nil
}

func (b *Backend) StartRecording(ctx context.Context, outputPath string) error {
	b.mu.Lock()
	defer b.mu.Unlock()
	if b.recording {
		return newErr(capture.KindRecordingInProgress, nil)
	}
	b.recording = true
	b.outPath = outputPath
	b.stopRec = make(chan struct{})
	return nil
}

func (b *Backend) StopRecording(ctx context.Context) (string, error) {
	b.mu.Lock()
	defer b.mu.Unlock()
	if !b.recording {
		return "", newErr(capture.KindNoRecordingInProgress, nil)
	}
	b.recording = false
	close(b.stopRec)
	return b.outPath, nil
}

func (b *Backend) PreviewFrames() *frame.Slot { return &b.slot }

func newErr(kind capture.Kind, err error) error {
	return &capture.Error{Kind: kind, Backend: "v4l2", Err: err}
}
