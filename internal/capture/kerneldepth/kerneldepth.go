// Package kerneldepth implements the capture.Backend that pairs two
// V4L2 color+depth devices whose kernel bus_info strings match (spec
// §4.C "kernel-depth pairs V4L2 color + V4L2 depth devices whose
// bus_info match"). Pairing itself goes through a direct VIDIOC_QUERYCAP
// ioctl via golang.org/x/sys/unix (the low-level syscall style of
// mbrumlow/v4l and pointlander/robot's v4l.go in the retrieval pack),
// while the actual streaming for each paired device is delegated to
// two ordinary internal/capture/v4l2 backends.
package kerneldepth

import (
	"context"
	"fmt"
	"os"
	"sort"
	"sync"
	"time"
	"unsafe"

	"golang.org/x/sys/unix"

	"camera-core/internal/capture"
	"camera-core/internal/capture/v4l2"
	"camera-core/internal/frame"
)

const vidiocQuerycap = 0x80685600 // VIDIOC_QUERYCAP, matches the ioctl-number style of the ported v4l examples

type v4l2Capability struct {
	Driver       [16]byte
	Card         [32]byte
	BusInfo      [32]byte
	Version      uint32
	Capabilities uint32
	DeviceCaps   uint32
	Reserved     [3]uint32
}

// busInfo reads bus_info for a /dev/videoN node via a raw ioctl,
// without shelling out to v4l2-ctl.
func busInfo(path string) (string, error) {
	f, err := os.OpenFile(path, os.O_RDWR, 0)
	if err != nil {
		return "", err
	}
	defer f.Close()

	var qc v4l2Capability
	_, _, errno := unix.Syscall(unix.SYS_IOCTL, f.Fd(), uintptr(vidiocQuerycap), uintptr(unsafe.Pointer(&qc)))
	if errno != 0 {
		return "", errno
	}
	return cString(qc.BusInfo[:]), nil
}

func cString(b []byte) string {
	for i, c := range b {
		if c == 0 {
			return string(b[:i])
		}
	}
	return string(b)
}

// Backend pairs a color and a depth V4L2 device by bus_info and
// streams both, attaching the depth side-channel to every color
// frame.
type Backend struct {
	mu    sync.Mutex
	color *v4l2.Backend
	depth *v4l2.Backend

	device capture.CameraDevice
	format capture.CameraFormat
	slot   frame.Slot
}

func New() *Backend { return &Backend{color: v4l2.New(), depth: v4l2.New()} }

func (b *Backend) Name() string { return "kerneldepth" }

// Enumerate pairs every V4L2 device from the underlying enumeration by
// matching bus_info strings, emitting one CameraDevice per pair with
// Path "v4l2-depth:" + color path and MetadataPath set to the depth
// device's path (spec §3 CameraDevice "optional metadata path for
// kernel paired color+depth devices").
func (b *Backend) Enumerate(ctx context.Context) ([]capture.CameraDevice, error) {
	underlying, err := b.color.Enumerate(ctx)
	if err != nil {
		return nil, err
	}

	byBus := map[string][]capture.CameraDevice{}
	for _, d := range underlying {
		bus, err := busInfo(d.Path)
		if err != nil {
			continue
		}
		byBus[bus] = append(byBus[bus], d)
	}

	var paired []capture.CameraDevice
	for _, devs := range byBus {
		if len(devs) < 2 {
			continue
		}
		sort.Slice(devs, func(i, j int) bool { return devs[i].Path < devs[j].Path })
		paired = append(paired, capture.CameraDevice{
			Name:         devs[0].Name + " (+depth)",
			Path:         "v4l2-depth:" + devs[0].Path,
			MetadataPath: devs[1].Path,
			Sensor:       capture.SensorColor,
		})
	}
	return paired, nil
}

func (b *Backend) Formats(ctx context.Context, device capture.CameraDevice, forVideo bool) ([]capture.CameraFormat, error) {
	colorPath := stripPrefix(device.Path)
	return b.color.Formats(ctx, capture.CameraDevice{Path: colorPath}, forVideo)
}

func stripPrefix(path string) string {
	const prefix = "v4l2-depth:"
	if len(path) > len(prefix) && path[:len(prefix)] == prefix {
		return path[len(prefix):]
	}
	return path
}

func (b *Backend) Initialize(ctx context.Context, device capture.CameraDevice, format capture.CameraFormat) error {
	b.mu.Lock()
	defer b.mu.Unlock()

	colorDev := capture.CameraDevice{Name: device.Name, Path: stripPrefix(device.Path), Sensor: capture.SensorColor}
	depthDev := capture.CameraDevice{Name: device.Name + " depth", Path: device.MetadataPath, Sensor: capture.SensorDepth}

	if err := b.color.Initialize(ctx, colorDev, format); err != nil {
		return err
	}
	depthFormat := format
	depthFormat.Format = "Gray8"
	if err := b.depth.Initialize(ctx, depthDev, depthFormat); err != nil {
		b.color.Shutdown(ctx)
		return err
	}

	b.device, b.format = device, format
	go b.merge(ctx)
	return nil
}

// merge pulls from both underlying slots and republishes the color
// frame with the depth frame's bytes reinterpreted as a uint16 depth
// side-channel attached (spec §3 depth_side_channel).
func (b *Backend) merge(ctx context.Context) {
	ticker := time.NewTicker(16 * time.Millisecond)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
		}
		cf := b.color.PreviewFrames().Load()
		if cf == nil {
			continue
		}
		df := b.depth.PreviewFrames().Load()
		if df != nil {
			raw := df.Bytes()
			depthPixels := make([]uint16, len(raw)/2)
			for i := range depthPixels {
				depthPixels[i] = uint16(raw[2*i]) | uint16(raw[2*i+1])<<8
			}
			cf = cf.WithDepth(&frame.DepthSideChannel{Width: df.Width, Height: df.Height, Depth: depthPixels})
			df.Release()
		}
		b.slot.Store(cf)
	}
}

func (b *Backend) Shutdown(ctx context.Context) error {
	b.mu.Lock()
	defer b.mu.Unlock()
	err1 := b.color.Shutdown(ctx)
	err2 := b.depth.Shutdown(ctx)
	b.slot.Close()
	if err1 != nil {
		return err1
	}
	return err2
}

func (b *Backend) CurrentDevice() (capture.CameraDevice, bool) {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.device, true
}

func (b *Backend) CurrentFormat() (capture.CameraFormat, bool) {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.format, true
}

func (b *Backend) CapturePhoto(ctx context.Context) (*frame.Frame, error) {
	f := b.slot.Load()
	if f == nil {
		return nil, &capture.Error{Kind: capture.KindCrashed, Backend: b.Name(), Err: fmt.Errorf("no paired frame yet")}
	}
	return f, nil
}

func (b *Backend) StartRecording(ctx context.Context, outputPath string) error {
	return b.color.StartRecording(ctx, outputPath)
}

func (b *Backend) StopRecording(ctx context.Context) (string, error) {
	return b.color.StopRecording(ctx)
}

func (b *Backend) PreviewFrames() *frame.Slot { return &b.slot }
