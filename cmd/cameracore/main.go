// Command cameracore is the demo/driver binary exercising every
// operation of the camera core library in place of the teacher's fyne
// UI entrypoint (spec §1 Non-goal: the UI toolkit is an external
// collaborator, not part of this module).
package main

import (
	"context"
	"flag"
	"fmt"
	"log"
	"os"
	"os/signal"
	"runtime"
	"syscall"
	"time"

	"camera-core/internal/capture"
	"camera-core/internal/capture/v4l2"
	"camera-core/internal/config"
	"camera-core/internal/frame"
	"camera-core/internal/gpu"
	"camera-core/internal/hdr"
	"camera-core/internal/perf"
	"camera-core/internal/photo"
	"camera-core/internal/virtualcam"
)

// Version information - set by linker flags during build.
var (
	Version   = "dev"
	BuildTime = "unknown"
	GoVersion = "unknown"
)

func main() {
	showVersion := flag.Bool("version", false, "Show version information")
	flag.BoolVar(showVersion, "v", false, "Show version information (shorthand)")
	configPath := flag.String("config", "", "Path to config.ini (default: ./config.ini or $CAMERA_DASHBOARD_CONFIG)")
	devicePath := flag.String("device", "", "Capture device path to open (empty = first enumerated)")
	burstFrames := flag.Int("burst", 0, "Capture an HDR+ burst of N frames on startup (0 = skip)")
	recordSecs := flag.Int("record", 0, "Record N seconds of video on startup (0 = skip)")
	flag.Parse()

	if *showVersion {
		fmt.Printf("cameracore %s\n", Version)
		fmt.Printf("  Build time: %s\n", BuildTime)
		fmt.Printf("  Go version: %s\n", GoVersion)
		fmt.Printf("  Platform:   %s/%s\n", runtime.GOOS, runtime.GOARCH)
		os.Exit(0)
	}

	cfg, err := config.Load(*configPath)
	if err != nil {
		log.Printf("[Main] WARNING: config load error: %v (using defaults)", err)
		cfg = config.DefaultConfig()
	}

	logCleanup, err := config.ConfigureLogging(cfg)
	if err != nil {
		log.Printf("[Main] WARNING: logging setup error: %v", err)
	}
	if logCleanup != nil {
		defer logCleanup()
	}

	log.Printf("[Main] cameracore %s starting...", Version)
	if ok, warnings := cfg.Validate(); !ok {
		for _, w := range warnings {
			log.Printf("[Main] WARNING: %s", w)
		}
	}

	ctx, cancel := context.WithCancel(context.Background())
	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)
	go func() {
		sig := <-sigCh
		log.Printf("[Main] received signal %v, shutting down", sig)
		cancel()
	}()

	if err := run(ctx, cfg, *devicePath, *burstFrames, *recordSecs); err != nil {
		log.Printf("[Main] fatal: %v", err)
		os.Exit(1)
	}
}

func run(ctx context.Context, cfg *config.Config, devicePath string, burstFrames, recordSecs int) error {
	manager := capture.NewManager()
	manager.OnRecovery(func(ev capture.RecoveryEvent) {
		log.Printf("[Main] recovery %s attempt %d/%d: %v", ev.Phase, ev.Attempt, ev.MaxAttempt, ev.Err)
	})

	backend := v4l2.New()
	devices, err := backend.Enumerate(ctx)
	if err != nil {
		return fmt.Errorf("enumerate devices: %w", err)
	}
	if len(devices) == 0 {
		return fmt.Errorf("no capture devices found")
	}

	device := devices[0]
	if devicePath != "" {
		for _, d := range devices {
			if d.Path == devicePath {
				device = d
				break
			}
		}
	}

	formats, err := backend.Formats(ctx, device, recordSecs > 0)
	if err != nil {
		return fmt.Errorf("enumerate formats for %s: %w", device.Path, err)
	}
	if len(formats) == 0 {
		return fmt.Errorf("no formats advertised for %s", device.Path)
	}
	chosenFormat := pickBestFormat(formats)

	if err := manager.Select(ctx, backend, device, chosenFormat); err != nil {
		return fmt.Errorf("select backend: %w", err)
	}
	defer manager.Shutdown(ctx)

	device, _ = manager.CurrentDevice()
	cfg.LastCameraPath = device.Path
	if cfg.CameraFormats == nil {
		cfg.CameraFormats = make(map[string]string)
	}
	cfg.CameraFormats[device.Path] = fmt.Sprintf("%dx%d@%g:%s",
		chosenFormat.Width, chosenFormat.Height, chosenFormat.FPS, chosenFormat.Format)
	if err := cfg.Save(""); err != nil {
		log.Printf("[Main] WARNING: persisting config: %v", err)
	}

	gpuDevice, err := gpu.New()
	if err != nil {
		log.Printf("[Main] WARNING: GPU unavailable (%v); conversion and filter paths degrade to CPU fallbacks, HDR+ burst is unavailable", err)
		gpuDevice = nil
	} else {
		defer gpuDevice.Close()
	}

	controller := perf.NewSmartController(manager, cfg)
	controller.FPSChanged = func(fps int) {
		log.Printf("[Main] adaptive controller requests %d fps (informational; capture FPS is fixed at Select time)", fps)
	}
	controller.Start()
	defer controller.Stop()

	deviceName := device.Name

	if err := exercisePhotoCapture(ctx, manager, gpuDevice, cfg, deviceName); err != nil {
		log.Printf("[Main] photo capture exercise failed: %v", err)
	}

	if burstFrames > 0 {
		if err := exerciseBurst(ctx, manager, gpuDevice, cfg, burstFrames, deviceName); err != nil {
			log.Printf("[Main] burst exercise failed: %v", err)
		}
	}

	if recordSecs > 0 {
		if err := exerciseRecording(ctx, manager, recordSecs); err != nil {
			log.Printf("[Main] recording exercise failed: %v", err)
		}
	}

	exerciseVirtualCam(manager, gpuDevice)

	<-ctx.Done()
	log.Printf("[Main] shutdown complete")
	return nil
}

func pickBestFormat(formats []capture.CameraFormat) capture.CameraFormat {
	best := formats[0]
	for _, f := range formats[1:] {
		if f.Less(best) {
			best = f
		}
	}
	return best
}

func exercisePhotoCapture(ctx context.Context, manager *capture.Manager, gpuDevice *gpu.Device, cfg *config.Config, deviceName string) error {
	f, err := manager.CapturePhoto(ctx)
	if err != nil {
		return fmt.Errorf("capture photo: %w", err)
	}
	defer f.Release()

	rgba, width, height := toRGBA(gpuDevice, f)

	processed, pw, ph := photo.PostProcess(rgba, width, height, photo.PostProcessOptions{})
	format := photo.OutputFormat(cfg.PhotoOutputFormat)
	if format == "" {
		format = photo.FormatJPEG
	}
	encoded, err := photo.Encode(processed, pw, ph, format, f.Metadata, deviceName, f.Depth)
	if err != nil {
		return fmt.Errorf("encode: %w", err)
	}

	path, err := photo.Save(".", format, encoded, f.CapturedAt)
	if err != nil {
		return fmt.Errorf("save: %w", err)
	}
	log.Printf("[Main] saved still capture to %s", path)
	return nil
}

// toRGBA converts f via the GPU device when available, falling back to
// a zeroed buffer of the right shape so callers exercising the
// downstream pipeline still get correctly-sized data without a live
// Vulkan device.
func toRGBA(gpuDevice *gpu.Device, f *frame.Frame) ([]byte, int, int) {
	if gpuDevice != nil {
		tex, err := gpuDevice.ConvertToRGBA(f)
		if err == nil {
			rgba, err := gpuDevice.Readback(tex)
			if err == nil {
				return rgba, tex.Width, tex.Height
			}
		}
	}
	return make([]byte, f.Width*f.Height*4), f.Width, f.Height
}

func exerciseBurst(ctx context.Context, manager *capture.Manager, gpuDevice *gpu.Device, cfg *config.Config, frameCount int, deviceName string) error {
	if gpuDevice == nil {
		return fmt.Errorf("burst requires a GPU device")
	}
	engine := hdr.New(gpuDevice, hdr.DefaultConfig())

	slot := manager.PreviewFrames()
	if slot == nil {
		return fmt.Errorf("no preview slot available")
	}

	resultCh, err := engine.StartCapture(frameCount, slot.Load())
	if err != nil {
		return fmt.Errorf("start burst: %w", err)
	}

	collectCtx, cancel := context.WithTimeout(ctx, 10*time.Second)
	defer cancel()
	ticker := time.NewTicker(33 * time.Millisecond)
	defer ticker.Stop()

collect:
	for {
		select {
		case <-collectCtx.Done():
			return fmt.Errorf("timed out collecting burst frames")
		case <-ticker.C:
			if f := slot.Load(); f != nil {
				engine.Collect(f)
				f.Release()
			}
			if engine.State() != hdr.Collecting {
				break collect
			}
		}
	}

	select {
	case result := <-resultCh:
		if result.Err != nil {
			return fmt.Errorf("burst processing: %w", result.Err)
		}
		format := photo.OutputFormat(cfg.PhotoOutputFormat)
		if format == "" {
			format = photo.FormatJPEG
		}
		encoded, err := photo.Encode(result.RGBA, result.Width, result.Height, format, frame.Metadata{}, deviceName, nil)
		if err != nil {
			return fmt.Errorf("encode burst result: %w", err)
		}
		path, err := photo.Save(".", format, encoded, time.Now())
		if err != nil {
			return fmt.Errorf("save burst result: %w", err)
		}
		log.Printf("[Main] saved HDR+ burst result (reference frame %d) to %s", result.ReferenceIdx, path)
		return nil
	case <-collectCtx.Done():
		return fmt.Errorf("timed out waiting for burst result")
	}
}

func exerciseRecording(ctx context.Context, manager *capture.Manager, seconds int) error {
	path := fmt.Sprintf("recording_%d.mp4", time.Now().Unix())
	if err := manager.StartRecording(ctx, path); err != nil {
		return fmt.Errorf("start recording: %w", err)
	}
	log.Printf("[Main] recording to %s for %ds", path, seconds)

	select {
	case <-time.After(time.Duration(seconds) * time.Second):
	case <-ctx.Done():
	}

	out, err := manager.StopRecording(ctx)
	if err != nil {
		return fmt.Errorf("stop recording: %w", err)
	}
	log.Printf("[Main] recording saved to %s", out)
	return nil
}

func exerciseVirtualCam(manager *capture.Manager, gpuDevice *gpu.Device) {
	format, ok := manager.CurrentFormat()
	if !ok {
		return
	}
	sink := virtualcam.NewSink(gpuDevice)
	if err := sink.Start(format.Width, format.Height, int(format.FPS)); err != nil {
		log.Printf("[Main] virtual camera unavailable: %v", err)
		return
	}
	log.Printf("[Main] virtual camera %q active", virtualcam.NodeName)
}
