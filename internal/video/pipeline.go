package video

import (
	"fmt"
	"log"
	"os"
	"os/exec"
	"strings"
	"sync"
	"syscall"
	"time"
)

// SourceKind selects how the encode pipeline receives frames (spec
// §4.G "video source (PipeWire with a specific node serial, or live
// appsrc fed from the capture-thread recording sender)").
type SourceKind int

const (
	SourcePipeWire SourceKind = iota
	SourceAppSrc
)

// GraphOptions parameterizes BuildGraphArgs.
type GraphOptions struct {
	Source       SourceKind
	NodeSerial   string // PipeWire node serial, required when Source == SourcePipeWire
	Width        int
	Height       int
	FPS          int
	Encoder      Encoder
	BitrateKbps  int
	X264Preset   string
	OutputPath   string
	WithAudio    bool
	AudioNodeSer string
	WithPreview  bool
}

// BuildGraphArgs constructs the gst-launch-1.0 argv for spec §4.G's
// graph: source -> optional JPEG decode -> videoconvert -> videoscale
// -> capsfilter -> tee -> {record branch, preview branch}, plus an
// audio branch when enabled.
func BuildGraphArgs(opt GraphOptions) []string {
	width, height := opt.Width, opt.Height
	if opt.Encoder.Name == "openh264enc" {
		width, height = OpenH264DownscaleDims(width, height)
	}
	muxer := MuxerFor(opt.Encoder.Codec)

	var b strings.Builder
	switch opt.Source {
	case SourcePipeWire:
		fmt.Fprintf(&b, "pipewiresrc path=%s ! ", opt.NodeSerial)
	case SourceAppSrc:
		fmt.Fprintf(&b, "appsrc name=videosrc is-live=true format=time ! ")
	}
	fmt.Fprintf(&b, "videoconvert ! videoscale ! video/x-raw,width=%d,height=%d,framerate=%d/1 ! tee name=t ", width, height, opt.FPS)

	fmt.Fprintf(&b, "t. ! queue ! %s ", opt.Encoder.Name)
	if opt.Encoder.Kind == KindSoftware && (opt.Encoder.Name == "x264enc" || opt.Encoder.Name == "x265enc") {
		fmt.Fprintf(&b, "bitrate=%d speed-preset=%s ", opt.BitrateKbps, opt.X264Preset)
	} else {
		fmt.Fprintf(&b, "bitrate=%d ", opt.BitrateKbps)
	}
	if parser := parserFor(opt.Encoder.Codec); parser != "" {
		fmt.Fprintf(&b, "! %s ! %s name=mux ", parser, muxer.Element)
	} else {
		fmt.Fprintf(&b, "! %s name=mux ", muxer.Element)
	}
	for _, p := range muxer.MuxerProperties() {
		fmt.Fprintf(&b, "%s ", p)
	}
	fmt.Fprintf(&b, "! filesink location=%s ", opt.OutputPath)

	if opt.WithPreview {
		fmt.Fprint(&b, "t. ! queue ! appsink name=previewsink emit-signals=true sync=false ")
	}

	if opt.WithAudio {
		fmt.Fprintf(&b, "pipewiresrc path=%s ! queue ! audioconvert ! audioresample ! volume ! limiter ! opusenc ! mux. ", opt.AudioNodeSer)
	}

	return buildLaunchArgs(b.String())
}

// parserFor selects the bitstream-parser element the muxer needs to
// negotiate caps, matching the encoded codec rather than always
// assuming H.264 (spec §4.G graph step "optional JPEG decode ->
// videoconvert -> ... -> parser -> muxer" generalizes to one parser
// per codec).
func parserFor(codec Codec) string {
	switch codec {
	case CodecH264:
		return "h264parse config-interval=1"
	case CodecHEVC:
		return "h265parse config-interval=1"
	case CodecAV1:
		return "av1parse"
	default:
		return ""
	}
}

// Pipeline wraps one supervised gst-launch-1.0 subprocess, the same
// "own a single exec.Cmd, kill+reap on stop" pattern the teacher uses
// for ffmpeg in internal/camera/capture.go.
type Pipeline struct {
	mu         sync.Mutex
	cmd        *exec.Cmd
	outputPath string
	started    time.Time
}

// NewPipeline returns an idle Pipeline.
func NewPipeline() *Pipeline {
	return &Pipeline{}
}

// Start launches gst-launch-1.0 with the graph built from opt.
func (p *Pipeline) Start(opt GraphOptions) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.cmd != nil {
		return fmt.Errorf("video: pipeline already running")
	}

	args := BuildGraphArgs(opt)
	log.Printf("[Video] starting pipeline: gst-launch-1.0 %s", strings.Join(args, " "))
	cmd := exec.Command("gst-launch-1.0", args...)
	cmd.Stderr = nil
	if err := cmd.Start(); err != nil {
		return fmt.Errorf("video: start gst-launch-1.0: %w", err)
	}

	p.cmd = cmd
	p.outputPath = opt.OutputPath
	p.started = time.Now()
	return nil
}

// Stop sends an interrupt (gst-launch-1.0 converts SIGINT to an EOS
// and waits for the pipeline to drain), waits up to 3s for the process
// to exit, force-kills it if it has not, reaps it, and then sleeps
// 500ms before returning the output path (spec §4.G "Shutdown. On stop: send EOS to the pipeline,
// sleep 500 ms... then transition to Null state").
func (p *Pipeline) Stop() (string, error) {
	p.mu.Lock()
	cmd := p.cmd
	path := p.outputPath
	p.cmd = nil
	p.mu.Unlock()

	if cmd == nil {
		return "", fmt.Errorf("video: pipeline not running")
	}

	if cmd.Process != nil {
		_ = cmd.Process.Signal(syscall.SIGINT)
	}

	done := make(chan error, 1)
	go func() { done <- cmd.Wait() }()

	select {
	case <-done:
	case <-time.After(3 * time.Second):
		if cmd.Process != nil {
			_ = cmd.Process.Kill()
		}
		<-done
	}

	time.Sleep(500 * time.Millisecond)
	return path, nil
}

// Running reports whether a pipeline subprocess is active.
func (p *Pipeline) Running() bool {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.cmd != nil
}

// outputExists is a small convenience for callers verifying the
// muxer actually produced a file after Stop.
func outputExists(path string) bool {
	_, err := os.Stat(path)
	return err == nil
}
