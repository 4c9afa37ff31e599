// Package video implements the recording pipeline (spec §4.G): encoder
// enumeration and priority, quality-to-bitrate mapping, GStreamer graph
// construction, and the OpenH264 downscale cap, orchestrated the way
// the teacher drives FFmpeg — as a supervised subprocess with its own
// reader goroutine — generalized to gst-launch-1.0.
package video

import (
	"bytes"
	"context"
	"fmt"
	"log"
	"os/exec"
	"sort"
	"strings"
	"sync"
	"time"
)

// Codec identifies the output video codec (spec §4.G "hardware AV1...
// hardware HEVC... hardware H.264... software HEVC... software AV1...
// software H.264").
type Codec int

const (
	CodecH264 Codec = iota
	CodecHEVC
	CodecAV1
)

func (c Codec) String() string {
	switch c {
	case CodecH264:
		return "H264"
	case CodecHEVC:
		return "HEVC"
	case CodecAV1:
		return "AV1"
	default:
		return "Unknown"
	}
}

// Kind distinguishes a hardware-accelerated encoder element from a
// software one, which matters for both priority ordering and for
// whether the OpenH264 downscale cap applies.
type Kind int

const (
	KindHardware Kind = iota
	KindSoftware
)

// Encoder describes one candidate GStreamer encoder element.
type Encoder struct {
	Name      string // e.g. "vaapih264enc"
	GstPlugin string
	Codec     Codec
	Kind      Kind
	Priority  int // lower sorts first
	Working   bool
}

// candidateEncoders lists every encoder element spec §4.G names, in
// the priority order it specifies: hardware AV1 -> hardware HEVC ->
// hardware H.264 -> software HEVC -> software AV1 -> software H.264.
func candidateEncoders() []Encoder {
	list := []Encoder{
		// hardware AV1
		{Name: "vaapiav1enc", Codec: CodecAV1, Kind: KindHardware},
		{Name: "nvav1enc", Codec: CodecAV1, Kind: KindHardware},
		{Name: "qsvav1enc", Codec: CodecAV1, Kind: KindHardware},
		{Name: "amfav1enc", Codec: CodecAV1, Kind: KindHardware},
		// hardware HEVC (six variants)
		{Name: "vaapih265enc", Codec: CodecHEVC, Kind: KindHardware},
		{Name: "nvh265enc", Codec: CodecHEVC, Kind: KindHardware},
		{Name: "qsvh265enc", Codec: CodecHEVC, Kind: KindHardware},
		{Name: "amfh265enc", Codec: CodecHEVC, Kind: KindHardware},
		{Name: "v4l2h265enc", Codec: CodecHEVC, Kind: KindHardware},
		{Name: "mpph265enc", Codec: CodecHEVC, Kind: KindHardware},
		// hardware H.264 (five variants)
		{Name: "vaapih264enc", Codec: CodecH264, Kind: KindHardware},
		{Name: "nvh264enc", Codec: CodecH264, Kind: KindHardware},
		{Name: "qsvh264enc", Codec: CodecH264, Kind: KindHardware},
		{Name: "v4l2h264enc", Codec: CodecH264, Kind: KindHardware},
		{Name: "mpph264enc", Codec: CodecH264, Kind: KindHardware},
		// software HEVC
		{Name: "x265enc", Codec: CodecHEVC, Kind: KindSoftware},
		// software AV1
		{Name: "svtav1enc", Codec: CodecAV1, Kind: KindSoftware},
		{Name: "av1enc", Codec: CodecAV1, Kind: KindSoftware}, // aom
		// software H.264
		{Name: "x264enc", Codec: CodecH264, Kind: KindSoftware},
		{Name: "openh264enc", Codec: CodecH264, Kind: KindSoftware},
	}
	for i := range list {
		list[i].Priority = i
	}
	return list
}

// Registry holds the probed, working encoder set and the currently
// selected index (spec §6 persisted "selected encoder index").
type Registry struct {
	mu       sync.RWMutex
	encoders []Encoder
	selected int
}

// NewRegistry enumerates and probes every candidate encoder. Missing
// gst-inspect-1.0/gst-launch-1.0 binaries (e.g. in this build
// environment) leave the registry empty rather than erroring — callers
// treat an empty registry as "recording unavailable."
func NewRegistry(ctx context.Context) *Registry {
	r := &Registry{}
	r.Reprobe(ctx)
	return r
}

// Reprobe re-runs gst-inspect-1.0 to see which elements exist, then
// runs a trivial videotestsrc pipeline through each present element to
// remove ones that load but do not function (spec §4.G "A subsequent
// probe runs a trivial videotestsrc pipeline through each candidate
// encoder to remove any that load but do not function"). If the
// previously selected encoder disappears, the selection resets to 0
// and the reconciliation is logged (SPEC_FULL.md §3 "Encoder hot-swap
// reconciliation").
func (r *Registry) Reprobe(ctx context.Context) {
	prevName := ""
	r.mu.RLock()
	if r.selected >= 0 && r.selected < len(r.encoders) {
		prevName = r.encoders[r.selected].Name
	}
	r.mu.RUnlock()

	present := inspectPresentElements(ctx)
	var working []Encoder
	for _, e := range candidateEncoders() {
		if !present[e.Name] {
			continue
		}
		if probeEncoder(ctx, e.Name) {
			e.Working = true
			working = append(working, e)
		}
	}
	sort.Slice(working, func(i, j int) bool { return working[i].Priority < working[j].Priority })

	r.mu.Lock()
	r.encoders = working
	newIdx := 0
	for i, e := range working {
		if e.Name == prevName {
			newIdx = i
			break
		}
	}
	if prevName != "" && (newIdx == 0 && (len(working) == 0 || working[0].Name != prevName)) {
		log.Printf("[Video] previously selected encoder %q no longer available, resetting to index 0", prevName)
	}
	r.selected = newIdx
	r.mu.Unlock()
}

// inspectPresentElements shells out to gst-inspect-1.0 for each
// candidate name rather than parsing a full plugin listing, mirroring
// the teacher's per-device v4l2-ctl --info calls (one focused
// subprocess per query rather than a bulk parse).
func inspectPresentElements(ctx context.Context) map[string]bool {
	present := make(map[string]bool)
	for _, e := range candidateEncoders() {
		cmd := exec.CommandContext(ctx, "gst-inspect-1.0", e.Name)
		if err := cmd.Run(); err == nil {
			present[e.Name] = true
		}
	}
	return present
}

// probeEncoder runs `videotestsrc num-buffers=2 ! <name> ! fakesink`
// with a short timeout; a nonzero exit or timeout marks the element as
// nonfunctional even though gst-inspect-1.0 reported it present (spec
// §4.G "load but do not function" — common for VA-API elements on
// hosts lacking the matching kernel driver).
func probeEncoder(ctx context.Context, name string) bool {
	probeCtx, cancel := context.WithTimeout(ctx, 3*time.Second)
	defer cancel()
	pipeline := fmt.Sprintf("videotestsrc num-buffers=2 ! video/x-raw,width=320,height=240 ! %s ! fakesink", name)
	cmd := exec.CommandContext(probeCtx, "gst-launch-1.0", "-q")
	cmd.Args = append(cmd.Args, buildLaunchArgs(pipeline)...)
	var stderr bytes.Buffer
	cmd.Stderr = &stderr
	return cmd.Run() == nil
}

// buildLaunchArgs splits a gst-launch-1.0 pipeline description into
// argv the way gst-launch-1.0 itself expects (one token per element or
// property, '!' as its own token).
func buildLaunchArgs(pipeline string) []string {
	return strings.Fields(pipeline)
}

// Selected returns the currently selected encoder and whether any
// working encoder exists.
func (r *Registry) Selected() (Encoder, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	if r.selected < 0 || r.selected >= len(r.encoders) {
		return Encoder{}, false
	}
	return r.encoders[r.selected], true
}

// Select sets the active encoder by name; returns false if not found
// among the working set.
func (r *Registry) Select(name string) bool {
	r.mu.Lock()
	defer r.mu.Unlock()
	for i, e := range r.encoders {
		if e.Name == name {
			r.selected = i
			return true
		}
	}
	return false
}

// Working returns a copy of the currently working, priority-sorted
// encoder list.
func (r *Registry) Working() []Encoder {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return append([]Encoder(nil), r.encoders...)
}
