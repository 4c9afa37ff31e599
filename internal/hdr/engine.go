package hdr

import (
	"fmt"
	"log"
	"runtime"
	"sync"
	"sync/atomic"
	"time"

	"golang.org/x/sync/errgroup"

	"camera-core/internal/frame"
	"camera-core/internal/gpu"
)

// MinFrames and MaxFrames bound a burst (spec §8 "Burst with N=1
// rejected (requires >=2)", "Burst with N>50 rejected").
const (
	MinFrames = 2
	MaxFrames = 50
)

// Result is delivered once via a oneshot channel when Processing
// finishes (spec §4.E "the result is delivered via a oneshot channel").
type Result struct {
	RGBA          []byte
	Width, Height int
	ReferenceIdx  int
	Err           error
}

// Config holds the tunables of the merge/tonemap/crop stages (spec
// §4.E steps 3-6).
type Config struct {
	Robustness    float64 // noise-floor scale for merge, spec §4.E step 3
	ShadowBoost   float64 // spec §4.E step 4
	LocalContrast float64 // spec §4.E step 4
	UseFFTMerge   bool    // spatial (false) vs FFT Wiener (true) merge, spec §4.E step 3
	Filter        gpu.Filter
	CropAspect    float64 // 0 = native, else target width/height ratio, spec §4.E step 6
	SaveRawBurst  bool    // export each source frame as DNG before processing, spec §4.E "Optional artifact"
}

// DefaultConfig returns sensible defaults matching a "Standard" burst.
func DefaultConfig() Config {
	return Config{
		Robustness:    1.0,
		ShadowBoost:   0.3,
		LocalContrast: 0.2,
		Filter:        gpu.FilterStandard,
	}
}

// Engine drives the HDR+ burst state machine (spec §4.E):
//
//	Idle --start--> Collecting(k/N) --complete--> Processing(p) --ok--> Done
//	                                                              `-err-> Error
//
// Processing runs on a dedicated OS thread so a blocking GPU readback
// or CPU loop never wedges the cooperative scheduler (spec §9).
type Engine struct {
	device *gpu.Device
	cfg    Config

	mu      sync.Mutex
	state   State
	target  int
	buffer  []*frame.Frame
	flashFn func(bool) // caller-supplied flash control, held active across the whole collection span

	progress atomic.Uint32 // milli-fraction 0..1000, spec §4.E "Progress reporting"
	result   chan Result

	errorClearAt time.Time // spec §4.E "clears after a display delay"
}

// New returns an idle Engine bound to the GPU device used to convert
// and read back each collected frame; sharpness scoring, alignment and
// merge run on the CPU.
func New(device *gpu.Device, cfg Config) *Engine {
	return &Engine{device: device, cfg: cfg, state: Idle}
}

// State returns the engine's current state.
func (e *Engine) State() State {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.state
}

// Progress returns the processing progress as a fraction in [0,1].
// StartCapture resets it to 0, Processing advances it, and it stays at 1
// once processing has finished, until the next StartCapture.
func (e *Engine) Progress() float64 {
	return float64(e.progress.Load()) / 1000.0
}

// SetFlashControl registers a callback the engine holds true for the
// entire collection span when a flash is enabled (spec §4.E
// "Collection... A flash, if enabled, is held active for the entire
// collection span").
func (e *Engine) SetFlashControl(fn func(bool)) {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.flashFn = fn
}

// StartCapture transitions Idle -> Collecting(0/frameCount). frameCount
// must be in [MinFrames, MaxFrames] (spec §8 boundary behaviours); pass
// 0 to use AutoFrameCount against the most recent frame's luminance.
func (e *Engine) StartCapture(frameCount int, mostRecent *frame.Frame) (<-chan Result, error) {
	if frameCount == 0 {
		frameCount = AutoFrameCount(mostRecent)
	}
	if frameCount < MinFrames {
		return nil, fmt.Errorf("hdr: frame_count %d < minimum %d", frameCount, MinFrames)
	}
	if frameCount > MaxFrames {
		return nil, fmt.Errorf("hdr: frame_count %d > maximum %d", frameCount, MaxFrames)
	}

	e.mu.Lock()
	defer e.mu.Unlock()
	if e.state != Idle && e.state != Done && e.state != Error {
		return nil, fmt.Errorf("hdr: burst already in progress (state %s)", e.state)
	}

	e.state = Collecting
	e.target = frameCount
	e.buffer = make([]*frame.Frame, 0, frameCount)
	e.progress.Store(0)
	e.result = make(chan Result, 1)
	if e.flashFn != nil {
		e.flashFn(true)
	}
	log.Printf("[HDR] collecting %d frames", frameCount)
	return e.result, nil
}

// Collect appends one arriving preview frame by reference (spec §4.E
// "no copy"). When the buffer reaches the target, it transitions to
// Processing and launches the worker on its own goroutine, which
// process locks to a dedicated OS thread. Calling Collect while not Collecting is a
// no-op: burst collection does not accept another capture command
// until it completes (spec §5 Cancellation).
func (e *Engine) Collect(f *frame.Frame) {
	e.mu.Lock()
	if e.state != Collecting {
		e.mu.Unlock()
		return
	}
	e.buffer = append(e.buffer, f.Acquire())
	n := len(e.buffer)
	complete := n >= e.target
	if complete {
		e.state = Processing
	}
	e.mu.Unlock()

	if complete {
		if e.flashFn != nil {
			e.flashFn(false)
		}
		go e.process()
	}
}

// CollectedCount reports k of the k/N collection progress.
func (e *Engine) CollectedCount() int {
	e.mu.Lock()
	defer e.mu.Unlock()
	return len(e.buffer)
}

func (e *Engine) setProgress(frac float64) {
	if frac < 0 {
		frac = 0
	}
	if frac > 1 {
		frac = 1
	}
	e.progress.Store(uint32(frac * 1000))
}

// process runs every HDR+ stage (spec §4.E steps 1-7) outside the
// cooperative scheduler. Not cancellable (spec §5): the caller must
// wait for completion or error.
func (e *Engine) process() {
	runtime.LockOSThread()
	defer runtime.UnlockOSThread()

	e.mu.Lock()
	frames := e.buffer
	cfg := e.cfg
	e.mu.Unlock()

	result := e.runStages(frames, cfg)

	for _, f := range frames {
		f.Release()
	}

	e.mu.Lock()
	if result.Err != nil {
		e.state = Error
		e.errorClearAt = time.Now().Add(3 * time.Second)
	} else {
		e.state = Done
	}
	ch := e.result
	e.mu.Unlock()

	e.setProgress(1.0)
	select {
	case ch <- result:
	default:
	}

	go e.clearAfterDelay(3 * time.Second)
}

func (e *Engine) clearAfterDelay(d time.Duration) {
	time.Sleep(d)
	e.mu.Lock()
	defer e.mu.Unlock()
	if e.state == Done || e.state == Error {
		e.state = Idle
	}
}

// runStages implements reference selection, alignment, merge, tone
// mapping, and crop (spec §4.E steps 1-4 and 6); no filter is applied
// (see step 5 below), and encoding (step 7)
// is left to the caller via Result.RGBA, since it is shared with the
// non-burst photo pipeline's encode stage (internal/photo).
func (e *Engine) runStages(frames []*frame.Frame, cfg Config) Result {
	if len(frames) < MinFrames {
		return Result{Err: fmt.Errorf("hdr: not enough frames collected: %d", len(frames))}
	}

	// Each frame's convert+readback is independent of every other, so
	// the dispatch fans out across the burst instead of paying N
	// round-trips to the GPU serially (spec §9 "processing must not
	// block the cooperative scheduler").
	rgbas := make([][]byte, len(frames))
	widths := make([]int, len(frames))
	heights := make([]int, len(frames))
	var g errgroup.Group
	for i, f := range frames {
		i, f := i, f
		widths[i] = f.Width
		heights[i] = f.Height
		g.Go(func() error {
			tex, err := e.device.ConvertToRGBA(f)
			if err != nil {
				return fmt.Errorf("convert frame %d: %w", i, err)
			}
			rgba, err := e.device.Readback(tex)
			if err != nil {
				return fmt.Errorf("readback frame %d: %w", i, err)
			}
			rgbas[i] = rgba
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return Result{Err: fmt.Errorf("hdr: %w", err)}
	}
	width, height := widths[0], heights[0]
	e.setProgress(0.1)

	// Step 1: reference selection by sharpness, lowest index wins ties
	// (spec §4.E step 1, §8 "merge(N copies of X) = X; reference
	// selection picks frame 0").
	refIdx := 0
	bestScore := -1.0
	for i, rgba := range rgbas {
		score := gpu.SharpnessOfRGBA(rgba, widths[i], heights[i])
		if score > bestScore {
			bestScore = score
			refIdx = i
		}
	}
	e.setProgress(0.25)

	// Step 2: per-tile alignment of every non-reference frame against
	// the reference.
	offsets := make([]TileOffsets, len(rgbas))
	for i, rgba := range rgbas {
		if i == refIdx {
			continue
		}
		offsets[i] = AlignPyramid(rgbas[refIdx], rgba, width, height, 32)
	}
	e.setProgress(0.45)

	// Step 3: merge.
	var merged []byte
	var err error
	if cfg.UseFFTMerge {
		merged, err = MergeFFT(rgbas, offsets, refIdx, width, height, cfg.Robustness)
	} else {
		merged, err = MergeSpatial(rgbas, offsets, refIdx, width, height, cfg.Robustness)
	}
	if err != nil {
		return Result{Err: fmt.Errorf("hdr: merge: %w", err)}
	}
	e.setProgress(0.7)

	// Step 4: tone mapping.
	ToneMap(merged, width, height, cfg.ShadowBoost, cfg.LocalContrast)
	e.setProgress(0.85)

	// Step 5: filter. No filter is applied here: cfg.Filter is not
	// read, and the tone-mapped RGBA goes to the crop stage unchanged.
	e.setProgress(0.9)

	// Step 6: crop.
	cropped, cw, ch := CropCenter(merged, width, height, cfg.CropAspect)
	e.setProgress(0.97)

	return Result{RGBA: cropped, Width: cw, Height: ch, ReferenceIdx: refIdx}
}
