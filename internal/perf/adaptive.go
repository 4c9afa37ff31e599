package perf

import (
	"context"
	"log"
	"sync"
	"sync/atomic"
	"time"

	"camera-core/internal/capture"
	"camera-core/internal/config"
)

// Controller states
const (
	StateProbing    = iota // Finding max sustainable FPS
	StateStable            // Running at sweet spot
	StateRecovering        // Coming back from thermal event
	StateEmergency         // Critical thermal - minimum FPS
)

// Thermal thresholds for Pi 4/5 (designed to run warm)
// Pi 5 throttles at 85°C, so we have headroom up to 83°C
const (
	TempIdeal    = 72.0 // Below this: can try increasing FPS
	TempComfort  = 78.0 // Sweet spot ceiling - Pi runs fine here
	TempWarm     = 82.0 // Start being cautious (still safe)
	TempHot      = 84.0 // Need to reduce FPS (approaching throttle)
	TempCritical = 86.0 // Emergency minimum FPS (throttling imminent)
)

// Load thresholds (Pi5 has 4 cores)
const (
	LoadIdeal = 2.5 // Comfortable load
	LoadHigh  = 3.8 // High but not overloaded
)

// FPS limits - fallbacks if config is nil
const (
	MinFPS     = 10 // Absolute minimum for usability
	MaxFPS     = 30 // Absolute maximum
	DefaultFPS = 15 // Default if config unavailable
)

// SmartController is the teacher's thermal/load state machine
// (Probing -> Stable -> Recovering -> Emergency), generalized from
// "adjust UI FPS under thermal stress" to also drive spec §7's
// capture-thread recovery pattern: a long recording session still
// wants to know the host is throttling, and it also wants a watchdog
// that notices a stalled capture backend and re-initializes it.
//
// FPS probing no longer calls into a camera.Manager.SetFPS (capture.Manager
// has no notion of live FPS renegotiation — a format change requires a
// full Select); instead FPSChanged is a caller-supplied hook so whatever
// owns format selection decides how a recommended FPS change is applied.
type SmartController struct {
	monitor *Monitor
	manager *capture.Manager
	cfg     *config.Config

	// FPSChanged, if set, is invoked whenever the controller decides a
	// new capture FPS should be tried. Nil is fine: the controller still
	// tracks currentFPS/sweetSpotFPS for GetCurrentFPS/GetSweetSpotFPS.
	FPSChanged func(fps int)

	// FPS control
	currentFPS   int
	sweetSpotFPS int // Best known stable FPS
	minFPS       int
	maxFPS       int

	// Dynamic FPS mode
	dynamicEnabled bool

	// State machine
	state          atomic.Int32
	stateEnterTime time.Time
	stabilityCount int
	lastChange     time.Time

	// Stress-based tracking (matches Python's stress_hold_count / recover_hold_count)
	stressCount  int // Consecutive ticks under stress
	recoverCount int // Consecutive ticks in recovery conditions

	// Thermal tracking
	tempHistory []float64
	tempTrend   float64 // Positive = heating, negative = cooling

	// Stats
	stableSeconds atomic.Int64
	adjustCount   int

	// Capture-recovery watchdog (spec §7)
	lastFrameSeen time.Time
	recovering    atomic.Bool

	// Concurrency
	mutex   sync.RWMutex
	running atomic.Bool
	stopCh  chan struct{}
}

// NewSmartController creates a performance controller bound to manager
// (the watchdog calls manager.HandleCrash on staleness) and cfg (nil
// uses built-in defaults with dynamic FPS disabled).
func NewSmartController(manager *capture.Manager, cfg *config.Config) *SmartController {
	if cfg == nil {
		cfg = config.DefaultConfig()
		cfg.DynamicFPSEnabled = false // Safe default without config
	}

	captureFPS := cfg.CaptureFPS
	minFPS := cfg.MinDynamicFPS
	if minFPS < MinFPS {
		minFPS = MinFPS
	}
	if captureFPS < minFPS {
		captureFPS = minFPS
	}
	if captureFPS > MaxFPS {
		captureFPS = MaxFPS
	}

	ok, warnings := cfg.Validate()
	if !ok {
		log.Printf("[SmartCtrl] WARNING: Config validation failed!")
	}
	for _, w := range warnings {
		log.Printf("[SmartCtrl] WARNING: %s", w)
	}

	sc := &SmartController{
		monitor:     NewMonitor(),
		manager:     manager,
		cfg:         cfg,
		tempHistory: make([]float64, 0, 10),
		stopCh:      make(chan struct{}),
	}
	sc.dynamicEnabled = cfg.DynamicFPSEnabled

	if cfg.DynamicFPSEnabled {
		sc.minFPS = minFPS
		sc.maxFPS = captureFPS
		sc.currentFPS = captureFPS
		sc.sweetSpotFPS = captureFPS
		log.Printf("[SmartCtrl] Config: %dx%d @ %d FPS (dynamic adaptation enabled, min=%d)",
			cfg.CaptureWidth, cfg.CaptureHeight, captureFPS, minFPS)
	} else {
		sc.minFPS = captureFPS
		sc.maxFPS = captureFPS
		sc.currentFPS = captureFPS
		sc.sweetSpotFPS = captureFPS
		log.Printf("[SmartCtrl] Config: %dx%d @ %d FPS (fixed, no adaptation)",
			cfg.CaptureWidth, cfg.CaptureHeight, captureFPS)
	}

	return sc
}

// Start begins monitoring, optional FPS adaptation, and the
// stale-frame recovery watchdog.
func (sc *SmartController) Start() {
	if sc.running.Swap(true) {
		return
	}

	sc.stateEnterTime = time.Now()
	sc.lastChange = time.Now()
	sc.lastFrameSeen = time.Now()

	if sc.dynamicEnabled {
		sc.state.Store(StateProbing)
		log.Printf("[SmartCtrl] Started - dynamic FPS %d-%d, probing for sweet spot", sc.minFPS, sc.maxFPS)
	} else {
		sc.state.Store(StateStable)
		log.Printf("[SmartCtrl] Started - fixed %d FPS, monitoring only", sc.maxFPS)
	}

	sc.applyFPS(sc.currentFPS)
	go sc.controlLoop()
}

// Stop halts the controller
func (sc *SmartController) Stop() {
	if !sc.running.Swap(false) {
		return
	}
	close(sc.stopCh)
}

// controlLoop runs the main control tick
func (sc *SmartController) controlLoop() {
	interval := time.Duration(sc.cfg.PerfCheckIntervalMS) * time.Millisecond
	if interval < 250*time.Millisecond {
		interval = 250 * time.Millisecond
	}

	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	logTicker := time.NewTicker(5 * time.Second)
	defer logTicker.Stop()

	for {
		select {
		case <-sc.stopCh:
			return
		case <-ticker.C:
			sc.tick()
			sc.checkStaleness()
		case <-logTicker.C:
			sc.logStatus()
		}
	}
}

// checkStaleness is spec §7's recovery pattern: if the active backend's
// preview slot hasn't produced a frame within StaleFrameTimeoutSec, the
// backend is presumed crashed and HandleCrash re-initializes it.
func (sc *SmartController) checkStaleness() {
	if sc.manager == nil || sc.recovering.Load() {
		return
	}
	slot := sc.manager.PreviewFrames()
	if slot == nil {
		return
	}
	f := slot.Load()
	if f != nil {
		f.Release()
		sc.mutex.Lock()
		sc.lastFrameSeen = time.Now()
		sc.mutex.Unlock()
		return
	}

	sc.mutex.RLock()
	stale := time.Since(sc.lastFrameSeen) > time.Duration(sc.cfg.StaleFrameTimeoutSec*float64(time.Second))
	sc.mutex.RUnlock()
	if !stale {
		return
	}

	backend := sc.manager.Backend()
	if backend == nil {
		return
	}

	if !sc.recovering.CompareAndSwap(false, true) {
		return
	}
	go func() {
		defer sc.recovering.Store(false)
		log.Printf("[SmartCtrl] no frames for %.1fs, invoking recovery", sc.cfg.StaleFrameTimeoutSec)
		ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		if err := sc.manager.HandleCrash(ctx, backend); err != nil {
			log.Printf("[SmartCtrl] recovery exhausted: %v", err)
			return
		}
		sc.mutex.Lock()
		sc.lastFrameSeen = time.Now()
		sc.mutex.Unlock()
	}()
}

// tick performs one monitoring + adaptation cycle
func (sc *SmartController) tick() {
	if err := sc.monitor.UpdateStats(); err != nil {
		return
	}

	sc.mutex.Lock()
	defer sc.mutex.Unlock()

	temp := sc.monitor.GetTemperature()
	load := sc.monitor.GetLoadAverage()

	sc.updateTempTrend(temp)

	if !sc.dynamicEnabled {
		if temp >= TempCritical {
			log.Printf("[SmartCtrl] WARNING: Temperature critical (%.1f°C) - consider improving ventilation", temp)
		}
		if sc.state.Load() != StateStable {
			sc.state.Store(StateStable)
		}
		sc.stableSeconds.Add(1)
		return
	}

	state := sc.state.Load()
	switch state {
	case StateProbing:
		sc.handleProbing(temp, load)
	case StateStable:
		sc.handleStable(temp, load)
	case StateRecovering:
		sc.handleRecovering(temp)
	case StateEmergency:
		sc.handleEmergency(temp)
	}
}

func (sc *SmartController) updateTempTrend(temp float64) {
	sc.tempHistory = append(sc.tempHistory, temp)
	if len(sc.tempHistory) > 10 {
		sc.tempHistory = sc.tempHistory[1:]
	}
	if len(sc.tempHistory) >= 3 {
		n := len(sc.tempHistory)
		sc.tempTrend = (sc.tempHistory[n-1] - sc.tempHistory[0]) / float64(n)
	}
}

func (sc *SmartController) handleEmergency(temp float64) {
	if sc.currentFPS != sc.minFPS {
		sc.applyFPS(sc.minFPS)
	}
	if temp < TempWarm && sc.tempTrend <= 0 && time.Since(sc.stateEnterTime) > 10*time.Second {
		log.Printf("[SmartCtrl] Exiting emergency - temp: %.1f°C", temp)
		sc.enterState(StateRecovering)
	}
}

func (sc *SmartController) handleProbing(temp, load float64) {
	timeSinceChange := time.Since(sc.lastChange)

	if temp >= TempCritical {
		log.Printf("[SmartCtrl] EMERGENCY - temp: %.1f°C", temp)
		sc.enterState(StateEmergency)
		return
	}

	cpuLoadThresh := sc.cfg.CPULoadThreshold
	cpuTempThresh := sc.cfg.CPUTempThresholdC

	isUnderStress := temp >= cpuTempThresh || load >= cpuLoadThresh
	isLoadOK := load < LoadHigh
	isSustainable := (temp < TempWarm) || (temp < TempHot && sc.tempTrend <= 0)

	if isSustainable && isLoadOK && !isUnderStress {
		sc.stabilityCount++
		sc.stressCount = 0

		if sc.stabilityCount >= 8 {
			if sc.currentFPS > sc.sweetSpotFPS {
				sc.sweetSpotFPS = sc.currentFPS
				log.Printf("[SmartCtrl] New sweet spot: %d FPS @ %.1f°C", sc.sweetSpotFPS, temp)
			}
			if sc.stabilityCount >= 12 {
				log.Printf("[SmartCtrl] Stable at %d FPS", sc.currentFPS)
				sc.enterState(StateStable)
				return
			}
			if sc.currentFPS < sc.maxFPS && temp < TempComfort &&
				sc.tempTrend < 0 && timeSinceChange > 15*time.Second {
				sc.changeFPS(sc.currentFPS + sc.cfg.UIFPSStep)
			}
		}
	} else {
		sc.stabilityCount = 0
		sc.stressCount++

		if sc.stressCount >= sc.cfg.StressHoldCount {
			shouldReduce := temp >= TempHot || (temp >= TempWarm && sc.tempTrend > 0.3) || load >= LoadHigh
			if shouldReduce && timeSinceChange > 5*time.Second {
				newFPS := sc.currentFPS - 3
				if newFPS < sc.minFPS {
					newFPS = sc.minFPS
				}
				sc.changeFPS(newFPS)
				if newFPS < sc.sweetSpotFPS {
					sc.sweetSpotFPS = newFPS
				}
				sc.stressCount = 0
			}
		}
	}
}

func (sc *SmartController) handleStable(temp, load float64) {
	sc.stableSeconds.Add(1)

	if temp >= TempCritical {
		log.Printf("[SmartCtrl] EMERGENCY in stable - temp: %.1f°C", temp)
		sc.enterState(StateEmergency)
		return
	}

	cpuLoadThresh := sc.cfg.CPULoadThreshold
	cpuTempThresh := sc.cfg.CPUTempThresholdC
	isUnderStress := temp >= cpuTempThresh || load >= cpuLoadThresh

	if temp >= TempHot || (temp >= TempWarm && sc.tempTrend > 0.5) || load >= LoadHigh || isUnderStress {
		sc.stressCount++
		if sc.stressCount >= sc.cfg.StressHoldCount {
			log.Printf("[SmartCtrl] Reducing FPS - temp: %.1f°C, load: %.2f (stress count: %d)",
				temp, load, sc.stressCount)
			newFPS := sc.currentFPS - sc.cfg.UIFPSStep
			if newFPS < sc.minFPS {
				newFPS = sc.minFPS
			}
			sc.changeFPS(newFPS)
			if newFPS < sc.sweetSpotFPS {
				sc.sweetSpotFPS = newFPS
				log.Printf("[SmartCtrl] Sweet spot lowered to %d FPS", sc.sweetSpotFPS)
			}
			sc.stressCount = 0
			return
		}
	} else {
		sc.stressCount = 0
		sc.recoverCount++
	}

	stableTime := sc.stableSeconds.Load()
	if stableTime > 30 && sc.currentFPS < sc.maxFPS &&
		temp < TempIdeal && sc.tempTrend < 0 && load < LoadIdeal &&
		sc.recoverCount >= sc.cfg.RecoverHoldCount {
		log.Printf("[SmartCtrl] Conditions excellent - trying higher FPS")
		sc.changeFPS(sc.currentFPS + sc.cfg.UIFPSStep)
		sc.stableSeconds.Store(0)
		sc.recoverCount = 0
	}
}

func (sc *SmartController) handleRecovering(temp float64) {
	if temp >= TempHot {
		if temp >= TempCritical {
			sc.enterState(StateEmergency)
		}
		return
	}
	if temp < TempComfort && sc.tempTrend <= 0 && time.Since(sc.lastChange) > 5*time.Second {
		sc.recoverCount++
		if sc.recoverCount >= sc.cfg.RecoverHoldCount {
			if sc.currentFPS < sc.sweetSpotFPS {
				sc.changeFPS(sc.currentFPS + sc.cfg.UIFPSStep)
				sc.recoverCount = 0
			} else {
				log.Printf("[SmartCtrl] Recovered to sweet spot: %d FPS", sc.sweetSpotFPS)
				sc.enterState(StateStable)
			}
		}
	} else {
		sc.recoverCount = 0
	}
}

func (sc *SmartController) changeFPS(fps int) {
	if fps < sc.minFPS {
		fps = sc.minFPS
	}
	if fps > sc.maxFPS {
		fps = sc.maxFPS
	}
	if fps == sc.currentFPS {
		return
	}

	oldFPS := sc.currentFPS
	sc.currentFPS = fps
	sc.lastChange = time.Now()
	sc.stabilityCount = 0
	sc.adjustCount++

	if sc.FPSChanged != nil {
		sc.FPSChanged(fps)
	}

	log.Printf("[SmartCtrl] FPS: %d -> %d", oldFPS, fps)
}

func (sc *SmartController) applyFPS(fps int) {
	sc.currentFPS = fps
	if sc.FPSChanged != nil {
		sc.FPSChanged(fps)
	}
}

func (sc *SmartController) enterState(state int) {
	oldState := sc.state.Swap(int32(state))
	sc.stateEnterTime = time.Now()
	sc.stabilityCount = 0
	sc.stressCount = 0
	sc.recoverCount = 0

	log.Printf("[SmartCtrl] State: %s -> %s", stateName(oldState), stateName(int32(state)))

	if state == StateEmergency {
		sc.applyFPS(sc.minFPS)
	}
	if state == StateStable {
		sc.stableSeconds.Store(0)
	}
}

func (sc *SmartController) logStatus() {
	sc.mutex.RLock()
	defer sc.mutex.RUnlock()

	temp := sc.monitor.GetTemperature()
	load := sc.monitor.GetLoadAverage()

	if sc.dynamicEnabled {
		log.Printf("[SmartCtrl] %s | FPS: %d (sweet=%d, range %d-%d) | Temp: %.1f°C | Load: %.2f | Uptime: %ds",
			sc.GetState(), sc.currentFPS, sc.sweetSpotFPS, sc.minFPS, sc.maxFPS,
			temp, load, sc.stableSeconds.Load())
	} else {
		log.Printf("[SmartCtrl] Fixed mode | FPS: %d | Temp: %.1f°C | Load: %.2f | Uptime: %ds",
			sc.currentFPS, temp, load, sc.stableSeconds.Load())
	}
}

// GetCurrentFPS returns current FPS
func (sc *SmartController) GetCurrentFPS() int {
	sc.mutex.RLock()
	defer sc.mutex.RUnlock()
	return sc.currentFPS
}

// GetSweetSpotFPS returns the discovered sweet spot
func (sc *SmartController) GetSweetSpotFPS() int {
	sc.mutex.RLock()
	defer sc.mutex.RUnlock()
	return sc.sweetSpotFPS
}

// GetState returns current state name
func (sc *SmartController) GetState() string {
	return stateName(sc.state.Load())
}

// IsDynamic returns whether dynamic FPS adaptation is enabled
func (sc *SmartController) IsDynamic() bool {
	return sc.dynamicEnabled
}

var stateNames = []string{"Probing", "Stable", "Recovering", "Emergency"}

func stateName(state int32) string {
	if state >= 0 && int(state) < len(stateNames) {
		return stateNames[state]
	}
	return "Unknown"
}
