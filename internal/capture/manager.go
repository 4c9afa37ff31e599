package capture

import (
	"context"
	"fmt"
	"log"
	"sync"
	"time"

	"camera-core/internal/frame"
)

// RecoveryEvent is emitted to an observer for each attempt the manager
// makes re-initializing a crashed backend (spec §7 "each attempt emits
// started/succeeded/failed events for observability").
type RecoveryEvent struct {
	Attempt   int
	MaxAttempt int
	Phase     string // "started", "succeeded", "failed"
	Err       error
}

// MaxRecoveryAttempts bounds the manager's re-initialize loop after a
// detected backend crash.
const MaxRecoveryAttempts = 3

// Manager owns exactly one active Backend at a time and calls through
// to it, generalizing the teacher's Manager (a fixed slice of
// always-running CaptureWorkers, one per discovered camera) to a
// single hot-swappable backend selected by the caller, plus the
// bounded-retry recovery pattern spec §7 requires.
type Manager struct {
	mu      sync.RWMutex
	backend Backend

	device  CameraDevice
	format  CameraFormat
	running bool

	recoveryObservers []func(RecoveryEvent)
	lastRecovery      []recoveryAttempt

	cancelled bool // camera-switch cancellation atomic equivalent (spec §5), guarded by mu
}

// NewManager returns an idle Manager bound to no backend.
func NewManager() *Manager {
	return &Manager{}
}

// ErrNotInitialized mirrors the teacher's ErrManagerNotInitialized
// sentinel.
var ErrNotInitialized = fmt.Errorf("capture manager not initialized")

// Select switches the manager onto a new backend/device/format triple.
// Any previously active backend is shut down first. This is the only
// entry point that changes which Backend is active.
func (m *Manager) Select(ctx context.Context, backend Backend, device CameraDevice, format CameraFormat) error {
	m.mu.Lock()
	prev := m.backend
	m.cancelled = true
	m.mu.Unlock()

	if prev != nil {
		log.Printf("[Manager] shutting down previous backend %s", prev.Name())
		if err := prev.Shutdown(ctx); err != nil {
			log.Printf("[Manager] shutdown error (continuing): %v", err)
		}
		// spec §8: CAPTURE_ACTIVE false for >= 500ms before a new thread may start
		time.Sleep(500 * time.Millisecond)
	}

	log.Printf("[Manager] initializing backend %s with device %s format %dx%d@%v %s",
		backend.Name(), device.Path, format.Width, format.Height, format.FPS, format.Format)

	if err := backend.Initialize(ctx, device, format); err != nil {
		return err
	}

	m.mu.Lock()
	m.backend = backend
	m.device = device
	m.format = format
	m.running = true
	m.cancelled = false
	m.mu.Unlock()
	return nil
}

// Shutdown stops the active backend, if any.
func (m *Manager) Shutdown(ctx context.Context) error {
	m.mu.Lock()
	b := m.backend
	m.backend = nil
	m.running = false
	m.mu.Unlock()
	if b == nil {
		return nil
	}
	return b.Shutdown(ctx)
}

func (m *Manager) active() (Backend, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	if !m.running || m.backend == nil {
		return nil, ErrNotInitialized
	}
	return m.backend, nil
}

// CapturePhoto delegates to the active backend.
func (m *Manager) CapturePhoto(ctx context.Context) (*frame.Frame, error) {
	b, err := m.active()
	if err != nil {
		return nil, err
	}
	return b.CapturePhoto(ctx)
}

// OnRecovery registers an observer invoked for each recovery attempt.
func (m *Manager) OnRecovery(fn func(RecoveryEvent)) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.recoveryObservers = append(m.recoveryObservers, fn)
}

func (m *Manager) emit(ev RecoveryEvent) {
	m.mu.RLock()
	obs := append([]func(RecoveryEvent){}, m.recoveryObservers...)
	m.mu.RUnlock()
	for _, fn := range obs {
		fn(ev)
	}
}

// HandleCrash re-invokes Initialize on the given backend with the last
// known device+format up to MaxRecoveryAttempts times (spec §7). It is
// called by whatever monitors a backend's crash signal (e.g. a
// CAPTURE_ACTIVE watchdog for the libcamera backend).
func (m *Manager) HandleCrash(ctx context.Context, backend Backend) error {
	m.mu.RLock()
	device, format := m.device, m.format
	m.mu.RUnlock()

	var lastErr error
	for attempt := 1; attempt <= MaxRecoveryAttempts; attempt++ {
		m.emit(RecoveryEvent{Attempt: attempt, MaxAttempt: MaxRecoveryAttempts, Phase: "started"})
		err := backend.Initialize(ctx, device, format)
		rec := recoveryAttempt{At: time.Now(), Device: device, Format: format, Succeeded: err == nil, Err: err}
		m.mu.Lock()
		m.lastRecovery = append(m.lastRecovery, rec)
		m.mu.Unlock()

		if err == nil {
			m.emit(RecoveryEvent{Attempt: attempt, MaxAttempt: MaxRecoveryAttempts, Phase: "succeeded"})
			m.mu.Lock()
			m.backend = backend
			m.running = true
			m.mu.Unlock()
			return nil
		}
		lastErr = err
		m.emit(RecoveryEvent{Attempt: attempt, MaxAttempt: MaxRecoveryAttempts, Phase: "failed", Err: err})
		time.Sleep(500 * time.Millisecond)
	}
	return newErr(backend.Name(), KindCrashed, fmt.Errorf("exhausted %d recovery attempts: %w", MaxRecoveryAttempts, lastErr))
}

// Backend returns the currently active backend, or nil if none is
// selected. Used by the recovery watchdog (internal/perf) to re-invoke
// HandleCrash against the same backend instance that went stale.
func (m *Manager) Backend() Backend {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.backend
}

// CurrentDevice returns the device the active backend is bound to.
func (m *Manager) CurrentDevice() (CameraDevice, bool) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	if m.backend == nil {
		return CameraDevice{}, false
	}
	return m.backend.CurrentDevice()
}

// CurrentFormat returns the format the active backend is bound to.
func (m *Manager) CurrentFormat() (CameraFormat, bool) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	if m.backend == nil {
		return CameraFormat{}, false
	}
	return m.backend.CurrentFormat()
}

// StartRecording delegates to the active backend.
func (m *Manager) StartRecording(ctx context.Context, outputPath string) error {
	b, err := m.active()
	if err != nil {
		return err
	}
	return b.StartRecording(ctx, outputPath)
}

// StopRecording delegates to the active backend.
func (m *Manager) StopRecording(ctx context.Context) (string, error) {
	b, err := m.active()
	if err != nil {
		return "", err
	}
	return b.StopRecording(ctx)
}

// PreviewFrames returns the active backend's preview slot, or nil if
// no backend is active.
func (m *Manager) PreviewFrames() *frame.Slot {
	b, err := m.active()
	if err != nil {
		return nil
	}
	return b.PreviewFrames()
}
