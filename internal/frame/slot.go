package frame

import "sync"

// Slot holds the single latest frame produced by a capture backend,
// generalizing the teacher's atomic double-buffered FrameBuffer
// (formerly internal/camera/framebuffer.go) into a mutex-guarded,
// reference-counted "latest wins" slot (spec §9 design note): a
// preview renderer or GPU pipeline consumer reading slower than the
// capture rate only ever sees the newest frame, and a frame that is
// never read is released without being processed.
type Slot struct {
	mu      sync.Mutex
	current *Frame
}

// Store publishes f as the slot's current frame. Any frame previously
// held and not retrieved by a reader is released here, so a slow
// consumer never builds up a backlog of unreleased buffers.
func (s *Slot) Store(f *Frame) {
	s.mu.Lock()
	prev := s.current
	s.current = f
	s.mu.Unlock()
	if prev != nil {
		prev.Release()
	}
}

// Load returns the current frame acquired for the caller (the caller
// owns one reference and must call Release when done), or nil if no
// frame has been stored yet.
func (s *Slot) Load() *Frame {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.current == nil {
		return nil
	}
	return s.current.Acquire()
}

// Close releases the slot's held frame, if any, and clears it. Call
// once when the producer feeding this slot shuts down.
func (s *Slot) Close() {
	s.mu.Lock()
	prev := s.current
	s.current = nil
	s.mu.Unlock()
	if prev != nil {
		prev.Release()
	}
}
