package frame

import "sync/atomic"

// SharedBuffer is a reference-counted, immutable-after-publication byte
// buffer. Every Frame referencing the same underlying pixel payload
// shares one SharedBuffer; the bytes are freed (returned to nothing, in
// pure Go, but the refcount still gates reuse of any backing pool slot)
// only when the last reference drops.
//
// This mirrors the release discipline go4vl's device.Frame/FramePool
// documents (Release() is idempotent, a pool Put/Get pair underneath)
// without depending on go4vl's own pool, which is tied to its mmap
// buffers — SharedBuffer is a plain heap byte slice plus a refcount.
type SharedBuffer struct {
	data   []byte
	refs   atomic.Int32
	onFree func([]byte)
	freed  atomic.Bool
}

// NewSharedBuffer wraps data in a SharedBuffer with an initial reference
// count of one. onFree, if non-nil, is invoked exactly once when the
// last reference is released (e.g. to return a buffer to a capture
// backend's reuse pool instead of letting the GC reclaim it).
func NewSharedBuffer(data []byte, onFree func([]byte)) *SharedBuffer {
	b := &SharedBuffer{data: data, onFree: onFree}
	b.refs.Store(1)
	return b
}

// Bytes returns the underlying payload. Callers must not mutate it —
// a SharedBuffer is never mutated after any consumer can observe it.
func (b *SharedBuffer) Bytes() []byte {
	return b.data
}

// Acquire increments the reference count and returns b, so callers can
// write:
//
//	retained := buf.Acquire()
func (b *SharedBuffer) Acquire() *SharedBuffer {
	b.refs.Add(1)
	return b
}

// Release decrements the reference count. When it reaches zero, onFree
// (if any) runs once. Calling Release more times than the buffer has
// been acquired is a programming error; it is guarded against becoming
// a double-free by the CompareAndSwap on freed.
func (b *SharedBuffer) Release() {
	if b.refs.Add(-1) > 0 {
		return
	}
	if b.freed.CompareAndSwap(false, true) && b.onFree != nil {
		b.onFree(b.data)
	}
}
