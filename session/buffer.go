package session

import "sync"

// FrameBuffer accumulates capture samples and cuts them into fixed-size
// windows.
type FrameBuffer struct {
	size    int
	pending []float32
	mu      sync.Mutex
}

// NewFrameBuffer creates a buffer that emits windows of size samples.
func NewFrameBuffer(size int) *FrameBuffer {
	return &FrameBuffer{
		size:    size,
		pending: make([]float32, 0, size),
	}
}

// Append adds samples and returns every window completed by them, in
// order. Leftover samples stay buffered.
func (fb *FrameBuffer) Append(samples []float32) [][]float32 {
	fb.mu.Lock()
	defer fb.mu.Unlock()

	var frames [][]float32
	for len(samples) > 0 {
		n := min(fb.size-len(fb.pending), len(samples))
		fb.pending = append(fb.pending, samples[:n]...)
		samples = samples[n:]
		if len(fb.pending) == fb.size {
			frames = append(frames, fb.pending)
			fb.pending = make([]float32, 0, fb.size)
		}
	}
	return frames
}

// Clear drops buffered samples.
func (fb *FrameBuffer) Clear() {
	fb.mu.Lock()
	defer fb.mu.Unlock()
	fb.pending = fb.pending[:0]
}

// Buffered returns the number of samples waiting for a full window.
func (fb *FrameBuffer) Buffered() int {
	fb.mu.Lock()
	defer fb.mu.Unlock()
	return len(fb.pending)
}
