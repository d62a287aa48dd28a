// Package audiotest provides audio devices driven by hand for tests.
package audiotest

import (
	"sync"

	"github.com/room4-2/omnistream/audio"
)

var (
	_ audio.Context       = (*Context)(nil)
	_ audio.CaptureDevice = (*Capture)(nil)
	_ audio.Output        = (*Output)(nil)
	_ audio.Source        = (*Source)(nil)
)

// Context hands out preset devices. Tests drive them by hand.
type Context struct {
	CaptureErr error
	OutputErr  error
	Capture    *Capture
	Output     *Output

	mu     sync.Mutex
	closed bool
}

// NewContext returns a context with a fresh Capture and Output.
func NewContext() *Context {
	return &Context{Capture: &Capture{}, Output: &Output{}}
}

func (f *Context) OpenCapture(audio.CaptureConfig) (audio.CaptureDevice, error) {
	if f.CaptureErr != nil {
		return nil, f.CaptureErr
	}
	return f.Capture, nil
}

func (f *Context) OpenOutput(int) (audio.Output, error) {
	if f.OutputErr != nil {
		return nil, f.OutputErr
	}
	return f.Output, nil
}

func (f *Context) Close() {
	f.mu.Lock()
	f.closed = true
	f.mu.Unlock()
}

func (f *Context) Closed() bool {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.closed
}

// Capture delivers whatever Feed is given while started.
type Capture struct {
	StartErr error

	mu      sync.Mutex
	cb      audio.DataCallback
	started bool
	stopped bool
	closed  bool
}

func (f *Capture) Start(cb audio.DataCallback) error {
	if f.StartErr != nil {
		return f.StartErr
	}
	f.mu.Lock()
	f.cb = cb
	f.started = true
	f.mu.Unlock()
	return nil
}

func (f *Capture) Stop() {
	f.mu.Lock()
	f.cb = nil
	f.stopped = true
	f.mu.Unlock()
}

func (f *Capture) Close() {
	f.mu.Lock()
	f.closed = true
	f.mu.Unlock()
}

// Feed calls the capture callback, if any, and reports whether it ran.
func (f *Capture) Feed(samples []float32) bool {
	f.mu.Lock()
	cb := f.cb
	f.mu.Unlock()
	if cb == nil {
		return false
	}
	cb(samples)
	return true
}

func (f *Capture) Started() bool { f.mu.Lock(); defer f.mu.Unlock(); return f.started }
func (f *Capture) Stopped() bool { f.mu.Lock(); defer f.mu.Unlock(); return f.stopped }
func (f *Capture) Closed() bool  { f.mu.Lock(); defer f.mu.Unlock(); return f.closed }

// Output records schedules against a clock set by hand.
type Output struct {
	mu      sync.Mutex
	now     float64
	sources []*Source
	closed  bool
}

// Source is one recorded Schedule call.
type Source struct {
	Start    float64
	Duration float64

	mu      sync.Mutex
	stopped bool
	ended   bool
}

func (s *Source) Stop() {
	s.mu.Lock()
	s.stopped = true
	s.ended = true
	s.mu.Unlock()
}

func (s *Source) Ended() bool   { s.mu.Lock(); defer s.mu.Unlock(); return s.ended }
func (s *Source) Stopped() bool { s.mu.Lock(); defer s.mu.Unlock(); return s.stopped }

// SetTime moves the clock. Sources whose end is at or before t become
// ended.
func (f *Output) SetTime(t float64) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.now = t
	for _, s := range f.sources {
		if s.Start+s.Duration <= t {
			s.mu.Lock()
			s.ended = true
			s.mu.Unlock()
		}
	}
}

func (f *Output) CurrentTime() float64 {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.now
}

func (f *Output) Schedule(buf audio.Buffer, at float64) audio.Source {
	f.mu.Lock()
	defer f.mu.Unlock()
	s := &Source{Start: max(at, f.now), Duration: buf.Duration()}
	f.sources = append(f.sources, s)
	return s
}

func (f *Output) Close() error {
	f.mu.Lock()
	f.closed = true
	f.mu.Unlock()
	return nil
}

// Scheduled returns every source scheduled so far, in order.
func (f *Output) Scheduled() []*Source {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]*Source(nil), f.sources...)
}

func (f *Output) Closed() bool {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.closed
}
