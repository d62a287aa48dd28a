package audio

import (
	"math"
	"sync"
	"sync/atomic"
)

// Mixer sums scheduled buffers onto a frame clock. The clock only advances
// when Render is called, so CurrentTime follows what the device has
// actually pulled.
type Mixer struct {
	rate int

	mu     sync.Mutex
	frame  int64
	voices []*voice
}

type voice struct {
	start   int64
	samples []float32
	begun   bool

	ended atomic.Bool
}

func (v *voice) Stop()       { v.ended.Store(true) }
func (v *voice) Ended() bool { return v.ended.Load() }

// NewMixer creates a mixer for mono output at rate Hz.
func NewMixer(rate int) *Mixer {
	return &Mixer{rate: rate}
}

// CurrentTime returns the number of rendered seconds.
func (m *Mixer) CurrentTime() float64 {
	m.mu.Lock()
	defer m.mu.Unlock()
	return float64(m.frame) / float64(m.rate)
}

// Schedule queues buf at clock time at. buf must be at the mixer rate.
func (m *Mixer) Schedule(buf Buffer, at float64) Source {
	v := &voice{
		start:   int64(math.Round(at * float64(m.rate))),
		samples: buf.Samples,
	}
	if len(v.samples) == 0 {
		v.ended.Store(true)
		return v
	}
	m.mu.Lock()
	m.voices = append(m.voices, v)
	m.mu.Unlock()
	return v
}

// Render fills out with the next len(out) frames and advances the clock.
func (m *Mixer) Render(out []float32) {
	clear(out)

	m.mu.Lock()
	defer m.mu.Unlock()

	begin := m.frame
	end := begin + int64(len(out))

	live := m.voices[:0]
	for _, v := range m.voices {
		if v.Ended() {
			continue
		}
		if !v.begun && v.start < end {
			// late sources start where the device is now
			if v.start < begin {
				v.start = begin
			}
			v.begun = true
		}
		vEnd := v.start + int64(len(v.samples))
		if v.begun {
			from := max(begin, v.start)
			to := min(end, vEnd)
			for f := from; f < to; f++ {
				out[f-begin] += v.samples[f-v.start]
			}
		}
		if v.begun && vEnd <= end {
			v.ended.Store(true)
			continue
		}
		live = append(live, v)
	}
	clear(m.voices[len(live):])
	m.voices = live
	m.frame = end
}

// StopAll stops every queued source.
func (m *Mixer) StopAll() {
	m.mu.Lock()
	defer m.mu.Unlock()
	for _, v := range m.voices {
		v.Stop()
	}
	m.voices = nil
}

// Active returns the number of sources not yet finished.
func (m *Mixer) Active() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	n := 0
	for _, v := range m.voices {
		if !v.Ended() {
			n++
		}
	}
	return n
}
