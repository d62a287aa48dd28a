package session

import (
	"sync"

	"github.com/room4-2/omnistream/audio"
)

// Player schedules inbound chunks back to back on one output timeline.
type Player struct {
	out  audio.Output
	rate int

	mu      sync.Mutex
	cursor  float64
	sources []audio.Source
	closed  bool
}

func NewPlayer(out audio.Output, rate int) *Player {
	return &Player{out: out, rate: rate}
}

// Enqueue decodes one PCM chunk and schedules it at max(cursor, now).
// Malformed chunks return an error and leave the timeline untouched.
func (p *Player) Enqueue(pcm []byte) error {
	samples, err := audio.DecodePCM16(pcm)
	if err != nil {
		return err
	}
	if len(samples) == 0 {
		return nil
	}
	buf := audio.Buffer{SampleRate: p.rate, Samples: samples}

	p.mu.Lock()
	defer p.mu.Unlock()
	if p.closed {
		return nil
	}

	p.pruneLocked()
	start := max(p.cursor, p.out.CurrentTime())
	src := p.out.Schedule(buf, start)
	p.cursor = start + buf.Duration()
	p.sources = append(p.sources, src)
	return nil
}

func (p *Player) pruneLocked() {
	live := p.sources[:0]
	for _, s := range p.sources {
		if !s.Ended() {
			live = append(live, s)
		}
	}
	clear(p.sources[len(live):])
	p.sources = live
}

// Interrupt stops everything scheduled and resets the cursor to zero.
func (p *Player) Interrupt() {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.interruptLocked()
}

func (p *Player) interruptLocked() {
	for _, s := range p.sources {
		s.Stop()
	}
	p.sources = nil
	p.cursor = 0
}

// Cursor returns the next free start time.
func (p *Player) Cursor() float64 {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.cursor
}

// Pending returns the number of scheduled sources that have not ended.
func (p *Player) Pending() int {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.pruneLocked()
	return len(p.sources)
}

// Close interrupts playback and releases the output.
func (p *Player) Close() error {
	p.mu.Lock()
	if p.closed {
		p.mu.Unlock()
		return nil
	}
	p.closed = true
	p.interruptLocked()
	p.mu.Unlock()
	return p.out.Close()
}
