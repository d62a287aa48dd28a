package audio

import (
	"bytes"
	"fmt"
	"os"
	"sync"
	"time"
)

const (
	fileFrameSize = 1024
	wavHeaderSize = 44
)

// FileContext replays a 16-bit mono PCM or WAV file as microphone input.
// Output goes to Playback, or to a silent real-time clock when Playback
// is nil.
type FileContext struct {
	pcm        []byte
	sampleRate int
	Playback   Context
}

// NewFileContext loads path. The file must already be at sampleRate.
func NewFileContext(path string, sampleRate int) (*FileContext, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}
	if len(data) > wavHeaderSize && bytes.HasPrefix(data, []byte("RIFF")) {
		data = data[wavHeaderSize:]
	}
	if len(data)%2 != 0 {
		data = data[:len(data)-1]
	}
	return &FileContext{pcm: data, sampleRate: sampleRate}, nil
}

func (f *FileContext) OpenCapture(cfg CaptureConfig) (CaptureDevice, error) {
	if cfg.SampleRate != f.sampleRate {
		return nil, fmt.Errorf("%w: file is %d Hz, capture wants %d Hz", ErrDeviceUnavailable, f.sampleRate, cfg.SampleRate)
	}
	samples, err := DecodePCM16(f.pcm)
	if err != nil {
		return nil, err
	}
	return &FileCapture{samples: samples, rate: f.sampleRate, Done: make(chan struct{})}, nil
}

func (f *FileContext) OpenOutput(sampleRate int) (Output, error) {
	if f.Playback != nil {
		return f.Playback.OpenOutput(sampleRate)
	}
	return NewClockOutput(sampleRate, 20*time.Millisecond), nil
}

func (f *FileContext) Close() {
	if f.Playback != nil {
		f.Playback.Close()
	}
}

// FileCapture feeds decoded samples in real time, then silence.
type FileCapture struct {
	samples []float32
	rate    int

	// Done is closed once the whole file has been fed.
	Done chan struct{}

	stopCh   chan struct{}
	feedDone chan struct{}
	doneOnce sync.Once
}

func (f *FileCapture) Start(cb DataCallback) error {
	f.stopCh = make(chan struct{})
	f.feedDone = make(chan struct{})
	interval := time.Duration(fileFrameSize) * time.Second / time.Duration(f.rate)

	go func() {
		defer close(f.feedDone)
		ticker := time.NewTicker(interval)
		defer ticker.Stop()
		silence := make([]float32, fileFrameSize)
		pos := 0
		for {
			if pos < len(f.samples) {
				end := min(pos+fileFrameSize, len(f.samples))
				chunk := make([]float32, end-pos)
				copy(chunk, f.samples[pos:end])
				cb(chunk)
				pos = end
			} else {
				f.doneOnce.Do(func() { close(f.Done) })
				cb(silence)
			}
			select {
			case <-f.stopCh:
				return
			case <-ticker.C:
			}
		}
	}()
	return nil
}

func (f *FileCapture) Stop() {
	if f.stopCh == nil {
		return
	}
	select {
	case <-f.stopCh:
	default:
		close(f.stopCh)
	}
	<-f.feedDone
}

func (f *FileCapture) Close() {}

// ClockOutput is a Mixer rendered into nowhere by a real-time ticker.
type ClockOutput struct {
	*Mixer
	stop     chan struct{}
	stopOnce sync.Once
}

// NewClockOutput starts a silent output that advances every period.
func NewClockOutput(sampleRate int, period time.Duration) *ClockOutput {
	o := &ClockOutput{Mixer: NewMixer(sampleRate), stop: make(chan struct{})}
	frames := int(int64(sampleRate) * int64(period) / int64(time.Second))
	go func() {
		ticker := time.NewTicker(period)
		defer ticker.Stop()
		buf := make([]float32, frames)
		for {
			select {
			case <-o.stop:
				return
			case <-ticker.C:
				o.Render(buf)
			}
		}
	}()
	return o
}

func (o *ClockOutput) Close() error {
	o.stopOnce.Do(func() {
		o.StopAll()
		close(o.stop)
	})
	return nil
}
