package session

import (
	"errors"
	"fmt"
	"sync"
	"sync/atomic"

	"github.com/room4-2/omnistream/audio"
	"github.com/rs/zerolog"
)

// ErrMicrophoneUnavailable is returned when the capture device cannot be
// opened or started.
var ErrMicrophoneUnavailable = errors.New("microphone unavailable")

const frameQueueSize = 32

// Capture turns microphone callbacks into encoded 16 kHz PCM frames.
type Capture struct {
	device    audio.CaptureDevice
	resampler *audio.Resampler
	buffer    *FrameBuffer
	frames    chan []byte
	log       zerolog.Logger

	mu      sync.Mutex
	started bool
	stopped bool

	dropped atomic.Int64
}

// OpenCapture opens the microphone at deviceRate. Frames of frameSamples
// samples at 16 kHz are produced once Start is called.
func OpenCapture(devices audio.Context, deviceRate, frameSamples int, log zerolog.Logger) (*Capture, error) {
	resampler, err := audio.NewResampler(deviceRate, audio.InputSampleRate)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrMicrophoneUnavailable, err)
	}
	dev, err := devices.OpenCapture(audio.CaptureConfig{SampleRate: deviceRate})
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrMicrophoneUnavailable, err)
	}
	return &Capture{
		device:    dev,
		resampler: resampler,
		buffer:    NewFrameBuffer(frameSamples),
		frames:    make(chan []byte, frameQueueSize),
		log:       log,
	}, nil
}

// Frames yields encoded frames in capture order. It is closed by Stop.
func (c *Capture) Frames() <-chan []byte {
	return c.frames
}

// Start begins delivery. On failure the device is released.
func (c *Capture) Start() error {
	if err := c.device.Start(c.onData); err != nil {
		c.device.Close()
		c.mu.Lock()
		c.stopped = true
		close(c.frames)
		c.mu.Unlock()
		return fmt.Errorf("%w: %v", ErrMicrophoneUnavailable, err)
	}
	c.mu.Lock()
	c.started = true
	c.mu.Unlock()
	return nil
}

// onData runs on the device thread and never blocks.
func (c *Capture) onData(samples []float32) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.stopped {
		return
	}

	in, err := c.resampler.Process(samples)
	if err != nil {
		c.log.Warn().Err(err).Msg("⚠️ Dropping capture block")
		return
	}
	for _, frame := range c.buffer.Append(in) {
		select {
		case c.frames <- audio.EncodePCM16(frame):
		default:
			if n := c.dropped.Add(1); n == 1 || n%50 == 0 {
				c.log.Warn().Int64("dropped", n).Msg("⚠️ Capture queue full, dropping frame")
			}
		}
	}
}

// Dropped returns the number of frames lost to a full queue.
func (c *Capture) Dropped() int64 {
	return c.dropped.Load()
}

// Stop halts the device, closes Frames and releases the microphone. It is
// safe to call more than once.
func (c *Capture) Stop() {
	c.mu.Lock()
	if c.stopped {
		c.mu.Unlock()
		return
	}
	started := c.started
	c.mu.Unlock()

	if started {
		c.device.Stop()
	}

	c.mu.Lock()
	c.stopped = true
	close(c.frames)
	c.buffer.Clear()
	c.mu.Unlock()

	c.device.Close()
}
