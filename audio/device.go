package audio

import (
	"errors"
	"fmt"
)

// ErrDeviceUnavailable wraps failures to open a capture or output device,
// including a denied microphone permission.
var ErrDeviceUnavailable = errors.New("audio device unavailable")

// DataCallback receives mono capture samples in [-1, 1]. It is called on
// the device thread and must not block.
type DataCallback func(samples []float32)

type CaptureConfig struct {
	SampleRate int
}

// CaptureDevice is a microphone stream.
type CaptureDevice interface {
	Start(cb DataCallback) error
	Stop()
	Close()
}

// Source is one buffer scheduled on an Output.
type Source interface {
	// Stop silences the source immediately. Stopping twice is harmless.
	Stop()
	// Ended reports whether the source finished playing or was stopped.
	Ended() bool
}

// Output is a playback device with a monotonic clock in seconds.
type Output interface {
	CurrentTime() float64
	// Schedule plays buf starting at the given clock time. A time in the
	// past starts immediately.
	Schedule(buf Buffer, at float64) Source
	Close() error
}

// Context opens devices.
type Context interface {
	OpenCapture(cfg CaptureConfig) (CaptureDevice, error)
	OpenOutput(sampleRate int) (Output, error)
	Close()
}

// Unavailable returns a Context whose devices always fail with cause.
// It stands in when the host has no audio backend.
func Unavailable(cause error) Context {
	return unavailable{cause}
}

type unavailable struct{ cause error }

func (u unavailable) OpenCapture(CaptureConfig) (CaptureDevice, error) {
	return nil, fmt.Errorf("%w: %v", ErrDeviceUnavailable, u.cause)
}

func (u unavailable) OpenOutput(int) (Output, error) {
	return nil, fmt.Errorf("%w: %v", ErrDeviceUnavailable, u.cause)
}

func (unavailable) Close() {}
