package audio

import (
	"encoding/binary"
	"fmt"
	"math"
	"sync"
	"sync/atomic"

	"github.com/gen2brain/malgo"
)

type malgoContext struct {
	ctx *malgo.AllocatedContext
}

// NewContext opens the host audio backend.
func NewContext() (Context, error) {
	ctx, err := malgo.InitContext(nil, malgo.ContextConfig{}, nil)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrDeviceUnavailable, err)
	}
	return &malgoContext{ctx: ctx}, nil
}

func (m *malgoContext) Close() {
	_ = m.ctx.Uninit()
	m.ctx.Free()
}

func (m *malgoContext) OpenCapture(cfg CaptureConfig) (CaptureDevice, error) {
	deviceConfig := malgo.DefaultDeviceConfig(malgo.Capture)
	deviceConfig.Capture.Format = malgo.FormatF32
	deviceConfig.Capture.Channels = 1
	deviceConfig.SampleRate = uint32(cfg.SampleRate)

	c := &malgoCapture{}
	callbacks := malgo.DeviceCallbacks{
		Data: func(_, input []byte, frameCount uint32) {
			cb := c.callback.Load()
			if cb == nil {
				return
			}
			samples := make([]float32, frameCount)
			for i := range samples {
				samples[i] = math.Float32frombits(binary.LittleEndian.Uint32(input[i*4:]))
			}
			(*cb)(samples)
		},
	}

	dev, err := malgo.InitDevice(m.ctx.Context, deviceConfig, callbacks)
	if err != nil {
		return nil, fmt.Errorf("%w: capture: %v", ErrDeviceUnavailable, err)
	}
	c.device = dev
	return c, nil
}

func (m *malgoContext) OpenOutput(sampleRate int) (Output, error) {
	deviceConfig := malgo.DefaultDeviceConfig(malgo.Playback)
	deviceConfig.Playback.Format = malgo.FormatF32
	deviceConfig.Playback.Channels = 1
	deviceConfig.SampleRate = uint32(sampleRate)

	o := &malgoOutput{Mixer: NewMixer(sampleRate)}
	callbacks := malgo.DeviceCallbacks{
		Data: func(output, _ []byte, frameCount uint32) {
			if cap(o.scratch) < int(frameCount) {
				o.scratch = make([]float32, frameCount)
			}
			frames := o.scratch[:frameCount]
			o.Render(frames)
			for i, s := range frames {
				binary.LittleEndian.PutUint32(output[i*4:], math.Float32bits(s))
			}
		},
	}

	dev, err := malgo.InitDevice(m.ctx.Context, deviceConfig, callbacks)
	if err != nil {
		return nil, fmt.Errorf("%w: playback: %v", ErrDeviceUnavailable, err)
	}
	if err := dev.Start(); err != nil {
		dev.Uninit()
		return nil, fmt.Errorf("%w: playback start: %v", ErrDeviceUnavailable, err)
	}
	o.device = dev
	return o, nil
}

type malgoCapture struct {
	device   *malgo.Device
	callback atomic.Pointer[DataCallback]
}

func (c *malgoCapture) Start(cb DataCallback) error {
	c.callback.Store(&cb)
	if err := c.device.Start(); err != nil {
		c.callback.Store(nil)
		return fmt.Errorf("%w: capture start: %v", ErrDeviceUnavailable, err)
	}
	return nil
}

func (c *malgoCapture) Stop() {
	_ = c.device.Stop()
	c.callback.Store(nil)
}

func (c *malgoCapture) Close() {
	c.device.Uninit()
}

type malgoOutput struct {
	*Mixer
	device  *malgo.Device
	scratch []float32 // only touched on the device thread

	closeOnce sync.Once
}

func (o *malgoOutput) Close() error {
	o.closeOnce.Do(func() {
		o.StopAll()
		_ = o.device.Stop()
		o.device.Uninit()
	})
	return nil
}
