// Package audio holds the PCM codec and the capture/output device
// abstractions used by the voice link.
package audio

import (
	"encoding/binary"
	"errors"
	"fmt"
	"math"
)

const (
	// InputSampleRate is the rate of outbound microphone frames.
	InputSampleRate = 16000
	// OutputSampleRate is the rate of inbound assistant audio.
	OutputSampleRate = 24000
)

// ErrMalformedAudio is returned for PCM payloads that are not a whole
// number of 16-bit samples.
var ErrMalformedAudio = errors.New("malformed pcm audio")

// MIMEType returns the mime tag for 16-bit linear PCM at rate.
func MIMEType(rate int) string {
	return fmt.Sprintf("audio/pcm;rate=%d", rate)
}

// EncodePCM16 scales samples by 32768 and packs them as little-endian
// int16. Full scale 1.0 saturates to 32767; inputs outside [-1, 1] are
// undefined.
func EncodePCM16(samples []float32) []byte {
	out := make([]byte, len(samples)*2)
	for i, s := range samples {
		v := int32(s * 32768)
		if v == 32768 {
			v = math.MaxInt16
		}
		binary.LittleEndian.PutUint16(out[i*2:], uint16(int16(v)))
	}
	return out
}

// DecodePCM16 unpacks little-endian int16 samples into [-1, 1).
func DecodePCM16(data []byte) ([]float32, error) {
	if len(data)%2 != 0 {
		return nil, fmt.Errorf("%w: %d bytes", ErrMalformedAudio, len(data))
	}
	out := make([]float32, len(data)/2)
	for i := range out {
		out[i] = float32(int16(binary.LittleEndian.Uint16(data[i*2:]))) / 32768
	}
	return out, nil
}

// Buffer is a mono block of samples ready to be scheduled on an Output.
type Buffer struct {
	SampleRate int
	Samples    []float32
}

// Duration returns the buffer length in seconds.
func (b Buffer) Duration() float64 {
	if b.SampleRate <= 0 {
		return 0
	}
	return float64(len(b.Samples)) / float64(b.SampleRate)
}
