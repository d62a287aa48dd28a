package audio

import (
	"errors"
	"testing"
)

func TestUnavailableContext(t *testing.T) {
	cause := errors.New("no backend")
	ctx := Unavailable(cause)

	if _, err := ctx.OpenCapture(CaptureConfig{SampleRate: InputSampleRate}); !errors.Is(err, ErrDeviceUnavailable) {
		t.Fatalf("capture err = %v", err)
	}
	if _, err := ctx.OpenOutput(OutputSampleRate); !errors.Is(err, ErrDeviceUnavailable) {
		t.Fatalf("output err = %v", err)
	}
	ctx.Close()
}
