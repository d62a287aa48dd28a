package audio

import (
	"math"
	"testing"
)

func TestResamplerPassthrough(t *testing.T) {
	r, err := NewResampler(16000, 16000)
	if err != nil {
		t.Fatal(err)
	}
	if !r.Passthrough() {
		t.Fatal("equal rates should pass through")
	}
	in := []float32{0.1, 0.2, 0.3}
	out, err := r.Process(in)
	if err != nil {
		t.Fatal(err)
	}
	if len(out) != len(in) || out[1] != in[1] {
		t.Fatalf("got %v", out)
	}
}

func TestResamplerInvalidRates(t *testing.T) {
	if _, err := NewResampler(0, 16000); err == nil {
		t.Fatal("expected error for zero rate")
	}
}

func TestResampler48kTo16k(t *testing.T) {
	r, err := NewResampler(48000, 16000)
	if err != nil {
		t.Fatal(err)
	}
	total := 0
	for block := 0; block < 20; block++ {
		in := make([]float32, 4800)
		for i := range in {
			n := block*len(in) + i
			in[i] = float32(0.5 * math.Sin(2*math.Pi*440*float64(n)/48000))
		}
		out, err := r.Process(in)
		if err != nil {
			t.Fatal(err)
		}
		total += len(out)
	}
	// 96000 input frames at a 3:1 ratio, minus filter latency
	if total < 24000 || total > 32000 {
		t.Fatalf("output frames = %d, want about 32000", total)
	}
}
