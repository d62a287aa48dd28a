package audio

import (
	"fmt"

	resampling "github.com/tphakala/go-audio-resampling"
)

// Resampler converts mono float frames between sample rates. It keeps
// filter state between calls, so one Resampler serves one stream.
type Resampler struct {
	from, to  int
	resampler resampling.Resampler
}

// NewResampler returns a resampler from one rate to another. Equal rates
// give a passthrough resampler.
func NewResampler(from, to int) (*Resampler, error) {
	if from <= 0 || to <= 0 {
		return nil, fmt.Errorf("invalid resample rates %d -> %d", from, to)
	}
	r := &Resampler{from: from, to: to}
	if from == to {
		return r, nil
	}
	rs, err := resampling.New(&resampling.Config{
		InputRate:  float64(from),
		OutputRate: float64(to),
		Channels:   1,
		Quality:    resampling.QualitySpec{Preset: resampling.QualityHigh},
	})
	if err != nil {
		return nil, fmt.Errorf("failed to create resampler: %w", err)
	}
	r.resampler = rs
	return r, nil
}

// Passthrough reports whether no conversion happens.
func (r *Resampler) Passthrough() bool { return r.resampler == nil }

// Process converts one block. The output length follows the rate ratio
// but may lag the input while the filter fills.
func (r *Resampler) Process(in []float32) ([]float32, error) {
	if r.resampler == nil {
		return in, nil
	}
	input := make([]float64, len(in))
	for i, s := range in {
		input[i] = float64(s)
	}
	output, err := r.resampler.Process(input)
	if err != nil {
		return nil, fmt.Errorf("resample error: %w", err)
	}
	out := make([]float32, len(output))
	for i, s := range output {
		out[i] = float32(s)
	}
	return out, nil
}
