package transcode

import (
	"fmt"
	"math"
	"sync"

	resampling "github.com/tphakala/go-audio-resampling"
)

// flushSeconds of silence is pushed after the signal so the filter tail drains
const flushSeconds = 0.1

// resampleDelays caches the measured output offset per rate pair
var resampleDelays sync.Map

// resampleMono converts a mono signal between rates. The output is aligned so
// that input sample i lands on output sample round(i * to / from), and is
// trimmed to round(len(samples) * to / from) samples.
func resampleMono(samples []float64, from, to int) ([]float64, error) {
	if from == to || len(samples) == 0 {
		return samples, nil
	}
	if from <= 0 || to <= 0 {
		return nil, fmt.Errorf("invalid resample rates %d -> %d", from, to)
	}

	delay, err := resampleDelay(from, to)
	if err != nil {
		return nil, err
	}

	out, err := runResampler(samples, from, to)
	if err != nil {
		return nil, err
	}

	switch {
	case delay > 0:
		out = out[min(delay, len(out)):]
	case delay < 0:
		out = append(make([]float64, -delay, len(out)-delay), out...)
	}

	want := int(math.Round(float64(len(samples)) * float64(to) / float64(from)))
	if len(out) > want {
		out = out[:want]
	}
	return out, nil
}

// resampleDelay measures where the resampler places a unit impulse relative
// to its ideal position. Positive means the output lags the input.
func resampleDelay(from, to int) (int, error) {
	key := [2]int{from, to}
	if d, ok := resampleDelays.Load(key); ok {
		return d.(int), nil
	}

	pos := from / 2
	impulse := make([]float64, from)
	impulse[pos] = 1

	out, err := runResampler(impulse, from, to)
	if err != nil {
		return 0, err
	}
	if len(out) == 0 {
		return 0, fmt.Errorf("resampler produced no output for %d -> %d", from, to)
	}

	peak := 0
	for i, v := range out {
		if math.Abs(v) > math.Abs(out[peak]) {
			peak = i
		}
	}
	delay := peak - int(math.Round(float64(pos)*float64(to)/float64(from)))

	resampleDelays.Store(key, delay)
	return delay, nil
}

func runResampler(samples []float64, from, to int) ([]float64, error) {
	r, err := resampling.New(&resampling.Config{
		InputRate:  float64(from),
		OutputRate: float64(to),
		Channels:   1,
		Quality:    resampling.QualitySpec{Preset: resampling.QualityHigh},
	})
	if err != nil {
		return nil, fmt.Errorf("failed to create resampler: %w", err)
	}

	out, err := r.Process(samples)
	if err != nil {
		return nil, fmt.Errorf("resample: %w", err)
	}

	tail, err := r.Process(make([]float64, int(math.Ceil(float64(from)*flushSeconds))))
	if err != nil {
		return nil, fmt.Errorf("resample flush: %w", err)
	}
	return append(out, tail...), nil
}
