package detection

import (
	"context"
	"errors"
	"fmt"
	"math"
	"sync"
	"time"

	"gonum.org/v1/gonum/stat"

	"github.com/RyanBlaney/sonido-voz/features"
	"github.com/RyanBlaney/sonido-voz/logging"
	"github.com/RyanBlaney/sonido-voz/transcode"
)

// NeutralConfidence is reported when no chunk produced a usable probability
const NeutralConfidence = 0.5

// FeatureExtractor turns a segment of normalized samples into a feature vector
type FeatureExtractor interface {
	Extract(segment []float64) (features.Vector, error)
}

// Scorer maps a feature vector to the probability of synthetic speech
type Scorer interface {
	Predict(vec []float64) (float64, error)
}

// AggregatorConfig controls chunking
type AggregatorConfig struct {
	ChunkDuration time.Duration `json:"chunk_duration" mapstructure:"chunk_duration"`
	Workers       int           `json:"workers" mapstructure:"workers"` // 0 or 1 scores chunks sequentially
}

// DefaultAggregatorConfig returns 2 second chunks scored sequentially
func DefaultAggregatorConfig() AggregatorConfig {
	return AggregatorConfig{
		ChunkDuration: 2 * time.Second,
		Workers:       1,
	}
}

// ChunkResult is the outcome for one chunk. Skipped chunks carry the reason
// and do not contribute to the aggregate.
type ChunkResult struct {
	Index       int     `json:"index"`
	Start       int     `json:"start"`
	End         int     `json:"end"`
	Probability float64 `json:"probability"`
	Skipped     bool    `json:"skipped"`
	Err         error   `json:"-"`
}

// Aggregation is the combined verdict over all chunks of a waveform
type Aggregation struct {
	Confidence    float64       `json:"confidence"`
	Probabilities []float64     `json:"probabilities"` // Usable probabilities in chunk order
	Chunks        []ChunkResult `json:"chunks"`
	Discarded     int           `json:"discarded"` // Trailing chunks dropped for being too short
	NoSignal      bool          `json:"no_signal"`
}

// Aggregator scores fixed-length chunks and averages their probabilities
type Aggregator struct {
	extractor FeatureExtractor
	scorer    Scorer
	config    AggregatorConfig
}

// NewAggregator creates an aggregator over a shared extractor and scorer.
// Both must be safe for concurrent use when Workers > 1.
func NewAggregator(extractor FeatureExtractor, scorer Scorer, config AggregatorConfig) (*Aggregator, error) {
	if extractor == nil || scorer == nil {
		return nil, errors.New("detection: extractor and scorer are required")
	}
	if config.ChunkDuration <= 0 {
		return nil, fmt.Errorf("detection: chunk duration must be positive: %v", config.ChunkDuration)
	}
	if config.Workers < 0 {
		return nil, fmt.Errorf("detection: workers must not be negative: %d", config.Workers)
	}
	return &Aggregator{extractor: extractor, scorer: scorer, config: config}, nil
}

// Config returns the aggregator configuration
func (a *Aggregator) Config() AggregatorConfig {
	return a.config
}

// span is a half-open sample range [start, end)
type span struct {
	start, end int
}

// planChunks partitions length samples into consecutive chunks of nominal
// size. A trailing chunk shorter than half of nominal is dropped.
func planChunks(length, nominal int) (chunks []span, discarded int) {
	for start := 0; start < length; start += nominal {
		end := min(start+nominal, length)
		if 2*(end-start) < nominal {
			discarded++
			continue
		}
		chunks = append(chunks, span{start, end})
	}
	return chunks, discarded
}

// NominalChunkSamples is the chunk length in samples at the given rate
func (a *Aggregator) NominalChunkSamples(sampleRate int) int {
	return int(math.Round(a.config.ChunkDuration.Seconds() * float64(sampleRate)))
}

// Aggregate scores the waveform. Failed chunks are skipped rather than
// reported; the only error is context cancellation.
func (a *Aggregator) Aggregate(ctx context.Context, wf *transcode.Waveform) (*Aggregation, error) {
	logger := logging.WithContext(ctx).WithFields(logging.Fields{
		"component": "chunk_aggregator",
		"function":  "Aggregate",
	})

	nominal := a.NominalChunkSamples(wf.SampleRate)
	if nominal <= 0 {
		return nil, fmt.Errorf("detection: invalid sample rate %d", wf.SampleRate)
	}

	var (
		chunks    []span
		discarded int
	)
	if len(wf.Samples) < nominal {
		chunks = []span{{0, len(wf.Samples)}}
	} else {
		chunks, discarded = planChunks(len(wf.Samples), nominal)
	}

	results := make([]ChunkResult, len(chunks))
	if err := a.scoreAll(ctx, wf.Samples, chunks, results); err != nil {
		return nil, err
	}

	agg := &Aggregation{Chunks: results, Discarded: discarded, Probabilities: []float64{}}
	for _, r := range results {
		if r.Skipped {
			logger.Debug("Chunk skipped", logging.Fields{
				"chunk": r.Index,
				"start": r.Start,
				"end":   r.End,
				"error": r.Err.Error(),
			})
			continue
		}
		agg.Probabilities = append(agg.Probabilities, r.Probability)
	}

	if len(agg.Probabilities) == 0 {
		agg.Confidence = NeutralConfidence
		agg.NoSignal = true
	} else {
		agg.Confidence = stat.Mean(agg.Probabilities, nil)
	}

	logger.Debug("Chunks aggregated", logging.Fields{
		"nominal_samples": nominal,
		"chunks":          len(results),
		"usable":          len(agg.Probabilities),
		"discarded":       discarded,
		"confidence":      agg.Confidence,
		"no_signal":       agg.NoSignal,
	})

	return agg, nil
}

func (a *Aggregator) scoreAll(ctx context.Context, samples []float64, chunks []span, results []ChunkResult) error {
	workers := min(a.config.Workers, len(chunks))
	if workers <= 1 {
		for i, c := range chunks {
			if err := ctx.Err(); err != nil {
				return err
			}
			results[i] = a.scoreChunk(i, samples, c)
		}
		return nil
	}

	jobs := make(chan int, len(chunks))

	var wg sync.WaitGroup
	for range workers {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for idx := range jobs {
				if ctx.Err() != nil {
					continue
				}
				results[idx] = a.scoreChunk(idx, samples, chunks[idx])
			}
		}()
	}

	for i := range chunks {
		jobs <- i
	}
	close(jobs)
	wg.Wait()

	return ctx.Err()
}

func (a *Aggregator) scoreChunk(idx int, samples []float64, c span) ChunkResult {
	res := ChunkResult{Index: idx, Start: c.start, End: c.end}

	vec, err := a.extractor.Extract(samples[c.start:c.end])
	if err != nil {
		res.Skipped, res.Err = true, fmt.Errorf("extract features: %w", err)
		return res
	}

	p, err := a.scorer.Predict(vec)
	if err != nil {
		res.Skipped, res.Err = true, fmt.Errorf("predict: %w", err)
		return res
	}
	if math.IsNaN(p) || p < 0 || p > 1 {
		res.Skipped, res.Err = true, fmt.Errorf("probability out of range: %v", p)
		return res
	}

	res.Probability = p
	return res
}
