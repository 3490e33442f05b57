// criterion.go - Spectral plus temporal approximation error

package main

import (
	"fmt"
	"math"
	"runtime"

	"golang.org/x/sync/errgroup"
)

// NormalizeLossWeights scales raw spectral/temporal weights so they sum to 1.
func NormalizeLossWeights(spectral, temporal float64) (alpha, beta float64, err error) {
	if spectral < 0 || temporal < 0 || math.IsNaN(spectral) || math.IsNaN(temporal) {
		return 0, 0, fmt.Errorf("%w: loss weights must be non-negative (spectral %v, temporal %v)", ErrInvalidConfig, spectral, temporal)
	}
	sum := spectral + temporal
	if !(sum > 0) || math.IsInf(sum, 0) {
		return 0, 0, fmt.Errorf("%w: loss weights must sum to a positive value", ErrInvalidConfig)
	}
	return spectral / sum, temporal / sum, nil
}

// Candidate is a library waveform at a given offset and mixing scale,
// scored without building a Fragment.
type Candidate struct {
	Audio   []float32 // at least FrameLength samples starting at the offset
	Feature []float32
	Scale   float64
}

// Criterion scores approximations of a fragment. Safe for concurrent use.
type Criterion struct {
	alpha   float64
	beta    float64
	weights []float64
	workers int
}

// NewCriterion validates cfg and binds the perceptual weights of st.
func NewCriterion(cfg Config, st *SpectralTransform) (*Criterion, error) {
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	alpha, beta, err := NormalizeLossWeights(cfg.SpectralWeight, cfg.TemporalWeight)
	if err != nil {
		return nil, err
	}
	return &Criterion{alpha: alpha, beta: beta, weights: st.Weights(), workers: cfg.WorkerCount()}, nil
}

// Weights returns the normalized (alpha, beta) pair.
func (c *Criterion) Weights() (float64, float64) {
	return c.alpha, c.beta
}

// Loss compares two fragments.
func (c *Criterion) Loss(target, approx *Fragment) float64 {
	spectral := 0.0
	for k, w := range c.weights {
		d := target.Feature[k] - approx.Feature[k]
		spectral += w * d * d
	}
	temporal := 0.0
	for i, v := range target.Audio {
		d := v - approx.Audio[i]
		temporal += d * d
	}
	return c.alpha*math.Sqrt(spectral/float64(len(c.weights))) +
		c.beta*math.Sqrt(temporal/float64(len(target.Audio)))
}

// CandidateLoss is Loss against a scaled library candidate.
func (c *Criterion) CandidateLoss(target *Fragment, cand Candidate) float64 {
	spectral := 0.0
	if c.alpha > 0 {
		for k, w := range c.weights {
			d := target.Feature[k] - cand.Scale*float64(cand.Feature[k])
			spectral += w * d * d
		}
	}
	temporal := 0.0
	if c.beta > 0 {
		for i, v := range target.Audio {
			d := v - cand.Scale*float64(cand.Audio[i])
			temporal += d * d
		}
	}
	return c.alpha*math.Sqrt(spectral/float64(len(c.weights))) +
		c.beta*math.Sqrt(temporal/float64(len(target.Audio)))
}

// LossBatch scores many candidates against one target. Large batches are
// split into chunks scored concurrently; out[i] always belongs to cands[i].
func (c *Criterion) LossBatch(target *Fragment, cands []Candidate) []float64 {
	out := make([]float64, len(cands))
	if len(cands) < SEARCH_PARALLEL_THRESHOLD || c.workers < 2 {
		for i := range cands {
			out[i] = c.CandidateLoss(target, cands[i])
		}
		return out
	}
	var g errgroup.Group
	g.SetLimit(min(c.workers, runtime.NumCPU()))
	for start := 0; start < len(cands); start += SEARCH_CHUNK_SIZE {
		start := start
		end := min(start+SEARCH_CHUNK_SIZE, len(cands))
		g.Go(func() error {
			for i := start; i < end; i++ {
				out[i] = c.CandidateLoss(target, cands[i])
			}
			return nil
		})
	}
	_ = g.Wait()
	return out
}

// rmse is the plain temporal error used by phase alignment.
func rmse(target []float64, approx []float32, scale float64) float64 {
	sum := 0.0
	for i, v := range target {
		d := v - scale*float64(approx[i])
		sum += d * d
	}
	return math.Sqrt(sum / float64(len(target)))
}
