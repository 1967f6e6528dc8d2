// Package predict turns agent scores into a labeled, explained fundraising prediction.
package predict

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"math"

	"github.com/mchmarny/chimera/pkg/score"
)

const (
	driverCount = 2

	LabelLikely   = "Likely to Fund"
	LabelModerate = "Moderate Potential"
	LabelLow      = "Low Funding Probability"

	likelyThreshold   = 0.7
	moderateThreshold = 0.5
)

// Result is the outcome returned to callers.
type Result struct {
	Score   float64  `json:"prediction_score" yaml:"prediction_score"`
	Label   string   `json:"prediction_label" yaml:"prediction_label"`
	Drivers []string `json:"key_drivers" yaml:"key_drivers"`
}

// Label maps a probability onto the three-level label table.
func Label(p float64) string {
	switch {
	case p >= likelyThreshold:
		return LabelLikely
	case p >= moderateThreshold:
		return LabelModerate
	default:
		return LabelLow
	}
}

// ComputationError wraps any failure after input validation. Computations
// are deterministic, so callers should not retry.
type ComputationError struct {
	Stage string
	Err   error
}

func (e *ComputationError) Error() string {
	return fmt.Sprintf("prediction failed at %s: %v", e.Stage, e.Err)
}

func (e *ComputationError) Unwrap() error {
	return e.Err
}

// Pipeline runs one prediction per call against a predictor chosen at startup.
type Pipeline struct {
	predictor Predictor
}

// NewPipeline returns a pipeline backed by p.
func NewPipeline(p Predictor) (*Pipeline, error) {
	if p == nil {
		return nil, errors.New("predictor required")
	}
	return &Pipeline{predictor: p}, nil
}

// Strategy reports which predictor is serving.
func (p *Pipeline) Strategy() Strategy {
	return p.predictor.Strategy()
}

// Predictor returns the underlying predictor.
func (p *Pipeline) Predictor() Predictor {
	return p.predictor
}

// Process predicts for a validated input. The result is all or nothing.
func (p *Pipeline) Process(ctx context.Context, in score.Input) (*Result, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	prob, err := p.predictor.Probability(in)
	if err != nil {
		return nil, &ComputationError{Stage: "inference", Err: err}
	}
	if math.IsNaN(prob) || prob < 0 || prob > 1 {
		return nil, &ComputationError{Stage: "inference", Err: fmt.Errorf("probability %v outside [0,1]", prob)}
	}

	drivers, err := p.predictor.Drivers(in)
	if err != nil {
		return nil, &ComputationError{Stage: "attribution", Err: err}
	}
	if len(drivers) != driverCount {
		return nil, &ComputationError{Stage: "attribution", Err: fmt.Errorf("expected %d drivers, got %d", driverCount, len(drivers))}
	}

	res := &Result{
		Score:   prob,
		Label:   Label(prob),
		Drivers: drivers,
	}

	slog.Debug("prediction",
		"strategy", p.predictor.Strategy(),
		"score", res.Score,
		"label", res.Label,
		"drivers", res.Drivers)

	return res, nil
}

// ProcessMap predicts for loosely keyed scores. Missing features fail with
// *score.MissingFeatureError; out-of-range values are only logged.
func (p *Pipeline) ProcessMap(ctx context.Context, m map[string]float64) (*Result, error) {
	in, err := score.FromMap(m)
	if err != nil {
		return nil, err
	}

	for _, f := range in.OutOfRange() {
		slog.Warn("score outside expected range",
			"feature", f,
			"value", in.Value(f),
			"min", score.MinValue,
			"max", score.MaxValue)
	}

	return p.Process(ctx, in)
}
