package score

import (
	"fmt"
	"math"
)

// Feature names a single model input produced by an upstream agent.
type Feature string

const (
	Pitch    Feature = "pitch_strength_score"
	Identity Feature = "identity_model_score"
	Momentum Feature = "momentum_tracker_score"

	MinValue = 0.0
	MaxValue = 10.0
)

// Features is the order in which the model is trained and queried.
// Every row handed to the model is built from it.
var Features = []Feature{Pitch, Identity, Momentum}

// FeatureNames returns Features as plain strings.
func FeatureNames() []string {
	names := make([]string, len(Features))
	for i, f := range Features {
		names[i] = string(f)
	}
	return names
}

// Index returns the position of f in Features or -1.
func Index(f Feature) int {
	for i, v := range Features {
		if v == f {
			return i
		}
	}
	return -1
}

// Input holds the three agent scores for one prediction.
type Input struct {
	Pitch    float64 `json:"pitch_strength_score" yaml:"pitch_strength_score"`
	Identity float64 `json:"identity_model_score" yaml:"identity_model_score"`
	Momentum float64 `json:"momentum_tracker_score" yaml:"momentum_tracker_score"`
}

// Value returns the score for f. It panics on an unknown feature.
func (in Input) Value(f Feature) float64 {
	switch f {
	case Pitch:
		return in.Pitch
	case Identity:
		return in.Identity
	case Momentum:
		return in.Momentum
	default:
		panic(fmt.Sprintf("unknown feature: %s", f))
	}
}

// Vector returns the scores as a model row, in Features order.
func (in Input) Vector() []float64 {
	row := make([]float64, len(Features))
	for i, f := range Features {
		row[i] = in.Value(f)
	}
	return row
}

// OutOfRange lists the features whose value is outside [MinValue, MaxValue].
func (in Input) OutOfRange() []Feature {
	var list []Feature
	for _, f := range Features {
		v := in.Value(f)
		if math.IsNaN(v) || v < MinValue || v > MaxValue {
			list = append(list, f)
		}
	}
	return list
}

// FromMap builds an Input from loosely keyed scores. A missing feature
// yields a *MissingFeatureError; extra keys are ignored.
func FromMap(m map[string]float64) (Input, error) {
	var in Input
	for _, f := range Features {
		v, ok := m[string(f)]
		if !ok {
			return Input{}, &MissingFeatureError{Feature: f}
		}
		in.set(f, v)
	}
	return in, nil
}

func (in *Input) set(f Feature, v float64) {
	switch f {
	case Pitch:
		in.Pitch = v
	case Identity:
		in.Identity = v
	case Momentum:
		in.Momentum = v
	}
}

// MissingFeatureError reports a required score absent from the input.
type MissingFeatureError struct {
	Feature Feature
}

func (e *MissingFeatureError) Error() string {
	return fmt.Sprintf("missing required feature: %s", e.Feature)
}
