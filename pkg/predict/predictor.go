package predict

import (
	"errors"
	"fmt"
	"log/slog"
	"math"
	"sort"

	"github.com/mchmarny/chimera/pkg/explain"
	"github.com/mchmarny/chimera/pkg/model"
	"github.com/mchmarny/chimera/pkg/score"
)

// Strategy tags which predictor backs the pipeline.
type Strategy string

const (
	StrategyModel     Strategy = "model"
	StrategyHeuristic Strategy = "heuristic"
)

// Predictor turns scores into a probability and ranked driver phrases.
type Predictor interface {
	Strategy() Strategy
	Probability(in score.Input) (float64, error)
	Drivers(in score.Input) ([]string, error)
}

// Select loads the model at path. When loading fails and allowFallback is
// set, the heuristic predictor is returned instead and a warning is logged;
// otherwise the *model.LoadError is returned.
func Select(path string, allowFallback bool) (Predictor, error) {
	ens, err := model.Load(path)
	if err != nil {
		if !allowFallback {
			return nil, err
		}
		slog.Warn("model unavailable, serving heuristic predictions", "path", path, "error", err)
		return NewHeuristicPredictor(), nil
	}

	p, err := NewModelPredictor(ens)
	if err != nil {
		return nil, fmt.Errorf("creating model predictor: %w", err)
	}
	return p, nil
}

// phrases hold the positive and negative wording of a feature's influence.
type phrases struct {
	positive string
	negative string
}

var attributionPhrases = map[score.Feature]phrases{
	score.Pitch:    {positive: "High Pitch Strength", negative: "Weak Pitch"},
	score.Identity: {positive: "Strong Founder Trust", negative: "Trust Concerns"},
	score.Momentum: {positive: "Strong Momentum", negative: "Limited Momentum"},
}

// ModelPredictor serves the trained ensemble and explains it with TreeSHAP.
type ModelPredictor struct {
	Model     *model.Ensemble
	Explainer *explain.TreeExplainer
}

// NewModelPredictor builds the explainer for ens.
func NewModelPredictor(ens *model.Ensemble) (*ModelPredictor, error) {
	x, err := explain.NewTreeExplainer(ens)
	if err != nil {
		return nil, err
	}
	return &ModelPredictor{Model: ens, Explainer: x}, nil
}

func (p *ModelPredictor) Strategy() Strategy { return StrategyModel }

func (p *ModelPredictor) Probability(in score.Input) (float64, error) {
	if p.Model == nil {
		return 0, errors.New("model not loaded")
	}
	return p.Model.PredictInput(in), nil
}

// Drivers ranks the raw scores, the same way the heuristic does. The
// attribution based phrasing is reported separately by AttributionDrivers.
func (p *ModelPredictor) Drivers(in score.Input) ([]string, error) {
	return scoreDrivers(in), nil
}

// AttributionDrivers phrases the two features with the largest absolute
// attribution. Only a strictly positive value gets the positive phrase.
func AttributionDrivers(a explain.Attribution) ([]string, error) {
	if len(a.Values) != len(score.Features) {
		return nil, fmt.Errorf("expected %d attribution values, got %d", len(score.Features), len(a.Values))
	}

	list := make([]string, 0, driverCount)
	for _, i := range rank(a.Values, math.Abs)[:driverCount] {
		f := score.Features[i]
		v := a.Values[i]
		if math.IsNaN(v) {
			return nil, fmt.Errorf("attribution for %s is not a number", f)
		}
		ph := attributionPhrases[f]
		if v > 0 {
			list = append(list, ph.positive)
		} else {
			list = append(list, ph.negative)
		}
	}
	return list, nil
}

// Attribution exposes the raw SHAP values, used by the CLI report.
func (p *ModelPredictor) Attribution(in score.Input) explain.Attribution {
	return p.Explainer.Attribute(in)
}

// rank returns feature indexes ordered by key(values[i]) descending.
// Ties keep feature order.
func rank(values []float64, key func(float64) float64) []int {
	idx := make([]int, len(values))
	for i := range idx {
		idx[i] = i
	}
	sort.SliceStable(idx, func(a, b int) bool {
		return key(values[idx[a]]) > key(values[idx[b]])
	})
	return idx
}
