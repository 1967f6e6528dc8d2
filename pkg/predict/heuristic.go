package predict

import (
	"math"

	"github.com/mchmarny/chimera/pkg/score"
	"github.com/samber/lo"
)

const (
	highBand     = 7.0
	moderateBand = 5.0

	strongBlend = 0.8
	weakBlend   = 0.3
	ceiling     = 0.95
	floor       = 0.05
)

var (
	heuristicWeights = map[score.Feature]float64{
		score.Pitch:    0.40,
		score.Identity: 0.35,
		score.Momentum: 0.25,
	}

	heuristicNames = map[score.Feature]string{
		score.Pitch:    "Pitch Strength",
		score.Identity: "Founder Trust",
		score.Momentum: "Market Momentum",
	}
)

// HeuristicPredictor is the degraded mode used when no model artifact is
// available: a weighted average of the scores with the extremes stretched,
// and drivers taken from the highest raw scores.
type HeuristicPredictor struct{}

func NewHeuristicPredictor() *HeuristicPredictor {
	return &HeuristicPredictor{}
}

func (p *HeuristicPredictor) Strategy() Strategy { return StrategyHeuristic }

// Probability is non-decreasing in every score and stays within [0.05, 0.95]
// for inputs in range.
func (p *HeuristicPredictor) Probability(in score.Input) (float64, error) {
	w := lo.SumBy(score.Features, func(f score.Feature) float64 {
		return heuristicWeights[f] * in.Value(f)
	}) / score.MaxValue

	switch {
	case w >= strongBlend:
		w = math.Min(ceiling, w*1.1)
	case w <= weakBlend:
		w = math.Max(floor, w*0.8)
	}
	return w, nil
}

// Drivers phrases the two highest scores by band.
func (p *HeuristicPredictor) Drivers(in score.Input) ([]string, error) {
	return scoreDrivers(in), nil
}

// scoreDrivers ranks the raw scores descending and phrases the top two by band.
func scoreDrivers(in score.Input) []string {
	values := lo.Map(score.Features, func(f score.Feature, _ int) float64 {
		return in.Value(f)
	})

	list := make([]string, 0, driverCount)
	for _, i := range rank(values, identity)[:driverCount] {
		f := score.Features[i]
		list = append(list, band(values[i])+" "+heuristicNames[f])
	}
	return list
}

func band(v float64) string {
	switch {
	case v >= highBand:
		return "High"
	case v >= moderateBand:
		return "Moderate"
	default:
		return "Low"
	}
}

func identity(v float64) float64 { return v }
