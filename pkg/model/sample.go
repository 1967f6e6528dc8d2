package model

import (
	"math"
	"math/rand/v2"
	"sort"

	"github.com/mchmarny/chimera/pkg/score"
)

const (
	// positiveShare is the approximate share of funded samples in synthetic data.
	positiveShare = 0.30
)

// Sample is one labeled training row.
type Sample struct {
	Input  score.Input `json:"input" yaml:"input"`
	Funded bool        `json:"funded" yaml:"funded"`
}

func (s Sample) label() float64 {
	if s.Funded {
		return 1
	}
	return 0
}

// GenerateSynthetic produces n mock labeled samples. Scores are drawn from
// clipped normals, the outcome from a noisy weighted blend of the three scores
// with roughly the top 30% of startups funded. Output is fixed for a seed.
func GenerateSynthetic(n int, seed uint64) []Sample {
	if n <= 0 {
		return []Sample{}
	}

	rng := rand.New(rand.NewPCG(seed, seed))
	normal := func(mu, sigma float64) float64 {
		return clip(mu+sigma*rng.NormFloat64(), score.MinValue, score.MaxValue)
	}

	list := make([]Sample, n)
	latent := make([]float64, n)
	for i := range list {
		in := score.Input{
			Pitch:    normal(6.5, 2.0),
			Identity: normal(6.0, 1.8),
			Momentum: normal(5.5, 2.2),
		}

		p := 0.4*(in.Pitch/10) + 0.35*(in.Identity/10) + 0.25*(in.Momentum/10)
		p += 0.1 * rng.NormFloat64()
		latent[i] = 1 / (1 + math.Exp(-5*(p-0.5)))

		list[i] = Sample{Input: in}
	}

	threshold := percentile(latent, 1-positiveShare)
	for i := range list {
		list[i].Funded = latent[i] > threshold
	}

	return list
}

// SplitTrainTest holds out testRatio of each class, shuffled by seed.
func SplitTrainTest(samples []Sample, testRatio float64, seed uint64) (train, test []Sample) {
	rng := rand.New(rand.NewPCG(seed, seed^0x9e3779b97f4a7c15))
	for _, class := range byClass(samples) {
		rng.Shuffle(len(class), func(i, j int) { class[i], class[j] = class[j], class[i] })
		cut := int(math.Round(float64(len(class)) * testRatio))
		test = append(test, class[:cut]...)
		train = append(train, class[cut:]...)
	}
	return train, test
}

// Folds splits samples into k stratified folds.
func Folds(samples []Sample, k int, seed uint64) [][]Sample {
	if k < 1 {
		k = 1
	}
	folds := make([][]Sample, k)
	rng := rand.New(rand.NewPCG(seed, seed^0x85ebca6b))
	for _, class := range byClass(samples) {
		rng.Shuffle(len(class), func(i, j int) { class[i], class[j] = class[j], class[i] })
		for i, s := range class {
			folds[i%k] = append(folds[i%k], s)
		}
	}
	return folds
}

// PositiveRate returns the share of funded samples.
func PositiveRate(samples []Sample) float64 {
	if len(samples) == 0 {
		return 0
	}
	pos := 0
	for _, s := range samples {
		if s.Funded {
			pos++
		}
	}
	return float64(pos) / float64(len(samples))
}

// byClass returns copies of the negative and positive samples, in that order.
func byClass(samples []Sample) [][]Sample {
	var neg, pos []Sample
	for _, s := range samples {
		if s.Funded {
			pos = append(pos, s)
		} else {
			neg = append(neg, s)
		}
	}
	return [][]Sample{neg, pos}
}

// percentile uses linear interpolation between closest ranks.
func percentile(values []float64, q float64) float64 {
	if len(values) == 0 {
		return 0
	}
	sorted := append([]float64(nil), values...)
	sort.Float64s(sorted)

	pos := q * float64(len(sorted)-1)
	lo := int(math.Floor(pos))
	hi := int(math.Ceil(pos))
	if lo == hi {
		return sorted[lo]
	}
	return sorted[lo] + (sorted[hi]-sorted[lo])*(pos-float64(lo))
}

func clip(v, lo, hi float64) float64 {
	return math.Max(lo, math.Min(hi, v))
}
