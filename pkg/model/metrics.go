package model

import (
	"context"
	"errors"
	"fmt"
	"math"
	"runtime"
	"sort"

	"golang.org/x/sync/errgroup"
)

const decisionThreshold = 0.5

// Confusion counts outcomes at the 0.5 decision threshold.
type Confusion struct {
	TruePositive  int `json:"true_positive" yaml:"true_positive"`
	FalsePositive int `json:"false_positive" yaml:"false_positive"`
	TrueNegative  int `json:"true_negative" yaml:"true_negative"`
	FalseNegative int `json:"false_negative" yaml:"false_negative"`
}

// Metrics summarizes how well a model separates funded from unfunded samples.
type Metrics struct {
	Samples   int       `json:"samples" yaml:"samples"`
	AUC       float64   `json:"roc_auc" yaml:"roc_auc"`
	Accuracy  float64   `json:"accuracy" yaml:"accuracy"`
	Precision float64   `json:"precision" yaml:"precision"`
	Recall    float64   `json:"recall" yaml:"recall"`
	F1        float64   `json:"f1" yaml:"f1"`
	Confusion Confusion `json:"confusion" yaml:"confusion"`
}

// Evaluate scores e against labeled samples.
func Evaluate(e *Ensemble, samples []Sample) Metrics {
	m := Metrics{Samples: len(samples)}
	if len(samples) == 0 {
		return m
	}

	labels := make([]bool, len(samples))
	probs := make([]float64, len(samples))
	for i, s := range samples {
		labels[i] = s.Funded
		probs[i] = e.PredictInput(s.Input)

		predicted := probs[i] >= decisionThreshold
		switch {
		case predicted && s.Funded:
			m.Confusion.TruePositive++
		case predicted && !s.Funded:
			m.Confusion.FalsePositive++
		case !predicted && s.Funded:
			m.Confusion.FalseNegative++
		default:
			m.Confusion.TrueNegative++
		}
	}

	c := m.Confusion
	m.AUC = ROCAUC(labels, probs)
	m.Accuracy = float64(c.TruePositive+c.TrueNegative) / float64(len(samples))
	m.Precision = ratio(c.TruePositive, c.TruePositive+c.FalsePositive)
	m.Recall = ratio(c.TruePositive, c.TruePositive+c.FalseNegative)
	if m.Precision+m.Recall > 0 {
		m.F1 = 2 * m.Precision * m.Recall / (m.Precision + m.Recall)
	}
	return m
}

// ROCAUC computes the area under the ROC curve via the rank-sum statistic,
// averaging ranks across tied scores. With a single class present the curve
// is undefined and 0.5 is returned.
func ROCAUC(labels []bool, scores []float64) float64 {
	n := len(labels)
	if n == 0 || n != len(scores) {
		return 0.5
	}

	order := make([]int, n)
	for i := range order {
		order[i] = i
	}
	sort.SliceStable(order, func(a, b int) bool { return scores[order[a]] < scores[order[b]] })

	ranks := make([]float64, n)
	for i := 0; i < n; {
		j := i
		for j+1 < n && scores[order[j+1]] == scores[order[i]] {
			j++
		}
		avg := float64(i+j)/2 + 1
		for k := i; k <= j; k++ {
			ranks[order[k]] = avg
		}
		i = j + 1
	}

	var pos, neg int
	var sum float64
	for i, l := range labels {
		if l {
			pos++
			sum += ranks[i]
		} else {
			neg++
		}
	}
	if pos == 0 || neg == 0 {
		return 0.5
	}

	return (sum - float64(pos)*float64(pos+1)/2) / (float64(pos) * float64(neg))
}

// CVResult holds per-fold ROC AUC of a k-fold cross validation.
type CVResult struct {
	Folds []float64 `json:"folds" yaml:"folds"`
	Mean  float64   `json:"mean" yaml:"mean"`
	Std   float64   `json:"std" yaml:"std"`
}

// CrossValidate trains one model per stratified fold, concurrently, and
// reports the held-out ROC AUC of each.
func CrossValidate(ctx context.Context, samples []Sample, k int, p Params, seed uint64) (*CVResult, error) {
	if k < 2 {
		return nil, fmt.Errorf("cross validation needs at least 2 folds, got %d", k)
	}
	if len(samples) < k {
		return nil, errors.New("fewer samples than folds")
	}

	folds := Folds(samples, k, seed)
	scores := make([]float64, k)

	g, ctx := errgroup.WithContext(ctx)
	g.SetLimit(runtime.GOMAXPROCS(0))

	for i := range folds {
		g.Go(func() error {
			if err := ctx.Err(); err != nil {
				return err
			}

			var train []Sample
			for j, f := range folds {
				if j != i {
					train = append(train, f...)
				}
			}

			ens, err := Fit(train, p)
			if err != nil {
				return fmt.Errorf("fold %d: %w", i, err)
			}
			scores[i] = Evaluate(ens, folds[i]).AUC
			return nil
		})
	}

	if err := g.Wait(); err != nil {
		return nil, err
	}

	res := &CVResult{Folds: scores}
	for _, s := range scores {
		res.Mean += s
	}
	res.Mean /= float64(k)
	for _, s := range scores {
		res.Std += (s - res.Mean) * (s - res.Mean)
	}
	res.Std = math.Sqrt(res.Std / float64(k))

	return res, nil
}

func ratio(a, b int) float64 {
	if b == 0 {
		return 0
	}
	return float64(a) / float64(b)
}
