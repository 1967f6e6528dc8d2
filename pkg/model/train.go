package model

import (
	"errors"
	"fmt"
	"log/slog"
	"math"
	"sort"
	"time"

	"github.com/mchmarny/chimera/pkg/score"
)

// Params controls gradient boosting.
type Params struct {
	Trees          int     `json:"trees" yaml:"trees"`
	MaxDepth       int     `json:"max_depth" yaml:"max_depth"`
	LearningRate   float64 `json:"learning_rate" yaml:"learning_rate"`
	Lambda         float64 `json:"lambda" yaml:"lambda"`
	MinChildWeight float64 `json:"min_child_weight" yaml:"min_child_weight"`
	Gamma          float64 `json:"gamma" yaml:"gamma"`
}

// DefaultParams returns 100 depth-4 trees at learning rate 0.1.
func DefaultParams() Params {
	return Params{
		Trees:          100,
		MaxDepth:       4,
		LearningRate:   0.1,
		Lambda:         1,
		MinChildWeight: 1,
		Gamma:          0,
	}
}

func (p Params) validate() error {
	switch {
	case p.Trees < 1:
		return fmt.Errorf("trees must be positive, got %d", p.Trees)
	case p.MaxDepth < 1:
		return fmt.Errorf("max depth must be positive, got %d", p.MaxDepth)
	case p.LearningRate <= 0 || p.LearningRate > 1:
		return fmt.Errorf("learning rate must be in (0,1], got %v", p.LearningRate)
	case p.Lambda < 0 || p.MinChildWeight < 0 || p.Gamma < 0:
		return errors.New("lambda, min child weight and gamma must not be negative")
	}
	return nil
}

// Fit trains a boosted ensemble on logistic loss using first and second
// order gradients and exact greedy split search.
func Fit(samples []Sample, p Params) (*Ensemble, error) {
	if err := p.validate(); err != nil {
		return nil, fmt.Errorf("invalid params: %w", err)
	}

	if len(samples) == 0 {
		return nil, errors.New("no training samples")
	}

	rate := PositiveRate(samples)
	if rate == 0 || rate == 1 {
		return nil, errors.New("training samples must contain both classes")
	}

	rows := make([][]float64, len(samples))
	labels := make([]float64, len(samples))
	for i, s := range samples {
		rows[i] = s.Input.Vector()
		labels[i] = s.label()
	}

	ens := &Ensemble{
		Version:    FormatVersion,
		Features:   score.FeatureNames(),
		BaseMargin: math.Log(rate / (1 - rate)),
		Trees:      make([]Tree, 0, p.Trees),
		Params:     p,
		CreatedAt:  time.Now().UTC(),
	}

	margins := make([]float64, len(rows))
	for i := range margins {
		margins[i] = ens.BaseMargin
	}

	b := &treeBuilder{
		rows:   rows,
		grad:   make([]float64, len(rows)),
		hess:   make([]float64, len(rows)),
		params: p,
	}

	all := make([]int, len(rows))
	for i := range all {
		all[i] = i
	}

	for t := 0; t < p.Trees; t++ {
		for i, m := range margins {
			pr := sigmoid(m)
			b.grad[i] = pr - labels[i]
			b.hess[i] = pr * (1 - pr)
		}

		tree := b.build(all)
		for i, row := range rows {
			margins[i] += tree.Predict(row)
		}
		ens.Trees = append(ens.Trees, tree)
	}

	slog.Debug("model fitted", "samples", len(samples), "trees", len(ens.Trees), "positive_rate", rate)
	return ens, nil
}

type treeBuilder struct {
	rows   [][]float64
	grad   []float64
	hess   []float64
	params Params
	nodes  []Node
}

type split struct {
	feature   int
	threshold float64
	gain      float64
}

func (b *treeBuilder) build(idx []int) Tree {
	b.nodes = make([]Node, 0, 1<<(b.params.MaxDepth+1))
	b.grow(idx, 0)
	return Tree{Nodes: b.nodes}
}

func (b *treeBuilder) grow(idx []int, depth int) int {
	var g, h float64
	for _, i := range idx {
		g += b.grad[i]
		h += b.hess[i]
	}

	pos := len(b.nodes)
	b.nodes = append(b.nodes, Node{Feature: -1, Cover: h})

	if depth < b.params.MaxDepth && len(idx) > 1 {
		if s, ok := b.bestSplit(idx, g, h); ok {
			left, right := b.partition(idx, s)
			l := b.grow(left, depth+1)
			r := b.grow(right, depth+1)
			b.nodes[pos] = Node{
				Feature:   s.feature,
				Threshold: s.threshold,
				Left:      l,
				Right:     r,
				Cover:     h,
				Gain:      s.gain,
			}
			return pos
		}
	}

	b.nodes[pos].Value = -g / (h + b.params.Lambda) * b.params.LearningRate
	return pos
}

func (b *treeBuilder) bestSplit(idx []int, g, h float64) (split, bool) {
	lambda := b.params.Lambda
	parent := g * g / (h + lambda)

	best := split{}
	found := false
	sorted := make([]int, len(idx))

	for f := range score.Features {
		copy(sorted, idx)
		sort.SliceStable(sorted, func(a, c int) bool {
			return b.rows[sorted[a]][f] < b.rows[sorted[c]][f]
		})

		var gl, hl float64
		for k := 0; k < len(sorted)-1; k++ {
			i := sorted[k]
			gl += b.grad[i]
			hl += b.hess[i]

			cur, next := b.rows[i][f], b.rows[sorted[k+1]][f]
			if cur == next {
				continue
			}

			gr, hr := g-gl, h-hl
			if hl < b.params.MinChildWeight || hr < b.params.MinChildWeight {
				continue
			}

			gain := 0.5*(gl*gl/(hl+lambda)+gr*gr/(hr+lambda)-parent) - b.params.Gamma
			if gain <= best.gain {
				continue
			}

			thr := cur + (next-cur)/2
			if thr <= cur {
				thr = next
			}
			best = split{feature: f, threshold: thr, gain: gain}
			found = true
		}
	}

	return best, found
}

func (b *treeBuilder) partition(idx []int, s split) (left, right []int) {
	for _, i := range idx {
		if b.rows[i][s.feature] < s.threshold {
			left = append(left, i)
		} else {
			right = append(right, i)
		}
	}
	return left, right
}

// FeatureWeight is the share of total split gain attributed to a feature.
type FeatureWeight struct {
	Feature    string  `json:"feature" yaml:"feature"`
	Importance float64 `json:"importance" yaml:"importance"`
}

// FeatureImportance sums split gain per feature and normalizes it to 1.
func FeatureImportance(e *Ensemble) []FeatureWeight {
	gains := make([]float64, len(e.Features))
	var total float64
	for _, t := range e.Trees {
		for _, n := range t.Nodes {
			if n.IsLeaf() {
				continue
			}
			gains[n.Feature] += n.Gain
			total += n.Gain
		}
	}

	list := make([]FeatureWeight, len(e.Features))
	for i, name := range e.Features {
		list[i] = FeatureWeight{Feature: name}
		if total > 0 {
			list[i].Importance = gains[i] / total
		}
	}
	return list
}
