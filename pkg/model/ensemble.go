package model

import (
	"errors"
	"fmt"
	"math"
	"slices"
	"time"

	"github.com/mchmarny/chimera/pkg/score"
)

// FormatVersion is bumped whenever the artifact layout changes.
const FormatVersion = 1

// Node is one entry in a tree's flat node table.
// Split nodes send rows with row[Feature] < Threshold to Left.
type Node struct {
	Feature   int     `json:"feature"`
	Threshold float64 `json:"threshold,omitempty"`
	Left      int     `json:"left,omitempty"`
	Right     int     `json:"right,omitempty"`
	Value     float64 `json:"value,omitempty"`
	Cover     float64 `json:"cover"`
	Gain      float64 `json:"gain,omitempty"`
}

// IsLeaf reports whether the node carries a value instead of a split.
func (n Node) IsLeaf() bool {
	return n.Feature < 0
}

// Tree is a single regression tree, root at index 0.
type Tree struct {
	Nodes []Node `json:"nodes"`
}

// LeafIndex walks the tree for row and returns the index of the leaf reached.
func (t *Tree) LeafIndex(row []float64) int {
	i := 0
	for !t.Nodes[i].IsLeaf() {
		n := t.Nodes[i]
		if row[n.Feature] < n.Threshold {
			i = n.Left
		} else {
			i = n.Right
		}
	}
	return i
}

// Predict returns the leaf value for row.
func (t *Tree) Predict(row []float64) float64 {
	return t.Nodes[t.LeafIndex(row)].Value
}

// Ensemble is a gradient-boosted binary classifier over score.Features.
// It is never mutated after Load or Fit, so it is safe for concurrent use.
type Ensemble struct {
	Version    int       `json:"version"`
	Features   []string  `json:"features"`
	BaseMargin float64   `json:"base_margin"`
	Trees      []Tree    `json:"trees"`
	Params     Params    `json:"params"`
	CreatedAt  time.Time `json:"created_at"`
}

// Margin returns the raw log-odds for row.
func (e *Ensemble) Margin(row []float64) float64 {
	m := e.BaseMargin
	for i := range e.Trees {
		m += e.Trees[i].Predict(row)
	}
	return m
}

// PredictProba returns the probability of the positive (funded) class.
func (e *Ensemble) PredictProba(row []float64) float64 {
	return sigmoid(e.Margin(row))
}

// PredictInput is PredictProba over a score.Input.
func (e *Ensemble) PredictInput(in score.Input) float64 {
	return e.PredictProba(in.Vector())
}

// Validate checks the artifact against the feature contract and that
// every tree is a well formed, acyclic node table.
func (e *Ensemble) Validate() error {
	if e == nil {
		return errors.New("model is nil")
	}

	if e.Version != FormatVersion {
		return fmt.Errorf("unsupported model version %d (want %d)", e.Version, FormatVersion)
	}

	if want := score.FeatureNames(); !slices.Equal(e.Features, want) {
		return fmt.Errorf("feature mismatch: model has %v, service expects %v", e.Features, want)
	}

	if len(e.Trees) == 0 {
		return errors.New("model has no trees")
	}

	if math.IsNaN(e.BaseMargin) || math.IsInf(e.BaseMargin, 0) {
		return errors.New("invalid base margin")
	}

	for ti := range e.Trees {
		if err := e.Trees[ti].validate(len(e.Features)); err != nil {
			return fmt.Errorf("tree %d: %w", ti, err)
		}
	}

	return nil
}

func (t *Tree) validate(features int) error {
	if len(t.Nodes) == 0 {
		return errors.New("empty tree")
	}

	for i, n := range t.Nodes {
		if n.IsLeaf() {
			if math.IsNaN(n.Value) || math.IsInf(n.Value, 0) {
				return fmt.Errorf("node %d: invalid leaf value", i)
			}
			continue
		}
		if n.Feature >= features {
			return fmt.Errorf("node %d: feature index %d out of range", i, n.Feature)
		}
		if math.IsNaN(n.Threshold) {
			return fmt.Errorf("node %d: invalid threshold", i)
		}
		// children always follow their parent, which rules out cycles
		if n.Left <= i || n.Left >= len(t.Nodes) || n.Right <= i || n.Right >= len(t.Nodes) {
			return fmt.Errorf("node %d: child index out of range", i)
		}
		if n.Cover <= 0 {
			return fmt.Errorf("node %d: non-positive cover", i)
		}
	}

	return nil
}

func sigmoid(x float64) float64 {
	return 1 / (1 + math.Exp(-x))
}
