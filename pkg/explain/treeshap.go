// Package explain attributes a single prediction to its input features.
//
// Attributions are exact SHAP values for the tree ensemble computed with the
// path-dependent TreeSHAP algorithm, where the cover recorded on each node
// stands in for the background distribution. They are in margin (log-odds)
// space: Bias plus the sum of Values equals the ensemble margin for the row.
package explain

import (
	"errors"

	"github.com/mchmarny/chimera/pkg/model"
	"github.com/mchmarny/chimera/pkg/score"
)

// Attribution is the per-feature contribution to one prediction.
type Attribution struct {
	Bias   float64   `json:"bias" yaml:"bias"`
	Values []float64 `json:"values" yaml:"values"`
}

// Of returns the contribution of f.
func (a Attribution) Of(f score.Feature) float64 {
	return a.Values[score.Index(f)]
}

// Total returns Bias plus all contributions.
func (a Attribution) Total() float64 {
	t := a.Bias
	for _, v := range a.Values {
		t += v
	}
	return t
}

// TreeExplainer computes attributions for a loaded ensemble. It holds no
// per-call state and can be shared across goroutines.
type TreeExplainer struct {
	model    *model.Ensemble
	expected float64
}

// NewTreeExplainer wraps e, precomputing the expected model output.
func NewTreeExplainer(e *model.Ensemble) (*TreeExplainer, error) {
	if e == nil {
		return nil, errors.New("model required")
	}

	expected := e.BaseMargin
	for i := range e.Trees {
		expected += treeExpectation(&e.Trees[i], 0)
	}

	return &TreeExplainer{model: e, expected: expected}, nil
}

// ExpectedValue is the cover-weighted mean margin, the Bias of every attribution.
func (x *TreeExplainer) ExpectedValue() float64 {
	return x.expected
}

// Attribute computes SHAP values for in.
func (x *TreeExplainer) Attribute(in score.Input) Attribution {
	row := in.Vector()
	phi := make([]float64, len(row))
	for i := range x.model.Trees {
		t := &x.model.Trees[i]
		recurse(t, row, phi, 0, nil, 0, 1, 1, -1)
	}
	return Attribution{Bias: x.expected, Values: phi}
}

func treeExpectation(t *model.Tree, i int) float64 {
	n := t.Nodes[i]
	if n.IsLeaf() {
		return n.Value
	}
	l, r := t.Nodes[n.Left], t.Nodes[n.Right]
	return (l.Cover*treeExpectation(t, n.Left) + r.Cover*treeExpectation(t, n.Right)) / n.Cover
}

// pathElement tracks one feature on the current root-to-node path: the
// fraction of zero paths (feature absent) and one paths (feature present)
// flowing through it, and the permutation weight of the subset size.
type pathElement struct {
	feature int
	zero    float64
	one     float64
	weight  float64
}

func recurse(t *model.Tree, row, phi []float64, node int, parent []pathElement,
	depth int, zero, one float64, feature int) {
	path := make([]pathElement, depth+1)
	copy(path, parent[:depth])
	extend(path, depth, zero, one, feature)

	n := t.Nodes[node]
	if n.IsLeaf() {
		for i := 1; i <= depth; i++ {
			w := unwoundSum(path, depth, i)
			el := path[i]
			phi[el.feature] += w * (el.one - el.zero) * n.Value
		}
		return
	}

	hot, cold := n.Right, n.Left
	if row[n.Feature] < n.Threshold {
		hot, cold = n.Left, n.Right
	}

	incomingZero, incomingOne := 1.0, 1.0
	for k := 1; k <= depth; k++ {
		if path[k].feature == n.Feature {
			incomingZero, incomingOne = path[k].zero, path[k].one
			unwind(path, depth, k)
			depth--
			break
		}
	}

	hotZero := incomingZero * t.Nodes[hot].Cover / n.Cover
	coldZero := incomingZero * t.Nodes[cold].Cover / n.Cover

	recurse(t, row, phi, hot, path, depth+1, hotZero, incomingOne, n.Feature)
	recurse(t, row, phi, cold, path, depth+1, coldZero, 0, n.Feature)
}

func extend(path []pathElement, depth int, zero, one float64, feature int) {
	w := 0.0
	if depth == 0 {
		w = 1
	}
	path[depth] = pathElement{feature: feature, zero: zero, one: one, weight: w}

	d := float64(depth + 1)
	for i := depth - 1; i >= 0; i-- {
		path[i+1].weight += one * path[i].weight * float64(i+1) / d
		path[i].weight = zero * path[i].weight * float64(depth-i) / d
	}
}

func unwind(path []pathElement, depth, idx int) {
	one, zero := path[idx].one, path[idx].zero
	next := path[depth].weight
	d := float64(depth + 1)

	for i := depth - 1; i >= 0; i-- {
		if one != 0 {
			tmp := path[i].weight
			path[i].weight = next * d / (float64(i+1) * one)
			next = tmp - path[i].weight*zero*float64(depth-i)/d
		} else {
			path[i].weight = path[i].weight * d / (zero * float64(depth-i))
		}
	}

	for i := idx; i < depth; i++ {
		path[i].feature = path[i+1].feature
		path[i].zero = path[i+1].zero
		path[i].one = path[i+1].one
	}
}

// unwoundSum is the total permutation weight of the path with element idx
// removed, without modifying the path.
func unwoundSum(path []pathElement, depth, idx int) float64 {
	one, zero := path[idx].one, path[idx].zero
	next := path[depth].weight
	d := float64(depth + 1)

	total := 0.0
	for i := depth - 1; i >= 0; i-- {
		if one != 0 {
			tmp := next * d / (float64(i+1) * one)
			total += tmp
			next = path[i].weight - tmp*zero*float64(depth-i)/d
		} else if zero != 0 {
			total += path[i].weight / zero * d / float64(depth-i)
		}
	}
	return total
}
