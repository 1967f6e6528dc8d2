package explain

import (
	"testing"

	"github.com/mchmarny/chimera/pkg/model"
	"github.com/mchmarny/chimera/pkg/score"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const tolerance = 1e-9

func stump() model.Tree {
	return model.Tree{Nodes: []model.Node{
		{Feature: 0, Threshold: 5, Left: 1, Right: 2, Cover: 2},
		{Feature: -1, Value: -1, Cover: 1},
		{Feature: -1, Value: 1, Cover: 1},
	}}
}

// deep reuses feature 0 below the root, which exercises path unwinding.
func deep() model.Tree {
	return model.Tree{Nodes: []model.Node{
		{Feature: 0, Threshold: 5, Left: 1, Right: 2, Cover: 100},
		{Feature: 1, Threshold: 4, Left: 3, Right: 4, Cover: 40},
		{Feature: 0, Threshold: 8, Left: 5, Right: 6, Cover: 60},
		{Feature: -1, Value: -1.0, Cover: 15},
		{Feature: 2, Threshold: 3, Left: 7, Right: 8, Cover: 25},
		{Feature: 1, Threshold: 6, Left: 9, Right: 10, Cover: 35},
		{Feature: -1, Value: 2.0, Cover: 25},
		{Feature: -1, Value: 0.3, Cover: 10},
		{Feature: -1, Value: -0.2, Cover: 15},
		{Feature: -1, Value: 0.7, Cover: 20},
		{Feature: -1, Value: 1.2, Cover: 15},
	}}
}

func ensemble(base float64, trees ...model.Tree) *model.Ensemble {
	return &model.Ensemble{
		Version:    model.FormatVersion,
		Features:   score.FeatureNames(),
		BaseMargin: base,
		Trees:      trees,
	}
}

func TestAttribute_Stump(t *testing.T) {
	x, err := NewTreeExplainer(ensemble(0, stump()))
	require.NoError(t, err)
	assert.InDelta(t, 0.0, x.ExpectedValue(), tolerance)

	a := x.Attribute(score.Input{Pitch: 8, Identity: 1, Momentum: 1})
	assert.InDelta(t, 1.0, a.Of(score.Pitch), tolerance)
	assert.InDelta(t, 0.0, a.Of(score.Identity), tolerance)
	assert.InDelta(t, 0.0, a.Of(score.Momentum), tolerance)

	a = x.Attribute(score.Input{Pitch: 2})
	assert.InDelta(t, -1.0, a.Of(score.Pitch), tolerance)
}

func TestAttribute_MatchesBruteForce(t *testing.T) {
	e := ensemble(-0.3, deep(), stump())
	x, err := NewTreeExplainer(e)
	require.NoError(t, err)

	inputs := []score.Input{
		{Pitch: 8.5, Identity: 7.2, Momentum: 6.8},
		{Pitch: 3, Identity: 4, Momentum: 2.5},
		{Pitch: 6, Identity: 2, Momentum: 9},
		{Pitch: 9, Identity: 5, Momentum: 1},
		{Pitch: 0, Identity: 10, Momentum: 0},
	}

	for _, in := range inputs {
		got := x.Attribute(in)
		want := bruteForce(e, in.Vector())
		for i := range want {
			assert.InDelta(t, want[i], got.Values[i], tolerance, "input %+v feature %d", in, i)
		}
	}
}

func TestAttribute_Additive(t *testing.T) {
	e := ensemble(-0.85, deep(), stump(), deep())
	x, err := NewTreeExplainer(e)
	require.NoError(t, err)

	for _, in := range []score.Input{
		{Pitch: 8.5, Identity: 7.2, Momentum: 6.8},
		{Pitch: 3, Identity: 4, Momentum: 2.5},
		{Pitch: 5, Identity: 6, Momentum: 3},
	} {
		a := x.Attribute(in)
		assert.InDelta(t, e.Margin(in.Vector()), a.Total(), tolerance)
	}
}

func TestAttribute_TrainedModel(t *testing.T) {
	p := model.DefaultParams()
	p.Trees = 20
	e, err := model.Fit(model.GenerateSynthetic(300, 42), p)
	require.NoError(t, err)

	x, err := NewTreeExplainer(e)
	require.NoError(t, err)

	in := score.Input{Pitch: 8.5, Identity: 7.2, Momentum: 6.8}
	a := x.Attribute(in)
	assert.InDelta(t, e.Margin(in.Vector()), a.Total(), 1e-6)
	assert.Greater(t, a.Of(score.Pitch), 0.0)
}

func TestNewTreeExplainer_Nil(t *testing.T) {
	_, err := NewTreeExplainer(nil)
	assert.Error(t, err)
}

// bruteForce enumerates every coalition and applies the Shapley formula to
// the cover-weighted conditional expectation of the ensemble.
func bruteForce(e *model.Ensemble, row []float64) []float64 {
	m := len(row)
	phi := make([]float64, m)
	fact := func(n int) float64 {
		f := 1.0
		for i := 2; i <= n; i++ {
			f *= float64(i)
		}
		return f
	}

	value := func(mask int) float64 {
		v := e.BaseMargin
		for i := range e.Trees {
			v += conditional(&e.Trees[i], row, 0, mask)
		}
		return v
	}

	for i := 0; i < m; i++ {
		for mask := 0; mask < 1<<m; mask++ {
			if mask&(1<<i) != 0 {
				continue
			}
			size := 0
			for j := 0; j < m; j++ {
				if mask&(1<<j) != 0 {
					size++
				}
			}
			w := fact(size) * fact(m-size-1) / fact(m)
			phi[i] += w * (value(mask|1<<i) - value(mask))
		}
	}
	return phi
}

func conditional(t *model.Tree, row []float64, node, mask int) float64 {
	n := t.Nodes[node]
	if n.IsLeaf() {
		return n.Value
	}
	if mask&(1<<n.Feature) != 0 {
		if row[n.Feature] < n.Threshold {
			return conditional(t, row, n.Left, mask)
		}
		return conditional(t, row, n.Right, mask)
	}
	l, r := t.Nodes[n.Left], t.Nodes[n.Right]
	return (l.Cover*conditional(t, row, n.Left, mask) + r.Cover*conditional(t, row, n.Right, mask)) / n.Cover
}
