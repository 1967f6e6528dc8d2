package predict

import (
	"time"

	"github.com/mchmarny/chimera/pkg/model"
	"github.com/mchmarny/chimera/pkg/score"
)

// Info describes the predictor serving requests.
type Info struct {
	Strategy   Strategy              `json:"strategy" yaml:"strategy"`
	Features   []string              `json:"features" yaml:"features"`
	Version    int                   `json:"version,omitempty" yaml:"version,omitempty"`
	Trees      int                   `json:"trees,omitempty" yaml:"trees,omitempty"`
	BaseMargin float64               `json:"base_margin,omitempty" yaml:"base_margin,omitempty"`
	Expected   float64               `json:"expected_value,omitempty" yaml:"expected_value,omitempty"`
	CreatedAt  *time.Time            `json:"created_at,omitempty" yaml:"created_at,omitempty"`
	Importance []model.FeatureWeight `json:"importance,omitempty" yaml:"importance,omitempty"`
}

// Describe reports what p is. Model details are filled only for *ModelPredictor.
func Describe(p Predictor) Info {
	info := Info{
		Strategy: p.Strategy(),
		Features: score.FeatureNames(),
	}

	mp, ok := p.(*ModelPredictor)
	if !ok || mp.Model == nil {
		return info
	}

	info.Version = mp.Model.Version
	info.Trees = len(mp.Model.Trees)
	info.BaseMargin = mp.Model.BaseMargin
	info.Importance = model.FeatureImportance(mp.Model)
	if mp.Explainer != nil {
		info.Expected = mp.Explainer.ExpectedValue()
	}
	if !mp.Model.CreatedAt.IsZero() {
		created := mp.Model.CreatedAt
		info.CreatedAt = &created
	}
	return info
}
