package score

import (
	"errors"
	"math"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestFeatureOrder(t *testing.T) {
	assert.Equal(t, []string{
		"pitch_strength_score",
		"identity_model_score",
		"momentum_tracker_score",
	}, FeatureNames())
	assert.Equal(t, 0, Index(Pitch))
	assert.Equal(t, 2, Index(Momentum))
	assert.Equal(t, -1, Index(Feature("other")))
}

func TestInput_Vector(t *testing.T) {
	in := Input{Pitch: 8.5, Identity: 7.2, Momentum: 6.8}
	row := in.Vector()
	assert.Equal(t, []float64{8.5, 7.2, 6.8}, row)
}

func TestFromMap(t *testing.T) {
	in, err := FromMap(map[string]float64{
		"pitch_strength_score":   1,
		"identity_model_score":   2,
		"momentum_tracker_score": 3,
		"extra":                  4,
	})
	require.NoError(t, err)
	assert.Equal(t, Input{Pitch: 1, Identity: 2, Momentum: 3}, in)
}

func TestFromMap_Missing(t *testing.T) {
	_, err := FromMap(map[string]float64{
		"pitch_strength_score": 1,
		"identity_model_score": 2,
	})
	require.Error(t, err)

	var mfe *MissingFeatureError
	require.True(t, errors.As(err, &mfe))
	assert.Equal(t, Momentum, mfe.Feature)
	assert.Contains(t, err.Error(), "momentum_tracker_score")
}

func TestInput_OutOfRange(t *testing.T) {
	assert.Empty(t, Input{Pitch: 0, Identity: 10, Momentum: 5}.OutOfRange())
	assert.Equal(t, []Feature{Pitch, Identity}, Input{Pitch: 15, Identity: -2, Momentum: 6.8}.OutOfRange())
	assert.Equal(t, []Feature{Momentum}, Input{Momentum: math.NaN()}.OutOfRange())
}

func TestParseRequest(t *testing.T) {
	tests := []struct {
		name   string
		body   string
		want   Input
		fields []string
	}{
		{
			name: "valid",
			body: `{"pitch_strength_score": 8.5, "identity_model_score": 7.2, "momentum_tracker_score": 6.8}`,
			want: Input{Pitch: 8.5, Identity: 7.2, Momentum: 6.8},
		},
		{
			name: "bounds are inclusive",
			body: `{"pitch_strength_score": 0, "identity_model_score": 10, "momentum_tracker_score": 0}`,
			want: Input{Pitch: 0, Identity: 10, Momentum: 0},
		},
		{
			name:   "out of range",
			body:   `{"pitch_strength_score": 15.0, "identity_model_score": -2.0, "momentum_tracker_score": 6.8}`,
			fields: []string{"pitch_strength_score", "identity_model_score"},
		},
		{
			name:   "missing field",
			body:   `{"pitch_strength_score": 5, "identity_model_score": 5}`,
			fields: []string{"momentum_tracker_score"},
		},
		{
			name:   "wrong type",
			body:   `{"pitch_strength_score": "high", "identity_model_score": 5, "momentum_tracker_score": 5}`,
			fields: []string{"body"},
		},
		{
			name:   "not json",
			body:   `pitch=5`,
			fields: []string{"body"},
		},
		{
			name:   "trailing data",
			body:   `{"pitch_strength_score": 8.5, "identity_model_score": 7.2, "momentum_tracker_score": 6.8} garbage`,
			fields: []string{"body"},
		},
		{
			name:   "second object",
			body:   `{"pitch_strength_score": 8.5, "identity_model_score": 7.2, "momentum_tracker_score": 6.8} {}`,
			fields: []string{"body"},
		},
		{
			name: "trailing whitespace",
			body: "{\"pitch_strength_score\": 1, \"identity_model_score\": 2, \"momentum_tracker_score\": 3}\n\n",
			want: Input{Pitch: 1, Identity: 2, Momentum: 3},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := ParseRequest(strings.NewReader(tt.body))
			if len(tt.fields) == 0 {
				require.NoError(t, err)
				assert.Equal(t, tt.want, got)
				return
			}

			var ve *ValidationError
			require.True(t, errors.As(err, &ve), "expected validation error, got %v", err)
			names := make([]string, 0, len(ve.Fields))
			for _, f := range ve.Fields {
				names = append(names, f.Field)
				assert.NotEmpty(t, f.Message)
			}
			assert.ElementsMatch(t, tt.fields, names)
		})
	}
}

func TestRequest_ValidateMessages(t *testing.T) {
	err := NewRequest(Input{Pitch: 11, Identity: 5, Momentum: -1}).Validate()
	var ve *ValidationError
	require.True(t, errors.As(err, &ve))
	require.Len(t, ve.Fields, 2)
	assert.Equal(t, "lte", ve.Fields[0].Rule)
	assert.Equal(t, "must be less than or equal to 10", ve.Fields[0].Message)
	assert.Equal(t, "gte", ve.Fields[1].Rule)
	assert.Contains(t, ve.Error(), "validation failed")
}

func TestRequest_ValidateNil(t *testing.T) {
	var r *Request
	assert.Error(t, r.Validate())
}
