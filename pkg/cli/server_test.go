package cli

import (
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/mchmarny/chimera/pkg/predict"
	"github.com/mchmarny/chimera/pkg/score"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// countingPredictor wraps the heuristic predictor and records calls.
type countingPredictor struct {
	predict.HeuristicPredictor
	calls int
	err   error
	panic bool
}

func (c *countingPredictor) Probability(in score.Input) (float64, error) {
	c.calls++
	if c.panic {
		panic("boom")
	}
	if c.err != nil {
		return 0, c.err
	}
	return c.HeuristicPredictor.Probability(in)
}

func newTestRouter(t *testing.T, p predict.Predictor) http.Handler {
	t.Helper()
	pipeline, err := predict.NewPipeline(p)
	require.NoError(t, err)
	return makeRouter(pipeline)
}

func serve(h http.Handler, method, path, body string, header map[string]string) *httptest.ResponseRecorder {
	req := httptest.NewRequest(method, path, strings.NewReader(body))
	for k, v := range header {
		req.Header.Set(k, v)
	}
	w := httptest.NewRecorder()
	h.ServeHTTP(w, req)
	return w
}

func TestRootHandler(t *testing.T) {
	h := newTestRouter(t, predict.NewHeuristicPredictor())
	w := serve(h, http.MethodGet, "/", "", nil)

	assert.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, "application/json", w.Header().Get("Content-Type"))

	var body map[string]string
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &body))
	assert.Equal(t, "Project Chimera - Fundraise Prediction Agent is running", body["message"])
}

func TestPredictHandler_Success(t *testing.T) {
	h := newTestRouter(t, predict.NewHeuristicPredictor())
	w := serve(h, http.MethodPost, "/predict",
		`{"pitch_strength_score": 8.5, "identity_model_score": 7.2, "momentum_tracker_score": 6.8}`, nil)

	require.Equal(t, http.StatusOK, w.Code)
	assert.NotEmpty(t, w.Header().Get(requestIDHeader))

	var res predict.Result
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &res))
	assert.Equal(t, predict.LabelLikely, res.Label)
	assert.InDelta(t, 0.762, res.Score, 1e-9)
	assert.Len(t, res.Drivers, 2)
}

func TestPredictHandler_WeakScores(t *testing.T) {
	h := newTestRouter(t, predict.NewHeuristicPredictor())
	w := serve(h, http.MethodPost, "/predict",
		`{"pitch_strength_score": 3.0, "identity_model_score": 4.0, "momentum_tracker_score": 2.5}`, nil)

	require.Equal(t, http.StatusOK, w.Code)
	var res predict.Result
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &res))
	assert.Less(t, res.Score, 0.5)
	assert.Equal(t, predict.LabelLow, res.Label)
}

func TestPredictHandler_Rejected(t *testing.T) {
	tests := []struct {
		name   string
		body   string
		fields []string
	}{
		{"out of range", `{"pitch_strength_score": 15.0, "identity_model_score": -2.0, "momentum_tracker_score": 6.8}`,
			[]string{"pitch_strength_score", "identity_model_score"}},
		{"missing field", `{"pitch_strength_score": 5, "momentum_tracker_score": 6.8}`,
			[]string{"identity_model_score"}},
		{"wrong type", `{"pitch_strength_score": "high", "identity_model_score": 5, "momentum_tracker_score": 5}`,
			[]string{"body"}},
		{"not json", `pitch=5`, []string{"body"}},
		{"trailing data", `{"pitch_strength_score": 8.5, "identity_model_score": 7.2, "momentum_tracker_score": 6.8} garbage`,
			[]string{"body"}},
		{"empty", ``, []string{"body"}},
		{"too large", `{"pitch_strength_score": 5` + strings.Repeat(" ", maxBodyBytes) + `}`, []string{"body"}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			p := &countingPredictor{}
			h := newTestRouter(t, p)
			w := serve(h, http.MethodPost, "/predict", tt.body, nil)

			require.Equal(t, http.StatusUnprocessableEntity, w.Code)
			assert.Zero(t, p.calls)

			var body errorResponse
			require.NoError(t, json.Unmarshal(w.Body.Bytes(), &body))
			assert.Equal(t, "validation failed", body.Error)
			got := make([]string, 0, len(body.Details))
			for _, d := range body.Details {
				got = append(got, d.Field)
				assert.NotEmpty(t, d.Message)
			}
			assert.ElementsMatch(t, tt.fields, got)
		})
	}
}

func TestPredictHandler_PipelineError(t *testing.T) {
	p := &countingPredictor{err: errors.New("kaput")}
	h := newTestRouter(t, p)
	w := serve(h, http.MethodPost, "/predict",
		`{"pitch_strength_score": 5, "identity_model_score": 5, "momentum_tracker_score": 5}`, nil)

	require.Equal(t, http.StatusInternalServerError, w.Code)
	assert.Equal(t, 1, p.calls)

	var body errorResponse
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &body))
	assert.Equal(t, "internal prediction error", body.Error)
	assert.NotContains(t, w.Body.String(), "kaput")
}

func TestPredictHandler_Panic(t *testing.T) {
	h := newTestRouter(t, &countingPredictor{panic: true})
	w := serve(h, http.MethodPost, "/predict",
		`{"pitch_strength_score": 5, "identity_model_score": 5, "momentum_tracker_score": 5}`, nil)

	require.Equal(t, http.StatusInternalServerError, w.Code)
	var body errorResponse
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &body))
	assert.Equal(t, internalErrMessage, body.Error)
}

func TestRequestID_Propagated(t *testing.T) {
	h := newTestRouter(t, predict.NewHeuristicPredictor())
	w := serve(h, http.MethodGet, "/", "", map[string]string{requestIDHeader: "req-123"})
	assert.Equal(t, "req-123", w.Header().Get(requestIDHeader))
}

func TestModelHandler(t *testing.T) {
	h := newTestRouter(t, predict.NewHeuristicPredictor())
	w := serve(h, http.MethodGet, "/model", "", nil)

	require.Equal(t, http.StatusOK, w.Code)
	var info predict.Info
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &info))
	assert.Equal(t, predict.StrategyHeuristic, info.Strategy)
	assert.Equal(t, score.FeatureNames(), info.Features)
}

func TestRouter_MethodAndPath(t *testing.T) {
	h := newTestRouter(t, predict.NewHeuristicPredictor())

	assert.Equal(t, http.StatusMethodNotAllowed, serve(h, http.MethodGet, "/predict", "", nil).Code)
	assert.Equal(t, http.StatusNotFound, serve(h, http.MethodGet, "/nope", "", nil).Code)
}

func TestChain_Order(t *testing.T) {
	var order []string
	mw := func(name string) middleware {
		return func(next http.Handler) http.Handler {
			return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
				order = append(order, name)
				next.ServeHTTP(w, r)
			})
		}
	}
	h := chain(http.HandlerFunc(func(http.ResponseWriter, *http.Request) {
		order = append(order, "handler")
	}), mw("a"), mw("b"))

	h.ServeHTTP(httptest.NewRecorder(), httptest.NewRequest(http.MethodGet, "/", nil))
	assert.Equal(t, []string{"a", "b", "handler"}, order)
}
