package cli

import (
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"

	"github.com/mchmarny/chimera/pkg/predict"
	"github.com/mchmarny/chimera/pkg/score"
)

const (
	rootMessage = "Project Chimera - Fundraise Prediction Agent is running"

	validationFailed   = "validation failed"
	predictionFailed   = "internal prediction error"
	internalErrMessage = "internal server error"
)

type errorResponse struct {
	Error   string             `json:"error"`
	Details []score.FieldError `json:"details,omitempty"`
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(v); err != nil {
		slog.Error("failed to encode JSON response", "error", err)
	}
}

func writeError(w http.ResponseWriter, status int, msg string) {
	writeJSON(w, status, errorResponse{Error: msg})
}

func rootHandler(w http.ResponseWriter, _ *http.Request) {
	writeJSON(w, http.StatusOK, map[string]string{"message": rootMessage})
}

// predictHandler validates the body before the pipeline runs; rejected
// requests never reach it.
func predictHandler(p *predict.Pipeline) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		r.Body = http.MaxBytesReader(w, r.Body, maxBodyBytes)

		in, err := score.ParseRequest(r.Body)
		if err != nil {
			var ve *score.ValidationError
			if errors.As(err, &ve) {
				writeJSON(w, http.StatusUnprocessableEntity, errorResponse{Error: validationFailed, Details: ve.Fields})
				return
			}
			writeError(w, http.StatusBadRequest, err.Error())
			return
		}

		res, err := p.Process(r.Context(), in)
		if err != nil {
			slog.Error("prediction failed",
				"request_id", requestIDFrom(r.Context()),
				"error", err)
			writeError(w, http.StatusInternalServerError, predictionFailed)
			return
		}

		writeJSON(w, http.StatusOK, res)
	}
}

func modelHandler(p *predict.Pipeline) http.HandlerFunc {
	return func(w http.ResponseWriter, _ *http.Request) {
		writeJSON(w, http.StatusOK, predict.Describe(p.Predictor()))
	}
}
