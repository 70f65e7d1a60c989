package httpapi

import (
	"encoding/json"
	"net/http"

	"github.com/lexiqai/speech-gateway/internal/observability"
	"github.com/lexiqai/speech-gateway/internal/tts"
	"github.com/rs/zerolog/hlog"
)

// ErrorResponse is the body of every failed request
type ErrorResponse struct {
	Error     string `json:"error"`
	RequestID string `json:"request_id,omitempty"`
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

// writeError maps err to a status code. Service error causes are logged, never sent.
func writeError(w http.ResponseWriter, r *http.Request, err error) {
	logger := hlog.FromRequest(r)

	status := http.StatusInternalServerError
	kind := tts.KindOf(err)
	if kind == tts.KindValidation {
		status = http.StatusBadRequest
		logger.Info().Str("reason", err.Error()).Msg("Rejected invalid request")
	} else {
		logger.Error().Err(err).Msg("Request failed")
	}
	observability.RecordError(kind.String(), "httpapi")

	writeJSON(w, status, ErrorResponse{
		Error:     tts.PublicMessage(err),
		RequestID: RequestIDFromContext(r.Context()),
	})
}
