package handlers

import (
	"context"
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"

	"github.com/voicebridge/voicebridge/pkg/core"
	"github.com/voicebridge/voicebridge/pkg/gateway/metrics"
)

// Dialer places an outbound call whose flow is driven by callbackURL.
type Dialer interface {
	Dial(ctx context.Context, to, callbackURL string) (string, error)
}

// Dial serves GET /call/dial, the operator endpoint for placing an
// outbound conversation call.
type Dial struct {
	Dialer   Dialer
	StartURL string // conversation entry webhook, absolute
	Metrics  *metrics.Metrics
	Logger   *slog.Logger
}

type dialResponse struct {
	CallSID string `json:"call_sid"`
}

type errorResponse struct {
	Error string `json:"error"`
}

func (h *Dial) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	to := r.URL.Query().Get("to")
	if to == "" {
		writeJSON(w, http.StatusBadRequest, errorResponse{Error: "query parameter 'to' is required"})
		return
	}

	sid, err := h.Dialer.Dial(r.Context(), to, h.StartURL)
	if err != nil {
		h.Metrics.CountDial("error")
		h.Logger.Error("outbound dial", "to", to, "err", err)
		writeJSON(w, statusForError(err), errorResponse{Error: "dial failed"})
		return
	}

	h.Metrics.CountDial("ok")
	h.Logger.Info("outbound dial", "to", to, "call_sid", sid)
	writeJSON(w, http.StatusCreated, dialResponse{CallSID: sid})
}

func statusForError(err error) int {
	var typed *core.Error
	if errors.As(err, &typed) && typed.Type == core.ErrInvalidRequest {
		return http.StatusBadRequest
	}
	return http.StatusBadGateway
}

func writeJSON(w http.ResponseWriter, status int, body any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(body)
}
