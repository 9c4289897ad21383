package ingress

import (
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"

	kerrors "github.com/Nell373/linebot-ai/internal/errors"
)

// EventsPath is where NewHTTPHandler is mounted by the daemon.
const EventsPath = "/api/v1/events"

type eventRequest struct {
	Source     string            `json:"source"`
	ExternalID string            `json:"external_id"`
	Kind       string            `json:"kind"`
	UserID     string            `json:"user_id"`
	ReplyTo    string            `json:"reply_to"`
	Content    string            `json:"content"`
	Metadata   map[string]string `json:"metadata"`
}

type eventResponse struct {
	Status string `json:"status"`
	ID     string `json:"id"`
}

// NewHTTPHandler accepts events from clients without a platform adapter.
func NewHTTPHandler(in *Ingress) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.Method != http.MethodPost {
			http.Error(w, "Method not allowed", http.StatusMethodNotAllowed)
			return
		}

		var req eventRequest
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
			http.Error(w, "Invalid request body", http.StatusBadRequest)
			return
		}
		if req.UserID == "" || req.Content == "" {
			http.Error(w, "Missing required fields: user_id, content", http.StatusBadRequest)
			return
		}

		source := req.Source
		if source == "" {
			source = "http"
		}
		kind := Kind(req.Kind)
		if kind == "" {
			kind = KindText
		}

		evt := NewEvent(source, kind, req.UserID, req.ReplyTo, req.Content, req.Metadata)
		evt.ExternalID = req.ExternalID

		if err := in.Submit(r.Context(), &evt); err != nil {
			switch {
			case errors.Is(err, kerrors.ErrDuplicateEvent):
				writeJSON(w, http.StatusOK, eventResponse{Status: "duplicate", ID: evt.ID})
			case errors.Is(err, kerrors.ErrTransient):
				http.Error(w, "Queue full", http.StatusTooManyRequests)
			case errors.Is(err, kerrors.ErrInvalidInput):
				http.Error(w, err.Error(), http.StatusBadRequest)
			default:
				slog.Error("Failed to submit event", "error", err)
				http.Error(w, "Internal server error", http.StatusInternalServerError)
			}
			return
		}

		writeJSON(w, http.StatusAccepted, eventResponse{Status: "accepted", ID: evt.ID})
	})
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}
