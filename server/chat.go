package server

import (
	"encoding/json"
	"errors"
	"io"
	"net/http"

	"github.com/rs/zerolog/log"

	chatx "github.com/careloop/healthcoach/agent/chat"
	contractx "github.com/careloop/healthcoach/agent/contract"
)

type chatRequest struct {
	ThreadID string `json:"thread_id"`
	Message  string `json:"message"`
}

// handleChat streams one turn as server-sent events: snapshot events
// while the run produces output, then client_tool_call events for
// queued client instructions, then a single done (or error) event.
func (s *Server) handleChat(w http.ResponseWriter, r *http.Request) {
	var req chatRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid request body")
		return
	}

	turn, err := s.chats.HandleTurn(r.Context(), req.ThreadID, req.Message)
	if err != nil {
		switch {
		case errors.Is(err, chatx.ErrInvalidThread):
			writeError(w, http.StatusBadRequest, "thread_id is required")
		case errors.Is(err, contractx.ErrRunStart):
			s.metrics.TurnsTotal.WithLabelValues("start_failed").Inc()
			writeError(w, http.StatusBadGateway, "failed to start run")
		default:
			writeError(w, http.StatusInternalServerError, "internal error")
		}
		return
	}
	defer turn.Close()

	flusher, ok := w.(http.Flusher)
	if !ok {
		writeError(w, http.StatusInternalServerError, "streaming unsupported")
		return
	}

	w.Header().Set("Content-Type", "text/event-stream")
	w.Header().Set("Cache-Control", "no-cache")
	w.Header().Set("Connection", "keep-alive")
	w.WriteHeader(http.StatusOK)

	writeEvent := func(event string, v any) {
		data, err := json.Marshal(v)
		if err != nil {
			log.Error().Err(err).Str("event", event).Msg("failed to marshal sse event")
			return
		}
		_, _ = w.Write([]byte("event: " + event + "\ndata: " + string(data) + "\n\n"))
		flusher.Flush()
	}

	for {
		snap, err := turn.Next(r.Context())
		if errors.Is(err, io.EOF) {
			break
		}
		if err != nil {
			// Client went away or the request context ended; the run is
			// abandoned by the deferred Close.
			s.metrics.TurnsTotal.WithLabelValues("abandoned").Inc()
			return
		}
		s.metrics.SnapshotsTotal.Inc()
		writeEvent("snapshot", snap)
	}

	for _, call := range turn.ClientCalls() {
		writeEvent("client_tool_call", call)
	}

	if err := turn.Err(); err != nil {
		s.metrics.TurnsTotal.WithLabelValues("error").Inc()
		writeEvent("error", map[string]string{"detail": err.Error()})
		return
	}

	s.metrics.TurnsTotal.WithLabelValues("completed").Inc()
	writeEvent("done", map[string]string{"reason": string(turn.Reason())})
}
