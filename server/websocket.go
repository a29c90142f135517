package server

import (
	"errors"
	"io"
	"net/http"

	"github.com/rs/zerolog/log"
	"nhooyr.io/websocket"
	"nhooyr.io/websocket/wsjson"

	chatx "github.com/careloop/healthcoach/agent/chat"
	contractx "github.com/careloop/healthcoach/agent/contract"
	widgetx "github.com/careloop/healthcoach/agent/widget"
)

type wsFrame struct {
	Type     string                    `json:"type"`
	Snapshot *widgetx.Snapshot         `json:"snapshot,omitempty"`
	Call     *contractx.ClientToolCall `json:"call,omitempty"`
	Reason   string                    `json:"reason,omitempty"`
	Detail   string                    `json:"detail,omitempty"`
}

// handleWS is the websocket variant of the turn stream: the client
// opens a socket per turn with thread_id and message query parameters
// and receives the same event sequence the SSE surface emits.
func (s *Server) handleWS(w http.ResponseWriter, r *http.Request) {
	conn, err := websocket.Accept(w, r, nil)
	if err != nil {
		log.Warn().Err(err).Msg("websocket accept failed")
		return
	}
	defer conn.Close(websocket.StatusInternalError, "unexpected close")

	ctx := r.Context()
	threadID := r.URL.Query().Get("thread_id")
	message := r.URL.Query().Get("message")

	turn, err := s.chats.HandleTurn(ctx, threadID, message)
	if err != nil {
		status := websocket.StatusInternalError
		if errors.Is(err, chatx.ErrInvalidThread) {
			status = websocket.StatusPolicyViolation
		}
		conn.Close(status, err.Error())
		return
	}
	defer turn.Close()

	for {
		snap, err := turn.Next(ctx)
		if errors.Is(err, io.EOF) {
			break
		}
		if err != nil {
			s.metrics.TurnsTotal.WithLabelValues("abandoned").Inc()
			return
		}
		s.metrics.SnapshotsTotal.Inc()
		if err := wsjson.Write(ctx, conn, wsFrame{Type: "snapshot", Snapshot: &snap}); err != nil {
			return
		}
	}

	for _, call := range turn.ClientCalls() {
		call := call
		if err := wsjson.Write(ctx, conn, wsFrame{Type: "client_tool_call", Call: &call}); err != nil {
			return
		}
	}

	if err := turn.Err(); err != nil {
		s.metrics.TurnsTotal.WithLabelValues("error").Inc()
		_ = wsjson.Write(ctx, conn, wsFrame{Type: "error", Detail: err.Error()})
		conn.Close(websocket.StatusNormalClosure, "")
		return
	}

	s.metrics.TurnsTotal.WithLabelValues("completed").Inc()
	_ = wsjson.Write(ctx, conn, wsFrame{Type: "done", Reason: string(turn.Reason())})
	conn.Close(websocket.StatusNormalClosure, "")
}
