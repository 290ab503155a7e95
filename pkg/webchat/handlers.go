package webchat

import (
	"context"
	"encoding/json"
	"net/http"
	"strconv"
	"strings"

	"github.com/go-go-golems/threadchat/pkg/conversation"
	"github.com/go-go-golems/threadchat/pkg/events"
	"github.com/go-go-golems/threadchat/pkg/persistence/threadstore"
	"github.com/gorilla/websocket"
	"github.com/rs/zerolog"
)

// ChatService is the conversation surface the handlers need.
type ChatService interface {
	RunTurn(ctx context.Context, threadID string, userText string) (conversation.Message, error)
	ListThreads(ctx context.Context) ([]string, error)
	History(ctx context.Context, threadID string) (conversation.History, error)
	Checkpoints(ctx context.Context, threadID string, limit int) ([]threadstore.Checkpoint, error)
}

// EventSubscriber streams turn events for one thread until ctx ends.
type EventSubscriber interface {
	Subscribe(ctx context.Context, threadID string) (<-chan events.TurnEvent, error)
}

type sendRequest struct {
	Text string `json:"text"`
}

type sendResponse struct {
	ThreadID string               `json:"thread_id"`
	Reply    conversation.Message `json:"reply"`
}

type threadsResponse struct {
	Threads []string `json:"threads"`
}

type historyResponse struct {
	ThreadID string               `json:"thread_id"`
	Messages conversation.History `json:"messages"`
}

type checkpointsResponse struct {
	ThreadID    string                   `json:"thread_id"`
	Checkpoints []threadstore.Checkpoint `json:"checkpoints"`
}

type errorResponse struct {
	Error string `json:"error"`
}

func writeJSON(w http.ResponseWriter, logger zerolog.Logger, status int, v interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.Header().Set("X-Content-Type-Options", "nosniff")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(v); err != nil {
		logger.Warn().Err(err).Msg("response write failed")
	}
}

func writeError(w http.ResponseWriter, logger zerolog.Logger, err error) {
	status, msg := StatusForError(err)
	if status >= http.StatusInternalServerError {
		logger.Error().Err(err).Int("status", status).Msg("request failed")
	}
	writeJSON(w, logger, status, errorResponse{Error: msg})
}

func NewSendHandler(svc ChatService, logger zerolog.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, req *http.Request) {
		threadID := strings.TrimSpace(req.PathValue("id"))
		var body sendRequest
		if err := json.NewDecoder(http.MaxBytesReader(w, req.Body, 1<<20)).Decode(&body); err != nil {
			writeJSON(w, logger, http.StatusBadRequest, errorResponse{Error: "invalid JSON body"})
			return
		}
		reply, err := svc.RunTurn(req.Context(), threadID, body.Text)
		if err != nil {
			writeError(w, logger.With().Str("thread_id", threadID).Logger(), err)
			return
		}
		writeJSON(w, logger, http.StatusOK, sendResponse{ThreadID: threadID, Reply: reply})
	}
}

func NewThreadsHandler(svc ChatService, logger zerolog.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, req *http.Request) {
		ids, err := svc.ListThreads(req.Context())
		if err != nil {
			writeError(w, logger, err)
			return
		}
		if ids == nil {
			ids = []string{}
		}
		writeJSON(w, logger, http.StatusOK, threadsResponse{Threads: ids})
	}
}

func NewHistoryHandler(svc ChatService, logger zerolog.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, req *http.Request) {
		threadID := strings.TrimSpace(req.PathValue("id"))
		h, err := svc.History(req.Context(), threadID)
		if err != nil {
			writeError(w, logger.With().Str("thread_id", threadID).Logger(), err)
			return
		}
		writeJSON(w, logger, http.StatusOK, historyResponse{ThreadID: threadID, Messages: h.Clone()})
	}
}

func NewCheckpointsHandler(svc ChatService, logger zerolog.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, req *http.Request) {
		threadID := strings.TrimSpace(req.PathValue("id"))
		limit := 0
		if s := strings.TrimSpace(req.URL.Query().Get("limit")); s != "" {
			v, err := strconv.Atoi(s)
			if err != nil || v < 0 {
				writeJSON(w, logger, http.StatusBadRequest, errorResponse{Error: "invalid limit"})
				return
			}
			limit = v
		}
		cps, err := svc.Checkpoints(req.Context(), threadID, limit)
		if err != nil {
			writeError(w, logger.With().Str("thread_id", threadID).Logger(), err)
			return
		}
		if cps == nil {
			cps = []threadstore.Checkpoint{}
		}
		writeJSON(w, logger, http.StatusOK, checkpointsResponse{ThreadID: threadID, Checkpoints: cps})
	}
}

func NewHealthHandler() http.HandlerFunc {
	return func(w http.ResponseWriter, _ *http.Request) {
		w.Header().Set("Content-Type", "text/plain; charset=utf-8")
		_, _ = w.Write([]byte("ok\n"))
	}
}

// NewWSHandler upgrades the request and forwards turn events of the thread
// named by ?thread_id= as JSON text frames.
func NewWSHandler(sub EventSubscriber, upgrader websocket.Upgrader, logger zerolog.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, req *http.Request) {
		if sub == nil {
			http.Error(w, "event stream not enabled", http.StatusNotFound)
			return
		}
		threadID := strings.TrimSpace(req.URL.Query().Get("thread_id"))
		if threadID == "" {
			http.Error(w, "missing thread_id", http.StatusBadRequest)
			return
		}

		conn, err := upgrader.Upgrade(w, req, nil)
		if err != nil {
			return
		}
		l := logger.With().Str("thread_id", threadID).Logger()

		ctx, cancel := context.WithCancel(req.Context())
		defer cancel()
		ch, err := sub.Subscribe(ctx, threadID)
		if err != nil {
			l.Error().Err(err).Msg("subscribe failed")
			_ = conn.WriteMessage(websocket.TextMessage, []byte(`{"error":"failed to subscribe"}`))
			_ = conn.Close()
			return
		}
		newForwarder(conn, l).run(ctx, cancel, ch)
	}
}
