package webchat

import (
	"bytes"
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/go-go-golems/threadchat/pkg/chatrunner"
	"github.com/go-go-golems/threadchat/pkg/conversation"
	"github.com/go-go-golems/threadchat/pkg/events"
	"github.com/go-go-golems/threadchat/pkg/inference"
	"github.com/go-go-golems/threadchat/pkg/persistence/threadstore"
	"github.com/gorilla/websocket"
	"github.com/pkg/errors"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newTestServer(t *testing.T, client inference.Client, bus *events.Bus) *httptest.Server {
	t.Helper()
	b := chatrunner.NewBuilder().
		WithStore(threadstore.NewMemoryStore()).
		WithClient(client)
	var sub EventSubscriber
	if bus != nil {
		b = b.WithSink(bus.Sink())
		sub = bus
	}
	r, err := b.Build()
	require.NoError(t, err)

	srv := httptest.NewServer(NewHandler(r, sub))
	t.Cleanup(srv.Close)
	return srv
}

func echoClient() inference.Client {
	return inference.ClientFunc(func(ctx context.Context, history conversation.History) (conversation.Message, error) {
		last, _ := history.Last()
		return conversation.NewAssistantMessage("echo: " + last.Content), nil
	})
}

func postMessage(t *testing.T, srv *httptest.Server, threadID, text string) *http.Response {
	t.Helper()
	body, err := json.Marshal(map[string]string{"text": text})
	require.NoError(t, err)
	resp, err := http.Post(srv.URL+"/api/threads/"+threadID+"/messages", "application/json", bytes.NewReader(body))
	require.NoError(t, err)
	t.Cleanup(func() { _ = resp.Body.Close() })
	return resp
}

func TestSendAndReadBack(t *testing.T) {
	srv := newTestServer(t, echoClient(), nil)

	resp := postMessage(t, srv, "t1", "hi")
	require.Equal(t, http.StatusOK, resp.StatusCode)
	var sent sendResponse
	require.NoError(t, json.NewDecoder(resp.Body).Decode(&sent))
	assert.Equal(t, "t1", sent.ThreadID)
	assert.Equal(t, conversation.NewAssistantMessage("echo: hi"), sent.Reply)

	hresp, err := http.Get(srv.URL + "/api/threads/t1/messages")
	require.NoError(t, err)
	defer hresp.Body.Close()
	var hist historyResponse
	require.NoError(t, json.NewDecoder(hresp.Body).Decode(&hist))
	require.Len(t, hist.Messages, 2)
	assert.Equal(t, conversation.RoleUser, hist.Messages[0].Role)

	tresp, err := http.Get(srv.URL + "/api/threads")
	require.NoError(t, err)
	defer tresp.Body.Close()
	var threads threadsResponse
	require.NoError(t, json.NewDecoder(tresp.Body).Decode(&threads))
	assert.Equal(t, []string{"t1"}, threads.Threads)

	cresp, err := http.Get(srv.URL + "/api/threads/t1/checkpoints")
	require.NoError(t, err)
	defer cresp.Body.Close()
	var cps checkpointsResponse
	require.NoError(t, json.NewDecoder(cresp.Body).Decode(&cps))
	require.Len(t, cps.Checkpoints, 1)
	assert.Equal(t, 2, cps.Checkpoints[0].MessageCount)
}

func TestEmptyListsAreArrays(t *testing.T) {
	srv := newTestServer(t, echoClient(), nil)

	resp, err := http.Get(srv.URL + "/api/threads")
	require.NoError(t, err)
	defer resp.Body.Close()
	var raw map[string]json.RawMessage
	require.NoError(t, json.NewDecoder(resp.Body).Decode(&raw))
	assert.Equal(t, "[]", string(raw["threads"]))

	hresp, err := http.Get(srv.URL + "/api/threads/unseen/messages")
	require.NoError(t, err)
	defer hresp.Body.Close()
	require.Equal(t, http.StatusOK, hresp.StatusCode)
	raw = nil
	require.NoError(t, json.NewDecoder(hresp.Body).Decode(&raw))
	assert.Equal(t, "[]", string(raw["messages"]))
}

func TestSendErrorStatuses(t *testing.T) {
	cases := []struct {
		name   string
		err    error
		status int
	}{
		{"transient", inference.NewTransientError(errors.New("rate limited")), http.StatusServiceUnavailable},
		{"permanent", inference.NewPermanentError(errors.New("bad request")), http.StatusBadGateway},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			client := inference.ClientFunc(func(ctx context.Context, history conversation.History) (conversation.Message, error) {
				return conversation.Message{}, tc.err
			})
			srv := newTestServer(t, client, nil)
			resp := postMessage(t, srv, "t", "hello")
			assert.Equal(t, tc.status, resp.StatusCode)

			hresp, err := http.Get(srv.URL + "/api/threads/t/messages")
			require.NoError(t, err)
			defer hresp.Body.Close()
			var hist historyResponse
			require.NoError(t, json.NewDecoder(hresp.Body).Decode(&hist))
			assert.Empty(t, hist.Messages)
		})
	}
}

func TestSendBadRequests(t *testing.T) {
	srv := newTestServer(t, echoClient(), nil)

	resp := postMessage(t, srv, "t", "   ")
	assert.Equal(t, http.StatusBadRequest, resp.StatusCode)

	raw, err := http.Post(srv.URL+"/api/threads/t/messages", "application/json", strings.NewReader("{"))
	require.NoError(t, err)
	defer raw.Body.Close()
	assert.Equal(t, http.StatusBadRequest, raw.StatusCode)

	cresp, err := http.Get(srv.URL + "/api/threads/t/checkpoints?limit=abc")
	require.NoError(t, err)
	defer cresp.Body.Close()
	assert.Equal(t, http.StatusBadRequest, cresp.StatusCode)
}

func TestStatusForError(t *testing.T) {
	status, _ := StatusForError(&threadstore.StorageError{Op: "save", Err: errors.New("disk")})
	assert.Equal(t, http.StatusInternalServerError, status)

	status, _ = StatusForError(errors.Wrap(chatrunner.ErrEmptyThreadID, "send"))
	assert.Equal(t, http.StatusBadRequest, status)
}

func TestHealthz(t *testing.T) {
	srv := newTestServer(t, echoClient(), nil)
	resp, err := http.Get(srv.URL + "/healthz")
	require.NoError(t, err)
	defer resp.Body.Close()
	assert.Equal(t, http.StatusOK, resp.StatusCode)
}

func TestWebSocketWithoutBus(t *testing.T) {
	srv := newTestServer(t, echoClient(), nil)
	resp, err := http.Get(srv.URL + "/ws?thread_id=t")
	require.NoError(t, err)
	defer resp.Body.Close()
	assert.Equal(t, http.StatusNotFound, resp.StatusCode)
}

func TestWebSocketStreamsTurnEvents(t *testing.T) {
	bus, err := events.NewBus(events.Settings{Backend: events.BackendGoChannel})
	require.NoError(t, err)
	t.Cleanup(func() { _ = bus.Close() })
	srv := newTestServer(t, echoClient(), bus)

	wsURL := "ws" + strings.TrimPrefix(srv.URL, "http") + "/ws?thread_id=t1"
	conn, _, err := websocket.DefaultDialer.Dial(wsURL, nil)
	require.NoError(t, err)
	defer conn.Close()

	// the subscription is registered after the upgrade; give it a moment
	time.Sleep(50 * time.Millisecond)

	postMessage(t, srv, "other", "ignored")
	resp := postMessage(t, srv, "t1", "hi")
	require.Equal(t, http.StatusOK, resp.StatusCode)

	require.NoError(t, conn.SetReadDeadline(time.Now().Add(5*time.Second)))
	var got []events.TurnEvent
	for len(got) < 2 {
		_, data, err := conn.ReadMessage()
		require.NoError(t, err)
		e, err := events.NewTurnEventFromJSON(data)
		require.NoError(t, err)
		got = append(got, e)
	}
	assert.Equal(t, events.TurnStarted, got[0].Type)
	assert.Equal(t, events.TurnCompleted, got[1].Type)
	for _, e := range got {
		assert.Equal(t, "t1", e.ThreadID)
	}
	require.NotNil(t, got[1].Reply)
	assert.Equal(t, "echo: hi", got[1].Reply.Content)
}
