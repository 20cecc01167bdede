package chatrelay

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// streamServer serves the message-stream endpoint with canned frame chunks
// and records whether the finalize endpoint was hit.
type streamServer struct {
	status int      // status for the stream endpoint, 200 when zero
	chunks []string // written one flush at a time

	savedContent string
	saveCalls    int
}

func (s *streamServer) handler() http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		switch {
		case strings.HasSuffix(r.URL.Path, "/messages/ai"):
			var req struct {
				Content string `json:"content"`
			}
			json.NewDecoder(r.Body).Decode(&req)
			s.saveCalls++
			s.savedContent = req.Content
			w.WriteHeader(http.StatusCreated)
			json.NewEncoder(w).Encode(Message{
				ID:        "srv-msg-1",
				ChatID:    "chat-1",
				Role:      "assistant",
				Content:   req.Content,
				CreatedAt: time.Now(),
			})

		case strings.HasSuffix(r.URL.Path, "/messages"):
			if s.status >= 400 {
				w.WriteHeader(s.status)
				json.NewEncoder(w).Encode(map[string]string{"error": "chat not found"})
				return
			}
			w.Header().Set("Content-Type", "text/plain; charset=utf-8")
			w.WriteHeader(http.StatusOK)
			flusher := w.(http.Flusher)
			for _, chunk := range s.chunks {
				w.Write([]byte(chunk))
				flusher.Flush()
			}

		default:
			http.NotFound(w, r)
		}
	})
}

func newTestClient(t *testing.T, baseURL string) *Client {
	t.Helper()
	t.Setenv("CHATRELAY_CONFIG", t.TempDir())
	c := NewClient(baseURL)
	c.Token = "test-token"
	return c
}

func TestSendMessageAccumulatesAndSaves(t *testing.T) {
	srv := &streamServer{chunks: []string{
		"0:\"Hel\"\n",
		"0:\"lo\"\n0:\" world\"\n",
		"d:{\"finishReason\":\"stop\"}\n",
	}}
	ts := httptest.NewServer(srv.handler())
	defer ts.Close()

	client := newTestClient(t, ts.URL)

	var deltas []string
	var states []StreamState
	result, err := client.SendMessage(context.Background(), "chat-1", "hi there", &StreamOptions{
		OnState: func(s StreamState) { states = append(states, s) },
		OnDelta: func(acc string) { deltas = append(deltas, acc) },
	})
	require.NoError(t, err)

	assert.Equal(t, "Hello world", result.Text)
	assert.False(t, result.Truncated)
	assert.Equal(t, "stop", result.FinishReason)
	require.NotNil(t, result.Assistant)
	assert.Equal(t, "srv-msg-1", result.Assistant.ID)
	assert.Nil(t, result.PendingAssistant)
	assert.NoError(t, result.SaveErr)

	assert.Equal(t, 1, srv.saveCalls)
	assert.Equal(t, "Hello world", srv.savedContent)

	// Every delta carries the full accumulated text so far.
	assert.Equal(t, []string{"Hel", "Hello", "Hello world"}, deltas)
	assert.Equal(t, []StreamState{StateSent, StateThinking, StateStreaming, StateCompleted}, states)

	assert.Equal(t, "user", result.UserMessage.Role)
	assert.Equal(t, "hi there", result.UserMessage.Content)
	assert.NotEmpty(t, result.UserMessage.LocalID)
}

func TestSendMessageReassemblesSplitFrames(t *testing.T) {
	// Frame lines split mid-payload across chunks.
	srv := &streamServer{chunks: []string{
		"0:\"Hel",
		"lo\"\n0:\", wo",
		"rld\"\nd:{\"finishReason\"",
		":\"stop\"}\n",
	}}
	ts := httptest.NewServer(srv.handler())
	defer ts.Close()

	client := newTestClient(t, ts.URL)
	result, err := client.SendMessage(context.Background(), "chat-1", "hi", nil)
	require.NoError(t, err)

	assert.Equal(t, "Hello, world", result.Text)
	assert.False(t, result.Truncated)
	assert.Equal(t, 1, srv.saveCalls)
}

func TestSendMessageEmptyOutputNotSaved(t *testing.T) {
	srv := &streamServer{chunks: []string{"d:{\"finishReason\":\"stop\"}\n"}}
	ts := httptest.NewServer(srv.handler())
	defer ts.Close()

	client := newTestClient(t, ts.URL)
	result, err := client.SendMessage(context.Background(), "chat-1", "hi", nil)
	require.NoError(t, err)

	assert.Empty(t, result.Text)
	assert.Nil(t, result.Assistant)
	assert.Nil(t, result.PendingAssistant)
	assert.Equal(t, 0, srv.saveCalls, "empty output must not be persisted")
}

func TestSendMessageTruncatedNotSaved(t *testing.T) {
	// Stream ends without the d: sentinel.
	srv := &streamServer{chunks: []string{"0:\"partial ans\"\n"}}
	ts := httptest.NewServer(srv.handler())
	defer ts.Close()

	client := newTestClient(t, ts.URL)
	result, err := client.SendMessage(context.Background(), "chat-1", "hi", nil)
	require.NoError(t, err)

	assert.True(t, result.Truncated)
	assert.Equal(t, "partial ans", result.Text)
	assert.Nil(t, result.Assistant)
	require.NotNil(t, result.PendingAssistant)
	assert.Equal(t, "assistant", result.PendingAssistant.Role)
	assert.Equal(t, "partial ans", result.PendingAssistant.Content)
	assert.Equal(t, 0, srv.saveCalls, "truncated output must not be persisted")
}

func TestSendMessageErrorFrameIsSoft(t *testing.T) {
	srv := &streamServer{chunks: []string{
		"0:\"before\"\n",
		"3:\"provider hiccup\"\n",
		"0:\" after\"\nd:{\"finishReason\":\"stop\"}\n",
	}}
	ts := httptest.NewServer(srv.handler())
	defer ts.Close()

	client := newTestClient(t, ts.URL)

	var streamErrs []string
	result, err := client.SendMessage(context.Background(), "chat-1", "hi", &StreamOptions{
		OnStreamError: func(msg string) { streamErrs = append(streamErrs, msg) },
	})
	require.NoError(t, err)

	assert.Equal(t, []string{"provider hiccup"}, streamErrs)
	assert.Equal(t, "before after", result.Text, "text around a 3: frame still accumulates")
	assert.Equal(t, 1, srv.saveCalls)
}

func TestSendMessageMalformedFrameSkipped(t *testing.T) {
	srv := &streamServer{chunks: []string{
		"0:\"ok\"\n",
		"0:not-json\n",
		"garbage line\n",
		"d:{\"finishReason\":\"stop\"}\n",
	}}
	ts := httptest.NewServer(srv.handler())
	defer ts.Close()

	client := newTestClient(t, ts.URL)

	var streamErrs []string
	result, err := client.SendMessage(context.Background(), "chat-1", "hi", &StreamOptions{
		OnStreamError: func(msg string) { streamErrs = append(streamErrs, msg) },
	})
	require.NoError(t, err)

	assert.Equal(t, "ok", result.Text)
	require.Len(t, streamErrs, 1)
	assert.Contains(t, streamErrs[0], "malformed text frame")
}

func TestSendMessageServerError(t *testing.T) {
	srv := &streamServer{status: http.StatusNotFound}
	ts := httptest.NewServer(srv.handler())
	defer ts.Close()

	client := newTestClient(t, ts.URL)

	var states []StreamState
	_, err := client.SendMessage(context.Background(), "chat-1", "hi", &StreamOptions{
		OnState: func(s StreamState) { states = append(states, s) },
	})
	require.Error(t, err)

	var apiErr *APIError
	require.ErrorAs(t, err, &apiErr)
	assert.Equal(t, http.StatusNotFound, apiErr.StatusCode)
	assert.Equal(t, "chat not found", apiErr.Message)
	assert.Equal(t, []StreamState{StateSent, StateErrored}, states)
	assert.Equal(t, 0, srv.saveCalls)
}

func TestSendMessageRejectsEmptyText(t *testing.T) {
	client := newTestClient(t, "http://localhost:0")
	_, err := client.SendMessage(context.Background(), "chat-1", "   ", nil)
	require.Error(t, err)
}
