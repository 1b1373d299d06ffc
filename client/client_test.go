package client

import (
	"context"
	"io"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/AnswerDotAI/ai-jup/core"
)

func TestClient_Prompt(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/api/v1/prompt", r.URL.Path)
		assert.Equal(t, "Bearer tok-1", r.Header.Get("Authorization"))

		body, rerr := io.ReadAll(r.Body)
		require.NoError(t, rerr)
		req, perr := core.ParsePromptRequest(body)
		require.NoError(t, perr)
		assert.Equal(t, "summarize df", req.Prompt)

		w.Header().Set("Content-Type", "text/event-stream")
		w.Write(frames(
			core.TextEvent("the frame has "),
			core.TextEvent("3 rows"),
			core.DoneEvent(""),
		))
	}))
	defer srv.Close()

	rec := &recordingRenderer{}
	c := New(srv.URL, WithToken("tok-1"))
	err := c.Prompt(context.Background(), core.PromptRequest{Prompt: "summarize df", MaxSteps: 2}, rec)

	require.NoError(t, err)
	assert.Equal(t, []string{"text", "text", "finish"}, kinds(rec.steps))
}

func TestClient_PromptRejected(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(http.StatusBadRequest)
		w.Write([]byte(`{"error":{"code":"invalid_request","message":"prompt must not be empty","field":"prompt"}}`))
	}))
	defer srv.Close()

	c := New(srv.URL)
	err := c.Prompt(context.Background(), core.PromptRequest{}, &recordingRenderer{})

	var perr *core.Error
	require.ErrorAs(t, err, &perr)
	assert.Equal(t, core.CodeInvalidRequest, perr.Code)
	assert.Equal(t, "prompt", perr.Field)
}

func TestClient_AbortIsClean(t *testing.T) {
	started := make(chan struct{})
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "text/event-stream")
		w.Write(frames(core.TextEvent("first")))
		w.(http.Flusher).Flush()
		close(started)
		<-r.Context().Done()
	}))
	defer srv.Close()

	ctx, cancel := context.WithCancel(context.Background())
	go func() {
		<-started
		cancel()
	}()

	rec := &recordingRenderer{}
	err := New(srv.URL).Prompt(ctx, core.PromptRequest{Prompt: "hi"}, rec)

	assert.NoError(t, err)
	last := rec.steps[len(rec.steps)-1]
	assert.Equal(t, "finish", last.kind)
	assert.Nil(t, last.err)
}

func TestClient_ServerCloseWithoutTerminal(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "text/event-stream")
		w.Write(frames(core.TextEvent("cut off")))
	}))
	defer srv.Close()

	rec := &recordingRenderer{}
	err := New(srv.URL).Prompt(context.Background(), core.PromptRequest{Prompt: "hi"}, rec)

	require.NoError(t, err)
	assert.Equal(t, []string{"text", "finish"}, kinds(rec.steps))
}

func TestClient_Health(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path == "/api/v1/health" {
			w.WriteHeader(http.StatusOK)
			return
		}
		w.WriteHeader(http.StatusNotFound)
	}))
	defer srv.Close()

	c := New(srv.URL)
	assert.NoError(t, c.Health(context.Background()))

	down := New("http://127.0.0.1:1")
	ctx, cancel := context.WithTimeout(context.Background(), 500*time.Millisecond)
	defer cancel()
	assert.Error(t, down.Health(ctx))
}
