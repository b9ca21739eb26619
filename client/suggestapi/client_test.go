package suggestapi

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"net/http/httptest"
	"sync"
	"testing"

	"nextedit/assert"
	"nextedit/types"

	"github.com/andybalholm/brotli"
	"github.com/google/uuid"
	"go.opentelemetry.io/otel/codes"
	sdktrace "go.opentelemetry.io/otel/sdk/trace"
	"go.opentelemetry.io/otel/sdk/trace/tracetest"
)

// decodeBody reads a brotli-compressed JSON request body into v.
func decodeBody(t *testing.T, r *http.Request, v any) {
	t.Helper()
	compressed, err := io.ReadAll(r.Body)
	assert.NoError(t, err, "read body")
	decompressed, err := io.ReadAll(brotli.NewReader(bytes.NewReader(compressed)))
	assert.NoError(t, err, "decompress body")
	assert.NoError(t, json.Unmarshal(decompressed, v), "unmarshal body")
}

func TestGenerateCompletions(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, CompletionsPath, r.URL.Path, "path")
		assert.Equal(t, "br", r.Header.Get("Content-Encoding"), "Content-Encoding header")
		assert.Equal(t, "application/json", r.Header.Get("Content-Type"), "Content-Type header")
		assert.Equal(t, "Bearer secret", r.Header.Get("Authorization"), "Authorization header")
		_, err := uuid.Parse(r.Header.Get("X-Request-Id"))
		assert.NoError(t, err, "request id is a uuid")

		var req types.CompletionRequest
		decodeBody(t, r, &req)
		assert.Equal(t, "doc-1", req.DocumentID, "document id")
		assert.Equal(t, 4, req.Row, "row")
		assert.True(t, req.AutoInvoked, "auto invoked")

		w.Header().Set("Content-Type", "application/json")
		w.Write([]byte(`{"enabled":true,"result":{"items":[{"insertText":"ln()","range":{"start":{"line":4,"character":7},"end":{"line":4,"character":7}},"command":{"id":"x"}}]}}`))
	}))
	defer server.Close()

	client := NewClient(server.URL, "secret", 0, nil)
	resp, err := client.GenerateCompletions(context.Background(), &types.CompletionRequest{
		DocumentID:  "doc-1",
		Row:         4,
		Col:         7,
		AutoInvoked: true,
	})
	assert.NoError(t, err, "GenerateCompletions")
	assert.NotNil(t, resp.Enabled, "enabled present")
	assert.False(t, resp.Disabled(), "enabled")
	assert.Len(t, 1, resp.Result.Items, "items")
	item := resp.Result.Items[0]
	assert.Equal(t, "ln()", item.InsertText, "insert text")
	assert.Equal(t, types.NewRange(4, 7, 4, 7), item.Range, "range")
	assert.Equal(t, `{"id":"x"}`, string(item.Command), "command kept verbatim")
}

func TestNextEditSuggestions(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, NextEditPath, r.URL.Path, "path")
		var req types.NESRequest
		decodeBody(t, r, &req)
		assert.Equal(t, "a.go", req.Path, "path field")

		w.Write([]byte(`{"result":{"edits":[{"text":"bar","range":{"start":{"line":0,"character":0},"end":{"line":0,"character":3}}}]}}`))
	}))
	defer server.Close()

	client := NewClient(server.URL+"/", "", 0, nil)
	resp, err := client.NextEditSuggestions(context.Background(), &types.NESRequest{Path: "a.go"})
	assert.NoError(t, err, "NextEditSuggestions")
	assert.Len(t, 1, resp.Result.Edits, "edits")
	assert.Equal(t, "bar", resp.Result.Edits[0].Text, "edit text")
}

func TestErrorMapping(t *testing.T) {
	tests := []struct {
		name       string
		status     int
		body       string
		notFound   bool
		wantSubstr string
	}{
		{
			name:     "document not found",
			status:   http.StatusNotFound,
			body:     `{"code":"DOCUMENT_NOT_FOUND","message":"unknown document"}`,
			notFound: true,
		},
		{
			name:       "coded service error",
			status:     http.StatusInternalServerError,
			body:       `{"code":"INTERNAL","message":"boom"}`,
			wantSubstr: "INTERNAL: boom",
		},
		{
			name:       "plain text error",
			status:     http.StatusBadGateway,
			body:       "upstream down\n",
			wantSubstr: "status 502: upstream down",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
				w.WriteHeader(tt.status)
				w.Write([]byte(tt.body))
			}))
			defer server.Close()

			client := NewClient(server.URL, "", 0, nil)
			_, err := client.GenerateCompletions(context.Background(), &types.CompletionRequest{})
			assert.Error(t, err, "request error")
			assert.Equal(t, tt.notFound, errors.Is(err, types.ErrDocumentNotFound), "document not found")
			if tt.wantSubstr != "" {
				assert.Contains(t, err.Error(), tt.wantSubstr, "message")
			}
		})
	}
}

func TestInBandError(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte(`{"enabled":true,"error":{"code":"DOCUMENT_NOT_FOUND","message":"sync pending"}}`))
	}))
	defer server.Close()

	client := NewClient(server.URL, "", 0, nil)
	resp, err := client.GenerateCompletions(context.Background(), &types.CompletionRequest{})
	assert.NoError(t, err, "transport ok")
	assert.NotNil(t, resp.Error, "in-band error decoded")
	assert.True(t, errors.Is(resp.Error, types.ErrDocumentNotFound), "sentinel match")
}

func TestCanceledContext(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte(`{}`))
	}))
	defer server.Close()

	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	client := NewClient(server.URL, "", 0, nil)
	_, err := client.NextEditSuggestions(ctx, &types.NESRequest{})
	assert.True(t, errors.Is(err, context.Canceled), "canceled")
}

func TestNotifications(t *testing.T) {
	var mu sync.Mutex
	var got []NotifyRequest
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, NotifyPath, r.URL.Path, "path")
		var req NotifyRequest
		decodeBody(t, r, &req)
		mu.Lock()
		got = append(got, req)
		mu.Unlock()
	}))
	defer server.Close()

	client := NewClient(server.URL, "", 0, nil)
	comp := &types.Completion{Command: json.RawMessage(`{"id":"c1"}`)}
	client.NotifyShown(comp)
	client.Wait()
	client.NotifyPartialAccepted(comp, 7)
	client.Wait()
	client.NotifyAccepted(nil)
	client.Wait()

	mu.Lock()
	defer mu.Unlock()
	assert.Len(t, 3, got, "notifications")
	assert.Equal(t, NotifyShown, got[0].Event, "shown")
	assert.Equal(t, `{"id":"c1"}`, string(got[0].Command), "command echoed")
	assert.Equal(t, NotifyPartialAccepted, got[1].Event, "partial")
	assert.Equal(t, 7, got[1].AcceptedLength, "accepted length")
	assert.Equal(t, NotifyAccepted, got[2].Event, "accepted")
	assert.Len(t, 0, got[2].Command, "no command")
}

func TestNotifyFailureIsSilent(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusServiceUnavailable)
	}))
	defer server.Close()

	client := NewClient(server.URL, "", 0, nil)
	client.NotifyShown(&types.Completion{})
	client.Wait()
}

func TestSpans(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path == NextEditPath {
			w.WriteHeader(http.StatusInternalServerError)
			return
		}
		w.Write([]byte(`{"enabled":true}`))
	}))
	defer server.Close()

	recorder := tracetest.NewSpanRecorder()
	tp := sdktrace.NewTracerProvider(sdktrace.WithSpanProcessor(recorder))
	defer tp.Shutdown(context.Background())

	client := NewClient(server.URL, "", 0, tp)
	_, err := client.GenerateCompletions(context.Background(), &types.CompletionRequest{})
	assert.NoError(t, err, "completions")
	_, err = client.NextEditSuggestions(context.Background(), &types.NESRequest{})
	assert.Error(t, err, "next edit fails")

	spans := recorder.Ended()
	assert.Len(t, 2, spans, "spans")
	assert.Equal(t, "suggestapi.GenerateCompletions", spans[0].Name(), "first span")
	assert.Equal(t, codes.Unset, spans[0].Status().Code, "ok span")
	assert.Equal(t, "suggestapi.NextEditSuggestions", spans[1].Name(), "second span")
	assert.Equal(t, codes.Error, spans[1].Status().Code, "error span")
}
