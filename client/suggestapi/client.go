// Package suggestapi talks to the Suggestion Service over HTTP. Request
// bodies are brotli-compressed JSON and every call carries a fresh
// X-Request-Id.
package suggestapi

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strings"
	"sync"
	"time"

	"nextedit/logger"
	"nextedit/types"

	"github.com/andybalholm/brotli"
	"github.com/google/uuid"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"
)

const (
	CompletionsPath = "/v1/completions"
	NextEditPath    = "/v1/next_edit"
	NotifyPath      = "/v1/notify"

	// DefaultURL is used when the configuration names no service.
	DefaultURL = "http://127.0.0.1:8089"

	notifyTimeout = 5 * time.Second
	tracerName    = "nextedit/client/suggestapi"
)

// NotifyEvent names a suggestion lifecycle notification.
type NotifyEvent string

const (
	NotifyShown           NotifyEvent = "shown"
	NotifyAccepted        NotifyEvent = "accepted"
	NotifyPartialAccepted NotifyEvent = "partial_accepted"
)

// NotifyRequest is the body of a lifecycle notification. Command echoes the
// opaque payload the service attached to the suggestion.
type NotifyRequest struct {
	Event          NotifyEvent     `json:"event"`
	Command        json.RawMessage `json:"command,omitempty"`
	AcceptedLength int             `json:"acceptedLength,omitempty"`
}

// Client is the HTTP client for the Suggestion Service
type Client struct {
	HTTPClient *http.Client
	URL        string
	AuthToken  string

	tracer  trace.Tracer
	pending sync.WaitGroup
}

// NewClient creates a client for the service at url. timeoutMs bounds every
// HTTP round trip (0 = no timeout). A nil tracer provider uses the global one.
func NewClient(url, apiKey string, timeoutMs int, tp trace.TracerProvider) *Client {
	timeout := time.Duration(0)
	if timeoutMs > 0 {
		timeout = time.Duration(timeoutMs) * time.Millisecond
	}
	if url == "" {
		url = DefaultURL
	}
	if tp == nil {
		tp = otel.GetTracerProvider()
	}

	return &Client{
		HTTPClient: &http.Client{
			Timeout: timeout,
		},
		URL:       strings.TrimSuffix(url, "/"),
		AuthToken: apiKey,
		tracer:    tp.Tracer(tracerName),
	}
}

// GenerateCompletions asks for inline completions at the request cursor.
func (c *Client) GenerateCompletions(ctx context.Context, req *types.CompletionRequest) (*types.CompletionResponse, error) {
	defer logger.Trace("suggestapi.GenerateCompletions")()

	var resp types.CompletionResponse
	if err := c.post(ctx, "GenerateCompletions", CompletionsPath, req, &resp); err != nil {
		return nil, err
	}
	return &resp, nil
}

// NextEditSuggestions asks for the next edit near the request cursor.
func (c *Client) NextEditSuggestions(ctx context.Context, req *types.NESRequest) (*types.NESResponse, error) {
	defer logger.Trace("suggestapi.NextEditSuggestions")()

	var resp types.NESResponse
	if err := c.post(ctx, "NextEditSuggestions", NextEditPath, req, &resp); err != nil {
		return nil, err
	}
	return &resp, nil
}

func (c *Client) NotifyShown(comp *types.Completion) {
	c.notify(&NotifyRequest{Event: NotifyShown, Command: command(comp)})
}

func (c *Client) NotifyAccepted(comp *types.Completion) {
	c.notify(&NotifyRequest{Event: NotifyAccepted, Command: command(comp)})
}

func (c *Client) NotifyPartialAccepted(comp *types.Completion, acceptedLength int) {
	c.notify(&NotifyRequest{Event: NotifyPartialAccepted, Command: command(comp), AcceptedLength: acceptedLength})
}

// Wait blocks until every notification sent so far has finished.
func (c *Client) Wait() {
	c.pending.Wait()
}

func command(comp *types.Completion) json.RawMessage {
	if comp == nil {
		return nil
	}
	return comp.Command
}

// notify sends a notification in the background. Failures are only logged.
func (c *Client) notify(req *NotifyRequest) {
	c.pending.Add(1)
	go func() {
		defer c.pending.Done()
		ctx, cancel := context.WithTimeout(context.Background(), notifyTimeout)
		defer cancel()
		if err := c.post(ctx, "Notify", NotifyPath, req, nil); err != nil {
			logger.Warn("notify %s: %v", req.Event, err)
		}
	}()
}

// post sends body to path and decodes the JSON answer into out when out is
// not nil.
func (c *Client) post(ctx context.Context, op, path string, body, out any) (err error) {
	requestID := uuid.NewString()
	ctx, span := c.tracer.Start(ctx, "suggestapi."+op, trace.WithAttributes(
		attribute.String("nextedit.request_id", requestID),
		attribute.String("http.route", path),
	))
	defer func() {
		if err != nil {
			span.RecordError(err)
			span.SetStatus(codes.Error, err.Error())
		}
		span.End()
	}()

	jsonData, err := json.Marshal(body)
	if err != nil {
		return fmt.Errorf("failed to marshal request: %w", err)
	}

	// Compress with brotli (quality 1 for speed)
	var compressedBuf bytes.Buffer
	brotliWriter := brotli.NewWriterLevel(&compressedBuf, 1)
	if _, err := brotliWriter.Write(jsonData); err != nil {
		return fmt.Errorf("failed to compress request: %w", err)
	}
	if err := brotliWriter.Close(); err != nil {
		return fmt.Errorf("failed to close brotli writer: %w", err)
	}

	httpReq, err := http.NewRequestWithContext(ctx, http.MethodPost, c.URL+path, &compressedBuf)
	if err != nil {
		return fmt.Errorf("failed to create request: %w", err)
	}
	httpReq.Header.Set("Content-Type", "application/json")
	httpReq.Header.Set("Content-Encoding", "br")
	httpReq.Header.Set("X-Request-Id", requestID)
	if c.AuthToken != "" {
		httpReq.Header.Set("Authorization", "Bearer "+c.AuthToken)
	}

	resp, err := c.HTTPClient.Do(httpReq)
	if err != nil {
		if errors.Is(err, context.Canceled) {
			return context.Canceled
		}
		return fmt.Errorf("failed to send request: %w", err)
	}
	defer resp.Body.Close()
	span.SetAttributes(attribute.Int("http.status_code", resp.StatusCode))

	respBody, err := io.ReadAll(resp.Body)
	if err != nil {
		return fmt.Errorf("failed to read response: %w", err)
	}
	if resp.StatusCode != http.StatusOK {
		return statusError(resp.StatusCode, respBody)
	}
	if out == nil || len(respBody) == 0 {
		return nil
	}
	if err := json.Unmarshal(respBody, out); err != nil {
		return fmt.Errorf("failed to parse response: %w", err)
	}
	return nil
}

// statusError turns a non-200 answer into an error. A JSON body carrying a
// code becomes a *types.ServiceError so callers can match sentinels.
func statusError(status int, body []byte) error {
	var svcErr types.ServiceError
	if json.Unmarshal(body, &svcErr) == nil && svcErr.Code != "" {
		return fmt.Errorf("request failed with status %d: %w", status, &svcErr)
	}
	return fmt.Errorf("request failed with status %d: %s", status, strings.TrimSpace(string(body)))
}
