package llm

import (
	"bytes"
	"context"
	"crypto/tls"
	"encoding/json"
	"fmt"
	"io"
	"net"
	"net/http"
	"time"

	"go.uber.org/zap"

	apperrors "github.com/harpou/ai-gateway/pkg/errors"
)

const modelDiscoveryTimeout = 5 * time.Second

// Client is the per-backend OpenAI-compatible HTTP client.
type Client struct {
	backend Backend
	http    *http.Client
	logger  *zap.Logger
}

// NewClient builds a client for one backend, with the backend's timeout
// applied as the response-header deadline.
func NewClient(b Backend, logger *zap.Logger) *Client {
	transport := &http.Transport{
		DialContext: (&net.Dialer{
			Timeout:   30 * time.Second,
			KeepAlive: 30 * time.Second,
		}).DialContext,
		TLSHandshakeTimeout:   15 * time.Second,
		ResponseHeaderTimeout: b.Timeout,
		IdleConnTimeout:       90 * time.Second,
		MaxIdleConns:          10,
		MaxIdleConnsPerHost:   5,
		TLSClientConfig:       &tls.Config{MinVersion: tls.VersionTLS12},
	}

	return &Client{
		backend: b,
		http:    &http.Client{Transport: transport},
		logger:  logger.With(zap.String("backend", b.Name)),
	}
}

// Backend returns the backend descriptor this client talks to.
func (c *Client) Backend() Backend {
	return c.backend
}

// ChatCompletion performs a non-streaming chat completion call.
func (c *Client) ChatCompletion(ctx context.Context, req *ChatRequest) (*ChatCompletion, error) {
	respBody, err := c.post(ctx, "/chat/completions", req)
	if err != nil {
		return nil, err
	}

	var completion ChatCompletion
	if err := json.Unmarshal(respBody, &completion); err != nil {
		return nil, apperrors.NewInternalError("parse completion response", err)
	}
	if len(completion.Choices) == 0 {
		return nil, apperrors.NewInternalError(
			fmt.Sprintf("backend %q returned no choices", c.backend.Name), nil)
	}
	return &completion, nil
}

// ChatCompletionStream opens a streaming chat completion. The returned
// Stream yields the raw JSON payload of each SSE data event in upstream
// order; closing the stream stops upstream consumption promptly.
func (c *Client) ChatCompletionStream(ctx context.Context, req *ChatRequest) (*Stream, error) {
	req.Stream = true

	body, err := json.Marshal(req)
	if err != nil {
		return nil, apperrors.NewInternalError("marshal stream request", err)
	}

	httpReq, err := http.NewRequestWithContext(ctx, http.MethodPost,
		c.backend.BaseURL+"/chat/completions", bytes.NewReader(body))
	if err != nil {
		return nil, apperrors.NewInternalError("create stream request", err)
	}
	httpReq.Header.Set("Content-Type", "application/json")
	httpReq.Header.Set("Authorization", "Bearer "+c.backend.APIKey)
	httpReq.Header.Set("Accept", "text/event-stream")

	resp, err := c.http.Do(httpReq)
	if err != nil {
		return nil, apperrors.NewConnectionFailedError(
			fmt.Sprintf("backend %q unreachable", c.backend.Name), err)
	}

	if resp.StatusCode != http.StatusOK {
		respBody, _ := io.ReadAll(resp.Body)
		resp.Body.Close()
		return nil, c.upstreamError(resp.StatusCode, respBody)
	}

	return newStream(ctx, resp.Body, c.logger), nil
}

// ListModels queries the backend's model listing endpoint with a short
// discovery timeout, independent of the completion timeout.
func (c *Client) ListModels(ctx context.Context) ([]upstreamModel, error) {
	ctx, cancel := context.WithTimeout(ctx, modelDiscoveryTimeout)
	defer cancel()

	httpReq, err := http.NewRequestWithContext(ctx, http.MethodGet, c.backend.BaseURL+"/models", nil)
	if err != nil {
		return nil, apperrors.NewInternalError("create models request", err)
	}
	httpReq.Header.Set("Authorization", "Bearer "+c.backend.APIKey)

	resp, err := c.http.Do(httpReq)
	if err != nil {
		return nil, apperrors.NewConnectionFailedError(
			fmt.Sprintf("backend %q unreachable", c.backend.Name), err)
	}
	defer resp.Body.Close()

	respBody, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, apperrors.NewConnectionFailedError("read models response", err)
	}
	if resp.StatusCode != http.StatusOK {
		return nil, c.upstreamError(resp.StatusCode, respBody)
	}

	var list modelList
	if err := json.Unmarshal(respBody, &list); err != nil {
		return nil, apperrors.NewInternalError("parse models response", err)
	}
	return list.Data, nil
}

// upstreamError builds the protocol error for a non-200 response. The raw
// body passes through untouched for the client; when it is an OpenAI error
// envelope, its message is lifted into the error text for the logs.
func (c *Client) upstreamError(status int, body []byte) error {
	appErr := apperrors.NewUpstreamError(status, string(body))
	var env errorEnvelope
	if json.Unmarshal(body, &env) == nil && env.Error.Message != "" {
		appErr.Message = fmt.Sprintf("backend %q returned status %d: %s",
			c.backend.Name, status, env.Error.Message)
	}
	return appErr
}

// post executes a JSON POST and classifies transport vs protocol failures.
func (c *Client) post(ctx context.Context, path string, payload any) ([]byte, error) {
	body, err := json.Marshal(payload)
	if err != nil {
		return nil, apperrors.NewInternalError("marshal request", err)
	}

	httpReq, err := http.NewRequestWithContext(ctx, http.MethodPost,
		c.backend.BaseURL+path, bytes.NewReader(body))
	if err != nil {
		return nil, apperrors.NewInternalError("create request", err)
	}
	httpReq.Header.Set("Content-Type", "application/json")
	httpReq.Header.Set("Authorization", "Bearer "+c.backend.APIKey)

	resp, err := c.http.Do(httpReq)
	if err != nil {
		return nil, apperrors.NewConnectionFailedError(
			fmt.Sprintf("backend %q unreachable", c.backend.Name), err)
	}
	defer resp.Body.Close()

	respBody, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, apperrors.NewConnectionFailedError(
			fmt.Sprintf("read response from backend %q", c.backend.Name), err)
	}

	if resp.StatusCode != http.StatusOK {
		return nil, c.upstreamError(resp.StatusCode, respBody)
	}
	return respBody, nil
}
