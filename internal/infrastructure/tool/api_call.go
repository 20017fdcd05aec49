package tool

import (
	"context"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"
)

// runAPICall performs a templated HTTP request. Parameters are URL-encoded
// into {param} placeholders; header values expand $ENV_VAR credentials.
func (e *Executor) runAPICall(ctx context.Context, def Definition, params map[string]interface{}) (string, error) {
	if def.ExecutionDetails.URLTemplate == "" {
		return "", fmt.Errorf("tool %q has no url_template", def.Name)
	}

	endpoint := formatTemplate(def.ExecutionDetails.URLTemplate, params, true)

	method := strings.ToUpper(def.ExecutionDetails.Method)
	if method == "" {
		method = http.MethodGet
	}

	timeout := defaultAPICallTimeout
	if def.ExecutionDetails.TimeoutSeconds > 0 {
		timeout = time.Duration(def.ExecutionDetails.TimeoutSeconds) * time.Second
	}
	callCtx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()

	req, err := http.NewRequestWithContext(callCtx, method, endpoint, nil)
	if err != nil {
		return "", fmt.Errorf("build request: %w", err)
	}
	for k, v := range expandHeaders(def.ExecutionDetails.Headers) {
		req.Header.Set(k, v)
	}

	resp, err := e.httpClient.Do(req)
	if err != nil {
		return "", fmt.Errorf("call %s: %w", endpoint, err)
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return "", fmt.Errorf("read response: %w", err)
	}
	if resp.StatusCode >= 400 {
		return "", fmt.Errorf("API returned status %d: %s", resp.StatusCode, strings.TrimSpace(string(body)))
	}
	return string(body), nil
}
