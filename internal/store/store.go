// Package store talks to the backing document store. The runtime
// layer never interprets results, it only moves them between the
// store and the cache.
package store

import (
	"bytes"
	"context"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"time"

	"go.uber.org/zap"

	"github.com/docpulse/runtime-node/internal/errors"
	"github.com/docpulse/runtime-node/internal/model"
)

// Executor performs one operation against the backing store and
// returns the raw response body.
type Executor interface {
	Execute(ctx context.Context, scope string, kind model.OperationKind, collection string, payload []byte) ([]byte, error)
}

// HTTPExecutor speaks the store's REST API
type HTTPExecutor struct {
	baseURL string
	client  *http.Client
	logger  *zap.Logger
}

// NewHTTPExecutor creates an executor for the store at baseURL
func NewHTTPExecutor(baseURL string, timeout time.Duration, logger *zap.Logger) *HTTPExecutor {
	return &HTTPExecutor{
		baseURL: baseURL,
		client:  &http.Client{Timeout: timeout},
		logger:  logger,
	}
}

// Execute issues the HTTP request for one operation. Responses
// outside 2xx become structured errors: 4xx maps to an invalid
// argument, anything else to store unavailability.
func (e *HTTPExecutor) Execute(ctx context.Context, scope string, kind model.OperationKind, collection string, payload []byte) ([]byte, error) {
	method, path, err := route(scope, kind, collection)
	if err != nil {
		return nil, err
	}

	req, err := http.NewRequestWithContext(ctx, method, e.baseURL+path, bytes.NewReader(payload))
	if err != nil {
		return nil, errors.InternalError("failed to build store request", err)
	}
	req.Header.Set("Content-Type", "application/json")

	start := time.Now()
	resp, err := e.client.Do(req)
	if err != nil {
		return nil, errors.StoreUnavailable(fmt.Sprintf("store request failed: %s %s", method, path), err)
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, errors.StoreUnavailable("failed to read store response", err)
	}

	e.logger.Debug("store request completed",
		zap.String("method", method),
		zap.String("path", path),
		zap.Int("status", resp.StatusCode),
		zap.Duration("elapsed", time.Since(start)))

	switch {
	case resp.StatusCode >= 200 && resp.StatusCode < 300:
		return body, nil
	case resp.StatusCode >= 400 && resp.StatusCode < 500:
		return nil, errors.InvalidArgument(
			fmt.Sprintf("store rejected %s %s with status %d: %s", method, path, resp.StatusCode, truncate(body)), nil)
	default:
		return nil, errors.StoreUnavailable(
			fmt.Sprintf("store returned status %d for %s %s", resp.StatusCode, method, path), nil)
	}
}

func route(scope string, kind model.OperationKind, collection string) (string, string, error) {
	base := fmt.Sprintf("/v1/scopes/%s/collections/%s", url.PathEscape(scope), url.PathEscape(collection))
	switch kind {
	case model.OperationQuery:
		return http.MethodPost, base + "/query", nil
	case model.OperationInsert:
		return http.MethodPost, base + "/documents", nil
	case model.OperationUpdate:
		return http.MethodPut, base + "/documents", nil
	case model.OperationDelete:
		return http.MethodDelete, base + "/documents", nil
	default:
		return "", "", errors.InvalidArgument(fmt.Sprintf("unknown operation kind %q", kind), nil)
	}
}

func truncate(body []byte) string {
	const max = 256
	if len(body) > max {
		return string(body[:max]) + "..."
	}
	return string(body)
}
