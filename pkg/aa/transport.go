package aa

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net"
	"net/http"
	"net/url"
	"time"
)

const (
	maxAttempts  = 3
	retryBaseDelay = 600 * time.Millisecond
	maxBodyBytes = 1 << 20
)

// doJSON performs an HTTP request against the gateway with retry on
// transient failures, decoding the JSON response body into out.
//
// Transient means a retryable HTTP status (429/502/503/504) or a
// network error. Definitive gateway failures are returned as a
// classified *Error of the given kind.
func (c *Client) doJSON(ctx context.Context, kind Kind, method, path string, reqBody, out interface{}) error {
	var payload []byte
	if reqBody != nil {
		var err error
		payload, err = json.Marshal(reqBody)
		if err != nil {
			return fmt.Errorf("encode %s request: %w", path, err)
		}
	}

	var lastErr error
	for attempt := 1; attempt <= maxAttempts; attempt++ {
		c.logDebugf("aa: %s %s (attempt %d/%d)", method, path, attempt, maxAttempts)

		var body io.Reader
		if payload != nil {
			body = bytes.NewReader(payload)
		}
		req, err := http.NewRequestWithContext(ctx, method, c.gatewayURL+path, body)
		if err != nil {
			return fmt.Errorf("build %s request: %w", path, err)
		}
		if payload != nil {
			req.Header.Set("Content-Type", "application/json")
		}
		if c.apiKey != "" {
			req.Header.Set("Authorization", "Bearer "+c.apiKey)
		}

		resp, err := c.httpClient.Do(req)
		if err != nil {
			lastErr = err
			if shouldRetryNetworkError(err) && attempt < maxAttempts {
				c.logDebugf("aa: network error, retrying: %v", err)
				if !sleep(ctx, backoff(attempt)) {
					return ctx.Err()
				}
				continue
			}
			return fmt.Errorf("%s request failed: %w", path, err)
		}

		raw, err := io.ReadAll(io.LimitReader(resp.Body, maxBodyBytes))
		_ = resp.Body.Close()
		if err != nil {
			return fmt.Errorf("read %s response: %w", path, err)
		}

		if resp.StatusCode < 200 || resp.StatusCode >= 300 {
			gwErr := &Error{Kind: kind, Status: resp.StatusCode, Detail: errorDetail(raw)}
			if gwErr.Temporary() && attempt < maxAttempts {
				c.logDebugf("aa: transient status %d, retrying", resp.StatusCode)
				lastErr = gwErr
				if !sleep(ctx, backoff(attempt)) {
					return ctx.Err()
				}
				continue
			}
			return gwErr
		}

		if out == nil {
			return nil
		}
		if err := json.Unmarshal(raw, out); err != nil {
			return fmt.Errorf("parse %s response: %w", path, err)
		}
		return nil
	}

	return fmt.Errorf("max retries exceeded for %s: %w", path, lastErr)
}

// errorDetail extracts the gateway's error/detail fields from a
// failure body, falling back to the raw body text.
func errorDetail(raw []byte) string {
	var parsed struct {
		Error  string `json:"error"`
		Detail string `json:"detail"`
	}
	if err := json.Unmarshal(raw, &parsed); err == nil {
		switch {
		case parsed.Error != "" && parsed.Detail != "":
			return parsed.Error + ": " + parsed.Detail
		case parsed.Error != "":
			return parsed.Error
		case parsed.Detail != "":
			return parsed.Detail
		}
	}
	if len(raw) > 400 {
		raw = raw[:400]
	}
	return string(raw)
}

// backoff grows linearly with the attempt number.
func backoff(attempt int) time.Duration {
	return retryBaseDelay * time.Duration(attempt)
}

// shouldRetryNetworkError checks if a network error is retryable.
func shouldRetryNetworkError(err error) bool {
	if err == nil {
		return false
	}

	if _, ok := err.(net.Error); ok {
		return true
	}

	if urlErr, ok := err.(*url.Error); ok {
		if _, ok := urlErr.Err.(net.Error); ok {
			return true
		}
	}

	return false
}

// sleep waits for the specified duration or until context is
// cancelled. Returns true if sleep completed.
func sleep(ctx context.Context, duration time.Duration) bool {
	select {
	case <-ctx.Done():
		return false
	case <-time.After(duration):
		return true
	}
}
