package remote

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"
)

// HTTP is the production Client speaking the session API over HTTP.
//
//	POST {base}/api/responses          submit one answer
//	GET  {base}/api/sessions/{id}      session status, {"active": bool}
//
// 404 and 410 responses map to ErrNotFound; every other non-2xx status
// and every transport error is transient.
type HTTP struct {
	base   string
	client *http.Client
}

// NewHTTP creates a Client for the API at baseURL.
//
// If client is nil, a default with a 10 second timeout is used. That
// timeout is the engine's only bound on a delivery attempt.
func NewHTTP(baseURL string, client *http.Client) (*HTTP, error) {
	u, err := url.Parse(baseURL)
	if err != nil {
		return nil, fmt.Errorf("invalid base URL: %w", err)
	}
	if u.Scheme != "http" && u.Scheme != "https" {
		return nil, fmt.Errorf("invalid base URL %q: scheme must be http or https", baseURL)
	}

	if client == nil {
		client = &http.Client{Timeout: 10 * time.Second}
	}

	return &HTTP{
		base:   strings.TrimRight(baseURL, "/"),
		client: client,
	}, nil
}

// SubmitAnswer implements Client.SubmitAnswer.
func (h *HTTP) SubmitAnswer(ctx context.Context, a Answer) error {
	body, err := json.Marshal(a)
	if err != nil {
		return fmt.Errorf("failed to encode answer: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost,
		h.base+"/api/responses", bytes.NewReader(body))
	if err != nil {
		return fmt.Errorf("failed to build request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Idempotency-Key", a.ID)

	resp, err := h.client.Do(req)
	if err != nil {
		return fmt.Errorf("submit answer %s: %w", a.ID, err)
	}
	defer drain(resp.Body)

	switch {
	case resp.StatusCode >= 200 && resp.StatusCode < 300:
		return nil
	case resp.StatusCode == http.StatusNotFound || resp.StatusCode == http.StatusGone:
		return fmt.Errorf("submit answer %s: %w", a.ID, ErrNotFound)
	default:
		return fmt.Errorf("submit answer %s: unexpected status %d", a.ID, resp.StatusCode)
	}
}

// SessionStatus implements Client.SessionStatus. A 404 means the session
// is unknown server-side, which is reported as not active rather than as
// an error.
func (h *HTTP) SessionStatus(ctx context.Context, sessionID string) (bool, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet,
		h.base+"/api/sessions/"+url.PathEscape(sessionID), nil)
	if err != nil {
		return false, fmt.Errorf("failed to build request: %w", err)
	}

	resp, err := h.client.Do(req)
	if err != nil {
		return false, fmt.Errorf("session status %s: %w", sessionID, err)
	}
	defer drain(resp.Body)

	switch {
	case resp.StatusCode == http.StatusNotFound || resp.StatusCode == http.StatusGone:
		return false, nil
	case resp.StatusCode < 200 || resp.StatusCode >= 300:
		return false, fmt.Errorf("session status %s: unexpected status %d", sessionID, resp.StatusCode)
	}

	var out struct {
		Active bool `json:"active"`
	}
	if err := json.NewDecoder(resp.Body).Decode(&out); err != nil {
		return false, fmt.Errorf("session status %s: decode response: %w", sessionID, err)
	}

	return out.Active, nil
}

// drain consumes and closes a response body so the connection can be
// reused.
func drain(body io.ReadCloser) {
	_, _ = io.Copy(io.Discard, body)
	_ = body.Close()
}
