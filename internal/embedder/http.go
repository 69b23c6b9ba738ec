package embedder

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
)

// maxErrorBody caps how much of a failed response ends up in an error.
const maxErrorBody = 512

// APIError is a non-200 answer from an embedding provider.
type APIError struct {
	Provider   string
	StatusCode int
	Message    string
}

func (e *APIError) Error() string {
	return fmt.Sprintf("%s embedder: API returned %d: %s", e.Provider, e.StatusCode, e.Message)
}

// postJSON sends body as JSON to url and decodes a 200 response into out.
// Other statuses become an *APIError whose message comes from parseErr when
// it recognizes the body.
func postJSON(ctx context.Context, client *http.Client, url string, headers map[string]string, body, out any, provider string, parseErr func([]byte) string) error {
	payload, err := json.Marshal(body)
	if err != nil {
		return fmt.Errorf("%s embedder: marshaling request: %w", provider, err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, url, bytes.NewReader(payload))
	if err != nil {
		return fmt.Errorf("%s embedder: creating request: %w", provider, err)
	}
	req.Header.Set("Content-Type", "application/json")
	for k, v := range headers {
		req.Header.Set(k, v)
	}

	resp, err := client.Do(req)
	if err != nil {
		return fmt.Errorf("%s embedder: calling API: %w", provider, err)
	}
	defer func() { _ = resp.Body.Close() }()

	if resp.StatusCode != http.StatusOK {
		raw, _ := io.ReadAll(io.LimitReader(resp.Body, maxErrorBody))
		msg := ""
		if parseErr != nil {
			msg = parseErr(raw)
		}
		if msg == "" {
			msg = string(bytes.TrimSpace(raw))
		}
		return &APIError{Provider: provider, StatusCode: resp.StatusCode, Message: msg}
	}

	if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
		return fmt.Errorf("%s embedder: decoding response: %w", provider, err)
	}
	return nil
}
