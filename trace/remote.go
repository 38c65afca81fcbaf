package trace

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"time"
)

// RemoteStore POSTs span batches as a JSON array to a collector endpoint.
//
//	rs := trace.NewRemoteStore("https://collector.example.com/api/traces", nil)
//	buf := trace.NewBuffer(100, trace.NewStore(db), rs)
type RemoteStore struct {
	url    string
	client *http.Client
}

// NewRemoteStore creates a RemoteStore. A nil client gets a 5s timeout.
func NewRemoteStore(url string, client *http.Client) *RemoteStore {
	if client == nil {
		client = &http.Client{Timeout: 5 * time.Second}
	}
	return &RemoteStore{url: url, client: client}
}

// Export sends spans in a single request.
func (rs *RemoteStore) Export(ctx context.Context, spans []Span) error {
	body, err := json.Marshal(spans)
	if err != nil {
		return fmt.Errorf("trace remote: marshal: %w", err)
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, rs.url, bytes.NewReader(body))
	if err != nil {
		return fmt.Errorf("trace remote: request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := rs.client.Do(req)
	if err != nil {
		return fmt.Errorf("trace remote: post: %w", err)
	}
	resp.Body.Close()
	if resp.StatusCode >= 400 {
		return fmt.Errorf("trace remote: post rejected: status %d", resp.StatusCode)
	}
	return nil
}
