// Package chat provides the two chat-event sources feeding the
// transcript archive: a paginated historical comment API for VODs and a
// websocket push source for live broadcasts.
package chat

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/url"
	"strconv"
	"time"

	"stream-archiver/pkg/models"
)

// Page is one slice of historical comments, decoded straight into the
// typed chat model at the boundary. An empty NextCursor means the
// source is exhausted.
type Page struct {
	Comments   []models.ChatMessage `json:"comments"`
	NextCursor string               `json:"nextCursor"`
}

// History pages through a VOD's recorded chat.
type History struct {
	client  *http.Client
	url     string
	headers map[string]string
}

// NewHistory creates a client for the comment endpoint stored on the
// task.
func NewHistory(client *http.Client, endpoint string, headers map[string]string) *History {
	if client == nil {
		client = &http.Client{Timeout: 30 * time.Second}
	}
	return &History{client: client, url: endpoint, headers: headers}
}

// NextPage fetches one page. An empty cursor requests the page at
// offsetSeconds; afterwards the cursor from the previous page drives
// pagination.
func (h *History) NextPage(ctx context.Context, cursor string, offsetSeconds float64) (*Page, error) {
	u, err := url.Parse(h.url)
	if err != nil {
		return nil, fmt.Errorf("invalid comment endpoint: %w", err)
	}
	q := u.Query()
	if cursor != "" {
		q.Set("cursor", cursor)
	} else {
		q.Set("content_offset_seconds", strconv.FormatFloat(offsetSeconds, 'f', -1, 64))
	}
	u.RawQuery = q.Encode()

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, u.String(), nil)
	if err != nil {
		return nil, fmt.Errorf("failed to build comment request: %w", err)
	}
	for k, v := range h.headers {
		req.Header.Set(k, v)
	}

	resp, err := h.client.Do(req)
	if err != nil {
		return nil, fmt.Errorf("comment fetch failed: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("comment fetch failed: status %d", resp.StatusCode)
	}

	var page Page
	if err := json.NewDecoder(resp.Body).Decode(&page); err != nil {
		return nil, fmt.Errorf("failed to decode comment page: %w", err)
	}
	return &page, nil
}
