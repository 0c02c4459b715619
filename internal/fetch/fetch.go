// Package fetch performs single-attempt HTTP fetches of playlist
// manifests and media segments. Retry policy belongs to the callers.
package fetch

import (
	"context"
	"fmt"
	"io"
	"net/http"
	"time"
)

// Error is a transport or HTTP failure for one fetch. StatusCode is
// zero when the request never produced a response.
type Error struct {
	URL        string
	StatusCode int
	Err        error
}

func (e *Error) Error() string {
	if e.StatusCode != 0 {
		return fmt.Sprintf("fetch %s: status %d", e.URL, e.StatusCode)
	}
	return fmt.Sprintf("fetch %s: %v", e.URL, e.Err)
}

func (e *Error) Unwrap() error { return e.Err }

// Fetcher wraps an injected HTTP client with the headers provisioned by
// the authentication layer.
type Fetcher struct {
	client  *http.Client
	headers map[string]string
}

// New creates a Fetcher. A nil client gets a default with the given
// timeout.
func New(client *http.Client, timeout time.Duration, headers map[string]string) *Fetcher {
	if client == nil {
		client = &http.Client{Timeout: timeout}
	}
	return &Fetcher{client: client, headers: headers}
}

// Client exposes the underlying HTTP client so other sources against
// the same backend share the injected transport.
func (f *Fetcher) Client() *http.Client { return f.client }

// Headers exposes the provisioned request headers.
func (f *Fetcher) Headers() map[string]string { return f.headers }

// Fetch performs a single GET and returns the whole body. No retries.
func (f *Fetcher) Fetch(ctx context.Context, url string) ([]byte, error) {
	resp, err := f.get(ctx, url, "")
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, &Error{URL: url, Err: err}
	}
	return body, nil
}

// FetchTo streams a single GET into w and returns the resulting sink
// length. A positive rangeFrom resumes with a Range header; if the
// server ignores it and replies 200 the sink is truncated and the full
// body written from the start, so the returned length always matches
// the bytes the sink holds.
func (f *Fetcher) FetchTo(ctx context.Context, url string, w io.Writer, rangeFrom int64) (int64, error) {
	rangeHeader := ""
	if rangeFrom > 0 {
		rangeHeader = fmt.Sprintf("bytes=%d-", rangeFrom)
	}

	resp, err := f.get(ctx, url, rangeHeader)
	if err != nil {
		return rangeFrom, err
	}
	defer resp.Body.Close()

	base := rangeFrom
	if rangeFrom > 0 && resp.StatusCode == http.StatusOK {
		if err := restartSink(w); err != nil {
			return rangeFrom, &Error{URL: url, Err: err}
		}
		base = 0
	}

	n, err := io.Copy(w, resp.Body)
	if err != nil {
		return base + n, &Error{URL: url, Err: err}
	}
	return base + n, nil
}

type truncater interface {
	Truncate(size int64) error
	io.Seeker
}

// restartSink rewinds a resumable sink to zero when the server answered
// a Range request with the whole body.
func restartSink(w io.Writer) error {
	t, ok := w.(truncater)
	if !ok {
		return fmt.Errorf("server ignored range request and sink cannot restart")
	}
	if err := t.Truncate(0); err != nil {
		return fmt.Errorf("failed to truncate sink: %w", err)
	}
	if _, err := t.Seek(0, io.SeekStart); err != nil {
		return fmt.Errorf("failed to rewind sink: %w", err)
	}
	return nil
}

func (f *Fetcher) get(ctx context.Context, url, rangeHeader string) (*http.Response, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return nil, &Error{URL: url, Err: err}
	}
	for k, v := range f.headers {
		req.Header.Set(k, v)
	}
	if rangeHeader != "" {
		req.Header.Set("Range", rangeHeader)
	}

	resp, err := f.client.Do(req)
	if err != nil {
		return nil, &Error{URL: url, Err: err}
	}

	if resp.StatusCode != http.StatusOK && resp.StatusCode != http.StatusPartialContent {
		resp.Body.Close()
		return nil, &Error{URL: url, StatusCode: resp.StatusCode, Err: fmt.Errorf("unexpected status %d", resp.StatusCode)}
	}

	return resp, nil
}
