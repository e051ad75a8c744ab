// Package platform implements twcc.TimelineSource against the platform's
// paginated tweet-listing endpoint and against offline fixture files.
package platform

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"

	"twcc/internal/twcc"
)

// maxBodyBytes caps a single page response.
const maxBodyBytes = 16 * 1024 * 1024

// wirePage is the endpoint's response envelope.
type wirePage struct {
	Data []json.RawMessage `json:"data"`
	Meta struct {
		NextCursor string `json:"next_cursor"`
	} `json:"meta"`
}

// HTTPSource calls GET {baseURL}/users/{user}/tweets.
type HTTPSource struct {
	baseURL  string
	pageSize int
	client   *http.Client
}

var _ twcc.TimelineSource = (*HTTPSource)(nil)

// NewHTTPSource creates a source for the endpoint at baseURL. A nil client
// gets a tuned default with the given timeout.
func NewHTTPSource(baseURL string, pageSize int, timeout time.Duration, client *http.Client) (*HTTPSource, error) {
	u, err := url.Parse(baseURL)
	if err != nil || u.Scheme == "" || u.Host == "" {
		return nil, fmt.Errorf("invalid platform base_url %q", baseURL)
	}
	if client == nil {
		client = NewHTTPClient(timeout)
	}
	return &HTTPSource{
		baseURL:  strings.TrimRight(baseURL, "/"),
		pageSize: pageSize,
		client:   client,
	}, nil
}

// NewHTTPClient returns an http.Client with bounded dial and handshake times.
func NewHTTPClient(timeout time.Duration) *http.Client {
	tr := &http.Transport{
		Proxy:               http.ProxyFromEnvironment,
		DialContext:         (&net.Dialer{Timeout: 5 * time.Second, KeepAlive: 60 * time.Second}).DialContext,
		MaxIdleConns:        16,
		IdleConnTimeout:     90 * time.Second,
		TLSHandshakeTimeout: 5 * time.Second,
	}
	return &http.Client{Timeout: timeout, Transport: tr}
}

// FetchPage requests one page of userID's timeline.
func (s *HTTPSource) FetchPage(ctx context.Context, userID string, cred twcc.Credential, cursor string) (*twcc.RawPage, error) {
	q := url.Values{}
	if s.pageSize > 0 {
		q.Set("limit", strconv.Itoa(s.pageSize))
	}
	if cursor != "" {
		q.Set("cursor", cursor)
	}
	endpoint := fmt.Sprintf("%s/users/%s/tweets", s.baseURL, url.PathEscape(userID))
	if len(q) > 0 {
		endpoint += "?" + q.Encode()
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, endpoint, nil)
	if err != nil {
		return nil, fmt.Errorf("building request: %w", err)
	}
	req.Header.Set("Accept", "application/json")
	if cred.Token != "" {
		req.Header.Set("Authorization", "Bearer "+cred.Token)
	}

	resp, err := s.client.Do(req)
	if err != nil {
		if ctx.Err() != nil {
			return nil, ctx.Err()
		}
		return nil, &twcc.TransientError{Err: fmt.Errorf("requesting page: %w", err)}
	}
	defer resp.Body.Close()

	if err := classifyStatus(resp); err != nil {
		io.Copy(io.Discard, io.LimitReader(resp.Body, 64*1024))
		return nil, err
	}

	body, err := io.ReadAll(io.LimitReader(resp.Body, maxBodyBytes))
	if err != nil {
		return nil, &twcc.TransientError{Err: fmt.Errorf("reading page body: %w", err)}
	}

	var wp wirePage
	if err := json.Unmarshal(body, &wp); err != nil {
		return nil, fmt.Errorf("decoding page: %w", err)
	}
	return &twcc.RawPage{Entries: wp.Data, NextCursor: wp.Meta.NextCursor}, nil
}

// classifyStatus maps an HTTP status onto the source error contract.
func classifyStatus(resp *http.Response) error {
	code := resp.StatusCode
	switch {
	case code >= 200 && code < 300:
		return nil
	case code == http.StatusTooManyRequests:
		return &twcc.RateLimitedError{RetryAfter: parseRetryAfter(resp.Header.Get("Retry-After"), time.Now())}
	case code == http.StatusRequestTimeout || code >= 500:
		return &twcc.TransientError{Err: fmt.Errorf("platform returned %s", resp.Status)}
	case code == http.StatusUnauthorized || code == http.StatusForbidden:
		return fmt.Errorf("platform rejected credential: %s", resp.Status)
	case code == http.StatusNotFound:
		return errors.New("user not found on platform")
	default:
		return fmt.Errorf("platform returned %s", resp.Status)
	}
}

// parseRetryAfter accepts delta-seconds or an HTTP date.
func parseRetryAfter(v string, now time.Time) time.Duration {
	v = strings.TrimSpace(v)
	if v == "" {
		return 0
	}
	if secs, err := strconv.Atoi(v); err == nil {
		if secs < 0 {
			return 0
		}
		return time.Duration(secs) * time.Second
	}
	if t, err := http.ParseTime(v); err == nil {
		if d := t.Sub(now); d > 0 {
			return d
		}
	}
	return 0
}
