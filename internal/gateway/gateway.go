// Package gateway is the only component that touches the network transport.
// It issues single HTTP calls against the AppVision service base path and
// returns the raw response text; everything above it works on that text.
package gateway

import (
	"context"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"
)

// BasePath is the fixed service prefix every endpoint lives under.
const BasePath = "/AppVisionService"

// SessionHeader carries the session token on every call after login.
const SessionHeader = "AppVisionSessionId"

// StatusError reports a non-2xx response from the peer.
type StatusError struct {
	StatusCode int
	Endpoint   string
	Body       string
}

func (e *StatusError) Error() string {
	return fmt.Sprintf("peer returned status %d on %s", e.StatusCode, e.Endpoint)
}

// IsNotFound reports whether err is a peer 404, which the operation layer
// translates into its "entity does not exist" message.
func IsNotFound(err error) bool {
	se, ok := err.(*StatusError)
	return ok && se.StatusCode == http.StatusNotFound
}

// Client issues raw requests to an AppVision peer. It carries no session
// state; callers pass the peer address and headers on every call.
type Client struct {
	httpClient *http.Client
}

// NewClient creates a gateway client. The HTTP client has no overall timeout
// because poll fetches are expected to long-wait on the peer; per-call
// deadlines come from the caller's context.
func NewClient() *Client {
	return &Client{
		httpClient: &http.Client{
			Transport: &http.Transport{
				MaxIdleConns:    4,
				IdleConnTimeout: 90 * time.Second,
			},
		},
	}
}

// Request performs one HTTP call against peerAddress (host:port) for the
// named endpoint. A non-2xx status is returned as *StatusError. An empty
// response body is a normal outcome and yields ("", nil).
func (c *Client) Request(ctx context.Context, method, peerAddress, endpoint string, query url.Values, headers map[string]string, body string) (string, error) {
	u := url.URL{
		Scheme: "http",
		Host:   peerAddress,
		Path:   BasePath + "/" + endpoint,
	}
	if len(query) > 0 {
		u.RawQuery = query.Encode()
	}

	var reader io.Reader
	if body != "" {
		reader = strings.NewReader(body)
	}

	req, err := http.NewRequestWithContext(ctx, method, u.String(), reader)
	if err != nil {
		return "", fmt.Errorf("building request for %s: %w", endpoint, err)
	}
	if body != "" {
		req.Header.Set("Content-Type", "text/xml; charset=utf-8")
	}
	for k, v := range headers {
		req.Header.Set(k, v)
	}

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return "", fmt.Errorf("calling %s: %w", endpoint, err)
	}
	defer resp.Body.Close()

	raw, err := io.ReadAll(resp.Body)
	if err != nil {
		return "", fmt.Errorf("reading %s response: %w", endpoint, err)
	}

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		return "", &StatusError{StatusCode: resp.StatusCode, Endpoint: endpoint, Body: string(raw)}
	}

	return string(raw), nil
}

// SessionHeaders builds the header map carrying a session token.
func SessionHeaders(sessionID string) map[string]string {
	return map[string]string{SessionHeader: sessionID}
}

// LoginBody builds the XML credentials payload for the Login endpoint. The
// peer validates against its schema, so both namespace declarations must be
// present exactly as written here.
func LoginBody(username, password string) string {
	var b strings.Builder
	b.WriteString(`<Login xmlns:xsi="http://www.w3.org/2001/XMLSchema-instance" xmlns:xsd="http://www.w3.org/2001/XMLSchema">`)
	fmt.Fprintf(&b, "<name>%s</name>", xmlEscape(username))
	fmt.Fprintf(&b, "<value>%s</value>", xmlEscape(password))
	b.WriteString(`</Login>`)
	return b.String()
}

func xmlEscape(s string) string {
	r := strings.NewReplacer(
		"&", "&amp;",
		"<", "&lt;",
		">", "&gt;",
		`"`, "&quot;",
		"'", "&apos;",
	)
	return r.Replace(s)
}
