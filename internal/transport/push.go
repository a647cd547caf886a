package transport

import (
	"bufio"
	"context"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"github.com/cenkalti/backoff/v4"
)

// PushDialer connects the push-only server-sent-events carrier. It retries on
// a constant cadence; SSE servers expect clients to come straight back.
type PushDialer struct {
	url    string
	token  string
	client *http.Client
}

// NewPushDialer creates an SSE dialer for the given http:// or https:// URL.
func NewPushDialer(url, token string) *PushDialer {
	return &PushDialer{
		url:   url,
		token: token,
		// No overall timeout: the response body is a long-lived stream.
		client: &http.Client{},
	}
}

// Name identifies the carrier.
func (d *PushDialer) Name() string { return "push" }

// Backoff returns constant two-second pacing.
func (d *PushDialer) Backoff() backoff.BackOff {
	return backoff.NewConstantBackOff(2 * time.Second)
}

// Dial opens the event stream.
func (d *PushDialer) Dial(ctx context.Context) (Conn, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, d.url, nil)
	if err != nil {
		return nil, err
	}
	req.Header.Set("Accept", "text/event-stream")
	req.Header.Set("Cache-Control", "no-cache")
	if d.token != "" {
		req.Header.Set("Authorization", "Bearer "+d.token)
	}

	resp, err := d.client.Do(req)
	if err != nil {
		return nil, err
	}
	if resp.StatusCode != http.StatusOK {
		resp.Body.Close()
		return nil, fmt.Errorf("event stream returned status %d", resp.StatusCode)
	}

	return &pushConn{
		body:    resp.Body,
		scanner: bufio.NewScanner(resp.Body),
	}, nil
}

type pushConn struct {
	body    io.ReadCloser
	scanner *bufio.Scanner
}

// Read returns the next event payload, joining multi-line data fields and
// ignoring comments and field names other than data.
func (c *pushConn) Read() ([]byte, error) {
	var data []string
	for c.scanner.Scan() {
		line := c.scanner.Text()

		if line == "" {
			// Blank line terminates an event.
			if len(data) > 0 {
				return []byte(strings.Join(data, "\n")), nil
			}
			continue
		}
		if strings.HasPrefix(line, ":") {
			continue
		}
		if value, ok := strings.CutPrefix(line, "data:"); ok {
			data = append(data, strings.TrimPrefix(value, " "))
		}
	}

	if err := c.scanner.Err(); err != nil {
		return nil, err
	}
	return nil, io.EOF
}

func (c *pushConn) Close() error {
	return c.body.Close()
}
