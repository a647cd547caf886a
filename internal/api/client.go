// Package api implements the HTTP client for the ops-center API: streamed
// and buffered exchanges, approval decisions, and session history.
//
// The streamed exchange wire format is newline-delimited JSON, one event
// object per line. Partial lines are buffered across reads; a malformed line
// is skipped, never fatal to the stream.
package api

import (
	"bufio"
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"github.com/opsdeck/opsdeck/internal/domain"
	"github.com/opsdeck/opsdeck/internal/logging"
)

// maxEventBytes bounds a single stream line. Events are small; anything near
// this size is malformed.
const maxEventBytes = 1 << 20

// ClientConfig configures the API client.
type ClientConfig struct {
	BaseURL string
	Token   string
	Timeout time.Duration
}

// Client talks to the ops-center API over HTTP.
type Client struct {
	baseURL string
	token   string
	client  *http.Client
	log     *logging.Logger
}

// NewClient creates an API client for the given server.
func NewClient(cfg ClientConfig, log *logging.Logger) *Client {
	timeout := cfg.Timeout
	if timeout == 0 {
		timeout = 120 * time.Second
	}
	return &Client{
		baseURL: strings.TrimRight(cfg.BaseURL, "/"),
		token:   cfg.Token,
		client:  &http.Client{Timeout: timeout},
		log:     log.Sub("api"),
	}
}

// ExchangeRequest is the outgoing payload opening one exchange.
type ExchangeRequest struct {
	Message   string         `json:"message"`
	SessionID string         `json:"session_id,omitempty"`
	Provider  string         `json:"provider,omitempty"`
	Model     string         `json:"model,omitempty"`
	Context   map[string]any `json:"context,omitempty"`
	Stream    bool           `json:"stream"`
}

// ExchangeResult is the buffered-mode exchange response.
type ExchangeResult struct {
	SessionID string         `json:"session_id"`
	Message   string         `json:"message"`
	Metadata  map[string]any `json:"metadata,omitempty"`
}

// DecisionRequest submits a human decision on a pending proposal.
type DecisionRequest struct {
	ProposalID string         `json:"proposal_id"`
	Approved   bool           `json:"approved"`
	Payload    map[string]any `json:"payload,omitempty"`
}

// DecisionResult is the approval executor's report.
type DecisionResult struct {
	Status          string `json:"status"`
	ExecutionStatus string `json:"execution_status,omitempty"`
	Message         string `json:"message,omitempty"`
	Reason          string `json:"reason,omitempty"`
}

// EffectiveStatus returns the execution status, falling back to the
// top-level status when the executor reported no separate one.
func (r *DecisionResult) EffectiveStatus() string {
	if r.ExecutionStatus != "" {
		return r.ExecutionStatus
	}
	return r.Status
}

// OpenExchange opens a streamed exchange and returns a channel of events.
// The channel is closed when the server ends the stream or the context is
// canceled. Undecodable lines are logged and skipped.
func (c *Client) OpenExchange(ctx context.Context, req ExchangeRequest) (<-chan ExchangeEvent, error) {
	req.Stream = true
	resp, err := c.post(ctx, "/api/chat/stream", req)
	if err != nil {
		return nil, err
	}

	events := make(chan ExchangeEvent)
	go c.readEvents(resp.Body, events)
	return events, nil
}

// Exchange runs a buffered (non-streaming) exchange.
func (c *Client) Exchange(ctx context.Context, req ExchangeRequest) (*ExchangeResult, error) {
	req.Stream = false
	resp, err := c.post(ctx, "/api/chat", req)
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()

	var result ExchangeResult
	if err := json.NewDecoder(resp.Body).Decode(&result); err != nil {
		return nil, fmt.Errorf("parsing exchange response: %w", err)
	}
	return &result, nil
}

// SubmitDecision submits an approval decision and returns the executor's
// report.
func (c *Client) SubmitDecision(ctx context.Context, req DecisionRequest) (*DecisionResult, error) {
	resp, err := c.post(ctx, "/api/approvals/decide", req)
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()

	var result DecisionResult
	if err := json.NewDecoder(resp.Body).Decode(&result); err != nil {
		return nil, fmt.Errorf("parsing decision response: %w", err)
	}
	return &result, nil
}

// History returns the ordered message list for a session.
func (c *Client) History(ctx context.Context, sessionID string) ([]domain.ConversationMessage, error) {
	var payload struct {
		Messages []wireMessage `json:"messages"`
	}
	if err := c.get(ctx, "/api/sessions/"+sessionID+"/messages", &payload); err != nil {
		return nil, err
	}

	msgs := make([]domain.ConversationMessage, 0, len(payload.Messages))
	for _, m := range payload.Messages {
		msgs = append(msgs, m.toDomain())
	}
	return msgs, nil
}

// Sessions returns summaries of past sessions for history browsing.
func (c *Client) Sessions(ctx context.Context) ([]domain.ConversationSession, error) {
	var payload struct {
		Sessions []struct {
			ID        string    `json:"id"`
			Title     string    `json:"title"`
			CreatedAt time.Time `json:"created_at"`
			UpdatedAt time.Time `json:"updated_at"`
		} `json:"sessions"`
	}
	if err := c.get(ctx, "/api/sessions", &payload); err != nil {
		return nil, err
	}

	sessions := make([]domain.ConversationSession, 0, len(payload.Sessions))
	for _, s := range payload.Sessions {
		sessions = append(sessions, domain.ConversationSession{
			ID:        s.ID,
			Title:     s.Title,
			CreatedAt: s.CreatedAt,
			UpdatedAt: s.UpdatedAt,
		})
	}
	return sessions, nil
}

// readEvents decodes newline-delimited JSON events until the stream ends.
func (c *Client) readEvents(body io.ReadCloser, events chan<- ExchangeEvent) {
	defer close(events)
	defer body.Close()

	scanner := bufio.NewScanner(body)
	scanner.Buffer(make([]byte, 0, 64*1024), maxEventBytes)

	for scanner.Scan() {
		line := bytes.TrimSpace(scanner.Bytes())
		if len(line) == 0 {
			continue
		}

		ev, err := DecodeEvent(line)
		if err != nil {
			c.log.Warn().Err(err).Str("line", truncate(string(line), 200)).Msg("skipping undecodable event")
			continue
		}
		events <- ev
	}

	if err := scanner.Err(); err != nil {
		c.log.Warn().Err(err).Msg("exchange stream ended abnormally")
	}
}

func (c *Client) post(ctx context.Context, path string, body any) (*http.Response, error) {
	payload, err := json.Marshal(body)
	if err != nil {
		return nil, fmt.Errorf("marshaling request: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+path, bytes.NewReader(payload))
	if err != nil {
		return nil, fmt.Errorf("creating request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")
	c.authorize(req)

	resp, err := c.client.Do(req)
	if err != nil {
		return nil, fmt.Errorf("request failed: %w", err)
	}
	if resp.StatusCode != http.StatusOK {
		defer resp.Body.Close()
		data, _ := io.ReadAll(resp.Body)
		return nil, fmt.Errorf("API error (%d): %s", resp.StatusCode, strings.TrimSpace(string(data)))
	}
	return resp, nil
}

func (c *Client) get(ctx context.Context, path string, out any) error {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.baseURL+path, nil)
	if err != nil {
		return fmt.Errorf("creating request: %w", err)
	}
	c.authorize(req)

	resp, err := c.client.Do(req)
	if err != nil {
		return fmt.Errorf("request failed: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		data, _ := io.ReadAll(resp.Body)
		return fmt.Errorf("API error (%d): %s", resp.StatusCode, strings.TrimSpace(string(data)))
	}

	if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
		return fmt.Errorf("parsing response: %w", err)
	}
	return nil
}

func (c *Client) authorize(req *http.Request) {
	if c.token != "" {
		req.Header.Set("Authorization", "Bearer "+c.token)
	}
}

// wireMessage is the server's message shape.
type wireMessage struct {
	ID        string         `json:"id"`
	Content   string         `json:"content"`
	Sender    string         `json:"sender"`
	CreatedAt time.Time      `json:"created_at"`
	Metadata  map[string]any `json:"metadata,omitempty"`
}

func (m wireMessage) toDomain() domain.ConversationMessage {
	return domain.ConversationMessage{
		ID:        m.ID,
		Content:   m.Content,
		Sender:    domain.Sender(m.Sender),
		CreatedAt: m.CreatedAt,
		Metadata:  m.Metadata,
	}
}

func truncate(s string, n int) string {
	if len(s) <= n {
		return s
	}
	return s[:n] + "…"
}
