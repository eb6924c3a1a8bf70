package ticketlinesdk

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

// Client is a minimal Ticketline HTTP API client.
type Client struct {
	BaseURL     string
	BasePath    string
	APIKey      string
	BearerToken string
	HTTPClient  *http.Client
	Timeout     time.Duration
}

// New creates a client with sane defaults.
func New(baseURL string) *Client {
	return &Client{
		BaseURL:  baseURL,
		BasePath: "/v1",
		Timeout:  10 * time.Second,
	}
}

type Dispute struct {
	Reason      string  `json:"reason"`
	RaisedBy    string  `json:"raised_by"`
	RaisedAt    string  `json:"raised_at"`
	PriorStatus string  `json:"prior_status"`
	Resolution  *int    `json:"resolution,omitempty"`
	Winner      *string `json:"winner,omitempty"`
	ResolvedBy  *string `json:"resolved_by,omitempty"`
	ResolvedAt  *string `json:"resolved_at,omitempty"`
	Note        string  `json:"note,omitempty"`
}

// Ticket represents the API ticket model. PaymentAmount is a base-10 string.
type Ticket struct {
	ID              uint64   `json:"id"`
	Client          string   `json:"client"`
	Freelancer      *string  `json:"freelancer,omitempty"`
	Title           string   `json:"title"`
	Description     string   `json:"description,omitempty"`
	PaymentAmount   string   `json:"payment_amount"`
	Deadline        string   `json:"deadline"`
	Status          string   `json:"status"`
	SubmissionURI   *string  `json:"submission_uri,omitempty"`
	RejectionReason *string  `json:"rejection_reason,omitempty"`
	Dispute         *Dispute `json:"dispute,omitempty"`
}

type Escrow struct {
	TicketID    uint64  `json:"ticket_id"`
	Amount      string  `json:"amount"`
	Balance     string  `json:"balance"`
	Status      string  `json:"status"`
	Beneficiary *string `json:"beneficiary,omitempty"`
}

// Event represents a log entry.
type Event struct {
	ID         int64          `json:"id"`
	TS         string         `json:"ts"`
	Type       string         `json:"type"`
	EntityID   string         `json:"entity_id"`
	EntityKind string         `json:"entity_kind"`
	ActorID    string         `json:"actor_id"`
	Payload    map[string]any `json:"payload"`
}

// APIError wraps non-2xx responses.
type APIError struct {
	StatusCode int
	Code       string
	Message    string
	Body       string
}

func (e *APIError) Error() string {
	if e.Code != "" {
		return fmt.Sprintf("api error: status=%d code=%s message=%s", e.StatusCode, e.Code, e.Message)
	}
	return fmt.Sprintf("api error: status=%d body=%s", e.StatusCode, e.Body)
}

// PaginatedEvents wraps list responses with cursors.
type PaginatedEvents struct {
	Items      []Event `json:"items"`
	NextCursor string  `json:"next_cursor"`
}

type PaginatedTickets struct {
	Items      []Ticket `json:"items"`
	NextCursor string   `json:"next_cursor"`
}

// CreateTicket opens a ticket. amount is a base-10 integer string.
func (c *Client) CreateTicket(ctx context.Context, title, description, amount string, deadline time.Time) (Ticket, error) {
	body := map[string]any{
		"title":          title,
		"description":    description,
		"payment_amount": amount,
		"deadline":       deadline.UTC().Format(time.RFC3339),
	}
	var resp Ticket
	err := c.do(ctx, http.MethodPost, "tickets", body, &resp)
	return resp, err
}

func (c *Client) GetTicket(ctx context.Context, id uint64) (Ticket, error) {
	var resp Ticket
	err := c.do(ctx, http.MethodGet, fmt.Sprintf("tickets/%d", id), nil, &resp)
	return resp, err
}

// ListTickets filters by status and client; empty values match everything.
func (c *Client) ListTickets(ctx context.Context, status, client string, limit int, cursor string) (PaginatedTickets, error) {
	q := url.Values{}
	if status != "" {
		q.Set("status", status)
	}
	if client != "" {
		q.Set("client", client)
	}
	if limit > 0 {
		q.Set("limit", fmt.Sprint(limit))
	}
	if cursor != "" {
		q.Set("cursor", cursor)
	}
	var resp PaginatedTickets
	err := c.do(ctx, http.MethodGet, withQuery("tickets", q), nil, &resp)
	return resp, err
}

func (c *Client) AssignTicket(ctx context.Context, id uint64, freelancer string) (Ticket, error) {
	return c.action(ctx, id, "assign", map[string]any{"freelancer": freelancer})
}

func (c *Client) StartWork(ctx context.Context, id uint64) (Ticket, error) {
	return c.action(ctx, id, "start", nil)
}

func (c *Client) SubmitWork(ctx context.Context, id uint64, uri string) (Ticket, error) {
	return c.action(ctx, id, "submit", map[string]any{"submission_uri": uri})
}

func (c *Client) ApproveWork(ctx context.Context, id uint64) (Ticket, error) {
	return c.action(ctx, id, "approve", nil)
}

func (c *Client) RejectWork(ctx context.Context, id uint64, reason string) (Ticket, error) {
	return c.action(ctx, id, "reject", map[string]any{"reason": reason})
}

func (c *Client) DisputeTicket(ctx context.Context, id uint64, reason string) (Ticket, error) {
	return c.action(ctx, id, "dispute", map[string]any{"reason": reason})
}

// ResolveDispute settles a dispute: 0 favors the client, 1 the freelancer.
func (c *Client) ResolveDispute(ctx context.Context, id uint64, resolution int, note string) (Ticket, error) {
	return c.action(ctx, id, "resolve", map[string]any{"resolution": resolution, "note": note})
}

func (c *Client) CancelTicket(ctx context.Context, id uint64) (Ticket, error) {
	return c.action(ctx, id, "cancel", nil)
}

func (c *Client) WithdrawPayment(ctx context.Context, id uint64) (Escrow, error) {
	var resp Escrow
	err := c.do(ctx, http.MethodPost, fmt.Sprintf("tickets/%d/withdraw", id), nil, &resp)
	return resp, err
}

func (c *Client) GetEscrow(ctx context.Context, id uint64) (Escrow, error) {
	var resp Escrow
	err := c.do(ctx, http.MethodGet, fmt.Sprintf("tickets/%d/escrow", id), nil, &resp)
	return resp, err
}

// TicketsFor returns ticket ids for a user in the client or freelancer role.
func (c *Client) TicketsFor(ctx context.Context, user, role string) ([]uint64, error) {
	var resp struct {
		TicketIDs []uint64 `json:"ticket_ids"`
	}
	endpoint := withQuery(fmt.Sprintf("users/%s/tickets", url.PathEscape(user)), url.Values{"role": {role}})
	err := c.do(ctx, http.MethodGet, endpoint, nil, &resp)
	return resp.TicketIDs, err
}

// Events returns recent events.
func (c *Client) Events(ctx context.Context, limit int) ([]Event, error) {
	page, err := c.EventsPage(ctx, limit, "")
	return page.Items, err
}

// EventsPage returns a paginated event listing.
func (c *Client) EventsPage(ctx context.Context, limit int, cursor string) (PaginatedEvents, error) {
	q := url.Values{}
	if limit > 0 {
		q.Set("limit", fmt.Sprint(limit))
	}
	if cursor != "" {
		q.Set("cursor", cursor)
	}
	var resp PaginatedEvents
	err := c.do(ctx, http.MethodGet, withQuery("events", q), nil, &resp)
	return resp, err
}

func (c *Client) action(ctx context.Context, id uint64, name string, body any) (Ticket, error) {
	var resp Ticket
	err := c.do(ctx, http.MethodPost, fmt.Sprintf("tickets/%d/%s", id, name), body, &resp)
	return resp, err
}

func (c *Client) do(ctx context.Context, method, endpoint string, body any, out any) error {
	if c.HTTPClient == nil {
		c.HTTPClient = &http.Client{Timeout: c.Timeout}
	}
	url := c.base() + "/" + strings.TrimLeft(endpoint, "/")
	var reader io.Reader
	if body != nil {
		var buf bytes.Buffer
		if err := json.NewEncoder(&buf).Encode(body); err != nil {
			return err
		}
		reader = &buf
	}
	req, err := http.NewRequestWithContext(ctx, method, url, reader)
	if err != nil {
		return err
	}
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	switch {
	case c.BearerToken != "":
		req.Header.Set("Authorization", "Bearer "+c.BearerToken)
	case c.APIKey != "":
		req.Header.Set("X-Api-Key", c.APIKey)
	}
	resp, err := c.HTTPClient.Do(req)
	if err != nil {
		return err
	}
	defer resp.Body.Close()
	if resp.StatusCode >= 300 {
		b, _ := io.ReadAll(resp.Body)
		apiErr := &APIError{StatusCode: resp.StatusCode, Body: string(b)}
		var env struct {
			Error struct {
				Code    string `json:"code"`
				Message string `json:"message"`
			} `json:"error"`
		}
		if json.Unmarshal(b, &env) == nil {
			apiErr.Code = env.Error.Code
			apiErr.Message = env.Error.Message
		}
		return apiErr
	}
	if out != nil {
		return json.NewDecoder(resp.Body).Decode(out)
	}
	return nil
}

func withQuery(endpoint string, q url.Values) string {
	if len(q) == 0 {
		return endpoint
	}
	return endpoint + "?" + q.Encode()
}

func (c *Client) base() string {
	base := strings.TrimRight(c.BaseURL, "/")
	if p := strings.Trim(c.BasePath, "/"); p != "" {
		base += "/" + p
	}
	return base
}
