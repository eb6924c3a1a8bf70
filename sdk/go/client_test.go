package ticketlinesdk

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestClientSendsAuthAndBody(t *testing.T) {
	var gotPath, gotKey string
	var gotBody map[string]any
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		gotPath = r.Method + " " + r.URL.RequestURI()
		gotKey = r.Header.Get("X-Api-Key")
		data, _ := io.ReadAll(r.Body)
		_ = json.Unmarshal(data, &gotBody)
		w.Header().Set("Content-Type", "application/json")
		_, _ = w.Write([]byte(`{"id":4,"client":"alice","title":"Logo","payment_amount":"100","status":"assigned","freelancer":"bob"}`))
	}))
	defer srv.Close()

	c := New(srv.URL)
	c.APIKey = "tl_key"
	tk, err := c.AssignTicket(context.Background(), 4, "bob")
	require.NoError(t, err)
	assert.Equal(t, "POST /v1/tickets/4/assign", gotPath)
	assert.Equal(t, "tl_key", gotKey)
	assert.Equal(t, "bob", gotBody["freelancer"])
	assert.Equal(t, "assigned", tk.Status)
	require.NotNil(t, tk.Freelancer)
	assert.Equal(t, "bob", *tk.Freelancer)
}

func TestClientBuildsQueries(t *testing.T) {
	var got []string
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		got = append(got, r.URL.RequestURI())
		switch r.URL.Path {
		case "/v1/users/bob/tickets":
			_, _ = w.Write([]byte(`{"actor_id":"bob","role":"freelancer","ticket_ids":[2,5]}`))
		default:
			_, _ = w.Write([]byte(`{"items":[],"next_cursor":""}`))
		}
	}))
	defer srv.Close()

	c := New(srv.URL)
	ctx := context.Background()
	ids, err := c.TicketsFor(ctx, "bob", "freelancer")
	require.NoError(t, err)
	assert.Equal(t, []uint64{2, 5}, ids)
	_, err = c.ListTickets(ctx, "open", "alice", 10, "7")
	require.NoError(t, err)
	_, err = c.EventsPage(ctx, 5, "")
	require.NoError(t, err)

	assert.Equal(t, []string{
		"/v1/users/bob/tickets?role=freelancer",
		"/v1/tickets?client=alice&cursor=7&limit=10&status=open",
		"/v1/events?limit=5",
	}, got)
}

func TestClientCreateTicketFormatsDeadline(t *testing.T) {
	var body map[string]any
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "Bearer tok", r.Header.Get("Authorization"))
		data, _ := io.ReadAll(r.Body)
		_ = json.Unmarshal(data, &body)
		w.WriteHeader(http.StatusCreated)
		_, _ = w.Write([]byte(`{"id":1,"status":"open","payment_amount":"1000"}`))
	}))
	defer srv.Close()

	c := New(srv.URL)
	c.BearerToken = "tok"
	deadline := time.Date(2026, 5, 1, 10, 0, 0, 0, time.FixedZone("x", 3600))
	tk, err := c.CreateTicket(context.Background(), "Web Dev", "", "1000", deadline)
	require.NoError(t, err)
	assert.Equal(t, uint64(1), tk.ID)
	assert.Equal(t, "2026-05-01T09:00:00Z", body["deadline"])
	assert.Equal(t, "1000", body["payment_amount"])
}

func TestClientDecodesErrorEnvelope(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusConflict)
		_, _ = w.Write([]byte(`{"error":{"code":"invalid_state","message":"approve_work ticket 1: not submitted"}}`))
	}))
	defer srv.Close()

	_, err := New(srv.URL).ApproveWork(context.Background(), 1)
	var apiErr *APIError
	require.True(t, errors.As(err, &apiErr))
	assert.Equal(t, http.StatusConflict, apiErr.StatusCode)
	assert.Equal(t, "invalid_state", apiErr.Code)
	assert.Contains(t, apiErr.Error(), "not submitted")
}
