package apiclient

import (
	"context"
	"net/http"
	"time"

	"github.com/google/uuid"

	"github.com/aura-webinar/livecore/internal/models"
)

// RecordAccessRequest is the body of POST /streaming-access/{ticketId}/record-access.
// WatchTime is in whole seconds.
type RecordAccessRequest struct {
	WatchTime int64 `json:"watchTime"`
}

type loginRequest struct {
	Email    string `json:"email"`
	Password string `json:"password"`
}

// LoginResponse is the data of POST /auth/login.
type LoginResponse struct {
	Token string            `json:"token"`
	User  models.UserPublic `json:"user"`
}

type ticketList struct {
	Tickets []models.Ticket `json:"tickets"`
}

// StreamingAccess asks the backend for a live capability for ticketID.
func (c *Client) StreamingAccess(ctx context.Context, ticketID uuid.UUID) (models.StreamingAccess, error) {
	var a models.StreamingAccess
	err := c.do(ctx, http.MethodGet, "/streaming-access/"+ticketID.String(), nil, nil, &a, scopeAccess)
	return a, err
}

// CheckAccess returns the backend's access answer for the current identity (or anonymous).
func (c *Client) CheckAccess(ctx context.Context, eventID uuid.UUID) (models.UserAccess, error) {
	var a models.UserAccess
	err := c.do(ctx, http.MethodGet, "/streaming-access/check/"+eventID.String(), nil, nil, &a, scopeDefault)
	return a, err
}

// RecordAccess reports a watch-time increment in whole seconds. The sub-second remainder is
// carried into the next report for the same ticket, so the backend total never exceeds the
// time actually reported.
func (c *Client) RecordAccess(ctx context.Context, ticketID uuid.UUID, watchTime time.Duration) error {
	body := RecordAccessRequest{WatchTime: c.wholeSeconds(ticketID, watchTime)}
	return c.do(ctx, http.MethodPost, "/streaming-access/"+ticketID.String()+"/record-access", nil, body, nil, scopeAccess)
}

// Login exchanges credentials for a token and keeps it for subsequent calls.
func (c *Client) Login(ctx context.Context, email, password string) (LoginResponse, error) {
	var out LoginResponse
	if err := c.do(ctx, http.MethodPost, "/auth/login", nil, loginRequest{Email: email, Password: password}, &out, scopeDefault); err != nil {
		return LoginResponse{}, err
	}
	c.SetToken(out.Token)
	return out, nil
}

func (c *Client) GetEvent(ctx context.Context, eventID uuid.UUID) (models.Event, error) {
	var e models.Event
	err := c.do(ctx, http.MethodGet, "/events/"+eventID.String(), nil, nil, &e, scopeAccess)
	return e, err
}

// ListTickets returns the caller's tickets for eventID.
func (c *Client) ListTickets(ctx context.Context, eventID uuid.UUID) ([]models.Ticket, error) {
	var l ticketList
	err := c.do(ctx, http.MethodGet, "/events/"+eventID.String()+"/tickets", nil, nil, &l, scopeDefault)
	return l.Tickets, err
}

func (c *Client) wholeSeconds(ticketID uuid.UUID, watchTime time.Duration) int64 {
	c.carryMu.Lock()
	defer c.carryMu.Unlock()
	total := c.carry[ticketID] + watchTime
	whole := total.Truncate(time.Second)
	if rest := total - whole; rest > 0 {
		c.carry[ticketID] = rest
	} else {
		delete(c.carry, ticketID)
	}
	return int64(whole / time.Second)
}
