// Package negotiation implements the client side of the room exchange: an
// initiator creates a room and deposits an offer, a responder deposits an
// answer, and each side polls for the other's document with capped
// exponential backoff until the exchange completes or the room's lifetime
// runs out.
package negotiation

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"strings"
	"time"
)

const (
	// DefaultPollBaseInterval is the first wait between polls; each miss
	// doubles the wait up to DefaultPollMaxInterval. The ceiling keeps a full
	// poll loop well inside the per-source request budget.
	DefaultPollBaseInterval = 500 * time.Millisecond
	DefaultPollMaxInterval  = 2 * time.Second

	// deadlineSlack pads the poll deadline derived from the room's remaining
	// lifetime, so a document published just before expiry is still picked up.
	deadlineSlack = 2 * time.Second
)

var (
	// ErrLinkExpired reports that the room is gone: its lifetime elapsed (or
	// the token was never valid; the relay deliberately does not distinguish
	// the two).
	ErrLinkExpired = errors.New("negotiation: link expired or invalid")

	// ErrRoomOccupied reports a publish that lost the exactly-once race: the
	// slot was already taken, or the offer had not been deposited yet.
	ErrRoomOccupied = errors.New("negotiation: room slot already taken")

	// ErrNotAvailable reports a one-shot read of a document that has not been
	// published yet. The Wait methods absorb this by polling.
	ErrNotAvailable = errors.New("negotiation: document not yet available")

	errRateLimited = errors.New("negotiation: rate limited")
)

// Room describes a freshly created room.
type Room struct {
	Token         string
	JoinReference string
	TTL           time.Duration
}

// RoomStatus mirrors the relay's status report.
type RoomStatus struct {
	State     string
	ExpiresIn time.Duration
}

// Client talks to a relay's room surface. The zero value is not usable; set
// BaseURL at minimum.
type Client struct {
	// BaseURL is the relay's root, e.g. "https://relay.example.com".
	BaseURL string

	// HTTPClient defaults to http.DefaultClient.
	HTTPClient *http.Client

	// PollBaseInterval and PollMaxInterval tune the backoff of the Wait
	// methods. Zero values take the defaults.
	PollBaseInterval time.Duration
	PollMaxInterval  time.Duration

	Log *slog.Logger
}

func (c *Client) httpClient() *http.Client {
	if c.HTTPClient != nil {
		return c.HTTPClient
	}
	return http.DefaultClient
}

func (c *Client) log() *slog.Logger {
	if c.Log != nil {
		return c.Log
	}
	return slog.Default()
}

func (c *Client) pollIntervals() (base, max time.Duration) {
	base, max = c.PollBaseInterval, c.PollMaxInterval
	if base <= 0 {
		base = DefaultPollBaseInterval
	}
	if max <= 0 {
		max = DefaultPollMaxInterval
	}
	if max < base {
		max = base
	}
	return base, max
}

func (c *Client) url(path string) string {
	return strings.TrimRight(c.BaseURL, "/") + path
}

// TokenFromJoinReference extracts the room token from a shareable join link.
func TokenFromJoinReference(ref string) (string, error) {
	i := strings.LastIndex(ref, "/join/")
	if i < 0 {
		return "", fmt.Errorf("not a join reference: %q", ref)
	}
	token := ref[i+len("/join/"):]
	if token == "" || strings.ContainsAny(token, "/?#") {
		return "", fmt.Errorf("not a join reference: %q", ref)
	}
	return token, nil
}

// CreateRoom allocates a fresh room on the relay.
func (c *Client) CreateRoom(ctx context.Context) (Room, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.url("/rooms"), nil)
	if err != nil {
		return Room{}, err
	}
	resp, err := c.httpClient().Do(req)
	if err != nil {
		return Room{}, err
	}
	defer drain(resp)

	if resp.StatusCode != http.StatusCreated {
		return Room{}, statusError("create room", resp)
	}

	var body struct {
		Token         string `json:"token"`
		JoinReference string `json:"joinReference"`
		TTLSeconds    int64  `json:"ttlSeconds"`
	}
	if err := json.NewDecoder(resp.Body).Decode(&body); err != nil {
		return Room{}, fmt.Errorf("decode create room response: %w", err)
	}
	return Room{
		Token:         body.Token,
		JoinReference: body.JoinReference,
		TTL:           time.Duration(body.TTLSeconds) * time.Second,
	}, nil
}

// PublishOffer deposits the initiator's descriptor. Legal exactly once per
// room; a second attempt fails with ErrRoomOccupied.
func (c *Client) PublishOffer(ctx context.Context, token, sdp string) error {
	return c.publish(ctx, token, "offer", sdp)
}

// PublishAnswer deposits the responder's descriptor. Fails with
// ErrRoomOccupied both when an answer already exists and when no offer has
// been deposited yet.
func (c *Client) PublishAnswer(ctx context.Context, token, sdp string) error {
	return c.publish(ctx, token, "answer", sdp)
}

func (c *Client) publish(ctx context.Context, token, kind, sdp string) error {
	payload, err := json.Marshal(struct {
		SDP string `json:"sdp"`
	}{SDP: sdp})
	if err != nil {
		return err
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPut,
		c.url("/rooms/"+token+"/"+kind), bytes.NewReader(payload))
	if err != nil {
		return err
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := c.httpClient().Do(req)
	if err != nil {
		return err
	}
	defer drain(resp)

	switch resp.StatusCode {
	case http.StatusNoContent:
		return nil
	case http.StatusNotFound:
		return ErrLinkExpired
	case http.StatusConflict:
		return ErrRoomOccupied
	default:
		return statusError("publish "+kind, resp)
	}
}

// ReadOffer fetches the offer once, without polling.
func (c *Client) ReadOffer(ctx context.Context, token string) (string, error) {
	return c.read(ctx, token, "offer")
}

// ReadAnswer fetches the answer once, without polling.
func (c *Client) ReadAnswer(ctx context.Context, token string) (string, error) {
	return c.read(ctx, token, "answer")
}

func (c *Client) read(ctx context.Context, token, kind string) (string, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet,
		c.url("/rooms/"+token+"/"+kind), nil)
	if err != nil {
		return "", err
	}
	resp, err := c.httpClient().Do(req)
	if err != nil {
		return "", err
	}
	defer drain(resp)

	switch resp.StatusCode {
	case http.StatusOK:
		var body struct {
			SDP string `json:"sdp"`
		}
		if err := json.NewDecoder(resp.Body).Decode(&body); err != nil {
			return "", fmt.Errorf("decode %s response: %w", kind, err)
		}
		return body.SDP, nil
	case http.StatusNotFound:
		// Pending and gone look identical on this endpoint; Status
		// disambiguates.
		return "", ErrNotAvailable
	case http.StatusTooManyRequests:
		return "", errRateLimited
	default:
		return "", statusError("read "+kind, resp)
	}
}

// Status reports the room's state and remaining lifetime, or ErrLinkExpired.
func (c *Client) Status(ctx context.Context, token string) (RoomStatus, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet,
		c.url("/rooms/"+token+"/status"), nil)
	if err != nil {
		return RoomStatus{}, err
	}
	resp, err := c.httpClient().Do(req)
	if err != nil {
		return RoomStatus{}, err
	}
	defer drain(resp)

	switch resp.StatusCode {
	case http.StatusOK:
		var body struct {
			State        string `json:"state"`
			ExpiresInSec int64  `json:"expiresInSec"`
		}
		if err := json.NewDecoder(resp.Body).Decode(&body); err != nil {
			return RoomStatus{}, fmt.Errorf("decode status response: %w", err)
		}
		return RoomStatus{
			State:     body.State,
			ExpiresIn: time.Duration(body.ExpiresInSec) * time.Second,
		}, nil
	case http.StatusNotFound:
		return RoomStatus{}, ErrLinkExpired
	case http.StatusTooManyRequests:
		return RoomStatus{}, errRateLimited
	default:
		return RoomStatus{}, statusError("room status", resp)
	}
}

// WaitForOffer polls until the initiator's offer is available. Used by the
// responder, who may follow the join link before the offer is deposited.
func (c *Client) WaitForOffer(ctx context.Context, token string) (string, error) {
	return c.waitFor(ctx, token, "offer", c.ReadOffer)
}

// WaitForAnswer polls until a responder's answer is available.
func (c *Client) WaitForAnswer(ctx context.Context, token string) (string, error) {
	return c.waitFor(ctx, token, "answer", c.ReadAnswer)
}

// waitFor is the shared poll loop: read, and on a miss sleep with doubling
// backoff up to the ceiling. The loop is bounded by the room's remaining
// lifetime (learned from Status up front), so a vanished peer turns into
// ErrLinkExpired rather than polling forever. Rate-limit responses are
// retried like misses; any other failure aborts immediately.
func (c *Client) waitFor(ctx context.Context, token, kind string,
	read func(context.Context, string) (string, error)) (string, error) {

	st, err := c.Status(ctx, token)
	if err != nil && !errors.Is(err, errRateLimited) {
		return "", err
	}
	deadline := time.Now().Add(st.ExpiresIn + deadlineSlack)
	if err != nil {
		// Rate limited before the first read; fall back to the full lifetime.
		deadline = time.Now().Add(2*time.Minute + deadlineSlack)
	}

	base, max := c.pollIntervals()
	interval := base
	for {
		sdp, err := read(ctx, token)
		switch {
		case err == nil:
			return sdp, nil
		case errors.Is(err, ErrNotAvailable), errors.Is(err, errRateLimited):
			// Keep polling.
		default:
			return "", err
		}

		if time.Now().Add(interval).After(deadline) {
			return "", ErrLinkExpired
		}
		c.log().Debug("document not ready, backing off",
			"kind", kind, "interval", interval)

		timer := time.NewTimer(interval)
		select {
		case <-ctx.Done():
			timer.Stop()
			return "", ctx.Err()
		case <-timer.C:
		}
		if interval *= 2; interval > max {
			interval = max
		}
	}
}

func statusError(op string, resp *http.Response) error {
	var e struct {
		Code    string `json:"code"`
		Message string `json:"message"`
	}
	if err := json.NewDecoder(resp.Body).Decode(&e); err == nil && e.Code != "" {
		return fmt.Errorf("%s: %s (%s)", op, e.Code, e.Message)
	}
	return fmt.Errorf("%s: unexpected status %d", op, resp.StatusCode)
}

// drain discards the remaining body so the connection can be reused.
func drain(resp *http.Response) {
	_, _ = io.Copy(io.Discard, io.LimitReader(resp.Body, 4096))
	resp.Body.Close()
}
