package negotiation

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"net/http/httptest"
	"sync/atomic"
	"testing"
	"time"

	"github.com/pairlink/pairlink/internal/metrics"
	"github.com/pairlink/pairlink/internal/room"
	"github.com/pairlink/pairlink/internal/signaling"
)

func newTestRelay(t *testing.T) (*Client, *httptest.Server) {
	t.Helper()
	store := room.NewStore(room.Config{TTL: 120 * time.Second}, metrics.New(), nil)
	ts := httptest.NewServer(signaling.NewServer(signaling.Config{Rooms: store}).Handler())
	t.Cleanup(ts.Close)

	c := &Client{
		BaseURL:          ts.URL,
		PollBaseInterval: 10 * time.Millisecond,
		PollMaxInterval:  40 * time.Millisecond,
	}
	return c, ts
}

func TestCreateRoom(t *testing.T) {
	c, ts := newTestRelay(t)

	r, err := c.CreateRoom(context.Background())
	if err != nil {
		t.Fatalf("CreateRoom: %v", err)
	}
	if len(r.Token) != 32 {
		t.Fatalf("token=%q, want 32 hex chars", r.Token)
	}
	if r.TTL != 120*time.Second {
		t.Fatalf("ttl=%v, want 120s", r.TTL)
	}
	if want := ts.URL + "/join/" + r.Token; r.JoinReference != want {
		t.Fatalf("joinReference=%q, want %q", r.JoinReference, want)
	}
}

func TestPublishOfferExactlyOnce(t *testing.T) {
	c, _ := newTestRelay(t)
	ctx := context.Background()

	r, err := c.CreateRoom(ctx)
	if err != nil {
		t.Fatalf("CreateRoom: %v", err)
	}
	if err := c.PublishOffer(ctx, r.Token, "v=0...offer"); err != nil {
		t.Fatalf("PublishOffer: %v", err)
	}
	if err := c.PublishOffer(ctx, r.Token, "v=0...again"); !errors.Is(err, ErrRoomOccupied) {
		t.Fatalf("second PublishOffer err=%v, want ErrRoomOccupied", err)
	}
}

func TestPublishAnswerBeforeOffer(t *testing.T) {
	c, _ := newTestRelay(t)
	ctx := context.Background()

	r, err := c.CreateRoom(ctx)
	if err != nil {
		t.Fatalf("CreateRoom: %v", err)
	}
	if err := c.PublishAnswer(ctx, r.Token, "v=0...ans"); !errors.Is(err, ErrRoomOccupied) {
		t.Fatalf("PublishAnswer err=%v, want ErrRoomOccupied", err)
	}
}

func TestUnknownTokenIsLinkExpired(t *testing.T) {
	c, _ := newTestRelay(t)
	ctx := context.Background()
	const token = "ffffffffffffffffffffffffffffffff"

	if err := c.PublishOffer(ctx, token, "x"); !errors.Is(err, ErrLinkExpired) {
		t.Fatalf("PublishOffer err=%v, want ErrLinkExpired", err)
	}
	if _, err := c.Status(ctx, token); !errors.Is(err, ErrLinkExpired) {
		t.Fatalf("Status err=%v, want ErrLinkExpired", err)
	}
	if _, err := c.WaitForOffer(ctx, token); !errors.Is(err, ErrLinkExpired) {
		t.Fatalf("WaitForOffer err=%v, want ErrLinkExpired", err)
	}
}

// A responder that starts polling before the offer exists picks it up once it
// is deposited.
func TestWaitForOfferPicksUpLatePublish(t *testing.T) {
	c, _ := newTestRelay(t)
	ctx := context.Background()

	r, err := c.CreateRoom(ctx)
	if err != nil {
		t.Fatalf("CreateRoom: %v", err)
	}

	go func() {
		time.Sleep(60 * time.Millisecond)
		_ = c.PublishOffer(context.Background(), r.Token, "v=0...late-offer")
	}()

	got, err := c.WaitForOffer(ctx, r.Token)
	if err != nil {
		t.Fatalf("WaitForOffer: %v", err)
	}
	if got != "v=0...late-offer" {
		t.Fatalf("offer=%q, want the published document", got)
	}
}

func TestWaitRetriesThroughRateLimiting(t *testing.T) {
	var reads atomic.Int64
	mux := http.NewServeMux()
	mux.HandleFunc("GET /rooms/{token}/status", func(w http.ResponseWriter, r *http.Request) {
		fmt.Fprint(w, `{"state":"offer_set","expiresInSec":120}`)
	})
	mux.HandleFunc("GET /rooms/{token}/answer", func(w http.ResponseWriter, r *http.Request) {
		if reads.Add(1) < 3 {
			w.WriteHeader(http.StatusTooManyRequests)
			return
		}
		fmt.Fprint(w, `{"sdp":"v=0...ans"}`)
	})
	ts := httptest.NewServer(mux)
	defer ts.Close()

	c := &Client{BaseURL: ts.URL, PollBaseInterval: 5 * time.Millisecond, PollMaxInterval: 10 * time.Millisecond}
	got, err := c.WaitForAnswer(context.Background(), "tok")
	if err != nil {
		t.Fatalf("WaitForAnswer: %v", err)
	}
	if got != "v=0...ans" || reads.Load() != 3 {
		t.Fatalf("got=%q after %d reads, want success on third read", got, reads.Load())
	}
}

func TestWaitAbortsOnServerError(t *testing.T) {
	mux := http.NewServeMux()
	mux.HandleFunc("GET /rooms/{token}/status", func(w http.ResponseWriter, r *http.Request) {
		fmt.Fprint(w, `{"state":"created","expiresInSec":120}`)
	})
	mux.HandleFunc("GET /rooms/{token}/offer", func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusInternalServerError)
	})
	ts := httptest.NewServer(mux)
	defer ts.Close()

	c := &Client{BaseURL: ts.URL, PollBaseInterval: 5 * time.Millisecond}
	_, err := c.WaitForOffer(context.Background(), "tok")
	if err == nil || errors.Is(err, ErrNotAvailable) {
		t.Fatalf("err=%v, want a hard failure", err)
	}
}

func TestWaitGivesUpAtRoomDeadline(t *testing.T) {
	mux := http.NewServeMux()
	mux.HandleFunc("GET /rooms/{token}/status", func(w http.ResponseWriter, r *http.Request) {
		fmt.Fprint(w, `{"state":"offer_set","expiresInSec":0}`)
	})
	mux.HandleFunc("GET /rooms/{token}/answer", func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusNotFound)
	})
	ts := httptest.NewServer(mux)
	defer ts.Close()

	c := &Client{BaseURL: ts.URL, PollBaseInterval: 200 * time.Millisecond, PollMaxInterval: 400 * time.Millisecond}
	start := time.Now()
	_, err := c.WaitForAnswer(context.Background(), "tok")
	if !errors.Is(err, ErrLinkExpired) {
		t.Fatalf("err=%v, want ErrLinkExpired", err)
	}
	if time.Since(start) > 10*time.Second {
		t.Fatal("poll loop did not respect the room deadline")
	}
}

func TestWaitHonorsContextCancel(t *testing.T) {
	c, _ := newTestRelay(t)
	r, err := c.CreateRoom(context.Background())
	if err != nil {
		t.Fatalf("CreateRoom: %v", err)
	}

	ctx, cancel := context.WithTimeout(context.Background(), 50*time.Millisecond)
	defer cancel()
	_, err = c.WaitForOffer(ctx, r.Token)
	if !errors.Is(err, context.DeadlineExceeded) {
		t.Fatalf("err=%v, want context deadline", err)
	}
}

func TestTokenFromJoinReference(t *testing.T) {
	cases := []struct {
		ref, want string
		ok        bool
	}{
		{"https://relay.example.com/join/abc123", "abc123", true},
		{"http://127.0.0.1:8080/join/ffeeddccbbaa", "ffeeddccbbaa", true},
		{"https://relay.example.com/rooms/abc123", "", false},
		{"https://relay.example.com/join/", "", false},
		{"https://relay.example.com/join/a/b", "", false},
	}
	for _, tc := range cases {
		got, err := TokenFromJoinReference(tc.ref)
		if tc.ok && (err != nil || got != tc.want) {
			t.Fatalf("TokenFromJoinReference(%q) = %q, %v; want %q", tc.ref, got, err, tc.want)
		}
		if !tc.ok && err == nil {
			t.Fatalf("TokenFromJoinReference(%q) succeeded, want error", tc.ref)
		}
	}
}
