package negotiation

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"
)

// fakeSession is a PeerSession that hands out canned documents and records
// what it was given.
type fakeSession struct {
	offer  string
	answer string

	mu            sync.Mutex
	gotOffer      string
	gotAnswer     string
	offerErr      error
	acceptAnswerN int
}

func (s *fakeSession) CreateOffer(ctx context.Context) (string, error) {
	if s.offerErr != nil {
		return "", s.offerErr
	}
	return s.offer, nil
}

func (s *fakeSession) AcceptOffer(ctx context.Context, offer string) (string, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.gotOffer = offer
	return s.answer, nil
}

func (s *fakeSession) AcceptAnswer(ctx context.Context, answer string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.gotAnswer = answer
	s.acceptAnswerN++
	return nil
}

// Full exchange through a live relay: both halves run concurrently and each
// ends up holding the other's document.
func TestInitiatorAndResponderComplete(t *testing.T) {
	c, _ := newTestRelay(t)
	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	init := &fakeSession{offer: "v=0...from-initiator"}
	resp := &fakeSession{answer: "v=0...from-responder"}

	roomCh := make(chan Room, 1)
	errCh := make(chan error, 2)
	go func() {
		errCh <- RunInitiator(ctx, c, init, nil, func(r Room) { roomCh <- r })
	}()
	go func() {
		r := <-roomCh
		token, err := TokenFromJoinReference(r.JoinReference)
		if err != nil {
			errCh <- err
			return
		}
		errCh <- RunResponder(ctx, c, token, resp, nil)
	}()

	for i := 0; i < 2; i++ {
		if err := <-errCh; err != nil {
			t.Fatalf("exchange failed: %v", err)
		}
	}

	if resp.gotOffer != "v=0...from-initiator" {
		t.Fatalf("responder saw offer %q", resp.gotOffer)
	}
	if init.gotAnswer != "v=0...from-responder" {
		t.Fatalf("initiator saw answer %q", init.gotAnswer)
	}
	if init.acceptAnswerN != 1 {
		t.Fatalf("AcceptAnswer called %d times, want once", init.acceptAnswerN)
	}
}

func TestInitiatorStopsWhenOfferCreationFails(t *testing.T) {
	c, _ := newTestRelay(t)

	wantErr := errors.New("no codecs")
	err := RunInitiator(context.Background(), c, &fakeSession{offerErr: wantErr}, nil, nil)
	if !errors.Is(err, wantErr) {
		t.Fatalf("err=%v, want wrapped session error", err)
	}
}

func TestResponderFailsOnExpiredLink(t *testing.T) {
	c, _ := newTestRelay(t)

	err := RunResponder(context.Background(), c,
		"ffffffffffffffffffffffffffffffff", &fakeSession{answer: "a"}, nil)
	if !errors.Is(err, ErrLinkExpired) {
		t.Fatalf("err=%v, want ErrLinkExpired", err)
	}
}
