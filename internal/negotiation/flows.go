package negotiation

import (
	"context"
	"fmt"
	"log/slog"
)

// PeerSession is the slice of a WebRTC session the exchange flows need: they
// move opaque SDP documents between the relay and the session, and never look
// inside them.
type PeerSession interface {
	// CreateOffer produces the local offer, ready to publish.
	CreateOffer(ctx context.Context) (string, error)

	// AcceptOffer applies a remote offer and produces the local answer.
	AcceptOffer(ctx context.Context, offer string) (string, error)

	// AcceptAnswer applies the remote answer, completing negotiation.
	AcceptAnswer(ctx context.Context, answer string) error
}

// RunInitiator drives the initiator's half of the exchange: create a room,
// publish the session's offer, then poll until a responder's answer arrives
// and apply it. onRoom is called as soon as the room exists so the caller can
// surface the join reference to the user; it may be nil.
func RunInitiator(ctx context.Context, c *Client, sess PeerSession, log *slog.Logger, onRoom func(Room)) error {
	if log == nil {
		log = slog.Default()
	}

	room, err := c.CreateRoom(ctx)
	if err != nil {
		return fmt.Errorf("create room: %w", err)
	}
	log.Info("room created", "token", room.Token, "ttl", room.TTL)
	if onRoom != nil {
		onRoom(room)
	}

	offer, err := sess.CreateOffer(ctx)
	if err != nil {
		return fmt.Errorf("create offer: %w", err)
	}
	if err := c.PublishOffer(ctx, room.Token, offer); err != nil {
		return fmt.Errorf("publish offer: %w", err)
	}
	log.Info("offer published, waiting for answer")

	answer, err := c.WaitForAnswer(ctx, room.Token)
	if err != nil {
		return fmt.Errorf("wait for answer: %w", err)
	}
	if err := sess.AcceptAnswer(ctx, answer); err != nil {
		return fmt.Errorf("accept answer: %w", err)
	}
	log.Info("answer applied, negotiation complete")
	return nil
}

// RunResponder drives the responder's half: poll for the offer, feed it to
// the session, and publish the resulting answer. The token usually comes from
// a join reference (see TokenFromJoinReference).
func RunResponder(ctx context.Context, c *Client, token string, sess PeerSession, log *slog.Logger) error {
	if log == nil {
		log = slog.Default()
	}

	offer, err := c.WaitForOffer(ctx, token)
	if err != nil {
		return fmt.Errorf("wait for offer: %w", err)
	}
	log.Info("offer received")

	answer, err := sess.AcceptOffer(ctx, offer)
	if err != nil {
		return fmt.Errorf("accept offer: %w", err)
	}
	if err := c.PublishAnswer(ctx, token, answer); err != nil {
		return fmt.Errorf("publish answer: %w", err)
	}
	log.Info("answer published, negotiation complete")
	return nil
}
