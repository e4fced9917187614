// Package room owns the rendezvous state: the token-to-room mapping, the
// per-room offer/answer state machine, and TTL-based expiry.
//
// A room passes through three stored states (created, offer_set, answer_set)
// and one derived state: once now-createdAt exceeds the TTL the room is
// treated as nonexistent. Expiry is never stored; it is computed from the
// clock on every access so it cannot drift.
package room

import (
	"time"
)

// State is a room's stored exchange state. Transitions are monotonic:
// created -> offer_set -> answer_set.
type State string

const (
	StateCreated   State = "created"
	StateOfferSet  State = "offer_set"
	StateAnswerSet State = "answer_set"
)

// Status is the diagnostic view of a live room.
type Status struct {
	State State

	// ExpiresIn is the remaining lifetime, floored at zero.
	ExpiresIn time.Duration
}

// Created describes a freshly allocated room.
type Created struct {
	// Token is the room's unguessable identifier. Possession of the token is
	// the only authorization the relay knows about.
	Token string

	TTL time.Duration
}

type entry struct {
	token     string
	state     State
	offer     string
	answer    string
	createdAt time.Time

	// watchers receive a Status snapshot on every transition and are closed
	// when the room is evicted.
	watchers []chan Status
}

func (e *entry) expired(now time.Time, ttl time.Duration) bool {
	return now.Sub(e.createdAt) > ttl
}

func (e *entry) status(now time.Time, ttl time.Duration) Status {
	remaining := ttl - now.Sub(e.createdAt)
	if remaining < 0 {
		remaining = 0
	}
	return Status{State: e.state, ExpiresIn: remaining}
}
