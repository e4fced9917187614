package room

import (
	"context"
	"errors"
	"sync"
	"time"

	"github.com/pairlink/pairlink/internal/metrics"
	"github.com/pairlink/pairlink/internal/ratelimit"
)

// Config holds the store's tunables.
type Config struct {
	// TTL bounds every room's lifetime. Identical for all rooms.
	TTL time.Duration

	// SweepInterval is the period of the background reaper. Purely a memory
	// reclamation knob; lazy eviction on access enforces the TTL regardless.
	SweepInterval time.Duration

	// OnSweep, when set, runs after each periodic sweep. The relay points it
	// at the rate limiter's idle GC so auxiliary state expires on the same
	// cadence as rooms.
	OnSweep func(now time.Time)
}

const (
	DefaultTTL           = 120 * time.Second
	DefaultSweepInterval = 5 * time.Second
)

// WithDefaults fills in zero fields.
func (c Config) WithDefaults() Config {
	if c.TTL <= 0 {
		c.TTL = DefaultTTL
	}
	if c.SweepInterval <= 0 {
		c.SweepInterval = DefaultSweepInterval
	}
	return c
}

// Store owns all Room entities. Every mutation runs under a single mutex so
// the offer/answer check-and-set transitions are atomic: two racing
// publishers observe exactly one success and one conflict.
type Store struct {
	cfg     Config
	metrics *metrics.Metrics
	clock   ratelimit.Clock

	mu    sync.Mutex
	rooms map[string]*entry
}

func NewStore(cfg Config, m *metrics.Metrics, clock ratelimit.Clock) *Store {
	if m == nil {
		m = metrics.New()
	}
	if clock == nil {
		clock = ratelimit.RealClock{}
	}
	return &Store{
		cfg:     cfg.WithDefaults(),
		metrics: m,
		clock:   clock,
		rooms:   make(map[string]*entry),
	}
}

func (s *Store) Metrics() *metrics.Metrics { return s.metrics }

// TTL returns the fixed room lifetime.
func (s *Store) TTL() time.Duration { return s.cfg.TTL }

// Create allocates a fresh room in the created state.
func (s *Store) Create() (Created, error) {
	for attempt := 0; attempt < 3; attempt++ {
		token, err := newRoomToken()
		if err != nil {
			return Created{}, err
		}

		now := s.clock.Now()

		s.mu.Lock()
		if _, ok := s.rooms[token]; ok {
			// Extremely unlikely (16 bytes of crypto-random entropy). Try again.
			s.mu.Unlock()
			continue
		}
		s.rooms[token] = &entry{
			token:     token,
			state:     StateCreated,
			createdAt: now,
		}
		s.mu.Unlock()

		s.metrics.Inc(metrics.RoomCreated)
		return Created{Token: token, TTL: s.cfg.TTL}, nil
	}

	return Created{}, errors.New("failed to allocate unique room token")
}

// lookupLocked returns the live entry for token, lazily evicting it when its
// TTL has elapsed. An access immediately after natural expiry therefore never
// observes stale state. Caller must hold s.mu.
func (s *Store) lookupLocked(token string, now time.Time) *entry {
	e, ok := s.rooms[token]
	if !ok {
		return nil
	}
	if e.expired(now, s.cfg.TTL) {
		s.evictLocked(e)
		return nil
	}
	return e
}

// evictLocked removes the entry and closes its watchers. Caller must hold s.mu.
func (s *Store) evictLocked(e *entry) {
	delete(s.rooms, e.token)
	for _, ch := range e.watchers {
		close(ch)
	}
	e.watchers = nil
	s.metrics.Inc(metrics.RoomsExpired)
}

// PublishOffer stores the initiator's descriptor. Legal exactly once, while
// the room is still in the created state.
func (s *Store) PublishOffer(token, sdp string) error {
	now := s.clock.Now()

	s.mu.Lock()
	e := s.lookupLocked(token, now)
	if e == nil {
		s.mu.Unlock()
		s.metrics.Inc(metrics.RoomNotFound)
		return ErrRoomNotFound
	}
	if e.state != StateCreated {
		s.mu.Unlock()
		s.metrics.Inc(metrics.StateConflict)
		return ErrRoomConflict
	}
	e.offer = sdp
	e.state = StateOfferSet
	s.notifyLocked(e, now)
	s.mu.Unlock()

	s.metrics.Inc(metrics.OfferPublished)
	return nil
}

// PublishAnswer stores the responder's descriptor. Legal exactly once, only
// after an offer exists. Racing responders get exactly one success; the rest
// observe ErrRoomConflict.
func (s *Store) PublishAnswer(token, sdp string) error {
	now := s.clock.Now()

	s.mu.Lock()
	e := s.lookupLocked(token, now)
	if e == nil {
		s.mu.Unlock()
		s.metrics.Inc(metrics.RoomNotFound)
		return ErrRoomNotFound
	}
	if e.state != StateOfferSet {
		s.mu.Unlock()
		s.metrics.Inc(metrics.StateConflict)
		return ErrRoomConflict
	}
	e.answer = sdp
	e.state = StateAnswerSet
	s.notifyLocked(e, now)
	s.mu.Unlock()

	s.metrics.Inc(metrics.AnswerPublished)
	return nil
}

// Offer returns the stored offer, or ErrNotYetAvailable while the room is
// still waiting for the initiator.
func (s *Store) Offer(token string) (string, error) {
	now := s.clock.Now()

	s.mu.Lock()
	defer s.mu.Unlock()

	e := s.lookupLocked(token, now)
	if e == nil {
		s.metrics.Inc(metrics.RoomNotFound)
		return "", ErrRoomNotFound
	}
	if e.state == StateCreated {
		return "", ErrNotYetAvailable
	}
	return e.offer, nil
}

// Answer returns the stored answer, or ErrNotYetAvailable until a responder
// has published one.
func (s *Store) Answer(token string) (string, error) {
	now := s.clock.Now()

	s.mu.Lock()
	defer s.mu.Unlock()

	e := s.lookupLocked(token, now)
	if e == nil {
		s.metrics.Inc(metrics.RoomNotFound)
		return "", ErrRoomNotFound
	}
	if e.state != StateAnswerSet {
		return "", ErrNotYetAvailable
	}
	return e.answer, nil
}

// Status reports the room's current state and remaining lifetime.
func (s *Store) Status(token string) (Status, error) {
	now := s.clock.Now()

	s.mu.Lock()
	defer s.mu.Unlock()

	e := s.lookupLocked(token, now)
	if e == nil {
		s.metrics.Inc(metrics.RoomNotFound)
		return Status{}, ErrRoomNotFound
	}
	return e.status(now, s.cfg.TTL), nil
}

// Watch subscribes to a live room's transitions. The returned channel
// receives the current status immediately, then a snapshot after every
// transition, and is closed when the room is evicted. The cancel function is
// idempotent and must be called when the watcher is done.
func (s *Store) Watch(token string) (<-chan Status, func(), error) {
	now := s.clock.Now()

	s.mu.Lock()
	e := s.lookupLocked(token, now)
	if e == nil {
		s.mu.Unlock()
		s.metrics.Inc(metrics.RoomNotFound)
		return nil, nil, ErrRoomNotFound
	}

	// Buffered so the store never blocks on a slow watcher; there are at most
	// two transitions plus the initial snapshot.
	ch := make(chan Status, 4)
	ch <- e.status(now, s.cfg.TTL)
	e.watchers = append(e.watchers, ch)
	s.mu.Unlock()

	var once sync.Once
	cancel := func() {
		once.Do(func() {
			s.mu.Lock()
			defer s.mu.Unlock()
			live, ok := s.rooms[token]
			if !ok {
				// Already evicted; eviction closed the channel.
				return
			}
			for i, w := range live.watchers {
				if w == ch {
					live.watchers = append(live.watchers[:i], live.watchers[i+1:]...)
					close(ch)
					return
				}
			}
		})
	}
	return ch, cancel, nil
}

// notifyLocked fans a status snapshot out to the entry's watchers. Sends are
// non-blocking; a watcher that stopped draining misses snapshots rather than
// stalling the store. Caller must hold s.mu.
func (s *Store) notifyLocked(e *entry, now time.Time) {
	if len(e.watchers) == 0 {
		return
	}
	st := e.status(now, s.cfg.TTL)
	for _, ch := range e.watchers {
		select {
		case ch <- st:
		default:
		}
	}
}

// Sweep removes every expired room and returns how many were removed.
func (s *Store) Sweep(now time.Time) int {
	s.mu.Lock()
	defer s.mu.Unlock()

	removed := 0
	for _, e := range s.rooms {
		if e.expired(now, s.cfg.TTL) {
			s.evictLocked(e)
			removed++
		}
	}
	return removed
}

// Len reports the number of stored rooms, including ones that are expired
// but not yet reclaimed. Intended for tests.
func (s *Store) Len() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.rooms)
}

// Run drives the periodic reaper until ctx is cancelled.
func (s *Store) Run(ctx context.Context) {
	ticker := time.NewTicker(s.cfg.SweepInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			now := s.clock.Now()
			s.Sweep(now)
			if s.cfg.OnSweep != nil {
				s.cfg.OnSweep(now)
			}
		}
	}
}
