package metrics

import "sync"

// Counter names for the room exchange. Names are intentionally simple; a
// follow-up metrics task can standardize and export these via OTel.
const (
	RoomCreated     = "room_created"
	OfferPublished  = "offer_published"
	AnswerPublished = "answer_published"
	StateConflict   = "state_conflict"
	RoomNotFound    = "room_not_found"
	RoomsExpired    = "rooms_expired"

	RateLimited     = "rate_limited"
	PayloadTooLarge = "payload_too_large"
	BadMessage      = "bad_message"

	WatchOpened = "watch_opened"
)

// Metrics is a minimal, concurrency-safe counter registry.
//
// A production deployment is expected to plug into a real metrics backend;
// this type keeps the exchange logic testable and still scrapable via the
// Prometheus text handler.
type Metrics struct {
	mu sync.Mutex
	m  map[string]uint64
}

func New() *Metrics {
	return &Metrics{
		m: make(map[string]uint64),
	}
}

func (m *Metrics) Inc(name string) {
	m.Add(name, 1)
}

func (m *Metrics) Add(name string, delta uint64) {
	m.mu.Lock()
	if m.m == nil {
		m.m = make(map[string]uint64)
	}
	m.m[name] += delta
	m.mu.Unlock()
}

func (m *Metrics) Get(name string) uint64 {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.m[name]
}

// Snapshot returns a copy of all counters.
func (m *Metrics) Snapshot() map[string]uint64 {
	m.mu.Lock()
	defer m.mu.Unlock()

	out := make(map[string]uint64, len(m.m))
	for k, v := range m.m {
		out[k] = v
	}
	return out
}
