package signaling

import (
	"encoding/json"
	"errors"
	"io"
	"log/slog"
	"net"
	"net/http"
	"strings"

	"github.com/pairlink/pairlink/internal/metrics"
	"github.com/pairlink/pairlink/internal/ratelimit"
	"github.com/pairlink/pairlink/internal/room"
)

// Config wires together the runtime dependencies for the room surface.
type Config struct {
	Rooms *room.Store

	// Limiter enforces the per-source request budget. If nil, requests are
	// unlimited.
	Limiter *ratelimit.SourceLimiter

	// PublicBaseURL overrides the base of generated join references. When
	// empty, each request's own origin is used.
	PublicBaseURL string

	// MaxBodyBytes caps publish bodies; oversized bodies fail with 413.
	MaxBodyBytes int64

	Log *slog.Logger
}

// Server implements the relay's HTTP room surface.
type Server struct {
	rooms         *room.Store
	limiter       *ratelimit.SourceLimiter
	publicBaseURL string
	maxBodyBytes  int64
	log           *slog.Logger
}

const defaultMaxBodyBytes = 1 << 20

func NewServer(cfg Config) *Server {
	if cfg.Rooms == nil {
		panic("signaling: Config.Rooms is required")
	}
	log := cfg.Log
	if log == nil {
		log = slog.Default()
	}
	maxBody := cfg.MaxBodyBytes
	if maxBody <= 0 {
		maxBody = defaultMaxBodyBytes
	}
	return &Server{
		rooms:         cfg.Rooms,
		limiter:       cfg.Limiter,
		publicBaseURL: strings.TrimRight(cfg.PublicBaseURL, "/"),
		maxBodyBytes:  maxBody,
		log:           log,
	}
}

func (s *Server) RegisterRoutes(mux *http.ServeMux) {
	mux.HandleFunc("POST /rooms", s.limited(s.handleCreateRoom))
	mux.HandleFunc("PUT /rooms/{token}/offer", s.limited(s.handlePublishOffer))
	mux.HandleFunc("GET /rooms/{token}/offer", s.limited(s.handleReadOffer))
	mux.HandleFunc("PUT /rooms/{token}/answer", s.limited(s.handlePublishAnswer))
	mux.HandleFunc("GET /rooms/{token}/answer", s.limited(s.handleReadAnswer))
	mux.HandleFunc("GET /rooms/{token}/status", s.limited(s.handleStatus))
	mux.HandleFunc("GET /rooms/{token}/watch", s.limited(s.handleWatch))
}

// Handler returns a standalone handler with all room routes registered.
// Mostly useful in tests; the production binary registers routes on the
// httpserver mux so the shared middleware chain applies.
func (s *Server) Handler() http.Handler {
	mux := http.NewServeMux()
	s.RegisterRoutes(mux)
	return mux
}

func (s *Server) metrics() *metrics.Metrics { return s.rooms.Metrics() }

// limited applies the per-source request budget. Rate limiting is a blunt
// abuse guard, deliberately outside the room state machine's correctness.
func (s *Server) limited(next http.HandlerFunc) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if s.limiter != nil && !s.limiter.Allow(clientIP(r)) {
			s.metrics().Inc(metrics.RateLimited)
			w.WriteHeader(http.StatusTooManyRequests)
			return
		}
		next(w, r)
	}
}

func clientIP(r *http.Request) string {
	// Honor the first hop of X-Forwarded-For when present: the relay is
	// normally deployed behind a TLS-terminating proxy.
	if fwd := r.Header.Get("X-Forwarded-For"); fwd != "" {
		if i := strings.IndexByte(fwd, ','); i >= 0 {
			fwd = fwd[:i]
		}
		if ip := strings.TrimSpace(fwd); ip != "" {
			return ip
		}
	}
	host, _, err := net.SplitHostPort(r.RemoteAddr)
	if err != nil {
		return r.RemoteAddr
	}
	return host
}

func (s *Server) handleCreateRoom(w http.ResponseWriter, r *http.Request) {
	created, err := s.rooms.Create()
	if err != nil {
		s.log.Error("create room", "err", err)
		w.WriteHeader(http.StatusInternalServerError)
		return
	}

	writeJSON(w, http.StatusCreated, createRoomResponse{
		Token:         created.Token,
		JoinReference: s.joinReference(r, created.Token),
		TTLSeconds:    int64(created.TTL.Seconds()),
	})
}

// joinReference builds the shareable URL that routes a responder into the
// room. The token rides in the path, so whoever holds the link holds the
// room.
func (s *Server) joinReference(r *http.Request, token string) string {
	base := s.publicBaseURL
	if base == "" {
		scheme := "http"
		if r.TLS != nil {
			scheme = "https"
		}
		if proto := r.Header.Get("X-Forwarded-Proto"); proto != "" {
			scheme = proto
		}
		base = scheme + "://" + r.Host
	}
	return base + "/join/" + token
}

func (s *Server) handlePublishOffer(w http.ResponseWriter, r *http.Request) {
	sdp, ok := s.readPublishBody(w, r)
	if !ok {
		return
	}
	s.writePublishResult(w, s.rooms.PublishOffer(r.PathValue("token"), sdp))
}

func (s *Server) handlePublishAnswer(w http.ResponseWriter, r *http.Request) {
	sdp, ok := s.readPublishBody(w, r)
	if !ok {
		return
	}
	s.writePublishResult(w, s.rooms.PublishAnswer(r.PathValue("token"), sdp))
}

// readPublishBody reads and validates a publish request body. On failure it
// writes the response itself and returns ok=false.
func (s *Server) readPublishBody(w http.ResponseWriter, r *http.Request) (string, bool) {
	body, err := io.ReadAll(http.MaxBytesReader(w, r.Body, s.maxBodyBytes))
	if err != nil {
		var maxErr *http.MaxBytesError
		if errors.As(err, &maxErr) {
			s.metrics().Inc(metrics.PayloadTooLarge)
			writeJSONError(w, http.StatusRequestEntityTooLarge, "payload_too_large", "request body exceeds limit")
			return "", false
		}
		s.metrics().Inc(metrics.BadMessage)
		writeJSONError(w, http.StatusBadRequest, "bad_message", err.Error())
		return "", false
	}

	payload, err := parseSDPPayload(body)
	if err != nil {
		s.metrics().Inc(metrics.BadMessage)
		writeJSONError(w, http.StatusBadRequest, "bad_message", err.Error())
		return "", false
	}
	return payload.SDP, true
}

func (s *Server) writePublishResult(w http.ResponseWriter, err error) {
	switch {
	case err == nil:
		w.WriteHeader(http.StatusNoContent)
	case errors.Is(err, room.ErrRoomNotFound):
		w.WriteHeader(http.StatusNotFound)
	case errors.Is(err, room.ErrRoomConflict):
		w.WriteHeader(http.StatusConflict)
	default:
		s.log.Error("publish descriptor", "err", err)
		w.WriteHeader(http.StatusInternalServerError)
	}
}

func (s *Server) handleReadOffer(w http.ResponseWriter, r *http.Request) {
	s.writeReadResult(w)(s.rooms.Offer(r.PathValue("token")))
}

func (s *Server) handleReadAnswer(w http.ResponseWriter, r *http.Request) {
	s.writeReadResult(w)(s.rooms.Answer(r.PathValue("token")))
}

// writeReadResult maps a descriptor read onto the wire. Not-yet-available and
// not-found are both 404 on purpose: an expired room must be
// indistinguishable from a token that was never issued, and a pending one
// must not reveal whether the token is real.
func (s *Server) writeReadResult(w http.ResponseWriter) func(string, error) {
	return func(sdp string, err error) {
		switch {
		case err == nil:
			writeJSON(w, http.StatusOK, sdpPayload{SDP: sdp})
		case errors.Is(err, room.ErrRoomNotFound), errors.Is(err, room.ErrNotYetAvailable):
			w.WriteHeader(http.StatusNotFound)
		default:
			s.log.Error("read descriptor", "err", err)
			w.WriteHeader(http.StatusInternalServerError)
		}
	}
}

func (s *Server) handleStatus(w http.ResponseWriter, r *http.Request) {
	st, err := s.rooms.Status(r.PathValue("token"))
	switch {
	case err == nil:
		writeJSON(w, http.StatusOK, statusFromRoom(st))
	case errors.Is(err, room.ErrRoomNotFound):
		w.WriteHeader(http.StatusNotFound)
	default:
		s.log.Error("room status", "err", err)
		w.WriteHeader(http.StatusInternalServerError)
	}
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

func writeJSONError(w http.ResponseWriter, status int, code, message string) {
	writeJSON(w, status, errorResponse{Code: code, Message: message})
}
