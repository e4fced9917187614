package peer

import (
	"context"
	"fmt"
	"log/slog"
	"sync"

	"github.com/pion/webrtc/v4"
)

// DataChannelLabel names the single data channel both sides converge on.
const DataChannelLabel = "pairlink"

// Session owns one PeerConnection and its data channel. The initiator calls
// CreateOffer and later AcceptAnswer; the responder calls AcceptOffer. Both
// sides then use WaitReady and Send once negotiation completes.
//
// Offers and answers are non-trickle: each local description is returned only
// after candidate gathering completes, so a single document per side is
// enough to connect.
type Session struct {
	pc  *webrtc.PeerConnection
	log *slog.Logger

	ready chan struct{}

	mu        sync.Mutex
	dc        *webrtc.DataChannel
	onMessage func([]byte)

	closeOnce sync.Once
	closeErr  error
}

func NewSession(api *webrtc.API, iceServers []webrtc.ICEServer, log *slog.Logger) (*Session, error) {
	if api == nil {
		api = webrtc.NewAPI()
	}
	if log == nil {
		log = slog.Default()
	}

	pc, err := api.NewPeerConnection(webrtc.Configuration{ICEServers: iceServers})
	if err != nil {
		return nil, err
	}

	s := &Session{
		pc:    pc,
		log:   log,
		ready: make(chan struct{}),
	}

	pc.OnConnectionStateChange(func(state webrtc.PeerConnectionState) {
		s.log.Debug("peer connection state", "state", state.String())
	})

	// The responder side receives the channel the initiator created.
	pc.OnDataChannel(func(dc *webrtc.DataChannel) {
		if dc.Label() != DataChannelLabel {
			_ = dc.Close()
			return
		}
		s.adopt(dc)
	})

	return s, nil
}

func (s *Session) adopt(dc *webrtc.DataChannel) {
	s.mu.Lock()
	s.dc = dc
	s.mu.Unlock()

	dc.OnOpen(func() {
		close(s.ready)
	})
	dc.OnMessage(func(msg webrtc.DataChannelMessage) {
		s.mu.Lock()
		handler := s.onMessage
		s.mu.Unlock()
		if handler != nil {
			handler(msg.Data)
		}
	})
}

// CreateOffer opens the data channel and produces the complete local offer.
func (s *Session) CreateOffer(ctx context.Context) (string, error) {
	dc, err := s.pc.CreateDataChannel(DataChannelLabel, nil)
	if err != nil {
		return "", fmt.Errorf("create data channel: %w", err)
	}
	s.adopt(dc)

	offer, err := s.pc.CreateOffer(nil)
	if err != nil {
		return "", fmt.Errorf("create offer: %w", err)
	}
	return s.settleLocal(ctx, offer)
}

// AcceptOffer applies the remote offer and produces the complete local answer.
func (s *Session) AcceptOffer(ctx context.Context, offer string) (string, error) {
	err := s.pc.SetRemoteDescription(webrtc.SessionDescription{
		Type: webrtc.SDPTypeOffer,
		SDP:  offer,
	})
	if err != nil {
		return "", fmt.Errorf("set remote offer: %w", err)
	}

	answer, err := s.pc.CreateAnswer(nil)
	if err != nil {
		return "", fmt.Errorf("create answer: %w", err)
	}
	return s.settleLocal(ctx, answer)
}

// AcceptAnswer applies the remote answer; the connection then establishes in
// the background. Use WaitReady to block until the data channel opens.
func (s *Session) AcceptAnswer(ctx context.Context, answer string) error {
	err := s.pc.SetRemoteDescription(webrtc.SessionDescription{
		Type: webrtc.SDPTypeAnswer,
		SDP:  answer,
	})
	if err != nil {
		return fmt.Errorf("set remote answer: %w", err)
	}
	return nil
}

// settleLocal installs desc and waits for candidate gathering to finish, then
// returns the final local description.
func (s *Session) settleLocal(ctx context.Context, desc webrtc.SessionDescription) (string, error) {
	gathered := webrtc.GatheringCompletePromise(s.pc)
	if err := s.pc.SetLocalDescription(desc); err != nil {
		return "", fmt.Errorf("set local description: %w", err)
	}

	select {
	case <-gathered:
	case <-ctx.Done():
		return "", ctx.Err()
	}

	local := s.pc.LocalDescription()
	if local == nil {
		return "", fmt.Errorf("no local description after gathering")
	}
	return local.SDP, nil
}

// OnMessage registers the handler for inbound data channel messages. Must be
// called before the channel opens to avoid dropping early messages.
func (s *Session) OnMessage(handler func([]byte)) {
	s.mu.Lock()
	s.onMessage = handler
	s.mu.Unlock()
}

// WaitReady blocks until the data channel is open.
func (s *Session) WaitReady(ctx context.Context) error {
	select {
	case <-s.ready:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

// Send writes one message to the data channel.
func (s *Session) Send(data []byte) error {
	s.mu.Lock()
	dc := s.dc
	s.mu.Unlock()
	if dc == nil {
		return fmt.Errorf("data channel not established")
	}
	return dc.Send(data)
}

// Close tears the session down. Safe to call more than once.
func (s *Session) Close() error {
	s.closeOnce.Do(func() {
		s.closeErr = s.pc.Close()
	})
	return s.closeErr
}
