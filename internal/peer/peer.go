// Package peer wraps pion so the exchange flows can treat a WebRTC session as
// an opaque producer and consumer of SDP documents.
package peer

import (
	"fmt"
	"net"

	"github.com/pion/logging"
	"github.com/pion/transport/v4/stdnet"
	"github.com/pion/webrtc/v4"
)

// PortRange restricts the ephemeral UDP ports pion may bind.
type PortRange struct {
	Min uint16
	Max uint16
}

// Options tune the underlying PeerConnection factory.
type Options struct {
	// ICEServers lists STUN/TURN servers. Empty works on open networks; NAT'd
	// environments usually need at least one STUN server.
	ICEServers []webrtc.ICEServer

	// UDPPortRange, when set, restricts candidate gathering to that range.
	UDPPortRange *PortRange

	// ListenIP, when set, restricts socket binding and candidate gathering to
	// a single local address.
	ListenIP net.IP

	// LoggerFactory routes pion's internal logging. Defaults to pion's own.
	LoggerFactory logging.LoggerFactory
}

// NewAPI builds the shared pion API object all sessions are cut from.
func NewAPI(opts Options) (*webrtc.API, error) {
	se := webrtc.SettingEngine{
		LoggerFactory: opts.LoggerFactory,
	}

	n, err := stdnet.NewNet()
	if err != nil {
		return nil, fmt.Errorf("init host network: %w", err)
	}
	se.SetNet(n)

	if opts.UDPPortRange != nil {
		if err := se.SetEphemeralUDPPortRange(opts.UDPPortRange.Min, opts.UDPPortRange.Max); err != nil {
			return nil, fmt.Errorf("set ephemeral udp port range: %w", err)
		}
	}

	if opts.ListenIP != nil && !opts.ListenIP.IsUnspecified() {
		listenIP := opts.ListenIP
		se.SetIPFilter(func(ip net.IP) bool {
			return ip.Equal(listenIP)
		})
	}

	return webrtc.NewAPI(webrtc.WithSettingEngine(se)), nil
}
