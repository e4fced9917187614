// Package signaling implements the relay's HTTP room surface.
//
// Two anonymous parties rendezvous through a room: the initiator deposits an
// SDP offer, the responder deposits an SDP answer, and each polls for the
// other's document. The relay stores the descriptors verbatim and never
// inspects them; the actual media negotiation happens peer-to-peer once both
// documents have crossed.
//
// Endpoints (see RegisterRoutes):
//   - POST /rooms                      : allocate a room, returns token + join reference
//   - PUT  /rooms/{token}/offer        : publish the offer (exactly once)
//   - GET  /rooms/{token}/offer        : read the offer
//   - PUT  /rooms/{token}/answer       : publish the answer (exactly once)
//   - GET  /rooms/{token}/answer       : read the answer
//   - GET  /rooms/{token}/status       : state + remaining lifetime
//   - GET  /rooms/{token}/watch        : WebSocket push of status transitions
package signaling
