package signaling

import (
	"bytes"
	"encoding/json"
	"fmt"
	"io"
	"time"

	"github.com/pairlink/pairlink/internal/room"
)

// createRoomResponse is the body of a successful POST /rooms.
type createRoomResponse struct {
	Token         string `json:"token"`
	JoinReference string `json:"joinReference"`
	TTLSeconds    int64  `json:"ttlSeconds"`
}

// sdpPayload is both the PUT request body and the GET response body for the
// offer and answer endpoints. The descriptor is opaque to the relay and is
// stored and returned byte-for-byte.
type sdpPayload struct {
	SDP string `json:"sdp"`
}

// statusResponse is the body of GET /rooms/{token}/status and of each watch
// push frame.
type statusResponse struct {
	State        room.State `json:"state"`
	ExpiresInSec int64      `json:"expiresInSec"`
}

func statusFromRoom(st room.Status) statusResponse {
	return statusResponse{
		State:        st.State,
		ExpiresInSec: int64(st.ExpiresIn / time.Second),
	}
}

// errorResponse is the JSON error shape used by the 400/413 responses.
// Not-found, conflict and rate-limit responses intentionally have empty
// bodies: the status code carries all the information a client may have.
type errorResponse struct {
	Code    string `json:"code"`
	Message string `json:"message"`
}

// parseSDPPayload decodes a publish body strictly: unknown fields, trailing
// data and a missing sdp field are all caller errors.
func parseSDPPayload(body []byte) (sdpPayload, error) {
	dec := json.NewDecoder(bytes.NewReader(body))
	dec.DisallowUnknownFields()

	var p sdpPayload
	if err := dec.Decode(&p); err != nil {
		return sdpPayload{}, err
	}
	if err := dec.Decode(&struct{}{}); err != io.EOF {
		return sdpPayload{}, fmt.Errorf("unexpected trailing data")
	}
	if p.SDP == "" {
		return sdpPayload{}, fmt.Errorf("missing sdp field")
	}
	return p, nil
}
