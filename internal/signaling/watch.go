package signaling

import (
	"errors"
	"net/http"
	"time"

	"github.com/gorilla/websocket"

	"github.com/pairlink/pairlink/internal/metrics"
	"github.com/pairlink/pairlink/internal/room"
)

const watchWriteWait = 1 * time.Second

// handleWatch upgrades to a WebSocket and pushes a status snapshot on every
// room transition. It is a push companion to GET /status for UIs that want to
// show "waiting for peer" without polling; the exchange protocol itself
// remains poll-only and never depends on this endpoint.
func (s *Server) handleWatch(w http.ResponseWriter, r *http.Request) {
	ch, cancel, err := s.rooms.Watch(r.PathValue("token"))
	if err != nil {
		if errors.Is(err, room.ErrRoomNotFound) {
			w.WriteHeader(http.StatusNotFound)
			return
		}
		s.log.Error("watch room", "err", err)
		w.WriteHeader(http.StatusInternalServerError)
		return
	}

	upgrader := websocket.Upgrader{
		// Cross-origin access is permitted for the whole room surface; the
		// outer CORS middleware already advertises that.
		CheckOrigin: func(r *http.Request) bool { return true },
	}
	conn, err := upgrader.Upgrade(w, r, nil)
	if err != nil {
		cancel()
		return
	}
	s.metrics().Inc(metrics.WatchOpened)

	defer cancel()
	defer conn.Close()

	// Watchers only listen. Keep a reader running anyway so client closes
	// (and pings) are processed and end the session promptly.
	clientGone := make(chan struct{})
	go func() {
		defer close(clientGone)
		for {
			if _, _, err := conn.ReadMessage(); err != nil {
				return
			}
		}
	}()

	for {
		select {
		case st, ok := <-ch:
			if !ok {
				// Room evicted: tell the client this is the natural end of the
				// room, not a transport failure.
				_ = conn.WriteControl(websocket.CloseMessage,
					websocket.FormatCloseMessage(websocket.CloseNormalClosure, "room expired"),
					time.Now().Add(watchWriteWait))
				return
			}
			_ = conn.SetWriteDeadline(time.Now().Add(watchWriteWait))
			if err := conn.WriteJSON(statusFromRoom(st)); err != nil {
				return
			}
		case <-clientGone:
			return
		}
	}
}
