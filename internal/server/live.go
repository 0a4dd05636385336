package server

import (
	"context"
	"net/http"
	"time"

	"github.com/gorilla/websocket"
)

const (
	livePushInterval = 5 * time.Second
	liveWriteTimeout = 5 * time.Second
)

var liveUpgrader = websocket.Upgrader{
	CheckOrigin: func(r *http.Request) bool { return true },
}

// handleLive upgrades the connection to a websocket and streams status
// snapshots until the client disconnects.
func (s *Server) handleLive(w http.ResponseWriter, r *http.Request) {
	conn, err := liveUpgrader.Upgrade(w, r, nil)
	if err != nil {
		s.logger.Warn("websocket upgrade failed", "error", err)
		return
	}
	s.serveLiveConnection(r.Context(), conn)
}

func (s *Server) serveLiveConnection(ctx context.Context, conn *websocket.Conn) {
	defer conn.Close()

	if err := s.pushSnapshot(ctx, conn); err != nil {
		return
	}

	ticker := time.NewTicker(livePushInterval)
	defer ticker.Stop()

	done := make(chan struct{})
	go func() {
		defer close(done)
		for {
			if _, _, err := conn.ReadMessage(); err != nil {
				return
			}
		}
	}()

	for {
		select {
		case <-ticker.C:
			if err := s.pushSnapshot(ctx, conn); err != nil {
				return
			}
		case <-done:
			return
		}
	}
}

func (s *Server) pushSnapshot(ctx context.Context, conn *websocket.Conn) error {
	snapshot, err := s.buildSnapshot(ctx)
	if err != nil {
		s.logger.Error("status snapshot", "error", err)
		return err
	}
	_ = conn.SetWriteDeadline(time.Now().Add(liveWriteTimeout))
	return conn.WriteJSON(snapshot)
}
