package server

import (
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/gorilla/websocket"

	"commitstats/internal/models"
)

const (
	streamPushInterval = 60 * time.Second
	streamWriteTimeout = 5 * time.Second
)

var streamUpgrader = websocket.Upgrader{
	CheckOrigin: func(r *http.Request) bool {
		origin := r.Header.Get("Origin")
		if origin == "" {
			return true
		}
		u, err := url.Parse(origin)
		if err != nil {
			return false
		}
		host := strings.ToLower(strings.TrimSpace(r.Host))
		originHost := strings.ToLower(strings.TrimSpace(u.Host))
		return host == originHost
	},
}

// streamMessage is pushed to websocket clients. Snapshots carry the latest
// entry of every repository; updates carry a single new entry.
type streamMessage struct {
	Type        string               `json:"type"`
	GeneratedAt time.Time            `json:"generated_at"`
	Entries     []models.ReportEntry `json:"entries"`
}

func (s *Server) handleStream(w http.ResponseWriter, r *http.Request) {
	conn, err := streamUpgrader.Upgrade(w, r, nil)
	if err != nil {
		s.logger.Debug().Err(err).Msg("websocket upgrade")
		return
	}
	s.serveStream(conn)
}

func (s *Server) serveStream(conn *websocket.Conn) {
	defer conn.Close()

	var updates <-chan models.ReportEntry
	if s.updates != nil {
		ch, cancel := s.updates.Subscribe()
		defer cancel()
		updates = ch
	}

	if err := writeStreamMessage(conn, s.snapshotMessage()); err != nil {
		return
	}

	ticker := time.NewTicker(streamPushInterval)
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
		case entry := <-updates:
			entry.Commits = nil
			msg := streamMessage{Type: "update", GeneratedAt: time.Now().UTC(), Entries: []models.ReportEntry{entry}}
			if err := writeStreamMessage(conn, msg); err != nil {
				return
			}
		case <-ticker.C:
			if err := writeStreamMessage(conn, s.snapshotMessage()); err != nil {
				return
			}
		case <-done:
			return
		}
	}
}

func (s *Server) snapshotMessage() streamMessage {
	return streamMessage{
		Type:        "snapshot",
		GeneratedAt: time.Now().UTC(),
		Entries:     withoutCommits(s.storage.LatestAll()),
	}
}

func writeStreamMessage(conn *websocket.Conn, payload streamMessage) error {
	_ = conn.SetWriteDeadline(time.Now().Add(streamWriteTimeout))
	return conn.WriteJSON(payload)
}
