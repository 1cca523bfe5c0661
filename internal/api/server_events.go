package api

import (
	"encoding/json"
	"log/slog"
	"net/http"

	"github.com/gobwas/ws"
	"github.com/gobwas/ws/wsutil"
	"github.com/ziyaaktas/tab-limiter/internal/engine"
)

// eventsHandler upgrades to WebSocket and streams limiter events (badge
// refreshes, enforcement, suppression) as JSON text frames. This feeds the
// settings UI's live remaining-count indicator.
func eventsHandler(feed *engine.Feed) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		conn, _, _, err := ws.UpgradeHTTP(r, w)
		if err != nil {
			slog.Debug("events ws upgrade failed", "error", err, "remote", r.RemoteAddr)
			return
		}

		events, cancel := feed.Subscribe()
		slog.Info("events ws subscriber connected", "remote", r.RemoteAddr)

		// Reader goroutine: the client sends nothing meaningful, but a read
		// error is how we learn the peer went away.
		closed := make(chan struct{})
		go func() {
			defer close(closed)
			for {
				if _, _, err := wsutil.ReadClientData(conn); err != nil {
					return
				}
			}
		}()

		go func() {
			defer func() {
				cancel()
				_ = conn.Close()
				slog.Info("events ws subscriber disconnected", "remote", r.RemoteAddr)
			}()
			for {
				select {
				case ev, ok := <-events:
					if !ok {
						return
					}
					data, err := json.Marshal(ev)
					if err != nil {
						slog.Debug("events ws marshal failed", "error", err)
						continue
					}
					if err := wsutil.WriteServerText(conn, data); err != nil {
						return
					}
				case <-closed:
					return
				}
			}
		}()
	}
}
