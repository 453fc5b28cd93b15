package websocket

import (
	"log/slog"
	"net/http"
	"strconv"

	ws "github.com/coder/websocket"
)

// HandleWebSocket upgrades GET /api/ws. An optional eventId query parameter
// subscribes the connection to a single event.
func HandleWebSocket(hub *Hub, originPatterns []string, logger *slog.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		var eventID int64
		if v := r.URL.Query().Get("eventId"); v != "" {
			id, err := strconv.ParseInt(v, 10, 64)
			if err != nil || id <= 0 {
				http.Error(w, "invalid eventId", http.StatusBadRequest)
				return
			}
			eventID = id
		}

		conn, err := ws.Accept(w, r, &ws.AcceptOptions{
			OriginPatterns: originPatterns,
		})
		if err != nil {
			logger.Warn("websocket accept", "error", err)
			return
		}

		NewClient(hub, conn, eventID).Run(r.Context())
	}
}
