package realtime

import (
	"net/http"

	"github.com/charmbracelet/log"
	"github.com/gorilla/websocket"
)

// Upgrader accepts any origin; callers are authenticated by their realtime
// token before the upgrade.
var Upgrader = websocket.Upgrader{
	ReadBufferSize:  1024,
	WriteBufferSize: 1024,
	CheckOrigin:     func(r *http.Request) bool { return true },
}

// ServeWS upgrades an already authenticated request and serves the client
// until the socket closes.
func ServeWS(hub *Hub, userID string, w http.ResponseWriter, r *http.Request) {
	conn, err := Upgrader.Upgrade(w, r, nil)
	if err != nil {
		log.Warn("websocket upgrade failed", "user", userID, "err", err)
		return
	}
	NewClient(hub, conn, userID).Serve()
}
