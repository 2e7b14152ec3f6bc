package admin

import (
	"context"
	"net/http"
	"time"

	"github.com/danmuck/rsensor/internal/protocol"
	"github.com/gin-gonic/gin"
	"github.com/gorilla/websocket"
	"github.com/rs/zerolog/log"
)

const wsWriteTimeout = 5 * time.Second

var wsUpgrader = websocket.Upgrader{
	CheckOrigin:      func(r *http.Request) bool { return true },
	HandshakeTimeout: 10 * time.Second,
}

// watchEvent is one outbound protocol message as seen on /ws.
type watchEvent struct {
	Command string           `json:"command"`
	Args    []protocol.Value `json:"args"`
	Text    string           `json:"text"`
}

// handleWatch streams every outbound message until the socket closes.
func (a *Admin) handleWatch(c *gin.Context) {
	conn, err := wsUpgrader.Upgrade(c.Writer, c.Request, nil)
	if err != nil {
		log.Warn().Err(err).Msg("admin.ws upgrade")
		return
	}
	defer conn.Close()

	ctx, cancel := context.WithCancel(c.Request.Context())
	defer cancel()

	// reader only watches for close frames
	go func() {
		defer cancel()
		for {
			if _, _, err := conn.ReadMessage(); err != nil {
				if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseNormalClosure) {
					log.Debug().Err(err).Msg("admin.ws read")
				}
				return
			}
		}
	}()

	events := a.backend.Watch(ctx)
	log.Debug().Str("remote", c.Request.RemoteAddr).Msg("admin.ws watcher attached")
	for {
		select {
		case <-ctx.Done():
			return
		case msg, ok := <-events:
			if !ok {
				return
			}
			ev := watchEvent{Command: msg.Command, Args: msg.Args, Text: protocol.Encode(msg)}
			if ev.Args == nil {
				ev.Args = []protocol.Value{}
			}
			_ = conn.SetWriteDeadline(time.Now().Add(wsWriteTimeout))
			if err := conn.WriteJSON(ev); err != nil {
				log.Debug().Err(err).Msg("admin.ws write")
				return
			}
		}
	}
}
