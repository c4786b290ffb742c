package api

import (
	"log"
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/gorilla/websocket"

	"signal-core/internal/events"
)

var upgrader = websocket.Upgrader{
	CheckOrigin: func(r *http.Request) bool { return true },
}

// envelope wraps every streamed event with its topic.
type envelope struct {
	Type string `json:"type"`
	Data any    `json:"data"`
}

func (s *Server) websocket(c *gin.Context) {
	conn, err := upgrader.Upgrade(c.Writer, c.Request, nil)
	if err != nil {
		log.Printf("ws upgrade error: %v", err)
		return
	}
	defer conn.Close()

	if s.Bus == nil {
		_ = conn.WriteMessage(websocket.TextMessage, []byte(`{"error":"bus not ready"}`))
		return
	}

	ticks, unsubTicks := s.Bus.Subscribe(events.EventTick, 100)
	defer unsubTicks()
	milestones, unsubMilestones := s.Bus.Subscribe(events.EventSignalMilestone, 100)
	defer unsubMilestones()
	restored, unsubRestored := s.Bus.Subscribe(events.EventSignalRestored, 100)
	defer unsubRestored()

	for {
		var env envelope
		select {
		case msg, ok := <-ticks:
			if !ok {
				return
			}
			env = envelope{Type: string(events.EventTick), Data: msg}
		case msg, ok := <-milestones:
			if !ok {
				return
			}
			env = envelope{Type: string(events.EventSignalMilestone), Data: msg}
		case msg, ok := <-restored:
			if !ok {
				return
			}
			env = envelope{Type: string(events.EventSignalRestored), Data: msg}
		}
		if err := conn.WriteJSON(env); err != nil {
			log.Printf("ws write error: %v", err)
			return
		}
	}
}
