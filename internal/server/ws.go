package server

import (
	"context"
	"net/http"
	"sync"
	"time"

	"github.com/gorilla/websocket"

	"github.com/hewlab/hew/internal/agent/ai"
	"github.com/hewlab/hew/internal/agent/runner"
	"github.com/hewlab/hew/internal/logging"
)

var upgrader = websocket.Upgrader{
	ReadBufferSize:  1024,
	WriteBufferSize: 1024,
	CheckOrigin: func(r *http.Request) bool {
		origin := r.Header.Get("Origin")
		return origin == "" || isLocalhostOrigin(origin)
	},
}

const (
	wsWriteWait  = 10 * time.Second
	wsPongWait   = 60 * time.Second
	wsPingPeriod = (wsPongWait * 9) / 10
)

// clientFrame is a message from the client
type clientFrame struct {
	Type       string `json:"type"` // run, cancel, ping
	SessionKey string `json:"session_key,omitempty"`
	Prompt     string `json:"prompt,omitempty"`
	System     string `json:"system,omitempty"`
	Provider   string `json:"provider,omitempty"`
	Model      string `json:"model,omitempty"`
}

// serverFrame is a streamed event to the client. Mirrors ai.StreamEvent
// with the error flattened to a string so it survives JSON.
type serverFrame struct {
	Type     ai.StreamEventType `json:"type"`
	Text     string             `json:"text,omitempty"`
	ToolCall *ai.ToolCall       `json:"tool_call,omitempty"`
	Error    string             `json:"error,omitempty"`
}

// handleAgentWS upgrades the connection and speaks the agent protocol:
// the client sends run/cancel frames, the server streams loop events.
// One run at a time per connection; a second run frame during an active
// run gets an error frame back.
func (s *Server) handleAgentWS(w http.ResponseWriter, r *http.Request) {
	conn, err := upgrader.Upgrade(w, r, nil)
	if err != nil {
		logging.Errorf("[server] websocket upgrade: %v", err)
		return
	}

	c := &wsConn{conn: conn, server: s}
	c.serve(r.Context())
}

// wsConn serializes writes to one websocket connection. gorilla conns
// allow only one concurrent writer.
type wsConn struct {
	conn   *websocket.Conn
	server *Server

	writeMu sync.Mutex

	runMu     sync.Mutex
	runActive bool
	runCancel context.CancelFunc
}

func (c *wsConn) serve(ctx context.Context) {
	defer c.conn.Close()

	ctx, cancel := context.WithCancel(ctx)
	defer cancel()

	c.conn.SetReadDeadline(time.Now().Add(wsPongWait))
	c.conn.SetPongHandler(func(string) error {
		c.conn.SetReadDeadline(time.Now().Add(wsPongWait))
		return nil
	})

	go c.pingLoop(ctx)

	for {
		var frame clientFrame
		if err := c.conn.ReadJSON(&frame); err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseNormalClosure) {
				logging.Warnf("[server] websocket read: %v", err)
			}
			c.cancelRun()
			return
		}
		c.conn.SetReadDeadline(time.Now().Add(wsPongWait))

		switch frame.Type {
		case "run":
			c.startRun(ctx, &frame)
		case "cancel":
			c.cancelRun()
			c.server.runner.Cancel()
		case "ping":
			c.writeFrame(serverFrame{Type: "pong"})
		default:
			c.writeFrame(serverFrame{Type: ai.EventTypeError, Error: "unknown frame type: " + frame.Type})
		}
	}
}

func (c *wsConn) pingLoop(ctx context.Context) {
	ticker := time.NewTicker(wsPingPeriod)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			c.writeMu.Lock()
			c.conn.SetWriteDeadline(time.Now().Add(wsWriteWait))
			err := c.conn.WriteMessage(websocket.PingMessage, nil)
			c.writeMu.Unlock()
			if err != nil {
				return
			}
		}
	}
}

func (c *wsConn) startRun(ctx context.Context, frame *clientFrame) {
	c.runMu.Lock()
	if c.runActive {
		c.runMu.Unlock()
		c.writeFrame(serverFrame{Type: ai.EventTypeError, Error: "a run is already active on this connection"})
		return
	}
	runCtx, cancel := context.WithCancel(ctx)
	c.runActive = true
	c.runCancel = cancel
	c.runMu.Unlock()

	events, err := c.server.runner.Run(runCtx, &runner.RunRequest{
		SessionKey: frame.SessionKey,
		Prompt:     frame.Prompt,
		System:     frame.System,
		Provider:   frame.Provider,
		Model:      frame.Model,
	})
	if err != nil {
		c.finishRun()
		c.writeFrame(serverFrame{Type: ai.EventTypeError, Error: err.Error()})
		return
	}

	go func() {
		defer c.finishRun()
		for event := range events {
			c.writeFrame(toServerFrame(event))
		}
	}()
}

func (c *wsConn) finishRun() {
	c.runMu.Lock()
	if c.runCancel != nil {
		c.runCancel()
	}
	c.runActive = false
	c.runCancel = nil
	c.runMu.Unlock()
}

func (c *wsConn) cancelRun() {
	c.runMu.Lock()
	cancel := c.runCancel
	c.runMu.Unlock()
	if cancel != nil {
		cancel()
	}
}

func (c *wsConn) writeFrame(frame serverFrame) {
	c.writeMu.Lock()
	defer c.writeMu.Unlock()

	c.conn.SetWriteDeadline(time.Now().Add(wsWriteWait))
	if err := c.conn.WriteJSON(frame); err != nil {
		logging.Warnf("[server] websocket write: %v", err)
	}
}

func toServerFrame(event ai.StreamEvent) serverFrame {
	frame := serverFrame{
		Type:     event.Type,
		Text:     event.Text,
		ToolCall: event.ToolCall,
	}
	if event.Error != nil {
		frame.Error = event.Error.Error()
	}
	return frame
}
