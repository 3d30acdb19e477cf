package realtime

import (
	"context"
	"encoding/json"
	"errors"
	"sync"
	"time"

	"github.com/gorilla/websocket"
	"go.uber.org/zap"
)

// Client-to-server event names.
const (
	EventJoinTodo  = "join:todo"
	EventLeaveTodo = "leave:todo"
)

const (
	writeWait      = 10 * time.Second
	pongWait       = 60 * time.Second
	pingPeriod     = (pongWait * 9) / 10
	maxMessageSize = 1024
	sendBufferSize = 64
)

var errSessionClosed = errors.New("realtime: session closed")

type envelope struct {
	Event string `json:"event"`
	Data  any    `json:"data"`
}

type clientMessage struct {
	Event  string `json:"event"`
	TodoID string `json:"todo_id"`
}

// wsSession adapts a gorilla websocket connection to the Sender interface.
// Writes are serialized through a buffered channel drained by writePump; a
// full buffer counts as a delivery failure.
type wsSession struct {
	conn      *websocket.Conn
	outbound  chan envelope
	closed    chan struct{}
	closeOnce sync.Once
}

func newWSSession(conn *websocket.Conn) *wsSession {
	return &wsSession{
		conn:     conn,
		outbound: make(chan envelope, sendBufferSize),
		closed:   make(chan struct{}),
	}
}

func (s *wsSession) Send(event string, payload any) error {
	select {
	case <-s.closed:
		return errSessionClosed
	case s.outbound <- envelope{Event: event, Data: payload}:
		return nil
	default:
		return errors.New("realtime: send buffer full")
	}
}

func (s *wsSession) Close() error {
	s.closeOnce.Do(func() {
		close(s.closed)
	})
	return s.conn.Close()
}

func (s *wsSession) writePump() {
	ticker := time.NewTicker(pingPeriod)
	defer func() {
		ticker.Stop()
		_ = s.Close()
	}()
	for {
		select {
		case <-s.closed:
			_ = s.conn.SetWriteDeadline(time.Now().Add(writeWait))
			_ = s.conn.WriteMessage(websocket.CloseMessage, []byte{})
			return
		case message := <-s.outbound:
			_ = s.conn.SetWriteDeadline(time.Now().Add(writeWait))
			if err := s.conn.WriteJSON(message); err != nil {
				return
			}
		case <-ticker.C:
			_ = s.conn.SetWriteDeadline(time.Now().Add(writeWait))
			if err := s.conn.WriteMessage(websocket.PingMessage, nil); err != nil {
				return
			}
		}
	}
}

// ServeConnection admits an already-authenticated websocket connection and
// pumps its client events until the transport drops. It blocks for the
// lifetime of the connection and always leaves registry and rooms clean.
func ServeConnection(ctx context.Context, gateway *Gateway, conn *websocket.Conn, connectionID, userID string, logger *zap.Logger) error {
	if logger == nil {
		logger = zap.NewNop()
	}

	wire := newWSSession(conn)
	if err := gateway.Connect(ctx, connectionID, userID, wire); err != nil {
		_ = conn.Close()
		return err
	}
	go wire.writePump()
	defer gateway.Disconnect(ctx, connectionID)

	conn.SetReadLimit(maxMessageSize)
	_ = conn.SetReadDeadline(time.Now().Add(pongWait))
	conn.SetPongHandler(func(string) error {
		return conn.SetReadDeadline(time.Now().Add(pongWait))
	})

	for {
		_, raw, err := conn.ReadMessage()
		if err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseNormalClosure) {
				logger.Warn("websocket read failed",
					zap.String("connection_id", connectionID),
					zap.Error(err))
			}
			return nil
		}

		var message clientMessage
		if err := json.Unmarshal(raw, &message); err != nil {
			logger.Debug("discarding malformed client message",
				zap.String("connection_id", connectionID),
				zap.Error(err))
			continue
		}

		switch message.Event {
		case EventJoinTodo:
			if err := gateway.JoinRoom(ctx, connectionID, message.TodoID); err != nil {
				logger.Warn("join failed",
					zap.String("connection_id", connectionID),
					zap.String("todo_id", message.TodoID),
					zap.Error(err))
			}
		case EventLeaveTodo:
			gateway.LeaveRoom(connectionID, message.TodoID)
		default:
			logger.Debug("ignoring unknown client event",
				zap.String("connection_id", connectionID),
				zap.String("event", message.Event))
		}
	}
}
