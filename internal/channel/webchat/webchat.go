// Package webchat serves a WebSocket endpoint for browser-based chat.
package webchat

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"net/http"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/gorilla/websocket"

	"github.com/cortexhub/persona-gateway/internal/channel"
	"github.com/cortexhub/persona-gateway/internal/logging"
)

// WSMessage is the JSON frame exchanged over the socket.
type WSMessage struct {
	Type    string `json:"type"`
	Content string `json:"content"`
	UserID  string `json:"user_id,omitempty"`
}

// wsConn serializes writes; gorilla conns allow only one concurrent writer.
type wsConn struct {
	mu   sync.Mutex
	conn *websocket.Conn
}

func (c *wsConn) write(messageType int, data []byte) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.conn.WriteMessage(messageType, data)
}

type Adapter struct {
	port     int
	incoming chan *channel.Message
	upgrader websocket.Upgrader
	server   *http.Server

	connMux sync.RWMutex
	conns   map[string]*wsConn

	closeMux sync.RWMutex
	closed   bool

	logger *slog.Logger
}

func New(port int) *Adapter {
	return &Adapter{
		port:     port,
		incoming: make(chan *channel.Message, 100),
		upgrader: websocket.Upgrader{
			CheckOrigin: func(*http.Request) bool { return true },
		},
		conns:  make(map[string]*wsConn),
		logger: logging.WithComponent("webchat"),
	}
}

func (w *Adapter) Name() string { return "webchat" }

func (w *Adapter) IsEnabled() bool { return w.port > 0 }

func (w *Adapter) Start(ctx context.Context) error {
	mux := http.NewServeMux()
	mux.HandleFunc("/ws", w.wsHandler)
	w.server = &http.Server{Addr: fmt.Sprintf(":%d", w.port), Handler: mux}

	go func() {
		if err := w.server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			w.logger.Error("server error", "error", err)
		}
	}()

	go func() {
		<-ctx.Done()
		w.server.Shutdown(context.Background())
	}()

	w.logger.Info("listening", "port", w.port)
	return nil
}

func (w *Adapter) Stop() error {
	var err error
	if w.server != nil {
		err = w.server.Shutdown(context.Background())
	}
	w.closeMux.Lock()
	if !w.closed {
		w.closed = true
		close(w.incoming)
	}
	w.closeMux.Unlock()
	return err
}

// push delivers an inbound message unless the adapter has shut down. The
// read lock excludes Stop closing the channel mid-send.
func (w *Adapter) push(msg *channel.Message) {
	w.closeMux.RLock()
	defer w.closeMux.RUnlock()
	if w.closed {
		return
	}
	w.incoming <- msg
}

func (w *Adapter) SendMessage(userID string, resp *channel.Response) error {
	w.connMux.RLock()
	conn, ok := w.conns[userID]
	w.connMux.RUnlock()
	if !ok {
		return fmt.Errorf("no open connection for user %q", userID)
	}

	data, err := json.Marshal(WSMessage{Type: "message", Content: resp.Content})
	if err != nil {
		return err
	}
	return conn.write(websocket.TextMessage, data)
}

func (w *Adapter) Incoming() <-chan *channel.Message {
	return w.incoming
}

func (w *Adapter) wsHandler(rw http.ResponseWriter, r *http.Request) {
	conn, err := w.upgrader.Upgrade(rw, r, nil)
	if err != nil {
		w.logger.Error("upgrade failed", "error", err)
		return
	}

	userID := r.URL.Query().Get("user_id")
	if userID == "" {
		userID = "anon-" + uuid.NewString()[:8]
	}

	w.connMux.Lock()
	w.conns[userID] = &wsConn{conn: conn}
	w.connMux.Unlock()
	w.logger.Debug("connected", "user_id", userID)

	defer func() {
		w.connMux.Lock()
		delete(w.conns, userID)
		w.connMux.Unlock()
		conn.Close()
	}()

	for {
		var msg WSMessage
		if err := conn.ReadJSON(&msg); err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseNormalClosure, websocket.CloseGoingAway) {
				w.logger.Debug("read error", "user_id", userID, "error", err)
			}
			return
		}
		if msg.Type != "message" || msg.Content == "" {
			continue
		}
		w.push(&channel.Message{
			ID:        uuid.NewString(),
			Platform:  "webchat",
			UserID:    userID,
			Content:   msg.Content,
			Metadata:  map[string]string{"connection_id": userID},
			Timestamp: time.Now().Unix(),
		})
	}
}
