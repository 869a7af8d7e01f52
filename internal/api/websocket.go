// websocket.go - Fan-out of classified notification batches to subscribers
package api

import (
	"encoding/json"
	"fmt"
	"net/http"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/gorilla/websocket"
	"github.com/labstack/echo/v4"
	"github.com/vmihailenco/msgpack/v5"

	"github.com/appvision-bridge/bridge/internal/models"
)

// WebSocket message types for the subscription protocol
const (
	// Client -> Server
	MsgTypePing = "ping"

	// Server -> Client
	MsgTypeConnected = "connected"
	MsgTypePong      = "pong"
	MsgTypeFanOut    = "fanout"
)

// WSMessage is the JSON envelope exchanged with subscribers.
type WSMessage struct {
	Type      string          `json:"type"`
	ClientID  string          `json:"clientId,omitempty"`
	Payload   json.RawMessage `json:"payload,omitempty"`
	Timestamp int64           `json:"timestamp"`
}

// wsFrame is the msgpack envelope used when a subscriber asks for binary
// encoding.
type wsFrame struct {
	Type    string        `msgpack:"type"`
	Payload models.FanOut `msgpack:"payload"`
}

// wsClient is one connected subscriber. Writes are serialized per client so
// broadcasts and pong replies never interleave on the wire.
type wsClient struct {
	id         string
	conn       *websocket.Conn
	useMsgpack bool

	mu sync.Mutex
}

func (c *wsClient) write(messageType int, data []byte) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.conn.SetWriteDeadline(time.Now().Add(10 * time.Second))
	return c.conn.WriteMessage(messageType, data)
}

// Hub fans each emitted batch out to every connected subscriber. A slow or
// broken subscriber is dropped on its first failed write; it never blocks the
// poll loop or the other subscribers.
type Hub struct {
	upgrader websocket.Upgrader

	mu      sync.Mutex
	clients map[string]*wsClient
	closed  bool
}

// NewHub creates an empty hub.
func NewHub() *Hub {
	return &Hub{
		upgrader: websocket.Upgrader{
			CheckOrigin: func(r *http.Request) bool {
				// Subscribers are workflow hosts on the local network.
				return true
			},
			ReadBufferSize:  16 * 1024,
			WriteBufferSize: 64 * 1024,
		},
		clients: make(map[string]*wsClient),
	}
}

// HandleWebSocket upgrades the connection and registers the subscriber until
// it disconnects. The optional ?encoding=msgpack query switches the frames
// pushed to this subscriber from JSON to MessagePack.
func (h *Hub) HandleWebSocket(c echo.Context) error {
	ws, err := h.upgrader.Upgrade(c.Response(), c.Request(), nil)
	if err != nil {
		return err
	}

	client := &wsClient{
		id:         uuid.NewString(),
		conn:       ws,
		useMsgpack: c.QueryParam("encoding") == "msgpack",
	}

	h.mu.Lock()
	if h.closed {
		h.mu.Unlock()
		ws.Close()
		return nil
	}
	h.clients[client.id] = client
	h.mu.Unlock()

	fmt.Printf("[Hub] Subscriber %s connected (msgpack=%v)\n", client.id, client.useMsgpack)

	welcome, _ := json.Marshal(WSMessage{
		Type:      MsgTypeConnected,
		ClientID:  client.id,
		Timestamp: time.Now().UnixMilli(),
	})
	client.write(websocket.TextMessage, welcome)

	// Read loop: only pings are expected from subscribers; anything
	// unreadable ends the connection.
	for {
		var msg WSMessage
		if err := ws.ReadJSON(&msg); err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseNormalClosure) {
				fmt.Printf("[Hub] Subscriber %s read error: %v\n", client.id, err)
			}
			break
		}
		if msg.Type == MsgTypePing {
			pong, _ := json.Marshal(WSMessage{Type: MsgTypePong, Timestamp: time.Now().UnixMilli()})
			client.write(websocket.TextMessage, pong)
		}
	}

	h.unregister(client.id)
	ws.Close()
	fmt.Printf("[Hub] Subscriber %s disconnected\n", client.id)
	return nil
}

func (h *Hub) unregister(id string) {
	h.mu.Lock()
	defer h.mu.Unlock()
	delete(h.clients, id)
}

// ClientCount returns the number of connected subscribers.
func (h *Hub) ClientCount() int {
	h.mu.Lock()
	defer h.mu.Unlock()
	return len(h.clients)
}

// Broadcast pushes one batch to all subscribers. Each encoding is marshaled
// once per call, not once per client.
func (h *Hub) Broadcast(fan models.FanOut) {
	payload, err := json.Marshal(fan)
	if err != nil {
		fmt.Printf("[Hub] Failed to encode batch: %v\n", err)
		return
	}
	jsonData, _ := json.Marshal(WSMessage{
		Type:      MsgTypeFanOut,
		Payload:   payload,
		Timestamp: time.Now().UnixMilli(),
	})

	var msgpackData []byte

	h.mu.Lock()
	targets := make([]*wsClient, 0, len(h.clients))
	for _, client := range h.clients {
		targets = append(targets, client)
	}
	h.mu.Unlock()

	for _, client := range targets {
		data, messageType := jsonData, websocket.TextMessage
		if client.useMsgpack {
			if msgpackData == nil {
				msgpackData, err = msgpack.Marshal(wsFrame{Type: MsgTypeFanOut, Payload: fan})
				if err != nil {
					fmt.Printf("[Hub] Failed to msgpack-encode batch: %v\n", err)
					continue
				}
			}
			data, messageType = msgpackData, websocket.BinaryMessage
		}
		if err := client.write(messageType, data); err != nil {
			fmt.Printf("[Hub] Dropping subscriber %s: %v\n", client.id, err)
			h.unregister(client.id)
			client.conn.Close()
		}
	}
}

// Close disconnects every subscriber and rejects new registrations.
func (h *Hub) Close() {
	h.mu.Lock()
	h.closed = true
	clients := h.clients
	h.clients = make(map[string]*wsClient)
	h.mu.Unlock()

	for _, client := range clients {
		client.conn.Close()
	}
}

// Feed is the read side of the poller the HTTP surface needs: the most
// recently emitted batch.
type Feed interface {
	LastFanOut() *models.FanOut
}

// FeedHandler serves the latest emitted batch over plain HTTP, for hosts
// that poll instead of subscribing.
type FeedHandler struct {
	feed Feed
}

// NewFeedHandler creates the feed handler.
func NewFeedHandler(feed Feed) *FeedHandler {
	return &FeedHandler{feed: feed}
}

// HandleLastFanOut returns the latest batch as JSON, or 404 before the first
// emission.
func (h *FeedHandler) HandleLastFanOut(c echo.Context) error {
	fan := h.feed.LastFanOut()
	if fan == nil {
		return NewNotFoundError("notification batch", "latest")
	}
	return c.JSON(http.StatusOK, fan)
}

// HandleLastFanOutMsgpack returns the latest batch in MessagePack format.
func (h *FeedHandler) HandleLastFanOutMsgpack(c echo.Context) error {
	fan := h.feed.LastFanOut()
	if fan == nil {
		return NewNotFoundError("notification batch", "latest")
	}
	data, err := msgpack.Marshal(fan)
	if err != nil {
		return NewInternalError("failed to encode batch", err)
	}
	return c.Blob(http.StatusOK, "application/x-msgpack", data)
}
