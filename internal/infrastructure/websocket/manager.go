package websocket

import (
	"context"
	"log"
	"sync"

	"github.com/gorilla/websocket"

	"schadenschat/internal/domain/repository"
)

// Client represents a WebSocket connection client
type Client struct {
	ID   string
	Conn *websocket.Conn
	Send chan []byte

	mu            sync.Mutex
	closed        bool
	subscriptions map[string]repository.Unsubscribe
}

func NewClient(id string, conn *websocket.Conn) *Client {
	return &Client{
		ID:            id,
		Conn:          conn,
		Send:          make(chan []byte, 256),
		subscriptions: make(map[string]repository.Unsubscribe),
	}
}

// Manager tracks every open connection and ends their subscriptions on disconnect.
type Manager struct {
	clients    map[string]*Client
	Register   chan *Client
	Unregister chan *Client
	mutex      sync.RWMutex
}

func NewManager() *Manager {
	return &Manager{
		clients:    make(map[string]*Client),
		Register:   make(chan *Client),
		Unregister: make(chan *Client),
	}
}

// Start runs the manager's main loop in a goroutine
func (m *Manager) Start(ctx context.Context) {
	go func() {
		for {
			select {
			case client := <-m.Register:
				m.mutex.Lock()
				m.clients[client.ID] = client
				m.mutex.Unlock()
				log.Printf("Client registered: %s", client.ID)

			case client := <-m.Unregister:
				m.mutex.Lock()
				if _, ok := m.clients[client.ID]; ok {
					delete(m.clients, client.ID)
				}
				m.mutex.Unlock()
				released := client.close()
				log.Printf("Client unregistered: %s (%d subscriptions released)", client.ID, released)

			case <-ctx.Done():
				m.mutex.Lock()
				for id, client := range m.clients {
					client.close()
					delete(m.clients, id)
				}
				m.mutex.Unlock()
				return
			}
		}
	}()
}

func (m *Manager) ClientCount() int {
	m.mutex.RLock()
	defer m.mutex.RUnlock()
	return len(m.clients)
}

// enqueue drops the frame when the client is gone or too slow to keep up.
func (c *Client) enqueue(frame []byte) bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.closed {
		return false
	}
	select {
	case c.Send <- frame:
		return true
	default:
		log.Printf("Client %s is not reading, dropping frame", c.ID)
		return false
	}
}

func (c *Client) addSubscription(channel string, unsubscribe repository.Unsubscribe) bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.closed {
		return false
	}
	if previous, ok := c.subscriptions[channel]; ok {
		previous()
	}
	c.subscriptions[channel] = unsubscribe
	return true
}

func (c *Client) removeSubscription(channel string) bool {
	c.mu.Lock()
	unsubscribe, ok := c.subscriptions[channel]
	delete(c.subscriptions, channel)
	c.mu.Unlock()
	if ok {
		unsubscribe()
	}
	return ok
}

// close releases every subscription and closes Send. It is safe to call twice.
func (c *Client) close() int {
	c.mu.Lock()
	if c.closed {
		c.mu.Unlock()
		return 0
	}
	c.closed = true
	subs := c.subscriptions
	c.subscriptions = nil
	close(c.Send)
	c.mu.Unlock()

	for _, unsubscribe := range subs {
		unsubscribe()
	}
	return len(subs)
}

// ReadPump reads messages from the WebSocket connection
func (c *Client) ReadPump(m *Manager, handler *MessageHandler) {
	defer func() {
		m.Unregister <- c
		c.Conn.Close()
	}()

	for {
		_, message, err := c.Conn.ReadMessage()
		if err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseAbnormalClosure) {
				log.Printf("error: %v", err)
			}
			break
		}

		handler.HandleMessage(c, message)
	}
}

// WritePump sends messages to the WebSocket connection
func (c *Client) WritePump() {
	defer c.Conn.Close()

	for {
		message, ok := <-c.Send
		if !ok {
			c.Conn.WriteMessage(websocket.CloseMessage, []byte{})
			return
		}

		err := c.Conn.WriteMessage(websocket.TextMessage, message)
		if err != nil {
			log.Printf("error: %v", err)
			return
		}
	}
}
