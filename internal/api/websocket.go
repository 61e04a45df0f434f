package api

import (
	"encoding/json"
	"log"
	"net/http"
	"sync"
	"time"

	"memtrigger/internal/monitor"
	"memtrigger/internal/protocol"

	"github.com/gorilla/websocket"
)

var upgrader = websocket.Upgrader{
	ReadBufferSize:  1024,
	WriteBufferSize: 1024,
	// The server only listens on localhost
	CheckOrigin: func(r *http.Request) bool {
		return true
	},
}

// WSManager handles WebSocket connections and broadcasting
type WSManager struct {
	server     *Server
	clients    map[*WebSocketClient]bool
	clientsMu  sync.RWMutex
	events     chan monitor.Event
	register   chan *WebSocketClient
	unregister chan *WebSocketClient
	shutdown   chan struct{}
	stopOnce   sync.Once
}

// WebSocketClient represents a connected GUI
type WebSocketClient struct {
	manager *WSManager
	conn    *websocket.Conn
	send    chan []byte
	ip      string
}

// helloPayload is the payload for TypeHello
type helloPayload struct {
	PID      int             `json:"pid,omitempty"`
	Monitors []monitor.State `json:"monitors"`
}

func newWSManager(s *Server) *WSManager {
	return &WSManager{
		server:     s,
		clients:    make(map[*WebSocketClient]bool),
		events:     make(chan monitor.Event, 256),
		register:   make(chan *WebSocketClient),
		unregister: make(chan *WebSocketClient),
		shutdown:   make(chan struct{}),
	}
}

func (m *WSManager) start() {
	for {
		select {
		case client := <-m.register:
			m.clientsMu.Lock()
			m.clients[client] = true
			n := len(m.clients)
			m.clientsMu.Unlock()
			log.Printf("WS: New client registered from %s. Total clients: %d", client.ip, n)
			m.sendTo(client, m.hello())

		case client := <-m.unregister:
			m.clientsMu.Lock()
			if _, ok := m.clients[client]; ok {
				delete(m.clients, client)
				close(client.send)
				log.Printf("WS: Client unregistered from %s. Total clients: %d", client.ip, len(m.clients))
			}
			m.clientsMu.Unlock()

		case ev := <-m.events:
			m.broadcastMessage(m.messageFor(ev))

		case <-m.shutdown:
			m.clientsMu.Lock()
			for client := range m.clients {
				close(client.send)
				delete(m.clients, client)
			}
			m.clientsMu.Unlock()
			return
		}
	}
}

func (m *WSManager) stop() {
	m.stopOnce.Do(func() { close(m.shutdown) })
}

func (m *WSManager) hello() protocol.Message {
	p := helloPayload{Monitors: m.server.sup.States()}
	if proc := m.server.sup.Attached(); proc != nil {
		p.PID = proc.PID()
	}
	return protocol.Message{Type: protocol.TypeHello, Payload: p}
}

// messageFor translates a supervisor event into its wire message.
func (m *WSManager) messageFor(ev monitor.Event) protocol.Message {
	switch ev.Type {
	case monitor.EventAttached:
		return protocol.Message{Type: protocol.TypeAttached, Payload: protocol.ProcessPayload{PID: ev.PID}}

	case monitor.EventDetached:
		return protocol.Message{Type: protocol.TypeDetached, Payload: protocol.ProcessPayload{PID: ev.PID, Reason: ev.Reason}}

	case monitor.EventReaction:
		if r := ev.Reaction; r != nil {
			return protocol.Message{Type: protocol.TypeReaction, Payload: protocol.ReactionPayload{
				BindingID: r.BindingID,
				Value:     r.Value,
				Address:   uint64(r.Address),
				StartedAt: r.StartedAt,
				Duration:  r.Duration,
				Aborted:   r.Aborted,
			}}
		}
	}

	for _, st := range m.server.sup.States() {
		if st.ID == ev.BindingID {
			return protocol.Message{Type: protocol.TypeState, Payload: st}
		}
	}
	return protocol.Message{Type: protocol.TypeState, Payload: monitor.State{ID: ev.BindingID}}
}

func (m *WSManager) sendTo(client *WebSocketClient, message protocol.Message) {
	jsonMsg, err := json.Marshal(message)
	if err != nil {
		log.Printf("WS: Failed to marshal message: %v", err)
		return
	}
	select {
	case client.send <- jsonMsg:
	default:
	}
}

func (m *WSManager) broadcastMessage(message protocol.Message) {
	jsonMsg, err := json.Marshal(message)
	if err != nil {
		log.Printf("WS: Failed to marshal broadcast message: %v", err)
		return
	}

	m.clientsMu.Lock()
	defer m.clientsMu.Unlock()

	for client := range m.clients {
		select {
		case client.send <- jsonMsg:
		default:
			// Slow client, drop it
			close(client.send)
			delete(m.clients, client)
		}
	}
}

// BroadcastEvent queues ev for every connected client. Events are dropped
// when the queue is full so monitor goroutines never wait on the network.
func (m *WSManager) BroadcastEvent(ev monitor.Event) {
	select {
	case m.events <- ev:
	default:
		log.Printf("WS: Event queue full, dropping %s event", ev.Type)
	}
}

func (m *WSManager) handleWebSocket(w http.ResponseWriter, r *http.Request) {
	conn, err := upgrader.Upgrade(w, r, nil)
	if err != nil {
		log.Printf("WS: Failed to upgrade connection: %v", err)
		return
	}

	client := &WebSocketClient{
		manager: m,
		conn:    conn,
		send:    make(chan []byte, 256),
		ip:      r.RemoteAddr,
	}

	select {
	case m.register <- client:
	case <-m.shutdown:
		conn.Close()
		return
	}

	// Start pump goroutines
	go client.writePump()
	go client.readPump()
}

// readPump pumps messages from the websocket connection to the hub.
func (c *WebSocketClient) readPump() {
	defer func() {
		select {
		case c.manager.unregister <- c:
		case <-c.manager.shutdown:
		}
		c.conn.Close()
	}()

	c.conn.SetReadLimit(4096)
	c.conn.SetReadDeadline(time.Now().Add(60 * time.Second))
	c.conn.SetPongHandler(func(string) error { c.conn.SetReadDeadline(time.Now().Add(60 * time.Second)); return nil })

	for {
		_, message, err := c.conn.ReadMessage()
		if err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseAbnormalClosure) {
				log.Printf("WS: Read error: %v", err)
			}
			break
		}

		c.handleMessage(message)
	}
}

// writePump pumps messages from the hub to the websocket connection.
func (c *WebSocketClient) writePump() {
	ticker := time.NewTicker(50 * time.Second)
	defer func() {
		ticker.Stop()
		c.conn.Close()
	}()

	for {
		select {
		case message, ok := <-c.send:
			c.conn.SetWriteDeadline(time.Now().Add(10 * time.Second))
			if !ok {
				// The hub closed the channel.
				c.conn.WriteMessage(websocket.CloseMessage, []byte{})
				return
			}

			w, err := c.conn.NextWriter(websocket.TextMessage)
			if err != nil {
				return
			}
			w.Write(message)

			if err := w.Close(); err != nil {
				return
			}

		case <-ticker.C:
			c.conn.SetWriteDeadline(time.Now().Add(10 * time.Second))
			if err := c.conn.WriteMessage(websocket.PingMessage, nil); err != nil {
				return
			}
		}
	}
}

// handleMessage answers client requests. Clients are observers; control
// goes through the HTTP endpoints.
func (c *WebSocketClient) handleMessage(data []byte) {
	var msg protocol.Message
	if err := json.Unmarshal(data, &msg); err != nil {
		log.Printf("WS: Invalid message format: %v", err)
		return
	}

	switch msg.Type {
	case protocol.TypePing:
		c.reply(protocol.Message{Type: protocol.TypePing})

	case protocol.TypeHello:
		// Resync request
		c.reply(c.manager.hello())

	default:
		log.Printf("WS: Ignoring %q message from %s", msg.Type, c.ip)
	}
}

// reply writes directly to the client's queue. The hub may have closed it
// already, so a send on a closed channel is recovered.
func (c *WebSocketClient) reply(msg protocol.Message) {
	defer func() { recover() }()
	c.manager.sendTo(c, msg)
}
