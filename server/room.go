package server

import (
	"log"
	"sync"

	"github.com/gorilla/websocket"

	"collabnotes/protocol"
)

// room is the set of live connections viewing one document.
type room struct {
	documentID string

	mu      sync.Mutex
	clients map[*wsClient]bool
}

func newRoom(documentID string) *room {
	return &room{
		documentID: documentID,
		clients:    make(map[*wsClient]bool),
	}
}

func (r *room) add(c *wsClient) {
	r.mu.Lock()
	r.clients[c] = true
	n := len(r.clients)
	r.mu.Unlock()
	log.Printf("room %s: client %s joined (%d connected)", r.documentID, c.userID, n)
}

func (r *room) remove(c *wsClient) {
	r.mu.Lock()
	if _, ok := r.clients[c]; ok {
		delete(r.clients, c)
		close(c.send)
	}
	n := len(r.clients)
	r.mu.Unlock()
	log.Printf("room %s: client %s left (%d connected)", r.documentID, c.userID, n)
}

func (r *room) empty() bool {
	r.mu.Lock()
	defer r.mu.Unlock()
	return len(r.clients) == 0
}

// userIDs returns the distinct users connected to the room.
func (r *room) userIDs() []string {
	r.mu.Lock()
	defer r.mu.Unlock()
	seen := make(map[string]bool, len(r.clients))
	var out []string
	for c := range r.clients {
		if !seen[c.userID] {
			seen[c.userID] = true
			out = append(out, c.userID)
		}
	}
	return out
}

// broadcast queues frame on every client except the one given (nil means
// everyone). A client whose send buffer is full is dropped rather than
// allowed to stall the room.
func (r *room) broadcast(frame []byte, except *wsClient) {
	r.mu.Lock()
	defer r.mu.Unlock()
	for c := range r.clients {
		if c == except {
			continue
		}
		select {
		case c.send <- frame:
		default:
			delete(r.clients, c)
			close(c.send)
			c.conn.Close()
			log.Printf("room %s: dropped slow client %s", r.documentID, c.userID)
		}
	}
}

func (r *room) broadcastMessage(m protocol.Message, except *wsClient) {
	frame, err := protocol.Encode(m)
	if err != nil {
		log.Printf("room %s: %v", r.documentID, err)
		return
	}
	r.broadcast(frame, except)
}

// wsClient is one websocket connection in a room.
type wsClient struct {
	hub      *Hub
	room     *room
	conn     *websocket.Conn
	send     chan []byte
	userID   string
	username string
}

// enqueue queues a frame for this client only. It goes through the room
// lock so it can never race a close of the send channel.
func (c *wsClient) enqueue(m protocol.Message) {
	frame, err := protocol.Encode(m)
	if err != nil {
		log.Printf("room %s: %v", c.room.documentID, err)
		return
	}
	r := c.room
	r.mu.Lock()
	defer r.mu.Unlock()
	if !r.clients[c] {
		return
	}
	select {
	case c.send <- frame:
	default:
		log.Printf("room %s: send buffer full for %s, dropping %s", r.documentID, c.userID, m.Type)
	}
}

// writePump drains the send channel onto the connection. One writer per
// connection, as the websocket package requires.
func (c *wsClient) writePump() {
	defer c.conn.Close()
	for frame := range c.send {
		if err := c.conn.WriteMessage(websocket.TextMessage, frame); err != nil {
			return
		}
	}
	c.conn.WriteMessage(websocket.CloseMessage, []byte{})
}
