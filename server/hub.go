package server

import (
	"context"
	"log"
	"net/http"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/gorilla/websocket"

	"collabnotes/ot"
	"collabnotes/protocol"
)

// Hub routes synchronization traffic: it upgrades websocket connections,
// maintains one room per document, persists operations, and fans them out to
// every replica. The reserved "global" room carries cross-document
// notifications only.
type Hub struct {
	store    Store
	upgrader websocket.Upgrader

	mu        sync.Mutex
	rooms     map[string]*room
	usernames map[string]string // userId -> display name, shared across rooms
	seq       map[string]int64  // per-document operation sequence
	publish   func(documentID string, frame []byte)
}

// NewHub creates a hub backed by the given store.
func NewHub(store Store) *Hub {
	return &Hub{
		store: store,
		upgrader: websocket.Upgrader{
			ReadBufferSize:  1024,
			WriteBufferSize: 1024,
			CheckOrigin:     func(r *http.Request) bool { return true },
		},
		rooms:     make(map[string]*room),
		usernames: make(map[string]string),
		seq:       make(map[string]int64),
	}
}

// SetPublisher installs the fan-out hook used by the Redis bridge. Frames
// broadcast locally are also handed to publish; frames arriving from other
// instances come back in through InjectFrame.
func (h *Hub) SetPublisher(publish func(documentID string, frame []byte)) {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.publish = publish
}

// InjectFrame broadcasts a frame that originated on another server instance
// to the local room, without republishing it.
func (h *Hub) InjectFrame(documentID string, frame []byte) {
	h.mu.Lock()
	r := h.rooms[documentID]
	h.mu.Unlock()
	if r != nil {
		r.broadcast(frame, nil)
	}
}

func (h *Hub) room(documentID string) *room {
	h.mu.Lock()
	defer h.mu.Unlock()
	return h.roomLocked(documentID)
}

func (h *Hub) roomLocked(documentID string) *room {
	r, ok := h.rooms[documentID]
	if !ok {
		r = newRoom(documentID)
		h.rooms[documentID] = r
	}
	return r
}

// join resolves the room and registers the client in one step under h.mu.
// Resolving and adding separately would race dropRoomIfEmpty: the room could
// be deleted from the map between the two, leaving the client in an orphaned
// room that no broadcast will ever reach.
func (h *Hub) join(documentID string, c *wsClient) *room {
	h.mu.Lock()
	defer h.mu.Unlock()
	r := h.roomLocked(documentID)
	r.add(c)
	return r
}

func (h *Hub) dropRoomIfEmpty(r *room) {
	h.mu.Lock()
	defer h.mu.Unlock()
	if r.empty() {
		delete(h.rooms, r.documentID)
	}
}

func (h *Hub) setUsername(userID, username string) {
	if username == "" {
		return
	}
	h.mu.Lock()
	h.usernames[userID] = username
	h.mu.Unlock()
}

func (h *Hub) usernamesSnapshot() map[string]string {
	h.mu.Lock()
	defer h.mu.Unlock()
	out := make(map[string]string, len(h.usernames))
	for id, name := range h.usernames {
		out[id] = name
	}
	return out
}

// nextSeq assigns the next operation sequence number for a document, seeding
// the counter from stored history the first time the document is seen.
func (h *Hub) nextSeq(ctx context.Context, documentID string) int64 {
	h.mu.Lock()
	defer h.mu.Unlock()
	if _, ok := h.seq[documentID]; !ok {
		ops, err := h.store.Operations(ctx, documentID)
		if err != nil {
			log.Printf("hub: seeding sequence for %s: %v", documentID, err)
		}
		h.seq[documentID] = int64(len(ops))
	}
	h.seq[documentID]++
	return h.seq[documentID]
}

// HandleWS is the websocket endpoint. documentId, userId, and username
// arrive as query parameters; documentId and userId are mandatory.
func (h *Hub) HandleWS(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()
	documentID := q.Get("documentId")
	userID := q.Get("userId")
	username := q.Get("username")
	if documentID == "" || userID == "" {
		http.Error(w, "documentId and userId are required", http.StatusBadRequest)
		return
	}

	conn, err := h.upgrader.Upgrade(w, r, nil)
	if err != nil {
		log.Printf("hub: upgrade failed: %v", err)
		return
	}

	h.setUsername(userID, username)
	c := &wsClient{
		hub:      h,
		conn:     conn,
		send:     make(chan []byte, 256),
		userID:   userID,
		username: username,
	}
	room := h.join(documentID, c)
	c.room = room
	go c.writePump()

	if documentID != protocol.GlobalDocumentID {
		h.initialize(r.Context(), c)
	}

	h.readPump(c)

	room.remove(c)
	h.dropRoomIfEmpty(room)
	if documentID != protocol.GlobalDocumentID {
		room.broadcastMessage(protocol.Message{Type: protocol.TypeUserLeft, UserID: userID}, nil)
	}
}

// initialize sends the full resync snapshot to a freshly joined client and
// announces the join to the rest of the room. Sent on every (re)join, so a
// reconnecting client recovers everything it missed.
func (h *Hub) initialize(ctx context.Context, c *wsClient) {
	ops, err := h.store.Operations(ctx, c.room.documentID)
	if err != nil {
		log.Printf("hub: loading history for %s: %v", c.room.documentID, err)
		c.enqueue(protocol.Message{Type: protocol.TypeError, Message: "failed to load document history"})
		return
	}
	c.enqueue(protocol.Message{
		Type:       protocol.TypeInitialization,
		Operations: ops,
		Users:      c.room.userIDs(),
	})
	c.enqueue(protocol.Message{
		Type:      protocol.TypeExistingUsernames,
		Usernames: h.usernamesSnapshot(),
	})
	c.room.broadcastMessage(protocol.Message{
		Type:     protocol.TypeUserJoined,
		UserID:   c.userID,
		Username: c.username,
	}, c)
}

func (h *Hub) readPump(c *wsClient) {
	for {
		_, raw, err := c.conn.ReadMessage()
		if err != nil {
			return
		}
		msg, err := protocol.Decode(raw)
		if err != nil {
			log.Printf("hub: bad frame from %s: %v", c.userID, err)
			c.enqueue(protocol.Message{Type: protocol.TypeError, Message: err.Error()})
			continue
		}
		h.dispatch(c, msg)
	}
}

func (h *Hub) dispatch(c *wsClient, msg protocol.Message) {
	switch msg.Type {
	case protocol.TypePing:
		c.enqueue(protocol.Message{Type: protocol.TypePong})

	case protocol.TypeUserInfo:
		if msg.Username != "" {
			c.username = msg.Username
			h.setUsername(c.userID, msg.Username)
			c.room.broadcastMessage(protocol.Message{
				Type:     protocol.TypeUserJoined,
				UserID:   c.userID,
				Username: msg.Username,
			}, c)
		}

	case protocol.TypeOperation:
		h.handleOperation(c, msg)

	case protocol.TypeCursorPosition:
		// Relay with authoritative identity; the sender does not get its own
		// cursor back.
		out := protocol.Message{
			Type:       protocol.TypeCursorPosition,
			DocumentID: c.room.documentID,
			UserID:     c.userID,
			Username:   h.nameOf(c.userID),
			Position:   msg.Position,
		}
		c.room.broadcastMessage(out, c)
		h.republish(c.room.documentID, out)

	case protocol.TypeNewDocument:
		// Cross-document notification, routed on the global room regardless
		// of which connection it arrived on.
		global := h.room(protocol.GlobalDocumentID)
		global.broadcastMessage(msg, c)
		h.republish(protocol.GlobalDocumentID, msg)

	default:
		log.Printf("hub: unknown message type %q from %s", msg.Type, c.userID)
	}
}

// handleOperation stamps, persists, and fans out one edit. The operation
// goes to every client in the room, the sender included: clients recognize
// their own echo by originId and use it to settle pending operations.
func (h *Hub) handleOperation(c *wsClient, msg protocol.Message) {
	if msg.Operation == nil {
		c.enqueue(protocol.Message{Type: protocol.TypeError, Message: "OPERATION message without operation"})
		return
	}
	op := *msg.Operation
	if op.Kind != ot.Insert && op.Kind != ot.Delete {
		c.enqueue(protocol.Message{Type: protocol.TypeError, Message: "unknown operation kind"})
		return
	}
	if op.Text == "" {
		c.enqueue(protocol.Message{Type: protocol.TypeError, Message: "empty operation text"})
		return
	}

	// The connection, not the payload, is authoritative for addressing.
	op.DocumentID = c.room.documentID
	op.UserID = c.userID
	op.Timestamp = time.Now().UnixMilli()
	if op.ID == "" {
		op.ID = uuid.NewString()
	}
	ctx := context.Background()
	op.Sequence = h.nextSeq(ctx, op.DocumentID)

	if err := h.store.AppendOperation(ctx, op); err != nil {
		log.Printf("hub: persisting operation for %s: %v", op.DocumentID, err)
		c.enqueue(protocol.Message{Type: protocol.TypeError, Message: "failed to persist operation"})
		return
	}

	out := protocol.Message{Type: protocol.TypeOperation, Operation: &op}
	c.room.broadcastMessage(out, nil)
	h.republish(op.DocumentID, out)
}

// BroadcastNewDocument notifies every client on the global room about a
// document created through the REST API.
func (h *Hub) BroadcastNewDocument(doc protocol.Document) {
	m := protocol.Message{Type: protocol.TypeNewDocument, Document: &doc}
	h.room(protocol.GlobalDocumentID).broadcastMessage(m, nil)
	h.republish(protocol.GlobalDocumentID, m)
}

func (h *Hub) nameOf(userID string) string {
	h.mu.Lock()
	defer h.mu.Unlock()
	return h.usernames[userID]
}

func (h *Hub) republish(documentID string, m protocol.Message) {
	h.mu.Lock()
	publish := h.publish
	h.mu.Unlock()
	if publish == nil {
		return
	}
	frame, err := protocol.Encode(m)
	if err != nil {
		log.Printf("hub: %v", err)
		return
	}
	publish(documentID, frame)
}
