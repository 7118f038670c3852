package client

import (
	"log"
	"sync"
	"time"

	"collabnotes/ot"
	"collabnotes/protocol"
)

const defaultCursorDebounce = 100 * time.Millisecond

// Controller orchestrates synchronization for a single open document at a
// time: it owns the replica (content plus applied-operation log), the
// pending-operation set, presence, and the local cursor. Local content is
// the write-ahead copy; the server's operation stream is the log.
//
// All mutation happens under one lock, taken by the session's read pump, by
// the local-edit entry points, and by timer callbacks, so state transitions
// never overlap. Hooks are invoked after the lock is released and may call
// back into the controller.
type Controller struct {
	identity Identity

	// Hooks. Set them before Open; they stay in place across documents.
	OnContentChange   func(content string)
	OnRemoteOperation func(op ot.Operation)
	OnPresenceChange  func(users []PresenceEntry)
	OnNewDocument     func(doc protocol.Document)
	OnStateChange     func(state State)

	// CursorDebounce is the window for coalescing cursor broadcasts.
	// Defaults to 100ms; only the latest position within the window is sent.
	CursorDebounce time.Duration

	mu sync.Mutex
	// generation is bumped on every Open and Close. Session callbacks and
	// cursor timers carry the generation they were created under and are
	// no-ops once it has moved on, so a fast document switch-and-return
	// cannot resurrect a stale channel.
	generation int
	doc        *protocol.Document
	session    *Session
	send       func(protocol.Message) error

	content  string
	history  []ot.Operation
	clamps   int
	pending  map[string]ot.Operation
	sequence int64

	cursor      int
	cursorEnd   int
	cursorTimer *time.Timer
	presence    *Presence
}

// NewController creates a controller for the given local identity.
func NewController(identity Identity) *Controller {
	c := &Controller{identity: identity}
	c.resetReplicaLocked()
	return c
}

// Open connects to a document's synchronization stream, tearing down any
// previously open document first. serverURL is the websocket endpoint, for
// example ws://localhost:8081/api/ws.
func (c *Controller) Open(serverURL string, doc protocol.Document) {
	c.mu.Lock()
	old := c.session
	c.stopCursorTimerLocked()
	c.generation++
	gen := c.generation
	c.doc = &doc
	c.resetReplicaLocked()
	sess := NewSession(SessionConfig{
		URL:        serverURL,
		DocumentID: doc.ID,
		Identity:   c.identity,
		OnMessage:  func(m protocol.Message) { c.handle(gen, m) },
		OnState:    func(st State) { c.sessionState(gen, st) },
	})
	c.session = sess
	c.send = sess.Send
	c.mu.Unlock()

	if old != nil {
		old.Close()
	}
	sess.Connect()
}

// Close tears down the current document: session, replica, presence, pending
// operations, and any armed timers. Safe to call when nothing is open.
func (c *Controller) Close() {
	c.mu.Lock()
	old := c.session
	c.session = nil
	c.send = nil
	c.stopCursorTimerLocked()
	c.generation++
	c.doc = nil
	c.resetReplicaLocked()
	c.mu.Unlock()

	if old != nil {
		old.Close()
	}
}

// resetReplicaLocked clears all per-document state. The caller holds c.mu.
func (c *Controller) resetReplicaLocked() {
	c.content = ""
	c.history = nil
	c.clamps = 0
	c.pending = make(map[string]ot.Operation)
	c.sequence = 0
	c.cursor = 0
	c.cursorEnd = 0
	c.presence = NewPresence(c.identity.UserID, c.identity.DisplayName)
}

func (c *Controller) stopCursorTimerLocked() {
	if c.cursorTimer != nil {
		c.cursorTimer.Stop()
		c.cursorTimer = nil
	}
}

// Edit ingests a local edit as the new full buffer snapshot. The change is
// diffed against the replica, applied optimistically, appended to history,
// and sent. When the session is down the local apply still happens; the
// dropped send is logged, matching the "local content is the write-ahead
// copy" model.
func (c *Controller) Edit(newContent string) {
	c.mu.Lock()
	if c.doc == nil {
		c.mu.Unlock()
		return
	}
	var outbound []protocol.Message
	for _, d := range ot.Diff(c.content, newContent) {
		op, err := ot.New(d.Kind, d.Position, d.Text, c.doc.ID, c.identity.UserID)
		if err != nil {
			log.Printf("controller %s: skipping local edit: %v", c.doc.ID, err)
			continue
		}
		c.sequence++
		op.Sequence = c.sequence
		c.content = ot.Apply(c.content, op)
		c.history = append(c.history, op)
		c.pending[op.ID] = op
		msg := protocol.Message{Type: protocol.TypeOperation, Operation: &op}
		outbound = append(outbound, msg)
	}
	send := c.send
	doc := c.doc.ID
	c.mu.Unlock()

	for _, m := range outbound {
		if send == nil {
			log.Printf("controller %s: no session, dropping %s", doc, m.Operation)
			continue
		}
		if err := send(m); err != nil {
			log.Printf("controller %s: %v", doc, err)
		}
	}
}

// SetCursor records the local cursor position and schedules a debounced
// broadcast.
func (c *Controller) SetCursor(position int) {
	c.SetSelection(position, position)
}

// SetSelection records the local selection. The broadcast is a single-slot
// "latest value wins" timer: each call cancels and replaces the pending
// send, so only the final position within the debounce window goes out.
func (c *Controller) SetSelection(start, end int) {
	c.mu.Lock()
	if c.doc == nil {
		c.mu.Unlock()
		return
	}
	c.cursor, c.cursorEnd = start, end
	gen := c.generation
	c.stopCursorTimerLocked()
	d := c.CursorDebounce
	if d <= 0 {
		d = defaultCursorDebounce
	}
	c.cursorTimer = time.AfterFunc(d, func() { c.broadcastCursor(gen) })
	c.mu.Unlock()
}

func (c *Controller) broadcastCursor(gen int) {
	c.mu.Lock()
	if gen != c.generation || c.doc == nil {
		c.mu.Unlock()
		return
	}
	m := protocol.Message{
		Type:       protocol.TypeCursorPosition,
		DocumentID: c.doc.ID,
		UserID:     c.identity.UserID,
		Username:   c.identity.DisplayName,
		Position:   c.cursor,
	}
	send := c.send
	doc := c.doc.ID
	c.mu.Unlock()

	if send != nil {
		if err := send(m); err != nil {
			log.Printf("controller %s: cursor broadcast: %v", doc, err)
		}
	}
}

// sessionState forwards connection state changes for the current generation.
func (c *Controller) sessionState(gen int, st State) {
	c.mu.Lock()
	stale := gen != c.generation
	cb := c.OnStateChange
	c.mu.Unlock()
	if !stale && cb != nil {
		cb(st)
	}
}

// handle processes one inbound message. Messages from a superseded session
// generation are discarded outright.
func (c *Controller) handle(gen int, m protocol.Message) {
	c.mu.Lock()
	if gen != c.generation || c.doc == nil {
		c.mu.Unlock()
		return
	}
	var after []func()
	switch m.Type {
	case protocol.TypeInitialization:
		// Full resync: discard speculative state and rebuild from the
		// authoritative log. This runs on first join and on every reconnect,
		// which is how operations missed while disconnected are recovered.
		ops := append([]ot.Operation(nil), m.Operations...)
		c.content = ot.Rebuild(ops)
		c.history = ops
		c.pending = make(map[string]ot.Operation)
		if m.Users != nil {
			c.presence.Replace(m.Users)
		}
		after = c.notifyContentLocked(after)
		after = c.notifyPresenceLocked(after)

	case protocol.TypeOperation:
		after = c.handleOperationLocked(m, after)

	case protocol.TypeCursorPosition:
		if m.DocumentID != c.doc.ID {
			// Stale frame from a previously open document.
			log.Printf("controller %s: discarding cursor for %s", c.doc.ID, m.DocumentID)
			break
		}
		// SetCursor ignores reports about the local user.
		c.presence.SetCursor(m.UserID, m.Username, m.Position)
		after = c.notifyPresenceLocked(after)

	case protocol.TypeUserJoined:
		c.presence.Join(m.UserID, m.Username)
		after = c.notifyPresenceLocked(after)

	case protocol.TypeUserLeft:
		c.presence.Leave(m.UserID)
		after = c.notifyPresenceLocked(after)

	case protocol.TypeUserList:
		c.presence.Replace(m.Users)
		after = c.notifyPresenceLocked(after)

	case protocol.TypeExistingUsernames:
		c.presence.BackfillNames(m.Usernames)
		after = c.notifyPresenceLocked(after)

	case protocol.TypeNewDocument:
		if m.Document != nil {
			doc := *m.Document
			if cb := c.OnNewDocument; cb != nil {
				after = append(after, func() { cb(doc) })
			}
		}

	case protocol.TypePong:
		// Heartbeat response; nothing to do.

	case protocol.TypeError:
		log.Printf("controller %s: server error: %s", c.doc.ID, m.Message)

	default:
		log.Printf("controller %s: unknown message type %q", c.doc.ID, m.Type)
	}
	c.mu.Unlock()

	for _, f := range after {
		f()
	}
}

func (c *Controller) handleOperationLocked(m protocol.Message, after []func()) []func() {
	if m.Operation == nil {
		log.Printf("controller %s: OPERATION message without operation", c.doc.ID)
		return after
	}
	op := *m.Operation
	if op.DocumentID != c.doc.ID {
		// Stale frame from a previously open document.
		log.Printf("controller %s: discarding operation for %s", c.doc.ID, op.DocumentID)
		return after
	}
	if op.UserID == c.identity.UserID {
		// Echo of our own edit: it was already applied optimistically, so
		// record it for history only and settle the pending entry.
		delete(c.pending, op.ID)
		c.history = append(c.history, op)
		return after
	}

	// Keep the local caret in place relative to the text around it before
	// the remote text shifts it.
	c.cursor, c.cursorEnd = ot.TransformRange(c.cursor, c.cursorEnd, op)

	if op.Kind != ot.Insert && op.Kind != ot.Delete {
		log.Printf("controller %s: unknown operation kind %q from %s", c.doc.ID, op.Kind, op.UserID)
	} else if ot.Clamps(c.content, op) {
		c.clamps++
		log.Printf("controller %s: clamped %s (content is %d runes, %d clamps total)",
			c.doc.ID, op, len([]rune(c.content)), c.clamps)
	}
	c.content = ot.Apply(c.content, op)
	c.history = append(c.history, op)

	if cb := c.OnRemoteOperation; cb != nil {
		after = append(after, func() { cb(op) })
	}
	return c.notifyContentLocked(after)
}

func (c *Controller) notifyContentLocked(after []func()) []func() {
	if cb := c.OnContentChange; cb != nil {
		content := c.content
		after = append(after, func() { cb(content) })
	}
	return after
}

func (c *Controller) notifyPresenceLocked(after []func()) []func() {
	if cb := c.OnPresenceChange; cb != nil {
		users := c.presence.Users()
		after = append(after, func() { cb(users) })
	}
	return after
}

// Content returns the current replica content.
func (c *Controller) Content() string {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.content
}

// Selection returns the local cursor and selection end.
func (c *Controller) Selection() (start, end int) {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.cursor, c.cursorEnd
}

// History returns a copy of the applied-operation log.
func (c *Controller) History() []ot.Operation {
	c.mu.Lock()
	defer c.mu.Unlock()
	return append([]ot.Operation(nil), c.history...)
}

// Clamps returns how many remote operations needed defensive clamping. A
// nonzero count means the replicas have probably diverged at some point.
func (c *Controller) Clamps() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.clamps
}

// PendingOperations returns how many local operations are sent but not yet
// echoed back.
func (c *Controller) PendingOperations() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return len(c.pending)
}

// Users returns the presence snapshot for the open document.
func (c *Controller) Users() []PresenceEntry {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.presence.Users()
}

// State returns the connection state of the current session.
func (c *Controller) State() State {
	c.mu.Lock()
	sess := c.session
	c.mu.Unlock()
	if sess == nil {
		return StateDisconnected
	}
	return sess.State()
}
