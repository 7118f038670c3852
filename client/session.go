package client

import (
	"fmt"
	"log"
	"net/url"
	"sync"
	"time"

	"github.com/cenkalti/backoff"
	"github.com/gorilla/websocket"

	"collabnotes/protocol"
)

// State is the connection state of a Session.
type State string

const (
	StateDisconnected State = "DISCONNECTED"
	StateConnecting   State = "CONNECTING"
	StateConnected    State = "CONNECTED"
	StateError        State = "ERROR"
)

const (
	defaultHeartbeatInterval = 30 * time.Second
	defaultReconnectDelay    = 3 * time.Second
)

// SessionConfig configures a Session. URL is the websocket endpoint, for
// example ws://localhost:8081/api/ws; documentId, userId and username travel
// as query parameters, the addressing scheme the server expects.
type SessionConfig struct {
	URL        string
	DocumentID string
	Identity   Identity

	// HeartbeatInterval and ReconnectDelay default to 30s and 3s. The
	// reconnect delay is fixed, not exponential: one retry in flight,
	// unbounded attempts, evenly spaced.
	HeartbeatInterval time.Duration
	ReconnectDelay    time.Duration

	// OnMessage receives every well-formed inbound frame. Malformed frames
	// are logged and dropped before they get here.
	OnMessage func(protocol.Message)
	// OnState is called on every connection state change.
	OnState func(State)
}

// Session owns the persistent connection to one document's synchronization
// stream: connect, identify, heartbeat, receive, and reconnect after a fixed
// delay. A Session never reconnects once Close has been called.
type Session struct {
	cfg   SessionConfig
	retry backoff.BackOff

	mu        sync.Mutex
	state     State
	conn      *websocket.Conn
	closed    bool
	reconnect *time.Timer
	hbStop    chan struct{}
	// gen counts connection attempts. Read pumps and reconnect timers carry
	// the generation they were armed for and give up when it has moved on,
	// so a timer firing after teardown is a guaranteed no-op.
	gen int
}

// NewSession creates a session in the DISCONNECTED state. Call Connect to
// open it.
func NewSession(cfg SessionConfig) *Session {
	if cfg.HeartbeatInterval <= 0 {
		cfg.HeartbeatInterval = defaultHeartbeatInterval
	}
	if cfg.ReconnectDelay <= 0 {
		cfg.ReconnectDelay = defaultReconnectDelay
	}
	return &Session{
		cfg:   cfg,
		retry: backoff.NewConstantBackOff(cfg.ReconnectDelay),
		state: StateDisconnected,
	}
}

// State returns the current connection state.
func (s *Session) State() State {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.state
}

// Connect opens the connection. It is a no-op when the session is already
// connecting, connected, or closed.
func (s *Session) Connect() {
	s.mu.Lock()
	gen, ok := s.startConnectLocked()
	cb := s.cfg.OnState
	s.mu.Unlock()
	if !ok {
		return
	}
	if cb != nil {
		cb(StateConnecting)
	}
	go s.dial(gen)
}

// startConnectLocked transitions to CONNECTING and returns the new
// generation. The caller holds s.mu.
func (s *Session) startConnectLocked() (int, bool) {
	if s.closed || s.state == StateConnecting || s.state == StateConnected {
		return 0, false
	}
	if s.reconnect != nil {
		s.reconnect.Stop()
		s.reconnect = nil
	}
	s.gen++
	s.state = StateConnecting
	return s.gen, true
}

func (s *Session) dial(gen int) {
	target, err := s.wsURL()
	if err != nil {
		s.connectFailed(gen, err)
		return
	}
	conn, _, err := websocket.DefaultDialer.Dial(target, nil)

	s.mu.Lock()
	if s.closed || gen != s.gen {
		s.mu.Unlock()
		if err == nil {
			conn.Close()
		}
		return
	}
	if err != nil {
		s.state = StateError
		s.scheduleReconnectLocked(gen)
		cb := s.cfg.OnState
		s.mu.Unlock()
		log.Printf("session %s: connect failed: %v", s.cfg.DocumentID, err)
		if cb != nil {
			cb(StateError)
		}
		return
	}
	s.conn = conn
	s.state = StateConnected
	s.retry.Reset()
	stop := make(chan struct{})
	s.hbStop = stop
	cb := s.cfg.OnState
	s.mu.Unlock()

	if cb != nil {
		cb(StateConnected)
	}

	// Announce our display name to the room before anything else.
	info := protocol.Message{
		Type:     protocol.TypeUserInfo,
		UserID:   s.cfg.Identity.UserID,
		Username: s.cfg.Identity.DisplayName,
	}
	if err := s.Send(info); err != nil {
		log.Printf("session %s: sending user info: %v", s.cfg.DocumentID, err)
	}

	go s.heartbeat(stop)
	s.readPump(gen, conn)
}

func (s *Session) connectFailed(gen int, err error) {
	s.mu.Lock()
	if s.closed || gen != s.gen {
		s.mu.Unlock()
		return
	}
	s.state = StateError
	s.scheduleReconnectLocked(gen)
	cb := s.cfg.OnState
	s.mu.Unlock()
	log.Printf("session %s: connect failed: %v", s.cfg.DocumentID, err)
	if cb != nil {
		cb(StateError)
	}
}

// readPump delivers inbound frames one at a time until the connection drops.
// All message handling downstream of OnMessage runs on this goroutine, which
// is what serializes replica and presence mutation.
func (s *Session) readPump(gen int, conn *websocket.Conn) {
	for {
		_, raw, err := conn.ReadMessage()
		if err != nil {
			s.connectionLost(gen, err)
			return
		}
		msg, err := protocol.Decode(raw)
		if err != nil {
			log.Printf("session %s: dropping frame: %v", s.cfg.DocumentID, err)
			continue
		}
		if s.cfg.OnMessage != nil {
			s.cfg.OnMessage(msg)
		}
	}
}

func (s *Session) connectionLost(gen int, err error) {
	s.mu.Lock()
	if s.closed || gen != s.gen {
		s.mu.Unlock()
		return
	}
	s.teardownConnLocked()
	s.state = StateDisconnected
	s.scheduleReconnectLocked(gen)
	cb := s.cfg.OnState
	s.mu.Unlock()
	log.Printf("session %s: connection lost: %v", s.cfg.DocumentID, err)
	if cb != nil {
		cb(StateDisconnected)
	}
}

// scheduleReconnectLocked arms the single reconnect timer. The caller holds
// s.mu. At most one retry is ever pending.
func (s *Session) scheduleReconnectLocked(gen int) {
	if s.reconnect != nil {
		s.reconnect.Stop()
	}
	s.reconnect = time.AfterFunc(s.retry.NextBackOff(), func() {
		s.mu.Lock()
		if s.closed || gen != s.gen {
			s.mu.Unlock()
			return
		}
		s.state = StateDisconnected
		g, ok := s.startConnectLocked()
		cb := s.cfg.OnState
		s.mu.Unlock()
		if !ok {
			return
		}
		if cb != nil {
			cb(StateConnecting)
		}
		go s.dial(g)
	})
}

// heartbeat sends a PING at a fixed interval until stop is closed.
func (s *Session) heartbeat(stop chan struct{}) {
	t := time.NewTicker(s.cfg.HeartbeatInterval)
	defer t.Stop()
	for {
		select {
		case <-stop:
			return
		case <-t.C:
			if err := s.Send(protocol.Message{Type: protocol.TypePing}); err != nil {
				log.Printf("session %s: heartbeat: %v", s.cfg.DocumentID, err)
			}
		}
	}
}

// Send transmits one message. Sending while not connected is a reported
// no-op: the message is dropped and an error returned, never a panic.
func (s *Session) Send(m protocol.Message) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.state != StateConnected || s.conn == nil {
		return fmt.Errorf("session %s: not connected, dropping %s", s.cfg.DocumentID, m.Type)
	}
	if err := s.conn.WriteJSON(m); err != nil {
		return fmt.Errorf("session %s: writing %s: %w", s.cfg.DocumentID, m.Type, err)
	}
	return nil
}

// Close tears the session down permanently: it cancels any pending reconnect,
// stops the heartbeat, and closes the connection.
func (s *Session) Close() {
	s.mu.Lock()
	if s.closed {
		s.mu.Unlock()
		return
	}
	s.closed = true
	s.gen++
	if s.reconnect != nil {
		s.reconnect.Stop()
		s.reconnect = nil
	}
	s.teardownConnLocked()
	changed := s.state != StateDisconnected
	s.state = StateDisconnected
	cb := s.cfg.OnState
	s.mu.Unlock()
	if changed && cb != nil {
		cb(StateDisconnected)
	}
}

// teardownConnLocked closes the connection and stops the heartbeat. The
// caller holds s.mu.
func (s *Session) teardownConnLocked() {
	if s.conn != nil {
		s.conn.Close()
		s.conn = nil
	}
	if s.hbStop != nil {
		close(s.hbStop)
		s.hbStop = nil
	}
}

func (s *Session) wsURL() (string, error) {
	u, err := url.Parse(s.cfg.URL)
	if err != nil {
		return "", fmt.Errorf("session url %q: %w", s.cfg.URL, err)
	}
	q := u.Query()
	q.Set("documentId", s.cfg.DocumentID)
	q.Set("userId", s.cfg.Identity.UserID)
	q.Set("username", s.cfg.Identity.DisplayName)
	u.RawQuery = q.Encode()
	return u.String(), nil
}
