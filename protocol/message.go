// Package protocol defines the JSON messages exchanged between clients and
// the synchronization server. Every frame is a single Message object whose
// Type field selects which of the optional fields carry data.
package protocol

import (
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"collabnotes/ot"
)

// Message types.
const (
	TypeInitialization    = "INITIALIZATION"
	TypeOperation         = "OPERATION"
	TypeUserJoined        = "USER_JOINED"
	TypeUserLeft          = "USER_LEFT"
	TypeUserList          = "USER_LIST"
	TypeUserInfo          = "USER_INFO"
	TypeCursorPosition    = "CURSOR_POSITION"
	TypeExistingUsernames = "EXISTING_USERNAMES"
	TypeNewDocument       = "NEW_DOCUMENT"
	TypePing              = "PING"
	TypePong              = "PONG"
	TypeError             = "ERROR"
)

// GlobalDocumentID is the reserved document ID for the channel that carries
// cross-document notifications such as NEW_DOCUMENT.
const GlobalDocumentID = "global"

// Document describes a document as the server's CRUD API reports it.
type Document struct {
	ID            string    `json:"id"`
	Title         string    `json:"title"`
	CreatedBy     string    `json:"createdBy"`
	CreatedByName string    `json:"createdByName,omitempty"`
	CreatedAt     time.Time `json:"createdAt"`
	UpdatedAt     time.Time `json:"updatedAt"`
}

// Message is the wire envelope for every synchronization frame.
type Message struct {
	Type       string            `json:"type"`
	Operation  *ot.Operation     `json:"operation,omitempty"`
	Operations []ot.Operation    `json:"operations,omitempty"`
	Users      []string          `json:"users,omitempty"`
	UserID     string            `json:"userId,omitempty"`
	Username   string            `json:"username,omitempty"`
	Usernames  map[string]string `json:"usernames,omitempty"`
	DocumentID string            `json:"documentId,omitempty"`
	Position   int               `json:"position"`
	Document   *Document         `json:"document,omitempty"`
	Message    string            `json:"message,omitempty"`
}

// ErrMissingType reports a frame that parsed as JSON but carries no type
// discriminator.
var ErrMissingType = errors.New("message has no type")

// Decode parses a raw frame into a Message.
func Decode(raw []byte) (Message, error) {
	var m Message
	if err := json.Unmarshal(raw, &m); err != nil {
		return Message{}, fmt.Errorf("malformed message: %w", err)
	}
	if m.Type == "" {
		return Message{}, ErrMissingType
	}
	return m, nil
}

// Encode serializes a Message for the wire.
func Encode(m Message) ([]byte, error) {
	raw, err := json.Marshal(m)
	if err != nil {
		return nil, fmt.Errorf("encoding %s message: %w", m.Type, err)
	}
	return raw, nil
}
