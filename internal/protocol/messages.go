package protocol

import (
	"encoding/json"
	"errors"
	"fmt"
)

// MessageType identifies websocket payload variants.
type MessageType string

const (
	TypeChatOpen      MessageType = "chat_open"
	TypeChatSend      MessageType = "chat_send"
	TypeChatReset     MessageType = "chat_reset"
	TypeSessionReady  MessageType = "session_ready"
	TypeHistory       MessageType = "history"
	TypeAssistantTurn MessageType = "assistant_turn"
	TypeErrorEvent    MessageType = "error_event"
)

var ErrUnsupportedType = errors.New("unsupported message type")

type Envelope struct {
	Type MessageType `json:"type"`
}

// ChatOpen attaches the connection to a session: resume when SessionID is
// set, start new for UserID otherwise.
type ChatOpen struct {
	Type      MessageType `json:"type"`
	SessionID string      `json:"session_id,omitempty"`
	UserID    string      `json:"user_id,omitempty"`
}

// ChatSend submits one human turn on the active session.
type ChatSend struct {
	Type          MessageType `json:"type"`
	Content       string      `json:"content"`
	AttachmentRef string      `json:"attachment_ref,omitempty"`
}

// ChatReset discards the in-memory conversation and starts a fresh session
// for the same user. Stored history is untouched.
type ChatReset struct {
	Type MessageType `json:"type"`
}

type SessionReady struct {
	Type      MessageType `json:"type"`
	SessionID string      `json:"session_id"`
	Persisted bool        `json:"persisted"`
}

type TurnPayload struct {
	Role          string `json:"role"`
	Content       string `json:"content"`
	AttachmentRef string `json:"attachment_ref,omitempty"`
}

type History struct {
	Type      MessageType   `json:"type"`
	SessionID string        `json:"session_id"`
	Turns     []TurnPayload `json:"turns"`
}

type AssistantTurn struct {
	Type      MessageType `json:"type"`
	SessionID string      `json:"session_id"`
	Content   string      `json:"content"`
	Persisted bool        `json:"persisted"`
}

type ErrorEvent struct {
	Type      MessageType `json:"type"`
	SessionID string      `json:"session_id,omitempty"`
	Code      string      `json:"code"`
	Retryable bool        `json:"retryable"`
	Detail    string      `json:"detail"`
}

// ParseClientMessage decodes and validates one inbound client payload.
func ParseClientMessage(raw []byte) (any, error) {
	var env Envelope
	if err := json.Unmarshal(raw, &env); err != nil {
		return nil, fmt.Errorf("invalid envelope: %w", err)
	}

	switch env.Type {
	case TypeChatOpen:
		var msg ChatOpen
		if err := json.Unmarshal(raw, &msg); err != nil {
			return nil, err
		}
		if msg.SessionID == "" && msg.UserID == "" {
			return nil, errors.New("chat_open requires session_id or user_id")
		}
		return msg, nil
	case TypeChatSend:
		var msg ChatSend
		if err := json.Unmarshal(raw, &msg); err != nil {
			return nil, err
		}
		if msg.Content == "" && msg.AttachmentRef == "" {
			return nil, errors.New("chat_send requires content or attachment_ref")
		}
		return msg, nil
	case TypeChatReset:
		var msg ChatReset
		if err := json.Unmarshal(raw, &msg); err != nil {
			return nil, err
		}
		return msg, nil
	default:
		return nil, ErrUnsupportedType
	}
}
