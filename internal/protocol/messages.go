package protocol

import (
	"encoding/json"
	"errors"
	"fmt"

	"github.com/ent0n29/memoryd/internal/memory"
)

// MessageType identifies websocket payload variants.
type MessageType string

const (
	TypeClientControl    MessageType = "client_control"
	TypeMemoryStored     MessageType = "memory_stored"
	TypeTimelineSnapshot MessageType = "timeline_snapshot"
	TypeSystemEvent      MessageType = "system_event"
	TypeErrorEvent       MessageType = "error_event"
)

// Client control actions.
const (
	ActionPing     = "ping"
	ActionBackfill = "backfill"
)

var ErrUnsupportedType = errors.New("unsupported message type")

type Envelope struct {
	Type MessageType `json:"type"`
}

type ClientControl struct {
	Type   MessageType `json:"type"`
	Action string      `json:"action"`
}

type MemoryStored struct {
	Type           MessageType `json:"type"`
	SubscriptionID string      `json:"subscription_id"`
	Item           memory.Item `json:"item"`
}

type TimelineSnapshot struct {
	Type           MessageType   `json:"type"`
	SubscriptionID string        `json:"subscription_id"`
	UserID         string        `json:"user_id"`
	Items          []memory.Item `json:"items"`
}

type SystemEvent struct {
	Type           MessageType `json:"type"`
	SubscriptionID string      `json:"subscription_id"`
	Code           string      `json:"code"`
	Detail         string      `json:"detail,omitempty"`
}

type ErrorEvent struct {
	Type           MessageType `json:"type"`
	SubscriptionID string      `json:"subscription_id"`
	Code           string      `json:"code"`
	Source         string      `json:"source"`
	Retryable      bool        `json:"retryable"`
	Detail         string      `json:"detail"`
}

func ParseClientMessage(raw []byte) (any, error) {
	var env Envelope
	if err := json.Unmarshal(raw, &env); err != nil {
		return nil, fmt.Errorf("invalid envelope: %w", err)
	}

	switch env.Type {
	case TypeClientControl:
		var msg ClientControl
		if err := json.Unmarshal(raw, &msg); err != nil {
			return nil, err
		}
		switch msg.Action {
		case ActionPing, ActionBackfill:
			return msg, nil
		default:
			return nil, fmt.Errorf("invalid client_control action %q", msg.Action)
		}
	default:
		return nil, ErrUnsupportedType
	}
}
