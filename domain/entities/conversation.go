package entities

import (
	"errors"
	"strings"
)

// ConnectionKind tells where a connection comes from.
type ConnectionKind string

const (
	ConnectionKindTelephony ConnectionKind = "telephony"
	ConnectionKindWidget    ConnectionKind = "widget"
)

// ConversationMode is the negotiated interaction mode of a connection.
type ConversationMode string

const (
	ConversationModeCall ConversationMode = "call"
	ConversationModeChat ConversationMode = "chat"
)

// ParseConversationMode maps a raw mode value to a ConversationMode.
// Anything that is not "chat" is treated as a call.
func ParseConversationMode(raw string) ConversationMode {
	if strings.EqualFold(strings.TrimSpace(raw), string(ConversationModeChat)) {
		return ConversationModeChat
	}
	return ConversationModeCall
}

// Conversation identifies the logical conversation a connection joins.
type Conversation struct {
	AgentID        string           `json:"agent_id"`
	WidgetID       string           `json:"widget_id,omitempty"`
	ConversationID string           `json:"conversation_id"`
	Mode           ConversationMode `json:"mode"`
	StreamSid      string           `json:"stream_sid,omitempty"`
}

// RoomKey returns the key of the room this conversation lives in.
func (c Conversation) RoomKey() string {
	return RoomKey(c.AgentID, c.ConversationID)
}

// Validate validates the conversation data
func (c Conversation) Validate() error {
	if c.AgentID == "" {
		return errors.New("agent_id is required")
	}
	if c.ConversationID == "" {
		return errors.New("conversation_id is required")
	}
	if c.Mode != ConversationModeCall && c.Mode != ConversationModeChat {
		return errors.New("invalid conversation mode")
	}
	return nil
}

// RoomKey builds a room key from an agent and conversation id.
func RoomKey(agentID, conversationID string) string {
	return agentID + "-" + conversationID
}
