package websocket

import (
	"encoding/base64"
	"encoding/json"
	"errors"
	"strconv"
	"strings"
)

// Event names of the media-stream wire protocol.
const (
	EventConnected = "connected"
	EventStart     = "start"
	EventMedia     = "media"
	EventMark      = "mark"
	EventClear     = "clear"
	EventStop      = "stop"
	EventMessage   = "message"
)

var errMissingEvent = errors.New("message has no event")

// InboundMessage is any JSON message a caller sends.
type InboundMessage struct {
	Event            string         `json:"event"`
	StreamSid        string         `json:"streamSid,omitempty"`
	Start            *StartPayload  `json:"start,omitempty"`
	Media            *MediaPayload  `json:"media,omitempty"`
	Mark             *MarkPayload   `json:"mark,omitempty"`
	Text             string         `json:"text,omitempty"`
	CustomParameters map[string]any `json:"customParameters,omitempty"`
}

// StartPayload is the nested start block telephony providers send.
type StartPayload struct {
	StreamSid        string         `json:"streamSid,omitempty"`
	CallSid          string         `json:"callSid,omitempty"`
	CustomParameters map[string]any `json:"customParameters,omitempty"`
}

// MediaPayload carries base64 μ-law audio.
type MediaPayload struct {
	Track   string `json:"track,omitempty"`
	Payload string `json:"payload"`
}

// MarkPayload names a playback position.
type MarkPayload struct {
	Name string `json:"name"`
}

// OutboundMedia is one audio frame sent to the caller.
type OutboundMedia struct {
	Event     string       `json:"event"`
	StreamSid string       `json:"streamSid,omitempty"`
	Media     MediaPayload `json:"media"`
}

// OutboundMark is sent after the last frame of an utterance.
type OutboundMark struct {
	Event     string      `json:"event"`
	StreamSid string      `json:"streamSid,omitempty"`
	Mark      MarkPayload `json:"mark"`
}

// OutboundClear tells the caller to drop audio it has buffered.
type OutboundClear struct {
	Event     string `json:"event"`
	StreamSid string `json:"streamSid,omitempty"`
}

// OutboundMessage is a chat message sent to a widget.
type OutboundMessage struct {
	Event string `json:"event"`
	Text  string `json:"text"`
}

// Bootstrap is what a start message says about the conversation to join.
type Bootstrap struct {
	AgentID        string
	WidgetID       string
	ConversationID string
	Mode           string
	StreamSid      string
}

// ParseInbound decodes a caller message. A message without an event is an error.
func ParseInbound(data []byte) (*InboundMessage, error) {
	var msg InboundMessage
	if err := json.Unmarshal(data, &msg); err != nil {
		return nil, err
	}
	if msg.Event == "" {
		return nil, errMissingEvent
	}
	return &msg, nil
}

// Bootstrap extracts the conversation parameters of a start message. Custom
// parameters may sit at the top level or under start, and agent and
// conversation ids are accepted in both dashed and camel case.
func (m *InboundMessage) Bootstrap() Bootstrap {
	params := make(map[string]string, len(m.CustomParameters))
	addParams(params, m.CustomParameters)
	streamSid := m.StreamSid
	if m.Start != nil {
		addParams(params, m.Start.CustomParameters)
		if streamSid == "" {
			streamSid = m.Start.StreamSid
		}
	}

	return Bootstrap{
		AgentID:        firstParam(params, "agentId", "agent-id"),
		WidgetID:       firstParam(params, "widgetId", "widget-id"),
		ConversationID: firstParam(params, "conversationId", "conversation-id"),
		Mode:           firstParam(params, "mode"),
		StreamSid:      streamSid,
	}
}

// AudioPayload decodes the audio of a media message.
func (m *InboundMessage) AudioPayload() ([]byte, error) {
	if m.Media == nil {
		return nil, errors.New("media message has no payload")
	}
	return base64.StdEncoding.DecodeString(m.Media.Payload)
}

// addParams copies scalar parameters into dst as strings. Objects, arrays and
// nulls are skipped.
func addParams(dst map[string]string, src map[string]any) {
	for k, v := range src {
		switch v := v.(type) {
		case string:
			dst[k] = v
		case float64:
			dst[k] = strconv.FormatFloat(v, 'f', -1, 64)
		case bool:
			dst[k] = strconv.FormatBool(v)
		}
	}
}

func firstParam(params map[string]string, keys ...string) string {
	for _, k := range keys {
		if v := strings.TrimSpace(params[k]); v != "" {
			return v
		}
	}
	return ""
}

func newOutboundMedia(streamSid string, frame []byte) OutboundMedia {
	return OutboundMedia{
		Event:     EventMedia,
		StreamSid: streamSid,
		Media:     MediaPayload{Payload: base64.StdEncoding.EncodeToString(frame)},
	}
}
