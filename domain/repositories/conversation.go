package repositories

import (
	"context"

	"github.com/satriahrh/suara/domain/entities"
)

// VoiceSession is the handle a conversation handler gets for one attached
// connection.
type VoiceSession interface {
	ID() string
	Kind() entities.ConnectionKind
	Conversation() entities.Conversation
	// Agent is the published agent resolved at bootstrap, nil when the
	// connection named its agent directly.
	Agent() *entities.Agent

	// Say synthesizes text and streams it to the caller. Calls on the same
	// session are serialised.
	Say(ctx context.Context, text string) error
	// Reply sends a chat message to the caller.
	Reply(ctx context.Context, text string) error
	// Interrupt cancels the utterance in flight and tells the caller to drop
	// buffered audio.
	Interrupt()
	// Broadcast sends a chat message to every other member of the room.
	Broadcast(ctx context.Context, text string) error
}

// ConversationHandler receives the application events of attached
// connections. Callbacks run on the connection's read goroutine and must not
// block on long work.
type ConversationHandler interface {
	OnStart(ctx context.Context, session VoiceSession)
	OnAudio(session VoiceSession, chunk []byte)
	OnMark(session VoiceSession, name string)
	OnNearEnd(session VoiceSession)
	OnMessage(ctx context.Context, session VoiceSession, text string)
	OnStop(session VoiceSession)
}
