package usecase

import (
	"context"
	"errors"
	"strings"

	"go.uber.org/zap"

	"github.com/satriahrh/suara/domain/entities"
	"github.com/satriahrh/suara/internal/retrieval"
)

const (
	noKnowledgeReply = "I don't have any information loaded yet, so I can't answer that right now."
	failureReply     = "Sorry, something went wrong while looking that up. Could you ask again?"
	noAnswerReply    = "I don't have enough information to answer that."
)

// KnowledgeBase answers questions from ingested documents.
type KnowledgeBase interface {
	Query(ctx context.Context, question string) (*entities.Answer, error)
}

// ChatService turns a caller question into the text of a reply
type ChatService struct {
	knowledge KnowledgeBase
	logger    *zap.Logger
}

// NewChatService creates a new chat service
func NewChatService(knowledge KnowledgeBase, logger *zap.Logger) *ChatService {
	return &ChatService{knowledge: knowledge, logger: logger}
}

// Answer always returns something that can be said to the caller. Retrieval
// failures become apologetic replies.
func (s *ChatService) Answer(ctx context.Context, question string) string {
	question = strings.TrimSpace(question)
	if question == "" {
		return noAnswerReply
	}

	answer, err := s.knowledge.Query(ctx, question)
	switch {
	case errors.Is(err, retrieval.ErrNotInitialized):
		return noKnowledgeReply
	case err != nil:
		s.logger.Error("Knowledge query failed", zap.String("question", question), zap.Error(err))
		return failureReply
	}

	text := strings.TrimSpace(answer.Answer)
	if text == "" {
		return noAnswerReply
	}

	s.logger.Debug("Answer generated",
		zap.String("question", question),
		zap.Int("sources", len(answer.Sources)))
	return text
}
