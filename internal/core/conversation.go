package core

import (
	"context"
	"strings"
	"time"

	"go.uber.org/zap"

	"gwi.com/drawing-analyzer/internal/chat"
)

type ConversationService struct {
	transcript *chat.Transcript
	providers  Providers
	timeout    time.Duration
	log        *zap.Logger
}

func NewConversationService(transcript *chat.Transcript, providers Providers, timeout time.Duration, log *zap.Logger) *ConversationService {
	if log == nil {
		log = zap.NewNop()
	}
	return &ConversationService{transcript: transcript, providers: providers, timeout: timeout, log: log}
}

// Reply sends the prior turns plus the new message to the text model and
// appends its answer verbatim.
func (s *ConversationService) Reply(ctx context.Context, chatEpoch uint64, history []chat.ChatMessage, message string) Outcome {
	model, err := s.providers.Text()
	if err != nil {
		return s.fail(chatEpoch, err)
	}

	ctx, cancel := withTimeout(ctx, s.timeout)
	defer cancel()
	text, err := model.Complete(ctx, assistantSystemInstruction, history, message)
	if err != nil {
		return s.fail(chatEpoch, err)
	}
	if strings.TrimSpace(text) == "" {
		s.log.Warn("text model returned an empty reply")
		text = emptyReplyText
	}
	return s.reply(chatEpoch, Outcome{Kind: OutcomeReplied, Message: text})
}

func (s *ConversationService) fail(chatEpoch uint64, err error) Outcome {
	s.log.Warn("chat completion failed", zap.Error(err))
	return s.reply(chatEpoch, Outcome{Kind: OutcomeFailed, Message: errorText(err), Notice: err.Error()})
}

func (s *ConversationService) reply(chatEpoch uint64, o Outcome) Outcome {
	if !s.transcript.AppendIfCurrent(chatEpoch, chat.SenderAssistant, o.Message) {
		s.log.Info("discarding stale chat reply")
		return Outcome{Kind: OutcomeStale}
	}
	return o
}
