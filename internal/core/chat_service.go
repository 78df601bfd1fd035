package core

import (
	"context"
	"fmt"
	"strings"

	"go.uber.org/zap"

	"gwi.com/drawing-analyzer/internal/annotation"
	"gwi.com/drawing-analyzer/internal/chat"
	"gwi.com/drawing-analyzer/internal/imaging"
)

var sampleQuestions = []string{
	"What is the main purpose of this system?",
	"Explain how the temperature control loop works",
	"Detect all pumps in this drawing",
	"Detect all valves",
	"What safety measures are present in this system?",
	"How do the transformers support reliability?",
}

// SampleQuestions returns the suggested prompts shown next to the chat box.
func SampleQuestions() []string {
	out := make([]string, len(sampleQuestions))
	copy(out, sampleQuestions)
	return out
}

// ChatService is the entry point for a chat message: it records the user
// turn and routes it to detection or conversation.
type ChatService struct {
	annotations  *annotation.Store
	transcript   *chat.Transcript
	detection    *DetectionService
	conversation *ConversationService
	log          *zap.Logger
}

func NewChatService(annotations *annotation.Store, transcript *chat.Transcript,
	detection *DetectionService, conversation *ConversationService, log *zap.Logger) *ChatService {
	if log == nil {
		log = zap.NewNop()
	}
	return &ChatService{
		annotations:  annotations,
		transcript:   transcript,
		detection:    detection,
		conversation: conversation,
		log:          log,
	}
}

func (s *ChatService) Transcript() []chat.ChatMessage {
	return s.transcript.Messages()
}

// SendMessage appends the user's message, then dispatches it. Transport
// faults never surface as errors; they are reported through the Outcome.
func (s *ChatService) SendMessage(ctx context.Context, text string) (Outcome, error) {
	text = strings.TrimSpace(text)
	if text == "" {
		return Outcome{}, ErrEmptyMessage
	}

	epoch := s.transcript.Epoch()
	history := s.transcript.Messages()
	s.transcript.Append(chat.SenderUser, text)

	if IsDetectionCommand(text) {
		s.log.Info("routing message to detection", zap.Int("history", len(history)))
		return s.detection.Detect(ctx, epoch, text), nil
	}
	s.log.Info("routing message to conversation", zap.Int("history", len(history)))
	return s.conversation.Reply(ctx, epoch, history, text), nil
}

// LoadImage validates that ref decodes, installs it as the current image and
// starts a fresh transcript.
func (s *ChatService) LoadImage(ref string) (*imaging.Source, error) {
	src, err := imaging.Decode(ref)
	if err != nil {
		return nil, fmt.Errorf("failed to load image: %w", err)
	}
	s.annotations.SetImage(ref)
	s.transcript.Clear()
	s.log.Info("image loaded", zap.Int("width", src.Width), zap.Int("height", src.Height))
	return src, nil
}

func (s *ChatService) ClearChat() {
	s.transcript.Clear()
}

// Reset drops the image, boxes, selection and transcript.
func (s *ChatService) Reset() {
	s.annotations.Reset()
	s.transcript.Clear()
}
