package core

import (
	"context"
	"regexp"
	"time"

	"go.uber.org/zap"

	"gwi.com/drawing-analyzer/internal/annotation"
	"gwi.com/drawing-analyzer/internal/chat"
	"gwi.com/drawing-analyzer/internal/imaging"
)

// Up to three filler words may sit between the verb and the component noun,
// so "Detect all pumps" and "detect the main valves" both qualify.
var detectionCommand = regexp.MustCompile(`(?i)\bdetect\s+(?:\w+\s+){0,3}?(pumps?|valves?|motors?|tanks?|vessels?|pipes?|sensors?|instruments?|breakers?|transformers?|busbars?|switches?|relays?)\b`)

// IsDetectionCommand reports whether a chat message asks for component
// localization rather than conversation.
func IsDetectionCommand(message string) bool {
	return detectionCommand.MatchString(message)
}

type DetectionService struct {
	annotations *annotation.Store
	transcript  *chat.Transcript
	providers   Providers
	decode      func(ref string) (*imaging.Source, error)
	maxEdge     int
	timeout     time.Duration
	log         *zap.Logger
}

func NewDetectionService(annotations *annotation.Store, transcript *chat.Transcript, providers Providers,
	maxEdge int, timeout time.Duration, log *zap.Logger) *DetectionService {
	if log == nil {
		log = zap.NewNop()
	}
	return &DetectionService{
		annotations: annotations,
		transcript:  transcript,
		providers:   providers,
		decode:      imaging.Decode,
		maxEdge:     maxEdge,
		timeout:     timeout,
		log:         log,
	}
}

// Detect sends the instruction and the loaded image to the vision model and
// replaces the boxes with whatever the reply describes. The store is only
// touched after a successful parse, and only if neither the image nor the
// transcript changed while the call was in flight.
func (s *DetectionService) Detect(ctx context.Context, chatEpoch uint64, instruction string) Outcome {
	imageEpoch := s.annotations.Epoch()
	state := s.annotations.Snapshot()
	if !state.HasImage() {
		return s.reply(chatEpoch, Outcome{Kind: OutcomeFailed, Message: noImageText, Notice: "No drawing loaded"})
	}

	src, err := s.decode(state.ImageRef)
	if err != nil {
		return s.fail(chatEpoch, err)
	}
	payload, err := src.Payload(s.maxEdge)
	if err != nil {
		return s.fail(chatEpoch, err)
	}
	model, err := s.providers.Vision()
	if err != nil {
		return s.fail(chatEpoch, err)
	}

	ctx, cancel := withTimeout(ctx, s.timeout)
	defer cancel()
	text, err := model.Detect(ctx, instruction, payload)
	if err != nil {
		return s.fail(chatEpoch, err)
	}

	boxes := ParseDetections(text, FrameFor(src, payload))
	s.log.Debug("parsed detection reply",
		zap.Int("candidates", len(boxes)),
		zap.Int("reply_len", len(text)))
	if len(boxes) == 0 {
		return s.reply(chatEpoch, Outcome{Kind: OutcomeNoDetections, Message: noDetectionsText})
	}

	// The boxes and the announcement land together or not at all.
	var checked bool
	kept, ok := s.annotations.SetBoxesIfCurrent(imageEpoch, boxes, func(int) bool {
		checked = true
		return s.transcript.AppendIfCurrent(chatEpoch, chat.SenderAssistant, detectedText)
	})
	if !ok {
		if checked {
			return s.stale("transcript cleared")
		}
		return s.stale("image replaced")
	}
	return Outcome{Kind: OutcomeDetected, Message: detectedText, Boxes: kept}
}

func (s *DetectionService) fail(chatEpoch uint64, err error) Outcome {
	s.log.Warn("detection failed", zap.Error(err))
	return s.reply(chatEpoch, Outcome{Kind: OutcomeFailed, Message: errorText(err), Notice: err.Error()})
}

func (s *DetectionService) reply(chatEpoch uint64, o Outcome) Outcome {
	if !s.transcript.AppendIfCurrent(chatEpoch, chat.SenderAssistant, o.Message) {
		return s.stale("transcript cleared")
	}
	return o
}

func (s *DetectionService) stale(reason string) Outcome {
	s.log.Info("discarding stale detection reply", zap.String("reason", reason))
	return Outcome{Kind: OutcomeStale}
}

// withTimeout bounds ctx unless it already carries a deadline.
func withTimeout(ctx context.Context, d time.Duration) (context.Context, context.CancelFunc) {
	if _, ok := ctx.Deadline(); ok || d <= 0 {
		return context.WithCancel(ctx)
	}
	return context.WithTimeout(ctx, d)
}
