package core

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"sync"

	"github.com/google/generative-ai-go/genai"
	"go.uber.org/zap"
	"google.golang.org/api/option"

	"gwi.com/drawing-analyzer/internal/chat"
	"gwi.com/drawing-analyzer/internal/config"
	"gwi.com/drawing-analyzer/internal/imaging"
)

const (
	assistantSystemInstruction = "You are a helpful assistant for engineering drawings."

	detectionSystemInstruction = "You are a precise object detection agent for engineering drawings. " +
		"Locate every component the user asks for and check that each bounding box is correct. " +
		"Reply with a JSON array only. Each element has \"box_2d\": [ymin, xmin, ymax, xmax] " +
		"normalized to 0-1000, \"label\" naming the component type, and optionally \"color\" as a hex string."

	emptyReplyText = "No response."
)

var (
	ErrMissingAPIKey = errors.New("API key not configured")
	ErrEmptyMessage  = errors.New("message is empty")
)

// VisionModel sends an instruction and an image to a multimodal model and
// returns its raw text reply.
type VisionModel interface {
	Detect(ctx context.Context, instruction string, img imaging.Payload) (string, error)
}

// TextModel completes a conversation: system instruction, prior turns, then
// the new user message.
type TextModel interface {
	Complete(ctx context.Context, system string, history []chat.ChatMessage, message string) (string, error)
}

// Providers resolves the models for the current settings. Keys may change at
// runtime, so callers ask for a model per request.
type Providers interface {
	Vision() (VisionModel, error)
	Text() (TextModel, error)
}

// LLMService builds models from the environment configuration and the
// user's persisted settings.
type LLMService struct {
	cfg      config.Config
	settings *config.SettingsService
	http     *http.Client
	log      *zap.Logger

	mu        sync.Mutex
	gemini    *genai.Client
	geminiKey string
	retired   []*genai.Client // replaced by a key change, closed on Close
}

func NewLLMService(cfg config.Config, settings *config.SettingsService, log *zap.Logger) *LLMService {
	if log == nil {
		log = zap.NewNop()
	}
	return &LLMService{
		cfg:      cfg,
		settings: settings,
		http:     &http.Client{Timeout: cfg.LLMTimeout},
		log:      log,
	}
}

func (s *LLMService) Vision() (VisionModel, error) {
	if s.cfg.VisionProvider == config.ProviderOllama {
		return NewOllamaModel(s.cfg.OllamaURL, s.cfg.OllamaVisionModel, s.http, s.log)
	}
	key := s.settings.Get().VisionAPIKey
	if key == "" {
		return nil, fmt.Errorf("vision: %w", ErrMissingAPIKey)
	}
	client, err := s.geminiClient(key)
	if err != nil {
		return nil, err
	}
	return NewGeminiModel(client, s.cfg.VisionModel, s.log), nil
}

func (s *LLMService) Text() (TextModel, error) {
	current := s.settings.Get()
	switch s.cfg.TextProvider {
	case config.ProviderOllama:
		return NewOllamaModel(s.cfg.OllamaURL, s.cfg.OllamaTextModel, s.http, s.log)
	case config.ProviderGemini:
		key := current.TextAPIKey
		if key == "" {
			key = current.VisionAPIKey
		}
		if key == "" {
			return nil, fmt.Errorf("text: %w", ErrMissingAPIKey)
		}
		client, err := s.geminiClient(key)
		if err != nil {
			return nil, err
		}
		return NewGeminiModel(client, s.cfg.VisionModel, s.log), nil
	default:
		if current.TextAPIKey == "" {
			return nil, fmt.Errorf("text: %w", ErrMissingAPIKey)
		}
		return NewOpenAIModel(current.TextAPIKey, current.ChatModel, s.cfg.OpenAIBaseURL, s.http, s.log), nil
	}
}

// geminiClient reuses the client while the key is unchanged.
func (s *LLMService) geminiClient(key string) (*genai.Client, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.gemini != nil && s.geminiKey == key {
		return s.gemini, nil
	}
	client, err := genai.NewClient(context.Background(), option.WithAPIKey(key))
	if err != nil {
		return nil, fmt.Errorf("failed to create GenAI client: %w", err)
	}
	if s.gemini != nil {
		// Calls already holding the old client may still be in flight.
		s.retired = append(s.retired, s.gemini)
	}
	s.gemini, s.geminiKey = client, key
	return client, nil
}

func (s *LLMService) Close() {
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, c := range s.retired {
		if err := c.Close(); err != nil {
			s.log.Warn("error closing retired GenAI client", zap.Error(err))
		}
	}
	s.retired = nil
	if s.gemini != nil {
		if err := s.gemini.Close(); err != nil {
			s.log.Warn("error closing GenAI client", zap.Error(err))
		} else {
			s.log.Info("GenAI client closed")
		}
		s.gemini = nil
	}
}
