package config

import (
	"encoding/json"
	"fmt"
	"sync"

	"go.uber.org/zap"
)

// SettingsSlot is the durable slot holding the user's settings.
const SettingsSlot = "settings"

const DefaultChatModel = "gpt-4o"

var chatModels = []string{"gpt-4o", "gpt-4o-mini", "gpt-4-turbo", "gpt-3.5-turbo"}

// ChatModels lists the text models offered to the user.
func ChatModels() []string {
	out := make([]string, len(chatModels))
	copy(out, chatModels)
	return out
}

// KnownChatModel reports whether name is one of ChatModels.
func KnownChatModel(name string) bool {
	for _, m := range chatModels {
		if m == name {
			return true
		}
	}
	return false
}

type Settings struct {
	TextAPIKey   string `json:"text_api_key"`
	VisionAPIKey string `json:"vision_api_key"`
	ChatModel    string `json:"chat_model"`
}

// DefaultSettings derives settings from the environment configuration.
func DefaultSettings(cfg Config) Settings {
	s := Settings{
		TextAPIKey:   cfg.OpenAIAPIKey,
		VisionAPIKey: cfg.GeminiAPIKey,
		ChatModel:    cfg.ChatModel,
	}
	if cfg.TextProvider == ProviderGemini {
		s.TextAPIKey = cfg.GeminiAPIKey
	}
	if !KnownChatModel(s.ChatModel) {
		s.ChatModel = DefaultChatModel
	}
	return s
}

// Masked hides all but the last four characters of each key.
func (s Settings) Masked() Settings {
	s.TextAPIKey = mask(s.TextAPIKey)
	s.VisionAPIKey = mask(s.VisionAPIKey)
	return s
}

func mask(key string) string {
	if len(key) <= 4 {
		if key == "" {
			return ""
		}
		return "****"
	}
	return "****" + key[len(key)-4:]
}

func unmask(sent, current string) string {
	if current != "" && sent == mask(current) {
		return current
	}
	return sent
}

type SlotStore interface {
	SaveSlot(name string, payload []byte) error
	LoadSlot(name string) ([]byte, bool, error)
}

// SettingsService owns the persisted settings blob.
type SettingsService struct {
	mu       sync.RWMutex
	current  Settings
	defaults Settings
	slots    SlotStore
	log      *zap.Logger
}

// NewSettingsService loads the settings slot, falling back to defaults when
// it is missing or unreadable. Empty fields in a stored blob take the
// default value.
func NewSettingsService(slots SlotStore, defaults Settings, log *zap.Logger) *SettingsService {
	if log == nil {
		log = zap.NewNop()
	}
	s := &SettingsService{current: defaults, defaults: defaults, slots: slots, log: log}
	if slots == nil {
		return s
	}
	payload, ok, err := slots.LoadSlot(SettingsSlot)
	switch {
	case err != nil:
		log.Warn("failed to read settings slot, using defaults", zap.Error(err))
	case !ok || len(payload) == 0:
	default:
		var saved Settings
		if err := json.Unmarshal(payload, &saved); err != nil {
			log.Warn("settings slot is corrupt, using defaults", zap.Error(err))
		} else {
			s.current = s.withDefaults(saved)
		}
	}
	return s
}

func (s *SettingsService) Get() Settings {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.current
}

// Replace stores next wholesale. An unknown chat model falls back to the
// default.
func (s *SettingsService) Replace(next Settings) (Settings, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	// A key sent back in its masked form means "unchanged".
	next.TextAPIKey = unmask(next.TextAPIKey, s.current.TextAPIKey)
	next.VisionAPIKey = unmask(next.VisionAPIKey, s.current.VisionAPIKey)
	next = s.withDefaults(next)
	s.current = next
	if s.slots == nil {
		return next, nil
	}
	payload, err := json.Marshal(next)
	if err != nil {
		return next, fmt.Errorf("failed to encode settings: %w", err)
	}
	if err := s.slots.SaveSlot(SettingsSlot, payload); err != nil {
		s.log.Warn("failed to persist settings", zap.Error(err))
		return next, fmt.Errorf("failed to persist settings: %w", err)
	}
	return next, nil
}

func (s *SettingsService) withDefaults(in Settings) Settings {
	if in.TextAPIKey == "" {
		in.TextAPIKey = s.defaults.TextAPIKey
	}
	if in.VisionAPIKey == "" {
		in.VisionAPIKey = s.defaults.VisionAPIKey
	}
	if !KnownChatModel(in.ChatModel) {
		in.ChatModel = s.defaults.ChatModel
	}
	return in
}
