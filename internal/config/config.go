package config

import (
	"log"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"
)

const (
	ProviderOpenAI = "openai"
	ProviderGemini = "gemini"
	ProviderOllama = "ollama"
)

type Config struct {
	DatabaseURL string
	HTTPPort    string
	LogLevel    string

	OpenAIAPIKey  string
	OpenAIBaseURL string
	GeminiAPIKey  string
	ChatModel     string

	TextProvider   string
	VisionProvider string
	VisionModel    string

	OllamaURL         string
	OllamaVisionModel string
	OllamaTextModel   string

	LLMTimeout    time.Duration
	MaxVisionEdge int
}

var AppConfig Config

func LoadConfig() {
	err := godotenv.Load() // Load .env file if it exists
	if err != nil {
		log.Println("No .env file found, relying on environment variables")
	}
	AppConfig = FromEnv()
}

// FromEnv reads the configuration from the process environment. Missing API
// keys are allowed; they can be supplied later through the settings API.
func FromEnv() Config {
	cfg := Config{
		DatabaseURL:       getEnv("DATABASE_URL", "drawing_analyzer.db"),
		HTTPPort:          getEnv("HTTP_PORT", "8080"),
		LogLevel:          strings.ToUpper(getEnv("LOG_LEVEL", "INFO")),
		OpenAIAPIKey:      getEnv("OPENAI_API_KEY", ""),
		OpenAIBaseURL:     getEnv("OPENAI_BASE_URL", ""),
		GeminiAPIKey:      getEnv("GEMINI_API_KEY", ""),
		ChatModel:         getEnv("CHAT_MODEL", DefaultChatModel),
		TextProvider:      strings.ToLower(getEnv("TEXT_PROVIDER", ProviderOpenAI)),
		VisionProvider:    strings.ToLower(getEnv("VISION_PROVIDER", ProviderGemini)),
		VisionModel:       getEnv("VISION_MODEL", "gemini-1.5-flash-latest"),
		OllamaURL:         getEnv("OLLAMA_URL", "http://localhost:11434"),
		OllamaVisionModel: getEnv("OLLAMA_VISION_MODEL", "llava"),
		OllamaTextModel:   getEnv("OLLAMA_TEXT_MODEL", "llama3.2"),
		LLMTimeout:        time.Duration(getEnvAsInt("LLM_TIMEOUT_SECONDS", 60)) * time.Second,
		MaxVisionEdge:     getEnvAsInt("MAX_VISION_EDGE", 1024),
	}

	switch cfg.TextProvider {
	case ProviderOpenAI, ProviderGemini, ProviderOllama:
	default:
		log.Printf("Unknown TEXT_PROVIDER %q, using %s", cfg.TextProvider, ProviderOpenAI)
		cfg.TextProvider = ProviderOpenAI
	}
	switch cfg.VisionProvider {
	case ProviderGemini, ProviderOllama:
	default:
		log.Printf("Unknown VISION_PROVIDER %q, using %s", cfg.VisionProvider, ProviderGemini)
		cfg.VisionProvider = ProviderGemini
	}
	if cfg.LLMTimeout <= 0 {
		cfg.LLMTimeout = 60 * time.Second
	}
	if cfg.MaxVisionEdge <= 0 {
		cfg.MaxVisionEdge = 1024
	}
	return cfg
}

func getEnv(key string, defaultValue string) string {
	if value, exists := os.LookupEnv(key); exists {
		return value
	}
	return defaultValue
}

func getEnvAsInt(key string, defaultValue int) int {
	valueStr := getEnv(key, "")
	if value, err := strconv.Atoi(valueStr); err == nil {
		return value
	}
	return defaultValue
}
