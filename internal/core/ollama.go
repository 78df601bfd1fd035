package core

import (
	"context"
	"fmt"
	"net/http"
	"net/url"
	"time"

	"github.com/ollama/ollama/api"
	"go.uber.org/zap"

	"gwi.com/drawing-analyzer/internal/chat"
	"gwi.com/drawing-analyzer/internal/imaging"
)

// OllamaModel talks to a local Ollama server. It serves both the vision and
// the text role depending on the model name.
type OllamaModel struct {
	client *api.Client
	model  string
	log    *zap.Logger
}

func NewOllamaModel(ollamaURL, model string, httpClient *http.Client, log *zap.Logger) (*OllamaModel, error) {
	parsed, err := url.Parse(ollamaURL)
	if err != nil || parsed.Scheme == "" || parsed.Host == "" {
		return nil, fmt.Errorf("invalid Ollama URL %q", ollamaURL)
	}
	if httpClient == nil {
		httpClient = http.DefaultClient
	}
	if log == nil {
		log = zap.NewNop()
	}
	base := &url.URL{Scheme: parsed.Scheme, Host: parsed.Host}
	return &OllamaModel{client: api.NewClient(base, httpClient), model: model, log: log}, nil
}

func (o *OllamaModel) Detect(ctx context.Context, instruction string, img imaging.Payload) (string, error) {
	return o.chat(ctx, "detection", []api.Message{
		{Role: "system", Content: detectionSystemInstruction},
		{Role: "user", Content: instruction, Images: []api.ImageData{api.ImageData(img.Data)}},
	})
}

func (o *OllamaModel) Complete(ctx context.Context, system string, history []chat.ChatMessage, message string) (string, error) {
	messages := make([]api.Message, 0, len(history)+2)
	messages = append(messages, api.Message{Role: "system", Content: system})
	for _, m := range history {
		messages = append(messages, api.Message{Role: string(m.Sender), Content: m.Content})
	}
	messages = append(messages, api.Message{Role: "user", Content: message})
	return o.chat(ctx, "chat", messages)
}

func (o *OllamaModel) chat(ctx context.Context, kind string, messages []api.Message) (string, error) {
	streamFalse := false
	req := &api.ChatRequest{
		Model:    o.model,
		Messages: messages,
		Stream:   &streamFalse,
	}

	start := time.Now()
	var content string
	err := o.client.Chat(ctx, req, func(resp api.ChatResponse) error {
		content += resp.Message.Content
		return nil
	})
	o.log.Info("ollama call",
		zap.String("kind", kind),
		zap.String("model", o.model),
		zap.Duration("duration", time.Since(start)),
		zap.Error(err))
	if err != nil {
		return "", fmt.Errorf("ollama %s request failed: %w", kind, err)
	}
	return content, nil
}
