package core

import (
	"context"
	"fmt"
	"net/http"
	"time"

	"github.com/sashabaranov/go-openai"
	"go.uber.org/zap"

	"gwi.com/drawing-analyzer/internal/chat"
)

type OpenAIModel struct {
	client *openai.Client
	model  string
	log    *zap.Logger
}

// NewOpenAIModel builds a chat client. An empty baseURL targets the public
// OpenAI endpoint.
func NewOpenAIModel(apiKey, model, baseURL string, httpClient *http.Client, log *zap.Logger) *OpenAIModel {
	clientConfig := openai.DefaultConfig(apiKey)
	if baseURL != "" {
		clientConfig.BaseURL = baseURL
	}
	if httpClient != nil {
		clientConfig.HTTPClient = httpClient
	}
	if log == nil {
		log = zap.NewNop()
	}
	return &OpenAIModel{client: openai.NewClientWithConfig(clientConfig), model: model, log: log}
}

func (o *OpenAIModel) Complete(ctx context.Context, system string, history []chat.ChatMessage, message string) (string, error) {
	messages := make([]openai.ChatCompletionMessage, 0, len(history)+2)
	messages = append(messages, openai.ChatCompletionMessage{Role: openai.ChatMessageRoleSystem, Content: system})
	for _, m := range history {
		messages = append(messages, openai.ChatCompletionMessage{Role: openAIRole(m.Sender), Content: m.Content})
	}
	messages = append(messages, openai.ChatCompletionMessage{Role: openai.ChatMessageRoleUser, Content: message})

	start := time.Now()
	resp, err := o.client.CreateChatCompletion(ctx, openai.ChatCompletionRequest{
		Model:    o.model,
		Messages: messages,
	})
	o.log.Info("openai chat call",
		zap.String("model", o.model),
		zap.Int("messages", len(messages)),
		zap.Duration("duration", time.Since(start)),
		zap.Error(err))
	if err != nil {
		return "", fmt.Errorf("openai chat completion failed: %w", err)
	}
	if len(resp.Choices) == 0 {
		return "", nil
	}
	return resp.Choices[0].Message.Content, nil
}

func openAIRole(s chat.Sender) string {
	switch s {
	case chat.SenderAssistant:
		return openai.ChatMessageRoleAssistant
	case chat.SenderSystem:
		return openai.ChatMessageRoleSystem
	default:
		return openai.ChatMessageRoleUser
	}
}
