package core

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/google/generative-ai-go/genai"
	"go.uber.org/zap"

	"gwi.com/drawing-analyzer/internal/chat"
	"gwi.com/drawing-analyzer/internal/imaging"
)

type GeminiModel struct {
	client *genai.Client
	model  string
	log    *zap.Logger
}

func NewGeminiModel(client *genai.Client, model string, log *zap.Logger) *GeminiModel {
	return &GeminiModel{client: client, model: model, log: log}
}

func (g *GeminiModel) Detect(ctx context.Context, instruction string, img imaging.Payload) (string, error) {
	model := g.client.GenerativeModel(g.model)
	model.SystemInstruction = &genai.Content{
		Parts: []genai.Part{genai.Text(detectionSystemInstruction)},
	}
	temp := float32(0.1)
	model.GenerationConfig = genai.GenerationConfig{Temperature: &temp}

	start := time.Now()
	resp, err := model.GenerateContent(ctx,
		genai.Text(instruction),
		genai.ImageData(strings.TrimPrefix(img.MimeType, "image/"), img.Data))
	g.log.Info("gemini detection call",
		zap.String("model", g.model),
		zap.Duration("duration", time.Since(start)),
		zap.Error(err))
	if err != nil {
		return "", fmt.Errorf("gemini detection request failed: %w", err)
	}
	return responseText(resp), nil
}

func (g *GeminiModel) Complete(ctx context.Context, system string, history []chat.ChatMessage, message string) (string, error) {
	model := g.client.GenerativeModel(g.model)
	model.SystemInstruction = &genai.Content{
		Parts: []genai.Part{genai.Text(system)},
	}

	session := model.StartChat()
	for _, m := range history {
		role := "user"
		switch m.Sender {
		case chat.SenderAssistant:
			role = "model"
		case chat.SenderSystem:
			continue
		}
		session.History = append(session.History, &genai.Content{
			Role:  role,
			Parts: []genai.Part{genai.Text(m.Content)},
		})
	}

	start := time.Now()
	resp, err := session.SendMessage(ctx, genai.Text(message))
	g.log.Info("gemini chat call",
		zap.String("model", g.model),
		zap.Int("history", len(session.History)),
		zap.Duration("duration", time.Since(start)),
		zap.Error(err))
	if err != nil {
		return "", fmt.Errorf("gemini chat SendMessage failed: %w", err)
	}
	return responseText(resp), nil
}

// responseText joins the text parts of the first candidate. Non-text parts
// are skipped.
func responseText(resp *genai.GenerateContentResponse) string {
	if resp == nil || len(resp.Candidates) == 0 || resp.Candidates[0].Content == nil {
		return ""
	}
	var b strings.Builder
	for _, part := range resp.Candidates[0].Content.Parts {
		if txt, ok := part.(genai.Text); ok {
			b.WriteString(string(txt))
		}
	}
	return b.String()
}
