package core

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"gwi.com/drawing-analyzer/internal/chat"
	"gwi.com/drawing-analyzer/internal/config"
	"gwi.com/drawing-analyzer/internal/imaging"
)

func TestOpenAIModelComplete(t *testing.T) {
	var got struct {
		Model    string `json:"model"`
		Messages []struct {
			Role    string `json:"role"`
			Content string `json:"content"`
		} `json:"messages"`
	}
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/v1/chat/completions" {
			http.NotFound(w, r)
			return
		}
		if r.Header.Get("Authorization") != "Bearer sk-test" {
			w.WriteHeader(http.StatusUnauthorized)
			return
		}
		json.NewDecoder(r.Body).Decode(&got)
		w.Header().Set("Content-Type", "application/json")
		w.Write([]byte(`{"id":"c1","object":"chat.completion","model":"gpt-4o","choices":[{"index":0,"message":{"role":"assistant","content":"It regulates flow."},"finish_reason":"stop"}]}`))
	}))
	defer srv.Close()

	m := NewOpenAIModel("sk-test", "gpt-4o-mini", srv.URL+"/v1", srv.Client(), nil)
	history := []chat.ChatMessage{
		{Sender: chat.SenderUser, Content: "hi"},
		{Sender: chat.SenderAssistant, Content: "hello"},
	}
	reply, err := m.Complete(context.Background(), assistantSystemInstruction, history, "What does this valve do?")
	if err != nil {
		t.Fatal(err)
	}
	if reply != "It regulates flow." {
		t.Errorf("reply = %q", reply)
	}
	if got.Model != "gpt-4o-mini" {
		t.Errorf("model = %q", got.Model)
	}
	wantRoles := []string{"system", "user", "assistant", "user"}
	if len(got.Messages) != len(wantRoles) {
		t.Fatalf("messages = %+v", got.Messages)
	}
	for i, role := range wantRoles {
		if got.Messages[i].Role != role {
			t.Errorf("message %d role = %q, want %q", i, got.Messages[i].Role, role)
		}
	}
	if got.Messages[3].Content != "What does this valve do?" {
		t.Errorf("last message = %q", got.Messages[3].Content)
	}
}

func TestOpenAIModelError(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(http.StatusInternalServerError)
		w.Write([]byte(`{"error":{"message":"boom","type":"server_error"}}`))
	}))
	defer srv.Close()

	m := NewOpenAIModel("sk-test", "gpt-4o", srv.URL+"/v1", srv.Client(), nil)
	if _, err := m.Complete(context.Background(), "sys", nil, "hi"); err == nil {
		t.Error("expected error for 500 response")
	}
}

func TestOllamaModelDetect(t *testing.T) {
	var got struct {
		Model    string `json:"model"`
		Messages []struct {
			Role    string   `json:"role"`
			Content string   `json:"content"`
			Images  []string `json:"images"`
		} `json:"messages"`
	}
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/api/chat" {
			http.NotFound(w, r)
			return
		}
		json.NewDecoder(r.Body).Decode(&got)
		w.Header().Set("Content-Type", "application/json")
		w.Write([]byte(`{"model":"llava","created_at":"2024-01-01T00:00:00Z","message":{"role":"assistant","content":"[{\"box_2d\":[0,0,500,500],\"label\":\"pump\"}]"},"done":true}` + "\n"))
	}))
	defer srv.Close()

	m, err := NewOllamaModel(srv.URL+"/api/chat", "llava", srv.Client(), nil)
	if err != nil {
		t.Fatal(err)
	}
	reply, err := m.Detect(context.Background(), "Detect all pumps", imaging.Payload{Data: []byte{1, 2, 3}, MimeType: "image/png"})
	if err != nil {
		t.Fatal(err)
	}
	boxes := ParseDetections(reply, Frame{Width: 100, Height: 100, ScaleX: 1, ScaleY: 1})
	if len(boxes) != 1 || boxes[0].Width != 50 {
		t.Errorf("boxes = %+v from %q", boxes, reply)
	}
	if got.Model != "llava" || len(got.Messages) != 2 {
		t.Fatalf("request = %+v", got)
	}
	if u := got.Messages[1]; u.Role != "user" || u.Content != "Detect all pumps" || len(u.Images) != 1 {
		t.Errorf("user message = %+v", u)
	}
}

func TestOllamaModelError(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusNotFound)
		w.Write([]byte(`{"error":"model 'llava' not found"}`))
	}))
	defer srv.Close()

	m, _ := NewOllamaModel(srv.URL, "llava", srv.Client(), nil)
	if _, err := m.Complete(context.Background(), "sys", nil, "hi"); err == nil {
		t.Error("expected error for missing model")
	}
	if _, err := NewOllamaModel("not a url", "llava", nil, nil); err == nil {
		t.Error("expected error for invalid URL")
	}
}

func TestLLMServiceRequiresKeys(t *testing.T) {
	cfg := config.Config{TextProvider: config.ProviderOpenAI, VisionProvider: config.ProviderGemini, LLMTimeout: time.Second}
	settings := config.NewSettingsService(nil, config.Settings{ChatModel: config.DefaultChatModel}, nil)
	svc := NewLLMService(cfg, settings, nil)
	defer svc.Close()

	if _, err := svc.Vision(); !errors.Is(err, ErrMissingAPIKey) {
		t.Errorf("Vision err = %v", err)
	}
	if _, err := svc.Text(); !errors.Is(err, ErrMissingAPIKey) {
		t.Errorf("Text err = %v", err)
	}

	settings.Replace(config.Settings{TextAPIKey: "sk-test"})
	if m, err := svc.Text(); err != nil {
		t.Errorf("Text err = %v", err)
	} else if _, ok := m.(*OpenAIModel); !ok {
		t.Errorf("Text model = %T", m)
	}
}

func TestLLMServiceOllamaProviders(t *testing.T) {
	cfg := config.Config{
		TextProvider:      config.ProviderOllama,
		VisionProvider:    config.ProviderOllama,
		OllamaURL:         "http://localhost:11434",
		OllamaVisionModel: "llava",
		OllamaTextModel:   "llama3.2",
	}
	svc := NewLLMService(cfg, config.NewSettingsService(nil, config.Settings{}, nil), nil)
	v, err := svc.Vision()
	if err != nil {
		t.Fatal(err)
	}
	if om, ok := v.(*OllamaModel); !ok || om.model != "llava" {
		t.Errorf("vision = %#v", v)
	}
	tm, err := svc.Text()
	if err != nil {
		t.Fatal(err)
	}
	if om, ok := tm.(*OllamaModel); !ok || om.model != "llama3.2" {
		t.Errorf("text = %#v", tm)
	}
}

func TestLLMServiceKeepsReplacedGeminiClientOpen(t *testing.T) {
	cfg := config.Config{TextProvider: config.ProviderGemini, VisionProvider: config.ProviderGemini, VisionModel: "gemini-1.5-pro"}
	settings := config.NewSettingsService(nil, config.Settings{VisionAPIKey: "key-one"}, nil)
	svc := NewLLMService(cfg, settings, nil)

	first, err := svc.Vision()
	if err != nil {
		t.Fatal(err)
	}
	again, err := svc.Vision()
	if err != nil {
		t.Fatal(err)
	}
	if first.(*GeminiModel).client != again.(*GeminiModel).client {
		t.Error("client not reused for an unchanged key")
	}

	settings.Replace(config.Settings{VisionAPIKey: "key-two"})
	second, err := svc.Vision()
	if err != nil {
		t.Fatal(err)
	}
	if second.(*GeminiModel).client == first.(*GeminiModel).client {
		t.Fatal("key change should build a new client")
	}
	if len(svc.retired) != 1 || svc.retired[0] != first.(*GeminiModel).client {
		t.Errorf("old client should be held until Close, retired = %v", svc.retired)
	}

	svc.Close()
	if svc.retired != nil || svc.gemini != nil {
		t.Error("Close should release every client")
	}
}
