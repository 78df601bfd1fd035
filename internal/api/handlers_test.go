package api

import (
	"bytes"
	"context"
	"encoding/json"
	"image"
	"image/png"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"gwi.com/drawing-analyzer/internal/annotation"
	"gwi.com/drawing-analyzer/internal/canvas"
	"gwi.com/drawing-analyzer/internal/chat"
	"gwi.com/drawing-analyzer/internal/config"
	"gwi.com/drawing-analyzer/internal/core"
	"gwi.com/drawing-analyzer/internal/imaging"
)

type stubModels struct {
	detection string
	reply     string
}

func (s *stubModels) Detect(ctx context.Context, instruction string, img imaging.Payload) (string, error) {
	return s.detection, nil
}

func (s *stubModels) Complete(ctx context.Context, system string, history []chat.ChatMessage, message string) (string, error) {
	return s.reply, nil
}

func (s *stubModels) Vision() (core.VisionModel, error) { return s, nil }
func (s *stubModels) Text() (core.TextModel, error)     { return s, nil }

type testServer struct {
	*httptest.Server
	annotations *annotation.Store
	settings    *config.SettingsService
	models      *stubModels
}

func newTestServer(t *testing.T) *testServer {
	t.Helper()
	annotations := annotation.NewStore(nil, nil)
	transcript := chat.NewTranscript(nil, nil)
	models := &stubModels{}
	settings := config.NewSettingsService(nil, config.Settings{ChatModel: config.DefaultChatModel}, nil)

	det := core.NewDetectionService(annotations, transcript, models, 1024, time.Second, nil)
	conv := core.NewConversationService(transcript, models, time.Second, nil)
	cs := core.NewChatService(annotations, transcript, det, conv, nil)
	h := NewAPIHandler(cs, annotations, canvas.NewController(annotations, nil), settings, nil)

	srv := httptest.NewServer(NewRouter(h))
	t.Cleanup(srv.Close)
	return &testServer{Server: srv, annotations: annotations, settings: settings, models: models}
}

func (s *testServer) do(t *testing.T, method, path string, body any, out any) int {
	t.Helper()
	var buf bytes.Buffer
	if body != nil {
		if err := json.NewEncoder(&buf).Encode(body); err != nil {
			t.Fatal(err)
		}
	}
	req, err := http.NewRequest(method, s.URL+path, &buf)
	if err != nil {
		t.Fatal(err)
	}
	resp, err := s.Client().Do(req)
	if err != nil {
		t.Fatal(err)
	}
	defer resp.Body.Close()
	if out != nil && resp.StatusCode < 300 {
		if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
			t.Fatalf("%s %s: decode: %v", method, path, err)
		}
	}
	return resp.StatusCode
}

func (s *testServer) loadImage(t *testing.T) {
	t.Helper()
	ref, err := imaging.DataURL(image.NewNRGBA(image.Rect(0, 0, 300, 200)))
	if err != nil {
		t.Fatal(err)
	}
	var resp SetImageResponse
	if code := s.do(t, http.MethodPut, "/api/image", SetImageRequest{ImageRef: ref}, &resp); code != http.StatusOK {
		t.Fatalf("PUT /api/image = %d", code)
	}
	if resp.Width != 300 || resp.Height != 200 || !resp.HasImage() {
		t.Fatalf("image response = %+v", resp)
	}
}

func TestBoxEndpoints(t *testing.T) {
	s := newTestServer(t)

	box := map[string]any{"x": 10, "y": 10, "width": 50, "height": 40, "label": "Pump", "color": "#FF0000"}
	if code := s.do(t, http.MethodPost, "/api/boxes", box, nil); code != http.StatusConflict {
		t.Errorf("add without image = %d, want 409", code)
	}

	s.loadImage(t)

	var created annotation.BoundingBox
	if code := s.do(t, http.MethodPost, "/api/boxes", box, &created); code != http.StatusCreated {
		t.Fatalf("add = %d", code)
	}
	if created.ID == "" || created.Label != annotation.LabelPump {
		t.Errorf("created = %+v", created)
	}

	tests := []struct {
		name string
		body map[string]any
		want int
	}{
		{"undersized", map[string]any{"x": 0, "y": 0, "width": 5, "height": 5}, http.StatusUnprocessableEntity},
		{"duplicate", map[string]any{"id": created.ID, "x": 0, "y": 0, "width": 50, "height": 50}, http.StatusConflict},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if code := s.do(t, http.MethodPost, "/api/boxes", tt.body, nil); code != tt.want {
				t.Errorf("status = %d, want %d", code, tt.want)
			}
		})
	}

	var edited annotation.BoundingBox
	patch := map[string]any{"label": "valves", "color": "#00FE01"}
	if code := s.do(t, http.MethodPatch, "/api/boxes/"+created.ID, patch, &edited); code != http.StatusOK {
		t.Fatalf("patch = %d", code)
	}
	if edited.Label != annotation.LabelValve || edited.Color != annotation.ColorGreen || edited.X != 10 {
		t.Errorf("edited = %+v", edited)
	}
	if code := s.do(t, http.MethodPatch, "/api/boxes/nope", patch, nil); code != http.StatusNotFound {
		t.Errorf("patch unknown = %d", code)
	}
	shrink := map[string]any{"width": 1, "height": 0}
	if code := s.do(t, http.MethodPatch, "/api/boxes/"+created.ID, shrink, nil); code != http.StatusUnprocessableEntity {
		t.Errorf("patch undersized = %d, want 422", code)
	}
	if b, _ := s.annotations.Snapshot().Box(created.ID); b.Width != 50 || b.Height != 40 {
		t.Errorf("undersized patch changed the box: %+v", b)
	}

	if code := s.do(t, http.MethodPut, "/api/selection", SelectRequest{ID: created.ID}, nil); code != http.StatusOK {
		t.Errorf("select = %d", code)
	}
	if code := s.do(t, http.MethodDelete, "/api/boxes/"+created.ID, nil, nil); code != http.StatusNoContent {
		t.Errorf("delete = %d", code)
	}
	if st := s.annotations.Snapshot(); len(st.Boxes) != 0 || st.SelectedID != "" {
		t.Errorf("after delete: %+v", st)
	}

	var replaced ReplaceBoxesResponse
	batch := []map[string]any{
		{"x": 0, "y": 0, "width": 5, "height": 5},
		{"x": 10, "y": 10, "width": 50, "height": 40, "label": "Pump", "color": "#FF0000"},
	}
	if code := s.do(t, http.MethodPut, "/api/boxes", batch, &replaced); code != http.StatusOK || replaced.Kept != 1 {
		t.Errorf("replace = %d %+v", code, replaced)
	}
}

func TestCanvasDrawThroughAPI(t *testing.T) {
	s := newTestServer(t)
	s.loadImage(t)

	events := []CanvasEventRequest{
		{Type: "pointerdown", X: 20, Y: 20},
		{Type: "pointermove", X: 80, Y: 70},
		{Type: "pointerup", X: 80, Y: 70},
	}
	var last CanvasEventResponse
	for _, ev := range events {
		if code := s.do(t, http.MethodPost, "/api/canvas/events", ev, &last); code != http.StatusOK {
			t.Fatalf("event %s = %d", ev.Type, code)
		}
	}
	if last.Effect != canvas.EffectBoxAdded.String() || last.Mode != canvas.ModeIdle.String() {
		t.Errorf("final event = %+v", last)
	}
	boxes := s.annotations.Snapshot().Boxes
	if len(boxes) != 1 || boxes[0].Width != 60 || boxes[0].Height != 50 {
		t.Errorf("boxes = %+v", boxes)
	}

	if code := s.do(t, http.MethodPost, "/api/canvas/events", CanvasEventRequest{Type: "tap"}, nil); code != http.StatusBadRequest {
		t.Errorf("unknown event = %d", code)
	}
	if code := s.do(t, http.MethodPut, "/api/canvas/viewport", canvas.Viewport{Scale: 0}, nil); code != http.StatusUnprocessableEntity {
		t.Errorf("zero scale viewport = %d", code)
	}
}

func TestChatThroughAPI(t *testing.T) {
	s := newTestServer(t)
	s.loadImage(t)
	s.models.detection = `[{"x":1,"y":2,"width":30,"height":20,"label":"Pump"}]`
	s.models.reply = "It regulates flow."

	var resp PostMessageResponse
	if code := s.do(t, http.MethodPost, "/api/chat", PostMessageRequest{Content: "Detect all pumps"}, &resp); code != http.StatusOK {
		t.Fatalf("post = %d", code)
	}
	if resp.Outcome.Kind != core.OutcomeDetected || len(resp.Boxes) != 1 {
		t.Errorf("response = %+v", resp)
	}

	s.do(t, http.MethodPost, "/api/chat", PostMessageRequest{Content: "What does this valve do?"}, &resp)
	if resp.Outcome.Kind != core.OutcomeReplied || resp.Outcome.Message != "It regulates flow." {
		t.Errorf("outcome = %+v", resp.Outcome)
	}

	var transcript []chat.ChatMessage
	s.do(t, http.MethodGet, "/api/chat", nil, &transcript)
	if len(transcript) != 4 {
		t.Errorf("transcript = %+v", transcript)
	}

	if code := s.do(t, http.MethodPost, "/api/chat", PostMessageRequest{Content: " "}, nil); code != http.StatusBadRequest {
		t.Errorf("empty message = %d", code)
	}
	if code := s.do(t, http.MethodDelete, "/api/chat", nil, nil); code != http.StatusNoContent {
		t.Errorf("clear = %d", code)
	}
	s.do(t, http.MethodGet, "/api/chat", nil, &transcript)
	if len(transcript) != 0 {
		t.Errorf("cleared transcript = %+v", transcript)
	}
}

func TestExportPNG(t *testing.T) {
	s := newTestServer(t)
	resp, err := s.Client().Get(s.URL + "/api/export.png")
	if err != nil {
		t.Fatal(err)
	}
	resp.Body.Close()
	if resp.StatusCode != http.StatusConflict {
		t.Errorf("export without image = %d", resp.StatusCode)
	}

	s.loadImage(t)
	s.annotations.AddBox(annotation.BoundingBox{ID: "a", X: 10, Y: 10, Width: 50, Height: 40, Label: annotation.LabelPump})
	resp, err = s.Client().Get(s.URL + "/api/export.png")
	if err != nil {
		t.Fatal(err)
	}
	defer resp.Body.Close()
	if ct := resp.Header.Get("Content-Type"); ct != "image/png" {
		t.Errorf("content type = %q", ct)
	}
	img, err := png.Decode(resp.Body)
	if err != nil {
		t.Fatal(err)
	}
	if b := img.Bounds(); b.Dx() != 300 || b.Dy() != 200 {
		t.Errorf("export size = %v", b)
	}
}

func TestSettingsAndOptions(t *testing.T) {
	s := newTestServer(t)

	var saved config.Settings
	req := config.Settings{TextAPIKey: "sk-abcdef123", VisionAPIKey: "gm-xyz98765", ChatModel: "gpt-4o-mini"}
	if code := s.do(t, http.MethodPut, "/api/settings", req, &saved); code != http.StatusOK {
		t.Fatalf("put settings = %d", code)
	}
	if saved.TextAPIKey != "****f123" || saved.ChatModel != "gpt-4o-mini" {
		t.Errorf("saved = %+v", saved)
	}

	var shown config.Settings
	s.do(t, http.MethodGet, "/api/settings", nil, &shown)
	if code := s.do(t, http.MethodPut, "/api/settings", shown, nil); code != http.StatusOK {
		t.Fatalf("put masked settings = %d", code)
	}
	if k := s.settings.Get().TextAPIKey; k != "sk-abcdef123" {
		t.Errorf("masked key overwrote the stored key: %q", k)
	}

	var opts OptionsResponse
	s.do(t, http.MethodGet, "/api/options", nil, &opts)
	if len(opts.Labels) != 14 || len(opts.Colors) != 6 || len(opts.ChatModels) != 4 || len(opts.SampleQuestions) != 6 {
		t.Errorf("options = %+v", opts)
	}
}

func TestReset(t *testing.T) {
	s := newTestServer(t)
	s.loadImage(t)
	s.annotations.AddBox(annotation.BoundingBox{ID: "a", Width: 50, Height: 50})

	if code := s.do(t, http.MethodPost, "/api/reset", nil, nil); code != http.StatusNoContent {
		t.Fatalf("reset = %d", code)
	}
	var st StateResponse
	s.do(t, http.MethodGet, "/api/state", nil, &st)
	if st.HasImage() || len(st.Boxes) != 0 || st.Viewport.Scale != 1 {
		t.Errorf("state after reset = %+v", st)
	}
}
