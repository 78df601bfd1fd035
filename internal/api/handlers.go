package api

import (
	"encoding/json"
	"errors"
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"
	"go.uber.org/zap"

	"gwi.com/drawing-analyzer/internal/annotation"
	"gwi.com/drawing-analyzer/internal/canvas"
	"gwi.com/drawing-analyzer/internal/config"
	"gwi.com/drawing-analyzer/internal/core"
	"gwi.com/drawing-analyzer/internal/imaging"
)

type APIHandler struct {
	chatService *core.ChatService
	annotations *annotation.Store
	canvas      *canvas.Controller
	settings    *config.SettingsService
	log         *zap.Logger
}

func NewAPIHandler(cs *core.ChatService, annotations *annotation.Store, ctrl *canvas.Controller,
	settings *config.SettingsService, log *zap.Logger) *APIHandler {
	if log == nil {
		log = zap.NewNop()
	}
	return &APIHandler{chatService: cs, annotations: annotations, canvas: ctrl, settings: settings, log: log}
}

func respondJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(v)
}

func respondError(w http.ResponseWriter, status int, msg string) {
	respondJSON(w, status, map[string]string{"error": msg})
}

// statusFor maps annotation errors to HTTP status codes.
func statusFor(err error) int {
	switch {
	case errors.Is(err, annotation.ErrDuplicateID), errors.Is(err, annotation.ErrNoImage):
		return http.StatusConflict
	case errors.Is(err, annotation.ErrBoxTooSmall):
		return http.StatusUnprocessableEntity
	case errors.Is(err, annotation.ErrBoxNotFound):
		return http.StatusNotFound
	case errors.Is(err, annotation.ErrMissingID), errors.Is(err, core.ErrEmptyMessage):
		return http.StatusBadRequest
	default:
		return http.StatusInternalServerError
	}
}

type StateResponse struct {
	annotation.State
	Viewport canvas.Viewport         `json:"viewport"`
	Mode     string                  `json:"mode"`
	Preview  *annotation.BoundingBox `json:"preview,omitempty"`
}

func (h *APIHandler) stateResponse() StateResponse {
	return StateResponse{
		State:    h.annotations.Snapshot(),
		Viewport: h.canvas.Viewport(),
		Mode:     h.canvas.Mode().String(),
		Preview:  h.canvas.Preview(),
	}
}

func (h *APIHandler) GetStateHandler(w http.ResponseWriter, r *http.Request) {
	respondJSON(w, http.StatusOK, h.stateResponse())
}

type SetImageRequest struct {
	ImageRef string `json:"image_ref"`
}

type SetImageResponse struct {
	StateResponse
	Width  int `json:"width"`
	Height int `json:"height"`
}

func (h *APIHandler) SetImageHandler(w http.ResponseWriter, r *http.Request) {
	var req SetImageRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		respondError(w, http.StatusBadRequest, "Invalid request body: "+err.Error())
		return
	}
	src, err := h.chatService.LoadImage(req.ImageRef)
	if err != nil {
		respondError(w, http.StatusUnprocessableEntity, err.Error())
		return
	}
	h.canvas.Cancel()
	h.canvas.ResetViewport()
	respondJSON(w, http.StatusOK, SetImageResponse{StateResponse: h.stateResponse(), Width: src.Width, Height: src.Height})
}

// ExportHandler streams the current image with its boxes drawn on top.
func (h *APIHandler) ExportHandler(w http.ResponseWriter, r *http.Request) {
	state := h.annotations.Snapshot()
	if !state.HasImage() {
		respondError(w, http.StatusConflict, annotation.ErrNoImage.Error())
		return
	}
	src, err := imaging.Decode(state.ImageRef)
	if err != nil {
		h.log.Error("failed to decode stored image", zap.Error(err))
		respondError(w, http.StatusInternalServerError, "Failed to decode image")
		return
	}
	w.Header().Set("Content-Type", "image/png")
	if err := imaging.Render(w, src, state.Boxes); err != nil {
		h.log.Error("failed to render overlay", zap.Error(err))
	}
}

func (h *APIHandler) AddBoxHandler(w http.ResponseWriter, r *http.Request) {
	var box annotation.BoundingBox
	if err := json.NewDecoder(r.Body).Decode(&box); err != nil {
		respondError(w, http.StatusBadRequest, "Invalid request body: "+err.Error())
		return
	}
	if box.ID == "" {
		box.ID = "box_" + uuid.NewString()
	}
	if err := h.annotations.AddBox(box); err != nil {
		respondError(w, statusFor(err), err.Error())
		return
	}
	stored, _ := h.annotations.Snapshot().Box(box.ID)
	respondJSON(w, http.StatusCreated, stored)
}

type ReplaceBoxesResponse struct {
	Kept int `json:"kept"`
}

func (h *APIHandler) ReplaceBoxesHandler(w http.ResponseWriter, r *http.Request) {
	var boxes []annotation.BoundingBox
	if err := json.NewDecoder(r.Body).Decode(&boxes); err != nil {
		respondError(w, http.StatusBadRequest, "Invalid request body: "+err.Error())
		return
	}
	respondJSON(w, http.StatusOK, ReplaceBoxesResponse{Kept: h.annotations.SetBoxes(boxes)})
}

func (h *APIHandler) ClearBoxesHandler(w http.ResponseWriter, r *http.Request) {
	h.annotations.ClearBoxes()
	w.WriteHeader(http.StatusNoContent)
}

// UpdateBoxRequest carries the fields to change. Absent fields keep their
// stored value.
type UpdateBoxRequest struct {
	X      *float64 `json:"x"`
	Y      *float64 `json:"y"`
	Width  *float64 `json:"width"`
	Height *float64 `json:"height"`
	Label  *string  `json:"label"`
	Color  *string  `json:"color"`
}

func (h *APIHandler) UpdateBoxHandler(w http.ResponseWriter, r *http.Request) {
	boxID := chi.URLParam(r, "boxID")
	var req UpdateBoxRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		respondError(w, http.StatusBadRequest, "Invalid request body: "+err.Error())
		return
	}

	box, ok := h.annotations.Snapshot().Box(boxID)
	if !ok {
		respondError(w, http.StatusNotFound, annotation.ErrBoxNotFound.Error())
		return
	}
	if req.X != nil {
		box.X = *req.X
	}
	if req.Y != nil {
		box.Y = *req.Y
	}
	if req.Width != nil {
		box.Width = *req.Width
	}
	if req.Height != nil {
		box.Height = *req.Height
	}
	if req.Label != nil {
		box.Label = annotation.Label(*req.Label)
	}
	if req.Color != nil {
		box.Color = annotation.Color(*req.Color)
	}

	if err := h.annotations.UpdateBox(box); err != nil {
		respondError(w, statusFor(err), err.Error())
		return
	}
	stored, _ := h.annotations.Snapshot().Box(boxID)
	respondJSON(w, http.StatusOK, stored)
}

func (h *APIHandler) DeleteBoxHandler(w http.ResponseWriter, r *http.Request) {
	h.annotations.DeleteBox(chi.URLParam(r, "boxID"))
	w.WriteHeader(http.StatusNoContent)
}

type SelectRequest struct {
	ID string `json:"id"`
}

func (h *APIHandler) SelectHandler(w http.ResponseWriter, r *http.Request) {
	var req SelectRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		respondError(w, http.StatusBadRequest, "Invalid request body: "+err.Error())
		return
	}
	if err := h.annotations.SelectBox(req.ID); err != nil {
		respondError(w, statusFor(err), err.Error())
		return
	}
	respondJSON(w, http.StatusOK, h.stateResponse())
}

type CanvasEventRequest struct {
	Type   string  `json:"type"`
	X      float64 `json:"x"`
	Y      float64 `json:"y"`
	Button int     `json:"button"`
	Pan    bool    `json:"pan"`
	DeltaY float64 `json:"delta_y"`
	Key    string  `json:"key"`
}

type CanvasEventResponse struct {
	Mode     string                  `json:"mode"`
	Effect   string                  `json:"effect"`
	BoxID    string                  `json:"box_id,omitempty"`
	Preview  *annotation.BoundingBox `json:"preview,omitempty"`
	Viewport canvas.Viewport         `json:"viewport"`
}

func (h *APIHandler) CanvasEventHandler(w http.ResponseWriter, r *http.Request) {
	var req CanvasEventRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		respondError(w, http.StatusBadRequest, "Invalid request body: "+err.Error())
		return
	}
	kind, err := canvas.ParseEventKind(req.Type)
	if err != nil {
		respondError(w, http.StatusBadRequest, err.Error())
		return
	}

	mode, eff := h.canvas.Handle(canvas.Event{
		Kind:   kind,
		X:      req.X,
		Y:      req.Y,
		Button: canvas.Button(req.Button),
		Pan:    req.Pan,
		DeltaY: req.DeltaY,
		Key:    req.Key,
	})
	respondJSON(w, http.StatusOK, CanvasEventResponse{
		Mode:     mode.String(),
		Effect:   eff.Kind.String(),
		BoxID:    eff.BoxID,
		Preview:  eff.Preview,
		Viewport: h.canvas.Viewport(),
	})
}

func (h *APIHandler) SetViewportHandler(w http.ResponseWriter, r *http.Request) {
	var v canvas.Viewport
	if err := json.NewDecoder(r.Body).Decode(&v); err != nil {
		respondError(w, http.StatusBadRequest, "Invalid request body: "+err.Error())
		return
	}
	if err := h.canvas.SetViewport(v); err != nil {
		respondError(w, http.StatusUnprocessableEntity, err.Error())
		return
	}
	respondJSON(w, http.StatusOK, h.canvas.Viewport())
}

func (h *APIHandler) ResetViewportHandler(w http.ResponseWriter, r *http.Request) {
	h.canvas.ResetViewport()
	respondJSON(w, http.StatusOK, h.canvas.Viewport())
}

type DrawStyleRequest struct {
	Label string `json:"label"`
	Color string `json:"color"`
}

func (h *APIHandler) SetDrawStyleHandler(w http.ResponseWriter, r *http.Request) {
	var req DrawStyleRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		respondError(w, http.StatusBadRequest, "Invalid request body: "+err.Error())
		return
	}
	label, color := annotation.ParseLabel(req.Label), annotation.ParseColor(req.Color)
	h.canvas.SetDrawStyle(label, color)
	respondJSON(w, http.StatusOK, DrawStyleRequest{Label: string(label), Color: string(color)})
}

func (h *APIHandler) GetChatHandler(w http.ResponseWriter, r *http.Request) {
	respondJSON(w, http.StatusOK, h.chatService.Transcript())
}

type PostMessageRequest struct {
	Content string `json:"content"`
}

type PostMessageResponse struct {
	Outcome core.Outcome `json:"outcome"`
	StateResponse
}

// PostMessageHandler blocks until the model answers. Other requests keep
// being served while it waits.
func (h *APIHandler) PostMessageHandler(w http.ResponseWriter, r *http.Request) {
	var req PostMessageRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		respondError(w, http.StatusBadRequest, "Invalid request body: "+err.Error())
		return
	}

	outcome, err := h.chatService.SendMessage(r.Context(), req.Content)
	if err != nil {
		respondError(w, statusFor(err), "Message content cannot be empty")
		return
	}
	respondJSON(w, http.StatusOK, PostMessageResponse{Outcome: outcome, StateResponse: h.stateResponse()})
}

func (h *APIHandler) ClearChatHandler(w http.ResponseWriter, r *http.Request) {
	h.chatService.ClearChat()
	w.WriteHeader(http.StatusNoContent)
}

func (h *APIHandler) GetSettingsHandler(w http.ResponseWriter, r *http.Request) {
	respondJSON(w, http.StatusOK, h.settings.Get().Masked())
}

func (h *APIHandler) PutSettingsHandler(w http.ResponseWriter, r *http.Request) {
	var req config.Settings
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		respondError(w, http.StatusBadRequest, "Invalid request body: "+err.Error())
		return
	}
	saved, err := h.settings.Replace(req)
	if err != nil {
		h.log.Error("failed to save settings", zap.Error(err))
		respondError(w, http.StatusInternalServerError, "Failed to save settings")
		return
	}
	respondJSON(w, http.StatusOK, saved.Masked())
}

func (h *APIHandler) ResetHandler(w http.ResponseWriter, r *http.Request) {
	h.chatService.Reset()
	h.canvas.Cancel()
	h.canvas.ResetViewport()
	w.WriteHeader(http.StatusNoContent)
}

type OptionsResponse struct {
	Labels          []annotation.Label `json:"labels"`
	Colors          []annotation.Color `json:"colors"`
	ChatModels      []string           `json:"chat_models"`
	SampleQuestions []string           `json:"sample_questions"`
}

func (h *APIHandler) OptionsHandler(w http.ResponseWriter, r *http.Request) {
	respondJSON(w, http.StatusOK, OptionsResponse{
		Labels:          annotation.Labels(),
		Colors:          annotation.Palette(),
		ChatModels:      config.ChatModels(),
		SampleQuestions: core.SampleQuestions(),
	})
}
