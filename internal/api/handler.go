package api

import (
	"encoding/json"
	"log/slog"
	"net/http"
	"strings"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"

	"github.com/gamersumit/chatlite-widget/internal/ai"
	"github.com/gamersumit/chatlite-widget/internal/domain"
	"github.com/gamersumit/chatlite-widget/internal/store"
)

// historyLimit bounds how much conversation context is replayed to the
// responder per message.
const historyLimit = 20

// Handler serves the widget verification, config, session and message
// endpoints.
type Handler struct {
	repo      store.Repository
	responder ai.Responder
}

// NewHandler creates a new Handler.
func NewHandler(repo store.Repository, responder ai.Responder) *Handler {
	return &Handler{repo: repo, responder: responder}
}

// RegisterWidget creates a widget record. New widgets start unverified and
// inactive; the loader's verification pre-flight activates them.
func (h *Handler) RegisterWidget(w http.ResponseWriter, r *http.Request) {
	var payload struct {
		WidgetID string              `json:"widget_id"`
		Domain   string              `json:"domain"`
		Config   domain.WidgetConfig `json:"config"`
	}
	if err := json.NewDecoder(r.Body).Decode(&payload); err != nil {
		Error(w, http.StatusBadRequest, "invalid json")
		return
	}

	if payload.WidgetID == "" {
		payload.WidgetID = uuid.NewString()
	}

	now := time.Now()
	widget := &domain.Widget{
		WidgetID:           payload.WidgetID,
		Domain:             payload.Domain,
		VerificationStatus: domain.VerificationPending,
		Status:             domain.WidgetInactive,
		Config:             payload.Config,
		CreatedAt:          now,
		UpdatedAt:          now,
	}
	if err := h.repo.UpsertWidget(r.Context(), widget); err != nil {
		slog.Error("Failed to register widget", "widget_id", payload.WidgetID, "error", err)
		Error(w, http.StatusInternalServerError, "failed to register widget")
		return
	}

	JSON(w, http.StatusCreated, widget)
}

// WidgetStatus reports the verification/activation status of a widget.
func (h *Handler) WidgetStatus(w http.ResponseWriter, r *http.Request) {
	widgetID := chi.URLParam(r, "widgetID")

	widget, err := h.repo.GetWidget(r.Context(), widgetID)
	if err != nil {
		slog.Error("Failed to load widget", "widget_id", widgetID, "error", err)
		Error(w, http.StatusInternalServerError, "failed to load widget")
		return
	}
	if widget == nil {
		Error(w, http.StatusNotFound, "widget not found")
		return
	}

	JSON(w, http.StatusOK, map[string]string{
		"verification_status": widget.VerificationStatus,
		"status":              widget.Status,
	})
}

// VerifyWidget records a domain verification attempt. A successful attempt
// marks the widget verified and active.
func (h *Handler) VerifyWidget(w http.ResponseWriter, r *http.Request) {
	widgetID := chi.URLParam(r, "widgetID")

	var payload struct {
		Domain    string `json:"domain"`
		Mode      string `json:"mode"`
		PageURL   string `json:"page_url"`
		UserAgent string `json:"user_agent"`
	}
	if err := json.NewDecoder(r.Body).Decode(&payload); err != nil {
		Error(w, http.StatusBadRequest, "invalid json")
		return
	}
	if payload.Domain == "" {
		Error(w, http.StatusBadRequest, "missing domain")
		return
	}

	widget, err := h.repo.GetWidget(r.Context(), widgetID)
	if err != nil {
		slog.Error("Failed to load widget", "widget_id", widgetID, "error", err)
		Error(w, http.StatusInternalServerError, "failed to load widget")
		return
	}
	if widget == nil {
		Error(w, http.StatusNotFound, "widget not found")
		return
	}

	if err := h.repo.MarkVerified(r.Context(), widgetID, payload.Domain); err != nil {
		slog.Error("Failed to mark widget verified", "widget_id", widgetID, "error", err)
		Error(w, http.StatusInternalServerError, "failed to verify widget")
		return
	}
	slog.Info("Widget verified", "widget_id", widgetID, "domain", payload.Domain, "mode", payload.Mode)

	JSON(w, http.StatusOK, map[string]bool{"verified": true})
}

// WidgetConfig returns the stored widget configuration for standalone
// embeddings.
func (h *Handler) WidgetConfig(w http.ResponseWriter, r *http.Request) {
	widgetID := chi.URLParam(r, "widgetID")

	widget, err := h.repo.GetWidget(r.Context(), widgetID)
	if err != nil {
		slog.Error("Failed to load widget", "widget_id", widgetID, "error", err)
		Error(w, http.StatusInternalServerError, "failed to load widget")
		return
	}
	if widget == nil {
		Error(w, http.StatusNotFound, "widget not found")
		return
	}

	JSON(w, http.StatusOK, map[string]any{
		"is_verified": widget.IsVerified(),
		"is_active":   widget.IsActive(),
		"config":      widget.Config,
	})
}

// CreateSession opens a chat session for a visitor.
func (h *Handler) CreateSession(w http.ResponseWriter, r *http.Request) {
	var payload struct {
		WidgetID  string `json:"widget_id"`
		VisitorID string `json:"visitor_id"`
		PageURL   string `json:"page_url"`
		PageTitle string `json:"page_title"`
		UserAgent string `json:"user_agent"`
		Referrer  string `json:"referrer"`
	}
	if err := json.NewDecoder(r.Body).Decode(&payload); err != nil {
		Error(w, http.StatusBadRequest, "invalid json")
		return
	}
	if payload.VisitorID == "" {
		Error(w, http.StatusBadRequest, "missing visitor_id")
		return
	}

	sess := &domain.StoredSession{
		SessionID: uuid.NewString(),
		WidgetID:  payload.WidgetID,
		VisitorID: payload.VisitorID,
		PageURL:   payload.PageURL,
		PageTitle: payload.PageTitle,
		UserAgent: payload.UserAgent,
		Referrer:  payload.Referrer,
		CreatedAt: time.Now(),
	}
	if err := h.repo.CreateSession(r.Context(), sess); err != nil {
		slog.Error("Failed to create session", "visitor_id", payload.VisitorID, "error", err)
		Error(w, http.StatusInternalServerError, "failed to create session")
		return
	}
	slog.Info("Chat session created", "session_id", sess.SessionID, "widget_id", sess.WidgetID)

	JSON(w, http.StatusOK, map[string]string{"session_id": sess.SessionID})
}

// SendMessage stores a visitor message and returns the assistant reply.
func (h *Handler) SendMessage(w http.ResponseWriter, r *http.Request) {
	var payload struct {
		Message   string `json:"message"`
		SessionID string `json:"session_id"`
		VisitorID string `json:"visitor_id"`
		PageURL   string `json:"page_url"`
		PageTitle string `json:"page_title"`
		UserAgent string `json:"user_agent"`
	}
	if err := json.NewDecoder(r.Body).Decode(&payload); err != nil {
		Error(w, http.StatusBadRequest, "invalid json")
		return
	}

	payload.Message = strings.TrimSpace(payload.Message)
	if payload.Message == "" || payload.SessionID == "" || payload.VisitorID == "" {
		Error(w, http.StatusBadRequest, "missing message, session_id or visitor_id")
		return
	}

	sess, err := h.repo.GetSession(r.Context(), payload.SessionID)
	if err != nil {
		slog.Error("Failed to load session", "session_id", payload.SessionID, "error", err)
		Error(w, http.StatusInternalServerError, "failed to load session")
		return
	}
	if sess == nil {
		Error(w, http.StatusNotFound, "session not found")
		return
	}

	now := time.Now()
	userMsg := &domain.StoredMessage{
		MessageID: uuid.NewString(),
		SessionID: payload.SessionID,
		Role:      domain.RoleUser,
		Content:   payload.Message,
		CreatedAt: now,
	}
	if err := h.repo.SaveMessage(r.Context(), userMsg); err != nil {
		slog.Error("Failed to save message", "session_id", payload.SessionID, "error", err)
		Error(w, http.StatusInternalServerError, "failed to save message")
		return
	}

	history, err := h.repo.GetHistory(r.Context(), payload.SessionID, historyLimit)
	if err != nil {
		slog.Warn("Failed to load history, answering without context", "session_id", payload.SessionID, "error", err)
		history = nil
	}

	aiHistory := make([]ai.Message, 0, len(history))
	for _, m := range history {
		if m.MessageID == userMsg.MessageID {
			continue
		}
		role := "user"
		if m.Role == domain.RoleAssistant {
			role = "assistant"
		}
		aiHistory = append(aiHistory, ai.Message{Role: role, Text: m.Content})
	}

	reply, err := h.responder.Reply(r.Context(), aiHistory, payload.Message)
	if err != nil {
		slog.Error("Responder failed", "session_id", payload.SessionID, "error", err)
		Error(w, http.StatusInternalServerError, "processing error")
		return
	}

	assistantMsg := &domain.StoredMessage{
		MessageID: uuid.NewString(),
		SessionID: payload.SessionID,
		Role:      domain.RoleAssistant,
		Content:   reply,
		CreatedAt: time.Now(),
	}
	if err := h.repo.SaveMessage(r.Context(), assistantMsg); err != nil {
		slog.Warn("Failed to save assistant message", "session_id", payload.SessionID, "error", err)
	}

	JSON(w, http.StatusOK, map[string]string{
		"message_id": assistantMsg.MessageID,
		"response":   reply,
	})
}
