package server

import (
	"encoding/json"
	"fmt"
	"log/slog"
	"net/http"
	"strings"
	"time"
	"unicode/utf8"

	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"
	"github.com/gorilla/sessions"

	"github.com/leapstack-labs/leapinsight/internal/assistant"
	"github.com/leapstack-labs/leapinsight/internal/config"
	"github.com/leapstack-labs/leapinsight/internal/conversation"
	"github.com/leapstack-labs/leapinsight/internal/fault"
)

const (
	sessionName  = "leapinsight"
	sessionIDKey = "sid"
	maxBodyBytes = 64 << 10
)

// ChatRequest is the body of POST /chat. "promt" is accepted for older
// clients.
type ChatRequest struct {
	Promt   string           `json:"promt"`
	Prompt  string           `json:"prompt"`
	History []HistoryMessage `json:"history,omitempty"`
}

// HistoryMessage is caller-supplied conversation context.
type HistoryMessage struct {
	Role    string `json:"role"`
	Content string `json:"content"`
}

// ChatResponse is the body of a successful POST /chat.
type ChatResponse struct {
	Response  string `json:"response"`
	Timestamp string `json:"timestamp"`
	Status    string `json:"status"`
}

// ErrorResponse is the body of every failed request.
type ErrorResponse struct {
	Error     string `json:"error"`
	Message   string `json:"message"`
	Timestamp string `json:"timestamp"`
}

// Handlers serves the API routes.
type Handlers struct {
	session        *assistant.Session
	sessionStore   sessions.Store
	info           Info
	maxQueryLength int
	now            func() time.Time
	logger         *slog.Logger
}

// NewHandlers creates handlers over session.
func NewHandlers(session *assistant.Session, sessionStore sessions.Store, info Info, logger *slog.Logger) *Handlers {
	if logger == nil {
		logger = slog.New(slog.DiscardHandler)
	}
	return &Handlers{
		session:        session,
		sessionStore:   sessionStore,
		info:           info,
		maxQueryLength: config.DefaultMaxQueryLength,
		now:            time.Now,
		logger:         logger,
	}
}

// SetupRoutes configures the API routes.
func SetupRoutes(router chi.Router, h *Handlers) {
	router.Get("/health", h.HandleHealth)
	router.Get("/home/", h.HandleHome)
	router.Post("/chat", h.HandleChat)
	router.Route("/api", func(r chi.Router) {
		r.Get("/info", h.HandleInfo)
		r.Get("/suggestions", h.HandleSuggestions)
		r.Get("/conversation", h.HandleConversation)
		r.Post("/clear", h.HandleClear)
	})
	router.NotFound(h.HandleNotFound)
	router.MethodNotAllowed(h.HandleMethodNotAllowed)
}

// HandleChat answers one question.
func (h *Handlers) HandleChat(w http.ResponseWriter, r *http.Request) {
	var req ChatRequest
	if err := json.NewDecoder(http.MaxBytesReader(w, r.Body, maxBodyBytes)).Decode(&req); err != nil {
		h.writeError(w, http.StatusBadRequest, "No data provided", "Please provide a valid request with a 'prompt' field")
		return
	}
	question := strings.TrimSpace(req.Prompt)
	if question == "" {
		question = strings.TrimSpace(req.Promt)
	}
	if question == "" {
		h.writeError(w, http.StatusBadRequest, "Missing or empty prompt", "Please provide a question about your loan data")
		return
	}
	if utf8.RuneCountInString(question) > h.maxQueryLength {
		h.writeError(w, http.StatusBadRequest, "Prompt too long",
			fmt.Sprintf("Please keep your question under %d characters", h.maxQueryLength))
		return
	}

	id, err := h.sessionID(w, r)
	if err != nil {
		h.logger.Error("failed to establish session", "error", err)
		h.writeError(w, http.StatusInternalServerError, "Internal server error", fault.Message(fault.KindCompute))
		return
	}

	h.logger.Info("processing chat request", "session", id, "prompt", clip(question, 100))
	reply := h.session.AskWithHistory(r.Context(), id, question, toMessages(req.History))
	h.writeJSON(w, http.StatusOK, ChatResponse{
		Response:  reply.HTML,
		Timestamp: h.timestamp(),
		Status:    "success",
	})
}

// HandleClear forgets the caller's conversation.
func (h *Handlers) HandleClear(w http.ResponseWriter, r *http.Request) {
	id, err := h.sessionID(w, r)
	if err != nil {
		h.writeError(w, http.StatusInternalServerError, "Internal server error", fault.Message(fault.KindCompute))
		return
	}
	h.writeJSON(w, http.StatusOK, map[string]string{
		"message":   h.session.ClearConversation(id),
		"timestamp": h.timestamp(),
		"status":    "success",
	})
}

// HandleConversation lists the caller's remembered messages.
func (h *Handlers) HandleConversation(w http.ResponseWriter, r *http.Request) {
	id, err := h.sessionID(w, r)
	if err != nil {
		h.writeError(w, http.StatusInternalServerError, "Internal server error", fault.Message(fault.KindCompute))
		return
	}
	messages := h.session.ListConversation(id)
	if messages == nil {
		messages = []conversation.Message{}
	}
	h.writeJSON(w, http.StatusOK, map[string]any{
		"messages":  messages,
		"timestamp": h.timestamp(),
	})
}

// HandleHealth reports liveness.
func (h *Handlers) HandleHealth(w http.ResponseWriter, _ *http.Request) {
	h.writeJSON(w, http.StatusOK, map[string]string{
		"status":    "healthy",
		"timestamp": h.timestamp(),
		"service":   h.info.Name,
	})
}

// HandleHome returns the welcome message.
func (h *Handlers) HandleHome(w http.ResponseWriter, _ *http.Request) {
	h.writeJSON(w, http.StatusOK, ChatResponse{
		Response:  h.session.Welcome(),
		Timestamp: h.timestamp(),
		Status:    "success",
	})
}

// HandleInfo describes the service.
func (h *Handlers) HandleInfo(w http.ResponseWriter, _ *http.Request) {
	h.writeJSON(w, http.StatusOK, struct {
		Info
		Timestamp string `json:"timestamp"`
	}{h.info, h.timestamp()})
}

// HandleSuggestions lists starter questions.
func (h *Handlers) HandleSuggestions(w http.ResponseWriter, _ *http.Request) {
	type suggestion struct {
		Text  string `json:"text"`
		Query string `json:"query"`
	}
	out := []suggestion{}
	for _, s := range h.session.Suggestions() {
		out = append(out, suggestion{Text: s.Text, Query: s.Query})
	}
	h.writeJSON(w, http.StatusOK, map[string]any{"suggestions": out})
}

// HandleNotFound is the JSON 404.
func (h *Handlers) HandleNotFound(w http.ResponseWriter, _ *http.Request) {
	h.writeError(w, http.StatusNotFound, "Not found", "The requested endpoint does not exist")
}

// HandleMethodNotAllowed is the JSON 405.
func (h *Handlers) HandleMethodNotAllowed(w http.ResponseWriter, _ *http.Request) {
	h.writeError(w, http.StatusMethodNotAllowed, "Method not allowed", "The requested method is not supported for this endpoint")
}

// sessionID returns the caller's session id, issuing one on first contact.
func (h *Handlers) sessionID(w http.ResponseWriter, r *http.Request) (string, error) {
	sess, err := h.sessionStore.Get(r, sessionName)
	if err != nil {
		// An undecodable cookie starts a new session.
		h.logger.Debug("discarding invalid session cookie", "error", err)
	}
	if id, ok := sess.Values[sessionIDKey].(string); ok && id != "" {
		return id, nil
	}
	id := uuid.NewString()
	sess.Values[sessionIDKey] = id
	if err := sess.Save(r, w); err != nil {
		return "", fmt.Errorf("failed to save session: %w", err)
	}
	return id, nil
}

func (h *Handlers) timestamp() string {
	return h.now().Format(time.RFC3339)
}

func (h *Handlers) writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(v); err != nil {
		h.logger.Error("failed to encode response", "error", err)
	}
}

func (h *Handlers) writeError(w http.ResponseWriter, status int, title, message string) {
	h.writeJSON(w, status, ErrorResponse{Error: title, Message: message, Timestamp: h.timestamp()})
}

func toMessages(history []HistoryMessage) []conversation.Message {
	if len(history) == 0 {
		return nil
	}
	out := make([]conversation.Message, 0, len(history))
	for _, m := range history {
		role := conversation.RoleUser
		if strings.EqualFold(m.Role, string(conversation.RoleAssistant)) || strings.EqualFold(m.Role, "bot") {
			role = conversation.RoleAssistant
		}
		out = append(out, conversation.Message{Role: role, Content: m.Content})
	}
	return out
}

func clip(s string, n int) string {
	if utf8.RuneCountInString(s) <= n {
		return s
	}
	return string([]rune(s)[:n]) + "..."
}
