package api

import (
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"

	"persona.dev/recruiter-persona/internal/core"
	"persona.dev/recruiter-persona/internal/store"
)

const (
	defaultSearchLimit = 5
	maxSearchLimit     = 50
)

type APIHandler struct {
	chatService *core.ChatService
	logger      *slog.Logger
}

func NewAPIHandler(cs *core.ChatService, logger *slog.Logger) *APIHandler {
	return &APIHandler{chatService: cs, logger: logger.With("component", "api")}
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

func writeError(w http.ResponseWriter, status int, message string) {
	writeJSON(w, status, map[string]string{"error": message})
}

func (h *APIHandler) HealthHandler(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

type CreateSessionResponse struct {
	SessionID string `json:"session_id"`
}

func (h *APIHandler) CreateSessionHandler(w http.ResponseWriter, r *http.Request) {
	id, err := h.chatService.StartSession(r.Context())
	if err != nil {
		h.logger.Error("failed to create session", "error", err, "request_id", middleware.GetReqID(r.Context()))
		writeError(w, http.StatusInternalServerError, "Failed to create session")
		return
	}
	writeJSON(w, http.StatusCreated, CreateSessionResponse{SessionID: id})
}

type ConversationRequest struct {
	Message        string `json:"message"`
	ConversationID string `json:"conversation_id,omitempty"`
}

type ConversationResponse struct {
	Message        string            `json:"message"`
	ConversationID string            `json:"conversation_id"`
	Metadata       core.TurnMetadata `json:"metadata"`
	Timestamp      time.Time         `json:"timestamp"`
}

func (h *APIHandler) ConversationHandler(w http.ResponseWriter, r *http.Request) {
	var req ConversationRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "Invalid request body: "+err.Error())
		return
	}
	if strings.TrimSpace(req.Message) == "" {
		writeError(w, http.StatusBadRequest, "Message cannot be empty")
		return
	}

	res, err := h.chatService.HandleTurn(r.Context(), req.ConversationID, req.Message)
	if err != nil {
		switch {
		case errors.Is(err, store.ErrSessionNotFound):
			writeError(w, http.StatusNotFound, "Conversation not found")
		case errors.Is(err, core.ErrEmptyMessage):
			writeError(w, http.StatusBadRequest, "Message cannot be empty")
		default:
			h.logger.Error("failed to handle conversation turn", "conversation_id", req.ConversationID, "error", err,
				"request_id", middleware.GetReqID(r.Context()))
			writeError(w, http.StatusInternalServerError, "Failed to process message")
		}
		return
	}

	writeJSON(w, http.StatusOK, ConversationResponse{
		Message:        res.Reply,
		ConversationID: res.SessionID,
		Metadata:       res.Metadata,
		Timestamp:      res.Metadata.Timestamp,
	})
}

func (h *APIHandler) GetConversationHandler(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "conversationID")

	session, err := h.chatService.GetSession(r.Context(), id)
	if err != nil {
		if errors.Is(err, store.ErrSessionNotFound) {
			writeError(w, http.StatusNotFound, "Conversation not found")
			return
		}
		h.logger.Error("failed to load conversation", "conversation_id", id, "error", err)
		writeError(w, http.StatusInternalServerError, "Failed to load conversation")
		return
	}
	if session.Messages == nil {
		session.Messages = []store.Message{}
	}
	writeJSON(w, http.StatusOK, session)
}

type SearchResult struct {
	Content  string            `json:"content"`
	Metadata map[string]string `json:"metadata"`
	Score    float64           `json:"score"`
}

type SearchResponse struct {
	Query   string         `json:"query"`
	Results []SearchResult `json:"results"`
	Count   int            `json:"count"`
}

func (h *APIHandler) SearchHandler(w http.ResponseWriter, r *http.Request) {
	query := strings.TrimSpace(r.URL.Query().Get("query"))
	if query == "" {
		writeError(w, http.StatusBadRequest, "Query parameter 'query' is required")
		return
	}

	limit := defaultSearchLimit
	if raw := r.URL.Query().Get("limit"); raw != "" {
		n, err := strconv.Atoi(raw)
		if err != nil || n < 0 {
			writeError(w, http.StatusBadRequest, "Query parameter 'limit' must be a non-negative integer")
			return
		}
		limit = min(n, maxSearchLimit)
	}

	hits := h.chatService.Search(r.Context(), query, limit)
	results := make([]SearchResult, 0, len(hits))
	for _, hit := range hits {
		results = append(results, SearchResult{Content: hit.Text, Metadata: hit.Metadata, Score: hit.Score})
	}
	writeJSON(w, http.StatusOK, SearchResponse{Query: query, Results: results, Count: len(results)})
}

func (h *APIHandler) PersonalInfoHandler(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, h.chatService.Persona().Profile)
}
