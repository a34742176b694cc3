package handler

import (
	"encoding/json"
	"net/http"
	"reviewlens/internal/service"
	"strconv"

	"github.com/gorilla/mux"
)

// ChatHandler handles dialogue session endpoints
type ChatHandler struct {
	chatSvc *service.ChatService
}

// NewChatHandler creates a new chat handler
func NewChatHandler(chatSvc *service.ChatService) *ChatHandler {
	return &ChatHandler{chatSvc: chatSvc}
}

// StepRequest is the body of a user turn
type StepRequest struct {
	Message        string `json:"message"`
	SelectedFactor string `json:"selectedFactor,omitempty"`
}

// Start handles POST /v1/sessions
func (h *ChatHandler) Start(w http.ResponseWriter, r *http.Request) {
	var req service.StartRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid request body")
		return
	}

	resp, err := h.chatSvc.Start(r.Context(), req)
	if err != nil {
		writeServiceError(w, err)
		return
	}
	writeJSON(w, http.StatusCreated, resp)
}

// Step handles POST /v1/sessions/{id}/messages
func (h *ChatHandler) Step(w http.ResponseWriter, r *http.Request) {
	var req StepRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid request body")
		return
	}

	turn, err := h.chatSvc.Step(r.Context(), mux.Vars(r)["id"], req.Message, req.SelectedFactor)
	if err != nil {
		writeServiceError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, turn)
}

// Finalize handles POST /v1/sessions/{id}/finalize
func (h *ChatHandler) Finalize(w http.ResponseWriter, r *http.Request) {
	turn, err := h.chatSvc.Finalize(r.Context(), mux.Vars(r)["id"])
	if err != nil {
		writeServiceError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, turn)
}

// Get handles GET /v1/sessions/{id}
func (h *ChatHandler) Get(w http.ResponseWriter, r *http.Request) {
	rec, err := h.chatSvc.State(r.Context(), mux.Vars(r)["id"])
	if err != nil {
		writeServiceError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, rec)
}

// Related handles GET /v1/sessions/{id}/related/{factorKey}
func (h *ChatHandler) Related(w http.ResponseWriter, r *http.Request) {
	vars := mux.Vars(r)
	limit := 0
	if v := r.URL.Query().Get("limit"); v != "" {
		n, err := strconv.Atoi(v)
		if err != nil || n < 0 {
			writeError(w, http.StatusBadRequest, "limit must be a non-negative integer")
			return
		}
		limit = n
	}

	related, err := h.chatSvc.Related(r.Context(), vars["id"], vars["factorKey"], limit)
	if err != nil {
		writeServiceError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, related)
}

// Delete handles DELETE /v1/sessions/{id}
func (h *ChatHandler) Delete(w http.ResponseWriter, r *http.Request) {
	if err := h.chatSvc.Delete(r.Context(), mux.Vars(r)["id"]); err != nil {
		writeServiceError(w, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}
