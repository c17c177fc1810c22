package api

import (
	"encoding/json"
	"net/http"
	"time"

	"github.com/google/uuid"
	"github.com/gorilla/mux"

	"github.com/sentra/moderation/internal/domain"
	"github.com/sentra/moderation/internal/events"
)

func writeJSON(w http.ResponseWriter, status int, v interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(v)
}

func writeError(w http.ResponseWriter, err error) {
	status := http.StatusInternalServerError
	switch domain.KindOf(err) {
	case domain.ErrInputInvalid:
		status = http.StatusBadRequest
	case domain.ErrScorerUnavailable, domain.ErrStateUnavailable:
		status = http.StatusServiceUnavailable
	}
	writeJSON(w, status, map[string]string{
		"error": err.Error(),
		"kind":  domain.KindOf(err).String(),
	})
}

// handleModerate runs one content item through the Flow A cascade and
// returns the terminal result, plus the review task when escalated.
func (s *Server) handleModerate(w http.ResponseWriter, r *http.Request) {
	var content domain.Content
	if err := json.NewDecoder(r.Body).Decode(&content); err != nil {
		http.Error(w, err.Error(), http.StatusBadRequest)
		return
	}
	if content.ID == uuid.Nil {
		content.ID = uuid.New()
	}
	if content.CreatedAt.IsZero() {
		content.CreatedAt = time.Now()
	}

	result, task, err := s.orchestrator.ProcessContent(r.Context(), &content)
	if err != nil {
		writeError(w, err)
		return
	}

	resp := map[string]interface{}{"result": result}
	if task != nil {
		resp["review_task"] = task
	}
	writeJSON(w, http.StatusOK, resp)
}

// handleChat runs one live chat message through Flow B.
func (s *Server) handleChat(w http.ResponseWriter, r *http.Request) {
	var msg domain.ChatMessage
	if err := json.NewDecoder(r.Body).Decode(&msg); err != nil {
		http.Error(w, err.Error(), http.StatusBadRequest)
		return
	}
	if msg.ID == uuid.Nil {
		msg.ID = uuid.New()
	}
	if msg.Timestamp.IsZero() {
		msg.Timestamp = time.Now()
	}

	decision, err := s.processor.Process(&msg)
	if err != nil {
		writeError(w, err)
		return
	}
	if decision == nil {
		// Late message dropped under the drop policy.
		writeJSON(w, http.StatusOK, map[string]string{"status": "dropped_late"})
		return
	}

	if s.chatSink != nil {
		if err := s.chatSink.SaveChatDecision(r.Context(), decision); err != nil {
			s.logger.Printf("chat sink failed for message %s: %v", decision.MessageID, err)
		}
	}
	if s.bus != nil {
		s.bus.Emit(events.TypeChatDecision, "realtime-moderator", decision.MessageID.String(), map[string]interface{}{
			"user_id":    decision.UserID.String(),
			"channel_id": decision.ChannelID,
			"decision":   string(decision.Decision),
			"severity":   decision.Severity.String(),
		})
	}
	writeJSON(w, http.StatusOK, decision)
}

func (s *Server) handleQueueStats(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, s.queue.Stats())
}

// handleQueueNext pops the highest-priority review task for a reviewer.
func (s *Server) handleQueueNext(w http.ResponseWriter, r *http.Request) {
	task := s.queue.Dequeue()
	if task == nil {
		writeJSON(w, http.StatusOK, map[string]interface{}{"task": nil})
		return
	}
	writeJSON(w, http.StatusOK, map[string]interface{}{"task": task})
}

func (s *Server) handleUserRisk(w http.ResponseWriter, r *http.Request) {
	vars := mux.Vars(r)
	userID, err := uuid.Parse(vars["user_id"])
	if err != nil {
		http.Error(w, "invalid user id", http.StatusBadRequest)
		return
	}
	writeJSON(w, http.StatusOK, s.reputation.GetRiskProfile(userID))
}

func (s *Server) handleChannelState(w http.ResponseWriter, r *http.Request) {
	vars := mux.Vars(r)
	state, ok := s.processor.Channels().State(vars["channel_id"])
	if !ok {
		http.Error(w, "channel not found", http.StatusNotFound)
		return
	}
	writeJSON(w, http.StatusOK, state)
}

func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]interface{}{
		"status":      "ok",
		"users":       s.reputation.UserCount(),
		"queue_depth": s.queue.Len(),
		"channels":    s.processor.Channels().ChannelCount(),
	})
}
