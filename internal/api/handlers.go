package api

import (
	"encoding/json"
	"log/slog"
	"net/http"
	"strconv"
	"time"

	"github.com/gorilla/mux"

	"github.com/BTreeMap/LeadPipe/internal/models"
	"github.com/BTreeMap/LeadPipe/internal/store"
)

// followUpRequest reschedules a NEW contact's follow-up.
type followUpRequest struct {
	DelayMinutes *int `json:"delay_minutes" validate:"required,gte=0,lte=10080"`
}

// healthHandler provides a health check endpoint for monitoring and load balancing
func (s *Server) healthHandler(w http.ResponseWriter, r *http.Request) {
	healthData := map[string]interface{}{
		"status":    "healthy",
		"timestamp": time.Now().UTC().Format(time.RFC3339),
	}
	statusCode := http.StatusOK
	if summary, err := s.store.Summary(r.Context()); err != nil {
		slog.Warn("Server.healthHandler: store unavailable", "error", err)
		healthData["status"] = "degraded"
		healthData["error"] = "Failed to query store"
		statusCode = http.StatusServiceUnavailable
	} else {
		healthData["active_conversations"] = summary.ActiveConversations
	}
	writeJSONResponse(w, statusCode, healthData)
}

func (s *Server) listContactsHandler(w http.ResponseWriter, r *http.Request) {
	f := store.ContactFilter{Limit: parseLimit(r)}
	if status := r.URL.Query().Get("status"); status != "" {
		f.Status = models.ContactStatus(status)
		if !models.IsValidContactStatus(f.Status) {
			writeJSONResponse(w, http.StatusBadRequest, models.Error("Unknown contact status: "+status))
			return
		}
	}
	contacts, err := s.store.ListContacts(r.Context(), f)
	if err != nil {
		slog.Error("Server.listContactsHandler: query failed", "error", err)
		writeJSONResponse(w, http.StatusInternalServerError, models.Error("Failed to list contacts"))
		return
	}
	writeJSONResponse(w, http.StatusOK, models.Success(nonNil(contacts)))
}

func (s *Server) getContactHandler(w http.ResponseWriter, r *http.Request) {
	id := mux.Vars(r)["id"]
	c, err := s.store.GetContact(r.Context(), id)
	if err != nil {
		slog.Error("Server.getContactHandler: query failed", "contact_id", id, "error", err)
		writeJSONResponse(w, http.StatusInternalServerError, models.Error("Failed to load contact"))
		return
	}
	if c == nil {
		writeJSONResponse(w, http.StatusNotFound, models.Error("Contact not found"))
		return
	}
	writeJSONResponse(w, http.StatusOK, models.Success(c))
}

func (s *Server) scheduleFollowUpHandler(w http.ResponseWriter, r *http.Request) {
	if r.Body != nil {
		defer r.Body.Close()
	}
	id := mux.Vars(r)["id"]
	var req followUpRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		slog.Warn("Server.scheduleFollowUpHandler: failed to decode JSON", "error", err)
		writeJSONResponse(w, http.StatusBadRequest, models.Error("Invalid JSON format"))
		return
	}
	if err := s.validate.Struct(req); err != nil {
		writeJSONResponse(w, http.StatusBadRequest, models.Error("delay_minutes must be between 0 and 10080"))
		return
	}

	c, err := s.store.GetContact(r.Context(), id)
	if err != nil {
		slog.Error("Server.scheduleFollowUpHandler: query failed", "contact_id", id, "error", err)
		writeJSONResponse(w, http.StatusInternalServerError, models.Error("Failed to load contact"))
		return
	}
	if c == nil {
		writeJSONResponse(w, http.StatusNotFound, models.Error("Contact not found"))
		return
	}
	delay := time.Duration(*req.DelayMinutes) * time.Minute
	ok, err := s.mgr.ScheduleFollowUpAfter(r.Context(), id, delay)
	if err != nil {
		slog.Error("Server.scheduleFollowUpHandler: schedule failed", "contact_id", id, "error", err)
		writeJSONResponse(w, http.StatusInternalServerError, models.Error("Failed to schedule follow-up"))
		return
	}
	if !ok {
		writeJSONResponse(w, http.StatusConflict, models.Error("Contact is not NEW; status is "+string(c.Status)))
		return
	}
	slog.Info("Server.scheduleFollowUpHandler: follow-up scheduled", "contact_id", id, "delay", delay)
	if updated, err := s.store.GetContact(r.Context(), id); err == nil && updated != nil {
		c = updated
	}
	writeJSONResponse(w, http.StatusCreated, models.ScheduledWithMessage("Follow-up scheduled", c))
}

func (s *Server) listConversationsHandler(w http.ResponseWriter, r *http.Request) {
	activeOnly, _ := strconv.ParseBool(r.URL.Query().Get("active"))
	convs, err := s.store.ListConversations(r.Context(), activeOnly, parseLimit(r))
	if err != nil {
		slog.Error("Server.listConversationsHandler: query failed", "error", err)
		writeJSONResponse(w, http.StatusInternalServerError, models.Error("Failed to list conversations"))
		return
	}
	writeJSONResponse(w, http.StatusOK, models.Success(nonNil(convs)))
}

func (s *Server) conversationMessagesHandler(w http.ResponseWriter, r *http.Request) {
	id := mux.Vars(r)["id"]
	conv, err := s.store.GetConversation(r.Context(), id)
	if err != nil {
		slog.Error("Server.conversationMessagesHandler: query failed", "conversation_id", id, "error", err)
		writeJSONResponse(w, http.StatusInternalServerError, models.Error("Failed to load conversation"))
		return
	}
	if conv == nil {
		writeJSONResponse(w, http.StatusNotFound, models.Error("Conversation not found"))
		return
	}
	msgs, err := s.store.ListMessages(r.Context(), id)
	if err != nil {
		slog.Error("Server.conversationMessagesHandler: list failed", "conversation_id", id, "error", err)
		writeJSONResponse(w, http.StatusInternalServerError, models.Error("Failed to list messages"))
		return
	}
	writeJSONResponse(w, http.StatusOK, models.Success(nonNil(msgs)))
}

// outOfBandMessagesHandler lists messages sent or received outside any conversation.
func (s *Server) outOfBandMessagesHandler(w http.ResponseWriter, r *http.Request) {
	msgs, err := s.store.ListMessages(r.Context(), "")
	if err != nil {
		slog.Error("Server.outOfBandMessagesHandler: list failed", "error", err)
		writeJSONResponse(w, http.StatusInternalServerError, models.Error("Failed to list messages"))
		return
	}
	writeJSONResponse(w, http.StatusOK, models.Success(nonNil(msgs)))
}

func (s *Server) listTasksHandler(w http.ResponseWriter, r *http.Request) {
	tasks, err := s.store.ListTasks(r.Context(), parseLimit(r))
	if err != nil {
		slog.Error("Server.listTasksHandler: query failed", "error", err)
		writeJSONResponse(w, http.StatusInternalServerError, models.Error("Failed to list tasks"))
		return
	}
	writeJSONResponse(w, http.StatusOK, models.Success(nonNil(tasks)))
}

func (s *Server) projectLogsHandler(w http.ResponseWriter, r *http.Request) {
	logs, err := s.store.ListProjectLogs(r.Context(), r.URL.Query().Get("contact_id"), parseLimit(r))
	if err != nil {
		slog.Error("Server.projectLogsHandler: query failed", "error", err)
		writeJSONResponse(w, http.StatusInternalServerError, models.Error("Failed to list project logs"))
		return
	}
	writeJSONResponse(w, http.StatusOK, models.Success(nonNil(logs)))
}

func (s *Server) summaryHandler(w http.ResponseWriter, r *http.Request) {
	summary, err := s.store.Summary(r.Context())
	if err != nil {
		slog.Error("Server.summaryHandler: query failed", "error", err)
		writeJSONResponse(w, http.StatusInternalServerError, models.Error("Failed to compute summary"))
		return
	}
	writeJSONResponse(w, http.StatusOK, models.Success(summary))
}
