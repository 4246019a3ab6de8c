package httpapi

import (
	"compliancedash/internal/core"
	"compliancedash/pkg/domain"
	"net/http"
	"strconv"
	"strings"
)

type alertRequest struct {
	Message   string `json:"message"`
	CreatedBy string `json:"created_by"`
}

type responseRequest struct {
	Responder string `json:"responder"`
	Message   string `json:"message"`
}

type resolveRequest struct {
	// Resolved defaults to true when omitted.
	Resolved   *bool  `json:"resolved"`
	ResolvedBy string `json:"resolved_by"`
}

type deleteAlertRequest struct {
	DeletedBy string `json:"deleted_by"`
}

type messageRequest struct {
	Sender string `json:"sender"`
	Body   string `json:"body"`
}

func (h *Handler) handleListAlerts(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()
	filter := core.AlertFilter{Kind: domain.AlertKind(strings.TrimSpace(q.Get("kind")))}
	if raw := strings.TrimSpace(q.Get("plant_id")); raw != "" {
		id, err := strconv.Atoi(raw)
		if err != nil || id <= 0 {
			writeError(w, http.StatusBadRequest, "invalid plant_id")
			return
		}
		filter.PlantID = id
	}
	alerts, err := h.svc.ListAlerts(r.Context(), filter)
	if err != nil {
		h.fail(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, nonNil(alerts))
}

func (h *Handler) handleCreateGeneralAlert(w http.ResponseWriter, r *http.Request) {
	var req alertRequest
	if !h.decodeOrFail(w, r, &req, "alert") {
		return
	}
	alert, _, err := h.svc.CreateGeneralAlert(r.Context(), req.Message, req.CreatedBy)
	if err != nil {
		h.fail(w, r, err)
		return
	}
	writeJSON(w, http.StatusCreated, alert)
}

func (h *Handler) handleCreatePlantAlert(w http.ResponseWriter, r *http.Request) {
	plantID, ok := pathID(w, r, "id")
	if !ok {
		return
	}
	var req alertRequest
	if !h.decodeOrFail(w, r, &req, "alert") {
		return
	}
	alert, _, err := h.svc.CreatePlantAlert(r.Context(), plantID, req.Message, req.CreatedBy)
	if err != nil {
		h.fail(w, r, err)
		return
	}
	writeJSON(w, http.StatusCreated, alert)
}

func (h *Handler) handleRespond(w http.ResponseWriter, r *http.Request) {
	alertID, ok := pathID(w, r, "id")
	if !ok {
		return
	}
	var req responseRequest
	if !h.decodeOrFail(w, r, &req, "response") {
		return
	}
	alert, _, err := h.svc.Respond(r.Context(), alertID, req.Responder, req.Message)
	if err != nil {
		h.fail(w, r, err)
		return
	}
	writeJSON(w, http.StatusCreated, alert)
}

func (h *Handler) handleResolve(w http.ResponseWriter, r *http.Request) {
	alertID, ok := pathID(w, r, "id")
	if !ok {
		return
	}
	var req resolveRequest
	if !h.decodeOrFail(w, r, &req, "resolve") {
		return
	}
	resolved := true
	if req.Resolved != nil {
		resolved = *req.Resolved
	}
	alert, _, err := h.svc.Resolve(r.Context(), alertID, resolved, req.ResolvedBy)
	if err != nil {
		h.fail(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, alert)
}

func (h *Handler) handleDeleteAlert(w http.ResponseWriter, r *http.Request) {
	alertID, ok := pathID(w, r, "id")
	if !ok {
		return
	}
	var req deleteAlertRequest
	if !h.decodeOrFail(w, r, &req, "delete") {
		return
	}
	if req.DeletedBy == "" {
		req.DeletedBy = r.URL.Query().Get("deleted_by")
	}
	if _, _, err := h.svc.DeleteAlert(r.Context(), alertID, req.DeletedBy); err != nil {
		h.fail(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"success": true, "message": "Alert deleted successfully"})
}

func (h *Handler) handleListMessages(w http.ResponseWriter, r *http.Request) {
	messages, err := h.svc.ListMessages(r.Context(), r.URL.Query().Get("user"))
	if err != nil {
		h.fail(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, nonNil(messages))
}

func (h *Handler) handleSendMessage(w http.ResponseWriter, r *http.Request) {
	var req messageRequest
	if !h.decodeOrFail(w, r, &req, "message") {
		return
	}
	msg, _, err := h.svc.SendMessage(r.Context(), req.Sender, req.Body)
	if err != nil {
		h.fail(w, r, err)
		return
	}
	writeJSON(w, http.StatusCreated, msg)
}
