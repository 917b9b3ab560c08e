package notify

import (
	"encoding/json"
	"net/http"

	httputil "roombook/pkg/http"
	"roombook/pkg/logger"

	"github.com/julienschmidt/httprouter"
)

type NotificationHandler struct {
	service *Service
	log     *logger.Logger
}

func NewNotificationHandler(service *Service, log *logger.Logger) *NotificationHandler {
	return &NotificationHandler{
		service: service,
		log:     log,
	}
}

type acknowledgeRequest struct {
	UserID string `json:"user_id"`
}

func (h *NotificationHandler) List(w http.ResponseWriter, r *http.Request, _ httprouter.Params) {
	query := r.URL.Query()
	userID := query.Get("user_id")
	unacknowledgedOnly := query.Get("unacknowledged_only") == "true"

	limit, offset, err := httputil.ExtractLimitOffset(r)
	if err != nil {
		if writeErr := httputil.WriteError(w, err); writeErr != nil {
			h.log.Error("failed to write error response", "handler", "List", "operation", "WriteError", "error", writeErr)
		}
		return
	}

	notifications, total, err := h.service.ListByUser(r.Context(), userID, unacknowledgedOnly, limit, offset)
	if err != nil {
		if writeErr := httputil.WriteError(w, err); writeErr != nil {
			h.log.Error("failed to write error response", "handler", "List", "operation", "WriteError", "error", writeErr)
		}
		return
	}

	if err := httputil.WritePaginated(w, notifications, total, limit, offset); err != nil {
		h.log.Error("failed to write paginated response", "handler", "List", "operation", "WritePaginated", "error", err)
	}
}

func (h *NotificationHandler) Acknowledge(w http.ResponseWriter, r *http.Request, ps httprouter.Params) {
	id := ps.ByName("id")

	var body acknowledgeRequest
	if err := json.NewDecoder(r.Body).Decode(&body); err != nil {
		if writeErr := httputil.WriteJSON(w, http.StatusBadRequest, httputil.ErrorResponse{
			Error: "Invalid request body",
		}); writeErr != nil {
			h.log.Error("failed to write JSON response", "handler", "Acknowledge", "operation", "WriteJSON", "error", writeErr)
		}
		return
	}

	notification, err := h.service.Acknowledge(r.Context(), id, body.UserID)
	if err != nil {
		if writeErr := httputil.WriteError(w, err); writeErr != nil {
			h.log.Error("failed to write error response", "handler", "Acknowledge", "operation", "WriteError", "error", writeErr)
		}
		return
	}

	if err := httputil.WriteSuccess(w, notification); err != nil {
		h.log.Error("failed to write success response", "handler", "Acknowledge", "operation", "WriteSuccess", "error", err)
	}
}

// AcknowledgeByToken backs the one-click acknowledge link carried in
// delivered notifications.
func (h *NotificationHandler) AcknowledgeByToken(w http.ResponseWriter, r *http.Request, _ httprouter.Params) {
	token := r.URL.Query().Get("token")

	notification, err := h.service.AcknowledgeByToken(r.Context(), token)
	if err != nil {
		if writeErr := httputil.WriteError(w, err); writeErr != nil {
			h.log.Error("failed to write error response", "handler", "AcknowledgeByToken", "operation", "WriteError", "error", writeErr)
		}
		return
	}

	if err := httputil.WriteSuccess(w, notification); err != nil {
		h.log.Error("failed to write success response", "handler", "AcknowledgeByToken", "operation", "WriteSuccess", "error", err)
	}
}

func (h *NotificationHandler) AcknowledgeAll(w http.ResponseWriter, r *http.Request, _ httprouter.Params) {
	var body acknowledgeRequest
	if err := json.NewDecoder(r.Body).Decode(&body); err != nil {
		if writeErr := httputil.WriteJSON(w, http.StatusBadRequest, httputil.ErrorResponse{
			Error: "Invalid request body",
		}); writeErr != nil {
			h.log.Error("failed to write JSON response", "handler", "AcknowledgeAll", "operation", "WriteJSON", "error", writeErr)
		}
		return
	}

	count, err := h.service.AcknowledgeAll(r.Context(), body.UserID)
	if err != nil {
		if writeErr := httputil.WriteError(w, err); writeErr != nil {
			h.log.Error("failed to write error response", "handler", "AcknowledgeAll", "operation", "WriteError", "error", writeErr)
		}
		return
	}

	if err := httputil.WriteSuccess(w, map[string]int64{"acknowledged": count}); err != nil {
		h.log.Error("failed to write success response", "handler", "AcknowledgeAll", "operation", "WriteSuccess", "error", err)
	}
}

func (h *NotificationHandler) RegisterRoutes(router *httprouter.Router) {
	router.GET("/api/v1/notifications", h.List)
	router.PATCH("/api/v1/notifications/id/:id/ack", h.Acknowledge)
	router.PATCH("/api/v1/notifications/ack", h.AcknowledgeByToken)
	router.PATCH("/api/v1/notifications/ack-all", h.AcknowledgeAll)
}
