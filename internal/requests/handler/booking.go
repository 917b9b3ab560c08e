package handler

import (
	"encoding/json"
	"net/http"

	"roombook/internal/conflict"
	"roombook/internal/requests/service"
	httputil "roombook/pkg/http"
	"roombook/pkg/logger"
	"roombook/pkg/model"

	"github.com/julienschmidt/httprouter"
)

type BookingHandler struct {
	engine *service.Engine
	log    *logger.Logger
}

func NewBookingHandler(engine *service.Engine, log *logger.Logger) *BookingHandler {
	return &BookingHandler{
		engine: engine,
		log:    log,
	}
}

// decisionRequest is the body of approve/reject/cancel calls. ActorID falls
// back to the X-Actor-ID header when absent from the body.
type decisionRequest struct {
	AdminFeedback string `json:"admin_feedback"`
	Reason        string `json:"reason"`
	ActorID       string `json:"actor_id"`
}

func (d *decisionRequest) actor(r *http.Request) string {
	if d.ActorID != "" {
		return d.ActorID
	}
	return r.Header.Get("X-Actor-ID")
}

func (h *BookingHandler) Submit(w http.ResponseWriter, r *http.Request, _ httprouter.Params) {
	var draft model.BookingDraft
	if err := json.NewDecoder(r.Body).Decode(&draft); err != nil {
		if writeErr := httputil.WriteJSON(w, http.StatusBadRequest, httputil.ErrorResponse{
			Error: "Invalid request body",
		}); writeErr != nil {
			h.log.Error("failed to write JSON response", "handler", "Submit", "operation", "WriteJSON", "error", writeErr)
		}
		return
	}

	req, err := h.engine.Submit(r.Context(), &draft)
	if err != nil {
		if writeErr := httputil.WriteError(w, err); writeErr != nil {
			h.log.Error("failed to write error response", "handler", "Submit", "operation", "WriteError", "error", writeErr)
		}
		return
	}

	if err := httputil.WriteCreated(w, req); err != nil {
		h.log.Error("failed to write created response", "handler", "Submit", "operation", "WriteCreated", "error", err)
	}
}

func (h *BookingHandler) GetByID(w http.ResponseWriter, r *http.Request, ps httprouter.Params) {
	id := ps.ByName("id")

	req, err := h.engine.GetByID(r.Context(), id)
	if err != nil {
		if writeErr := httputil.WriteError(w, err); writeErr != nil {
			h.log.Error("failed to write error response", "handler", "GetByID", "operation", "WriteError", "error", writeErr)
		}
		return
	}

	if err := httputil.WriteSuccess(w, req); err != nil {
		h.log.Error("failed to write success response", "handler", "GetByID", "operation", "WriteSuccess", "error", err)
	}
}

func (h *BookingHandler) ListByFaculty(w http.ResponseWriter, r *http.Request, _ httprouter.Params) {
	facultyID := r.URL.Query().Get("faculty_id")

	limit, offset, err := httputil.ExtractLimitOffset(r)
	if err != nil {
		if writeErr := httputil.WriteError(w, err); writeErr != nil {
			h.log.Error("failed to write error response", "handler", "ListByFaculty", "operation", "WriteError", "error", writeErr)
		}
		return
	}

	requests, total, err := h.engine.ListByFaculty(r.Context(), facultyID, limit, offset)
	if err != nil {
		if writeErr := httputil.WriteError(w, err); writeErr != nil {
			h.log.Error("failed to write error response", "handler", "ListByFaculty", "operation", "WriteError", "error", writeErr)
		}
		return
	}

	if err := httputil.WritePaginated(w, requests, total, limit, offset); err != nil {
		h.log.Error("failed to write paginated response", "handler", "ListByFaculty", "operation", "WritePaginated", "error", err)
	}
}

// Availability returns the active (pending or approved) requests for a
// classroom on a date. Offline clients feed this list into their local
// conflict checker.
func (h *BookingHandler) Availability(w http.ResponseWriter, r *http.Request, _ httprouter.Params) {
	query := r.URL.Query()
	classroomID := query.Get("classroom_id")
	date := query.Get("date")

	requests, err := h.engine.ListByClassroomAndDate(r.Context(), classroomID, date, []model.RequestStatus{
		model.StatusPending,
		model.StatusApproved,
	})
	if err != nil {
		if writeErr := httputil.WriteError(w, err); writeErr != nil {
			h.log.Error("failed to write error response", "handler", "Availability", "operation", "WriteError", "error", writeErr)
		}
		return
	}

	if err := httputil.WriteSuccess(w, requests); err != nil {
		h.log.Error("failed to write success response", "handler", "Availability", "operation", "WriteSuccess", "error", err)
	}
}

type availabilityCheckResponse struct {
	Available          bool                  `json:"available"`
	ConflictingRequest *model.BookingRequest `json:"conflicting_request,omitempty"`
}

// Check is the pre-validation path: it runs the same conflict rule as the
// write path and reports the collision without writing anything.
func (h *BookingHandler) Check(w http.ResponseWriter, r *http.Request, _ httprouter.Params) {
	query := r.URL.Query()

	params := conflict.Params{
		ClassroomID:      query.Get("classroom_id"),
		Date:             query.Get("date"),
		StartTime:        query.Get("start_time"),
		EndTime:          query.Get("end_time"),
		ExcludeRequestID: query.Get("exclude_request_id"),
		CheckPastTime:    query.Get("check_past_time") == "true",
	}

	conflicting, existing, err := h.engine.CheckAvailability(r.Context(), params)
	if err != nil {
		if writeErr := httputil.WriteError(w, err); writeErr != nil {
			h.log.Error("failed to write error response", "handler", "Check", "operation", "WriteError", "error", writeErr)
		}
		return
	}

	if err := httputil.WriteSuccess(w, availabilityCheckResponse{
		Available:          !conflicting,
		ConflictingRequest: existing,
	}); err != nil {
		h.log.Error("failed to write success response", "handler", "Check", "operation", "WriteSuccess", "error", err)
	}
}

// Schedule lists a classroom's requests for a date, optionally filtered by
// status, for the day-view UI.
func (h *BookingHandler) Schedule(w http.ResponseWriter, r *http.Request, _ httprouter.Params) {
	query := r.URL.Query()
	classroomID := query.Get("classroom_id")
	date := query.Get("date")

	var statuses []model.RequestStatus
	for _, s := range query["status"] {
		statuses = append(statuses, model.RequestStatus(s))
	}

	requests, err := h.engine.ListByClassroomAndDate(r.Context(), classroomID, date, statuses)
	if err != nil {
		if writeErr := httputil.WriteError(w, err); writeErr != nil {
			h.log.Error("failed to write error response", "handler", "Schedule", "operation", "WriteError", "error", writeErr)
		}
		return
	}

	if err := httputil.WriteSuccess(w, requests); err != nil {
		h.log.Error("failed to write success response", "handler", "Schedule", "operation", "WriteSuccess", "error", err)
	}
}

func (h *BookingHandler) Approve(w http.ResponseWriter, r *http.Request, ps httprouter.Params) {
	h.decide(w, r, ps, "Approve", func(id string, body decisionRequest) (*model.BookingRequest, error) {
		return h.engine.Approve(r.Context(), id, body.AdminFeedback, body.actor(r))
	})
}

func (h *BookingHandler) Reject(w http.ResponseWriter, r *http.Request, ps httprouter.Params) {
	h.decide(w, r, ps, "Reject", func(id string, body decisionRequest) (*model.BookingRequest, error) {
		return h.engine.Reject(r.Context(), id, body.AdminFeedback, body.actor(r))
	})
}

func (h *BookingHandler) Cancel(w http.ResponseWriter, r *http.Request, ps httprouter.Params) {
	h.decide(w, r, ps, "Cancel", func(id string, body decisionRequest) (*model.BookingRequest, error) {
		return h.engine.CancelApproved(r.Context(), id, body.Reason, body.actor(r))
	})
}

func (h *BookingHandler) decide(
	w http.ResponseWriter,
	r *http.Request,
	ps httprouter.Params,
	name string,
	transition func(id string, body decisionRequest) (*model.BookingRequest, error),
) {
	id := ps.ByName("id")

	var body decisionRequest
	if err := json.NewDecoder(r.Body).Decode(&body); err != nil {
		if writeErr := httputil.WriteJSON(w, http.StatusBadRequest, httputil.ErrorResponse{
			Error: "Invalid request body",
		}); writeErr != nil {
			h.log.Error("failed to write JSON response", "handler", name, "operation", "WriteJSON", "error", writeErr)
		}
		return
	}

	updated, err := transition(id, body)
	if err != nil {
		if writeErr := httputil.WriteError(w, err); writeErr != nil {
			h.log.Error("failed to write error response", "handler", name, "operation", "WriteError", "error", writeErr)
		}
		return
	}

	if err := httputil.WriteSuccess(w, updated); err != nil {
		h.log.Error("failed to write success response", "handler", name, "operation", "WriteSuccess", "error", err)
	}
}

func (h *BookingHandler) RegisterRoutes(router *httprouter.Router) {
	router.POST("/api/v1/requests", h.Submit)
	router.GET("/api/v1/requests", h.ListByFaculty)
	router.GET("/api/v1/requests/id/:id", h.GetByID)
	router.GET("/api/v1/requests/availability", h.Availability)
	router.GET("/api/v1/requests/check", h.Check)
	router.GET("/api/v1/requests/schedule", h.Schedule)
	router.PATCH("/api/v1/requests/id/:id/approve", h.Approve)
	router.PATCH("/api/v1/requests/id/:id/reject", h.Reject)
	router.PATCH("/api/v1/requests/id/:id/cancel", h.Cancel)
}
