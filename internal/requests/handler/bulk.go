package handler

import (
	"context"
	"encoding/json"
	"net/http"

	"roombook/internal/bulk"
	"roombook/internal/requests/service"
	apperrors "roombook/pkg/errors"
	httputil "roombook/pkg/http"
	"roombook/pkg/logger"
	"roombook/pkg/model"

	"github.com/julienschmidt/httprouter"
)

// maxBulkBatch caps one bulk call. Larger batches should be split client-side.
const maxBulkBatch = 200

type BulkHandler struct {
	engine      *service.Engine
	concurrency int
	log         *logger.Logger
}

func NewBulkHandler(engine *service.Engine, concurrency int, log *logger.Logger) *BulkHandler {
	return &BulkHandler{
		engine:      engine,
		concurrency: concurrency,
		log:         log,
	}
}

type bulkRequest struct {
	IDs           []string `json:"ids"`
	AdminFeedback string   `json:"admin_feedback"`
	Reason        string   `json:"reason"`
	ActorID       string   `json:"actor_id"`
}

// bulkEntry i corresponds to ids[i] regardless of completion order.
type bulkEntry struct {
	ID      string                `json:"id"`
	Status  bulk.ResultStatus     `json:"status"`
	Request *model.BookingRequest `json:"request,omitempty"`
	Error   string                `json:"error,omitempty"`
	Code    string                `json:"code,omitempty"`
}

type bulkResponse struct {
	Results   []bulkEntry `json:"results"`
	Fulfilled int         `json:"fulfilled"`
	Rejected  int         `json:"rejected"`
	Skipped   int         `json:"skipped"`
}

func (h *BulkHandler) Approve(w http.ResponseWriter, r *http.Request, _ httprouter.Params) {
	h.runBatch(w, r, "BulkApprove", func(body bulkRequest, id string) bulk.Task {
		return func(ctx context.Context) (any, error) {
			return h.engine.Approve(ctx, id, body.AdminFeedback, body.ActorID)
		}
	})
}

func (h *BulkHandler) Reject(w http.ResponseWriter, r *http.Request, _ httprouter.Params) {
	h.runBatch(w, r, "BulkReject", func(body bulkRequest, id string) bulk.Task {
		return func(ctx context.Context) (any, error) {
			return h.engine.Reject(ctx, id, body.AdminFeedback, body.ActorID)
		}
	})
}

func (h *BulkHandler) Cancel(w http.ResponseWriter, r *http.Request, _ httprouter.Params) {
	h.runBatch(w, r, "BulkCancel", func(body bulkRequest, id string) bulk.Task {
		return func(ctx context.Context) (any, error) {
			return h.engine.CancelApproved(ctx, id, body.Reason, body.ActorID)
		}
	})
}

func (h *BulkHandler) runBatch(
	w http.ResponseWriter,
	r *http.Request,
	name string,
	makeTask func(body bulkRequest, id string) bulk.Task,
) {
	var body bulkRequest
	if err := json.NewDecoder(r.Body).Decode(&body); err != nil {
		if writeErr := httputil.WriteJSON(w, http.StatusBadRequest, httputil.ErrorResponse{
			Error: "Invalid request body",
		}); writeErr != nil {
			h.log.Error("failed to write JSON response", "handler", name, "operation", "WriteJSON", "error", writeErr)
		}
		return
	}

	if len(body.IDs) == 0 {
		h.writeErr(w, name, apperrors.InvalidInput("ids cannot be empty"))
		return
	}
	if len(body.IDs) > maxBulkBatch {
		h.writeErr(w, name, apperrors.InvalidInput("too many ids in one batch"))
		return
	}
	if body.ActorID == "" {
		body.ActorID = r.Header.Get("X-Actor-ID")
	}

	tasks := make([]bulk.Task, len(body.IDs))
	for i, id := range body.IDs {
		tasks[i] = makeTask(body, id)
	}

	runner := bulk.NewRunner(h.concurrency, bulk.WithProgress(func(processed, total int) {
		h.log.Debug("Bulk batch progress", "operation", name, "processed", processed, "total", total)
	}))

	results := runner.Run(r.Context(), tasks)
	fulfilled, rejected, skipped := bulk.Counts(results)

	entries := make([]bulkEntry, len(results))
	for i, res := range results {
		entry := bulkEntry{
			ID:     body.IDs[i],
			Status: res.Status,
		}
		if req, ok := res.Value.(*model.BookingRequest); ok {
			entry.Request = req
		}
		if res.Err != nil {
			appErr := apperrors.AsAppError(res.Err)
			entry.Error = appErr.Message
			entry.Code = appErr.Code
		}
		entries[i] = entry
	}

	h.log.Info("Bulk batch settled",
		"operation", name,
		"total", len(results),
		"fulfilled", fulfilled,
		"rejected", rejected,
		"skipped", skipped,
		"actor_id", body.ActorID,
	)

	if err := httputil.WriteJSON(w, http.StatusMultiStatus, bulkResponse{
		Results:   entries,
		Fulfilled: fulfilled,
		Rejected:  rejected,
		Skipped:   skipped,
	}); err != nil {
		h.log.Error("failed to write JSON response", "handler", name, "operation", "WriteJSON", "error", err)
	}
}

func (h *BulkHandler) writeErr(w http.ResponseWriter, name string, err error) {
	if writeErr := httputil.WriteError(w, err); writeErr != nil {
		h.log.Error("failed to write error response", "handler", name, "operation", "WriteError", "error", writeErr)
	}
}

func (h *BulkHandler) RegisterRoutes(router *httprouter.Router) {
	router.POST("/api/v1/requests/bulk/approve", h.Approve)
	router.POST("/api/v1/requests/bulk/reject", h.Reject)
	router.POST("/api/v1/requests/bulk/cancel", h.Cancel)
}
