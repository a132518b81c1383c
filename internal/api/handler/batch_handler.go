package handler

import (
	"encoding/json"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"go.uber.org/zap"

	"github.com/promohub/channel-dispatch/internal/batchgen"
	"github.com/promohub/channel-dispatch/internal/service"
)

// BatchHandler handles batch listing, generation and lifecycle endpoints.
type BatchHandler struct {
	svc    *service.PromotionService
	gen    *batchgen.Generator
	logger *zap.Logger
}

func NewBatchHandler(svc *service.PromotionService, gen *batchgen.Generator, logger *zap.Logger) *BatchHandler {
	return &BatchHandler{svc: svc, gen: gen, logger: logger}
}

// List handles GET /api/v1/batches
//
// @Summary  List a day's batches in slot order
// @Tags     batches
// @Produce  json
// @Param    date  query     string  false  "Date (YYYY-MM-DD, default today)"
// @Success  200   {array}   domain.Batch
// @Router   /api/v1/batches [get]
func (h *BatchHandler) List(w http.ResponseWriter, r *http.Request) {
	date, ok := parseDate(r.URL.Query().Get("date"))
	if !ok {
		respondError(w, http.StatusBadRequest, "invalid date, expected YYYY-MM-DD")
		return
	}

	batches, err := h.svc.ListBatches(r.Context(), date)
	if err != nil {
		respondError(w, http.StatusInternalServerError, "failed to list batches")
		return
	}
	respondJSON(w, http.StatusOK, batches)
}

// Generate handles POST /api/v1/batches/generate
//
// @Summary  Create the day's batches, one per configured slot
// @Tags     batches
// @Accept   json
// @Produce  json
// @Param    date  query     string             false  "Date (YYYY-MM-DD, default today)"
// @Param    body  body      map[string]string  false  "{date} alternative to the query param"
// @Success  200   {array}   domain.Batch
// @Router   /api/v1/batches/generate [post]
func (h *BatchHandler) Generate(w http.ResponseWriter, r *http.Request) {
	var body struct {
		Date string `json:"date"`
	}
	_ = json.NewDecoder(r.Body).Decode(&body)
	if d := r.URL.Query().Get("date"); d != "" {
		body.Date = d
	}

	date, ok := parseDate(body.Date)
	if !ok {
		respondError(w, http.StatusBadRequest, "invalid date, expected YYYY-MM-DD")
		return
	}

	batches, err := h.gen.GenerateForDate(r.Context(), date)
	if err != nil {
		h.logger.Error("batch generation failed", zap.Error(err))
		respondError(w, http.StatusInternalServerError, "failed to generate batches")
		return
	}
	respondJSON(w, http.StatusOK, batches)
}

// GetByID handles GET /api/v1/batches/{id}
//
// @Summary  Get a batch with its counters
// @Tags     batches
// @Produce  json
// @Param    id   path      string  true  "Batch UUID"
// @Success  200  {object}  domain.Batch
// @Failure  404  {object}  map[string]string
// @Router   /api/v1/batches/{id} [get]
func (h *BatchHandler) GetByID(w http.ResponseWriter, r *http.Request) {
	b, err := h.svc.GetBatch(r.Context(), chi.URLParam(r, "id"))
	if err != nil {
		mapError(w, err)
		return
	}
	respondJSON(w, http.StatusOK, b)
}

// Lock handles POST /api/v1/batches/{id}/lock
//
// @Summary  Lock a pending batch for review
// @Tags     batches
// @Produce  json
// @Param    id   path      string  true  "Batch UUID"
// @Success  200  {object}  domain.Batch
// @Failure  404  {object}  map[string]string
// @Failure  409  {object}  map[string]string  "Batch not pending"
// @Router   /api/v1/batches/{id}/lock [post]
func (h *BatchHandler) Lock(w http.ResponseWriter, r *http.Request) {
	b, err := h.svc.LockBatch(r.Context(), chi.URLParam(r, "id"))
	if err != nil {
		mapError(w, err)
		return
	}
	respondJSON(w, http.StatusOK, b)
}

// Close handles POST /api/v1/batches/{id}/close
//
// @Summary  Close a batch
// @Tags     batches
// @Produce  json
// @Param    id   path      string  true  "Batch UUID"
// @Success  200  {object}  domain.Batch
// @Failure  404  {object}  map[string]string
// @Failure  409  {object}  map[string]string  "Batch already closed"
// @Router   /api/v1/batches/{id}/close [post]
func (h *BatchHandler) Close(w http.ResponseWriter, r *http.Request) {
	b, err := h.svc.CloseBatch(r.Context(), chi.URLParam(r, "id"))
	if err != nil {
		mapError(w, err)
		return
	}
	respondJSON(w, http.StatusOK, b)
}

// DispatchApproved handles POST /api/v1/batches/{id}/dispatch-approved
//
// @Summary  Dispatch every approved draft in the batch
// @Tags     batches
// @Produce  json
// @Param    id   path      string  true  "Batch UUID"
// @Success  200  {object}  map[string]int
// @Failure  404  {object}  map[string]string
// @Router   /api/v1/batches/{id}/dispatch-approved [post]
func (h *BatchHandler) DispatchApproved(w http.ResponseWriter, r *http.Request) {
	dispatched, err := h.svc.DispatchApproved(r.Context(), chi.URLParam(r, "id"))
	if err != nil {
		mapError(w, err)
		return
	}
	respondJSON(w, http.StatusOK, map[string]int{"dispatched": dispatched})
}

func parseDate(s string) (time.Time, bool) {
	if s == "" {
		now := time.Now().UTC()
		return time.Date(now.Year(), now.Month(), now.Day(), 0, 0, 0, 0, time.UTC), true
	}
	t, err := time.Parse("2006-01-02", s)
	if err != nil {
		return time.Time{}, false
	}
	return t, true
}
