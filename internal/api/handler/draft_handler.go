package handler

import (
	"encoding/json"
	"net/http"
	"strconv"

	"github.com/go-chi/chi/v5"
	"go.uber.org/zap"

	apimw "github.com/promohub/channel-dispatch/internal/api/middleware"
	"github.com/promohub/channel-dispatch/internal/domain"
	"github.com/promohub/channel-dispatch/internal/service"
)

// DraftHandler handles draft CRUD and lifecycle endpoints.
type DraftHandler struct {
	svc    *service.PromotionService
	logger *zap.Logger
}

func NewDraftHandler(svc *service.PromotionService, logger *zap.Logger) *DraftHandler {
	return &DraftHandler{svc: svc, logger: logger}
}

// Create handles POST /api/v1/drafts
//
// @Summary  Create a draft in an open batch
// @Tags     drafts
// @Accept   json
// @Produce  json
// @Param    body  body      domain.CreateDraftRequest  true  "Draft payload"
// @Success  201   {object}  domain.Draft
// @Failure  409   {object}  map[string]string  "Batch locked or closed"
// @Failure  422   {object}  map[string]string
// @Router   /api/v1/drafts [post]
func (h *DraftHandler) Create(w http.ResponseWriter, r *http.Request) {
	var req domain.CreateDraftRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		respondError(w, http.StatusBadRequest, "invalid JSON body")
		return
	}

	d, err := h.svc.CreateDraft(r.Context(), req)
	if err != nil {
		h.logger.Warn("create draft failed",
			zap.String("correlation_id", apimw.GetCorrelationID(r.Context())),
			zap.Error(err),
		)
		mapError(w, err)
		return
	}
	respondJSON(w, http.StatusCreated, d)
}

// GetByID handles GET /api/v1/drafts/{id}
//
// @Summary  Get a draft by ID
// @Tags     drafts
// @Produce  json
// @Param    id   path      string  true  "Draft UUID"
// @Success  200  {object}  domain.Draft
// @Failure  404  {object}  map[string]string
// @Router   /api/v1/drafts/{id} [get]
func (h *DraftHandler) GetByID(w http.ResponseWriter, r *http.Request) {
	d, err := h.svc.GetDraft(r.Context(), chi.URLParam(r, "id"))
	if err != nil {
		mapError(w, err)
		return
	}
	respondJSON(w, http.StatusOK, d)
}

// List handles GET /api/v1/drafts
//
// @Summary  List drafts with filtering and pagination
// @Tags     drafts
// @Produce  json
// @Param    batch_id  query     string  false  "Filter by batch"
// @Param    status    query     string  false  "Filter by status"
// @Param    priority  query     string  false  "Filter by priority"
// @Param    channel   query     string  false  "Filter by target channel"
// @Param    page      query     int     false  "Page number (default 1)"
// @Param    limit     query     int     false  "Items per page (default 20, max 100)"
// @Success  200       {object}  map[string]any
// @Router   /api/v1/drafts [get]
func (h *DraftHandler) List(w http.ResponseWriter, r *http.Request) {
	filter := parseDraftFilter(r)
	drafts, total, err := h.svc.ListDrafts(r.Context(), filter)
	if err != nil {
		respondError(w, http.StatusInternalServerError, "failed to list drafts")
		return
	}

	respondJSON(w, http.StatusOK, map[string]any{
		"data":  drafts,
		"total": total,
		"page":  filter.Page,
		"limit": filter.Limit,
	})
}

// GetDeliveries handles GET /api/v1/drafts/{id}/deliveries
//
// @Summary  List a draft's deliveries
// @Tags     drafts
// @Produce  json
// @Param    id   path      string  true  "Draft UUID"
// @Success  200  {array}   domain.Delivery
// @Failure  404  {object}  map[string]string
// @Router   /api/v1/drafts/{id}/deliveries [get]
func (h *DraftHandler) GetDeliveries(w http.ResponseWriter, r *http.Request) {
	dels, err := h.svc.GetDraftDeliveries(r.Context(), chi.URLParam(r, "id"))
	if err != nil {
		mapError(w, err)
		return
	}
	respondJSON(w, http.StatusOK, dels)
}

// Approve handles POST /api/v1/drafts/{id}/approve
//
// @Summary  Approve a pending draft
// @Tags     drafts
// @Accept   json
// @Produce  json
// @Param    id    path      string             true   "Draft UUID"
// @Param    body  body      map[string]string  false  "{approved_by}"
// @Success  200   {object}  domain.Draft
// @Failure  404   {object}  map[string]string
// @Failure  409   {object}  map[string]string  "Draft not pending"
// @Router   /api/v1/drafts/{id}/approve [post]
func (h *DraftHandler) Approve(w http.ResponseWriter, r *http.Request) {
	var body struct {
		ApprovedBy string `json:"approved_by"`
	}
	_ = json.NewDecoder(r.Body).Decode(&body)
	if body.ApprovedBy == "" {
		body.ApprovedBy = "operator"
	}

	d, err := h.svc.Approve(r.Context(), chi.URLParam(r, "id"), body.ApprovedBy)
	if err != nil {
		mapError(w, err)
		return
	}
	respondJSON(w, http.StatusOK, d)
}

// Reject handles POST /api/v1/drafts/{id}/reject
//
// @Summary  Reject a pending draft
// @Tags     drafts
// @Produce  json
// @Param    id   path      string  true  "Draft UUID"
// @Success  200  {object}  domain.Draft
// @Failure  404  {object}  map[string]string
// @Failure  409  {object}  map[string]string  "Draft not pending"
// @Router   /api/v1/drafts/{id}/reject [post]
func (h *DraftHandler) Reject(w http.ResponseWriter, r *http.Request) {
	d, err := h.svc.Reject(r.Context(), chi.URLParam(r, "id"))
	if err != nil {
		mapError(w, err)
		return
	}
	respondJSON(w, http.StatusOK, d)
}

// MarkError handles POST /api/v1/drafts/{id}/error
//
// @Summary  Flag a draft as errored
// @Tags     drafts
// @Accept   json
// @Produce  json
// @Param    id    path      string             true   "Draft UUID"
// @Param    body  body      map[string]string  false  "{message}"
// @Success  200   {object}  domain.Draft
// @Failure  404   {object}  map[string]string
// @Failure  409   {object}  map[string]string  "Draft already terminal"
// @Router   /api/v1/drafts/{id}/error [post]
func (h *DraftHandler) MarkError(w http.ResponseWriter, r *http.Request) {
	var body struct {
		Message string `json:"message"`
	}
	_ = json.NewDecoder(r.Body).Decode(&body)

	d, err := h.svc.MarkError(r.Context(), chi.URLParam(r, "id"), body.Message)
	if err != nil {
		mapError(w, err)
		return
	}
	respondJSON(w, http.StatusOK, d)
}

// Dispatch handles POST /api/v1/drafts/{id}/dispatch
//
// @Summary  Dispatch an approved draft to its channels
// @Tags     drafts
// @Produce  json
// @Param    id   path      string  true  "Draft UUID"
// @Success  200  {object}  map[string]any
// @Failure  404  {object}  map[string]string
// @Failure  409  {object}  map[string]string  "Draft not approved"
// @Router   /api/v1/drafts/{id}/dispatch [post]
func (h *DraftHandler) Dispatch(w http.ResponseWriter, r *http.Request) {
	d, dels, err := h.svc.Dispatch(r.Context(), chi.URLParam(r, "id"))
	if err != nil {
		mapError(w, err)
		return
	}
	respondJSON(w, http.StatusOK, map[string]any{
		"draft":      d,
		"deliveries": dels,
	})
}

func parseDraftFilter(r *http.Request) domain.DraftFilter {
	q := r.URL.Query()
	filter := domain.DraftFilter{Page: 1, Limit: 20}

	if p, err := strconv.Atoi(q.Get("page")); err == nil && p > 0 {
		filter.Page = p
	}
	if l, err := strconv.Atoi(q.Get("limit")); err == nil && l > 0 && l <= 100 {
		filter.Limit = l
	}
	if b := q.Get("batch_id"); b != "" {
		filter.BatchID = &b
	}
	if s := q.Get("status"); s != "" {
		st := domain.DraftStatus(s)
		filter.Status = &st
	}
	if p := q.Get("priority"); p != "" {
		pr := domain.Priority(p)
		filter.Priority = &pr
	}
	if c := q.Get("channel"); c != "" {
		ch := domain.Channel(c)
		filter.Channel = &ch
	}
	return filter
}
