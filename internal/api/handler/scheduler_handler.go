package handler

import (
	"net/http"
	"strconv"
	"time"

	"github.com/go-chi/chi/v5"
	"go.uber.org/zap"

	"github.com/promohub/channel-dispatch/internal/domain"
	"github.com/promohub/channel-dispatch/internal/scheduler"
	"github.com/promohub/channel-dispatch/internal/service"
)

// SchedulerHandler exposes the dispatch control surface: queue status,
// pacing rules, manual runs, execution history and error recovery.
type SchedulerHandler struct {
	svc    *service.PromotionService
	sched  *scheduler.Scheduler
	logger *zap.Logger
}

func NewSchedulerHandler(svc *service.PromotionService, sched *scheduler.Scheduler, logger *zap.Logger) *SchedulerHandler {
	return &SchedulerHandler{svc: svc, sched: sched, logger: logger}
}

type ruleView struct {
	IntervalSeconds int  `json:"interval_seconds"`
	DailyCap        int  `json:"daily_cap"`
	Enabled         bool `json:"enabled"`
}

// Status handles GET /api/v1/scheduler/status
//
// @Summary  Per-channel queue depth, send history and pacing state
// @Tags     scheduler
// @Produce  json
// @Success  200  {object}  map[string]domain.ChannelQueueStatus
// @Router   /api/v1/scheduler/status [get]
func (h *SchedulerHandler) Status(w http.ResponseWriter, r *http.Request) {
	status, err := h.svc.QueueStatus(r.Context())
	if err != nil {
		h.logger.Error("queue status failed", zap.Error(err))
		respondError(w, http.StatusInternalServerError, "failed to assemble queue status")
		return
	}
	respondJSON(w, http.StatusOK, status)
}

// Rules handles GET /api/v1/scheduler/rules
//
// @Summary  Active pacing rules per channel
// @Tags     scheduler
// @Produce  json
// @Success  200  {object}  map[string]ruleView
// @Router   /api/v1/scheduler/rules [get]
func (h *SchedulerHandler) Rules(w http.ResponseWriter, r *http.Request) {
	out := make(map[domain.Channel]ruleView)
	for ch, rule := range h.svc.Rules() {
		out[ch] = ruleView{
			IntervalSeconds: int(rule.MinInterval.Seconds()),
			DailyCap:        rule.DailyCap,
			Enabled:         rule.Enabled,
		}
	}
	respondJSON(w, http.StatusOK, out)
}

// Run handles POST /api/v1/scheduler/run
//
// @Summary  Force one dispatch tick across all channels
// @Tags     scheduler
// @Produce  json
// @Success  200  {object}  map[string]string  "Per-channel outcome"
// @Router   /api/v1/scheduler/run [post]
func (h *SchedulerHandler) Run(w http.ResponseWriter, r *http.Request) {
	results := h.sched.Tick(r.Context())
	respondJSON(w, http.StatusOK, results)
}

// RunChannel handles POST /api/v1/scheduler/run/{channel}
//
// @Summary  Force one dispatch attempt on a single channel
// @Tags     scheduler
// @Produce  json
// @Param    channel  path      string  true  "Channel name"
// @Success  200      {object}  map[string]string
// @Failure  422      {object}  map[string]string
// @Router   /api/v1/scheduler/run/{channel} [post]
func (h *SchedulerHandler) RunChannel(w http.ResponseWriter, r *http.Request) {
	ch := domain.Channel(chi.URLParam(r, "channel"))
	if !ch.IsValid() {
		mapError(w, domain.ErrInvalidChannel)
		return
	}
	outcome := h.sched.RunChannel(r.Context(), ch)
	respondJSON(w, http.StatusOK, map[string]any{
		"channel": ch,
		"outcome": outcome,
	})
}

// Executions handles GET /api/v1/scheduler/executions
//
// @Summary  Sent deliveries in a time window, newest first
// @Tags     scheduler
// @Produce  json
// @Param    date  query     string  false  "Whole day (YYYY-MM-DD, default today)"
// @Param    from  query     string  false  "Window start (RFC3339, overrides date)"
// @Param    to    query     string  false  "Window end (RFC3339, overrides date)"
// @Success  200   {array}   domain.DeliveryRecord
// @Router   /api/v1/scheduler/executions [get]
func (h *SchedulerHandler) Executions(w http.ResponseWriter, r *http.Request) {
	now := time.Now().UTC()
	from := time.Date(now.Year(), now.Month(), now.Day(), 0, 0, 0, 0, time.UTC)
	to := now

	q := r.URL.Query()
	if d := q.Get("date"); d != "" {
		day, err := time.Parse("2006-01-02", d)
		if err != nil {
			respondError(w, http.StatusBadRequest, "invalid date, expected YYYY-MM-DD")
			return
		}
		from, to = day, day.Add(24*time.Hour)
	}
	if f := q.Get("from"); f != "" {
		t, err := time.Parse(time.RFC3339, f)
		if err != nil {
			respondError(w, http.StatusBadRequest, "invalid from, expected RFC3339")
			return
		}
		from = t
	}
	if s := q.Get("to"); s != "" {
		t, err := time.Parse(time.RFC3339, s)
		if err != nil {
			respondError(w, http.StatusBadRequest, "invalid to, expected RFC3339")
			return
		}
		to = t
	}

	records, err := h.svc.ListExecutions(r.Context(), from, to)
	if err != nil {
		respondError(w, http.StatusInternalServerError, "failed to list executions")
		return
	}
	respondJSON(w, http.StatusOK, records)
}

// Errors handles GET /api/v1/scheduler/errors
//
// @Summary  Deliveries stuck in error, newest first
// @Tags     scheduler
// @Produce  json
// @Param    limit  query     int  false  "Max items (default 50, max 500)"
// @Success  200    {array}   domain.DeliveryRecord
// @Router   /api/v1/scheduler/errors [get]
func (h *SchedulerHandler) Errors(w http.ResponseWriter, r *http.Request) {
	limit := 0
	if l, err := strconv.Atoi(r.URL.Query().Get("limit")); err == nil {
		limit = l
	}
	records, err := h.svc.ListErrors(r.Context(), limit)
	if err != nil {
		respondError(w, http.StatusInternalServerError, "failed to list errors")
		return
	}
	respondJSON(w, http.StatusOK, records)
}

// Retry handles POST /api/v1/scheduler/errors/{deliveryID}/retry
//
// @Summary  Reset an errored delivery for another round of attempts
// @Tags     scheduler
// @Produce  json
// @Param    deliveryID  path      string  true  "Delivery UUID"
// @Success  200         {object}  domain.Delivery
// @Failure  404         {object}  map[string]string
// @Failure  409         {object}  map[string]string  "Delivery not in error"
// @Router   /api/v1/scheduler/errors/{deliveryID}/retry [post]
func (h *SchedulerHandler) Retry(w http.ResponseWriter, r *http.Request) {
	d, err := h.svc.ManualRetry(r.Context(), chi.URLParam(r, "deliveryID"))
	if err != nil {
		mapError(w, err)
		return
	}
	respondJSON(w, http.StatusOK, d)
}
