package kpihttp

import (
	"errors"
	"log/slog"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-playground/validator/v10"
	"github.com/hibiken/asynq"

	"github.com/InnovAI-ERP/Analisis-FARMAGUIRRE/internal/kpi"
	"github.com/InnovAI-ERP/Analisis-FARMAGUIRRE/internal/platform/httpx"
	"github.com/InnovAI-ERP/Analisis-FARMAGUIRRE/internal/shared"
	"github.com/InnovAI-ERP/Analisis-FARMAGUIRRE/jobs"
)

const dateLayout = "2006-01-02"

// Handler wires the run lifecycle endpoints.
type Handler struct {
	logger    *slog.Logger
	service   *kpi.Service
	queue     *jobs.Client
	validator *validator.Validate
	defaults  kpi.Params
}

// NewHandler constructs handler. defaults carries the configured
// thresholds applied when a submission leaves them unset.
func NewHandler(logger *slog.Logger, service *kpi.Service, queue *jobs.Client, defaults kpi.Params) *Handler {
	return &Handler{
		logger:    logger,
		service:   service,
		queue:     queue,
		validator: validator.New(),
		defaults:  defaults,
	}
}

// MountRoutes registers routes.
func (h *Handler) MountRoutes(r chi.Router) {
	r.Post("/runs", h.submitRun)
	r.Get("/runs", h.listRuns)
	r.Get("/runs/{id}", h.showRun)
}

type runRequest struct {
	StartDate             string   `json:"start_date" validate:"required"`
	EndDate               string   `json:"end_date" validate:"required"`
	ServiceLevel          *float64 `json:"service_level" validate:"omitempty,gt=0,lt=1"`
	LeadTimeDays          *int     `json:"lead_time_days" validate:"omitempty,gt=0"`
	ExcessThresholdDays   *float64 `json:"excess_threshold_days" validate:"omitempty,gt=0"`
	ShortageThresholdDays *float64 `json:"shortage_threshold_days" validate:"omitempty,gt=0"`
	XYZLowCV              *float64 `json:"xyz_low_cv" validate:"omitempty,gt=0"`
	XYZHighCV             *float64 `json:"xyz_high_cv" validate:"omitempty,gt=0"`
	RequestedBy           string   `json:"requested_by"`
}

type runResponse struct {
	ID                    int64    `json:"id"`
	Fingerprint           string   `json:"fingerprint"`
	StartDate             string   `json:"start_date"`
	EndDate               string   `json:"end_date"`
	ServiceLevel          float64  `json:"service_level"`
	LeadTimeDays          int      `json:"lead_time_days"`
	ExcessThresholdDays   float64  `json:"excess_threshold_days"`
	ShortageThresholdDays float64  `json:"shortage_threshold_days"`
	XYZLowCV              float64  `json:"xyz_low_cv"`
	XYZHighCV             float64  `json:"xyz_high_cv"`
	Status                string   `json:"status"`
	Error                 string   `json:"error,omitempty"`
	ProductCount          int      `json:"product_count"`
	RequestedBy           string   `json:"requested_by,omitempty"`
	CreatedAt             string   `json:"created_at"`
	StartedAt             *string  `json:"started_at,omitempty"`
	FinishedAt            *string  `json:"finished_at,omitempty"`
}

type paginationResponse struct {
	Page       int `json:"page"`
	PerPage    int `json:"per_page"`
	Total      int `json:"total"`
	TotalPages int `json:"total_pages"`
}

type listRunsResponse struct {
	Runs       []runResponse      `json:"runs"`
	Pagination paginationResponse `json:"pagination"`
}

func (h *Handler) submitRun(w http.ResponseWriter, r *http.Request) {
	var req runRequest
	if err := httpx.DecodeJSON(r, &req); err != nil {
		httpx.Problem(w, http.StatusBadRequest, "Invalid Request", "request body is not valid JSON")
		return
	}
	if err := h.validator.Struct(req); err != nil {
		httpx.Problem(w, http.StatusBadRequest, "Validation Failed", validationDetail(err))
		return
	}

	start, err := time.Parse(dateLayout, strings.TrimSpace(req.StartDate))
	if err != nil {
		httpx.Problem(w, http.StatusBadRequest, "Validation Failed", "start_date must be formatted YYYY-MM-DD")
		return
	}
	end, err := time.Parse(dateLayout, strings.TrimSpace(req.EndDate))
	if err != nil {
		httpx.Problem(w, http.StatusBadRequest, "Validation Failed", "end_date must be formatted YYYY-MM-DD")
		return
	}

	params := h.defaults
	params.StartDate = start
	params.EndDate = end
	if req.ServiceLevel != nil {
		params.ServiceLevel = *req.ServiceLevel
	}
	if req.LeadTimeDays != nil {
		params.LeadTimeDays = *req.LeadTimeDays
	}
	if req.ExcessThresholdDays != nil {
		params.ExcessThresholdDays = *req.ExcessThresholdDays
	}
	if req.ShortageThresholdDays != nil {
		params.ShortageThresholdDays = *req.ShortageThresholdDays
	}
	if req.XYZLowCV != nil {
		params.XYZLowCV = *req.XYZLowCV
	}
	if req.XYZHighCV != nil {
		params.XYZHighCV = *req.XYZHighCV
	}

	if err := params.Validate(); err != nil {
		httpx.Problem(w, http.StatusBadRequest, "Validation Failed", err.Error())
		return
	}

	run, err := h.service.RequestRun(r.Context(), params, strings.TrimSpace(req.RequestedBy))
	if err != nil {
		if errors.Is(err, kpi.ErrRunActive) {
			httpx.Problem(w, http.StatusConflict, "Conflict", "a run for this window is already queued or running")
			return
		}
		if h.logger != nil {
			h.logger.Error("request kpi run", slog.Any("error", err))
		}
		httpx.RespondError(w, err)
		return
	}

	if _, err := h.queue.EnqueueKPIRun(r.Context(), jobs.KPIRunPayload{RunID: run.ID}, run.Fingerprint.String()); err != nil {
		if abandonErr := h.service.AbandonRun(r.Context(), run.ID, "enqueue failed: "+err.Error()); abandonErr != nil && h.logger != nil {
			h.logger.Error("abandon run", slog.Int64("run_id", run.ID), slog.Any("error", abandonErr))
		}
		if errors.Is(err, asynq.ErrTaskIDConflict) {
			httpx.Problem(w, http.StatusConflict, "Conflict", "a task for this window is already queued")
			return
		}
		if h.logger != nil {
			h.logger.Error("enqueue kpi run", slog.Int64("run_id", run.ID), slog.Any("error", err))
		}
		httpx.RespondError(w, err)
		return
	}

	httpx.JSON(w, http.StatusAccepted, toRunResponse(run))
}

func (h *Handler) listRuns(w http.ResponseWriter, r *http.Request) {
	page := parseQueryInt(r, "page")
	perPage := parseQueryInt(r, "per_page")
	runs, pagination, err := h.service.ListRuns(r.Context(), page, perPage)
	if err != nil {
		if h.logger != nil {
			h.logger.Error("list kpi runs", slog.Any("error", err))
		}
		httpx.RespondError(w, err)
		return
	}
	resp := listRunsResponse{
		Runs:       make([]runResponse, 0, len(runs)),
		Pagination: toPaginationResponse(pagination),
	}
	for _, run := range runs {
		resp.Runs = append(resp.Runs, toRunResponse(run))
	}
	httpx.JSON(w, http.StatusOK, resp)
}

func (h *Handler) showRun(w http.ResponseWriter, r *http.Request) {
	id, err := strconv.ParseInt(chi.URLParam(r, "id"), 10, 64)
	if err != nil || id <= 0 {
		httpx.Problem(w, http.StatusBadRequest, "Invalid Request", "run id must be a positive integer")
		return
	}
	run, err := h.service.GetRun(r.Context(), id)
	if err != nil {
		if errors.Is(err, kpi.ErrRunNotFound) {
			httpx.RespondError(w, httpx.ErrNotFound)
			return
		}
		if h.logger != nil {
			h.logger.Error("get kpi run", slog.Int64("run_id", id), slog.Any("error", err))
		}
		httpx.RespondError(w, err)
		return
	}
	httpx.JSON(w, http.StatusOK, toRunResponse(run))
}

func toRunResponse(run kpi.Run) runResponse {
	resp := runResponse{
		ID:                    run.ID,
		Fingerprint:           run.Fingerprint.String(),
		StartDate:             run.Params.StartDate.Format(dateLayout),
		EndDate:               run.Params.EndDate.Format(dateLayout),
		ServiceLevel:          run.Params.ServiceLevel,
		LeadTimeDays:          run.Params.LeadTimeDays,
		ExcessThresholdDays:   run.Params.ExcessThresholdDays,
		ShortageThresholdDays: run.Params.ShortageThresholdDays,
		XYZLowCV:              run.Params.XYZLowCV,
		XYZHighCV:             run.Params.XYZHighCV,
		Status:                string(run.Status),
		Error:                 run.Error,
		ProductCount:          run.ProductCount,
		RequestedBy:           run.RequestedBy,
		CreatedAt:             run.CreatedAt.UTC().Format(time.RFC3339),
	}
	if run.StartedAt != nil {
		v := run.StartedAt.UTC().Format(time.RFC3339)
		resp.StartedAt = &v
	}
	if run.FinishedAt != nil {
		v := run.FinishedAt.UTC().Format(time.RFC3339)
		resp.FinishedAt = &v
	}
	return resp
}

func toPaginationResponse(p shared.Pagination) paginationResponse {
	return paginationResponse{
		Page:       p.Page,
		PerPage:    p.PerPage,
		Total:      p.Total,
		TotalPages: p.TotalPages,
	}
}

func validationDetail(err error) string {
	var fieldErrs validator.ValidationErrors
	if !errors.As(err, &fieldErrs) {
		return err.Error()
	}
	parts := make([]string, 0, len(fieldErrs))
	for _, fieldErr := range fieldErrs {
		parts = append(parts, fieldErr.Field()+": "+fieldErr.Tag())
	}
	return strings.Join(parts, ", ")
}

func parseQueryInt(r *http.Request, key string) int {
	v, err := strconv.Atoi(strings.TrimSpace(r.URL.Query().Get(key)))
	if err != nil {
		return 0
	}
	return v
}
