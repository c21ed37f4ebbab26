package movement

import (
	"errors"
	"io"
	"log/slog"
	"net/http"
	"strconv"

	"github.com/go-chi/chi/v5"

	"github.com/InnovAI-ERP/Analisis-FARMAGUIRRE/internal/observability"
	"github.com/InnovAI-ERP/Analisis-FARMAGUIRRE/internal/platform/httpx"
)

// Handler wires the ingestion endpoints.
type Handler struct {
	logger   *slog.Logger
	service  *Service
	metrics  *observability.Metrics
	maxBytes int64
}

// NewHandler constructs Handler. maxBytes caps a request body; zero means
// the default of 32 MiB.
func NewHandler(logger *slog.Logger, service *Service, metrics *observability.Metrics, maxBytes int64) *Handler {
	if maxBytes <= 0 {
		maxBytes = 32 << 20
	}
	return &Handler{logger: logger, service: service, metrics: metrics, maxBytes: maxBytes}
}

// MountRoutes registers routes.
func (h *Handler) MountRoutes(r chi.Router) {
	r.Post("/batches", h.submitBatch)
	r.Post("/batches/csv", h.submitCSV)
	r.Get("/batches/recent", h.recentBatches)
}

func (h *Handler) submitBatch(w http.ResponseWriter, r *http.Request) {
	r.Body = http.MaxBytesReader(w, r.Body, h.maxBytes)
	var lines []Line
	if err := httpx.DecodeJSON(r, &lines); err != nil {
		if isBodyTooLarge(err) {
			httpx.RespondError(w, httpx.ErrTooLarge)
			return
		}
		httpx.Problem(w, http.StatusBadRequest, "Validation Failed", "body must be a JSON array of movement lines")
		return
	}
	h.ingestWithDrops(w, r, lines, DropReport{}, "json")
}

func (h *Handler) submitCSV(w http.ResponseWriter, r *http.Request) {
	body, err := io.ReadAll(http.MaxBytesReader(w, r.Body, h.maxBytes))
	if err != nil {
		if isBodyTooLarge(err) {
			httpx.RespondError(w, httpx.ErrTooLarge)
			return
		}
		httpx.Problem(w, http.StatusBadRequest, "Validation Failed", "unreadable request body")
		return
	}
	lines, csvDrops, err := DecodeCSV(body)
	if err != nil {
		switch {
		case errors.Is(err, ErrBadCSVHeader):
			httpx.Problem(w, http.StatusBadRequest, "Validation Failed", err.Error())
		case errors.Is(err, ErrEmptyBatch):
			httpx.Problem(w, http.StatusBadRequest, "Validation Failed", err.Error())
		default:
			h.logger.Error("decode ingestion csv", slog.Any("error", err))
			httpx.RespondError(w, err)
		}
		return
	}
	h.ingestWithDrops(w, r, lines, csvDrops, "csv")
}

func (h *Handler) recentBatches(w http.ResponseWriter, r *http.Request) {
	limit, _ := strconv.Atoi(r.URL.Query().Get("limit"))
	entries, err := h.service.RecentBatches(r.Context(), limit)
	if err != nil {
		h.logger.Error("list recent batches", slog.Any("error", err))
		httpx.RespondError(w, err)
		return
	}
	httpx.JSON(w, http.StatusOK, entries)
}

func (h *Handler) ingestWithDrops(w http.ResponseWriter, r *http.Request, lines []Line, priorDrops DropReport, source string) {
	summary, err := h.service.IngestBatch(r.Context(), lines, source)
	if err != nil {
		switch {
		case errors.Is(err, ErrEmptyBatch), errors.Is(err, ErrBatchTooLarge):
			httpx.Problem(w, http.StatusBadRequest, "Validation Failed", err.Error())
		case errors.Is(err, ErrDuplicateBatch):
			httpx.Problem(w, http.StatusConflict, "Conflict", "this batch was already ingested")
		default:
			h.logger.Error("ingest movement batch", slog.Any("error", err))
			httpx.RespondError(w, err)
		}
		return
	}
	summary.Dropped.Merge(priorDrops)
	for reason, n := range summary.Dropped.ByReason() {
		h.metrics.CountDropped(reason, n)
	}
	httpx.JSON(w, http.StatusCreated, summary)
}

func isBodyTooLarge(err error) bool {
	var maxBytesErr *http.MaxBytesError
	return errors.As(err, &maxBytesErr)
}
