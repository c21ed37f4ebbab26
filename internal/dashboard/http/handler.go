// Package dashboardhttp exposes the dashboard read API.
package dashboardhttp

import (
	"errors"
	"log/slog"
	"net/http"
	"strconv"

	"github.com/go-chi/chi/v5"

	"github.com/InnovAI-ERP/Analisis-FARMAGUIRRE/internal/dashboard"
	"github.com/InnovAI-ERP/Analisis-FARMAGUIRRE/internal/dashboard/export"
	"github.com/InnovAI-ERP/Analisis-FARMAGUIRRE/internal/platform/httpx"
)

// Handler serves dashboard endpoints.
type Handler struct {
	logger  *slog.Logger
	service *dashboard.Service
}

// NewHandler builds the dashboard HTTP handler.
func NewHandler(logger *slog.Logger, service *dashboard.Service) *Handler {
	return &Handler{logger: logger, service: service}
}

// MountRoutes registers dashboard routes on the router.
func (h *Handler) MountRoutes(r chi.Router) {
	r.Get("/summary", h.summary)
	r.Get("/products", h.products)
	r.Get("/matrix", h.matrix)
	r.Get("/top", h.top)
	r.Get("/export/products.csv", h.exportProducts)
	r.Get("/export/summary.csv", h.exportSummary)
}

type productsResponse struct {
	StartDate string                 `json:"start_date"`
	EndDate   string                 `json:"end_date"`
	Count     int                    `json:"count"`
	Products  []dashboard.ProductRow `json:"products"`
}

type matrixResponse struct {
	StartDate string                 `json:"start_date"`
	EndDate   string                 `json:"end_date"`
	Cells     []dashboard.MatrixCell `json:"cells"`
}

func (h *Handler) summary(w http.ResponseWriter, r *http.Request) {
	window, ok := h.resolveWindow(w, r)
	if !ok {
		return
	}
	summary, err := h.service.Summary(r.Context(), window)
	if err != nil {
		h.respondError(w, err)
		return
	}
	httpx.JSON(w, http.StatusOK, summary)
}

func (h *Handler) products(w http.ResponseWriter, r *http.Request) {
	window, ok := h.resolveWindow(w, r)
	if !ok {
		return
	}
	rows, err := h.service.Products(r.Context(), window, filterFromQuery(r))
	if err != nil {
		h.respondError(w, err)
		return
	}
	httpx.JSON(w, http.StatusOK, productsResponse{
		StartDate: window.StartDate.Format("2006-01-02"),
		EndDate:   window.EndDate.Format("2006-01-02"),
		Count:     len(rows),
		Products:  rows,
	})
}

func (h *Handler) matrix(w http.ResponseWriter, r *http.Request) {
	window, ok := h.resolveWindow(w, r)
	if !ok {
		return
	}
	cells, err := h.service.Matrix(r.Context(), window)
	if err != nil {
		h.respondError(w, err)
		return
	}
	httpx.JSON(w, http.StatusOK, matrixResponse{
		StartDate: window.StartDate.Format("2006-01-02"),
		EndDate:   window.EndDate.Format("2006-01-02"),
		Cells:     cells,
	})
}

func (h *Handler) top(w http.ResponseWriter, r *http.Request) {
	window, ok := h.resolveWindow(w, r)
	if !ok {
		return
	}
	limit, _ := strconv.Atoi(r.URL.Query().Get("limit"))
	rows, err := h.service.TopByInventoryValue(r.Context(), window, dashboard.TopQuery{
		ABCClass: r.URL.Query().Get("abc"),
		XYZClass: r.URL.Query().Get("xyz"),
		Limit:    limit,
	})
	if err != nil {
		h.respondError(w, err)
		return
	}
	httpx.JSON(w, http.StatusOK, productsResponse{
		StartDate: window.StartDate.Format("2006-01-02"),
		EndDate:   window.EndDate.Format("2006-01-02"),
		Count:     len(rows),
		Products:  rows,
	})
}

func (h *Handler) exportProducts(w http.ResponseWriter, r *http.Request) {
	window, ok := h.resolveWindow(w, r)
	if !ok {
		return
	}
	rows, err := h.service.Products(r.Context(), window, filterFromQuery(r))
	if err != nil {
		h.respondError(w, err)
		return
	}
	httpx.CSVAttachment(w, "productos_kpi.csv")
	if err := export.WriteProductsCSV(w, rows); err != nil {
		h.logger.Error("write products csv", slog.Any("error", err))
	}
}

func (h *Handler) exportSummary(w http.ResponseWriter, r *http.Request) {
	window, ok := h.resolveWindow(w, r)
	if !ok {
		return
	}
	summary, err := h.service.Summary(r.Context(), window)
	if err != nil {
		h.respondError(w, err)
		return
	}
	httpx.CSVAttachment(w, "resumen_kpi.csv")
	if err := export.WriteSummaryCSV(w, summary); err != nil {
		h.logger.Error("write summary csv", slog.Any("error", err))
	}
}

func (h *Handler) resolveWindow(w http.ResponseWriter, r *http.Request) (dashboard.Window, bool) {
	window, err := h.service.ResolveWindow(r.Context(), r.URL.Query().Get("start"), r.URL.Query().Get("end"))
	if err != nil {
		h.respondError(w, err)
		return dashboard.Window{}, false
	}
	return window, true
}

func (h *Handler) respondError(w http.ResponseWriter, err error) {
	switch {
	case errors.Is(err, dashboard.ErrNoResults):
		httpx.Problem(w, http.StatusNotFound, "Not Found", "no KPI results for the requested window")
	case errors.Is(err, dashboard.ErrBadFilter):
		httpx.Problem(w, http.StatusBadRequest, "Validation Failed", err.Error())
	default:
		h.logger.Error("dashboard request failed", slog.Any("error", err))
		httpx.RespondError(w, err)
	}
}

func filterFromQuery(r *http.Request) dashboard.Filter {
	limit, _ := strconv.Atoi(r.URL.Query().Get("limit"))
	return dashboard.Filter{
		Search:   r.URL.Query().Get("search"),
		ABCClass: r.URL.Query().Get("abc"),
		XYZClass: r.URL.Query().Get("xyz"),
		Limit:    limit,
	}
}
