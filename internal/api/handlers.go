package api

import (
	"encoding/json"
	"net/http"
	"strconv"

	"github.com/go-chi/chi/v5"
	"go.uber.org/zap"

	"github.com/kingban00/mining-pipeline/internal/catalog"
	"github.com/kingban00/mining-pipeline/internal/model"
	"github.com/kingban00/mining-pipeline/internal/queue"
	"github.com/kingban00/mining-pipeline/internal/resolve"
)

// Handler serves the company intelligence endpoints.
type Handler struct {
	store        catalog.Store
	queue        queue.Queue
	maxCompanies int
}

// NewHandler creates a Handler. maxCompanies caps one submission batch.
func NewHandler(store catalog.Store, q queue.Queue, maxCompanies int) *Handler {
	if maxCompanies <= 0 {
		maxCompanies = 10
	}
	return &Handler{store: store, queue: q, maxCompanies: maxCompanies}
}

type processRequest struct {
	Companies string `json:"companies"`
}

type processResponse struct {
	Message         string   `json:"message"`
	CompaniesQueued []string `json:"companies_queued"`
}

// ProcessCompanies accepts a comma-delimited batch and enqueues one task per
// unique name. Responds 202 since processing is asynchronous.
func (h *Handler) ProcessCompanies(w http.ResponseWriter, r *http.Request) {
	var req processRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid JSON body")
		return
	}
	if req.Companies == "" {
		writeError(w, http.StatusBadRequest, "companies field is required")
		return
	}

	names, err := resolve.ParseList(req.Companies, h.maxCompanies)
	if err != nil {
		writeError(w, http.StatusUnprocessableEntity, err.Error())
		return
	}

	var accepted []string
	for _, name := range names {
		if err := h.queue.Enqueue(model.Task{RawName: name}); err != nil {
			zap.L().Warn("enqueue failed", zap.String("company", name), zap.Error(err))
			continue
		}
		accepted = append(accepted, name)
	}
	if len(accepted) == 0 {
		writeError(w, http.StatusServiceUnavailable, "queue is full, try again later")
		return
	}

	writeJSON(w, http.StatusAccepted, processResponse{
		Message:         "companies queued for processing",
		CompaniesQueued: accepted,
	})
}

type listResponse struct {
	Data    []model.Company `json:"data"`
	Page    int             `json:"page"`
	PerPage int             `json:"per_page"`
	Total   int             `json:"total"`
}

// ListCompanies returns a paged, optionally searched company list.
func (h *Handler) ListCompanies(w http.ResponseWriter, r *http.Request) {
	page, _ := strconv.Atoi(r.URL.Query().Get("page"))
	if page <= 0 {
		page = 1
	}
	perPage := 10

	filter := catalog.ListFilter{
		Search:  r.URL.Query().Get("search"),
		Page:    page,
		PerPage: perPage,
	}

	companies, total, err := h.store.ListCompanies(r.Context(), filter)
	if err != nil {
		zap.L().Error("list companies failed", zap.Error(err))
		writeError(w, http.StatusInternalServerError, "failed to list companies")
		return
	}
	if companies == nil {
		companies = []model.Company{}
	}

	writeJSON(w, http.StatusOK, listResponse{
		Data:    companies,
		Page:    page,
		PerPage: perPage,
		Total:   total,
	})
}

// GetCompany returns one company with its executives and assets.
func (h *Handler) GetCompany(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "id")

	company, err := h.store.GetCompany(r.Context(), id)
	if err != nil {
		zap.L().Error("get company failed", zap.String("id", id), zap.Error(err))
		writeError(w, http.StatusInternalServerError, "failed to load company")
		return
	}
	if company == nil {
		writeError(w, http.StatusNotFound, "company not found")
		return
	}

	writeJSON(w, http.StatusOK, company)
}

// QueueStatus reports the processing backlog.
func (h *Handler) QueueStatus(w http.ResponseWriter, _ *http.Request) {
	writeJSON(w, http.StatusOK, map[string]int64{"pending_jobs": h.queue.Pending()})
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(v); err != nil {
		zap.L().Error("write response failed", zap.Error(err))
	}
}

func writeError(w http.ResponseWriter, status int, msg string) {
	writeJSON(w, status, map[string]string{"error": msg})
}
