package handlers

import (
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"

	"rfqs/internal/apperr"
	"rfqs/internal/schedule"
	"rfqs/models"
)

// CreateRFQHandler обрабатывает POST /api/rfqs/new
func (h *Handler) CreateRFQHandler(w http.ResponseWriter, r *http.Request) {
	buyerID := callerID(r)
	tenantID := callerTenant(r)
	if buyerID == "" || tenantID == "" {
		http.Error(w, "Missing caller identity", http.StatusForbidden)
		return
	}

	r.Body = http.MaxBytesReader(w, r.Body, 1048576)
	body, err := io.ReadAll(r.Body)
	if err != nil {
		http.Error(w, "Failed to read request body", http.StatusBadRequest)
		return
	}
	defer r.Body.Close()

	var req models.CreateRFQRequest
	if err := json.Unmarshal(body, &req); err != nil {
		http.Error(w, "Invalid JSON format", http.StatusBadRequest)
		return
	}

	if err := h.validate.Struct(&req); err != nil {
		http.Error(w, err.Error(), http.StatusBadRequest)
		return
	}
	if err := req.Specifications.Validate(); err != nil {
		http.Error(w, err.Error(), http.StatusBadRequest)
		return
	}
	if err := validateBudget(&req); err != nil {
		http.Error(w, err.Error(), http.StatusBadRequest)
		return
	}

	specJSON, err := json.Marshal(req.Specifications)
	if err != nil {
		http.Error(w, "Invalid specifications", http.StatusBadRequest)
		return
	}

	// race_opens_at is fixed at creation and never changes afterwards.
	opensAt := schedule.RaceOpensAt(time.Now(), req.Urgency, req.BuyerTimezone, req.SupplierTimezones)

	rfq := &models.RFQ{
		ID:             uuid.NewString(),
		BuyerID:        buyerID,
		TenantID:       tenantID,
		Title:          req.Title,
		RFQType:        req.RFQType,
		Status:         models.StatusOpen,
		Urgency:        req.Urgency,
		Category:       req.Category,
		BudgetMin:      req.BudgetMin,
		BudgetMax:      req.BudgetMax,
		Deadline:       req.Deadline,
		Specifications: specJSON,
		RaceOpensAt:    &opensAt,
	}

	if err := h.Store.CreateRFQ(r.Context(), rfq); err != nil {
		h.writeError(w, err)
		return
	}

	h.writeJSON(w, http.StatusOK, rfq)
}

func validateBudget(req *models.CreateRFQRequest) error {
	if req.BudgetMin != nil && req.BudgetMax != nil && *req.BudgetMin > *req.BudgetMax {
		return errors.New("budgetMin must not exceed budgetMax")
	}
	return nil
}

// GetRFQHandler возвращает один RFQ
func (h *Handler) GetRFQHandler(w http.ResponseWriter, r *http.Request) {
	rfqID := chi.URLParam(r, "rfqId")
	if rfqID == "" {
		http.Error(w, "Missing rfqId", http.StatusBadRequest)
		return
	}

	rfq, err := h.Store.GetRFQ(r.Context(), rfqID)
	if err != nil {
		h.writeError(w, err)
		return
	}
	if rfq.TenantID != callerTenant(r) {
		h.writeError(w, apperr.ErrUnauthorized)
		return
	}

	h.writeJSON(w, http.StatusOK, rfq)
}

// ListMyRFQsHandler returns the buyer's own RFQs.
func (h *Handler) ListMyRFQsHandler(w http.ResponseWriter, r *http.Request) {
	buyerID := callerID(r)
	if buyerID == "" {
		http.Error(w, "Missing caller identity", http.StatusForbidden)
		return
	}
	params := parsePaginationParams(r)

	rfqs, err := h.Store.ListBuyerRFQs(r.Context(), buyerID, params.Limit, params.Offset)
	if err != nil {
		h.writeError(w, err)
		return
	}

	h.writeJSON(w, http.StatusOK, rfqs)
}

// ListOpenRFQsHandler is the supplier view: race already open, optionally
// filtered by category. The opensInSeconds countdown is computed against the
// supplier's own timezone at read time, never stored.
func (h *Handler) ListOpenRFQsHandler(w http.ResponseWriter, r *http.Request) {
	tenantID := callerTenant(r)
	if tenantID == "" {
		http.Error(w, "Missing caller identity", http.StatusForbidden)
		return
	}
	params := parsePaginationParams(r)
	categories := r.URL.Query()["category"]
	supplierTZ := r.URL.Query().Get("tz")

	rfqs, err := h.Store.ListOpenRFQs(r.Context(), tenantID, categories, params.Limit, params.Offset)
	if err != nil {
		h.writeError(w, err)
		return
	}

	now := time.Now()
	summaries := make([]models.RFQSummary, 0, len(rfqs))
	for _, rfq := range rfqs {
		s := models.RFQSummary{RFQ: rfq}
		if supplierTZ != "" {
			opens := schedule.OpensAtForSupplier(rfq.CreatedAt, rfq.Urgency, supplierTZ, supplierTZ)
			if opens.After(now) {
				secs := int64(opens.Sub(now).Seconds())
				s.OpensInSeconds = &secs
			}
		}
		summaries = append(summaries, s)
	}

	h.writeJSON(w, http.StatusOK, summaries)
}

// ListResponsesHandler returns the responses of one RFQ to its buyer.
func (h *Handler) ListResponsesHandler(w http.ResponseWriter, r *http.Request) {
	rfqID := chi.URLParam(r, "rfqId")
	buyerID := callerID(r)
	if rfqID == "" || buyerID == "" {
		http.Error(w, "Missing rfqId or caller identity", http.StatusBadRequest)
		return
	}

	rfq, err := h.Store.GetRFQ(r.Context(), rfqID)
	if err != nil {
		h.writeError(w, err)
		return
	}
	if rfq.BuyerID != buyerID {
		h.writeError(w, apperr.ErrUnauthorized)
		return
	}

	responses, err := h.Store.ListResponses(r.Context(), rfqID)
	if err != nil {
		h.writeError(w, err)
		return
	}

	h.writeJSON(w, http.StatusOK, responses)
}
