package handlers

import (
	"context"
	"log"
	"net/http"
	"strconv"

	"github.com/duebook/backend/internal/models"
	"github.com/duebook/backend/internal/services"
)

// LedgerAPI is the slice of the ledger service the HTTP layer needs.
type LedgerAPI interface {
	CreateEntry(ctx context.Context, req services.CreateEntryRequest, userID int64) (*models.LedgerEntry, error)
	ReverseEntry(ctx context.Context, entryID, userID int64, notes string) (*models.LedgerEntry, error)
	GetEntry(ctx context.Context, entryID, userID int64) (*models.LedgerEntry, error)
	ListByCustomer(ctx context.Context, customerID, userID int64) ([]models.LedgerEntry, error)
	ListByShop(ctx context.Context, shopID, userID int64, f models.LedgerFilter) ([]models.LedgerEntry, error)
	Summary(ctx context.Context, shopID, userID int64, f models.LedgerFilter) (models.LedgerSummary, error)
	ListPaginated(ctx context.Context, shopID, userID int64, f models.LedgerFilter, p models.PageRequest) (models.Page[models.LedgerEntry], error)
	ListForUser(ctx context.Context, userID int64) ([]models.LedgerEntry, error)
}

type LedgerHandler struct {
	service   LedgerAPI
	validator *services.ValidationHelper
}

func NewLedgerHandler(service LedgerAPI) *LedgerHandler {
	return &LedgerHandler{
		service:   service,
		validator: services.NewValidationHelper(),
	}
}

type createEntryBody struct {
	CustomerID int64  `json:"customerId" validate:"required,gt=0"`
	EntryType  string `json:"entryType" validate:"required,oneof=BAKI PAID"`
	Amount     int64  `json:"amount" validate:"required,gt=0"`
	Notes      string `json:"notes,omitempty" validate:"max=500"`
	EntryDate  string `json:"entryDate,omitempty" validate:"omitempty,datetime=2006-01-02"`
}

type reverseEntryBody struct {
	Notes string `json:"notes,omitempty" validate:"max=500"`
}

type ledgerQuery struct {
	CustomerID string `validate:"omitempty,numeric"`
	EntryType  string `validate:"omitempty,oneof=BAKI PAID REVERSAL"`
	StartDate  string `validate:"omitempty,datetime=2006-01-02"`
	EndDate    string `validate:"omitempty,datetime=2006-01-02"`
}

// CreateEntry records a BAKI or PAID entry against a customer
// @Summary Create Ledger Entry
// @Tags Ledger
// @Accept json
// @Produce json
// @Security BearerAuth
// @Param request body createEntryBody true "Ledger entry"
// @Success 201 {object} models.LedgerEntry
// @Failure 400 {object} services.ErrorResponse
// @Router /ledger [post]
func (h *LedgerHandler) CreateEntry(w http.ResponseWriter, r *http.Request) {
	userID, ok := currentUser(w, r, "LEDGER")
	if !ok {
		return
	}

	var req createEntryBody
	if !decodeBody(w, r, "LEDGER", &req, false) {
		return
	}

	if err := h.validator.ValidateStruct(&req); err != nil {
		log.Printf("[LEDGER] CreateEntry - Validation error: %v", err)
		services.SendErrorResponse(w, "Validation failed", http.StatusBadRequest, err)
		return
	}

	entry, err := h.service.CreateEntry(r.Context(), services.CreateEntryRequest{
		CustomerID: req.CustomerID,
		EntryType:  models.EntryType(req.EntryType),
		Amount:     req.Amount,
		Notes:      req.Notes,
		EntryDate:  parseDate(req.EntryDate),
	}, userID)
	if err != nil {
		services.SendServiceError(w, "LEDGER", err)
		return
	}

	log.Printf("[LEDGER] CreateEntry - Success: entry=%d customer=%d type=%s amount=%d", entry.ID, entry.CustomerID, entry.EntryType, entry.Amount)
	writeJSON(w, http.StatusCreated, entry)
}

// ReverseEntry posts a compensating REVERSAL for an entry
// @Summary Reverse Ledger Entry
// @Tags Ledger
// @Accept json
// @Produce json
// @Security BearerAuth
// @Param id path int true "Entry ID"
// @Success 201 {object} models.LedgerEntry
// @Failure 400 {object} services.ErrorResponse
// @Router /ledger/{id}/reverse [post]
func (h *LedgerHandler) ReverseEntry(w http.ResponseWriter, r *http.Request) {
	userID, ok := currentUser(w, r, "LEDGER")
	if !ok {
		return
	}
	entryID, ok := pathID(w, r, "id", false)
	if !ok {
		return
	}

	var req reverseEntryBody
	if !decodeBody(w, r, "LEDGER", &req, true) {
		return
	}
	if err := h.validator.ValidateStruct(&req); err != nil {
		services.SendErrorResponse(w, "Validation failed", http.StatusBadRequest, err)
		return
	}

	entry, err := h.service.ReverseEntry(r.Context(), entryID, userID, req.Notes)
	if err != nil {
		services.SendServiceError(w, "LEDGER", err)
		return
	}

	log.Printf("[LEDGER] ReverseEntry - Success: reversal=%d of entry=%d", entry.ID, entryID)
	writeJSON(w, http.StatusCreated, entry)
}

func (h *LedgerHandler) GetEntry(w http.ResponseWriter, r *http.Request) {
	userID, ok := currentUser(w, r, "LEDGER")
	if !ok {
		return
	}
	entryID, ok := pathID(w, r, "id", false)
	if !ok {
		return
	}

	entry, err := h.service.GetEntry(r.Context(), entryID, userID)
	if err != nil {
		services.SendServiceError(w, "LEDGER", err)
		return
	}
	writeJSON(w, http.StatusOK, entry)
}

func (h *LedgerHandler) ListByCustomer(w http.ResponseWriter, r *http.Request) {
	userID, ok := currentUser(w, r, "LEDGER")
	if !ok {
		return
	}
	customerID, ok := pathID(w, r, "customerId", false)
	if !ok {
		return
	}

	entries, err := h.service.ListByCustomer(r.Context(), customerID, userID)
	if err != nil {
		services.SendServiceError(w, "LEDGER", err)
		return
	}
	writeJSON(w, http.StatusOK, entries)
}

func (h *LedgerHandler) ListByShop(w http.ResponseWriter, r *http.Request) {
	userID, ok := currentUser(w, r, "LEDGER")
	if !ok {
		return
	}
	shopID, ok := pathID(w, r, "shopId", false)
	if !ok {
		return
	}
	filter, ok := h.parseFilter(w, r)
	if !ok {
		return
	}

	entries, err := h.service.ListByShop(r.Context(), shopID, userID, filter)
	if err != nil {
		services.SendServiceError(w, "LEDGER", err)
		return
	}
	writeJSON(w, http.StatusOK, entries)
}

// Summary totals effective entries for one shop, or every accessible shop
// when shopId is 0
// @Summary Ledger Summary
// @Tags Ledger
// @Produce json
// @Security BearerAuth
// @Param shopId path int true "Shop ID, 0 for all shops"
// @Param customerId query int false "Customer filter"
// @Param entryType query string false "BAKI or PAID"
// @Param startDate query string false "YYYY-MM-DD"
// @Param endDate query string false "YYYY-MM-DD"
// @Success 200 {object} models.LedgerSummary
// @Failure 400 {object} services.ErrorResponse
// @Router /ledger/shop/{shopId}/summary [get]
func (h *LedgerHandler) Summary(w http.ResponseWriter, r *http.Request) {
	userID, ok := currentUser(w, r, "LEDGER")
	if !ok {
		return
	}
	shopID, ok := pathID(w, r, "shopId", true)
	if !ok {
		return
	}
	filter, ok := h.parseFilter(w, r)
	if !ok {
		return
	}

	summary, err := h.service.Summary(r.Context(), shopID, userID, filter)
	if err != nil {
		services.SendServiceError(w, "LEDGER", err)
		return
	}
	writeJSON(w, http.StatusOK, summary)
}

// ListPaginated pages through the filtered entries of one shop, or every
// accessible shop when shopId is 0
// @Summary Paginated Ledger Entries
// @Tags Ledger
// @Produce json
// @Security BearerAuth
// @Param shopId path int true "Shop ID, 0 for all shops"
// @Param page query int false "Zero-based page"
// @Param size query int false "Page size"
// @Param customerId query int false "Customer filter"
// @Param entryType query string false "BAKI, PAID or REVERSAL"
// @Param startDate query string false "YYYY-MM-DD"
// @Param endDate query string false "YYYY-MM-DD"
// @Success 200 {object} models.Page[models.LedgerEntry]
// @Failure 400 {object} services.ErrorResponse
// @Router /ledger/shop/{shopId}/paginated [get]
func (h *LedgerHandler) ListPaginated(w http.ResponseWriter, r *http.Request) {
	userID, ok := currentUser(w, r, "LEDGER")
	if !ok {
		return
	}
	shopID, ok := pathID(w, r, "shopId", true)
	if !ok {
		return
	}
	filter, ok := h.parseFilter(w, r)
	if !ok {
		return
	}
	page, ok := pageQuery(w, r)
	if !ok {
		return
	}

	result, err := h.service.ListPaginated(r.Context(), shopID, userID, filter, page)
	if err != nil {
		services.SendServiceError(w, "LEDGER", err)
		return
	}

	log.Printf("[LEDGER] ListPaginated - shop=%d page=%d entries=%d total=%d", shopID, result.Page, len(result.Content), result.TotalElements)
	writeJSON(w, http.StatusOK, result)
}

// ListForUser returns every entry across the caller's shops.
func (h *LedgerHandler) ListForUser(w http.ResponseWriter, r *http.Request) {
	userID, ok := currentUser(w, r, "LEDGER")
	if !ok {
		return
	}

	entries, err := h.service.ListForUser(r.Context(), userID)
	if err != nil {
		services.SendServiceError(w, "LEDGER", err)
		return
	}
	writeJSON(w, http.StatusOK, entries)
}

func (h *LedgerHandler) parseFilter(w http.ResponseWriter, r *http.Request) (models.LedgerFilter, bool) {
	q := r.URL.Query()
	query := ledgerQuery{
		CustomerID: q.Get("customerId"),
		EntryType:  q.Get("entryType"),
		StartDate:  q.Get("startDate"),
		EndDate:    q.Get("endDate"),
	}
	if err := h.validator.ValidateStruct(&query); err != nil {
		log.Printf("[LEDGER] Invalid filter: %v", err)
		services.SendErrorResponse(w, "Validation failed", http.StatusBadRequest, err)
		return models.LedgerFilter{}, false
	}

	filter := models.LedgerFilter{
		EntryType: models.EntryType(query.EntryType),
		StartDate: parseDate(query.StartDate),
		EndDate:   parseDate(query.EndDate),
	}
	if query.CustomerID != "" {
		id, err := strconv.ParseInt(query.CustomerID, 10, 64)
		if err != nil {
			services.SendErrorResponse(w, "Invalid customerId", http.StatusBadRequest, nil)
			return models.LedgerFilter{}, false
		}
		filter.CustomerID = id
	}
	return filter, true
}
