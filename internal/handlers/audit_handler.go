package handlers

import (
	"context"
	"log"
	"net/http"
	"strconv"

	"github.com/duebook/backend/internal/models"
	"github.com/duebook/backend/internal/services"
)

type AuditAPI interface {
	ListByShop(ctx context.Context, shopID, userID int64, limit int) ([]models.AuditLog, error)
	ListPaginated(ctx context.Context, shopID, userID int64, f models.AuditFilter, p models.PageRequest) (models.Page[models.AuditLog], error)
	ListActions(ctx context.Context, shopID, userID int64) ([]string, error)
	ListEntityTypes(ctx context.Context, shopID, userID int64) ([]string, error)
}

type AuditHandler struct {
	service   AuditAPI
	validator *services.ValidationHelper
}

func NewAuditHandler(service AuditAPI) *AuditHandler {
	return &AuditHandler{
		service:   service,
		validator: services.NewValidationHelper(),
	}
}

type auditQuery struct {
	Action     string `validate:"omitempty,max=64"`
	EntityType string `validate:"omitempty,oneof=SHOP CUSTOMER LEDGER"`
	StartDate  string `validate:"omitempty,datetime=2006-01-02"`
	EndDate    string `validate:"omitempty,datetime=2006-01-02"`
}

// ListByShop returns a shop's audit trail, newest first. The service clamps
// ?limit; a missing or malformed value falls back to its default.
func (h *AuditHandler) ListByShop(w http.ResponseWriter, r *http.Request) {
	userID, ok := currentUser(w, r, "AUDIT")
	if !ok {
		return
	}
	shopID, ok := pathID(w, r, "shopId", false)
	if !ok {
		return
	}

	limit, _ := strconv.Atoi(r.URL.Query().Get("limit"))

	logs, err := h.service.ListByShop(r.Context(), shopID, userID, limit)
	if err != nil {
		services.SendServiceError(w, "AUDIT", err)
		return
	}
	writeJSON(w, http.StatusOK, logs)
}

// ListPaginated pages through a shop's audit trail, newest first
// @Summary Paginated Audit Logs
// @Tags Audit
// @Produce json
// @Security BearerAuth
// @Param shopId path int true "Shop ID"
// @Param page query int false "Zero-based page"
// @Param size query int false "Page size"
// @Param action query string false "Audit action"
// @Param entityType query string false "SHOP, CUSTOMER or LEDGER"
// @Param startDate query string false "YYYY-MM-DD"
// @Param endDate query string false "YYYY-MM-DD"
// @Success 200 {object} models.Page[models.AuditLog]
// @Failure 400 {object} services.ErrorResponse
// @Router /audit-logs/shop/{shopId}/paginated [get]
func (h *AuditHandler) ListPaginated(w http.ResponseWriter, r *http.Request) {
	userID, ok := currentUser(w, r, "AUDIT")
	if !ok {
		return
	}
	shopID, ok := pathID(w, r, "shopId", false)
	if !ok {
		return
	}

	q := r.URL.Query()
	query := auditQuery{
		Action:     q.Get("action"),
		EntityType: q.Get("entityType"),
		StartDate:  q.Get("startDate"),
		EndDate:    q.Get("endDate"),
	}
	if err := h.validator.ValidateStruct(&query); err != nil {
		log.Printf("[AUDIT] Invalid filter: %v", err)
		services.SendErrorResponse(w, "Validation failed", http.StatusBadRequest, err)
		return
	}
	page, ok := pageQuery(w, r)
	if !ok {
		return
	}

	result, err := h.service.ListPaginated(r.Context(), shopID, userID, models.AuditFilter{
		Action:     models.AuditAction(query.Action),
		EntityType: query.EntityType,
		StartDate:  parseDate(query.StartDate),
		EndDate:    parseDate(query.EndDate),
	}, page)
	if err != nil {
		services.SendServiceError(w, "AUDIT", err)
		return
	}
	writeJSON(w, http.StatusOK, result)
}

func (h *AuditHandler) ListActions(w http.ResponseWriter, r *http.Request) {
	h.listDistinct(w, r, h.service.ListActions)
}

func (h *AuditHandler) ListEntityTypes(w http.ResponseWriter, r *http.Request) {
	h.listDistinct(w, r, h.service.ListEntityTypes)
}

func (h *AuditHandler) listDistinct(w http.ResponseWriter, r *http.Request, list func(ctx context.Context, shopID, userID int64) ([]string, error)) {
	userID, ok := currentUser(w, r, "AUDIT")
	if !ok {
		return
	}
	shopID, ok := pathID(w, r, "shopId", false)
	if !ok {
		return
	}

	values, err := list(r.Context(), shopID, userID)
	if err != nil {
		services.SendServiceError(w, "AUDIT", err)
		return
	}
	writeJSON(w, http.StatusOK, values)
}
