package handlers

import (
	"context"
	"log"
	"net/http"
	"strings"

	"github.com/duebook/backend/internal/models"
	"github.com/duebook/backend/internal/services"
)

type CustomerAPI interface {
	CreateCustomer(ctx context.Context, req services.CreateCustomerRequest, userID int64) (*models.Customer, error)
	UpdateCustomer(ctx context.Context, customerID int64, req services.UpdateCustomerRequest, userID int64) (*models.Customer, error)
	GetCustomer(ctx context.Context, customerID, userID int64) (*models.Customer, error)
	ListByShop(ctx context.Context, shopID, userID int64, activeOnly bool) ([]models.Customer, error)
	ListForUser(ctx context.Context, userID int64) ([]models.Customer, error)
	ListPaginated(ctx context.Context, shopID, userID int64, f models.CustomerFilter, p models.PageRequest) (models.Page[models.Customer], error)
	Summary(ctx context.Context, shopID, userID int64, f models.CustomerFilter) (models.CustomerSummary, error)
}

type CustomerHandler struct {
	service   CustomerAPI
	validator *services.ValidationHelper
}

func NewCustomerHandler(service CustomerAPI) *CustomerHandler {
	return &CustomerHandler{
		service:   service,
		validator: services.NewValidationHelper(),
	}
}

type createCustomerBody struct {
	ShopID         int64  `json:"shopId" validate:"required,gt=0"`
	Name           string `json:"name" validate:"required,min=1,max=120"`
	EntityName     string `json:"entityName,omitempty" validate:"max=120"`
	Phone          string `json:"phone" validate:"required,min=6,max=20"`
	OpeningBalance int64  `json:"openingBalance,omitempty" validate:"gte=0"`
}

type updateCustomerBody struct {
	Name           string `json:"name" validate:"required,min=1,max=120"`
	EntityName     string `json:"entityName,omitempty" validate:"max=120"`
	Phone          string `json:"phone" validate:"required,min=6,max=20"`
	CurrentBalance int64  `json:"currentBalance"`
	IsActive       *bool  `json:"isActive,omitempty"`
}

type customerQuery struct {
	Status     string `validate:"omitempty,oneof=ACTIVE INACTIVE"`
	SearchTerm string `validate:"max=100"`
}

func (h *CustomerHandler) CreateCustomer(w http.ResponseWriter, r *http.Request) {
	userID, ok := currentUser(w, r, "CUSTOMER")
	if !ok {
		return
	}

	var req createCustomerBody
	if !decodeBody(w, r, "CUSTOMER", &req, false) {
		return
	}
	if err := h.validator.ValidateStruct(&req); err != nil {
		log.Printf("[CUSTOMER] CreateCustomer - Validation error: %v", err)
		services.SendErrorResponse(w, "Validation failed", http.StatusBadRequest, err)
		return
	}

	customer, err := h.service.CreateCustomer(r.Context(), services.CreateCustomerRequest{
		ShopID:         req.ShopID,
		Name:           req.Name,
		EntityName:     req.EntityName,
		Phone:          req.Phone,
		OpeningBalance: req.OpeningBalance,
	}, userID)
	if err != nil {
		services.SendServiceError(w, "CUSTOMER", err)
		return
	}

	log.Printf("[CUSTOMER] CreateCustomer - Success: customer=%d shop=%d", customer.ID, customer.ShopID)
	writeJSON(w, http.StatusCreated, customer)
}

func (h *CustomerHandler) UpdateCustomer(w http.ResponseWriter, r *http.Request) {
	userID, ok := currentUser(w, r, "CUSTOMER")
	if !ok {
		return
	}
	customerID, ok := pathID(w, r, "id", false)
	if !ok {
		return
	}

	var req updateCustomerBody
	if !decodeBody(w, r, "CUSTOMER", &req, false) {
		return
	}
	if err := h.validator.ValidateStruct(&req); err != nil {
		services.SendErrorResponse(w, "Validation failed", http.StatusBadRequest, err)
		return
	}

	customer, err := h.service.UpdateCustomer(r.Context(), customerID, services.UpdateCustomerRequest{
		Name:           req.Name,
		EntityName:     req.EntityName,
		Phone:          req.Phone,
		CurrentBalance: req.CurrentBalance,
		IsActive:       req.IsActive,
	}, userID)
	if err != nil {
		services.SendServiceError(w, "CUSTOMER", err)
		return
	}
	writeJSON(w, http.StatusOK, customer)
}

func (h *CustomerHandler) GetCustomer(w http.ResponseWriter, r *http.Request) {
	userID, ok := currentUser(w, r, "CUSTOMER")
	if !ok {
		return
	}
	customerID, ok := pathID(w, r, "id", false)
	if !ok {
		return
	}

	customer, err := h.service.GetCustomer(r.Context(), customerID, userID)
	if err != nil {
		services.SendServiceError(w, "CUSTOMER", err)
		return
	}
	writeJSON(w, http.StatusOK, customer)
}

// ListByShop lists a shop's customers; ?active=true keeps active ones only.
func (h *CustomerHandler) ListByShop(w http.ResponseWriter, r *http.Request) {
	userID, ok := currentUser(w, r, "CUSTOMER")
	if !ok {
		return
	}
	shopID, ok := pathID(w, r, "shopId", false)
	if !ok {
		return
	}
	activeOnly := strings.EqualFold(r.URL.Query().Get("active"), "true")

	customers, err := h.service.ListByShop(r.Context(), shopID, userID, activeOnly)
	if err != nil {
		services.SendServiceError(w, "CUSTOMER", err)
		return
	}
	writeJSON(w, http.StatusOK, customers)
}

func (h *CustomerHandler) ListForUser(w http.ResponseWriter, r *http.Request) {
	userID, ok := currentUser(w, r, "CUSTOMER")
	if !ok {
		return
	}

	customers, err := h.service.ListForUser(r.Context(), userID)
	if err != nil {
		services.SendServiceError(w, "CUSTOMER", err)
		return
	}
	writeJSON(w, http.StatusOK, customers)
}

// ListPaginated searches the customers of one shop, or every accessible shop
// when shopId is 0
// @Summary Paginated Customers
// @Tags Customers
// @Produce json
// @Security BearerAuth
// @Param shopId path int true "Shop ID, 0 for all shops"
// @Param page query int false "Zero-based page"
// @Param size query int false "Page size"
// @Param status query string false "ACTIVE or INACTIVE"
// @Param searchTerm query string false "Name, entity name or phone"
// @Success 200 {object} models.Page[models.Customer]
// @Failure 400 {object} services.ErrorResponse
// @Router /customers/shop/{shopId}/paginated [get]
func (h *CustomerHandler) ListPaginated(w http.ResponseWriter, r *http.Request) {
	userID, ok := currentUser(w, r, "CUSTOMER")
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
		services.SendServiceError(w, "CUSTOMER", err)
		return
	}
	writeJSON(w, http.StatusOK, result)
}

// Summary totals the customers matching the listing filter, across all pages.
func (h *CustomerHandler) Summary(w http.ResponseWriter, r *http.Request) {
	userID, ok := currentUser(w, r, "CUSTOMER")
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
		services.SendServiceError(w, "CUSTOMER", err)
		return
	}

	log.Printf("[CUSTOMER] Summary - shop=%d total=%d active=%d balance=%d",
		shopID, summary.TotalCustomers, summary.ActiveCustomers, summary.TotalCurrentBalance)
	writeJSON(w, http.StatusOK, summary)
}

func (h *CustomerHandler) parseFilter(w http.ResponseWriter, r *http.Request) (models.CustomerFilter, bool) {
	q := r.URL.Query()
	query := customerQuery{
		Status:     strings.ToUpper(strings.TrimSpace(q.Get("status"))),
		SearchTerm: strings.TrimSpace(q.Get("searchTerm")),
	}
	if err := h.validator.ValidateStruct(&query); err != nil {
		log.Printf("[CUSTOMER] Invalid filter: %v", err)
		services.SendErrorResponse(w, "Validation failed", http.StatusBadRequest, err)
		return models.CustomerFilter{}, false
	}
	return models.CustomerFilter{Status: query.Status, SearchTerm: query.SearchTerm}, true
}
