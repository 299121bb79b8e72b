package handlers

import (
	"context"
	"log"
	"net/http"

	"github.com/duebook/backend/internal/models"
	"github.com/duebook/backend/internal/services"
)

type ShopAPI interface {
	CreateShop(ctx context.Context, req services.CreateShopRequest, userID int64) (*models.Shop, error)
	ListShops(ctx context.Context, userID int64) ([]models.Shop, error)
	GetShop(ctx context.Context, shopID, userID int64) (*models.Shop, error)
	UpdateShop(ctx context.Context, shopID int64, req services.UpdateShopRequest, userID int64) (*models.Shop, error)
	ListMembers(ctx context.Context, shopID, userID int64) ([]models.ShopMember, error)
	AddMember(ctx context.Context, shopID int64, phone string, role models.Role, actingUserID int64) (*models.ShopMember, error)
	UpdateMemberRole(ctx context.Context, shopID, memberUserID int64, role models.Role, actingUserID int64) (*models.ShopMember, error)
	RemoveMember(ctx context.Context, shopID, memberUserID, actingUserID int64) error
}

type ShopHandler struct {
	service   ShopAPI
	validator *services.ValidationHelper
}

func NewShopHandler(service ShopAPI) *ShopHandler {
	return &ShopHandler{
		service:   service,
		validator: services.NewValidationHelper(),
	}
}

type shopBody struct {
	Name     string `json:"name" validate:"required,min=2,max=120"`
	Address  string `json:"address,omitempty" validate:"max=255"`
	IsActive *bool  `json:"isActive,omitempty"`
}

type addMemberBody struct {
	Phone string `json:"phone" validate:"required,min=6,max=20"`
	Role  string `json:"role" validate:"required,oneof=OWNER STAFF VIEWER"`
}

type roleBody struct {
	Role string `json:"role" validate:"required,oneof=OWNER STAFF VIEWER"`
}

func (h *ShopHandler) CreateShop(w http.ResponseWriter, r *http.Request) {
	userID, ok := currentUser(w, r, "SHOP")
	if !ok {
		return
	}

	var req shopBody
	if !decodeBody(w, r, "SHOP", &req, false) {
		return
	}
	if err := h.validator.ValidateStruct(&req); err != nil {
		services.SendErrorResponse(w, "Validation failed", http.StatusBadRequest, err)
		return
	}

	shop, err := h.service.CreateShop(r.Context(), services.CreateShopRequest{Name: req.Name, Address: req.Address}, userID)
	if err != nil {
		services.SendServiceError(w, "SHOP", err)
		return
	}

	log.Printf("[SHOP] CreateShop - Success: shop=%d owner=%d", shop.ID, userID)
	writeJSON(w, http.StatusCreated, shop)
}

func (h *ShopHandler) ListShops(w http.ResponseWriter, r *http.Request) {
	userID, ok := currentUser(w, r, "SHOP")
	if !ok {
		return
	}

	shops, err := h.service.ListShops(r.Context(), userID)
	if err != nil {
		services.SendServiceError(w, "SHOP", err)
		return
	}
	writeJSON(w, http.StatusOK, shops)
}

func (h *ShopHandler) GetShop(w http.ResponseWriter, r *http.Request) {
	userID, ok := currentUser(w, r, "SHOP")
	if !ok {
		return
	}
	shopID, ok := pathID(w, r, "shopId", false)
	if !ok {
		return
	}

	shop, err := h.service.GetShop(r.Context(), shopID, userID)
	if err != nil {
		services.SendServiceError(w, "SHOP", err)
		return
	}
	writeJSON(w, http.StatusOK, shop)
}

func (h *ShopHandler) UpdateShop(w http.ResponseWriter, r *http.Request) {
	userID, ok := currentUser(w, r, "SHOP")
	if !ok {
		return
	}
	shopID, ok := pathID(w, r, "shopId", false)
	if !ok {
		return
	}

	var req shopBody
	if !decodeBody(w, r, "SHOP", &req, false) {
		return
	}
	if err := h.validator.ValidateStruct(&req); err != nil {
		services.SendErrorResponse(w, "Validation failed", http.StatusBadRequest, err)
		return
	}

	shop, err := h.service.UpdateShop(r.Context(), shopID, services.UpdateShopRequest{
		Name:     req.Name,
		Address:  req.Address,
		IsActive: req.IsActive,
	}, userID)
	if err != nil {
		services.SendServiceError(w, "SHOP", err)
		return
	}
	writeJSON(w, http.StatusOK, shop)
}

func (h *ShopHandler) ListMembers(w http.ResponseWriter, r *http.Request) {
	userID, ok := currentUser(w, r, "SHOP")
	if !ok {
		return
	}
	shopID, ok := pathID(w, r, "shopId", false)
	if !ok {
		return
	}

	members, err := h.service.ListMembers(r.Context(), shopID, userID)
	if err != nil {
		services.SendServiceError(w, "SHOP", err)
		return
	}
	writeJSON(w, http.StatusOK, members)
}

func (h *ShopHandler) AddMember(w http.ResponseWriter, r *http.Request) {
	userID, ok := currentUser(w, r, "SHOP")
	if !ok {
		return
	}
	shopID, ok := pathID(w, r, "shopId", false)
	if !ok {
		return
	}

	var req addMemberBody
	if !decodeBody(w, r, "SHOP", &req, false) {
		return
	}
	if err := h.validator.ValidateStruct(&req); err != nil {
		services.SendErrorResponse(w, "Validation failed", http.StatusBadRequest, err)
		return
	}

	member, err := h.service.AddMember(r.Context(), shopID, req.Phone, models.Role(req.Role), userID)
	if err != nil {
		services.SendServiceError(w, "SHOP", err)
		return
	}

	log.Printf("[SHOP] AddMember - Success: shop=%d user=%d role=%s", shopID, member.UserID, member.Role)
	writeJSON(w, http.StatusCreated, member)
}

func (h *ShopHandler) UpdateMemberRole(w http.ResponseWriter, r *http.Request) {
	userID, ok := currentUser(w, r, "SHOP")
	if !ok {
		return
	}
	shopID, ok := pathID(w, r, "shopId", false)
	if !ok {
		return
	}
	memberID, ok := pathID(w, r, "userId", false)
	if !ok {
		return
	}

	var req roleBody
	if !decodeBody(w, r, "SHOP", &req, false) {
		return
	}
	if err := h.validator.ValidateStruct(&req); err != nil {
		services.SendErrorResponse(w, "Validation failed", http.StatusBadRequest, err)
		return
	}

	member, err := h.service.UpdateMemberRole(r.Context(), shopID, memberID, models.Role(req.Role), userID)
	if err != nil {
		services.SendServiceError(w, "SHOP", err)
		return
	}
	writeJSON(w, http.StatusOK, member)
}

func (h *ShopHandler) RemoveMember(w http.ResponseWriter, r *http.Request) {
	userID, ok := currentUser(w, r, "SHOP")
	if !ok {
		return
	}
	shopID, ok := pathID(w, r, "shopId", false)
	if !ok {
		return
	}
	memberID, ok := pathID(w, r, "userId", false)
	if !ok {
		return
	}

	if err := h.service.RemoveMember(r.Context(), shopID, memberID, userID); err != nil {
		services.SendServiceError(w, "SHOP", err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]interface{}{"success": true})
}
