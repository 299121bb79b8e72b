package handlers

import (
	"context"
	"net/http"

	"github.com/duebook/backend/internal/models"
	"github.com/duebook/backend/internal/services"
)

type DashboardAPI interface {
	GetMetrics(ctx context.Context, userID int64) (*models.DashboardMetrics, error)
	GetShopMetrics(ctx context.Context, shopID, userID int64) (*models.DashboardMetrics, error)
}

type DashboardHandler struct {
	service DashboardAPI
}

func NewDashboardHandler(service DashboardAPI) *DashboardHandler {
	return &DashboardHandler{service: service}
}

// GetMetrics aggregates every shop the caller belongs to
// @Summary Dashboard Metrics
// @Tags Dashboard
// @Produce json
// @Security BearerAuth
// @Success 200 {object} models.DashboardMetrics
// @Router /dashboard/metrics [get]
func (h *DashboardHandler) GetMetrics(w http.ResponseWriter, r *http.Request) {
	userID, ok := currentUser(w, r, "DASHBOARD")
	if !ok {
		return
	}

	metrics, err := h.service.GetMetrics(r.Context(), userID)
	if err != nil {
		services.SendServiceError(w, "DASHBOARD", err)
		return
	}
	writeJSON(w, http.StatusOK, metrics)
}

func (h *DashboardHandler) GetShopMetrics(w http.ResponseWriter, r *http.Request) {
	userID, ok := currentUser(w, r, "DASHBOARD")
	if !ok {
		return
	}
	shopID, ok := pathID(w, r, "shopId", false)
	if !ok {
		return
	}

	metrics, err := h.service.GetShopMetrics(r.Context(), shopID, userID)
	if err != nil {
		services.SendServiceError(w, "DASHBOARD", err)
		return
	}
	writeJSON(w, http.StatusOK, metrics)
}
