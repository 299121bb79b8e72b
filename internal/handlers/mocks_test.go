package handlers

import (
	"bytes"
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/duebook/backend/internal/middleware"
	"github.com/duebook/backend/internal/models"
	"github.com/duebook/backend/internal/services"
	"github.com/go-chi/chi/v5"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"
)

type MockLedgerAPI struct {
	mock.Mock
}

func (m *MockLedgerAPI) CreateEntry(ctx context.Context, req services.CreateEntryRequest, userID int64) (*models.LedgerEntry, error) {
	args := m.Called(ctx, req, userID)
	entry, _ := args.Get(0).(*models.LedgerEntry)
	return entry, args.Error(1)
}

func (m *MockLedgerAPI) ReverseEntry(ctx context.Context, entryID, userID int64, notes string) (*models.LedgerEntry, error) {
	args := m.Called(ctx, entryID, userID, notes)
	entry, _ := args.Get(0).(*models.LedgerEntry)
	return entry, args.Error(1)
}

func (m *MockLedgerAPI) GetEntry(ctx context.Context, entryID, userID int64) (*models.LedgerEntry, error) {
	args := m.Called(ctx, entryID, userID)
	entry, _ := args.Get(0).(*models.LedgerEntry)
	return entry, args.Error(1)
}

func (m *MockLedgerAPI) ListByCustomer(ctx context.Context, customerID, userID int64) ([]models.LedgerEntry, error) {
	args := m.Called(ctx, customerID, userID)
	entries, _ := args.Get(0).([]models.LedgerEntry)
	return entries, args.Error(1)
}

func (m *MockLedgerAPI) ListByShop(ctx context.Context, shopID, userID int64, f models.LedgerFilter) ([]models.LedgerEntry, error) {
	args := m.Called(ctx, shopID, userID, f)
	entries, _ := args.Get(0).([]models.LedgerEntry)
	return entries, args.Error(1)
}

func (m *MockLedgerAPI) Summary(ctx context.Context, shopID, userID int64, f models.LedgerFilter) (models.LedgerSummary, error) {
	args := m.Called(ctx, shopID, userID, f)
	return args.Get(0).(models.LedgerSummary), args.Error(1)
}

func (m *MockLedgerAPI) ListPaginated(ctx context.Context, shopID, userID int64, f models.LedgerFilter, p models.PageRequest) (models.Page[models.LedgerEntry], error) {
	args := m.Called(ctx, shopID, userID, f, p)
	page, _ := args.Get(0).(models.Page[models.LedgerEntry])
	return page, args.Error(1)
}

func (m *MockLedgerAPI) ListForUser(ctx context.Context, userID int64) ([]models.LedgerEntry, error) {
	args := m.Called(ctx, userID)
	entries, _ := args.Get(0).([]models.LedgerEntry)
	return entries, args.Error(1)
}

type MockCustomerAPI struct {
	mock.Mock
}

func (m *MockCustomerAPI) CreateCustomer(ctx context.Context, req services.CreateCustomerRequest, userID int64) (*models.Customer, error) {
	args := m.Called(ctx, req, userID)
	c, _ := args.Get(0).(*models.Customer)
	return c, args.Error(1)
}

func (m *MockCustomerAPI) UpdateCustomer(ctx context.Context, customerID int64, req services.UpdateCustomerRequest, userID int64) (*models.Customer, error) {
	args := m.Called(ctx, customerID, req, userID)
	c, _ := args.Get(0).(*models.Customer)
	return c, args.Error(1)
}

func (m *MockCustomerAPI) GetCustomer(ctx context.Context, customerID, userID int64) (*models.Customer, error) {
	args := m.Called(ctx, customerID, userID)
	c, _ := args.Get(0).(*models.Customer)
	return c, args.Error(1)
}

func (m *MockCustomerAPI) ListByShop(ctx context.Context, shopID, userID int64, activeOnly bool) ([]models.Customer, error) {
	args := m.Called(ctx, shopID, userID, activeOnly)
	cs, _ := args.Get(0).([]models.Customer)
	return cs, args.Error(1)
}

func (m *MockCustomerAPI) ListForUser(ctx context.Context, userID int64) ([]models.Customer, error) {
	args := m.Called(ctx, userID)
	cs, _ := args.Get(0).([]models.Customer)
	return cs, args.Error(1)
}

func (m *MockCustomerAPI) ListPaginated(ctx context.Context, shopID, userID int64, f models.CustomerFilter, p models.PageRequest) (models.Page[models.Customer], error) {
	args := m.Called(ctx, shopID, userID, f, p)
	page, _ := args.Get(0).(models.Page[models.Customer])
	return page, args.Error(1)
}

func (m *MockCustomerAPI) Summary(ctx context.Context, shopID, userID int64, f models.CustomerFilter) (models.CustomerSummary, error) {
	args := m.Called(ctx, shopID, userID, f)
	summary, _ := args.Get(0).(models.CustomerSummary)
	return summary, args.Error(1)
}

type MockShopAPI struct {
	mock.Mock
}

func (m *MockShopAPI) CreateShop(ctx context.Context, req services.CreateShopRequest, userID int64) (*models.Shop, error) {
	args := m.Called(ctx, req, userID)
	s, _ := args.Get(0).(*models.Shop)
	return s, args.Error(1)
}

func (m *MockShopAPI) ListShops(ctx context.Context, userID int64) ([]models.Shop, error) {
	args := m.Called(ctx, userID)
	s, _ := args.Get(0).([]models.Shop)
	return s, args.Error(1)
}

func (m *MockShopAPI) GetShop(ctx context.Context, shopID, userID int64) (*models.Shop, error) {
	args := m.Called(ctx, shopID, userID)
	s, _ := args.Get(0).(*models.Shop)
	return s, args.Error(1)
}

func (m *MockShopAPI) UpdateShop(ctx context.Context, shopID int64, req services.UpdateShopRequest, userID int64) (*models.Shop, error) {
	args := m.Called(ctx, shopID, req, userID)
	s, _ := args.Get(0).(*models.Shop)
	return s, args.Error(1)
}

func (m *MockShopAPI) ListMembers(ctx context.Context, shopID, userID int64) ([]models.ShopMember, error) {
	args := m.Called(ctx, shopID, userID)
	s, _ := args.Get(0).([]models.ShopMember)
	return s, args.Error(1)
}

func (m *MockShopAPI) AddMember(ctx context.Context, shopID int64, phone string, role models.Role, actingUserID int64) (*models.ShopMember, error) {
	args := m.Called(ctx, shopID, phone, role, actingUserID)
	s, _ := args.Get(0).(*models.ShopMember)
	return s, args.Error(1)
}

func (m *MockShopAPI) UpdateMemberRole(ctx context.Context, shopID, memberUserID int64, role models.Role, actingUserID int64) (*models.ShopMember, error) {
	args := m.Called(ctx, shopID, memberUserID, role, actingUserID)
	s, _ := args.Get(0).(*models.ShopMember)
	return s, args.Error(1)
}

func (m *MockShopAPI) RemoveMember(ctx context.Context, shopID, memberUserID, actingUserID int64) error {
	return m.Called(ctx, shopID, memberUserID, actingUserID).Error(0)
}

type MockDashboardAPI struct {
	mock.Mock
}

func (m *MockDashboardAPI) GetMetrics(ctx context.Context, userID int64) (*models.DashboardMetrics, error) {
	args := m.Called(ctx, userID)
	d, _ := args.Get(0).(*models.DashboardMetrics)
	return d, args.Error(1)
}

func (m *MockDashboardAPI) GetShopMetrics(ctx context.Context, shopID, userID int64) (*models.DashboardMetrics, error) {
	args := m.Called(ctx, shopID, userID)
	d, _ := args.Get(0).(*models.DashboardMetrics)
	return d, args.Error(1)
}

type MockAuditAPI struct {
	mock.Mock
}

func (m *MockAuditAPI) ListByShop(ctx context.Context, shopID, userID int64, limit int) ([]models.AuditLog, error) {
	args := m.Called(ctx, shopID, userID, limit)
	l, _ := args.Get(0).([]models.AuditLog)
	return l, args.Error(1)
}

func (m *MockAuditAPI) ListPaginated(ctx context.Context, shopID, userID int64, f models.AuditFilter, p models.PageRequest) (models.Page[models.AuditLog], error) {
	args := m.Called(ctx, shopID, userID, f, p)
	page, _ := args.Get(0).(models.Page[models.AuditLog])
	return page, args.Error(1)
}

func (m *MockAuditAPI) ListActions(ctx context.Context, shopID, userID int64) ([]string, error) {
	args := m.Called(ctx, shopID, userID)
	values, _ := args.Get(0).([]string)
	return values, args.Error(1)
}

func (m *MockAuditAPI) ListEntityTypes(ctx context.Context, shopID, userID int64) ([]string, error) {
	args := m.Called(ctx, shopID, userID)
	values, _ := args.Get(0).([]string)
	return values, args.Error(1)
}

// asUser stands in for the JWT middleware.
func asUser(userID int64) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			next.ServeHTTP(w, r.WithContext(middleware.WithUserID(r.Context(), userID)))
		})
	}
}

func newTestRouter(userID int64, mount func(r chi.Router)) *chi.Mux {
	r := chi.NewRouter()
	r.Use(asUser(userID))
	mount(r)
	return r
}

func doRequest(t *testing.T, h http.Handler, method, path string, body any) *httptest.ResponseRecorder {
	t.Helper()
	var buf bytes.Buffer
	switch b := body.(type) {
	case nil:
	case string:
		buf.WriteString(b)
	default:
		require.NoError(t, json.NewEncoder(&buf).Encode(b))
	}
	r := httptest.NewRequest(method, path, &buf)
	r.Header.Set("Content-Type", "application/json")
	w := httptest.NewRecorder()
	h.ServeHTTP(w, r)
	return w
}

func decodeError(t *testing.T, w *httptest.ResponseRecorder) services.ErrorResponse {
	t.Helper()
	var resp services.ErrorResponse
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &resp))
	return resp
}
