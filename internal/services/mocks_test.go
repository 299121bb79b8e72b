package services

import (
	"context"
	"testing"
	"time"

	"github.com/DATA-DOG/go-sqlmock"
	"github.com/duebook/backend/internal/config"
	"github.com/duebook/backend/internal/models"
	"github.com/jmoiron/sqlx"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"
)

type MockAuditRecorder struct {
	mock.Mock
}

func (m *MockAuditRecorder) RecordAudit(ctx context.Context, rec models.AuditRecord) {
	m.Called(ctx, rec)
}

// actions returns the recorded audit actions in call order.
func (m *MockAuditRecorder) actions() []models.AuditAction {
	var out []models.AuditAction
	for _, call := range m.Calls {
		if call.Method == "RecordAudit" {
			out = append(out, call.Arguments.Get(1).(models.AuditRecord).Action)
		}
	}
	return out
}

type MockInvalidator struct {
	mock.Mock
}

func (m *MockInvalidator) InvalidateShop(ctx context.Context, shopID int64) {
	m.Called(ctx, shopID)
}

func newMockDB(t *testing.T) (*sqlx.DB, sqlmock.Sqlmock) {
	t.Helper()
	db, mock, err := sqlmock.New()
	require.NoError(t, err)
	t.Cleanup(func() { db.Close() })
	return sqlx.NewDb(db, "sqlmock"), mock
}

func testLedgerConfig() *config.LedgerConfig {
	return &config.LedgerConfig{
		TrendDays:          30,
		TopCustomersLimit:  10,
		DashboardCacheTTL:  30 * time.Second,
		AuditQueueSize:     16,
		AuditWriteTimeout:  time.Second,
		DefaultAuditLimit:  50,
		MaxAuditLimit:      500,
		DefaultPageSize:    20,
		MaxPageSize:        100,
		OpeningBalanceNote: "Opening balance for new customer",
	}
}

var (
	membershipColumns = []string{"id", "shop_id", "user_id", "role", "status", "joined_at"}
	customerRowCols   = []string{"id", "shop_id", "name", "entity_name", "phone", "opening_balance",
		"current_balance", "is_active", "version", "created_at", "updated_at"}
	ledgerRowCols = []string{"id", "customer_id", "shop_id", "created_by_user_id", "entry_type", "amount",
		"balance_after", "reference_entry_id", "notes", "entry_date", "created_at"}
)

const (
	membershipQuery   = `SELECT id, shop_id, user_id, role, status, joined_at FROM shop_users WHERE shop_id = \$1 AND user_id = \$2`
	lockCustomerQuery = `SELECT .* FROM customer WHERE id = \$1 FOR UPDATE`
	getEntryQuery     = `SELECT .* FROM customer_ledger WHERE id = \$1`
	updateBalanceExec = `UPDATE customer SET current_balance = \$1, version = version \+ 1, updated_at = \$2 WHERE id = \$3 AND version = \$4`
)
