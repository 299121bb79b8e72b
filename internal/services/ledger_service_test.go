package services

import (
	"context"
	"database/sql/driver"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/DATA-DOG/go-sqlmock"
	"github.com/duebook/backend/internal/models"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"
)

var testNow = time.Date(2024, 5, 20, 10, 30, 0, 0, time.UTC)

func newTestLedgerService(t *testing.T) (*LedgerService, sqlmock.Sqlmock, *MockAuditRecorder) {
	db, sqlMock := newMockDB(t)
	audit := new(MockAuditRecorder)
	audit.On("RecordAudit", mock.Anything, mock.Anything).Return()

	service := NewLedgerService(db, NewAccessGuard(db), audit, testLedgerConfig())
	service.now = func() time.Time { return testNow }
	return service, sqlMock, audit
}

func expectCustomerLock(m sqlmock.Sqlmock, customerID, shopID, balance int64, version int) {
	m.ExpectQuery(lockCustomerQuery).
		WithArgs(customerID).
		WillReturnRows(sqlmock.NewRows(customerRowCols).
			AddRow(customerID, shopID, "Rahim", "Rahim Store", "01711000000", 500, balance, true, version, testNow, testNow))
}

func expectMembership(m sqlmock.Sqlmock, shopID, userID int64, role models.Role) {
	m.ExpectQuery(membershipQuery).
		WithArgs(shopID, userID).
		WillReturnRows(sqlmock.NewRows(membershipColumns).
			AddRow(1, shopID, userID, string(role), "ACTIVE", testNow))
}

func expectNoMembership(m sqlmock.Sqlmock, shopID, userID int64) {
	m.ExpectQuery(membershipQuery).
		WithArgs(shopID, userID).
		WillReturnRows(sqlmock.NewRows(membershipColumns))
}

func expectEntryInsert(m sqlmock.Sqlmock, newID int64, args ...driver.Value) {
	m.ExpectQuery("INSERT INTO customer_ledger").
		WithArgs(args...).
		WillReturnRows(sqlmock.NewRows([]string{"id"}).AddRow(newID))
}

func expectBalanceUpdate(m sqlmock.Sqlmock, customerID, balance int64, version int) {
	m.ExpectExec(updateBalanceExec).
		WithArgs(balance, sqlmock.AnyArg(), customerID, version).
		WillReturnResult(sqlmock.NewResult(0, 1))
}

func expectEntryLoad(m sqlmock.Sqlmock, id int64, entryType models.EntryType, amount, balanceAfter int64, reference any) {
	m.ExpectQuery(getEntryQuery).
		WithArgs(id).
		WillReturnRows(sqlmock.NewRows(ledgerRowCols).
			AddRow(id, 1, 10, 5, string(entryType), amount, balanceAfter, reference, "", testNow, testNow))
}

func TestLedgerService_Scenario(t *testing.T) {
	service, m, audit := newTestLedgerService(t)
	ctx := context.Background()

	// Opening balance 500 is already on the customer; BAKI 200.
	m.ExpectBegin()
	expectCustomerLock(m, 1, 10, 500, 1)
	expectMembership(m, 10, 5, models.RoleOwner)
	expectEntryInsert(m, 2, 1, 10, 5, "BAKI", 200, 700, nil, "", sqlmock.AnyArg(), sqlmock.AnyArg())
	expectBalanceUpdate(m, 1, 700, 1)
	m.ExpectCommit()

	baki, err := service.CreateEntry(ctx, CreateEntryRequest{CustomerID: 1, EntryType: models.EntryTypeBaki, Amount: 200}, 5)
	require.NoError(t, err)
	assert.Equal(t, int64(2), baki.ID)
	assert.Equal(t, int64(700), baki.BalanceAfter)
	assert.Equal(t, dateOf(testNow), baki.EntryDate)

	// PAID 300
	m.ExpectBegin()
	expectCustomerLock(m, 1, 10, 700, 2)
	expectMembership(m, 10, 5, models.RoleOwner)
	expectEntryInsert(m, 3, 1, 10, 5, "PAID", 300, 400, nil, "cash", sqlmock.AnyArg(), sqlmock.AnyArg())
	expectBalanceUpdate(m, 1, 400, 2)
	m.ExpectCommit()

	paid, err := service.CreateEntry(ctx, CreateEntryRequest{CustomerID: 1, EntryType: models.EntryTypePaid, Amount: 300, Notes: "cash"}, 5)
	require.NoError(t, err)
	assert.Equal(t, int64(400), paid.BalanceAfter)

	// Reverse the PAID entry against the current balance.
	expectEntryLoad(m, 3, models.EntryTypePaid, 300, 400, nil)
	expectMembership(m, 10, 5, models.RoleOwner)
	m.ExpectBegin()
	expectCustomerLock(m, 1, 10, 400, 3)
	expectMembership(m, 10, 5, models.RoleOwner)
	m.ExpectQuery("SELECT EXISTS").WithArgs(3).
		WillReturnRows(sqlmock.NewRows([]string{"exists"}).AddRow(false))
	expectEntryInsert(m, 4, 1, 10, 5, "REVERSAL", 300, 700, 3, "Reversal of entry #3", sqlmock.AnyArg(), sqlmock.AnyArg())
	expectBalanceUpdate(m, 1, 700, 3)
	m.ExpectCommit()

	reversal, err := service.ReverseEntry(ctx, 3, 5, "")
	require.NoError(t, err)
	assert.Equal(t, models.EntryTypeReversal, reversal.EntryType)
	assert.Equal(t, int64(300), reversal.Amount)
	assert.Equal(t, int64(700), reversal.BalanceAfter)
	require.NotNil(t, reversal.ReferenceEntryID)
	assert.Equal(t, int64(3), *reversal.ReferenceEntryID)

	assert.NoError(t, m.ExpectationsWereMet())
	assert.Equal(t, []models.AuditAction{
		models.AuditLedgerEntryCreated, models.AuditLedgerBalanceAdjusted,
		models.AuditLedgerEntryCreated, models.AuditLedgerBalanceAdjusted,
		models.AuditLedgerReversal,
	}, audit.actions())
}

func TestLedgerService_CreateEntry(t *testing.T) {
	ctx := context.Background()
	req := CreateEntryRequest{CustomerID: 1, EntryType: models.EntryTypeBaki, Amount: 50}

	for _, role := range []models.Role{models.RoleOwner, models.RoleStaff} {
		t.Run(string(role)+" can write", func(t *testing.T) {
			service, m, _ := newTestLedgerService(t)
			m.ExpectBegin()
			expectCustomerLock(m, 1, 10, 0, 1)
			expectMembership(m, 10, 5, role)
			expectEntryInsert(m, 9, 1, 10, 5, "BAKI", 50, 50, nil, "", sqlmock.AnyArg(), sqlmock.AnyArg())
			expectBalanceUpdate(m, 1, 50, 1)
			m.ExpectCommit()

			entry, err := service.CreateEntry(ctx, req, 5)
			require.NoError(t, err)
			assert.Equal(t, int64(50), entry.BalanceAfter)
			assert.NoError(t, m.ExpectationsWereMet())
		})
	}

	t.Run("viewer is forbidden", func(t *testing.T) {
		service, m, audit := newTestLedgerService(t)
		m.ExpectBegin()
		expectCustomerLock(m, 1, 10, 0, 1)
		expectMembership(m, 10, 5, models.RoleViewer)
		m.ExpectRollback()

		_, err := service.CreateEntry(ctx, req, 5)
		require.Error(t, err)
		assert.True(t, errors.Is(err, ErrForbidden))
		assert.Equal(t, "Only OWNER or STAFF can create ledger entries", err.(*AppError).Message)
		assert.NoError(t, m.ExpectationsWereMet())
		audit.AssertNotCalled(t, "RecordAudit", mock.Anything, mock.Anything)
	})

	t.Run("non-member is forbidden", func(t *testing.T) {
		service, m, _ := newTestLedgerService(t)
		m.ExpectBegin()
		expectCustomerLock(m, 1, 10, 0, 1)
		expectNoMembership(m, 10, 5)
		m.ExpectRollback()

		_, err := service.CreateEntry(ctx, req, 5)
		assert.Equal(t, CodeForbidden, ErrorCode(err))
		assert.NoError(t, m.ExpectationsWereMet())
	})

	t.Run("customer not found", func(t *testing.T) {
		service, m, _ := newTestLedgerService(t)
		m.ExpectBegin()
		m.ExpectQuery(lockCustomerQuery).WithArgs(1).WillReturnRows(sqlmock.NewRows(customerRowCols))
		m.ExpectRollback()

		_, err := service.CreateEntry(ctx, req, 5)
		assert.Equal(t, CodeCustomerNotFound, ErrorCode(err))
		assert.NoError(t, m.ExpectationsWereMet())
	})

	t.Run("explicit entry date is kept", func(t *testing.T) {
		service, m, _ := newTestLedgerService(t)
		date := time.Date(2024, 4, 1, 18, 0, 0, 0, time.UTC)
		m.ExpectBegin()
		expectCustomerLock(m, 1, 10, 100, 4)
		expectMembership(m, 10, 5, models.RoleStaff)
		expectEntryInsert(m, 9, 1, 10, 5, "PAID", 50, 50, nil, "", dateOf(date), testNow)
		expectBalanceUpdate(m, 1, 50, 4)
		m.ExpectCommit()

		entry, err := service.CreateEntry(ctx, CreateEntryRequest{
			CustomerID: 1, EntryType: models.EntryTypePaid, Amount: 50, EntryDate: &date,
		}, 5)
		require.NoError(t, err)
		assert.Equal(t, "2024-04-01", entry.EntryDate.Format("2006-01-02"))
		assert.NoError(t, m.ExpectationsWereMet())
	})

	t.Run("insert failure rolls back", func(t *testing.T) {
		service, m, audit := newTestLedgerService(t)
		m.ExpectBegin()
		expectCustomerLock(m, 1, 10, 0, 1)
		expectMembership(m, 10, 5, models.RoleOwner)
		m.ExpectQuery("INSERT INTO customer_ledger").WillReturnError(errors.New("disk full"))
		m.ExpectRollback()

		_, err := service.CreateEntry(ctx, req, 5)
		require.Error(t, err)
		assert.Equal(t, CodeInternal, ErrorCode(err))
		assert.NoError(t, m.ExpectationsWereMet())
		audit.AssertNotCalled(t, "RecordAudit", mock.Anything, mock.Anything)
	})

	t.Run("optimistic lock failure", func(t *testing.T) {
		service, m, _ := newTestLedgerService(t)
		m.ExpectBegin()
		expectCustomerLock(m, 1, 10, 0, 1)
		expectMembership(m, 10, 5, models.RoleOwner)
		expectEntryInsert(m, 9, 1, 10, 5, "BAKI", 50, 50, nil, "", sqlmock.AnyArg(), sqlmock.AnyArg())
		m.ExpectExec(updateBalanceExec).WillReturnResult(sqlmock.NewResult(0, 0))
		m.ExpectRollback()

		_, err := service.CreateEntry(ctx, req, 5)
		require.Error(t, err)
		assert.Contains(t, err.Error(), "optimistic lock failed")
		assert.NoError(t, m.ExpectationsWereMet())
	})

	t.Run("rejects non-positive amount and reversal type", func(t *testing.T) {
		service, m, _ := newTestLedgerService(t)

		_, err := service.CreateEntry(ctx, CreateEntryRequest{CustomerID: 1, EntryType: models.EntryTypeBaki}, 5)
		assert.Equal(t, CodeValidation, ErrorCode(err))

		_, err = service.CreateEntry(ctx, CreateEntryRequest{CustomerID: 1, EntryType: models.EntryTypeReversal, Amount: 5}, 5)
		assert.Equal(t, CodeValidation, ErrorCode(err))

		_, err = service.CreateEntry(ctx, CreateEntryRequest{CustomerID: 1, EntryType: "CREDIT", Amount: 5}, 5)
		assert.Equal(t, CodeValidation, ErrorCode(err))
		assert.NoError(t, m.ExpectationsWereMet())
	})
}

func TestLedgerService_CreateEntryConcurrent(t *testing.T) {
	service, m, _ := newTestLedgerService(t)
	ctx := context.Background()

	// The keyed lock admits one caller at a time, so the second transaction
	// sees the first one's committed balance.
	m.ExpectBegin()
	expectCustomerLock(m, 1, 10, 0, 1)
	expectMembership(m, 10, 5, models.RoleStaff)
	expectEntryInsert(m, 2, 1, 10, 5, "BAKI", 50, 50, nil, "", sqlmock.AnyArg(), sqlmock.AnyArg())
	expectBalanceUpdate(m, 1, 50, 1)
	m.ExpectCommit()
	m.ExpectBegin()
	expectCustomerLock(m, 1, 10, 50, 2)
	expectMembership(m, 10, 5, models.RoleStaff)
	expectEntryInsert(m, 3, 1, 10, 5, "BAKI", 50, 100, nil, "", sqlmock.AnyArg(), sqlmock.AnyArg())
	expectBalanceUpdate(m, 1, 100, 2)
	m.ExpectCommit()

	var (
		wg       sync.WaitGroup
		mu       sync.Mutex
		balances []int64
	)
	for i := 0; i < 2; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			entry, err := service.CreateEntry(ctx, CreateEntryRequest{CustomerID: 1, EntryType: models.EntryTypeBaki, Amount: 50}, 5)
			if !assert.NoError(t, err) {
				return
			}
			mu.Lock()
			balances = append(balances, entry.BalanceAfter)
			mu.Unlock()
		}()
	}
	wg.Wait()

	assert.ElementsMatch(t, []int64{50, 100}, balances)
	assert.NoError(t, m.ExpectationsWereMet())
	assert.Equal(t, 0, service.locks.size())
}

func TestLedgerService_ReverseEntry(t *testing.T) {
	ctx := context.Background()

	t.Run("reversal of a reversal", func(t *testing.T) {
		service, m, _ := newTestLedgerService(t)
		expectEntryLoad(m, 4, models.EntryTypeReversal, 300, 700, 3)
		expectMembership(m, 10, 5, models.RoleOwner)

		_, err := service.ReverseEntry(ctx, 4, 5, "")
		assert.True(t, errors.Is(err, ErrInvalidReversal))
		assert.NoError(t, m.ExpectationsWereMet())
	})

	t.Run("already reversed", func(t *testing.T) {
		service, m, _ := newTestLedgerService(t)
		expectEntryLoad(m, 3, models.EntryTypePaid, 300, 400, nil)
		expectMembership(m, 10, 5, models.RoleStaff)
		m.ExpectBegin()
		expectCustomerLock(m, 1, 10, 700, 4)
		expectMembership(m, 10, 5, models.RoleStaff)
		m.ExpectQuery("SELECT EXISTS").WithArgs(3).
			WillReturnRows(sqlmock.NewRows([]string{"exists"}).AddRow(true))
		m.ExpectRollback()

		_, err := service.ReverseEntry(ctx, 3, 5, "")
		assert.Equal(t, CodeInvalidReversal, ErrorCode(err))
		assert.Equal(t, "Ledger entry has already been reversed", err.(*AppError).Message)
		assert.NoError(t, m.ExpectationsWereMet())
	})

	t.Run("entry not found", func(t *testing.T) {
		service, m, _ := newTestLedgerService(t)
		m.ExpectQuery(getEntryQuery).WithArgs(99).WillReturnRows(sqlmock.NewRows(ledgerRowCols))

		_, err := service.ReverseEntry(ctx, 99, 5, "")
		assert.Equal(t, CodeLedgerNotFound, ErrorCode(err))
		assert.NoError(t, m.ExpectationsWereMet())
	})

	t.Run("outsider sees not found", func(t *testing.T) {
		service, m, _ := newTestLedgerService(t)
		expectEntryLoad(m, 3, models.EntryTypePaid, 300, 400, nil)
		expectNoMembership(m, 10, 8)

		_, err := service.ReverseEntry(ctx, 3, 8, "")
		assert.Equal(t, CodeLedgerNotFound, ErrorCode(err))
		assert.NoError(t, m.ExpectationsWereMet())
	})

	t.Run("viewer is forbidden", func(t *testing.T) {
		service, m, _ := newTestLedgerService(t)
		expectEntryLoad(m, 3, models.EntryTypePaid, 300, 400, nil)
		expectMembership(m, 10, 5, models.RoleViewer)

		_, err := service.ReverseEntry(ctx, 3, 5, "")
		assert.Equal(t, CodeForbidden, ErrorCode(err))
		assert.NoError(t, m.ExpectationsWereMet())
	})

	t.Run("membership removed while waiting for the lock", func(t *testing.T) {
		service, m, audit := newTestLedgerService(t)
		expectEntryLoad(m, 3, models.EntryTypePaid, 300, 400, nil)
		expectMembership(m, 10, 5, models.RoleStaff)
		m.ExpectBegin()
		expectCustomerLock(m, 1, 10, 400, 3)
		expectNoMembership(m, 10, 5)
		m.ExpectRollback()

		_, err := service.ReverseEntry(ctx, 3, 5, "")
		assert.Equal(t, CodeLedgerNotFound, ErrorCode(err))
		assert.NoError(t, m.ExpectationsWereMet())
		audit.AssertNotCalled(t, "RecordAudit", mock.Anything, mock.Anything)
	})

	t.Run("demoted to viewer while waiting for the lock", func(t *testing.T) {
		service, m, _ := newTestLedgerService(t)
		expectEntryLoad(m, 3, models.EntryTypePaid, 300, 400, nil)
		expectMembership(m, 10, 5, models.RoleStaff)
		m.ExpectBegin()
		expectCustomerLock(m, 1, 10, 400, 3)
		expectMembership(m, 10, 5, models.RoleViewer)
		m.ExpectRollback()

		_, err := service.ReverseEntry(ctx, 3, 5, "")
		assert.Equal(t, CodeForbidden, ErrorCode(err))
		assert.NoError(t, m.ExpectationsWereMet())
	})

	t.Run("baki reversal subtracts from current balance", func(t *testing.T) {
		service, m, _ := newTestLedgerService(t)
		expectEntryLoad(m, 2, models.EntryTypeBaki, 200, 700, nil)
		expectMembership(m, 10, 5, models.RoleOwner)
		m.ExpectBegin()
		expectCustomerLock(m, 1, 10, 400, 3)
		expectMembership(m, 10, 5, models.RoleOwner)
		m.ExpectQuery("SELECT EXISTS").WithArgs(2).
			WillReturnRows(sqlmock.NewRows([]string{"exists"}).AddRow(false))
		expectEntryInsert(m, 5, 1, 10, 5, "REVERSAL", 200, 200, 2, "wrong customer", sqlmock.AnyArg(), sqlmock.AnyArg())
		expectBalanceUpdate(m, 1, 200, 3)
		m.ExpectCommit()

		reversal, err := service.ReverseEntry(ctx, 2, 5, "wrong customer")
		require.NoError(t, err)
		assert.Equal(t, int64(200), reversal.BalanceAfter)
		assert.Equal(t, "wrong customer", reversal.Notes)
		assert.NoError(t, m.ExpectationsWereMet())
	})
}

func TestLedgerService_CreateOpeningEntryTx(t *testing.T) {
	ctx := context.Background()
	customer := &models.Customer{ID: 1, ShopID: 10, OpeningBalance: 500, CurrentBalance: 500}

	t.Run("writes synthetic baki", func(t *testing.T) {
		service, m, _ := newTestLedgerService(t)
		m.ExpectBegin()
		expectEntryInsert(m, 1, 1, 10, 5, "BAKI", 500, 500, nil, "Opening balance for new customer", sqlmock.AnyArg(), sqlmock.AnyArg())

		tx, err := service.db.Beginx()
		require.NoError(t, err)

		entry, err := service.CreateOpeningEntryTx(ctx, tx, customer, 5)
		require.NoError(t, err)
		assert.Equal(t, int64(500), entry.Amount)
		assert.Equal(t, int64(500), entry.BalanceAfter)
		assert.Equal(t, models.EntryTypeBaki, entry.EntryType)
		assert.NoError(t, m.ExpectationsWereMet())
	})

	t.Run("failure is ledger creation failed", func(t *testing.T) {
		service, m, _ := newTestLedgerService(t)
		m.ExpectBegin()
		m.ExpectQuery("INSERT INTO customer_ledger").WillReturnError(errors.New("constraint"))

		tx, err := service.db.Beginx()
		require.NoError(t, err)

		_, err = service.CreateOpeningEntryTx(ctx, tx, customer, 5)
		assert.True(t, errors.Is(err, ErrLedgerCreationFailed))
		assert.NoError(t, m.ExpectationsWereMet())
	})
}

func TestLedgerService_Summary(t *testing.T) {
	ctx := context.Background()
	entryRows := func() *sqlmock.Rows {
		return sqlmock.NewRows(ledgerRowCols).
			AddRow(1, 1, 10, 5, "BAKI", 500, 500, nil, "", day("2024-05-01"), testNow).
			AddRow(2, 1, 10, 5, "PAID", 300, 200, nil, "", day("2024-05-02"), testNow).
			AddRow(3, 1, 10, 5, "REVERSAL", 300, 500, 2, "", day("2024-05-03"), testNow).
			AddRow(4, 2, 11, 5, "PAID", 100, -100, nil, "", day("2024-05-03"), testNow)
	}

	t.Run("all accessible shops", func(t *testing.T) {
		service, m, _ := newTestLedgerService(t)
		m.ExpectQuery("SELECT shop_id FROM shop_users").WithArgs(5).
			WillReturnRows(sqlmock.NewRows([]string{"shop_id"}).AddRow(10).AddRow(11))
		m.ExpectQuery(`FROM customer_ledger WHERE shop_id = ANY\(\$1\)`).WillReturnRows(entryRows())

		summary, err := service.Summary(ctx, 0, 5, models.LedgerFilter{})
		require.NoError(t, err)
		assert.Equal(t, models.LedgerSummary{TotalDebit: 500, TotalCredit: 100, NetBalance: 400, TotalEntries: 2}, summary)
		assert.NoError(t, m.ExpectationsWereMet())
	})

	t.Run("user without shops", func(t *testing.T) {
		service, m, _ := newTestLedgerService(t)
		m.ExpectQuery("SELECT shop_id FROM shop_users").WithArgs(5).
			WillReturnRows(sqlmock.NewRows([]string{"shop_id"}))

		summary, err := service.Summary(ctx, 0, 5, models.LedgerFilter{})
		require.NoError(t, err)
		assert.Equal(t, models.LedgerSummary{}, summary)
		assert.NoError(t, m.ExpectationsWereMet())
	})

	t.Run("single shop with customer filter", func(t *testing.T) {
		service, m, _ := newTestLedgerService(t)
		expectMembership(m, 10, 5, models.RoleViewer)
		m.ExpectQuery(`FROM customer_ledger WHERE shop_id = ANY\(\$1\)`).WillReturnRows(entryRows())

		summary, err := service.Summary(ctx, 10, 5, models.LedgerFilter{CustomerID: 1})
		require.NoError(t, err)
		assert.Equal(t, int64(500), summary.NetBalance)
		assert.Equal(t, int64(1), summary.TotalEntries)
		assert.NoError(t, m.ExpectationsWereMet())
	})

	t.Run("foreign shop", func(t *testing.T) {
		service, m, _ := newTestLedgerService(t)
		expectNoMembership(m, 12, 5)

		_, err := service.Summary(ctx, 12, 5, models.LedgerFilter{})
		assert.Equal(t, CodeShopNotFound, ErrorCode(err))
	})
}

func TestLedgerService_Reads(t *testing.T) {
	ctx := context.Background()

	t.Run("list by shop newest first", func(t *testing.T) {
		service, m, _ := newTestLedgerService(t)
		expectMembership(m, 10, 5, models.RoleViewer)
		m.ExpectQuery(`FROM customer_ledger WHERE shop_id = ANY\(\$1\)`).WillReturnRows(
			sqlmock.NewRows(ledgerRowCols).
				AddRow(1, 1, 10, 5, "BAKI", 500, 500, nil, "", day("2024-05-01"), testNow).
				AddRow(2, 1, 10, 5, "PAID", 300, 200, nil, "", day("2024-05-02"), testNow).
				AddRow(3, 1, 10, 5, "REVERSAL", 300, 500, 2, "", day("2024-05-03"), testNow))

		entries, err := service.ListByShop(ctx, 10, 5, models.LedgerFilter{})
		require.NoError(t, err)
		require.Len(t, entries, 3)
		assert.Equal(t, int64(3), entries[0].ID)
		assert.Equal(t, int64(1), entries[2].ID)
		assert.NoError(t, m.ExpectationsWereMet())
	})

	t.Run("get entry hides foreign shops", func(t *testing.T) {
		service, m, _ := newTestLedgerService(t)
		expectEntryLoad(m, 3, models.EntryTypePaid, 300, 400, nil)
		expectNoMembership(m, 10, 8)

		_, err := service.GetEntry(ctx, 3, 8)
		assert.Equal(t, CodeLedgerNotFound, ErrorCode(err))
	})

	t.Run("list by customer", func(t *testing.T) {
		service, m, _ := newTestLedgerService(t)
		m.ExpectQuery(`SELECT shop_id FROM customer WHERE id = \$1`).WithArgs(1).
			WillReturnRows(sqlmock.NewRows([]string{"shop_id"}).AddRow(10))
		expectMembership(m, 10, 5, models.RoleStaff)
		m.ExpectQuery(`FROM customer_ledger WHERE customer_id = \$1`).WithArgs(1).
			WillReturnRows(sqlmock.NewRows(ledgerRowCols).
				AddRow(1, 1, 10, 5, "BAKI", 500, 500, nil, "", day("2024-05-01"), testNow))

		entries, err := service.ListByCustomer(ctx, 1, 5)
		require.NoError(t, err)
		assert.Len(t, entries, 1)
		assert.NoError(t, m.ExpectationsWereMet())
	})
}

func TestLedgerService_ListPaginated(t *testing.T) {
	ctx := context.Background()
	entryRows := func() *sqlmock.Rows {
		return sqlmock.NewRows(ledgerRowCols).
			AddRow(1, 1, 10, 5, "BAKI", 500, 500, nil, "", day("2024-05-01"), testNow).
			AddRow(2, 1, 10, 5, "PAID", 300, 200, nil, "", day("2024-05-02"), testNow).
			AddRow(3, 1, 10, 5, "REVERSAL", 300, 500, 2, "", day("2024-05-03"), testNow).
			AddRow(4, 2, 11, 5, "PAID", 100, -100, nil, "", day("2024-05-03"), testNow)
	}
	ids := func(entries []models.LedgerEntry) []int64 {
		out := make([]int64, 0, len(entries))
		for _, e := range entries {
			out = append(out, e.ID)
		}
		return out
	}

	t.Run("pages across accessible shops newest first", func(t *testing.T) {
		service, m, _ := newTestLedgerService(t)
		m.ExpectQuery("SELECT shop_id FROM shop_users").WithArgs(5).
			WillReturnRows(sqlmock.NewRows([]string{"shop_id"}).AddRow(10).AddRow(11))
		m.ExpectQuery(`FROM customer_ledger WHERE shop_id = ANY\(\$1\)`).WillReturnRows(entryRows())

		page, err := service.ListPaginated(ctx, 0, 5, models.LedgerFilter{}, models.PageRequest{Page: 0, Size: 3})
		require.NoError(t, err)
		assert.Equal(t, []int64{4, 3, 2}, ids(page.Content))
		assert.Equal(t, int64(4), page.TotalElements)
		assert.Equal(t, 2, page.TotalPages)
		assert.NoError(t, m.ExpectationsWereMet())
	})

	t.Run("last partial page", func(t *testing.T) {
		service, m, _ := newTestLedgerService(t)
		expectMembership(m, 10, 5, models.RoleViewer)
		m.ExpectQuery(`FROM customer_ledger WHERE shop_id = ANY\(\$1\)`).WillReturnRows(entryRows())

		page, err := service.ListPaginated(ctx, 10, 5, models.LedgerFilter{}, models.PageRequest{Page: 1, Size: 3})
		require.NoError(t, err)
		assert.Equal(t, []int64{1}, ids(page.Content))
	})

	t.Run("page past the end is empty", func(t *testing.T) {
		service, m, _ := newTestLedgerService(t)
		expectMembership(m, 10, 5, models.RoleViewer)
		m.ExpectQuery(`FROM customer_ledger WHERE shop_id = ANY\(\$1\)`).WillReturnRows(entryRows())

		page, err := service.ListPaginated(ctx, 10, 5, models.LedgerFilter{}, models.PageRequest{Page: 9, Size: 3})
		require.NoError(t, err)
		assert.Empty(t, page.Content)
		assert.Equal(t, int64(4), page.TotalElements)
	})

	t.Run("filters like the summary", func(t *testing.T) {
		service, m, _ := newTestLedgerService(t)
		expectMembership(m, 10, 5, models.RoleViewer)
		m.ExpectQuery(`FROM customer_ledger WHERE shop_id = ANY\(\$1\)`).WillReturnRows(entryRows())

		start := day("2024-05-02")
		filter := models.LedgerFilter{EntryType: models.EntryTypePaid, StartDate: &start}
		page, err := service.ListPaginated(ctx, 10, 5, filter, models.PageRequest{Page: 0, Size: 20})
		require.NoError(t, err)
		assert.Equal(t, []int64{4, 2}, ids(page.Content))
	})

	t.Run("user without shops", func(t *testing.T) {
		service, m, _ := newTestLedgerService(t)
		m.ExpectQuery("SELECT shop_id FROM shop_users").WithArgs(5).
			WillReturnRows(sqlmock.NewRows([]string{"shop_id"}))

		page, err := service.ListPaginated(ctx, 0, 5, models.LedgerFilter{}, models.PageRequest{Page: -1})
		require.NoError(t, err)
		assert.Empty(t, page.Content)
		assert.Zero(t, page.TotalPages)
		assert.Equal(t, 0, page.Page)
		assert.Equal(t, 20, page.Size)
		assert.NoError(t, m.ExpectationsWereMet())
	})

	t.Run("foreign shop", func(t *testing.T) {
		service, m, _ := newTestLedgerService(t)
		expectNoMembership(m, 12, 5)

		_, err := service.ListPaginated(ctx, 12, 5, models.LedgerFilter{}, models.PageRequest{Page: 0, Size: 20})
		assert.Equal(t, CodeShopNotFound, ErrorCode(err))
	})
}

func TestLedgerService_ListForUser(t *testing.T) {
	service, m, _ := newTestLedgerService(t)
	m.ExpectQuery(`JOIN shop_users su ON su.shop_id = cl.shop_id WHERE su.user_id = \$1 AND su.status = 'ACTIVE' ORDER BY cl.entry_date DESC`).
		WithArgs(5).
		WillReturnRows(sqlmock.NewRows(ledgerRowCols).
			AddRow(4, 2, 11, 5, "PAID", 100, -100, nil, "", day("2024-05-03"), testNow).
			AddRow(1, 1, 10, 5, "BAKI", 500, 500, nil, "", day("2024-05-01"), testNow))

	entries, err := service.ListForUser(context.Background(), 5)
	require.NoError(t, err)
	require.Len(t, entries, 2)
	assert.Equal(t, int64(11), entries[0].ShopID)
	assert.NoError(t, m.ExpectationsWereMet())
}
