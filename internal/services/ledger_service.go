package services

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"log"
	"time"

	"github.com/duebook/backend/internal/config"
	"github.com/duebook/backend/internal/metrics"
	"github.com/duebook/backend/internal/models"
	"github.com/jmoiron/sqlx"
	"github.com/lib/pq"
)

const ledgerColumns = `id, customer_id, shop_id, created_by_user_id, entry_type, amount,
	balance_after, reference_entry_id, notes, entry_date, created_at`

const customerColumns = `id, shop_id, name, entity_name, phone, opening_balance,
	current_balance, is_active, version, created_at, updated_at`

// MetricsInvalidator drops cached dashboard data for a shop after a write.
type MetricsInvalidator interface {
	InvalidateShop(ctx context.Context, shopID int64)
}

// CreateEntryRequest is a new BAKI or PAID entry. Amount is in paisa.
type CreateEntryRequest struct {
	CustomerID int64
	EntryType  models.EntryType
	Amount     int64
	Notes      string
	EntryDate  *time.Time
}

// LedgerService applies ledger entries to customer balances. Every mutation
// appends an entry and rewrites the balance inside one transaction while the
// customer row is locked.
type LedgerService struct {
	db          *sqlx.DB
	guard       *AccessGuard
	audit       AuditRecorder
	invalidator MetricsInvalidator
	config      *config.LedgerConfig
	locks       *keyedMutex
	now         func() time.Time
}

func NewLedgerService(db *sqlx.DB, guard *AccessGuard, audit AuditRecorder, cfg *config.LedgerConfig) *LedgerService {
	return &LedgerService{
		db:     db,
		guard:  guard,
		audit:  audit,
		config: cfg,
		locks:  newKeyedMutex(),
		now:    time.Now,
	}
}

// SetInvalidator wires the dashboard cache; nil disables invalidation.
func (s *LedgerService) SetInvalidator(inv MetricsInvalidator) {
	s.invalidator = inv
}

// CreateEntry records a BAKI or PAID entry and moves the customer's balance.
func (s *LedgerService) CreateEntry(ctx context.Context, req CreateEntryRequest, userID int64) (*models.LedgerEntry, error) {
	if !req.EntryType.Valid() || req.EntryType == models.EntryTypeReversal {
		return nil, newAppError(CodeValidation, "entryType must be BAKI or PAID")
	}
	if req.Amount <= 0 {
		return nil, newAppError(CodeValidation, "amount must be greater than zero")
	}

	start := time.Now()
	unlock := s.locks.Lock(req.CustomerID)
	defer unlock()

	tx, err := s.db.BeginTxx(ctx, nil)
	if err != nil {
		return nil, fmt.Errorf("begin ledger transaction: %w", err)
	}
	defer tx.Rollback()

	customer, err := s.lockCustomer(ctx, tx, req.CustomerID)
	if err != nil {
		return nil, s.fail("create", err)
	}

	membership, err := s.guard.authorize(ctx, tx, customer.ShopID, userID)
	if err != nil && !errors.Is(err, ErrForbidden) {
		return nil, s.fail("create", err)
	}
	if !CanWrite(membership) {
		return nil, s.fail("create", forbidden("Only OWNER or STAFF can create ledger entries"))
	}

	oldBalance := customer.CurrentBalance
	now := s.now()
	entryDate := dateOf(now)
	if req.EntryDate != nil {
		entryDate = dateOf(*req.EntryDate)
	}

	entry := &models.LedgerEntry{
		CustomerID:      customer.ID,
		ShopID:          customer.ShopID,
		CreatedByUserID: userID,
		EntryType:       req.EntryType,
		Amount:          req.Amount,
		BalanceAfter:    applyDelta(oldBalance, req.EntryType, req.Amount),
		Notes:           req.Notes,
		EntryDate:       entryDate,
		CreatedAt:       now,
	}

	if err := s.insertEntry(ctx, tx, entry); err != nil {
		return nil, s.fail("create", err)
	}
	if err := s.updateCustomerBalance(ctx, tx, customer.ID, entry.BalanceAfter, customer.Version, now); err != nil {
		return nil, s.fail("create", err)
	}
	if err := tx.Commit(); err != nil {
		return nil, s.fail("create", fmt.Errorf("commit ledger entry: %w", err))
	}

	metrics.LedgerMutationDuration.WithLabelValues("create").Observe(time.Since(start).Seconds())
	metrics.LedgerEntriesCreated.WithLabelValues(string(entry.EntryType)).Inc()
	log.Printf("[LEDGER] %s entry %d for customer %d: %d -> %d", entry.EntryType, entry.ID, customer.ID, oldBalance, entry.BalanceAfter)

	s.recordAudit(ctx, models.AuditRecord{
		ShopID:     entry.ShopID,
		EntityType: models.EntityLedger,
		EntityID:   entry.ID,
		Action:     models.AuditLedgerEntryCreated,
		UserID:     userID,
		NewValue:   entry,
	})
	s.recordAudit(ctx, models.AuditRecord{
		ShopID:     customer.ShopID,
		EntityType: models.EntityCustomer,
		EntityID:   customer.ID,
		Action:     models.AuditLedgerBalanceAdjusted,
		UserID:     userID,
		OldValue:   map[string]any{"balance": oldBalance},
		NewValue:   map[string]any{"balance": entry.BalanceAfter, "amount": entry.Amount, "type": entry.EntryType},
	})
	s.invalidate(ctx, entry.ShopID)

	return entry, nil
}

// ReverseEntry appends a REVERSAL that undoes entryID against the customer's
// current balance. Entries recorded after the original stay in effect.
func (s *LedgerService) ReverseEntry(ctx context.Context, entryID, userID int64, notes string) (*models.LedgerEntry, error) {
	original, err := s.getEntry(ctx, s.db, entryID)
	if err != nil {
		return nil, s.fail("reverse", err)
	}

	if err := s.authorizeReversal(ctx, s.db, original.ShopID, userID); err != nil {
		return nil, s.fail("reverse", err)
	}
	if original.IsReversal() {
		return nil, s.fail("reverse", ErrInvalidReversal)
	}

	start := time.Now()
	unlock := s.locks.Lock(original.CustomerID)
	defer unlock()

	tx, err := s.db.BeginTxx(ctx, nil)
	if err != nil {
		return nil, fmt.Errorf("begin reversal transaction: %w", err)
	}
	defer tx.Rollback()

	customer, err := s.lockCustomer(ctx, tx, original.CustomerID)
	if err != nil {
		return nil, s.fail("reverse", err)
	}

	// Membership may have changed while waiting for the row lock.
	if err := s.authorizeReversal(ctx, tx, customer.ShopID, userID); err != nil {
		return nil, s.fail("reverse", err)
	}

	var alreadyReversed bool
	err = tx.QueryRowContext(ctx, `
		SELECT EXISTS (SELECT 1 FROM customer_ledger WHERE reference_entry_id = $1)`,
		original.ID).Scan(&alreadyReversed)
	if err != nil {
		return nil, s.fail("reverse", fmt.Errorf("check reversal of entry %d: %w", original.ID, err))
	}
	if alreadyReversed {
		return nil, s.fail("reverse", invalidReversal("Ledger entry has already been reversed"))
	}

	if notes == "" {
		notes = fmt.Sprintf("Reversal of entry #%d", original.ID)
	}
	now := s.now()
	reference := original.ID
	reversal := &models.LedgerEntry{
		CustomerID:       customer.ID,
		ShopID:           customer.ShopID,
		CreatedByUserID:  userID,
		EntryType:        models.EntryTypeReversal,
		Amount:           original.Amount,
		BalanceAfter:     reverseDelta(customer.CurrentBalance, original),
		ReferenceEntryID: &reference,
		Notes:            notes,
		EntryDate:        dateOf(now),
		CreatedAt:        now,
	}

	if err := s.insertEntry(ctx, tx, reversal); err != nil {
		return nil, s.fail("reverse", err)
	}
	if err := s.updateCustomerBalance(ctx, tx, customer.ID, reversal.BalanceAfter, customer.Version, now); err != nil {
		return nil, s.fail("reverse", err)
	}
	if err := tx.Commit(); err != nil {
		return nil, s.fail("reverse", fmt.Errorf("commit reversal: %w", err))
	}

	metrics.LedgerMutationDuration.WithLabelValues("reverse").Observe(time.Since(start).Seconds())
	metrics.LedgerEntriesCreated.WithLabelValues(string(models.EntryTypeReversal)).Inc()
	log.Printf("[LEDGER] Reversed entry %d with %d for customer %d: %d -> %d",
		original.ID, reversal.ID, customer.ID, customer.CurrentBalance, reversal.BalanceAfter)

	s.recordAudit(ctx, models.AuditRecord{
		ShopID:     reversal.ShopID,
		EntityType: models.EntityLedger,
		EntityID:   reversal.ID,
		Action:     models.AuditLedgerReversal,
		UserID:     userID,
		OldValue:   original,
		NewValue:   reversal,
	})
	s.invalidate(ctx, reversal.ShopID)

	return reversal, nil
}

// authorizeReversal hides entries of foreign shops as LEDGER_NOT_FOUND and
// rejects members without write access.
func (s *LedgerService) authorizeReversal(ctx context.Context, q sqlx.QueryerContext, shopID, userID int64) error {
	membership, err := s.guard.authorize(ctx, q, shopID, userID)
	if errors.Is(err, ErrForbidden) {
		return ErrLedgerNotFound
	}
	if err != nil {
		return err
	}
	if !CanWrite(membership) {
		return forbidden("You don't have permission to reverse ledger entries")
	}
	return nil
}

// CreateOpeningEntryTx writes the synthetic BAKI entry for a newly inserted
// customer inside the caller's transaction. Any failure is reported as
// LEDGER_CREATION_FAILED so the customer insert rolls back with it.
func (s *LedgerService) CreateOpeningEntryTx(ctx context.Context, tx *sqlx.Tx, customer *models.Customer, userID int64) (*models.LedgerEntry, error) {
	now := s.now()
	entry := &models.LedgerEntry{
		CustomerID:      customer.ID,
		ShopID:          customer.ShopID,
		CreatedByUserID: userID,
		EntryType:       models.EntryTypeBaki,
		Amount:          customer.OpeningBalance,
		BalanceAfter:    customer.CurrentBalance,
		Notes:           s.config.OpeningBalanceNote,
		EntryDate:       dateOf(now),
		CreatedAt:       now,
	}

	if err := s.insertEntry(ctx, tx, entry); err != nil {
		metrics.LedgerMutationFailures.WithLabelValues("opening", CodeLedgerCreationFailed).Inc()
		return nil, &AppError{
			Code:    CodeLedgerCreationFailed,
			Message: "Failed to create opening balance ledger entry",
			Err:     err,
		}
	}

	metrics.LedgerEntriesCreated.WithLabelValues(string(entry.EntryType)).Inc()
	return entry, nil
}

// GetEntry returns one entry visible to the caller.
func (s *LedgerService) GetEntry(ctx context.Context, entryID, userID int64) (*models.LedgerEntry, error) {
	entry, err := s.getEntry(ctx, s.db, entryID)
	if err != nil {
		return nil, err
	}
	if _, err := s.guard.Authorize(ctx, entry.ShopID, userID); err != nil {
		if errors.Is(err, ErrForbidden) {
			return nil, ErrLedgerNotFound
		}
		return nil, err
	}
	return entry, nil
}

// ListByCustomer returns a customer's entries, oldest first.
func (s *LedgerService) ListByCustomer(ctx context.Context, customerID, userID int64) ([]models.LedgerEntry, error) {
	var shopID int64
	err := s.db.GetContext(ctx, &shopID, `SELECT shop_id FROM customer WHERE id = $1`, customerID)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrCustomerNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("load customer %d: %w", customerID, err)
	}
	if _, err := s.guard.Authorize(ctx, shopID, userID); err != nil {
		if errors.Is(err, ErrForbidden) {
			return nil, ErrCustomerNotFound
		}
		return nil, err
	}

	entries := []models.LedgerEntry{}
	err = s.db.SelectContext(ctx, &entries,
		`SELECT `+ledgerColumns+` FROM customer_ledger WHERE customer_id = $1 ORDER BY entry_date, id`, customerID)
	if err != nil {
		return nil, fmt.Errorf("list entries for customer %d: %w", customerID, err)
	}
	return entries, nil
}

// ListByShop returns the filtered raw entries of a shop, newest first.
// Reversed entries and their reversals are both included.
func (s *LedgerService) ListByShop(ctx context.Context, shopID, userID int64, f models.LedgerFilter) ([]models.LedgerEntry, error) {
	if _, err := s.guard.Authorize(ctx, shopID, userID); err != nil {
		if errors.Is(err, ErrForbidden) {
			return nil, ErrShopNotFound
		}
		return nil, err
	}

	entries, err := selectEntriesByShop(ctx, s.db, []int64{shopID})
	if err != nil {
		return nil, err
	}
	return newestFirst(FilterEntries(entries, f)), nil
}

// ListPaginated pages through the filtered raw entries of one shop, or of
// every accessible shop when shopID is 0, newest first. Filtering matches
// Summary so a page and its summary card always agree.
func (s *LedgerService) ListPaginated(ctx context.Context, shopID, userID int64, f models.LedgerFilter, p models.PageRequest) (models.Page[models.LedgerEntry], error) {
	p = s.config.PageRequest(p.Page, p.Size)
	shopIDs, err := s.guard.ResolveShops(ctx, shopID, userID)
	if err != nil {
		return models.Page[models.LedgerEntry]{}, err
	}
	if len(shopIDs) == 0 {
		return models.NewPage[models.LedgerEntry](nil, p, 0), nil
	}

	entries, err := selectEntriesByShop(ctx, s.db, shopIDs)
	if err != nil {
		return models.Page[models.LedgerEntry]{}, err
	}
	filtered := newestFirst(FilterEntries(entries, f))

	total := int64(len(filtered))
	from := min(p.Offset(), len(filtered))
	to := min(from+p.Size, len(filtered))
	return models.NewPage(filtered[from:to], p, total), nil
}

// ListForUser returns every entry in the shops where the user is active,
// newest first.
func (s *LedgerService) ListForUser(ctx context.Context, userID int64) ([]models.LedgerEntry, error) {
	entries := []models.LedgerEntry{}
	err := s.db.SelectContext(ctx, &entries, `
		SELECT cl.id, cl.customer_id, cl.shop_id, cl.created_by_user_id, cl.entry_type, cl.amount,
			cl.balance_after, cl.reference_entry_id, cl.notes, cl.entry_date, cl.created_at
		FROM customer_ledger cl
		JOIN shop_users su ON su.shop_id = cl.shop_id
		WHERE su.user_id = $1 AND su.status = 'ACTIVE'
		ORDER BY cl.entry_date DESC, cl.created_at DESC, cl.id DESC`, userID)
	if err != nil {
		return nil, fmt.Errorf("list entries for user %d: %w", userID, err)
	}
	return entries, nil
}

// Summary totals the effective entries of one shop, or of every shop the
// caller belongs to when shopID is 0.
func (s *LedgerService) Summary(ctx context.Context, shopID, userID int64, f models.LedgerFilter) (models.LedgerSummary, error) {
	shopIDs, err := s.guard.ResolveShops(ctx, shopID, userID)
	if err != nil {
		return models.LedgerSummary{}, err
	}
	if len(shopIDs) == 0 {
		return models.LedgerSummary{}, nil
	}

	entries, err := selectEntriesByShop(ctx, s.db, shopIDs)
	if err != nil {
		return models.LedgerSummary{}, err
	}
	return Summarize(entries, f), nil
}

func selectEntriesByShop(ctx context.Context, db *sqlx.DB, shopIDs []int64) ([]models.LedgerEntry, error) {
	entries := []models.LedgerEntry{}
	err := db.SelectContext(ctx, &entries,
		`SELECT `+ledgerColumns+` FROM customer_ledger WHERE shop_id = ANY($1) ORDER BY entry_date, id`,
		pq.Array(shopIDs))
	if err != nil {
		return nil, fmt.Errorf("load ledger entries: %w", err)
	}
	return entries, nil
}

// newestFirst reverses entries loaded in (entry_date, id) order.
func newestFirst(entries []models.LedgerEntry) []models.LedgerEntry {
	for i, j := 0, len(entries)-1; i < j; i, j = i+1, j-1 {
		entries[i], entries[j] = entries[j], entries[i]
	}
	return entries
}

func (s *LedgerService) getEntry(ctx context.Context, q sqlx.QueryerContext, entryID int64) (*models.LedgerEntry, error) {
	var entry models.LedgerEntry
	err := sqlx.GetContext(ctx, q, &entry, `SELECT `+ledgerColumns+` FROM customer_ledger WHERE id = $1`, entryID)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrLedgerNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("load ledger entry %d: %w", entryID, err)
	}
	return &entry, nil
}

// lockCustomer reads the customer row FOR UPDATE; concurrent writers for the
// same customer wait here until the holder commits.
func (s *LedgerService) lockCustomer(ctx context.Context, tx *sqlx.Tx, customerID int64) (*models.Customer, error) {
	var customer models.Customer
	err := tx.GetContext(ctx, &customer, `SELECT `+customerColumns+` FROM customer WHERE id = $1 FOR UPDATE`, customerID)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrCustomerNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("lock customer %d: %w", customerID, err)
	}
	return &customer, nil
}

func (s *LedgerService) insertEntry(ctx context.Context, tx *sqlx.Tx, entry *models.LedgerEntry) error {
	err := tx.QueryRowContext(ctx, `
		INSERT INTO customer_ledger (customer_id, shop_id, created_by_user_id, entry_type, amount,
			balance_after, reference_entry_id, notes, entry_date, created_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10)
		RETURNING id`,
		entry.CustomerID, entry.ShopID, entry.CreatedByUserID, string(entry.EntryType), entry.Amount,
		entry.BalanceAfter, entry.ReferenceEntryID, entry.Notes, entry.EntryDate, entry.CreatedAt,
	).Scan(&entry.ID)
	if err != nil {
		return fmt.Errorf("insert ledger entry: %w", err)
	}
	return nil
}

func (s *LedgerService) updateCustomerBalance(ctx context.Context, tx *sqlx.Tx, customerID, newBalance int64, version int, now time.Time) error {
	result, err := tx.ExecContext(ctx, `
		UPDATE customer
		SET current_balance = $1, version = version + 1, updated_at = $2
		WHERE id = $3 AND version = $4`,
		newBalance, now, customerID, version)
	if err != nil {
		return fmt.Errorf("update customer %d balance: %w", customerID, err)
	}

	rowsAffected, err := result.RowsAffected()
	if err != nil {
		return err
	}

	if rowsAffected == 0 {
		return fmt.Errorf("optimistic lock failed for customer %d", customerID)
	}

	return nil
}

func (s *LedgerService) fail(operation string, err error) error {
	metrics.LedgerMutationFailures.WithLabelValues(operation, ErrorCode(err)).Inc()
	return err
}

func (s *LedgerService) recordAudit(ctx context.Context, rec models.AuditRecord) {
	if s.audit == nil {
		return
	}
	s.audit.RecordAudit(ctx, rec)
}

func (s *LedgerService) invalidate(ctx context.Context, shopID int64) {
	if s.invalidator != nil {
		s.invalidator.InvalidateShop(ctx, shopID)
	}
}
