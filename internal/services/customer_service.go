package services

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"log"
	"strings"
	"time"

	"github.com/duebook/backend/internal/models"
	"github.com/jmoiron/sqlx"
	"github.com/lib/pq"
)

type CreateCustomerRequest struct {
	ShopID         int64
	Name           string
	EntityName     string
	Phone          string
	OpeningBalance int64
}

// UpdateCustomerRequest replaces the editable profile. CurrentBalance is
// written as given, bypassing the ledger.
type UpdateCustomerRequest struct {
	Name           string
	EntityName     string
	Phone          string
	CurrentBalance int64
	IsActive       *bool
}

type CustomerService struct {
	db          *sqlx.DB
	guard       *AccessGuard
	ledger      *LedgerService
	audit       AuditRecorder
	invalidator MetricsInvalidator
	now         func() time.Time
}

func NewCustomerService(db *sqlx.DB, guard *AccessGuard, ledger *LedgerService, audit AuditRecorder) *CustomerService {
	return &CustomerService{
		db:     db,
		guard:  guard,
		ledger: ledger,
		audit:  audit,
		now:    time.Now,
	}
}

func (s *CustomerService) SetInvalidator(inv MetricsInvalidator) {
	s.invalidator = inv
}

// CreateCustomer inserts the customer and, for a positive opening balance,
// its opening BAKI entry in the same transaction.
func (s *CustomerService) CreateCustomer(ctx context.Context, req CreateCustomerRequest, userID int64) (*models.Customer, error) {
	var shopExists bool
	if err := s.db.GetContext(ctx, &shopExists, `SELECT EXISTS (SELECT 1 FROM shop WHERE id = $1)`, req.ShopID); err != nil {
		return nil, fmt.Errorf("check shop %d: %w", req.ShopID, err)
	}
	if !shopExists {
		return nil, newAppError(CodeShopNotFound, "Shop not found")
	}

	membership, err := s.guard.Authorize(ctx, req.ShopID, userID)
	if err != nil && !errors.Is(err, ErrForbidden) {
		return nil, err
	}
	if !CanWrite(membership) {
		return nil, forbidden("Only OWNER or STAFF can create customers")
	}

	tx, err := s.db.BeginTxx(ctx, nil)
	if err != nil {
		return nil, fmt.Errorf("begin customer transaction: %w", err)
	}
	defer tx.Rollback()

	phone := strings.TrimSpace(req.Phone)
	if err := s.ensurePhoneFree(ctx, tx, req.ShopID, phone); err != nil {
		return nil, err
	}

	now := s.now()
	customer := &models.Customer{
		ShopID:         req.ShopID,
		Name:           strings.TrimSpace(req.Name),
		EntityName:     strings.TrimSpace(req.EntityName),
		Phone:          phone,
		OpeningBalance: req.OpeningBalance,
		CurrentBalance: req.OpeningBalance,
		IsActive:       true,
		Version:        1,
		CreatedAt:      now,
		UpdatedAt:      now,
	}

	err = tx.QueryRowContext(ctx, `
		INSERT INTO customer (shop_id, name, entity_name, phone, opening_balance, current_balance,
			is_active, version, created_at, updated_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10)
		RETURNING id`,
		customer.ShopID, customer.Name, customer.EntityName, customer.Phone, customer.OpeningBalance,
		customer.CurrentBalance, customer.IsActive, customer.Version, customer.CreatedAt, customer.UpdatedAt,
	).Scan(&customer.ID)
	if err != nil {
		return nil, fmt.Errorf("insert customer: %w", err)
	}

	var opening *models.LedgerEntry
	if customer.OpeningBalance > 0 {
		opening, err = s.ledger.CreateOpeningEntryTx(ctx, tx, customer, userID)
		if err != nil {
			return nil, err
		}
	}

	if err := tx.Commit(); err != nil {
		return nil, fmt.Errorf("commit customer: %w", err)
	}

	log.Printf("[CUSTOMER] Created customer %d in shop %d with opening balance %d", customer.ID, customer.ShopID, customer.OpeningBalance)

	s.recordAudit(ctx, models.AuditRecord{
		ShopID:     customer.ShopID,
		EntityType: models.EntityCustomer,
		EntityID:   customer.ID,
		Action:     models.AuditCustomerCreated,
		UserID:     userID,
		NewValue:   customer,
	})
	if opening != nil {
		s.recordAudit(ctx, models.AuditRecord{
			ShopID:     opening.ShopID,
			EntityType: models.EntityLedger,
			EntityID:   opening.ID,
			Action:     models.AuditLedgerEntryCreated,
			UserID:     userID,
			NewValue:   opening,
		})
	}
	s.invalidate(ctx, customer.ShopID)

	return customer, nil
}

// UpdateCustomer rewrites the profile under the same per-customer lock the
// ledger engine uses, so a balance overwrite never interleaves with an entry.
func (s *CustomerService) UpdateCustomer(ctx context.Context, customerID int64, req UpdateCustomerRequest, userID int64) (*models.Customer, error) {
	unlock := s.ledger.locks.Lock(customerID)
	defer unlock()

	tx, err := s.db.BeginTxx(ctx, nil)
	if err != nil {
		return nil, fmt.Errorf("begin customer transaction: %w", err)
	}
	defer tx.Rollback()

	current, err := s.ledger.lockCustomer(ctx, tx, customerID)
	if err != nil {
		return nil, err
	}

	membership, err := s.guard.authorize(ctx, tx, current.ShopID, userID)
	if err != nil && !errors.Is(err, ErrForbidden) {
		return nil, err
	}
	if !CanWrite(membership) {
		return nil, forbidden("Only OWNER or STAFF can update customers")
	}

	phone := strings.TrimSpace(req.Phone)
	if phone != current.Phone {
		if err := s.ensurePhoneFree(ctx, tx, current.ShopID, phone); err != nil {
			return nil, err
		}
	}

	updated := *current
	updated.Name = strings.TrimSpace(req.Name)
	updated.EntityName = strings.TrimSpace(req.EntityName)
	updated.Phone = phone
	updated.CurrentBalance = req.CurrentBalance
	if req.IsActive != nil {
		updated.IsActive = *req.IsActive
	}
	updated.UpdatedAt = s.now()
	updated.Version = current.Version + 1

	result, err := tx.ExecContext(ctx, `
		UPDATE customer
		SET name = $1, entity_name = $2, phone = $3, current_balance = $4, is_active = $5,
			version = version + 1, updated_at = $6
		WHERE id = $7 AND version = $8`,
		updated.Name, updated.EntityName, updated.Phone, updated.CurrentBalance, updated.IsActive,
		updated.UpdatedAt, customerID, current.Version)
	if err != nil {
		return nil, fmt.Errorf("update customer %d: %w", customerID, err)
	}
	if rows, err := result.RowsAffected(); err != nil || rows == 0 {
		return nil, fmt.Errorf("optimistic lock failed for customer %d", customerID)
	}

	if err := tx.Commit(); err != nil {
		return nil, fmt.Errorf("commit customer %d: %w", customerID, err)
	}

	if updated.CurrentBalance != current.CurrentBalance {
		log.Printf("[CUSTOMER] Balance of customer %d overwritten by user %d: %d -> %d",
			customerID, userID, current.CurrentBalance, updated.CurrentBalance)
	}

	s.recordAudit(ctx, models.AuditRecord{
		ShopID:     updated.ShopID,
		EntityType: models.EntityCustomer,
		EntityID:   updated.ID,
		Action:     models.AuditCustomerUpdated,
		UserID:     userID,
		OldValue:   current,
		NewValue:   &updated,
	})
	s.invalidate(ctx, updated.ShopID)

	return &updated, nil
}

// GetCustomer returns a customer in one of the caller's shops.
func (s *CustomerService) GetCustomer(ctx context.Context, customerID, userID int64) (*models.Customer, error) {
	var customer models.Customer
	err := s.db.GetContext(ctx, &customer, `SELECT `+customerColumns+` FROM customer WHERE id = $1`, customerID)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrCustomerNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("load customer %d: %w", customerID, err)
	}

	if _, err := s.guard.Authorize(ctx, customer.ShopID, userID); err != nil {
		if errors.Is(err, ErrForbidden) {
			return nil, ErrCustomerNotFound
		}
		return nil, err
	}
	return &customer, nil
}

// ListByShop lists a shop's customers, optionally only the active ones.
func (s *CustomerService) ListByShop(ctx context.Context, shopID, userID int64, activeOnly bool) ([]models.Customer, error) {
	if _, err := s.guard.Authorize(ctx, shopID, userID); err != nil {
		if errors.Is(err, ErrForbidden) {
			return nil, ErrShopNotFound
		}
		return nil, err
	}

	query := `SELECT ` + customerColumns + ` FROM customer WHERE shop_id = $1`
	if activeOnly {
		query += ` AND is_active = TRUE`
	}
	query += ` ORDER BY name, id`

	customers := []models.Customer{}
	if err := s.db.SelectContext(ctx, &customers, query, shopID); err != nil {
		return nil, fmt.Errorf("list customers for shop %d: %w", shopID, err)
	}
	return customers, nil
}

// ListForUser lists customers across every shop the user is active in.
func (s *CustomerService) ListForUser(ctx context.Context, userID int64) ([]models.Customer, error) {
	customers := []models.Customer{}
	err := s.db.SelectContext(ctx, &customers, `
		SELECT c.id, c.shop_id, c.name, c.entity_name, c.phone, c.opening_balance,
			c.current_balance, c.is_active, c.version, c.created_at, c.updated_at
		FROM customer c
		JOIN shop_users su ON su.shop_id = c.shop_id
		WHERE su.user_id = $1 AND su.status = 'ACTIVE'
		ORDER BY c.shop_id, c.name, c.id`, userID)
	if err != nil {
		return nil, fmt.Errorf("list customers for user %d: %w", userID, err)
	}
	return customers, nil
}

// ListPaginated pages through the customers of one shop, or of every
// accessible shop when shopID is 0, newest first.
func (s *CustomerService) ListPaginated(ctx context.Context, shopID, userID int64, f models.CustomerFilter, p models.PageRequest) (models.Page[models.Customer], error) {
	p = s.ledger.config.PageRequest(p.Page, p.Size)
	shopIDs, err := s.guard.ResolveShops(ctx, shopID, userID)
	if err != nil {
		return models.Page[models.Customer]{}, err
	}
	if len(shopIDs) == 0 {
		return models.NewPage[models.Customer](nil, p, 0), nil
	}

	where, args := customerWhere(shopIDs, f)

	var total int64
	if err := s.db.GetContext(ctx, &total, `SELECT COUNT(*) FROM customer WHERE `+where, args...); err != nil {
		return models.Page[models.Customer]{}, fmt.Errorf("count customers: %w", err)
	}

	customers := []models.Customer{}
	if total > 0 {
		n := len(args)
		query := fmt.Sprintf(`SELECT %s FROM customer WHERE %s ORDER BY created_at DESC, id DESC LIMIT $%d OFFSET $%d`,
			customerColumns, where, n+1, n+2)
		if err := s.db.SelectContext(ctx, &customers, query, append(args, p.Size, p.Offset())...); err != nil {
			return models.Page[models.Customer]{}, fmt.Errorf("list customers: %w", err)
		}
	}
	return models.NewPage(customers, p, total), nil
}

// Summary totals every customer matching the filter across the same shops
// ListPaginated would cover, ignoring pagination.
func (s *CustomerService) Summary(ctx context.Context, shopID, userID int64, f models.CustomerFilter) (models.CustomerSummary, error) {
	shopIDs, err := s.guard.ResolveShops(ctx, shopID, userID)
	if err != nil {
		return models.CustomerSummary{}, err
	}
	if len(shopIDs) == 0 {
		return models.CustomerSummary{}, nil
	}

	where, args := customerWhere(shopIDs, f)

	var summary models.CustomerSummary
	err = s.db.QueryRowxContext(ctx, `
		SELECT COUNT(*),
			COUNT(*) FILTER (WHERE is_active),
			COALESCE(SUM(opening_balance), 0),
			COALESCE(SUM(current_balance), 0)
		FROM customer WHERE `+where, args...,
	).Scan(&summary.TotalCustomers, &summary.ActiveCustomers, &summary.TotalOpeningBalance, &summary.TotalCurrentBalance)
	if err != nil {
		return models.CustomerSummary{}, fmt.Errorf("summarise customers: %w", err)
	}
	return summary, nil
}

var likeEscaper = strings.NewReplacer(`\`, `\\`, `%`, `\%`, `_`, `\_`)

// customerWhere builds the shared WHERE clause of the customer listings.
func customerWhere(shopIDs []int64, f models.CustomerFilter) (string, []any) {
	clauses := []string{"shop_id = ANY($1)"}
	args := []any{pq.Array(shopIDs)}

	switch strings.ToUpper(strings.TrimSpace(f.Status)) {
	case models.CustomerActive:
		clauses = append(clauses, "is_active = TRUE")
	case models.CustomerInactive:
		clauses = append(clauses, "is_active = FALSE")
	}

	if term := strings.TrimSpace(f.SearchTerm); term != "" {
		args = append(args, "%"+likeEscaper.Replace(term)+"%")
		n := len(args)
		clauses = append(clauses, fmt.Sprintf("(name ILIKE $%d OR entity_name ILIKE $%d OR phone LIKE $%d)", n, n, n))
	}
	return strings.Join(clauses, " AND "), args
}

func (s *CustomerService) ensurePhoneFree(ctx context.Context, tx *sqlx.Tx, shopID int64, phone string) error {
	var taken bool
	err := tx.GetContext(ctx, &taken,
		`SELECT EXISTS (SELECT 1 FROM customer WHERE shop_id = $1 AND phone = $2)`, shopID, phone)
	if err != nil {
		return fmt.Errorf("check phone in shop %d: %w", shopID, err)
	}
	if taken {
		return ErrPhoneAlreadyExists
	}
	return nil
}

func (s *CustomerService) recordAudit(ctx context.Context, rec models.AuditRecord) {
	if s.audit != nil {
		s.audit.RecordAudit(ctx, rec)
	}
}

func (s *CustomerService) invalidate(ctx context.Context, shopID int64) {
	if s.invalidator != nil {
		s.invalidator.InvalidateShop(ctx, shopID)
	}
}
