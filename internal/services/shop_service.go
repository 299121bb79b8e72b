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
)

const userColumns = `id, name, COALESCE(email, '') AS email, phone, password, created_at, updated_at`

const memberColumns = `su.id, su.shop_id, su.user_id, su.role, su.status, su.joined_at,
	u.name AS user_name, COALESCE(u.email, '') AS user_email, u.phone AS user_phone`

type CreateShopRequest struct {
	Name    string
	Address string
}

type UpdateShopRequest struct {
	Name     string
	Address  string
	IsActive *bool
}

// ShopService manages shops and their memberships. Only OWNERs change
// membership; removal is a soft delete to INACTIVE.
type ShopService struct {
	db    *sqlx.DB
	guard *AccessGuard
	audit AuditRecorder
	now   func() time.Time
}

func NewShopService(db *sqlx.DB, guard *AccessGuard, audit AuditRecorder) *ShopService {
	return &ShopService{db: db, guard: guard, audit: audit, now: time.Now}
}

// CreateShop inserts the shop and makes the creator its ACTIVE OWNER.
func (s *ShopService) CreateShop(ctx context.Context, req CreateShopRequest, userID int64) (*models.Shop, error) {
	tx, err := s.db.BeginTxx(ctx, nil)
	if err != nil {
		return nil, fmt.Errorf("begin shop transaction: %w", err)
	}
	defer tx.Rollback()

	var userExists bool
	if err := tx.GetContext(ctx, &userExists, `SELECT EXISTS (SELECT 1 FROM users WHERE id = $1)`, userID); err != nil {
		return nil, fmt.Errorf("check user %d: %w", userID, err)
	}
	if !userExists {
		return nil, ErrUserNotFound
	}

	now := s.now()
	shop := &models.Shop{
		Name:      strings.TrimSpace(req.Name),
		Address:   strings.TrimSpace(req.Address),
		IsActive:  true,
		CreatedAt: now,
		UpdatedAt: now,
	}
	err = tx.QueryRowContext(ctx, `
		INSERT INTO shop (name, address, is_active, created_at, updated_at)
		VALUES ($1, $2, $3, $4, $5)
		RETURNING id`,
		shop.Name, shop.Address, shop.IsActive, shop.CreatedAt, shop.UpdatedAt,
	).Scan(&shop.ID)
	if err != nil {
		return nil, fmt.Errorf("insert shop: %w", err)
	}

	if _, err := s.insertMember(ctx, tx, shop.ID, userID, models.RoleOwner, now); err != nil {
		return nil, err
	}

	if err := tx.Commit(); err != nil {
		return nil, fmt.Errorf("commit shop: %w", err)
	}

	log.Printf("[SHOP] User %d created shop %d", userID, shop.ID)
	s.recordAudit(ctx, shop.ID, models.AuditShopCreated, userID, nil, shop)
	return shop, nil
}

// ListShops returns the shops where the user is active, newest first.
func (s *ShopService) ListShops(ctx context.Context, userID int64) ([]models.Shop, error) {
	shops := []models.Shop{}
	err := s.db.SelectContext(ctx, &shops, `
		SELECT s.id, s.name, s.address, s.is_active, s.created_at, s.updated_at
		FROM shop s
		JOIN shop_users su ON su.shop_id = s.id
		WHERE su.user_id = $1 AND su.status = 'ACTIVE'
		ORDER BY s.created_at DESC, s.id DESC`, userID)
	if err != nil {
		return nil, fmt.Errorf("list shops for user %d: %w", userID, err)
	}
	return shops, nil
}

// GetShop returns a shop the user is active in.
func (s *ShopService) GetShop(ctx context.Context, shopID, userID int64) (*models.Shop, error) {
	if _, err := s.guard.Authorize(ctx, shopID, userID); err != nil {
		if errors.Is(err, ErrForbidden) {
			return nil, ErrShopNotFound
		}
		return nil, err
	}
	return s.loadShop(ctx, shopID)
}

// UpdateShop edits the shop profile. OWNER only.
func (s *ShopService) UpdateShop(ctx context.Context, shopID int64, req UpdateShopRequest, userID int64) (*models.Shop, error) {
	membership, err := s.guard.Authorize(ctx, shopID, userID)
	if errors.Is(err, ErrForbidden) {
		return nil, ErrShopNotFound
	}
	if err != nil {
		return nil, err
	}
	if !IsOwner(membership) {
		return nil, forbidden("You don't have permission to update this shop")
	}

	old, err := s.loadShop(ctx, shopID)
	if err != nil {
		return nil, err
	}

	updated := *old
	updated.Name = strings.TrimSpace(req.Name)
	updated.Address = strings.TrimSpace(req.Address)
	if req.IsActive != nil {
		updated.IsActive = *req.IsActive
	}
	updated.UpdatedAt = s.now()

	_, err = s.db.ExecContext(ctx, `
		UPDATE shop SET name = $1, address = $2, is_active = $3, updated_at = $4 WHERE id = $5`,
		updated.Name, updated.Address, updated.IsActive, updated.UpdatedAt, shopID)
	if err != nil {
		return nil, fmt.Errorf("update shop %d: %w", shopID, err)
	}

	s.recordAudit(ctx, shopID, models.AuditShopUpdated, userID, old, &updated)
	return &updated, nil
}

// ListMembers returns the ACTIVE members of a shop.
func (s *ShopService) ListMembers(ctx context.Context, shopID, userID int64) ([]models.ShopMember, error) {
	if _, err := s.guard.Authorize(ctx, shopID, userID); err != nil {
		if errors.Is(err, ErrForbidden) {
			return nil, ErrShopNotFound
		}
		return nil, err
	}

	members := []models.ShopMember{}
	err := s.db.SelectContext(ctx, &members, `
		SELECT `+memberColumns+`
		FROM shop_users su
		JOIN users u ON u.id = su.user_id
		WHERE su.shop_id = $1 AND su.status = 'ACTIVE'
		ORDER BY su.joined_at, su.id`, shopID)
	if err != nil {
		return nil, fmt.Errorf("list members of shop %d: %w", shopID, err)
	}
	return members, nil
}

// AddMember adds the user registered under phone. A previously removed
// member is reactivated with the new role.
func (s *ShopService) AddMember(ctx context.Context, shopID int64, phone string, role models.Role, actingUserID int64) (*models.ShopMember, error) {
	if err := s.requireOwner(ctx, shopID, actingUserID, "You must be the shop owner to add users"); err != nil {
		return nil, err
	}

	var target models.User
	err := s.db.GetContext(ctx, &target,
		`SELECT `+userColumns+` FROM users WHERE phone = $1`,
		strings.TrimSpace(phone))
	if errors.Is(err, sql.ErrNoRows) {
		return nil, newAppError(CodeUserNotFound, fmt.Sprintf("User with phone %s not found in the system", phone))
	}
	if err != nil {
		return nil, fmt.Errorf("find user by phone: %w", err)
	}

	tx, err := s.db.BeginTxx(ctx, nil)
	if err != nil {
		return nil, fmt.Errorf("begin member transaction: %w", err)
	}
	defer tx.Rollback()

	var existing models.ShopUser
	err = tx.GetContext(ctx, &existing, `
		SELECT id, shop_id, user_id, role, status, joined_at
		FROM shop_users WHERE shop_id = $1 AND user_id = $2 FOR UPDATE`, shopID, target.ID)
	switch {
	case err == nil && existing.Status != models.StatusInactive:
		return nil, ErrUserAlreadyMember
	case err == nil:
		existing.Role = role
		existing.Status = models.StatusActive
		existing.JoinedAt = s.now()
		_, err = tx.ExecContext(ctx,
			`UPDATE shop_users SET role = $1, status = $2, joined_at = $3 WHERE id = $4`,
			string(existing.Role), string(existing.Status), existing.JoinedAt, existing.ID)
		if err != nil {
			return nil, fmt.Errorf("reactivate member: %w", err)
		}
	case errors.Is(err, sql.ErrNoRows):
		inserted, err := s.insertMember(ctx, tx, shopID, target.ID, role, s.now())
		if err != nil {
			return nil, err
		}
		existing = *inserted
	default:
		return nil, fmt.Errorf("load membership: %w", err)
	}

	if err := tx.Commit(); err != nil {
		return nil, fmt.Errorf("commit member: %w", err)
	}

	member := &models.ShopMember{
		ShopUser:  existing,
		UserName:  target.Name,
		UserEmail: target.Email,
		UserPhone: target.Phone,
	}
	log.Printf("[SHOP] User %d added user %d to shop %d as %s", actingUserID, target.ID, shopID, role)
	s.recordAudit(ctx, shopID, models.AuditShopUserAdded, actingUserID, nil, member)
	return member, nil
}

// UpdateMemberRole changes a member's role. The shop keeps at least one OWNER.
func (s *ShopService) UpdateMemberRole(ctx context.Context, shopID, memberUserID int64, role models.Role, actingUserID int64) (*models.ShopMember, error) {
	if err := s.requireOwner(ctx, shopID, actingUserID, "You must be the shop owner to update roles"); err != nil {
		return nil, err
	}

	tx, err := s.db.BeginTxx(ctx, nil)
	if err != nil {
		return nil, fmt.Errorf("begin member transaction: %w", err)
	}
	defer tx.Rollback()

	old, err := s.lockMember(ctx, tx, shopID, memberUserID)
	if err != nil {
		return nil, err
	}
	if old.Role == models.RoleOwner && role != models.RoleOwner {
		if err := s.ensureAnotherOwner(ctx, tx, shopID); err != nil {
			return nil, err
		}
	}

	updated := *old
	updated.Role = role
	if _, err := tx.ExecContext(ctx, `UPDATE shop_users SET role = $1 WHERE id = $2`, string(role), old.ID); err != nil {
		return nil, fmt.Errorf("update member role: %w", err)
	}
	if err := tx.Commit(); err != nil {
		return nil, fmt.Errorf("commit member: %w", err)
	}

	s.recordAudit(ctx, shopID, models.AuditShopUserUpdated, actingUserID, old, &updated)
	return &updated, nil
}

// RemoveMember marks a membership INACTIVE. The last OWNER cannot be removed.
func (s *ShopService) RemoveMember(ctx context.Context, shopID, memberUserID, actingUserID int64) error {
	if err := s.requireOwner(ctx, shopID, actingUserID, "You must be the shop owner to remove users"); err != nil {
		return err
	}

	tx, err := s.db.BeginTxx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin member transaction: %w", err)
	}
	defer tx.Rollback()

	old, err := s.lockMember(ctx, tx, shopID, memberUserID)
	if err != nil {
		return err
	}
	if old.Role == models.RoleOwner {
		if err := s.ensureAnotherOwner(ctx, tx, shopID); err != nil {
			return err
		}
	}

	updated := *old
	updated.Status = models.StatusInactive
	if _, err := tx.ExecContext(ctx, `UPDATE shop_users SET status = $1 WHERE id = $2`, string(updated.Status), old.ID); err != nil {
		return fmt.Errorf("deactivate member: %w", err)
	}
	if err := tx.Commit(); err != nil {
		return fmt.Errorf("commit member: %w", err)
	}

	log.Printf("[SHOP] User %d removed user %d from shop %d", actingUserID, memberUserID, shopID)
	s.recordAudit(ctx, shopID, models.AuditShopUserRemoved, actingUserID, old, &updated)
	return nil
}

func (s *ShopService) requireOwner(ctx context.Context, shopID, userID int64, message string) error {
	membership, err := s.guard.Authorize(ctx, shopID, userID)
	if err != nil && !errors.Is(err, ErrForbidden) {
		return err
	}
	if !IsOwner(membership) {
		return forbidden(message)
	}
	return nil
}

func (s *ShopService) lockMember(ctx context.Context, tx *sqlx.Tx, shopID, userID int64) (*models.ShopMember, error) {
	var member models.ShopMember
	err := tx.GetContext(ctx, &member, `
		SELECT `+memberColumns+`
		FROM shop_users su
		JOIN users u ON u.id = su.user_id
		WHERE su.shop_id = $1 AND su.user_id = $2 AND su.status = 'ACTIVE'
		FOR UPDATE OF su`, shopID, userID)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, newAppError(CodeUserNotFound, "User does not belong to this shop")
	}
	if err != nil {
		return nil, fmt.Errorf("lock member %d of shop %d: %w", userID, shopID, err)
	}
	return &member, nil
}

// ensureAnotherOwner locks the shop's active OWNER rows and fails when only
// one remains.
func (s *ShopService) ensureAnotherOwner(ctx context.Context, tx *sqlx.Tx, shopID int64) error {
	var owners []int64
	err := tx.SelectContext(ctx, &owners, `
		SELECT id FROM shop_users
		WHERE shop_id = $1 AND role = 'OWNER' AND status = 'ACTIVE'
		FOR UPDATE`, shopID)
	if err != nil {
		return fmt.Errorf("count owners of shop %d: %w", shopID, err)
	}
	if len(owners) <= 1 {
		return forbidden("Cannot remove the only owner from the shop")
	}
	return nil
}

func (s *ShopService) insertMember(ctx context.Context, tx *sqlx.Tx, shopID, userID int64, role models.Role, joinedAt time.Time) (*models.ShopUser, error) {
	member := &models.ShopUser{
		ShopID:   shopID,
		UserID:   userID,
		Role:     role,
		Status:   models.StatusActive,
		JoinedAt: joinedAt,
	}
	err := tx.QueryRowContext(ctx, `
		INSERT INTO shop_users (shop_id, user_id, role, status, joined_at)
		VALUES ($1, $2, $3, $4, $5)
		RETURNING id`,
		shopID, userID, string(role), string(member.Status), joinedAt,
	).Scan(&member.ID)
	if err != nil {
		return nil, fmt.Errorf("insert member: %w", err)
	}
	return member, nil
}

func (s *ShopService) loadShop(ctx context.Context, shopID int64) (*models.Shop, error) {
	var shop models.Shop
	err := s.db.GetContext(ctx, &shop,
		`SELECT id, name, address, is_active, created_at, updated_at FROM shop WHERE id = $1`, shopID)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrShopNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("load shop %d: %w", shopID, err)
	}
	return &shop, nil
}

func (s *ShopService) recordAudit(ctx context.Context, shopID int64, action models.AuditAction, userID int64, oldValue, newValue any) {
	if s.audit == nil {
		return
	}
	s.audit.RecordAudit(ctx, models.AuditRecord{
		ShopID:     shopID,
		EntityType: models.EntityShop,
		EntityID:   shopID,
		Action:     action,
		UserID:     userID,
		OldValue:   oldValue,
		NewValue:   newValue,
	})
}
