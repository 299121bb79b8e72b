package services

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"github.com/duebook/backend/internal/models"
	"github.com/jmoiron/sqlx"
)

// AccessGuard resolves a user's membership in a shop.
type AccessGuard struct {
	db *sqlx.DB
}

func NewAccessGuard(db *sqlx.DB) *AccessGuard {
	return &AccessGuard{db: db}
}

// Authorize returns the caller's ACTIVE membership in shopID, or ErrForbidden.
func (g *AccessGuard) Authorize(ctx context.Context, shopID, userID int64) (*models.ShopUser, error) {
	return g.authorize(ctx, g.db, shopID, userID)
}

func (g *AccessGuard) authorize(ctx context.Context, q sqlx.QueryerContext, shopID, userID int64) (*models.ShopUser, error) {
	var m models.ShopUser
	err := sqlx.GetContext(ctx, q, &m, `
		SELECT id, shop_id, user_id, role, status, joined_at
		FROM shop_users
		WHERE shop_id = $1 AND user_id = $2`, shopID, userID)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrForbidden
	}
	if err != nil {
		return nil, fmt.Errorf("load membership for shop %d: %w", shopID, err)
	}
	if m.Status != models.StatusActive {
		return nil, ErrForbidden
	}
	return &m, nil
}

// CanWrite reports whether the membership may mutate shop data.
func CanWrite(m *models.ShopUser) bool {
	if m == nil {
		return false
	}
	return m.Role == models.RoleOwner || m.Role == models.RoleStaff
}

// IsOwner reports whether the membership may manage other members.
func IsOwner(m *models.ShopUser) bool {
	return m != nil && m.Role == models.RoleOwner
}

// AccessibleShopIDs lists the shops where the user holds an ACTIVE membership.
func (g *AccessGuard) AccessibleShopIDs(ctx context.Context, userID int64) ([]int64, error) {
	var ids []int64
	err := g.db.SelectContext(ctx, &ids, `
		SELECT shop_id FROM shop_users
		WHERE user_id = $1 AND status = 'ACTIVE'
		ORDER BY shop_id`, userID)
	if err != nil {
		return nil, fmt.Errorf("list shops for user %d: %w", userID, err)
	}
	return ids, nil
}

// ResolveShops returns the shops a listing covers: shopID alone after an
// access check, or every accessible shop when shopID is 0. A shop the caller
// cannot see is reported as SHOP_NOT_FOUND.
func (g *AccessGuard) ResolveShops(ctx context.Context, shopID, userID int64) ([]int64, error) {
	if shopID == 0 {
		return g.AccessibleShopIDs(ctx, userID)
	}
	if _, err := g.Authorize(ctx, shopID, userID); err != nil {
		if errors.Is(err, ErrForbidden) {
			return nil, ErrShopNotFound
		}
		return nil, err
	}
	return []int64{shopID}, nil
}
