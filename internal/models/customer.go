package models

import "time"

// Customer belongs to exactly one shop. CurrentBalance is the running total
// maintained by the ledger engine.
type Customer struct {
	ID             int64     `json:"id" db:"id"`
	ShopID         int64     `json:"shopId" db:"shop_id"`
	Name           string    `json:"name" db:"name"`
	EntityName     string    `json:"entityName" db:"entity_name"`
	Phone          string    `json:"phone" db:"phone"`
	OpeningBalance int64     `json:"openingBalance" db:"opening_balance"`
	CurrentBalance int64     `json:"currentBalance" db:"current_balance"`
	IsActive       bool      `json:"isActive" db:"is_active"`
	Version        int       `json:"-" db:"version"` // for optimistic locking
	CreatedAt      time.Time `json:"createdAt" db:"created_at"`
	UpdatedAt      time.Time `json:"updatedAt" db:"updated_at"`
}

// Customer status filter values.
const (
	CustomerActive   = "ACTIVE"
	CustomerInactive = "INACTIVE"
)
