package models

import (
	"database/sql/driver"
	"encoding/json"
	"errors"
	"time"

	"github.com/google/uuid"
)

type AuditAction string

const (
	AuditShopCreated           AuditAction = "SHOP_CREATED"
	AuditShopUpdated           AuditAction = "SHOP_UPDATED"
	AuditShopUserAdded         AuditAction = "SHOP_USER_ADDED"
	AuditShopUserUpdated       AuditAction = "SHOP_USER_UPDATED"
	AuditShopUserRemoved       AuditAction = "SHOP_USER_REMOVED"
	AuditCustomerCreated       AuditAction = "CUSTOMER_CREATED"
	AuditCustomerUpdated       AuditAction = "CUSTOMER_UPDATED"
	AuditLedgerEntryCreated    AuditAction = "LEDGER_ENTRY_CREATED"
	AuditLedgerReversal        AuditAction = "LEDGER_REVERSAL"
	AuditLedgerBalanceAdjusted AuditAction = "LEDGER_BALANCE_ADJUSTED"
)

// Entity types recorded on audit rows.
const (
	EntityShop     = "SHOP"
	EntityCustomer = "CUSTOMER"
	EntityLedger   = "LEDGER"
)

// AuditRecord is what callers hand to the audit sink.
type AuditRecord struct {
	ShopID     int64
	EntityType string
	EntityID   int64
	Action     AuditAction
	UserID     int64
	OldValue   any
	NewValue   any
}

// AuditLog is a persisted audit_log row.
type AuditLog struct {
	ID          uuid.UUID   `json:"id" db:"id"`
	ShopID      int64       `json:"shopId" db:"shop_id"`
	EntityType  string      `json:"entityType" db:"entity_type"`
	EntityID    int64       `json:"entityId" db:"entity_id"`
	Action      AuditAction `json:"action" db:"action"`
	PerformedBy int64       `json:"performedBy" db:"performed_by"`
	OldValue    Snapshot    `json:"oldValue,omitempty" db:"old_value"`
	NewValue    Snapshot    `json:"newValue,omitempty" db:"new_value"`
	PerformedAt time.Time   `json:"performedAt" db:"performed_at"`
}

// Snapshot holds a JSONB value captured before or after a change.
type Snapshot json.RawMessage

// NewSnapshot marshals v, returning nil for a nil value.
func NewSnapshot(v any) (Snapshot, error) {
	if v == nil {
		return nil, nil
	}
	b, err := json.Marshal(v)
	if err != nil {
		return nil, err
	}
	return Snapshot(b), nil
}

// Value implements driver.Valuer for Snapshot
func (s Snapshot) Value() (driver.Value, error) {
	if s == nil {
		return nil, nil
	}
	return []byte(s), nil
}

// Scan implements sql.Scanner for Snapshot
func (s *Snapshot) Scan(value any) error {
	if value == nil {
		*s = nil
		return nil
	}

	switch v := value.(type) {
	case []byte:
		*s = append((*s)[:0], v...)
	case string:
		*s = Snapshot(v)
	default:
		return errors.New("type assertion to []byte failed")
	}
	return nil
}

// MarshalJSON emits the raw snapshot, or null when empty.
func (s Snapshot) MarshalJSON() ([]byte, error) {
	if s == nil {
		return []byte("null"), nil
	}
	return s, nil
}

// UnmarshalJSON keeps the raw bytes.
func (s *Snapshot) UnmarshalJSON(data []byte) error {
	if string(data) == "null" {
		*s = nil
		return nil
	}
	*s = append((*s)[:0], data...)
	return nil
}
