package models

import (
	"encoding/json"
	"fmt"
	"time"
)

// DateLayout is the wire format of calendar dates.
const DateLayout = "2006-01-02"

type EntryType string

const (
	EntryTypeBaki     EntryType = "BAKI"     // customer owes more
	EntryTypePaid     EntryType = "PAID"     // customer paid back
	EntryTypeReversal EntryType = "REVERSAL" // negates a prior BAKI or PAID
)

// Valid reports whether t is one of the known entry types.
func (t EntryType) Valid() bool {
	switch t {
	case EntryTypeBaki, EntryTypePaid, EntryTypeReversal:
		return true
	}
	return false
}

// LedgerEntry is an append-only row of customer_ledger. Amounts are in paisa.
type LedgerEntry struct {
	ID               int64     `json:"id" db:"id"`
	CustomerID       int64     `json:"customerId" db:"customer_id"`
	ShopID           int64     `json:"shopId" db:"shop_id"`
	CreatedByUserID  int64     `json:"createdByUserId" db:"created_by_user_id"`
	EntryType        EntryType `json:"entryType" db:"entry_type"`
	Amount           int64     `json:"amount" db:"amount"`
	BalanceAfter     int64     `json:"balanceAfter" db:"balance_after"`
	ReferenceEntryID *int64    `json:"referenceEntryId,omitempty" db:"reference_entry_id"` // set only on REVERSAL
	Notes            string    `json:"notes" db:"notes"`
	EntryDate        time.Time `json:"entryDate" db:"entry_date"`
	CreatedAt        time.Time `json:"createdAt" db:"created_at"`
}

// MarshalJSON writes EntryDate as a plain calendar date.
func (e LedgerEntry) MarshalJSON() ([]byte, error) {
	type entry LedgerEntry
	return json.Marshal(struct {
		entry
		EntryDate string `json:"entryDate"`
	}{entry(e), e.EntryDate.Format(DateLayout)})
}

// UnmarshalJSON accepts EntryDate as YYYY-MM-DD or RFC 3339.
func (e *LedgerEntry) UnmarshalJSON(data []byte) error {
	type entry LedgerEntry
	aux := struct {
		*entry
		EntryDate string `json:"entryDate"`
	}{entry: (*entry)(e)}
	if err := json.Unmarshal(data, &aux); err != nil {
		return err
	}

	e.EntryDate = time.Time{}
	if aux.EntryDate == "" {
		return nil
	}
	t, err := time.Parse(DateLayout, aux.EntryDate)
	if err != nil {
		if t, err = time.Parse(time.RFC3339, aux.EntryDate); err != nil {
			return fmt.Errorf("entryDate %q: %w", aux.EntryDate, err)
		}
	}
	e.EntryDate = t
	return nil
}

// IsReversal reports whether the entry negates another entry.
func (e *LedgerEntry) IsReversal() bool {
	return e.EntryType == EntryTypeReversal
}

// LedgerFilter narrows a set of entries before summarising.
type LedgerFilter struct {
	CustomerID int64
	EntryType  EntryType
	StartDate  *time.Time
	EndDate    *time.Time
}

// LedgerSummary aggregates effective entries.
type LedgerSummary struct {
	TotalDebit   int64 `json:"totalDebit"`
	TotalCredit  int64 `json:"totalCredit"`
	NetBalance   int64 `json:"netBalance"`
	TotalEntries int64 `json:"totalEntries"`
}
