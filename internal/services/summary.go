package services

import (
	"time"

	"github.com/duebook/backend/internal/models"
)

// dateOf truncates t to its calendar day in UTC.
func dateOf(t time.Time) time.Time {
	y, m, d := t.Date()
	return time.Date(y, m, d, 0, 0, 0, 0, time.UTC)
}

// FilterEntries applies the customer and entry type filters, and the
// inclusive date range when both of its bounds are set. A lone bound is
// ignored. Zero-valued filter fields match everything.
func FilterEntries(entries []models.LedgerEntry, f models.LedgerFilter) []models.LedgerEntry {
	byDate := f.StartDate != nil && f.EndDate != nil
	var start, end time.Time
	if byDate {
		start = dateOf(*f.StartDate)
		end = dateOf(*f.EndDate)
	}

	out := make([]models.LedgerEntry, 0, len(entries))
	for _, e := range entries {
		if f.CustomerID > 0 && e.CustomerID != f.CustomerID {
			continue
		}
		if f.EntryType != "" && e.EntryType != f.EntryType {
			continue
		}
		if byDate {
			day := dateOf(e.EntryDate)
			if day.Before(start) || day.After(end) {
				continue
			}
		}
		out = append(out, e)
	}
	return out
}

// ReversedEntryIDs collects the entries targeted by reversals within entries.
func ReversedEntryIDs(entries []models.LedgerEntry) map[int64]struct{} {
	reversed := make(map[int64]struct{})
	for _, e := range entries {
		if e.IsReversal() && e.ReferenceEntryID != nil {
			reversed[*e.ReferenceEntryID] = struct{}{}
		}
	}
	return reversed
}

// EffectiveEntries drops reversed entries and the reversals themselves.
func EffectiveEntries(entries []models.LedgerEntry) []models.LedgerEntry {
	reversed := ReversedEntryIDs(entries)
	out := make([]models.LedgerEntry, 0, len(entries))
	for _, e := range entries {
		if e.IsReversal() {
			continue
		}
		if _, ok := reversed[e.ID]; ok {
			continue
		}
		out = append(out, e)
	}
	return out
}

// Summarize filters entries, then totals the effective ones. Reversals are
// only matched against originals that survive the filter.
func Summarize(entries []models.LedgerEntry, f models.LedgerFilter) models.LedgerSummary {
	effective := EffectiveEntries(FilterEntries(entries, f))

	var s models.LedgerSummary
	for _, e := range effective {
		switch e.EntryType {
		case models.EntryTypeBaki:
			s.TotalDebit += e.Amount
		case models.EntryTypePaid:
			s.TotalCredit += e.Amount
		}
	}
	s.NetBalance = s.TotalDebit - s.TotalCredit
	s.TotalEntries = int64(len(effective))
	return s
}

// applyDelta returns the balance after an entry of type t.
func applyDelta(balance int64, t models.EntryType, amount int64) int64 {
	switch t {
	case models.EntryTypeBaki:
		return balance + amount
	case models.EntryTypePaid:
		return balance - amount
	}
	return balance
}

// reverseDelta undoes the effect of original against the present balance.
func reverseDelta(balance int64, original *models.LedgerEntry) int64 {
	switch original.EntryType {
	case models.EntryTypeBaki:
		return balance - original.Amount
	case models.EntryTypePaid:
		return balance + original.Amount
	}
	return balance
}
