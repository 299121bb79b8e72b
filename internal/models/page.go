package models

import "time"

// PageRequest selects a zero-based page of a result set.
type PageRequest struct {
	Page int
	Size int
}

// Offset is the number of rows preceding the page.
func (p PageRequest) Offset() int {
	return p.Page * p.Size
}

// Page is one slice of a larger ordered result.
type Page[T any] struct {
	Content       []T   `json:"content"`
	Page          int   `json:"page"`
	Size          int   `json:"size"`
	TotalElements int64 `json:"totalElements"`
	TotalPages    int   `json:"totalPages"`
}

func NewPage[T any](content []T, p PageRequest, total int64) Page[T] {
	if content == nil {
		content = []T{}
	}
	pages := 0
	if p.Size > 0 {
		pages = int((total + int64(p.Size) - 1) / int64(p.Size))
	}
	return Page[T]{
		Content:       content,
		Page:          p.Page,
		Size:          p.Size,
		TotalElements: total,
		TotalPages:    pages,
	}
}

// CustomerFilter narrows customer listings. Status is ACTIVE, INACTIVE or
// empty; SearchTerm matches name, entity name or phone.
type CustomerFilter struct {
	Status     string
	SearchTerm string
}

// CustomerSummary totals the customers matching a filter. Money values are in paisa.
type CustomerSummary struct {
	TotalCustomers      int64 `json:"totalCustomers"`
	ActiveCustomers     int64 `json:"activeCustomers"`
	TotalOpeningBalance int64 `json:"totalOpeningBalance"`
	TotalCurrentBalance int64 `json:"totalCurrentBalance"`
}

// AuditFilter narrows an audit trail. The date range applies only when both
// bounds are set, matching LedgerFilter.
type AuditFilter struct {
	Action     AuditAction
	EntityType string
	StartDate  *time.Time
	EndDate    *time.Time
}
