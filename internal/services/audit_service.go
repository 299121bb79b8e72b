package services

import (
	"context"
	"encoding/json"
	"fmt"
	"log"
	"strings"
	"sync"
	"time"

	"github.com/duebook/backend/internal/config"
	"github.com/duebook/backend/internal/metrics"
	"github.com/duebook/backend/internal/models"
	"github.com/google/uuid"
	"github.com/jmoiron/sqlx"
)

// AuditRecorder is the best-effort audit sink used by the ledger engine.
// Implementations must never fail the caller.
type AuditRecorder interface {
	RecordAudit(ctx context.Context, rec models.AuditRecord)
}

// AuditService persists audit records on a background worker so that a slow
// or failing audit_log table never holds up a ledger transaction.
type AuditService struct {
	db     *sqlx.DB
	guard  *AccessGuard
	config *config.LedgerConfig
	queue  chan models.AuditLog
	wg     sync.WaitGroup
	mu     sync.RWMutex // guards closed and sends on queue
	closed bool
	now    func() time.Time
}

func NewAuditService(db *sqlx.DB, guard *AccessGuard, cfg *config.LedgerConfig) *AuditService {
	s := &AuditService{
		db:     db,
		guard:  guard,
		config: cfg,
		queue:  make(chan models.AuditLog, cfg.AuditQueueSize),
		now:    time.Now,
	}
	s.wg.Add(1)
	go s.run()
	return s
}

// RecordAudit snapshots the old and new values and queues the row. A full
// queue drops the record.
func (s *AuditService) RecordAudit(ctx context.Context, rec models.AuditRecord) {
	entry, err := s.buildLog(rec)
	if err != nil {
		log.Printf("[AUDIT] Failed to snapshot %s on %s %d: %v", rec.Action, rec.EntityType, rec.EntityID, err)
		metrics.AuditRecordsDropped.WithLabelValues("snapshot").Inc()
		return
	}

	if data, err := json.Marshal(entry); err == nil {
		log.Printf("AUDIT: %s", string(data))
	}

	s.mu.RLock()
	defer s.mu.RUnlock()
	if s.closed {
		log.Printf("[AUDIT] Dropped %s after shutdown", rec.Action)
		metrics.AuditRecordsDropped.WithLabelValues("closed").Inc()
		return
	}

	select {
	case s.queue <- entry:
		metrics.AuditQueueDepth.Inc()
	default:
		log.Printf("[AUDIT] Queue full, dropping %s on %s %d", rec.Action, rec.EntityType, rec.EntityID)
		metrics.AuditRecordsDropped.WithLabelValues("queue_full").Inc()
	}
}

func (s *AuditService) buildLog(rec models.AuditRecord) (models.AuditLog, error) {
	oldValue, err := models.NewSnapshot(rec.OldValue)
	if err != nil {
		return models.AuditLog{}, fmt.Errorf("old value: %w", err)
	}
	newValue, err := models.NewSnapshot(rec.NewValue)
	if err != nil {
		return models.AuditLog{}, fmt.Errorf("new value: %w", err)
	}
	return models.AuditLog{
		ID:          uuid.New(),
		ShopID:      rec.ShopID,
		EntityType:  rec.EntityType,
		EntityID:    rec.EntityID,
		Action:      rec.Action,
		PerformedBy: rec.UserID,
		OldValue:    oldValue,
		NewValue:    newValue,
		PerformedAt: s.now(),
	}, nil
}

func (s *AuditService) run() {
	defer s.wg.Done()
	for entry := range s.queue {
		metrics.AuditQueueDepth.Dec()
		if err := s.write(entry); err != nil {
			log.Printf("[AUDIT] Failed to persist %s on %s %d: %v", entry.Action, entry.EntityType, entry.EntityID, err)
			metrics.AuditRecordsDropped.WithLabelValues("write_error").Inc()
		}
	}
}

func (s *AuditService) write(entry models.AuditLog) error {
	ctx, cancel := context.WithTimeout(context.Background(), s.config.AuditWriteTimeout)
	defer cancel()

	_, err := s.db.ExecContext(ctx, `
		INSERT INTO audit_log (id, shop_id, entity_type, entity_id, action, performed_by, old_value, new_value, performed_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9)`,
		entry.ID, entry.ShopID, entry.EntityType, entry.EntityID, string(entry.Action),
		entry.PerformedBy, entry.OldValue, entry.NewValue, entry.PerformedAt)
	return err
}

// Close stops accepting records and waits for the queue to drain.
func (s *AuditService) Close() {
	s.mu.Lock()
	if !s.closed {
		s.closed = true
		close(s.queue)
	}
	s.mu.Unlock()
	s.wg.Wait()
}

const auditColumns = `id, shop_id, entity_type, entity_id, action, performed_by, old_value, new_value, performed_at`

func (s *AuditService) authorize(ctx context.Context, shopID, userID int64) error {
	if _, err := s.guard.Authorize(ctx, shopID, userID); err != nil {
		if ErrorCode(err) == CodeForbidden {
			return ErrShopNotFound
		}
		return err
	}
	return nil
}

// ListByShop returns the newest audit rows of a shop for any active member.
func (s *AuditService) ListByShop(ctx context.Context, shopID, userID int64, limit int) ([]models.AuditLog, error) {
	if err := s.authorize(ctx, shopID, userID); err != nil {
		return nil, err
	}

	if limit <= 0 {
		limit = s.config.DefaultAuditLimit
	}
	if limit > s.config.MaxAuditLimit {
		limit = s.config.MaxAuditLimit
	}

	logs := []models.AuditLog{}
	err := s.db.SelectContext(ctx, &logs, `
		SELECT `+auditColumns+`
		FROM audit_log
		WHERE shop_id = $1
		ORDER BY performed_at DESC
		LIMIT $2`, shopID, limit)
	if err != nil {
		return nil, fmt.Errorf("list audit logs for shop %d: %w", shopID, err)
	}
	return logs, nil
}

// ListPaginated pages through a shop's audit trail, newest first. The date
// range covers whole days and applies only when both bounds are set.
func (s *AuditService) ListPaginated(ctx context.Context, shopID, userID int64, f models.AuditFilter, p models.PageRequest) (models.Page[models.AuditLog], error) {
	p = s.config.PageRequest(p.Page, p.Size)
	if err := s.authorize(ctx, shopID, userID); err != nil {
		return models.Page[models.AuditLog]{}, err
	}

	clauses := []string{"shop_id = $1"}
	args := []any{shopID}
	if f.Action != "" {
		args = append(args, string(f.Action))
		clauses = append(clauses, fmt.Sprintf("action = $%d", len(args)))
	}
	if f.EntityType != "" {
		args = append(args, f.EntityType)
		clauses = append(clauses, fmt.Sprintf("entity_type = $%d", len(args)))
	}
	if f.StartDate != nil && f.EndDate != nil {
		args = append(args, dateOf(*f.StartDate), dateOf(*f.EndDate).AddDate(0, 0, 1))
		clauses = append(clauses, fmt.Sprintf("performed_at >= $%d AND performed_at < $%d", len(args)-1, len(args)))
	}
	where := strings.Join(clauses, " AND ")

	var total int64
	if err := s.db.GetContext(ctx, &total, `SELECT COUNT(*) FROM audit_log WHERE `+where, args...); err != nil {
		return models.Page[models.AuditLog]{}, fmt.Errorf("count audit logs for shop %d: %w", shopID, err)
	}

	logs := []models.AuditLog{}
	if total > 0 {
		n := len(args)
		query := fmt.Sprintf(`SELECT %s FROM audit_log WHERE %s ORDER BY performed_at DESC LIMIT $%d OFFSET $%d`,
			auditColumns, where, n+1, n+2)
		if err := s.db.SelectContext(ctx, &logs, query, append(args, p.Size, p.Offset())...); err != nil {
			return models.Page[models.AuditLog]{}, fmt.Errorf("list audit logs for shop %d: %w", shopID, err)
		}
	}
	return models.NewPage(logs, p, total), nil
}

// ListActions returns the distinct actions recorded for a shop.
func (s *AuditService) ListActions(ctx context.Context, shopID, userID int64) ([]string, error) {
	return s.distinct(ctx, shopID, userID, "action")
}

// ListEntityTypes returns the distinct entity types recorded for a shop.
func (s *AuditService) ListEntityTypes(ctx context.Context, shopID, userID int64) ([]string, error) {
	return s.distinct(ctx, shopID, userID, "entity_type")
}

// distinct lists the values of column, which must be a trusted identifier.
func (s *AuditService) distinct(ctx context.Context, shopID, userID int64, column string) ([]string, error) {
	if err := s.authorize(ctx, shopID, userID); err != nil {
		return nil, err
	}

	values := []string{}
	query := fmt.Sprintf(`SELECT DISTINCT %[1]s FROM audit_log WHERE shop_id = $1 ORDER BY %[1]s`, column)
	if err := s.db.SelectContext(ctx, &values, query, shopID); err != nil {
		return nil, fmt.Errorf("list %s values for shop %d: %w", column, shopID, err)
	}
	return values, nil
}
