package services

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log"
	"sort"
	"time"

	"github.com/duebook/backend/internal/config"
	"github.com/duebook/backend/internal/metrics"
	"github.com/duebook/backend/internal/models"
	"github.com/go-redis/redis/v8"
	"github.com/jmoiron/sqlx"
	"github.com/lib/pq"
)

// DashboardService aggregates customers and effective ledger entries into
// the dashboard payload. Per-shop results are cached in Redis until the next
// ledger write for that shop.
type DashboardService struct {
	db     *sqlx.DB
	guard  *AccessGuard
	redis  *redis.Client
	config *config.LedgerConfig
	now    func() time.Time
}

func NewDashboardService(db *sqlx.DB, guard *AccessGuard, rdb *redis.Client, cfg *config.LedgerConfig) *DashboardService {
	return &DashboardService{
		db:     db,
		guard:  guard,
		redis:  rdb,
		config: cfg,
		now:    time.Now,
	}
}

func dashboardCacheKey(shopID int64) string {
	return fmt.Sprintf("dashboard:shop:%d", shopID)
}

// GetMetrics covers every shop where the user is an active member.
func (s *DashboardService) GetMetrics(ctx context.Context, userID int64) (*models.DashboardMetrics, error) {
	shopIDs, err := s.guard.AccessibleShopIDs(ctx, userID)
	if err != nil {
		return nil, err
	}
	if len(shopIDs) == 0 {
		log.Printf("[DASHBOARD] User %d has no shops", userID)
		return emptyMetrics(), nil
	}
	return s.compute(ctx, shopIDs)
}

// GetShopMetrics covers one shop. A shop the user cannot see yields empty
// metrics rather than an error.
func (s *DashboardService) GetShopMetrics(ctx context.Context, shopID, userID int64) (*models.DashboardMetrics, error) {
	if _, err := s.guard.Authorize(ctx, shopID, userID); err != nil {
		if errors.Is(err, ErrForbidden) {
			log.Printf("[DASHBOARD] User %d does not have access to shop %d", userID, shopID)
			return emptyMetrics(), nil
		}
		return nil, err
	}

	if cached := s.cached(ctx, shopID); cached != nil {
		return cached, nil
	}

	m, err := s.compute(ctx, []int64{shopID})
	if err != nil {
		return nil, err
	}
	s.store(ctx, shopID, m)
	return m, nil
}

// InvalidateShop drops the cached metrics of a shop.
func (s *DashboardService) InvalidateShop(ctx context.Context, shopID int64) {
	if s.redis == nil {
		return
	}
	if err := s.redis.Del(ctx, dashboardCacheKey(shopID)).Err(); err != nil {
		log.Printf("[DASHBOARD] Failed to invalidate cache for shop %d: %v", shopID, err)
	}
}

func (s *DashboardService) cached(ctx context.Context, shopID int64) *models.DashboardMetrics {
	if s.redis == nil {
		return nil
	}
	data, err := s.redis.Get(ctx, dashboardCacheKey(shopID)).Bytes()
	if err == redis.Nil {
		metrics.DashboardCacheResults.WithLabelValues("miss").Inc()
		return nil
	}
	if err != nil {
		log.Printf("[DASHBOARD] Cache read failed for shop %d: %v", shopID, err)
		metrics.DashboardCacheResults.WithLabelValues("error").Inc()
		return nil
	}

	var m models.DashboardMetrics
	if err := json.Unmarshal(data, &m); err != nil {
		log.Printf("[DASHBOARD] Discarding corrupt cache entry for shop %d: %v", shopID, err)
		metrics.DashboardCacheResults.WithLabelValues("error").Inc()
		return nil
	}
	metrics.DashboardCacheResults.WithLabelValues("hit").Inc()
	return &m
}

func (s *DashboardService) store(ctx context.Context, shopID int64, m *models.DashboardMetrics) {
	if s.redis == nil {
		return
	}
	data, err := json.Marshal(m)
	if err != nil {
		return
	}
	if err := s.redis.Set(ctx, dashboardCacheKey(shopID), data, s.config.DashboardCacheTTL).Err(); err != nil {
		log.Printf("[DASHBOARD] Cache write failed for shop %d: %v", shopID, err)
	}
}

func (s *DashboardService) compute(ctx context.Context, shopIDs []int64) (*models.DashboardMetrics, error) {
	shops := []models.Shop{}
	err := s.db.SelectContext(ctx, &shops, `
		SELECT id, name, address, is_active, created_at, updated_at
		FROM shop WHERE id = ANY($1) ORDER BY id`, pq.Array(shopIDs))
	if err != nil {
		return nil, fmt.Errorf("load shops: %w", err)
	}

	customers := []models.Customer{}
	err = s.db.SelectContext(ctx, &customers,
		`SELECT `+customerColumns+` FROM customer WHERE shop_id = ANY($1) ORDER BY id`, pq.Array(shopIDs))
	if err != nil {
		return nil, fmt.Errorf("load customers: %w", err)
	}

	entries, err := selectEntriesByShop(ctx, s.db, shopIDs)
	if err != nil {
		return nil, err
	}

	m := buildMetrics(shops, customers, entries, s.now(), s.config)
	log.Printf("[DASHBOARD] Computed metrics over %d shops, %d customers, %d entries", len(shops), len(customers), len(entries))
	return m, nil
}

func emptyMetrics() *models.DashboardMetrics {
	return &models.DashboardMetrics{
		TopCustomers:     []models.TopCustomer{},
		TransactionTrend: []models.DailyTrend{},
		ShopDistribution: []models.ShopDistribution{},
	}
}

// buildMetrics derives every dashboard figure from already loaded rows.
// Customers are expected in id order so ties in the top list stay stable.
func buildMetrics(shops []models.Shop, customers []models.Customer, entries []models.LedgerEntry, now time.Time, cfg *config.LedgerConfig) *models.DashboardMetrics {
	m := emptyMetrics()

	shopNames := make(map[int64]string, len(shops))
	for _, shop := range shops {
		shopNames[shop.ID] = shop.Name
		if shop.IsActive {
			m.TotalShops++
		}
	}

	// Customers
	m.TotalCustomers = int64(len(customers))
	var balanceSum int64
	for _, c := range customers {
		if c.IsActive {
			m.ActiveCustomers++
		}
		balanceSum += c.CurrentBalance
	}
	if len(customers) > 0 {
		m.AverageCustomerBalance = float64(balanceSum) / float64(len(customers))
	}

	// Ledger totals over the effective set.
	effective := EffectiveEntries(entries)
	for _, e := range effective {
		switch e.EntryType {
		case models.EntryTypeBaki:
			m.TotalDebit += e.Amount
		case models.EntryTypePaid:
			m.TotalCredit += e.Amount
		}
	}
	m.NetBalance = m.TotalDebit - m.TotalCredit
	m.TotalTransactions = int64(len(effective))
	if len(effective) > 0 {
		m.AverageTransactionValue = float64(m.TotalDebit+m.TotalCredit) / float64(len(effective))
	}

	// Recent window
	today := dateOf(now)
	windowStart := today.AddDate(0, 0, -cfg.TrendDays)
	byDay := make(map[time.Time]*models.DailyTrend)
	for _, e := range effective {
		d := dateOf(e.EntryDate)
		if d.Before(windowStart) {
			continue
		}
		bucket, ok := byDay[d]
		if !ok {
			bucket = &models.DailyTrend{Date: d.Format("2006-01-02")}
			byDay[d] = bucket
		}
		switch e.EntryType {
		case models.EntryTypeBaki:
			m.EntryTypeDistribution.BakiCount++
			m.EntryTypeDistribution.BakiAmount += e.Amount
			bucket.DebitCount++
			bucket.DebitAmount += e.Amount
		case models.EntryTypePaid:
			m.EntryTypeDistribution.PaidCount++
			m.EntryTypeDistribution.PaidAmount += e.Amount
			bucket.CreditCount++
			bucket.CreditAmount += e.Amount
		}
	}
	for d := windowStart; !d.After(today); d = d.AddDate(0, 0, 1) {
		if bucket, ok := byDay[d]; ok {
			m.TransactionTrend = append(m.TransactionTrend, *bucket)
		}
	}

	// Outstanding balances
	var owing []models.Customer
	for _, c := range customers {
		if c.CurrentBalance > 0 {
			owing = append(owing, c)
			m.OverdueBakiCount++
			m.TotalOverdueBaki += c.CurrentBalance
			if c.IsActive {
				m.PaymentHealth.TotalActiveCustomersWithBalance++
			}
			if c.CurrentBalance > m.PaymentHealth.LargestOutstandingBalance {
				m.PaymentHealth.LargestOutstandingBalance = c.CurrentBalance
			}
		}
		if float64(c.CurrentBalance) > m.AverageCustomerBalance {
			m.PaymentHealth.CustomersAboveAverageBalance++
		}
	}
	if m.TotalDebit > 0 {
		m.PaymentHealth.CollectionRate = float64(m.TotalCredit) / float64(m.TotalDebit) * 100
	}

	sort.SliceStable(owing, func(i, j int) bool {
		return owing[i].CurrentBalance > owing[j].CurrentBalance
	})
	if len(owing) > cfg.TopCustomersLimit {
		owing = owing[:cfg.TopCustomersLimit]
	}
	for _, c := range owing {
		m.TopCustomers = append(m.TopCustomers, models.TopCustomer{
			CustomerID:     c.ID,
			Name:           c.Name,
			EntityName:     c.EntityName,
			ShopID:         c.ShopID,
			ShopName:       shopNameOr(shopNames, c.ShopID),
			CurrentBalance: c.CurrentBalance,
		})
	}

	// Per-shop distribution, in shop order, only shops with customers.
	perShop := make(map[int64]*models.ShopDistribution)
	for _, c := range customers {
		d, ok := perShop[c.ShopID]
		if !ok {
			d = &models.ShopDistribution{ShopID: c.ShopID, ShopName: shopNameOr(shopNames, c.ShopID)}
			perShop[c.ShopID] = d
		}
		d.CustomerCount++
		d.TotalBalance += c.CurrentBalance
	}
	for _, shop := range shops {
		if d, ok := perShop[shop.ID]; ok {
			m.ShopDistribution = append(m.ShopDistribution, *d)
		}
	}

	return m
}

func shopNameOr(names map[int64]string, id int64) string {
	if name, ok := names[id]; ok {
		return name
	}
	return "N/A"
}
