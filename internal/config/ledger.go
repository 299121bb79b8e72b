package config

import (
	"os"
	"strconv"
	"time"

	"github.com/duebook/backend/internal/models"
)

type LedgerConfig struct {
	TrendDays          int
	TopCustomersLimit  int
	DashboardCacheTTL  time.Duration
	AuditQueueSize     int
	AuditWriteTimeout  time.Duration
	DefaultAuditLimit  int
	MaxAuditLimit      int
	DefaultPageSize    int
	MaxPageSize        int
	OpeningBalanceNote string
}

func LoadLedgerConfig() *LedgerConfig {
	return &LedgerConfig{
		TrendDays:          getEnvAsInt("LEDGER_TREND_DAYS", 30),
		TopCustomersLimit:  getEnvAsInt("LEDGER_TOP_CUSTOMERS", 10),
		DashboardCacheTTL:  getEnvAsDuration("DASHBOARD_CACHE_TTL", 30*time.Second),
		AuditQueueSize:     getEnvAsInt("AUDIT_QUEUE_SIZE", 1024),
		AuditWriteTimeout:  getEnvAsDuration("AUDIT_WRITE_TIMEOUT", 5*time.Second),
		DefaultAuditLimit:  getEnvAsInt("AUDIT_DEFAULT_LIMIT", 50),
		MaxAuditLimit:      getEnvAsInt("AUDIT_MAX_LIMIT", 500),
		DefaultPageSize:    getEnvAsInt("DEFAULT_PAGE_SIZE", 20),
		MaxPageSize:        getEnvAsInt("MAX_PAGE_SIZE", 100),
		OpeningBalanceNote: getEnv("LEDGER_OPENING_BALANCE_NOTE", "Opening balance for new customer"),
	}
}

func getEnv(key, defaultVal string) string {
	if val := os.Getenv(key); val != "" {
		return val
	}
	return defaultVal
}

func getEnvAsInt(key string, defaultVal int) int {
	if val := os.Getenv(key); val != "" {
		if intVal, err := strconv.Atoi(val); err == nil {
			return intVal
		}
	}
	return defaultVal
}

func getEnvAsDuration(key string, defaultVal time.Duration) time.Duration {
	if val := os.Getenv(key); val != "" {
		if duration, err := time.ParseDuration(val); err == nil {
			return duration
		}
	}
	return defaultVal
}

// PageRequest clamps a requested page: negative pages become the first page,
// a missing size becomes the default and oversized pages are capped.
func (c *LedgerConfig) PageRequest(page, size int) models.PageRequest {
	if page < 0 {
		page = 0
	}
	if size <= 0 {
		size = c.DefaultPageSize
	}
	if size > c.MaxPageSize {
		size = c.MaxPageSize
	}
	return models.PageRequest{Page: page, Size: size}
}
