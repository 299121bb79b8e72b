package main

import (
	"context"
	"encoding/json"
	"log"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/duebook/backend/internal/config"
	"github.com/duebook/backend/internal/database"
	"github.com/duebook/backend/internal/handlers"
	mW "github.com/duebook/backend/internal/middleware"
	"github.com/duebook/backend/internal/services"
	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/go-chi/cors"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/spf13/viper"
)

func main() {
	// Initialize config
	viper.SetConfigFile(".env") // explicitly point to .env file
	viper.AutomaticEnv()        // allow environment variables to override .env

	viper.BindEnv("database.host", "DATABASE_HOST")
	viper.BindEnv("database.port", "DATABASE_PORT")
	viper.BindEnv("database.user", "DATABASE_USER")
	viper.BindEnv("database.password", "DATABASE_PASSWORD")
	viper.BindEnv("database.name", "DATABASE_NAME")
	viper.BindEnv("database.ssl_mode", "DATABASE_SSL_MODE")

	viper.BindEnv("redis.host", "REDIS_HOST")
	viper.BindEnv("redis.port", "REDIS_PORT")
	viper.BindEnv("redis.password", "REDIS_PASSWORD")
	viper.BindEnv("redis.db", "REDIS_DB")

	viper.BindEnv("jwt.secret_key", "JWT_SECRET_KEY")
	viper.BindEnv("jwt.expiry_hours", "JWT_EXPIRY_HOURS")
	viper.BindEnv("argon2.time", "ARGON2_TIME")
	viper.BindEnv("argon2.memory", "ARGON2_MEMORY")
	viper.BindEnv("argon2.threads", "ARGON2_THREADS")
	viper.BindEnv("argon2.key_length", "ARGON2_KEY_LENGTH")
	viper.BindEnv("argon2.salt_length", "ARGON2_SALT_LENGTH")

	viper.SetDefault("jwt.expiry_hours", 24)
	viper.SetDefault("argon2.time", 1)
	viper.SetDefault("argon2.memory", 64*1024)
	viper.SetDefault("argon2.threads", 4)
	viper.SetDefault("argon2.key_length", 32)
	viper.SetDefault("argon2.salt_length", 16)

	if err := viper.ReadInConfig(); err != nil {
		log.Printf("Config file not found, using defaults: %v", err)
	}
	if viper.GetString("jwt.secret_key") == "" {
		log.Fatal("JWT_SECRET_KEY must be set")
	}

	ledgerConfig := config.LoadLedgerConfig()

	// Initialize storage
	db := database.InitDatabase()
	defer db.Close()

	redisClient := database.InitRedis()
	if redisClient != nil {
		defer redisClient.Close()
	}

	// Initialize services
	guard := services.NewAccessGuard(db)
	auditService := services.NewAuditService(db, guard, ledgerConfig)
	defer auditService.Close()

	ledgerService := services.NewLedgerService(db, guard, auditService, ledgerConfig)
	dashboardService := services.NewDashboardService(db, guard, redisClient, ledgerConfig)
	customerService := services.NewCustomerService(db, guard, ledgerService, auditService)
	shopService := services.NewShopService(db, guard, auditService)
	authService := services.NewAuthService(db, redisClient)

	ledgerService.SetInvalidator(dashboardService)
	customerService.SetInvalidator(dashboardService)

	ledgerHandler := handlers.NewLedgerHandler(ledgerService)
	customerHandler := handlers.NewCustomerHandler(customerService)
	shopHandler := handlers.NewShopHandler(shopService)
	dashboardHandler := handlers.NewDashboardHandler(dashboardService)
	auditHandler := handlers.NewAuditHandler(auditService)

	// Initialize auth middleware with Redis
	mW.InitAuthMiddleware(redisClient)

	// Setup router
	r := chi.NewRouter()

	// Middleware
	r.Use(mW.SecurityHeaders)
	r.Use(middleware.Logger)
	r.Use(middleware.Recoverer)
	r.Use(middleware.RealIP)
	r.Use(middleware.Timeout(60 * time.Second))

	// CORS
	r.Use(cors.Handler(cors.Options{
		AllowedOrigins:   []string{"https://*", "http://*"},
		AllowedMethods:   []string{"GET", "POST", "PUT", "DELETE", "OPTIONS"},
		AllowedHeaders:   []string{"Accept", "Authorization", "Content-Type"},
		ExposedHeaders:   []string{"Link"},
		AllowCredentials: true,
		MaxAge:           86400,
	}))

	// Health check
	r.Get("/health", func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		json.NewEncoder(w).Encode(map[string]string{"status": "healthy"})
	})
	r.Handle("/metrics", promhttp.Handler())

	// API routes
	r.Route("/api", func(r chi.Router) {
		// Public endpoints (no auth required)
		r.Post("/auth/register", authService.Register)
		r.Post("/auth/login", authService.Login)
		r.Post("/auth/logout", authService.Logout)

		// Protected endpoints (auth required)
		r.Group(func(r chi.Router) {
			r.Use(mW.AuthMiddleware)

			r.Get("/auth/me", authService.Me)

			r.Get("/shops", shopHandler.ListShops)
			r.Post("/shops", shopHandler.CreateShop)
			r.Get("/shops/{shopId}", shopHandler.GetShop)
			r.Put("/shops/{shopId}", shopHandler.UpdateShop)
			r.Get("/shops/{shopId}/users", shopHandler.ListMembers)
			r.Post("/shops/{shopId}/users", shopHandler.AddMember)
			r.Put("/shops/{shopId}/users/{userId}/role", shopHandler.UpdateMemberRole)
			r.Delete("/shops/{shopId}/users/{userId}", shopHandler.RemoveMember)

			r.Get("/customers", customerHandler.ListForUser)
			r.Post("/customers", customerHandler.CreateCustomer)
			r.Get("/customers/shop/{shopId}", customerHandler.ListByShop)
			r.Get("/customers/shop/{shopId}/paginated", customerHandler.ListPaginated)
			r.Get("/customers/shop/{shopId}/summary", customerHandler.Summary)
			r.Get("/customers/{id}", customerHandler.GetCustomer)
			r.Put("/customers/{id}", customerHandler.UpdateCustomer)

			r.Get("/ledger", ledgerHandler.ListForUser)
			r.Post("/ledger", ledgerHandler.CreateEntry)
			r.Post("/ledger/{id}/reverse", ledgerHandler.ReverseEntry)
			r.Get("/ledger/{id}", ledgerHandler.GetEntry)
			r.Get("/ledger/customer/{customerId}", ledgerHandler.ListByCustomer)
			r.Get("/ledger/shop/{shopId}", ledgerHandler.ListByShop)
			r.Get("/ledger/shop/{shopId}/summary", ledgerHandler.Summary)
			r.Get("/ledger/shop/{shopId}/paginated", ledgerHandler.ListPaginated)

			r.Get("/dashboard/metrics", dashboardHandler.GetMetrics)
			r.Get("/dashboard/metrics/shop/{shopId}", dashboardHandler.GetShopMetrics)

			r.Get("/audit-logs/shop/{shopId}", auditHandler.ListByShop)
			r.Get("/audit-logs/shop/{shopId}/paginated", auditHandler.ListPaginated)
			r.Get("/audit-logs/shop/{shopId}/actions", auditHandler.ListActions)
			r.Get("/audit-logs/shop/{shopId}/entity-types", auditHandler.ListEntityTypes)
		})
	})

	port := os.Getenv("PORT")
	if port == "" {
		port = "8080"
	}

	// Start server
	server := &http.Server{
		Addr:         ":" + port,
		Handler:      r,
		ReadTimeout:  15 * time.Second,
		WriteTimeout: 15 * time.Second,
		IdleTimeout:  60 * time.Second,
	}

	// Graceful shutdown
	go func() {
		log.Printf("Server starting on :%s", port)
		if err := server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			log.Fatalf("Server failed: %v", err)
		}
	}()

	// Wait for interrupt signal
	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit

	log.Println("Server shutting down...")
	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	if err := server.Shutdown(ctx); err != nil {
		log.Printf("Server forced to shutdown: %v", err)
	}

	log.Println("Server stopped")
}
