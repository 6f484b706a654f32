package main

import (
	"context"
	"log"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	clerk "github.com/clerk/clerk-sdk-go/v2"
	"github.com/google/uuid"
	gorilllaHandlers "github.com/gorilla/handlers"
	"github.com/gorilla/mux"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/redis/go-redis/v9"

	"spendSmartAPI/handlers"
	"spendSmartAPI/internal/challenge"
	"spendSmartAPI/internal/clock"
	"spendSmartAPI/internal/config"
	"spendSmartAPI/internal/leaderboard"
	"spendSmartAPI/internal/notification"
	"spendSmartAPI/internal/repository"
	"spendSmartAPI/internal/workers"
	"spendSmartAPI/middleware"
	"spendSmartAPI/services"

	_ "net/http/pprof"
)

// board is what both the engine (writes) and the leaderboard handler (reads)
// need from the streak leaderboard.
type board interface {
	services.StreakBoard
	handlers.StreakRanking
}

func main() {
	cfg, err := config.Load()
	if err != nil {
		log.Fatal("Invalid configuration: ", err)
	}

	if cfg.ClerkSecretKey == "" {
		log.Fatal("CLERK_SECRET_KEY environment variable is not set")
	}
	clerk.SetKey(cfg.ClerkSecretKey)
	log.Println("Clerk initialized successfully")

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	store, closeStore := openStore(ctx, cfg)
	defer closeStore()

	clk := clock.System()
	userService := services.NewUserService(store, clk)
	engine := services.NewGamificationService(store, clk, cfg.StreakLocation)

	if err := engine.SeedDefaults(ctx); err != nil {
		log.Fatal("Failed to seed default badges: ", err)
	}

	var streakBoard board = leaderboard.Disabled{}
	if cfg.RedisAddr != "" {
		redisClient := redis.NewClient(&redis.Options{Addr: cfg.RedisAddr})
		defer redisClient.Close()
		if err := redisClient.Ping(ctx).Err(); err != nil {
			log.Printf("Warning: Redis unreachable at %s, leaderboard disabled: %v", cfg.RedisAddr, err)
		} else {
			streakBoard = leaderboard.NewRedisBoard(redisClient)
			log.Println("Streak leaderboard backed by Redis")
		}
	}
	engine.SetLeaderboard(streakBoard)

	dispatcher := services.NewAwardDispatcher(store, 5)
	fcmService, err := notification.NewFCMService(ctx, cfg.FCMCredentialsJSON, cfg.FCMKeyFile)
	if err != nil {
		log.Printf("Warning: Could not initialize FCM: %v", err)
		dispatcher.SetPushProvider(&services.MockPushProvider{})
	} else {
		dispatcher.SetPushProvider(fcmService)
		log.Println("FCM Push Provider initialized successfully")
	}
	engine.SetNotifier(dispatcher)

	sweeper := workers.NewExpirySweeper(engine, cfg.SweepInterval, cfg.SweepConcurrency)
	sweeper.Start()

	middleware.InitPrometheus()
	services.InitMetrics()
	workers.InitMetrics()

	userHandler := handlers.NewUserHandler(userService)
	challengeHandler := handlers.NewChallengeHandler(engine, userService)
	expenseHandler := handlers.NewExpenseHandler(engine, userService)
	streakHandler := handlers.NewStreakHandler(engine, userService)
	badgeHandler := handlers.NewBadgeHandler(engine, userService)
	leaderboardHandler := handlers.NewLeaderboardHandler(streakBoard, userService)
	webhookHandler := handlers.NewWebhookHandler(userService, engine, cfg.ClerkWebhookSecret)

	r := mux.NewRouter()

	stopCleanup := make(chan struct{})
	limiter := middleware.NewRateLimiter(5, 30)
	go limiter.CleanupVisitors(stopCleanup)

	r.Use(limiter.Middleware)
	r.Use(middleware.MonitorMiddleware)

	r.Handle("/metrics", middleware.BasicAuthMiddleware(cfg.MetricsUser, cfg.MetricsPass)(promhttp.Handler()))
	r.PathPrefix("/debug/pprof/").Handler(middleware.PprofSecurityMiddleware(cfg.PprofSecret)(http.DefaultServeMux))

	r.HandleFunc("/health", func(w http.ResponseWriter, r *http.Request) {
		ctx, cancel := context.WithTimeout(r.Context(), 2*time.Second)
		defer cancel()

		w.Header().Set("Content-Type", "application/json")
		if err := store.Ping(ctx); err != nil {
			w.WriteHeader(http.StatusServiceUnavailable)
			w.Write([]byte(`{"status": "unhealthy", "error": "database connection failed"}`))
			return
		}

		w.WriteHeader(http.StatusOK)
		w.Write([]byte(`{"status": "healthy", "service": "spendSmart-api"}`))
	}).Methods("GET")

	r.HandleFunc("/webhooks/clerk", webhookHandler.HandleClerkWebhook).Methods("POST")

	// -------------------------------------------------------------------------
	// PROTECTED ROUTES (REQUIRE AUTH HEADER)
	// -------------------------------------------------------------------------
	protected := r.PathPrefix("/api/v1").Subrouter()
	protected.Use(middleware.ClerkAuthMiddleware)

	protected.HandleFunc("/user", userHandler.GetProfile).Methods("GET")
	protected.HandleFunc("/user", userHandler.UpdateProfile).Methods("PUT")
	protected.HandleFunc("/user", userHandler.DeleteAccount).Methods("DELETE")
	protected.HandleFunc("/user/device-token", userHandler.RegisterDevice).Methods("POST")

	protected.HandleFunc("/challenges", challengeHandler.ListChallenges).Methods("GET")
	protected.HandleFunc("/challenges/start", challengeHandler.StartChallenge).Methods("POST")
	protected.HandleFunc("/challenges/active", challengeHandler.GetActiveChallenge).Methods("GET")
	protected.HandleFunc("/challenges/history", challengeHandler.GetChallengeHistory).Methods("GET")
	protected.HandleFunc("/challenges/{id}/end", challengeHandler.EndChallenge).Methods("POST")

	protected.HandleFunc("/expenses", expenseHandler.AddExpense).Methods("POST")
	protected.HandleFunc("/expenses", expenseHandler.ListExpenses).Methods("GET")
	protected.HandleFunc("/expenses/{id}", expenseHandler.UpdateExpense).Methods("PUT")
	protected.HandleFunc("/expenses/{id}", expenseHandler.DeleteExpense).Methods("DELETE")

	protected.HandleFunc("/streaks", streakHandler.GetStreaks).Methods("GET")
	protected.HandleFunc("/streaks/login", streakHandler.CheckIn).Methods("POST")

	protected.HandleFunc("/badges", badgeHandler.GetBadges).Methods("GET")
	protected.HandleFunc("/badges/mine", badgeHandler.GetMyBadges).Methods("GET")

	protected.HandleFunc("/leaderboard/streaks", leaderboardHandler.GetStreakLeaderboard).Methods("GET")

	// CORS configuration
	corsHandler := gorilllaHandlers.CORS(
		gorilllaHandlers.AllowedOrigins([]string{"*"}),
		gorilllaHandlers.AllowedMethods([]string{"GET", "POST", "PUT", "DELETE", "OPTIONS"}),
		gorilllaHandlers.AllowedHeaders([]string{"Content-Type", "Authorization", "X-Pprof-Secret"}),
		gorilllaHandlers.ExposedHeaders([]string{"Content-Length"}),
		gorilllaHandlers.AllowCredentials(),
	)

	port := ":" + cfg.Port

	server := http.Server{
		Addr:         port,
		Handler:      corsHandler(r),
		ReadTimeout:  5 * time.Second,
		WriteTimeout: 10 * time.Second,
		IdleTimeout:  120 * time.Second,
	}

	go func() {
		log.Printf("Starting server on port %s", port)
		if err := server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			log.Fatal("Error starting server:", err)
		}
	}()

	// Graceful shutdown
	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, os.Interrupt, syscall.SIGTERM)

	sig := <-sigChan
	log.Println("Got signal:", sig)

	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer shutdownCancel()

	if err := server.Shutdown(shutdownCtx); err != nil {
		log.Printf("Server shutdown error: %v", err)
	}

	close(stopCleanup)
	sweeper.Stop()
	dispatcher.Stop()

	log.Println("Server shutdown complete")
}

// openStore connects the configured store and returns its close func.
func openStore(ctx context.Context, cfg *config.AppConfig) (repository.Store, func()) {
	if cfg.StoreDriver == config.DriverMemory {
		log.Println("Using in-memory store; data is lost on restart")
		mem := repository.NewMemoryStore()
		seedDevTemplates(ctx, mem)
		return mem, func() {}
	}

	poolConfig, err := pgxpool.ParseConfig(cfg.DatabaseURL)
	if err != nil {
		log.Fatal("Failed to parse database URL:", err)
	}

	poolConfig.MaxConns = 25
	poolConfig.MinConns = 5
	poolConfig.MaxConnLifetime = time.Hour
	poolConfig.MaxConnIdleTime = 30 * time.Minute
	poolConfig.HealthCheckPeriod = time.Minute

	dbPool, err := pgxpool.NewWithConfig(ctx, poolConfig)
	if err != nil {
		log.Fatal("Failed to create connection pool:", err)
	}

	if err := dbPool.Ping(ctx); err != nil {
		log.Fatal("Failed to ping database:", err)
	}
	log.Println("Successfully connected to Postgres")

	pg := repository.NewPostgresStore(dbPool)
	if err := pg.Migrate(ctx); err != nil {
		log.Fatal("Failed to apply schema:", err)
	}

	return pg, func() {
		log.Println("Closing database connection pool...")
		dbPool.Close()
	}
}

// seedDevTemplates gives a memory-backed server something to start.
func seedDevTemplates(ctx context.Context, mem *repository.MemoryStore) {
	now := time.Now()
	for _, t := range []challenge.Template{
		{Title: "No-spend day", Description: "Log only mindful purchases for 24 hours", DurationHours: 24},
		{Title: "Mindful week", Description: "Keep your mood positive while spending for a week", DurationHours: 24 * 7},
	} {
		t.ID = uuid.New()
		t.IsActive = true
		t.CreatedAt = now
		if err := mem.CreateTemplate(ctx, &t); err != nil {
			log.Printf("Failed to seed template %q: %v", t.Title, err)
		}
	}
}
