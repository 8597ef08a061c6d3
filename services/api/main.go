// API service: conversations, messages, live delivery over WebSocket.
package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"path/filepath"
	"sort"
	"strings"
	"sync"
	"syscall"
	"time"

	embeddedpostgres "github.com/fergusstrange/embedded-postgres"
	"github.com/go-chi/chi/v5"
	chimw "github.com/go-chi/chi/v5/middleware"
	"github.com/go-chi/cors"
	"github.com/google/uuid"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/bookswap/backend/internal/config"
	"github.com/bookswap/backend/internal/handler"
	"github.com/bookswap/backend/internal/logger"
	"github.com/bookswap/backend/internal/middleware"
	"github.com/bookswap/backend/internal/model"
	"github.com/bookswap/backend/internal/push"
	"github.com/bookswap/backend/internal/repository"
	"github.com/bookswap/backend/internal/service"
	"github.com/bookswap/backend/internal/startup"
	"github.com/bookswap/backend/internal/storage"
	"github.com/bookswap/backend/internal/storage/memory"
	"github.com/bookswap/backend/internal/ws"
	"github.com/bookswap/backend/migrations"
)

func main() {
	logger.SetPrefix("api")
	migrate := flag.Bool("migrate", false, "run database migrations and exit")
	dev := flag.Bool("dev", false, "start with embedded PostgreSQL and in-memory sessions (no external services required)")
	flag.Parse()

	logger.Info("starting API service")
	cfg := config.Load()

	var embeddedDB *embeddedpostgres.EmbeddedPostgres
	if *dev {
		var err error
		embeddedDB, err = startEmbeddedPostgres(cfg)
		if err != nil {
			logger.Errorf("embedded postgres: %v", err)
			os.Exit(1)
		}
		defer func() {
			logger.Info("stopping embedded postgres...")
			if err := embeddedDB.Stop(); err != nil {
				logger.Errorf("embedded postgres stop: %v", err)
			}
		}()
	}

	poolCfg, err := pgxpool.ParseConfig(cfg.DatabaseURL())
	if err != nil {
		logger.Errorf("parse db config: %v", err)
		os.Exit(1)
	}
	poolCfg.MaxConns = int32(cfg.DBMaxConnections())
	poolCfg.MinConns = 4

	pool := startup.ConnectDBWithRetry(poolCfg, 60*time.Second, "")
	defer pool.Close()

	runMigrations(pool)
	if *migrate && !*dev {
		return
	}
	logger.Info("database connected, migrations applied")

	var store storage.Store
	if *dev {
		store = memory.New()
	} else {
		store = startup.ConnectRedisWithRetry(cfg.Redis.URL, 60*time.Second, "")
	}
	defer store.Close()

	if cfg.VAPIDPublicKey == "" || cfg.VAPIDPrivateKey == "" {
		keys, err := push.EnsureVAPIDKeys("")
		if err != nil {
			logger.Infof("VAPID keys unavailable: %v (push disabled, subscriptions still stored)", err)
		} else {
			cfg.VAPIDPublicKey = keys.PublicKey
			cfg.VAPIDPrivateKey = keys.PrivateKey
		}
	}
	pushSender := push.NewSender(store, cfg.VAPIDPublicKey, cfg.VAPIDPrivateKey, cfg.VAPIDSubscriber)
	if !pushSender.Enabled() {
		logger.Info("web push disabled (no VAPID keys)")
	}

	userRepo := repository.NewUserRepository(pool)
	convRepo := repository.NewConversationRepository(pool, userRepo)
	msgRepo := repository.NewMessageRepository(pool, convRepo)
	summarySvc := service.NewSummaryService(convRepo, msgRepo, userRepo)

	hubCtx, hubCancel := context.WithCancel(context.Background())
	hub := ws.NewHub(convRepo, msgRepo, userRepo, pushSender, ws.Settings{
		MaxConns:       cfg.MaxWSConnections,
		SendBufferSize: cfg.WSSendBufferSize,
		WriteTimeout:   time.Duration(cfg.WSWriteTimeout) * time.Second,
		PongTimeout:    time.Duration(cfg.WSPongTimeout) * time.Second,
		MaxMessageSize: int64(cfg.WSMaxMessageSize),
	})

	var hubWg sync.WaitGroup
	hubWg.Add(1)
	go func() {
		defer hubWg.Done()
		hub.Run(hubCtx)
	}()

	if *dev {
		seedDevUsers(pool, userRepo, store)
	}

	convH := handler.NewConversationHandler(convRepo, summarySvc)
	msgH := handler.NewMessageHandler(msgRepo, convRepo, userRepo, hub)
	userH := handler.NewUserHandler(userRepo)
	wsH := handler.NewWSHandler(hub, cfg.CORSAllowedOrigins)
	configH := handler.NewConfigHandler(cfg.VAPIDPublicKey)
	pushH := handler.NewPushHandler(store)

	r := chi.NewRouter()
	r.Use(chimw.RealIP)
	r.Use(chimw.Logger)
	r.Use(middleware.RecoverJSON)
	// Never compress WebSocket traffic: the wrapped ResponseWriter would not
	// implement http.Hijacker and the upgrade answers 500.
	r.Use(func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, req *http.Request) {
			if strings.EqualFold(req.Header.Get("Upgrade"), "websocket") {
				next.ServeHTTP(w, req)
				return
			}
			chimw.Compress(5)(next).ServeHTTP(w, req)
		})
	})
	r.Use(middleware.RequestLog)
	r.Use(middleware.RateLimitAPI)
	r.Use(cors.Handler(cors.Options{
		AllowedOrigins:   []string{cfg.CORSAllowedOrigins},
		AllowedMethods:   []string{"GET", "POST", "PUT", "DELETE", "OPTIONS"},
		AllowedHeaders:   []string{"Accept", "Authorization", "Content-Type"},
		AllowCredentials: true,
		MaxAge:           300,
	}))

	r.Get("/health", func(w http.ResponseWriter, r *http.Request) { w.WriteHeader(http.StatusOK); w.Write([]byte("ok")) })
	r.Get("/api/config/push", configH.PushConfig)

	r.Group(func(r chi.Router) {
		r.Use(middleware.TokenAuth(store))
		r.Get("/api/users/me", userH.GetMe)
		r.Get("/api/users/search", userH.Search)
		r.Get("/api/users/{userId}", userH.Get)
		r.Post("/api/conversations", convH.CreateOrGet)
		r.Get("/api/conversations", convH.List)
		r.Get("/api/conversations/{conversationId}", convH.Get)
		r.Get("/api/conversations/{conversationId}/messages", msgH.List)
		r.Get("/api/conversations/{conversationId}/messages/search", msgH.Search)
		r.Post("/api/messages", msgH.Send)
		r.Put("/api/messages/{messageId}/delivered", msgH.MarkStatus(model.StatusDelivered))
		r.Put("/api/messages/{messageId}/seen", msgH.MarkStatus(model.StatusSeen))
		r.Put("/api/messages/{messageId}/read", msgH.MarkStatus(model.StatusRead))
		r.Post("/api/push/subscribe", pushH.Subscribe)
		r.Delete("/api/push/subscribe", pushH.Unsubscribe)
		r.Get("/ws", wsH.ServeWS)
	})

	srv := &http.Server{
		Addr:         cfg.ServerAddr,
		Handler:      r,
		ReadTimeout:  cfg.ReadTimeout,
		WriteTimeout: cfg.WriteTimeout,
		IdleTimeout:  cfg.IdleTimeout,
	}

	var srvWg sync.WaitGroup
	errCh := make(chan error, 1)
	srvWg.Add(1)
	go func() {
		defer srvWg.Done()
		logger.Infof("server listening on %s", cfg.ServerAddr)
		errCh <- srv.ListenAndServe()
	}()

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)

	select {
	case <-quit:
		logger.Info("shutdown signal received")
	case err := <-errCh:
		if err != nil && !errors.Is(err, http.ErrServerClosed) {
			logger.Errorf("server error: %v", err)
			os.Exit(1)
		}
	}

	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer shutdownCancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		logger.Errorf("server shutdown: %v", err)
	}
	logger.Info("server stopped accepting connections")
	hubCancel()
	hubWg.Wait()
	logger.Info("hub stopped")
	srvWg.Wait()
	logger.Info("server goroutine exited")
}

func runMigrations(pool *pgxpool.Pool) {
	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	entries, err := migrations.Files.ReadDir(".")
	if err != nil {
		logger.Errorf("read migrations: %v", err)
		os.Exit(1)
	}
	names := make([]string, 0, len(entries))
	for _, e := range entries {
		if strings.HasSuffix(e.Name(), ".sql") {
			names = append(names, e.Name())
		}
	}
	sort.Strings(names)
	for _, name := range names {
		data, err := migrations.Files.ReadFile(name)
		if err != nil {
			logger.Errorf("read migration %s: %v", name, err)
			os.Exit(1)
		}
		if _, err := pool.Exec(ctx, string(data)); err != nil {
			logger.Errorf("run migration %s: %v", name, err)
			os.Exit(1)
		}
	}
	logger.Info("migrations applied")
}

// seedDevUsers creates two demo accounts and logs their tokens, so -dev mode
// is usable without the auth service.
func seedDevUsers(pool *pgxpool.Pool, userRepo *repository.UserRepository, store storage.Store) {
	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	for _, username := range []string{"alice", "bob"} {
		u := &model.User{
			ID:        "dev-" + username,
			Username:  username,
			Email:     username + "@example.com",
			CreatedAt: time.Now().UTC(),
		}
		if err := userRepo.Create(ctx, u); err != nil {
			// Already seeded on a previous run; reuse the row.
			var exists bool
			if qErr := pool.QueryRow(ctx, `SELECT true FROM users WHERE id = $1`, u.ID).Scan(&exists); qErr != nil {
				logger.Errorf("seed user %s: %v", username, err)
				continue
			}
		}
		token := uuid.New().String()
		if err := store.SetSessionUser(ctx, token, u.ID); err != nil {
			logger.Errorf("seed session %s: %v", username, err)
			continue
		}
		logger.Infof("dev user %s id=%s token=%s", username, u.ID, token)
	}
}

func startEmbeddedPostgres(cfg *config.Config) (*embeddedpostgres.EmbeddedPostgres, error) {
	const (
		port     = 5432
		user     = "bookswap"
		password = "bookswap_secret"
		database = "bookswap"
	)

	dataDir := filepath.Join(".", ".pgdata")
	if err := os.MkdirAll(dataDir, 0o755); err != nil {
		return nil, fmt.Errorf("create pgdata dir: %w", err)
	}

	db := embeddedpostgres.NewDatabase(
		embeddedpostgres.DefaultConfig().
			Port(port).
			Username(user).
			Password(password).
			Database(database).
			DataPath(dataDir).
			RuntimePath(filepath.Join(os.TempDir(), "embedded-pg-runtime")),
	)

	logger.Info("starting embedded PostgreSQL...")
	if err := db.Start(); err != nil {
		return nil, fmt.Errorf("start: %w", err)
	}

	cfg.Database.URL = fmt.Sprintf(
		"postgres://%s:%s@localhost:%d/%s?sslmode=disable",
		user, password, port, database,
	)
	logger.Infof("embedded PostgreSQL running on port %d", port)
	return db, nil
}
