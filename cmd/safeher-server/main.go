package main

import (
	"context"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"sync"
	"syscall"
	"time"

	"github.com/gin-contrib/cors"
	"github.com/gin-gonic/gin"
	"github.com/joho/godotenv"

	"github.com/safeher/safeher-backend/internal/api"
	"github.com/safeher/safeher-backend/internal/config"
	"github.com/safeher/safeher-backend/internal/dispatch"
	"github.com/safeher/safeher-backend/internal/events"
	"github.com/safeher/safeher-backend/internal/logging"
	"github.com/safeher/safeher-backend/internal/notify"
	"github.com/safeher/safeher-backend/internal/repository"
)

func main() {
	_ = godotenv.Load()

	cfg, err := config.Load()
	if err != nil {
		logging.Fatalf("Fatal while loading config: %v", err)
	}
	logging.Setup(cfg.Logging.Level)

	slog.Info("Server starting", "host", cfg.Server.Host, "port", cfg.Server.Port)

	db, err := repository.NewSQLiteDB(cfg.DB.Path)
	if err != nil {
		logging.Fatalf("Failed to initialize database: %v", err)
	}
	defer db.Close()

	// Broadcaster with an audit subscriber: every dispatched alert is
	// logged with its delivery summary.
	broadcaster := events.NewBroadcaster()
	_, auditCh := broadcaster.Subscribe()
	var auditWG sync.WaitGroup
	auditWG.Add(1)
	go func() {
		defer auditWG.Done()
		for ev := range auditCh {
			slog.Info("alert dispatched",
				"alert_id", ev.AlertID, "user_id", ev.UserID,
				"contacts_notified", ev.ContactsNotified, "total_contacts", ev.TotalContacts)
		}
	}()

	notifier := notify.NewEmailNotifier(
		cfg.Notify.ResendAPIKey,
		cfg.Notify.FromAddress,
		cfg.Notify.ResendURL,
		cfg.Notify.Timeout,
	)

	dispatcher := dispatch.NewService(db, db, db, notifier, broadcaster, cfg.Notify.MaxConcurrent)

	// Gin router
	gin.SetMode(gin.ReleaseMode)
	router := gin.New()
	router.Use(gin.Recovery())
	router.Use(cors.New(cors.Config{
		AllowOrigins:     []string{"*"},
		AllowMethods:     []string{"GET", "POST", "DELETE", "OPTIONS"},
		AllowHeaders:     []string{"Origin", "Content-Type"},
		ExposeHeaders:    []string{"Content-Length"},
		AllowCredentials: false,
	}))
	router.Use(api.RateLimitMiddleware(5)) // 5 req/s global limit

	handler := api.NewHandler(dispatcher, db, db)
	handler.RegisterRoutes(router)

	srv := &http.Server{
		Addr:    fmt.Sprintf("%s:%d", cfg.Server.Host, cfg.Server.Port),
		Handler: router,
	}

	go func() {
		slog.Info("server listening", "addr", srv.Addr)
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			logging.Fatalf("server error: %v", err)
		}
	}()

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit

	slog.Info("shutting down...")

	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer shutdownCancel()

	if err := srv.Shutdown(shutdownCtx); err != nil {
		slog.Error("server shutdown error", "error", err)
	}

	broadcaster.Close()
	auditWG.Wait()

	slog.Info("shutdown complete")
}
