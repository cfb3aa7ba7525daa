package main

import (
	"context"
	"log"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/servly-app/servlygo/internal/booking"
	"github.com/servly-app/servlygo/internal/config"
	"github.com/servly-app/servlygo/internal/database"
	"github.com/servly-app/servlygo/internal/handlers"
	"github.com/servly-app/servlygo/internal/models"
	"github.com/servly-app/servlygo/internal/store"
	"github.com/servly-app/servlygo/internal/sync"
	"github.com/servly-app/servlygo/internal/websocket"
)

func main() {
	// 1. Load configuration
	cfg, err := config.Load()
	if err != nil {
		log.Fatalf("Failed to load configuration: %v", err)
	}

	// 2. Initialize database (Detects Embedded vs External automatically)
	db, err := database.Connect(cfg.Database)
	if err != nil {
		log.Fatalf("Failed to connect to database: %v", err)
	}
	// Note: db.Close() is called manually in shutdown handler below

	// 3. Auto-Migrate Schema (Critical for Zero-Config)
	log.Println("🚀 Synchronizing database schema...")
	err = db.AutoMigrate(
		&models.UserAuth{},
		&models.QueuedIntent{},
		&models.CachedEntity{},
	)
	if err != nil {
		log.Printf("⚠️ Migration warning: %v\n", err)
	} else {
		log.Println("✅ Schema synchronized successfully")
	}

	// 4. Durable stores
	queue := store.NewMutationQueue(db)
	cache := store.NewEntityCache(db)

	// 5. Remote client and websocket hub
	client := sync.NewAPIClient(cfg.Remote)
	hub := websocket.NewHub()
	go hub.Run()

	// 6. Sync engine + connectivity monitor
	log.Println("🔄 Initializing Sync Engine...")
	syncCfg := config.LoadSyncConfig()

	bookings := booking.NewStore(queue, cache, client, nil, hub)
	engine := sync.NewEngine(queue, cache, bookings, client, hub, syncCfg)
	monitor := sync.NewMonitor(client, engine, hub, syncCfg)
	bookings.SetOnline(monitor.IsOnline)

	// Resume the offline session before anything touches the state
	if err := bookings.Hydrate(context.Background()); err != nil {
		log.Printf("⚠️ Cache hydration failed: %v", err)
	}

	if syncCfg.Enabled {
		monitor.Start()
		log.Println("✅ Connectivity monitor started")
	}

	// 7. Local HTTP API
	router := handlers.NewRouter(db, cfg, bookings, engine, monitor, client, queue, cache, hub)

	server := &http.Server{
		Addr:    ":" + cfg.Port,
		Handler: router,
	}

	// Channel to listen for shutdown signals
	shutdown := make(chan os.Signal, 1)
	signal.Notify(shutdown, os.Interrupt, syscall.SIGTERM, syscall.SIGINT)

	// Start server in goroutine
	go func() {
		log.Printf("🚀 Agent starting on port %s\n", cfg.Port)
		if err := server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			log.Fatalf("Failed to start server: %v", err)
		}
	}()

	// Wait for shutdown signal
	sig := <-shutdown
	log.Printf("\n⚠️  Received signal: %v. Shutting down gracefully...\n", sig)

	// Create context with timeout for graceful shutdown
	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	monitor.Stop()

	if err := server.Shutdown(ctx); err != nil {
		log.Printf("⚠️ HTTP shutdown error: %v", err)
	}

	if err := db.Close(); err != nil {
		log.Printf("⚠️ Database shutdown error: %v", err)
	}

	log.Println("🛑 Agent stopped")
}
