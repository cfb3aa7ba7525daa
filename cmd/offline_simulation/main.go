package main

import (
	"context"
	"encoding/json"
	"fmt"
	"log"
	"net"
	"net/http"
	"os"
	"time"

	"github.com/servly-app/servlygo/internal/booking"
	"github.com/servly-app/servlygo/internal/config"
	"github.com/servly-app/servlygo/internal/database"
	"github.com/servly-app/servlygo/internal/models"
	"github.com/servly-app/servlygo/internal/store"
	"github.com/servly-app/servlygo/internal/sync"
)

// End-to-end walk through the offline lifecycle against the real embedded
// database: queue a booking while the marketplace is down, bring it up,
// force a drain and verify the local identifier was remapped.
func main() {
	fmt.Println("Simulating offline booking lifecycle...")

	const marketplaceAddr = "127.0.0.1:4599"
	os.Setenv("MARKETPLACE_API_URL", "http://"+marketplaceAddr)
	if os.Getenv("JWT_SECRET") == "" {
		os.Setenv("JWT_SECRET", "simulation-secret")
	}

	// 1. Init DB
	cfg, err := config.Load()
	if err != nil {
		log.Fatalf("Config error: %v", err)
	}
	db, err := database.Connect(cfg.Database)
	if err != nil {
		log.Fatalf("DB Error: %v", err)
	}
	defer db.Close()

	if err := db.AutoMigrate(&models.QueuedIntent{}, &models.CachedEntity{}); err != nil {
		log.Fatalf("Migration error: %v", err)
	}

	queue := store.NewMutationQueue(db)
	cache := store.NewEntityCache(db)
	client := sync.NewAPIClient(cfg.Remote)

	syncCfg := config.LoadSyncConfig()
	bookings := booking.NewStore(queue, cache, client, nil, nil)
	engine := sync.NewEngine(queue, cache, bookings, client, nil, syncCfg)
	monitor := sync.NewMonitor(client, engine, nil, syncCfg)
	bookings.SetOnline(monitor.IsOnline)

	ctx := context.Background()

	// Start from a clean slate so reruns are deterministic
	queue.Clear(ctx)
	cache.Clear(ctx)

	// 2. Create a booking while the marketplace is unreachable
	b, err := bookings.CreateBooking(ctx, models.CreateBookingPayload{
		ServiceID:   "svc-cleaning",
		ProviderID:  "prov-42",
		ScheduledAt: time.Now().Add(48 * time.Hour).UTC(),
		Notes:       "Ring the bell twice",
		Price:       89.50,
	})
	if err != nil {
		log.Fatalf("Offline create failed: %v", err)
	}
	if b.Synced() {
		log.Fatalf("[FAIL] Booking should carry a local identifier, got %s", b.ID)
	}
	pending, _ := queue.PendingCount(ctx)
	fmt.Printf("[OK] Booking %s queued while offline (pending=%d)\n", b.ID, pending)

	// 3. Bring the marketplace up
	ln, err := net.Listen("tcp", marketplaceAddr)
	if err != nil {
		log.Fatalf("Failed to start marketplace stub: %v", err)
	}
	server := &http.Server{Handler: marketplaceStub()}
	go server.Serve(ln)
	defer server.Close()
	fmt.Println("[...] Marketplace is up, forcing a sync")

	// 4. Drain
	result := monitor.ForceSync(ctx)
	if result.Skipped {
		log.Fatalf("[FAIL] Drain was skipped; marketplace probe did not succeed")
	}
	if result.Synced != 1 {
		log.Fatalf("[FAIL] Expected 1 synced intent, got %d (failures: %v)", result.Synced, result.Failures)
	}

	// 5. Verify the remap
	synced, ok := bookings.Get(b.LocalID)
	if !ok || !synced.Synced() {
		log.Fatalf("[FAIL] Booking was not remapped to a server identifier")
	}
	pending, _ = queue.PendingCount(ctx)
	if pending != 0 {
		log.Fatalf("[FAIL] Queue should be empty, has %d", pending)
	}
	fmt.Printf("[OK] Booking remapped: %s -> %s\n", synced.LocalID, synced.ID)

	// 6. A second forced drain must be a no-op
	again := monitor.ForceSync(ctx)
	if again.Processed != 0 {
		log.Fatalf("[FAIL] Second drain processed %d intents", again.Processed)
	}
	fmt.Println("[OK] Second drain was a no-op")

	// Cleanup
	queue.Clear(ctx)
	cache.Clear(ctx)
	fmt.Println("[SUCCESS] Offline lifecycle verified")
}

// marketplaceStub is a minimal in-process marketplace: it confirms every
// booking and deduplicates on the offline identifier
func marketplaceStub() http.Handler {
	seen := map[string]models.Booking{}
	mux := http.NewServeMux()

	mux.HandleFunc("/health", func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
	})

	mux.HandleFunc("/bookings", func(w http.ResponseWriter, r *http.Request) {
		var body struct {
			OfflineID   string    `json:"offline_id"`
			ServiceID   string    `json:"serviceId"`
			ProviderID  string    `json:"providerId"`
			ScheduledAt time.Time `json:"scheduledAt"`
			Notes       string    `json:"notes"`
			Price       float64   `json:"price"`
		}
		if err := json.NewDecoder(r.Body).Decode(&body); err != nil {
			w.WriteHeader(http.StatusBadRequest)
			return
		}

		if prior, ok := seen[body.OfflineID]; ok {
			w.Header().Set("Content-Type", "application/json")
			w.WriteHeader(http.StatusConflict)
			json.NewEncoder(w).Encode(map[string]interface{}{
				"error": "already_processed",
				"data":  prior,
			})
			return
		}

		created := models.Booking{
			ID:          fmt.Sprintf("srv-%d", len(seen)+1),
			ServiceID:   body.ServiceID,
			ProviderID:  body.ProviderID,
			Status:      models.BookingStatusPending,
			ScheduledAt: body.ScheduledAt,
			Notes:       body.Notes,
			Price:       body.Price,
			CreatedAt:   time.Now().UTC(),
			UpdatedAt:   time.Now().UTC(),
		}
		seen[body.OfflineID] = created

		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(http.StatusCreated)
		json.NewEncoder(w).Encode(map[string]interface{}{"data": created})
	})

	return mux
}
