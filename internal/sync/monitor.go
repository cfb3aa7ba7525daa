package sync

import (
	"context"
	"log"
	"sync"
	"time"

	"github.com/servly-app/servlygo/internal/config"
)

// Monitor observes reachability of the marketplace API and triggers a
// drain once on every offline-to-online transition. All other components
// read connectivity through it instead of probing the network themselves.
type Monitor struct {
	mu      sync.RWMutex
	online  bool
	running bool

	prober    Prober
	engine    *Engine
	publisher EventPublisher

	interval      time.Duration
	probeTimeout  time.Duration
	syncOnStartup bool
	stopChan      chan struct{}
}

// NewMonitor creates a connectivity monitor
func NewMonitor(prober Prober, engine *Engine, publisher EventPublisher, cfg *config.SyncConfig) *Monitor {
	interval := time.Duration(cfg.HealthCheckInterval) * time.Second
	if interval <= 0 {
		interval = 30 * time.Second
	}
	probeTimeout := time.Duration(cfg.ProbeTimeout) * time.Second
	if probeTimeout <= 0 {
		probeTimeout = 5 * time.Second
	}
	return &Monitor{
		prober:        prober,
		engine:        engine,
		publisher:     publisher,
		interval:      interval,
		probeTimeout:  probeTimeout,
		syncOnStartup: cfg.SyncOnStartup,
		stopChan:      make(chan struct{}),
	}
}

// Start begins watching connectivity. The first probe runs immediately so
// startup state does not wait a full interval.
func (m *Monitor) Start() {
	m.mu.Lock()
	if m.running {
		m.mu.Unlock()
		return
	}
	m.running = true
	m.mu.Unlock()

	log.Printf("📡 Connectivity monitor starting (probe every %v)", m.interval)
	go m.watchLoop()
}

// Stop halts the watch loop
func (m *Monitor) Stop() {
	m.mu.Lock()
	defer m.mu.Unlock()
	if !m.running {
		return
	}
	m.running = false
	close(m.stopChan)
}

// IsOnline returns the current connectivity reading
func (m *Monitor) IsOnline() bool {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.online
}

// ForceSync re-checks live connectivity before draining, guarding against
// a stale online flag after sleep/resume. The engine's own guard collapses
// this with any concurrently running drain.
func (m *Monitor) ForceSync(ctx context.Context) DrainResult {
	probeCtx, cancel := context.WithTimeout(ctx, m.probeTimeout)
	online := m.prober.Ping(probeCtx)
	cancel()

	m.applyReading(online, false)

	if !online {
		log.Println("⚠️ Force sync requested but remote is unreachable")
		return DrainResult{Skipped: true}
	}
	return m.engine.Drain(ctx)
}

// watchLoop probes on a fixed cadence and reacts to transitions
func (m *Monitor) watchLoop() {
	// Immediate first reading. If the process starts online this is an
	// offline-to-online edge; whether it drains is the startup policy.
	ctx, cancel := context.WithTimeout(context.Background(), m.probeTimeout)
	online := m.prober.Ping(ctx)
	cancel()
	m.applyReading(online, m.syncOnStartup)

	ticker := time.NewTicker(m.interval)
	defer ticker.Stop()

	for {
		select {
		case <-ticker.C:
			m.probe()
		case <-m.stopChan:
			log.Println("🛑 Connectivity monitor stopped")
			return
		}
	}
}

func (m *Monitor) probe() {
	ctx, cancel := context.WithTimeout(context.Background(), m.probeTimeout)
	online := m.prober.Ping(ctx)
	cancel()
	m.applyReading(online, true)
}

// applyReading records a fresh connectivity reading. Only the
// offline-to-online edge triggers a drain; online-to-online
// re-confirmations do not.
func (m *Monitor) applyReading(online bool, drainOnReconnect bool) {
	m.mu.Lock()
	wasOnline := m.online
	m.online = online
	m.mu.Unlock()

	if online == wasOnline {
		return
	}

	if online {
		log.Println("🌐 Connection restored")
	} else {
		log.Println("📵 Connection lost, mutations will queue locally")
	}

	if m.publisher != nil {
		m.publisher.Publish(EventConnectivity, map[string]bool{"online": online})
	}

	if online && drainOnReconnect {
		go func() {
			m.engine.Drain(context.Background())
		}()
	}
}
