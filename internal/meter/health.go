package meter

import (
	"context"
	"sync"
	"time"

	"github.com/nana4rider/wisun-gateway/internal/infrastructure/mqtt"
	"github.com/nana4rider/wisun-gateway/internal/wisun"
)

// HealthReporter publishes gateway health to MQTT at regular intervals.
type HealthReporter struct {
	version   string
	startTime time.Time
	interval  time.Duration
	publisher HealthPublisher
	conn      StatsProvider
	statusFn  func() (HealthStatus, string)
	topics    mqtt.Topics

	// Shutdown signal for the report loop
	done     chan struct{}
	wg       sync.WaitGroup
	stopOnce sync.Once

	logger   Logger
	loggerMu sync.RWMutex
}

// HealthPublisher is the slice of the MQTT client the reporter needs
// to publish health messages.
type HealthPublisher interface {
	// PublishJSON marshals v and sends it to topic.
	PublishJSON(topic string, v any, retained bool) error

	// IsConnected reports whether the broker connection is up.
	IsConnected() bool
}

// StatsProvider supplies link counters for health messages.
type StatsProvider interface {
	Stats() wisun.Stats
}

// HealthReporterConfig configures NewHealthReporter.
type HealthReporterConfig struct {
	// Version is the gateway software version.
	Version string

	// Interval between health publishes. Zero means 30 seconds.
	Interval time.Duration

	// Publisher carries health messages to the broker.
	Publisher HealthPublisher

	// Connector provides link statistics.
	Connector StatsProvider

	// StatusFn evaluates the current status and reason.
	StatusFn func() (HealthStatus, string)
}

// NewHealthReporter builds a reporter; nothing publishes until Start.
func NewHealthReporter(cfg HealthReporterConfig) *HealthReporter {
	interval := cfg.Interval
	if interval == 0 {
		interval = 30 * time.Second
	}

	return &HealthReporter{
		version:   cfg.Version,
		startTime: time.Now(),
		interval:  interval,
		publisher: cfg.Publisher,
		conn:      cfg.Connector,
		statusFn:  cfg.StatusFn,
		done:      make(chan struct{}),
	}
}

// Start launches the periodic report loop.
func (h *HealthReporter) Start(ctx context.Context) {
	h.wg.Add(1)
	go h.reportLoop(ctx)
}

// Stop ends reporting and emits one last "stopping" status. Calling
// it again is a no-op.
func (h *HealthReporter) Stop() {
	h.stopOnce.Do(func() {
		close(h.done)
		h.wg.Wait()

		// Best-effort during shutdown, nothing we can do if it fails
		//nolint:errcheck
		h.publishStatus(HealthStopping, "")
	})
}

// SetLogger attaches a structured logger.
func (h *HealthReporter) SetLogger(logger Logger) {
	h.loggerMu.Lock()
	h.logger = logger
	h.loggerMu.Unlock()
}

// PublishStarting announces the gateway is up but the meter session
// is not yet established.
func (h *HealthReporter) PublishStarting() error {
	return h.publishStatus(HealthStarting, "establishing meter session")
}

// PublishNow evaluates and publishes the current status without
// waiting for the next tick.
func (h *HealthReporter) PublishNow() error {
	status, reason := h.determineStatus()
	return h.publishStatus(status, reason)
}

// reportLoop publishes once immediately, then on every tick.
func (h *HealthReporter) reportLoop(ctx context.Context) {
	defer h.wg.Done()

	ticker := time.NewTicker(h.interval)
	defer ticker.Stop()

	if err := h.PublishNow(); err != nil {
		h.logError("failed to publish initial health", err)
	}

	for {
		select {
		case <-ctx.Done():
			return
		case <-h.done:
			return
		case <-ticker.C:
			if err := h.PublishNow(); err != nil {
				h.logError("failed to publish health", err)
			}
		}
	}
}

// determineStatus evaluates the current gateway status.
func (h *HealthReporter) determineStatus() (HealthStatus, string) {
	if h.statusFn != nil {
		return h.statusFn()
	}
	if h.publisher == nil || !h.publisher.IsConnected() {
		return HealthDegraded, "MQTT disconnected"
	}
	return HealthHealthy, ""
}

// publishStatus assembles a health message around the current link
// stats and publishes it retained.
func (h *HealthReporter) publishStatus(status HealthStatus, reason string) error {
	if h.publisher == nil {
		return nil // No publisher configured
	}

	var stats wisun.Stats
	if h.conn != nil {
		stats = h.conn.Stats()
	}

	msg := NewHealthMessage(h.version, status, stats, h.startTime)
	if reason != "" {
		msg.Reason = reason
	}

	// QoS 1, retained
	return h.publisher.PublishJSON(h.topics.MeterHealth(), msg, true)
}

func (h *HealthReporter) logError(msg string, err error) {
	h.loggerMu.RLock()
	logger := h.logger
	h.loggerMu.RUnlock()

	if logger != nil {
		logger.Error(msg, "error", err)
	}
}
