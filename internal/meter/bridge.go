package meter

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/nana4rider/wisun-gateway/internal/echonet"
	"github.com/nana4rider/wisun-gateway/internal/infrastructure/config"
	"github.com/nana4rider/wisun-gateway/internal/infrastructure/mqtt"
	"github.com/nana4rider/wisun-gateway/internal/readings"
	"github.com/nana4rider/wisun-gateway/internal/wisun"
)

const (
	// defaultEnergyUnit is used when the meter fails to answer the
	// unit read (EPC 0xE1). 0.1 kWh is the most common unit in the field.
	defaultEnergyUnit = 0.1

	// pruneInterval is how often old readings are pruned.
	pruneInterval = 6 * time.Hour

	// rejoinInitialDelay and rejoinMaxDelay bound the backoff between
	// session re-establishment attempts after the meter drops the link.
	rejoinInitialDelay = 5 * time.Second
	rejoinMaxDelay     = 5 * time.Minute

	// rejoinBackoffFactor is the multiplier applied after each failure.
	rejoinBackoffFactor = 2
)

// Bridge polls a smart meter over Wi-SUN and fans readings out to MQTT,
// InfluxDB, SQLite history and WebSocket subscribers. It handles:
//   - Session establishment (credentials, scan, PANA join)
//   - Periodic property reads and value conversion
//   - Unsolicited meter notifications (ESV INF)
//   - Session re-establishment with backoff when the meter drops the link
//
// Every method may be called from any goroutine.
type Bridge struct {
	cfg     *config.Config
	conn    wisun.Connector
	mqtt    MQTTClient
	metrics MetricsWriter
	repo    readings.Repository
	hub     Broadcaster
	health  *HealthReporter
	topics  mqtt.Topics

	// Meter constants read once per session
	constMu     sync.RWMutex
	coefficient uint32
	energyUnit  float64

	// Request correlation. The B-route link carries one outstanding
	// request at a time; reqMu serialises whole exchanges.
	reqMu    sync.Mutex
	waiterMu sync.Mutex
	waiter   *frameWaiter

	// Poll failure tracking for health reporting
	failMu       sync.Mutex
	failedPolls  int
	lastPollTime time.Time

	// Rejoin coordination (one rejoin loop at a time)
	rejoinMu sync.Mutex
	rejoinOn bool

	// Shutdown coordination
	done      chan struct{}
	wg        sync.WaitGroup
	stopOnce  sync.Once
	ctx       context.Context
	ctxCancel context.CancelFunc

	// Logger
	logger   Logger
	loggerMu sync.RWMutex
}

// frameWaiter holds the in-flight request and its response channel.
type frameWaiter struct {
	request echonet.Frame
	ch      chan echonet.Frame
}

// Logger is the structured logger the bridge writes to when one is
// provided in BridgeOptions.
type Logger interface {
	Debug(msg string, keysAndValues ...any)
	Info(msg string, keysAndValues ...any)
	Warn(msg string, keysAndValues ...any)
	Error(msg string, keysAndValues ...any)
}

// MQTTClient is the broker-facing surface the bridge needs, kept
// narrow so tests can substitute a fake broker.
type MQTTClient interface {
	// Publish sends payload to topic at the given QoS.
	Publish(topic string, payload []byte, qos byte, retained bool) error

	// PublishJSON marshals v and sends it to topic.
	PublishJSON(topic string, v any, retained bool) error

	// Subscribe registers a handler for messages on topic.
	Subscribe(topic string, qos byte, handler mqtt.MessageHandler) error

	// IsConnected reports whether the broker connection is up.
	IsConnected() bool
}

// MetricsWriter records meter telemetry in a time-series store.
// It is optional; if nil, the bridge operates without metrics.
type MetricsWriter interface {
	// WriteMeterReading records a polled measurement.
	WriteMeterReading(instantPowerW, currentRA, currentTA float64)

	// WriteCumulativeEnergy records a cumulative register value.
	WriteCumulativeEnergy(direction string, energyKWh float64)

	// WriteLinkMetric records a Wi-SUN link quality indicator.
	WriteLinkMetric(metricName string, value float64)
}

// Broadcaster pushes state payloads to WebSocket subscribers.
// It is optional; if nil, the bridge operates without live updates.
type Broadcaster interface {
	// Broadcast sends a payload to all connected subscribers.
	Broadcast(payload []byte)
}

// BridgeOptions collects everything NewBridge needs. Config,
// Connector, MQTTClient and Repository are required; the rest may be
// nil.
type BridgeOptions struct {
	// Config is the loaded gateway configuration.
	Config *config.Config

	// Connector is the Wi-SUN module link.
	Connector wisun.Connector

	// MQTTClient publishes readings and discovery payloads.
	MQTTClient MQTTClient

	// Repository stores reading history.
	Repository readings.Repository

	// Metrics is optional time-series output. If nil, the bridge
	// operates without metrics.
	Metrics MetricsWriter

	// Broadcaster is optional WebSocket fan-out. If nil, the bridge
	// operates without live updates.
	Broadcaster Broadcaster

	// Logger receives the bridge's structured log output.
	Logger Logger

	// Version is the gateway software version for health messages.
	Version string
}

// NewBridge validates opts and assembles a bridge. Nothing runs until
// Start is called.
func NewBridge(opts BridgeOptions) (*Bridge, error) {
	if opts.Config == nil {
		return nil, fmt.Errorf("config is required")
	}
	if opts.Connector == nil {
		return nil, fmt.Errorf("connector is required")
	}
	if opts.MQTTClient == nil {
		return nil, fmt.Errorf("MQTT client is required")
	}
	if opts.Repository == nil {
		return nil, fmt.Errorf("repository is required")
	}

	// Bridge-level context for aborting in-flight requests on shutdown
	ctx, ctxCancel := context.WithCancel(context.Background())

	b := &Bridge{
		cfg:         opts.Config,
		conn:        opts.Connector,
		mqtt:        opts.MQTTClient,
		metrics:     opts.Metrics,
		repo:        opts.Repository,
		hub:         opts.Broadcaster,
		coefficient: 1,
		energyUnit:  defaultEnergyUnit,
		done:        make(chan struct{}),
		ctx:         ctx,
		ctxCancel:   ctxCancel,
		logger:      opts.Logger,
	}

	b.health = NewHealthReporter(HealthReporterConfig{
		Version:   opts.Version,
		Interval:  30 * time.Second,
		Publisher: opts.MQTTClient,
		Connector: opts.Connector,
		StatusFn:  b.determineStatus,
	})
	if opts.Logger != nil {
		b.health.SetLogger(opts.Logger)
	}

	return b, nil
}

// Start establishes the meter session and begins polling.
//
// It blocks until the first PANA session is up (or ctx is cancelled),
// then reads the meter's scaling constants, publishes Home Assistant
// discovery, and launches the poll, prune and health loops.
func (b *Bridge) Start(ctx context.Context) error {
	b.conn.SetOnDatagram(b.handleDatagram)
	b.conn.SetOnDisconnect(b.handleLinkDown)

	if err := b.health.PublishStarting(); err != nil {
		b.logError("failed to publish starting status", err)
	}

	if err := b.establishSession(ctx); err != nil {
		return fmt.Errorf("establish session: %w", err)
	}

	b.readMeterConstants(ctx)

	if b.cfg.Meter.Discovery {
		if err := b.publishDiscovery(); err != nil {
			b.logError("failed to publish discovery", err)
		}
		if err := b.watchBirthTopic(); err != nil {
			b.logError("failed to subscribe to birth topic", err)
		}
	}

	b.wg.Add(1)
	go b.pollLoop()

	if b.cfg.Database.RetentionDays > 0 {
		b.wg.Add(1)
		go b.pruneLoop()
	}

	b.health.Start(ctx)

	b.logInfo("bridge started",
		"poll_interval", b.cfg.Meter.GetPollInterval().String(),
		"coefficient", b.Coefficient(),
		"energy_unit", b.EnergyUnit())

	return nil
}

// Stop shuts the bridge down and waits for its goroutines to exit.
// Calling it again is a no-op.
func (b *Bridge) Stop() {
	b.stopOnce.Do(func() {
		close(b.done)

		// Cancel bridge context to abort in-flight requests
		b.ctxCancel()

		// The reporter publishes a final "stopping" status here
		b.health.Stop()

		b.wg.Wait()

		b.logInfo("bridge stopped")
	})
}

// establishSession registers credentials, scans for the meter's PAN and
// performs the PANA join.
func (b *Bridge) establishSession(ctx context.Context) error {
	if err := b.conn.SetCredentials(ctx, b.cfg.WiSUN.RouteBID, b.cfg.WiSUN.RouteBPassword); err != nil {
		return fmt.Errorf("set credentials: %w", err)
	}

	desc, err := b.conn.Scan(ctx)
	if err != nil {
		return fmt.Errorf("scan: %w", err)
	}

	if err := b.conn.Join(ctx, desc); err != nil {
		return fmt.Errorf("join: %w", err)
	}

	if b.metrics != nil {
		b.metrics.WriteLinkMetric("lqi", float64(desc.LQI))
	}

	return nil
}

// readMeterConstants reads the coefficient (EPC 0xD3) and cumulative
// energy unit (EPC 0xE1) that scale register values. Failures fall back
// to defaults: meters without current transformers omit the coefficient.
func (b *Bridge) readMeterConstants(ctx context.Context) {
	resp, err := b.request(ctx, echonet.EPCCoefficient, echonet.EPCCumulativeEnergyUnit)
	if err != nil {
		b.logError("failed to read meter constants, using defaults", err)
		return
	}

	b.constMu.Lock()
	defer b.constMu.Unlock()

	for _, p := range resp.Properties {
		if p.Length() == 0 {
			continue // Property not supported by this meter
		}
		switch p.Code {
		case echonet.EPCCoefficient:
			coeff, err := decodeCoefficient(p)
			if err != nil {
				b.logError("bad coefficient value", err)
				continue
			}
			b.coefficient = coeff
		case echonet.EPCCumulativeEnergyUnit:
			unit, err := decodeEnergyUnit(p)
			if err != nil {
				b.logError("bad energy unit value", err)
				continue
			}
			b.energyUnit = unit
		}
	}
}

// Coefficient returns the meter's cumulative energy multiplier.
func (b *Bridge) Coefficient() uint32 {
	b.constMu.RLock()
	defer b.constMu.RUnlock()
	return b.coefficient
}

// EnergyUnit returns the meter's cumulative energy unit in kWh.
func (b *Bridge) EnergyUnit() float64 {
	b.constMu.RLock()
	defer b.constMu.RUnlock()
	return b.energyUnit
}

// pollLoop polls the meter at the configured interval.
func (b *Bridge) pollLoop() {
	defer b.wg.Done()

	ticker := time.NewTicker(b.cfg.Meter.GetPollInterval())
	defer ticker.Stop()

	// First poll immediately
	b.pollOnce()

	for {
		select {
		case <-b.done:
			return
		case <-ticker.C:
			b.pollOnce()
		}
	}
}

// pollOnce reads the live properties from the meter and fans the
// reading out to all sinks.
func (b *Bridge) pollOnce() {
	if !b.conn.HasSession() {
		b.logDebug("skipping poll, no session")
		return
	}

	ctx, cancel := context.WithTimeout(b.ctx, b.cfg.Meter.GetRequestTimeout())
	defer cancel()

	resp, err := b.request(ctx,
		echonet.EPCInstantPower,
		echonet.EPCInstantCurrent,
		echonet.EPCCumulativeEnergy,
		echonet.EPCCumulativeEnergyReverse,
	)
	if err != nil {
		b.recordPollFailure(err)
		return
	}

	reading := b.buildReading(resp)
	b.recordPollSuccess()
	b.publishReading(reading)
}

// buildReading converts response properties to a reading. Properties the
// meter did not answer (PDC 0 in an SNA response) stay nil.
func (b *Bridge) buildReading(resp echonet.Frame) readings.Reading {
	reading := readings.Reading{RecordedAt: time.Now().UTC()}
	coeff, unit := b.Coefficient(), b.EnergyUnit()

	for _, p := range resp.Properties {
		if p.Length() == 0 {
			continue
		}
		switch p.Code {
		case echonet.EPCInstantPower:
			w, err := decodeInstantPower(p)
			if err != nil {
				b.logError("bad instant power value", err)
				continue
			}
			reading.InstantPowerW = w
		case echonet.EPCInstantCurrent:
			r, t, err := decodeInstantCurrent(p)
			if err != nil {
				b.logError("bad instant current value", err)
				continue
			}
			reading.CurrentRA = r
			reading.CurrentTA = t
		case echonet.EPCCumulativeEnergy:
			kwh, err := decodeCumulativeEnergy(p, coeff, unit)
			if err != nil {
				b.logError("bad cumulative energy value", err)
				continue
			}
			reading.CumulativeKWh = kwh
		case echonet.EPCCumulativeEnergyReverse:
			kwh, err := decodeCumulativeEnergy(p, coeff, unit)
			if err != nil {
				b.logError("bad reverse energy value", err)
				continue
			}
			reading.CumulativeReverseKWh = kwh
		}
	}

	return reading
}

// publishReading fans a reading out to MQTT, the history store, the
// time-series store and WebSocket subscribers. Each sink fails
// independently; one sink being down never blocks the others.
func (b *Bridge) publishReading(reading readings.Reading) {
	msg := NewStateMessage(reading)

	if err := b.mqtt.PublishJSON(b.topics.MeterState(), msg, true); err != nil {
		b.logError("failed to publish state", err)
	}

	if err := b.repo.Insert(b.ctx, &reading); err != nil {
		b.logError("failed to store reading", err)
	}

	if b.metrics != nil {
		if reading.InstantPowerW != nil {
			// Missing phase currents are recorded as 0 (single-phase meters)
			var rA, tA float64
			if reading.CurrentRA != nil {
				rA = *reading.CurrentRA
			}
			if reading.CurrentTA != nil {
				tA = *reading.CurrentTA
			}
			b.metrics.WriteMeterReading(*reading.InstantPowerW, rA, tA)
		}
		if reading.CumulativeKWh != nil {
			b.metrics.WriteCumulativeEnergy("normal", *reading.CumulativeKWh)
		}
		if reading.CumulativeReverseKWh != nil {
			b.metrics.WriteCumulativeEnergy("reverse", *reading.CumulativeReverseKWh)
		}
	}

	if b.hub != nil {
		if payload, err := encodeStatePayload(msg); err == nil {
			b.hub.Broadcast(payload)
		}
	}
}

// request sends a Get request and waits for the matching response.
// The link carries one outstanding request at a time.
func (b *Bridge) request(ctx context.Context, epcs ...byte) (echonet.Frame, error) {
	b.reqMu.Lock()
	defer b.reqMu.Unlock()

	req, err := echonet.NewGetFrame(echonet.NewTransactionID(),
		echonet.ObjectController, echonet.ObjectSmartMeter, epcs...)
	if err != nil {
		return echonet.Frame{}, fmt.Errorf("build request: %w", err)
	}

	ch := make(chan echonet.Frame, 1)
	b.waiterMu.Lock()
	b.waiter = &frameWaiter{request: req, ch: ch}
	b.waiterMu.Unlock()
	defer func() {
		b.waiterMu.Lock()
		b.waiter = nil
		b.waiterMu.Unlock()
	}()

	if err := b.conn.Send(ctx, req.Encode()); err != nil {
		return echonet.Frame{}, fmt.Errorf("send request: %w", err)
	}

	select {
	case <-ctx.Done():
		return echonet.Frame{}, fmt.Errorf("%w: %w", ErrRequestTimeout, ctx.Err())
	case <-b.done:
		return echonet.Frame{}, ErrStopped
	case resp := <-ch:
		return resp, nil
	}
}

// handleDatagram processes an incoming datagram from the meter.
func (b *Bridge) handleDatagram(dg wisun.Datagram) {
	frame, err := echonet.ParseFrame(dg.Data)
	if err != nil {
		b.logDebug("ignoring malformed frame", "error", err.Error())
		return
	}

	// Unsolicited notifications (30-minute readings, status changes)
	if frame.ServiceCode == echonet.ESVInf || frame.ServiceCode == echonet.ESVInfC {
		b.handleNotification(frame)
		return
	}

	b.waiterMu.Lock()
	waiter := b.waiter
	b.waiterMu.Unlock()

	if waiter == nil || !frame.IsResponseTo(waiter.request) {
		b.logDebug("unmatched response dropped", "frame", frame.String())
		return
	}

	select {
	case waiter.ch <- frame:
	default:
	}
}

// handleLinkDown reacts to transport or session loss.
func (b *Bridge) handleLinkDown(err error) {
	if errors.Is(err, wisun.ErrSessionLost) {
		b.logWarn("meter dropped the session, re-establishing", "error", err.Error())
		b.startRejoin()
		return
	}

	// Transport failure: the device itself is gone. Health reporting
	// turns degraded; recovery needs the process supervisor.
	b.logError("module transport lost", err)
}

// startRejoin launches the rejoin loop unless one is already running.
func (b *Bridge) startRejoin() {
	b.rejoinMu.Lock()
	if b.rejoinOn {
		b.rejoinMu.Unlock()
		return
	}
	b.rejoinOn = true
	b.rejoinMu.Unlock()

	b.wg.Add(1)
	go b.rejoinLoop()
}

// rejoinLoop re-establishes the meter session with exponential backoff.
func (b *Bridge) rejoinLoop() {
	defer b.wg.Done()
	defer func() {
		b.rejoinMu.Lock()
		b.rejoinOn = false
		b.rejoinMu.Unlock()
	}()

	delay := rejoinInitialDelay

	for {
		select {
		case <-b.done:
			return
		case <-time.After(delay):
		}

		if b.conn.HasSession() {
			return
		}

		err := b.establishSession(b.ctx)
		if err == nil {
			b.logInfo("session re-established")
			if err := b.health.PublishNow(); err != nil {
				b.logError("failed to publish health", err)
			}
			return
		}

		b.logError("session re-establishment failed", err)

		delay *= rejoinBackoffFactor
		if delay > rejoinMaxDelay {
			delay = rejoinMaxDelay
		}
	}
}

// pruneLoop removes readings older than the retention window.
func (b *Bridge) pruneLoop() {
	defer b.wg.Done()

	ticker := time.NewTicker(pruneInterval)
	defer ticker.Stop()

	for {
		select {
		case <-b.done:
			return
		case <-ticker.C:
			retention := time.Duration(b.cfg.Database.RetentionDays) * 24 * time.Hour
			pruned, err := b.repo.Prune(b.ctx, retention)
			if err != nil {
				b.logError("failed to prune readings", err)
				continue
			}
			if pruned > 0 {
				b.logInfo("pruned old readings", "count", pruned)
			}
		}
	}
}

// recordPollFailure tracks consecutive poll failures for health reporting.
func (b *Bridge) recordPollFailure(err error) {
	b.failMu.Lock()
	b.failedPolls++
	failures := b.failedPolls
	b.failMu.Unlock()

	b.logError("poll failed", fmt.Errorf("consecutive failures %d: %w", failures, err))
}

// recordPollSuccess resets the failure counter.
func (b *Bridge) recordPollSuccess() {
	b.failMu.Lock()
	b.failedPolls = 0
	b.lastPollTime = time.Now()
	b.failMu.Unlock()
}

// determineStatus evaluates the bridge status for health reporting.
func (b *Bridge) determineStatus() (HealthStatus, string) {
	if !b.mqtt.IsConnected() {
		return HealthDegraded, "MQTT disconnected"
	}
	if !b.conn.IsConnected() {
		return HealthDegraded, "module disconnected"
	}
	if !b.conn.HasSession() {
		return HealthDegraded, "no meter session"
	}

	b.failMu.Lock()
	failures := b.failedPolls
	b.failMu.Unlock()
	if failures >= 3 {
		return HealthDegraded, fmt.Sprintf("%d consecutive poll failures", failures)
	}

	return HealthHealthy, ""
}

// LatestReading returns the most recent stored reading.
func (b *Bridge) LatestReading(ctx context.Context) (*readings.Reading, error) {
	return b.repo.Latest(ctx)
}

// Metrics contains bridge metrics for the API status endpoint.
type Metrics struct {
	Session       bool
	Status        string
	CommandsSent  uint64
	DatagramsRx   uint64
	Joins         uint64
	Errors        uint64
	FailedPolls   int
	LastPoll      time.Time
	Coefficient   uint32
	EnergyUnitKWh float64
}

// GetMetrics returns current bridge metrics.
func (b *Bridge) GetMetrics() Metrics {
	stats := b.conn.Stats()
	status, _ := b.determineStatus()

	b.failMu.Lock()
	failures := b.failedPolls
	lastPoll := b.lastPollTime
	b.failMu.Unlock()

	return Metrics{
		Session:       stats.Session,
		Status:        string(status),
		CommandsSent:  stats.CommandsTx,
		DatagramsRx:   stats.DatagramsRx,
		Joins:         stats.JoinsTotal,
		Errors:        stats.ErrorsTotal,
		FailedPolls:   failures,
		LastPoll:      lastPoll,
		Coefficient:   b.Coefficient(),
		EnergyUnitKWh: b.EnergyUnit(),
	}
}

// SetLogger replaces the bridge logger.
func (b *Bridge) SetLogger(logger Logger) {
	b.loggerMu.Lock()
	b.logger = logger
	b.loggerMu.Unlock()

	if b.health != nil {
		b.health.SetLogger(logger)
	}
}

func (b *Bridge) logDebug(msg string, keysAndValues ...any) {
	b.loggerMu.RLock()
	logger := b.logger
	b.loggerMu.RUnlock()

	if logger != nil {
		logger.Debug(msg, keysAndValues...)
	}
}

func (b *Bridge) logInfo(msg string, keysAndValues ...any) {
	b.loggerMu.RLock()
	logger := b.logger
	b.loggerMu.RUnlock()

	if logger != nil {
		logger.Info(msg, keysAndValues...)
	}
}

// logWarn logs a warning message if logger is set.
func (b *Bridge) logWarn(msg string, keysAndValues ...any) {
	b.loggerMu.RLock()
	logger := b.logger
	b.loggerMu.RUnlock()

	if logger != nil {
		logger.Warn(msg, keysAndValues...)
	}
}

func (b *Bridge) logError(msg string, err error) {
	b.loggerMu.RLock()
	logger := b.logger
	b.loggerMu.RUnlock()

	if logger != nil {
		logger.Error(msg, "error", err)
	}
}
