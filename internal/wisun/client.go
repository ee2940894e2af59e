package wisun

import (
	"bufio"
	"context"
	"fmt"
	"io"
	"strings"
	"sync"
	"sync/atomic"
	"time"
)

// closeOnce is a channel that tolerates being closed more than once.
type closeOnce struct {
	ch   chan struct{}
	once sync.Once
}

func newCloseOnce() *closeOnce {
	return &closeOnce{ch: make(chan struct{})}
}

func (c *closeOnce) Close() {
	c.once.Do(func() { close(c.ch) })
}

func (c *closeOnce) Done() <-chan struct{} {
	return c.ch
}

// Default timeouts and intervals for module communication.
const (
	// defaultConnectTimeout is the maximum time to wait for the device to open.
	defaultConnectTimeout = 10 * time.Second

	// defaultCommandTimeout is the maximum time to wait for OK/FAIL.
	defaultCommandTimeout = 15 * time.Second

	// defaultScanTimeout is the maximum time to wait for one active scan
	// to complete. A duration-8 scan over all channels takes roughly 70s.
	defaultScanTimeout = 90 * time.Second

	// defaultJoinTimeout is the maximum time to wait for PANA authentication.
	defaultJoinTimeout = 30 * time.Second

	// minScanDuration and maxScanDuration bound the per-channel listen
	// time exponent. Short durations miss beacons from distant meters,
	// so the scan is retried with increasing durations.
	minScanDuration = 4
	maxScanDuration = 8

	// datagramQueueSize is the buffer size for the datagram callback queue.
	datagramQueueSize = 64

	// callbackWorkerCount is how many workers drain the datagram queue.
	callbackWorkerCount = 2

	// maxLineSize bounds a single line from the module. ERXUDP lines
	// carry hex-encoded payloads, so they can be long.
	maxLineSize = 8192
)

// Config holds Wi-SUN module connection configuration.
type Config struct {
	// Device is the module device URL.
	// Supported formats:
	//   - "serial:///dev/ttyUSB0" (local serial port)
	//   - "tcp://192.168.1.50:3610" (ser2net bridge)
	Device string

	// BaudRate is the serial baud rate. Default: 115200.
	BaudRate int

	// ConnectTimeout is the maximum time to wait for the device to open.
	// Default: 10 seconds.
	ConnectTimeout time.Duration

	// CommandTimeout is the maximum time to wait for a command response.
	// Default: 15 seconds.
	CommandTimeout time.Duration

	// ScanTimeout is the maximum time to wait for a single active scan.
	// Default: 90 seconds.
	ScanTimeout time.Duration

	// JoinTimeout is the maximum time to wait for PANA authentication.
	// Default: 30 seconds.
	JoinTimeout time.Duration
}

// Stats holds operational statistics.
type Stats struct {
	CommandsTx       uint64
	DatagramsRx      uint64
	DatagramsDropped uint64 // Datagrams dropped due to full callback queue
	ErrorsTotal      uint64
	JoinsTotal       uint64 // Successful PANA joins
	LastActivity     time.Time
	Connected        bool
	Session          bool // True while a PANA session is established
}

// Logger is the structured logger the client writes to when one is
// attached with SetLogger.
type Logger interface {
	Debug(msg string, keysAndValues ...any)
	Info(msg string, keysAndValues ...any)
	Warn(msg string, keysAndValues ...any)
	Error(msg string, keysAndValues ...any)
}

// Connector is the module-facing surface the meter bridge depends on,
// so tests can substitute a fake link.
type Connector interface {
	Version(ctx context.Context) (string, error)
	SetCredentials(ctx context.Context, routeBID, password string) error
	Scan(ctx context.Context) (*PanDescriptor, error)
	Join(ctx context.Context, desc *PanDescriptor) error
	Send(ctx context.Context, data []byte) error
	SetOnDatagram(callback func(Datagram))
	SetOnDisconnect(callback func(err error))
	IsConnected() bool
	HasSession() bool
	Stats() Stats
	Close() error
}

// Ensure Client implements Connector.
var _ Connector = (*Client)(nil)

// Client drives a BP35A1-class Wi-SUN module over its SKSTACK IP
// command interface.
//
// Every method may be called from any goroutine. Command exchanges are
// serialised internally because the module handles one at a time.
//   - Datagram callbacks are invoked from a bounded worker pool.
//
// Session Recovery:
//   - The client does NOT re-join automatically. When the transport
//     fails or the meter drops the PANA session, the disconnect
//     callback fires and the owner decides when to scan and join again.
type Client struct {
	cfg  Config
	conn io.ReadWriteCloser

	// Connection state
	connMu    sync.RWMutex
	connected bool

	// Command exchange state. cmdMu serialises whole exchanges;
	// pending receives response lines while a command is in flight.
	cmdMu     sync.Mutex
	pendingMu sync.Mutex
	pending   chan string

	// Active scan state (non-nil while a scan is collecting beacons)
	scanMu sync.Mutex
	scan   *scanCollector

	// Join state (non-nil while waiting for EVENT 24/25)
	joinMu sync.Mutex
	joinCh chan error

	// PANA session state
	sessionMu  sync.RWMutex
	peerAddr   string
	hasSession bool

	// Callbacks
	onDatagram   func(Datagram)
	onDisconnect func(err error)
	callbackMu   sync.RWMutex

	// Datagram worker pool (bounded goroutine spawning)
	datagramQueue chan Datagram

	// Shutdown signal shared by the read loop and workers
	done *closeOnce
	wg   sync.WaitGroup

	// Logger (optional)
	logger   Logger
	loggerMu sync.RWMutex

	// Counters, updated lock-free from the read loop
	commandsTx       atomic.Uint64
	datagramsRx      atomic.Uint64
	datagramsDropped atomic.Uint64
	errorsTotal      atomic.Uint64
	joinsTotal       atomic.Uint64
	lastActivity     atomic.Int64 // Unix timestamp
}

// scanCollector accumulates EPANDESC blocks during an active scan.
type scanCollector struct {
	mu      sync.Mutex
	current *PanDescriptor
	found   []PanDescriptor
	done    chan struct{}
}

// Connect opens the Wi-SUN module and prepares it for Route-B use.
//
// After opening the transport it:
//  1. Disables command echoback (SKSREG SFE 0)
//  2. Switches ERXUDP display to hex mode if needed (ROPT/WOPT)
//
// Credentials are NOT set here; call SetCredentials before Scan.
func Connect(ctx context.Context, cfg Config) (*Client, error) {
	if cfg.ConnectTimeout == 0 {
		cfg.ConnectTimeout = defaultConnectTimeout
	}
	if cfg.CommandTimeout == 0 {
		cfg.CommandTimeout = defaultCommandTimeout
	}
	if cfg.ScanTimeout == 0 {
		cfg.ScanTimeout = defaultScanTimeout
	}
	if cfg.JoinTimeout == 0 {
		cfg.JoinTimeout = defaultJoinTimeout
	}

	conn, err := openTransport(cfg)
	if err != nil {
		return nil, fmt.Errorf("%w: %w", ErrConnectionFailed, err)
	}

	client := newClient(conn, cfg)
	client.start()

	if err := client.initialise(ctx); err != nil {
		client.Close()
		return nil, fmt.Errorf("%w: handshake failed: %w", ErrConnectionFailed, err)
	}

	return client, nil
}

// newClient builds a client around an open transport.
// Split from Connect so tests can drive the protocol over net.Pipe.
func newClient(conn io.ReadWriteCloser, cfg Config) *Client {
	c := &Client{
		cfg:           cfg,
		conn:          conn,
		connected:     true,
		done:          newCloseOnce(),
		datagramQueue: make(chan Datagram, datagramQueueSize),
	}
	c.lastActivity.Store(time.Now().Unix())
	return c
}

// start launches the read loop and callback workers.
func (c *Client) start() {
	for range callbackWorkerCount {
		c.wg.Add(1)
		go c.callbackWorker()
	}

	c.wg.Add(1)
	go c.readLoop()
}

// initialise puts the module into the expected state.
func (c *Client) initialise(ctx context.Context) error {
	// Echoback off. The first exchange may still collect the echoed
	// command if the module boots with echoback on; exec tolerates that.
	if _, _, err := c.exec(ctx, "SKSREG SFE 0"); err != nil {
		return fmt.Errorf("disable echoback: %w", err)
	}

	// ERXUDP must be in hex display mode. ROPT reads the current value;
	// WOPT writes flash, so it is only issued when the value is wrong.
	_, mode, err := c.exec(ctx, "ROPT")
	if err != nil {
		return fmt.Errorf("read display mode: %w", err)
	}
	if mode != "01" {
		if _, _, err := c.exec(ctx, "WOPT 01"); err != nil {
			return fmt.Errorf("set hex display mode: %w", err)
		}
	}

	return nil
}

// readLoop continuously reads lines from the module and routes them.
func (c *Client) readLoop() {
	defer c.wg.Done()

	scanner := bufio.NewScanner(c.conn)
	scanner.Buffer(make([]byte, 0, maxLineSize), maxLineSize)

	for scanner.Scan() {
		select {
		case <-c.done.Done():
			return
		default:
		}

		line := strings.TrimRight(scanner.Text(), "\r")
		if line == "" {
			continue
		}

		c.lastActivity.Store(time.Now().Unix())
		c.routeLine(line)
	}

	// Scanner stopped: EOF, read error, or Close().
	if c.isClosed() {
		return
	}

	err := scanner.Err()
	if err == nil {
		err = io.EOF
	}
	c.errorsTotal.Add(1)
	c.logError("module read failed", err)
	c.handleDisconnect(fmt.Errorf("%w: %w", ErrNotConnected, err))
}

// routeLine dispatches one line from the module.
func (c *Client) routeLine(line string) {
	switch {
	case strings.HasPrefix(line, "ERXUDP"):
		c.handleDatagramLine(line)
	case strings.HasPrefix(line, "EVENT"):
		c.handleEventLine(line)
	case line == "EPANDESC":
		c.scanStartBlock()
	case strings.HasPrefix(line, " ") && c.scanActive():
		c.scanAttribute(line)
	default:
		// OK, FAIL, register values, echoes: belongs to the command
		// in flight, if any.
		c.deliverLine(line)
	}
}

// deliverLine hands a response line to the in-flight command.
func (c *Client) deliverLine(line string) {
	c.pendingMu.Lock()
	ch := c.pending
	c.pendingMu.Unlock()

	if ch == nil {
		c.logDebug("unsolicited line dropped", "line", line)
		return
	}

	select {
	case ch <- line:
	default:
		c.errorsTotal.Add(1)
		c.logError("command response buffer full", nil)
	}
}

// handleDatagramLine parses an ERXUDP line and queues the datagram.
func (c *Client) handleDatagramLine(line string) {
	dg, ok, err := parseDatagram(line)
	if err != nil {
		c.errorsTotal.Add(1)
		c.logError("parse datagram failed", err)
		return
	}
	if !ok {
		return // Not ECHONET Lite traffic
	}

	c.datagramsRx.Add(1)

	c.callbackMu.RLock()
	hasCallback := c.onDatagram != nil
	c.callbackMu.RUnlock()

	if !hasCallback {
		return
	}

	// Queue for bounded worker pool (non-blocking with drop on overflow)
	select {
	case c.datagramQueue <- dg:
	default:
		c.datagramsDropped.Add(1)
		c.errorsTotal.Add(1)
		c.logError("datagram queue full, dropping datagram", nil)
	}
}

// handleEventLine reacts to an EVENT line.
func (c *Client) handleEventLine(line string) {
	ev, err := parseEvent(line)
	if err != nil {
		c.errorsTotal.Add(1)
		c.logError("parse event failed", err)
		return
	}

	switch ev.Code {
	case eventBeaconReceived:
		c.logDebug("beacon received", "sender", ev.Sender)
	case eventScanComplete:
		c.scanFinish()
	case eventJoinCompleted:
		c.signalJoin(nil)
	case eventJoinFailed:
		c.signalJoin(ErrJoinFailed)
	case eventSessionClosed, eventSessionExpired:
		c.handleSessionLost(ev.Code)
	default:
		c.logDebug("module event", "code", fmt.Sprintf("%02X", ev.Code), "sender", ev.Sender)
	}
}

// handleSessionLost clears session state and notifies the owner.
func (c *Client) handleSessionLost(code int) {
	c.sessionMu.Lock()
	had := c.hasSession
	c.hasSession = false
	c.sessionMu.Unlock()

	if !had {
		return
	}

	c.logInfo("PANA session lost", "event", fmt.Sprintf("%02X", code))
	c.notifyDisconnect(ErrSessionLost)
}

// handleDisconnect handles transport loss.
func (c *Client) handleDisconnect(err error) {
	c.connMu.Lock()
	wasConnected := c.connected
	c.connected = false
	c.connMu.Unlock()

	c.sessionMu.Lock()
	c.hasSession = false
	c.sessionMu.Unlock()

	if wasConnected {
		c.notifyDisconnect(err)
	}
}

// notifyDisconnect invokes the disconnect callback, if set.
func (c *Client) notifyDisconnect(err error) {
	c.callbackMu.RLock()
	callback := c.onDisconnect
	c.callbackMu.RUnlock()

	if callback != nil {
		go callback(err)
	}
}

// callbackWorker delivers queued datagrams to the registered callback.
// A fixed number of these run so a slow callback cannot spawn
// unbounded goroutines.
func (c *Client) callbackWorker() {
	defer c.wg.Done()

	for {
		select {
		case <-c.done.Done():
			c.drainDatagramQueue()
			return
		case dg := <-c.datagramQueue:
			c.callbackMu.RLock()
			callback := c.onDatagram
			c.callbackMu.RUnlock()

			if callback != nil {
				func() {
					defer func() {
						if r := recover(); r != nil {
							c.logError("datagram callback panic", fmt.Errorf("%v", r))
						}
					}()
					callback(dg)
				}()
			}
		}
	}
}

// drainDatagramQueue empties the queue during shutdown so the read
// loop never blocks on a send to a dead worker.
func (c *Client) drainDatagramQueue() {
	for {
		select {
		case <-c.datagramQueue:
		default:
			return
		}
	}
}

// exec sends a text command and waits for OK or FAIL.
//
// Returns the intermediate response lines, the arguments of the OK line
// (e.g. "01" for "OK 01"), and an error if the module answered FAIL or
// the exchange timed out.
func (c *Client) exec(ctx context.Context, command string) (lines []string, okArgs string, err error) {
	return c.execMsg(ctx, []byte(command+"\r\n"))
}

// execMsg sends a raw message and waits for OK or FAIL.
func (c *Client) execMsg(ctx context.Context, msg []byte) (lines []string, okArgs string, err error) {
	c.cmdMu.Lock()
	defer c.cmdMu.Unlock()

	if !c.IsConnected() {
		return nil, "", ErrNotConnected
	}

	ch := make(chan string, 16)
	c.pendingMu.Lock()
	c.pending = ch
	c.pendingMu.Unlock()
	defer func() {
		c.pendingMu.Lock()
		c.pending = nil
		c.pendingMu.Unlock()
	}()

	if _, err := c.conn.Write(msg); err != nil {
		c.errorsTotal.Add(1)
		return nil, "", fmt.Errorf("%w: write: %w", ErrCommandFailed, err)
	}
	c.commandsTx.Add(1)

	timer := time.NewTimer(c.cfg.CommandTimeout)
	defer timer.Stop()

	for {
		select {
		case <-ctx.Done():
			return nil, "", fmt.Errorf("%w: %w", ErrCommandFailed, ctx.Err())
		case <-c.done.Done():
			return nil, "", ErrNotConnected
		case <-timer.C:
			c.errorsTotal.Add(1)
			return nil, "", fmt.Errorf("%w after %v", ErrCommandTimeout, c.cfg.CommandTimeout)
		case line := <-ch:
			switch {
			case line == "OK":
				return lines, "", nil
			case strings.HasPrefix(line, "OK "):
				return lines, strings.TrimPrefix(line, "OK "), nil
			case strings.HasPrefix(line, "FAIL"):
				c.errorsTotal.Add(1)
				return nil, "", fmt.Errorf("%w: %s", ErrCommandFailed, line)
			default:
				lines = append(lines, line)
			}
		}
	}
}

// Version queries the SKSTACK firmware version (SKVER).
//
// Returns:
//   - string: Version string, e.g. "1.2.10"
//   - error: If the command fails
func (c *Client) Version(ctx context.Context) (string, error) {
	lines, _, err := c.exec(ctx, "SKVER")
	if err != nil {
		return "", err
	}
	for _, line := range lines {
		if v, found := strings.CutPrefix(line, "EVER "); found {
			return v, nil
		}
	}
	return "", fmt.Errorf("%w: no EVER line in SKVER response", ErrCommandFailed)
}

// SetCredentials registers the utility-issued Route-B ID (32 hex
// characters) and password with the module.
//
// Returns:
//   - error: If either register write fails
func (c *Client) SetCredentials(ctx context.Context, routeBID, password string) error {
	if _, _, err := c.exec(ctx, fmt.Sprintf("SKSETPWD %X %s", len(password), password)); err != nil {
		return fmt.Errorf("set password: %w", err)
	}
	if _, _, err := c.exec(ctx, "SKSETRBID "+routeBID); err != nil {
		return fmt.Errorf("set route-b id: %w", err)
	}
	return nil
}

// Scan performs active scans with increasing durations until a PAN
// advertising the configured Route-B ID is found.
//
// Each scan covers all Route-B channels; the duration exponent controls
// the per-channel listen time. Short durations finish quickly but can
// miss beacons from meters with weak signals, so the scan is retried
// from duration 4 up to 8.
// When several PANs respond the one with the highest LQI wins. Returns
// ErrScanFailed when no PAN was found at any duration.
func (c *Client) Scan(ctx context.Context) (*PanDescriptor, error) {
	for dur := minScanDuration; dur <= maxScanDuration; dur++ {
		desc, err := c.scanOnce(ctx, dur)
		if err != nil {
			return nil, err
		}
		if desc != nil {
			c.logInfo("PAN found",
				"channel", fmt.Sprintf("%02X", desc.Channel),
				"pan_id", fmt.Sprintf("%04X", desc.PanID),
				"lqi", desc.LQI,
			)
			return desc, nil
		}
		c.logInfo("scan found no PAN, retrying", "duration", dur)
	}
	return nil, ErrScanFailed
}

// scanOnce runs a single active scan with the given duration exponent.
// Returns nil, nil when the scan completed without finding a PAN.
func (c *Client) scanOnce(ctx context.Context, duration int) (*PanDescriptor, error) {
	collector := &scanCollector{done: make(chan struct{})}

	c.scanMu.Lock()
	c.scan = collector
	c.scanMu.Unlock()
	defer func() {
		c.scanMu.Lock()
		c.scan = nil
		c.scanMu.Unlock()
	}()

	if _, _, err := c.exec(ctx, fmt.Sprintf("SKSCAN 2 FFFFFFFF %X", duration)); err != nil {
		return nil, fmt.Errorf("start scan: %w", err)
	}

	timer := time.NewTimer(c.cfg.ScanTimeout)
	defer timer.Stop()

	select {
	case <-ctx.Done():
		return nil, fmt.Errorf("scan cancelled: %w", ctx.Err())
	case <-c.done.Done():
		return nil, ErrNotConnected
	case <-timer.C:
		return nil, fmt.Errorf("%w: scan did not complete within %v", ErrCommandTimeout, c.cfg.ScanTimeout)
	case <-collector.done:
	}

	collector.mu.Lock()
	defer collector.mu.Unlock()

	if len(collector.found) == 0 {
		return nil, nil
	}

	// Several PANs can answer when neighbours' meters are in range;
	// pick the strongest signal.
	best := collector.found[0]
	for _, d := range collector.found[1:] {
		if d.LQI > best.LQI {
			best = d
		}
	}
	return &best, nil
}

// scanActive reports whether a scan is collecting beacons.
func (c *Client) scanActive() bool {
	c.scanMu.Lock()
	defer c.scanMu.Unlock()
	return c.scan != nil
}

// scanStartBlock begins a new EPANDESC block.
func (c *Client) scanStartBlock() {
	c.scanMu.Lock()
	collector := c.scan
	c.scanMu.Unlock()
	if collector == nil {
		return
	}

	collector.mu.Lock()
	defer collector.mu.Unlock()
	if collector.current != nil {
		collector.found = append(collector.found, *collector.current)
	}
	collector.current = &PanDescriptor{}
}

// scanAttribute applies one attribute line to the current block.
func (c *Client) scanAttribute(line string) {
	c.scanMu.Lock()
	collector := c.scan
	c.scanMu.Unlock()
	if collector == nil {
		return
	}

	collector.mu.Lock()
	defer collector.mu.Unlock()
	if collector.current == nil {
		return
	}
	if err := parsePanAttribute(collector.current, line); err != nil {
		c.errorsTotal.Add(1)
		c.logError("parse scan attribute failed", err)
	}
}

// scanFinish completes the scan on EVENT 22.
func (c *Client) scanFinish() {
	c.scanMu.Lock()
	collector := c.scan
	c.scanMu.Unlock()
	if collector == nil {
		return
	}

	collector.mu.Lock()
	if collector.current != nil {
		collector.found = append(collector.found, *collector.current)
		collector.current = nil
	}
	collector.mu.Unlock()

	close(collector.done)
}

// Join establishes a PANA session with the meter described by desc.
//
// It tunes the radio to the PAN's channel and ID, derives the meter's
// IPv6 link-local address from its MAC, and starts PANA authentication.
// The call blocks until EVENT 25 (success), EVENT 24 (failure), or the
// join timeout.
// Returns ErrJoinFailed when authentication is rejected.
func (c *Client) Join(ctx context.Context, desc *PanDescriptor) error {
	if desc == nil {
		return fmt.Errorf("%w: nil descriptor", ErrJoinFailed)
	}

	if _, _, err := c.exec(ctx, fmt.Sprintf("SKSREG S2 %02X", desc.Channel)); err != nil {
		return fmt.Errorf("set channel: %w", err)
	}
	if _, _, err := c.exec(ctx, fmt.Sprintf("SKSREG S3 %04X", desc.PanID)); err != nil {
		return fmt.Errorf("set pan id: %w", err)
	}

	// SKLL64 answers with the bare IPv6 address, no OK terminator.
	addr, err := c.execLine(ctx, "SKLL64 "+desc.Addr)
	if err != nil {
		return fmt.Errorf("derive link-local address: %w", err)
	}

	ch := make(chan error, 1)
	c.joinMu.Lock()
	c.joinCh = ch
	c.joinMu.Unlock()
	defer func() {
		c.joinMu.Lock()
		c.joinCh = nil
		c.joinMu.Unlock()
	}()

	if _, _, err := c.exec(ctx, "SKJOIN "+addr); err != nil {
		return fmt.Errorf("start join: %w", err)
	}

	timer := time.NewTimer(c.cfg.JoinTimeout)
	defer timer.Stop()

	select {
	case <-ctx.Done():
		return fmt.Errorf("join cancelled: %w", ctx.Err())
	case <-c.done.Done():
		return ErrNotConnected
	case <-timer.C:
		c.errorsTotal.Add(1)
		return fmt.Errorf("%w: no PANA result within %v", ErrCommandTimeout, c.cfg.JoinTimeout)
	case err := <-ch:
		if err != nil {
			c.errorsTotal.Add(1)
			return err
		}
	}

	c.sessionMu.Lock()
	c.peerAddr = addr
	c.hasSession = true
	c.sessionMu.Unlock()
	c.joinsTotal.Add(1)

	c.logInfo("PANA session established", "peer", addr)
	return nil
}

// execLine sends a command whose response is a single bare line
// without an OK terminator (SKLL64).
func (c *Client) execLine(ctx context.Context, command string) (string, error) {
	c.cmdMu.Lock()
	defer c.cmdMu.Unlock()

	if !c.IsConnected() {
		return "", ErrNotConnected
	}

	ch := make(chan string, 16)
	c.pendingMu.Lock()
	c.pending = ch
	c.pendingMu.Unlock()
	defer func() {
		c.pendingMu.Lock()
		c.pending = nil
		c.pendingMu.Unlock()
	}()

	if _, err := c.conn.Write([]byte(command + "\r\n")); err != nil {
		c.errorsTotal.Add(1)
		return "", fmt.Errorf("%w: write: %w", ErrCommandFailed, err)
	}
	c.commandsTx.Add(1)

	timer := time.NewTimer(c.cfg.CommandTimeout)
	defer timer.Stop()

	select {
	case <-ctx.Done():
		return "", fmt.Errorf("%w: %w", ErrCommandFailed, ctx.Err())
	case <-c.done.Done():
		return "", ErrNotConnected
	case <-timer.C:
		c.errorsTotal.Add(1)
		return "", fmt.Errorf("%w after %v", ErrCommandTimeout, c.cfg.CommandTimeout)
	case line := <-ch:
		if strings.HasPrefix(line, "FAIL") {
			c.errorsTotal.Add(1)
			return "", fmt.Errorf("%w: %s", ErrCommandFailed, line)
		}
		return line, nil
	}
}

// signalJoin delivers a PANA result to a waiting Join call.
func (c *Client) signalJoin(err error) {
	c.joinMu.Lock()
	ch := c.joinCh
	c.joinMu.Unlock()

	if ch == nil {
		return
	}
	select {
	case ch <- err:
	default:
	}
}

// Send transmits an ECHONET Lite frame to the joined meter.
//
// The frame is sent as a secured UDP datagram to the meter's ECHONET
// Lite port. The payload bytes follow the SKSENDTO header verbatim;
// hex display mode only affects received datagrams.
// Returns ErrNoSession before Join has completed.
func (c *Client) Send(ctx context.Context, data []byte) error {
	c.sessionMu.RLock()
	addr := c.peerAddr
	has := c.hasSession
	c.sessionMu.RUnlock()

	if !has {
		return ErrNoSession
	}

	header := fmt.Sprintf("SKSENDTO 1 %s %s 1 %04X ", addr, echonetPort, len(data))
	msg := make([]byte, 0, len(header)+len(data)+2)
	msg = append(msg, header...)
	msg = append(msg, data...)
	msg = append(msg, '\r', '\n')

	if _, _, err := c.execMsg(ctx, msg); err != nil {
		return fmt.Errorf("send frame: %w", err)
	}
	return nil
}

// SetOnDatagram sets the callback for received ECHONET Lite datagrams.
//
// The callback is invoked from a bounded worker pool. Panics in the
// callback are recovered and logged.
func (c *Client) SetOnDatagram(callback func(Datagram)) {
	c.callbackMu.Lock()
	c.onDatagram = callback
	c.callbackMu.Unlock()
}

// SetOnDisconnect sets the callback for transport or session loss.
//
// The error is ErrSessionLost when the meter dropped the PANA session
// and the transport is still usable, or a wrapped read error when the
// device itself failed.
func (c *Client) SetOnDisconnect(callback func(err error)) {
	c.callbackMu.Lock()
	c.onDisconnect = callback
	c.callbackMu.Unlock()
}

// SetLogger attaches a structured logger. Pass nil to silence the client.
func (c *Client) SetLogger(logger Logger) {
	c.loggerMu.Lock()
	c.logger = logger
	c.loggerMu.Unlock()
}

// IsConnected returns true if the transport is open.
func (c *Client) IsConnected() bool {
	c.connMu.RLock()
	defer c.connMu.RUnlock()
	return c.connected
}

// HasSession returns true while a PANA session is established.
func (c *Client) HasSession() bool {
	c.sessionMu.RLock()
	defer c.sessionMu.RUnlock()
	return c.hasSession
}

// Stats snapshots the link counters.
func (c *Client) Stats() Stats {
	return Stats{
		CommandsTx:       c.commandsTx.Load(),
		DatagramsRx:      c.datagramsRx.Load(),
		DatagramsDropped: c.datagramsDropped.Load(),
		ErrorsTotal:      c.errorsTotal.Load(),
		JoinsTotal:       c.joinsTotal.Load(),
		LastActivity:     time.Unix(c.lastActivity.Load(), 0),
		Connected:        c.IsConnected(),
		Session:          c.HasSession(),
	}
}

// HealthCheck verifies the transport is open and a session exists.
func (c *Client) HealthCheck(_ context.Context) error {
	if !c.IsConnected() {
		return ErrNotConnected
	}
	if !c.HasSession() {
		return ErrNoSession
	}
	return nil
}

// isClosed reports whether Close has been called.
func (c *Client) isClosed() bool {
	select {
	case <-c.done.Done():
		return true
	default:
		return false
	}
}

// Close stops the read loop, closes the device, and waits for the
// workers to drain. Calling it again is a no-op.
func (c *Client) Close() error {
	c.done.Close()

	c.connMu.Lock()
	c.connected = false
	c.connMu.Unlock()

	c.sessionMu.Lock()
	c.hasSession = false
	c.sessionMu.Unlock()

	// Close the device (this will unblock any pending reads)
	if c.conn != nil {
		c.conn.Close()
	}

	c.wg.Wait()

	c.logInfo("module connection closed")
	return nil
}

func (c *Client) logDebug(msg string, keysAndValues ...any) {
	c.loggerMu.RLock()
	logger := c.logger
	c.loggerMu.RUnlock()

	if logger != nil {
		logger.Debug(msg, keysAndValues...)
	}
}

func (c *Client) logInfo(msg string, keysAndValues ...any) {
	c.loggerMu.RLock()
	logger := c.logger
	c.loggerMu.RUnlock()

	if logger != nil {
		logger.Info(msg, keysAndValues...)
	}
}

func (c *Client) logError(msg string, err error) {
	c.loggerMu.RLock()
	logger := c.logger
	c.loggerMu.RUnlock()

	if logger != nil {
		logger.Error(msg, "error", err)
	}
}
