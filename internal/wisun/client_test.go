package wisun

import (
	"bufio"
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"net"
	"strings"
	"sync/atomic"
	"testing"
	"time"
)

const (
	testMeterMAC  = "001D129012345678"
	testMeterIPv6 = "FE80:0000:0000:0000:021D:1290:1234:5678"
)

// newTestClient builds a client over net.Pipe and returns the module
// side of the pipe for scripting SKSTACK responses.
func newTestClient(t *testing.T, cfg Config) (*Client, net.Conn) {
	t.Helper()

	clientSide, moduleSide := net.Pipe()

	if cfg.CommandTimeout == 0 {
		cfg.CommandTimeout = 2 * time.Second
	}
	if cfg.ScanTimeout == 0 {
		cfg.ScanTimeout = 2 * time.Second
	}
	if cfg.JoinTimeout == 0 {
		cfg.JoinTimeout = 2 * time.Second
	}

	client := newClient(clientSide, cfg)
	client.start()

	t.Cleanup(func() {
		client.Close()
		moduleSide.Close()
	})

	return client, moduleSide
}

// expectLine reads one command line from the module side and checks it.
// Returns false on mismatch so scripted goroutines can bail out.
func expectLine(t *testing.T, r *bufio.Reader, want string) bool {
	t.Helper()

	line, err := r.ReadString('\n')
	if err != nil {
		t.Errorf("read command: %v", err)
		return false
	}
	line = strings.TrimRight(line, "\r\n")
	if line != want {
		t.Errorf("module received %q, want %q", line, want)
		return false
	}
	return true
}

func reply(conn net.Conn, lines ...string) {
	for _, line := range lines {
		conn.Write([]byte(line + "\r\n"))
	}
}

// forceSession puts the client into a joined state without scripting
// the full scan/join exchange.
func forceSession(c *Client, addr string) {
	c.sessionMu.Lock()
	c.peerAddr = addr
	c.hasSession = true
	c.sessionMu.Unlock()
}

func TestVersion(t *testing.T) {
	client, module := newTestClient(t, Config{})

	go func() {
		r := bufio.NewReader(module)
		if !expectLine(t, r, "SKVER") {
			return
		}
		reply(module, "EVER 1.2.10", "OK")
	}()

	version, err := client.Version(context.Background())
	if err != nil {
		t.Fatalf("Version failed: %v", err)
	}
	if version != "1.2.10" {
		t.Errorf("version = %q, want 1.2.10", version)
	}
}

func TestSetCredentials(t *testing.T) {
	client, module := newTestClient(t, Config{})

	go func() {
		r := bufio.NewReader(module)
		if !expectLine(t, r, "SKSETPWD C PASSWORD1234") {
			return
		}
		reply(module, "OK")
		if !expectLine(t, r, "SKSETRBID 00112233445566778899AABBCCDDEEFF") {
			return
		}
		reply(module, "OK")
	}()

	err := client.SetCredentials(context.Background(),
		"00112233445566778899AABBCCDDEEFF", "PASSWORD1234")
	if err != nil {
		t.Fatalf("SetCredentials failed: %v", err)
	}
}

func TestExec_Fail(t *testing.T) {
	client, module := newTestClient(t, Config{})

	go func() {
		r := bufio.NewReader(module)
		if !expectLine(t, r, "SKSETRBID SHORT") {
			return
		}
		reply(module, "FAIL ER06")
	}()

	_, _, err := client.exec(context.Background(), "SKSETRBID SHORT")
	if !errors.Is(err, ErrCommandFailed) {
		t.Errorf("expected ErrCommandFailed, got %v", err)
	}
	if err == nil || !strings.Contains(err.Error(), "ER06") {
		t.Errorf("expected error to carry the FAIL code, got %v", err)
	}
}

func TestExec_Timeout(t *testing.T) {
	client, module := newTestClient(t, Config{CommandTimeout: 100 * time.Millisecond})

	go func() {
		// Consume the command but never answer.
		bufio.NewReader(module).ReadString('\n')
	}()

	_, _, err := client.exec(context.Background(), "SKVER")
	if !errors.Is(err, ErrCommandTimeout) {
		t.Errorf("expected ErrCommandTimeout, got %v", err)
	}
}

func TestExec_ContextCancelled(t *testing.T) {
	client, module := newTestClient(t, Config{})

	go func() {
		bufio.NewReader(module).ReadString('\n')
	}()

	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	_, _, err := client.exec(ctx, "SKVER")
	if !errors.Is(err, context.Canceled) {
		t.Errorf("expected context.Canceled, got %v", err)
	}
}

func TestScan_FindsPan(t *testing.T) {
	client, module := newTestClient(t, Config{})

	go func() {
		r := bufio.NewReader(module)

		// First pass finds nothing.
		if !expectLine(t, r, "SKSCAN 2 FFFFFFFF 4") {
			return
		}
		reply(module, "OK", "EVENT 22 "+testMeterIPv6)

		// Second pass returns one PAN.
		if !expectLine(t, r, "SKSCAN 2 FFFFFFFF 5") {
			return
		}
		reply(module,
			"OK",
			"EVENT 20 "+testMeterIPv6,
			"EPANDESC",
			"  Channel:39",
			"  Channel Page:09",
			"  Pan ID:8888",
			"  Addr:"+testMeterMAC,
			"  LQI:E1",
			"  PairID:01234567",
			"EVENT 22 "+testMeterIPv6,
		)
	}()

	desc, err := client.Scan(context.Background())
	if err != nil {
		t.Fatalf("Scan failed: %v", err)
	}
	if desc.Channel != 0x39 {
		t.Errorf("Channel = %02X, want 39", desc.Channel)
	}
	if desc.PanID != 0x8888 {
		t.Errorf("PanID = %04X, want 8888", desc.PanID)
	}
	if desc.Addr != testMeterMAC {
		t.Errorf("Addr = %q, want %q", desc.Addr, testMeterMAC)
	}
}

func TestScan_AttemptTimeout(t *testing.T) {
	client, module := newTestClient(t, Config{ScanTimeout: 200 * time.Millisecond})

	go func() {
		r := bufio.NewReader(module)
		if !expectLine(t, r, "SKSCAN 2 FFFFFFFF 4") {
			return
		}
		// Scan accepted but EVENT 22 never arrives.
		reply(module, "OK")
	}()

	start := time.Now()
	_, err := client.Scan(context.Background())
	if !errors.Is(err, ErrCommandTimeout) {
		t.Fatalf("Scan error = %v, want ErrCommandTimeout", err)
	}
	// The timeout bounds the single attempt; a failed attempt aborts the
	// retry loop instead of restarting the clock.
	if elapsed := time.Since(start); elapsed < 200*time.Millisecond || elapsed > 2*time.Second {
		t.Errorf("Scan returned after %v, want roughly the attempt timeout", elapsed)
	}
}

func TestScan_PicksStrongestSignal(t *testing.T) {
	client, module := newTestClient(t, Config{})

	go func() {
		r := bufio.NewReader(module)
		if !expectLine(t, r, "SKSCAN 2 FFFFFFFF 4") {
			return
		}
		reply(module,
			"OK",
			"EPANDESC",
			"  Channel:21",
			"  Channel Page:09",
			"  Pan ID:1111",
			"  Addr:FFFFFFFFFFFFFFFF",
			"  LQI:30",
			"  PairID:AAAAAAAA",
			"EPANDESC",
			"  Channel:39",
			"  Channel Page:09",
			"  Pan ID:8888",
			"  Addr:"+testMeterMAC,
			"  LQI:E1",
			"  PairID:01234567",
			"EVENT 22 "+testMeterIPv6,
		)
	}()

	desc, err := client.Scan(context.Background())
	if err != nil {
		t.Fatalf("Scan failed: %v", err)
	}
	if desc.PanID != 0x8888 {
		t.Errorf("PanID = %04X, want the higher-LQI PAN 8888", desc.PanID)
	}
}

func TestJoin(t *testing.T) {
	client, module := newTestClient(t, Config{})

	desc := &PanDescriptor{Channel: 0x39, PanID: 0x8888, Addr: testMeterMAC}

	go func() {
		r := bufio.NewReader(module)
		if !expectLine(t, r, "SKSREG S2 39") {
			return
		}
		reply(module, "OK")
		if !expectLine(t, r, "SKSREG S3 8888") {
			return
		}
		reply(module, "OK")
		if !expectLine(t, r, "SKLL64 "+testMeterMAC) {
			return
		}
		// SKLL64 answers with the bare address, no OK.
		reply(module, testMeterIPv6)
		if !expectLine(t, r, "SKJOIN "+testMeterIPv6) {
			return
		}
		reply(module, "OK", "EVENT 25 "+testMeterIPv6)
	}()

	if err := client.Join(context.Background(), desc); err != nil {
		t.Fatalf("Join failed: %v", err)
	}
	if !client.HasSession() {
		t.Error("expected session after successful join")
	}
	if got := client.Stats().JoinsTotal; got != 1 {
		t.Errorf("JoinsTotal = %d, want 1", got)
	}
}

func TestJoin_AuthenticationRejected(t *testing.T) {
	client, module := newTestClient(t, Config{})

	desc := &PanDescriptor{Channel: 0x39, PanID: 0x8888, Addr: testMeterMAC}

	go func() {
		r := bufio.NewReader(module)
		if !expectLine(t, r, "SKSREG S2 39") {
			return
		}
		reply(module, "OK")
		if !expectLine(t, r, "SKSREG S3 8888") {
			return
		}
		reply(module, "OK")
		if !expectLine(t, r, "SKLL64 "+testMeterMAC) {
			return
		}
		reply(module, testMeterIPv6)
		if !expectLine(t, r, "SKJOIN "+testMeterIPv6) {
			return
		}
		reply(module, "OK", "EVENT 24 "+testMeterIPv6)
	}()

	err := client.Join(context.Background(), desc)
	if !errors.Is(err, ErrJoinFailed) {
		t.Errorf("expected ErrJoinFailed, got %v", err)
	}
	if client.HasSession() {
		t.Error("expected no session after failed join")
	}
}

func TestJoin_NilDescriptor(t *testing.T) {
	client, _ := newTestClient(t, Config{})

	if err := client.Join(context.Background(), nil); !errors.Is(err, ErrJoinFailed) {
		t.Errorf("expected ErrJoinFailed, got %v", err)
	}
}

func TestSend(t *testing.T) {
	client, module := newTestClient(t, Config{})
	forceSession(client, testMeterIPv6)

	payload := []byte{0x10, 0x81, 0x00, 0x01, 0x05, 0xFF, 0x01, 0x02, 0x88, 0x01, 0x62, 0x01, 0xE7, 0x00}

	go func() {
		header := fmt.Sprintf("SKSENDTO 1 %s 0E1A 1 %04X ", testMeterIPv6, len(payload))
		want := append([]byte(header), payload...)
		want = append(want, '\r', '\n')

		got := make([]byte, len(want))
		if _, err := io.ReadFull(module, got); err != nil {
			t.Errorf("read send message: %v", err)
			return
		}
		if !bytes.Equal(got, want) {
			t.Errorf("module received %q, want %q", got, want)
		}
		reply(module, "EVENT 21 "+testMeterIPv6+" 00", "OK")
	}()

	if err := client.Send(context.Background(), payload); err != nil {
		t.Fatalf("Send failed: %v", err)
	}
}

func TestSend_NoSession(t *testing.T) {
	client, _ := newTestClient(t, Config{})

	err := client.Send(context.Background(), []byte{0x10, 0x81})
	if !errors.Is(err, ErrNoSession) {
		t.Errorf("expected ErrNoSession, got %v", err)
	}
}

func TestDatagramCallback(t *testing.T) {
	client, module := newTestClient(t, Config{})

	received := make(chan Datagram, 1)
	client.SetOnDatagram(func(dg Datagram) {
		received <- dg
	})

	// PANA traffic on another port must not reach the callback.
	reply(module, "ERXUDP "+testMeterIPv6+" FE80::1 02CC 02CC "+testMeterMAC+" 0 0002 BEEF")
	reply(module, "ERXUDP "+testMeterIPv6+" FE80::1 0E1A 0E1A "+testMeterMAC+" 1 0004 10810001")

	select {
	case dg := <-received:
		if dg.Sender != testMeterIPv6 {
			t.Errorf("sender = %q, want %q", dg.Sender, testMeterIPv6)
		}
		if !bytes.Equal(dg.Data, []byte{0x10, 0x81, 0x00, 0x01}) {
			t.Errorf("data = % X", dg.Data)
		}
	case <-time.After(2 * time.Second):
		t.Fatal("datagram callback not invoked")
	}

	if got := client.Stats().DatagramsRx; got != 1 {
		t.Errorf("DatagramsRx = %d, want 1 (non-ECHONET traffic must be filtered)", got)
	}
}

func TestDatagramCallback_PanicRecovered(t *testing.T) {
	client, module := newTestClient(t, Config{})

	called := make(chan struct{}, 2)
	var panicked atomic.Bool
	client.SetOnDatagram(func(Datagram) {
		called <- struct{}{}
		if panicked.CompareAndSwap(false, true) {
			panic("callback panic")
		}
	})

	reply(module, "ERXUDP "+testMeterIPv6+" FE80::1 0E1A 0E1A "+testMeterMAC+" 1 0002 1081")
	reply(module, "ERXUDP "+testMeterIPv6+" FE80::1 0E1A 0E1A "+testMeterMAC+" 1 0002 1081")

	for i := 0; i < 2; i++ {
		select {
		case <-called:
		case <-time.After(2 * time.Second):
			t.Fatalf("callback %d not invoked after panic", i+1)
		}
	}
}

func TestSessionLost(t *testing.T) {
	client, module := newTestClient(t, Config{})
	forceSession(client, testMeterIPv6)

	disconnected := make(chan error, 1)
	client.SetOnDisconnect(func(err error) {
		disconnected <- err
	})

	reply(module, "EVENT 29 "+testMeterIPv6)

	select {
	case err := <-disconnected:
		if !errors.Is(err, ErrSessionLost) {
			t.Errorf("expected ErrSessionLost, got %v", err)
		}
	case <-time.After(2 * time.Second):
		t.Fatal("disconnect callback not invoked")
	}

	if client.HasSession() {
		t.Error("expected session cleared after EVENT 29")
	}
	if !client.IsConnected() {
		t.Error("transport should remain connected after session loss")
	}
}

func TestTransportLost(t *testing.T) {
	client, module := newTestClient(t, Config{})

	disconnected := make(chan error, 1)
	client.SetOnDisconnect(func(err error) {
		disconnected <- err
	})

	module.Close()

	select {
	case err := <-disconnected:
		if !errors.Is(err, ErrNotConnected) {
			t.Errorf("expected ErrNotConnected, got %v", err)
		}
	case <-time.After(2 * time.Second):
		t.Fatal("disconnect callback not invoked")
	}

	if client.IsConnected() {
		t.Error("expected disconnected state after transport loss")
	}
}

func TestHealthCheck(t *testing.T) {
	client, _ := newTestClient(t, Config{})

	if err := client.HealthCheck(context.Background()); !errors.Is(err, ErrNoSession) {
		t.Errorf("expected ErrNoSession before join, got %v", err)
	}

	forceSession(client, testMeterIPv6)
	if err := client.HealthCheck(context.Background()); err != nil {
		t.Errorf("expected healthy after join, got %v", err)
	}

	client.Close()
	if err := client.HealthCheck(context.Background()); !errors.Is(err, ErrNotConnected) {
		t.Errorf("expected ErrNotConnected after close, got %v", err)
	}
}

func TestClose_Idempotent(t *testing.T) {
	client, _ := newTestClient(t, Config{})

	if err := client.Close(); err != nil {
		t.Errorf("first close: %v", err)
	}
	if err := client.Close(); err != nil {
		t.Errorf("second close: %v", err)
	}
	if client.IsConnected() {
		t.Error("expected disconnected after close")
	}

	_, _, err := client.exec(context.Background(), "SKVER")
	if !errors.Is(err, ErrNotConnected) {
		t.Errorf("expected ErrNotConnected after close, got %v", err)
	}
}

func TestStats(t *testing.T) {
	client, module := newTestClient(t, Config{})

	go func() {
		r := bufio.NewReader(module)
		if !expectLine(t, r, "SKVER") {
			return
		}
		reply(module, "EVER 1.2.10", "OK")
	}()

	if _, err := client.Version(context.Background()); err != nil {
		t.Fatalf("Version failed: %v", err)
	}

	stats := client.Stats()
	if stats.CommandsTx != 1 {
		t.Errorf("CommandsTx = %d, want 1", stats.CommandsTx)
	}
	if !stats.Connected {
		t.Error("expected Connected in stats")
	}
	if stats.Session {
		t.Error("expected no session in stats")
	}
	if stats.LastActivity.IsZero() {
		t.Error("expected LastActivity to be set")
	}
}
