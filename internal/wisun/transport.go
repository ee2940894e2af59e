package wisun

import (
	"fmt"
	"io"
	"net"
	"net/url"
	"strconv"

	"go.bug.st/serial"
)

// Transport defaults.
const (
	// defaultBaudRate is the BP35A1 factory baud rate.
	defaultBaudRate = 115200

	// defaultTCPPort is the conventional ser2net port for serial bridges.
	defaultTCPPort = "3610"
)

// openTransport opens the byte stream to the Wi-SUN module.
//
// The device URL determines the transport:
//   - "serial:///dev/ttyUSB0" → local serial port
//   - "tcp://192.168.1.50:3610" → ser2net bridge
//
// Parameters:
//   - cfg: Client configuration (Device, BaudRate, ConnectTimeout)
//
// Returns:
//   - io.ReadWriteCloser: Open stream to the module
//   - error: If the URL is malformed or the device cannot be opened
func openTransport(cfg Config) (io.ReadWriteCloser, error) {
	u, err := url.Parse(cfg.Device)
	if err != nil {
		return nil, fmt.Errorf("invalid device URL: %w", err)
	}

	switch u.Scheme {
	case "serial":
		return openSerial(u, cfg.BaudRate)
	case "tcp":
		host := u.Host
		if _, _, splitErr := net.SplitHostPort(host); splitErr != nil {
			host = net.JoinHostPort(host, defaultTCPPort)
		}
		conn, err := net.DialTimeout("tcp", host, cfg.ConnectTimeout)
		if err != nil {
			return nil, fmt.Errorf("dial tcp://%s: %w", host, err)
		}
		return conn, nil
	default:
		return nil, fmt.Errorf("unsupported scheme %q (use serial or tcp)", u.Scheme)
	}
}

// openSerial opens a local serial port.
func openSerial(u *url.URL, baud int) (io.ReadWriteCloser, error) {
	if baud == 0 {
		baud = defaultBaudRate
	}
	if b := u.Query().Get("baud"); b != "" {
		parsed, err := strconv.Atoi(b)
		if err != nil {
			return nil, fmt.Errorf("invalid baud rate %q: %w", b, err)
		}
		baud = parsed
	}

	path := u.Path
	if path == "" {
		return nil, fmt.Errorf("serial URL has no device path")
	}

	port, err := serial.Open(path, &serial.Mode{
		BaudRate: baud,
		DataBits: 8,
		Parity:   serial.NoParity,
		StopBits: serial.OneStopBit,
	})
	if err != nil {
		return nil, fmt.Errorf("open serial %s: %w", path, err)
	}

	return port, nil
}
