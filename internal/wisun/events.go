package wisun

import (
	"encoding/hex"
	"fmt"
	"strconv"
	"strings"
)

// SKSTACK event codes relevant to Route-B operation.
const (
	eventBeaconReceived = 0x20
	eventScanComplete   = 0x22
	eventJoinFailed     = 0x24
	eventJoinCompleted  = 0x25
	eventSessionClosed  = 0x26
	eventSessionExpired = 0x29
)

// echonetPort is the ECHONET Lite UDP port (3610) in the 4-hex form the
// module uses on the wire.
const echonetPort = "0E1A"

// PanDescriptor describes a smart meter PAN found by an active scan.
// The fields mirror the attributes of an EPANDESC block.
type PanDescriptor struct {
	// Channel is the logical radio channel (33 to 60).
	Channel byte

	// ChannelPage is the channel page (fixed 0x09 for Route-B).
	ChannelPage byte

	// PanID is the 16-bit PAN identifier.
	PanID uint16

	// Addr is the meter's 64-bit MAC address as 16 hex characters.
	Addr string

	// LQI is the link quality of the received beacon (higher is better).
	LQI byte

	// PairID is the pairing identifier derived from the Route-B ID.
	PairID string
}

// Datagram is a UDP payload received from the meter on the ECHONET
// Lite port.
type Datagram struct {
	// Sender is the meter's IPv6 link-local address.
	Sender string

	// Data is the raw ECHONET Lite frame.
	Data []byte
}

// event is a parsed EVENT line from the module.
type event struct {
	Code   int
	Sender string
	Param  string
}

// parseEvent parses an "EVENT <code> <sender> [param]" line.
func parseEvent(line string) (event, error) {
	fields := strings.Fields(line)
	if len(fields) < 2 || fields[0] != "EVENT" {
		return event{}, fmt.Errorf("%w: %q", ErrInvalidEvent, line)
	}

	code, err := strconv.ParseUint(fields[1], 16, 8)
	if err != nil {
		return event{}, fmt.Errorf("%w: bad code in %q: %w", ErrInvalidEvent, line, err)
	}

	ev := event{Code: int(code)}
	if len(fields) > 2 {
		ev.Sender = fields[2]
	}
	if len(fields) > 3 {
		ev.Param = fields[3]
	}
	return ev, nil
}

// parseDatagram parses an ERXUDP line in hex display mode (WOPT 01).
//
// Format:
//
//	ERXUDP <sender> <dest> <rport> <lport> <senderlla> <secured> <datalen> <data>
//
// Datagrams on ports other than the ECHONET Lite port return (zero, false).
func parseDatagram(line string) (Datagram, bool, error) {
	fields := strings.Fields(line)
	if len(fields) < 9 || fields[0] != "ERXUDP" {
		return Datagram{}, false, fmt.Errorf("%w: %q", ErrInvalidEvent, line)
	}

	// Only ECHONET Lite traffic is interesting; the module also delivers
	// PANA and neighbour discovery datagrams.
	if !strings.EqualFold(fields[4], echonetPort) {
		return Datagram{}, false, nil
	}

	declaredLen, err := strconv.ParseUint(fields[7], 16, 16)
	if err != nil {
		return Datagram{}, false, fmt.Errorf("%w: bad datalen in %q: %w", ErrInvalidEvent, line, err)
	}

	data, err := hex.DecodeString(fields[8])
	if err != nil {
		return Datagram{}, false, fmt.Errorf("%w: bad data in %q: %w", ErrInvalidEvent, line, err)
	}
	if len(data) != int(declaredLen) {
		return Datagram{}, false, fmt.Errorf("%w: datalen %d does not match %d data bytes",
			ErrInvalidEvent, declaredLen, len(data))
	}

	return Datagram{Sender: fields[1], Data: data}, true, nil
}

// parsePanAttribute applies one "Key:Value" attribute line of an
// EPANDESC block to the descriptor.
func parsePanAttribute(desc *PanDescriptor, line string) error {
	key, value, found := strings.Cut(strings.TrimSpace(line), ":")
	if !found {
		return fmt.Errorf("%w: %q", ErrInvalidEvent, line)
	}
	key = strings.TrimSpace(key)
	value = strings.TrimSpace(value)

	switch key {
	case "Channel":
		v, err := strconv.ParseUint(value, 16, 8)
		if err != nil {
			return fmt.Errorf("%w: channel %q: %w", ErrInvalidEvent, value, err)
		}
		desc.Channel = byte(v)
	case "Channel Page":
		v, err := strconv.ParseUint(value, 16, 8)
		if err != nil {
			return fmt.Errorf("%w: channel page %q: %w", ErrInvalidEvent, value, err)
		}
		desc.ChannelPage = byte(v)
	case "Pan ID":
		v, err := strconv.ParseUint(value, 16, 16)
		if err != nil {
			return fmt.Errorf("%w: pan id %q: %w", ErrInvalidEvent, value, err)
		}
		desc.PanID = uint16(v)
	case "Addr":
		desc.Addr = value
	case "LQI":
		v, err := strconv.ParseUint(value, 16, 8)
		if err != nil {
			return fmt.Errorf("%w: lqi %q: %w", ErrInvalidEvent, value, err)
		}
		desc.LQI = byte(v)
	case "PairID":
		desc.PairID = value
	default:
		// Newer modules add attributes (e.g. Side on dual-stack parts).
		// Unknown keys are ignored.
	}
	return nil
}
