package wisun

import (
	"bytes"
	"errors"
	"testing"
)

func TestParseEvent(t *testing.T) {
	tests := []struct {
		name    string
		line    string
		want    event
		wantErr bool
	}{
		{
			name: "scan complete",
			line: "EVENT 22 FE80:0000:0000:0000:021D:1290:1234:5678",
			want: event{Code: 0x22, Sender: "FE80:0000:0000:0000:021D:1290:1234:5678"},
		},
		{
			name: "join completed",
			line: "EVENT 25 FE80:0000:0000:0000:021D:1290:1234:5678",
			want: event{Code: 0x25, Sender: "FE80:0000:0000:0000:021D:1290:1234:5678"},
		},
		{
			name: "udp send result with param",
			line: "EVENT 21 FE80:0000:0000:0000:021D:1290:1234:5678 00",
			want: event{Code: 0x21, Sender: "FE80:0000:0000:0000:021D:1290:1234:5678", Param: "00"},
		},
		{
			name: "code only",
			line: "EVENT 29",
			want: event{Code: 0x29},
		},
		{
			name:    "missing code",
			line:    "EVENT",
			wantErr: true,
		},
		{
			name:    "not an event",
			line:    "EEDSCAN 22",
			wantErr: true,
		},
		{
			name:    "bad code",
			line:    "EVENT ZZ FE80::1",
			wantErr: true,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := parseEvent(tt.line)
			if tt.wantErr {
				if err == nil {
					t.Fatal("expected error, got nil")
				}
				if !errors.Is(err, ErrInvalidEvent) {
					t.Errorf("expected ErrInvalidEvent, got %v", err)
				}
				return
			}
			if err != nil {
				t.Fatalf("unexpected error: %v", err)
			}
			if got != tt.want {
				t.Errorf("got %+v, want %+v", got, tt.want)
			}
		})
	}
}

func TestParseDatagram(t *testing.T) {
	const sender = "FE80:0000:0000:0000:021D:1290:1234:5678"
	const dest = "FE80:0000:0000:0000:021D:1291:8765:4321"

	t.Run("echonet datagram", func(t *testing.T) {
		line := "ERXUDP " + sender + " " + dest +
			" 0E1A 0E1A 001D129012345678 1 0012 1081000102880105FF017201E704000001F4"
		dg, ok, err := parseDatagram(line)
		if err != nil {
			t.Fatalf("unexpected error: %v", err)
		}
		if !ok {
			t.Fatal("expected datagram to be accepted")
		}
		if dg.Sender != sender {
			t.Errorf("sender = %q, want %q", dg.Sender, sender)
		}
		want := []byte{
			0x10, 0x81, 0x00, 0x01, 0x02, 0x88, 0x01, 0x05, 0xFF, 0x01,
			0x72, 0x01, 0xE7, 0x04, 0x00, 0x00, 0x01, 0xF4,
		}
		if !bytes.Equal(dg.Data, want) {
			t.Errorf("data = % X, want % X", dg.Data, want)
		}
	})

	t.Run("other port filtered", func(t *testing.T) {
		line := "ERXUDP " + sender + " " + dest +
			" 02CC 02CC 001D129012345678 0 0004 DEADBEEF"
		_, ok, err := parseDatagram(line)
		if err != nil {
			t.Fatalf("unexpected error: %v", err)
		}
		if ok {
			t.Error("expected non-ECHONET datagram to be filtered")
		}
	})

	t.Run("length mismatch", func(t *testing.T) {
		line := "ERXUDP " + sender + " " + dest +
			" 0E1A 0E1A 001D129012345678 1 0004 DEADBEEFCAFE"
		_, _, err := parseDatagram(line)
		if !errors.Is(err, ErrInvalidEvent) {
			t.Errorf("expected ErrInvalidEvent, got %v", err)
		}
	})

	t.Run("bad hex data", func(t *testing.T) {
		line := "ERXUDP " + sender + " " + dest +
			" 0E1A 0E1A 001D129012345678 1 0002 ZZZZ"
		_, _, err := parseDatagram(line)
		if !errors.Is(err, ErrInvalidEvent) {
			t.Errorf("expected ErrInvalidEvent, got %v", err)
		}
	})

	t.Run("too few fields", func(t *testing.T) {
		_, _, err := parseDatagram("ERXUDP " + sender)
		if !errors.Is(err, ErrInvalidEvent) {
			t.Errorf("expected ErrInvalidEvent, got %v", err)
		}
	})
}

func TestParsePanAttribute(t *testing.T) {
	var desc PanDescriptor

	lines := []string{
		"  Channel:39",
		"  Channel Page:09",
		"  Pan ID:8888",
		"  Addr:001D129012345678",
		"  LQI:E1",
		"  PairID:01234567",
	}
	for _, line := range lines {
		if err := parsePanAttribute(&desc, line); err != nil {
			t.Fatalf("parsePanAttribute(%q): %v", line, err)
		}
	}

	if desc.Channel != 0x39 {
		t.Errorf("Channel = %02X, want 39", desc.Channel)
	}
	if desc.ChannelPage != 0x09 {
		t.Errorf("ChannelPage = %02X, want 09", desc.ChannelPage)
	}
	if desc.PanID != 0x8888 {
		t.Errorf("PanID = %04X, want 8888", desc.PanID)
	}
	if desc.Addr != "001D129012345678" {
		t.Errorf("Addr = %q", desc.Addr)
	}
	if desc.LQI != 0xE1 {
		t.Errorf("LQI = %02X, want E1", desc.LQI)
	}
	if desc.PairID != "01234567" {
		t.Errorf("PairID = %q", desc.PairID)
	}

	t.Run("unknown key ignored", func(t *testing.T) {
		var d PanDescriptor
		if err := parsePanAttribute(&d, "  Side:0"); err != nil {
			t.Errorf("unexpected error: %v", err)
		}
	})

	t.Run("bad hex value", func(t *testing.T) {
		var d PanDescriptor
		if err := parsePanAttribute(&d, "  Channel:XY"); !errors.Is(err, ErrInvalidEvent) {
			t.Errorf("expected ErrInvalidEvent, got %v", err)
		}
	})

	t.Run("missing separator", func(t *testing.T) {
		var d PanDescriptor
		if err := parsePanAttribute(&d, "  Channel 39"); !errors.Is(err, ErrInvalidEvent) {
			t.Errorf("expected ErrInvalidEvent, got %v", err)
		}
	})
}
