package echonet

import (
	"bytes"
	"errors"
	"math/big"
	"reflect"
	"testing"
)

func TestParseFrame(t *testing.T) {
	tests := []struct {
		name    string
		data    []byte
		want    Frame
		wantErr error
	}{
		{
			name: "get request for instantaneous power",
			// EHD, TID=0x0001, SEOJ=controller, DEOJ=meter, ESV=Get, OPC=1, EPC=0xE7 PDC=0
			data: []byte{0x10, 0x81, 0x00, 0x01, 0x05, 0xFF, 0x01, 0x02, 0x88, 0x01, 0x62, 0x01, 0xE7, 0x00},
			want: Frame{
				TransactionID:     0x0001,
				SourceObject:      ObjectController,
				DestinationObject: ObjectSmartMeter,
				ServiceCode:       ESVGet,
				Properties:        []Property{{Code: 0xE7, Data: []byte{}}},
			},
		},
		{
			name: "get response with 4-byte power value",
			data: []byte{0x10, 0x81, 0x00, 0x01, 0x02, 0x88, 0x01, 0x05, 0xFF, 0x01, 0x72, 0x01,
				0xE7, 0x04, 0x00, 0x00, 0x01, 0xF4},
			want: Frame{
				TransactionID:     0x0001,
				SourceObject:      ObjectSmartMeter,
				DestinationObject: ObjectController,
				ServiceCode:       ESVGetRes,
				Properties:        []Property{{Code: 0xE7, Data: []byte{0x00, 0x00, 0x01, 0xF4}}},
			},
		},
		{
			name: "multiple properties preserve wire order",
			data: []byte{0x10, 0x81, 0xBE, 0xEF, 0x02, 0x88, 0x01, 0x05, 0xFF, 0x01, 0x72, 0x03,
				0xE1, 0x01, 0x01,
				0xD3, 0x04, 0x00, 0x00, 0x00, 0x01,
				0xE7, 0x04, 0x00, 0x00, 0x04, 0xD2},
			want: Frame{
				TransactionID:     0xBEEF,
				SourceObject:      ObjectSmartMeter,
				DestinationObject: ObjectController,
				ServiceCode:       ESVGetRes,
				Properties: []Property{
					{Code: 0xE1, Data: []byte{0x01}},
					{Code: 0xD3, Data: []byte{0x00, 0x00, 0x00, 0x01}},
					{Code: 0xE7, Data: []byte{0x00, 0x00, 0x04, 0xD2}},
				},
			},
		},
		{
			name:    "invalid header",
			data:    []byte{0x10, 0x82, 0x00, 0x01, 0x05, 0xFF, 0x01, 0x02, 0x88, 0x01, 0x62, 0x00},
			wantErr: ErrInvalidFrame,
		},
		{
			name:    "empty buffer",
			data:    []byte{},
			wantErr: ErrInvalidFrame,
		},
		{
			name:    "truncated at header",
			data:    []byte{0x10},
			wantErr: ErrInvalidFrame,
		},
		{
			name:    "truncated in fixed fields",
			data:    []byte{0x10, 0x81, 0x00, 0x01, 0x05, 0xFF, 0x01, 0x02, 0x88, 0x01, 0x62},
			wantErr: ErrInvalidFrame,
		},
		{
			name: "truncated at property code/length pair",
			data: []byte{0x10, 0x81, 0x00, 0x01, 0x05, 0xFF, 0x01, 0x02, 0x88, 0x01, 0x62, 0x01,
				0xE7},
			wantErr: ErrInvalidFrame,
		},
		{
			name: "truncated mid-value",
			data: []byte{0x10, 0x81, 0x00, 0x01, 0x02, 0x88, 0x01, 0x05, 0xFF, 0x01, 0x72, 0x01,
				0xE7, 0x04, 0x00, 0x00},
			wantErr: ErrInvalidFrame,
		},
		{
			name: "second property missing entirely",
			data: []byte{0x10, 0x81, 0x00, 0x01, 0x02, 0x88, 0x01, 0x05, 0xFF, 0x01, 0x72, 0x02,
				0xE1, 0x01, 0x01},
			wantErr: ErrInvalidFrame,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := ParseFrame(tt.data)

			if tt.wantErr != nil {
				if !errors.Is(err, tt.wantErr) {
					t.Fatalf("ParseFrame() error = %v, want %v", err, tt.wantErr)
				}
				return
			}

			if err != nil {
				t.Fatalf("ParseFrame() unexpected error: %v", err)
			}
			if got.TransactionID != tt.want.TransactionID {
				t.Errorf("TransactionID = 0x%04X, want 0x%04X", got.TransactionID, tt.want.TransactionID)
			}
			if got.SourceObject != tt.want.SourceObject {
				t.Errorf("SourceObject = 0x%06X, want 0x%06X", got.SourceObject, tt.want.SourceObject)
			}
			if got.DestinationObject != tt.want.DestinationObject {
				t.Errorf("DestinationObject = 0x%06X, want 0x%06X", got.DestinationObject, tt.want.DestinationObject)
			}
			if got.ServiceCode != tt.want.ServiceCode {
				t.Errorf("ServiceCode = 0x%02X, want 0x%02X", got.ServiceCode, tt.want.ServiceCode)
			}
			if len(got.Properties) != len(tt.want.Properties) {
				t.Fatalf("Properties count = %d, want %d", len(got.Properties), len(tt.want.Properties))
			}
			for i, p := range got.Properties {
				want := tt.want.Properties[i]
				if p.Code != want.Code {
					t.Errorf("Properties[%d].Code = 0x%02X, want 0x%02X", i, p.Code, want.Code)
				}
				if !bytes.Equal(p.Data, want.Data) {
					t.Errorf("Properties[%d].Data = %X, want %X", i, p.Data, want.Data)
				}
			}
		})
	}
}

func TestFrameEncode(t *testing.T) {
	tests := []struct {
		name  string
		frame Frame
		want  []byte
	}{
		{
			name: "get request with zero-length property",
			frame: Frame{
				TransactionID:     0x0001,
				SourceObject:      ObjectController,
				DestinationObject: ObjectSmartMeter,
				ServiceCode:       ESVGet,
				Properties:        []Property{{Code: 0xE7}},
			},
			want: []byte{0x10, 0x81, 0x00, 0x01, 0x05, 0xFF, 0x01, 0x02, 0x88, 0x01, 0x62, 0x01, 0xE7, 0x00},
		},
		{
			name: "no properties",
			frame: Frame{
				TransactionID:     0xFFFF,
				SourceObject:      ObjectController,
				DestinationObject: ObjectNodeProfile,
				ServiceCode:       ESVInfReq,
			},
			want: []byte{0x10, 0x81, 0xFF, 0xFF, 0x05, 0xFF, 0x01, 0x0E, 0xF0, 0x01, 0x63, 0x00},
		},
		{
			name: "response with value",
			frame: Frame{
				TransactionID:     0x1234,
				SourceObject:      ObjectSmartMeter,
				DestinationObject: ObjectController,
				ServiceCode:       ESVGetRes,
				Properties:        []Property{{Code: 0xE7, Data: []byte{0x00, 0x00, 0x01, 0xF4}}},
			},
			want: []byte{0x10, 0x81, 0x12, 0x34, 0x02, 0x88, 0x01, 0x05, 0xFF, 0x01, 0x72, 0x01,
				0xE7, 0x04, 0x00, 0x00, 0x01, 0xF4},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := tt.frame.Encode()
			if !bytes.Equal(got, tt.want) {
				t.Errorf("Encode() = %X, want %X", got, tt.want)
			}
		})
	}
}

func TestFrameRoundTrip(t *testing.T) {
	tests := []struct {
		name  string
		build func(t *testing.T) Frame
	}{
		{
			name: "get request",
			build: func(t *testing.T) Frame {
				t.Helper()
				f, err := NewGetFrame(0x0102, ObjectController, ObjectSmartMeter,
					EPCInstantPower, EPCCumulativeEnergy)
				if err != nil {
					t.Fatalf("NewGetFrame() error: %v", err)
				}
				return f
			},
		},
		{
			name: "set with mixed property widths",
			build: func(t *testing.T) Frame {
				t.Helper()
				wide, err := NewPropertyBig(0xEA, new(big.Int).SetBytes(
					[]byte{0x07, 0xE9, 0x0A, 0x01, 0x0C, 0x1E, 0x00, 0x00, 0x00, 0x2A, 0x19}))
				if err != nil {
					t.Fatalf("NewPropertyBig() error: %v", err)
				}
				f, err := NewFrame(0xFFFF, ObjectController, ObjectSmartMeter, ESVSetC,
					[]Property{NewProperty(0x80, 0x30), wide, NewProperty(0xD3, 0)})
				if err != nil {
					t.Fatalf("NewFrame() error: %v", err)
				}
				return f
			},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			f := tt.build(t)
			parsed, err := ParseFrame(f.Encode())
			if err != nil {
				t.Fatalf("ParseFrame() error: %v", err)
			}
			if !reflect.DeepEqual(parsed, f) {
				t.Errorf("round trip mismatch:\n got %s\nwant %s", parsed, f)
			}
		})
	}
}

func TestEndToEndExample(t *testing.T) {
	raw := []byte{0x10, 0x81, 0x00, 0x01, 0x05, 0xFF, 0x01, 0x02, 0x88, 0x01, 0x62, 0x01, 0xE7, 0x00}

	f, err := ParseFrame(raw)
	if err != nil {
		t.Fatalf("ParseFrame() error: %v", err)
	}

	if f.TransactionID != 0x0001 {
		t.Errorf("TransactionID = 0x%04X, want 0x0001", f.TransactionID)
	}
	if f.SourceObject != 0x05FF01 {
		t.Errorf("SourceObject = 0x%06X, want 0x05FF01", f.SourceObject)
	}
	if f.DestinationObject != 0x028801 {
		t.Errorf("DestinationObject = 0x%06X, want 0x028801", f.DestinationObject)
	}
	if f.ServiceCode != 0x62 {
		t.Errorf("ServiceCode = 0x%02X, want 0x62", f.ServiceCode)
	}
	if len(f.Properties) != 1 {
		t.Fatalf("Properties count = %d, want 1", len(f.Properties))
	}
	if f.Properties[0].Code != 0xE7 || f.Properties[0].Length() != 0 {
		t.Errorf("property = {EPC:0x%02X, PDC:%d}, want {EPC:0xE7, PDC:0}",
			f.Properties[0].Code, f.Properties[0].Length())
	}

	// Zero-length EDT reads as value 0.
	v, err := f.PropertyUint64(0xE7)
	if err != nil {
		t.Fatalf("PropertyUint64() error: %v", err)
	}
	if v != 0 {
		t.Errorf("PropertyUint64() = %d, want 0", v)
	}

	if got := f.Encode(); !bytes.Equal(got, raw) {
		t.Errorf("Encode() = %X, want %X", got, raw)
	}
}

func TestNewFrameValidation(t *testing.T) {
	t.Run("object code exceeds 24 bits", func(t *testing.T) {
		_, err := NewFrame(1, 0x1000000, ObjectSmartMeter, ESVGet, nil)
		if !errors.Is(err, ErrInvalidObject) {
			t.Errorf("NewFrame() error = %v, want %v", err, ErrInvalidObject)
		}
		_, err = NewFrame(1, ObjectController, 0x1000000, ESVGet, nil)
		if !errors.Is(err, ErrInvalidObject) {
			t.Errorf("NewFrame() error = %v, want %v", err, ErrInvalidObject)
		}
	})

	t.Run("more than 255 properties", func(t *testing.T) {
		props := make([]Property, 256)
		for i := range props {
			props[i] = NewProperty(0x80, 0)
		}
		_, err := NewFrame(1, ObjectController, ObjectSmartMeter, ESVGet, props)
		if !errors.Is(err, ErrTooManyProperties) {
			t.Errorf("NewFrame() error = %v, want %v", err, ErrTooManyProperties)
		}
	})

	t.Run("exactly 255 properties is fine", func(t *testing.T) {
		props := make([]Property, 255)
		for i := range props {
			props[i] = NewProperty(0x80, 0)
		}
		f, err := NewFrame(1, ObjectController, ObjectSmartMeter, ESVGet, props)
		if err != nil {
			t.Fatalf("NewFrame() error: %v", err)
		}
		parsed, err := ParseFrame(f.Encode())
		if err != nil {
			t.Fatalf("ParseFrame() error: %v", err)
		}
		if len(parsed.Properties) != 255 {
			t.Errorf("Properties count = %d, want 255", len(parsed.Properties))
		}
	})

	t.Run("property slice is copied", func(t *testing.T) {
		props := []Property{NewProperty(0xE7, 500)}
		f, err := NewFrame(1, ObjectController, ObjectSmartMeter, ESVGet, props)
		if err != nil {
			t.Fatalf("NewFrame() error: %v", err)
		}
		props[0] = NewProperty(0x80, 1)
		if f.Properties[0].Code != 0xE7 {
			t.Error("mutating the input slice changed the frame")
		}
	})
}

func TestIsResponseTo(t *testing.T) {
	request := Frame{
		TransactionID:     0x0042,
		SourceObject:      ObjectController,
		DestinationObject: ObjectSmartMeter,
		ServiceCode:       ESVGet,
	}
	response := Frame{
		TransactionID:     0x0042,
		SourceObject:      ObjectSmartMeter,
		DestinationObject: ObjectController,
		ServiceCode:       ESVGetRes,
	}

	if !response.IsResponseTo(request) {
		t.Error("IsResponseTo() = false for a matching response")
	}

	tests := []struct {
		name   string
		mutate func(f *Frame)
	}{
		{"wrong transaction id", func(f *Frame) { f.TransactionID = 0x0043 }},
		{"wrong source object", func(f *Frame) { f.SourceObject = ObjectNodeProfile }},
		{"wrong destination object", func(f *Frame) { f.DestinationObject = ObjectNodeProfile }},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			bad := response
			tt.mutate(&bad)
			if bad.IsResponseTo(request) {
				t.Error("IsResponseTo() = true, want false")
			}
		})
	}

	t.Run("service code and properties are ignored", func(t *testing.T) {
		sna := response
		sna.ServiceCode = ESVGetSNA
		sna.Properties = []Property{NewProperty(0xE7, 0)}
		if !sna.IsResponseTo(request) {
			t.Error("IsResponseTo() = false for SNA response with properties")
		}
	})
}

func TestNewTransactionID(t *testing.T) {
	// Not much to assert beyond the type width; check the draw varies.
	seen := make(map[uint16]bool)
	for range 100 {
		seen[NewTransactionID()] = true
	}
	if len(seen) < 2 {
		t.Error("NewTransactionID() returned the same value 100 times")
	}
}

func TestFrameString(t *testing.T) {
	f := Frame{
		TransactionID:     0x0001,
		SourceObject:      ObjectController,
		DestinationObject: ObjectSmartMeter,
		ServiceCode:       ESVGet,
		Properties:        []Property{{Code: 0xE7}},
	}
	s := f.String()
	for _, want := range []string{"0x0001", "0x05FF01", "0x028801", "0x62", "0xE7"} {
		if !bytes.Contains([]byte(s), []byte(want)) {
			t.Errorf("String() = %q, should contain %q", s, want)
		}
	}
}
