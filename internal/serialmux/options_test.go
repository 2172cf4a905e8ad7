package serialmux

import (
	"testing"

	"go.bug.st/serial"
)

// TestPortOptions_Normalize tests defaulting and validation of port options
func TestPortOptions_Normalize(t *testing.T) {
	tests := []struct {
		name     string
		input    PortOptions
		expected PortOptions
		wantErr  bool
	}{
		{
			name:     "empty options get console defaults",
			input:    PortOptions{},
			expected: PortOptions{BaudRate: 57600, DataBits: 8, StopBits: 1, Parity: "N"},
		},
		{
			name:     "explicit values preserved",
			input:    PortOptions{BaudRate: 115200, DataBits: 7, StopBits: 2, Parity: "E"},
			expected: PortOptions{BaudRate: 115200, DataBits: 7, StopBits: 2, Parity: "E"},
		},
		{
			name:     "negative baud falls back to default",
			input:    PortOptions{BaudRate: -1},
			expected: PortOptions{BaudRate: 57600, DataBits: 8, StopBits: 1, Parity: "N"},
		},
		{
			name:     "parity word forms normalized",
			input:    PortOptions{Parity: "even"},
			expected: PortOptions{BaudRate: 57600, DataBits: 8, StopBits: 1, Parity: "E"},
		},
		{
			name:     "parity odd with whitespace",
			input:    PortOptions{Parity: " odd "},
			expected: PortOptions{BaudRate: 57600, DataBits: 8, StopBits: 1, Parity: "O"},
		},
		{
			name:    "invalid data bits",
			input:   PortOptions{DataBits: 9},
			wantErr: true,
		},
		{
			name:    "invalid stop bits",
			input:   PortOptions{StopBits: 3},
			wantErr: true,
		},
		{
			name:    "unsupported parity",
			input:   PortOptions{Parity: "M"},
			wantErr: true,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := tt.input.Normalize()
			if tt.wantErr {
				if err == nil {
					t.Errorf("Expected error, got %+v", got)
				}
				return
			}
			if err != nil {
				t.Fatalf("Normalize returned error: %v", err)
			}
			if got != tt.expected {
				t.Errorf("Normalize() = %+v, expected %+v", got, tt.expected)
			}
		})
	}
}

// TestPortOptions_Equal tests configuration comparison
func TestPortOptions_Equal(t *testing.T) {
	base := PortOptions{BaudRate: 57600, DataBits: 8, StopBits: 1, Parity: "N"}

	if !base.Equal(PortOptions{}) {
		t.Error("Expected defaults to equal explicit 57600 8N1")
	}
	if !base.Equal(PortOptions{BaudRate: 57600, Parity: "none"}) {
		t.Error("Expected parity word form to compare equal")
	}
	if base.Equal(PortOptions{BaudRate: 19200}) {
		t.Error("Expected different baud rates to compare unequal")
	}
	if base.Equal(PortOptions{DataBits: 9}) {
		t.Error("Expected invalid options to compare unequal")
	}
}

// TestPortOptions_SerialMode tests conversion to serial.Mode
func TestPortOptions_SerialMode(t *testing.T) {
	mode, err := PortOptions{}.SerialMode()
	if err != nil {
		t.Fatalf("SerialMode returned error: %v", err)
	}
	if mode.BaudRate != 57600 {
		t.Errorf("Expected baud rate 57600, got %d", mode.BaudRate)
	}
	if mode.DataBits != 8 {
		t.Errorf("Expected 8 data bits, got %d", mode.DataBits)
	}
	if mode.StopBits != serial.OneStopBit {
		t.Errorf("Expected one stop bit, got %v", mode.StopBits)
	}
	if mode.Parity != serial.NoParity {
		t.Errorf("Expected no parity, got %v", mode.Parity)
	}

	mode, err = PortOptions{Parity: "O", StopBits: 2}.SerialMode()
	if err != nil {
		t.Fatalf("SerialMode returned error: %v", err)
	}
	if mode.Parity != serial.OddParity {
		t.Errorf("Expected odd parity, got %v", mode.Parity)
	}
	if mode.StopBits != serial.TwoStopBits {
		t.Errorf("Expected two stop bits, got %v", mode.StopBits)
	}

	if _, err := (PortOptions{DataBits: 4}).SerialMode(); err == nil {
		t.Error("Expected error for invalid options")
	}
}
