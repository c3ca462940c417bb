package device

import (
	"errors"
	"fmt"
	"strings"

	"go.bug.st/serial"
)

// Serial defaults, matching the controller firmware.
const (
	DefaultBaudRate = 9600
	DefaultDataBits = 8
	DefaultParity   = "none"
	DefaultStopBits = "1"
)

// ErrClosed is returned by writes to a closed device.
var ErrClosed = errors.New("device closed")

// SerialConfig describes the serial line.
type SerialConfig struct {
	// Port is the OS device name (e.g. /dev/ttyACM0 or COM3).
	Port string

	// BaudRate in bits per second (default: 9600).
	BaudRate int

	// DataBits per character (default: 8).
	DataBits int

	// Parity is one of none, odd, even, mark, space (default: none).
	Parity string

	// StopBits is one of 1, 1.5, 2 (default: 1).
	StopBits string
}

// Mode converts the configuration to a serial.Mode.
func (c SerialConfig) Mode() (*serial.Mode, error) {
	mode := &serial.Mode{
		BaudRate: c.BaudRate,
		DataBits: c.DataBits,
	}
	if mode.BaudRate == 0 {
		mode.BaudRate = DefaultBaudRate
	}
	if mode.DataBits == 0 {
		mode.DataBits = DefaultDataBits
	}

	parity, err := ParseParity(c.Parity)
	if err != nil {
		return nil, err
	}
	mode.Parity = parity

	stopBits, err := ParseStopBits(c.StopBits)
	if err != nil {
		return nil, err
	}
	mode.StopBits = stopBits

	return mode, nil
}

// ParseParity converts a parity name. Empty means none.
func ParseParity(s string) (serial.Parity, error) {
	switch strings.ToLower(s) {
	case "", "none", "n":
		return serial.NoParity, nil
	case "odd", "o":
		return serial.OddParity, nil
	case "even", "e":
		return serial.EvenParity, nil
	case "mark", "m":
		return serial.MarkParity, nil
	case "space", "s":
		return serial.SpaceParity, nil
	default:
		return serial.NoParity, fmt.Errorf("invalid parity %q", s)
	}
}

// ParseStopBits converts a stop bit count. Empty means one.
func ParseStopBits(s string) (serial.StopBits, error) {
	switch s {
	case "", "1":
		return serial.OneStopBit, nil
	case "1.5":
		return serial.OnePointFiveStopBits, nil
	case "2":
		return serial.TwoStopBits, nil
	default:
		return serial.OneStopBit, fmt.Errorf("invalid stop bits %q", s)
	}
}

// SerialDevice is a Device backed by a serial port.
type SerialDevice struct {
	port serial.Port
	name string
}

// OpenSerial opens and configures the serial port and flushes both
// directions of its buffer.
func OpenSerial(cfg SerialConfig) (*SerialDevice, error) {
	if cfg.Port == "" {
		return nil, fmt.Errorf("serial port is required")
	}
	mode, err := cfg.Mode()
	if err != nil {
		return nil, err
	}

	port, err := serial.Open(cfg.Port, mode)
	if err != nil {
		return nil, fmt.Errorf("open serial port %s: %w", cfg.Port, err)
	}
	if err := port.ResetInputBuffer(); err != nil {
		port.Close()
		return nil, fmt.Errorf("flush input of %s: %w", cfg.Port, err)
	}
	if err := port.ResetOutputBuffer(); err != nil {
		port.Close()
		return nil, fmt.Errorf("flush output of %s: %w", cfg.Port, err)
	}

	return &SerialDevice{port: port, name: cfg.Port}, nil
}

// Write writes p to the port.
func (d *SerialDevice) Write(p []byte) (int, error) {
	return d.port.Write(p)
}

// Name returns the port name.
func (d *SerialDevice) Name() string {
	return d.name
}

// Close waits for pending output and closes the port.
func (d *SerialDevice) Close() error {
	if err := d.port.Drain(); err != nil {
		d.port.Close()
		return fmt.Errorf("drain %s: %w", d.name, err)
	}
	return d.port.Close()
}

// Ports lists the serial ports present on the system.
func Ports() ([]string, error) {
	return serial.GetPortsList()
}

// Compile-time interface satisfaction checks.
var (
	_ Device = (*SerialDevice)(nil)
	_ Device = (*WriterDevice)(nil)
)
