package device

import (
	"bytes"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.bug.st/serial"
)

type closingBuffer struct {
	bytes.Buffer
	closed bool
}

func (b *closingBuffer) Close() error {
	b.closed = true
	return nil
}

func TestWriterDevice(t *testing.T) {
	buf := &closingBuffer{}
	dev := NewWriterDevice("test", buf)

	n, err := dev.Write([]byte("green-on-c970\n"))
	require.NoError(t, err)
	assert.Equal(t, 14, n)
	assert.Equal(t, "green-on-c970\n", buf.String())
	assert.Equal(t, "test", dev.Name())

	require.NoError(t, dev.Close())
	assert.True(t, buf.closed)
	require.NoError(t, dev.Close())

	_, err = dev.Write([]byte("x"))
	assert.True(t, errors.Is(err, ErrClosed))
}

func TestSerialConfigModeDefaults(t *testing.T) {
	mode, err := SerialConfig{Port: "/dev/null"}.Mode()
	require.NoError(t, err)
	assert.Equal(t, DefaultBaudRate, mode.BaudRate)
	assert.Equal(t, DefaultDataBits, mode.DataBits)
	assert.Equal(t, serial.NoParity, mode.Parity)
	assert.Equal(t, serial.OneStopBit, mode.StopBits)
}

func TestSerialConfigMode(t *testing.T) {
	mode, err := SerialConfig{BaudRate: 115200, DataBits: 7, Parity: "Even", StopBits: "2"}.Mode()
	require.NoError(t, err)
	assert.Equal(t, 115200, mode.BaudRate)
	assert.Equal(t, 7, mode.DataBits)
	assert.Equal(t, serial.EvenParity, mode.Parity)
	assert.Equal(t, serial.TwoStopBits, mode.StopBits)
}

func TestSerialConfigInvalid(t *testing.T) {
	_, err := SerialConfig{Parity: "sometimes"}.Mode()
	assert.Error(t, err)

	_, err = SerialConfig{StopBits: "3"}.Mode()
	assert.Error(t, err)
}

func TestOpenSerialRequiresPort(t *testing.T) {
	_, err := OpenSerial(SerialConfig{})
	assert.Error(t, err)
}
