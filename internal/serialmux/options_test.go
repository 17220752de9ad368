package serialmux

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.bug.st/serial"
)

func TestPortOptions_Normalize(t *testing.T) {
	opts, err := PortOptions{}.Normalize()
	require.NoError(t, err)
	assert.Equal(t, PortOptions{BaudRate: DefaultBaudRate, DataBits: 8, StopBits: 1, Parity: "N"}, opts)

	opts, err = PortOptions{BaudRate: 9600, DataBits: 7, StopBits: 2, Parity: " even "}.Normalize()
	require.NoError(t, err)
	assert.Equal(t, PortOptions{BaudRate: 9600, DataBits: 7, StopBits: 2, Parity: "E"}, opts)

	for _, bad := range []PortOptions{
		{DataBits: 9},
		{DataBits: 4},
		{StopBits: 3},
		{Parity: "mark"},
	} {
		_, err := bad.Normalize()
		assert.Error(t, err, "%+v", bad)
	}
}

func TestPortOptions_SerialMode(t *testing.T) {
	mode, err := PortOptions{StopBits: 1, Parity: "odd"}.SerialMode()
	require.NoError(t, err)
	assert.Equal(t, DefaultBaudRate, mode.BaudRate)
	assert.Equal(t, serial.OneStopBit, mode.StopBits)
	assert.Equal(t, serial.OddParity, mode.Parity)

	mode, err = PortOptions{StopBits: 2}.SerialMode()
	require.NoError(t, err)
	assert.Equal(t, serial.TwoStopBits, mode.StopBits)
	assert.Equal(t, serial.NoParity, mode.Parity)

	_, err = PortOptions{DataBits: 12}.SerialMode()
	assert.Error(t, err)
}
