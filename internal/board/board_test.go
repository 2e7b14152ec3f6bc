package board

import (
	"bytes"
	"errors"
	"testing"

	"github.com/danmuck/rsensor/internal/protocol"
	"github.com/danmuck/rsensor/internal/testutil/testlog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// fakePort replays queued reads and records writes.
type fakePort struct {
	written bytes.Buffer
	reads   [][]byte
	closed  bool
}

func (p *fakePort) Read(b []byte) (int, error) {
	if len(p.reads) == 0 {
		return 0, nil
	}
	n := copy(b, p.reads[0])
	p.reads = p.reads[1:]
	return n, nil
}

func (p *fakePort) Write(b []byte) (int, error) { return p.written.Write(b) }
func (p *fakePort) Close() error                { p.closed = true; return nil }

func TestChannelValue(t *testing.T) {
	testlog.Start(t)

	cases := []struct {
		hi, lo  byte
		ch, val int
	}{
		{0, 127, 0, 127},
		{10, 64, 1, 320},
		{40, 50, 5, 50},
		{127, 127, 15, 1023},
	}
	for _, tc := range cases {
		ch, val := ChannelValue(tc.hi, tc.lo)
		assert.Equal(t, tc.ch, ch, "hi=%d lo=%d", tc.hi, tc.lo)
		assert.Equal(t, tc.val, val, "hi=%d lo=%d", tc.hi, tc.lo)
	}
}

func TestScaling(t *testing.T) {
	testlog.Start(t)

	for raw, want := range map[int]int{0: 0, 1023: 100, 500: 49} {
		assert.Equal(t, want, ToGeneric(raw), "generic raw=%d", raw)
	}
	for raw, want := range map[int]int{0: 100, 20: 80, 100: 69, 660: 27, 800: 17, 1023: 0} {
		assert.Equal(t, want, ToLight(raw), "light raw=%d", raw)
	}
	for raw, want := range map[int]int{0: 0, 18: 0, 20: 1, 60: 21, 80: 27, 500: 81, 780: 100, 1023: 100} {
		assert.Equal(t, want, ToSound(raw), "sound raw=%d", raw)
	}
	for power, want := range map[int]int{0: 0, 40: 3, 50: 4, 100: 7, -100: 7, 250: 7} {
		assert.Equal(t, want, ToMotor(power), "motor power=%d", power)
	}
}

func TestDecodeSensors(t *testing.T) {
	testlog.Start(t)

	got := DecodeSensors([]byte{0, 0})
	assert.Len(t, got, 1)
	assert.True(t, got["resistanceD"].Equal(protocol.IntValue(0)))

	got = DecodeSensors([]byte{10, 64})
	assert.True(t, got["resistanceC"].Equal(protocol.IntValue(31)))

	got = DecodeSensors([]byte{40, 50})
	assert.True(t, got["light"].Equal(protocol.IntValue(73)))

	got = DecodeSensors([]byte{0, 0, 10, 64, 99})
	assert.Len(t, got, 2)
}

func TestMotorCommandByte(t *testing.T) {
	testlog.Start(t)

	b := NewWithPort(&fakePort{})
	b.PowerMotorA(100)
	assert.Equal(t, byte(0xf0), b.Command())
	b.PowerMotorB(-50)
	assert.Equal(t, byte(0xf4), b.Command())
	b.PowerMotorA(0)
	assert.Equal(t, byte(0x04), b.Command())
	b.PowerMotorB(40)
	assert.Equal(t, byte(0x0b), b.Command())
}

func TestDriveWritesCommand(t *testing.T) {
	testlog.Start(t)

	port := &fakePort{}
	b := NewWithPort(port)
	require.NoError(t, b.Drive(100, -100))
	assert.Equal(t, []byte{0xf7}, port.written.Bytes())
}

func TestPollCarriesOddByte(t *testing.T) {
	testlog.Start(t)

	port := &fakePort{reads: [][]byte{{40, 50, 10}, {64}}}
	b := NewWithPort(port)

	got, err := b.Poll()
	require.NoError(t, err)
	assert.Len(t, got, 1)
	assert.True(t, got["light"].Equal(protocol.IntValue(73)))

	got, err = b.Poll()
	require.NoError(t, err)
	assert.True(t, got["resistanceC"].Equal(protocol.IntValue(31)))

	got, err = b.Poll()
	require.NoError(t, err)
	assert.Empty(t, got)
	assert.Equal(t, 3, port.written.Len())
}

func TestClosedBoard(t *testing.T) {
	testlog.Start(t)

	port := &fakePort{}
	b := NewWithPort(port)
	require.NoError(t, b.Close())
	require.NoError(t, b.Close())
	assert.True(t, port.closed)

	_, err := b.Poll()
	if !errors.Is(err, ErrClosed) {
		t.Fatalf("expected ErrClosed, got %v", err)
	}
	if err := b.Drive(1, 1); !errors.Is(err, ErrClosed) {
		t.Fatalf("expected ErrClosed, got %v", err)
	}
}

func TestOpenRequiresDevice(t *testing.T) {
	testlog.Start(t)

	_, err := Open(Config{})
	if !errors.Is(err, ErrDeviceRequired) {
		t.Fatalf("expected ErrDeviceRequired, got %v", err)
	}
}
