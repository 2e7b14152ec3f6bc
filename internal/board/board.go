package board

import (
	"errors"
	"fmt"
	"io"
	"strings"
	"sync"
	"time"

	"github.com/danmuck/rsensor/internal/protocol"
	"github.com/danmuck/rsensor/internal/robot"
	"github.com/rs/zerolog/log"
	"go.bug.st/serial"
)

var (
	ErrDeviceRequired = errors.New("board: serial device required")
	ErrClosed         = errors.New("board: closed")
)

var (
	_ robot.Motors       = (*Board)(nil)
	_ robot.SensorSource = (*Board)(nil)
)

type Config struct {
	Enabled     bool
	Device      string
	BaudRate    int
	ReadTimeout time.Duration
}

func DefaultConfig() Config {
	return Config{
		BaudRate:    38400,
		ReadTimeout: 100 * time.Millisecond,
	}
}

// Board drives a Scratch sensor board: each poll writes the motor command byte
// and reads back whatever channel reports the board has queued.
type Board struct {
	mu      sync.Mutex
	port    io.ReadWriteCloser
	command byte
	buf     []byte
	pending []byte
}

// Open opens the serial device in 8N1 mode.
func Open(cfg Config) (*Board, error) {
	device := strings.TrimSpace(cfg.Device)
	if device == "" {
		return nil, ErrDeviceRequired
	}
	if cfg.BaudRate <= 0 {
		cfg.BaudRate = DefaultConfig().BaudRate
	}
	if cfg.ReadTimeout <= 0 {
		cfg.ReadTimeout = DefaultConfig().ReadTimeout
	}
	port, err := serial.Open(device, &serial.Mode{
		BaudRate: cfg.BaudRate,
		DataBits: 8,
		Parity:   serial.NoParity,
		StopBits: serial.OneStopBit,
	})
	if err != nil {
		return nil, fmt.Errorf("board: open %s: %w", device, err)
	}
	if err := port.SetReadTimeout(cfg.ReadTimeout); err != nil {
		_ = port.Close()
		return nil, fmt.Errorf("board: set read timeout: %w", err)
	}
	log.Info().Str("device", device).Int("baud", cfg.BaudRate).Msg("board.Open")
	return NewWithPort(port), nil
}

// NewWithPort wraps an already open port. Reads must time out rather than
// block forever.
func NewWithPort(port io.ReadWriteCloser) *Board {
	return &Board{port: port, buf: make([]byte, 256)}
}

// Command returns the motor byte sent on the next poll.
func (b *Board) Command() byte {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.command
}

// PowerMotorA sets the high nibble: bit 7 is direction, bits 4..6 magnitude.
func (b *Board) PowerMotorA(power int) {
	b.mu.Lock()
	b.command = motorA(b.command, power)
	b.mu.Unlock()
}

// PowerMotorB sets the low nibble: bit 3 is direction, bits 0..2 magnitude.
func (b *Board) PowerMotorB(power int) {
	b.mu.Lock()
	b.command = motorB(b.command, power)
	b.mu.Unlock()
}

// Drive sets both motors and pushes the command byte immediately.
func (b *Board) Drive(left, right int) error {
	b.mu.Lock()
	defer b.mu.Unlock()
	if b.port == nil {
		return ErrClosed
	}
	b.command = motorB(motorA(b.command, left), right)
	_, err := b.port.Write([]byte{b.command})
	return err
}

// Poll sends the current command and decodes the reports that came back. An
// empty read yields an empty map.
func (b *Board) Poll() (map[string]protocol.Value, error) {
	b.mu.Lock()
	defer b.mu.Unlock()
	if b.port == nil {
		return nil, ErrClosed
	}
	if _, err := b.port.Write([]byte{b.command}); err != nil {
		return nil, fmt.Errorf("board: write command: %w", err)
	}
	n, err := b.port.Read(b.buf)
	if err != nil && !errors.Is(err, io.EOF) {
		return nil, fmt.Errorf("board: read reports: %w", err)
	}
	data := append(b.pending, b.buf[:n]...)
	// keep an odd trailing byte for the next poll
	if len(data)%2 == 1 {
		b.pending = append(b.pending[:0:0], data[len(data)-1])
		data = data[:len(data)-1]
	} else {
		b.pending = nil
	}
	return DecodeSensors(data), nil
}

func (b *Board) Close() error {
	b.mu.Lock()
	defer b.mu.Unlock()
	if b.port == nil {
		return nil
	}
	err := b.port.Close()
	b.port = nil
	return err
}

func motorA(cmd byte, power int) byte {
	cmd &= 0x0f
	cmd |= byte(ToMotor(power)) << 4
	if power > 0 {
		cmd |= 0x80
	}
	return cmd
}

func motorB(cmd byte, power int) byte {
	cmd &= 0xf0
	cmd |= byte(ToMotor(power))
	if power > 0 {
		cmd |= 0x08
	}
	return cmd
}
