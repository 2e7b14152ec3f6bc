package frame

import (
	"encoding/binary"
	"errors"
	"fmt"
	"io"
)

// HeaderLen is the size of the big-endian u32 length prefix.
const HeaderLen = 4

const DefaultMaxPayloadBytes uint32 = 16 * 1024 * 1024

var (
	ErrFrameTooLarge  = errors.New("frame: payload too large")
	ErrFrameTruncated = errors.New("frame: truncated frame")
)

// Limits constrains frame decode/encode memory use.
type Limits struct {
	MaxPayloadBytes uint32
}

func DefaultLimits() Limits {
	return Limits{MaxPayloadBytes: DefaultMaxPayloadBytes}
}

func (l Limits) max() uint32 {
	if l.MaxPayloadBytes == 0 {
		return DefaultMaxPayloadBytes
	}
	return l.MaxPayloadBytes
}

// ReadFrame blocks until one whole frame is read. A clean close before any
// header byte returns io.EOF; a close inside a frame returns ErrFrameTruncated.
func ReadFrame(r io.Reader, limits Limits) ([]byte, error) {
	var hdr [HeaderLen]byte
	if _, err := io.ReadFull(r, hdr[:]); err != nil {
		if errors.Is(err, io.ErrUnexpectedEOF) {
			return nil, ErrFrameTruncated
		}
		return nil, err
	}
	n := binary.BigEndian.Uint32(hdr[:])
	if n > limits.max() {
		return nil, fmt.Errorf("%w: declared=%d max=%d", ErrFrameTooLarge, n, limits.max())
	}
	payload := make([]byte, n)
	if _, err := io.ReadFull(r, payload); err != nil {
		if errors.Is(err, io.EOF) || errors.Is(err, io.ErrUnexpectedEOF) {
			return nil, ErrFrameTruncated
		}
		return nil, err
	}
	return payload, nil
}

// WriteFrame writes prefix and payload with a single Write call.
func WriteFrame(w io.Writer, payload []byte, limits Limits) error {
	buf, err := AppendFrame(nil, payload, limits)
	if err != nil {
		return err
	}
	if _, err := w.Write(buf); err != nil {
		return err
	}
	return nil
}

// AppendFrame appends the length prefix and payload to dst.
func AppendFrame(dst, payload []byte, limits Limits) ([]byte, error) {
	if uint64(len(payload)) > uint64(limits.max()) {
		return dst, fmt.Errorf("%w: size=%d max=%d", ErrFrameTooLarge, len(payload), limits.max())
	}
	dst = binary.BigEndian.AppendUint32(dst, uint32(len(payload)))
	return append(dst, payload...), nil
}

// Decoder reassembles frames from arbitrarily split stream reads.
type Decoder struct {
	limits Limits
	buf    []byte
}

func NewDecoder(limits Limits) *Decoder {
	return &Decoder{limits: limits}
}

// Feed appends raw stream bytes.
func (d *Decoder) Feed(p []byte) {
	d.buf = append(d.buf, p...)
}

// Next pops one complete payload. ok is false until a whole frame is buffered.
// A declared length above the limit is fatal for the stream.
func (d *Decoder) Next() (payload []byte, ok bool, err error) {
	if len(d.buf) < HeaderLen {
		return nil, false, nil
	}
	n := binary.BigEndian.Uint32(d.buf[:HeaderLen])
	if n > d.limits.max() {
		return nil, false, fmt.Errorf("%w: declared=%d max=%d", ErrFrameTooLarge, n, d.limits.max())
	}
	total := HeaderLen + int(n)
	if len(d.buf) < total {
		return nil, false, nil
	}
	payload = make([]byte, n)
	copy(payload, d.buf[HeaderLen:total])
	rest := copy(d.buf, d.buf[total:])
	d.buf = d.buf[:rest]
	return payload, true, nil
}

// Buffered reports bytes held for an incomplete frame.
func (d *Decoder) Buffered() int {
	return len(d.buf)
}
