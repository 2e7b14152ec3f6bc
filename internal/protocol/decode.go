package protocol

import (
	"errors"
	"fmt"
	"strconv"
	"strings"
)

// Decode parses one payload. End of input inside a quoted argument closes the
// argument; use DecodeStrict to reject it instead.
func Decode(text string) (Message, error) {
	return decode(text, false)
}

// DecodeStrict is Decode, except an unterminated quote fails with ErrMalformedMessage.
func DecodeStrict(text string) (Message, error) {
	return decode(text, true)
}

func decode(text string, strict bool) (Message, error) {
	sc := scanner{src: text}
	sc.skipSpace()
	msg := Message{Command: sc.bare()}
	for {
		sc.skipSpace()
		if sc.eof() {
			return msg, nil
		}
		if sc.src[sc.pos] == '"' {
			start := sc.pos
			sc.pos++
			tok, closed := sc.quoted()
			if !closed && strict {
				return Message{}, fmt.Errorf("%w: unterminated quote at offset %d", ErrMalformedMessage, start)
			}
			msg.Args = append(msg.Args, StringValue(tok))
			continue
		}
		msg.Args = append(msg.Args, classify(sc.bare()))
	}
}

type scanner struct {
	src string
	pos int
}

func (s *scanner) eof() bool {
	return s.pos >= len(s.src)
}

func (s *scanner) skipSpace() {
	for s.pos < len(s.src) && isSpace(s.src[s.pos]) {
		s.pos++
	}
}

func (s *scanner) bare() string {
	start := s.pos
	for s.pos < len(s.src) && !isSpace(s.src[s.pos]) {
		s.pos++
	}
	return s.src[start:s.pos]
}

// quoted consumes up to and including the closing quote. "" is a literal quote.
func (s *scanner) quoted() (string, bool) {
	var b strings.Builder
	for s.pos < len(s.src) {
		c := s.src[s.pos]
		s.pos++
		if c != '"' {
			b.WriteByte(c)
			continue
		}
		if s.pos < len(s.src) && s.src[s.pos] == '"' {
			b.WriteByte('"')
			s.pos++
			continue
		}
		return b.String(), true
	}
	return b.String(), false
}

func isSpace(c byte) bool {
	return c == ' ' || c == '\t'
}

// classify sniffs the first byte only. Tokens that look numeric but fail to
// parse stay strings; integers beyond int64 fall back to Float.
func classify(tok string) Value {
	if tok == "" || !strings.ContainsRune("0123456789-.", rune(tok[0])) {
		return StringValue(tok)
	}
	if strings.Contains(tok, ".") {
		f, err := strconv.ParseFloat(tok, 64)
		if err != nil {
			return StringValue(tok)
		}
		return FloatValue(f)
	}
	i, err := strconv.ParseInt(tok, 10, 64)
	if err == nil {
		return IntValue(i)
	}
	if errors.Is(err, strconv.ErrRange) {
		if f, ferr := strconv.ParseFloat(tok, 64); ferr == nil {
			return FloatValue(f)
		}
	}
	return StringValue(tok)
}

// ParseValue applies the bare-token coercion rules to a single token.
func ParseValue(tok string) Value {
	return classify(tok)
}
