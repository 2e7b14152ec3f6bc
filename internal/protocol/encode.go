package protocol

import (
	"sort"
	"strconv"
	"strings"
)

// Encode renders a message in the text grammar. Strings are always quoted so
// Decode(Encode(m)) reproduces m for finite values.
func Encode(m Message) string {
	var b strings.Builder
	b.WriteString(m.Command)
	for _, v := range m.Args {
		b.WriteByte(' ')
		writeValue(&b, v)
	}
	return b.String()
}

// Quote wraps s in double quotes, doubling embedded quotes.
func Quote(s string) string {
	return `"` + strings.ReplaceAll(s, `"`, `""`) + `"`
}

// SensorUpdate builds a sensor-update message with pairs in key order.
func SensorUpdate(values map[string]Value) Message {
	keys := make([]string, 0, len(values))
	for k := range values {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	args := make([]Value, 0, len(keys)*2)
	for _, k := range keys {
		args = append(args, StringValue(k), values[k])
	}
	return Message{Command: CommandSensorUpdate, Args: args}
}

func EncodeSensorUpdate(values map[string]Value) string {
	return Encode(SensorUpdate(values))
}

func writeValue(b *strings.Builder, v Value) {
	switch v.Kind() {
	case KindInt:
		b.WriteString(strconv.FormatInt(v.i, 10))
	case KindFloat:
		b.WriteString(formatFloat(v.f))
	default:
		b.WriteString(Quote(v.s))
	}
}
