package board

import (
	"math"

	"github.com/danmuck/rsensor/internal/protocol"
)

// ChannelValue splits one two-byte report into its channel (0..15) and
// 10-bit reading.
func ChannelValue(hi, lo byte) (int, int) {
	ch := int(hi&0x78) >> 3
	val := int(hi&0x07)<<7 | int(lo&0x7f)
	return ch, val
}

// ToGeneric scales a raw reading to 0..100.
func ToGeneric(raw int) int {
	return round(float64(raw) * 100 / 1023)
}

// ToLight maps the inverted light sensor curve to 0..100.
func ToLight(raw int) int {
	if raw < 25 {
		return 100 - raw
	}
	return round(float64(1023-raw) * 75 / 998)
}

// ToSound maps the sound sensor to 0..100, linear at the quiet end and
// compressed above it.
func ToSound(raw int) int {
	v := max(0, raw-18)
	if v < 50 {
		return round(float64(v) / 2)
	}
	return 25 + round(math.Min(75, float64(v-50)*75/580))
}

// DecodeSensors converts a run of report pairs into named readings. A trailing
// odd byte is ignored; later reports for the same channel win.
func DecodeSensors(buf []byte) map[string]protocol.Value {
	sensors := make(map[string]protocol.Value)
	for i := 0; i+1 < len(buf); i += 2 {
		ch, val := ChannelValue(buf[i], buf[i+1])
		name, reading, ok := channelReading(ch, val)
		if ok {
			sensors[name] = protocol.IntValue(int64(reading))
		}
	}
	return sensors
}

func channelReading(ch, val int) (string, int, bool) {
	switch ch {
	case 0:
		return "resistanceD", ToGeneric(val), true
	case 1:
		return "resistanceC", ToGeneric(val), true
	case 2:
		return "resistanceB", ToGeneric(val), true
	case 3:
		return "button", ToGeneric(val), true
	case 4:
		return "resistanceA", ToGeneric(val), true
	case 5:
		return "light", ToLight(val), true
	case 6:
		return "sound", ToSound(val), true
	case 7:
		return "slider", ToGeneric(val), true
	case 15:
		return "firmwareId", val, true
	}
	return "", 0, false
}

// ToMotor scales -100..100 power to the board's 0..7 magnitude.
func ToMotor(power int) int {
	p := min(abs(power), 100)
	return round(math.Max(7.0/100*float64(p), 0))
}

func round(f float64) int {
	return int(math.Round(f))
}

func abs(n int) int {
	if n < 0 {
		return -n
	}
	return n
}
