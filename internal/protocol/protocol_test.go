package protocol

import (
	"encoding/json"
	"errors"
	"math"
	"testing"

	"github.com/danmuck/rsensor/internal/testutil/testlog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestDecodeScenarios(t *testing.T) {
	testlog.Start(t)

	cases := []struct {
		in   string
		want Message
	}{
		{"peer-name anonymous", NewMessage("peer-name", StringValue("anonymous"))},
		{
			`sensor-update "note" 60 "seconds" 0.1`,
			NewMessage("sensor-update", StringValue("note"), IntValue(60), StringValue("seconds"), FloatValue(0.1)),
		},
		{`broadcast "play note"`, NewMessage("broadcast", StringValue("play note"))},
		{"cmd 123     456   ", NewMessage("cmd", IntValue(123), IntValue(456))},
		{"  \tcmd\t1", NewMessage("cmd", IntValue(1))},
		{"lonely", NewMessage("lonely")},
		{"", Message{}},
	}
	for _, tc := range cases {
		got, err := Decode(tc.in)
		require.NoError(t, err, "decode %q", tc.in)
		assert.True(t, got.Equal(tc.want), "decode %q: got=%+v want=%+v", tc.in, got, tc.want)
	}
}

func TestDecodeNumericCoercion(t *testing.T) {
	testlog.Start(t)

	cases := []struct {
		tok  string
		want Value
	}{
		{"123", IntValue(123)},
		{"123.1", FloatValue(123.1)},
		{"-5", IntValue(-5)},
		{".5", FloatValue(0.5)},
		{"note", StringValue("note")},
		{"x123", StringValue("x123")},
		{"12abc", StringValue("12abc")},
		{"-", StringValue("-")},
		{"99999999999999999999", FloatValue(1e20)},
	}
	for _, tc := range cases {
		msg, err := Decode("c " + tc.tok)
		require.NoError(t, err)
		require.Len(t, msg.Args, 1)
		got := msg.Args[0]
		assert.Equal(t, tc.want.Kind(), got.Kind(), "token %q", tc.tok)
		assert.True(t, tc.want.Equal(got), "token %q: got=%v want=%v", tc.tok, got, tc.want)
	}
}

func TestDecodeQuoteRules(t *testing.T) {
	testlog.Start(t)

	msg, err := Decode(`say "embedded ""quotation marks"" are doubled"`)
	require.NoError(t, err)
	require.Len(t, msg.Args, 1)
	s, ok := msg.Args[0].AsString()
	require.True(t, ok)
	assert.Equal(t, `embedded "quotation marks" are doubled`, s)

	msg, err = Decode(`say "abc"def`)
	require.NoError(t, err)
	require.Len(t, msg.Args, 2)
	assert.Equal(t, "abc", msg.Args[0].String())
	assert.Equal(t, "def", msg.Args[1].String())

	msg, err = Decode(`say "123"`)
	require.NoError(t, err)
	assert.Equal(t, KindString, msg.Args[0].Kind())
}

func TestDecodeUnterminatedQuote(t *testing.T) {
	testlog.Start(t)

	msg, err := Decode(`broadcast "open ended`)
	require.NoError(t, err)
	require.Len(t, msg.Args, 1)
	assert.Equal(t, "open ended", msg.Args[0].String())

	_, err = DecodeStrict(`broadcast "open ended`)
	if !errors.Is(err, ErrMalformedMessage) {
		t.Fatalf("expected ErrMalformedMessage, got %v", err)
	}

	_, err = DecodeStrict(`broadcast "closed"`)
	require.NoError(t, err)
}

func TestEncodeDecodeRoundTrip(t *testing.T) {
	testlog.Start(t)

	lists := [][]Value{
		{},
		{StringValue("")},
		{StringValue(`a "quoted" word`), IntValue(-42), FloatValue(3.25)},
		{StringValue(`""`), StringValue("tab\tinside"), FloatValue(1), FloatValue(-0.001)},
		{IntValue(math.MaxInt64), IntValue(math.MinInt64), FloatValue(1e21)},
		{StringValue("123"), StringValue("-x"), StringValue("ünïcødé")},
	}
	for _, args := range lists {
		in := NewMessage("sensor-update", args...)
		out, err := Decode(Encode(in))
		require.NoError(t, err)
		assert.True(t, out.Equal(in), "round trip: in=%+v encoded=%q out=%+v", in, Encode(in), out)
	}
}

func TestEncodeFormsNaturalDecimal(t *testing.T) {
	testlog.Start(t)

	got := Encode(NewMessage("sensor-update", StringValue("light"), IntValue(73), StringValue("ratio"), FloatValue(2)))
	assert.Equal(t, `sensor-update "light" 73 "ratio" 2.0`, got)
}

func TestSensorUpdateSortsKeys(t *testing.T) {
	testlog.Start(t)

	values := map[string]Value{"b": IntValue(2), "a": IntValue(1)}
	msg := SensorUpdate(values)
	assert.Equal(t, `sensor-update "a" 1 "b" 2`, Encode(msg))
	assert.Equal(t, Encode(msg), EncodeSensorUpdate(values))
	pairs := msg.Pairs()
	assert.Len(t, pairs, 2)
	assert.True(t, pairs["a"].Equal(IntValue(1)))
}

func TestPairsDropsTrailingKey(t *testing.T) {
	testlog.Start(t)

	msg := NewMessage(CommandSensorUpdate, StringValue("a"), IntValue(1), StringValue("dangling"))
	pairs := msg.Pairs()
	assert.Len(t, pairs, 1)
	_, ok := pairs["dangling"]
	assert.False(t, ok)
}

func TestValueEqualAcrossNumericKinds(t *testing.T) {
	testlog.Start(t)

	assert.True(t, IntValue(1).Equal(FloatValue(1.0)))
	assert.False(t, IntValue(1).Equal(StringValue("1")))
	assert.False(t, StringValue("a").Equal(StringValue("b")))
}

func TestValueJSON(t *testing.T) {
	testlog.Start(t)

	var in map[string]Value
	require.NoError(t, json.Unmarshal([]byte(`{"light": 73, "ratio": 0.5, "name": "bot", "big": 1e3}`), &in))
	assert.Equal(t, KindInt, in["light"].Kind())
	assert.Equal(t, KindFloat, in["ratio"].Kind())
	assert.Equal(t, KindString, in["name"].Kind())
	assert.Equal(t, KindFloat, in["big"].Kind())

	var bad Value
	err := json.Unmarshal([]byte(`true`), &bad)
	if !errors.Is(err, ErrUnsupportedValue) {
		t.Fatalf("expected ErrUnsupportedValue, got %v", err)
	}

	raw, err := json.Marshal(map[string]Value{"f": FloatValue(2)})
	require.NoError(t, err)
	assert.JSONEq(t, `{"f": 2.0}`, string(raw))
}
