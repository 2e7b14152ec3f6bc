package sensor

import (
	"sync"
	"testing"

	"github.com/danmuck/rsensor/internal/protocol"
	"github.com/danmuck/rsensor/internal/testutil/testlog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func readings(kv ...any) map[string]protocol.Value {
	out := make(map[string]protocol.Value)
	for i := 0; i+1 < len(kv); i += 2 {
		k := kv[i].(string)
		switch v := kv[i+1].(type) {
		case int:
			out[k] = protocol.IntValue(int64(v))
		case float64:
			out[k] = protocol.FloatValue(v)
		case string:
			out[k] = protocol.StringValue(v)
		}
	}
	return out
}

func TestDiffUpdateFirstCallSendsEverything(t *testing.T) {
	testlog.Start(t)

	s := NewStore()
	msg, ok := s.DiffUpdate(readings("light", 73, "sound", 12), false)
	require.True(t, ok)
	assert.Equal(t, protocol.CommandSensorUpdate, msg.Command)
	assert.Equal(t, `sensor-update "light" 73 "sound" 12`, protocol.Encode(msg))
}

func TestDiffUpdateUnchangedYieldsNoMessage(t *testing.T) {
	testlog.Start(t)

	s := NewStore()
	in := readings("light", 73, "sound", 12)
	_, ok := s.DiffUpdate(in, false)
	require.True(t, ok)

	_, ok = s.DiffUpdate(in, false)
	assert.False(t, ok)
}

func TestDiffUpdateOnlyChangedKey(t *testing.T) {
	testlog.Start(t)

	s := NewStore()
	s.DiffUpdate(readings("light", 73, "sound", 12, "slider", 0), false)

	msg, ok := s.DiffUpdate(readings("light", 73, "sound", 40, "slider", 0), false)
	require.True(t, ok)
	require.Len(t, msg.Args, 2)
	assert.Equal(t, "sound", msg.Args[0].String())
	assert.True(t, msg.Args[1].Equal(protocol.IntValue(40)))
}

func TestDiffUpdateForceAllThenQuiet(t *testing.T) {
	testlog.Start(t)

	s := NewStore()
	table := readings("a", 1, "b", "on")
	s.DiffUpdate(table, false)

	msg, ok := s.DiffUpdate(table, true)
	require.True(t, ok)
	assert.Len(t, msg.Args, 4)

	_, ok = s.DiffUpdate(table, false)
	assert.False(t, ok)
}

func TestDiffUpdateOverwritesEquivalentNumber(t *testing.T) {
	testlog.Start(t)

	s := NewStore()
	s.DiffUpdate(readings("a", 1), false)
	_, ok := s.DiffUpdate(readings("a", 1.0), false)
	assert.False(t, ok)

	v, found := s.Get("a")
	require.True(t, found)
	assert.Equal(t, protocol.KindFloat, v.Kind())
}

func TestFullSnapshot(t *testing.T) {
	testlog.Start(t)

	s := NewStore()
	_, ok := s.FullSnapshot()
	assert.False(t, ok, "empty table has no snapshot")

	s.DiffUpdate(readings("b", 2), false)
	s.DiffUpdate(readings("a", 1), false)
	msg, ok := s.FullSnapshot()
	require.True(t, ok)
	assert.Equal(t, `sensor-update "a" 1 "b" 2`, protocol.Encode(msg))
	assert.Equal(t, 2, s.Len())
}

func TestKeysAreNeverDeleted(t *testing.T) {
	testlog.Start(t)

	s := NewStore()
	s.DiffUpdate(readings("a", 1), false)
	s.DiffUpdate(readings("b", 2), false)
	snap := s.Snapshot()
	assert.Len(t, snap, 2)

	s.Reset()
	assert.Equal(t, 0, s.Len())
}

func TestDiffUpdateConcurrentCallers(t *testing.T) {
	testlog.Start(t)

	s := NewStore()
	var wg sync.WaitGroup
	for i := 0; i < 16; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			s.DiffUpdate(readings("shared", i), false)
			_ = s.Snapshot()
		}(i)
	}
	wg.Wait()
	assert.Equal(t, 1, s.Len())
}
