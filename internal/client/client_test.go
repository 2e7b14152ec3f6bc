package client

import (
	"context"
	"errors"
	"math/rand"
	"net"
	"testing"
	"time"

	"github.com/danmuck/rsensor/internal/protocol"
	"github.com/danmuck/rsensor/internal/server"
	"github.com/danmuck/rsensor/internal/testutil/testlog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestBackoffGrowsAndCaps(t *testing.T) {
	testlog.Start(t)

	cfg := BackoffConfig{InitialDelay: 100 * time.Millisecond, Multiplier: 2, MaxDelay: 500 * time.Millisecond}
	b := NewBackoff(cfg, nil)
	var got []time.Duration
	for i := 0; i < 5; i++ {
		got = append(got, b.Next())
	}
	assert.Equal(t, []time.Duration{
		100 * time.Millisecond,
		200 * time.Millisecond,
		400 * time.Millisecond,
		500 * time.Millisecond,
		500 * time.Millisecond,
	}, got)

	b.Reset()
	assert.Equal(t, 100*time.Millisecond, b.Next())

	assert.Zero(t, NewBackoff(BackoffConfig{}, nil).Next())
	capped := NewBackoff(BackoffConfig{InitialDelay: time.Second, MaxDelay: 300 * time.Millisecond}, nil)
	assert.Equal(t, 300*time.Millisecond, capped.Next())
}

func TestBackoffJitterStaysInBand(t *testing.T) {
	testlog.Start(t)

	cfg := BackoffConfig{InitialDelay: 100 * time.Millisecond, Multiplier: 2, MaxDelay: 500 * time.Millisecond, Jitter: true}
	b := NewBackoff(cfg, rand.New(rand.NewSource(1)))
	nominal := []time.Duration{100, 200, 400, 500, 500}
	for i, n := range nominal {
		n *= time.Millisecond
		d := b.Next()
		if d < n/2 || d >= n*3/2 {
			t.Fatalf("call=%d jittered delay %v outside [%v, %v)", i, d, n/2, n*3/2)
		}
	}

	assert.Equal(t, 100*time.Millisecond, NewBackoff(cfg, nil).Next())
}

func TestDialRequiresAddress(t *testing.T) {
	testlog.Start(t)

	_, err := Dial(context.Background(), Config{})
	if !errors.Is(err, ErrAddressRequired) {
		t.Fatalf("expected ErrAddressRequired, got %v", err)
	}
}

func TestDialGivesUpAfterMaxAttempts(t *testing.T) {
	testlog.Start(t)

	ln, err := net.Listen("tcp", "127.0.0.1:0")
	require.NoError(t, err)
	addr := ln.Addr().String()
	require.NoError(t, ln.Close())

	cfg := DefaultConfig()
	cfg.Address = addr
	cfg.MaxConnectAttempts = 2
	cfg.Backoff = BackoffConfig{InitialDelay: 5 * time.Millisecond, Multiplier: 1}
	_, err = Dial(context.Background(), cfg)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "after 2 attempts")
}

func TestDialStopsOnContextCancel(t *testing.T) {
	testlog.Start(t)

	ln, err := net.Listen("tcp", "127.0.0.1:0")
	require.NoError(t, err)
	addr := ln.Addr().String()
	require.NoError(t, ln.Close())

	ctx, cancel := context.WithTimeout(context.Background(), 100*time.Millisecond)
	defer cancel()
	cfg := DefaultConfig()
	cfg.Address = addr
	cfg.Backoff = BackoffConfig{InitialDelay: 20 * time.Millisecond, Multiplier: 1}
	_, err = Dial(ctx, cfg)
	if !errors.Is(err, context.DeadlineExceeded) {
		t.Fatalf("expected deadline exceeded, got %v", err)
	}
}

func TestClientExchangesWithServer(t *testing.T) {
	testlog.Start(t)

	srv := server.NewServerWithConfig(server.ServiceConfig{ListenAddr: "127.0.0.1:0"})
	broadcasts := make(chan string, 1)
	srv.SetController(server.ControllerFuncs{OnBroadcast: func(name string) { broadcasts <- name }})
	require.NoError(t, srv.Start())
	defer srv.Stop()
	require.NoError(t, srv.SensorUpdate(map[string]protocol.Value{"light": protocol.IntValue(40)}))

	cfg := DefaultConfig()
	cfg.Address = srv.Addr().String()
	cfg.ReadTimeout = 2 * time.Second
	c, err := Dial(context.Background(), cfg)
	require.NoError(t, err)
	defer c.Close()

	snapshot, err := c.Recv()
	require.NoError(t, err)
	assert.Equal(t, `sensor-update "light" 40`, protocol.Encode(snapshot))

	require.NoError(t, c.Broadcast("left"))
	select {
	case name := <-broadcasts:
		assert.Equal(t, "left", name)
	case <-time.After(2 * time.Second):
		t.Fatalf("server did not dispatch broadcast")
	}

	require.NoError(t, srv.Camera("png", []byte("img")))
	raw, err := c.RecvRaw()
	require.NoError(t, err)
	assert.Equal(t, "png aW1n", string(raw))
}

func TestSendAfterCloseFails(t *testing.T) {
	testlog.Start(t)

	a, b := net.Pipe()
	defer b.Close()
	c := New(a, Config{})
	require.NoError(t, c.Close())
	require.NoError(t, c.Close())
	err := c.Broadcast("stop")
	if !errors.Is(err, ErrClosed) {
		t.Fatalf("expected ErrClosed, got %v", err)
	}
}
