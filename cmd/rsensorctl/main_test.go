package main

import (
	"bytes"
	"context"
	"errors"
	"io"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/danmuck/rsensor/internal/protocol"
	"github.com/danmuck/rsensor/internal/server"
	"github.com/danmuck/rsensor/internal/testutil/testlog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func runRoot(t *testing.T, args ...string) (string, error) {
	t.Helper()
	root := newRootCmd()
	var out bytes.Buffer
	root.SetOut(&out)
	root.SetErr(&out)
	root.SetArgs(args)
	err := root.Execute()
	return out.String(), err
}

func TestConfigInitAndValidate(t *testing.T) {
	testlog.Start(t)

	path := filepath.Join(t.TempDir(), "rsensor.toml")
	out, err := runRoot(t, "config", "init", "-o", path)
	require.NoError(t, err)
	assert.Contains(t, out, "wrote "+path)

	_, err = runRoot(t, "config", "init", "-o", path)
	require.Error(t, err)

	out, err = runRoot(t, "config", "validate", path)
	require.NoError(t, err)
	assert.Contains(t, out, "validated")

	require.NoError(t, os.WriteFile(path, []byte("[server]\nmax_frame_bytes = 0\n"), 0o600))
	_, err = runRoot(t, "--config", path, "config", "validate")
	require.Error(t, err)
}

func TestBuildPayloads(t *testing.T) {
	testlog.Start(t)

	img := filepath.Join(t.TempDir(), "snap.JPEG")
	require.NoError(t, os.WriteFile(img, []byte("img"), 0o600))

	payloads, err := buildPayloads(sendOptions{
		broadcast: "forward",
		sensors:   []string{"power=60", "name=bot", "ratio=0.5"},
		image:     img,
	}, []string{`peer-name "cli"`})
	require.NoError(t, err)
	require.Len(t, payloads, 4)
	assert.Equal(t, `peer-name "cli"`, string(payloads[0]))
	assert.Equal(t, `sensor-update "name" "bot" "power" 60 "ratio" 0.5`, string(payloads[1]))
	assert.Equal(t, `broadcast "forward"`, string(payloads[2]))
	assert.Equal(t, "jpg aW1n", string(payloads[3]))
}

func TestBuildPayloadsRejectsBadInput(t *testing.T) {
	testlog.Start(t)

	_, err := buildPayloads(sendOptions{}, nil)
	if !errors.Is(err, errNothingToSend) {
		t.Fatalf("expected errNothingToSend, got %v", err)
	}
	_, err = buildPayloads(sendOptions{}, []string{`broadcast "open`})
	if !errors.Is(err, protocol.ErrMalformedMessage) {
		t.Fatalf("expected ErrMalformedMessage, got %v", err)
	}
	_, err = buildPayloads(sendOptions{sensors: []string{"novalue"}}, nil)
	require.Error(t, err)
	_, err = buildPayloads(sendOptions{image: "frame.bmp"}, nil)
	require.Error(t, err)
}

type scriptedReceiver struct {
	msgs []protocol.Message
}

func (r *scriptedReceiver) Recv() (protocol.Message, error) {
	if len(r.msgs) == 0 {
		return protocol.Message{}, io.EOF
	}
	msg := r.msgs[0]
	r.msgs = r.msgs[1:]
	return msg, nil
}

func TestWatchLoop(t *testing.T) {
	testlog.Start(t)

	msgs := []protocol.Message{
		protocol.SensorUpdate(map[string]protocol.Value{"light": protocol.IntValue(27)}),
		protocol.NewMessage(protocol.CommandBroadcast, protocol.StringValue("beep")),
	}

	var out bytes.Buffer
	require.NoError(t, watchLoop(context.Background(), &scriptedReceiver{msgs: msgs}, &out, 0, false))
	assert.Equal(t, "sensor-update \"light\" 27\nbroadcast \"beep\"\n", out.String())

	out.Reset()
	require.NoError(t, watchLoop(context.Background(), &scriptedReceiver{msgs: msgs}, &out, 1, true))
	assert.JSONEq(t, `{"command":"sensor-update","args":["light",27]}`, out.String())
}

func TestSendReachesServer(t *testing.T) {
	testlog.Start(t)

	srv := server.NewServerWithConfig(server.ServiceConfig{ListenAddr: "127.0.0.1:0"})
	broadcasts := make(chan string, 1)
	srv.SetController(server.ControllerFuncs{OnBroadcast: func(name string) { broadcasts <- name }})
	require.NoError(t, srv.Start())
	defer srv.Stop()

	out, err := runRoot(t, "send", "--addr", srv.Addr().String(), "--broadcast", "left")
	require.NoError(t, err)
	assert.Contains(t, out, "sent 1 message(s)")

	select {
	case name := <-broadcasts:
		assert.Equal(t, "left", name)
	case <-time.After(2 * time.Second):
		t.Fatalf("server did not receive broadcast")
	}
}
