package main

import (
	"context"
	"encoding/base64"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/danmuck/rsensor/internal/client"
	"github.com/danmuck/rsensor/internal/protocol"
	"github.com/spf13/cobra"
)

var errNothingToSend = errors.New("nothing to send: pass a message, --broadcast, --sensor, or --image")

type sendOptions struct {
	addr      string
	broadcast string
	sensors   []string
	image     string
	format    string
	timeout   time.Duration
}

func newSendCmd() *cobra.Command {
	opts := sendOptions{}
	cmd := &cobra.Command{
		Use:   "send [message]",
		Short: "Send protocol messages to a running server",
		Example: `  rsensorctl send 'broadcast "forward"'
  rsensorctl send --sensor power=60 --sensor balance=40
  rsensorctl send --image snap.jpg`,
		Args: cobra.MaximumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			payloads, err := buildPayloads(opts, args)
			if err != nil {
				return err
			}
			ctx, cancel := context.WithTimeout(cmd.Context(), opts.timeout)
			defer cancel()

			cfg := client.DefaultConfig()
			cfg.Address = opts.addr
			cfg.MaxConnectAttempts = 3
			c, err := client.Dial(ctx, cfg)
			if err != nil {
				return err
			}
			defer c.Close()
			for _, p := range payloads {
				if err := c.SendRaw(p); err != nil {
					return fmt.Errorf("send: %w", err)
				}
			}
			fmt.Fprintf(cmd.OutOrStdout(), "sent %d message(s) to %s\n", len(payloads), opts.addr)
			return nil
		},
	}
	fs := cmd.Flags()
	fs.StringVar(&opts.addr, "addr", client.DefaultConfig().Address, "server address")
	fs.StringVar(&opts.broadcast, "broadcast", "", "broadcast name to send")
	fs.StringArrayVar(&opts.sensors, "sensor", nil, "sensor reading key=value (repeatable)")
	fs.StringVar(&opts.image, "image", "", "image file to send as a camera frame")
	fs.StringVar(&opts.format, "format", "", "image format: jpg|gif|png (default: from file extension)")
	fs.DurationVar(&opts.timeout, "timeout", 10*time.Second, "overall connect and send timeout")
	return cmd
}

// buildPayloads renders every requested message in send order: raw text,
// sensor-update, broadcast, then image.
func buildPayloads(opts sendOptions, args []string) ([][]byte, error) {
	var out [][]byte
	if len(args) == 1 {
		text := strings.TrimSpace(args[0])
		msg, err := protocol.DecodeStrict(text)
		if err != nil {
			return nil, err
		}
		if msg.Command == "" {
			return nil, errNothingToSend
		}
		out = append(out, []byte(text))
	}
	if len(opts.sensors) > 0 {
		values, err := parseSensors(opts.sensors)
		if err != nil {
			return nil, err
		}
		out = append(out, []byte(protocol.EncodeSensorUpdate(values)))
	}
	if opts.broadcast != "" {
		msg := protocol.NewMessage(protocol.CommandBroadcast, protocol.StringValue(opts.broadcast))
		out = append(out, []byte(protocol.Encode(msg)))
	}
	if opts.image != "" {
		payload, err := imagePayload(opts.image, opts.format)
		if err != nil {
			return nil, err
		}
		out = append(out, payload)
	}
	if len(out) == 0 {
		return nil, errNothingToSend
	}
	return out, nil
}

func parseSensors(pairs []string) (map[string]protocol.Value, error) {
	values := make(map[string]protocol.Value, len(pairs))
	for _, pair := range pairs {
		key, raw, ok := strings.Cut(pair, "=")
		key = strings.TrimSpace(key)
		if !ok || key == "" {
			return nil, fmt.Errorf("invalid --sensor %q: want key=value", pair)
		}
		values[key] = protocol.ParseValue(strings.TrimSpace(raw))
	}
	return values, nil
}

func imagePayload(path, format string) ([]byte, error) {
	if format == "" {
		format = strings.TrimPrefix(strings.ToLower(filepath.Ext(path)), ".")
		if format == "jpeg" {
			format = "jpg"
		}
	}
	switch format {
	case "jpg", "gif", "png":
	default:
		return nil, fmt.Errorf("unsupported image format %q", format)
	}
	img, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}
	return []byte(format + " " + base64.StdEncoding.EncodeToString(img)), nil
}
