package main

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"os/signal"
	"syscall"

	"github.com/danmuck/rsensor/internal/client"
	"github.com/danmuck/rsensor/internal/protocol"
	"github.com/spf13/cobra"
)

func newWatchCmd() *cobra.Command {
	var (
		addr   string
		count  int
		asJSON bool
	)
	cmd := &cobra.Command{
		Use:   "watch",
		Short: "Attach as a peer and print every message the server sends",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx, stop := signal.NotifyContext(cmd.Context(), syscall.SIGINT, syscall.SIGTERM)
			defer stop()

			cfg := client.DefaultConfig()
			cfg.Address = addr
			c, err := client.Dial(ctx, cfg)
			if err != nil {
				return err
			}
			go func() {
				<-ctx.Done()
				_ = c.Close()
			}()
			defer c.Close()
			return watchLoop(ctx, c, cmd.OutOrStdout(), count, asJSON)
		},
	}
	fs := cmd.Flags()
	fs.StringVar(&addr, "addr", client.DefaultConfig().Address, "server address")
	fs.IntVarP(&count, "count", "n", 0, "exit after this many messages (0 = until interrupted)")
	fs.BoolVar(&asJSON, "json", false, "print one JSON object per message")
	return cmd
}

type receiver interface {
	Recv() (protocol.Message, error)
}

func watchLoop(ctx context.Context, r receiver, out io.Writer, count int, asJSON bool) error {
	enc := json.NewEncoder(out)
	for seen := 0; count <= 0 || seen < count; seen++ {
		msg, err := r.Recv()
		if err != nil {
			if ctx.Err() != nil || errors.Is(err, client.ErrClosed) || errors.Is(err, io.EOF) {
				return nil
			}
			return err
		}
		if asJSON {
			if err := enc.Encode(struct {
				Command string           `json:"command"`
				Args    []protocol.Value `json:"args"`
			}{msg.Command, msg.Args}); err != nil {
				return err
			}
			continue
		}
		fmt.Fprintln(out, protocol.Encode(msg))
	}
	return nil
}
