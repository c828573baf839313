package main

import (
	"bytes"
	"context"
	"fmt"
	"strconv"
	"time"

	"github.com/spf13/cobra"

	"github.com/ppiankov/ringlog/internal/cli"
	"github.com/ppiankov/ringlog/internal/server"
)

func newSeekCmd() *cobra.Command {
	var (
		addr    string
		timeout time.Duration
	)

	cmd := &cobra.Command{
		Use:   "seek CMD OFFSET",
		Short: "Print resident content from byte OFFSET of entry CMD",
		Args:  cobra.ExactArgs(2),
		PreRunE: func(cmd *cobra.Command, args []string) error {
			applyConfigDefaults(cmd)
			return nil
		},
		RunE: func(cmd *cobra.Command, args []string) error {
			index, err := strconv.ParseInt(args[0], 10, 64)
			if err != nil || index < 0 {
				return cli.NewUsageError("CMD must be a non-negative integer")
			}
			off, err := strconv.ParseInt(args[1], 10, 64)
			if err != nil || off < 0 {
				return cli.NewUsageError("OFFSET must be a non-negative integer")
			}

			ctx, cancel := context.WithTimeout(cmd.Context(), timeout)
			defer cancel()

			var reply bytes.Buffer
			if err := runSend(ctx, addr, bytes.NewReader(server.FormatSeekCommand(index, off)), &reply); err != nil {
				return err
			}
			if reply.String() == server.InvalidSeekReply {
				return cli.NewUsageError(fmt.Sprintf("server rejected seek to %d,%d: no such resident position", index, off))
			}
			_, err = cmd.OutOrStdout().Write(reply.Bytes())
			return err
		},
	}
	cmd.Flags().StringVar(&addr, "addr", defaultAddr, "server address")
	cmd.Flags().DurationVar(&timeout, "timeout", defaultTimeout, "overall deadline")
	return cmd
}
