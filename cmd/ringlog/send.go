package main

import (
	"bufio"
	"context"
	"fmt"
	"io"
	"net"
	"os"
	"strings"
	"time"

	"github.com/spf13/cobra"

	"github.com/ppiankov/ringlog/internal/cli"
)

func newSendCmd() *cobra.Command {
	var (
		addr    string
		timeout time.Duration
	)

	cmd := &cobra.Command{
		Use:   "send [line...]",
		Short: "Send packets and print the server's replies",
		Long: "Send each argument as one newline-terminated packet, or stdin when no " +
			"arguments are given, then print everything the server sends back.",
		PreRunE: func(cmd *cobra.Command, args []string) error {
			applyConfigDefaults(cmd)
			return nil
		},
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx, cancel := context.WithTimeout(cmd.Context(), timeout)
			defer cancel()

			var in io.Reader = os.Stdin
			if len(args) > 0 {
				in = strings.NewReader(packets(args))
			}
			return runSend(ctx, addr, in, cmd.OutOrStdout())
		},
	}
	cmd.Flags().StringVar(&addr, "addr", defaultAddr, "server address")
	cmd.Flags().DurationVar(&timeout, "timeout", defaultTimeout, "overall deadline")
	return cmd
}

// packets joins args into newline-terminated packets.
func packets(args []string) string {
	var b strings.Builder
	for _, a := range args {
		b.WriteString(a)
		if !strings.HasSuffix(a, "\n") {
			b.WriteByte('\n')
		}
	}
	return b.String()
}

// runSend streams in to the server, half-closes the connection and copies
// every reply to out until the server hangs up.
func runSend(ctx context.Context, addr string, in io.Reader, out io.Writer) error {
	var d net.Dialer
	conn, err := d.DialContext(ctx, "tcp", addr)
	if err != nil {
		return cli.NewNetworkError(err)
	}
	defer func() { _ = conn.Close() }()
	if deadline, ok := ctx.Deadline(); ok {
		_ = conn.SetDeadline(deadline)
	}
	stop := context.AfterFunc(ctx, func() { _ = conn.SetDeadline(time.Now()) })
	defer stop()

	errCh := make(chan error, 1)
	go func() {
		_, err := io.Copy(out, bufio.NewReader(conn))
		errCh <- err
	}()

	if _, err := io.Copy(conn, in); err != nil {
		return cli.NewNetworkError(fmt.Errorf("send: %w", err))
	}
	if tc, ok := conn.(*net.TCPConn); ok {
		_ = tc.CloseWrite()
	}

	if err := <-errCh; err != nil {
		return cli.NewNetworkError(fmt.Errorf("receive: %w", err))
	}
	return nil
}
