package main

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	tea "github.com/charmbracelet/bubbletea"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/spf13/cobra"

	"github.com/ppiankov/ringlog/internal/chardev"
	"github.com/ppiankov/ringlog/internal/cli"
	"github.com/ppiankov/ringlog/internal/logging"
	"github.com/ppiankov/ringlog/internal/server"
	"github.com/ppiankov/ringlog/internal/store"
	"github.com/ppiankov/ringlog/internal/target"
)

type serveOptions struct {
	listen      string
	capacity    int
	target      string
	file        string
	device      string
	archiveDir  string
	echo        bool
	heartbeat   time.Duration
	maxPacket   string
	adminListen string
	audit       string
	tui         bool
	detach      bool
	logLevel    string
	logFormat   string
}

func newServeCmd() *cobra.Command {
	var opts serveOptions

	cmd := &cobra.Command{
		Use:   "serve",
		Short: "Accept newline-framed packets over TCP",
		Long: "Append every newline-terminated packet to the log and the append target, " +
			"echoing the full target content back after each packet.",
		Args: cobra.NoArgs,
		PreRunE: func(cmd *cobra.Command, args []string) error {
			applyConfigDefaults(cmd)
			return nil
		},
		RunE: func(cmd *cobra.Command, args []string) error {
			if opts.tui && opts.detach {
				return cli.NewUsageError("--tui cannot be combined with --detach")
			}
			if opts.capacity < 1 {
				return cli.NewUsageError("--capacity must be at least 1")
			}
			return runServe(opts)
		},
	}

	f := cmd.Flags()
	f.StringVar(&opts.listen, "listen", defaultListen, "TCP address to accept packets on")
	f.IntVar(&opts.capacity, "capacity", store.DefaultCapacity, "resident entries kept in memory")
	f.StringVar(&opts.target, "target", string(target.KindFile), "append target: file or device")
	f.StringVar(&opts.file, "file", target.DefaultFilePath, "log file for the file target")
	f.StringVar(&opts.device, "device", "", "character device for the device target (empty emulates one in memory)")
	f.StringVar(&opts.archiveDir, "archive-dir", "", "keep a zstd copy of the log file here on shutdown")
	f.BoolVar(&opts.echo, "echo", true, "stream the full log back after each packet")
	f.DurationVar(&opts.heartbeat, "heartbeat", server.DefaultHeartbeatPeriod, "timestamp period for the file target (0 disables)")
	f.StringVar(&opts.maxPacket, "max-packet", "1MB", "largest packet a connection may buffer")
	f.StringVar(&opts.adminListen, "admin-listen", "", "HTTP address for health, inspection and metrics (empty disables)")
	f.StringVar(&opts.audit, "audit", "", "append JSONL audit records to this file")
	f.BoolVar(&opts.tui, "tui", false, "show the live dashboard")
	f.BoolVarP(&opts.detach, "detach", "d", false, "run in the background in a new session")
	f.StringVar(&opts.logLevel, "log-level", "info", "log level: debug, info, warn or error")
	f.StringVar(&opts.logFormat, "log-format", "text", "log format: text or json")

	return cmd
}

func runServe(opts serveOptions) error {
	maxPacket, err := parseByteSize(opts.maxPacket)
	if err != nil {
		return cli.NewUsageError(fmt.Sprintf("invalid --max-packet: %v", err))
	}
	kind, err := target.ParseKind(opts.target)
	if err != nil {
		return cli.NewUsageError(err.Error())
	}

	logger, err := logging.New(os.Stderr, logging.Config{Level: opts.logLevel, Format: opts.logFormat})
	if err != nil {
		return cli.NewUsageError(err.Error())
	}
	if opts.tui {
		// the dashboard owns the terminal
		logger = logging.Discard()
	}

	// bind before detaching so address errors reach the caller
	ln, err := listen(opts.listen)
	if err != nil {
		return cli.NewNetworkError(err)
	}
	if opts.detach && !isDetachedChild() {
		pid, err := detach(ln, detachArgs(os.Args[1:]))
		_ = ln.Close()
		if err != nil {
			return cli.NewInternalError(fmt.Errorf("detach: %w", err))
		}
		fmt.Fprintf(os.Stderr, "ringlog serving on %s in the background (pid %d)\n", opts.listen, pid)
		return nil
	}

	metrics := server.NewMetrics(prometheus.DefaultRegisterer)
	stats := server.NewStats()

	tgt, err := openTarget(kind, opts, stats, logging.Component(logger, "target"))
	if err != nil {
		_ = ln.Close()
		return cli.NewTargetError(err)
	}

	log := server.NewLog(opts.capacity, tgt, metrics, logging.Component(logger, "log"))
	log.SetOnEvict(func(store.Entry) { stats.Evictions.Add(1) })

	sup := server.NewSupervisor(log, server.Config{
		Echo:            opts.echo,
		MaxPacketBytes:  int(maxPacket),
		HeartbeatPeriod: opts.heartbeat,
	}, logging.Component(logger, "supervisor"))
	sup.SetMetrics(metrics)
	sup.SetStats(stats)

	if opts.audit != "" {
		audit, err := server.NewAuditLogger(opts.audit)
		if err != nil {
			_ = ln.Close()
			_ = log.Close()
			return cli.NewConfigError(fmt.Errorf("init audit logger: %w", err))
		}
		defer func() { _ = audit.Close() }()
		sup.SetAuditLogger(audit)
	}

	var admin *server.AdminServer
	if opts.adminListen != "" {
		admin = server.NewAdminServer(opts.adminListen, log, sup, stats, prometheus.DefaultGatherer)
		admin.SetVersion(version)
		adminLog := logging.Component(logger, "admin")
		go func() {
			if err := admin.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
				adminLog.Error("admin server failed", "addr", opts.adminListen, "error", err)
			}
		}()
		defer func() {
			ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
			defer cancel()
			_ = admin.Shutdown(ctx)
		}()
	}

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	if opts.tui {
		err = runTUI(ctx, sup, ln, server.NewTUIModel(stats, log, opts.listen, string(kind), version))
	} else {
		err = sup.Serve(ctx, ln)
	}
	if err != nil {
		if errors.Is(err, server.ErrTarget) {
			return cli.NewTargetError(err)
		}
		return cli.NewInternalError(err)
	}
	logger.Info("stopped")
	return nil
}

// runTUI serves in the background while the dashboard owns the terminal.
// Quitting the dashboard stops the server.
func runTUI(ctx context.Context, sup *server.Supervisor, ln net.Listener, model server.TUIModel) error {
	ctx, cancel := context.WithCancel(ctx)
	defer cancel()

	p := tea.NewProgram(model, tea.WithAltScreen(), tea.WithContext(ctx))
	errCh := make(chan error, 1)
	go func() {
		err := sup.Serve(ctx, ln)
		p.Quit()
		errCh <- err
	}()

	if _, err := p.Run(); err != nil && !errors.Is(err, tea.ErrProgramKilled) {
		cancel()
		<-errCh
		return fmt.Errorf("TUI: %w", err)
	}
	cancel()
	return <-errCh
}

func listen(addr string) (net.Listener, error) {
	if isDetachedChild() {
		return inheritedListener()
	}
	return net.Listen("tcp", addr)
}

func openTarget(kind target.Kind, opts serveOptions, stats *server.Stats, logger *slog.Logger) (target.Target, error) {
	switch kind {
	case target.KindDevice:
		var (
			d   *target.Device
			err error
		)
		if opts.device != "" {
			d, err = target.OpenDevice(opts.device)
		} else {
			dev := chardev.New(store.DefaultCapacity)
			dev.SetOnEvict(func(store.Entry) { stats.DeviceEvictions.Add(1) })
			d, err = target.NewDevice("aesdchar", func() (io.ReadWriteCloser, error) {
				return dev.Open()
			})
		}
		if err != nil {
			return nil, err
		}
		logger.Info("using character device", "device", d.Name(), "emulated", opts.device == "")
		return d, nil
	default:
		f, err := target.OpenFile(target.FileConfig{Path: opts.file, ArchiveDir: opts.archiveDir})
		if err != nil {
			return nil, err
		}
		f.SetOnArchive(func(path string, raw, compressed int64) {
			logger.Info("archived log file", "archive", path, "bytes", raw, "compressed", compressed)
		})
		logger.Info("using log file", "path", f.Path(), "existing_bytes", f.Size())
		return f, nil
	}
}
