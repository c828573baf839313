package main

import (
	"fmt"
	"regexp"
	"strconv"
	"strings"
	"time"

	"github.com/spf13/cobra"
)

const (
	defaultListen  = ":9000"
	defaultAddr    = "127.0.0.1:9000"
	defaultTimeout = 10 * time.Second
)

// applyConfigDefaults sets flag values from config when the flag
// was not explicitly set on the command line. Flags > env > config > defaults.
// The config package already handles env > config, so only unchanged flags
// are touched here.
func applyConfigDefaults(cmd *cobra.Command) {
	if cfg == nil {
		return
	}

	setDefault := func(name, value string) {
		if value != "" && !cmd.Flags().Changed(name) {
			if f := cmd.Flags().Lookup(name); f != nil {
				_ = f.Value.Set(value)
			}
		}
	}

	s := cfg.Serve
	setDefault("listen", s.Listen)
	setDefault("capacity", s.Capacity)
	setDefault("target", s.Target)
	setDefault("file", s.File)
	setDefault("device", s.Device)
	setDefault("archive-dir", s.ArchiveDir)
	setDefault("heartbeat", s.Heartbeat)
	setDefault("max-packet", s.MaxPacket)
	setDefault("admin-listen", s.AdminListen)
	setDefault("audit", s.Audit)
	if s.Echo != nil {
		setDefault("echo", strconv.FormatBool(*s.Echo))
	}

	setDefault("addr", cfg.Client.Addr)
	setDefault("timeout", cfg.Client.Timeout)

	setDefault("log-level", cfg.Log.Level)
	setDefault("log-format", cfg.Log.Format)
}

var byteSizePattern = regexp.MustCompile(`(?i)^(\d+(?:\.\d+)?)\s*(KIB|MIB|GIB|KB|MB|GB|B)?$`)

// parseByteSize accepts plain byte counts and KB/MB/GB suffixes (binary
// multiples; KiB/MiB/GiB are accepted as synonyms).
func parseByteSize(s string) (int64, error) {
	m := byteSizePattern.FindStringSubmatch(strings.TrimSpace(s))
	if m == nil {
		return 0, fmt.Errorf("invalid size: %q", s)
	}
	val, err := strconv.ParseFloat(m[1], 64)
	if err != nil {
		return 0, err
	}
	switch strings.ToUpper(m[2]) {
	case "GB", "GIB":
		val *= 1 << 30
	case "MB", "MIB":
		val *= 1 << 20
	case "KB", "KIB":
		val *= 1 << 10
	}
	return int64(val), nil
}
