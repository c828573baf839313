package target

import (
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"time"

	"github.com/klauspost/compress/zstd"
	"golang.org/x/exp/mmap"
)

// DefaultFilePath is where the file target writes when no path is configured.
const DefaultFilePath = "/var/tmp/aesdsocketdata"

// FileConfig controls the file target.
type FileConfig struct {
	Path       string // append-only log file
	ArchiveDir string // if set, Remove keeps a zstd copy here
}

// File is an append-only log file. Its content is discarded by Remove, so
// the log does not outlive the process unless archiving is configured.
type File struct {
	cfg FileConfig

	mu     sync.Mutex
	f      *os.File
	size   int64
	closed bool

	onArchive func(path string, raw, compressed int64)
}

// OpenFile creates or opens the log file for appending.
func OpenFile(cfg FileConfig) (*File, error) {
	if cfg.Path == "" {
		cfg.Path = DefaultFilePath
	}
	if err := os.MkdirAll(filepath.Dir(cfg.Path), 0o755); err != nil {
		return nil, fmt.Errorf("create dir: %w", err)
	}
	f, err := os.OpenFile(cfg.Path, os.O_CREATE|os.O_APPEND|os.O_RDWR, 0o644)
	if err != nil {
		return nil, fmt.Errorf("open %s: %w", cfg.Path, err)
	}
	info, err := f.Stat()
	if err != nil {
		_ = f.Close()
		return nil, fmt.Errorf("stat %s: %w", cfg.Path, err)
	}
	adviseSequential(f)
	return &File{cfg: cfg, f: f, size: info.Size()}, nil
}

// SetOnArchive sets a callback invoked after Remove writes an archive.
func (t *File) SetOnArchive(fn func(path string, raw, compressed int64)) {
	t.onArchive = fn
}

// Path returns the log file path.
func (t *File) Path() string { return t.cfg.Path }

// Size returns the number of bytes appended so far.
func (t *File) Size() int64 {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.size
}

// Append writes p at the end of the file.
func (t *File) Append(p []byte) (int, error) {
	t.mu.Lock()
	defer t.mu.Unlock()
	if t.closed {
		return 0, ErrClosed
	}
	n, err := writeFull(t.f, p)
	t.size += int64(n)
	return n, err
}

// WriteTo streams the file to w. TCP destinations on Linux are served with
// sendfile; everything else is copied block by block.
func (t *File) WriteTo(w io.Writer) (int64, error) {
	t.mu.Lock()
	if t.closed {
		t.mu.Unlock()
		return 0, ErrClosed
	}
	src, size := t.f, t.size
	t.mu.Unlock()

	if n, handled, err := sendFile(w, src, size); handled {
		return n, err
	}
	return t.StreamFrom(w, 0)
}

// StreamFrom streams the file from byte pos to its current end.
func (t *File) StreamFrom(w io.Writer, pos int64) (int64, error) {
	r, err := mmap.Open(t.cfg.Path)
	if err != nil {
		return 0, fmt.Errorf("map %s: %w", t.cfg.Path, err)
	}
	defer func() { _ = r.Close() }()

	size := int64(r.Len())
	if pos < 0 || pos >= size {
		return 0, nil
	}
	return io.Copy(w, io.NewSectionReader(r, pos, size-pos))
}

// Remove closes the file, archives it when configured, and deletes it.
func (t *File) Remove() error {
	if err := t.Close(); err != nil {
		return err
	}
	if t.cfg.ArchiveDir != "" {
		if err := t.archive(); err != nil {
			return fmt.Errorf("archive: %w", err)
		}
	}
	if err := os.Remove(t.cfg.Path); err != nil && !os.IsNotExist(err) {
		return err
	}
	return nil
}

// Close closes the file handle. The file stays on disk.
func (t *File) Close() error {
	t.mu.Lock()
	defer t.mu.Unlock()
	if t.closed {
		return nil
	}
	t.closed = true
	return t.f.Close()
}

func (t *File) Kind() Kind       { return KindFile }
func (t *File) Timestamps() bool { return true }

func (t *File) archive() error {
	src, err := os.ReadFile(t.cfg.Path)
	if err != nil {
		if os.IsNotExist(err) {
			return nil
		}
		return err
	}
	if len(src) == 0 {
		return nil
	}
	if err := os.MkdirAll(t.cfg.ArchiveDir, 0o755); err != nil {
		return err
	}

	enc, err := zstd.NewWriter(nil)
	if err != nil {
		return err
	}
	compressed := enc.EncodeAll(src, nil)
	if err := enc.Close(); err != nil {
		return err
	}

	dst := filepath.Join(t.cfg.ArchiveDir, archiveName(t.cfg.Path, time.Now()))
	if err := os.WriteFile(dst, compressed, 0o644); err != nil {
		return err
	}
	if t.onArchive != nil {
		t.onArchive(dst, int64(len(src)), int64(len(compressed)))
	}
	return nil
}

func archiveName(path string, now time.Time) string {
	base := strings.TrimSuffix(filepath.Base(path), filepath.Ext(path))
	return fmt.Sprintf("%s-%s.log.zst", base, now.UTC().Format("2006-01-02T150405.000"))
}
