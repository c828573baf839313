package chardev

import (
	"errors"
	"io"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/ppiankov/ringlog/internal/store"
)

func openHandle(t *testing.T, d *Device) *Handle {
	t.Helper()
	h, err := d.Open()
	require.NoError(t, err)
	t.Cleanup(func() { _ = h.Close() })
	return h
}

func TestPartialWritesCommitOnNewline(t *testing.T) {
	d := New(10)
	h := openHandle(t, d)

	_, err := h.Write([]byte("ab"))
	require.NoError(t, err)
	assert.Empty(t, d.Entries(), "partial write must not be visible")

	_, err = h.Write([]byte("c\n"))
	require.NoError(t, err)

	entries := d.Entries()
	require.Len(t, entries, 1)
	assert.Equal(t, "abc\n", entries[0].String())
}

func TestReadStopsAtEntryBoundary(t *testing.T) {
	d := New(10)
	w := openHandle(t, d)
	_, _ = w.Write([]byte("first\n"))
	_, _ = w.Write([]byte("second\n"))

	r := openHandle(t, d)
	buf := make([]byte, 64)

	n, err := r.Read(buf)
	require.NoError(t, err)
	assert.Equal(t, "first\n", string(buf[:n]))

	n, err = r.Read(buf)
	require.NoError(t, err)
	assert.Equal(t, "second\n", string(buf[:n]))

	_, err = r.Read(buf)
	assert.ErrorIs(t, err, io.EOF)
}

func TestReadAllSequential(t *testing.T) {
	d := New(2)
	w := openHandle(t, d)
	for _, line := range []string{"A\n", "B\n", "C\n"} {
		_, _ = w.Write([]byte(line))
	}

	data, err := io.ReadAll(openHandle(t, d))
	require.NoError(t, err)
	assert.Equal(t, "B\nC\n", string(data))
}

func TestEvictionCallback(t *testing.T) {
	d := New(1)
	var evicted []string
	d.SetOnEvict(func(e store.Entry) { evicted = append(evicted, e.String()) })

	w := openHandle(t, d)
	_, _ = w.Write([]byte("one\n"))
	_, _ = w.Write([]byte("two\n"))
	_, _ = w.Write([]byte("three\n"))

	assert.Equal(t, []string{"one\n", "two\n"}, evicted)
}

func TestSeekTo(t *testing.T) {
	d := New(10)
	w := openHandle(t, d)
	_, _ = w.Write([]byte("abc\n"))
	_, _ = w.Write([]byte("defg\n"))

	r := openHandle(t, d)
	pos, err := r.SeekTo(1, 2)
	require.NoError(t, err)
	assert.Equal(t, int64(6), pos)

	buf := make([]byte, 16)
	n, err := r.Read(buf)
	require.NoError(t, err)
	assert.Equal(t, "fg\n", string(buf[:n]))

	_, err = r.SeekTo(2, 0)
	assert.True(t, errors.Is(err, store.ErrInvalidArgument))
	_, err = r.SeekTo(0, 4)
	assert.True(t, errors.Is(err, store.ErrInvalidArgument))
}

func TestSeekWhence(t *testing.T) {
	d := New(10)
	w := openHandle(t, d)
	_, _ = w.Write([]byte("0123456789\n"))

	r := openHandle(t, d)
	pos, err := r.Seek(4, io.SeekStart)
	require.NoError(t, err)
	assert.Equal(t, int64(4), pos)

	pos, err = r.Seek(2, io.SeekCurrent)
	require.NoError(t, err)
	assert.Equal(t, int64(6), pos)

	pos, err = r.Seek(-1, io.SeekEnd)
	require.NoError(t, err)
	assert.Equal(t, int64(10), pos)

	_, err = r.Seek(-20, io.SeekCurrent)
	assert.ErrorIs(t, err, store.ErrInvalidArgument)
	_, err = r.Seek(0, 42)
	assert.ErrorIs(t, err, store.ErrInvalidArgument)
}

func TestClose(t *testing.T) {
	d := New(4)
	w := openHandle(t, d)
	_, _ = w.Write([]byte("x\n"))

	require.NoError(t, d.Close())
	assert.Equal(t, int64(0), d.Size())

	_, err := d.Open()
	assert.ErrorIs(t, err, ErrClosed)
	_, err = w.Write([]byte("y\n"))
	assert.ErrorIs(t, err, ErrClosed)
}
