package store

import (
	"errors"
	"fmt"
)

// ErrInvalidArgument reports a seek request naming a command index that is
// not resident or an offset outside that entry.
var ErrInvalidArgument = errors.New("invalid argument")

// FindByByteOffset locates the entry holding byte offset of the concatenated
// resident content and returns it with the offset local to that entry.
// It reports false when offset is negative or at or past the end of the content.
func FindByByteOffset(r *Ring, offset int64) (Entry, int64, bool) {
	if offset < 0 {
		return Entry{}, 0, false
	}
	for _, e := range r.Entries() {
		size := int64(e.Len())
		if size > offset {
			return e, offset, true
		}
		offset -= size
	}
	return Entry{}, 0, false
}

// ResolveCommandOffset converts a (command index, offset) pair into an
// absolute byte offset into the resident content. Index 0 is the oldest
// resident entry. The ring is not modified.
func ResolveCommandOffset(r *Ring, cmd, off int64) (int64, error) {
	if cmd < 0 || cmd >= int64(r.Len()) {
		return 0, fmt.Errorf("command %d not resident (%d entries): %w", cmd, r.Len(), ErrInvalidArgument)
	}
	var pos int64
	for i, e := range r.Entries() {
		if int64(i) < cmd {
			pos += int64(e.Len())
			continue
		}
		if off < 0 || off >= int64(e.Len()) {
			return 0, fmt.Errorf("offset %d outside command %d (%d bytes): %w", off, cmd, e.Len(), ErrInvalidArgument)
		}
		break
	}
	return pos + off, nil
}

// ReadFrom returns a copy of the resident content starting at absolute
// offset pos. It returns nil when pos is outside the content.
func ReadFrom(r *Ring, pos int64) []byte {
	total := r.Size()
	if pos < 0 || pos >= total {
		return nil
	}
	out := make([]byte, 0, total-pos)
	for _, e := range r.Entries() {
		size := int64(e.Len())
		if pos >= size {
			pos -= size
			continue
		}
		out = append(out, e.data[pos:]...)
		pos = 0
	}
	return out
}
