package store

import "iter"

// DefaultCapacity is the number of entries a Ring holds when no capacity is given.
const DefaultCapacity = 10

// Entry is one newline-terminated packet stored in the log.
// The zero Entry is an empty slot.
type Entry struct {
	data []byte
}

// NewEntry takes ownership of p. The caller must not modify p afterwards.
func NewEntry(p []byte) Entry {
	return Entry{data: p}
}

// Len returns the entry size in bytes.
func (e Entry) Len() int { return len(e.data) }

// Bytes returns a copy of the entry contents.
func (e Entry) Bytes() []byte {
	out := make([]byte, len(e.data))
	copy(out, e.data)
	return out
}

// CopyAt copies the entry contents starting at off into p and returns the
// number of bytes copied.
func (e Entry) CopyAt(p []byte, off int64) int {
	if off < 0 || off >= int64(len(e.data)) {
		return 0
	}
	return copy(p, e.data[off:])
}

func (e Entry) String() string { return string(e.data) }

// Ring is a fixed-capacity circular buffer of entries. When full, each
// Append overwrites the oldest entry and hands it back to the caller.
//
// Ring does no locking; the owner serializes access.
type Ring struct {
	slots []Entry
	in    int // next write position
	out   int // oldest entry
	full  bool
}

// NewRing creates a ring with the given capacity.
// If capacity ≤ 0, DefaultCapacity is used.
func NewRing(capacity int) *Ring {
	if capacity <= 0 {
		capacity = DefaultCapacity
	}
	return &Ring{slots: make([]Entry, capacity)}
}

// Append stores e at the write cursor. If the ring was full, the oldest
// entry is evicted and returned with ok set; the ring keeps no reference to it.
func (r *Ring) Append(e Entry) (evicted Entry, ok bool) {
	if r.full {
		evicted, ok = r.slots[r.in], true
		r.out = (r.out + 1) % len(r.slots)
	}
	r.slots[r.in] = e
	r.in = (r.in + 1) % len(r.slots)
	r.full = r.in == r.out
	return evicted, ok
}

// Entries yields resident entries oldest first, paired with their command
// index (0 = oldest). The sequence can be ranged over any number of times.
func (r *Ring) Entries() iter.Seq2[int, Entry] {
	return func(yield func(int, Entry) bool) {
		n := r.Len()
		for i := 0; i < n; i++ {
			if !yield(i, r.slots[(r.out+i)%len(r.slots)]) {
				return
			}
		}
	}
}

// At returns the entry at command index i.
func (r *Ring) At(i int) (Entry, bool) {
	if i < 0 || i >= r.Len() {
		return Entry{}, false
	}
	return r.slots[(r.out+i)%len(r.slots)], true
}

// Len returns the number of resident entries.
func (r *Ring) Len() int {
	if r.full {
		return len(r.slots)
	}
	return (r.in - r.out + len(r.slots)) % len(r.slots)
}

// Cap returns the ring capacity.
func (r *Ring) Cap() int { return len(r.slots) }

// Full reports whether the ring holds Cap entries.
func (r *Ring) Full() bool { return r.full }

// Size returns the total byte length of all resident entries.
func (r *Ring) Size() int64 {
	var total int64
	for _, e := range r.Entries() {
		total += int64(e.Len())
	}
	return total
}

// Snapshot returns the resident entries oldest first.
func (r *Ring) Snapshot() []Entry {
	out := make([]Entry, 0, r.Len())
	for _, e := range r.Entries() {
		out = append(out, e)
	}
	return out
}

// Reset drops every entry and rewinds both cursors.
func (r *Ring) Reset() {
	clear(r.slots)
	r.in, r.out, r.full = 0, 0, false
}
