package server

import (
	"bytes"
	"fmt"
	"strconv"

	"github.com/ppiankov/ringlog/internal/store"
)

// SeekCommandPrefix starts a control packet of the form
// "AESDCHAR_IOCSEEKTO:X,Y\n": reply with the resident content from byte Y
// of the X-th resident entry instead of ingesting the packet.
const SeekCommandPrefix = "AESDCHAR_IOCSEEKTO:"

// ParseSeekCommand reports whether packet is a seek command and, if so,
// its command index and offset. A malformed command yields an error
// wrapping store.ErrInvalidArgument with isSeek still set.
func ParseSeekCommand(packet []byte) (cmd, off int64, isSeek bool, err error) {
	rest, ok := bytes.CutPrefix(packet, []byte(SeekCommandPrefix))
	if !ok {
		return 0, 0, false, nil
	}
	rest = bytes.TrimRight(rest, "\r\n")
	x, y, ok := bytes.Cut(rest, []byte(","))
	if !ok {
		return 0, 0, true, fmt.Errorf("seek command %q: missing offset: %w", rest, store.ErrInvalidArgument)
	}
	cmd, err = strconv.ParseInt(string(bytes.TrimSpace(x)), 10, 64)
	if err != nil || cmd < 0 {
		return 0, 0, true, fmt.Errorf("seek command index %q: %w", x, store.ErrInvalidArgument)
	}
	off, err = strconv.ParseInt(string(bytes.TrimSpace(y)), 10, 64)
	if err != nil || off < 0 {
		return 0, 0, true, fmt.Errorf("seek command offset %q: %w", y, store.ErrInvalidArgument)
	}
	return cmd, off, true, nil
}

// FormatSeekCommand builds the control packet for (cmd, off).
func FormatSeekCommand(cmd, off int64) []byte {
	return fmt.Appendf(nil, "%s%d,%d\n", SeekCommandPrefix, cmd, off)
}
