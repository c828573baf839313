//go:build linux

package target

import (
	"io"
	"net"
	"os"

	"golang.org/x/sys/unix"
)

func adviseSequential(f *os.File) {
	_ = unix.Fadvise(int(f.Fd()), 0, 0, unix.FADV_SEQUENTIAL)
}

// sendFile copies size bytes of src to a TCP connection without passing
// them through user space. handled is false when w is not a TCP connection.
func sendFile(w io.Writer, src *os.File, size int64) (n int64, handled bool, err error) {
	tc, ok := w.(*net.TCPConn)
	if !ok {
		return 0, false, nil
	}
	raw, err := tc.SyscallConn()
	if err != nil {
		return 0, true, err
	}

	var offset int64
	var sendErr error
	inFd := int(src.Fd())
	err = raw.Write(func(fd uintptr) bool {
		for offset < size {
			written, err := unix.Sendfile(int(fd), inFd, &offset, int(size-offset))
			if err == unix.EAGAIN {
				return false // wait until writable
			}
			if err == unix.EINTR {
				continue
			}
			if err != nil {
				sendErr = err
				return true
			}
			if written == 0 {
				break // file shrank underneath us
			}
		}
		return true
	})
	if sendErr != nil {
		return offset, true, sendErr
	}
	return offset, true, err
}
