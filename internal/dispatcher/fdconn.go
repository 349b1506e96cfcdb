//go:build linux

package dispatcher

import (
	"errors"
	"net"
	"time"

	"golang.org/x/sys/unix"
)

// fdConn adapts a raw non-blocking socket file descriptor to net.Conn so
// that the rest of the codebase (protocol.WriteFrame, connreg.Connection)
// can treat dispatcher-owned sockets the same as any other connection.
// Only Read, Write, Close and the address accessors are meaningful here;
// deadlines are not supported and the Set*Deadline methods are no-ops,
// since the socket is non-blocking and no call on it ever waits.
type fdConn struct {
	fd         int
	localAddr  net.Addr
	remoteAddr net.Addr
}

func newFDConn(fd int, local, remote net.Addr) *fdConn {
	return &fdConn{fd: fd, localAddr: local, remoteAddr: remote}
}

// Read performs a single non-blocking read. It returns (0, unix.EAGAIN)
// when no data is currently available; callers in this package treat that
// as "nothing more to read this event" rather than an error.
func (c *fdConn) Read(p []byte) (int, error) {
	n, err := unix.Read(c.fd, p)
	if err != nil {
		return 0, err
	}
	if n == 0 {
		return 0, errConnClosed
	}
	return n, nil
}

// Write performs one or more non-blocking writes until p is fully written,
// retrying only on EINTR. Any other error, including EAGAIN when the write
// would block, is returned together with the byte count written so far;
// per the error taxonomy that is fatal to the connection rather than
// retried at this layer.
func (c *fdConn) Write(p []byte) (int, error) {
	total := 0
	for total < len(p) {
		n, err := unix.Write(c.fd, p[total:])
		if err != nil {
			if errors.Is(err, unix.EINTR) {
				continue
			}
			return total, err
		}
		total += n
	}
	return total, nil
}

func (c *fdConn) Close() error {
	return unix.Close(c.fd)
}

func (c *fdConn) LocalAddr() net.Addr  { return c.localAddr }
func (c *fdConn) RemoteAddr() net.Addr { return c.remoteAddr }

func (c *fdConn) SetDeadline(time.Time) error      { return nil }
func (c *fdConn) SetReadDeadline(time.Time) error  { return nil }
func (c *fdConn) SetWriteDeadline(time.Time) error { return nil }

var errConnClosed = errors.New("dispatcher: connection closed by peer")
