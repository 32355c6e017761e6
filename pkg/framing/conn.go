package framing

import (
	"net"
	"time"

	"github.com/pkg/errors"
	"golang.org/x/sys/unix"
)

// Conn is a client connection exchanging frames over a Unix stream socket.
type Conn struct {
	conn    net.Conn
	max     int
	timeout time.Duration
}

// Dial connects to the Unix stream socket at path. The socket buffers are
// grown to hold at least one frame of max bytes. A positive timeout bounds
// the connect and every subsequent send and receive.
func Dial(path string, max int, timeout time.Duration) (*Conn, error) {
	conn, err := net.DialTimeout("unix", path, timeout)
	if err != nil {
		return nil, errors.Wrapf(err, "unable to connect to %q", path)
	}
	if uc, ok := conn.(*net.UnixConn); ok {
		if err := growBuffers(uc, max+headerSize); err != nil {
			conn.Close()
			return nil, err
		}
	}
	return NewConn(conn, max, timeout), nil
}

// NewConn wraps an established connection.
func NewConn(conn net.Conn, max int, timeout time.Duration) *Conn {
	return &Conn{conn: conn, max: max, timeout: timeout}
}

// Send writes payload as one frame.
func (c *Conn) Send(payload []byte) error {
	if err := c.deadline(); err != nil {
		return errors.WithMessage(ErrSend, err.Error())
	}
	return Write(c.conn, payload, c.max)
}

// Recv reads one frame.
func (c *Conn) Recv() ([]byte, error) {
	if err := c.deadline(); err != nil {
		return nil, errors.WithMessage(ErrReceive, err.Error())
	}
	return Read(c.conn, c.max)
}

// Close closes the underlying socket.
func (c *Conn) Close() error {
	return c.conn.Close()
}

func (c *Conn) deadline() error {
	if c.timeout <= 0 {
		return nil
	}
	return c.conn.SetDeadline(time.Now().Add(c.timeout))
}

// growBuffers raises the socket's send and receive buffers to size when they
// are smaller.
func growBuffers(conn *net.UnixConn, size int) error {
	raw, err := conn.SyscallConn()
	if err != nil {
		return errors.Wrap(err, "unable to access socket")
	}
	var opErr error
	err = raw.Control(func(fd uintptr) {
		for _, opt := range []int{unix.SO_SNDBUF, unix.SO_RCVBUF} {
			cur, err := unix.GetsockoptInt(int(fd), unix.SOL_SOCKET, opt)
			if err != nil {
				opErr = errors.Wrap(err, "unable to read socket buffer size")
				return
			}
			if cur >= size {
				continue
			}
			if err := unix.SetsockoptInt(int(fd), unix.SOL_SOCKET, opt, size); err != nil {
				opErr = errors.Wrap(err, "unable to set socket buffer size")
				return
			}
		}
	})
	if err != nil {
		return errors.Wrap(err, "unable to access socket")
	}
	return opErr
}
