// Package framing implements the length-prefixed message framing used on the
// daemon's local Unix stream sockets. Every frame is a 4-byte little-endian
// payload size followed by the payload itself.
package framing

import (
	"encoding/binary"
	"io"

	"github.com/pkg/errors"
)

const (
	// DefaultMaxSize is the largest payload either side sends or accepts.
	DefaultMaxSize = 65536

	headerSize = 4
)

var (
	// ErrFrameTooLarge is returned when a frame declares a payload larger than
	// the negotiated maximum.
	ErrFrameTooLarge = errors.New("frame exceeds maximum message size")
	// ErrReceive is returned when a whole frame could not be read.
	ErrReceive = errors.New("frame receive failed")
	// ErrSend is returned when a frame could not be written.
	ErrSend = errors.New("frame send failed")
)

// Write sends payload as a single frame.
func Write(w io.Writer, payload []byte, max int) error {
	if len(payload) > max {
		return errors.Wrapf(ErrFrameTooLarge, "sending %d bytes, maximum %d", len(payload), max)
	}
	buf := make([]byte, headerSize+len(payload))
	binary.LittleEndian.PutUint32(buf, uint32(len(payload)))
	copy(buf[headerSize:], payload)
	if _, err := w.Write(buf); err != nil {
		return errors.WithMessage(ErrSend, err.Error())
	}
	return nil
}

// Read receives a single frame of at most max payload bytes. A frame that
// declares more is reported with ErrFrameTooLarge and its payload is left
// unread.
func Read(r io.Reader, max int) ([]byte, error) {
	var header [headerSize]byte
	if _, err := io.ReadFull(r, header[:]); err != nil {
		return nil, errors.WithMessage(ErrReceive, errText(err))
	}
	size := binary.LittleEndian.Uint32(header[:])
	if uint64(size) > uint64(max) {
		return nil, errors.Wrapf(ErrFrameTooLarge, "peer declared %d bytes, maximum %d", size, max)
	}
	payload := make([]byte, size)
	if _, err := io.ReadFull(r, payload); err != nil {
		return nil, errors.WithMessage(ErrReceive, errText(err))
	}
	return payload, nil
}

func errText(err error) string {
	if err == io.EOF || err == io.ErrUnexpectedEOF {
		return "connection closed by peer"
	}
	return err.Error()
}
