package exchange

import (
	"context"
	"encoding/json"
	"time"

	"github.com/amazonlinux/bottlerocket/taskwatch/pkg/framing"
	"github.com/amazonlinux/bottlerocket/taskwatch/pkg/logging"
	"github.com/pkg/errors"
)

var _ Sender = (*Master)(nil)

// Conn is an established frame connection to the task manager.
type Conn interface {
	Send(payload []byte) error
	Recv() ([]byte, error)
	Close() error
}

// Dialer opens frame connections bounded to max bytes per frame.
type Dialer interface {
	Dial(path string, max int) (Conn, error)
}

type socketDialer struct {
	timeout time.Duration
}

func (d *socketDialer) Dial(path string, max int) (Conn, error) {
	return framing.Dial(path, max, d.timeout)
}

// Master talks to the task manager over its local socket.
type Master struct {
	log    logging.Logger
	path   string
	max    int
	dialer Dialer
}

// NewMaster creates the master path for the task manager listening at path.
// timeout bounds the connect and each frame exchanged.
func NewMaster(log logging.Logger, path string, max int, timeout time.Duration) *Master {
	return NewMasterWithDialer(log, path, max, &socketDialer{timeout: timeout})
}

// NewMasterWithDialer creates the master path using dialer for connections.
func NewMasterWithDialer(log logging.Logger, path string, max int, dialer Dialer) *Master {
	if max <= 0 {
		max = framing.DefaultMaxSize
	}
	return &Master{log: log, path: path, max: max, dialer: dialer}
}

// SendBatch sends batch in one frame and waits for the answering frame. The
// connection is closed before returning whenever it was opened. The answer is
// returned as received, less any trailing NUL terminators.
func (m *Master) SendBatch(ctx context.Context, batch json.RawMessage) (json.RawMessage, error) {
	log := requestLog(ctx, m.log).WithField("socket", m.path)

	payload, err := outbound(batch)
	if err != nil {
		log.WithError(err).Error("unable to send task batch")
		return nil, errors.WithMessage(ErrProtocol, err.Error())
	}

	conn, err := m.dialer.Dial(m.path, m.max)
	if err != nil {
		logging.WithCode(log, codeConnect).WithError(err).Errorf("cannot connect to '%s', could not reach task manager module", m.path)
		return nil, errors.WithMessage(ErrConnect, err.Error())
	}
	defer conn.Close()

	logging.WithCode(log, codeSend).Debugf("sending message to task_manager module: '%s'", payload)
	if err := conn.Send(payload); err != nil {
		log.WithError(err).Error("unable to send message to task manager")
		return nil, errors.WithMessage(ErrTransport, err.Error())
	}

	raw, err := conn.Recv()
	switch {
	case errors.Cause(err) == framing.ErrFrameTooLarge:
		logging.WithCode(log, codeTooLarge).WithError(err).Error("response size is bigger than expected")
		return nil, errors.WithMessage(ErrTransport, err.Error())
	case err != nil:
		logging.WithCode(log, codeRecv).WithError(err).Errorf("error in recv(): '%v'", err)
		return nil, errors.WithMessage(ErrTransport, err.Error())
	}

	return parse(log, raw)
}
