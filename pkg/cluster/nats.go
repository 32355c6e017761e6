package cluster

import (
	"context"
	"time"

	"github.com/amazonlinux/bottlerocket/taskwatch/pkg/logging"
	"github.com/nats-io/nats.go"
	"github.com/pkg/errors"
)

const clientName = "taskwatch"

// Connect opens a NATS connection suitable for relaying.
func Connect(url string, timeout time.Duration) (*nats.Conn, error) {
	conn, err := nats.Connect(url,
		nats.Name(clientName),
		nats.Timeout(timeout),
		nats.MaxReconnects(-1),
	)
	if err != nil {
		return nil, errors.Wrapf(err, "unable to connect to %q", url)
	}
	return conn, nil
}

// NATSRelay sends commands to the master as NATS requests on
// <subject>.<command>.
type NATSRelay struct {
	Conn    *nats.Conn
	Subject string
	Timeout time.Duration
}

// Send delivers payload under command and returns the master's raw answer.
func (n *NATSRelay) Send(command string, payload []byte) ([]byte, error) {
	msg, err := n.Conn.Request(n.Subject+"."+command, payload, n.Timeout)
	if err != nil {
		if err == nats.ErrNoResponders {
			return nil, errors.Wrap(err, "no master is serving relayed requests")
		}
		return nil, errors.Wrap(err, "relayed request failed")
	}
	return msg.Data, nil
}

// Handler answers a relayed payload.
type Handler func(payload []byte) []byte

// Responder serves relayed commands on the master.
type Responder struct {
	log     logging.Logger
	conn    *nats.Conn
	subject string
}

// NewResponder creates a Responder answering on subject.
func NewResponder(log logging.Logger, conn *nats.Conn, subject string) *Responder {
	return &Responder{log: log, conn: conn, subject: subject}
}

// Serve answers command with h until ctx is done.
func (r *Responder) Serve(ctx context.Context, command string, h Handler) error {
	subject := r.subject + "." + command
	log := r.log.WithField("subject", subject)
	sub, err := r.conn.Subscribe(subject, func(m *nats.Msg) {
		if err := m.Respond(h(m.Data)); err != nil {
			log.WithError(err).Error("unable to answer relayed request")
		}
	})
	if err != nil {
		return errors.Wrapf(err, "unable to subscribe to %q", subject)
	}
	log.Debug("serving relayed requests")
	<-ctx.Done()
	log.Debug("stopped serving relayed requests")
	return sub.Unsubscribe()
}
