package exchange

import (
	"context"
	"encoding/json"

	"github.com/amazonlinux/bottlerocket/taskwatch/pkg/cluster"
	"github.com/amazonlinux/bottlerocket/taskwatch/pkg/logging"
	"github.com/pkg/errors"
)

var _ Sender = (*Worker)(nil)

// Relay ships a command and its payload to the master and returns the
// master's raw answer. Retries and timeouts belong to the relay.
type Relay interface {
	Send(command string, payload []byte) ([]byte, error)
}

// Worker reaches the task manager on the master through the cluster relay.
type Worker struct {
	log   logging.Logger
	relay Relay
}

// NewWorker creates the worker path using relay.
func NewWorker(log logging.Logger, relay Relay) *Worker {
	return &Worker{log: log, relay: relay}
}

// SendBatch wraps batch in a sendsync envelope for the master's task manager
// and relays it. batch is copied into the envelope and not retained.
func (w *Worker) SendBatch(ctx context.Context, batch json.RawMessage) (json.RawMessage, error) {
	log := requestLog(ctx, w.log)

	message, err := outbound(batch)
	if err != nil {
		log.WithError(err).Error("unable to relay task batch")
		return nil, errors.WithMessage(ErrProtocol, err.Error())
	}
	payload, err := json.Marshal(Envelope{DaemonName: TaskManagerDaemon, Message: message})
	if err != nil {
		log.WithError(err).Error("unable to encode sendsync envelope")
		return nil, errors.WithMessage(ErrProtocol, err.Error())
	}
	logging.WithCode(log, codeRelaySend).Debugf("sending sendsync message to task manager in master node: '%s'", payload)

	raw, err := w.relay.Send(cluster.CommandSendSync, payload)
	if err != nil {
		log.WithError(err).Error("unable to relay message to master node")
		return nil, errors.WithMessage(ErrTransport, err.Error())
	}

	return parse(log, raw)
}
