package exchange

import (
	"context"
	"encoding/json"

	"github.com/amazonlinux/bottlerocket/taskwatch/pkg/cluster"
	"github.com/amazonlinux/bottlerocket/taskwatch/pkg/logging"
	"github.com/google/uuid"
	"github.com/pkg/errors"
	"github.com/sirupsen/logrus"
)

// Router sends task information through the transport matching the node's
// role at the time of the call.
type Router struct {
	log    logging.Logger
	role   cluster.RoleSource
	master Sender
	worker Sender
}

// NewRouter creates a Router choosing between master and worker by role.
func NewRouter(log logging.Logger, role cluster.RoleSource, master, worker Sender) *Router {
	return &Router{log: log, role: role, master: master, worker: worker}
}

// SendTasksInformation delivers batch to the task manager and returns its
// answer, or nil and an error if this round of communication failed. A
// correlation id is assigned to the round trip unless ctx already carries
// one, and every log entry of the call records it.
func (r *Router) SendTasksInformation(ctx context.Context, batch json.RawMessage) (json.RawMessage, error) {
	id, ok := RequestID(ctx)
	if !ok {
		id = uuid.New().String()
		ctx = WithRequestID(ctx, id)
	}
	log := r.log.WithFields(logrus.Fields{
		RequestField: id,
		"bytes":      len(batch),
	})

	role, err := r.role.Role()
	if err != nil {
		log.WithError(err).Error("unable to determine cluster role")
		return nil, errors.WithMessage(err, "unable to route task information")
	}

	var sender Sender
	switch role {
	case cluster.Master:
		sender = r.master
	case cluster.Worker:
		sender = r.worker
	default:
		log.WithField("role", role).Error("no transport for cluster role")
		return nil, errors.Errorf("no transport for cluster role %q", role)
	}
	if sender == nil {
		log.WithField("role", role).Error("transport not configured for cluster role")
		return nil, errors.Errorf("transport not configured for cluster role %q", role)
	}

	log = log.WithField("role", role)
	log.Debug("sending task information")
	resp, err := sender.SendBatch(ctx, batch)
	if err != nil {
		return nil, err
	}
	log.WithField("bytes", len(resp)).Debug("received task information")
	return resp, nil
}

// SendBatch lets a Router stand in wherever a Sender is expected.
func (r *Router) SendBatch(ctx context.Context, batch json.RawMessage) (json.RawMessage, error) {
	return r.SendTasksInformation(ctx, batch)
}
