package exchange

import (
	"context"
	"encoding/json"

	"github.com/amazonlinux/bottlerocket/taskwatch/pkg/logging"
	"github.com/pkg/errors"
)

var (
	// ErrConnect is the cause of calls that could not reach the task manager.
	ErrConnect = errors.New("could not reach task manager")
	// ErrTransport is the cause of calls whose send or receive failed.
	ErrTransport = errors.New("task manager transport failure")
	// ErrProtocol is the cause of calls whose batch or response was not valid
	// JSON.
	ErrProtocol = errors.New("response from task manager does not have a valid JSON format")
)

// Operational ids of the exchange's log points.
const (
	codeConnect     = 8104
	codeInvalidJSON = 8105
	codeRecv        = 8111
	codeTooLarge    = 8112
	codeSend        = 8157
	codeReceive     = 8158
	codeRelaySend   = 8168
)

// RequestField names the id correlating all log entries of one round trip.
const RequestField = "request"

// Sender delivers a JSON request batch to the task manager and returns the
// JSON value it answered with. Neither is interpreted on the way.
type Sender interface {
	SendBatch(ctx context.Context, batch json.RawMessage) (json.RawMessage, error)
}

type requestIDKey struct{}

// WithRequestID returns a context carrying id as the round trip's
// correlation id.
func WithRequestID(ctx context.Context, id string) context.Context {
	return context.WithValue(ctx, requestIDKey{}, id)
}

// RequestID returns the correlation id carried by ctx, if any.
func RequestID(ctx context.Context) (string, bool) {
	id, ok := ctx.Value(requestIDKey{}).(string)
	return id, ok && id != ""
}

// requestLog tags log with the correlation id carried by ctx.
func requestLog(ctx context.Context, log logging.Logger) logging.Logger {
	if id, ok := RequestID(ctx); ok {
		return log.WithField(RequestField, id)
	}
	return log
}

// parse validates the raw response, logging and classifying failures.
func parse(log logging.Logger, raw []byte) (json.RawMessage, error) {
	logging.WithCode(log, codeReceive).Debugf("receiving message from task_manager module: '%s'", raw)
	resp, err := inbound(raw)
	if err != nil {
		logging.WithCode(log, codeInvalidJSON).WithError(err).Error("response from task manager does not have a valid JSON format")
		return nil, errors.WithMessage(ErrProtocol, err.Error())
	}
	return resp, nil
}
