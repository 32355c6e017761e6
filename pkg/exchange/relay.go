package exchange

import (
	"bytes"
	"context"
	"encoding/json"

	"github.com/amazonlinux/bottlerocket/taskwatch/pkg/cluster"
	"github.com/amazonlinux/bottlerocket/taskwatch/pkg/logging"
	"github.com/google/uuid"
	"github.com/pkg/errors"
)

// relayError is the master's answer to a relayed message it could not
// deliver.
type relayError struct {
	Error int    `json:"error"`
	Data  string `json:"data"`
}

const (
	relayErrBadEnvelope = 1
	relayErrUnknown     = 2
	relayErrDelivery    = 3
)

// RelayHandler answers sendsync envelopes relayed from workers by delivering
// their message to the task manager through sender. The task manager's answer
// is passed back unchanged.
func RelayHandler(log logging.Logger, sender Sender) cluster.Handler {
	return func(payload []byte) []byte {
		ctx := WithRequestID(context.Background(), uuid.New().String())
		log := requestLog(ctx, log)

		var env Envelope
		if err := json.Unmarshal(payload, &env); err != nil {
			log.WithError(err).Error("relayed message is not a valid envelope")
			return relayFailure(relayErrBadEnvelope, "invalid envelope")
		}
		if env.DaemonName != TaskManagerDaemon {
			log.WithField("daemon_name", env.DaemonName).Error("relayed message addressed to unknown daemon")
			return relayFailure(relayErrUnknown, "unknown daemon "+env.DaemonName)
		}
		if len(env.Message) == 0 || bytes.Equal(env.Message, []byte("null")) {
			log.Error("relayed envelope carries no message")
			return relayFailure(relayErrBadEnvelope, "missing message")
		}
		resp, err := sender.SendBatch(ctx, env.Message)
		if err != nil {
			return relayFailure(relayErrDelivery, errors.Cause(err).Error())
		}
		return resp
	}
}

func relayFailure(code int, reason string) []byte {
	raw, _ := json.Marshal(relayError{Error: code, Data: reason})
	return raw
}
