package cluster

import (
	"encoding/json"
	"time"

	"github.com/amazonlinux/bottlerocket/taskwatch/pkg/framing"
	"github.com/pkg/errors"
)

// CommandSendSync asks the master to deliver a message to one of its daemons
// and wait for the answer.
const CommandSendSync = "sendsync"

// relayRequest is the frame sent to the local cluster daemon.
type relayRequest struct {
	Command string          `json:"command"`
	Payload json.RawMessage `json:"payload"`
}

// SocketRelay sends commands to the master through the local cluster daemon's
// Unix socket.
type SocketRelay struct {
	Path    string
	MaxSize int
	Timeout time.Duration
}

// Send delivers payload under command and returns the master's raw answer.
func (s *SocketRelay) Send(command string, payload []byte) ([]byte, error) {
	frame, err := json.Marshal(relayRequest{Command: command, Payload: json.RawMessage(payload)})
	if err != nil {
		return nil, errors.Wrap(err, "unable to encode relay request")
	}
	conn, err := framing.Dial(s.Path, s.MaxSize, s.Timeout)
	if err != nil {
		return nil, errors.WithMessage(err, "cluster daemon unreachable")
	}
	defer conn.Close()

	if err := conn.Send(frame); err != nil {
		return nil, err
	}
	return conn.Recv()
}
