package exchange

import (
	"bytes"
	"encoding/json"

	"github.com/pkg/errors"
)

// TaskManagerDaemon is the logical daemon name of the task manager on the
// master node.
const TaskManagerDaemon = "task-manager"

// Request is a typed view of one entry of a request batch. Extra carries any
// further fields the task manager's command expects, such as error_msg on a
// status update.
type Request struct {
	Module  string
	Command string
	Agent   int
	Status  string
	Extra   map[string]interface{}
}

// MarshalJSON encodes the request as a single object holding the named fields
// and every Extra field. Named fields win over Extra keys of the same name.
func (r Request) MarshalJSON() ([]byte, error) {
	obj := make(map[string]interface{}, len(r.Extra)+4)
	for k, v := range r.Extra {
		obj[k] = v
	}
	obj["module"] = r.Module
	obj["command"] = r.Command
	obj["agent"] = r.Agent
	if r.Status != "" {
		obj["status"] = r.Status
	}
	return json.Marshal(obj)
}

// Result is a typed view of one entry of a result batch. Error zero is
// success; otherwise Data holds the reason. Fields not named here stay in the
// raw batch the exchange returned.
type Result struct {
	Error  int    `json:"error"`
	Data   string `json:"data"`
	Agent  int    `json:"agent"`
	TaskID int    `json:"task_id"`
	Status string `json:"status,omitempty"`
}

// OK reports whether the task manager accepted the request.
func (r Result) OK() bool {
	return r.Error == 0
}

// Envelope addresses a message to a daemon on the master node.
type Envelope struct {
	DaemonName string          `json:"daemon_name"`
	Message    json.RawMessage `json:"message"`
}

var emptyBatch = json.RawMessage(`[]`)

// EncodeRequests serializes typed requests into a batch. An empty batch is
// encoded as an empty array.
func EncodeRequests(batch []Request) (json.RawMessage, error) {
	if len(batch) == 0 {
		return emptyBatch, nil
	}
	raw, err := json.Marshal(batch)
	if err != nil {
		return nil, errors.Wrap(err, "unable to encode task requests")
	}
	return raw, nil
}

// DecodeResults reads the typed view of a result batch. Anything other than
// an array of result objects is an error.
func DecodeResults(raw json.RawMessage) ([]Result, error) {
	var results []Result
	if err := json.Unmarshal(raw, &results); err != nil {
		return nil, errors.Wrap(err, "task manager answer is not a result batch")
	}
	if results == nil {
		return nil, errors.New("task manager answer is not a result batch")
	}
	return results, nil
}

// outbound checks a batch before it is sent and returns the bytes to send.
func outbound(batch json.RawMessage) (json.RawMessage, error) {
	if len(bytes.TrimSpace(batch)) == 0 {
		return emptyBatch, nil
	}
	if !json.Valid(batch) {
		return nil, errors.New("task batch is not valid JSON")
	}
	return batch, nil
}

// inbound returns a copy of a received answer with any trailing NUL
// terminators removed, or an error if it does not parse as JSON.
func inbound(raw []byte) (json.RawMessage, error) {
	raw = bytes.TrimRight(raw, "\x00")
	if !json.Valid(raw) {
		return nil, errors.New("response is not valid JSON")
	}
	dup := make(json.RawMessage, len(raw))
	copy(dup, raw)
	return dup, nil
}
