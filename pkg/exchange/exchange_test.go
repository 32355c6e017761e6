package exchange

import (
	"context"
	"encoding/json"
	"testing"

	"gotest.tools/assert"
)

const (
	testSocket = "/var/ossec/queue/tasks/task"

	requestJSON = `[{"module":"upgrade_module","command":"upgrade","agent":12},` +
		`{"module":"upgrade_module","command":"upgrade","agent":10}]`

	responseJSON = `[{"error":0,"data":"Success","agent":12,"task_id":100},` +
		`{"error":0,"data":"Success","agent":10,"task_id":101}]`

	envelopeJSON = `{"daemon_name":"task-manager","message":` + requestJSON + `}`

	// Status update carrying a field only the task manager knows about.
	updateRequestJSON = `[{"module":"upgrade_module","command":"upgrade_update_status",` +
		`"agent":12,"status":"Failed","error_msg":"boom"}]`

	// Result with task id zero and fields beyond the typed view.
	updateResponseJSON = `[{"error":0,"data":"Success","agent":12,"task_id":0,` +
		`"module":"upgrade_module","create_time":"2020/01/01"}]`

	// Whole-call answer the task manager sends for messages it cannot handle.
	objectResponseJSON = `{"error":1,"data":"Invalid message"}`
)

func testBatch() json.RawMessage {
	return json.RawMessage(requestJSON)
}

func testResults() []Result {
	return []Result{
		{Error: 0, Data: "Success", Agent: 12, TaskID: 100},
		{Error: 0, Data: "Success", Agent: 10, TaskID: 101},
	}
}

// assertSameJSON checks that got and want encode deep-equal JSON values.
func assertSameJSON(t *testing.T, got []byte, want string) {
	t.Helper()
	var g, w interface{}
	assert.NilError(t, json.Unmarshal(got, &g), "got %q", got)
	assert.NilError(t, json.Unmarshal([]byte(want), &w))
	assert.DeepEqual(t, g, w)
}

// testDialer records the transport calls made by the master path in order.
type testDialer struct {
	calls   []string
	path    string
	max     int
	dialErr error
	conn    *testConn
}

func (d *testDialer) Dial(path string, max int) (Conn, error) {
	d.calls = append(d.calls, "connect")
	d.path, d.max = path, max
	if d.dialErr != nil {
		return nil, d.dialErr
	}
	d.conn.d = d
	return d.conn, nil
}

type testConn struct {
	d       *testDialer
	sent    []string
	sendErr error
	resp    string
	recvErr error
	closed  int
}

func (c *testConn) Send(payload []byte) error {
	c.d.calls = append(c.d.calls, "send")
	c.sent = append(c.sent, string(payload))
	return c.sendErr
}

func (c *testConn) Recv() ([]byte, error) {
	c.d.calls = append(c.d.calls, "recv")
	if c.recvErr != nil {
		return nil, c.recvErr
	}
	return []byte(c.resp), nil
}

func (c *testConn) Close() error {
	c.d.calls = append(c.d.calls, "close")
	c.closed++
	return nil
}

// testSender records the batches given to it and the request id of each
// call.
type testSender struct {
	batches  []string
	requests []string
	resp     string
	err      error
}

func (s *testSender) SendBatch(ctx context.Context, batch json.RawMessage) (json.RawMessage, error) {
	s.batches = append(s.batches, string(batch))
	id, _ := RequestID(ctx)
	s.requests = append(s.requests, id)
	if s.err != nil {
		return nil, s.err
	}
	return json.RawMessage(s.resp), nil
}

// testRelay records the commands relayed to the master.
type testRelay struct {
	commands []string
	payloads []string
	resp     string
	err      error
	fn       func(payload []byte) []byte
}

func (r *testRelay) Send(command string, payload []byte) ([]byte, error) {
	r.commands = append(r.commands, command)
	r.payloads = append(r.payloads, string(payload))
	if r.err != nil {
		return nil, r.err
	}
	if r.fn != nil {
		return r.fn(payload), nil
	}
	return []byte(r.resp), nil
}

func assertNoCalls(t *testing.T, calls []string) {
	t.Helper()
	if len(calls) != 0 {
		t.Fatalf("unexpected transport calls: %v", calls)
	}
}
