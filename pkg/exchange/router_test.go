package exchange

import (
	"context"
	"testing"

	"github.com/amazonlinux/bottlerocket/taskwatch/pkg/cluster"
	"github.com/amazonlinux/bottlerocket/taskwatch/pkg/internal/testoutput"
	"github.com/amazonlinux/bottlerocket/taskwatch/pkg/logging"
	"github.com/pkg/errors"
	"gotest.tools/assert"
)

// testRole reports the next queued role on every call.
type testRole struct {
	roles []cluster.Role
	err   error
	calls int
}

func (r *testRole) Role() (cluster.Role, error) {
	r.calls++
	if r.err != nil {
		return "", r.err
	}
	role := r.roles[0]
	if len(r.roles) > 1 {
		r.roles = r.roles[1:]
	}
	return role, nil
}

func testRouter(t *testing.T, role cluster.RoleSource) (*Router, *testSender, *testSender) {
	master := &testSender{resp: responseJSON}
	worker := &testSender{resp: responseJSON}
	return NewRouter(testoutput.Logger(t, logging.New("router")), role, master, worker), master, worker
}

func TestRouterMaster(t *testing.T) {
	r, master, worker := testRouter(t, cluster.StaticRole(cluster.Master))

	resp, err := r.SendTasksInformation(context.Background(), testBatch())
	assert.NilError(t, err)
	assertSameJSON(t, resp, responseJSON)
	assert.Equal(t, len(master.batches), 1)
	assert.Equal(t, master.batches[0], requestJSON)
	assert.Equal(t, len(worker.batches), 0)
}

func TestRouterWorker(t *testing.T) {
	r, master, worker := testRouter(t, cluster.StaticRole(cluster.Worker))

	resp, err := r.SendTasksInformation(context.Background(), testBatch())
	assert.NilError(t, err)
	assertSameJSON(t, resp, responseJSON)
	assert.Equal(t, len(master.batches), 0)
	assert.Equal(t, len(worker.batches), 1)
}

func TestRouterReevaluatesRole(t *testing.T) {
	role := &testRole{roles: []cluster.Role{cluster.Master, cluster.Worker, cluster.Master}}
	r, master, worker := testRouter(t, role)

	for i := 0; i < 3; i++ {
		_, err := r.SendTasksInformation(context.Background(), testBatch())
		assert.NilError(t, err)
	}
	assert.Equal(t, role.calls, 3)
	assert.Equal(t, len(master.batches), 2)
	assert.Equal(t, len(worker.batches), 1)
}

func TestRouterRoleFailure(t *testing.T) {
	r, master, worker := testRouter(t, &testRole{err: errors.New("unreadable configuration")})

	results, err := r.SendTasksInformation(context.Background(), testBatch())
	assert.Check(t, results == nil)
	assert.Check(t, err != nil)
	assert.Equal(t, len(master.batches), 0)
	assert.Equal(t, len(worker.batches), 0)
}

func TestRouterUnknownRole(t *testing.T) {
	r, master, worker := testRouter(t, cluster.StaticRole("observer"))

	_, err := r.SendTasksInformation(context.Background(), testBatch())
	assert.Check(t, err != nil)
	assert.Equal(t, len(master.batches)+len(worker.batches), 0)
}

func TestRouterPropagatesFailure(t *testing.T) {
	r, master, _ := testRouter(t, cluster.StaticRole(cluster.Master))
	master.err = errors.WithMessage(ErrConnect, "refused")

	results, err := r.SendTasksInformation(context.Background(), testBatch())
	assert.Check(t, results == nil)
	assert.Equal(t, errors.Cause(err), ErrConnect)
}

func TestRouterMasterEndToEnd(t *testing.T) {
	conn := &testConn{resp: responseJSON}
	d := &testDialer{conn: conn}
	relay := &testRelay{resp: responseJSON}
	log := testoutput.Logger(t, logging.New("router"))
	r := NewRouter(log, cluster.StaticRole(cluster.Master),
		NewMasterWithDialer(log, testSocket, 0, d), NewWorker(log, relay))

	resp, err := r.SendTasksInformation(context.Background(), testBatch())
	assert.NilError(t, err)
	assertSameJSON(t, resp, responseJSON)
	assert.DeepEqual(t, d.calls, []string{"connect", "send", "recv", "close"})
	assert.Equal(t, len(relay.commands), 0)
}

func TestRouterWorkerEndToEnd(t *testing.T) {
	d := &testDialer{conn: &testConn{resp: responseJSON}}
	relay := &testRelay{resp: responseJSON}
	log := testoutput.Logger(t, logging.New("router"))
	r := NewRouter(log, cluster.StaticRole(cluster.Worker),
		NewMasterWithDialer(log, testSocket, 0, d), NewWorker(log, relay))

	resp, err := r.SendTasksInformation(context.Background(), testBatch())
	assert.NilError(t, err)
	assertSameJSON(t, resp, responseJSON)
	assertNoCalls(t, d.calls)
	assert.DeepEqual(t, relay.payloads, []string{envelopeJSON})
}

func TestRouterAssignsRequestID(t *testing.T) {
	r, master, _ := testRouter(t, cluster.StaticRole(cluster.Master))

	for i := 0; i < 2; i++ {
		_, err := r.SendTasksInformation(context.Background(), testBatch())
		assert.NilError(t, err)
	}
	assert.Equal(t, len(master.requests), 2)
	assert.Check(t, master.requests[0] != "")
	assert.Check(t, master.requests[0] != master.requests[1])
}

func TestRouterKeepsRequestID(t *testing.T) {
	r, _, worker := testRouter(t, cluster.StaticRole(cluster.Worker))

	_, err := r.SendTasksInformation(WithRequestID(context.Background(), "c0ffee"), testBatch())
	assert.NilError(t, err)
	assert.DeepEqual(t, worker.requests, []string{"c0ffee"})
}
