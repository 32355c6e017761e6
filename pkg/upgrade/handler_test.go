package upgrade

import (
	"encoding/json"
	"testing"

	"github.com/amazonlinux/bottlerocket/taskwatch/pkg/internal/testoutput"
	"github.com/amazonlinux/bottlerocket/taskwatch/pkg/logging"
	"github.com/amazonlinux/bottlerocket/taskwatch/pkg/task"
	"gotest.tools/assert"
)

func TestRequestTasks(t *testing.T) {
	req := Request{Agents: []int{3, 4}}
	tasks := req.Tasks()
	assert.Equal(t, len(tasks), 2)
	assert.Equal(t, tasks[0].AgentID, 3)
	assert.Equal(t, tasks[1].Command(), task.CommandUpgrade)

	req.Command = task.CommandUpgradeCustom
	assert.Equal(t, req.Tasks()[0].Command(), task.CommandUpgradeCustom)
}

func TestHandler(t *testing.T) {
	reg := testRegistry(t)
	router := &testRouter{respond: acceptAll}
	log := testoutput.Logger(t, logging.New("dispatch"))
	h := Handler(log, NewDispatcher(log, reg, router))

	var got struct {
		Results []struct {
			Agent  int `json:"agent"`
			TaskID int `json:"task_id"`
		} `json:"results"`
		Error string `json:"error"`
	}
	assert.NilError(t, json.Unmarshal(h([]byte(`{"agents":[5]}`)), &got))
	assert.Equal(t, got.Error, "")
	assert.Equal(t, len(got.Results), 1)
	assert.Equal(t, got.Results[0].TaskID, 105)

	tracked, ok := reg.Get(5)
	assert.Check(t, ok)
	assert.Equal(t, tracked.TaskID(), 105)
}

func TestHandlerInvalid(t *testing.T) {
	reg := testRegistry(t)
	router := &testRouter{respond: acceptAll}
	log := testoutput.Logger(t, logging.New("dispatch"))
	h := Handler(log, NewDispatcher(log, reg, router))

	var got struct {
		Error string `json:"error"`
	}
	assert.NilError(t, json.Unmarshal(h([]byte(`not json`)), &got))
	assert.Equal(t, got.Error, "invalid upgrade request")
	assert.Equal(t, len(router.batches), 0)
}
