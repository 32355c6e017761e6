package upgrade

import (
	"context"
	"encoding/json"

	"github.com/amazonlinux/bottlerocket/taskwatch/pkg/cluster"
	"github.com/amazonlinux/bottlerocket/taskwatch/pkg/logging"
	"github.com/amazonlinux/bottlerocket/taskwatch/pkg/task"
)

// CommandUpgrade is the relayed command that starts upgrades on a running
// daemon.
const CommandUpgrade = "upgrade"

// Request asks a running daemon to upgrade a set of agents.
type Request struct {
	Agents  []int  `json:"agents"`
	Command string `json:"command,omitempty"`
}

// Tasks builds one task per requested agent.
func (r *Request) Tasks() []*task.AgentTask {
	command := r.Command
	if command == "" {
		command = task.CommandUpgrade
	}
	tasks := make([]*task.AgentTask, 0, len(r.Agents))
	for _, id := range r.Agents {
		tasks = append(tasks, task.New(id, command))
	}
	return tasks
}

type handlerReply struct {
	*Report
	Error string `json:"error,omitempty"`
}

// Handler answers relayed upgrade requests by dispatching them through d.
func Handler(log logging.Logger, d *Dispatcher) cluster.Handler {
	return func(payload []byte) []byte {
		var req Request
		if err := json.Unmarshal(payload, &req); err != nil {
			log.WithError(err).Warn("invalid upgrade request")
			return reply(handlerReply{Error: "invalid upgrade request"})
		}
		report, err := d.Dispatch(context.Background(), req.Tasks())
		if err != nil {
			log.WithError(err).Error("upgrade dispatch failed")
			return reply(handlerReply{Report: report, Error: err.Error()})
		}
		return reply(handlerReply{Report: report})
	}
}

func reply(r handlerReply) []byte {
	raw, _ := json.Marshal(r)
	return raw
}
