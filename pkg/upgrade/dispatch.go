// Package upgrade binds agents entering the upgrade workflow to the tasks the
// task manager creates for them.
package upgrade

import (
	"context"
	"encoding/json"

	"github.com/amazonlinux/bottlerocket/taskwatch/pkg/exchange"
	"github.com/amazonlinux/bottlerocket/taskwatch/pkg/logging"
	"github.com/amazonlinux/bottlerocket/taskwatch/pkg/registry"
	"github.com/amazonlinux/bottlerocket/taskwatch/pkg/task"
	"github.com/pkg/errors"
	"github.com/sirupsen/logrus"
)

// Router delivers task information to the task manager.
type Router interface {
	SendTasksInformation(ctx context.Context, batch json.RawMessage) (json.RawMessage, error)
}

// Report describes the outcome of a dispatch.
type Report struct {
	// Results is the task manager's answer exactly as it was returned.
	Results json.RawMessage `json:"results,omitempty"`
	// Duplicates are agents that already had a task in progress and were not
	// sent.
	Duplicates []int `json:"duplicates,omitempty"`
	// Unanswered are agents the task manager returned no result for. They stay
	// tracked until they conclude or time out.
	Unanswered []int `json:"unanswered,omitempty"`
	// Ignored are agents the answer carried results for although they were
	// not part of the batch.
	Ignored []int `json:"ignored,omitempty"`
}

// Dispatcher tracks agents in the registry and requests their tasks.
type Dispatcher struct {
	log      logging.Logger
	registry *registry.Registry
	router   Router
}

// NewDispatcher creates a Dispatcher tracking tasks in reg.
func NewDispatcher(log logging.Logger, reg *registry.Registry, router Router) *Dispatcher {
	return &Dispatcher{log: log, registry: reg, router: router}
}

// Dispatch starts tracking tasks and asks the task manager to create them in a
// single batch. Accepted agents have their task id bound; agents the task
// manager rejected stop being tracked. Results are applied only to agents of
// this batch. If the round trip fails or the answer is not a result batch,
// every agent this call started tracking is dropped again.
func (d *Dispatcher) Dispatch(ctx context.Context, tasks []*task.AgentTask) (*Report, error) {
	report := &Report{}
	var batch []exchange.Request
	for _, t := range tasks {
		if t == nil {
			d.rollback(batch)
			return report, errors.WithMessage(registry.ErrInvalidAgent, "nil task")
		}
		err := d.registry.Create(t.AgentID, t)
		switch {
		case errors.Cause(err) == registry.ErrDuplicate:
			d.log.WithField("agent", t.AgentID).Warn("upgrade already in progress for agent")
			report.Duplicates = append(report.Duplicates, t.AgentID)
			continue
		case err != nil:
			d.rollback(batch)
			return report, errors.WithMessagef(err, "unable to track agent %d", t.AgentID)
		}
		batch = append(batch, request(t))
	}
	if len(batch) == 0 {
		return report, nil
	}

	raw, err := exchange.EncodeRequests(batch)
	if err != nil {
		d.rollback(batch)
		return report, err
	}
	resp, err := d.router.SendTasksInformation(ctx, raw)
	if err != nil {
		d.rollback(batch)
		return report, errors.WithMessage(err, "unable to create upgrade tasks")
	}
	report.Results = resp

	results, err := exchange.DecodeResults(resp)
	if err != nil {
		d.log.WithError(err).WithField("answer", string(resp)).Warn("task manager did not create tasks")
		d.rollback(batch)
		return report, err
	}

	sent := make(map[int]bool, len(batch))
	for _, req := range batch {
		sent[req.Agent] = true
	}
	answered := make(map[int]bool, len(results))
	for _, res := range results {
		log := d.log.WithFields(logrus.Fields{"agent": res.Agent, "task_id": res.TaskID})
		if !sent[res.Agent] {
			log.Warn("ignoring result for agent outside the batch")
			report.Ignored = append(report.Ignored, res.Agent)
			continue
		}
		if answered[res.Agent] {
			log.Warn("ignoring repeated result for agent")
			continue
		}
		answered[res.Agent] = true
		if res.OK() {
			d.registry.AttachTaskID(res.Agent, res.TaskID)
			log.Debug("task created")
			continue
		}
		log.WithField("reason", res.Data).Warn("task manager rejected task")
		d.remove(res.Agent)
	}
	for _, req := range batch {
		if !answered[req.Agent] {
			d.log.WithField("agent", req.Agent).Warn("task manager returned no result for agent")
			report.Unanswered = append(report.Unanswered, req.Agent)
		}
	}
	return report, nil
}

func (d *Dispatcher) rollback(batch []exchange.Request) {
	for _, req := range batch {
		d.remove(req.Agent)
	}
}

func (d *Dispatcher) remove(agentID int) {
	if _, err := d.registry.Remove(agentID); err != nil {
		d.log.WithError(err).WithField("agent", agentID).Error("unable to stop tracking agent task")
	}
}

func request(t *task.AgentTask) exchange.Request {
	req := exchange.Request{
		Module:  task.Module,
		Command: t.Command(),
		Agent:   t.AgentID,
	}
	if t.Info != nil && t.Info.Module != "" {
		req.Module = t.Info.Module
	}
	return req
}
