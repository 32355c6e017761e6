// Package task describes the upgrade task tracked for a single agent.
package task

import (
	"strconv"
	"time"
)

// Module is the task manager module name upgrade tasks are filed under.
const Module = "upgrade_module"

// Commands understood by the task manager's upgrade module.
const (
	CommandUpgrade       = "upgrade"
	CommandUpgradeCustom = "upgrade_custom"
	CommandGetStatus     = "upgrade_get_status"
	CommandUpdateStatus  = "upgrade_update_status"
	CommandResult        = "upgrade_result"
	CommandCancel        = "upgrade_cancel_tasks"
)

// Statuses reported for a task by the upgrade workflow.
const (
	StatusPending    = "Pending"
	StatusInProgress = "In progress"
	StatusUpdated    = "Updated"
	StatusFailed     = "Failed"
	StatusCancelled  = "Cancelled"
	StatusTimeout    = "Timeout"
)

// AgentTask is the upgrade task state of one agent.
type AgentTask struct {
	// AgentID is the stable identifier of the fleet member.
	AgentID int
	// Info is nil until the task manager assigns a task id.
	Info *Info
	// Created is when tracking began, used by timeout sweeps.
	Created time.Time
}

// Info holds the task manager's view of the task. Extra carries fields
// attached by the upgrade workflow that are opaque to the registry.
type Info struct {
	TaskID  int
	Module  string
	Command string
	Status  string
	Extra   map[string]string
}

// New creates an AgentTask for agentID that will run command.
func New(agentID int, command string) *AgentTask {
	return &AgentTask{
		AgentID: agentID,
		Info: &Info{
			TaskID:  Unassigned,
			Module:  Module,
			Command: command,
			Status:  StatusPending,
		},
		Created: time.Now(),
	}
}

// Unassigned is the task id of a task the task manager has not answered for.
const Unassigned = -1

// Key is the registry key addressing agentID.
func Key(agentID int) string {
	return strconv.Itoa(agentID)
}

// Key returns the registry key of the task's agent.
func (t *AgentTask) Key() string {
	return Key(t.AgentID)
}

// TaskID returns the assigned task id or Unassigned.
func (t *AgentTask) TaskID() int {
	if t.Info == nil {
		return Unassigned
	}
	return t.Info.TaskID
}

// Assigned reports whether the task manager has assigned a task id.
func (t *AgentTask) Assigned() bool {
	return t.TaskID() != Unassigned
}

// SetTaskID records the task id, creating Info if the task has none yet.
func (t *AgentTask) SetTaskID(id int) {
	if t.Info == nil {
		t.Info = &Info{Module: Module}
	}
	t.Info.TaskID = id
}

// Command returns the command the task runs, if known.
func (t *AgentTask) Command() string {
	if t.Info == nil {
		return ""
	}
	return t.Info.Command
}

// Expired reports whether the task has been tracked longer than timeout.
func (t *AgentTask) Expired(now time.Time, timeout time.Duration) bool {
	if timeout <= 0 {
		return false
	}
	return now.Sub(t.Created) > timeout
}

// Clone returns a deep copy of the task.
func (t *AgentTask) Clone() *AgentTask {
	if t == nil {
		return nil
	}
	c := *t
	if t.Info != nil {
		info := *t.Info
		if t.Info.Extra != nil {
			info.Extra = make(map[string]string, len(t.Info.Extra))
			for k, v := range t.Info.Extra {
				info.Extra[k] = v
			}
		}
		c.Info = &info
	}
	return &c
}
