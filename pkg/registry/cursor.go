package registry

import "github.com/amazonlinux/bottlerocket/taskwatch/pkg/task"

// Cursor walks a Registry one agent at a time. A Cursor cannot be rewound,
// call Iterate again to restart from the beginning.
type Cursor struct {
	r       *Registry
	started bool
	done    bool
	agentID int
	task    *task.AgentTask
}

// Next advances to the next tracked agent, reporting false once the walk
// has passed the last one.
func (c *Cursor) Next() bool {
	if c.done {
		return false
	}
	id, t, ok := c.r.next(c.agentID, !c.started)
	c.started = true
	if !ok {
		c.done = true
		c.task = nil
		return false
	}
	c.agentID, c.task = id, t
	return true
}

// AgentID is the agent the cursor is positioned on.
func (c *Cursor) AgentID() int {
	return c.agentID
}

// Task is a copy of the task of the agent the cursor is positioned on.
func (c *Cursor) Task() *task.AgentTask {
	return c.task
}
