package registry

import (
	"sort"
	"sync"

	"github.com/amazonlinux/bottlerocket/taskwatch/pkg/logging"
	"github.com/amazonlinux/bottlerocket/taskwatch/pkg/task"
	"github.com/pkg/errors"
	"github.com/sirupsen/logrus"
)

var (
	// ErrDuplicate is returned when an agent is already tracked.
	ErrDuplicate = errors.New("agent task already tracked")
	// ErrNotFound is returned when an agent is not tracked.
	ErrNotFound = errors.New("agent task not found")
	// ErrInvalidAgent is returned for entries that cannot be stored.
	ErrInvalidAgent = errors.New("invalid agent task")
)

// Registry maps agent ids to their in-progress upgrade task.
type Registry struct {
	log logging.Logger

	mu    sync.RWMutex
	tasks map[string]*task.AgentTask
	// ids is kept sorted for cursor iteration.
	ids []int

	concluded *ConcludedCache
}

// New creates an empty Registry that remembers concluded tasks for the
// default retention.
func New(log logging.Logger) *Registry {
	return &Registry{
		log:       log,
		tasks:     make(map[string]*task.AgentTask),
		concluded: NewConcludedCache(defaultRetention),
	}
}

// Close releases the concluded task cache.
func (r *Registry) Close() {
	r.concluded.Stop()
}

// Create tracks t under agentID. The registry keeps its own copy of t.
// ErrDuplicate is returned, and nothing is changed, when agentID is already
// tracked.
func (r *Registry) Create(agentID int, t *task.AgentTask) error {
	if agentID <= 0 || t == nil {
		return errors.Wrapf(ErrInvalidAgent, "agent %d", agentID)
	}
	owned := t.Clone()
	owned.AgentID = agentID
	key := task.Key(agentID)

	r.mu.Lock()
	defer r.mu.Unlock()
	if _, exists := r.tasks[key]; exists {
		return ErrDuplicate
	}
	r.tasks[key] = owned
	i := sort.SearchInts(r.ids, agentID)
	r.ids = append(r.ids, 0)
	copy(r.ids[i+1:], r.ids[i:])
	r.ids[i] = agentID
	return nil
}

// Get returns a copy of the task tracked for agentID.
func (r *Registry) Get(agentID int) (*task.AgentTask, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	t, ok := r.tasks[task.Key(agentID)]
	if !ok {
		return nil, false
	}
	return t.Clone(), true
}

// Update replaces the task tracked for agentID with a copy of t.
func (r *Registry) Update(agentID int, t *task.AgentTask) error {
	if t == nil {
		return errors.Wrapf(ErrInvalidAgent, "agent %d", agentID)
	}
	owned := t.Clone()
	owned.AgentID = agentID
	key := task.Key(agentID)

	r.mu.Lock()
	defer r.mu.Unlock()
	if _, ok := r.tasks[key]; !ok {
		return ErrNotFound
	}
	r.tasks[key] = owned
	return nil
}

// AttachTaskID binds the task manager's taskID to the agent's task. A missing
// agent is logged and otherwise ignored since it may have concluded
// concurrently.
func (r *Registry) AttachTaskID(agentID int, taskID int) {
	t, ok := r.Get(agentID)
	if !ok {
		r.log.WithFields(logrus.Fields{
			"agent":   agentID,
			"task_id": taskID,
		}).Debug("no tracked task to attach task id to")
		return
	}
	t.SetTaskID(taskID)
	if err := r.Update(agentID, t); err != nil {
		r.log.WithError(err).WithFields(logrus.Fields{
			"agent":   agentID,
			"task_id": taskID,
		}).Debug("tracked task concluded before task id was attached")
	}
}

// Remove stops tracking agentID and hands the task back to the caller.
func (r *Registry) Remove(agentID int) (*task.AgentTask, error) {
	key := task.Key(agentID)

	r.mu.Lock()
	t, ok := r.tasks[key]
	if ok {
		delete(r.tasks, key)
		i := sort.SearchInts(r.ids, agentID)
		if i < len(r.ids) && r.ids[i] == agentID {
			r.ids = append(r.ids[:i], r.ids[i+1:]...)
		}
	}
	r.mu.Unlock()

	if !ok {
		return nil, ErrNotFound
	}
	r.concluded.Record(t)
	return t, nil
}

// Concluded returns the last task removed for agentID while it is retained.
func (r *Registry) Concluded(agentID int) (*task.AgentTask, bool) {
	t := r.concluded.Last(agentID)
	return t, t != nil
}

// Len reports the number of tracked agents.
func (r *Registry) Len() int {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return len(r.tasks)
}

// Iterate returns a cursor positioned before the first tracked agent.
func (r *Registry) Iterate() *Cursor {
	return &Cursor{r: r}
}

// next returns the tracked agent with the smallest id greater than after.
func (r *Registry) next(after int, first bool) (int, *task.AgentTask, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	i := 0
	if !first {
		i = sort.SearchInts(r.ids, after+1)
	}
	if i >= len(r.ids) {
		return 0, nil, false
	}
	id := r.ids[i]
	return id, r.tasks[task.Key(id)].Clone(), true
}
