package registry

import (
	"time"

	"github.com/amazonlinux/bottlerocket/taskwatch/pkg/task"
	"github.com/karlseguin/ccache"
)

const (
	defaultRetention = time.Second * 15
)

// ConcludedCache remembers recently removed tasks so that late status lookups
// can report how an agent's task ended.
type ConcludedCache struct {
	cache     *ccache.Cache
	retention time.Duration
}

// NewConcludedCache creates a cache holding tasks for retention after their
// removal.
func NewConcludedCache(retention time.Duration) *ConcludedCache {
	return &ConcludedCache{
		cache:     ccache.New(ccache.Configure().MaxSize(1000).ItemsToPrune(100)),
		retention: retention,
	}
}

// Last returns the last concluded task of agentID.
func (c *ConcludedCache) Last(agentID int) *task.AgentTask {
	val := c.cache.Get(task.Key(agentID))
	if val == nil {
		return nil
	}
	if val.Expired() {
		return nil
	}
	t, ok := val.Value().(*task.AgentTask)
	if !ok {
		return nil
	}
	// Copy to protect against misuse of the cached task.
	return t.Clone()
}

// Record caches t as the most recently concluded task of its agent.
func (c *ConcludedCache) Record(t *task.AgentTask) {
	if t == nil {
		return
	}
	c.cache.Set(t.Key(), t.Clone(), c.retention)
}

// Stop terminates the cache's background worker.
func (c *ConcludedCache) Stop() {
	c.cache.Stop()
}
