package upgrade

import (
	"context"
	"time"

	"github.com/amazonlinux/bottlerocket/taskwatch/pkg/logging"
	"github.com/amazonlinux/bottlerocket/taskwatch/pkg/registry"
	"github.com/amazonlinux/bottlerocket/taskwatch/pkg/task"
	"github.com/sirupsen/logrus"
)

// Sweeper periodically drops tasks that have been tracked for too long.
type Sweeper struct {
	log      logging.Logger
	registry *registry.Registry
	interval time.Duration
	timeout  time.Duration
	now      func() time.Time
	update   func(agentID int, t *task.AgentTask) error
}

// NewSweeper creates a Sweeper checking reg every interval for tasks older
// than timeout.
func NewSweeper(log logging.Logger, reg *registry.Registry, interval, timeout time.Duration) *Sweeper {
	return &Sweeper{
		log:      log,
		registry: reg,
		interval: interval,
		timeout:  timeout,
		now:      time.Now,
		update:   reg.Update,
	}
}

// Run sweeps until ctx is done.
func (s *Sweeper) Run(ctx context.Context) error {
	s.log.Debug("starting")
	defer s.log.Debug("finished")

	timer := time.NewTimer(s.interval)
	defer timer.Stop()

	for {
		select {
		case <-ctx.Done():
			return nil
		case <-timer.C:
			s.Sweep()
		}
		timer.Reset(s.interval)
	}
}

// Sweep walks the registry once and removes every expired task, returning
// the removed tasks.
func (s *Sweeper) Sweep() []*task.AgentTask {
	now := s.now()
	var swept []*task.AgentTask
	for c := s.registry.Iterate(); c.Next(); {
		t := c.Task()
		if !t.Expired(now, s.timeout) {
			continue
		}
		log := s.log.WithFields(logrus.Fields{
			"agent":   c.AgentID(),
			"task_id": t.TaskID(),
		})
		if t.Info != nil {
			t.Info.Status = task.StatusTimeout
			if err := s.update(c.AgentID(), t); err != nil {
				log.WithError(err).Debug("unable to mark expired task")
			}
		}
		removed, err := s.registry.Remove(c.AgentID())
		if err != nil {
			log.WithError(err).Debug("expired task already concluded")
			continue
		}
		log.Warn("upgrade task timed out")
		swept = append(swept, removed)
	}
	return swept
}
