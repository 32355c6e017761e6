package registry

import (
	"fmt"
	"sync"
	"testing"

	"github.com/amazonlinux/bottlerocket/taskwatch/pkg/internal/testoutput"
	"github.com/amazonlinux/bottlerocket/taskwatch/pkg/logging"
	"github.com/amazonlinux/bottlerocket/taskwatch/pkg/task"
	"github.com/pkg/errors"
	"github.com/sirupsen/logrus"
	"gotest.tools/assert"
)

func testRegistry(t *testing.T) *Registry {
	r := New(testoutput.Logger(t, logging.New("registry")))
	t.Cleanup(r.Close)
	return r
}

func TestCreate(t *testing.T) {
	r := testRegistry(t)
	at := task.New(6, task.CommandUpgrade)

	assert.NilError(t, r.Create(6, at))

	got, ok := r.Get(6)
	assert.Check(t, ok)
	assert.DeepEqual(t, got, at)
	assert.Equal(t, r.Len(), 1)
}

func TestCreateDuplicate(t *testing.T) {
	r := testRegistry(t)
	original := task.New(6, task.CommandUpgrade)
	assert.NilError(t, r.Create(6, original))

	err := r.Create(6, task.New(6, task.CommandUpgradeCustom))
	assert.Equal(t, errors.Cause(err), ErrDuplicate)

	got, ok := r.Get(6)
	assert.Check(t, ok)
	assert.Equal(t, got.Command(), task.CommandUpgrade)
	assert.Equal(t, r.Len(), 1)
}

func TestCreateInvalid(t *testing.T) {
	r := testRegistry(t)

	assert.Equal(t, errors.Cause(r.Create(0, task.New(0, task.CommandUpgrade))), ErrInvalidAgent)
	assert.Equal(t, errors.Cause(r.Create(-3, task.New(-3, task.CommandUpgrade))), ErrInvalidAgent)
	assert.Equal(t, errors.Cause(r.Create(3, nil)), ErrInvalidAgent)
	assert.Equal(t, r.Len(), 0)
}

func TestCreateOwnsCopy(t *testing.T) {
	r := testRegistry(t)
	at := task.New(7, task.CommandUpgrade)
	assert.NilError(t, r.Create(7, at))

	at.SetTaskID(55)
	got, _ := r.Get(7)
	assert.Equal(t, got.TaskID(), task.Unassigned)

	got.SetTaskID(56)
	again, _ := r.Get(7)
	assert.Equal(t, again.TaskID(), task.Unassigned)
}

func TestAttachTaskID(t *testing.T) {
	r := testRegistry(t)
	assert.NilError(t, r.Create(8, task.New(8, task.CommandUpgrade)))

	r.AttachTaskID(8, 100)

	got, ok := r.Get(8)
	assert.Check(t, ok)
	assert.Equal(t, got.Info.TaskID, 100)
	assert.Equal(t, got.Command(), task.CommandUpgrade)
}

func TestAttachTaskIDMissing(t *testing.T) {
	rec := testoutput.Record(t)
	r := New(logging.New("registry"))
	defer r.Close()
	assert.NilError(t, r.Create(9, task.New(9, task.CommandUpgrade)))

	r.AttachTaskID(8, 100)

	assert.Equal(t, r.Len(), 1)
	_, ok := r.Get(8)
	assert.Check(t, !ok)
	got, _ := r.Get(9)
	assert.Equal(t, got.TaskID(), task.Unassigned)
	assert.Equal(t, len(rec.Messages(logrus.DebugLevel)), 1)
	assert.Equal(t, len(rec.Messages(logrus.ErrorLevel)), 0)
}

func TestAttachTaskIDWithoutInfo(t *testing.T) {
	r := testRegistry(t)
	assert.NilError(t, r.Create(4, &task.AgentTask{AgentID: 4}))

	r.AttachTaskID(4, 12)

	got, _ := r.Get(4)
	assert.Check(t, got.Info != nil)
	assert.Equal(t, got.TaskID(), 12)
}

func TestUpdate(t *testing.T) {
	r := testRegistry(t)
	assert.NilError(t, r.Create(3, task.New(3, task.CommandUpgrade)))

	got, _ := r.Get(3)
	got.Info.Status = task.StatusInProgress
	assert.NilError(t, r.Update(3, got))

	again, _ := r.Get(3)
	assert.Equal(t, again.Info.Status, task.StatusInProgress)

	assert.Equal(t, errors.Cause(r.Update(30, got)), ErrNotFound)
	assert.Equal(t, r.Len(), 1)
}

func TestRemove(t *testing.T) {
	r := testRegistry(t)
	at := task.New(10, task.CommandUpgrade)
	assert.NilError(t, r.Create(10, at))

	removed, err := r.Remove(10)
	assert.NilError(t, err)
	assert.DeepEqual(t, removed, at)

	_, ok := r.Get(10)
	assert.Check(t, !ok)
	assert.Equal(t, r.Len(), 0)

	concluded, ok := r.Concluded(10)
	assert.Check(t, ok)
	assert.Equal(t, concluded.AgentID, 10)
}

func TestRemoveMissing(t *testing.T) {
	r := testRegistry(t)
	assert.NilError(t, r.Create(11, task.New(11, task.CommandUpgrade)))

	removed, err := r.Remove(10)
	assert.Equal(t, errors.Cause(err), ErrNotFound)
	assert.Check(t, removed == nil)
	assert.Equal(t, r.Len(), 1)

	_, ok := r.Concluded(10)
	assert.Check(t, !ok)
}

func walk(r *Registry) []int {
	var ids []int
	for c := r.Iterate(); c.Next(); {
		ids = append(ids, c.AgentID())
	}
	return ids
}

func TestIterate(t *testing.T) {
	r := testRegistry(t)
	assert.Check(t, r.Iterate().Next() == false)

	for _, id := range []int{12, 3, 7, 100} {
		assert.NilError(t, r.Create(id, task.New(id, task.CommandUpgrade)))
	}

	c := r.Iterate()
	assert.Check(t, c.Next())
	assert.Equal(t, c.AgentID(), 3)
	assert.Equal(t, c.Task().AgentID, 3)

	assert.DeepEqual(t, walk(r), []int{3, 7, 12, 100})
}

func TestIterateWhileMutating(t *testing.T) {
	r := testRegistry(t)
	for _, id := range []int{1, 2, 3, 4} {
		assert.NilError(t, r.Create(id, task.New(id, task.CommandUpgrade)))
	}

	var ids []int
	c := r.Iterate()
	for c.Next() {
		ids = append(ids, c.AgentID())
		if c.AgentID() == 2 {
			// Removing the current and a later entry, and adding an earlier
			// one, must not disturb the walk.
			_, err := r.Remove(2)
			assert.NilError(t, err)
			_, err = r.Remove(3)
			assert.NilError(t, err)
			assert.NilError(t, r.Create(1000, task.New(1000, task.CommandUpgrade)))
		}
	}
	assert.DeepEqual(t, ids, []int{1, 2, 4, 1000})
	assert.Check(t, !c.Next())
}

func TestConcurrentAccess(t *testing.T) {
	r := testRegistry(t)

	var wg sync.WaitGroup
	for worker := 0; worker < 8; worker++ {
		wg.Add(1)
		go func(worker int) {
			defer wg.Done()
			for i := 1; i <= 50; i++ {
				id := worker*1000 + i
				if err := r.Create(id, task.New(id, task.CommandUpgrade)); err != nil {
					t.Errorf("create %d: %v", id, err)
					return
				}
				r.AttachTaskID(id, id*10)
				walk(r)
				if i%2 == 0 {
					if _, err := r.Remove(id); err != nil {
						t.Errorf("remove %d: %v", id, err)
					}
				}
			}
		}(worker)
	}
	wg.Wait()

	assert.Equal(t, r.Len(), 8*25)
	for c := r.Iterate(); c.Next(); {
		assert.Equal(t, c.Task().TaskID(), c.AgentID()*10, fmt.Sprintf("agent %d", c.AgentID()))
	}
}
