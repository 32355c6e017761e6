package sigcontext

import (
	"context"
	"syscall"
	"testing"
	"time"

	"github.com/amazonlinux/bottlerocket/taskwatch/pkg/internal/testoutput"
	"github.com/amazonlinux/bottlerocket/taskwatch/pkg/logging"
	"gotest.tools/assert"
)

func TestSignalCancels(t *testing.T) {
	log := testoutput.Logger(t, logging.New("sigcontext"))
	ctx, cancel := WithSignalCancel(context.Background(), log, syscall.SIGUSR1)
	defer cancel()

	assert.NilError(t, syscall.Kill(syscall.Getpid(), syscall.SIGUSR1))

	select {
	case <-ctx.Done():
	case <-time.After(5 * time.Second):
		t.Fatal("context was not cancelled by signal")
	}
}

func TestParentCancels(t *testing.T) {
	log := testoutput.Logger(t, logging.New("sigcontext"))
	parent, parentCancel := context.WithCancel(context.Background())
	ctx, cancel := WithSignalCancel(parent, log, syscall.SIGUSR2)
	defer cancel()

	parentCancel()
	select {
	case <-ctx.Done():
	case <-time.After(5 * time.Second):
		t.Fatal("context was not cancelled by parent")
	}
	// Releasing twice is allowed.
	cancel()
}
