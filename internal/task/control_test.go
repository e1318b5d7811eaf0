package task

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestControlCancelIsOneWay(t *testing.T) {
	c := NewControl()
	assert.False(t, c.Cancelled())
	c.RequestCancel()
	assert.True(t, c.Cancelled())
	c.RequestCancel()
	assert.True(t, c.Cancelled())
}

func TestControlWaitIfPausedBlocksUntilResume(t *testing.T) {
	c := NewControl()
	c.Pause()
	require.True(t, c.Paused())

	released := make(chan error, 1)
	go func() {
		released <- c.WaitIfPaused(context.Background())
	}()

	select {
	case <-released:
		t.Fatal("wait returned while still paused")
	case <-time.After(50 * time.Millisecond):
	}

	c.Resume()
	select {
	case err := <-released:
		require.NoError(t, err)
	case <-time.After(time.Second):
		t.Fatal("wait did not release after resume")
	}
}

func TestControlCancelWakesPausedWaiter(t *testing.T) {
	c := NewControl()
	c.Pause()

	released := make(chan error, 1)
	go func() {
		released <- c.WaitIfPaused(context.Background())
	}()

	time.Sleep(20 * time.Millisecond)
	c.RequestCancel()

	select {
	case err := <-released:
		require.NoError(t, err)
		assert.True(t, c.Cancelled())
	case <-time.After(time.Second):
		t.Fatal("cancel did not wake the paused waiter")
	}
}

func TestControlWaitIfPausedContext(t *testing.T) {
	c := NewControl()
	c.Pause()

	ctx, cancel := context.WithTimeout(context.Background(), 50*time.Millisecond)
	defer cancel()
	assert.Error(t, c.WaitIfPaused(ctx))
}
