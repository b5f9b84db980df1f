package session

import (
	"context"
	"errors"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
)

func TestBackgroundJob_WaitBlocksUntilAllTasksFinish(t *testing.T) {
	job, _ := newBackgroundJob(context.Background())
	var done int32
	for i := 0; i < 5; i++ {
		job.Go(func() error {
			time.Sleep(5 * time.Millisecond)
			atomic.AddInt32(&done, 1)
			return nil
		})
	}
	job.Wait()
	assert.EqualValues(t, 5, atomic.LoadInt32(&done))
}

func TestBackgroundJob_TaskErrorDoesNotPropagateOrCancelSiblings(t *testing.T) {
	job, _ := newBackgroundJob(context.Background())
	var siblingRan int32

	job.Go(func() error { return errors.New("boom") })
	job.Go(func() error {
		atomic.AddInt32(&siblingRan, 1)
		return nil
	})

	job.Wait() // must not panic or block forever despite the failing task
	assert.EqualValues(t, 1, atomic.LoadInt32(&siblingRan))
}
