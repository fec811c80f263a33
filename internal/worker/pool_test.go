package worker

import (
	"context"
	"errors"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestPool_BoundsConcurrency(t *testing.T) {
	p := NewPool(2, nil, nil)

	var active, peak int32
	for i := 0; i < 6; i++ {
		p.Go(Job{Name: "turn", Run: func(context.Context) error {
			n := atomic.AddInt32(&active, 1)
			for {
				old := atomic.LoadInt32(&peak)
				if n <= old || atomic.CompareAndSwapInt32(&peak, old, n) {
					break
				}
			}
			time.Sleep(20 * time.Millisecond)
			atomic.AddInt32(&active, -1)
			return nil
		}})
	}
	p.Wait()

	assert.LessOrEqual(t, atomic.LoadInt32(&peak), int32(2))
	assert.Equal(t, int32(0), atomic.LoadInt32(&active))
}

func TestPool_OnErrorReceivesFailuresAndPanics(t *testing.T) {
	p := NewPool(1, nil, nil)

	var mu sync.Mutex
	failed := map[string]error{}
	p.OnError = func(ctx context.Context, job Job, err error) {
		assert.NoError(t, ctx.Err())
		mu.Lock()
		failed[job.TaskID] = err
		mu.Unlock()
	}

	boom := errors.New("boom")
	p.Go(Job{Name: "err", TaskID: "task_a", Run: func(context.Context) error { return boom }})
	p.Go(Job{Name: "panic", TaskID: "task_b", Run: func(context.Context) error { panic("bad state") }})
	p.Go(Job{Name: "ok", TaskID: "task_c", Run: func(context.Context) error { return nil }})
	p.Wait()

	require.Len(t, failed, 2)
	assert.ErrorIs(t, failed["task_a"], boom)
	assert.Contains(t, failed["task_b"].Error(), "bad state")
}

func TestPool_ShutdownCancelsJobs(t *testing.T) {
	p := NewPool(1, nil, nil)

	started := make(chan struct{})
	p.Go(Job{Name: "long", Run: func(ctx context.Context) error {
		close(started)
		<-ctx.Done()
		return ctx.Err()
	}})
	<-started

	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()
	require.NoError(t, p.Shutdown(ctx))
}
