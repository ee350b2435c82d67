package worker

import (
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestWorkerManager_ProcessesEveryJob(t *testing.T) {
	w := NewWorkerManager(16, 4, nil)

	var mu sync.Mutex
	seen := make(map[int]bool)
	var done sync.WaitGroup
	done.Add(20)
	w.SetWorker(func(_ int, job interface{}) {
		defer done.Done()
		mu.Lock()
		seen[job.(int)] = true
		mu.Unlock()
	})

	errCh := make(chan error, 1)
	go func() { errCh <- w.Start() }()

	for i := 0; i < 20; i++ {
		require.True(t, w.Enqueue(i))
	}
	done.Wait()
	assert.Len(t, seen, 20)

	w.Exit()
	select {
	case err := <-errCh:
		assert.ErrorIs(t, err, ErrWorkersTerminated)
	case <-time.After(2 * time.Second):
		t.Fatal("Start did not return after Exit")
	}
}

func TestWorkerManager_EnqueueAfterExit(t *testing.T) {
	w := NewWorkerManager(0, 1, nil)
	w.Exit()
	w.Exit()
	assert.False(t, w.Enqueue("late"))
}

func TestWorkerManager_StartWithoutHandler(t *testing.T) {
	w := NewWorkerManager(1, 1, nil)
	assert.Error(t, w.Start())
}

func TestWorkerManager_UsesWorkerIndexes(t *testing.T) {
	w := NewWorkerManager(8, 3, nil)
	var maxIndex atomic.Int32
	var done sync.WaitGroup
	done.Add(9)
	w.SetWorker(func(index int, _ interface{}) {
		defer done.Done()
		for {
			cur := maxIndex.Load()
			if int32(index) <= cur || maxIndex.CompareAndSwap(cur, int32(index)) {
				break
			}
		}
		time.Sleep(5 * time.Millisecond)
	})
	go func() { _ = w.Start() }()
	defer w.Exit()

	for i := 0; i < 9; i++ {
		w.Enqueue(i)
	}
	done.Wait()
	assert.Less(t, maxIndex.Load(), int32(3))
	assert.Zero(t, w.GetUnreadCount())
}
