package pool

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestTimerPool(t *testing.T) {
	t.Run("Get and Put", func(t *testing.T) {
		timer := GetTimer(time.Second)
		require.NotNil(t, timer)
		PutTimer(timer)

		timer = GetTimer(10 * time.Millisecond)
		<-timer.C
		PutTimer(timer)
	})

	t.Run("Put Active Timer", func(t *testing.T) {
		timer := GetTimer(50 * time.Millisecond)
		PutTimer(timer) // still running

		begin := time.Now()
		timer = GetTimer(100 * time.Millisecond)
		defer PutTimer(timer)

		select {
		case fired := <-timer.C:
			assert.GreaterOrEqual(t, fired.Sub(begin), 90*time.Millisecond)
		case <-time.After(time.Second):
			t.Fatal("timer did not fire")
		}
	})

	t.Run("Concurrency", func(t *testing.T) {
		var wg sync.WaitGroup
		for range 50 {
			wg.Add(1)
			go func() {
				defer wg.Done()
				timer := GetTimer(5 * time.Millisecond)
				defer PutTimer(timer)
				<-timer.C
			}()
		}
		wg.Wait()
	})
}

func TestSleep(t *testing.T) {
	begin := time.Now()
	require.NoError(t, Sleep(context.Background(), 20*time.Millisecond))
	assert.GreaterOrEqual(t, time.Since(begin), 20*time.Millisecond)

	require.NoError(t, Sleep(context.Background(), 0))

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	require.ErrorIs(t, Sleep(ctx, time.Hour), context.Canceled)
	require.ErrorIs(t, Sleep(ctx, 0), context.Canceled)
}
