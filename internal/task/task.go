// Package task manages the goroutines of long-running servers: one per
// accepted connection plus periodic housekeeping.
package task

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"sync/atomic"
	"time"

	"github.com/arloliu/go-fujibus/logger"
)

// ErrStopped is returned when starting a task on a stopped Manager.
var ErrStopped = errors.New("task: manager already stopped")

// LoopFunc is one iteration of a looping task. It returns false to stop.
type LoopFunc func() bool

// Func is a task run once with the manager context.
type Func func(ctx context.Context)

// Manager starts goroutines bound to a shared context and waits for them.
//
// Example:
//
//	mgr := task.NewManager(ctx, logger)
//	_ = mgr.Go("conn-1", func(ctx context.Context) { serve(ctx, conn) })
//	_, _ = mgr.StartInterval("reaper", reap, time.Second, false)
//
//	mgr.Stop()
//	mgr.Wait()
type Manager struct {
	pctx    context.Context
	ctx     context.Context
	cancel  context.CancelFunc
	wg      sync.WaitGroup
	logger  logger.Logger
	count   atomic.Int32
	tickers sync.Map     // map[string]*time.Ticker
	mu      sync.RWMutex // protect ctx and cancel
	taskMu  sync.RWMutex // protect task creation during Wait()
}

// NewManager creates a Manager whose tasks stop when ctx is done or Stop is called.
func NewManager(ctx context.Context, l logger.Logger) *Manager {
	mgr := &Manager{pctx: ctx, logger: l}
	mgr.ctx, mgr.cancel = context.WithCancel(ctx)

	return mgr
}

func (mgr *Manager) getContext() context.Context {
	mgr.mu.RLock()
	defer mgr.mu.RUnlock()

	return mgr.ctx
}

// Context returns the context shared by the running tasks.
func (mgr *Manager) Context() context.Context {
	return mgr.getContext()
}

// Go runs fn once in a new goroutine.
func (mgr *Manager) Go(name string, fn Func) error {
	mgr.logger.Debug("start task", "name", name)

	ctx := mgr.getContext()
	if ctx.Err() != nil {
		return ErrStopped
	}

	mgr.spawn(name, func() {
		mgr.callWithRecover(name, func() { fn(ctx) })
	})

	return nil
}

// Start runs fn repeatedly in a new goroutine until it returns false or the
// manager stops.
func (mgr *Manager) Start(name string, fn LoopFunc) error {
	mgr.logger.Debug("start loop task", "name", name)

	if mgr.getContext().Err() != nil {
		return ErrStopped
	}

	mgr.spawn(name, func() {
		for {
			if mgr.getContext().Err() != nil {
				return
			}
			if !mgr.callWithRecoverBool(name, fn) {
				return
			}
		}
	})

	return nil
}

// StartInterval runs fn every interval until it returns false or the manager
// stops. If runNow is true fn also runs once before the first tick.
func (mgr *Manager) StartInterval(name string, fn LoopFunc, interval time.Duration, runNow bool) (*time.Ticker, error) {
	mgr.logger.Debug("start interval task", "name", name, "interval", interval, "runNow", runNow)

	if interval <= 0 {
		return nil, fmt.Errorf("task: invalid interval %v", interval)
	}

	ctx := mgr.getContext()
	if ctx.Err() != nil {
		return nil, ErrStopped
	}

	ticker := time.NewTicker(interval)
	if _, loaded := mgr.tickers.LoadOrStore(name, ticker); loaded {
		ticker.Stop()
		return nil, fmt.Errorf("task: interval task %s already exists", name)
	}

	cleanup := func() {
		ticker.Stop()
		mgr.tickers.Delete(name)
	}

	if runNow && !mgr.callWithRecoverBool(name, fn) {
		cleanup()
		return ticker, nil
	}

	mgr.spawn(name, func() {
		defer cleanup()

		for {
			select {
			case <-ctx.Done():
				return
			case <-ticker.C:
				if !mgr.callWithRecoverBool(name, fn) {
					return
				}
			}
		}
	})

	return ticker, nil
}

// Stop signals all running tasks.
func (mgr *Manager) Stop() {
	mgr.tickers.Range(func(_, value any) bool {
		if ticker, ok := value.(*time.Ticker); ok {
			ticker.Stop()
		}

		return true
	})

	mgr.mu.Lock()
	mgr.cancel()
	mgr.mu.Unlock()
}

// Wait blocks until all tasks have returned. The manager can be reused
// afterwards unless its parent context is done.
func (mgr *Manager) Wait() {
	mgr.taskMu.Lock()
	defer mgr.taskMu.Unlock()

	mgr.wg.Wait()

	mgr.mu.Lock()
	mgr.ctx, mgr.cancel = context.WithCancel(mgr.pctx)
	mgr.mu.Unlock()
}

// TaskCount returns the number of running tasks.
func (mgr *Manager) TaskCount() int {
	return int(mgr.count.Load())
}

func (mgr *Manager) spawn(name string, body func()) {
	mgr.taskMu.RLock()
	defer mgr.taskMu.RUnlock()

	mgr.wg.Add(1)
	mgr.count.Add(1)

	go func() {
		defer func() {
			mgr.count.Add(-1)
			mgr.logger.Debug("task terminated", "name", name, "task_count", mgr.TaskCount())
			mgr.wg.Done()
		}()

		body()
	}()
}

func (mgr *Manager) callWithRecover(name string, fn func()) {
	defer func() {
		if r := recover(); r != nil {
			mgr.logger.Error("panic in task", "name", name, "panic", r)
		}
	}()

	fn()
}

func (mgr *Manager) callWithRecoverBool(name string, fn func() bool) (ok bool) {
	defer func() {
		if r := recover(); r != nil {
			mgr.logger.Error("panic in task", "name", name, "panic", r)
			ok = false
		}
	}()

	return fn()
}
