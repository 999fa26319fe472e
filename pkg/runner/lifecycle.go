package runner

import (
	"context"
	"errors"
	"io"
	"os"
	"sync"
	"sync/atomic"
	"time"
)

var ErrDrainTimeout = errors.New("drain timeout")

type LifecycleRunner struct {
	state    int32
	ctx      context.Context
	cancel   context.CancelFunc
	onceStop sync.Once
	hooks    Hooks
	drainer  Drainer
	stopErr  error
	timeout  time.Duration
	banner   io.Writer
}

func NewLifecycleRunner(drainer Drainer, hooks Hooks, timeout time.Duration) *LifecycleRunner {
	if timeout <= 0 {
		timeout = 10 * time.Second
	}
	ctx, cancel := context.WithCancel(context.Background())
	return &LifecycleRunner{
		state:   int32(StateNew),
		ctx:     ctx,
		cancel:  cancel,
		hooks:   hooks,
		drainer: drainer,
		timeout: timeout,
		banner:  os.Stdout,
	}
}

// SetBannerOutput redirects the banner; nil disables it.
func (r *LifecycleRunner) SetBannerOutput(w io.Writer) {
	r.banner = w
}

// Run starts the hooks and blocks until ctx is done or Stop is called, then drains.
func (r *LifecycleRunner) Run(ctx context.Context) error {
	if !r.casState(StateNew, StateStarting) {
		return errors.New("invalid state transition")
	}
	PrintBanner(r.banner)
	if ctx != nil {
		r.ctx, r.cancel = context.WithCancel(ctx)
	}
	if r.hooks.OnStart != nil {
		if err := r.hooks.OnStart(r.ctx); err != nil {
			r.cancel()
			_ = r.stop()
			return err
		}
	}
	r.setState(StateRunning)
	<-r.ctx.Done()
	return r.stop()
}

func (r *LifecycleRunner) Stop() error {
	r.cancel()
	return r.stop()
}

func (r *LifecycleRunner) State() State {
	return State(atomic.LoadInt32(&r.state))
}

// stop drains with a fresh context since the run context is already cancelled.
func (r *LifecycleRunner) stop() error {
	r.onceStop.Do(func() {
		r.setState(StateDraining)
		if r.drainer != nil {
			ctx, cancel := context.WithTimeout(context.Background(), r.timeout)
			done := make(chan error, 1)
			go func() { done <- r.drainer.Drain(ctx) }()
			select {
			case err := <-done:
				r.stopErr = err
			case <-ctx.Done():
				r.stopErr = ErrDrainTimeout
			}
			cancel()
		}
		if r.hooks.OnStop != nil {
			r.hooks.OnStop()
		}
		r.setState(StateStopped)
	})
	return r.stopErr
}

func (r *LifecycleRunner) casState(from, to State) bool {
	return atomic.CompareAndSwapInt32(&r.state, int32(from), int32(to))
}

func (r *LifecycleRunner) setState(s State) {
	atomic.StoreInt32(&r.state, int32(s))
}
