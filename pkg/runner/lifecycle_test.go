package runner

import (
	"bytes"
	"context"
	"errors"
	"strings"
	"sync/atomic"
	"testing"
	"time"
)

func TestLifecycleRunnerDrainsOnCancel(t *testing.T) {
	var started, stopped atomic.Bool
	var drained atomic.Int32
	drain := DrainFunc(func(ctx context.Context) error {
		if ctx.Err() != nil {
			t.Errorf("drain context already done")
		}
		drained.Add(1)
		return nil
	})
	r := NewLifecycleRunner(drain, Hooks{
		OnStart: func(context.Context) error { started.Store(true); return nil },
		OnStop:  func() { stopped.Store(true) },
	}, time.Second)
	var out bytes.Buffer
	r.SetBannerOutput(&out)

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- r.Run(ctx) }()

	deadline := time.Now().Add(time.Second)
	for r.State() != StateRunning {
		if time.Now().After(deadline) {
			t.Fatalf("runner never reached running, state %s", r.State())
		}
		time.Sleep(5 * time.Millisecond)
	}
	cancel()
	if err := <-done; err != nil {
		t.Fatalf("run: %v", err)
	}
	if !started.Load() || !stopped.Load() {
		t.Fatalf("hooks not called: start=%v stop=%v", started.Load(), stopped.Load())
	}
	if drained.Load() != 1 {
		t.Fatalf("drained %d times", drained.Load())
	}
	if r.State() != StateStopped {
		t.Fatalf("state = %s", r.State())
	}
	if !strings.Contains(out.String(), "Version: "+Version) {
		t.Fatalf("banner missing version: %q", out.String())
	}
	if err := r.Stop(); err != nil {
		t.Fatalf("second stop: %v", err)
	}
	if drained.Load() != 1 {
		t.Fatalf("stop must drain once")
	}
}

func TestLifecycleRunnerStartFailure(t *testing.T) {
	boom := errors.New("boom")
	r := NewLifecycleRunner(nil, Hooks{OnStart: func(context.Context) error { return boom }}, time.Second)
	r.SetBannerOutput(nil)
	if err := r.Run(context.Background()); !errors.Is(err, boom) {
		t.Fatalf("err = %v", err)
	}
	if r.State() != StateStopped {
		t.Fatalf("state = %s", r.State())
	}
	if err := r.Run(context.Background()); err == nil {
		t.Fatalf("second run must fail")
	}
}

func TestLifecycleRunnerDrainTimeout(t *testing.T) {
	block := DrainFunc(func(ctx context.Context) error {
		<-ctx.Done()
		time.Sleep(50 * time.Millisecond)
		return nil
	})
	r := NewLifecycleRunner(block, Hooks{}, 20*time.Millisecond)
	r.SetBannerOutput(nil)
	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	if err := r.Run(ctx); !errors.Is(err, ErrDrainTimeout) {
		t.Fatalf("err = %v", err)
	}
}
