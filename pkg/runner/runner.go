package runner

import (
	"bytes"
	"context"
	"io"

	"github.com/dimiro1/banner"
)

type State int

const (
	StateNew State = iota
	StateStarting
	StateRunning
	StateDraining
	StateStopped
)

func (s State) String() string {
	switch s {
	case StateNew:
		return "new"
	case StateStarting:
		return "starting"
	case StateRunning:
		return "running"
	case StateDraining:
		return "draining"
	case StateStopped:
		return "stopped"
	default:
		return "unknown"
	}
}

type Runner interface {
	Run(ctx context.Context) error
	Stop() error
	State() State
}

// Hooks run around the running phase. An OnStart error aborts Run.
type Hooks struct {
	OnStart func(ctx context.Context) error
	OnStop  func()
}

// Drainer finishes in-flight work before the process exits.
type Drainer interface {
	Drain(ctx context.Context) error
}

// DrainFunc adapts a function to Drainer.
type DrainFunc func(ctx context.Context) error

func (f DrainFunc) Drain(ctx context.Context) error { return f(ctx) }

// Version is stamped at build time with -ldflags.
var Version = "dev"

// PrintBanner writes the startup banner to w; nil disables it.
func PrintBanner(w io.Writer) {
	if w == nil {
		return
	}
	tpl := "{{ .Title \"VOXA\" \"\" 0 }}\nVersion: " + Version + "\n"
	banner.Init(w, true, false, bytes.NewBufferString(tpl))
}
