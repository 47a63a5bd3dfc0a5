package scenario

import (
	"context"
	"time"

	"github.com/spreadshirt/s3gw-haproxy/internal/queue"
	"github.com/spreadshirt/s3gw-haproxy/pkg/supervisor"
)

// PortAllocator hands out ports that are free at the time of the call.
type PortAllocator interface {
	Allocate(lower, upper int) (int, error)
}

// Process is a launched external program.
type Process interface {
	Pid() int
	Stop() error
	Kill() error
	Wait(timeout time.Duration) error
	Done() <-chan struct{}
	ExitErr() error
}

// Launcher starts external programs by name.
type Launcher interface {
	Start(name string, argv ...string) (Process, error)
}

// QueueObserver reads queue state from the store.
type QueueObserver interface {
	Length(ctx context.Context, key string) (int64, error)
	Events(ctx context.Context, key string) ([]queue.Event, error)
	Ping(ctx context.Context) error
}

// ObserverFactory returns an observer for the store listening on addr.
type ObserverFactory func(addr string) QueueObserver

func newQueueObserver(addr string) QueueObserver {
	return queue.NewObserver(addr)
}

type supervisorLauncher struct {
	sup *supervisor.Supervisor
}

// NewSupervisorLauncher launches real processes through sup.
func NewSupervisorLauncher(sup *supervisor.Supervisor) Launcher {
	return &supervisorLauncher{sup: sup}
}

func (l *supervisorLauncher) Start(name string, argv ...string) (Process, error) {
	p, err := l.sup.Start(name, argv...)
	if err != nil {
		return nil, err
	}
	return p, nil
}
