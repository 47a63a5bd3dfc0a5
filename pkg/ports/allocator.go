package ports

import (
	"math/rand/v2"
	"sync"

	"go.uber.org/zap"

	srverrors "github.com/spreadshirt/s3gw-haproxy/pkg/errors"
)

const (
	DefaultLower    = 33 * 1024
	DefaultUpper    = 63 * 1024
	DefaultAttempts = 10

	maxPort = 65536
)

// Prober reports whether something already listens on a port. Implementations
// must not bind the port themselves: callers hand it to another process.
type Prober interface {
	InUse(port int) (bool, error)
}

// Allocator hands out free ports by random sampling. One Allocator is one
// allocation session: it never returns the same port twice, even if the
// process it was handed to has not bound it yet.
type Allocator struct {
	prober   Prober
	attempts int
	intn     func(n int) int

	mu     sync.Mutex
	handed map[int]struct{}
}

func NewAllocator(prober Prober, attempts int) *Allocator {
	if attempts <= 0 {
		attempts = DefaultAttempts
	}
	return &Allocator{
		prober:   prober,
		attempts: attempts,
		intn:     rand.IntN,
		handed:   make(map[int]struct{}),
	}
}

// Allocate returns a port in [lower, upper) that is not listened on and was not
// handed out before by this allocator. Freeness is best effort: the port may be
// taken by an unrelated process before the caller binds it.
func (a *Allocator) Allocate(lower, upper int) (int, error) {
	if lower < 1 || upper > maxPort || lower >= upper {
		return 0, srverrors.NewInvalidArgumentError("port range", "want 1 <= lower < upper <= 65536")
	}

	a.mu.Lock()
	defer a.mu.Unlock()

	for range a.attempts {
		port := lower + a.intn(upper-lower)
		if _, taken := a.handed[port]; taken {
			continue
		}
		busy, err := a.prober.InUse(port)
		if err != nil {
			return 0, err
		}
		if busy {
			zap.S().Debugw("port in use", "port", port)
			continue
		}
		a.handed[port] = struct{}{}
		return port, nil
	}

	return 0, srverrors.NewExhaustionError(lower, upper, a.attempts)
}
