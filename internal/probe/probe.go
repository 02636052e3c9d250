package probe

import (
	"context"
	"fmt"

	"github.com/hamed0406/serverwatch/internal/domain"
)

// Prober queries a game server for liveness and occupancy.
// Any failure (timeout, refused connection, malformed reply) is a *ProbeError.
type Prober interface {
	Probe(ctx context.Context, addr domain.Address) (domain.ServiceSnapshot, error)
}

// Func adapts a plain function to Prober.
type Func func(ctx context.Context, addr domain.Address) (domain.ServiceSnapshot, error)

func (f Func) Probe(ctx context.Context, addr domain.Address) (domain.ServiceSnapshot, error) {
	return f(ctx, addr)
}

type ProbeError struct {
	Addr   domain.Address
	Reason string
	Err    error
}

func (e *ProbeError) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("probe %s: %s: %v", e.Addr, e.Reason, e.Err)
	}
	return fmt.Sprintf("probe %s: %s", e.Addr, e.Reason)
}

func (e *ProbeError) Unwrap() error { return e.Err }

func fail(addr domain.Address, reason string, err error) error {
	return &ProbeError{Addr: addr, Reason: reason, Err: err}
}
