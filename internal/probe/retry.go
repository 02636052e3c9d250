// internal/probe/retry.go
package probe

import (
	"context"
	"time"

	"github.com/hamed0406/serverwatch/internal/domain"
)

// RetryProber re-probes within a single poll cycle before reporting failure.
// The monitor's debounce still applies on top of this. Each attempt gets its
// own AttemptTimeout, so the caller's deadline must cover Budget().
type RetryProber struct {
	Inner          Prober
	Attempts       int
	Backoff        time.Duration
	AttemptTimeout time.Duration // 0 leaves attempts bounded only by ctx
}

func (r *RetryProber) attempts() int {
	if r.Attempts < 1 {
		return 1
	}
	return r.Attempts
}

// Budget is the longest a full run of attempts and backoffs can take.
func (r *RetryProber) Budget() time.Duration {
	n := time.Duration(r.attempts())
	return n*r.AttemptTimeout + (n-1)*r.Backoff
}

func (r *RetryProber) Probe(ctx context.Context, addr domain.Address) (domain.ServiceSnapshot, error) {
	attempts := r.attempts()
	var lastErr error
	for i := 0; i < attempts; i++ {
		snap, err := r.once(ctx, addr)
		if err == nil {
			return snap, nil
		}
		lastErr = err
		if i < attempts-1 {
			select {
			case <-ctx.Done():
				return domain.ServiceSnapshot{}, fail(addr, "cancelled", ctx.Err())
			case <-time.After(r.Backoff):
			}
		}
	}
	return domain.ServiceSnapshot{}, lastErr
}

func (r *RetryProber) once(ctx context.Context, addr domain.Address) (domain.ServiceSnapshot, error) {
	if r.AttemptTimeout <= 0 {
		return r.Inner.Probe(ctx, addr)
	}
	actx, cancel := context.WithTimeout(ctx, r.AttemptTimeout)
	defer cancel()
	return r.Inner.Probe(actx, addr)
}
