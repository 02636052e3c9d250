package probe

import (
	"context"
	"errors"

	"github.com/hamed0406/serverwatch/internal/domain"
)

// Fallback tries each prober in order and returns the first success, so a
// server without a status endpoint still counts as online if its port answers.
type Fallback []Prober

func (f Fallback) Probe(ctx context.Context, addr domain.Address) (domain.ServiceSnapshot, error) {
	var errs []error
	for _, p := range f {
		if p == nil {
			continue
		}
		snap, err := p.Probe(ctx, addr)
		if err == nil {
			return snap, nil
		}
		errs = append(errs, err)
	}
	if len(errs) == 0 {
		return domain.ServiceSnapshot{}, fail(addr, "no_probers", nil)
	}
	return domain.ServiceSnapshot{}, fail(addr, "all_failed", errors.Join(errs...))
}
