package probe

import (
	"context"
	"net"
	"time"

	"github.com/hamed0406/serverwatch/internal/domain"
)

var _ Prober = (*TCPProber)(nil)

// TCPProber treats an accepted TCP connection as "online". It reports no
// roster, so displays in occupancy mode show 0/0 for these targets.
type TCPProber struct {
	Timeout time.Duration
}

func NewTCPProber(timeout time.Duration) *TCPProber {
	return &TCPProber{Timeout: timeout}
}

func (p *TCPProber) Probe(ctx context.Context, addr domain.Address) (domain.ServiceSnapshot, error) {
	d := net.Dialer{Timeout: p.Timeout}
	conn, err := d.DialContext(ctx, "tcp", addr.String())
	if err != nil {
		return domain.ServiceSnapshot{}, fail(addr, "tcp_dial", err)
	}
	_ = conn.Close()
	return domain.ServiceSnapshot{}, nil
}
