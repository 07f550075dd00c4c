package probe

import (
	"context"
	"fmt"
	"net"
	"time"

	"github.com/kafka-guardian/guardian/pkg/types"
)

// TCPProbe reports a node healthy if a TCP connection to host:port
// succeeds within the timeout. Grounded on the dial-and-close shape
// used throughout the corpus's own TCP health checkers.
type TCPProbe struct{}

// NewTCPProbe creates a TCP reachability probe.
func NewTCPProbe() *TCPProbe { return &TCPProbe{} }

func (p *TCPProbe) Check(ctx context.Context, node *types.NodeConfig, timeout time.Duration) Outcome {
	dialer := &net.Dialer{Timeout: timeout}
	addr := fmt.Sprintf("%s:%d", node.Host, node.Port)

	checkCtx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()

	conn, err := dialer.DialContext(checkCtx, "tcp", addr)
	if err != nil {
		return Unhealthy(fmt.Sprintf("tcp dial %s: %v", addr, err))
	}
	_ = conn.Close()
	return Healthy()
}
