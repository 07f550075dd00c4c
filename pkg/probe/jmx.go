package probe

import (
	"context"
	"fmt"
	"net"
	"time"

	"github.com/kafka-guardian/guardian/pkg/types"
)

// JMXProbe reports a node healthy if its JMX port accepts a TCP
// connection within the timeout. A full JMX/RMI client is outside
// this system's domain; the corpus offers no RMI
// library, so this probe treats JMX reachability as a TCP check
// against NodeConfig.JMXPort, which is the signal operators actually
// rely on when jmxterm or similar tooling isn't wired in.
type JMXProbe struct{}

// NewJMXProbe creates a JMX-port reachability probe.
func NewJMXProbe() *JMXProbe { return &JMXProbe{} }

func (p *JMXProbe) Check(ctx context.Context, node *types.NodeConfig, timeout time.Duration) Outcome {
	if node.JMXPort == 0 {
		return Unhealthy("no jmx_port configured for node")
	}

	dialer := &net.Dialer{Timeout: timeout}
	addr := fmt.Sprintf("%s:%d", node.Host, node.JMXPort)

	checkCtx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()

	conn, err := dialer.DialContext(checkCtx, "tcp", addr)
	if err != nil {
		return Unhealthy(fmt.Sprintf("jmx dial %s: %v", addr, err))
	}
	_ = conn.Close()
	return Healthy()
}
