package probe

import (
	"bufio"
	"context"
	"fmt"
	"net"
	"strings"
	"time"

	"github.com/kafka-guardian/guardian/pkg/types"
)

// ZKFourLetterProbe sends a ZooKeeper four-letter command (e.g. "ruok")
// over a raw TCP connection and checks the response for an expected
// substring (e.g. "imok"). This is the standard ZooKeeper health-check
// protocol; no ZK client library appears in the corpus, so the probe
// speaks the wire protocol directly, same as the TCP probe's dial shape.
type ZKFourLetterProbe struct {
	Command  string
	Expected string
}

// NewZKFourLetterProbe creates a probe that sends command and expects
// the response to contain expected.
func NewZKFourLetterProbe(command, expected string) *ZKFourLetterProbe {
	return &ZKFourLetterProbe{Command: command, Expected: expected}
}

func (p *ZKFourLetterProbe) Check(ctx context.Context, node *types.NodeConfig, timeout time.Duration) Outcome {
	dialer := &net.Dialer{Timeout: timeout}
	addr := fmt.Sprintf("%s:%d", node.Host, node.Port)

	checkCtx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()

	conn, err := dialer.DialContext(checkCtx, "tcp", addr)
	if err != nil {
		return Unhealthy(fmt.Sprintf("zk dial %s: %v", addr, err))
	}
	defer conn.Close()

	deadline := time.Now().Add(timeout)
	_ = conn.SetDeadline(deadline)

	if _, err := conn.Write([]byte(p.Command)); err != nil {
		return Unhealthy(fmt.Sprintf("zk write %s: %v", p.Command, err))
	}

	reply, err := bufio.NewReader(conn).ReadString('\n')
	if err != nil && reply == "" {
		return Unhealthy(fmt.Sprintf("zk read reply to %s: %v", p.Command, err))
	}

	if !strings.Contains(reply, p.Expected) {
		return Unhealthy(fmt.Sprintf("zk %s reply %q missing %q", p.Command, strings.TrimSpace(reply), p.Expected))
	}
	return Healthy()
}
