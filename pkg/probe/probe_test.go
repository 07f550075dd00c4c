package probe

import (
	"context"
	"io"
	"net"
	"strconv"
	"strings"
	"testing"
	"time"

	"github.com/kafka-guardian/guardian/pkg/types"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func testNode(port int) *types.NodeConfig {
	return &types.NodeConfig{NodeID: "broker-1", NodeType: types.NodeTypeKafkaBroker, Host: "127.0.0.1", Port: port}
}

func listenerPort(t *testing.T, ln net.Listener) int {
	t.Helper()
	_, portStr, err := net.SplitHostPort(ln.Addr().String())
	require.NoError(t, err)
	port, err := strconv.Atoi(portStr)
	require.NoError(t, err)
	return port
}

func TestNewRegistryPrePopulatesBuiltins(t *testing.T) {
	r := NewRegistry()
	assert.ElementsMatch(t, []string{"tcp", "jmx", "zk_ruok"}, r.Names())
}

func TestRegistryValidateRejectsUnknownMethod(t *testing.T) {
	r := NewRegistry()
	assert.NoError(t, r.Validate([]string{"tcp", "jmx"}))

	err := r.Validate([]string{"tcp", "does_not_exist"})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "does_not_exist")
}

func TestTCPProbeHealthyWhenPortAccepts(t *testing.T) {
	ln, err := net.Listen("tcp", "127.0.0.1:0")
	require.NoError(t, err)
	defer ln.Close()
	go func() {
		for {
			conn, err := ln.Accept()
			if err != nil {
				return
			}
			conn.Close()
		}
	}()

	probe := NewTCPProbe()
	node := testNode(listenerPort(t, ln))
	outcome := probe.Check(context.Background(), node, time.Second)
	assert.True(t, outcome.Healthy)
}

func TestTCPProbeUnhealthyWhenNothingListening(t *testing.T) {
	ln, err := net.Listen("tcp", "127.0.0.1:0")
	require.NoError(t, err)
	port := listenerPort(t, ln)
	ln.Close()

	probe := NewTCPProbe()
	node := testNode(port)
	outcome := probe.Check(context.Background(), node, 200*time.Millisecond)
	assert.False(t, outcome.Healthy)
	assert.NotEmpty(t, outcome.Reason)
}

func TestJMXProbeUnhealthyWhenPortUnset(t *testing.T) {
	probe := NewJMXProbe()
	node := testNode(9092)
	node.JMXPort = 0

	outcome := probe.Check(context.Background(), node, time.Second)
	assert.False(t, outcome.Healthy)
	assert.Contains(t, outcome.Reason, "jmx_port")
}

func TestJMXProbeHealthyWhenJMXPortAccepts(t *testing.T) {
	ln, err := net.Listen("tcp", "127.0.0.1:0")
	require.NoError(t, err)
	defer ln.Close()
	go func() {
		for {
			conn, err := ln.Accept()
			if err != nil {
				return
			}
			conn.Close()
		}
	}()

	probe := NewJMXProbe()
	node := testNode(9092)
	node.JMXPort = listenerPort(t, ln)
	outcome := probe.Check(context.Background(), node, time.Second)
	assert.True(t, outcome.Healthy)
}

func serveZKReply(t *testing.T, reply string) net.Listener {
	t.Helper()
	ln, err := net.Listen("tcp", "127.0.0.1:0")
	require.NoError(t, err)
	go func() {
		conn, err := ln.Accept()
		if err != nil {
			return
		}
		defer conn.Close()
		// Four-letter commands are sent as exactly four bytes, no newline.
		_, _ = io.ReadFull(conn, make([]byte, 4))
		_, _ = conn.Write([]byte(reply))
	}()
	return ln
}

func TestZKFourLetterProbeHealthyOnExpectedReply(t *testing.T) {
	ln := serveZKReply(t, "imok\n")
	defer ln.Close()

	probe := NewZKFourLetterProbe("ruok", "imok")
	node := testNode(listenerPort(t, ln))
	outcome := probe.Check(context.Background(), node, time.Second)
	assert.True(t, outcome.Healthy)
}

func TestZKFourLetterProbeUnhealthyOnUnexpectedReply(t *testing.T) {
	ln := serveZKReply(t, "notok\n")
	defer ln.Close()

	probe := NewZKFourLetterProbe("ruok", "imok")
	node := testNode(listenerPort(t, ln))
	outcome := probe.Check(context.Background(), node, time.Second)
	assert.False(t, outcome.Healthy)
	assert.True(t, strings.Contains(outcome.Reason, "imok"))
}

func TestZKFourLetterProbeUnhealthyWhenUnreachable(t *testing.T) {
	ln, err := net.Listen("tcp", "127.0.0.1:0")
	require.NoError(t, err)
	port := listenerPort(t, ln)
	ln.Close()

	probe := NewZKFourLetterProbe("ruok", "imok")
	node := testNode(port)
	outcome := probe.Check(context.Background(), node, 200*time.Millisecond)
	assert.False(t, outcome.Healthy)
}
