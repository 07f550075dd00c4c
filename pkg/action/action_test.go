package action

import (
	"context"
	"testing"
	"time"

	"github.com/kafka-guardian/guardian/pkg/types"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func testNode(host string) *types.NodeConfig {
	return &types.NodeConfig{NodeID: "broker-1", NodeType: types.NodeTypeKafkaBroker, Host: host, Port: 9092}
}

func TestRegistryRegisterAndLookup(t *testing.T) {
	r := NewRegistry()
	_, ok := r.Lookup("restart")
	assert.False(t, ok)

	r.Register("restart", NewShellAction("true"))
	executor, ok := r.Lookup("restart")
	require.True(t, ok)
	assert.NotNil(t, executor)
}

func TestRegistryNamesReflectsRegistered(t *testing.T) {
	r := NewRegistry()
	assert.Empty(t, r.Names())

	r.Register("restart", NewShellAction("true"))
	r.Register("reinstall", NewShellAction("true"))
	assert.ElementsMatch(t, []string{"restart", "reinstall"}, r.Names())
}

func TestRegistryValidateRejectsUnknownAction(t *testing.T) {
	r := NewRegistry()
	r.Register("restart", NewShellAction("true"))

	assert.NoError(t, r.Validate([]string{"restart"}))

	err := r.Validate([]string{"restart", "does_not_exist"})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "does_not_exist")
}

func TestExecutorFuncAdaptsPlainFunction(t *testing.T) {
	var called *types.NodeConfig
	fn := ExecutorFunc(func(ctx context.Context, node *types.NodeConfig, timeout time.Duration) Result {
		called = node
		return Result{ExitCode: 0}
	})

	node := testNode("broker-1.example")
	result := fn.Execute(context.Background(), node, time.Second)
	assert.Equal(t, 0, result.ExitCode)
	assert.Same(t, node, called)
}

func TestShellActionSubstitutesHostPlaceholder(t *testing.T) {
	action := NewShellAction("echo %s")
	node := testNode("broker-7.kafka.internal")

	result := action.Execute(context.Background(), node, time.Second)
	assert.Equal(t, 0, result.ExitCode)
	assert.Contains(t, result.Stdout, "broker-7.kafka.internal")
}

func TestShellActionLeavesCommandWithoutPlaceholderUnchanged(t *testing.T) {
	action := NewShellAction("echo fixed")
	node := testNode("broker-1")

	result := action.Execute(context.Background(), node, time.Second)
	assert.Equal(t, 0, result.ExitCode)
	assert.Contains(t, result.Stdout, "fixed")
}

func TestShellActionCapturesNonZeroExitCode(t *testing.T) {
	action := NewShellAction("exit 3")
	node := testNode("broker-1")

	result := action.Execute(context.Background(), node, time.Second)
	assert.Equal(t, 3, result.ExitCode)
}

func TestShellActionHonorsTimeout(t *testing.T) {
	action := NewShellAction("sleep 5")
	node := testNode("broker-1")

	start := time.Now()
	result := action.Execute(context.Background(), node, 50*time.Millisecond)
	assert.Less(t, time.Since(start), 4*time.Second)
	assert.NotEqual(t, 0, result.ExitCode)
}

func TestScriptActionPassesArguments(t *testing.T) {
	action := NewScriptAction("echo", "hello", "world")
	node := testNode("broker-1")

	result := action.Execute(context.Background(), node, time.Second)
	assert.Equal(t, 0, result.ExitCode)
	assert.Contains(t, result.Stdout, "hello world")
}

func TestSystemctlActionBuildsExpectedCommand(t *testing.T) {
	// systemctl may be unavailable in the test environment; only the
	// CommandExecuted bookkeeping is asserted, not success.
	action := NewSystemctlAction("restart", "kafka")
	node := testNode("broker-1")

	result := action.Execute(context.Background(), node, time.Second)
	assert.Contains(t, result.CommandExecuted, "systemctl")
	assert.Contains(t, result.CommandExecuted, "restart")
	assert.Contains(t, result.CommandExecuted, "kafka")
}
