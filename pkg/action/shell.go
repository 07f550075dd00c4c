package action

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/kafka-guardian/guardian/pkg/types"
)

// ShellAction runs an arbitrary shell command via "sh -c". Command may
// reference %s, substituted with the node's host.
type ShellAction struct {
	Command string
}

// NewShellAction creates a shell-command recovery action.
func NewShellAction(command string) *ShellAction {
	return &ShellAction{Command: command}
}

func (a *ShellAction) Execute(ctx context.Context, node *types.NodeConfig, timeout time.Duration) Result {
	command := a.Command
	if strings.Contains(command, "%s") {
		command = fmt.Sprintf(command, node.Host)
	}
	return runCommand(ctx, timeout, "sh", "-c", command)
}

// SystemctlAction restarts (or otherwise verbs) a systemd unit.
type SystemctlAction struct {
	Verb string
	Unit string
}

// NewSystemctlAction creates a systemctl-based recovery action, e.g.
// NewSystemctlAction("restart", "kafka").
func NewSystemctlAction(verb, unit string) *SystemctlAction {
	return &SystemctlAction{Verb: verb, Unit: unit}
}

func (a *SystemctlAction) Execute(ctx context.Context, node *types.NodeConfig, timeout time.Duration) Result {
	return runCommand(ctx, timeout, "systemctl", a.Verb, a.Unit)
}

// ScriptAction runs an operator-provided script with arguments.
type ScriptAction struct {
	Path string
	Args []string
}

// NewScriptAction creates a script-based recovery action.
func NewScriptAction(path string, args ...string) *ScriptAction {
	return &ScriptAction{Path: path, Args: args}
}

func (a *ScriptAction) Execute(ctx context.Context, node *types.NodeConfig, timeout time.Duration) Result {
	return runCommand(ctx, timeout, a.Path, a.Args...)
}
