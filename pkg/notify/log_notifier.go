package notify

import (
	"context"

	"github.com/kafka-guardian/guardian/pkg/log"
	"github.com/rs/zerolog"
)

// LogNotifier writes every message through the log sink. It always
// registers and never reports a failure, giving the dispatcher one
// delivery target that cannot itself be the source of a retry loop.
type LogNotifier struct {
	logger zerolog.Logger
}

// NewLogNotifier creates a LogNotifier.
func NewLogNotifier() *LogNotifier {
	return &LogNotifier{logger: log.WithComponent("notify.log")}
}

func (n *LogNotifier) Name() string { return "log" }

func (n *LogNotifier) Deliver(ctx context.Context, msg Message) DeliveryStatus {
	n.logger.Info().
		Str("message_id", msg.ID).
		Str("node_id", msg.NodeID).
		Int("priority", int(msg.Priority)).
		Str("subject", msg.Subject).
		Msg(msg.Body)
	return Delivered
}
