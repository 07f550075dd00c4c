package notify

import (
	"context"
	"errors"
	"fmt"
	"net"
	"net/smtp"
	"strings"

	"github.com/kafka-guardian/guardian/pkg/types"
)

// SMTPNotifier delivers messages over SMTP using net/smtp; no
// third-party mail client appears anywhere in the retrieved corpus, so
// this wraps the standard library's plain-auth sender directly.
type SMTPNotifier struct {
	cfg types.NotificationConfig
}

// NewSMTPNotifier creates an SMTP-backed notifier from the loaded
// NotificationConfig.
func NewSMTPNotifier(cfg types.NotificationConfig) *SMTPNotifier {
	return &SMTPNotifier{cfg: cfg}
}

func (n *SMTPNotifier) Name() string { return "smtp" }

func (n *SMTPNotifier) Deliver(ctx context.Context, msg Message) DeliveryStatus {
	if len(n.cfg.Recipients) == 0 {
		return PermanentFailure
	}

	subject := msg.Subject
	if n.cfg.SubjectPrefix != "" {
		subject = n.cfg.SubjectPrefix + " " + subject
	}

	body := fmt.Sprintf("To: %s\r\nFrom: %s\r\nSubject: %s\r\n\r\n%s\r\n",
		strings.Join(n.cfg.Recipients, ", "), n.cfg.SenderEmail, subject, msg.Body)

	addr := net.JoinHostPort(n.cfg.SMTPHost, fmt.Sprintf("%d", n.cfg.SMTPPort))

	var auth smtp.Auth
	if n.cfg.SMTPUsername != "" {
		auth = smtp.PlainAuth("", n.cfg.SMTPUsername, n.cfg.SMTPPassword, n.cfg.SMTPHost)
	}

	err := smtp.SendMail(addr, auth, n.cfg.SenderEmail, n.cfg.Recipients, []byte(body))
	if err == nil {
		return Delivered
	}

	if isTemporarySMTPError(err) {
		return TransientFailure
	}
	return PermanentFailure
}

// isTemporarySMTPError treats network-layer failures (connection
// refused, timeout, DNS) as transient and everything else (auth
// rejection, malformed envelope) as permanent.
func isTemporarySMTPError(err error) bool {
	var netErr net.Error
	return errors.As(err, &netErr)
}
