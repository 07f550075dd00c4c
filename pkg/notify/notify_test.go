package notify

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type recordingNotifier struct {
	name string

	mu       sync.Mutex
	delivered []Message
	statusFn func(msg Message) DeliveryStatus
}

func (n *recordingNotifier) Name() string { return n.name }

func (n *recordingNotifier) Deliver(ctx context.Context, msg Message) DeliveryStatus {
	n.mu.Lock()
	defer n.mu.Unlock()
	status := Delivered
	if n.statusFn != nil {
		status = n.statusFn(msg)
	}
	if status == Delivered {
		n.delivered = append(n.delivered, msg)
	}
	return status
}

func (n *recordingNotifier) deliveredMessages() []Message {
	n.mu.Lock()
	defer n.mu.Unlock()
	return append([]Message(nil), n.delivered...)
}

func TestDispatcherDeliversFailureAlertsBeforeRecoveryConfirmations(t *testing.T) {
	d := New()
	rec := &recordingNotifier{name: "rec"}
	d.RegisterNotifier(rec)

	// Enqueue out of priority order: confirmation first, then alert.
	d.SendRecoveryConfirmation("n1", "recovered", "n1 is back")
	d.SendFailureAlert("n2", "down", "n2 is unhealthy")

	d.deliverReady()

	msgs := rec.deliveredMessages()
	require.Len(t, msgs, 2)
	assert.Equal(t, PriorityFailureAlert, msgs[0].Priority)
	assert.Equal(t, PriorityRecoveryConfirmation, msgs[1].Priority)
}

func TestDispatcherRetriesTransientFailureAndEventuallyDelivers(t *testing.T) {
	d := New()
	d.maxRetries = 10

	var attempts int
	rec := &recordingNotifier{
		name: "flaky",
		statusFn: func(msg Message) DeliveryStatus {
			attempts++
			if attempts < 2 {
				return TransientFailure
			}
			return Delivered
		},
	}
	d.RegisterNotifier(rec)

	d.SendFailureAlert("n1", "down", "n1 is unhealthy")
	d.deliverReady()

	// Force the retry entry to be immediately due.
	d.mu.Lock()
	for i := range d.retryQueue {
		d.retryQueue[i].readyAt = time.Now().Add(-time.Millisecond)
	}
	d.mu.Unlock()

	d.deliverReady()

	assert.Len(t, rec.deliveredMessages(), 1)
	assert.Equal(t, 2, attempts)
}

func TestDispatcherDropsMessageAfterMaxRetries(t *testing.T) {
	d := New()
	d.maxRetries = 1

	rec := &recordingNotifier{
		name: "always-transient",
		statusFn: func(msg Message) DeliveryStatus { return TransientFailure },
	}
	d.RegisterNotifier(rec)

	d.SendFailureAlert("n1", "down", "n1 is unhealthy")
	d.deliverReady() // attempt 1: transient, requeued

	d.mu.Lock()
	for i := range d.retryQueue {
		d.retryQueue[i].readyAt = time.Now().Add(-time.Millisecond)
	}
	d.mu.Unlock()

	d.deliverReady() // attempt 2: transient, exceeds maxRetries, dropped

	stats := d.GetStatistics()
	assert.Equal(t, int64(1), stats.TotalDropped)
	assert.Equal(t, 0, stats.RetryQueueDepth)
	assert.Empty(t, rec.deliveredMessages())
}

func TestDispatcherPermanentFailureIsNotRetried(t *testing.T) {
	d := New()
	rec := &recordingNotifier{
		name: "rejects",
		statusFn: func(msg Message) DeliveryStatus { return PermanentFailure },
	}
	d.RegisterNotifier(rec)

	d.SendFailureAlert("n1", "down", "n1 is unhealthy")
	d.deliverReady()

	stats := d.GetStatistics()
	assert.Equal(t, 0, stats.RetryQueueDepth)
	assert.Equal(t, int64(1), stats.TotalDelivered) // no transient notifier, so counted delivered overall
}

func TestDispatcherStartStopIsIdempotent(t *testing.T) {
	d := New()
	d.RegisterNotifier(NewLogNotifier())
	d.Start()
	d.Start()
	d.Stop()
	d.Stop()
}

func TestRetryDelayIsMonotonicAndCapped(t *testing.T) {
	prev := time.Duration(0)
	for attempt := 1; attempt <= 10; attempt++ {
		d := retryDelay(attempt)
		assert.GreaterOrEqual(t, d, prev)
		assert.LessOrEqual(t, d, defaultRetryMax)
		prev = d
	}
}
