// Package notify delivers structured alerts through registered
// notifiers, with priority ordering and retry-with-backoff for
// transient failures.
package notify

import (
	"container/heap"
	"context"
	"errors"
	"sync"
	"time"

	"github.com/cenkalti/backoff/v5"
	"github.com/google/uuid"

	"github.com/kafka-guardian/guardian/pkg/log"
	"github.com/kafka-guardian/guardian/pkg/types"
	"github.com/rs/zerolog"
)

// Priority orders messages in the primary queue; lower value delivers first.
type Priority int

const (
	PriorityFailureAlert         Priority = 0
	PriorityRecoveryConfirmation Priority = 1
)

// DeliveryStatus is a notifier's verdict for one delivery attempt.
type DeliveryStatus int

const (
	Delivered DeliveryStatus = iota
	TransientFailure
	PermanentFailure
)

// Message is one alert or confirmation queued for delivery.
type Message struct {
	ID        string
	Priority  Priority
	Subject   string
	Body      string
	NodeID    string
	CreatedAt time.Time

	attempts int
	seq      int64 // tie-breaks equal-priority FIFO ordering
}

// Notifier is the capability interface the dispatcher consumes.
type Notifier interface {
	Name() string
	Deliver(ctx context.Context, msg Message) DeliveryStatus
}

const (
	defaultMaxRetries = 5
	defaultRetryBase  = 2 * time.Second
	defaultRetryMax   = 5 * time.Minute
	defaultDrainWait  = 5 * time.Second
)

// Statistics exposes queue depths the supervisor's self-health check consumes.
type Statistics struct {
	PrimaryQueueDepth int
	RetryQueueDepth   int
	TotalDelivered    int64
	TotalDropped      int64
}

// Dispatcher owns the priority queue, the retry queue, and the
// background worker that drains both against every registered notifier.
type Dispatcher struct {
	logger zerolog.Logger

	mu         sync.Mutex
	primary    messageHeap
	retryQueue []retryEntry
	seqCounter int64

	notifiersMu sync.RWMutex
	notifiers   []Notifier

	maxRetries int

	totalDelivered int64
	totalDropped   int64

	wakeCh chan struct{}
	stopCh chan struct{}
	wg     sync.WaitGroup
}

type retryEntry struct {
	msg     Message
	readyAt time.Time
}

// New creates a Dispatcher with no notifiers registered. Call
// RegisterNotifier before Start.
func New() *Dispatcher {
	return &Dispatcher{
		logger:     log.WithComponent("notify"),
		maxRetries: defaultMaxRetries,
		wakeCh:     make(chan struct{}, 1),
	}
}

// RegisterNotifier adds a delivery target. Every registered notifier
// receives every message.
func (d *Dispatcher) RegisterNotifier(n Notifier) {
	d.notifiersMu.Lock()
	defer d.notifiersMu.Unlock()
	d.notifiers = append(d.notifiers, n)
}

// SendFailureAlert enqueues a high-priority failure notification.
func (d *Dispatcher) SendFailureAlert(nodeID string, subject, body string) {
	d.enqueue(Message{
		ID:        uuid.NewString(),
		Priority:  PriorityFailureAlert,
		Subject:   subject,
		Body:      body,
		NodeID:    nodeID,
		CreatedAt: time.Now(),
	})
}

// SendRecoveryConfirmation enqueues a lower-priority recovery confirmation.
func (d *Dispatcher) SendRecoveryConfirmation(nodeID string, subject, body string) {
	d.enqueue(Message{
		ID:        uuid.NewString(),
		Priority:  PriorityRecoveryConfirmation,
		Subject:   subject,
		Body:      body,
		NodeID:    nodeID,
		CreatedAt: time.Now(),
	})
}

func (d *Dispatcher) enqueue(msg Message) {
	d.mu.Lock()
	d.seqCounter++
	msg.seq = d.seqCounter
	heap.Push(&d.primary, msg)
	d.mu.Unlock()
	d.wake()
}

func (d *Dispatcher) wake() {
	select {
	case d.wakeCh <- struct{}{}:
	default:
	}
}

// Start launches the background delivery worker.
func (d *Dispatcher) Start() {
	if d.stopCh != nil {
		return
	}
	d.stopCh = make(chan struct{})
	d.wg.Add(1)
	go d.run()
}

// Stop signals the worker to exit and waits up to the drain deadline.
func (d *Dispatcher) Stop() {
	if d.stopCh == nil {
		return
	}
	close(d.stopCh)

	done := make(chan struct{})
	go func() {
		d.wg.Wait()
		close(done)
	}()

	select {
	case <-done:
	case <-time.After(defaultDrainWait):
		d.logger.Warn().Msg("notification dispatcher drain deadline exceeded")
	}
	d.stopCh = nil
}

func (d *Dispatcher) run() {
	defer d.wg.Done()

	ticker := time.NewTicker(500 * time.Millisecond)
	defer ticker.Stop()

	for {
		d.deliverReady()

		select {
		case <-d.stopCh:
			return
		case <-d.wakeCh:
		case <-ticker.C:
		}
	}
}

// deliverReady drains every message currently eligible for delivery:
// the full primary queue (highest priority first), then any retry
// entries whose backoff has elapsed.
func (d *Dispatcher) deliverReady() {
	for {
		msg, ok := d.popPrimary()
		if !ok {
			break
		}
		d.attemptDelivery(msg)
	}

	now := time.Now()
	d.mu.Lock()
	var due []Message
	remaining := d.retryQueue[:0]
	for _, entry := range d.retryQueue {
		if now.After(entry.readyAt) || now.Equal(entry.readyAt) {
			due = append(due, entry.msg)
		} else {
			remaining = append(remaining, entry)
		}
	}
	d.retryQueue = remaining
	d.mu.Unlock()

	for _, msg := range due {
		d.attemptDelivery(msg)
	}
}

func (d *Dispatcher) popPrimary() (Message, bool) {
	d.mu.Lock()
	defer d.mu.Unlock()
	if d.primary.Len() == 0 {
		return Message{}, false
	}
	return heap.Pop(&d.primary).(Message), true
}

func (d *Dispatcher) attemptDelivery(msg Message) {
	d.notifiersMu.RLock()
	notifiers := append([]Notifier(nil), d.notifiers...)
	d.notifiersMu.RUnlock()

	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	anyTransient := false
	for _, n := range notifiers {
		status := d.deliverIsolated(ctx, n, msg)
		switch status {
		case Delivered:
		case TransientFailure:
			anyTransient = true
		case PermanentFailure:
			notifierErr := &types.NotifierError{Notifier: n.Name(), Transient: false, Err: errors.New("delivery rejected")}
			d.logger.Warn().Err(notifierErr).Str("message_id", msg.ID).
				Msg("notifier reported permanent failure; dropping for this notifier")
		}
	}

	if !anyTransient {
		d.totalDelivered++
		return
	}

	msg.attempts++
	if msg.attempts > d.maxRetries {
		d.totalDropped++
		notifierErr := &types.NotifierError{Notifier: "dispatcher", Transient: true, Err: errors.New("retries exhausted")}
		d.logger.Error().Err(notifierErr).Str("message_id", msg.ID).Int("attempts", msg.attempts).
			Msg("notification exhausted retries and was dropped")
		return
	}

	delay := retryDelay(msg.attempts)
	d.mu.Lock()
	d.retryQueue = append(d.retryQueue, retryEntry{msg: msg, readyAt: time.Now().Add(delay)})
	d.mu.Unlock()
}

func (d *Dispatcher) deliverIsolated(ctx context.Context, n Notifier, msg Message) (status DeliveryStatus) {
	defer func() {
		if r := recover(); r != nil {
			d.logger.Error().Interface("panic", r).Str("notifier", n.Name()).Msg("notifier panicked")
			status = TransientFailure
		}
	}()
	return n.Deliver(ctx, msg)
}

// retryDelay computes the backoff-v5 exponential delay for a given
// retry attempt (1-indexed), capped at defaultRetryMax.
func retryDelay(attempt int) time.Duration {
	b := backoff.NewExponentialBackOff()
	b.InitialInterval = defaultRetryBase
	b.MaxInterval = defaultRetryMax
	b.Multiplier = 2.0
	b.RandomizationFactor = 0

	var delay time.Duration
	for i := 0; i < attempt; i++ {
		d := b.NextBackOff()
		if d == backoff.Stop {
			return defaultRetryMax
		}
		delay = d
	}
	return delay
}

// GetStatistics returns current queue depths and lifetime counters.
func (d *Dispatcher) GetStatistics() Statistics {
	d.mu.Lock()
	defer d.mu.Unlock()
	return Statistics{
		PrimaryQueueDepth: d.primary.Len(),
		RetryQueueDepth:   len(d.retryQueue),
		TotalDelivered:    d.totalDelivered,
		TotalDropped:      d.totalDropped,
	}
}

// messageHeap implements container/heap.Interface, ordering by
// Priority then by arrival sequence (FIFO within a priority class).
type messageHeap []Message

func (h messageHeap) Len() int { return len(h) }

func (h messageHeap) Less(i, j int) bool {
	if h[i].Priority != h[j].Priority {
		return h[i].Priority < h[j].Priority
	}
	return h[i].seq < h[j].seq
}

func (h messageHeap) Swap(i, j int) { h[i], h[j] = h[j], h[i] }

func (h *messageHeap) Push(x any) {
	*h = append(*h, x.(Message))
}

func (h *messageHeap) Pop() any {
	old := *h
	n := len(old)
	item := old[n-1]
	*h = old[:n-1]
	return item
}
