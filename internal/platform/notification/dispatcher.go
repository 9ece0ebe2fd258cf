package notification

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"

	"github.com/lims/lims/internal/platform/metrics"
)

// OutcomeFunc is called when delivery either succeeds or gives up.
// Callbacks run on the dispatcher goroutine, or on the enqueuing
// goroutine when a message is dropped at the door, and must not block.
type OutcomeFunc func(ctx context.Context, n *Notification)

// Config bounds the dispatcher. Zero values fall back to the defaults.
type Config struct {
	QueueSize    int
	MaxAttempts  int
	RetryBackoff time.Duration

	// StoreLimit caps the in-memory delivery log.
	StoreLimit int
}

const (
	defaultQueueSize    = 256
	defaultMaxAttempts  = 5
	defaultRetryBackoff = 30 * time.Second
	defaultStoreLimit   = 1024
)

// Dispatcher delivers notifications asynchronously. Enqueueing never
// blocks the caller: a full queue fails the notification immediately
// rather than stalling result finalization. Each queued message is
// attempted up to MaxAttempts times with a fixed backoff, after which
// it goes stale for manual follow-up.
type Dispatcher struct {
	email EmailSender
	sms   SMSSender

	queue  chan *Notification
	stop   chan struct{}
	wg     sync.WaitGroup
	logger zerolog.Logger

	maxAttempts int
	backoff     time.Duration

	OnDelivered OutcomeFunc
	OnExhausted OutcomeFunc

	mu         sync.RWMutex
	store      map[string]*Notification
	order      []string
	storeLimit int
}

func NewDispatcher(cfg Config, email EmailSender, sms SMSSender, logger zerolog.Logger) *Dispatcher {
	if cfg.QueueSize <= 0 {
		cfg.QueueSize = defaultQueueSize
	}
	if cfg.MaxAttempts <= 0 {
		cfg.MaxAttempts = defaultMaxAttempts
	}
	if cfg.RetryBackoff <= 0 {
		cfg.RetryBackoff = defaultRetryBackoff
	}
	if cfg.StoreLimit <= 0 {
		cfg.StoreLimit = defaultStoreLimit
	}
	return &Dispatcher{
		email:       email,
		sms:         sms,
		queue:       make(chan *Notification, cfg.QueueSize),
		stop:        make(chan struct{}),
		logger:      logger,
		maxAttempts: cfg.MaxAttempts,
		backoff:     cfg.RetryBackoff,
		store:       make(map[string]*Notification),
		storeLimit:  cfg.StoreLimit,
	}
}

// Start launches the delivery worker.
func (d *Dispatcher) Start() {
	d.wg.Add(1)
	go d.run()
}

// Stop drains nothing: in-flight retries are abandoned and whatever
// remains queued will be redelivered from the alert table on next
// startup via its notification status.
func (d *Dispatcher) Stop() {
	close(d.stop)
	d.wg.Wait()
}

// Enqueue accepts a message for asynchronous delivery. When the queue
// is full the message goes stale immediately, with the exhaustion
// callback fired, so the caller's transaction is never held hostage by
// a slow channel and the alert still surfaces for manual follow-up.
func (d *Dispatcher) Enqueue(n *Notification) {
	if n.ID == "" {
		n.ID = uuid.New().String()
	}
	n.Status = StatusPending
	n.CreatedAt = time.Now().UTC()
	d.record(n)

	select {
	case d.queue <- n:
	default:
		n.Status = StatusStale
		n.Error = "notification queue full"
		d.record(n)
		metrics.NotificationAttempts.WithLabelValues("dropped").Inc()
		d.logger.Error().Str("notification_id", n.ID).Msg("notification queue full, message dropped")
		if d.OnExhausted != nil {
			d.OnExhausted(context.Background(), n)
		}
	}
}

func (d *Dispatcher) run() {
	defer d.wg.Done()
	for {
		select {
		case <-d.stop:
			return
		case n := <-d.queue:
			d.deliver(n)
		}
	}
}

func (d *Dispatcher) deliver(n *Notification) {
	ctx := context.Background()
	for attempt := 1; attempt <= d.maxAttempts; attempt++ {
		n.Attempts = attempt
		err := d.send(ctx, n)
		if err == nil {
			now := time.Now().UTC()
			n.Status = StatusSent
			n.SentAt = &now
			n.Error = ""
			d.record(n)
			metrics.NotificationAttempts.WithLabelValues("delivered").Inc()
			if d.OnDelivered != nil {
				d.OnDelivered(ctx, n)
			}
			return
		}

		n.Status = StatusFailed
		n.Error = err.Error()
		d.record(n)
		metrics.NotificationAttempts.WithLabelValues("failed").Inc()
		d.logger.Warn().
			Str("notification_id", n.ID).
			Int("attempt", attempt).
			Err(err).
			Msg("notification delivery failed")

		if attempt == d.maxAttempts {
			break
		}
		select {
		case <-d.stop:
			return
		case <-time.After(d.backoff):
		}
	}

	n.Status = StatusStale
	d.record(n)
	d.logger.Error().
		Str("notification_id", n.ID).
		Int("attempts", n.Attempts).
		Msg("notification retries exhausted, needs manual follow-up")
	if d.OnExhausted != nil {
		d.OnExhausted(ctx, n)
	}
}

func (d *Dispatcher) send(ctx context.Context, n *Notification) error {
	switch n.Type {
	case TypeEmail:
		return d.email.SendEmail(ctx, n.Recipient, n.Subject, n.Body)
	case TypeSMS:
		return d.sms.SendSMS(ctx, n.Recipient, n.Body)
	default:
		return fmt.Errorf("unsupported notification type: %s", n.Type)
	}
}

// record keeps a bounded in-memory delivery log. Over the limit, the
// oldest finished entries are evicted first; pending entries survive
// eviction so an in-flight message never loses its record.
func (d *Dispatcher) record(n *Notification) {
	clone := *n
	d.mu.Lock()
	if _, seen := d.store[n.ID]; !seen {
		d.order = append(d.order, n.ID)
	}
	d.store[n.ID] = &clone
	d.evictLocked()
	d.mu.Unlock()
}

func (d *Dispatcher) evictLocked() {
	for len(d.store) > d.storeLimit {
		evicted := false
		for i, id := range d.order {
			if d.store[id].Status == StatusPending {
				continue
			}
			delete(d.store, id)
			d.order = append(d.order[:i], d.order[i+1:]...)
			evicted = true
			break
		}
		if !evicted {
			return
		}
	}
}

// Get retrieves a notification by ID.
func (d *Dispatcher) Get(id string) (*Notification, bool) {
	d.mu.RLock()
	defer d.mu.RUnlock()
	n, ok := d.store[id]
	if !ok {
		return nil, false
	}
	clone := *n
	return &clone, true
}

// Stats returns counts of notifications grouped by status.
func (d *Dispatcher) Stats() map[string]int {
	d.mu.RLock()
	defer d.mu.RUnlock()
	stats := make(map[string]int)
	for _, n := range d.store {
		stats[n.Status]++
	}
	return stats
}

// ListByStatus returns stored notifications in a given status, up to limit.
func (d *Dispatcher) ListByStatus(status string, limit int) []*Notification {
	d.mu.RLock()
	defer d.mu.RUnlock()
	var out []*Notification
	for _, n := range d.store {
		if n.Status == status {
			clone := *n
			out = append(out, &clone)
			if len(out) >= limit {
				break
			}
		}
	}
	return out
}
