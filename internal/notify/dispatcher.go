// Package notify fans response lifecycle events out to notification channels.
package notify

import (
	"context"
	"encoding/json"
	"fmt"
	"log"
	"sync"
	"time"

	"github.com/cloo-solutions/replygate/internal/domain"
	"github.com/cloo-solutions/replygate/internal/telemetry"
	"github.com/google/uuid"
	"golang.org/x/sync/errgroup"
)

// Channel delivers one event to one downstream destination.
type Channel interface {
	Name() string
	Deliver(ctx context.Context, event domain.LifecycleEvent) error
}

// Spool keeps failed deliveries for a later attempt.
type Spool interface {
	Enqueue(ctx context.Context, d *domain.Delivery) error
}

const (
	DefaultConcurrency = 4
	DefaultTimeout     = 10 * time.Second
)

// Dispatcher runs every channel concurrently for each event. Dispatch
// returns immediately; failures are logged, reported to Sentry and handed to
// the spool when one is configured. Nothing is ever returned to the caller.
type Dispatcher struct {
	channels    []Channel
	byName      map[string]Channel
	concurrency int
	timeout     time.Duration
	spool       Spool

	mu     sync.RWMutex
	wg     sync.WaitGroup
	closed bool
}

// Option configures a Dispatcher.
type Option func(*Dispatcher)

// WithConcurrency bounds how many channels deliver one event at once.
func WithConcurrency(n int) Option {
	return func(d *Dispatcher) {
		if n > 0 {
			d.concurrency = n
		}
	}
}

// WithTimeout bounds each channel delivery.
func WithTimeout(t time.Duration) Option {
	return func(d *Dispatcher) {
		if t > 0 {
			d.timeout = t
		}
	}
}

// WithSpool stores failed deliveries for retry.
func WithSpool(s Spool) Option {
	return func(d *Dispatcher) { d.spool = s }
}

func NewDispatcher(channels []Channel, opts ...Option) *Dispatcher {
	d := &Dispatcher{
		channels:    channels,
		byName:      make(map[string]Channel, len(channels)),
		concurrency: DefaultConcurrency,
		timeout:     DefaultTimeout,
	}
	for _, ch := range channels {
		d.byName[ch.Name()] = ch
	}
	for _, opt := range opts {
		opt(d)
	}
	return d
}

// Channels returns the configured channel names.
func (d *Dispatcher) Channels() []string {
	names := make([]string, 0, len(d.channels))
	for _, ch := range d.channels {
		names = append(names, ch.Name())
	}
	return names
}

// Dispatch schedules delivery of event to every channel and returns without waiting.
// The caller's cancellation does not abort deliveries already scheduled.
func (d *Dispatcher) Dispatch(ctx context.Context, event domain.LifecycleEvent) {
	if len(d.channels) == 0 {
		return
	}
	d.mu.RLock()
	defer d.mu.RUnlock()
	if d.closed {
		log.Printf("notify: dispatcher closed, dropping %s", event.Name)
		return
	}

	ctx = context.WithoutCancel(ctx)
	d.wg.Add(1)
	go func() {
		defer d.wg.Done()
		d.fanOut(ctx, event)
	}()
}

func (d *Dispatcher) fanOut(ctx context.Context, event domain.LifecycleEvent) {
	var g errgroup.Group
	g.SetLimit(d.concurrency)

	for _, ch := range d.channels {
		g.Go(func() error {
			if err := d.deliver(ctx, ch, event); err != nil {
				d.handleFailure(ctx, ch, event, err)
			}
			// Channel failures never cancel sibling deliveries.
			return nil
		})
	}
	_ = g.Wait()
}

func (d *Dispatcher) deliver(ctx context.Context, ch Channel, event domain.LifecycleEvent) (err error) {
	ctx, cancel := context.WithTimeout(ctx, d.timeout)
	defer cancel()

	defer func() {
		if r := recover(); r != nil {
			err = fmt.Errorf("channel %s panicked: %v", ch.Name(), r)
		}
	}()
	return ch.Deliver(ctx, event)
}

func (d *Dispatcher) handleFailure(ctx context.Context, ch Channel, event domain.LifecycleEvent, cause error) {
	log.Printf("notify: %s delivery of %s failed: %v", ch.Name(), event.Name, cause)
	telemetry.CaptureError(ctx, fmt.Errorf("notify %s %s: %w", ch.Name(), event.Name, cause))

	if d.spool == nil {
		return
	}
	payload, err := json.Marshal(event)
	if err != nil {
		log.Printf("notify: failed to encode %s for spool: %v", event.Name, err)
		return
	}
	delivery := &domain.Delivery{
		ID:        uuid.NewString(),
		Channel:   ch.Name(),
		EventName: event.Name,
		Payload:   payload,
		Status:    domain.DeliveryStatusPending,
		Error:     cause.Error(),
		CreatedAt: time.Now().UTC(),
	}
	if err := d.spool.Enqueue(ctx, delivery); err != nil {
		log.Printf("notify: failed to spool %s for %s: %v", event.Name, ch.Name(), err)
	}
}

// Redeliver sends a spooled delivery through its channel synchronously.
func (d *Dispatcher) Redeliver(ctx context.Context, delivery *domain.Delivery) error {
	ch, ok := d.byName[delivery.Channel]
	if !ok {
		return fmt.Errorf("unknown channel %q", delivery.Channel)
	}
	var event domain.LifecycleEvent
	if err := json.Unmarshal(delivery.Payload, &event); err != nil {
		return fmt.Errorf("failed to decode spooled event: %w", err)
	}
	return d.deliver(ctx, ch, event)
}

// Wait blocks until all scheduled deliveries finish.
func (d *Dispatcher) Wait() {
	d.wg.Wait()
}

// Close stops accepting events and waits for in-flight deliveries or ctx expiry.
func (d *Dispatcher) Close(ctx context.Context) error {
	d.mu.Lock()
	d.closed = true
	d.mu.Unlock()

	done := make(chan struct{})
	go func() {
		d.wg.Wait()
		close(done)
	}()
	select {
	case <-done:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}
