// Package notifier provides notification dispatching for triggered alerts.
package notifier

import (
	"context"
	"fmt"
	"log"
	"sync"

	"github.com/datalens-dev/datalens/internal/metrics"
	"github.com/datalens-dev/datalens/internal/models"
)

// Transport names used for registration and channel routing.
const (
	TransportEmail = "email"
	TransportChat  = "chat"
)

// Message is a rendered triggered-alert notification.
type Message struct {
	AlertName string
	Subject   string
	Body      string
}

// Notifier is the interface for all notification transports.
type Notifier interface {
	// Name returns the transport name (e.g., "email", "chat").
	Name() string
	// Send delivers the message. Best effort, at most once, no retry.
	Send(ctx context.Context, msg *Message) error
	// Close releases any resources.
	Close() error
}

// Dispatcher routes triggered-alert messages to the transports implied by
// an alert's notification channel.
type Dispatcher struct {
	mu          sync.RWMutex
	notifiers   map[string]Notifier
	rateLimiter *RateLimiter
}

// NewDispatcher creates a new notification dispatcher with default rate limiting.
func NewDispatcher() *Dispatcher {
	return &Dispatcher{
		notifiers:   make(map[string]Notifier),
		rateLimiter: NewRateLimiter(DefaultRateLimitConfig()),
	}
}

// NewDispatcherWithRateLimit creates a dispatcher with custom rate limit configuration.
func NewDispatcherWithRateLimit(config RateLimitConfig) *Dispatcher {
	return &Dispatcher{
		notifiers:   make(map[string]Notifier),
		rateLimiter: NewRateLimiter(config),
	}
}

// Register adds a notifier to the dispatcher.
func (d *Dispatcher) Register(n Notifier) {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.notifiers[n.Name()] = n
}

// Unregister removes a notifier from the dispatcher.
func (d *Dispatcher) Unregister(name string) {
	d.mu.Lock()
	defer d.mu.Unlock()
	delete(d.notifiers, name)
}

// Get returns a notifier by name.
func (d *Dispatcher) Get(name string) (Notifier, bool) {
	d.mu.RLock()
	defer d.mu.RUnlock()
	n, ok := d.notifiers[name]
	return n, ok
}

// transportsFor maps a notification channel to transport names.
func transportsFor(channel models.Channel) []string {
	switch channel {
	case models.ChannelEmail:
		return []string{TransportEmail}
	case models.ChannelChat:
		return []string{TransportChat}
	case models.ChannelBoth:
		return []string{TransportEmail, TransportChat}
	}
	return nil
}

// Send delivers the message over every transport the channel implies,
// independently. It reports true if at least one transport succeeded.
// Per-transport failures, including an unconfigured transport, are logged
// and never propagate.
func (d *Dispatcher) Send(ctx context.Context, channel models.Channel, msg *Message) bool {
	targets := transportsFor(channel)
	if len(targets) == 0 {
		log.Printf("notifier: unknown channel %q for alert %q", channel, msg.AlertName)
		return false
	}

	if d.rateLimiter != nil && !d.rateLimiter.Allow() {
		log.Printf("notifier: rate limited, dropped notification for alert %q", msg.AlertName)
		for _, name := range targets {
			metrics.NotificationsTotal.WithLabelValues(name, "dropped").Inc()
		}
		return false
	}

	d.mu.RLock()
	defer d.mu.RUnlock()

	sent := false
	for _, name := range targets {
		n, ok := d.notifiers[name]
		if !ok {
			// Missing transport configuration is a channel-level
			// failure, not a fatal error.
			log.Printf("notifier: %s transport not configured, alert %q", name, msg.AlertName)
			metrics.NotificationsTotal.WithLabelValues(name, "failure").Inc()
			continue
		}
		if err := n.Send(ctx, msg); err != nil {
			log.Printf("notifier: %s send failed for alert %q: %v", name, msg.AlertName, err)
			metrics.NotificationsTotal.WithLabelValues(name, "failure").Inc()
			continue
		}
		metrics.NotificationsTotal.WithLabelValues(name, "success").Inc()
		sent = true
	}

	if !sent && d.rateLimiter != nil {
		// Nothing went out; refund the token.
		d.rateLimiter.Release()
	}
	return sent
}

// Dropped returns the number of notifications dropped by rate limiting.
func (d *Dispatcher) Dropped() int64 {
	if d.rateLimiter == nil {
		return 0
	}
	return d.rateLimiter.Dropped()
}

// Close closes all registered notifiers.
func (d *Dispatcher) Close() error {
	d.mu.Lock()
	defer d.mu.Unlock()

	var errs []error
	for name, n := range d.notifiers {
		if err := n.Close(); err != nil {
			errs = append(errs, fmt.Errorf("%s: %w", name, err))
		}
	}
	d.notifiers = make(map[string]Notifier)

	if len(errs) > 0 {
		return fmt.Errorf("close errors: %v", errs)
	}
	return nil
}
