package dispatcher

import (
	"context"
	"fmt"
	"sync"
	"time"

	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/metric"

	"github.com/quickrts/skirmish/pkg/streaming"
)

// Event is one replication message handed to a handler.
type Event struct {
	Envelope streaming.Envelope
	Received time.Time
}

// Route returns the dispatcher key of the event.
func (e Event) Route() string {
	return e.Envelope.Route()
}

// HandlerFunc processes an event.
type HandlerFunc func(Event) error

// Logger interface for pluggable logging.
type Logger interface {
	Debug(msg string, keysAndValues ...any)
	Info(msg string, keysAndValues ...any)
	Error(msg string, keysAndValues ...any)
}

// Option configures handler registration.
type Option func(*config)

type config struct {
	logged bool
}

// Logged adds debug logging to the handler.
func Logged() Option {
	return func(c *config) {
		c.logged = true
	}
}

// Dispatcher routes events to registered handlers. Handlers run on the
// caller's goroutine; the tick loop is the only caller.
type Dispatcher struct {
	handlers map[string]HandlerFunc
	logger   Logger

	// OTEL metrics
	queueSize metric.Int64ObservableGauge
	processed metric.Int64Counter
	failed    metric.Int64Counter

	// Queues reported through the gauge callback
	mu     sync.RWMutex
	queues map[string]func() int
}

// New creates a new Dispatcher with the given logger.
// Uses the global OTel meter for metrics (no-op if not configured).
func New(logger Logger) (*Dispatcher, error) {
	d := &Dispatcher{
		handlers: make(map[string]HandlerFunc),
		queues:   make(map[string]func() int),
		logger:   logger,
	}

	m := meter()

	var err error

	d.queueSize, err = m.Int64ObservableGauge(
		"replication.inbox.size",
		metric.WithDescription("Current number of envelopes waiting for the tick loop"),
	)
	if err != nil {
		return nil, fmt.Errorf("creating queue size gauge: %w", err)
	}

	_, err = m.RegisterCallback(
		func(ctx context.Context, o metric.Observer) error {
			d.mu.RLock()
			defer d.mu.RUnlock()
			for name, length := range d.queues {
				o.ObserveInt64(d.queueSize, int64(length()),
					metric.WithAttributes(attribute.String("queue", name)))
			}
			return nil
		},
		d.queueSize,
	)
	if err != nil {
		return nil, fmt.Errorf("registering queue callback: %w", err)
	}

	d.processed, err = m.Int64Counter(
		"replication.messages.processed",
		metric.WithDescription("Total replication messages handled"),
	)
	if err != nil {
		return nil, fmt.Errorf("creating processed counter: %w", err)
	}

	d.failed, err = m.Int64Counter(
		"replication.messages.failed",
		metric.WithDescription("Total replication messages whose handler returned an error"),
	)
	if err != nil {
		return nil, fmt.Errorf("creating failed counter: %w", err)
	}

	return d, nil
}

// Register adds a handler for the given route with optional configuration.
func (d *Dispatcher) Register(route string, h HandlerFunc, opts ...Option) {
	cfg := &config{}
	for _, opt := range opts {
		opt(cfg)
	}

	handler := d.withMetrics(route, h)

	if cfg.logged {
		handler = d.withLogging(route, handler)
	}

	d.handlers[route] = handler
}

// ObserveQueue reports the length of a named queue through the size gauge.
func (d *Dispatcher) ObserveQueue(name string, length func() int) {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.queues[name] = length
}

// Dispatch routes an event to its registered handler.
func (d *Dispatcher) Dispatch(e Event) error {
	h, ok := d.handlers[e.Route()]
	if !ok {
		return fmt.Errorf("unknown message route: %s", e.Route())
	}
	return h(e)
}

// HasHandler returns true if a handler is registered for the route.
func (d *Dispatcher) HasHandler(route string) bool {
	_, ok := d.handlers[route]
	return ok
}

func (d *Dispatcher) withMetrics(route string, h HandlerFunc) HandlerFunc {
	routeAttr := metric.WithAttributes(attribute.String("route", route))
	return func(e Event) error {
		err := h(e)
		d.processed.Add(context.Background(), 1, routeAttr)
		if err != nil {
			d.failed.Add(context.Background(), 1, routeAttr)
		}
		return err
	}
}

func (d *Dispatcher) withLogging(route string, h HandlerFunc) HandlerFunc {
	return func(e Event) error {
		start := time.Now()
		d.logger.Debug("handling message", "route", route, "unit", e.Envelope.Unit, "seq", e.Envelope.Seq)

		err := h(e)

		if err != nil {
			d.logger.Error("message failed", "route", route, "unit", e.Envelope.Unit, "duration", time.Since(start), "error", err)
		} else {
			d.logger.Debug("message complete", "route", route, "duration", time.Since(start))
		}

		return err
	}
}
