// Package redisfacility implements a broadcast.Facility on Redis Pub/Sub.
//
// Every fully-qualified name maps to one Redis channel of the same name, so
// any process connected to the same Redis server can post to or observe it.
// Posts publish an empty message; only the channel name carries meaning.
//
// One facility holds a single Pub/Sub connection. A channel is subscribed
// while at least one token observes its name and unsubscribed when the last
// observer leaves.
package redisfacility

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/dyluth/tocsin/pkg/broadcast"
	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"
	"github.com/rs/zerolog"
)

// DefaultTimeout bounds every Redis command issued on behalf of a caller.
const DefaultTimeout = 5 * time.Second

// deliveryBuffer decouples the Pub/Sub reader from handlers.
const deliveryBuffer = 256

// Facility is a broadcast.Facility backed by Redis Pub/Sub.
// It is safe for concurrent use.
type Facility struct {
	rdb       *redis.Client
	observers broadcast.Observers
	deliver   broadcast.DeliverFunc
	logger    zerolog.Logger
	timeout   time.Duration

	// mu keeps observers and the Redis subscription set in step.
	mu     sync.Mutex
	pubsub *redis.PubSub
	done   chan struct{}
	closed bool

	// waiters are signalled when Redis confirms a SUBSCRIBE. Guarded by
	// waitMu so the receive loop never needs mu.
	waitMu  sync.Mutex
	waiters map[string][]chan struct{}
}

// Option configures a Facility.
type Option func(*Facility)

// WithLogger sets the logger used for swallowed transport errors.
func WithLogger(logger zerolog.Logger) Option {
	return func(f *Facility) {
		f.logger = logger
	}
}

// WithDeliverFunc replaces broadcast.Deliver as the inbound callback.
func WithDeliverFunc(fn broadcast.DeliverFunc) Option {
	return func(f *Facility) {
		if fn != nil {
			f.deliver = fn
		}
	}
}

// WithTimeout bounds each Redis command. Non-positive values keep DefaultTimeout.
func WithTimeout(d time.Duration) Option {
	return func(f *Facility) {
		if d > 0 {
			f.timeout = d
		}
	}
}

// New connects to Redis and verifies connectivity.
//
// Parameters:
//   - redisOpts: Redis connection options (address, password, DB, etc.)
//
// A client name of the form tocsin-{uuid} is set when redisOpts has none, so
// facility connections are recognisable in CLIENT LIST.
func New(ctx context.Context, redisOpts *redis.Options, opts ...Option) (*Facility, error) {
	if redisOpts == nil {
		return nil, fmt.Errorf("redis options cannot be nil")
	}

	o := *redisOpts
	if o.ClientName == "" {
		o.ClientName = "tocsin-" + uuid.New().String()
	}

	f := &Facility{
		rdb:     redis.NewClient(&o),
		deliver: broadcast.Deliver,
		logger:  zerolog.Nop(),
		timeout: DefaultTimeout,
		done:    make(chan struct{}),
		waiters: make(map[string][]chan struct{}),
	}
	for _, opt := range opts {
		opt(f)
	}
	f.logger = f.logger.With().Str("component", "redisfacility").Str("addr", o.Addr).Logger()

	pingCtx, cancel := context.WithTimeout(ctx, f.timeout)
	defer cancel()
	if err := f.rdb.Ping(pingCtx).Err(); err != nil {
		f.rdb.Close()
		return nil, fmt.Errorf("failed to connect to Redis: %w", err)
	}

	return f, nil
}

// Observe subscribes to name if token is its first observer.
func (f *Facility) Observe(name string, token broadcast.Token) {
	f.mu.Lock()
	defer f.mu.Unlock()

	if f.observers.Add(name, token) {
		f.subscribeLocked(name)
	}
}

// Unobserve unsubscribes from name if token was its last observer.
func (f *Facility) Unobserve(name string, token broadcast.Token) {
	f.mu.Lock()
	defer f.mu.Unlock()

	if f.observers.Remove(name, token) {
		f.unsubscribeLocked(name)
	}
}

// UnobserveAll drops every observation held by token.
func (f *Facility) UnobserveAll(token broadcast.Token) {
	f.mu.Lock()
	defer f.mu.Unlock()

	if emptied := f.observers.RemoveToken(token); len(emptied) > 0 {
		f.unsubscribeLocked(emptied...)
	}
}

// Post publishes an empty message on the name's channel.
func (f *Facility) Post(name string) {
	ctx, cancel := context.WithTimeout(context.Background(), f.timeout)
	defer cancel()

	if err := f.rdb.Publish(ctx, name, "").Err(); err != nil {
		f.logger.Warn().Err(err).Str("name", name).Msg("failed to publish notification")
	}
}

// Close stops delivery and closes the Redis connections. Implements io.Closer.
// Safe to call multiple times.
func (f *Facility) Close() error {
	f.mu.Lock()
	if f.closed {
		f.mu.Unlock()
		return nil
	}
	f.closed = true
	pubsub := f.pubsub
	f.mu.Unlock()

	if pubsub != nil {
		if err := pubsub.Close(); err != nil {
			f.logger.Debug().Err(err).Msg("error closing pubsub")
		}
		<-f.done
	}
	return f.rdb.Close()
}

// Ping verifies Redis connectivity. Useful for health checks.
func (f *Facility) Ping(ctx context.Context) error {
	return f.rdb.Ping(ctx).Err()
}

// Observers returns the number of local tokens observing name.
func (f *Facility) Observers(name string) int {
	return f.observers.Count(name)
}

// subscribeLocked returns once Redis has confirmed the subscription, so a
// post issued afterwards from any connection reaches this facility.
// The wait is bounded by the facility timeout.
func (f *Facility) subscribeLocked(name string) {
	if f.closed {
		return
	}

	ctx, cancel := context.WithTimeout(context.Background(), f.timeout)
	defer cancel()

	confirmed := f.addWaiter(name)

	// The Pub/Sub connection and its receive loop start with the first name.
	if f.pubsub == nil {
		f.pubsub = f.rdb.Subscribe(ctx, name)
		messages := make(chan *redis.Message, deliveryBuffer)
		go f.receive(f.pubsub.ChannelWithSubscriptions(), messages)
		go f.dispatch(messages)
	} else if err := f.pubsub.Subscribe(ctx, name); err != nil {
		f.removeWaiter(name, confirmed)
		f.logger.Warn().Err(err).Str("name", name).Msg("failed to subscribe")
		return
	}

	select {
	case <-confirmed:
	case <-ctx.Done():
		f.removeWaiter(name, confirmed)
		f.logger.Warn().Str("name", name).Dur("timeout", f.timeout).Msg("subscription not confirmed")
	}
}

func (f *Facility) addWaiter(name string) chan struct{} {
	ch := make(chan struct{})
	f.waitMu.Lock()
	f.waiters[name] = append(f.waiters[name], ch)
	f.waitMu.Unlock()
	return ch
}

func (f *Facility) removeWaiter(name string, ch chan struct{}) {
	f.waitMu.Lock()
	defer f.waitMu.Unlock()

	waiting := f.waiters[name]
	for i, w := range waiting {
		if w == ch {
			waiting = append(waiting[:i], waiting[i+1:]...)
			break
		}
	}
	if len(waiting) == 0 {
		delete(f.waiters, name)
	} else {
		f.waiters[name] = waiting
	}
}

// confirm releases everyone waiting on a subscription to name.
func (f *Facility) confirm(name string) {
	f.waitMu.Lock()
	waiting := f.waiters[name]
	delete(f.waiters, name)
	f.waitMu.Unlock()

	for _, ch := range waiting {
		close(ch)
	}
}

func (f *Facility) unsubscribeLocked(names ...string) {
	if f.closed || f.pubsub == nil {
		return
	}

	ctx, cancel := context.WithTimeout(context.Background(), f.timeout)
	defer cancel()

	if err := f.pubsub.Unsubscribe(ctx, names...); err != nil {
		f.logger.Warn().Err(err).Strs("names", names).Msg("failed to unsubscribe")
	}
}

// receive runs until the Pub/Sub connection is closed. It only routes:
// confirmations go to waiters and messages to the dispatch loop, so a handler
// that subscribes to a new name cannot block its own confirmation.
func (f *Facility) receive(ch <-chan interface{}, messages chan<- *redis.Message) {
	defer close(messages)

	for m := range ch {
		switch m := m.(type) {
		case *redis.Subscription:
			if m.Kind == "subscribe" {
				f.confirm(m.Channel)
			}
		case *redis.Message:
			messages <- m
		}
	}
}

// dispatch delivers messages in arrival order.
func (f *Facility) dispatch(messages <-chan *redis.Message) {
	defer close(f.done)

	for msg := range messages {
		// Tokens are resolved at delivery time, so an observer removed after
		// the publish but before this point is skipped.
		for _, token := range f.observers.Tokens(msg.Channel) {
			f.deliver(msg.Channel, token)
		}
	}
}
