package broadcast

import (
	"runtime"
	"sync"
	"sync/atomic"

	"github.com/rs/zerolog"
	"golang.org/x/time/rate"
)

// Broadcaster posts and receives named events on a Facility.
// All methods are safe for concurrent use, including from inside handlers.
type Broadcaster struct {
	token    Token
	ns       Namespacer
	registry *Registry
	facility Facility
	logger   zerolog.Logger
	limiter  *rate.Limiter

	// mu keeps registry and facility observations in step.
	mu      sync.Mutex
	closed  atomic.Bool
	cleanup runtime.Cleanup
}

// Option configures a Broadcaster.
type Option func(*Broadcaster)

// WithPrefix sets the namespace prefix. See NewNamespacer for normalization.
func WithPrefix(prefix string) Option {
	return func(b *Broadcaster) {
		b.ns = NewNamespacer(prefix)
	}
}

// WithFacility sets the facility used to observe and post names.
// The default is Local().
func WithFacility(f Facility) Option {
	return func(b *Broadcaster) {
		if f != nil {
			b.facility = f
		}
	}
}

// WithLogger sets the logger. The default discards everything.
func WithLogger(logger zerolog.Logger) Option {
	return func(b *Broadcaster) {
		b.logger = logger
	}
}

// WithPostRate limits how often Post reaches the facility. Posts over the
// limit are dropped, like any other undelivered notification.
func WithPostRate(limit rate.Limit, burst int) Option {
	return func(b *Broadcaster) {
		if burst < 1 {
			burst = 1
		}
		b.limiter = rate.NewLimiter(limit, burst)
	}
}

// releaser holds what the cleanup needs without referencing the Broadcaster.
type releaser struct {
	token    Token
	facility Facility
	logger   zerolog.Logger
}

func (r releaser) release() {
	instances.untrack(r.token)
	r.facility.UnobserveAll(r.token)
	r.logger.Debug().Uint64("token", uint64(r.token)).Msg("broadcaster released")
}

func releaseCollected(r releaser) {
	r.release()
}

// New returns a Broadcaster. Construction cannot fail.
//
// Observations are released by Close, or automatically once the Broadcaster
// is garbage collected.
func New(opts ...Option) *Broadcaster {
	b := &Broadcaster{
		token:    newToken(),
		ns:       NewNamespacer(DefaultPrefix),
		registry: NewRegistry(),
		facility: Local(),
		logger:   zerolog.Nop(),
	}
	for _, opt := range opts {
		opt(b)
	}
	b.logger = b.logger.With().
		Str("component", "broadcast").
		Str("prefix", b.ns.Prefix()).
		Uint64("token", uint64(b.token)).
		Logger()

	instances.track(b.token, b)
	b.cleanup = runtime.AddCleanup(b, releaseCollected, releaser{
		token:    b.token,
		facility: b.facility,
		logger:   b.logger,
	})
	return b
}

// Prefix returns the normalized namespace prefix.
func (b *Broadcaster) Prefix() string {
	return b.ns.Prefix()
}

// Token returns the token this Broadcaster observes with.
func (b *Broadcaster) Token() Token {
	return b.token
}

// Namespacer returns the namespacer used to qualify identifiers.
func (b *Broadcaster) Namespacer() Namespacer {
	return b.ns
}

// Identifiers returns the currently registered identifiers in sorted order.
func (b *Broadcaster) Identifiers() []Identifier {
	return b.registry.Identifiers()
}

// Register installs h for id, replacing any existing handler. The name is
// observed on the facility once, however many times id is registered.
// A nil handler unregisters id.
func (b *Broadcaster) Register(id Identifier, h Handler) {
	if h == nil {
		b.Unregister(id)
		return
	}

	b.mu.Lock()
	defer b.mu.Unlock()

	if b.closed.Load() {
		b.logger.Warn().Str("identifier", string(id)).Msg("register on closed broadcaster ignored")
		return
	}

	if b.registry.Register(id, h) {
		b.logger.Debug().Str("identifier", string(id)).Msg("handler replaced")
		return
	}
	b.facility.Observe(b.ns.Qualify(id), b.token)
	b.logger.Debug().Str("identifier", string(id)).Msg("handler registered")
}

// Unregister removes the handler for id and stops observing its name.
// Unknown identifiers are ignored.
func (b *Broadcaster) Unregister(id Identifier) {
	b.mu.Lock()
	defer b.mu.Unlock()

	if !b.registry.Unregister(id) {
		return
	}
	b.facility.Unobserve(b.ns.Qualify(id), b.token)
	b.logger.Debug().Str("identifier", string(id)).Msg("handler unregistered")
}

// Post notifies every observer of id's fully-qualified name, in this process
// and any other reachable through the facility. Non-delivery is not reported.
func (b *Broadcaster) Post(id Identifier) {
	if b.closed.Load() {
		return
	}
	if b.limiter != nil && !b.limiter.Allow() {
		b.logger.Debug().Str("identifier", string(id)).Msg("post dropped by rate limit")
		return
	}
	b.facility.Post(b.ns.Qualify(id))
}

// Close releases every observation. Later deliveries are ignored and later
// calls to Register or Post do nothing. Close is idempotent and always
// returns nil.
func (b *Broadcaster) Close() error {
	b.mu.Lock()
	defer b.mu.Unlock()

	if b.closed.Swap(true) {
		return nil
	}
	b.cleanup.Stop()
	releaser{token: b.token, facility: b.facility, logger: b.logger}.release()
	b.registry.Clear()
	return nil
}

// dispatch runs on the facility's delivery goroutine.
func (b *Broadcaster) dispatch(name string) {
	if b.closed.Load() {
		return
	}
	if !b.ns.Owns(name) {
		b.logger.Debug().Str("name", name).Msg("delivery outside namespace ignored")
		return
	}

	id := b.ns.Dequalify(name)
	h, ok := b.registry.Lookup(id)
	if !ok {
		return
	}

	defer func() {
		if r := recover(); r != nil {
			b.logger.Error().
				Str("identifier", string(id)).
				Interface("panic", r).
				Msg("handler panicked")
		}
	}()
	h()
}
