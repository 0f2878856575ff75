// Package dbusfacility implements a broadcast.Facility on D-Bus signals.
//
// A post emits the signal io.tocsin.Notify.Post from /io/tocsin/Notify with
// the fully-qualified name as its only argument. Observers add one match rule
// per name, filtered on that argument, so the bus daemon only routes signals
// somebody in this process asked for.
package dbusfacility

import (
	"fmt"
	"strings"
	"sync"

	"github.com/dyluth/tocsin/pkg/broadcast"
	"github.com/godbus/dbus/v5"
	"github.com/rs/zerolog"
)

const (
	// Interface is the D-Bus interface carrying notifications.
	Interface = "io.tocsin.Notify"

	// Member is the signal name within Interface.
	Member = "Post"

	// Path is the object path notifications are emitted from.
	Path = dbus.ObjectPath("/io/tocsin/Notify")

	signalName = Interface + "." + Member

	signalBuffer = 64
)

// Facility is a broadcast.Facility backed by a D-Bus connection.
// It is safe for concurrent use.
type Facility struct {
	conn      *dbus.Conn
	ownsConn  bool
	observers broadcast.Observers
	deliver   broadcast.DeliverFunc
	logger    zerolog.Logger

	// mu keeps observers and the bus match rules in step.
	mu      sync.Mutex
	signals chan *dbus.Signal
	done    chan struct{}
	closed  bool
}

// Option configures a Facility.
type Option func(*Facility)

// WithLogger sets the logger used for swallowed bus errors.
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

// NewSession connects to the session bus. The connection is closed by Close.
func NewSession(opts ...Option) (*Facility, error) {
	conn, err := dbus.ConnectSessionBus()
	if err != nil {
		return nil, fmt.Errorf("failed to connect to session bus: %w", err)
	}
	f := New(conn, opts...)
	f.ownsConn = true
	return f, nil
}

// New uses an existing connection. The caller keeps ownership of conn.
func New(conn *dbus.Conn, opts ...Option) *Facility {
	f := &Facility{
		conn:    conn,
		deliver: broadcast.Deliver,
		logger:  zerolog.Nop(),
		signals: make(chan *dbus.Signal, signalBuffer),
		done:    make(chan struct{}),
	}
	for _, opt := range opts {
		opt(f)
	}
	f.logger = f.logger.With().Str("component", "dbusfacility").Logger()

	conn.Signal(f.signals)
	go f.run()
	return f
}

// matchOptions selects Post signals carrying name.
func matchOptions(name string) []dbus.MatchOption {
	return []dbus.MatchOption{
		dbus.WithMatchObjectPath(Path),
		dbus.WithMatchInterface(Interface),
		dbus.WithMatchMember(Member),
		dbus.WithMatchArg(0, quoteMatchValue(name)),
	}
}

// quoteMatchValue escapes a value for the single quotes godbus wraps match
// rule values in. Match rules have no escapes inside quotes, so each quote
// closes the quoted run, appears as \' and reopens it.
func quoteMatchValue(value string) string {
	return strings.ReplaceAll(value, `'`, `'\''`)
}

func (f *Facility) Observe(name string, token broadcast.Token) {
	f.mu.Lock()
	defer f.mu.Unlock()

	if !f.observers.Add(name, token) || f.closed {
		return
	}
	if err := f.conn.AddMatchSignal(matchOptions(name)...); err != nil {
		f.logger.Warn().Err(err).Str("name", name).Msg("failed to add match rule")
	}
}

func (f *Facility) Unobserve(name string, token broadcast.Token) {
	f.mu.Lock()
	defer f.mu.Unlock()

	if f.observers.Remove(name, token) {
		f.removeMatchLocked(name)
	}
}

func (f *Facility) UnobserveAll(token broadcast.Token) {
	f.mu.Lock()
	defer f.mu.Unlock()

	for _, name := range f.observers.RemoveToken(token) {
		f.removeMatchLocked(name)
	}
}

func (f *Facility) removeMatchLocked(name string) {
	if f.closed {
		return
	}
	if err := f.conn.RemoveMatchSignal(matchOptions(name)...); err != nil {
		f.logger.Warn().Err(err).Str("name", name).Msg("failed to remove match rule")
	}
}

// Post emits the notification signal for name.
func (f *Facility) Post(name string) {
	if err := f.conn.Emit(Path, signalName, name); err != nil {
		f.logger.Warn().Err(err).Str("name", name).Msg("failed to emit notification")
	}
}

// Close stops delivery. The connection is closed only if NewSession opened
// it. Implements io.Closer. Safe to call multiple times.
func (f *Facility) Close() error {
	f.mu.Lock()
	if f.closed {
		f.mu.Unlock()
		return nil
	}
	f.closed = true
	f.mu.Unlock()

	f.conn.RemoveSignal(f.signals)
	close(f.signals)
	<-f.done

	if f.ownsConn {
		return f.conn.Close()
	}
	return nil
}

// NameFromSignal extracts the fully-qualified name from a Post signal.
func NameFromSignal(sig *dbus.Signal) (string, bool) {
	if sig == nil || sig.Name != signalName || sig.Path != Path || len(sig.Body) != 1 {
		return "", false
	}
	name, ok := sig.Body[0].(string)
	return name, ok
}

func (f *Facility) run() {
	defer close(f.done)

	for sig := range f.signals {
		name, ok := NameFromSignal(sig)
		if !ok {
			continue
		}
		for _, token := range f.observers.Tokens(name) {
			f.deliver(name, token)
		}
	}
}
