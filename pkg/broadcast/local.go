package broadcast

import "sync"

// LocalFacility is an in-memory Facility shared by every Broadcaster in the
// process. It is the default facility and the reference fake for tests.
type LocalFacility struct {
	observers   Observers
	deliver     DeliverFunc
	synchronous bool
}

// LocalOption configures a LocalFacility.
type LocalOption func(*LocalFacility)

// WithDeliverFunc replaces Deliver as the inbound callback.
func WithDeliverFunc(fn DeliverFunc) LocalOption {
	return func(l *LocalFacility) {
		if fn != nil {
			l.deliver = fn
		}
	}
}

// WithSynchronousDelivery makes Post deliver on the caller's goroutine before
// returning. By default deliveries run on a separate goroutine, as they would
// for a real system facility.
func WithSynchronousDelivery() LocalOption {
	return func(l *LocalFacility) {
		l.synchronous = true
	}
}

// NewLocalFacility returns an empty in-memory facility.
func NewLocalFacility(opts ...LocalOption) *LocalFacility {
	l := &LocalFacility{deliver: Deliver}
	for _, opt := range opts {
		opt(l)
	}
	return l
}

var local = sync.OnceValue(func() *LocalFacility {
	return NewLocalFacility()
})

// Local returns the process-wide in-memory facility.
func Local() *LocalFacility {
	return local()
}

func (l *LocalFacility) Observe(name string, token Token) {
	l.observers.Add(name, token)
}

func (l *LocalFacility) Unobserve(name string, token Token) {
	l.observers.Remove(name, token)
}

func (l *LocalFacility) UnobserveAll(token Token) {
	l.observers.RemoveToken(token)
}

// Post delivers name to a snapshot of its observers taken at call time.
func (l *LocalFacility) Post(name string) {
	tokens := l.observers.Tokens(name)
	if len(tokens) == 0 {
		return
	}

	deliver := func() {
		for _, token := range tokens {
			l.deliver(name, token)
		}
	}
	if l.synchronous {
		deliver()
		return
	}
	go deliver()
}

// Observed reports whether token observes name.
func (l *LocalFacility) Observed(name string, token Token) bool {
	return l.observers.Observed(name, token)
}

// ObserverCount returns the number of tokens observing name.
func (l *LocalFacility) ObserverCount(name string) int {
	return l.observers.Count(name)
}
