package broadcast

// Facility is a system-wide, payload-less publish/subscribe channel addressed
// by name. It identifies observers only by Token.
//
// Every method is fire-and-forget. Transport failures are the facility's to
// log; callers never see them.
//
// When a name is posted, the facility calls its DeliverFunc once for every
// token observing that name at the time of the post. Deliveries may happen on
// any goroutine.
type Facility interface {
	// Observe starts delivering name to token. Observing the same pair twice
	// must not cause duplicate deliveries.
	Observe(name string, token Token)

	// Unobserve stops delivering name to token.
	Unobserve(name string, token Token)

	// UnobserveAll stops every delivery to token, whatever the name.
	UnobserveAll(token Token)

	// Post notifies every current observer of name, in any process reachable
	// by the facility.
	Post(name string)
}

// DeliverFunc receives inbound notifications from a facility.
// Production facilities use Deliver; tests may inject their own.
type DeliverFunc func(name string, token Token)
