// Package broadcast lets processes on the same machine signal each other with
// named, payload-less events.
//
// # Overview
//
// A Broadcaster owns a prefix, a registry of handlers and one opaque Token.
// Handlers are registered against application-level Identifiers. Every
// registered identifier is observed on a shared Facility under its
// fully-qualified name (prefix + identifier), so unrelated broadcasters using
// the same facility do not collide.
//
// Facilities are system-wide channels addressed only by name. They know
// nothing about Broadcasters: when a name is posted they call the package-level
// Deliver function with the name and the Token of each observer. Deliver
// resolves the token through a process-wide table of weak references, so a
// delivery that races with a Broadcaster being collected or closed is a no-op.
//
// # Facilities
//
// This package ships a process-local facility (Local). Cross-process facilities
// live in sub-packages:
//
//   - redisfacility: Redis Pub/Sub channels
//   - fsfacility: a shared directory watched with fsnotify
//   - dbusfacility: D-Bus session bus signals
//
// # Usage Example
//
//	b := broadcast.New(broadcast.WithPrefix("App"))
//	defer b.Close()
//
//	b.Register("sync", func() {
//		log.Println("sync requested")
//	})
//
//	// Any process observing "App.sync" is notified, including this one.
//	b.Post("sync")
//
// # Naming
//
// Fully-qualified names follow the pattern {prefix}{identifier}. The prefix is
// normalized once at construction to end with exactly one separator.
//
// # Lifetime
//
// Close releases every observation of the Broadcaster. If the caller drops the
// last reference without calling Close, the same release happens when the
// garbage collector reclaims the instance.
package broadcast
