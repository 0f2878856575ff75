package broadcast

import "strings"

const (
	// Separator terminates every normalized prefix.
	Separator = "."

	// DefaultPrefix is used when New is called without WithPrefix, or with a
	// prefix made only of separators.
	DefaultPrefix = "tocsin" + Separator
)

// Identifier names one kind of event within a Broadcaster's own namespace.
type Identifier string

// Namespacer converts between identifiers and the fully-qualified names used on
// a shared facility. The zero value uses DefaultPrefix.
type Namespacer struct {
	prefix string
}

// NewNamespacer returns a Namespacer for prefix.
// Trailing separators are collapsed so "App" and "App." and "App.." qualify
// identically.
func NewNamespacer(prefix string) Namespacer {
	return Namespacer{prefix: normalizePrefix(prefix)}
}

func normalizePrefix(prefix string) string {
	trimmed := strings.TrimRight(prefix, Separator)
	if trimmed == "" {
		return DefaultPrefix
	}
	return trimmed + Separator
}

// Prefix returns the normalized prefix, always ending with Separator.
func (n Namespacer) Prefix() string {
	if n.prefix == "" {
		return DefaultPrefix
	}
	return n.prefix
}

// Qualify returns the fully-qualified name for id.
// Pattern: {prefix}{id}
func (n Namespacer) Qualify(id Identifier) string {
	return n.Prefix() + string(id)
}

// Dequalify strips one leading occurrence of the prefix from name.
// Names without the prefix are returned unchanged.
func (n Namespacer) Dequalify(name string) Identifier {
	return Identifier(strings.TrimPrefix(name, n.Prefix()))
}

// Owns reports whether name lies within this namespace.
func (n Namespacer) Owns(name string) bool {
	return strings.HasPrefix(name, n.Prefix())
}
