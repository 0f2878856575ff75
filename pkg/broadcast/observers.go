package broadcast

import "sync"

// Observers tracks which tokens observe which names.
// Facilities embed it to implement ref-counted subscriptions: a name needs a
// transport-level subscription while at least one token observes it.
//
// The zero value is ready to use and safe for concurrent use.
type Observers struct {
	mu      sync.RWMutex
	byName  map[string]map[Token]struct{}
	byToken map[Token]map[string]struct{}
}

// Add records that token observes name. first is true when name had no
// observers before the call.
func (o *Observers) Add(name string, token Token) (first bool) {
	o.mu.Lock()
	defer o.mu.Unlock()

	if o.byName == nil {
		o.byName = make(map[string]map[Token]struct{})
		o.byToken = make(map[Token]map[string]struct{})
	}

	tokens, exists := o.byName[name]
	if !exists {
		tokens = make(map[Token]struct{})
		o.byName[name] = tokens
	}
	tokens[token] = struct{}{}

	names, ok := o.byToken[token]
	if !ok {
		names = make(map[string]struct{})
		o.byToken[token] = names
	}
	names[name] = struct{}{}

	return !exists
}

// Remove drops the (name, token) pair. last is true when name has no
// observers left after the call and had at least one before it.
func (o *Observers) Remove(name string, token Token) (last bool) {
	o.mu.Lock()
	defer o.mu.Unlock()
	return o.removeLocked(name, token)
}

func (o *Observers) removeLocked(name string, token Token) bool {
	tokens, ok := o.byName[name]
	if !ok {
		return false
	}
	if _, ok := tokens[token]; !ok {
		return false
	}
	delete(tokens, token)

	if names, ok := o.byToken[token]; ok {
		delete(names, name)
		if len(names) == 0 {
			delete(o.byToken, token)
		}
	}

	if len(tokens) == 0 {
		delete(o.byName, name)
		return true
	}
	return false
}

// RemoveToken drops every observation held by token and returns the names
// that no longer have any observer.
func (o *Observers) RemoveToken(token Token) (emptied []string) {
	o.mu.Lock()
	defer o.mu.Unlock()

	for name := range o.byToken[token] {
		if o.removeLocked(name, token) {
			emptied = append(emptied, name)
		}
	}
	return emptied
}

// Tokens returns a snapshot of the tokens observing name.
func (o *Observers) Tokens(name string) []Token {
	o.mu.RLock()
	defer o.mu.RUnlock()

	tokens := o.byName[name]
	if len(tokens) == 0 {
		return nil
	}
	out := make([]Token, 0, len(tokens))
	for token := range tokens {
		out = append(out, token)
	}
	return out
}

// Names returns a snapshot of every name with at least one observer.
func (o *Observers) Names() []string {
	o.mu.RLock()
	defer o.mu.RUnlock()

	out := make([]string, 0, len(o.byName))
	for name := range o.byName {
		out = append(out, name)
	}
	return out
}

// Observed reports whether token currently observes name.
func (o *Observers) Observed(name string, token Token) bool {
	o.mu.RLock()
	defer o.mu.RUnlock()
	_, ok := o.byName[name][token]
	return ok
}

// Count returns the number of tokens observing name.
func (o *Observers) Count(name string) int {
	o.mu.RLock()
	defer o.mu.RUnlock()
	return len(o.byName[name])
}
