package broadcast

import (
	"sync"
	"sync/atomic"
	"weak"
)

// Token identifies one Broadcaster to facilities.
// Tokens are never reused within a process.
type Token uint64

// instances maps tokens to the Broadcaster that owns them. Entries hold weak
// references: the table never keeps a Broadcaster alive, and a delivery for a
// collected instance resolves to nil instead of a dangling pointer.
var instances = &instanceTable{entries: make(map[Token]weak.Pointer[Broadcaster])}

var tokenSeq atomic.Uint64

type instanceTable struct {
	mu      sync.RWMutex
	entries map[Token]weak.Pointer[Broadcaster]
}

func newToken() Token {
	return Token(tokenSeq.Add(1))
}

func (t *instanceTable) track(token Token, b *Broadcaster) {
	t.mu.Lock()
	t.entries[token] = weak.Make(b)
	t.mu.Unlock()
}

func (t *instanceTable) untrack(token Token) {
	t.mu.Lock()
	delete(t.entries, token)
	t.mu.Unlock()
}

func (t *instanceTable) resolve(token Token) *Broadcaster {
	t.mu.RLock()
	wp, ok := t.entries[token]
	t.mu.RUnlock()
	if !ok {
		return nil
	}
	return wp.Value()
}

// tracked reports whether token still has an entry, live or collected.
func (t *instanceTable) tracked(token Token) bool {
	t.mu.RLock()
	defer t.mu.RUnlock()
	_, ok := t.entries[token]
	return ok
}

// Deliver routes an inbound notification to the Broadcaster owning token.
// It is the single entry point every facility calls. Unknown tokens, collected
// instances and closed instances are ignored.
func Deliver(name string, token Token) {
	b := instances.resolve(token)
	if b == nil {
		return
	}
	b.dispatch(name)
}
