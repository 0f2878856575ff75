package broadcast

import (
	"bytes"
	"fmt"
	"runtime"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// setupBroadcaster creates a broadcaster on a private synchronous facility.
func setupBroadcaster(t *testing.T, prefix string) (*Broadcaster, *LocalFacility) {
	facility := NewLocalFacility(WithSynchronousDelivery())
	b := New(WithPrefix(prefix), WithFacility(facility))
	t.Cleanup(func() { b.Close() })
	return b, facility
}

// uniquePrefix keeps tests that share Local() from seeing each other's names.
func uniquePrefix() string {
	return "test-" + uuid.New().String()
}

func TestNew(t *testing.T) {
	t.Run("uses defaults", func(t *testing.T) {
		b := New()
		defer b.Close()

		assert.Equal(t, DefaultPrefix, b.Prefix())
		assert.NotZero(t, b.Token())
		assert.Empty(t, b.Identifiers())
	})

	t.Run("normalizes prefix", func(t *testing.T) {
		b := New(WithPrefix("App"))
		defer b.Close()
		assert.Equal(t, "App.", b.Prefix())
		assert.Equal(t, "App.sync", b.Namespacer().Qualify("sync"))
	})

	t.Run("tokens are unique", func(t *testing.T) {
		a := New()
		defer a.Close()
		b := New()
		defer b.Close()
		assert.NotEqual(t, a.Token(), b.Token())
	})

	t.Run("nil facility keeps default", func(t *testing.T) {
		b := New(WithFacility(nil), WithPrefix(uniquePrefix()))
		defer b.Close()

		b.Register("sync", func() {})
		assert.True(t, Local().Observed(b.Namespacer().Qualify("sync"), b.Token()))
	})
}

func TestRegisterPostUnregisterScenario(t *testing.T) {
	b, facility := setupBroadcaster(t, "App.")
	var calls atomic.Int32

	b.Register("sync", func() { calls.Add(1) })
	assert.True(t, facility.Observed("App.sync", b.Token()))

	b.Post("sync")
	assert.Equal(t, int32(1), calls.Load())

	b.Unregister("sync")
	assert.False(t, facility.Observed("App.sync", b.Token()))

	b.Post("sync")
	assert.Equal(t, int32(1), calls.Load())
}

func TestPostDeliversAsynchronously(t *testing.T) {
	b := New(WithPrefix(uniquePrefix()))
	defer b.Close()

	var calls atomic.Int32
	b.Register("sync", func() { calls.Add(1) })

	for i := 0; i < 3; i++ {
		b.Post("sync")
	}

	require.Eventually(t, func() bool {
		return calls.Load() == 3
	}, time.Second, 5*time.Millisecond)

	// No extra deliveries trickle in afterwards.
	time.Sleep(50 * time.Millisecond)
	assert.Equal(t, int32(3), calls.Load())
}

func TestUnregister(t *testing.T) {
	t.Run("removed handler is never invoked", func(t *testing.T) {
		b := New(WithPrefix(uniquePrefix()))
		defer b.Close()

		var calls atomic.Int32
		b.Register("sync", func() { calls.Add(1) })
		b.Unregister("sync")

		b.Post("sync")
		time.Sleep(50 * time.Millisecond)
		assert.Zero(t, calls.Load())
	})

	t.Run("unknown identifier is a no-op", func(t *testing.T) {
		b, facility := setupBroadcaster(t, "App")
		b.Unregister("never")
		b.Unregister("never")
		assert.Zero(t, facility.ObserverCount("App.never"))
	})

	t.Run("nil handler unregisters", func(t *testing.T) {
		b, facility := setupBroadcaster(t, "App")
		b.Register("sync", func() {})
		b.Register("sync", nil)

		assert.Empty(t, b.Identifiers())
		assert.False(t, facility.Observed("App.sync", b.Token()))
	})
}

func TestRegisterReplacesHandler(t *testing.T) {
	b, facility := setupBroadcaster(t, "App")
	var oldCalls, newCalls atomic.Int32

	b.Register("sync", func() { oldCalls.Add(1) })
	b.Register("sync", func() { newCalls.Add(1) })

	assert.Equal(t, 1, facility.ObserverCount("App.sync"))
	assert.Equal(t, []Identifier{"sync"}, b.Identifiers())

	b.Post("sync")
	assert.Zero(t, oldCalls.Load())
	assert.Equal(t, int32(1), newCalls.Load())
}

func TestPostUnknownIdentifier(t *testing.T) {
	b, _ := setupBroadcaster(t, "App")
	var calls atomic.Int32
	b.Register("sync", func() { calls.Add(1) })

	assert.NotPanics(t, func() { b.Post("unrelated") })
	assert.Zero(t, calls.Load())
}

func TestDeliver(t *testing.T) {
	t.Run("unknown token is ignored", func(t *testing.T) {
		assert.NotPanics(t, func() { Deliver("App.sync", Token(1<<62)) })
	})

	t.Run("name outside namespace is ignored", func(t *testing.T) {
		b, _ := setupBroadcaster(t, "App")
		var calls atomic.Int32
		b.Register("sync", func() { calls.Add(1) })

		Deliver("sync", b.Token())
		Deliver("Other.sync", b.Token())
		assert.Zero(t, calls.Load())

		Deliver("App.sync", b.Token())
		assert.Equal(t, int32(1), calls.Load())
	})
}

func TestClose(t *testing.T) {
	t.Run("releases observations and later deliveries", func(t *testing.T) {
		facility := NewLocalFacility(WithSynchronousDelivery())
		old := New(WithPrefix("App"), WithFacility(facility))
		var oldCalls atomic.Int32
		old.Register("sync", func() { oldCalls.Add(1) })
		old.Register("refresh", func() { oldCalls.Add(1) })

		require.NoError(t, old.Close())
		assert.False(t, facility.Observed("App.sync", old.Token()))
		assert.False(t, facility.Observed("App.refresh", old.Token()))
		assert.False(t, instances.tracked(old.Token()))

		live := New(WithPrefix("App"), WithFacility(facility))
		defer live.Close()
		var liveCalls atomic.Int32
		live.Register("sync", func() { liveCalls.Add(1) })

		live.Post("sync")
		Deliver("App.sync", old.Token())

		assert.Zero(t, oldCalls.Load())
		assert.Equal(t, int32(1), liveCalls.Load())
	})

	t.Run("is idempotent", func(t *testing.T) {
		b := New()
		assert.NoError(t, b.Close())
		assert.NoError(t, b.Close())
	})

	t.Run("register and post after close do nothing", func(t *testing.T) {
		facility := NewLocalFacility(WithSynchronousDelivery())
		b := New(WithPrefix("App"), WithFacility(facility))
		require.NoError(t, b.Close())

		var calls atomic.Int32
		b.Register("sync", func() { calls.Add(1) })
		b.Post("sync")

		assert.Zero(t, facility.ObserverCount("App.sync"))
		assert.Zero(t, calls.Load())
	})
}

func TestCollectedBroadcasterReleasesObservations(t *testing.T) {
	facility := NewLocalFacility(WithSynchronousDelivery())
	var calls atomic.Int32

	token := func() Token {
		b := New(WithPrefix("App"), WithFacility(facility))
		b.Register("sync", func() { calls.Add(1) })
		require.True(t, facility.Observed("App.sync", b.Token()))
		require.True(t, instances.tracked(b.Token()))
		return b.Token()
	}()

	require.Eventually(t, func() bool {
		runtime.GC()
		return !facility.Observed("App.sync", token)
	}, 5*time.Second, 10*time.Millisecond)

	assert.False(t, instances.tracked(token), "collected instances leave the table")
	assert.Nil(t, instances.resolve(token))
	Deliver("App.sync", token)
	facility.Post("App.sync")
	assert.Zero(t, calls.Load())
}

func TestPrefixesDoNotCrossDeliver(t *testing.T) {
	facility := NewLocalFacility(WithSynchronousDelivery())
	a := New(WithPrefix("A"), WithFacility(facility))
	defer a.Close()
	b := New(WithPrefix("B"), WithFacility(facility))
	defer b.Close()

	var aCalls, bCalls atomic.Int32
	a.Register("sync", func() { aCalls.Add(1) })
	b.Register("sync", func() { bCalls.Add(1) })

	a.Post("sync")
	assert.Equal(t, int32(1), aCalls.Load())
	assert.Zero(t, bCalls.Load())

	b.Post("sync")
	assert.Equal(t, int32(1), aCalls.Load())
	assert.Equal(t, int32(1), bCalls.Load())
}

func TestSamePrefixInstancesShareNames(t *testing.T) {
	facility := NewLocalFacility(WithSynchronousDelivery())
	producer := New(WithPrefix("App"), WithFacility(facility))
	defer producer.Close()
	consumer := New(WithPrefix("App"), WithFacility(facility))
	defer consumer.Close()

	var calls atomic.Int32
	consumer.Register("sync", func() { calls.Add(1) })

	producer.Post("sync")
	assert.Equal(t, int32(1), calls.Load())

	// Removing one instance's observation leaves the other's intact.
	producer.Register("sync", func() {})
	producer.Unregister("sync")
	producer.Post("sync")
	assert.Equal(t, int32(2), calls.Load())
}

func TestHandlerPanicIsRecovered(t *testing.T) {
	var buf bytes.Buffer
	facility := NewLocalFacility(WithSynchronousDelivery())
	b := New(
		WithPrefix("App"),
		WithFacility(facility),
		WithLogger(zerolog.New(&buf)),
	)
	defer b.Close()

	var after atomic.Int32
	b.Register("boom", func() { panic("handler failure") })
	b.Register("after", func() { after.Add(1) })

	assert.NotPanics(t, func() { b.Post("boom") })
	b.Post("after")

	assert.Equal(t, int32(1), after.Load())
	assert.Contains(t, buf.String(), "handler panicked")
}

func TestWithPostRate(t *testing.T) {
	facility := NewLocalFacility(WithSynchronousDelivery())
	b := New(WithPrefix("App"), WithFacility(facility), WithPostRate(0, 2))
	defer b.Close()

	var calls atomic.Int32
	b.Register("sync", func() { calls.Add(1) })

	for i := 0; i < 5; i++ {
		b.Post("sync")
	}
	assert.Equal(t, int32(2), calls.Load())
}

func TestHandlerMayUseBroadcaster(t *testing.T) {
	b, _ := setupBroadcaster(t, "App")
	var calls atomic.Int32

	b.Register("once", func() {
		calls.Add(1)
		b.Unregister("once")
	})

	b.Post("once")
	b.Post("once")
	assert.Equal(t, int32(1), calls.Load())
}

func TestConcurrentRegisterPostUnregister(t *testing.T) {
	b := New(WithPrefix(uniquePrefix()))
	defer b.Close()

	var wg sync.WaitGroup
	for i := 0; i < 4; i++ {
		id := Identifier(fmt.Sprintf("event-%d", i))
		wg.Add(2)
		go func() {
			defer wg.Done()
			for j := 0; j < 100; j++ {
				b.Register(id, func() {})
				b.Unregister(id)
			}
		}()
		go func() {
			defer wg.Done()
			for j := 0; j < 100; j++ {
				b.Post(id)
			}
		}()
	}
	wg.Wait()

	assert.Empty(t, b.Identifiers())
	for i := 0; i < 4; i++ {
		name := b.Namespacer().Qualify(Identifier(fmt.Sprintf("event-%d", i)))
		assert.False(t, Local().Observed(name, b.Token()))
	}
}
