package dbusfacility

import (
	"os"
	"strings"
	"sync/atomic"
	"testing"
	"time"

	"github.com/dyluth/tocsin/pkg/broadcast"
	"github.com/godbus/dbus/v5"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestNameFromSignal(t *testing.T) {
	testCases := []struct {
		name   string
		signal *dbus.Signal
		want   string
		wantOK bool
	}{
		{
			name:   "valid post signal",
			signal: &dbus.Signal{Path: Path, Name: signalName, Body: []interface{}{"App.sync"}},
			want:   "App.sync",
			wantOK: true,
		},
		{
			name:   "nil signal",
			signal: nil,
		},
		{
			name:   "other member",
			signal: &dbus.Signal{Path: Path, Name: Interface + ".Other", Body: []interface{}{"App.sync"}},
		},
		{
			name:   "other path",
			signal: &dbus.Signal{Path: "/elsewhere", Name: signalName, Body: []interface{}{"App.sync"}},
		},
		{
			name:   "missing body",
			signal: &dbus.Signal{Path: Path, Name: signalName},
		},
		{
			name:   "non-string body",
			signal: &dbus.Signal{Path: Path, Name: signalName, Body: []interface{}{42}},
		},
	}

	for _, tc := range testCases {
		t.Run(tc.name, func(t *testing.T) {
			got, ok := NameFromSignal(tc.signal)
			assert.Equal(t, tc.wantOK, ok)
			assert.Equal(t, tc.want, got)
		})
	}
}

func TestMatchOptions(t *testing.T) {
	assert.Len(t, matchOptions("App.sync"), 4)
}

func TestQuoteMatchValue(t *testing.T) {
	testCases := []struct {
		name  string
		value string
		want  string
	}{
		{name: "plain", value: "App.sync", want: "App.sync"},
		{name: "single quote", value: "App.it's", want: `App.it'\''s`},
		{name: "only quotes", value: `''`, want: `'\'''\''`},
		{name: "backslash is literal", value: `App.a\b`, want: `App.a\b`},
	}

	for _, tc := range testCases {
		t.Run(tc.name, func(t *testing.T) {
			quoted := quoteMatchValue(tc.value)
			assert.Equal(t, tc.want, quoted)
			// godbus wraps the value in single quotes; the bus daemon must
			// read the original name back.
			assert.Equal(t, tc.value, unquoteMatchRule(`'`+quoted+`'`))
		})
	}
}

// unquoteMatchRule reads a match rule value the way the bus daemon does:
// quotes toggle quoted runs and \' outside a run is a literal quote.
func unquoteMatchRule(s string) string {
	var out strings.Builder
	quoted := false
	for i := 0; i < len(s); i++ {
		switch {
		case s[i] == '\'':
			quoted = !quoted
		case !quoted && s[i] == '\\' && i+1 < len(s) && s[i+1] == '\'':
			out.WriteByte('\'')
			i++
		default:
			out.WriteByte(s[i])
		}
	}
	return out.String()
}

// TestSessionBusRoundTrip needs a running session bus.
func TestSessionBusRoundTrip(t *testing.T) {
	if os.Getenv("DBUS_SESSION_BUS_ADDRESS") == "" {
		t.Skip("DBUS_SESSION_BUS_ADDRESS not set")
	}

	f, err := NewSession()
	require.NoError(t, err)
	defer f.Close()

	b := broadcast.New(broadcast.WithPrefix("io.tocsin.test"), broadcast.WithFacility(f))
	defer b.Close()

	var calls atomic.Int32
	b.Register("sync", func() { calls.Add(1) })

	b.Post("sync")
	require.Eventually(t, func() bool {
		return calls.Load() == 1
	}, 2*time.Second, 10*time.Millisecond)

	b.Unregister("sync")
	b.Post("sync")
	time.Sleep(100 * time.Millisecond)
	assert.Equal(t, int32(1), calls.Load())

	var quotedCalls atomic.Int32
	b.Register("it's", func() { quotedCalls.Add(1) })
	b.Post("it's")
	require.Eventually(t, func() bool {
		return quotedCalls.Load() == 1
	}, 2*time.Second, 10*time.Millisecond)
}
