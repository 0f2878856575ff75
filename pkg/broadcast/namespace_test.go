package broadcast

import (
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"pgregory.net/rapid"
)

func TestNewNamespacer(t *testing.T) {
	testCases := []struct {
		name   string
		prefix string
		want   string
	}{
		{name: "appends separator", prefix: "App", want: "App."},
		{name: "keeps single separator", prefix: "App.", want: "App."},
		{name: "collapses repeated separators", prefix: "App...", want: "App."},
		{name: "keeps inner separators", prefix: "com.example.app", want: "com.example.app."},
		{name: "empty prefix falls back to default", prefix: "", want: DefaultPrefix},
		{name: "separator-only prefix falls back to default", prefix: "..", want: DefaultPrefix},
	}

	for _, tc := range testCases {
		t.Run(tc.name, func(t *testing.T) {
			assert.Equal(t, tc.want, NewNamespacer(tc.prefix).Prefix())
		})
	}
}

func TestNamespacerZeroValue(t *testing.T) {
	var ns Namespacer
	assert.Equal(t, DefaultPrefix, ns.Prefix())
	assert.Equal(t, DefaultPrefix+"sync", ns.Qualify("sync"))
}

func TestQualify(t *testing.T) {
	ns := NewNamespacer("App.")
	assert.Equal(t, "App.sync", ns.Qualify("sync"))
	assert.Equal(t, "App.", ns.Qualify(""))
	assert.Equal(t, NewNamespacer("App").Qualify("sync"), ns.Qualify("sync"))
}

func TestDequalify(t *testing.T) {
	ns := NewNamespacer("App")

	t.Run("strips prefix", func(t *testing.T) {
		assert.Equal(t, Identifier("sync"), ns.Dequalify("App.sync"))
	})

	t.Run("strips only one leading occurrence", func(t *testing.T) {
		assert.Equal(t, Identifier("App.sync"), ns.Dequalify("App.App.sync"))
	})

	t.Run("leaves foreign names unchanged", func(t *testing.T) {
		assert.Equal(t, Identifier("Other.sync"), ns.Dequalify("Other.sync"))
		assert.False(t, ns.Owns("Other.sync"))
	})
}

func TestNamespacerRoundTrip(t *testing.T) {
	rapid.Check(t, func(rt *rapid.T) {
		prefix := rapid.StringMatching(`[A-Za-z][A-Za-z0-9.]{0,12}`).Draw(rt, "prefix")
		raw := rapid.String().Draw(rt, "identifier")

		ns := NewNamespacer(prefix)
		if strings.HasPrefix(raw, ns.Prefix()) {
			rt.Skip("identifier begins with the prefix")
		}

		id := Identifier(raw)
		name := ns.Qualify(id)
		require.True(rt, ns.Owns(name))
		require.True(rt, strings.HasSuffix(ns.Prefix(), Separator))
		require.Equal(rt, id, ns.Dequalify(name))
	})
}

func TestNamespacerPrefixedIdentifierRoundTrip(t *testing.T) {
	// A literal single strip still round-trips identifiers that start with the prefix.
	ns := NewNamespacer("App")
	id := Identifier("App.nested")
	assert.Equal(t, id, ns.Dequalify(ns.Qualify(id)))
}
