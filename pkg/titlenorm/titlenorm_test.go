package titlenorm

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestNormalize(t *testing.T) {
	cases := []struct {
		name string
		in   string
		want string
	}{
		{"empty", "", ""},
		{"blank", "   \t ", ""},
		{"plain", "Buy Milk", "buy milk"},
		{"stacked prefixes", "[Health] [Errands]  Buy   Milk ", "buy milk"},
		{"prefix only", "[Project]", ""},
		{"diacritics", "Café Crème", "cafe creme"},
		{"inner brackets kept", "Fix [urgent] bug", "fix [urgent] bug"},
		{"tabs and newlines", "Call\tthe\ndentist", "call the dentist"},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			assert.Equal(t, tc.want, Normalize(tc.in))
		})
	}
}

func TestNormalizeEquivalence(t *testing.T) {
	assert.Equal(t, Normalize("buy milk"), Normalize("[Health] [Errands]  Buy   Milk "))
	assert.True(t, Equal("Résumé review", "[Work] resume   REVIEW"))
	assert.False(t, Equal("pay rent", "pay rent twice"))
}

func TestNormalizeIsIdempotent(t *testing.T) {
	for _, in := range []string{"[A] Ça va", "  x  ", "Über [b] c"} {
		once := Normalize(in)
		assert.Equal(t, once, Normalize(once), in)
	}
}

func TestStripPrefixes(t *testing.T) {
	assert.Equal(t, "Text", StripPrefixes("[Project] [Sub] Text"))
	assert.Equal(t, "Café", StripPrefixes("  [x]Café  "))
	assert.Equal(t, "No prefix", StripPrefixes("No prefix"))
}

func TestScopedKey(t *testing.T) {
	assert.Equal(t, ScopedKey("list-1", "Pay Rent"), ScopedKey("list-1", "[Home] pay  rent"))
	assert.NotEqual(t, ScopedKey("list-1", "Pay Rent"), ScopedKey("list-2", "Pay Rent"))
}
