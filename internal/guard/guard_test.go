package guard

import (
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/JakeFAU/scrape-proxy/internal/scrape"
)

func TestValidateNormalizes(t *testing.T) {
	t.Parallel()

	g := New("AllowedDomain.example", true)
	tests := []struct {
		name string
		in   string
		want string
	}{
		{"root", "https://alloweddomain.example/", "https://alloweddomain.example/"},
		{"empty path gets slash", "https://alloweddomain.example", "https://alloweddomain.example/"},
		{"http upgraded", "http://alloweddomain.example/players", "https://alloweddomain.example/players"},
		{"scheme added", "alloweddomain.example/teams?id=4", "https://alloweddomain.example/teams?id=4"},
		{"host lowercased", "https://AllowedDomain.EXAMPLE/Players", "https://alloweddomain.example/Players"},
		{"default port dropped", "https://alloweddomain.example:443/x", "https://alloweddomain.example/x"},
		{"custom port kept", "https://alloweddomain.example:8443/x", "https://alloweddomain.example:8443/x"},
		{"fragment dropped", "https://alloweddomain.example/x#top", "https://alloweddomain.example/x"},
		{"trailing slash kept", "https://alloweddomain.example/players/", "https://alloweddomain.example/players/"},
		{"subdomain", "https://www.alloweddomain.example/", "https://www.alloweddomain.example/"},
		{"whitespace trimmed", "  https://alloweddomain.example/a  ", "https://alloweddomain.example/a"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()
			got, err := g.Validate(tt.in)
			require.NoError(t, err)
			require.Equal(t, tt.want, got.String())
			require.False(t, got.IsZero())
		})
	}
}

func TestValidateRejects(t *testing.T) {
	t.Parallel()

	g := New("alloweddomain.example", true)
	tests := []struct {
		name string
		in   string
		kind scrape.Kind
	}{
		{"empty", "", scrape.KindMalformedURL},
		{"blank", "   ", scrape.KindMalformedURL},
		{"bad scheme", "ftp://alloweddomain.example/", scrape.KindMalformedURL},
		{"javascript", "javascript:alert(1)", scrape.KindMalformedURL},
		{"unparseable", "https://alloweddomain.example/%zz", scrape.KindMalformedURL},
		{"credentials", "https://user:pw@alloweddomain.example/", scrape.KindMalformedURL},
		{"no host", "https:///path", scrape.KindMalformedURL},
		{"other domain", "https://evil.example/", scrape.KindInvalidDomain},
		{"suffix trick", "https://notalloweddomain.example/", scrape.KindInvalidDomain},
		{"domain in path", "https://evil.example/alloweddomain.example", scrape.KindInvalidDomain},
		{"domain as subdomain of other", "https://alloweddomain.example.evil.com/", scrape.KindInvalidDomain},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()
			got, err := g.Validate(tt.in)
			require.Error(t, err)
			require.Equal(t, tt.kind, scrape.KindOf(err))
			require.True(t, got.IsZero())
		})
	}
}

func TestValidateExactHostOnly(t *testing.T) {
	t.Parallel()

	g := New("alloweddomain.example", false)
	_, err := g.Validate("https://www.alloweddomain.example/")
	require.Equal(t, scrape.KindInvalidDomain, scrape.KindOf(err))

	got, err := g.Validate("https://alloweddomain.example/players")
	require.NoError(t, err)
	require.Equal(t, "https://alloweddomain.example/players", got.String())
}
