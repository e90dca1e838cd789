package extract

import (
	"strings"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/JakeFAU/scrape-proxy/internal/scrape"
)

func TestClassify(t *testing.T) {
	t.Parallel()

	tests := []struct {
		url   string
		title string
		want  scrape.PageType
	}{
		{"https://alloweddomain.example/players/10", "", scrape.PageTypePlayer},
		{"https://alloweddomain.example/", "Best TEAM builds", scrape.PageTypeTeam},
		{"https://alloweddomain.example/tactics", "", scrape.PageTypeTactic},
		{"https://alloweddomain.example/", "4-3-3 Formation guide", scrape.PageTypeFormation},
		{"https://alloweddomain.example/database", "", scrape.PageTypeDatabase},
		{"https://alloweddomain.example/team/player", "", scrape.PageTypePlayer},
		{"https://alloweddomain.example/news", "Weekly news", scrape.PageTypeGeneral},
	}
	for _, tt := range tests {
		require.Equal(t, tt.want, Classify(tt.url, tt.title), "%s %q", tt.url, tt.title)
	}
}

func TestBuildPreview(t *testing.T) {
	t.Parallel()

	body := "<html><script>var x = 1;</script><style>p{}</style><p>Hello   <b>world</b></p></html>"
	p := BuildPreview([]byte(body))
	require.Equal(t, body, p.HTML)
	require.Equal(t, "Hello world", p.Text)

	long := strings.Repeat("é", 800)
	p = BuildPreview([]byte(long))
	require.Equal(t, PreviewChars, len([]rune(p.HTML)))
	require.Equal(t, PreviewChars, len([]rune(p.Text)))
}

func TestSizeKB(t *testing.T) {
	t.Parallel()

	require.Equal(t, 0, sizeKB(0))
	require.Equal(t, 0, sizeKB(511))
	require.Equal(t, 1, sizeKB(512))
	require.Equal(t, 2, sizeKB(2048))
}

func TestLinkCollectorRules(t *testing.T) {
	t.Parallel()

	c := newLinkCollector("https://alloweddomain.example/base/")
	c.add("rel", "Relative link")
	c.add("rel#frag", "Same target again")
	c.add("https://other.example/x", "abc")
	c.add("javascript:void(0)", "Script link")
	c.add("#anchor", "Jump to anchor")
	c.add("/long", strings.Repeat("x", 100))
	c.add("/ok", "  spaced   text  ")
	c.add("/cut", strings.Repeat("y", 90))

	require.Equal(t, []scrape.Link{
		{Text: "Relative link", Href: "https://alloweddomain.example/base/rel"},
		{Text: "spaced text", Href: "https://alloweddomain.example/ok"},
		{Text: strings.Repeat("y", maxLinkTextChars), Href: "https://alloweddomain.example/cut"},
	}, c.links)
}

func TestTruncateCountsCharacters(t *testing.T) {
	t.Parallel()

	require.Equal(t, "ñañ", truncate("ñañaña", 3))
	require.Equal(t, "short", truncate("short", 10))
}
