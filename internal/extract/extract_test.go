package extract

import (
	"fmt"
	"strings"
	"testing"

	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/JakeFAU/realtime-post-scraper/internal/catalog"
	"github.com/JakeFAU/realtime-post-scraper/internal/scrape"
)

const tweetHTML = `<html><head><title>Someone on X</title></head><body>
<article>
  <div data-testid="User-Name">Jane Doe @jane</div>
  <div data-testid="tweetText">Breaking: the bridge reopened this morning after repairs.</div>
  <div data-testid="tweetPhoto"><img src="https://pbs.twimg.com/media/a.jpg"></div>
  <img src="https://pbs.twimg.com/media/a.jpg">
  <img src="data:image/png;base64,AAAA">
  <time datetime="2024-05-01T10:00:00.000Z">May 1</time>
  <div data-testid="reply" aria-label="12 Replies. Reply"></div>
  <div data-testid="retweet"><span>1,234</span></div>
  <div data-testid="like"><span>likes</span></div>
</article>
<a href="/jane">Profile</a>
<a href="#top">Top</a>
<a href="javascript:void(0)">Noop</a>
<a href="https://example.com/story">Story</a>
<a href="/jane">Profile again</a>
</body></html>`

func mustParse(t *testing.T, html, pageURL string) *Document {
	t.Helper()
	doc, err := Parse(html, pageURL)
	require.NoError(t, err)
	return doc
}

func TestExtractTweet(t *testing.T) {
	t.Parallel()

	doc := mustParse(t, tweetHTML, "https://x.com/jane/status/42")
	f := New(nil, zap.NewNop()).Extract(doc, scrape.PageTypeSocialPost)

	require.Equal(t, "Breaking: the bridge reopened this morning after repairs.", f.MainText)
	require.Equal(t, "Jane Doe @jane", f.Author)
	require.Equal(t, []string{"https://pbs.twimg.com/media/a.jpg"}, f.Images)
	require.Equal(t, []string{"https://x.com/jane", "https://example.com/story"}, f.Links)
	require.NotNil(t, f.Timestamp)
	require.Equal(t, "2024-05-01T10:00:00.000Z", *f.Timestamp)
	require.Equal(t, map[string]string{"retweets": "1234", "likes": "0", "replies": "12"}, f.Metrics)
	require.Equal(t, "Someone on X", doc.Title())
}

func TestExtractEmptyPageUsesDefaults(t *testing.T) {
	t.Parallel()

	doc := mustParse(t, "<html><body><div>nothing</div></body></html>", "https://x.com/user/status/1234567890")
	f := New(nil, nil).Extract(doc, scrape.PageTypeSocialPost)

	require.Equal(t, scrape.MainTextPlaceholder, f.MainText)
	require.Equal(t, []string{}, f.Paragraphs)
	require.Equal(t, []string{}, f.Images)
	require.Equal(t, []string{}, f.Links)
	require.Equal(t, scrape.DefaultAuthor, f.Author)
	require.Nil(t, f.Timestamp)
	require.Empty(t, f.Metrics)
}

func TestParagraphsFilterDedupeAndCap(t *testing.T) {
	t.Parallel()

	var b strings.Builder
	b.WriteString("<html><body><article>")
	for i := range 20 {
		fmt.Fprintf(&b, "<p>This is paragraph number %02d of the article body.</p>", i)
	}
	b.WriteString("<p>Too short</p><p>tiny</p><p>exactly twenty chars</p>")
	b.WriteString("<p>Please SUBSCRIBE to our daily briefing today.</p>")
	b.WriteString("<p>Subscribe now for unlimited access to the archive.</p>")
	b.WriteString("</article></body></html>")

	doc := mustParse(t, b.String(), "https://www.thestar.com.my/news/1")
	paragraphs := Paragraphs(doc, catalog.Default().Rules(catalog.FieldParagraphs, scrape.PageTypeNewsArticle))

	require.Len(t, paragraphs, 20)
	require.Equal(t, "This is paragraph number 00 of the article body.", paragraphs[0])
	require.Equal(t, "This is paragraph number 19 of the article body.", paragraphs[19])
	assertParagraphInvariants(t, paragraphs)
}

func TestParagraphsCapAtTwenty(t *testing.T) {
	t.Parallel()

	var b strings.Builder
	b.WriteString("<html><body><main>")
	for i := range 30 {
		fmt.Fprintf(&b, "<p>Generic paragraph content line %02d here.</p>", i)
	}
	b.WriteString("</main></body></html>")

	doc := mustParse(t, b.String(), "https://example.org")
	paragraphs := Paragraphs(doc, catalog.Default().Rules(catalog.FieldParagraphs, scrape.PageTypeGeneric))
	require.Len(t, paragraphs, MaxParagraphs)
	assertParagraphInvariants(t, paragraphs)
}

func TestParagraphsUnionPreservesCatalogOrder(t *testing.T) {
	t.Parallel()

	html := `<html><body>
<div class="content"><p>Content block paragraph comes first in DOM.</p></div>
<article><p>Article paragraph appears later in the DOM.</p>
<p>Content block paragraph comes first in DOM.</p></article>
</body></html>`
	doc := mustParse(t, html, "https://example.org")
	rules := []catalog.Rule{{Query: "article p"}, {Query: ".content p"}}

	require.Equal(t, []string{
		"Article paragraph appears later in the DOM.",
		"Content block paragraph comes first in DOM.",
	}, Paragraphs(doc, rules))
}

func TestMainTextFallsBackToFirstParagraph(t *testing.T) {
	t.Parallel()

	html := `<html><body><div lang="en">short</div><article><p>The council approved the new budget on Monday.</p></article></body></html>`
	doc := mustParse(t, html, "https://news.example.com/a")
	f := New(nil, nil).Extract(doc, scrape.PageTypeUnknown)

	require.Equal(t, "The council approved the new budget on Monday.", f.MainText)
	require.Equal(t, []string{"The council approved the new budget on Monday."}, f.Paragraphs)
}

func TestImagesResolveFilterAndCap(t *testing.T) {
	t.Parallel()

	var b strings.Builder
	b.WriteString("<html><body><main>")
	b.WriteString(`<img src="data:image/gif;base64,R0lGOD">`)
	b.WriteString(`<img src="ftp://example.com/a.png">`)
	b.WriteString(`<img data-src="/lazy.png">`)
	for i := range 12 {
		fmt.Fprintf(&b, `<img src="https://cdn.example.com/%d.jpg">`, i)
	}
	b.WriteString(`<img src="https://cdn.example.com/0.jpg">`)
	b.WriteString("</main></body></html>")

	doc := mustParse(t, b.String(), "https://example.com/page")
	images := Images(doc, catalog.Default().Rules(catalog.FieldImages, scrape.PageTypeGeneric))

	require.Len(t, images, MaxImages)
	require.Equal(t, "https://example.com/lazy.png", images[0])
	seen := map[string]bool{}
	for _, img := range images {
		require.True(t, strings.HasPrefix(img, "http://") || strings.HasPrefix(img, "https://"), img)
		require.False(t, seen[img], "duplicate %s", img)
		seen[img] = true
	}
}

func TestLinksExcludeScriptAndFragments(t *testing.T) {
	t.Parallel()

	var b strings.Builder
	b.WriteString(`<html><body><a href="#">x</a><a href="#section">x</a><a href="JavaScript:alert(1)">x</a><a>none</a>`)
	for i := range 20 {
		fmt.Fprintf(&b, `<a href="/p/%d">x</a>`, i)
	}
	b.WriteString("</body></html>")

	doc := mustParse(t, b.String(), "https://example.com/")
	links := Links(doc, catalog.Default().Rules(catalog.FieldLinks, scrape.PageTypeUnknown))

	require.Len(t, links, MaxLinks)
	require.Equal(t, "https://example.com/p/0", links[0])
	for _, l := range links {
		require.NotContains(t, strings.ToLower(l), "javascript:")
		require.NotContains(t, l, "#")
	}
}

func TestAuthorConstraintsAndMetaFallback(t *testing.T) {
	t.Parallel()

	long := strings.Repeat("a", 120)
	html := `<html><head><meta name="author" content="Desk Reporter"></head><body>
<span class="author">A</span><span class="byline">` + long + `</span></body></html>`
	doc := mustParse(t, html, "https://example.com")
	c := catalog.Default()

	got := Author(doc, c.Rules(catalog.FieldAuthor, scrape.PageTypeUnknown), c.Rules(catalog.FieldAuthorMeta, scrape.PageTypeUnknown))
	require.Equal(t, "Desk Reporter", got)

	bare := mustParse(t, "<html><body></body></html>", "https://example.com")
	require.Equal(t, scrape.DefaultAuthor, Author(bare, c.Rules(catalog.FieldAuthor, scrape.PageTypeUnknown), nil))
}

func TestTimestampAttributePreference(t *testing.T) {
	t.Parallel()

	c := catalog.Default()
	rules := c.Rules(catalog.FieldTimestamp, scrape.PageTypeUnknown)

	withMeta := mustParse(t, `<html><head><meta property="article:published_time" content="2024-02-03T04:05:06Z"></head><body></body></html>`, "")
	ts := Timestamp(withMeta, rules)
	require.NotNil(t, ts)
	require.Equal(t, "2024-02-03T04:05:06Z", *ts)

	textOnly := mustParse(t, `<html><body><span class="publish-date"> 3 March 2024 </span></body></html>`, "")
	ts = Timestamp(textOnly, rules)
	require.NotNil(t, ts)
	require.Equal(t, "3 March 2024", *ts)
}

func TestExtractRecoversPerField(t *testing.T) {
	t.Parallel()

	f := New(nil, zap.NewNop()).Extract(nil, scrape.PageTypeUnknown)
	require.Equal(t, scrape.MainTextPlaceholder, f.MainText)
	require.Equal(t, scrape.DefaultAuthor, f.Author)
	require.Equal(t, []string{}, f.Paragraphs)
	require.Equal(t, map[string]string{}, f.Metrics)
	require.Nil(t, f.Timestamp)
}

func assertParagraphInvariants(t *testing.T, paragraphs []string) {
	t.Helper()
	require.LessOrEqual(t, len(paragraphs), MaxParagraphs)
	seen := map[string]bool{}
	for _, p := range paragraphs {
		require.Greater(t, len([]rune(p)), MinParagraphLen, p)
		require.False(t, containsBlockedPhrase(p), p)
		require.False(t, seen[p], "duplicate %q", p)
		seen[p] = true
	}
}
