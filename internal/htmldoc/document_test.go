package htmldoc_test

import (
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"golang.org/x/net/html"

	"github.com/jonesrussell/north-cloud/linksync/internal/htmldoc"
)

func parse(t *testing.T, body string) htmldoc.Document {
	t.Helper()
	doc, err := htmldoc.NewParser().Parse(body)
	require.NoError(t, err)
	return doc
}

func TestAnchors(t *testing.T) {
	t.Parallel()

	doc := parse(t, `<p>See <a href=" /products/widget " rel="nofollow UGC">the Widget</a> and
<a href="https://x.test" data-linksync="1">x</a><a name="top">no href</a></p>`)

	anchors := doc.Anchors()
	require.Len(t, anchors, 2)
	assert.Equal(t, "/products/widget", anchors[0].Href)
	assert.Equal(t, "the Widget", anchors[0].Text)
	assert.Equal(t, []string{"nofollow", "ugc"}, anchors[0].RelValues())
	assert.False(t, anchors[0].Generated)
	assert.True(t, anchors[1].Generated)
}

func TestTextNodes_SkipsAnchorsAndExcludedTags(t *testing.T) {
	t.Parallel()

	doc := parse(t, `<h2>Widget</h2><p>Buy <a href="/a">Widget</a> now</p><code>Widget</code><script>var Widget;</script>`)

	var texts []string
	for _, n := range doc.TextNodes([]string{"h2", "code"}) {
		texts = append(texts, n.Text)
	}
	assert.Equal(t, []string{"Buy ", " now"}, texts)
}

func TestTextNodes_OffsetsCoverVisibleText(t *testing.T) {
	t.Parallel()

	doc := parse(t, `<p>abc<a href="/x">de</a>fgh</p>`)
	nodes := doc.TextNodes(nil)
	require.Len(t, nodes, 2)
	assert.Equal(t, 0, nodes[0].Offset)
	assert.Equal(t, 5, nodes[1].Offset)
	assert.Equal(t, 8, doc.TextLength())
}

func TestWrapText(t *testing.T) {
	t.Parallel()

	doc := parse(t, `<p>Buy our Widget today.</p>`)
	nodes := doc.TextNodes(nil)
	require.Len(t, nodes, 1)

	start := strings.Index(nodes[0].Text, "Widget")
	err := doc.WrapText(nodes[0], start, start+len("Widget"), []html.Attribute{
		{Key: "href", Val: "/products/widget?a=1&b=2"},
		{Key: htmldoc.GeneratedAttr, Val: "1"},
	})
	require.NoError(t, err)

	out, err := doc.Render()
	require.NoError(t, err)
	assert.Equal(t, `<p>Buy our <a href="/products/widget?a=1&amp;b=2" data-linksync="1">Widget</a> today.</p>`, out)

	// The wrapped node is now detached.
	assert.ErrorIs(t, doc.WrapText(nodes[0], 0, 1, nil), htmldoc.ErrDetachedNode)
}

func TestPlainText_CollapsesWhitespace(t *testing.T) {
	t.Parallel()

	doc := parse(t, "<p>Hello\n  <b>big</b></p><p>world</p><style>p{}</style>")
	assert.Equal(t, "Hello big world", doc.PlainText())
}

func TestSummarize(t *testing.T) {
	t.Parallel()

	body := "<p>" + strings.Repeat("word ", 40) + "</p>"
	sum, err := htmldoc.Summarize(htmldoc.NewParser(), body, 5)
	require.NoError(t, err)
	assert.Equal(t, 40, sum.WordCount)
	assert.Equal(t, "word word word word word…", sum.Excerpt)
}

func TestIndexFold(t *testing.T) {
	t.Parallel()

	assert.Equal(t, 8, htmldoc.IndexFold("Buy our WIDGET", "widget", 0))
	assert.Equal(t, -1, htmldoc.IndexFold("Buy our WIDGET", "widget", 9))
	assert.Equal(t, -1, htmldoc.IndexFold("abc", "", 0))
	assert.True(t, htmldoc.ContainsFold("blue\n  Widget", "Blue widget"))
	assert.False(t, htmldoc.ContainsFold("gadget", "widget"))
}
