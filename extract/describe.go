package extract

import (
	"strings"

	"github.com/JohannesKaufmann/html-to-markdown/v2/converter"
	"github.com/JohannesKaufmann/html-to-markdown/v2/plugin/base"
	"github.com/JohannesKaufmann/html-to-markdown/v2/plugin/commonmark"
	"github.com/microcosm-cc/bluemonday"
	"golang.org/x/net/html"
)

// Shared across calls; both are safe for concurrent use.
var (
	descPolicy    = bluemonday.UGCPolicy()
	descConverter = converter.NewConverter(
		converter.WithPlugins(
			base.NewBasePlugin(),
			commonmark.NewCommonmarkPlugin(),
		),
	)
)

// describePanel turns a detail-panel subtree into description text:
// sanitize the scraped HTML, convert to markdown, fall back to the raw
// visible text when conversion yields nothing.
func describePanel(panel *html.Node) string {
	raw := renderNode(panel)
	fallback := collectText(panel)

	clean := descPolicy.Sanitize(raw)
	md, err := descConverter.ConvertString(clean)
	if err != nil || strings.TrimSpace(md) == "" {
		return strings.TrimSpace(fallback)
	}
	return strings.TrimSpace(md)
}
