package crawler

import (
	"net/url"
	"regexp"
	"strings"

	"github.com/PuerkitoBio/goquery"

	"github.com/nao1215/deepresearch/internal/model"
)

// maxSnippetLen bounds the provenance snippet attached to an extracted
// link. Long snippets bloat oracle prompts without adding signal.
const maxSnippetLen = 300

// textContextRadius is how many characters of surrounding text are kept
// around a URL found in plain text.
const textContextRadius = 100

// skippedSchemes are link schemes that can never yield fetchable pages.
var skippedSchemes = []string{"javascript:", "mailto:", "tel:", "data:"}

// textURLRe finds absolute URLs embedded in plain text.
var textURLRe = regexp.MustCompile(`https?://[^\s<>"')\]]+`)

// whitespaceRe collapses runs of whitespace in snippets.
var whitespaceRe = regexp.MustCompile(`\s+`)

// blockSelector lists the elements treated as a link's enclosing text
// block when building its snippet.
const blockSelector = "p, li, td, th, dd, blockquote, figcaption, h1, h2, h3, h4, h5, h6"

// ExtractFromHTML extracts outgoing links from an HTML page.
// Each link carries the provenance needed for relevance ranking:
// ParentContext chains the parent page's own context with its snippet,
// and Snippet is the text of the block the anchor sits in.
//
// Relative URLs are resolved against baseURL; javascript/mailto/tel/data
// links, bare fragments, and unparsable hrefs are skipped. Duplicate
// URLs within the page are merged.
func ExtractFromHTML(baseURL, html string, parent model.Link) []model.Link {
	doc, err := goquery.NewDocumentFromReader(strings.NewReader(html))
	if err != nil {
		return nil
	}

	base, err := url.Parse(baseURL)
	if err != nil {
		return nil
	}

	context := chainContext(parent)
	var links []model.Link
	doc.Find("a[href]").Each(func(_ int, sel *goquery.Selection) {
		href, _ := sel.Attr("href")
		resolved, ok := resolveURL(base, href)
		if !ok {
			return
		}

		links = append(links, model.Link{
			URL:           resolved,
			ParentContext: context,
			Snippet:       anchorSnippet(sel),
		})
	})

	return model.DedupeLinks(links)
}

// ExtractFromText extracts absolute URLs from plain text (PDF text,
// pre-formatted content). Each link's snippet is the text surrounding
// the URL, up to textContextRadius characters on each side.
func ExtractFromText(text string, parent model.Link) []model.Link {
	context := chainContext(parent)

	var links []model.Link
	for _, loc := range textURLRe.FindAllStringIndex(text, -1) {
		rawURL := strings.TrimRight(text[loc[0]:loc[1]], ".,;:")

		start := loc[0] - textContextRadius
		if start < 0 {
			start = 0
		}
		end := loc[1] + textContextRadius
		if end > len(text) {
			end = len(text)
		}

		links = append(links, model.Link{
			URL:           rawURL,
			ParentContext: context,
			Snippet:       cleanSnippet(text[start:end]),
		})
	}

	return model.DedupeLinks(links)
}

// chainContext builds an extracted link's ParentContext from its parent:
// the parent's own context joined with the parent's snippet. This is how
// discovery provenance accumulates across crawl generations.
func chainContext(parent model.Link) string {
	switch {
	case parent.ParentContext == "":
		return parent.Snippet
	case parent.Snippet == "" || strings.Contains(parent.ParentContext, parent.Snippet):
		return parent.ParentContext
	default:
		return parent.ParentContext + " | " + parent.Snippet
	}
}

// resolveURL resolves href against base and reports whether the result
// is a fetchable http(s) URL. Fragments are dropped so anchors within
// one page do not masquerade as distinct candidates.
func resolveURL(base *url.URL, href string) (string, bool) {
	href = strings.TrimSpace(href)
	if href == "" || strings.HasPrefix(href, "#") {
		return "", false
	}
	lower := strings.ToLower(href)
	for _, scheme := range skippedSchemes {
		if strings.HasPrefix(lower, scheme) {
			return "", false
		}
	}

	ref, err := url.Parse(href)
	if err != nil {
		return "", false
	}

	resolved := base.ResolveReference(ref)
	if resolved.Scheme != "http" && resolved.Scheme != "https" {
		return "", false
	}
	resolved.Fragment = ""
	return resolved.String(), true
}

// anchorSnippet returns the text of the block element enclosing the
// anchor, falling back to the anchor text itself.
func anchorSnippet(sel *goquery.Selection) string {
	snippet := sel.Closest(blockSelector).Text()
	if strings.TrimSpace(snippet) == "" {
		snippet = sel.Text()
	}
	return cleanSnippet(snippet)
}

// cleanSnippet collapses whitespace and bounds the snippet length.
func cleanSnippet(s string) string {
	s = strings.TrimSpace(whitespaceRe.ReplaceAllString(s, " "))
	if len(s) > maxSnippetLen {
		s = s[:maxSnippetLen]
	}
	return s
}
