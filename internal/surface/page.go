package surface

import (
	"fmt"
	"net/url"
	"strings"

	"github.com/PuerkitoBio/goquery"
	"github.com/go-shiori/go-readability"
	"github.com/microcosm-cc/bluemonday"
)

const (
	maxButtons   = 30
	maxLinks     = 30
	maxTextboxes = 20
	maxHeadings  = 10
	maxTextLines = 12
	maxLabelLen  = 80
	maxLineLen   = 200
)

const (
	buttonSelector  = `button, [role="button"], input[type="submit"], input[type="button"]`
	textboxSelector = `input:not([type="hidden"]):not([type="submit"]):not([type="button"]):not([type="checkbox"]):not([type="radio"]), textarea, [contenteditable="true"], [role="textbox"], [role="combobox"]`
)

// SummarizePage builds a Snapshot from raw page HTML.
func SummarizePage(html, pageURL string) (Snapshot, error) {
	doc, err := goquery.NewDocumentFromReader(strings.NewReader(html))
	if err != nil {
		return Snapshot{}, fmt.Errorf("failed to parse page: %w", err)
	}

	snap := Snapshot{
		Title: clean(doc.Find("title").First().Text(), maxLineLen),
		URL:   pageURL,
	}
	doc.Find("script, style, noscript, template").Remove()

	snap.Headings = collect(doc.Find("h1, h2, h3"), maxHeadings, func(s *goquery.Selection) string {
		return s.Text()
	})
	snap.Buttons = collect(doc.Find(buttonSelector), maxButtons, label)
	snap.Links = collect(doc.Find("a[href]"), maxLinks, label)
	snap.Textboxes = collect(doc.Find(textboxSelector), maxTextboxes, fieldLabel)
	snap.VisibleText = visibleText(html, pageURL, doc)
	return snap, nil
}

// ReadableText returns the main text of a page, sanitized.
func ReadableText(html, pageURL string) string {
	u, _ := url.Parse(pageURL)
	if u == nil {
		u = &url.URL{}
	}
	article, err := readability.FromReader(strings.NewReader(html), u)
	if err != nil {
		return ""
	}
	return strings.TrimSpace(bluemonday.StrictPolicy().Sanitize(article.TextContent))
}

func visibleText(html, pageURL string, doc *goquery.Document) []string {
	text := ReadableText(html, pageURL)
	if text == "" {
		text = bluemonday.StrictPolicy().Sanitize(doc.Find("body").Text())
	}
	var lines []string
	for _, line := range strings.Split(text, "\n") {
		line = clean(line, maxLineLen)
		if len(line) < 3 {
			continue
		}
		lines = append(lines, line)
		if len(lines) == maxTextLines {
			break
		}
	}
	return lines
}

func label(s *goquery.Selection) string {
	if v, ok := s.Attr("aria-label"); ok && strings.TrimSpace(v) != "" {
		return v
	}
	if t := s.Text(); strings.TrimSpace(t) != "" {
		return t
	}
	if v, ok := s.Attr("value"); ok {
		return v
	}
	v, _ := s.Attr("title")
	return v
}

func fieldLabel(s *goquery.Selection) string {
	for _, attr := range []string{"aria-label", "placeholder", "name", "id"} {
		if v, ok := s.Attr(attr); ok && strings.TrimSpace(v) != "" {
			return v
		}
	}
	return ""
}

func collect(sel *goquery.Selection, limit int, text func(*goquery.Selection) string) []string {
	seen := make(map[string]bool)
	var out []string
	sel.EachWithBreak(func(_ int, s *goquery.Selection) bool {
		t := clean(text(s), maxLabelLen)
		if t == "" || seen[strings.ToLower(t)] {
			return true
		}
		seen[strings.ToLower(t)] = true
		out = append(out, t)
		return len(out) < limit
	})
	return out
}

func clean(s string, max int) string {
	s = strings.Join(strings.Fields(s), " ")
	if r := []rune(s); len(r) > max {
		s = string(r[:max-3]) + "..."
	}
	return s
}
