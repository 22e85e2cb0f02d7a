package flights

import (
	"fmt"
	"regexp"
	"strconv"
	"strings"

	"github.com/PuerkitoBio/goquery"
)

const (
	maxCards    = 10
	maxFallback = 5
)

var cardSelectors = []string{
	".flight-result",
	"[data-testid*='flight']",
	"[data-test*='flight']",
	".result-item",
	"li[role='listitem']",
	".gws-flights__best-flights li",
	".gws-flights-results__result-item",
	".search-result",
}

const airlineSelector = "[data-test*='airline'], [data-testid*='airline'], .airline, .carrier"

var (
	priceRe    = regexp.MustCompile(`\$(\d+(?:,\d{3})*(?:\.\d{2})?)`)
	timeRe     = regexp.MustCompile(`(?i)\b(\d{1,2}:\d{2}(?:\s*[AP]M)?)`)
	durationRe = regexp.MustCompile(`(?i)(?:(\d+)\s*h(?:rs?|ours?)?)?\s*(?:(\d+)\s*m(?:in)?)?`)
	nonstopRe  = regexp.MustCompile(`(?i)\b(?:nonstop|non-stop|direct)\b`)
	stopsRe    = regexp.MustCompile(`(?i)\b(\d+)\s+stops?\b`)
	durTextRe  = regexp.MustCompile(`(?i)\b\d+\s*h(?:rs?)?\s*(?:\d+\s*m(?:in)?)?\b`)
)

// ParseCandidates extracts options from a results page. Result cards are
// tried first; without cards it falls back to scanning the page text for
// prices and times.
func ParseCandidates(html string) ([]Candidate, error) {
	doc, err := goquery.NewDocumentFromReader(strings.NewReader(html))
	if err != nil {
		return nil, fmt.Errorf("failed to parse results page: %w", err)
	}
	doc.Find("script, style, noscript").Remove()

	for _, sel := range cardSelectors {
		cards := doc.Find(sel)
		if cards.Length() == 0 {
			continue
		}
		var out []Candidate
		cards.EachWithBreak(func(_ int, card *goquery.Selection) bool {
			if c, ok := fromCard(card, len(out)+1); ok {
				out = append(out, c)
			}
			return len(out) < maxCards
		})
		if len(out) > 0 {
			return out, nil
		}
	}
	return fromText(doc.Find("body").Text()), nil
}

func fromCard(card *goquery.Selection, n int) (Candidate, bool) {
	text := strings.Join(strings.Fields(card.Text()), " ")
	m := priceRe.FindStringSubmatch(text)
	if m == nil {
		return Candidate{}, false
	}
	c := newCandidate(n, m[1])

	times := timeRe.FindAllString(text, 2)
	if len(times) > 0 {
		c.Categorical[AttrDeparture] = normTime(times[0])
	}
	if len(times) > 1 {
		c.Categorical[AttrArrival] = normTime(times[1])
	}
	if airline := strings.TrimSpace(card.Find(airlineSelector).First().Text()); airline != "" {
		c.Categorical[AttrAirline] = airline
	}
	if d := durTextRe.FindString(text); d != "" {
		if mins, ok := ParseDuration(d); ok {
			c.Numeric[AttrDuration] = mins
			c.Categorical[AttrDurText] = strings.TrimSpace(d)
		}
	}
	switch {
	case nonstopRe.MatchString(text):
		c.Numeric[AttrStops] = 0
	default:
		if s := stopsRe.FindStringSubmatch(text); s != nil {
			n, _ := strconv.Atoi(s[1])
			c.Numeric[AttrStops] = float64(n)
		}
	}
	return c, true
}

func fromText(text string) []Candidate {
	text = strings.Join(strings.Fields(text), " ")
	prices := priceRe.FindAllStringSubmatch(text, maxFallback)
	times := timeRe.FindAllString(text, -1)
	out := make([]Candidate, 0, len(prices))
	for i, m := range prices {
		c := newCandidate(i+1, m[1])
		c.Categorical[AttrAirline] = "Unknown"
		c.Categorical[AttrDeparture] = "TBD"
		c.Categorical[AttrArrival] = "TBD"
		if i*2 < len(times) {
			c.Categorical[AttrDeparture] = normTime(times[i*2])
		}
		if i*2+1 < len(times) {
			c.Categorical[AttrArrival] = normTime(times[i*2+1])
		}
		out = append(out, c)
	}
	return out
}

func newCandidate(n int, price string) Candidate {
	c := Candidate{
		ID:          fmt.Sprintf("flight_%d", n),
		Numeric:     map[string]float64{},
		Categorical: map[string]string{AttrPriceText: "$" + price},
	}
	if p, err := strconv.ParseFloat(strings.ReplaceAll(price, ",", ""), 64); err == nil {
		c.Numeric[AttrPrice] = p
	}
	return c
}

func normTime(s string) string {
	return strings.ToUpper(strings.Join(strings.Fields(s), " "))
}

// ParseDuration reads "2h 35m", "1 hr 5 min" or "45m" as minutes.
func ParseDuration(s string) (float64, bool) {
	m := durationRe.FindStringSubmatch(strings.TrimSpace(s))
	if m == nil || (m[1] == "" && m[2] == "") {
		return 0, false
	}
	var mins float64
	if m[1] != "" {
		h, _ := strconv.Atoi(m[1])
		mins += float64(h * 60)
	}
	if m[2] != "" {
		mm, _ := strconv.Atoi(m[2])
		mins += float64(mm)
	}
	return mins, true
}
