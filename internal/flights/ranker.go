// Package flights scores and presents result candidates for comparison
// tasks such as picking a flight.
package flights

import (
	"fmt"
	"math"
	"sort"
	"strings"
)

// Attribute keys used by the ranker and the page parser.
const (
	AttrPrice    = "price"
	AttrDuration = "duration_minutes"
	AttrStops    = "stops"

	AttrAirline   = "airline"
	AttrDeparture = "departure_time"
	AttrArrival   = "arrival_time"
	AttrPriceText = "price_text"
	AttrDurText   = "duration"
)

const (
	weightCheapest = 0.4
	weightFastest  = 0.3
	weightDirect   = 0.3

	// Candidates without a duration are scored as ten hours, the point at
	// which the fastest term bottoms out.
	durationCeiling = 600.0
	missingPrice    = 999999.0
)

// Preference is one ranking criterion.
type Preference string

const (
	Cheapest Preference = "cheapest"
	Fastest  Preference = "fastest"
	Direct   Preference = "direct"
)

// Preferences is a set of criteria.
type Preferences map[Preference]bool

// NewPreferences builds a set from criteria, falling back to {Cheapest}.
func NewPreferences(prefs ...Preference) Preferences {
	set := make(Preferences, len(prefs))
	for _, p := range prefs {
		set[p] = true
	}
	if len(set) == 0 {
		set[Cheapest] = true
	}
	return set
}

// List returns the active criteria in a fixed order.
func (p Preferences) List() []Preference {
	var out []Preference
	for _, pref := range []Preference{Cheapest, Fastest, Direct} {
		if p[pref] {
			out = append(out, pref)
		}
	}
	return out
}

// Candidate is one option extracted from a results page. Score is derived
// by Rank and never meaningful on its own.
type Candidate struct {
	ID          string             `json:"id"`
	Numeric     map[string]float64 `json:"numeric"`
	Categorical map[string]string  `json:"categorical"`
	Score       float64            `json:"score"`
}

func (c Candidate) num(key string, fallback float64) float64 {
	if v, ok := c.Numeric[key]; ok && !math.IsNaN(v) {
		return v
	}
	return fallback
}

func (c Candidate) text(key, fallback string) string {
	if v := c.Categorical[key]; v != "" {
		return v
	}
	return fallback
}

// Rank scores candidates against prefs and returns them best first. Ties
// keep input order. The input slice is not modified.
func Rank(candidates []Candidate, prefs Preferences) []Candidate {
	if len(prefs) == 0 {
		prefs = NewPreferences()
	}
	out := make([]Candidate, len(candidates))
	copy(out, candidates)

	minPrice := math.Inf(1)
	for _, c := range out {
		minPrice = math.Min(minPrice, c.num(AttrPrice, missingPrice))
	}

	for i := range out {
		c := &out[i]
		score := 0.0
		if prefs[Cheapest] && minPrice > 0 && !math.IsInf(minPrice, 1) {
			price := c.num(AttrPrice, missingPrice)
			score += (1 - (price-minPrice)/minPrice) * weightCheapest
		}
		if prefs[Fastest] {
			d := math.Max(c.num(AttrDuration, durationCeiling), 0)
			score += (1 - math.Min(d/durationCeiling, 1)) * weightFastest
		}
		if prefs[Direct] && c.num(AttrStops, 1) == 0 {
			score += weightDirect
		}
		c.Score = score
	}

	sort.SliceStable(out, func(i, j int) bool { return out[i].Score > out[j].Score })
	return out
}

// Select finds a candidate by id.
func Select(candidates []Candidate, id string) (Candidate, bool) {
	for _, c := range candidates {
		if c.ID == id {
			return c, true
		}
	}
	return Candidate{}, false
}

// Recommend summarises ranked candidates in one or two sentences.
func Recommend(ranked []Candidate) string {
	if len(ranked) == 0 {
		return "No flights available."
	}
	best := ranked[0]
	var sb strings.Builder
	fmt.Fprintf(&sb, "I recommend %s departing at %s for %s.",
		best.text(AttrAirline, "this flight"),
		best.text(AttrDeparture, "TBD"),
		best.text(AttrPriceText, formatPrice(best)),
	)
	if best.num(AttrStops, 1) == 0 {
		sb.WriteString(" It's a direct flight.")
	}
	if len(ranked) > 1 {
		cheapest := ranked[0]
		for _, c := range ranked[1:] {
			if c.num(AttrPrice, missingPrice) < cheapest.num(AttrPrice, missingPrice) {
				cheapest = c
			}
		}
		if cheapest.ID != best.ID {
			fmt.Fprintf(&sb, " The cheapest option is %s.", cheapest.text(AttrPriceText, formatPrice(cheapest)))
		}
	}
	return sb.String()
}

// Format renders ranked candidates as a numbered list.
func Format(ranked []Candidate) string {
	var sb strings.Builder
	for i, c := range ranked {
		fmt.Fprintf(&sb, "%d. %s %s", i+1, c.text(AttrPriceText, formatPrice(c)), c.text(AttrAirline, "Unknown airline"))
		if dep := c.text(AttrDeparture, ""); dep != "" {
			fmt.Fprintf(&sb, " %s", dep)
			if arr := c.text(AttrArrival, ""); arr != "" {
				fmt.Fprintf(&sb, "-%s", arr)
			}
		}
		if d := c.text(AttrDurText, ""); d != "" {
			fmt.Fprintf(&sb, " (%s)", d)
		}
		if stops, ok := c.Numeric[AttrStops]; ok {
			if stops == 0 {
				sb.WriteString(" nonstop")
			} else {
				fmt.Fprintf(&sb, " %d stop(s)", int(stops))
			}
		}
		fmt.Fprintf(&sb, " [score %.2f]\n", c.Score)
	}
	return sb.String()
}

func formatPrice(c Candidate) string {
	if p, ok := c.Numeric[AttrPrice]; ok {
		return fmt.Sprintf("$%.2f", p)
	}
	return "TBD"
}
