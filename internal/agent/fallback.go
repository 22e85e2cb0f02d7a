package agent

import (
	"regexp"
	"strings"

	"github.com/rahul/autopilot/internal/flights"
	"github.com/rahul/autopilot/internal/plan"
)

var openRe = regexp.MustCompile(`(?i)\bopen\b\s*(.*)$`)

// FallbackPlan builds a plan from a handful of goal templates. It needs no
// generator and never fails; unknown goals become a web search.
func FallbackPlan(goal string) plan.StepPlan {
	goal = strings.TrimSpace(goal)
	g := strings.ToLower(goal)
	words := strings.Fields(g)

	switch {
	case strings.Contains(g, "message") || hasWord(words, "dm"):
		return messagePlan(g)
	case strings.Contains(g, "book") && strings.Contains(g, "flight"):
		return flightPlan(goal)
	case strings.Contains(g, "pizza") && (strings.Contains(g, "dominos") || strings.Contains(g, "domino's")):
		return plan.Single(
			plan.Action{Kind: plan.KindNavigate, Target: "dominos", Value: "https://www.dominos.ca", Description: "Open the Domino's website"},
			plan.Action{Kind: plan.KindWait, Target: "page load", Value: "3", Description: "Wait for the homepage to load"},
			plan.Action{Kind: plan.KindClick, Target: "Order Online", Description: "Click the 'Order Online' button"},
		)
	case openRe.MatchString(goal) && strings.TrimSpace(openRe.FindStringSubmatch(goal)[1]) != "":
		what := strings.TrimSpace(openRe.FindStringSubmatch(goal)[1])
		return plan.Single(
			plan.Action{Kind: plan.KindSearch, Target: "google", Value: what, Description: "Search for '" + what + "'"},
			plan.Action{Kind: plan.KindClick, Target: "first result", Description: "Open the first search result"},
		)
	}
	return plan.Single(
		plan.Action{Kind: plan.KindSearch, Target: "google", Value: goal, Description: "Search for '" + goal + "'"},
		plan.Action{Kind: plan.KindWait, Target: "results", Value: "2", Description: "Wait for search results"},
	)
}

func messagePlan(g string) plan.StepPlan {
	platform := "Instagram"
	for _, p := range []string{"instagram", "facebook", "twitter", "linkedin", "whatsapp"} {
		if strings.Contains(g, p) {
			platform = strings.ToUpper(p[:1]) + p[1:]
			break
		}
	}
	return plan.Single(
		plan.Action{Kind: plan.KindSearch, Target: "google", Value: platform, Description: "Search for " + platform},
		plan.Action{Kind: plan.KindClick, Target: "first link", Description: "Open the first " + platform + " link"},
		plan.Action{Kind: plan.KindWait, Target: "page load", Value: "3", Description: "Wait for the page to load"},
		plan.Action{Kind: plan.KindClick, Target: "messages icon", Description: "Open direct messages"},
		plan.Action{Kind: plan.KindClick, Target: "first message", Description: "Open the most recent conversation"},
		plan.Action{Kind: plan.KindClick, Target: "text input", Description: "Focus the message field"},
		plan.Action{Kind: plan.KindFill, Target: "text input", Value: "hello", Description: "Type the message"},
		plan.Action{Kind: plan.KindClick, Target: "send button", Description: "Send the message"},
	)
}

func flightPlan(goal string) plan.StepPlan {
	origin, destination := flights.ParseRoute(goal)
	if origin == "" {
		origin = "{{origin}}"
	}
	if destination == "" {
		destination = "{{destination}}"
	}

	var p plan.StepPlan
	p = append(p, plan.AlternativeSet{
		{Kind: plan.KindNavigate, Target: "google flights", Value: "https://www.google.com/flights", Description: "Open Google Flights"},
	})
	if strings.HasPrefix(origin, "{{") {
		p = append(p, plan.AlternativeSet{{Kind: plan.KindAskUser, Value: "origin", Description: "Which city are you flying from?"}})
	}
	if strings.HasPrefix(destination, "{{") {
		p = append(p, plan.AlternativeSet{{Kind: plan.KindAskUser, Value: "destination", Description: "Which city are you flying to?"}})
	}
	p = append(p,
		plan.AlternativeSet{
			{Kind: plan.KindFill, Target: "input[aria-label*='Where from']", Value: origin, Description: "Enter the departure city"},
			{Kind: plan.KindFill, Target: "departure input", Value: origin, Description: "Enter the departure city"},
		},
		plan.AlternativeSet{
			{Kind: plan.KindFill, Target: "input[aria-label*='Where to']", Value: destination, Description: "Enter the destination city"},
			{Kind: plan.KindFill, Target: "destination input", Value: destination, Description: "Enter the destination city"},
		},
		plan.AlternativeSet{
			{Kind: plan.KindClick, Target: "button[aria-label*='Search']", Description: "Search for flights"},
			{Kind: plan.KindClick, Target: "search button", Description: "Search for flights"},
		},
		plan.AlternativeSet{{Kind: plan.KindWait, Target: "results", Value: "3", Description: "Wait for flight results"}},
		plan.AlternativeSet{{Kind: plan.KindExtract, Target: "flight results", Description: "Collect the flight options"}},
	)
	return p
}

func hasWord(words []string, w string) bool {
	for _, x := range words {
		if strings.Trim(x, ".,!?") == w {
			return true
		}
	}
	return false
}
