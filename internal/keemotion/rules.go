package keemotion

import "strings"

// Rule flags an arena as critical when Match accepts its lowercased text.
type Rule struct {
	Name  string
	Match func(text string) bool
}

func contains(words ...string) func(string) bool {
	return func(text string) bool {
		for _, w := range words {
			if strings.Contains(text, w) {
				return true
			}
		}
		return false
	}
}

// Rules is evaluated in order; the first match names the issue.
var Rules = []Rule{
	{Name: "encoder-offline", Match: contains("encoder offline")},
	{Name: "offline", Match: contains("offline")},
	{Name: "no-ingest", Match: contains("no ingest")},
	{Name: "not-connected", Match: contains("not connected")},
	{Name: "unstable", Match: contains("unstable")},
	{Name: "bandwidth", Match: func(text string) bool {
		return strings.Contains(text, "bandwidth") && contains("low", "insufficient", "insuffisant")(text)
	}},
}

// Classify returns the first rule matching any of texts.
func Classify(texts ...string) (Rule, bool) {
	lowered := make([]string, 0, len(texts))
	for _, t := range texts {
		if t = strings.ToLower(strings.TrimSpace(t)); t != "" {
			lowered = append(lowered, t)
		}
	}
	for _, r := range Rules {
		for _, t := range lowered {
			if r.Match(t) {
				return r, true
			}
		}
	}
	return Rule{}, false
}
