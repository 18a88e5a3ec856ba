package keemotion

import (
	"fmt"
	"sort"
	"strings"

	"github.com/swissbasket/livedesk/internal/model"
)

// Vendor is the label attached to every arena issue.
const Vendor = "Keemotion"

// Field paths tried in order; payload spellings vary between tenants.
var (
	namePaths    = [][]string{{"name"}, {"arena_name"}, {"venue", "name"}, {"location", "name"}, {"title"}}
	statusPaths  = [][]string{{"status"}, {"online_status"}, {"encoder", "status"}, {"network_status"}, {"bandwidth_status"}}
	notePaths    = [][]string{{"note"}, {"network_message"}, {"encoder", "message"}}
	updatedPaths = [][]string{{"updated_at"}, {"updatedAt"}, {"last_seen"}}
)

func lookup(m map[string]any, path []string) (any, bool) {
	var cur any = m
	for _, p := range path {
		obj, ok := cur.(map[string]any)
		if !ok {
			return nil, false
		}
		if cur, ok = obj[p]; !ok {
			return nil, false
		}
	}
	return cur, true
}

// firstString returns the first path holding a non-empty string.
func firstString(m map[string]any, paths [][]string) string {
	for _, p := range paths {
		if v, ok := lookup(m, p); ok {
			if s, ok := v.(string); ok && strings.TrimSpace(s) != "" {
				return strings.TrimSpace(s)
			}
		}
	}
	return ""
}

// findStatus walks the payload depth-first in key order for any "status" string.
func findStatus(v any) string {
	switch t := v.(type) {
	case map[string]any:
		if s, ok := t["status"].(string); ok && s != "" {
			return s
		}
		for _, k := range sortedKeys(t) {
			if s := findStatus(t[k]); s != "" {
				return s
			}
		}
	case []any:
		for _, item := range t {
			if s := findStatus(item); s != "" {
				return s
			}
		}
	}
	return ""
}

// values collects every scalar value of the payload as text, keys excluded.
func values(v any, out []string) []string {
	switch t := v.(type) {
	case map[string]any:
		for _, k := range sortedKeys(t) {
			out = values(t[k], out)
		}
	case []any:
		for _, item := range t {
			out = values(item, out)
		}
	case string:
		out = append(out, t)
	case nil:
	default:
		out = append(out, fmt.Sprint(t))
	}
	return out
}

func sortedKeys(m map[string]any) []string {
	keys := make([]string, 0, len(m))
	for k := range m {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys
}

// MapArena converts one arena payload. Status and note are checked first so
// the rule reported reflects the most specific text.
func MapArena(a map[string]any) model.ArenaIssue {
	status := firstString(a, statusPaths)
	if status == "" {
		status = findStatus(a)
	}
	note := firstString(a, notePaths)

	texts := append([]string{status, note}, values(a, nil)...)
	rule, critical := Classify(texts...)

	issue := model.ArenaIssue{
		Arena:     firstString(a, namePaths),
		Vendor:    Vendor,
		Status:    status,
		Note:      note,
		UpdatedAt: firstString(a, updatedPaths),
		Severity:  model.SeverityNormal,
	}
	if critical {
		issue.Severity = model.SeverityCritical
		issue.Rule = rule.Name
	}
	if issue.Status == "" {
		issue.Status = "OK"
		if critical {
			issue.Status = "Critical"
		}
	}
	return issue
}

// CriticalIssues maps arenas and keeps named, critical ones.
func CriticalIssues(arenas []map[string]any) []model.ArenaIssue {
	out := []model.ArenaIssue{}
	for _, a := range arenas {
		issue := MapArena(a)
		if issue.Arena == "" || issue.Severity != model.SeverityCritical {
			continue
		}
		out = append(out, issue)
	}
	return out
}
