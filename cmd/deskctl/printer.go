package main

import (
	"fmt"
	"io"
	"strings"
	"text/tabwriter"
	"time"

	"github.com/dustin/go-humanize"
	"github.com/swissbasket/livedesk/internal/broadcasts"
	"github.com/swissbasket/livedesk/internal/livecontrol"
	"github.com/swissbasket/livedesk/internal/reconcile"
)

const (
	colorReset  = "\033[0m"
	colorRed    = "\033[91m"
	colorGreen  = "\033[92m"
	colorYellow = "\033[93m"
)

// printer renders server responses as aligned tables.
type printer struct {
	w     io.Writer
	tw    *tabwriter.Writer
	color bool
	width int
	now   func() time.Time
}

func newPrinter(w io.Writer, color bool) *printer {
	return &printer{
		w:     w,
		tw:    tabwriter.NewWriter(w, 0, 4, 2, ' ', 0),
		color: color,
		width: 100,
		now:   time.Now,
	}
}

func (p *printer) flush() error {
	return p.tw.Flush()
}

func (p *printer) row(cols ...string) {
	fmt.Fprintln(p.tw, strings.Join(cols, "\t"))
}

func (p *printer) note(format string, args ...any) {
	fmt.Fprintf(p.tw, format+"\n", args...)
}

func (p *printer) paint(color, s string) string {
	if !p.color || s == "" {
		return s
	}
	return color + s + colorReset
}

// title shortens s so a row stays within the terminal width.
func (p *printer) title(s string) string {
	limit := p.width / 2
	if limit < 20 {
		limit = 20
	}
	r := []rune(s)
	if len(r) <= limit {
		return s
	}
	return string(r[:limit-1]) + "…"
}

func (p *printer) ago(t *time.Time) string {
	if t == nil || t.IsZero() {
		return "-"
	}
	return humanize.RelTime(*t, p.now(), "ago", "from now")
}

func orDash(s string) string {
	if s == "" {
		return "-"
	}
	return s
}

func (p *printer) live(v broadcasts.LiveView) {
	p.note("source: %s", v.Meta.Source)
	if v.Meta.LastError != "" {
		p.note("last error: %s", p.paint(colorYellow, v.Meta.LastError))
	}
	if v.Meta.QuotaBackoffUntil != nil {
		p.note("quota backoff until %s", p.ago(v.Meta.QuotaBackoffUntil))
	}
	p.row("STATE", "TITLE", "PRIVACY", "WHEN", "HEALTH", "URL")
	for _, e := range v.Live {
		p.row(p.paint(colorGreen, "LIVE"), p.title(e.Title), orDash(e.Privacy), p.ago(e.StartedAt), orDash(e.Health), e.URL)
	}
	for _, e := range v.Upcoming {
		p.row("upcoming", p.title(e.Title), orDash(e.Privacy), p.ago(e.ScheduledStart), "-", e.URL)
	}
}

func (p *printer) health(v broadcasts.HealthView) {
	if v.Error != "" {
		p.note("error: %s", p.paint(colorYellow, v.Error))
	}
	p.row("NAME", "STATUS", "UPDATED", "STREAM KEY")
	for _, item := range v.Items {
		label := item.StatusLabel
		switch item.Status {
		case reconcile.NoData.Status, "bad":
			label = p.paint(colorRed, label)
		case "good":
			label = p.paint(colorYellow, label)
		default:
			label = p.paint(colorGreen, label)
		}
		p.row(p.title(item.Name), label, p.ago(item.LastUpdate), orDash(item.StreamKey))
	}
}

func (p *printer) issues(v issuesView) {
	if v.Error != "" {
		p.note("error: %s", p.paint(colorYellow, v.Error))
	}
	if len(v.Items) == 0 {
		p.note("no critical arenas")
		return
	}
	p.row("ARENA", "STATUS", "NOTE", "UPDATED")
	for _, issue := range v.Items {
		p.row(issue.Arena, p.paint(colorRed, issue.Status), p.title(issue.Note), orDash(issue.UpdatedAt))
	}
}

func (p *printer) upcoming(v upcomingView) {
	if v.Error != "" {
		p.note("error: %s", p.paint(colorYellow, v.Error))
	}
	p.row("WHEN", "GAME", "ARENA", "COMPETITION", "PRODUCTION", "YOUTUBE")
	for _, e := range v.Items {
		when := e.Datetime
		p.row(
			when.In(reconcile.Zurich()).Format("Mon 02.01 15:04")+" ("+p.ago(&when)+")",
			p.title(e.TeamA+" - "+e.TeamB),
			orDash(e.Arena),
			orDash(e.Competition),
			orDash(e.Production),
			orDash(e.YouTubeEventID),
		)
	}
}

func (p *printer) keys(v broadcasts.StreamKeysView) {
	if v.Error != "" {
		p.note("error: %s", p.paint(colorYellow, v.Error))
	}
	p.row("STATUS", "TITLE", "WHEN", "STREAM KEY", "STREAM")
	for _, item := range v.Items {
		status := item.Status
		if status == "live" {
			status = p.paint(colorGreen, status)
		}
		p.row(status, p.title(item.Title), p.ago(item.When), orDash(item.StreamKey), orDash(item.StreamLabel))
	}
}

func (p *printer) controlResult(req livecontrol.Request, res livecontrol.Result) {
	state := p.paint(colorGreen, "confirmed")
	if !res.Confirmed {
		state = p.paint(colorYellow, "not confirmed yet")
	}
	switch req.Action {
	case livecontrol.ActionSetVisibility:
		p.note("%s set to %s: %s after %d checks", req.ID, req.Privacy, state, res.Attempts)
	default:
		p.note("%s ended: %s after %d checks", req.ID, state, res.Attempts)
	}
}
