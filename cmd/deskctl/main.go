package main

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"os"
	"os/signal"
	"time"

	"github.com/alexflint/go-arg"
	"github.com/joho/godotenv"
	"github.com/swissbasket/livedesk/internal/livecontrol"
	"golang.org/x/term"
)

type liveCmd struct{}

type healthCmd struct{}

type issuesCmd struct{}

type keysCmd struct{}

type upcomingCmd struct {
	Days     int  `arg:"-d,--days" help:"horizon in days (1-30)"`
	Streamed bool `arg:"-s,--streamed" help:"only games with a production"`
}

type endCmd struct {
	ID string `arg:"positional,required" help:"broadcast id"`
}

type visibilityCmd struct {
	ID      string `arg:"positional,required" help:"broadcast id"`
	Privacy string `arg:"positional,required" help:"public, unlisted or private"`
}

type cliArgs struct {
	Server  string        `arg:"--server,env:LIVEDESK_URL" default:"http://localhost:8080" help:"livedesk base URL"`
	Timeout time.Duration `arg:"--timeout" default:"30s" help:"request timeout"`
	JSON    bool          `arg:"--json" help:"print the raw JSON response"`

	Live       *liveCmd       `arg:"subcommand:live" help:"live and upcoming broadcasts"`
	Health     *healthCmd     `arg:"subcommand:health" help:"ingest health of live broadcasts"`
	Issues     *issuesCmd     `arg:"subcommand:issues" help:"critical Keemotion arenas"`
	Upcoming   *upcomingCmd   `arg:"subcommand:upcoming" help:"scheduled games"`
	Keys       *keysCmd       `arg:"subcommand:keys" help:"today's stream keys"`
	End        *endCmd        `arg:"subcommand:end" help:"end a live broadcast"`
	Visibility *visibilityCmd `arg:"subcommand:visibility" help:"change broadcast privacy"`
}

func (cliArgs) Description() string {
	return "deskctl queries and controls a running livedesk server.\n"
}

func main() {
	_ = godotenv.Load()

	var a cliArgs
	p := arg.MustParse(&a)
	if p.Subcommand() == nil {
		p.Fail("missing subcommand")
	}

	ctx, cancel := signal.NotifyContext(context.Background(), os.Interrupt)
	defer cancel()

	out := newPrinter(os.Stdout, term.IsTerminal(int(os.Stdout.Fd())) && os.Getenv("NO_COLOR") == "")
	if width, _, err := term.GetSize(int(os.Stdout.Fd())); err == nil && width > 0 {
		out.width = width
	}

	if err := execute(ctx, newClient(a.Server, a.Timeout), a, out); err != nil {
		fmt.Fprintf(os.Stderr, "%serror:%s %v\n", colorRed, colorReset, err)
		os.Exit(1)
	}
}

func execute(ctx context.Context, c *client, a cliArgs, out *printer) error {
	var (
		v   any
		err error
	)
	switch {
	case a.Live != nil:
		view, e := c.live(ctx)
		v, err = view, e
		if err == nil && !a.JSON {
			out.live(view)
		}
	case a.Health != nil:
		view, e := c.health(ctx)
		v, err = view, e
		if err == nil && !a.JSON {
			out.health(view)
		}
	case a.Issues != nil:
		view, e := c.issues(ctx)
		v, err = view, e
		if err == nil && !a.JSON {
			out.issues(view)
		}
	case a.Upcoming != nil:
		view, e := c.upcoming(ctx, a.Upcoming.Days, a.Upcoming.Streamed)
		v, err = view, e
		if err == nil && !a.JSON {
			out.upcoming(view)
		}
	case a.Keys != nil:
		view, e := c.streamKeys(ctx)
		v, err = view, e
		if err == nil && !a.JSON {
			out.keys(view)
		}
	case a.End != nil:
		return control(ctx, c, livecontrol.Request{Action: livecontrol.ActionEndLive, ID: a.End.ID}, out)
	case a.Visibility != nil:
		req := livecontrol.Request{Action: livecontrol.ActionSetVisibility, ID: a.Visibility.ID, Privacy: a.Visibility.Privacy}
		return control(ctx, c, req, out)
	default:
		return fmt.Errorf("missing subcommand")
	}
	if err != nil {
		return err
	}
	if a.JSON {
		return writeJSON(out.w, v)
	}
	return out.flush()
}

func control(ctx context.Context, c *client, req livecontrol.Request, out *printer) error {
	// reject locally before touching the server
	if err := livecontrol.Validate(req); err != nil {
		return err
	}
	res, err := c.control(ctx, req)
	if err != nil {
		return err
	}
	if !res.OK {
		return fmt.Errorf("%s %s: %s", req.Action, req.ID, res.Error)
	}
	out.controlResult(req, res)
	return out.flush()
}

func writeJSON(w io.Writer, v any) error {
	enc := json.NewEncoder(w)
	enc.SetIndent("", "  ")
	return enc.Encode(v)
}
