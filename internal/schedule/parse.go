// Package schedule reads the published game sheet and turns its rows into
// upcoming events in Swiss local time.
package schedule

import (
	"encoding/csv"
	"errors"
	"fmt"
	"io"
	"net/url"
	"regexp"
	"strconv"
	"strings"
	"time"

	"github.com/PuerkitoBio/goquery"
	"github.com/swissbasket/livedesk/internal/model"
)

type field int

const (
	fieldDate field = iota
	fieldTime
	fieldCompetition
	fieldDay
	fieldHome
	fieldAway
	fieldVenue
	fieldProduction
	fieldYouTube
)

// headerAliases lists accepted header spellings per field, uppercased.
var headerAliases = map[field][]string{
	fieldDate:        {"DATE", "DATUM", "GAME DATE"},
	fieldTime:        {"HOUR", "TIME", "HEURE", "ZEIT", "START"},
	fieldCompetition: {"COMPETITION", "LEAGUE", "LIGUE"},
	fieldDay:         {"DAY", "JOUR", "TAG"},
	fieldHome:        {"HOME", "TEAM A", "HOME TEAM", "EQUIPE A"},
	fieldAway:        {"AWAY", "TEAM B", "AWAY TEAM", "EQUIPE B"},
	fieldVenue:       {"VENUE", "ARENA", "HALL", "SALLE"},
	fieldProduction:  {"PRODUCTION", "PROD", "METHOD"},
	fieldYouTube:     {"YOUTUBE", "YOUTUBE ID", "YT EVENT", "YOUTUBE EVENT", "YOUTUBE LINK", "YT"},
}

var (
	datePattern  = regexp.MustCompile(`^(\d{1,2})[./-](\d{1,2})[./-](\d{2,4})$`)
	clockPattern = regexp.MustCompile(`^(\d{1,2})\s*(?:[:hH]\s*(\d{2})?)?`)
	videoIDOnly  = regexp.MustCompile(`^[A-Za-z0-9_-]{11}$`)
	videoIDInURL = regexp.MustCompile(`(?:youtu\.be/|/live/|/embed/|/shorts/)([A-Za-z0-9_-]{11})`)
)

// ErrNoHeader is returned when the sheet has no recognizable date column.
var ErrNoHeader = errors.New("schedule: no date column in header")

// ParseCSV reads all records, tolerating ragged rows and stray quotes.
// Rows with only blank cells are dropped.
func ParseCSV(r io.Reader) ([][]string, error) {
	cr := csv.NewReader(r)
	cr.FieldsPerRecord = -1
	cr.LazyQuotes = true
	records, err := cr.ReadAll()
	if err != nil {
		return nil, fmt.Errorf("parse csv: %w", err)
	}
	return dropBlank(records), nil
}

// ParseHTML reads the first table of a published-to-web sheet. Rows made
// only of header cells (column letters) are skipped, as are row-number cells.
func ParseHTML(r io.Reader) ([][]string, error) {
	doc, err := goquery.NewDocumentFromReader(r)
	if err != nil {
		return nil, fmt.Errorf("parse html: %w", err)
	}
	var rows [][]string
	doc.Find("table").First().Find("tr").Each(func(_ int, tr *goquery.Selection) {
		cells := tr.Find("td")
		if cells.Length() == 0 {
			return
		}
		row := make([]string, 0, cells.Length())
		cells.Each(func(_ int, td *goquery.Selection) {
			row = append(row, strings.TrimSpace(td.Text()))
		})
		rows = append(rows, row)
	})
	return dropBlank(rows), nil
}

func dropBlank(rows [][]string) [][]string {
	out := rows[:0]
	for _, row := range rows {
		for _, cell := range row {
			if strings.TrimSpace(cell) != "" {
				out = append(out, row)
				break
			}
		}
	}
	return out
}

// columns maps each field to its index in header, -1 when absent.
func columns(header []string) map[field]int {
	idx := make(map[field]int, len(headerAliases))
	for f, aliases := range headerAliases {
		idx[f] = -1
		for _, alias := range aliases {
			for i, h := range header {
				if strings.ToUpper(strings.TrimSpace(h)) == alias {
					idx[f] = i
					break
				}
			}
			if idx[f] >= 0 {
				break
			}
		}
	}
	return idx
}

func cell(row []string, i int) string {
	if i < 0 || i >= len(row) {
		return ""
	}
	return strings.TrimSpace(row[i])
}

// NormalizeProduction maps free text to a known production label, or "".
func NormalizeProduction(s string) string {
	v := strings.ToUpper(strings.TrimSpace(s))
	switch {
	case strings.Contains(v, "KEEMOTION"):
		return model.ProductionKeemotion
	case strings.Contains(v, "SWISH"):
		return model.ProductionSwishLive
	case strings.Contains(v, "MANUAL"):
		return model.ProductionManual
	case v == "TV":
		return model.ProductionTV
	default:
		return ""
	}
}

// ParseDateTime composes a Swiss dd.mm.yyyy date and HH:MM (or HHhMM) time
// in loc. A blank time means midnight.
func ParseDateTime(date, clock string, loc *time.Location) (time.Time, error) {
	m := datePattern.FindStringSubmatch(strings.TrimSpace(date))
	if m == nil {
		return time.Time{}, fmt.Errorf("unrecognized date %q", date)
	}
	day, _ := strconv.Atoi(m[1])
	month, _ := strconv.Atoi(m[2])
	year, _ := strconv.Atoi(m[3])
	if year < 100 {
		year += 2000
	}

	hour, minute := 0, 0
	if clock = strings.TrimSpace(clock); clock != "" {
		c := clockPattern.FindStringSubmatch(clock)
		if c == nil {
			return time.Time{}, fmt.Errorf("unrecognized time %q", clock)
		}
		hour, _ = strconv.Atoi(c[1])
		if c[2] != "" {
			minute, _ = strconv.Atoi(c[2])
		}
	}
	if month < 1 || month > 12 || hour > 23 || minute > 59 {
		return time.Time{}, fmt.Errorf("out of range %q %q", date, clock)
	}
	t := time.Date(year, time.Month(month), day, hour, minute, 0, 0, loc)
	if t.Day() != day {
		return time.Time{}, fmt.Errorf("no such day %q", date)
	}
	return t, nil
}

// YouTubeID extracts a video id from a bare id or a YouTube link.
func YouTubeID(s string) string {
	s = strings.TrimSpace(s)
	if s == "" {
		return ""
	}
	if videoIDOnly.MatchString(s) {
		return s
	}
	if u, err := url.Parse(s); err == nil {
		if v := u.Query().Get("v"); videoIDOnly.MatchString(v) {
			return v
		}
	}
	if m := videoIDInURL.FindStringSubmatch(s); m != nil {
		return m[1]
	}
	return ""
}

// Events converts sheet rows, the first being the header. Rows whose date
// cannot be parsed are dropped.
func Events(rows [][]string, loc *time.Location) ([]model.UpcomingEvent, error) {
	if len(rows) == 0 {
		return []model.UpcomingEvent{}, nil
	}
	idx := columns(rows[0])
	if idx[fieldDate] < 0 {
		return nil, ErrNoHeader
	}
	events := make([]model.UpcomingEvent, 0, len(rows)-1)
	for _, row := range rows[1:] {
		at, err := ParseDateTime(cell(row, idx[fieldDate]), cell(row, idx[fieldTime]), loc)
		if err != nil {
			continue
		}
		raw := cell(row, idx[fieldProduction])
		events = append(events, model.UpcomingEvent{
			Datetime:       at.UTC(),
			Day:            cell(row, idx[fieldDay]),
			TeamA:          cell(row, idx[fieldHome]),
			TeamB:          cell(row, idx[fieldAway]),
			Arena:          cell(row, idx[fieldVenue]),
			Production:     NormalizeProduction(raw),
			ProductionRaw:  raw,
			Competition:    cell(row, idx[fieldCompetition]),
			YouTubeEventID: YouTubeID(cell(row, idx[fieldYouTube])),
		})
	}
	return events, nil
}
