// Package feed renders a day's events as an iCalendar document.
package feed

import (
	"strconv"
	"strings"
	"time"

	ical "github.com/arran4/golang-ical"
	"github.com/google/uuid"

	"whatson/internal/model"
)

// Build serializes events into a VCALENDAR with one all-day VEVENT each.
// Events whose date suffix does not parse are skipped; the feed is a
// convenience view, not the system of record.
func Build(events []model.Event) string {
	cal := ical.NewCalendar()
	cal.SetMethod(ical.MethodPublish)
	cal.SetProductId("-//whatson//events feed//EN")

	now := time.Now().UTC()
	for _, e := range events {
		day, ok := eventDay(e.Date)
		if !ok {
			continue
		}

		ve := cal.AddEvent(uuid.NewString() + "@whatson")
		ve.SetDtStampTime(now)
		ve.SetAllDayStartAt(day)
		ve.SetAllDayEndAt(day.AddDate(0, 0, 1))
		ve.SetSummary(e.Title)
		ve.SetDescription(e.Category)
		if e.Link != "" {
			ve.SetURL(e.Link)
		}
	}

	return cal.Serialize()
}

// eventDay parses the [year, month, day] suffix of a dash-split date string,
// the same shape the past-event filter relies on.
func eventDay(date string) (time.Time, bool) {
	parts := strings.Split(date, "-")
	if len(parts) < 3 {
		return time.Time{}, false
	}

	year, err1 := strconv.Atoi(strings.TrimSpace(parts[len(parts)-3]))
	month, err2 := strconv.Atoi(strings.TrimSpace(parts[len(parts)-2]))
	day, err3 := strconv.Atoi(strings.TrimSpace(parts[len(parts)-1]))
	if err1 != nil || err2 != nil || err3 != nil {
		return time.Time{}, false
	}
	if month < 1 || month > 12 || day < 1 || day > 31 {
		return time.Time{}, false
	}

	return time.Date(year, time.Month(month), day, 0, 0, 0, 0, time.UTC), true
}
