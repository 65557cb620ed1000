// Package normalize cleans raw scraped events and drops those whose date is
// already in the past relative to the fetch date.
package normalize

import (
	"regexp"
	"strconv"
	"strings"
	"unicode/utf8"

	"whatson/internal/model"
)

// DefaultCategory replaces a category that is empty after cleaning.
const DefaultCategory = "Other"

var (
	tabNewline = strings.NewReplacer("\t", "", "\n", "")

	// wordPattern selects words as "word char followed by non-spaces", so a
	// hyphenated token is one word and only its first letter is uppercased.
	wordPattern = regexp.MustCompile(`\w\S*`)
)

// Clean strips tab and newline characters from Date and Category, defaults an
// emptied Category, and title-cases Title. Events are modified in place and
// the same slice is returned. Cleaning is idempotent.
func Clean(events []model.Event) []model.Event {
	for i := range events {
		e := &events[i]
		e.Date = tabNewline.Replace(e.Date)
		e.Category = tabNewline.Replace(e.Category)
		if e.Category == "" {
			e.Category = DefaultCategory
		}
		e.Title = TitleCase(e.Title)
	}
	return events
}

// TitleCase uppercases the first character of each word and lowercases the
// remainder of that word.
func TitleCase(s string) string {
	return wordPattern.ReplaceAllStringFunc(s, func(word string) string {
		r, size := utf8.DecodeRuneInString(word)
		return strings.ToUpper(string(r)) + strings.ToLower(word[size:])
	})
}

// FilterPast keeps only events that are today or later. The event date is the
// [year, month, day] suffix of its dash-split date string.
//
// The three comparisons below reproduce the original filtering policy
// operator-for-operator, including the mixed <= / < in the month branch.
// That asymmetry is a known quirk of the policy, kept deliberately; changing
// it is a product decision, not a bug fix.
func FilterPast(events []model.Event, stamp model.DateStamp) []model.Event {
	kept := make([]model.Event, 0, len(events))
	for _, e := range events {
		if keep(e, stamp) {
			kept = append(kept, e)
		}
	}
	return kept
}

func keep(e model.Event, stamp model.DateStamp) bool {
	parts := strings.Split(e.Date, "-")
	if len(parts) < 3 {
		return false
	}

	year, err1 := strconv.Atoi(strings.TrimSpace(parts[len(parts)-3]))
	month, err2 := strconv.Atoi(strings.TrimSpace(parts[len(parts)-2]))
	day, err3 := strconv.Atoi(strings.TrimSpace(parts[len(parts)-1]))
	if err1 != nil || err2 != nil || err3 != nil {
		return false
	}

	// Future year.
	if stamp.Year < year {
		return true
	}

	// Later month.
	if stamp.Month < month && stamp.Year <= year {
		return true
	}

	// Today or later.
	return stamp.Year <= year && stamp.Month <= month && stamp.Day <= day
}
