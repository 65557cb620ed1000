package scrape

import (
	"fmt"
	"strings"

	"github.com/PuerkitoBio/goquery"

	"whatson/internal/model"
)

// DefaultCategory is used when the category selector yields no text. The
// normalizer applies the same default again after cleaning.
const DefaultCategory = "Other"

// Selectors drives field extraction from one event block.
type Selectors struct {
	Block    string
	Link     string
	Image    string
	Date     string
	Title    string
	Category string
}

// DefaultSelectors matches the upstream listing page layout.
func DefaultSelectors() Selectors {
	return Selectors{
		Block:    ".box",
		Link:     ".image",
		Image:    "img",
		Date:     ".date",
		Title:    ".title a",
		Category: ".category",
	}
}

// Extract parses the raw markup and returns one raw event per block, in
// document order. No dedup happens here; fields are still uncleaned.
func Extract(rawHTML string, sel Selectors, fetchDate string) ([]model.Event, error) {
	doc, err := goquery.NewDocumentFromReader(strings.NewReader(rawHTML))
	if err != nil {
		return nil, fmt.Errorf("parse source markup: %w", err)
	}

	events := make([]model.Event, 0)
	doc.Find(sel.Block).Each(func(_ int, block *goquery.Selection) {
		link := block.Find(sel.Link)
		href, _ := link.Attr("href")
		src, _ := link.Find(sel.Image).Attr("src")

		category := block.Find(sel.Category).Text()
		if category == "" {
			category = DefaultCategory
		}

		events = append(events, model.Event{
			Link:      href,
			ImageLink: src,
			Date:      block.Find(sel.Date).Text(),
			Title:     block.Find(sel.Title).Text(),
			Category:  category,
			FetchDate: fetchDate,
		})
	})

	return events, nil
}
