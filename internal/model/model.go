package model

import "time"

// Event is a single listing scraped from the source page. ImageLink holds the
// original image URL until enrichment replaces it with the base64-encoded
// Image payload; the two fields never co-exist on an enriched event.
type Event struct {
	Link      string `json:"link"`
	ImageLink string `json:"imageLink,omitempty"`
	Date      string `json:"date"`
	Title     string `json:"title"`
	Category  string `json:"category"`
	FetchDate string `json:"fetch_date"`
	Image     string `json:"image,omitempty"`
}

// DateStamp is the cache partition key plus the integer date components used
// by the past-event filter. Built once per request from wall-clock time.
type DateStamp struct {
	Formatted string // dd-mm-yyyy
	Day       int
	Month     int
	Year      int
}

func NewDateStamp(t time.Time) DateStamp {
	return DateStamp{
		Formatted: t.Format("02-01-2006"),
		Day:       t.Day(),
		Month:     int(t.Month()),
		Year:      t.Year(),
	}
}

// DefaultChunkSize bounds how many events go into one persisted document.
// The backing document store has a per-document size limit.
const DefaultChunkSize = 5

// ChunkEvents splits events into ordered slices of at most size elements.
// The last chunk may be shorter; concatenating all chunks in order yields
// the original sequence.
func ChunkEvents(events []Event, size int) [][]Event {
	if size <= 0 {
		size = DefaultChunkSize
	}

	chunks := make([][]Event, 0, (len(events)+size-1)/size)
	for start := 0; start < len(events); start += size {
		end := min(start+size, len(events))
		chunks = append(chunks, events[start:end])
	}
	return chunks
}
