package models

import (
	"fmt"
	"time"
)

// SearchStatus is the lifecycle state of a search.
type SearchStatus string

const (
	StatusPending  SearchStatus = "Pending"
	StatusScraping SearchStatus = "Scraping"
	StatusDone     SearchStatus = "Done"
	StatusFailed   SearchStatus = "Failed"
)

// ParseSearchStatus validates a raw status value.
func ParseSearchStatus(raw string) (SearchStatus, error) {
	switch s := SearchStatus(raw); s {
	case StatusPending, StatusScraping, StatusDone, StatusFailed:
		return s, nil
	default:
		return "", fmt.Errorf("unknown search status %q", raw)
	}
}

// Search is a user's query together with its tracking state.
type Search struct {
	ID            string       `db:"id" json:"id"`
	UserID        string       `db:"user_id" json:"user_id"`
	Query         string       `db:"query" json:"query"`
	Status        SearchStatus `db:"status" json:"status"`
	Tracked       bool         `db:"is_tracked" json:"is_tracked"`
	LastScrapedAt *time.Time   `db:"last_scraped_at" json:"last_scraped_at"`
	ScrapeJobID   *string      `db:"snapshot_id" json:"snapshot_id,omitempty"` // vendor job id
	CreatedAt     time.Time    `db:"created_at" json:"created_at"`
}

// SearchProductLink associates a search with a product it matched.
type SearchProductLink struct {
	SearchID string `db:"search_id" json:"search_id"`
	ASIN     string `db:"asin" json:"asin"`
}
