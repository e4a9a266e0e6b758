package models

import "time"

// ProductError captures a failure for one item of a batch.
type ProductError struct {
	ASIN string
	Err  error
}

func (e ProductError) Error() string {
	return e.ASIN + ": " + e.Err.Error()
}

func (e ProductError) Unwrap() error {
	return e.Err
}

// UpdateResult summarizes one Updater run.
type UpdateResult struct {
	StartTime              time.Time
	EndTime                time.Time
	ProductsProcessed      int
	SnapshotsCreated       int
	Errors                 []ProductError
	TrackedSearchesChecked int
	Checks                 []CheckOutcome
	SearchListErr          error
}

// CheckOutcome is the settled result of one per-search price check.
type CheckOutcome struct {
	SearchID string
	Result   *CheckResult
	Err      error
}

// CheckResult is what a price check reports for one search.
type CheckResult struct {
	SearchID        string
	PriceDropsCount int
	AlertsCreated   int
	Skipped         bool
	SkipReason      string
	Failed          []ProductError
}

// LinkResult summarizes a Linker call.
type LinkResult struct {
	SearchID string
	Matched  int
	Linked   int  // newly inserted links
	Browse   bool // no usable query terms; first catalog products were used
}

// IngestResult summarizes a scrape ingestion.
type IngestResult struct {
	SearchID         string
	Received         int
	ProductsSaved    int
	SnapshotsCreated int
	Linked           int
}
