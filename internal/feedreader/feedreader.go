// Package feedreader holds the domain types shared by the ingestion engine,
// the store and the query API.
package feedreader

import (
	"errors"
	"fmt"
	"time"
)

var (
	ErrConflict = errors.New("resource already exists")
	ErrNotFound = errors.New("resource not found")
)

// ConflictError is returned by a store when a write violates one of the
// uniqueness constraints. Field names the offending attribute.
type ConflictError struct {
	Field string
}

func (e *ConflictError) Error() string {
	return fmt.Sprintf("%s already exists", e.Field)
}

// Is lets callers match any conflict with errors.Is(err, ErrConflict).
func (e *ConflictError) Is(target error) bool {
	return target == ErrConflict
}

type (
	// FeedSource is a registered origin of syndicated entries.
	FeedSource struct {
		ID      int64  `db:"id"`
		Name    string `db:"name"`
		FeedURL string `db:"feed_url"`
	}

	// FeedEntry is one syndicated item owned by a FeedSource.
	FeedEntry struct {
		ID             int64      `db:"id"`
		FeedSourceID   int64      `db:"feed_source_id"`
		EntryID        string     `db:"entry_id"`
		EntryTitle     string     `db:"entry_title"`
		EntryLink      string     `db:"entry_link"`
		EntryUpdatedAt *time.Time `db:"entry_updated_at"`
		FirstSeenAt    time.Time  `db:"first_seen_at"`
		UpdatedAt      time.Time  `db:"updated_at"`
	}

	// RawEntry is a parsed upstream entry before reconciliation. An empty
	// string means the field was absent upstream.
	RawEntry struct {
		ID      string
		Link    string
		Title   string
		Updated *time.Time
	}
)

// EffectiveTimestamp is the instant used for ordering and range filtering.
func (e FeedEntry) EffectiveTimestamp() time.Time {
	if e.EntryUpdatedAt != nil {
		return *e.EntryUpdatedAt
	}

	return e.FirstSeenAt
}
