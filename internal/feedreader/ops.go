package feedreader

import "time"

// Operation is a single mutation produced by reconciliation: either an
// Insert or an Update.
type Operation interface {
	entryID() string
}

type (
	// Insert creates the row for a (source, entry id) pair seen for the first time.
	Insert struct {
		FeedSourceID   int64      `db:"feed_source_id"`
		EntryID        string     `db:"entry_id"`
		EntryTitle     string     `db:"entry_title"`
		EntryLink      string     `db:"entry_link"`
		EntryUpdatedAt *time.Time `db:"entry_updated_at"`
		FirstSeenAt    time.Time  `db:"first_seen_at"`
	}

	// Update overwrites the mutable fields of an existing row.
	//
	// ID is zero when the target row is created by an earlier Insert of the
	// same batch; it is then resolved through (FeedSourceID, EntryID).
	Update struct {
		ID             int64
		FeedSourceID   int64
		EntryID        string
		EntryTitle     string
		EntryLink      string
		EntryUpdatedAt *time.Time
	}
)

func (i Insert) entryID() string { return i.EntryID }
func (u Update) entryID() string { return u.EntryID }

// UpdateFor builds the Update that re-applies an Insert's values onto an
// existing row.
func UpdateFor(id int64, in Insert) Update {
	return Update{
		ID:             id,
		FeedSourceID:   in.FeedSourceID,
		EntryID:        in.EntryID,
		EntryTitle:     in.EntryTitle,
		EntryLink:      in.EntryLink,
		EntryUpdatedAt: in.EntryUpdatedAt,
	}
}
