package feedreader

import (
	"context"
	"time"
)

type (
	// SourceService is the feed source surface used by the API.
	SourceService interface {
		Source(ctx context.Context, id int64) (FeedSource, error)
		Sources(ctx context.Context, offset, limit uint64) ([]FeedSource, error)
		AllSources(ctx context.Context) ([]FeedSource, error)
		InsertSource(ctx context.Context, name, feedURL string) (FeedSource, error)
		UpdateSource(ctx context.Context, id int64, args UpdateSourceArgs) (FeedSource, error)
		DeleteSource(ctx context.Context, id int64) error
	}

	// EntryService is the read side of feed entries used by the API.
	EntryService interface {
		Entry(ctx context.Context, id int64) (FeedEntry, error)
		Entries(ctx context.Context, args EntriesArgs) ([]FeedEntry, error)
	}

	// EntryTx is the set of entry mutations available inside one source's
	// ingestion transaction.
	EntryTx interface {
		SourceEntries(ctx context.Context, sourceID int64) ([]FeedEntry, error)
		FindEntry(ctx context.Context, sourceID int64, entryID string) (FeedEntry, error)
		// InsertEntry returns a *ConflictError when the (source, entry id)
		// pair already exists.
		InsertEntry(ctx context.Context, in Insert) (FeedEntry, error)
		UpdateEntry(ctx context.Context, up Update) error
	}

	// IngestStore is what the ingestion orchestrator consumes.
	IngestStore interface {
		AllSources(ctx context.Context) ([]FeedSource, error)
		// InTx runs fn inside a transaction that commits when fn returns nil
		// and rolls back otherwise.
		InTx(ctx context.Context, fn func(EntryTx) error) error
	}

	// Repository is everything the sqlite store provides.
	Repository interface {
		SourceService
		EntryService
		IngestStore
	}

	// Holds the optional fields for updating a feed source.
	UpdateSourceArgs struct {
		Name    *string
		FeedURL *string
	}

	// EntriesArgs filters and paginates the feed entry listing.
	EntriesArgs struct {
		Start        *time.Time
		End          *time.Time
		Descending   bool
		FeedSourceID int64
		Offset       uint64
		Limit        uint64
	}
)
