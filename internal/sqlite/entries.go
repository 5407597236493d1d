package sqlite

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	sq "github.com/Masterminds/squirrel"
	"github.com/jmoiron/sqlx"

	"github.com/jdholdren/feedreader/internal/feedreader"
)

// effectiveAt matches the expression index on feed_entries.
const effectiveAt = "coalesce(entry_updated_at, first_seen_at)"

func (r Repo) Entry(ctx context.Context, id int64) (feedreader.FeedEntry, error) {
	const q = `SELECT * FROM feed_entries WHERE id = ?;`

	var e feedreader.FeedEntry
	err := r.db.GetContext(ctx, &e, q, id)
	if errors.Is(err, sql.ErrNoRows) {
		return feedreader.FeedEntry{}, feedreader.ErrNotFound
	}
	if err != nil {
		return feedreader.FeedEntry{}, fmt.Errorf("error fetching feed entry: %w", err)
	}

	return utcEntry(e), nil
}

// Entries lists entries whose effective timestamp falls in [Start, End],
// ordered by effective timestamp and then id.
func (r Repo) Entries(ctx context.Context, args feedreader.EntriesArgs) ([]feedreader.FeedEntry, error) {
	q := sq.Select("*").From("feed_entries")
	if args.Start != nil {
		q = q.Where(sq.GtOrEq{effectiveAt: args.Start.UTC()})
	}
	if args.End != nil {
		q = q.Where(sq.LtOrEq{effectiveAt: args.End.UTC()})
	}
	if args.FeedSourceID != 0 {
		q = q.Where(sq.Eq{"feed_source_id": args.FeedSourceID})
	}

	dir := "ASC"
	if args.Descending {
		dir = "DESC"
	}
	q = q.OrderBy(effectiveAt+" "+dir, "id "+dir).
		Limit(args.Limit).
		Offset(args.Offset)

	query, qArgs, err := q.ToSql()
	if err != nil {
		return nil, fmt.Errorf("error constructing sql: %w", err)
	}

	entries := []feedreader.FeedEntry{}
	if err := r.db.SelectContext(ctx, &entries, query, qArgs...); err != nil {
		return nil, fmt.Errorf("error selecting feed entries: %w", err)
	}
	for i := range entries {
		entries[i] = utcEntry(entries[i])
	}

	return entries, nil
}

// entryTx implements feedreader.EntryTx on top of an open transaction.
type entryTx struct {
	q   sqlx.ExtContext
	now func() time.Time
}

func (t entryTx) SourceEntries(ctx context.Context, sourceID int64) ([]feedreader.FeedEntry, error) {
	const q = `SELECT * FROM feed_entries WHERE feed_source_id = ? ORDER BY id ASC;`

	entries := []feedreader.FeedEntry{}
	if err := sqlx.SelectContext(ctx, t.q, &entries, q, sourceID); err != nil {
		return nil, fmt.Errorf("error selecting source entries: %w", err)
	}
	for i := range entries {
		entries[i] = utcEntry(entries[i])
	}

	return entries, nil
}

func (t entryTx) FindEntry(ctx context.Context, sourceID int64, entryID string) (feedreader.FeedEntry, error) {
	const q = `SELECT * FROM feed_entries WHERE feed_source_id = ? AND entry_id = ?;`

	var e feedreader.FeedEntry
	err := sqlx.GetContext(ctx, t.q, &e, q, sourceID, entryID)
	if errors.Is(err, sql.ErrNoRows) {
		return feedreader.FeedEntry{}, feedreader.ErrNotFound
	}
	if err != nil {
		return feedreader.FeedEntry{}, fmt.Errorf("error fetching feed entry: %w", err)
	}

	return utcEntry(e), nil
}

func (t entryTx) InsertEntry(ctx context.Context, in feedreader.Insert) (feedreader.FeedEntry, error) {
	const q = `INSERT INTO feed_entries (
		feed_source_id,
		entry_id,
		entry_title,
		entry_link,
		entry_updated_at,
		first_seen_at,
		updated_at
	) VALUES (?, ?, ?, ?, ?, ?, ?);`

	res, err := t.q.ExecContext(ctx, q,
		in.FeedSourceID,
		in.EntryID,
		in.EntryTitle,
		in.EntryLink,
		utcPtr(in.EntryUpdatedAt),
		in.FirstSeenAt.UTC(),
		t.now().UTC(),
	)
	if conflict := asConflict(err); conflict != nil {
		return feedreader.FeedEntry{}, conflict
	}
	if err != nil {
		return feedreader.FeedEntry{}, fmt.Errorf("error inserting feed entry: %w", err)
	}
	id, err := res.LastInsertId()
	if err != nil {
		return feedreader.FeedEntry{}, fmt.Errorf("error reading feed entry id: %w", err)
	}

	var e feedreader.FeedEntry
	if err := sqlx.GetContext(ctx, t.q, &e, `SELECT * FROM feed_entries WHERE id = ?;`, id); err != nil {
		return feedreader.FeedEntry{}, fmt.Errorf("error fetching inserted feed entry: %w", err)
	}

	return utcEntry(e), nil
}

// UpdateEntry overwrites title, link and upstream timestamp. first_seen_at is
// never touched.
func (t entryTx) UpdateEntry(ctx context.Context, up feedreader.Update) error {
	q := sq.Update("feed_entries").
		Set("entry_title", up.EntryTitle).
		Set("entry_link", up.EntryLink).
		Set("entry_updated_at", utcPtr(up.EntryUpdatedAt)).
		Set("updated_at", t.now().UTC())
	if up.ID != 0 {
		q = q.Where(sq.Eq{"id": up.ID})
	} else {
		q = q.Where(sq.Eq{"feed_source_id": up.FeedSourceID, "entry_id": up.EntryID})
	}

	query, args, err := q.ToSql()
	if err != nil {
		return fmt.Errorf("error constructing sql: %w", err)
	}
	res, err := t.q.ExecContext(ctx, query, args...)
	if err != nil {
		return fmt.Errorf("error updating feed entry: %w", err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("error reading updated rows: %w", err)
	}
	if n == 0 {
		return feedreader.ErrNotFound
	}

	return nil
}

func utcPtr(t *time.Time) *time.Time {
	if t == nil {
		return nil
	}
	u := t.UTC()
	return &u
}

// utcEntry normalizes the locations the driver attaches when parsing stored
// timestamps.
func utcEntry(e feedreader.FeedEntry) feedreader.FeedEntry {
	e.EntryUpdatedAt = utcPtr(e.EntryUpdatedAt)
	e.FirstSeenAt = e.FirstSeenAt.UTC()
	e.UpdatedAt = e.UpdatedAt.UTC()
	return e
}
