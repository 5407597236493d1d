package sqlite

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	sq "github.com/Masterminds/squirrel"

	"github.com/jdholdren/feedreader/internal/feedreader"
)

func (r Repo) Source(ctx context.Context, id int64) (feedreader.FeedSource, error) {
	const q = `SELECT * FROM feed_sources WHERE id = ?;`

	var src feedreader.FeedSource
	err := r.db.GetContext(ctx, &src, q, id)
	if errors.Is(err, sql.ErrNoRows) {
		return feedreader.FeedSource{}, feedreader.ErrNotFound
	}
	if err != nil {
		return feedreader.FeedSource{}, fmt.Errorf("error fetching feed source: %w", err)
	}

	return src, nil
}

// Sources returns one page of feed sources ordered by id.
func (r Repo) Sources(ctx context.Context, offset, limit uint64) ([]feedreader.FeedSource, error) {
	query, args, err := sq.Select("*").
		From("feed_sources").
		OrderBy("id ASC").
		Limit(limit).
		Offset(offset).
		ToSql()
	if err != nil {
		return nil, fmt.Errorf("error constructing sql: %w", err)
	}

	srcs := []feedreader.FeedSource{}
	if err := r.db.SelectContext(ctx, &srcs, query, args...); err != nil {
		return nil, fmt.Errorf("error selecting feed sources: %w", err)
	}

	return srcs, nil
}

// AllSources retrieves _all_ feed sources from the database.
func (r Repo) AllSources(ctx context.Context) ([]feedreader.FeedSource, error) {
	const q = `SELECT * FROM feed_sources ORDER BY id ASC;`

	srcs := []feedreader.FeedSource{}
	if err := r.db.SelectContext(ctx, &srcs, q); err != nil {
		return nil, fmt.Errorf("error selecting all feed sources: %w", err)
	}

	return srcs, nil
}

func (r Repo) InsertSource(ctx context.Context, name, feedURL string) (feedreader.FeedSource, error) {
	const q = `INSERT INTO feed_sources (name, feed_url) VALUES (?, ?);`

	res, err := r.db.ExecContext(ctx, q, name, feedURL)
	if conflict := asConflict(err); conflict != nil {
		return feedreader.FeedSource{}, conflict
	}
	if err != nil {
		return feedreader.FeedSource{}, fmt.Errorf("error inserting feed source: %w", err)
	}
	id, err := res.LastInsertId()
	if err != nil {
		return feedreader.FeedSource{}, fmt.Errorf("error reading feed source id: %w", err)
	}

	return r.Source(ctx, id)
}

// UpdateSource applies the non-nil fields of args.
func (r Repo) UpdateSource(ctx context.Context, id int64, args feedreader.UpdateSourceArgs) (feedreader.FeedSource, error) {
	if args.Name == nil && args.FeedURL == nil {
		return r.Source(ctx, id)
	}

	q := sq.Update("feed_sources")
	if args.Name != nil {
		q = q.Set("name", *args.Name)
	}
	if args.FeedURL != nil {
		q = q.Set("feed_url", *args.FeedURL)
	}
	q = q.Where(sq.Eq{"id": id})

	query, qArgs, err := q.ToSql()
	if err != nil {
		return feedreader.FeedSource{}, fmt.Errorf("error constructing sql: %w", err)
	}
	res, err := r.db.ExecContext(ctx, query, qArgs...)
	if conflict := asConflict(err); conflict != nil {
		return feedreader.FeedSource{}, conflict
	}
	if err != nil {
		return feedreader.FeedSource{}, fmt.Errorf("error updating feed source: %w", err)
	}
	if n, err := res.RowsAffected(); err == nil && n == 0 {
		return feedreader.FeedSource{}, feedreader.ErrNotFound
	}

	return r.Source(ctx, id)
}

// DeleteSource removes a feed source; its entries go with it through the
// foreign key cascade.
func (r Repo) DeleteSource(ctx context.Context, id int64) error {
	const q = `DELETE FROM feed_sources WHERE id = ?;`

	res, err := r.db.ExecContext(ctx, q, id)
	if err != nil {
		return fmt.Errorf("error deleting feed source: %w", err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("error reading deleted rows: %w", err)
	}
	if n == 0 {
		return feedreader.ErrNotFound
	}

	return nil
}
