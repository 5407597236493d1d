package sqlite

import (
	"context"
	"errors"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/jdholdren/feedreader/internal/feedreader"
	"github.com/jdholdren/feedreader/internal/migrations"
)

var testNow = time.Date(2025, 11, 3, 9, 0, 0, 0, time.UTC)

func newTestRepo(t *testing.T) Repo {
	t.Helper()

	dbx, err := Open(context.Background(), filepath.Join(t.TempDir(), "feeds.db"))
	require.NoError(t, err)
	t.Cleanup(func() { dbx.Close() })
	require.NoError(t, migrations.Run(dbx))

	return New(dbx, WithClock(func() time.Time { return testNow }))
}

func ptr[T any](v T) *T { return &v }

func TestSources_CRUD(t *testing.T) {
	var (
		ctx  = context.Background()
		repo = newTestRepo(t)
	)

	src, err := repo.InsertSource(ctx, "Example", "https://example.com/feed.xml")
	require.NoError(t, err)
	assert.NotZero(t, src.ID)
	assert.Equal(t, "Example", src.Name)

	got, err := repo.Source(ctx, src.ID)
	require.NoError(t, err)
	assert.Equal(t, src, got)

	updated, err := repo.UpdateSource(ctx, src.ID, feedreader.UpdateSourceArgs{Name: ptr("Renamed")})
	require.NoError(t, err)
	assert.Equal(t, "Renamed", updated.Name)
	assert.Equal(t, "https://example.com/feed.xml", updated.FeedURL)

	require.NoError(t, repo.DeleteSource(ctx, src.ID))
	_, err = repo.Source(ctx, src.ID)
	assert.ErrorIs(t, err, feedreader.ErrNotFound)
	assert.ErrorIs(t, repo.DeleteSource(ctx, src.ID), feedreader.ErrNotFound)
}

func TestSources_Conflicts(t *testing.T) {
	var (
		ctx  = context.Background()
		repo = newTestRepo(t)
	)

	_, err := repo.InsertSource(ctx, "one", "https://one.example.com/rss")
	require.NoError(t, err)
	second, err := repo.InsertSource(ctx, "two", "https://two.example.com/rss")
	require.NoError(t, err)

	tests := []struct {
		name      string
		run       func() error
		wantField string
	}{
		{
			name: "insert duplicate name",
			run: func() error {
				_, err := repo.InsertSource(ctx, "one", "https://three.example.com/rss")
				return err
			},
			wantField: "name",
		},
		{
			name: "insert duplicate url",
			run: func() error {
				_, err := repo.InsertSource(ctx, "three", "https://one.example.com/rss")
				return err
			},
			wantField: "feed_url",
		},
		{
			name: "update to taken name",
			run: func() error {
				_, err := repo.UpdateSource(ctx, second.ID, feedreader.UpdateSourceArgs{Name: ptr("one")})
				return err
			},
			wantField: "name",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := tt.run()

			var conflict *feedreader.ConflictError
			require.ErrorAs(t, err, &conflict)
			assert.Equal(t, tt.wantField, conflict.Field)
			assert.ErrorIs(t, err, feedreader.ErrConflict)
		})
	}
}

func TestSources_Pagination(t *testing.T) {
	var (
		ctx  = context.Background()
		repo = newTestRepo(t)
	)

	for _, name := range []string{"a", "b", "c"} {
		_, err := repo.InsertSource(ctx, name, "https://"+name+".example.com/rss")
		require.NoError(t, err)
	}

	page, err := repo.Sources(ctx, 1, 1)
	require.NoError(t, err)
	require.Len(t, page, 1)
	assert.Equal(t, "b", page[0].Name)

	all, err := repo.AllSources(ctx)
	require.NoError(t, err)
	assert.Len(t, all, 3)
}

func TestUpdateSource_Missing(t *testing.T) {
	repo := newTestRepo(t)

	_, err := repo.UpdateSource(context.Background(), 42, feedreader.UpdateSourceArgs{Name: ptr("x")})
	assert.ErrorIs(t, err, feedreader.ErrNotFound)
}

func TestEntries_InsertUpdateInTx(t *testing.T) {
	var (
		ctx  = context.Background()
		repo = newTestRepo(t)
	)

	src, err := repo.InsertSource(ctx, "src", "https://example.com/rss")
	require.NoError(t, err)

	firstSeen := time.Date(2025, 11, 2, 0, 0, 0, 0, time.UTC)
	upstream := time.Date(2025, 11, 1, 12, 0, 0, 0, time.UTC)

	var inserted feedreader.FeedEntry
	err = repo.InTx(ctx, func(tx feedreader.EntryTx) error {
		var err error
		inserted, err = tx.InsertEntry(ctx, feedreader.Insert{
			FeedSourceID:   src.ID,
			EntryID:        "guid-1",
			EntryTitle:     "Hello",
			EntryLink:      "https://example.com/1",
			EntryUpdatedAt: &upstream,
			FirstSeenAt:    firstSeen,
		})
		return err
	})
	require.NoError(t, err)
	assert.Equal(t, firstSeen, inserted.FirstSeenAt)
	assert.Equal(t, testNow, inserted.UpdatedAt)
	require.NotNil(t, inserted.EntryUpdatedAt)
	assert.Equal(t, upstream, *inserted.EntryUpdatedAt)

	// A second insert of the same pair conflicts; the update path resolves it.
	err = repo.InTx(ctx, func(tx feedreader.EntryTx) error {
		_, err := tx.InsertEntry(ctx, feedreader.Insert{
			FeedSourceID: src.ID,
			EntryID:      "guid-1",
			EntryLink:    "https://example.com/1",
			FirstSeenAt:  testNow,
		})
		if !errors.Is(err, feedreader.ErrConflict) {
			return err
		}

		existing, err := tx.FindEntry(ctx, src.ID, "guid-1")
		if err != nil {
			return err
		}
		return tx.UpdateEntry(ctx, feedreader.Update{
			ID:           existing.ID,
			FeedSourceID: src.ID,
			EntryID:      "guid-1",
			EntryTitle:   "Hello again",
			EntryLink:    "https://example.com/1b",
		})
	})
	require.NoError(t, err)

	got, err := repo.Entry(ctx, inserted.ID)
	require.NoError(t, err)
	assert.Equal(t, "Hello again", got.EntryTitle)
	assert.Equal(t, "https://example.com/1b", got.EntryLink)
	assert.Nil(t, got.EntryUpdatedAt)
	assert.Equal(t, firstSeen, got.FirstSeenAt)
}

func TestInTx_RollsBackOnError(t *testing.T) {
	var (
		ctx  = context.Background()
		repo = newTestRepo(t)
		boom = errors.New("boom")
	)

	src, err := repo.InsertSource(ctx, "src", "https://example.com/rss")
	require.NoError(t, err)

	err = repo.InTx(ctx, func(tx feedreader.EntryTx) error {
		if _, err := tx.InsertEntry(ctx, feedreader.Insert{
			FeedSourceID: src.ID,
			EntryID:      "guid-1",
			EntryLink:    "https://example.com/1",
			FirstSeenAt:  testNow,
		}); err != nil {
			return err
		}
		return boom
	})
	require.ErrorIs(t, err, boom)

	entries, err := repo.Entries(ctx, feedreader.EntriesArgs{Limit: 100})
	require.NoError(t, err)
	assert.Empty(t, entries)
}

func TestUpdateEntry_ByPair(t *testing.T) {
	var (
		ctx  = context.Background()
		repo = newTestRepo(t)
	)

	src, err := repo.InsertSource(ctx, "src", "https://example.com/rss")
	require.NoError(t, err)

	err = repo.InTx(ctx, func(tx feedreader.EntryTx) error {
		if _, err := tx.InsertEntry(ctx, feedreader.Insert{
			FeedSourceID: src.ID,
			EntryID:      "dup",
			EntryTitle:   "first",
			EntryLink:    "https://example.com/first",
			FirstSeenAt:  testNow,
		}); err != nil {
			return err
		}
		return tx.UpdateEntry(ctx, feedreader.Update{
			FeedSourceID: src.ID,
			EntryID:      "dup",
			EntryTitle:   "second",
			EntryLink:    "https://example.com/second",
		})
	})
	require.NoError(t, err)

	entries, err := repo.Entries(ctx, feedreader.EntriesArgs{Limit: 100})
	require.NoError(t, err)
	require.Len(t, entries, 1)
	assert.Equal(t, "second", entries[0].EntryTitle)
}

func TestEntries_RangeAndOrder(t *testing.T) {
	var (
		ctx  = context.Background()
		repo = newTestRepo(t)
		day  = func(d int) time.Time { return time.Date(2025, 11, d, 0, 0, 0, 0, time.UTC) }
	)

	a, err := repo.InsertSource(ctx, "a", "https://a.example.com/rss")
	require.NoError(t, err)
	b, err := repo.InsertSource(ctx, "b", "https://b.example.com/rss")
	require.NoError(t, err)

	// e1: no upstream timestamp, effective day 2.
	// e2: upstream day 1, first seen day 5, effective day 1.
	// e3: upstream day 3 on the second source.
	err = repo.InTx(ctx, func(tx feedreader.EntryTx) error {
		for _, in := range []feedreader.Insert{
			{FeedSourceID: a.ID, EntryID: "e1", EntryLink: "https://a.example.com/1", FirstSeenAt: day(2)},
			{FeedSourceID: a.ID, EntryID: "e2", EntryLink: "https://a.example.com/2", EntryUpdatedAt: ptr(day(1)), FirstSeenAt: day(5)},
			{FeedSourceID: b.ID, EntryID: "e3", EntryLink: "https://b.example.com/3", EntryUpdatedAt: ptr(day(3)), FirstSeenAt: day(3)},
		} {
			if _, err := tx.InsertEntry(ctx, in); err != nil {
				return err
			}
		}
		return nil
	})
	require.NoError(t, err)

	entryIDs := func(entries []feedreader.FeedEntry) []string {
		ids := make([]string, 0, len(entries))
		for _, e := range entries {
			ids = append(ids, e.EntryID)
		}
		return ids
	}

	tests := []struct {
		name string
		args feedreader.EntriesArgs
		want []string
	}{
		{
			name: "ascending",
			args: feedreader.EntriesArgs{Limit: 100},
			want: []string{"e2", "e1", "e3"},
		},
		{
			name: "descending",
			args: feedreader.EntriesArgs{Descending: true, Limit: 100},
			want: []string{"e3", "e1", "e2"},
		},
		{
			name: "inclusive range",
			args: feedreader.EntriesArgs{Start: ptr(day(2)), End: ptr(day(3)), Limit: 100},
			want: []string{"e1", "e3"},
		},
		{
			name: "first seen outside range is ignored when upstream time is set",
			args: feedreader.EntriesArgs{Start: ptr(day(5)), End: ptr(day(6)), Limit: 100},
			want: []string{},
		},
		{
			name: "source filter",
			args: feedreader.EntriesArgs{FeedSourceID: a.ID, Limit: 100},
			want: []string{"e2", "e1"},
		},
		{
			name: "offset and limit",
			args: feedreader.EntriesArgs{Descending: true, Offset: 1, Limit: 1},
			want: []string{"e1"},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			entries, err := repo.Entries(ctx, tt.args)
			require.NoError(t, err)
			assert.Equal(t, tt.want, entryIDs(entries))
		})
	}
}

func TestDeleteSource_CascadesEntries(t *testing.T) {
	var (
		ctx  = context.Background()
		repo = newTestRepo(t)
	)

	src, err := repo.InsertSource(ctx, "src", "https://example.com/rss")
	require.NoError(t, err)

	var entry feedreader.FeedEntry
	err = repo.InTx(ctx, func(tx feedreader.EntryTx) error {
		var err error
		entry, err = tx.InsertEntry(ctx, feedreader.Insert{
			FeedSourceID: src.ID,
			EntryID:      "guid",
			EntryLink:    "https://example.com/1",
			FirstSeenAt:  testNow,
		})
		return err
	})
	require.NoError(t, err)

	require.NoError(t, repo.DeleteSource(ctx, src.ID))
	_, err = repo.Entry(ctx, entry.ID)
	assert.ErrorIs(t, err, feedreader.ErrNotFound)
}

func TestAsConflict(t *testing.T) {
	assert.Nil(t, asConflict(nil))
	assert.Nil(t, asConflict(errors.New("not sqlite")))
}
