package api

import (
	"errors"
	"net/http"
	"strconv"
	"time"

	"github.com/samber/lo"

	frerrs "github.com/jdholdren/feedreader/internal/errors"
	"github.com/jdholdren/feedreader/internal/feedreader"
	"github.com/jdholdren/feedreader/internal/serverutil"
)

type FeedEntryResp struct {
	ID             int64      `json:"id"`
	FeedSourceID   int64      `json:"feed_source_id"`
	EntryID        string     `json:"entry_id"`
	EntryTitle     string     `json:"entry_title"`
	EntryLink      string     `json:"entry_link"`
	EntryUpdatedAt *time.Time `json:"entry_updated_at"`
	FirstSeenAt    time.Time  `json:"first_seen_at"`
	UpdatedAt      time.Time  `json:"updated_at"`
}

func toEntryResp(e feedreader.FeedEntry, _ int) FeedEntryResp {
	return FeedEntryResp{
		ID:             e.ID,
		FeedSourceID:   e.FeedSourceID,
		EntryID:        e.EntryID,
		EntryTitle:     e.EntryTitle,
		EntryLink:      e.EntryLink,
		EntryUpdatedAt: e.EntryUpdatedAt,
		FirstSeenAt:    e.FirstSeenAt,
		UpdatedAt:      e.UpdatedAt,
	}
}

func (s *Server) getFeedEntries(w http.ResponseWriter, r *http.Request) error {
	ctx := r.Context()

	args, err := parseEntriesArgs(r)
	if err != nil {
		return err
	}

	entries, err := s.entries.Entries(ctx, args)
	if err != nil {
		return err
	}

	return serverutil.WriteJSON(w, http.StatusOK, lo.Map(entries, toEntryResp))
}

func (s *Server) getFeedEntry(w http.ResponseWriter, r *http.Request) error {
	ctx := r.Context()

	id, err := pathID(r)
	if err != nil {
		return err
	}

	entry, err := s.entries.Entry(ctx, id)
	if errors.Is(err, feedreader.ErrNotFound) {
		return frerrs.E(http.StatusNotFound, "feed entry not found")
	}
	if err != nil {
		return err
	}

	return serverutil.WriteJSON(w, http.StatusOK, toEntryResp(entry, 0))
}

// parseEntriesArgs reads the range, ordering, source filter and pagination
// of the entry listing. Range bounds must carry a UTC offset.
func parseEntriesArgs(r *http.Request) (feedreader.EntriesArgs, error) {
	query := r.URL.Query()

	offset, limit, err := parsePaginationParams(r)
	if err != nil {
		return feedreader.EntriesArgs{}, err
	}
	args := feedreader.EntriesArgs{
		Offset: offset,
		Limit:  limit,
	}

	if args.Start, err = parseInstant(query.Get("start"), "start"); err != nil {
		return feedreader.EntriesArgs{}, err
	}
	if args.End, err = parseInstant(query.Get("end"), "end"); err != nil {
		return feedreader.EntriesArgs{}, err
	}

	switch query.Get("order") {
	case "", "asc":
	case "desc":
		args.Descending = true
	default:
		return feedreader.EntriesArgs{}, frerrs.Invalid("order", "must be one of asc, desc")
	}

	if raw := query.Get("feed_source_id"); raw != "" {
		id, err := strconv.ParseInt(raw, 10, 64)
		if err != nil || id < 1 {
			return feedreader.EntriesArgs{}, frerrs.Invalid("feed_source_id", "must be a positive integer")
		}
		args.FeedSourceID = id
	}

	return args, nil
}

// parseInstant accepts RFC 3339 timestamps, which always carry an offset, so
// a naive datetime fails to parse. An empty value means unbounded.
func parseInstant(raw, field string) (*time.Time, error) {
	if raw == "" {
		return nil, nil
	}

	t, err := time.Parse(time.RFC3339Nano, raw)
	if err != nil {
		return nil, frerrs.Invalid(field, "must be an RFC 3339 timestamp with a UTC offset")
	}
	t = t.UTC()

	return &t, nil
}
