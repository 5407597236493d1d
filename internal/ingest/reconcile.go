// Package ingest pulls every registered feed and folds its entries into the
// store.
package ingest

import (
	"time"

	"github.com/jdholdren/feedreader/internal/feedreader"
)

// Reconciliation is the outcome of comparing one source's fresh entries with
// what is already stored for it.
type Reconciliation struct {
	// Ops are ordered as the raw entries that produced them.
	Ops []feedreader.Operation
	// Skipped counts raw entries without a link.
	Skipped int
}

// Inserts counts the Insert operations.
func (r Reconciliation) Inserts() int {
	n := 0
	for _, op := range r.Ops {
		if _, ok := op.(feedreader.Insert); ok {
			n++
		}
	}
	return n
}

// Updates counts the Update operations.
func (r Reconciliation) Updates() int {
	return len(r.Ops) - r.Inserts()
}

// Reconcile decides, entry by entry, whether raw creates a new row or
// overwrites an existing one. existing is the source's stored entries keyed
// by entry id.
//
// Each raw entry is classified against the view left by the ones before it,
// so an id repeated in the same feed produces an Insert followed by Updates
// and the last occurrence's values win.
func Reconcile(
	src feedreader.FeedSource,
	raw []feedreader.RawEntry,
	existing map[string]feedreader.FeedEntry,
	now time.Time,
) Reconciliation {
	var (
		rec       = Reconciliation{Ops: make([]feedreader.Operation, 0, len(raw))}
		inBatch   = map[string]struct{}{}
		firstSeen = now.UTC()
	)

	for _, r := range raw {
		if r.Link == "" {
			rec.Skipped++
			continue
		}

		entryID := r.ID
		if entryID == "" {
			entryID = r.Link
		}

		var updatedAt *time.Time
		if r.Updated != nil {
			u := r.Updated.UTC()
			updatedAt = &u
		}

		if row, ok := existing[entryID]; ok {
			rec.Ops = append(rec.Ops, feedreader.Update{
				ID:             row.ID,
				FeedSourceID:   src.ID,
				EntryID:        entryID,
				EntryTitle:     r.Title,
				EntryLink:      r.Link,
				EntryUpdatedAt: updatedAt,
			})
			continue
		}

		if _, ok := inBatch[entryID]; ok {
			// The row comes from an earlier Insert in this batch and has no id yet.
			rec.Ops = append(rec.Ops, feedreader.Update{
				FeedSourceID:   src.ID,
				EntryID:        entryID,
				EntryTitle:     r.Title,
				EntryLink:      r.Link,
				EntryUpdatedAt: updatedAt,
			})
			continue
		}

		inBatch[entryID] = struct{}{}
		rec.Ops = append(rec.Ops, feedreader.Insert{
			FeedSourceID:   src.ID,
			EntryID:        entryID,
			EntryTitle:     r.Title,
			EntryLink:      r.Link,
			EntryUpdatedAt: updatedAt,
			FirstSeenAt:    firstSeen,
		})
	}

	return rec
}
