package ingest

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/samber/lo"
	"golang.org/x/sync/errgroup"

	"github.com/jdholdren/feedreader/internal/feedreader"
	"github.com/jdholdren/feedreader/internal/logger"
)

// Parser turns a feed URL into raw entries, in feed order.
type Parser interface {
	Parse(ctx context.Context, feedURL string) ([]feedreader.RawEntry, error)
}

// Stage names the step of a source's ingestion that failed.
type Stage string

const (
	StageFetch Stage = "fetch"
	StageStore Stage = "store"
)

type (
	// Failure records why one source contributed nothing to a run.
	Failure struct {
		SourceID int64  `json:"feed_source_id"`
		FeedURL  string `json:"feed_url"`
		Stage    Stage  `json:"stage"`
		Err      error  `json:"-"`
	}

	// RunSummary describes one ingestion pass.
	RunSummary struct {
		RunID     string        `json:"run_id"`
		Sources   int           `json:"sources"`
		Succeeded int           `json:"succeeded"`
		Inserted  int           `json:"inserted"`
		Updated   int           `json:"updated"`
		Skipped   int           `json:"skipped"`
		Failures  []Failure     `json:"failures"`
		Cancelled bool          `json:"cancelled"`
		StartedAt time.Time     `json:"started_at"`
		Duration  time.Duration `json:"duration"`
	}
)

func (f Failure) Error() string {
	return fmt.Sprintf("feed source %d (%s) failed at %s: %v", f.SourceID, f.FeedURL, f.Stage, f.Err)
}

func (f Failure) Unwrap() error {
	return f.Err
}

// MarshalJSON includes the cause as an "error" string.
func (f Failure) MarshalJSON() ([]byte, error) {
	type failure Failure
	var msg string
	if f.Err != nil {
		msg = f.Err.Error()
	}

	return json.Marshal(struct {
		failure
		Error string `json:"error"`
	}{
		failure: failure(f),
		Error:   msg,
	})
}

// Runner drives ingestion runs.
type Runner struct {
	store       feedreader.IngestStore
	parser      Parser
	now         func() time.Time
	concurrency int
}

// Option configures a Runner.
type Option func(*Runner)

// WithConcurrency sets how many sources are processed at once.
func WithConcurrency(n int) Option {
	return func(r *Runner) {
		if n > 0 {
			r.concurrency = n
		}
	}
}

// WithClock overrides the clock used for first_seen_at and run timing.
func WithClock(now func() time.Time) Option {
	return func(r *Runner) {
		r.now = now
	}
}

// NewRunner builds a Runner that processes one source at a time unless
// WithConcurrency says otherwise.
func NewRunner(store feedreader.IngestStore, parser Parser, opts ...Option) *Runner {
	r := &Runner{
		store:       store,
		parser:      parser,
		now:         time.Now,
		concurrency: 1,
	}
	for _, opt := range opts {
		opt(r)
	}

	return r
}

// Run performs one ingestion pass over every registered source. Sources fail
// independently; the error is only set when the sources can't be listed.
//
// Cancelling ctx stops the run before its next source. A source whose
// transaction is already open still commits or rolls back as a whole.
func (r *Runner) Run(ctx context.Context) (RunSummary, error) {
	started := r.now()
	summary := RunSummary{
		RunID:     uuid.NewString(),
		StartedAt: started.UTC(),
		Failures:  []Failure{},
	}
	ctx = logger.Ctx(ctx, slog.String("run_id", summary.RunID))

	srcs, err := r.store.AllSources(ctx)
	if err != nil {
		return summary, fmt.Errorf("error listing feed sources: %w", err)
	}
	summary.Sources = len(srcs)

	var (
		mu sync.Mutex
		// A plain group: one source's failure must not cancel the others.
		g = new(errgroup.Group)
	)
	g.SetLimit(r.concurrency)
	for _, src := range srcs {
		if ctx.Err() != nil {
			break
		}

		src := src // per-iteration copy (go 1.21 loop-variable semantics)
		g.Go(func() error {
			if ctx.Err() != nil {
				return nil
			}

			res := r.ingestSource(ctx, src)

			mu.Lock()
			defer mu.Unlock()
			if res.failure != nil {
				summary.Failures = append(summary.Failures, *res.failure)
				return nil
			}
			summary.Succeeded++
			summary.Inserted += res.inserted
			summary.Updated += res.updated
			summary.Skipped += res.skipped
			return nil
		})
	}
	_ = g.Wait()

	summary.Cancelled = ctx.Err() != nil
	summary.Duration = r.now().Sub(started)
	observeRun(summary)

	return summary, nil
}

// FetchFeedsJob is the scheduler's entry point: one run, logged.
func (r *Runner) FetchFeedsJob(ctx context.Context) {
	slog.InfoContext(ctx, "ingestion run starting")

	summary, err := r.Run(ctx)
	ctx = logger.Ctx(ctx, slog.String("run_id", summary.RunID))
	if err != nil {
		slog.ErrorContext(ctx, "ingestion run failed", "err", err)
		return
	}

	slog.InfoContext(ctx, "ingestion run finished",
		"sources", summary.Sources,
		"succeeded", summary.Succeeded,
		"failed", len(summary.Failures),
		"inserted", summary.Inserted,
		"updated", summary.Updated,
		"skipped", summary.Skipped,
		"cancelled", summary.Cancelled,
		"duration", summary.Duration,
	)
}

type sourceResult struct {
	inserted, updated, skipped int
	failure                    *Failure
}

func (r *Runner) ingestSource(ctx context.Context, src feedreader.FeedSource) sourceResult {
	ctx = logger.Ctx(ctx,
		slog.Int64("feed_source_id", src.ID),
		slog.String("feed_url", src.FeedURL),
	)
	fail := func(stage Stage, err error) sourceResult {
		slog.WarnContext(ctx, "feed source failed", "stage", stage, "err", err)
		return sourceResult{failure: &Failure{
			SourceID: src.ID,
			FeedURL:  src.FeedURL,
			Stage:    stage,
			Err:      err,
		}}
	}

	// Fetching happens before the transaction opens.
	raw, err := r.parser.Parse(ctx, src.FeedURL)
	if err != nil {
		return fail(StageFetch, err)
	}

	var (
		res   sourceResult
		txCtx = context.WithoutCancel(ctx)
	)
	err = r.store.InTx(txCtx, func(tx feedreader.EntryTx) error {
		res = sourceResult{}

		rows, err := tx.SourceEntries(txCtx, src.ID)
		if err != nil {
			return err
		}
		existing := lo.KeyBy(rows, func(e feedreader.FeedEntry) string { return e.EntryID })

		rec := Reconcile(src, raw, existing, r.now())
		res.skipped = rec.Skipped

		for _, op := range rec.Ops {
			inserted, err := apply(txCtx, tx, op)
			if err != nil {
				return err
			}
			if inserted {
				res.inserted++
			} else {
				res.updated++
			}
		}

		return nil
	})
	if err != nil {
		return fail(StageStore, err)
	}

	slog.DebugContext(ctx, "feed source ingested",
		"inserted", res.inserted,
		"updated", res.updated,
		"skipped", res.skipped,
	)

	return res
}

// apply writes one operation and reports whether it created a row. An Insert
// that loses a race for its (source, entry id) pair becomes an Update of the
// row that won.
func apply(ctx context.Context, tx feedreader.EntryTx, op feedreader.Operation) (bool, error) {
	switch op := op.(type) {
	case feedreader.Insert:
		_, err := tx.InsertEntry(ctx, op)
		if err == nil {
			return true, nil
		}
		if !errors.Is(err, feedreader.ErrConflict) {
			return false, fmt.Errorf("error inserting entry %q: %w", op.EntryID, err)
		}

		row, err := tx.FindEntry(ctx, op.FeedSourceID, op.EntryID)
		if err != nil {
			return false, fmt.Errorf("error finding conflicting entry %q: %w", op.EntryID, err)
		}
		if err := tx.UpdateEntry(ctx, feedreader.UpdateFor(row.ID, op)); err != nil {
			return false, fmt.Errorf("error updating conflicting entry %q: %w", op.EntryID, err)
		}
		return false, nil
	case feedreader.Update:
		if err := tx.UpdateEntry(ctx, op); err != nil {
			return false, fmt.Errorf("error updating entry %q: %w", op.EntryID, err)
		}
		return false, nil
	default:
		return false, fmt.Errorf("unknown operation %T", op)
	}
}
