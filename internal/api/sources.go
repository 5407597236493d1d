package api

import (
	"errors"
	"net/http"
	"strconv"

	"github.com/gorilla/mux"

	frerrs "github.com/jdholdren/feedreader/internal/errors"
	"github.com/jdholdren/feedreader/internal/feedreader"
	"github.com/jdholdren/feedreader/internal/serverutil"
)

type FeedSourceResp struct {
	ID      int64  `json:"id"`
	Name    string `json:"name"`
	FeedURL string `json:"feed_url"`
}

func toSourceResp(src feedreader.FeedSource) FeedSourceResp {
	return FeedSourceResp{
		ID:      src.ID,
		Name:    src.Name,
		FeedURL: src.FeedURL,
	}
}

type CreateFeedSourceReq struct {
	Name    string `json:"name"`
	FeedURL string `json:"feed_url"`
}

func (r CreateFeedSourceReq) Validate() error {
	return fieldErrors(
		feedreader.ValidateName(r.Name),
		feedreader.ValidateFeedURL(r.FeedURL),
	)
}

func (s *Server) postFeedSource(w http.ResponseWriter, r *http.Request) error {
	ctx := r.Context()

	req, err := serverutil.DecodeValid[CreateFeedSourceReq](r.Body)
	if err != nil {
		return err
	}

	src, err := s.sources.InsertSource(ctx, req.Name, req.FeedURL)
	if err != nil {
		return storeErr(err)
	}

	return serverutil.WriteJSON(w, http.StatusCreated, toSourceResp(src))
}

func (s *Server) getFeedSources(w http.ResponseWriter, r *http.Request) error {
	ctx := r.Context()

	offset, limit, err := parsePaginationParams(r)
	if err != nil {
		return err
	}

	srcs, err := s.sources.Sources(ctx, offset, limit)
	if err != nil {
		return err
	}

	resp := make([]FeedSourceResp, 0, len(srcs))
	for _, src := range srcs {
		resp = append(resp, toSourceResp(src))
	}

	return serverutil.WriteJSON(w, http.StatusOK, resp)
}

func (s *Server) getFeedSource(w http.ResponseWriter, r *http.Request) error {
	ctx := r.Context()

	id, err := pathID(r)
	if err != nil {
		return err
	}

	src, err := s.sources.Source(ctx, id)
	if err != nil {
		return storeErr(err)
	}

	return serverutil.WriteJSON(w, http.StatusOK, toSourceResp(src))
}

// UpdateFeedSourceReq holds a partial update; absent fields are left alone.
type UpdateFeedSourceReq struct {
	Name    *string `json:"name"`
	FeedURL *string `json:"feed_url"`
}

func (r UpdateFeedSourceReq) Validate() error {
	var errs []error
	if r.Name != nil {
		errs = append(errs, feedreader.ValidateName(*r.Name))
	}
	if r.FeedURL != nil {
		errs = append(errs, feedreader.ValidateFeedURL(*r.FeedURL))
	}

	return fieldErrors(errs...)
}

func (s *Server) patchFeedSource(w http.ResponseWriter, r *http.Request) error {
	ctx := r.Context()

	id, err := pathID(r)
	if err != nil {
		return err
	}

	req, err := serverutil.DecodeValid[UpdateFeedSourceReq](r.Body)
	if err != nil {
		return err
	}

	src, err := s.sources.UpdateSource(ctx, id, feedreader.UpdateSourceArgs{
		Name:    req.Name,
		FeedURL: req.FeedURL,
	})
	if err != nil {
		return storeErr(err)
	}

	return serverutil.WriteJSON(w, http.StatusOK, toSourceResp(src))
}

func (s *Server) deleteFeedSource(w http.ResponseWriter, r *http.Request) error {
	ctx := r.Context()

	id, err := pathID(r)
	if err != nil {
		return err
	}

	if err := s.sources.DeleteSource(ctx, id); err != nil {
		return storeErr(err)
	}

	w.WriteHeader(http.StatusNoContent)
	return nil
}

// pathID reads the {id} route variable. The route pattern only admits
// digits, so the only failure left is overflow.
func pathID(r *http.Request) (int64, error) {
	id, err := strconv.ParseInt(mux.Vars(r)["id"], 10, 64)
	if err != nil {
		return 0, frerrs.Invalid("id", "must be an integer")
	}

	return id, nil
}

// fieldErrors collects validation failures into a single 422 with one
// detail per field. It returns nil if every error is nil.
func fieldErrors(errs ...error) error {
	var details []frerrs.Detail
	for _, err := range errs {
		if err == nil {
			continue
		}

		fErr := &feedreader.FieldError{}
		if errors.As(err, &fErr) {
			details = append(details, frerrs.Detail{Field: fErr.Field, Error: fErr.Err.Error()})
			continue
		}
		details = append(details, frerrs.Detail{Error: err.Error()})
	}
	if len(details) == 0 {
		return nil
	}

	return frerrs.E(http.StatusUnprocessableEntity, "validation failed", details)
}

// storeErr maps the store's sentinel errors onto client errors. Anything
// else is returned untouched and ends up as a 500.
func storeErr(err error) error {
	cErr := &feedreader.ConflictError{}
	switch {
	case errors.As(err, &cErr):
		return frerrs.E(http.StatusConflict, "feed source already exists",
			frerrs.Detail{Field: cErr.Field, Error: "already exists"},
		)
	case errors.Is(err, feedreader.ErrNotFound):
		return frerrs.E(http.StatusNotFound, "feed source not found")
	}

	return err
}
