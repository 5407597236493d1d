package api

import (
	"net/http"
	"strconv"

	frerrs "github.com/jdholdren/feedreader/internal/errors"
)

const (
	defaultLimit = 100
	maxLimit     = 100
)

// parsePaginationParams parses ?offset=20&limit=10. Values out of range are
// rejected rather than clamped.
func parsePaginationParams(r *http.Request) (offset, limit uint64, err error) {
	query := r.URL.Query()

	offset = 0
	if raw := query.Get("offset"); raw != "" {
		n, err := strconv.ParseInt(raw, 10, 64)
		if err != nil || n < 0 {
			return 0, 0, frerrs.Invalid("offset", "must be an integer greater than or equal to 0")
		}
		offset = uint64(n)
	}

	limit = defaultLimit
	if raw := query.Get("limit"); raw != "" {
		n, err := strconv.ParseInt(raw, 10, 64)
		if err != nil || n < 1 || n > maxLimit {
			return 0, 0, frerrs.Invalid("limit", "must be an integer between 1 and 100")
		}
		limit = uint64(n)
	}

	return offset, limit, nil
}
