package feedreader

import (
	"errors"
	"net/url"
	"strings"
)

var (
	errEmptyName  = errors.New("must not be empty")
	errInvalidURL = errors.New("must be an absolute http(s) URL")
)

// FieldError reports which attribute of a feed source failed validation.
type FieldError struct {
	Field string
	Err   error
}

func (e *FieldError) Error() string {
	return e.Field + ": " + e.Err.Error()
}

func (e *FieldError) Unwrap() error {
	return e.Err
}

// ValidateName checks a feed source name.
func ValidateName(name string) error {
	if strings.TrimSpace(name) == "" {
		return &FieldError{Field: "name", Err: errEmptyName}
	}

	return nil
}

// ValidateFeedURL checks that a feed URL is absolute and fetchable over HTTP.
func ValidateFeedURL(raw string) error {
	u, err := url.Parse(raw)
	if err != nil || !u.IsAbs() || u.Host == "" {
		return &FieldError{Field: "feed_url", Err: errInvalidURL}
	}
	if u.Scheme != "http" && u.Scheme != "https" {
		return &FieldError{Field: "feed_url", Err: errInvalidURL}
	}

	return nil
}
