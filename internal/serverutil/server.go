// Package serverutil holds the HTTP plumbing shared by the API handlers.
package serverutil

import (
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"time"

	"github.com/google/uuid"
	"github.com/gorilla/handlers"
	"github.com/gorilla/mux"

	frerrs "github.com/jdholdren/feedreader/internal/errors"
	"github.com/jdholdren/feedreader/internal/logger"
)

func WriteJSON(w http.ResponseWriter, status int, data any) error {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)

	if err := json.NewEncoder(w).Encode(data); err != nil {
		return fmt.Errorf("error encoding json response: %s", err)
	}

	return nil
}

// Validator is a surface that can validate itself and return an error
// if something is wrong.
type Validator interface {
	Validate() error
}

// DecodeValid decodes a request and then validates it. A body that isn't
// JSON is reported to the client as a 422.
func DecodeValid[V Validator](r io.Reader) (V, error) {
	var v V
	if err := json.NewDecoder(r).Decode(&v); err != nil {
		return v, frerrs.E(http.StatusUnprocessableEntity, "invalid request body",
			frerrs.Detail{Field: "body", Error: err.Error()},
		)
	}
	if err := v.Validate(); err != nil {
		return v, fmt.Errorf("error validating request: %w", err)
	}

	return v, nil
}

// AccessLogMiddleware tags the request context with a request id and logs
// each request on the way in and out.
func AccessLogMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		ctx := logger.Ctx(r.Context(), slog.String("request_id", uuid.NewString()))
		r = r.WithContext(ctx)

		slog.DebugContext(ctx, "request received", "method", r.Method, "path", r.URL.Path)
		start := time.Now()

		writer := &respCodeWriter{ResponseWriter: w, code: http.StatusOK}
		next.ServeHTTP(writer, r)

		slog.InfoContext(ctx, "request completed",
			"method", r.Method,
			"url", r.URL.String(),
			"duration", time.Since(start),
			"status_code", writer.code,
		)
	})
}

// To trap the response status code for logging later.
type respCodeWriter struct {
	http.ResponseWriter
	code int
}

func (w *respCodeWriter) WriteHeader(code int) {
	w.code = code
	w.ResponseWriter.WriteHeader(code)
}

// HandlerFuncE is a modified type of [http.HandlerFunc] that returns an error.
type HandlerFuncE func(w http.ResponseWriter, r *http.Request) error

func (f HandlerFuncE) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	err := f(w, r)
	if err == nil {
		return
	}

	// Either it's already a structured error, or coerce it to one
	sErr := &frerrs.Error{}
	if !errors.As(err, &sErr) {
		slog.ErrorContext(r.Context(), "unhandled error",
			"method", r.Method,
			"url", r.URL.String(),
			"err", err,
		)
		sErr = frerrs.E(http.StatusInternalServerError, "internal server error")
	}

	if err := WriteJSON(w, sErr.Status, sErr); err != nil {
		slog.ErrorContext(r.Context(), "error writing response", "error", err)
	}
}

// ErrRouter is a newtype around a mux router that allows attaching handlers that return errors.
type ErrRouter struct {
	*mux.Router
}

// NewErrRouter returns a router whose unmatched routes answer with JSON errors.
func NewErrRouter() ErrRouter {
	r := mux.NewRouter()
	r.NotFoundHandler = HandlerFuncE(func(w http.ResponseWriter, r *http.Request) error {
		return frerrs.E(http.StatusNotFound, "not found")
	})
	r.MethodNotAllowedHandler = HandlerFuncE(func(w http.ResponseWriter, r *http.Request) error {
		return frerrs.E(http.StatusMethodNotAllowed, "method not allowed")
	})

	return ErrRouter{Router: r}
}

func (r ErrRouter) HandleFuncE(path string, f HandlerFuncE) *mux.Route {
	return r.Handle(path, f)
}

// Recover wraps h so a panic is logged and answered with a 500 instead of
// tearing down the connection.
func Recover(h http.Handler) http.Handler {
	return handlers.RecoveryHandler(
		handlers.RecoveryLogger(slogRecoveryLogger{}),
		handlers.PrintRecoveryStack(true),
	)(h)
}

// slogRecoveryLogger adapts slog to the logger interface gorilla/handlers expects.
type slogRecoveryLogger struct{}

func (slogRecoveryLogger) Println(args ...any) {
	slog.Error("recovered from panic", "panic", fmt.Sprint(args...))
}
