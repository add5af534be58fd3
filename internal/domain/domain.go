// Package domain holds what every portal entity package shares: the backend
// surface the resource clients call, client-side validation errors, and the
// mapping from service errors to HTTP responses.
package domain

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"

	"github.com/labstack/echo/v4"

	"github.com/carehub/pharmacy-portal/internal/listing"
	"github.com/carehub/pharmacy-portal/internal/platform/apiclient"
	"github.com/carehub/pharmacy-portal/internal/platform/record"
	"github.com/carehub/pharmacy-portal/pkg/pagination"
)

// Backend is the marketplace API as seen by the resource clients.
// *apiclient.Client satisfies it.
type Backend interface {
	Get(ctx context.Context, path string, params url.Values) (*apiclient.Envelope, error)
	Post(ctx context.Context, path string, body any) (*apiclient.Envelope, error)
	Put(ctx context.Context, path string, body any) (*apiclient.Envelope, error)
	Patch(ctx context.Context, path string, body any) (*apiclient.Envelope, error)
	Delete(ctx context.Context, path string) (*apiclient.Envelope, error)
	Upload(ctx context.Context, path, field, filename string, r io.Reader, extra map[string]string) (*apiclient.Envelope, error)
}

// ValidationError reports input rejected before any request is made.
type ValidationError struct {
	Field   string
	Message string
}

func (e *ValidationError) Error() string {
	if e.Field == "" {
		return e.Message
	}
	return e.Field + " " + e.Message
}

// Invalid returns a *ValidationError.
func Invalid(field, message string) error {
	return &ValidationError{Field: field, Message: message}
}

// IsValidation reports whether err is or wraps a *ValidationError.
func IsValidation(err error) bool {
	var v *ValidationError
	return errors.As(err, &v)
}

// RequireID rejects a blank identifier.
func RequireID(id string) error {
	if strings.TrimSpace(id) == "" {
		return Invalid("id", "is required")
	}
	return nil
}

// Path joins a base path and escaped segments.
func Path(base string, segments ...string) string {
	var b strings.Builder
	b.WriteString(base)
	for _, s := range segments {
		b.WriteByte('/')
		b.WriteString(url.PathEscape(s))
	}
	return b.String()
}

// ID reads a backend identifier.
func ID(r record.Record) string {
	return r.String("_id", "id")
}

// ShortRef renders a short human reference for an identifier, such as "#A1B2C3".
func ShortRef(id string) string {
	id = strings.TrimSpace(id)
	if len(id) > 6 {
		id = id[len(id)-6:]
	}
	if id == "" {
		return ""
	}
	return "#" + strings.ToUpper(id)
}

// DecodeOne returns the record an envelope carries. Single-entity responses
// arrive either bare or wrapped under one of keys.
func DecodeOne(env *apiclient.Envelope, keys ...string) record.Record {
	if env == nil || !env.HasData() {
		return record.Record{}
	}
	rec := record.Parse(env.Data)
	for _, k := range keys {
		if inner := rec.Object(k); len(inner) > 0 {
			return inner
		}
	}
	return rec
}

// StatusFor maps a service error to an HTTP status: validation failures are
// 400, backend failures keep their status, anything else is 502.
func StatusFor(err error) int {
	if err == nil {
		return http.StatusOK
	}
	if IsValidation(err) {
		return http.StatusBadRequest
	}
	if errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) {
		return http.StatusGatewayTimeout
	}
	if code := apiclient.StatusCode(err); code >= 400 {
		return code
	}
	return http.StatusBadGateway
}

// HTTPError converts a service error to an *echo.HTTPError carrying a
// user-facing message.
func HTTPError(err error) error {
	if err == nil {
		return nil
	}
	msg := apiclient.Message(err)
	var v *ValidationError
	if errors.As(err, &v) {
		msg = v.Error()
	}
	return echo.NewHTTPError(StatusFor(err), msg).SetInternal(err)
}

// ServeList runs one list load for the request and writes the resulting view
// state. page, search and status come from the query string. A failed load
// still writes the (empty) state, with the error message, under the mapped
// status.
func ServeList[T any](c echo.Context, fetch listing.Fetcher[T], opts ...listing.Option) error {
	p := pagination.FromContext(c)
	base := []listing.Option{
		listing.WithPage(p.Page),
		listing.WithSearch(c.QueryParam("search")),
		listing.WithStatus(c.QueryParam("status")),
	}
	ctrl := listing.NewController(fetch, append(base, opts...)...)
	if err := ctrl.Load(c.Request().Context()); err != nil {
		return c.JSON(StatusFor(err), ctrl.State())
	}
	return c.JSON(http.StatusOK, ctrl.State())
}

// BindJSON decodes the request body into v, answering 400 on malformed JSON.
func BindJSON(c echo.Context, v any) error {
	dec := json.NewDecoder(c.Request().Body)
	if err := dec.Decode(v); err != nil && !errors.Is(err, io.EOF) {
		return echo.NewHTTPError(http.StatusBadRequest, fmt.Sprintf("invalid request body: %v", err))
	}
	return nil
}
