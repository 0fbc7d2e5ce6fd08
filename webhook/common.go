package webhook

import (
	"errors"
	"fmt"
	"io"
	"mime"
	"net/http"
	"net/url"
	"strings"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"

	"zcommit/pkg/zcommit"
)

// multipartMemory bounds the in-memory part of a multipart form.
const multipartMemory = 1 << 20

func requestID(r *http.Request) string {
	if id := middleware.GetReqID(r.Context()); id != "" {
		return id
	}
	return r.Header.Get(middleware.RequestIDHeader)
}

// pathSegments returns the decoded segments of the escaped path after prefix.
// One leading and one trailing slash are ignored; empty interior segments are kept.
func pathSegments(r *http.Request, prefix string) []string {
	escaped := r.URL.EscapedPath()
	rest := strings.TrimPrefix(escaped, prefix)
	if rest == escaped && prefix != "" {
		rest = "/" + escapeWildcard(r)
	}
	return splitSegments(rest)
}

func escapeWildcard(r *http.Request) string {
	if rctx := chi.RouteContext(r.Context()); rctx != nil {
		return rctx.URLParam("*")
	}
	return ""
}

func splitSegments(rest string) []string {
	rest = strings.TrimPrefix(rest, "/")
	rest = strings.TrimSuffix(rest, "/")
	if rest == "" {
		return nil
	}
	parts := strings.Split(rest, "/")
	for i, part := range parts {
		if decoded, err := url.PathUnescape(part); err == nil {
			parts[i] = decoded
		}
	}
	return parts
}

// readPayload returns the push document: the raw body of a JSON request, or
// the payload field of a form.
func readPayload(r *http.Request) ([]byte, error) {
	mediaType, _, _ := mime.ParseMediaType(r.Header.Get("Content-Type"))
	switch mediaType {
	case "application/json":
		body, err := io.ReadAll(r.Body)
		if err != nil {
			return nil, err
		}
		return body, nil
	case "multipart/form-data":
		if err := r.ParseMultipartForm(multipartMemory); err != nil {
			return nil, formError(err)
		}
	default:
		if err := r.ParseForm(); err != nil {
			return nil, formError(err)
		}
	}
	values, ok := r.Form["payload"]
	if !ok || len(values) == 0 {
		return nil, fmt.Errorf("%w: missing payload field", zcommit.ErrInvalidPayload)
	}
	return []byte(values[0]), nil
}

func formError(err error) error {
	var maxErr *http.MaxBytesError
	if errors.As(err, &maxErr) {
		return err
	}
	return fmt.Errorf("%w: %w", zcommit.ErrInvalidPayload, err)
}

// errorReply maps a request-level error to its status and plain-text reply.
func errorReply(err error) (int, string, string) {
	var maxErr *http.MaxBytesError
	var fieldErr *zcommit.FieldError
	switch {
	case errors.As(err, &maxErr):
		return http.StatusRequestEntityTooLarge, "request body too large", "too_large"
	case errors.Is(err, zcommit.ErrMalformedRequest):
		return http.StatusBadRequest, "Invalid submission URL", "malformed_request"
	case errors.As(err, &fieldErr):
		return http.StatusBadRequest, fmt.Sprintf("Must specify a zephyr %s name", fieldErr.Field), "missing_field"
	case errors.Is(err, zcommit.ErrInvalidPayload):
		return http.StatusBadRequest, err.Error(), "invalid_payload"
	default:
		return http.StatusInternalServerError, "internal error", "internal"
	}
}

func writeText(w http.ResponseWriter, status int, body string) {
	w.Header().Set("Content-Type", "text/plain; charset=utf-8")
	w.WriteHeader(status)
	_, _ = io.WriteString(w, body)
}
