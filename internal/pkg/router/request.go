package router

import (
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"strings"

	"github.com/julienschmidt/httprouter"
	"github.com/shandysiswandi/otplogin/internal/pkg/goerror"
)

const maxBodyBytes = 64 * 1024 // 64KB

// Request wraps http.Request with helpers for inbound handlers.
type Request struct {
	// Request is the underlying http.Request.
	*http.Request
}

// GetParam reads a path parameter from the request context (as stored by httprouter).
func (r *Request) GetParam(key string) string {
	return strings.TrimSpace(httprouter.ParamsFromContext(r.Context()).ByName(key))
}

func (r *Request) GetQuery(key string) string {
	return strings.TrimSpace(r.URL.Query().Get(key))
}

// GetHeader returns a trimmed header value with CR/LF rejected.
func (r *Request) GetHeader(key string) string {
	v := r.Header.Get(key)
	if strings.ContainsAny(v, "\r\n") {
		return ""
	}
	return strings.TrimSpace(v)
}

// DecodeBody decodes the JSON body into dst. Unknown fields, trailing data
// and bodies larger than 64KB are rejected as invalid format.
func (r *Request) DecodeBody(dst any) error {
	if r == nil || r.Body == nil || r.Body == http.NoBody {
		return goerror.NewInvalidFormat()
	}

	dec := json.NewDecoder(io.LimitReader(r.Body, maxBodyBytes))
	dec.DisallowUnknownFields()

	if err := dec.Decode(dst); err != nil {
		return goerror.NewInvalidFormat()
	}

	if err := dec.Decode(&struct{}{}); !errors.Is(err, io.EOF) {
		return goerror.NewInvalidFormat()
	}

	return nil
}
