package codec

import (
	"fmt"
	"strings"

	"github.com/brindle-io/httpcore/pkg/errors"
	"github.com/brindle-io/httpcore/pkg/header"
)

const defaultVersion = "HTTP/1.1"

// Request is the wire-level request this codec serializes: a request line
// plus a header Set plus an optional body. Target is either a request-target
// (path[?query]) or the literal "*" (OPTIONS *).
type Request struct {
	Version string
	Method  string
	Target  string
	Host    string // injected as the Host header when unset and Target != "*"
	Headers *header.Set
}

// NewRequest returns a Request defaulted to HTTP/1.1 with an empty header set.
func NewRequest(method, target, host string) *Request {
	return &Request{Version: defaultVersion, Method: method, Target: target, Host: host, Headers: header.New()}
}

// Prepare validates the request against its method's body requirements and
// injects the Host header, appending any non-fatal observations to warnings
// instead of failing on an unsupported method/version.
func (r *Request) Prepare(bodyLen int, warnings *errors.Warnings) error {
	if r.Version == "" {
		r.Version = defaultVersion
	}
	if r.Version != defaultVersion {
		warnings.Add("request uses unsupported HTTP version %s", r.Version)
	}

	m, known := LookupMethod(r.Method)
	if !known {
		warnings.Add("request uses unrecognized method %s", r.Method)
	}

	hasContentLength := r.Headers.Has("Content-Length")
	hasContentType := r.Headers.Has("Content-Type")

	if m.RequiresBody {
		if bodyLen == 0 && !hasContentLength {
			return errors.NewValidationError(fmt.Sprintf("method %s requires a body with Content-Length and Content-Type", r.Method))
		}
		if !hasContentLength || !hasContentType {
			return errors.NewValidationError(fmt.Sprintf("method %s requires both Content-Length and Content-Type", r.Method))
		}
	}
	if m.ForbidsBody {
		if hasContentLength || hasContentType || bodyLen > 0 {
			return errors.NewValidationError(fmt.Sprintf("method %s forbids a request body", r.Method))
		}
	}

	if r.Target != "*" && !r.Headers.Has("Host") && r.Host != "" {
		r.Headers.Set("Host", r.Host)
	}

	return nil
}

// RequestLine renders "METHOD SP target SP VERSION".
func (r *Request) RequestLine() string {
	return fmt.Sprintf("%s %s %s", strings.ToUpper(r.Method), r.Target, r.Version)
}
