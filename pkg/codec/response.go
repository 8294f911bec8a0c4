package codec

import (
	"io"
	"net/http"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/brindle-io/httpcore/pkg/buffer"
	"github.com/brindle-io/httpcore/pkg/constants"
	"github.com/brindle-io/httpcore/pkg/errors"
	"github.com/brindle-io/httpcore/pkg/header"
	"github.com/brindle-io/httpcore/pkg/socket"
	"github.com/brindle-io/httpcore/pkg/timing"
)

// Response is a fully materialized HTTP/1.1 response: status line, header
// set, and body (already content-decoded when read as a string).
type Response struct {
	HTTPVersion string
	StatusCode  int
	Reason      string
	Headers     *header.Set
	Body        *buffer.Buffer
	Raw         *buffer.Buffer
	Timings     timing.Metrics

	// chunks holds each transfer-chunk's raw payload in arrival order, set
	// only when the body was read as chunked transfer-coding. nil for a
	// fixed-length or until-close body.
	chunks [][]byte
}

// hasNoBody reports whether statusCode/method mandates an empty body per
// RFC 9110 §6.4.1, independent of whatever framing headers are present.
func hasNoBody(statusCode int, method string) bool {
	if strings.EqualFold(method, "HEAD") {
		return true
	}
	if statusCode >= 100 && statusCode < 200 {
		return true
	}
	return statusCode == 204 || statusCode == 304
}

// ParseResponse reads a status line, headers, and body from s for the given
// request, strict controlling whether an HTTP-version mismatch against
// req.Version is fatal (InvalidResponse) or merely a warning.
func ParseResponse(s *socket.Socket, req *Request, bodyMemLimit int64, strict bool, warnings *errors.Warnings) (*Response, error) {
	return ParseResponseTimed(s, req, bodyMemLimit, strict, warnings, nil)
}

// ParseResponseTimed is ParseResponse with an optional onStatusLine hook,
// invoked the moment the status line (first response byte) has been read —
// Transaction uses it to close out the TTFB timing window.
func ParseResponseTimed(s *socket.Socket, req *Request, bodyMemLimit int64, strict bool, warnings *errors.Warnings, onStatusLine func()) (*Response, error) {
	raw := buffer.New(constants.MaxRawBufferSize)

	var code int
	var version, reason string

	for attempt := 0; ; attempt++ {
		line, err := s.ReadLine()
		if onStatusLine != nil {
			onStatusLine()
			onStatusLine = nil
		}
		if err != nil {
			return nil, errors.NewProtocolError("reading status line", err)
		}
		if _, werr := raw.Write([]byte(line + "\r\n")); werr != nil {
			return nil, werr
		}

		version, code, reason, err = parseStatusLine(line)
		if err != nil {
			return nil, err
		}
		if reason == "" {
			warnings.Add("status line %q has no reason phrase", line)
		}

		hdrs, err := readHeaders(s, raw)
		if err != nil {
			return nil, err
		}

		if code/100 == 1 {
			if attempt >= constants.MaxAllowedInformativeResponses {
				return nil, errors.NewProtocolError("too many informational responses", nil)
			}
			warnings.Add("discarding informational response %d", code)
			continue
		}

		if version != req.Version {
			if strict {
				return nil, errors.NewProtocolError("HTTP version mismatch: request used "+req.Version+", response used "+version, nil)
			}
			warnings.Add("response HTTP version %s does not match request version %s", version, req.Version)
		}

		resp := &Response{
			HTTPVersion: version,
			StatusCode:  code,
			Reason:      reason,
			Headers:     hdrs,
			Body:        buffer.New(bodyMemLimit),
			Raw:         raw,
		}

		if err := readBody(s, resp, req.Method, warnings); err != nil {
			return resp, err
		}
		return resp, nil
	}
}

// Date parses the response's Date header per RFC 1123 (and the other
// formats http.ParseTime tolerates), returning ok=false if the header is
// absent or unparseable rather than matching against the literal string
// "Date".
func (r *Response) Date() (time.Time, bool) {
	raw := r.Headers.Get("Date")
	if raw == "" {
		return time.Time{}, false
	}
	t, err := http.ParseTime(raw)
	if err != nil {
		return time.Time{}, false
	}
	return t, true
}

// BodyString returns the response body as a string, content-encoding
// reversed. Equivalent to string(DecodedBytes(warnings)).
func (r *Response) BodyString(warnings *errors.Warnings) (string, error) {
	data, err := r.DecodedBytes(warnings)
	if err != nil {
		return "", err
	}
	return string(data), nil
}

// WriteBodyToFile streams the response body to path. A body that already
// spilled to disk is copied verbatim without buffering it back into
// memory — undecoded, with a warning if it was content-encoded, the same
// tradeoff DecodedBytes makes for a spilled body. A body still held in
// memory is decoded first.
func (r *Response) WriteBodyToFile(path string, warnings *errors.Warnings) error {
	out, err := os.Create(path)
	if err != nil {
		return errors.NewIOError("creating output file", err)
	}
	defer out.Close()

	if r.Body.IsSpilled() {
		encoding := r.Headers.Get("Content-Encoding")
		if coding, ok := ParseCoding(encoding); !ok || coding != Identity {
			warnings.Add("response body spilled to disk; writing %s-encoded bytes undecoded", encoding)
		}
		rdr, err := r.Body.Reader()
		if err != nil {
			return err
		}
		defer rdr.Close()
		if _, err := io.Copy(out, rdr); err != nil {
			return errors.NewIOError("writing body to file", err)
		}
		return nil
	}

	data, err := r.DecodedBytes(warnings)
	if err != nil {
		return err
	}
	if _, err := out.Write(data); err != nil {
		return errors.NewIOError("writing body to file", err)
	}
	return nil
}

// GetChunks returns the response body split along its original
// transfer-chunk boundaries, each chunk content-decoded independently
// rather than the concatenated body decoded as one stream. A response that
// wasn't chunk-transferred, or whose body spilled to disk, falls back to a
// single-element slice holding the whole decoded (or, if spilled,
// undecoded-with-warning) body.
func (r *Response) GetChunks(warnings *errors.Warnings) ([][]byte, error) {
	if r.Body.IsSpilled() || len(r.chunks) == 0 {
		data, err := r.DecodedBytes(warnings)
		if err != nil {
			return nil, err
		}
		return [][]byte{data}, nil
	}

	encoding := r.Headers.Get("Content-Encoding")
	coding, ok := ParseCoding(encoding)
	if !ok {
		warnings.Add("unsupported Content-Encoding %q, returning chunks verbatim", encoding)
		return r.chunks, nil
	}

	out := make([][]byte, len(r.chunks))
	for i, c := range r.chunks {
		d, err := Decompress(c, coding)
		if err != nil {
			return nil, err
		}
		out[i] = d
	}
	return out, nil
}

func parseStatusLine(line string) (version string, code int, reason string, err error) {
	parts := strings.SplitN(line, " ", 3)
	if len(parts) < 2 {
		return "", 0, "", errors.NewProtocolError("invalid status line: "+line, nil)
	}
	version = parts[0]
	code, err = strconv.Atoi(parts[1])
	if err != nil {
		return "", 0, "", errors.NewProtocolError("invalid status code: "+parts[1], err)
	}
	if len(parts) == 3 {
		reason = parts[2]
	}
	return version, code, reason, nil
}

// readHeaders reads header lines (with RFC 7230 §3.2.4 continuation-line
// folding) until the terminating empty line, mirroring each byte into raw.
func readHeaders(s *socket.Socket, raw *buffer.Buffer) (*header.Set, error) {
	hdrs := header.New()
	total := 0
	lastKey := ""

	for {
		line, err := s.ReadLine()
		if err != nil {
			return nil, errors.NewProtocolError("reading headers", err)
		}
		total += len(line) + 2
		if total > constants.MaxHeaderBytes {
			return nil, errors.NewProtocolError("headers exceed maximum size", nil)
		}
		if _, werr := raw.Write([]byte(line + "\r\n")); werr != nil {
			return nil, werr
		}

		if line == "" {
			break
		}

		if strings.HasPrefix(line, " ") || strings.HasPrefix(line, "\t") {
			if lastKey == "" {
				continue
			}
			vals := hdrs.Values(lastKey)
			if len(vals) == 0 {
				continue
			}
			vals[len(vals)-1] = vals[len(vals)-1] + " " + strings.TrimSpace(line)
			continue
		}

		parts := strings.SplitN(line, ":", 2)
		if len(parts) != 2 {
			continue
		}
		name := strings.TrimSpace(parts[0])
		value := strings.TrimSpace(parts[1])
		hdrs.Add(name, value)
		lastKey = name
	}

	return hdrs, nil
}
