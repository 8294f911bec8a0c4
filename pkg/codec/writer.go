package codec

import (
	"fmt"

	"github.com/brindle-io/httpcore/pkg/errors"
	"github.com/brindle-io/httpcore/pkg/header"
	"github.com/brindle-io/httpcore/pkg/socket"
)

// WriteRequest validates req, injects the Host header, writes the request
// line and headers, and (if body is non-empty) the body itself, flushing
// once at the end. Each header is checked against policy before it reaches
// the wire: a rejection aborts the write with an InvalidHeader error, and a
// classification policy tolerates (obsolete/nonstandard/unknown) is still
// surfaced as a warning rather than passing silently. warnings accumulates
// these plus non-fatal observations from req.Prepare; the library never
// logs them itself.
func WriteRequest(s *socket.Socket, req *Request, body []byte, policy header.Policy, warnings *errors.Warnings) error {
	if err := req.Prepare(len(body), warnings); err != nil {
		return err
	}

	if err := s.Print(req.RequestLine() + "\r\n"); err != nil {
		return err
	}

	for _, name := range req.Headers.Names() {
		for _, v := range req.Headers.Values(name) {
			if err := policy.Validate(name, v); err != nil {
				return err
			}
			if c := header.Classify(name); c != header.Permanent {
				warnings.Add("writing %s header %q", c, name)
			}
			if err := s.Print(fmt.Sprintf("%s: %s\r\n", name, v)); err != nil {
				return err
			}
		}
	}
	if err := s.Print("\r\n"); err != nil {
		return err
	}

	if len(body) > 0 {
		if _, err := s.Write(body); err != nil {
			return err
		}
	}

	return s.Flush()
}

// WriteChunk frames one chunked-transfer-coding chunk: hex length CRLF,
// payload, CRLF. An empty payload signals end-of-body and must only be sent
// by EndChunks.
func WriteChunk(s *socket.Socket, payload []byte) error {
	if err := s.Print(fmt.Sprintf("%x\r\n", len(payload))); err != nil {
		return err
	}
	if len(payload) > 0 {
		if _, err := s.Write(payload); err != nil {
			return err
		}
	}
	if err := s.Print("\r\n"); err != nil {
		return err
	}
	return s.Flush()
}

// EndChunks writes the terminating zero-length chunk followed by the empty
// trailer section (trailers are out of scope).
func EndChunks(s *socket.Socket) error {
	if err := s.Print("0\r\n\r\n"); err != nil {
		return err
	}
	return s.Flush()
}
