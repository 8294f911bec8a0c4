package codec

import (
	"io"
	"strconv"
	"strings"

	"github.com/brindle-io/httpcore/pkg/errors"
	"github.com/brindle-io/httpcore/pkg/socket"
)

// readBody applies the body-read policy: chunked (if present)
// overrides Content-Length; otherwise Content-Length bytes are read
// verbatim; otherwise the body runs until the connection closes. Status
// codes and methods with a mandated empty body (1xx, 204, 304, HEAD) skip
// reading entirely unless the peer violated the framing and actually sent
// bytes (tolerated, not silently dropped, consistent with this being a raw
// wire-level client rather than a strict validator).
func readBody(s *socket.Socket, resp *Response, method string, warnings *errors.Warnings) error {
	transferEncoding := resp.Headers.Get("Transfer-Encoding")
	contentLength := resp.Headers.Get("Content-Length")

	if hasNoBody(resp.StatusCode, method) && !s.InputReady() {
		return nil
	}

	switch {
	case strings.Contains(strings.ToLower(transferEncoding), "chunked"):
		return readChunkedBody(s, resp, warnings)
	case contentLength != "":
		length, err := strconv.ParseInt(strings.TrimSpace(contentLength), 10, 64)
		if err != nil {
			return errors.NewProtocolError("invalid Content-Length: "+contentLength, err)
		}
		if length < 0 {
			return errors.NewProtocolError("negative Content-Length", nil)
		}
		return readFixedBody(s, resp, length)
	default:
		return readUntilClose(s, resp)
	}
}

func readFixedBody(s *socket.Socket, resp *Response, length int64) error {
	if length == 0 {
		return nil
	}
	const chunkSize = 32 * 1024
	remaining := length
	buf := make([]byte, chunkSize)
	for remaining > 0 {
		want := int64(len(buf))
		if remaining < want {
			want = remaining
		}
		n, err := s.Read(buf[:want])
		if n > 0 {
			if _, werr := resp.Body.Write(buf[:n]); werr != nil {
				return werr
			}
			if _, werr := resp.Raw.Write(buf[:n]); werr != nil {
				return werr
			}
			remaining -= int64(n)
		}
		if err != nil {
			// A peer that closes early having sent fewer bytes than
			// Content-Length promised is a framing violation we tolerate:
			// return what arrived rather than failing the whole response.
			return nil
		}
	}
	return nil
}

func readUntilClose(s *socket.Socket, resp *Response) error {
	buf := make([]byte, 32*1024)
	for {
		n, err := s.Read(buf)
		if n > 0 {
			if _, werr := resp.Body.Write(buf[:n]); werr != nil {
				return werr
			}
			if _, werr := resp.Raw.Write(buf[:n]); werr != nil {
				return werr
			}
		}
		if err != nil {
			return nil
		}
	}
}

// readChunkedBody reads the chunked transfer-coding framing: hex length
// CRLF, payload, CRLF, repeating until a zero-length chunk terminates the
// body. Any deviation from CRLF framing is a fatal parse error.
func readChunkedBody(s *socket.Socket, resp *Response, warnings *errors.Warnings) error {
	s.SetReadingChunks(true)
	defer s.SetReadingChunks(false)

	for {
		line, err := s.ReadLine()
		if err != nil {
			return errors.NewProtocolError("reading chunk size", err)
		}
		if _, werr := resp.Raw.Write([]byte(line + "\r\n")); werr != nil {
			return werr
		}

		sizeToken := strings.SplitN(line, ";", 2)[0]
		size, err := strconv.ParseInt(strings.TrimSpace(sizeToken), 16, 64)
		if err != nil {
			return errors.NewProtocolError("invalid chunk size: "+line, err)
		}

		if size == 0 {
			break
		}

		data, err := s.ReadN(size)
		if err != nil {
			return errors.NewIOError("reading chunk body", err)
		}
		resp.chunks = append(resp.chunks, data)
		if _, werr := resp.Body.Write(data); werr != nil {
			return werr
		}
		if _, werr := resp.Raw.Write(data); werr != nil {
			return werr
		}

		crlf, err := s.ReadN(2)
		if err != nil || string(crlf) != "\r\n" {
			return errors.NewProtocolError("malformed chunk terminator", err)
		}
		if _, werr := resp.Raw.Write(crlf); werr != nil {
			return werr
		}
	}

	// Trailers are consumed as additional header lines and appended to the
	// header set rather than kept in a separate trailer map.
	for {
		line, err := s.ReadLine()
		if err != nil {
			return errors.NewProtocolError("reading chunk trailer", err)
		}
		if _, werr := resp.Raw.Write([]byte(line + "\r\n")); werr != nil {
			return werr
		}
		if line == "" {
			break
		}
		parts := strings.SplitN(line, ":", 2)
		if len(parts) == 2 {
			resp.Headers.Add(strings.TrimSpace(parts[0]), strings.TrimSpace(parts[1]))
		} else {
			warnings.Add("ignoring malformed trailer line %q", line)
		}
	}

	return nil
}

// DecodedBytes returns the response body with Content-Encoding reversed. A
// body that spilled to disk is read back from its file and returned
// undecoded, with a warning when it carries a content-coding.
func (r *Response) DecodedBytes(warnings *errors.Warnings) ([]byte, error) {
	raw := r.Body.Bytes()
	if r.Body.IsSpilled() {
		rdr, err := r.Body.Reader()
		if err != nil {
			return nil, err
		}
		defer rdr.Close()
		if raw, err = io.ReadAll(rdr); err != nil {
			return nil, errors.NewIOError("reading spilled body", err)
		}
	}
	encoding := r.Headers.Get("Content-Encoding")
	coding, ok := ParseCoding(encoding)
	if !ok {
		warnings.Add("unsupported Content-Encoding %q, returning body verbatim", encoding)
		return raw, nil
	}
	if r.Body.IsSpilled() {
		if coding != Identity {
			warnings.Add("response body spilled to disk; returning %s-encoded bytes undecoded", encoding)
		}
		return raw, nil
	}
	return Decompress(raw, coding)
}
