package codec

import (
	"bytes"
	"compress/flate"
	"compress/gzip"
	"io"
	"strings"

	"github.com/brindle-io/httpcore/pkg/errors"
)

// Coding identifies a supported Content-Encoding token.
type Coding string

const (
	Identity Coding = "identity"
	Gzip     Coding = "gzip"
	Deflate  Coding = "deflate"
)

// ParseCoding maps a Content-Encoding token to a Coding, reporting ok=false
// for anything outside {gzip, deflate, identity} (Brotli/LZMA/etc. are an
// explicit non-goal and pass through undecoded with a caller-visible
// warning).
func ParseCoding(token string) (Coding, bool) {
	switch strings.ToLower(strings.TrimSpace(token)) {
	case "", "identity":
		return Identity, true
	case "gzip":
		return Gzip, true
	case "deflate":
		return Deflate, true
	default:
		return "", false
	}
}

// Compress encodes b per coding.
func Compress(b []byte, coding Coding) ([]byte, error) {
	switch coding {
	case Identity, "":
		return b, nil
	case Gzip:
		var buf bytes.Buffer
		w := gzip.NewWriter(&buf)
		if _, err := w.Write(b); err != nil {
			return nil, errors.NewIOError("gzip compress", err)
		}
		if err := w.Close(); err != nil {
			return nil, errors.NewIOError("gzip compress", err)
		}
		return buf.Bytes(), nil
	case Deflate:
		var buf bytes.Buffer
		w, err := flate.NewWriter(&buf, flate.DefaultCompression)
		if err != nil {
			return nil, errors.NewIOError("deflate compress", err)
		}
		if _, err := w.Write(b); err != nil {
			return nil, errors.NewIOError("deflate compress", err)
		}
		if err := w.Close(); err != nil {
			return nil, errors.NewIOError("deflate compress", err)
		}
		return buf.Bytes(), nil
	default:
		return b, nil
	}
}

// Decompress decodes b per coding.
func Decompress(b []byte, coding Coding) ([]byte, error) {
	switch coding {
	case Identity, "":
		return b, nil
	case Gzip:
		r, err := gzip.NewReader(bytes.NewReader(b))
		if err != nil {
			return nil, errors.NewProtocolError("gzip decompress", err)
		}
		defer r.Close()
		out, err := io.ReadAll(r)
		if err != nil {
			return nil, errors.NewProtocolError("gzip decompress", err)
		}
		return out, nil
	case Deflate:
		r := flate.NewReader(bytes.NewReader(b))
		defer r.Close()
		out, err := io.ReadAll(r)
		if err != nil {
			return nil, errors.NewProtocolError("deflate decompress", err)
		}
		return out, nil
	default:
		return b, nil
	}
}
