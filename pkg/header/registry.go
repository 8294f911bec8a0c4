package header

// permanentHeaders lists IANA-registered "permanent" message header fields
// relevant to an HTTP/1.1 user agent (RFC 7231/7232/7233/7234/7235 and
// companions). Keys are canonical MIME header case.
var permanentHeaders = map[string]struct{}{
	"Accept":              {},
	"Accept-Charset":      {},
	"Accept-Encoding":     {},
	"Accept-Language":     {},
	"Accept-Ranges":       {},
	"Age":                 {},
	"Allow":               {},
	"Authorization":       {},
	"Cache-Control":       {},
	"Connection":          {},
	"Content-Disposition": {},
	"Content-Encoding":    {},
	"Content-Language":    {},
	"Content-Length":      {},
	"Content-Location":    {},
	"Content-Range":       {},
	"Content-Type":        {},
	"Cookie":              {},
	"Date":                {},
	"Etag":                {},
	"Expect":              {},
	"Expires":             {},
	"From":                {},
	"Host":                {},
	"If-Match":            {},
	"If-Modified-Since":   {},
	"If-None-Match":       {},
	"If-Range":            {},
	"If-Unmodified-Since": {},
	"Last-Modified":       {},
	"Location":            {},
	"Max-Forwards":        {},
	"Proxy-Authenticate":  {},
	"Proxy-Authorization": {},
	"Range":               {},
	"Referer":             {},
	"Retry-After":         {},
	"Server":              {},
	"Set-Cookie":          {},
	"Te":                  {},
	"Trailer":             {},
	"Transfer-Encoding":   {},
	"Upgrade":             {},
	"User-Agent":          {},
	"Vary":                {},
	"Via":                 {},
	"Warning":             {},
	"Www-Authenticate":    {},
}

// obsoleteHeaders lists fields that are registered but deprecated or
// superseded (RFC 7230 Appendix A / RFC 9111).
var obsoleteHeaders = map[string]struct{}{
	"Pragma":     {},
	"Keep-Alive": {},
}
