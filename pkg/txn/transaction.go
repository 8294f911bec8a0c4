// Package txn drives one logical HTTP exchange (Transaction, C8) on top of
// a connection pool and codec, including redirects, 304 revalidation,
// Connection lifecycle and cache integration, plus the streaming
// ChunkSender (C9) for chunked request bodies.
package txn

import (
	"context"
	"fmt"
	"net/url"
	"os"
	"strings"
	"sync"
	"time"

	"github.com/brindle-io/httpcore/pkg/buffer"
	"github.com/brindle-io/httpcore/pkg/cache"
	"github.com/brindle-io/httpcore/pkg/codec"
	"github.com/brindle-io/httpcore/pkg/endpoint"
	"github.com/brindle-io/httpcore/pkg/errors"
	"github.com/brindle-io/httpcore/pkg/header"
	"github.com/brindle-io/httpcore/pkg/pool"
	"github.com/brindle-io/httpcore/pkg/socket"
	"github.com/brindle-io/httpcore/pkg/timing"
)

const (
	defaultMaxRedirects = 5
	defaultMaxRepeats   = 3
)

// Transaction drives a single-use HTTP exchange. A second terminal call
// (makeRequest/makeRequestLater/sendChunks) on the same Transaction fails
// with an IllegalState error.
type Transaction struct {
	mu sync.Mutex

	pool     *pool.Pool
	resolver endpoint.Resolver
	cache    cache.Cache
	policy   cache.Policy

	headers      *header.Set
	headerPolicy header.Policy
	httpVersion  string

	bodyString      *string
	bodyFile        *string
	contentEncoding codec.Coding

	maxRedirects        int
	maxRepeats          int
	throwIfMaxRepeats   bool
	repeatOnNotModified bool
	strictVersion       bool

	connTimeout  time.Duration
	readTimeout  time.Duration
	bodyMemLimit int64

	used              bool
	closed            bool
	disconnectOnClose bool
	currentRedirects  int
	currentRepeats    int

	sock  *socket.Socket
	timer *timing.Timer

	Warnings errors.Warnings
}

// New returns a Transaction bound to p, with the library's defaults applied.
func New(p *pool.Pool, resolver endpoint.Resolver) *Transaction {
	return &Transaction{
		pool:         p,
		resolver:     resolver,
		headers:      header.New(),
		httpVersion:  "HTTP/1.1",
		maxRedirects: defaultMaxRedirects,
		maxRepeats:   defaultMaxRepeats,
		connTimeout:  10 * time.Second,
		readTimeout:  30 * time.Second,
		bodyMemLimit: 4 * 1024 * 1024,
		timer:        timing.NewTimer(),
	}
}

// SetHeaders replaces the request header template.
func (t *Transaction) SetHeaders(h *header.Set) *Transaction { t.headers = h; return t }

// SetHeaderPolicy installs the validation policy applied when headers are
// written to the wire.
func (t *Transaction) SetHeaderPolicy(p header.Policy) *Transaction { t.headerPolicy = p; return t }

// SetHTTPVersion overrides the request line's version token.
func (t *Transaction) SetHTTPVersion(v string) *Transaction { t.httpVersion = v; return t }

// UseCache installs the Cache consulted for revalidation/storage.
func (t *Transaction) UseCache(c cache.Cache) *Transaction { t.cache = c; return t }

// UseCachingPolicy installs the CachingPolicy.
func (t *Transaction) UseCachingPolicy(p cache.Policy) *Transaction { t.policy = p; return t }

// SetMaxRedirects caps redirect hops before InvalidResponse.
func (t *Transaction) SetMaxRedirects(n int) *Transaction { t.maxRedirects = n; return t }

// SetMaxRepeats caps 304-revalidation repeats.
func (t *Transaction) SetMaxRepeats(n int) *Transaction { t.maxRepeats = n; return t }

// SetThrowIfMaxRepeats controls whether exceeding maxRepeats is fatal or
// just returns the last 304 response.
func (t *Transaction) SetThrowIfMaxRepeats(b bool) *Transaction { t.throwIfMaxRepeats = b; return t }

// SetRepeatOnNotModified enables the repeat-with-stripped-conditionals path
// for a 304 with no matching cache entry.
func (t *Transaction) SetRepeatOnNotModified(b bool) *Transaction {
	t.repeatOnNotModified = b
	return t
}

// SetStrictVersion makes an HTTP-version mismatch between request and
// response fatal instead of a warning.
func (t *Transaction) SetStrictVersion(b bool) *Transaction { t.strictVersion = b; return t }

// SetConnTimeout records d on the Transaction. Sockets are dialed by the
// pool with its own Config.ConnTimeout; d is not passed to the pool.
func (t *Transaction) SetConnTimeout(d time.Duration) *Transaction { t.connTimeout = d; return t }

// SetReadTimeout records d on the Transaction. No read deadline is applied
// to the socket from it.
func (t *Transaction) SetReadTimeout(d time.Duration) *Transaction { t.readTimeout = d; return t }

// SetBodyMemLimit caps in-memory response body size before spilling to disk.
func (t *Transaction) SetBodyMemLimit(n int64) *Transaction { t.bodyMemLimit = n; return t }

// SendString sets a string body, content-encoded per encoding. It is
// illegal to call both SendString and SendFile (→ InvalidRequest, surfaced
// at makeRequest time).
func (t *Transaction) SendString(s string, encoding codec.Coding) *Transaction {
	t.bodyString = &s
	t.contentEncoding = encoding
	return t
}

// SendFile reads path's contents as the request body at send time.
func (t *Transaction) SendFile(path string, encoding codec.Coding) *Transaction {
	t.bodyFile = &path
	t.contentEncoding = encoding
	return t
}

func (t *Transaction) markUsed() error {
	t.mu.Lock()
	defer t.mu.Unlock()
	if t.used {
		return errors.NewStateError("transaction already used")
	}
	t.used = true
	return nil
}

// prepareBody resolves the configured body source into the bytes to send,
// content-encoded; their length is the Content-Length that must be declared.
func (t *Transaction) prepareBody() ([]byte, error) {
	if t.bodyString != nil && t.bodyFile != nil {
		return nil, errors.NewValidationError("both sendString and sendFile were set")
	}
	var raw []byte
	switch {
	case t.bodyString != nil:
		raw = []byte(*t.bodyString)
	case t.bodyFile != nil:
		data, err := os.ReadFile(*t.bodyFile)
		if err != nil {
			return nil, errors.NewValidationError("reading body file: " + err.Error())
		}
		raw = data
	default:
		return nil, nil
	}
	return codec.Compress(raw, t.contentEncoding)
}

func fingerprint(method, target string) string {
	return strings.ToUpper(method) + " " + target
}

// MakeRequest drives the blocking request loop to completion:
// write, read, follow redirects and 304 revalidation within their budgets,
// and return the terminal Response.
func (t *Transaction) MakeRequest(ctx context.Context, method, rawURL string) (*codec.Response, error) {
	if err := t.markUsed(); err != nil {
		return nil, err
	}

	body, err := t.prepareBody()
	if err != nil {
		return nil, err
	}
	if body != nil {
		t.headers.Set("Content-Length", fmt.Sprintf("%d", len(body)))
	}

	fp := fingerprint(method, rawURL)
	if t.policy != nil && t.cache != nil && t.policy.ShouldLookInCacheBeforeRequest() && t.cache.Exists(fp) {
		return t.wrapFromCache(fp)
	}

	currentURL := rawURL
	currentMethod := method
	sameSocketNext := false

	for {
		u, err := url.Parse(currentURL)
		if err != nil {
			return nil, errors.NewValidationError("invalid URL: " + err.Error())
		}

		if !sameSocketNext || t.sock == nil {
			if t.sock != nil {
				t.sock.Close()
			}
			t.timer.StartDNS()
			ep, err := endpoint.FromURL(ctx, currentURL, t.resolver)
			t.timer.EndDNS()
			if err != nil {
				return nil, err
			}
			s, err := t.pool.AcquireBlocking(ctx, ep)
			if err != nil {
				return nil, err
			}
			t.timer.AddTCP(s.TCPConnectDuration())
			t.timer.AddTLS(s.TLSHandshakeDuration())
			t.sock = s
		}
		sameSocketNext = false

		req := codec.NewRequest(currentMethod, targetFor(u), u.Hostname())
		req.Version = t.httpVersion
		req.Headers = t.headers.Clone()

		if err := codec.WriteRequest(t.sock, req, body, t.headerPolicy, &t.Warnings); err != nil {
			return nil, err
		}

		t.timer.StartTTFB()
		resp, err := codec.ParseResponseTimed(t.sock, req, t.bodyMemLimit, t.strictVersion, &t.Warnings, t.timer.EndTTFB)
		if err != nil {
			return nil, err
		}
		resp.Timings = t.timer.GetMetrics()

		switch resp.StatusCode {
		case 301, 302, 303, 307:
			t.currentRedirects++
			if t.currentRedirects >= t.maxRedirects {
				return nil, errors.NewProtocolError("exceeded maximum redirects", nil)
			}
			loc := resp.Headers.Get("Location")
			if loc == "" {
				return resp, nil
			}
			next, err := u.Parse(loc)
			if err != nil {
				return nil, errors.NewProtocolError("invalid redirect Location: "+loc, err)
			}
			sameHost := next.Hostname() == u.Hostname() && next.Port() == u.Port() && next.Scheme == u.Scheme
			currentURL = next.String()
			if resp.StatusCode == 303 {
				currentMethod = "GET"
				body = nil
			}
			sameSocketNext = sameHost
			continue

		case 304:
			lookInCache := t.cache != nil && t.cache.Exists(fp)
			if lookInCache && t.policy != nil {
				lookInCache = t.policy.ShouldLookInCacheAfterResponse(resp.StatusCode)
			}
			if lookInCache {
				return t.wrapFromCache(fp)
			}
			if t.repeatOnNotModified {
				t.currentRepeats++
				if t.currentRepeats >= t.maxRepeats {
					if t.throwIfMaxRepeats {
						return nil, errors.NewProtocolError("exceeded maximum 304 repeats", nil)
					}
					return resp, nil
				}
				t.headers.Del("If-Modified-Since")
				t.headers.Del("If-None-Match")
				t.headers.Del("If-Unmodified-Since")
				sameSocketNext = false // repeat on a fresh socket: server may have closed this one
				continue
			}
			return resp, nil

		default:
			t.disconnectOnClose = strings.EqualFold(resp.Headers.Get("Connection"), "close")
			if t.policy != nil && t.cache != nil {
				m, known := codec.LookupMethod(method)
				cacheable := known && m.ResponseCacheable
				if t.policy.ShouldStoreInCache(method, cacheable) {
					t.cache.PutStatus(fp, resp.StatusCode)
					t.cache.PutHeaders(fp, resp.Headers)
					switch resp.Body.Kind() {
					case buffer.KindFile:
						t.cache.PutFile(fp, resp.Body.Path())
					case buffer.KindMemory:
						t.cache.PutString(fp, string(resp.Body.Bytes()))
					}
				}
			}
			return resp, nil
		}
	}
}

func targetFor(u *url.URL) string {
	target := u.EscapedPath()
	if target == "" {
		target = "/"
	}
	if u.RawQuery != "" {
		target += "?" + u.RawQuery
	}
	return target
}

func (t *Transaction) wrapFromCache(fp string) (*codec.Response, error) {
	status, _ := t.cache.GetStatus(fp)
	hdrs, _ := t.cache.GetHeaders(fp)
	resp := &codec.Response{StatusCode: status, Headers: hdrs, Timings: t.timer.GetMetrics()}

	body := buffer.New(t.bodyMemLimit)
	if kind, ok := t.cache.GetType(fp); ok {
		switch kind {
		case cache.BodyString:
			if s, ok := t.cache.GetString(fp); ok {
				body.Write([]byte(s))
			}
		case cache.BodyFile:
			if path, ok := t.cache.GetFile(fp); ok {
				if data, err := os.ReadFile(path); err == nil {
					body.Write(data)
				}
			}
		}
	}
	resp.Body = body

	return resp, nil
}

// MakeRequestLater drives the same state machine on a goroutine, invoking
// exactly one of cb's callbacks via exec instead of returning synchronously.
func (t *Transaction) MakeRequestLater(ctx context.Context, method, rawURL string, cb AsyncCallback, exec pool.Executor) {
	if exec == nil {
		exec = pool.DirectExecutor{}
	}
	go func() {
		resp, err := t.MakeRequest(ctx, method, rawURL)
		switch {
		case err == nil:
			exec.Execute(func() {
				if cb.OnResponse != nil {
					cb.OnResponse(resp)
				}
			})
		case errors.IsTimeoutError(err):
			exec.Execute(func() {
				if cb.OnTimeout != nil {
					cb.OnTimeout()
				}
			})
		default:
			exec.Execute(func() {
				if cb.OnError != nil {
					cb.OnError(err)
				}
			})
		}
	}()
}

// AsyncCallback receives the outcome of MakeRequestLater.
type AsyncCallback struct {
	OnResponse func(*codec.Response)
	OnTimeout  func()
	OnError    func(error)
}

// Close finalizes the Transaction: the Socket is closed if the response
// carried Connection: close, otherwise it is released to the pool.
// Releasing is non-blocking; closing is final. Safe to call even after a
// mid-flight failure, best-effort.
func (t *Transaction) Close() error {
	t.mu.Lock()
	defer t.mu.Unlock()
	if t.closed {
		return nil
	}
	t.closed = true
	if t.sock == nil {
		return nil
	}
	if t.disconnectOnClose {
		return t.sock.Close()
	}
	t.sock.Release()
	return nil
}
