package txn

import (
	"context"
	"net/url"
	"sync"

	"github.com/brindle-io/httpcore/pkg/codec"
	"github.com/brindle-io/httpcore/pkg/endpoint"
	"github.com/brindle-io/httpcore/pkg/errors"
	"github.com/brindle-io/httpcore/pkg/header"
)

type chunkState int

const (
	chunkInitial chunkState = iota
	chunkBegun
	chunkEnded
)

// ChunkSender is the streaming write surface for Transfer-Encoding: chunked
// requests (C9). It owns a Socket across many calls and enforces the
// begin -> sendChunk* -> end call order; violating it is an IllegalState
// error.
type ChunkSender struct {
	mu sync.Mutex

	txn    *Transaction
	ctx    context.Context
	method string
	rawURL string

	state chunkState
	req   *codec.Request
}

// SendChunks marks the Transaction used and returns a ChunkSender bound to
// method/rawURL. The caller must drive it through Begin, one or more
// SendChunk calls, then End.
func (t *Transaction) SendChunks(ctx context.Context, method, rawURL string) (*ChunkSender, error) {
	if err := t.markUsed(); err != nil {
		return nil, err
	}
	return &ChunkSender{txn: t, ctx: ctx, method: method, rawURL: rawURL}, nil
}

// Begin opens the socket and writes the request line plus headers,
// including Transfer-Encoding: chunked.
func (cs *ChunkSender) Begin() error {
	cs.mu.Lock()
	defer cs.mu.Unlock()
	if cs.state != chunkInitial {
		return errors.NewStateError("Begin called out of order")
	}

	u, err := url.Parse(cs.rawURL)
	if err != nil {
		return errors.NewValidationError("invalid URL: " + err.Error())
	}

	cs.txn.timer.StartDNS()
	ep, err := endpoint.FromURL(cs.ctx, cs.rawURL, cs.txn.resolver)
	cs.txn.timer.EndDNS()
	if err != nil {
		return err
	}
	s, err := cs.txn.pool.AcquireBlocking(cs.ctx, ep)
	if err != nil {
		return err
	}
	cs.txn.timer.AddTCP(s.TCPConnectDuration())
	cs.txn.timer.AddTLS(s.TLSHandshakeDuration())
	cs.txn.sock = s

	req := codec.NewRequest(cs.method, targetFor(u), u.Hostname())
	req.Version = cs.txn.httpVersion
	req.Headers = cs.txn.headers.Clone()
	req.Headers.Set("Transfer-Encoding", "chunked")
	req.Headers.Del("Content-Length")
	if !req.Headers.Has("Host") && req.Host != "" {
		req.Headers.Set("Host", req.Host)
	}
	cs.req = req

	if err := s.Print(req.RequestLine() + "\r\n"); err != nil {
		return err
	}
	for _, name := range req.Headers.Names() {
		for _, v := range req.Headers.Values(name) {
			if err := cs.txn.headerPolicy.Validate(name, v); err != nil {
				return err
			}
			if c := header.Classify(name); c != header.Permanent {
				cs.txn.Warnings.Add("writing %s header %q", c, name)
			}
			if err := s.Print(name + ": " + v + "\r\n"); err != nil {
				return err
			}
		}
	}
	if err := s.Print("\r\n"); err != nil {
		return err
	}
	if err := s.Flush(); err != nil {
		return err
	}

	cs.state = chunkBegun
	return nil
}

// SendChunk content-encodes payload per the Transaction's configured
// encoding and frames it as one chunk. payload must be non-empty.
func (cs *ChunkSender) SendChunk(payload []byte) error {
	cs.mu.Lock()
	defer cs.mu.Unlock()
	if cs.state != chunkBegun {
		return errors.NewStateError("SendChunk called out of order")
	}
	if len(payload) == 0 {
		return errors.NewValidationError("chunk payload must be non-empty")
	}

	encoded, err := codec.Compress(payload, cs.txn.contentEncoding)
	if err != nil {
		return err
	}
	return codec.WriteChunk(cs.txn.sock, encoded)
}

// End writes the terminating zero-length chunk, parses the response,
// closes the Transaction, and returns the response.
func (cs *ChunkSender) End() (*codec.Response, error) {
	cs.mu.Lock()
	defer cs.mu.Unlock()
	if cs.state != chunkBegun {
		return nil, errors.NewStateError("End called out of order")
	}
	cs.state = chunkEnded

	if err := codec.EndChunks(cs.txn.sock); err != nil {
		return nil, err
	}

	cs.txn.timer.StartTTFB()
	resp, err := codec.ParseResponseTimed(cs.txn.sock, cs.req, cs.txn.bodyMemLimit, cs.txn.strictVersion, &cs.txn.Warnings, cs.txn.timer.EndTTFB)
	if err != nil {
		cs.txn.Close()
		return resp, err
	}
	resp.Timings = cs.txn.timer.GetMetrics()

	cs.txn.disconnectOnClose = resp.Headers.Get("Connection") == "close"
	closeErr := cs.txn.Close()
	if closeErr != nil {
		return resp, closeErr
	}
	return resp, nil
}
