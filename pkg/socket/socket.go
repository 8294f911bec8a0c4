// Package socket wraps a single leased byte-stream connection to one
// Endpoint. It tracks acquisition state, open/idle timestamps, and
// provides the buffered line/byte I/O and chunk-reading primitives the
// Codec builds on.
package socket

import (
	"bufio"
	"context"
	"crypto/tls"
	"crypto/x509"
	"io"
	"net"
	"strconv"
	"strings"
	"sync"
	"sync/atomic"
	"time"

	"github.com/brindle-io/httpcore/pkg/endpoint"
	"github.com/brindle-io/httpcore/pkg/errors"
)

// state values for the atomic lifecycle flag.
const (
	stateIdle int32 = iota
	stateInUse
	stateClosed
)

// TLSConfig carries the optional client-certificate/CA material used when
// dialing a TLS endpoint. A nil *TLSConfig uses platform defaults with
// TLS 1.2+ and no client certificate.
type TLSConfig struct {
	MinVersion     uint16 // defaults to tls.VersionTLS12 when zero
	ServerName     string // SNI override; defaults to endpoint.Host
	InsecureSkipVerify bool
	RootCAs        *x509.CertPool
	ClientCertPEM  []byte
	ClientKeyPEM   []byte
}

// Socket is a connected byte stream leased from a ConnectionPool. Its
// lifecycle is idle -> in-use -> idle -> ... -> closed (terminal). Only one
// lease may be active at a time; AcquireIfIdle enforces that atomically.
type Socket struct {
	Endpoint *endpoint.Endpoint

	conn net.Conn
	r    *bufio.Reader
	w    *bufio.Writer

	openedAt time.Time

	// tcpConnect and tlsHandshake capture how long the initial dial spent in
	// each phase; both are zero for a socket handed back by the pool on a
	// reuse rather than a fresh Dial/WrapProxied.
	tcpConnect   time.Duration
	tlsHandshake time.Duration

	state int32 // atomic: stateIdle/stateInUse/stateClosed

	mu            sync.Mutex // guards lastUsedAt and readingChunks
	lastUsedAt    time.Time
	readingChunks bool
}

// Dial opens a new Socket to endpoint ep, performing a TLS handshake first
// when ep.TLS is set. The returned Socket starts in the idle state.
func Dial(ctx context.Context, ep *endpoint.Endpoint, connTimeout time.Duration, tlsCfg *TLSConfig) (*Socket, error) {
	if connTimeout <= 0 {
		connTimeout = 10 * time.Second
	}

	dialStart := time.Now()
	dialer := &net.Dialer{Timeout: connTimeout}
	conn, err := dialer.DialContext(ctx, "tcp", ep.DialAddr())
	tcpDur := time.Since(dialStart)
	if err != nil {
		return nil, errors.NewConnectionError(ep.Host, int(ep.Port), err)
	}

	if tcpConn, ok := conn.(*net.TCPConn); ok {
		_ = tcpConn.SetKeepAlive(true)
		_ = tcpConn.SetKeepAlivePeriod(30 * time.Second)
	}

	var tlsDur time.Duration
	if ep.TLS {
		hsStart := time.Now()
		conn, err = handshakeTLS(ctx, conn, ep, connTimeout, tlsCfg)
		tlsDur = time.Since(hsStart)
		if err != nil {
			return nil, errors.NewTLSError(ep.Host, int(ep.Port), err)
		}
	}

	now := time.Now()
	return &Socket{
		Endpoint:     ep,
		conn:         conn,
		r:            bufio.NewReader(conn),
		w:            bufio.NewWriter(conn),
		openedAt:     now,
		lastUsedAt:   now,
		state:        stateIdle,
		tcpConnect:   tcpDur,
		tlsHandshake: tlsDur,
	}, nil
}

func handshakeTLS(ctx context.Context, conn net.Conn, ep *endpoint.Endpoint, timeout time.Duration, cfg *TLSConfig) (net.Conn, error) {
	conf := &tls.Config{
		MinVersion: tls.VersionTLS12,
		ServerName: ep.Host,
	}
	if cfg != nil {
		if cfg.MinVersion != 0 {
			conf.MinVersion = cfg.MinVersion
		}
		if cfg.ServerName != "" {
			conf.ServerName = cfg.ServerName
		}
		conf.InsecureSkipVerify = cfg.InsecureSkipVerify
		conf.RootCAs = cfg.RootCAs
		if len(cfg.ClientCertPEM) > 0 && len(cfg.ClientKeyPEM) > 0 {
			cert, err := tls.X509KeyPair(cfg.ClientCertPEM, cfg.ClientKeyPEM)
			if err != nil {
				conn.Close()
				return nil, err
			}
			conf.Certificates = append(conf.Certificates, cert)
		}
	}

	tlsConn := tls.Client(conn, conf)
	hsCtx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()
	if err := tlsConn.HandshakeContext(hsCtx); err != nil {
		conn.Close()
		return nil, err
	}
	return tlsConn, nil
}

// AcquireIfIdle atomically transitions the socket from idle to in-use.
// It returns false if the socket is already in-use or closed.
func (s *Socket) AcquireIfIdle() bool {
	return atomic.CompareAndSwapInt32(&s.state, stateIdle, stateInUse)
}

// Release drains any residual readable bytes non-blocking, transitions the
// socket back to idle, and stamps lastUsedAt. Release is a no-op if the
// socket is closed.
func (s *Socket) Release() {
	if atomic.LoadInt32(&s.state) == stateClosed {
		return
	}

	s.drainResidual()

	s.mu.Lock()
	s.readingChunks = false
	s.lastUsedAt = time.Now()
	s.tcpConnect = 0
	s.tlsHandshake = 0
	s.mu.Unlock()

	atomic.StoreInt32(&s.state, stateIdle)
}

// drainResidual discards any bytes the peer sent beyond what the last
// exchange consumed (e.g. a pipelined response fragment), bounded so a
// misbehaving peer can't block Release indefinitely.
func (s *Socket) drainResidual() {
	_ = s.conn.SetReadDeadline(time.Now().Add(1 * time.Millisecond))
	defer s.conn.SetReadDeadline(time.Time{})

	discard := make([]byte, 4096)
	for i := 0; i < 16; i++ {
		if s.r.Buffered() == 0 {
			n, err := s.conn.Read(discard)
			if n == 0 || err != nil {
				return
			}
			continue
		}
		n, err := s.r.Read(discard)
		if n == 0 || err != nil {
			return
		}
	}
}

// Close terminates the socket. It is idempotent and safe to call from any
// state. Once closed, the socket can never be reacquired.
func (s *Socket) Close() error {
	if atomic.SwapInt32(&s.state, stateClosed) == stateClosed {
		return nil
	}
	return s.conn.Close()
}

// IsClosed reports whether the socket has been closed.
func (s *Socket) IsClosed() bool {
	return atomic.LoadInt32(&s.state) == stateClosed
}

// InUse reports whether the socket is currently leased.
func (s *Socket) InUse() bool {
	return atomic.LoadInt32(&s.state) == stateInUse
}

// OpenedAt returns when the underlying connection was established.
func (s *Socket) OpenedAt() time.Time { return s.openedAt }

// TCPConnectDuration returns how long the TCP dial took for a freshly
// opened socket, or zero for one handed back by the pool on reuse.
func (s *Socket) TCPConnectDuration() time.Duration { return s.tcpConnect }

// TLSHandshakeDuration returns how long the TLS handshake took for a
// freshly opened TLS socket, or zero for a plaintext socket or a reused one.
func (s *Socket) TLSHandshakeDuration() time.Duration { return s.tlsHandshake }

// Age returns the time since the socket was opened.
func (s *Socket) Age() time.Duration { return time.Since(s.openedAt) }

// IdlingTime returns how long the socket has been idle. It is always 0
// while the socket is in-use.
func (s *Socket) IdlingTime() time.Duration {
	if s.InUse() {
		return 0
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	return time.Since(s.lastUsedAt)
}

// SetReadingChunks records whether a chunked-body read is in progress.
func (s *Socket) SetReadingChunks(v bool) {
	s.mu.Lock()
	s.readingChunks = v
	s.mu.Unlock()
}

// ReadingChunks reports whether a chunked-body read is in progress.
func (s *Socket) ReadingChunks() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.readingChunks
}

func (s *Socket) requireAcquired(op string) error {
	if atomic.LoadInt32(&s.state) != stateInUse {
		return errors.NewIOError(op, errors.NewStateError("socket is not acquired"))
	}
	return nil
}

// SetDeadlines applies read/write deadlines for the current operation.
// Either may be zero to leave that deadline unset.
func (s *Socket) SetDeadlines(readTimeout, writeTimeout time.Duration) {
	if readTimeout > 0 {
		_ = s.conn.SetReadDeadline(time.Now().Add(readTimeout))
	}
	if writeTimeout > 0 {
		_ = s.conn.SetWriteDeadline(time.Now().Add(writeTimeout))
	}
}

// Print writes text verbatim (not flushed).
func (s *Socket) Print(text string) error {
	if err := s.requireAcquired("print"); err != nil {
		return err
	}
	if _, err := s.w.WriteString(text); err != nil {
		return errors.NewIOError("writing", err)
	}
	return nil
}

// Write writes raw bytes (not flushed).
func (s *Socket) Write(b []byte) (int, error) {
	if err := s.requireAcquired("write"); err != nil {
		return 0, err
	}
	n, err := s.w.Write(b)
	if err != nil {
		return n, errors.NewIOError("writing", err)
	}
	return n, nil
}

// Flush pushes buffered writes to the wire.
func (s *Socket) Flush() error {
	if err := s.requireAcquired("flush"); err != nil {
		return err
	}
	if err := s.w.Flush(); err != nil {
		return errors.NewIOError("flushing", err)
	}
	return nil
}

// Read fills p with up to len(p) bytes.
func (s *Socket) Read(p []byte) (int, error) {
	if err := s.requireAcquired("read"); err != nil {
		return 0, err
	}
	n, err := s.r.Read(p)
	if err != nil && err != io.EOF {
		return n, errors.NewIOError("reading", err)
	}
	return n, err
}

// ReadN reads exactly n bytes.
func (s *Socket) ReadN(n int64) ([]byte, error) {
	if err := s.requireAcquired("read"); err != nil {
		return nil, err
	}
	buf := make([]byte, n)
	read := int64(0)
	for read < n {
		m, err := s.r.Read(buf[read:])
		read += int64(m)
		if err != nil {
			if read == n {
				break
			}
			return buf[:read], errors.NewIOError("reading", err)
		}
	}
	return buf, nil
}

// ReadLine reads a single line, tolerant of both CRLF and bare-LF
// terminators (some servers violate HTTP/1.1 framing). The returned string
// excludes the terminator.
func (s *Socket) ReadLine() (string, error) {
	if err := s.requireAcquired("readline"); err != nil {
		return "", err
	}
	line, err := s.r.ReadString('\n')
	if err != nil {
		if line != "" {
			return strings.TrimRight(line, "\r\n"), nil
		}
		return "", errors.NewIOError("reading line", err)
	}
	return strings.TrimRight(line, "\r\n"), nil
}

// InputReady reports whether a Read would return buffered data without
// blocking.
func (s *Socket) InputReady() bool {
	return s.r.Buffered() > 0
}

// Buffered returns the number of bytes immediately available without a
// network read.
func (s *Socket) Buffered() int {
	return s.r.Buffered()
}

// Peek returns the next n bytes without advancing the reader.
func (s *Socket) Peek(n int) ([]byte, error) {
	return s.r.Peek(n)
}

// Reader exposes the underlying buffered reader, for callers that read the
// stream directly rather than through ReadLine/ReadN.
func (s *Socket) Reader() *bufio.Reader { return s.r }

// ReadChunks reads a chunked-transfer-coding body directly off the wire —
// hex length CRLF, payload, CRLF, repeating until a zero-length chunk — and
// invokes onChunk with each chunk's raw payload as it arrives, rather than
// buffering the whole body before returning. Trailer lines following the
// terminator are consumed and discarded. onChunk returning an error aborts
// the read and is returned to the caller.
func (s *Socket) ReadChunks(onChunk func([]byte) error) error {
	if err := s.requireAcquired("readchunks"); err != nil {
		return err
	}
	s.SetReadingChunks(true)
	defer s.SetReadingChunks(false)

	for {
		line, err := s.ReadLine()
		if err != nil {
			return errors.NewProtocolError("reading chunk size", err)
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
		crlf, err := s.ReadN(2)
		if err != nil || string(crlf) != "\r\n" {
			return errors.NewProtocolError("malformed chunk terminator", err)
		}
		if err := onChunk(data); err != nil {
			return err
		}
	}

	for {
		line, err := s.ReadLine()
		if err != nil {
			return errors.NewProtocolError("reading chunk trailer", err)
		}
		if line == "" {
			break
		}
	}
	return nil
}

// ReadAllChunks reads the complete chunked-transfer body into one
// concatenated slice, for callers that don't need streamed delivery.
func (s *Socket) ReadAllChunks() ([]byte, error) {
	var out []byte
	err := s.ReadChunks(func(chunk []byte) error {
		out = append(out, chunk...)
		return nil
	})
	return out, err
}

// ChunkCallbacks receives the incremental and terminal outcomes of an
// asynchronous chunked-body read. OnChunk may fire multiple times; exactly
// one of OnComplete/OnError fires last.
type ChunkCallbacks struct {
	OnChunk    func([]byte)
	OnComplete func()
	OnError    func(error)
}

// Executor dispatches a callback invocation, e.g. onto a worker pool.
type Executor interface {
	Execute(func())
}

// DirectExecutor runs the callback on the calling goroutine.
type DirectExecutor struct{}

// Execute runs fn immediately.
func (DirectExecutor) Execute(fn func()) { fn() }

// ReadChunksAsync mirrors ReadChunks on a dedicated goroutine, dispatching
// each callback through exec (DirectExecutor if nil) instead of blocking
// the caller.
func (s *Socket) ReadChunksAsync(cb ChunkCallbacks, exec Executor) {
	if exec == nil {
		exec = DirectExecutor{}
	}
	go func() {
		err := s.ReadChunks(func(chunk []byte) error {
			if cb.OnChunk != nil {
				exec.Execute(func() { cb.OnChunk(chunk) })
			}
			return nil
		})
		if err != nil {
			exec.Execute(func() {
				if cb.OnError != nil {
					cb.OnError(err)
				}
			})
			return
		}
		exec.Execute(func() {
			if cb.OnComplete != nil {
				cb.OnComplete()
			}
		})
	}()
}
