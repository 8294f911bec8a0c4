package cache

import (
	"time"

	"github.com/brindle-io/httpcore/pkg/header"
)

const (
	// DefaultSize bounds the number of entries before eviction starts.
	DefaultSize = 32
	// DefaultTTL is how long an entry stays fresh before a read drops it.
	DefaultTTL = 10 * time.Minute
)

// FIFO is the default Cache: a bounded map with an eviction queue
// and a TTL checked lazily on read. It is explicitly NOT thread-safe — a
// caller sharing one across goroutines must wrap it in its own lock or
// choose a concurrent implementation; this is a contract, not an oversight.
type FIFO struct {
	size int
	ttl  time.Duration

	entries map[string]*Entry
	queue   []string // insertion order; may contain stale/evicted keys
}

// NewFIFO returns a FIFO cache. size<=0 uses DefaultSize, ttl<=0 uses
// DefaultTTL.
func NewFIFO(size int, ttl time.Duration) *FIFO {
	if size <= 0 {
		size = DefaultSize
	}
	if ttl <= 0 {
		ttl = DefaultTTL
	}
	return &FIFO{size: size, ttl: ttl, entries: make(map[string]*Entry)}
}

func (f *FIFO) entry(fingerprint string, create bool) *Entry {
	e, ok := f.entries[fingerprint]
	if !ok {
		if !create {
			return nil
		}
		e = &Entry{InsertionTime: time.Now()}
		f.entries[fingerprint] = e
		f.queue = append(f.queue, fingerprint)
		f.evictOverflow()
	}
	return e
}

// evictOverflow polls the queue and removes entries once the live entry
// count exceeds size. Queue entries whose map entry is already gone (from
// an explicit Evict) are simply skipped.
func (f *FIFO) evictOverflow() {
	for len(f.entries) > f.size && len(f.queue) > 0 {
		oldest := f.queue[0]
		f.queue = f.queue[1:]
		delete(f.entries, oldest)
	}
}

// dropExpired removes fingerprint if its entry has outlived the TTL,
// returning the (possibly now nil) entry.
func (f *FIFO) dropExpired(fingerprint string) *Entry {
	e, ok := f.entries[fingerprint]
	if !ok {
		return nil
	}
	if time.Since(e.InsertionTime) > f.ttl {
		delete(f.entries, fingerprint)
		return nil
	}
	return e
}

func (f *FIFO) Exists(fingerprint string) bool {
	return f.dropExpired(fingerprint) != nil
}

func (f *FIFO) Evict(fingerprint string) {
	delete(f.entries, fingerprint)
}

func (f *FIFO) PutStatus(fingerprint string, status int) {
	f.entry(fingerprint, true).Status = status
}

func (f *FIFO) PutHeaders(fingerprint string, headers *header.Set) {
	f.entry(fingerprint, true).Headers = headers
}

func (f *FIFO) PutString(fingerprint string, body string) {
	e := f.entry(fingerprint, true)
	e.BodyString = body
	e.BodyKind = BodyString
}

func (f *FIFO) PutFile(fingerprint string, path string) {
	e := f.entry(fingerprint, true)
	e.BodyFilePath = path
	e.BodyKind = BodyFile
}

func (f *FIFO) GetStatus(fingerprint string) (int, bool) {
	e := f.dropExpired(fingerprint)
	if e == nil {
		return 0, false
	}
	return e.Status, true
}

func (f *FIFO) GetHeaders(fingerprint string) (*header.Set, bool) {
	e := f.dropExpired(fingerprint)
	if e == nil || e.Headers == nil {
		return nil, false
	}
	return e.Headers, true
}

func (f *FIFO) GetString(fingerprint string) (string, bool) {
	e := f.dropExpired(fingerprint)
	if e == nil || e.BodyKind != BodyString {
		return "", false
	}
	return e.BodyString, true
}

func (f *FIFO) GetFile(fingerprint string) (string, bool) {
	e := f.dropExpired(fingerprint)
	if e == nil || e.BodyKind != BodyFile {
		return "", false
	}
	return e.BodyFilePath, true
}

func (f *FIFO) GetAge(fingerprint string) (time.Duration, bool) {
	e := f.dropExpired(fingerprint)
	if e == nil {
		return 0, false
	}
	return e.Age(), true
}

func (f *FIFO) GetType(fingerprint string) (BodyKind, bool) {
	e := f.dropExpired(fingerprint)
	if e == nil {
		return BodyNone, false
	}
	return e.BodyKind, true
}
