// Package cache implements the pluggable response cache (C6) and its
// default FIFO-with-TTL implementation, plus the CachingPolicy (C7)
// interface that decides when a Transaction consults or populates it.
package cache

import (
	"time"

	"github.com/brindle-io/httpcore/pkg/header"
)

// BodyKind identifies how a cached entry's body is stored.
type BodyKind int

const (
	BodyNone BodyKind = iota
	BodyString
	BodyFile
)

// Entry is one cached response's materialized parts. Any field may be
// zero-valued if only a partial update (e.g. putStatus alone) has happened
// so far; implementers must tolerate that.
type Entry struct {
	Status        int
	Headers       *header.Set
	BodyString    string
	BodyFilePath  string
	BodyKind      BodyKind
	InsertionTime time.Time
}

// Age returns how long ago e was inserted.
func (e *Entry) Age() time.Duration {
	return time.Since(e.InsertionTime)
}

// Cache is a pluggable mapping from request fingerprint to cached response
// parts, with eviction and age tracking. Implementations need not be
// thread-safe (the default FIFO implementation explicitly is not) — callers
// that share a Cache across goroutines must provide their own
// synchronization or use a concurrent implementation.
type Cache interface {
	Exists(fingerprint string) bool
	Evict(fingerprint string)

	PutStatus(fingerprint string, status int)
	PutHeaders(fingerprint string, headers *header.Set)
	PutString(fingerprint string, body string)
	PutFile(fingerprint string, path string)

	GetStatus(fingerprint string) (int, bool)
	GetHeaders(fingerprint string) (*header.Set, bool)
	GetString(fingerprint string) (string, bool)
	GetFile(fingerprint string) (string, bool)

	GetAge(fingerprint string) (time.Duration, bool)
	GetType(fingerprint string) (BodyKind, bool)
}
