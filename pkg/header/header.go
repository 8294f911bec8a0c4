// Package header implements a case-insensitive, multi-valued HTTP header
// container with validation against a known-header registry and a
// pluggable policy for what to do about unknown or deprecated names.
package header

import (
	"net/textproto"
	"strings"

	"golang.org/x/net/http/httpguts"

	"github.com/brindle-io/httpcore/pkg/errors"
)

// Set is an insertion-order-irrelevant mapping from canonical header name to
// one or more values. Repeated fields are stored as separate slice entries;
// Get joins them with ", " per RFC 7230 §3.2.2.
type Set struct {
	values map[string][]string
}

// New returns an empty header Set.
func New() *Set {
	return &Set{values: make(map[string][]string)}
}

func canon(name string) string {
	return textproto.CanonicalMIMEHeaderKey(name)
}

// Set replaces any existing values for name with a single value.
func (s *Set) Set(name, value string) {
	s.values[canon(name)] = []string{value}
}

// Add appends value to name's existing values.
func (s *Set) Add(name, value string) {
	key := canon(name)
	s.values[key] = append(s.values[key], value)
}

// Get returns name's values joined by ", ", or "" if absent.
func (s *Set) Get(name string) string {
	v := s.values[canon(name)]
	if len(v) == 0 {
		return ""
	}
	return strings.Join(v, ", ")
}

// Values returns the raw, unjoined values for name.
func (s *Set) Values(name string) []string {
	return s.values[canon(name)]
}

// Has reports whether name is present at all.
func (s *Set) Has(name string) bool {
	return len(s.values[canon(name)]) > 0
}

// Del removes name entirely.
func (s *Set) Del(name string) {
	delete(s.values, canon(name))
}

// Names returns the canonical names present, in no particular order.
func (s *Set) Names() []string {
	names := make([]string, 0, len(s.values))
	for k := range s.values {
		names = append(names, k)
	}
	return names
}

// Clone returns a deep copy.
func (s *Set) Clone() *Set {
	out := New()
	for k, v := range s.values {
		cp := make([]string, len(v))
		copy(cp, v)
		out.values[k] = cp
	}
	return out
}

// Len reports the number of distinct header names.
func (s *Set) Len() int {
	return len(s.values)
}

// Classification categorizes a header name against the known registry.
type Classification string

const (
	Permanent   Classification = "permanent"
	Obsolete    Classification = "obsolete"
	Nonstandard Classification = "nonstandard"
	Unknown     Classification = "unknown"
)

// Classify reports how the registry regards name.
func Classify(name string) Classification {
	key := canon(name)
	if _, ok := permanentHeaders[key]; ok {
		return Permanent
	}
	if _, ok := obsoleteHeaders[key]; ok {
		return Obsolete
	}
	if strings.HasPrefix(key, "X-") {
		return Nonstandard
	}
	return Unknown
}

// Policy controls which header classifications are rejected outright versus
// merely tolerated. The zero value accepts everything.
type Policy struct {
	RejectObsolete    bool
	RejectNonstandard bool
	RejectUnknown     bool
}

// Validate checks name and value against httpguts' wire-format rules and
// this policy's classification rules, returning an InvalidHeader error on
// the first violation.
func (p Policy) Validate(name, value string) error {
	if !httpguts.ValidHeaderFieldName(name) {
		return errors.NewHeaderError(name, "not a valid header field name")
	}
	if !httpguts.ValidHeaderFieldValue(value) {
		return errors.NewHeaderError(name, "not a valid header field value")
	}

	switch Classify(name) {
	case Obsolete:
		if p.RejectObsolete {
			return errors.NewHeaderError(name, "header is obsolete")
		}
	case Nonstandard:
		if p.RejectNonstandard {
			return errors.NewHeaderError(name, "header is nonstandard")
		}
	case Unknown:
		if p.RejectUnknown {
			return errors.NewHeaderError(name, "header is unknown")
		}
	}
	return nil
}

// SetValidated applies p to (name, value) before storing it, returning the
// validation error instead of mutating the set when it fails.
func (s *Set) SetValidated(p Policy, name, value string) error {
	if err := p.Validate(name, value); err != nil {
		return err
	}
	s.Set(name, value)
	return nil
}
