// Package timing provides per-transaction performance measurement.
package timing

import (
	"fmt"
	"time"
)

// Metrics captures the timing breakdown of one HTTP exchange.
type Metrics struct {
	DNSLookup    time.Duration `json:"dns_lookup"`
	TCPConnect   time.Duration `json:"tcp_connect"`
	TLSHandshake time.Duration `json:"tls_handshake"`
	TTFB         time.Duration `json:"ttfb"`
	TotalTime    time.Duration `json:"total_time"`
}

// Timer accumulates timing marks across the lifetime of a Transaction.
// Each redirect or 304-repeat hop adds its connect durations (AddTCP/AddTLS
// or a StartTCP/EndTCP, StartTLS/EndTLS bracket) and re-marks StartTTFB, so
// the connect-phase fields accumulate across every hop while TotalTime is
// measured from construction to the final GetMetrics call.
type Timer struct {
	start time.Time

	dnsStart, dnsEnd   time.Time
	tcpStart, tcpEnd   time.Time
	tlsStart, tlsEnd   time.Time
	ttfbStart, ttfbEnd time.Time

	dnsAccum, tcpAccum, tlsAccum time.Duration
}

// NewTimer starts a new timing session.
func NewTimer() *Timer {
	return &Timer{start: time.Now()}
}

func (t *Timer) StartDNS() { t.dnsStart = time.Now() }
func (t *Timer) EndDNS() {
	t.dnsEnd = time.Now()
	if !t.dnsStart.IsZero() {
		t.dnsAccum += t.dnsEnd.Sub(t.dnsStart)
	}
}

func (t *Timer) StartTCP() { t.tcpStart = time.Now() }
func (t *Timer) EndTCP() {
	t.tcpEnd = time.Now()
	if !t.tcpStart.IsZero() {
		t.tcpAccum += t.tcpEnd.Sub(t.tcpStart)
	}
}

func (t *Timer) StartTLS() { t.tlsStart = time.Now() }
func (t *Timer) EndTLS() {
	t.tlsEnd = time.Now()
	if !t.tlsStart.IsZero() {
		t.tlsAccum += t.tlsEnd.Sub(t.tlsStart)
	}
}

// AddTCP folds in a connect duration measured elsewhere (e.g. a Socket's own
// dial timing), for hops where the connect phase isn't bracketed by
// StartTCP/EndTCP directly.
func (t *Timer) AddTCP(d time.Duration) { t.tcpAccum += d }

// AddTLS folds in a handshake duration measured elsewhere, same rationale
// as AddTCP.
func (t *Timer) AddTLS(d time.Duration) { t.tlsAccum += d }

// StartTTFB marks when we start waiting for the first response byte.
// Each hop overwrites the previous mark; only the latest hop's TTFB survives.
func (t *Timer) StartTTFB() { t.ttfbStart = time.Now() }
func (t *Timer) EndTTFB()   { t.ttfbEnd = time.Now() }

// GetMetrics returns the calculated timing metrics.
func (t *Timer) GetMetrics() Metrics {
	m := Metrics{
		TotalTime:  time.Since(t.start),
		DNSLookup:  t.dnsAccum,
		TCPConnect: t.tcpAccum,
		TLSHandshake: t.tlsAccum,
	}
	if !t.ttfbStart.IsZero() && !t.ttfbEnd.IsZero() {
		m.TTFB = t.ttfbEnd.Sub(t.ttfbStart)
	}
	return m
}

// GetConnectionTime returns the total connection establishment time (DNS + TCP + TLS).
func (m Metrics) GetConnectionTime() time.Duration {
	return m.DNSLookup + m.TCPConnect + m.TLSHandshake
}

// String renders a human-readable summary.
func (m Metrics) String() string {
	return fmt.Sprintf("dns=%v tcp=%v tls=%v ttfb=%v total=%v",
		m.DNSLookup, m.TCPConnect, m.TLSHandshake, m.TTFB, m.TotalTime)
}
