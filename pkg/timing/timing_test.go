package timing

import (
	"testing"
	"time"
)

func TestTimerAccumulatesAcrossMultipleMarks(t *testing.T) {
	tm := NewTimer()

	tm.StartTCP()
	time.Sleep(2 * time.Millisecond)
	tm.EndTCP()

	tm.StartTCP()
	time.Sleep(2 * time.Millisecond)
	tm.EndTCP()

	m := tm.GetMetrics()
	if m.TCPConnect < 4*time.Millisecond {
		t.Fatalf("expected TCPConnect to accumulate across both marks, got %v", m.TCPConnect)
	}
}

func TestTimerTTFBOnlyKeepsLatestHop(t *testing.T) {
	tm := NewTimer()

	tm.StartTTFB()
	time.Sleep(5 * time.Millisecond)
	tm.EndTTFB()

	tm.StartTTFB()
	time.Sleep(time.Millisecond)
	tm.EndTTFB()

	m := tm.GetMetrics()
	if m.TTFB >= 5*time.Millisecond {
		t.Fatalf("expected TTFB to reflect only the latest hop, got %v", m.TTFB)
	}
}

func TestAddTCPAndAddTLSAccumulateAcrossHops(t *testing.T) {
	tm := NewTimer()
	tm.AddTCP(3 * time.Millisecond)
	tm.AddTCP(2 * time.Millisecond)
	tm.AddTLS(5 * time.Millisecond)

	m := tm.GetMetrics()
	if m.TCPConnect != 5*time.Millisecond {
		t.Fatalf("expected accumulated TCPConnect of 5ms, got %v", m.TCPConnect)
	}
	if m.TLSHandshake != 5*time.Millisecond {
		t.Fatalf("expected TLSHandshake of 5ms, got %v", m.TLSHandshake)
	}
}

func TestGetConnectionTimeSumsPhases(t *testing.T) {
	m := Metrics{DNSLookup: time.Millisecond, TCPConnect: 2 * time.Millisecond, TLSHandshake: 3 * time.Millisecond}
	if got := m.GetConnectionTime(); got != 6*time.Millisecond {
		t.Fatalf("expected 6ms, got %v", got)
	}
}
