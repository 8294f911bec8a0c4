package pool

import (
	"context"
	"net"
	"strconv"
	"testing"
	"time"

	"github.com/brindle-io/httpcore/pkg/endpoint"
)

// testListener starts a TCP listener that accepts and holds every
// connection open (no protocol behavior needed, AcquireBlocking only
// needs a successful dial), returning the endpoint to acquire through.
func testListener(t *testing.T) *endpoint.Endpoint {
	t.Helper()
	ln, err := net.Listen("tcp", "127.0.0.1:0")
	if err != nil {
		t.Fatalf("listen: %v", err)
	}
	t.Cleanup(func() { ln.Close() })

	go func() {
		for {
			conn, err := ln.Accept()
			if err != nil {
				return
			}
			_ = conn // held open for the test's duration
		}
	}()

	host, portStr, _ := net.SplitHostPort(ln.Addr().String())
	port, _ := strconv.Atoi(portStr)
	return &endpoint.Endpoint{Host: "test", Address: host, Port: uint16(port)}
}

func TestAcquireBlockingDialsUpToPerEndpointCap(t *testing.T) {
	ep := testListener(t)
	p := New(Config{MaxTotal: 10, MaxPerEndpoint: 2, MaxWait: 200 * time.Millisecond, PollInterval: 10 * time.Millisecond})
	defer p.Close()

	ctx := context.Background()
	s1, err := p.AcquireBlocking(ctx, ep)
	if err != nil {
		t.Fatalf("first acquire: %v", err)
	}
	s2, err := p.AcquireBlocking(ctx, ep)
	if err != nil {
		t.Fatalf("second acquire: %v", err)
	}
	if s1 == s2 {
		t.Fatalf("expected two distinct sockets")
	}

	if _, err := p.AcquireBlocking(ctx, ep); err == nil {
		t.Fatalf("expected the third acquire to time out against MaxPerEndpoint=2")
	}
}

func TestReleaseAllowsReacquisition(t *testing.T) {
	ep := testListener(t)
	p := New(Config{MaxTotal: 10, MaxPerEndpoint: 1, MaxWait: 500 * time.Millisecond, PollInterval: 10 * time.Millisecond})
	defer p.Close()

	ctx := context.Background()
	s1, err := p.AcquireBlocking(ctx, ep)
	if err != nil {
		t.Fatalf("acquire: %v", err)
	}
	s1.Release()

	s2, err := p.AcquireBlocking(ctx, ep)
	if err != nil {
		t.Fatalf("reacquire after release: %v", err)
	}
	if s1 != s2 {
		t.Fatalf("expected the released socket to be handed back out")
	}
}

func TestStatsReportsIdleAndInUse(t *testing.T) {
	ep := testListener(t)
	p := New(Config{MaxTotal: 10, MaxPerEndpoint: 4, MaxWait: 500 * time.Millisecond, PollInterval: 10 * time.Millisecond})
	defer p.Close()

	ctx := context.Background()
	s1, _ := p.AcquireBlocking(ctx, ep)
	s2, _ := p.AcquireBlocking(ctx, ep)
	s2.Release()
	_ = s1

	stats := p.Stats()
	hs := stats.ByHost[ep.Key()]
	if hs.InUse != 1 || hs.Idle != 1 {
		t.Fatalf("expected 1 in-use and 1 idle, got %+v", hs)
	}
	if stats.Total != 2 {
		t.Fatalf("expected total 2, got %d", stats.Total)
	}
}

func TestCleanupRemovesClosedSockets(t *testing.T) {
	ep := testListener(t)
	p := New(Config{MaxTotal: 10, MaxPerEndpoint: 4, MaxWait: 500 * time.Millisecond, PollInterval: 10 * time.Millisecond})
	defer p.Close()

	ctx := context.Background()
	s1, err := p.AcquireBlocking(ctx, ep)
	if err != nil {
		t.Fatalf("acquire: %v", err)
	}
	s1.Close()
	p.Cleanup()

	stats := p.Stats()
	if stats.Total != 0 {
		t.Fatalf("expected closed socket to be purged, total=%d", stats.Total)
	}
}

func TestAcquireBlockingRespectsMaxTotalAcrossEndpoints(t *testing.T) {
	epA := testListener(t)
	epB := testListener(t)
	p := New(Config{MaxTotal: 1, MaxPerEndpoint: 4, MaxWait: 200 * time.Millisecond, PollInterval: 10 * time.Millisecond})
	defer p.Close()

	ctx := context.Background()
	if _, err := p.AcquireBlocking(ctx, epA); err != nil {
		t.Fatalf("acquire epA: %v", err)
	}
	if _, err := p.AcquireBlocking(ctx, epB); err == nil {
		t.Fatalf("expected epB acquire to time out against global MaxTotal=1")
	}
}
