package endpoint

import (
	"context"
	"net"
	"testing"
)

type fakeResolver struct {
	ips []net.IPAddr
	err error
}

func (f fakeResolver) LookupIPAddr(ctx context.Context, host string) ([]net.IPAddr, error) {
	return f.ips, f.err
}

func TestFromURLInfersDefaultPorts(t *testing.T) {
	r := fakeResolver{ips: []net.IPAddr{{IP: net.ParseIP("93.184.216.34")}}}

	ep, err := FromURL(context.Background(), "http://example.com/path", r)
	if err != nil {
		t.Fatalf("FromURL: %v", err)
	}
	if ep.Port != 80 || ep.TLS {
		t.Fatalf("expected plaintext port 80, got port=%d tls=%v", ep.Port, ep.TLS)
	}

	epTLS, err := FromURL(context.Background(), "https://example.com/path", r)
	if err != nil {
		t.Fatalf("FromURL: %v", err)
	}
	if epTLS.Port != 443 || !epTLS.TLS {
		t.Fatalf("expected TLS port 443, got port=%d tls=%v", epTLS.Port, epTLS.TLS)
	}
}

func TestFromURLHonorsExplicitPort(t *testing.T) {
	r := fakeResolver{ips: []net.IPAddr{{IP: net.ParseIP("10.0.0.1")}}}
	ep, err := FromURL(context.Background(), "http://example.com:8080/", r)
	if err != nil {
		t.Fatalf("FromURL: %v", err)
	}
	if ep.Port != 8080 {
		t.Fatalf("expected port 8080, got %d", ep.Port)
	}
}

func TestFromURLRejectsMissingHost(t *testing.T) {
	if _, err := FromURL(context.Background(), "/just/a/path", fakeResolver{}); err == nil {
		t.Fatalf("expected an error for a URL with no host")
	}
}

func TestResolveSkipsDNSForIPLiteral(t *testing.T) {
	ep, err := Resolve(context.Background(), "127.0.0.1", 9000, false, fakeResolver{err: context.DeadlineExceeded})
	if err != nil {
		t.Fatalf("Resolve: %v", err)
	}
	if ep.Address != "127.0.0.1" {
		t.Fatalf("expected IP literal to pass through, got %q", ep.Address)
	}
}

func TestResolveSurfacesDNSFailure(t *testing.T) {
	_, err := Resolve(context.Background(), "nonexistent.invalid", 80, false, fakeResolver{err: net.UnknownNetworkError("boom")})
	if err == nil {
		t.Fatalf("expected a DNS error")
	}
}

func TestKeyUsesResolvedAddressNotHostname(t *testing.T) {
	a := &Endpoint{Host: "localhost", Address: "127.0.0.1", Port: 80}
	b := &Endpoint{Host: "loopback.example", Address: "127.0.0.1", Port: 80}
	if a.Key() != b.Key() {
		t.Fatalf("expected endpoints resolving to the same address:port to share a pool key")
	}
}
