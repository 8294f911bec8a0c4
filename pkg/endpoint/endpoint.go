// Package endpoint identifies a remote HTTP origin: a resolved address,
// port and TLS flag. Endpoints are immutable once constructed and are the
// key the connection pool multiplexes sockets on.
package endpoint

import (
	"context"
	"fmt"
	"net"
	"net/url"
	"strconv"
	"strings"

	"golang.org/x/net/idna"

	"github.com/brindle-io/httpcore/pkg/errors"
)

// Endpoint identifies a remote origin. Equality and hashing (Key) use the
// resolved address and port only, so "localhost" and "127.0.0.1" share a
// pool.
type Endpoint struct {
	Host    string // original hostname, punycode-normalized
	Address string // resolved IP address
	Port    uint16
	TLS     bool
}

// Resolver resolves hostnames to IP addresses. net.DefaultResolver
// satisfies this; tests can substitute a fake.
type Resolver interface {
	LookupIPAddr(ctx context.Context, host string) ([]net.IPAddr, error)
}

// FromURL builds an Endpoint from a URL string, inferring port 80/443 when
// absent and resolving DNS via resolver (net.DefaultResolver if nil).
// An address literal (IP) is used as-is without a DNS round trip.
func FromURL(ctx context.Context, rawURL string, resolver Resolver) (*Endpoint, error) {
	u, err := url.Parse(rawURL)
	if err != nil {
		return nil, errors.NewValidationError("invalid URL: " + err.Error())
	}
	if u.Host == "" {
		return nil, errors.NewValidationError("URL has no host: " + rawURL)
	}

	scheme := strings.ToLower(u.Scheme)
	if scheme == "" {
		scheme = "http"
	}
	useTLS := scheme == "https"

	host := u.Hostname()
	portStr := u.Port()
	var port int
	if portStr != "" {
		port, err = strconv.Atoi(portStr)
		if err != nil || port <= 0 || port > 65535 {
			return nil, errors.NewValidationError("invalid port in URL: " + portStr)
		}
	} else if useTLS {
		port = 443
	} else {
		port = 80
	}

	return Resolve(ctx, host, port, useTLS, resolver)
}

// Resolve builds an Endpoint for an explicit host/port/tls triple,
// performing DNS resolution (skipped for IP literals).
func Resolve(ctx context.Context, host string, port int, useTLS bool, resolver Resolver) (*Endpoint, error) {
	if host == "" {
		return nil, errors.NewValidationError("host cannot be empty")
	}
	if port <= 0 || port > 65535 {
		return nil, errors.NewValidationError("port must be between 1 and 65535")
	}

	normalizedHost := normalizeHost(host)

	if ip := net.ParseIP(normalizedHost); ip != nil {
		return &Endpoint{Host: normalizedHost, Address: ip.String(), Port: uint16(port), TLS: useTLS}, nil
	}

	if resolver == nil {
		resolver = net.DefaultResolver
	}

	addrs, err := resolver.LookupIPAddr(ctx, normalizedHost)
	if err != nil {
		return nil, errors.NewDNSError(normalizedHost, err)
	}
	if len(addrs) == 0 {
		return nil, errors.NewDNSError(normalizedHost, errors.NewValidationError("no IP addresses found"))
	}

	return &Endpoint{Host: normalizedHost, Address: addrs[0].IP.String(), Port: uint16(port), TLS: useTLS}, nil
}

// normalizeHost punycode-encodes internationalized hostnames so that DNS
// resolution and pool keys are consistent regardless of input form. Plain
// ASCII hostnames and IP literals pass through unchanged; a hostname idna
// rejects (e.g. already punycode, or containing characters idna.Lookup
// disallows) is used verbatim rather than failing construction.
func normalizeHost(host string) string {
	ascii, err := idna.Lookup.ToASCII(host)
	if err != nil {
		return host
	}
	return ascii
}

// Key returns the pool key for this endpoint: resolved address + port.
func (e *Endpoint) Key() string {
	return net.JoinHostPort(e.Address, strconv.Itoa(int(e.Port)))
}

// DialAddr returns the "address:port" string suitable for net.Dial.
func (e *Endpoint) DialAddr() string {
	return net.JoinHostPort(e.Address, strconv.Itoa(int(e.Port)))
}

// String renders a human-readable identifier.
func (e *Endpoint) String() string {
	scheme := "http"
	if e.TLS {
		scheme = "https"
	}
	return fmt.Sprintf("%s://%s (%s)", scheme, e.Host, e.Key())
}
