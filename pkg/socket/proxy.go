package socket

import (
	"bufio"
	"context"
	"net"
	"time"

	"github.com/brindle-io/httpcore/pkg/endpoint"
)

// WrapProxied adapts an already-established net.Conn (e.g. a CONNECT
// tunnel or a SOCKS dial) into a Socket, performing the TLS handshake over
// it when useTLS is set. Used by pool.dialViaProxy once the upstream proxy
// handshake has produced a connection to the origin.
func WrapProxied(conn net.Conn, ep *endpoint.Endpoint, useTLS bool, handshakeTimeout time.Duration, tlsCfg *TLSConfig) (*Socket, error) {
	var err error
	var tlsDur time.Duration
	if useTLS {
		hsStart := time.Now()
		conn, err = handshakeTLS(context.Background(), conn, ep, handshakeTimeout, tlsCfg)
		tlsDur = time.Since(hsStart)
		if err != nil {
			return nil, err
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
		tlsHandshake: tlsDur,
	}, nil
}
