package transport

import (
	"context"
	"encoding/binary"
	"fmt"
	"io"
	"net"
	"strconv"
	"time"

	"github.com/netpipefs/netpipefs/internal/logging"
)

// hostcmp deterministically orders two (host, port) endpoints so both
// peers, racing a listen and a dial concurrently, agree on which side
// keeps its inbound connection and which drops its outbound attempt once
// both succeed. Neither peer needs to be designated "server" ahead of
// time.
func hostcmp(hostA string, portA int, hostB string, portB int) int {
	if hostA != hostB {
		if hostA < hostB {
			return -1
		}
		return 1
	}
	return portA - portB
}

// Endpoint identifies one side of the link.
type Endpoint struct {
	Host string
	Port int
}

func (e Endpoint) String() string {
	return net.JoinHostPort(e.Host, strconv.Itoa(e.Port))
}

// Establish opens the single bidirectional link to the peer: it listens
// on local and dials remote concurrently, on a retry interval, and keeps
// whichever connection direction hostcmp(local, remote) favors, closing
// the other. It is symmetric: both peers run the same algorithm and,
// absent a tie, agree on the same winner.
func Establish(ctx context.Context, local, remote Endpoint, timeout time.Duration) (net.Conn, error) {
	ctx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()

	ln, err := net.Listen("tcp", local.String())
	if err != nil {
		return nil, fmt.Errorf("transport: listen on %s: %w", local, err)
	}
	defer ln.Close()

	type result struct {
		conn net.Conn
		via  string
	}
	results := make(chan result, 2)

	go func() {
		conn, err := ln.Accept()
		if err == nil {
			results <- result{conn: conn, via: "accept"}
		}
	}()

	go func() {
		dialer := net.Dialer{}
		retry := time.NewTicker(200 * time.Millisecond)
		defer retry.Stop()
		for {
			conn, err := dialer.DialContext(ctx, "tcp", remote.String())
			if err == nil {
				results <- result{conn: conn, via: "dial"}
				return
			}
			select {
			case <-ctx.Done():
				return
			case <-retry.C:
			}
		}
	}()

	preferInbound := hostcmp(local.Host, local.Port, remote.Host, remote.Port) < 0

	select {
	case first := <-results:
		select {
		case second := <-results:
			return pickWinner(first, second, preferInbound)
		case <-time.After(50 * time.Millisecond):
			return first.conn, nil
		}
	case <-ctx.Done():
		return nil, fmt.Errorf("transport: handshake with %s timed out: %w", remote, ctx.Err())
	}
}

// ExchangeCapacities trades each side's local pipe capacity over conn
// right after the link is established, ahead of any wire.Transport
// framing: four bytes out, four bytes in, both little-endian uint32s.
// The caller uses the result to seed the initial write credit
// (remoteMax) of every pipe created on that connection; flow control
// after that stays credit-based via READ-REQUEST/READ frames per pipe.
func ExchangeCapacities(conn net.Conn, localCapacity uint32) (uint32, error) {
	var out [4]byte
	binary.LittleEndian.PutUint32(out[:], localCapacity)

	errc := make(chan error, 1)
	go func() {
		_, err := conn.Write(out[:])
		errc <- err
	}()

	var in [4]byte
	_, readErr := io.ReadFull(conn, in[:])
	writeErr := <-errc

	if writeErr != nil {
		return 0, fmt.Errorf("transport: capacity exchange write: %w", writeErr)
	}
	if readErr != nil {
		return 0, fmt.Errorf("transport: capacity exchange read: %w", readErr)
	}
	return binary.LittleEndian.Uint32(in[:]), nil
}

func pickWinner(a, b struct {
	conn net.Conn
	via  string
}, preferInbound bool) (net.Conn, error) {
	wantVia := "dial"
	if preferInbound {
		wantVia = "accept"
	}

	if a.via == wantVia {
		b.conn.Close()
		logging.L.Info().WithMessage("handshake resolved").WithField("via", a.via).Write()
		return a.conn, nil
	}
	a.conn.Close()
	logging.L.Info().WithMessage("handshake resolved").WithField("via", b.via).Write()
	return b.conn, nil
}
