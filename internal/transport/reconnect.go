package transport

import (
	"context"
	"net"
	"time"

	"github.com/netpipefs/netpipefs/internal/logging"
	"github.com/netpipefs/netpipefs/internal/utils"
)

// Link owns the current connection to the peer and re-establishes it,
// with exponential backoff between attempts, whenever it drops. Callers
// receive each live connection through the run callback passed to Run
// and are notified of each new one through onReconnect.
type Link struct {
	local, remote Endpoint
	timeout       time.Duration
	onReconnect   func(net.Conn)

	backoff *utils.ExponentialBackoff
}

// NewLink builds a Link that will dial/listen between local and remote,
// invoking onReconnect with each freshly established connection
// (including the first).
func NewLink(local, remote Endpoint, timeout time.Duration, onReconnect func(net.Conn)) *Link {
	return &Link{
		local:       local,
		remote:      remote,
		timeout:     timeout,
		onReconnect: onReconnect,
		backoff:     utils.NewExponentialBackoff(500*time.Millisecond, 30*time.Second),
	}
}

// Run establishes the link and blocks until ctx is canceled, reconnecting
// with backoff every time run reports the connection died. run is called
// once per established connection and should return when that connection
// is no longer usable (e.g. the dispatcher's Run returned).
func (l *Link) Run(ctx context.Context, run func(net.Conn) error) error {
	for {
		conn, err := Establish(ctx, l.local, l.remote, l.timeout)
		if err != nil {
			if ctx.Err() != nil {
				return ctx.Err()
			}
			wait := l.backoff.NextBackOff()
			logging.L.Warn().WithMessage("handshake failed, retrying").
				WithField("wait", wait.String()).Write()
			select {
			case <-ctx.Done():
				return ctx.Err()
			case <-time.After(wait):
			}
			continue
		}

		l.backoff.Reset()
		if l.onReconnect != nil {
			l.onReconnect(conn)
		}

		err = run(conn)
		conn.Close()

		if ctx.Err() != nil {
			return ctx.Err()
		}
		if err != nil {
			logging.L.Error(err).WithMessage("link dropped, reconnecting").Write()
		} else {
			logging.L.Warn().WithMessage("link closed by peer, reconnecting").Write()
		}
	}
}
