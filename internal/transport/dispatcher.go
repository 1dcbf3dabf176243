// Package transport owns the dispatcher (the single thread that decodes
// frames off the wire and drives the pipe engine) and the handshake that
// establishes the one bidirectional link between the two symmetric
// peers.
package transport

import (
	"io"
	"time"

	"github.com/netpipefs/netpipefs/internal/logging"
	"github.com/netpipefs/netpipefs/internal/pipe"
	"github.com/netpipefs/netpipefs/internal/registry"
	"github.com/netpipefs/netpipefs/internal/wire"
	"golang.org/x/time/rate"
)

// Dispatcher is the single-threaded receive-side owner of one
// Transport. It never waits on a pipe's condition variables and takes no
// lock while reading frames; it only ever takes a pipe's mutex, one at a
// time, after decoding a frame.
type Dispatcher struct {
	tr             *wire.Transport
	reg            *pipe.Registry
	localCapacity  int
	remoteCapacity int

	// unknownPathLog rate-limits the "data frame for unknown path"
	// warning: a peer that keeps writing to a path this side has
	// already closed can otherwise produce one warning per frame.
	unknownPathLog *rate.Limiter
}

// NewDispatcher builds a dispatcher over tr, dispatching decoded frames
// against reg. localCapacity sizes any pipe the dispatcher itself has to
// create (on a peer OPEN for a path this side hasn't opened yet);
// remoteCapacity seeds that same pipe's initial write credit, learned
// from the peer at handshake via ExchangeCapacities.
func NewDispatcher(tr *wire.Transport, reg *pipe.Registry, localCapacity, remoteCapacity int) *Dispatcher {
	return &Dispatcher{
		tr:             tr,
		reg:            reg,
		localCapacity:  localCapacity,
		remoteCapacity: remoteCapacity,
		unknownPathLog: rate.NewLimiter(rate.Every(time.Second), 1),
	}
}

// Run reads frames until the transport fails or returns EOF, at which
// point it force-exits every pipe in the registry (global teardown) and
// returns the error that ended the loop (nil for a clean io.EOF).
func (d *Dispatcher) Run() error {
	for {
		frame, err := d.tr.Recv()
		if err != nil {
			d.reg.ForceExitAll(func(p *pipe.Pipe) { p.ForceExit() })
			if err == io.EOF {
				return nil
			}
			return err
		}
		d.dispatch(frame)
	}
}

func (d *Dispatcher) dispatch(f wire.Frame) {
	switch f.Kind {
	case wire.KindOpen:
		pipe.OpenUpdate(d.reg, f.Path, f.Mode, d.localCapacity, d.remoteCapacity, d.tr)

	case wire.KindClose:
		if p, ok := d.reg.Get(f.Path); ok {
			pipe.CloseUpdate(d.reg, p, f.Mode)
		}

	case wire.KindWrite, wire.KindFlush:
		if p, ok := d.reg.Get(f.Path); ok {
			p.Recv(f.Data)
		} else if d.unknownPathLog.Allow() {
			logging.L.Warn().WithMessage("data frame for unknown path").
				WithField("path", f.Path).
				WithField("id", registry.ShortID(f.Path)).Write()
		}

	case wire.KindRead:
		if p, ok := d.reg.Get(f.Path); ok {
			p.ReadUpdate(f.Len)
		}

	case wire.KindReadRequest:
		if p, ok := d.reg.Get(f.Path); ok {
			p.ReadRequest(f.Len)
		}
	}
}
