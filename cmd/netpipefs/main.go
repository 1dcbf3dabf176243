package main

import (
	"context"
	"fmt"
	"net"
	"os"
	"os/signal"
	"sync"
	"syscall"

	"github.com/kardianos/service"

	"github.com/netpipefs/netpipefs/internal/config"
	"github.com/netpipefs/netpipefs/internal/logging"
	"github.com/netpipefs/netpipefs/internal/mount"
	"github.com/netpipefs/netpipefs/internal/pipe"
	"github.com/netpipefs/netpipefs/internal/transport"
	"github.com/netpipefs/netpipefs/internal/wire"
)

// netpipefsService owns the whole running mount: the peer link, the
// pipe registry, and the NFS server backing the OS mount. It implements
// kardianos/service.Interface so an operator can install/run it as a
// background service instead of a foreground process, in the shape of
// the corpus's agentService{ctx,cancel,wg}.
type netpipefsService struct {
	cfg  *config.Config
	lock *config.InstanceLock

	ctx    context.Context
	cancel context.CancelFunc
	wg     sync.WaitGroup
}

func (p *netpipefsService) Start(s service.Service) error {
	lock, err := config.AcquireInstanceLock(p.cfg.MountPoint)
	if err != nil {
		return err
	}
	p.lock = lock

	p.ctx, p.cancel = context.WithCancel(context.Background())
	p.wg.Add(1)
	go func() {
		defer p.wg.Done()
		p.run()
	}()
	return nil
}

func (p *netpipefsService) Stop(s service.Service) error {
	p.cancel()
	p.wg.Wait()
	mount.UnmountNFS(p.cfg.MountPoint)
	if p.lock != nil {
		_ = p.lock.Release()
	}
	return nil
}

// run drives the mount for the lifetime of the process: it starts the
// loopback NFS listener and the OS mount once, then repeatedly
// re-establishes the peer link, rebinding the mount's transport to each
// freshly established connection.
func (p *netpipefsService) run() {
	reg := pipe.NewRegistry()

	fs := mount.New(reg, nil, p.cfg.PipeCapacity, p.cfg.RemotePipeCapacity)

	nfsListener, err := net.Listen("tcp", "127.0.0.1:0")
	if err != nil {
		logging.L.Error(err).WithMessage("failed to open nfs listener").Write()
		return
	}
	nfsPort := nfsListener.Addr().(*net.TCPAddr).Port

	p.wg.Add(1)
	go func() {
		defer p.wg.Done()
		if err := mount.Serve(p.ctx, nfsListener, fs); err != nil {
			logging.L.Error(err).WithMessage("nfs server failed").Write()
			p.cancel()
		}
	}()

	if err := mount.MountNFS(nfsPort, p.cfg.MountPoint); err != nil {
		logging.L.Error(err).WithMessage("failed to mount").Write()
		p.cancel()
		return
	}
	logging.L.Info().WithMessage("mounted").WithField("mountpoint", p.cfg.MountPoint).WithField("nfs_port", nfsPort).Write()

	watcher, err := config.WatchMountPoint(p.cfg.MountPoint, func() {
		logging.L.Warn().WithMessage("mountpoint changed under a live mount").WithField("mountpoint", p.cfg.MountPoint).Write()
	})
	if err != nil {
		logging.L.Warn().WithMessage("failed to watch mountpoint").WithField("error", err.Error()).Write()
	} else {
		defer watcher.Close()
	}

	local := transport.Endpoint{Host: p.cfg.LocalHost, Port: p.cfg.LocalPort}
	remote := transport.Endpoint{Host: p.cfg.RemoteHost, Port: p.cfg.RemotePort}

	// remoteCapacity starts at the operator's configured guess and is
	// replaced by whatever the peer actually advertises the moment each
	// connection's capacity exchange completes; onReconnect and the
	// per-connection run callback below always run back-to-back on this
	// same goroutine for a given connection, so the plain variable needs
	// no lock.
	remoteCapacity := p.cfg.RemotePipeCapacity

	link := transport.NewLink(local, remote, p.cfg.HandshakeTimeout, func(conn net.Conn) {
		peerCapacity, err := transport.ExchangeCapacities(conn, uint32(p.cfg.PipeCapacity))
		if err != nil {
			logging.L.Warn().WithMessage("capacity exchange failed").WithField("error", err.Error()).Write()
			return
		}
		remoteCapacity = int(peerCapacity)
		logging.L.Info().WithMessage("link established").
			WithField("local", local.String()).
			WithField("remote", remote.String()).
			WithField("peer_capacity", peerCapacity).Write()
	})

	err = link.Run(p.ctx, func(conn net.Conn) error {
		tr := wire.NewTransport(conn)
		fs.SetTransport(tr, remoteCapacity)
		disp := transport.NewDispatcher(tr, reg, p.cfg.PipeCapacity, remoteCapacity)
		return disp.Run()
	})
	if err != nil && p.ctx.Err() == nil {
		logging.L.Error(err).WithMessage("link terminated").Write()
	}
}

func main() {
	svcConfig := &service.Config{
		Name:        "netpipefs",
		DisplayName: "netpipefs",
		Description: "mounts a directory of named pipes bridged to a remote peer over TCP",
		Arguments:   os.Args[1:],
	}

	// install/uninstall/start/stop/restart only need svcConfig, not a
	// fully validated Config: an operator running `netpipefs install
	// -remote-host peer ...` still passes flags (kardianos/service
	// re-invokes the binary with Arguments on start), but `netpipefs
	// stop` and friends take no flags at all, so this dispatch has to
	// happen before config.Parse's required-flag checks would reject
	// them outright.
	if len(os.Args) > 1 {
		switch cmd := os.Args[1]; cmd {
		case "install", "uninstall", "start", "stop", "restart":
			s, err := service.New(&netpipefsService{}, svcConfig)
			if err != nil {
				logging.L.Error(err).WithMessage("failed to initialize service").Write()
				os.Exit(1)
			}
			if err := service.Control(s, cmd); err != nil {
				logging.L.Error(err).WithMessage("service control failed").WithField("command", cmd).Write()
				os.Exit(1)
			}
			return
		}
	}

	cfg, err := config.Parse(os.Args[1:])
	if err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(2)
	}

	prg := &netpipefsService{cfg: cfg}
	s, err := service.New(prg, svcConfig)
	if err != nil {
		logging.L.Error(err).WithMessage("failed to initialize service").Write()
		os.Exit(1)
	}

	if !service.Interactive() {
		logging.L.UseSyslog("netpipefs")
		if err := s.Run(); err != nil {
			logging.L.Error(err).WithMessage("service run failed").Write()
			os.Exit(1)
		}
		return
	}

	if err := prg.Start(s); err != nil {
		logging.L.Error(err).WithMessage("failed to start").Write()
		os.Exit(1)
	}
	waitForSignal()
	if err := prg.Stop(s); err != nil {
		logging.L.Error(err).WithMessage("failed to stop cleanly").Write()
		os.Exit(1)
	}
}

func waitForSignal() {
	sig := make(chan os.Signal, 1)
	signal.Notify(sig, os.Interrupt, syscall.SIGTERM)
	<-sig
}
