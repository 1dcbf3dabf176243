// Package config parses the flat set of settings netpipefs needs: no
// multi-section file format is involved, just a handful of scalars
// resolved from command-line flags with sane defaults.
package config

import (
	"flag"
	"fmt"
	"time"
)

// Config is the fully resolved set of settings for one netpipefs
// instance: which local address to accept the peer link on, which
// remote address to dial, the local and advertised remote pipe
// capacities exchanged at handshake, and where to mount the resulting
// filesystem.
type Config struct {
	LocalHost  string
	LocalPort  int
	RemoteHost string
	RemotePort int

	PipeCapacity       int
	RemotePipeCapacity int

	HandshakeTimeout time.Duration
	MountPoint       string
}

const (
	defaultPipeCapacity = 64 * 1024
	defaultTimeout      = 30 * time.Second
)

// Parse resolves a Config from args (typically os.Args[1:]).
func Parse(args []string) (*Config, error) {
	fs := flag.NewFlagSet("netpipefs", flag.ContinueOnError)

	cfg := &Config{}
	fs.StringVar(&cfg.LocalHost, "local-host", "0.0.0.0", "address to accept the peer link on")
	fs.IntVar(&cfg.LocalPort, "local-port", 0, "port to accept the peer link on")
	fs.StringVar(&cfg.RemoteHost, "remote-host", "", "peer host to dial")
	fs.IntVar(&cfg.RemotePort, "remote-port", 0, "peer port to dial")
	fs.IntVar(&cfg.PipeCapacity, "pipe-capacity", defaultPipeCapacity, "local ring buffer capacity per pipe, in bytes")
	fs.IntVar(&cfg.RemotePipeCapacity, "remote-pipe-capacity", defaultPipeCapacity, "assumed peer pipe capacity, used to seed initial write credit until the handshake's capacity exchange learns the peer's real value")
	fs.DurationVar(&cfg.HandshakeTimeout, "handshake-timeout", defaultTimeout, "time to wait for the peer link to establish")
	fs.StringVar(&cfg.MountPoint, "mount", "", "directory to mount the pipe filesystem on")

	if err := fs.Parse(args); err != nil {
		return nil, err
	}

	if cfg.RemoteHost == "" {
		return nil, fmt.Errorf("config: -remote-host is required")
	}
	if cfg.LocalPort == 0 || cfg.RemotePort == 0 {
		return nil, fmt.Errorf("config: -local-port and -remote-port are required")
	}
	if cfg.MountPoint == "" {
		return nil, fmt.Errorf("config: -mount is required")
	}
	if cfg.PipeCapacity <= 0 {
		return nil, fmt.Errorf("config: -pipe-capacity must be positive")
	}
	if cfg.RemotePipeCapacity <= 0 {
		return nil, fmt.Errorf("config: -remote-pipe-capacity must be positive")
	}

	return cfg, nil
}
