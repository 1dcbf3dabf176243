package config

import (
	"testing"

	"github.com/stretchr/testify/require"
)

func TestParseRequiresRemoteHost(t *testing.T) {
	_, err := Parse([]string{"-local-port", "9000", "-remote-port", "9001", "-mount", "/mnt/x"})
	require.Error(t, err)
}

func TestParseRequiresPorts(t *testing.T) {
	_, err := Parse([]string{"-remote-host", "peer", "-mount", "/mnt/x"})
	require.Error(t, err)
}

func TestParseRequiresMountPoint(t *testing.T) {
	_, err := Parse([]string{"-remote-host", "peer", "-local-port", "9000", "-remote-port", "9001"})
	require.Error(t, err)
}

func TestParseDefaults(t *testing.T) {
	cfg, err := Parse([]string{
		"-remote-host", "peer.example",
		"-local-port", "9000",
		"-remote-port", "9001",
		"-mount", "/mnt/netpipefs",
	})
	require.NoError(t, err)
	require.Equal(t, "peer.example", cfg.RemoteHost)
	require.Equal(t, 9000, cfg.LocalPort)
	require.Equal(t, 9001, cfg.RemotePort)
	require.Equal(t, "/mnt/netpipefs", cfg.MountPoint)
	require.Equal(t, defaultPipeCapacity, cfg.PipeCapacity)
	require.Equal(t, defaultPipeCapacity, cfg.RemotePipeCapacity)
	require.Equal(t, defaultTimeout, cfg.HandshakeTimeout)
}

func TestParseRejectsNonPositiveCapacity(t *testing.T) {
	_, err := Parse([]string{
		"-remote-host", "peer",
		"-local-port", "9000",
		"-remote-port", "9001",
		"-mount", "/mnt/x",
		"-pipe-capacity", "0",
	})
	require.Error(t, err)
}

func TestParseRejectsNonPositiveRemoteCapacity(t *testing.T) {
	_, err := Parse([]string{
		"-remote-host", "peer",
		"-local-port", "9000",
		"-remote-port", "9001",
		"-mount", "/mnt/x",
		"-remote-pipe-capacity", "-1",
	})
	require.Error(t, err)
}

func TestParseOverridesRemoteCapacity(t *testing.T) {
	cfg, err := Parse([]string{
		"-remote-host", "peer.example",
		"-local-port", "9000",
		"-remote-port", "9001",
		"-mount", "/mnt/netpipefs",
		"-remote-pipe-capacity", "8192",
	})
	require.NoError(t, err)
	require.Equal(t, 8192, cfg.RemotePipeCapacity)
}
