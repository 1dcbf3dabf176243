// Package mount exposes the pipe engine as a billy.Filesystem, served
// over NFS by willscott/go-nfs so the local kernel sees each pipe path
// as a mountable regular file: opening, reading, writing and closing a
// path under the mountpoint drives internal/pipe directly.
package mount

import (
	"os"
	"path"
	"sync"
	"syscall"
	"time"

	securejoin "github.com/cyphar/filepath-securejoin"
	"github.com/go-git/go-billy/v5"
	"github.com/netpipefs/netpipefs/internal/pipe"
	"github.com/netpipefs/netpipefs/internal/pipeerr"
	"github.com/netpipefs/netpipefs/internal/wire"
)

// PipeFS is the billy.Filesystem adapter over one pipe registry and
// transport. It has no directory structure of its own: every path is a
// flat, lazily-materialized pipe file, mode 0444 from getattr, with no
// persisted state, per the mount surface's readdir/getattr/truncate
// contract.
//
// The transport is swappable: the OS-level NFS mount and the go-nfs
// listener serving it outlive any single peer connection, so on
// reconnect the caller hands PipeFS a fresh transport rather than
// tearing the mount down. Pipes opened before a reconnect are already
// dead (the dispatcher force-exits the whole registry when its
// transport drops); only new opens observe the new transport.
type PipeFS struct {
	reg           *pipe.Registry
	localCapacity int

	mu             sync.RWMutex
	tr             *wire.Transport
	remoteCapacity int
}

var _ billy.Filesystem = (*PipeFS)(nil)

// New builds a PipeFS backed by reg and tr, sizing any pipe it creates
// to localCapacity bytes locally and remoteCapacity bytes of initial
// write credit against the peer (the operator's configured guess until
// the first handshake's capacity exchange replaces it via
// SetTransport).
func New(reg *pipe.Registry, tr *wire.Transport, localCapacity, remoteCapacity int) *PipeFS {
	return &PipeFS{reg: reg, tr: tr, localCapacity: localCapacity, remoteCapacity: remoteCapacity}
}

// SetTransport swaps the transport newly-opened pipes will bind to and
// the remote capacity they'll seed their write credit from, called by
// the entrypoint each time the peer link reconnects and re-learns the
// peer's buffer size via ExchangeCapacities.
func (fs *PipeFS) SetTransport(tr *wire.Transport, remoteCapacity int) {
	fs.mu.Lock()
	fs.tr = tr
	fs.remoteCapacity = remoteCapacity
	fs.mu.Unlock()
}

func (fs *PipeFS) transport() *wire.Transport {
	fs.mu.RLock()
	defer fs.mu.RUnlock()
	return fs.tr
}

func (fs *PipeFS) remoteCap() int {
	fs.mu.RLock()
	defer fs.mu.RUnlock()
	return fs.remoteCapacity
}

func (fs *PipeFS) Root() string { return "/" }

func (fs *PipeFS) Join(elem ...string) string { return path.Join(elem...) }

// sanitize resolves filename against the flat root, the way vssfs and
// agentfs resolve NFS-supplied names against their root directories,
// clamping any ".." component at the root (so "../../etc/passwd"
// becomes "/etc/passwd") rather than letting a client walk the
// registry's path key space outside the mount.
func sanitize(filename string) (string, error) {
	clean, err := securejoin.SecureJoin("/", filename)
	if err != nil {
		return "", pipeerr.Wrap("open", filename, pipeerr.ErrInval)
	}
	return clean, nil
}

// Create opens filename write-only, per the mount surface: a create on
// a pipe path is indistinguishable from opening it for writing.
func (fs *PipeFS) Create(filename string) (billy.File, error) {
	return fs.OpenFile(filename, os.O_WRONLY|os.O_CREATE, 0444)
}

func (fs *PipeFS) Open(filename string) (billy.File, error) {
	return fs.OpenFile(filename, os.O_RDONLY, 0444)
}

// OpenFile implements the open() upcall: O_RDWR is rejected with
// EINVAL, everything else maps to a read-mode or write-mode pipe Open.
// O_NONBLOCK on flag threads through to the engine's nonblock argument.
func (fs *PipeFS) OpenFile(filename string, flag int, _ os.FileMode) (billy.File, error) {
	accessMode := flag & (os.O_WRONLY | os.O_RDWR)
	if accessMode == os.O_RDWR {
		return nil, pipeerr.Wrap("open", filename, pipeerr.ErrInval)
	}

	clean, err := sanitize(filename)
	if err != nil {
		return nil, err
	}

	tr := fs.transport()
	if tr == nil {
		return nil, pipeerr.Wrap("open", filename, pipeerr.ErrAgain)
	}

	mode := wire.ModeRead
	if accessMode == os.O_WRONLY {
		mode = wire.ModeWrite
	}
	nonblock := flag&syscall.O_NONBLOCK != 0

	p, err := pipe.Open(fs.reg, clean, mode, nonblock, fs.localCapacity, fs.remoteCap(), tr)
	if err != nil {
		return nil, err
	}
	return newPipeFile(fs.reg, p, clean, mode), nil
}

func (fs *PipeFS) Stat(filename string) (os.FileInfo, error) {
	clean, err := sanitize(filename)
	if err != nil {
		return nil, err
	}
	return fileInfo{name: path.Base(clean)}, nil
}

func (fs *PipeFS) Lstat(filename string) (os.FileInfo, error) {
	return fs.Stat(filename)
}

// ReadDir always reports an empty directory: the mount surface lists
// only "." and ".." (added by the NFS layer itself), never the set of
// currently-open pipe paths.
func (fs *PipeFS) ReadDir(string) ([]os.FileInfo, error) {
	return nil, nil
}

func (fs *PipeFS) Rename(string, string) error {
	return pipeerr.Wrap("rename", "", pipeerr.ErrInval)
}

func (fs *PipeFS) Remove(string) error {
	return pipeerr.Wrap("remove", "", pipeerr.ErrInval)
}

func (fs *PipeFS) MkdirAll(string, os.FileMode) error {
	return pipeerr.Wrap("mkdir", "", pipeerr.ErrInval)
}

func (fs *PipeFS) TempFile(string, string) (billy.File, error) {
	return nil, pipeerr.Wrap("tempfile", "", pipeerr.ErrInval)
}

func (fs *PipeFS) Symlink(string, string) error {
	return pipeerr.Wrap("symlink", "", pipeerr.ErrInval)
}

func (fs *PipeFS) Readlink(string) (string, error) {
	return "", pipeerr.Wrap("readlink", "", pipeerr.ErrInval)
}

func (fs *PipeFS) Chroot(p string) (billy.Filesystem, error) {
	return fs, nil
}

func (fs *PipeFS) Capabilities() billy.Capability {
	return billy.DefaultCapabilities &^ (billy.SeekCapability | billy.ReadAndWriteCapability)
}

// fileInfo is the synthetic os.FileInfo for every pipe path: mode 0444,
// zero size, not a directory. Size is always reported as zero since a
// pipe has no fixed length.
type fileInfo struct {
	name string
}

func (fi fileInfo) Name() string       { return fi.name }
func (fi fileInfo) Size() int64        { return 0 }
func (fi fileInfo) Mode() os.FileMode  { return 0444 }
func (fi fileInfo) ModTime() time.Time { return time.Time{} }
func (fi fileInfo) IsDir() bool        { return false }
func (fi fileInfo) Sys() any           { return nil }
