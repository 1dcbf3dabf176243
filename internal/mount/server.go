package mount

import (
	"context"
	"net"

	"github.com/netpipefs/netpipefs/internal/logging"
	"github.com/willscott/go-nfs"
	"github.com/willscott/go-nfs/helpers"
)

// Serve accepts NFS mount traffic on listener and serves fs until ctx is
// canceled or the listener fails. Authentication is null: the mount is
// meant to be loopback-only, reachable solely by the local kernel client
// that mounts it.
func Serve(ctx context.Context, listener net.Listener, fs *PipeFS) error {
	handler := helpers.NewNullAuthHandler(fs)
	cacheHandler := helpers.NewCachingHandler(handler, 1024)

	done := make(chan error, 1)
	go func() {
		done <- nfs.Serve(listener, cacheHandler)
	}()

	select {
	case <-ctx.Done():
		listener.Close()
		<-done
		return nil
	case err := <-done:
		if ctx.Err() != nil {
			return nil
		}
		logging.L.Error(err).WithMessage("nfs server exited").Write()
		return err
	}
}
