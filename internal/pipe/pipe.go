// Package pipe implements the local inter-process transport between Edge
// and Forge: a Unix-domain socket with a "one well-known name, one writer,
// many listeners" contract. The Edge owns exactly one client connection at
// a time, and the Forge runs N independent accept loops, each owning its
// own accepted connection.
package pipe

import (
	"context"
	"errors"
	"net"
	"os"
	"time"
)

// DefaultName is the pipe's well-known name.
const DefaultName = "SmartPiXL-Enrichment"

var ErrConnectTimeout = errors.New("pipe connect timeout")

// Dial opens a client connection to the named pipe at path within timeout.
// The caller is the exclusive owner of the returned connection.
func Dial(ctx context.Context, path string, timeout time.Duration) (net.Conn, error) {
	dctx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()
	var d net.Dialer
	conn, err := d.DialContext(dctx, "unix", path)
	if err != nil {
		if dctx.Err() != nil {
			return nil, ErrConnectTimeout
		}
		return nil, err
	}
	return conn, nil
}

// Listen creates (or replaces) the listening socket at path. Existing
// stale sockets from a prior crashed process are removed first.
func Listen(path string) (net.Listener, error) {
	_ = os.Remove(path)
	return net.Listen("unix", path)
}
