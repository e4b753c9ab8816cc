// Package uds carries topic traffic over Unix domain sockets for the
// bridge processes that relay a shared-memory topic across namespaces.
// Frames are length-prefixed payload blobs; the ring's envelope
// convention passes through untouched.
package uds

import (
	"net"
	"os"

	"github.com/vedarsh/kachow/pkg/exception"
)

const unixNetwork = "unix"

// Dial opens a connection to the bridge socket at path.
func Dial(path string) (*net.UnixConn, error) {
	if path == "" {
		return nil, exception.ErrEmptyPathUDS
	}
	return net.DialUnix(unixNetwork, nil, &net.UnixAddr{Name: path, Net: unixNetwork})
}

// Listener owns the socket file for a serve-mode bridge. The file is
// unlinked when the listener closes.
type Listener struct {
	path string
	ln   *net.UnixListener
}

// Listen binds a listener at path. A stale socket file left by a
// crashed bridge is removed first; a non-socket file at the path is an
// error, never deleted.
func Listen(path string) (*Listener, error) {
	if path == "" {
		return nil, exception.ErrEmptyPathUDS
	}
	if err := removeStaleSocket(path); err != nil {
		return nil, err
	}
	ln, err := net.ListenUnix(unixNetwork, &net.UnixAddr{Name: path, Net: unixNetwork})
	if err != nil {
		return nil, err
	}
	ln.SetUnlinkOnClose(true)
	return &Listener{path: path, ln: ln}, nil
}

// Path returns the socket file path.
func (l *Listener) Path() string { return l.path }

// Accept waits for the next incoming connection.
func (l *Listener) Accept() (*net.UnixConn, error) {
	return l.ln.AcceptUnix()
}

// Close stops the listener and unlinks the socket file.
func (l *Listener) Close() error {
	return l.ln.Close()
}

func removeStaleSocket(path string) error {
	info, err := os.Lstat(path)
	if err != nil {
		if os.IsNotExist(err) {
			return nil
		}
		return err
	}
	if info.Mode()&os.ModeSocket == 0 {
		return exception.ErrNotSocketUDS
	}
	return os.Remove(path)
}
