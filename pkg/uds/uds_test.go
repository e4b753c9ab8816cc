package uds

import (
	"bytes"
	"net"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/vedarsh/kachow/pkg/exception"
)

func TestDialEmptyPath(t *testing.T) {
	if _, err := Dial(""); err != exception.ErrEmptyPathUDS {
		t.Fatalf("expected ErrEmptyPathUDS, got %v", err)
	}
}

func TestListenEmptyPath(t *testing.T) {
	if _, err := Listen(""); err != exception.ErrEmptyPathUDS {
		t.Fatalf("expected ErrEmptyPathUDS, got %v", err)
	}
}

func TestListenRejectsNonSocketPath(t *testing.T) {
	path := filepath.Join(t.TempDir(), "not-socket")
	if err := os.WriteFile(path, []byte("data"), 0o600); err != nil {
		t.Fatalf("write file: %v", err)
	}
	if _, err := Listen(path); err != exception.ErrNotSocketUDS {
		t.Fatalf("expected ErrNotSocketUDS, got %v", err)
	}
}

func TestListenReplacesStaleSocket(t *testing.T) {
	path := filepath.Join(t.TempDir(), "bridge.sock")

	first, err := Listen(path)
	if err != nil {
		t.Fatalf("Listen: %v", err)
	}
	// Simulate a crash: the file outlives the listener.
	first.ln.SetUnlinkOnClose(false)
	first.Close()

	second, err := Listen(path)
	if err != nil {
		t.Fatalf("Listen over stale socket: %v", err)
	}
	second.Close()
}

func TestDialAcceptFrames(t *testing.T) {
	path := filepath.Join(t.TempDir(), "bridge.sock")

	ln, err := Listen(path)
	if err != nil {
		t.Fatalf("Listen: %v", err)
	}
	defer ln.Close()

	acceptCh := make(chan *net.UnixConn, 1)
	errCh := make(chan error, 1)
	go func() {
		conn, err := ln.Accept()
		if err != nil {
			errCh <- err
			return
		}
		acceptCh <- conn
	}()

	conn, err := Dial(path)
	if err != nil {
		t.Fatalf("Dial: %v", err)
	}
	defer conn.Close()

	var peer *net.UnixConn
	select {
	case peer = <-acceptCh:
	case err := <-errCh:
		t.Fatalf("Accept: %v", err)
	case <-time.After(2 * time.Second):
		t.Fatal("accept timeout")
	}
	defer peer.Close()

	payloads := [][]byte{
		[]byte("tick one"),
		nil,
		bytes.Repeat([]byte{0xAB}, 1024),
	}
	go func() {
		for _, p := range payloads {
			if err := WriteFrame(conn, p); err != nil {
				errCh <- err
				return
			}
		}
	}()

	buf := make([]byte, 2048)
	for i, want := range payloads {
		n, err := ReadFrame(peer, buf)
		if err != nil {
			t.Fatalf("ReadFrame %d: %v", i, err)
		}
		if !bytes.Equal(buf[:n], want) {
			t.Fatalf("frame %d: got %d bytes, want %d", i, n, len(want))
		}
	}
}

func TestReadFrameRejectsOversize(t *testing.T) {
	var stream bytes.Buffer
	if err := WriteFrame(&stream, bytes.Repeat([]byte{1}, 64)); err != nil {
		t.Fatalf("WriteFrame: %v", err)
	}
	if _, err := ReadFrame(&stream, make([]byte, 16)); err != exception.ErrFrameTooLarge {
		t.Fatalf("expected ErrFrameTooLarge, got %v", err)
	}
}
