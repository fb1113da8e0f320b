package transport

import (
	"bufio"
	"context"
	"errors"
	"io"
	"net"
	"strings"

	"github.com/cjeanneret/skytrack/internal/debug"
)

// maxLineBytes bounds a single protocol line.
const maxLineBytes = 4096

// ReadLines scans r and forwards trimmed, non-empty lines to out until
// EOF, a read error or ctx is done.
func ReadLines(ctx context.Context, r io.Reader, out chan<- string) error {
	sc := bufio.NewScanner(r)
	sc.Buffer(make([]byte, 0, 256), maxLineBytes)
	for sc.Scan() {
		line := strings.TrimSpace(sc.Text())
		if line == "" {
			continue
		}
		debug.Command("rx", line)
		select {
		case out <- line:
		case <-ctx.Done():
			return ctx.Err()
		}
	}
	return sc.Err()
}

// ServeTCP accepts one connection at a time on ln and feeds its lines to
// out. It returns when ctx is done or the listener fails.
func ServeTCP(ctx context.Context, ln net.Listener, out chan<- string) error {
	go func() {
		<-ctx.Done()
		_ = ln.Close()
	}()
	for {
		conn, err := ln.Accept()
		if err != nil {
			if ctx.Err() != nil {
				return nil
			}
			if errors.Is(err, net.ErrClosed) {
				return nil
			}
			return err
		}
		debug.Info("Host connected from %s", conn.RemoteAddr())
		stop := context.AfterFunc(ctx, func() { _ = conn.Close() })
		if err := ReadLines(ctx, conn, out); err != nil && ctx.Err() == nil {
			debug.Warn("Connection from %s ended: %v", conn.RemoteAddr(), err)
		}
		stop()
		_ = conn.Close()
		debug.Info("Host disconnected")
	}
}
