// Package transport carries protocol lines between host and device.
package transport

import (
	"context"
	"fmt"
	"io"
	"net"
	"sync"
	"time"

	"github.com/cjeanneret/skytrack/internal/debug"
	"github.com/cjeanneret/skytrack/internal/protocol"
)

// Link is the host's outbound command channel. No acknowledgement is expected.
type Link interface {
	Send(c protocol.Command) error
	Close() error
}

// LineLink writes newline-terminated commands to a stream. Sends are
// serialised so lines never interleave.
type LineLink struct {
	mu     sync.Mutex
	w      io.Writer
	closer io.Closer
}

// NewLineLink wraps w. w is not closed by Close; use DialTCP for owned
// connections.
func NewLineLink(w io.Writer) *LineLink {
	return &LineLink{w: w}
}

// DialTCP connects to a serial bridge listening on addr.
func DialTCP(ctx context.Context, addr string, timeout time.Duration) (*LineLink, error) {
	d := net.Dialer{Timeout: timeout}
	conn, err := d.DialContext(ctx, "tcp", addr)
	if err != nil {
		return nil, fmt.Errorf("dial %s: %w", addr, err)
	}
	debug.Info("Command link connected to %s", addr)
	return &LineLink{w: conn, closer: conn}, nil
}

func (l *LineLink) Send(c protocol.Command) error {
	l.mu.Lock()
	defer l.mu.Unlock()
	if _, err := io.WriteString(l.w, c.Line()); err != nil {
		return fmt.Errorf("send %s: %w", c.Kind, err)
	}
	debug.Command("tx", c.String())
	return nil
}

func (l *LineLink) Close() error {
	l.mu.Lock()
	defer l.mu.Unlock()
	if l.closer == nil {
		return nil
	}
	err := l.closer.Close()
	l.closer = nil
	return err
}
