package transport

import (
	"bytes"
	"context"
	"errors"
	"net"
	"strings"
	"sync"
	"testing"
	"time"

	mqtt "github.com/eclipse/paho.mqtt.golang"

	"github.com/cjeanneret/skytrack/internal/protocol"
)

// ---------- LineLink ----------

func TestLineLink_WritesTerminatedLines(t *testing.T) {
	var buf bytes.Buffer
	l := NewLineLink(&buf)
	for _, c := range []protocol.Command{protocol.Simple(protocol.KindPrep), protocol.Step(3, -4), protocol.Simple(protocol.KindFRight)} {
		if err := l.Send(c); err != nil {
			t.Fatalf("Send: %v", err)
		}
	}
	if got, want := buf.String(), "PREP\nSTEP 3 -4\nFRIGHT\n"; got != want {
		t.Errorf("written = %q, want %q", got, want)
	}
	if err := l.Close(); err != nil {
		t.Errorf("Close on a borrowed writer: %v", err)
	}
}

type failingWriter struct{}

func (failingWriter) Write([]byte) (int, error) { return 0, errors.New("radio gone") }

func TestLineLink_SendError(t *testing.T) {
	l := NewLineLink(failingWriter{})
	if err := l.Send(protocol.Simple(protocol.KindFUp)); err == nil || !strings.Contains(err.Error(), "FUP") {
		t.Errorf("Send error = %v, want wrapped FUP error", err)
	}
}

func TestDialTCP_RoundTrip(t *testing.T) {
	ln, err := net.Listen("tcp", "127.0.0.1:0")
	if err != nil {
		t.Fatal(err)
	}
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	lines := make(chan string, 8)
	done := make(chan error, 1)
	go func() { done <- ServeTCP(ctx, ln, lines) }()

	link, err := DialTCP(ctx, ln.Addr().String(), time.Second)
	if err != nil {
		t.Fatalf("DialTCP: %v", err)
	}
	_ = link.Send(protocol.SyncTime(time.UnixMilli(1705290300123)))
	_ = link.Send(protocol.Simple(protocol.KindHome))

	for _, want := range []string{"SYNC_TIME 1705290300123", "HOME"} {
		select {
		case got := <-lines:
			if got != want {
				t.Errorf("received %q, want %q", got, want)
			}
		case <-time.After(2 * time.Second):
			t.Fatalf("timed out waiting for %q", want)
		}
	}

	_ = link.Close()
	cancel()
	select {
	case err := <-done:
		if err != nil {
			t.Errorf("ServeTCP returned %v", err)
		}
	case <-time.After(2 * time.Second):
		t.Fatal("ServeTCP did not stop on cancel")
	}
}

func TestReadLines_SkipsBlankLines(t *testing.T) {
	out := make(chan string, 4)
	err := ReadLines(context.Background(), strings.NewReader("PREP\r\n\n  \nSTEP 1 2\n"), out)
	if err != nil {
		t.Fatalf("ReadLines: %v", err)
	}
	close(out)
	var got []string
	for l := range out {
		got = append(got, l)
	}
	if strings.Join(got, "|") != "PREP|STEP 1 2" {
		t.Errorf("lines = %q", got)
	}
}

func TestReadLines_Cancel(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	out := make(chan string) // unbuffered, never read
	if err := ReadLines(ctx, strings.NewReader("PREP\n"), out); !errors.Is(err, context.Canceled) {
		t.Errorf("ReadLines = %v, want context.Canceled", err)
	}
}

// ---------- MQTT ----------

type fakeToken struct {
	err     error
	timeout bool
}

func (f *fakeToken) Wait() bool                     { return !f.timeout }
func (f *fakeToken) WaitTimeout(time.Duration) bool { return !f.timeout }
func (f *fakeToken) Done() <-chan struct{} {
	ch := make(chan struct{})
	close(ch)
	return ch
}
func (f *fakeToken) Error() error { return f.err }

type published struct {
	topic   string
	qos     byte
	payload string
}

type fakeBroker struct {
	mu       sync.Mutex
	sent     []published
	token    *fakeToken
	handlers map[string]mqtt.MessageHandler
}

func (b *fakeBroker) Publish(topic string, qos byte, retained bool, payload interface{}) mqtt.Token {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.sent = append(b.sent, published{topic: topic, qos: qos, payload: string(payload.([]byte))})
	if b.token != nil {
		return b.token
	}
	return &fakeToken{}
}

func (b *fakeBroker) Subscribe(topic string, qos byte, cb mqtt.MessageHandler) mqtt.Token {
	b.mu.Lock()
	defer b.mu.Unlock()
	if b.handlers == nil {
		b.handlers = map[string]mqtt.MessageHandler{}
	}
	b.handlers[topic] = cb
	if b.token != nil {
		return b.token
	}
	return &fakeToken{}
}

type fakeMessage struct {
	topic   string
	payload []byte
}

func (m fakeMessage) Duplicate() bool   { return false }
func (m fakeMessage) Qos() byte         { return 1 }
func (m fakeMessage) Retained() bool    { return false }
func (m fakeMessage) Topic() string     { return m.topic }
func (m fakeMessage) MessageID() uint16 { return 1 }
func (m fakeMessage) Payload() []byte   { return m.payload }
func (m fakeMessage) Ack()              {}

func TestMQTTLink_Publishes(t *testing.T) {
	b := &fakeBroker{}
	l := NewMQTTLink(b, "skytrack/cmd", time.Second)
	if err := l.Send(protocol.Step(10, -2)); err != nil {
		t.Fatalf("Send: %v", err)
	}
	if len(b.sent) != 1 {
		t.Fatalf("published %d messages, want 1", len(b.sent))
	}
	got := b.sent[0]
	if got.topic != "skytrack/cmd" || got.qos != 1 || got.payload != "STEP 10 -2\n" {
		t.Errorf("published %+v", got)
	}
	if err := l.Close(); err != nil {
		t.Errorf("Close: %v", err)
	}
}

func TestMQTTLink_Errors(t *testing.T) {
	b := &fakeBroker{token: &fakeToken{timeout: true}}
	l := NewMQTTLink(b, "t", time.Millisecond)
	if err := l.Send(protocol.Simple(protocol.KindPrep)); !errors.Is(err, ErrTimeout) {
		t.Errorf("timeout: err = %v, want ErrTimeout", err)
	}

	b.token = &fakeToken{err: errors.New("not authorized")}
	if err := l.Send(protocol.Simple(protocol.KindPrep)); err == nil || !strings.Contains(err.Error(), "not authorized") {
		t.Errorf("broker error not propagated: %v", err)
	}
}

func TestMQTTSubscribe_SplitsLines(t *testing.T) {
	b := &fakeBroker{}
	out := make(chan string, 8)
	if err := MQTTSubscribe(b, "skytrack/cmd", time.Second, out); err != nil {
		t.Fatalf("MQTTSubscribe: %v", err)
	}
	h := b.handlers["skytrack/cmd"]
	if h == nil {
		t.Fatal("no handler registered")
	}
	h(nil, fakeMessage{topic: "skytrack/cmd", payload: []byte("POINT 0 180 45\nPOINT 4 180.1 45.1\n")})
	close(out)

	var got []string
	for l := range out {
		got = append(got, l)
	}
	if len(got) != 2 || got[1] != "POINT 4 180.1 45.1" {
		t.Errorf("lines = %q", got)
	}
}

func TestMQTTSubscribe_Timeout(t *testing.T) {
	b := &fakeBroker{token: &fakeToken{timeout: true}}
	if err := MQTTSubscribe(b, "x", time.Millisecond, make(chan string)); !errors.Is(err, ErrTimeout) {
		t.Errorf("err = %v, want ErrTimeout", err)
	}
}
