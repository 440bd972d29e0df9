package conn

import (
	"context"
	"io"
	"sync"

	"github.com/coder/websocket"
)

type Socket interface {
	ReadText(ctx context.Context) (string, error)
	WriteText(ctx context.Context, text string) error
	Close() error
}

type Dialer interface {
	Dial(ctx context.Context, url string) (Socket, error)
}

type RealDialer struct{}

func (RealDialer) Dial(ctx context.Context, url string) (Socket, error) {
	c, _, err := websocket.Dial(ctx, url, nil)
	if err != nil {
		return nil, err
	}
	return &realSocket{conn: c}, nil
}

type realSocket struct {
	conn *websocket.Conn
}

func (s *realSocket) ReadText(ctx context.Context) (string, error) {
	_, data, err := s.conn.Read(ctx)
	if err != nil {
		return "", err
	}
	return string(data), nil
}

func (s *realSocket) WriteText(ctx context.Context, text string) error {
	return s.conn.Write(ctx, websocket.MessageText, []byte(text))
}

func (s *realSocket) Close() error {
	return s.conn.Close(websocket.StatusNormalClosure, "")
}

// FakeSocket is an in-memory Socket for tests and wiring checks.
type FakeSocket struct {
	mu     sync.Mutex
	readCh chan string
	sent   []string
	closed bool
}

func NewFakeSocket() *FakeSocket {
	return &FakeSocket{readCh: make(chan string, 64)}
}

func (f *FakeSocket) EmitText(text string) {
	f.readCh <- text
}

// EndInput makes subsequent reads fail like a dropped connection.
func (f *FakeSocket) EndInput() {
	f.mu.Lock()
	defer f.mu.Unlock()
	if !f.closed {
		f.closed = true
		close(f.readCh)
	}
}

func (f *FakeSocket) ReadText(ctx context.Context) (string, error) {
	select {
	case <-ctx.Done():
		return "", ctx.Err()
	case text, ok := <-f.readCh:
		if !ok {
			return "", io.EOF
		}
		return text, nil
	}
}

func (f *FakeSocket) WriteText(ctx context.Context, text string) error {
	f.mu.Lock()
	f.sent = append(f.sent, text)
	f.mu.Unlock()
	return nil
}

func (f *FakeSocket) Close() error {
	f.EndInput()
	return nil
}

func (f *FakeSocket) Sent() []string {
	f.mu.Lock()
	defer f.mu.Unlock()
	out := make([]string, len(f.sent))
	copy(out, f.sent)
	return out
}

// FakeDialer hands out sockets in order and records dial URLs.
type FakeDialer struct {
	mu      sync.Mutex
	sockets []*FakeSocket
	urls    []string
	dialErr error
}

func NewFakeDialer(sockets ...*FakeSocket) *FakeDialer {
	return &FakeDialer{sockets: sockets}
}

func (d *FakeDialer) SetDialErr(err error) {
	d.mu.Lock()
	d.dialErr = err
	d.mu.Unlock()
}

func (d *FakeDialer) Dial(ctx context.Context, url string) (Socket, error) {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.urls = append(d.urls, url)
	if d.dialErr != nil {
		return nil, d.dialErr
	}
	if len(d.sockets) == 0 {
		s := NewFakeSocket()
		return s, nil
	}
	s := d.sockets[0]
	d.sockets = d.sockets[1:]
	return s, nil
}

func (d *FakeDialer) DialedURLs() []string {
	d.mu.Lock()
	defer d.mu.Unlock()
	out := make([]string, len(d.urls))
	copy(out, d.urls)
	return out
}

func (d *FakeDialer) DialCount() int {
	d.mu.Lock()
	defer d.mu.Unlock()
	return len(d.urls)
}
