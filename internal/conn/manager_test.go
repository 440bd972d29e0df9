package conn

import (
	"context"
	"net/url"
	"sync/atomic"
	"testing"
	"time"

	"ideaflow/cli/internal/protocol"
)

func waitFor(t *testing.T, what string, cond func() bool) {
	t.Helper()
	deadline := time.Now().Add(2 * time.Second)
	for time.Now().Before(deadline) {
		if cond() {
			return
		}
		time.Sleep(5 * time.Millisecond)
	}
	t.Fatalf("timed out waiting for %s", what)
}

func testIdentity() Identity {
	return Identity{IdeaID: "i1", UserID: "u1", UserName: "Ada Lovelace", DocumentRoomName: "idea-doc-i1"}
}

func TestManager_DialsOnceWhenEnabled(t *testing.T) {
	d := NewFakeDialer(NewFakeSocket())
	m := NewManager(Options{Endpoint: "ws://test/ws/ideation", Dialer: d})
	m.Start(context.Background())
	m.SetEnabled(true)
	m.SetIdentity(testIdentity())

	waitFor(t, "open state", func() bool { return m.State() == StateOpen })
	if d.DialCount() != 1 {
		t.Fatalf("expected 1 dial, got %d", d.DialCount())
	}
	// Redundant enable and identity redelivery must not redial.
	m.SetEnabled(true)
	m.SetIdentity(testIdentity())
	time.Sleep(30 * time.Millisecond)
	if d.DialCount() != 1 {
		t.Fatalf("redelivered identity forced a redial: %d dials", d.DialCount())
	}
	m.Close()
}

func TestManager_URLCarriesEncodedIdentity(t *testing.T) {
	d := NewFakeDialer(NewFakeSocket())
	m := NewManager(Options{Endpoint: "ws://test/ws/ideation", Dialer: d})
	m.Start(context.Background())
	m.SetEnabled(true)
	m.SetIdentity(testIdentity())
	waitFor(t, "dial", func() bool { return d.DialCount() == 1 })

	u, err := url.Parse(d.DialedURLs()[0])
	if err != nil {
		t.Fatalf("bad dial url: %v", err)
	}
	q := u.Query()
	if q.Get("ideaId") != "i1" || q.Get("userId") != "u1" ||
		q.Get("userName") != "Ada Lovelace" || q.Get("documentRoomName") != "idea-doc-i1" {
		t.Fatalf("unexpected query: %v", q)
	}
	m.Close()
}

func TestManager_UnsavedIdeaDialsAsNew(t *testing.T) {
	d := NewFakeDialer(NewFakeSocket())
	m := NewManager(Options{Endpoint: "ws://test/ws/ideation", Dialer: d})
	m.Start(context.Background())
	m.SetEnabled(true)
	m.SetIdentity(Identity{UserID: "u1", UserName: "n"})
	waitFor(t, "dial", func() bool { return d.DialCount() == 1 })

	u, _ := url.Parse(d.DialedURLs()[0])
	if u.Query().Get("ideaId") != "new" {
		t.Fatalf("expected ideaId=new, got %q", u.Query().Get("ideaId"))
	}
	m.Close()
}

func TestManager_SingleReconnectAfterDelay(t *testing.T) {
	sock1 := NewFakeSocket()
	sock2 := NewFakeSocket()
	d := NewFakeDialer(sock1, sock2)
	m := NewManager(Options{
		Endpoint:       "ws://test/ws/planning",
		Dialer:         d,
		ReconnectDelay: 60 * time.Millisecond,
	})
	m.Start(context.Background())
	m.SetEnabled(true)
	m.SetIdentity(testIdentity())
	waitFor(t, "first open", func() bool { return m.State() == StateOpen })

	// Forcibly drop the socket while identity stays valid.
	sock1.EndInput()
	waitFor(t, "closed state", func() bool { return m.State() == StateClosed })
	if m.Connected() {
		t.Fatal("still connected after drop")
	}
	if m.ConnError() == "" {
		t.Fatal("connectivity error not surfaced")
	}

	// Before the fixed delay elapses there must be no second dial.
	time.Sleep(20 * time.Millisecond)
	if d.DialCount() != 1 {
		t.Fatalf("reconnected early: %d dials", d.DialCount())
	}

	waitFor(t, "reconnect", func() bool { return m.State() == StateOpen })
	if d.DialCount() != 2 {
		t.Fatalf("expected exactly 2 dials, got %d", d.DialCount())
	}
	m.Close()
}

func TestManager_IdentityChangeForcesHardReset(t *testing.T) {
	d := NewFakeDialer(NewFakeSocket(), NewFakeSocket())
	var resets atomic.Int32
	m := NewManager(Options{
		Endpoint: "ws://test/ws/ideation",
		Dialer:   d,
		OnReset:  func() { resets.Add(1) },
	})
	m.Start(context.Background())
	m.SetEnabled(true)
	m.SetIdentity(Identity{UserID: "u1", UserName: "n"})
	waitFor(t, "first open", func() bool { return m.State() == StateOpen })

	next := Identity{IdeaID: "i9", UserID: "u1", UserName: "n", DocumentRoomName: "idea-doc-i9"}
	m.SetIdentity(next)
	waitFor(t, "second dial", func() bool { return d.DialCount() == 2 })
	if resets.Load() != 1 {
		t.Fatalf("expected 1 hard reset, got %d", resets.Load())
	}
	u, _ := url.Parse(d.DialedURLs()[1])
	if u.Query().Get("ideaId") != "i9" {
		t.Fatalf("new identity not used for redial: %v", u.Query())
	}
	m.Close()
}

func TestManager_DisableCancelsPendingReconnect(t *testing.T) {
	sock := NewFakeSocket()
	d := NewFakeDialer(sock)
	m := NewManager(Options{
		Endpoint:       "ws://test/ws/executing",
		Dialer:         d,
		ReconnectDelay: 40 * time.Millisecond,
	})
	m.Start(context.Background())
	m.SetEnabled(true)
	m.SetIdentity(testIdentity())
	waitFor(t, "open", func() bool { return m.State() == StateOpen })

	sock.EndInput()
	waitFor(t, "closed", func() bool { return m.State() == StateClosed })
	m.SetEnabled(false)
	time.Sleep(100 * time.Millisecond)
	if d.DialCount() != 1 {
		t.Fatalf("disabled manager reconnected: %d dials", d.DialCount())
	}
	if m.State() != StateDisabled {
		t.Fatalf("expected disabled state, got %s", m.State())
	}
}

func TestManager_FramesDispatchInOrderAndBadFramesDrop(t *testing.T) {
	sock := NewFakeSocket()
	d := NewFakeDialer(sock)
	var got []string
	frameCh := make(chan protocol.ServerFrame, 8)
	m := NewManager(Options{
		Endpoint: "ws://test/ws/ideation",
		Dialer:   d,
		OnFrame:  func(f protocol.ServerFrame) { frameCh <- f },
	})
	m.Start(context.Background())
	m.SetEnabled(true)
	m.SetIdentity(testIdentity())
	waitFor(t, "open", func() bool { return m.State() == StateOpen })

	sock.EmitText(`{"type":"text_chunk","messageId":"m1","text":"a"}`)
	sock.EmitText(`this is not json`)
	sock.EmitText(`{"type":"message_complete","messageId":"m1"}`)

	for len(got) < 2 {
		select {
		case f := <-frameCh:
			got = append(got, f.Type)
		case <-time.After(2 * time.Second):
			t.Fatalf("frames not dispatched, got %v", got)
		}
	}
	if got[0] != protocol.TypeTextChunk || got[1] != protocol.TypeMessageComplete {
		t.Fatalf("frames out of order or bad frame dispatched: %v", got)
	}
	if m.State() != StateOpen {
		t.Fatal("protocol error closed the connection")
	}
	m.Close()
}

func TestManager_SendRequiresOpenSocket(t *testing.T) {
	m := NewManager(Options{Endpoint: "ws://test/ws/ideation", Dialer: NewFakeDialer()})
	if err := m.Send(context.Background(), []byte("{}")); err != ErrNotConnected {
		t.Fatalf("expected ErrNotConnected, got %v", err)
	}
}
