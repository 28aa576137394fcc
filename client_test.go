package framelink

import (
	"context"
	"errors"
	"net"
	"testing"
	"time"
)

// newTestPeer listens on a loopback port and returns the listener and the
// port.
func newTestPeer(t *testing.T) (*net.TCPListener, int) {
	t.Helper()

	listener, err := net.ListenTCP("tcp", &net.TCPAddr{IP: net.ParseIP("127.0.0.1"), Port: 0})
	if err != nil {
		t.Fatalf("failed to create listener: %v", err)
	}
	t.Cleanup(func() { listener.Close() })

	return listener, listener.Addr().(*net.TCPAddr).Port
}

func acceptPeer(t *testing.T, listener *net.TCPListener) *net.TCPConn {
	t.Helper()

	_ = listener.SetDeadline(time.Now().Add(5 * time.Second))
	conn, err := listener.AcceptTCP()
	if err != nil {
		t.Fatalf("accept failed: %v", err)
	}
	t.Cleanup(func() { conn.Close() })
	return conn
}

func newTestClient(port int, opt ...Option) *Client {
	return NewClient("127.0.0.1", port, append([]Option{LoggerOption(DiscardLogger())}, opt...)...)
}

func TestNewClient(t *testing.T) {
	client := newTestClient(1234)

	if client.Addr() != "127.0.0.1:1234" {
		t.Errorf("Addr = %q", client.Addr())
	}
	if client.State() != StateIdle {
		t.Errorf("State = %v, want %v", client.State(), StateIdle)
	}
	if client.IsRunning() {
		t.Error("new client is running")
	}
	if client.opts.readTimeout != DefaultClientReadTimeout {
		t.Errorf("readTimeout = %v, want %v", client.opts.readTimeout, DefaultClientReadTimeout)
	}
	if client.Err() != nil {
		t.Errorf("Err = %v, want nil", client.Err())
	}
}

func TestClient_ConnectRefused(t *testing.T) {
	listener, port := newTestPeer(t)
	listener.Close()

	client := newTestClient(port)
	err := client.Connect(context.Background())

	var connectErr *ConnectError
	if !errors.As(err, &connectErr) {
		t.Fatalf("Connect = %v, want *ConnectError", err)
	}
	if connectErr.Addr != client.Addr() {
		t.Errorf("ConnectError.Addr = %q", connectErr.Addr)
	}
	if client.State() != StateIdle {
		t.Errorf("State = %v, want %v", client.State(), StateIdle)
	}
	if client.IsRunning() {
		t.Error("client running after failed connect")
	}
}

func TestClient_ConnectCanceled(t *testing.T) {
	_, port := newTestPeer(t)

	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	client := newTestClient(port)
	err := client.Connect(ctx)

	var connectErr *ConnectError
	if !errors.As(err, &connectErr) {
		t.Fatalf("Connect = %v, want *ConnectError", err)
	}
}

func TestClient_SendReceive(t *testing.T) {
	listener, port := newTestPeer(t)

	received := newRecordingListener()
	client := newTestClient(port, ListenerOption(received))
	if err := client.Connect(context.Background()); err != nil {
		t.Fatalf("Connect failed: %v", err)
	}
	defer client.Disconnect()

	peer := acceptPeer(t, listener)

	if !client.IsRunning() {
		t.Fatal("client not running")
	}
	if client.State() != StateRunning {
		t.Errorf("State = %v, want %v", client.State(), StateRunning)
	}

	if err := client.SendString("hello"); err != nil {
		t.Fatalf("Send failed: %v", err)
	}

	_ = peer.SetReadDeadline(time.Now().Add(5 * time.Second))
	got, err := NewFrameReader(peer).ReadFrame()
	if err != nil {
		t.Fatalf("peer ReadFrame failed: %v", err)
	}
	if string(got) != "hello" {
		t.Errorf("peer got %q, want %q", got, "hello")
	}

	if err := WriteFrame(peer, []byte("welcome")); err != nil {
		t.Fatalf("peer WriteFrame failed: %v", err)
	}
	if got := received.waitFrame(t); string(got) != "welcome" {
		t.Errorf("client got %q, want %q", got, "welcome")
	}
}

func TestClient_DoubleConnect(t *testing.T) {
	_, port := newTestPeer(t)

	client := newTestClient(port)
	if err := client.Connect(context.Background()); err != nil {
		t.Fatalf("Connect failed: %v", err)
	}
	defer client.Disconnect()

	if err := client.Connect(context.Background()); !errors.Is(err, ErrAlreadyRunning) {
		t.Errorf("second Connect = %v, want ErrAlreadyRunning", err)
	}
}

func TestClient_Disconnect(t *testing.T) {
	listener, port := newTestPeer(t)

	client := newTestClient(port)

	// no-op on an idle client
	client.Disconnect()
	client.Wait()

	if err := client.Connect(context.Background()); err != nil {
		t.Fatalf("Connect failed: %v", err)
	}
	peer := acceptPeer(t, listener)

	client.Disconnect()
	if client.IsRunning() {
		t.Error("running after Disconnect")
	}
	client.Disconnect()
	client.Wait()

	if client.State() != StateClosed {
		t.Errorf("State = %v, want %v", client.State(), StateClosed)
	}
	if err := client.Send([]byte("late")); !errors.Is(err, ErrNotRunning) {
		t.Errorf("Send after Disconnect = %v, want ErrNotRunning", err)
	}

	_ = peer.SetReadDeadline(time.Now().Add(5 * time.Second))
	if _, err := peer.Read(make([]byte, 1)); err == nil {
		t.Error("peer should see the closed socket")
	}
}

func TestClient_Send_Idle(t *testing.T) {
	client := newTestClient(1)
	if err := client.Send([]byte("x")); !errors.Is(err, ErrNotRunning) {
		t.Errorf("Send = %v, want ErrNotRunning", err)
	}
}

func TestClient_ReconnectKeepsListeners(t *testing.T) {
	listener, port := newTestPeer(t)

	received := newRecordingListener()
	client := newTestClient(port)
	client.AddListener(received)

	for i, want := range []string{"first", "second"} {
		if err := client.Connect(context.Background()); err != nil {
			t.Fatalf("Connect %d failed: %v", i, err)
		}
		peer := acceptPeer(t, listener)

		if err := WriteFrame(peer, []byte(want)); err != nil {
			t.Fatal(err)
		}
		if got := received.waitFrame(t); string(got) != want {
			t.Errorf("got %q, want %q", got, want)
		}

		client.Disconnect()
		client.Wait()
	}

	if !client.RemoveListener(received) {
		t.Error("RemoveListener returned false")
	}
}

func TestClient_BrokenLink(t *testing.T) {
	listener, port := newTestPeer(t)

	received := newRecordingListener()
	client := newTestClient(port, ListenerOption(received), ReadTimeoutOption(50*time.Millisecond))
	if err := client.Connect(context.Background()); err != nil {
		t.Fatalf("Connect failed: %v", err)
	}

	peer := acceptPeer(t, listener)
	peer.Close()

	ev := received.waitBroken(t)
	if ev.code != CodeBrokenLink {
		t.Errorf("code = %d, want %d", ev.code, CodeBrokenLink)
	}
	client.Wait()

	var broken *BrokenLinkError
	if !errors.As(client.Err(), &broken) {
		t.Errorf("Err = %v, want *BrokenLinkError", client.Err())
	}
	if client.IsRunning() {
		t.Error("client running after broken link")
	}

	// a broken client may connect again
	if err := client.Connect(context.Background()); err != nil {
		t.Fatalf("reconnect failed: %v", err)
	}
	client.Disconnect()
}
