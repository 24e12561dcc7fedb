package transport

import (
	"net"
	"testing"
	"time"

	"oakserve/oakhttpd/pkg/buffer"
)

func TestTCPAdapterRecvAndSend(t *testing.T) {
	server, client := net.Pipe()
	defer client.Close()

	a := &TCPAdapter{}
	if err := a.Create(server); err != nil {
		t.Fatalf("Create failed: %v", err)
	}

	done := make(chan struct{})
	go func() {
		client.Write([]byte("hello"))
		close(done)
	}()

	buf := buffer.New(64, 2)
	n, r := a.Recv(buf)
	<-done
	if r != buffer.Success || n != 5 {
		t.Fatalf("expected Success/5, got %v/%d", r, n)
	}
	if string(buf.Get(0)) != "hello" {
		t.Fatalf("expected buffered bytes to read back as hello, got %q", buf.Get(0))
	}

	readBack := make(chan []byte, 1)
	go func() {
		b := make([]byte, 3)
		client.Read(b)
		readBack <- b
	}()
	n, r = a.Send([]byte("bye"))
	if r != buffer.Success || n != 3 {
		t.Fatalf("expected Send to report Success/3, got %v/%d", r, n)
	}
	if got := <-readBack; string(got) != "bye" {
		t.Fatalf("expected the peer to read back bye, got %q", got)
	}
}

func TestTCPAdapterStatusBeforeAndAfterDestroy(t *testing.T) {
	server, client := net.Pipe()
	defer client.Close()

	a := &TCPAdapter{}
	a.Create(server)
	if st := a.Status(); st.Closed || !st.Readable {
		t.Fatalf("expected a fresh adapter to report open/readable, got %+v", st)
	}
	if err := a.Destroy(); err != nil {
		t.Fatalf("Destroy failed: %v", err)
	}
	if st := a.Status(); !st.Closed {
		t.Fatalf("expected Status to report Closed after Destroy")
	}
	if _, r := a.Send([]byte("x")); r != buffer.Reject {
		t.Fatalf("expected Send on a destroyed adapter to Reject")
	}
	if err := a.Destroy(); err != nil {
		t.Fatalf("expected Destroy to be idempotent, got %v", err)
	}
}

func TestTCPAdapterSchemeAndDefaultPort(t *testing.T) {
	a := &TCPAdapter{}
	if a.Scheme() != "http" || a.DefaultPort() != 80 {
		t.Fatalf("expected http/80, got %s/%d", a.Scheme(), a.DefaultPort())
	}
}

func TestTCPAdapterWaitReturnsRejectOnUnconnectedAdapter(t *testing.T) {
	a := &TCPAdapter{}
	if r := a.Wait(WaitReadable, time.Millisecond); r != buffer.Reject {
		t.Fatalf("expected Wait on an unconnected adapter to Reject, got %v", r)
	}
}
