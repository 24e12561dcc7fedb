package message

import "testing"

func TestRequestVirtualDictionary(t *testing.T) {
	m := New(64, 2, 4, 4)
	m.uriBuf.Append([]byte("/index.html"))
	m.Method = &Method{Name: "GET", ID: 0}
	m.RemoteAddr = "203.0.113.7:54321"
	m.Scheme = "http"

	if v, ok := m.Request("uri"); !ok || v != "/index.html" {
		t.Fatalf("expected uri=/index.html, got %q, %v", v, ok)
	}
	if v, ok := m.Request("method"); !ok || v != "GET" {
		t.Fatalf("expected method=GET, got %q, %v", v, ok)
	}
	if v, ok := m.Request("remote_addr"); !ok || v != "203.0.113.7" {
		t.Fatalf("expected remote_addr host only, got %q, %v", v, ok)
	}
	if v, ok := m.Request("remote_port"); !ok || v != "54321" {
		t.Fatalf("expected remote_port=54321, got %q, %v", v, ok)
	}
	if v, ok := m.Request("scheme"); !ok || v != "http" {
		t.Fatalf("expected scheme=http, got %q, %v", v, ok)
	}
}

func TestRequestFallsBackToHeader(t *testing.T) {
	m := New(64, 2, 4, 4)
	m.headersBuf.Append([]byte("X-Trace-Id: abc123\r\n"))
	m.BuildHeadersDB(nil)
	if v, ok := m.Request("X-Trace-Id"); !ok || v != "abc123" {
		t.Fatalf("expected REQUEST to fall back to header lookup, got %q, %v", v, ok)
	}
}

func TestServerVirtualDictionary(t *testing.T) {
	m := New(64, 2, 4, 4)
	m.ServerAddr = "0.0.0.0"
	m.ServerPort = 8080
	if v, ok := m.Server("addr"); !ok || v != "0.0.0.0" {
		t.Fatalf("expected addr=0.0.0.0, got %q, %v", v, ok)
	}
	if v, ok := m.Server("port"); !ok || v != "8080" {
		t.Fatalf("expected port=8080, got %q, %v", v, ok)
	}
}

func TestSessionDictionary(t *testing.T) {
	shared := make(map[string]string)
	req := New(64, 2, 4, 4)
	resp := New(64, 2, 4, 4)
	req.SetSession(shared)
	resp.SetSession(shared)

	req.SetSessionValue("user", "alice")
	if v, ok := resp.Session("user"); !ok || v != "alice" {
		t.Fatalf("expected the session dictionary to be shared across request/response, got %q, %v", v, ok)
	}
}

func TestOwnerRoundTrip(t *testing.T) {
	m := New(64, 2, 4, 4)
	type marker struct{ id int }
	m.SetOwner(&marker{id: 7})
	owner, ok := m.Owner().(*marker)
	if !ok || owner.id != 7 {
		t.Fatalf("expected owner round trip to preserve the stored value")
	}
}
