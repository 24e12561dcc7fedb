package kvdb

import (
	"testing"

	"oakserve/oakhttpd/pkg/buffer"
)

func TestFillDBHeaders(t *testing.T) {
	storage := buffer.New(64, 8)
	storage.Append([]byte("Host: example.com\r\nAccept: */*\r\n"))
	db := FillDB(storage, ':', '\n', nil)

	e := db.Get(storage, "host")
	if e == nil {
		t.Fatalf("expected to find Host header")
	}
	if got := e.ValueString(); got != "example.com" {
		t.Fatalf("expected %q, got %q", "example.com", got)
	}

	if db.Get(storage, "accept") == nil {
		t.Fatalf("expected to find Accept header")
	}
	if db.Get(storage, "missing") != nil {
		t.Fatalf("expected no match for a header that was never sent")
	}
}

func TestFillDBBareFlagBecomesTrue(t *testing.T) {
	storage := buffer.New(64, 8)
	storage.Append([]byte("DNT\r\n"))
	db := FillDB(storage, ':', '\n', nil)
	e := db.Get(storage, "DNT")
	if e == nil {
		t.Fatalf("expected the bare flag to produce an entry")
	}
	if got := e.ValueString(); got != "true" {
		t.Fatalf("expected synthesized value %q, got %q", "true", got)
	}
}

func TestFillDBMultiValue(t *testing.T) {
	storage := buffer.New(64, 8)
	storage.Append([]byte("Set-Cookie: a=1\nSet-Cookie: b=2\n"))
	allowSetCookie := func(key string) bool { return key == "Set-Cookie" }
	db := FillDB(storage, ':', '\n', allowSetCookie)

	all := db.GetAll(storage, "set-cookie")
	if len(all) != 2 {
		t.Fatalf("expected 2 Set-Cookie entries, got %d", len(all))
	}
	if all[0].ValueString() != "a=1" || all[1].ValueString() != "b=2" {
		t.Fatalf("unexpected values: %q, %q", all[0].ValueString(), all[1].ValueString())
	}
}

func TestFillDBRejectsDuplicateSingleValued(t *testing.T) {
	storage := buffer.New(64, 8)
	storage.Append([]byte("Content-Length: 5\nContent-Length: 9\n"))
	db := FillDB(storage, ':', '\n', nil)
	all := db.GetAll(storage, "content-length")
	if len(all) != 1 {
		t.Fatalf("expected only the first Content-Length to survive, got %d entries", len(all))
	}
	if all[0].ValueString() != "5" {
		t.Fatalf("expected first-write-wins value %q, got %q", "5", all[0].ValueString())
	}
}

func TestQueryStringSeparators(t *testing.T) {
	storage := buffer.New(64, 8)
	storage.Append([]byte("a=1&b=2&flag"))
	db := FillDB(storage, '=', '&', nil)
	if e := db.Get(storage, "a"); e == nil || e.ValueString() != "1" {
		t.Fatalf("expected a=1")
	}
	if e := db.Get(storage, "flag"); e == nil || e.ValueString() != "true" {
		t.Fatalf("expected bare query flag to synthesize true")
	}
}
