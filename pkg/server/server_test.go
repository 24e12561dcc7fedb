package server

import (
	"testing"

	"oakserve/oakhttpd/pkg/message"
)

func TestConfigNormalizeDefaults(t *testing.T) {
	var cfg Config
	cfg.normalize()

	if cfg.Addr == "" {
		t.Fatalf("expected a default Addr")
	}
	if cfg.Port == 0 {
		t.Fatalf("expected a default Port")
	}
	if cfg.MaxClients <= 0 {
		t.Fatalf("expected a positive default MaxClients")
	}
	if cfg.MaxVersion != message.HTTP11 {
		t.Fatalf("expected zero-valued MaxVersion to default to HTTP/1.1, got %v", cfg.MaxVersion)
	}
	if !cfg.MultiValueHeaders["Set-Cookie"] {
		t.Fatalf("expected Set-Cookie to be multi-valued by default")
	}
	if cfg.Transport == nil {
		t.Fatalf("expected a default Transport factory")
	}
}

func TestConfigNormalizeUpgradesExplicitHTTP09(t *testing.T) {
	// A caller cannot distinguish "unset" from HTTP09 through this field's
	// zero value; normalize() always upgrades it to HTTP/1.1 (documented
	// limitation in normalize's comment).
	cfg := Config{MaxVersion: message.HTTP09}
	cfg.normalize()
	if cfg.MaxVersion != message.HTTP11 {
		t.Fatalf("expected HTTP09 to normalize to HTTP11, got %v", cfg.MaxVersion)
	}
}

func TestConfigNormalizeKeepsExplicitValues(t *testing.T) {
	cfg := Config{
		Addr:       "127.0.0.1",
		Port:       9090,
		MaxClients: 10,
		MaxVersion: message.HTTP10,
	}
	cfg.normalize()
	if cfg.Addr != "127.0.0.1" || cfg.Port != 9090 || cfg.MaxClients != 10 {
		t.Fatalf("normalize should not override explicit values: %+v", cfg)
	}
	if cfg.MaxVersion != message.HTTP10 {
		t.Fatalf("expected explicit HTTP10 to survive, got %v", cfg.MaxVersion)
	}
}

func TestMultiValueFuncIsCaseInsensitive(t *testing.T) {
	cfg := Config{MultiValueHeaders: map[string]bool{"Set-Cookie": true}}
	fn := cfg.multiValueFunc()
	if !fn("set-cookie") {
		t.Fatalf("expected the multi-value allow-list to match case-insensitively")
	}
	if fn("Content-Length") {
		t.Fatalf("did not expect Content-Length to be multi-valued")
	}
}
