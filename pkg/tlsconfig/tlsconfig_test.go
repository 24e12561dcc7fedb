package tlsconfig

import (
	"crypto/tls"
	"testing"
)

func TestApplyVersionProfileSetsMinAndMax(t *testing.T) {
	cfg := &tls.Config{}
	ApplyVersionProfile(cfg, ProfileSecure)
	if cfg.MinVersion != VersionTLS12 || cfg.MaxVersion != VersionTLS13 {
		t.Fatalf("expected TLS 1.2-1.3, got min=%x max=%x", cfg.MinVersion, cfg.MaxVersion)
	}
}

func TestApplyCipherSuitesPicksSuiteByMinVersion(t *testing.T) {
	cfg := &tls.Config{}
	ApplyCipherSuites(cfg, VersionTLS13)
	if cfg.CipherSuites != nil {
		t.Fatalf("expected TLS 1.3 to clear CipherSuites, got %v", cfg.CipherSuites)
	}

	ApplyCipherSuites(cfg, VersionTLS12)
	if len(cfg.CipherSuites) != len(CipherSuitesTLS12Secure) {
		t.Fatalf("expected the TLS 1.2 secure suite list")
	}

	ApplyCipherSuites(cfg, VersionTLS10)
	if len(cfg.CipherSuites) != len(CipherSuitesTLS12Compatible) {
		t.Fatalf("expected the TLS 1.0 compatible suite list")
	}
}

func TestGetVersionNameAndDeprecation(t *testing.T) {
	if GetVersionName(VersionTLS13) != "TLS 1.3" {
		t.Fatalf("expected TLS 1.3 name")
	}
	if GetVersionName(0xffff) != "Unknown" {
		t.Fatalf("expected an unrecognized version to report Unknown")
	}
	if !IsVersionDeprecated(VersionTLS11) || IsVersionDeprecated(VersionTLS12) {
		t.Fatalf("expected only pre-1.2 versions to be deprecated")
	}
}

func TestGetCipherSuiteNameFallsBackToUnknown(t *testing.T) {
	if GetCipherSuiteName(tls.TLS_AES_128_GCM_SHA256) != "TLS_AES_128_GCM_SHA256" {
		t.Fatalf("expected a recognized cipher suite name")
	}
	if GetCipherSuiteName(0) != "Unknown" {
		t.Fatalf("expected cipher suite 0 to report Unknown")
	}
}
