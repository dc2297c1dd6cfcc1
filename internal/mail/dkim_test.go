package mail

import (
	"bytes"
	"os"
	"path/filepath"
	"strings"
	"testing"
)

func TestSignerRoundTrip(t *testing.T) {
	key, err := GenerateKey()
	if err != nil {
		t.Fatal(err)
	}

	keyPath := filepath.Join(t.TempDir(), "keys", "dkim.key")
	if err := SavePrivateKey(key, keyPath); err != nil {
		t.Fatalf("SavePrivateKey() error = %v", err)
	}

	info, err := os.Stat(keyPath)
	if err != nil {
		t.Fatal(err)
	}
	if info.Mode().Perm() != 0600 {
		t.Errorf("key mode = %v, want 0600", info.Mode().Perm())
	}

	signer, err := NewSignerFromFile(keyPath, "example.com", "pagesend")
	if err != nil {
		t.Fatalf("NewSignerFromFile() error = %v", err)
	}

	msg := &Message{
		From:    "no-reply@example.com",
		To:      "cliente@example.org",
		Subject: "Documento",
		Body:    "Adjuntamos su documento.",
	}
	raw, err := msg.Build("example.com")
	if err != nil {
		t.Fatal(err)
	}

	signed, err := signer.Sign(raw)
	if err != nil {
		t.Fatalf("Sign() error = %v", err)
	}
	if !bytes.HasPrefix(signed, []byte("DKIM-Signature:")) {
		t.Error("signed message should start with DKIM-Signature header")
	}
	s := string(signed)
	if !strings.Contains(s, "d=example.com") || !strings.Contains(s, "s=pagesend") {
		t.Error("signature does not name domain and selector")
	}
}

func TestLoadPrivateKeyErrors(t *testing.T) {
	dir := t.TempDir()

	if _, err := LoadPrivateKey(filepath.Join(dir, "missing.key")); err == nil {
		t.Error("expected error for missing file")
	}

	garbage := filepath.Join(dir, "garbage.key")
	os.WriteFile(garbage, []byte("not pem"), 0600)
	if _, err := LoadPrivateKey(garbage); err == nil {
		t.Error("expected error for non-PEM file")
	}
}

func TestDNSRecord(t *testing.T) {
	key, err := GenerateKey()
	if err != nil {
		t.Fatal(err)
	}

	record, err := DNSRecord(key)
	if err != nil {
		t.Fatal(err)
	}
	if !strings.HasPrefix(record, "v=DKIM1; k=rsa; p=") {
		t.Errorf("DNSRecord() = %q", record)
	}
	if got := DNSName("example.com", "pagesend"); got != "pagesend._domainkey.example.com" {
		t.Errorf("DNSName() = %q", got)
	}
}
