package identity

import (
	"crypto/ed25519"
	"encoding/base64"
	"os"
	"path/filepath"
	"testing"
)

func TestLoadOrCreateGeneratesIdentity(t *testing.T) {
	path := filepath.Join(t.TempDir(), "device.json")
	store := NewFileDeviceStore(path)

	id, err := store.LoadOrCreate()
	if err != nil {
		t.Fatalf("LoadOrCreate failed: %v", err)
	}
	if id.ID() == "" {
		t.Error("empty device id")
	}
	if _, err := os.Stat(path); err != nil {
		t.Errorf("identity file not written: %v", err)
	}
}

func TestLoadOrCreateIsStable(t *testing.T) {
	path := filepath.Join(t.TempDir(), "device.json")
	store := NewFileDeviceStore(path)

	first, err := store.LoadOrCreate()
	if err != nil {
		t.Fatalf("first LoadOrCreate failed: %v", err)
	}
	second, err := NewFileDeviceStore(path).LoadOrCreate()
	if err != nil {
		t.Fatalf("second LoadOrCreate failed: %v", err)
	}

	if first.ID() != second.ID() {
		t.Errorf("device id changed across loads: %q vs %q", first.ID(), second.ID())
	}
	if first.PublicKey() != second.PublicKey() {
		t.Error("public key changed across loads")
	}
}

func TestSignVerifies(t *testing.T) {
	store := NewFileDeviceStore(filepath.Join(t.TempDir(), "device.json"))
	id, err := store.LoadOrCreate()
	if err != nil {
		t.Fatalf("LoadOrCreate failed: %v", err)
	}

	payload := []byte("dev|client|cli|operator|s1|123|null")
	sigB64, err := id.Sign(payload)
	if err != nil {
		t.Fatalf("Sign failed: %v", err)
	}

	pub, err := base64.StdEncoding.DecodeString(id.PublicKey())
	if err != nil {
		t.Fatalf("public key not base64: %v", err)
	}
	sig, err := base64.StdEncoding.DecodeString(sigB64)
	if err != nil {
		t.Fatalf("signature not base64: %v", err)
	}
	if !ed25519.Verify(ed25519.PublicKey(pub), payload, sig) {
		t.Error("signature does not verify")
	}
}

func TestLoadOrCreateRejectsCorruptFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "device.json")
	if err := os.WriteFile(path, []byte("not json"), 0o600); err != nil {
		t.Fatal(err)
	}
	if _, err := NewFileDeviceStore(path).LoadOrCreate(); err == nil {
		t.Error("expected error for corrupt identity file")
	}
}
