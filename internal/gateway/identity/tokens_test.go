package identity

import (
	"path/filepath"
	"testing"

	"github.com/perchlabs/perch/internal/gateway/auth"
)

func TestFileTokenCacheRoundTrip(t *testing.T) {
	cache := NewFileTokenCache(filepath.Join(t.TempDir(), "tokens.json"))

	if _, ok := cache.Load("dev-1", "operator"); ok {
		t.Fatal("unexpected token in empty cache")
	}

	err := cache.Store("dev-1", "operator", auth.CachedToken{Token: "tok-1", Scopes: []string{"a"}})
	if err != nil {
		t.Fatalf("Store failed: %v", err)
	}

	tok, ok := cache.Load("dev-1", "operator")
	if !ok || tok.Token != "tok-1" {
		t.Fatalf("Load = %+v, %v", tok, ok)
	}

	// Same device, different role is a distinct entry.
	if _, ok := cache.Load("dev-1", "admin"); ok {
		t.Error("role not part of cache key")
	}

	if err := cache.Clear("dev-1", "operator"); err != nil {
		t.Fatalf("Clear failed: %v", err)
	}
	if _, ok := cache.Load("dev-1", "operator"); ok {
		t.Error("token survived Clear")
	}
}

func TestFileTokenCachePersistsAcrossInstances(t *testing.T) {
	path := filepath.Join(t.TempDir(), "tokens.json")

	if err := NewFileTokenCache(path).Store("dev-1", "operator", auth.CachedToken{Token: "tok"}); err != nil {
		t.Fatalf("Store failed: %v", err)
	}
	tok, ok := NewFileTokenCache(path).Load("dev-1", "operator")
	if !ok || tok.Token != "tok" {
		t.Errorf("token not persisted: %+v, %v", tok, ok)
	}
}

func TestFileTokenCacheClearMissing(t *testing.T) {
	cache := NewFileTokenCache(filepath.Join(t.TempDir(), "tokens.json"))
	if err := cache.Clear("dev-1", "operator"); err != nil {
		t.Errorf("Clear on empty cache failed: %v", err)
	}
}

func TestMemoryTokenCache(t *testing.T) {
	cache := NewMemoryTokenCache()

	_ = cache.Store("dev-1", "operator", auth.CachedToken{Token: "tok"})
	tok, ok := cache.Load("dev-1", "operator")
	if !ok || tok.Token != "tok" {
		t.Fatalf("Load = %+v, %v", tok, ok)
	}
	_ = cache.Clear("dev-1", "operator")
	if _, ok := cache.Load("dev-1", "operator"); ok {
		t.Error("token survived Clear")
	}
}
