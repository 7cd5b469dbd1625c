package client

import (
	"reflect"
	"testing"
)

func TestDeriveURLCandidatesBareOrigin(t *testing.T) {
	got := DeriveURLCandidates("ws://gw.local:18789")
	want := []string{
		"ws://gw.local:18789",
		"ws://gw.local:18789/gateway",
		"ws://gw.local:18789/ws",
	}
	if !reflect.DeepEqual(got, want) {
		t.Errorf("DeriveURLCandidates = %v, want %v", got, want)
	}
}

func TestDeriveURLCandidatesRootPath(t *testing.T) {
	got := DeriveURLCandidates("wss://gw.example.com/")
	if len(got) != 3 {
		t.Fatalf("expected 3 candidates for root path, got %v", got)
	}
	if got[1] != "wss://gw.example.com/gateway" {
		t.Errorf("second candidate = %q", got[1])
	}
}

func TestDeriveURLCandidatesExplicitPath(t *testing.T) {
	got := DeriveURLCandidates("ws://gw.local:18789/custom")
	want := []string{"ws://gw.local:18789/custom"}
	if !reflect.DeepEqual(got, want) {
		t.Errorf("DeriveURLCandidates = %v, want %v", got, want)
	}
}

func TestDeriveClientIDCandidates(t *testing.T) {
	got := deriveClientIDCandidates("perch", []string{"perch-2", "perch", "", "perch-3"})
	want := []string{"perch", "perch-2", "perch-3"}
	if !reflect.DeepEqual(got, want) {
		t.Errorf("deriveClientIDCandidates = %v, want %v", got, want)
	}
}

func TestIsClientIDCollision(t *testing.T) {
	cases := []struct {
		reason string
		want   bool
	}{
		{"client id already connected", true},
		{"Client identifier in use", true},
		{"duplicate client", true},
		{"client id conflict", true},
		{"authentication failed", false},
		{"duplicate session", false},
		{"", false},
	}
	for _, tc := range cases {
		if got := isClientIDCollision(tc.reason); got != tc.want {
			t.Errorf("isClientIDCollision(%q) = %v, want %v", tc.reason, got, tc.want)
		}
	}
}
