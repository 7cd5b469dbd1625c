package client

import (
	"net/url"
	"strings"
)

// DeriveURLCandidates expands a configured gateway URL into the ordered list
// of endpoints to try. A bare origin (empty or "/" path) yields the URL
// itself plus the two conventional gateway mount points; a URL with an
// explicit path is used as-is.
func DeriveURLCandidates(raw string) []string {
	u, err := url.Parse(raw)
	if err != nil {
		return []string{raw}
	}
	if u.Path != "" && u.Path != "/" {
		return []string{raw}
	}
	origin := u.Scheme + "://" + u.Host
	return []string{raw, origin + "/gateway", origin + "/ws"}
}

// deriveClientIDCandidates builds the ordered client-id list: the primary id
// followed by any configured fallbacks, duplicates removed.
func deriveClientIDCandidates(primary string, fallbacks []string) []string {
	out := []string{primary}
	seen := map[string]bool{primary: true}
	for _, id := range fallbacks {
		if id == "" || seen[id] {
			continue
		}
		seen[id] = true
		out = append(out, id)
	}
	return out
}

// isClientIDCollision reports whether a close reason indicates the gateway
// rejected our client identifier as already connected.
func isClientIDCollision(reason string) bool {
	r := strings.ToLower(reason)
	if !strings.Contains(r, "client") {
		return false
	}
	for _, marker := range []string{"in use", "already connected", "duplicate", "taken", "collision", "conflict"} {
		if strings.Contains(r, marker) {
			return true
		}
	}
	return false
}
