package relay

import (
	"strings"
	"testing"
)

func TestResolveUserIDHashesTokenDeterministically(t *testing.T) {
	a := ResolveUserID("secret-token")
	b := ResolveUserID("secret-token")
	if a != b {
		t.Fatalf("same token produced %q and %q", a, b)
	}
	if !strings.HasPrefix(a, "user-") {
		t.Fatalf("id = %q, want user- prefix", a)
	}
	if strings.Contains(a, "secret-token") {
		t.Fatalf("id %q embeds the raw token", a)
	}
	if ResolveUserID("other-token") == a {
		t.Fatalf("distinct tokens mapped to the same id")
	}
	if ResolveUserID(" secret-token ") != a {
		t.Fatalf("surrounding whitespace changed the id")
	}
}

func TestResolveUserIDAnonymousIsPerCall(t *testing.T) {
	seen := make(map[string]bool)
	for i := 0; i < 50; i++ {
		id := ResolveUserID("")
		if !strings.HasPrefix(id, "anonymous-") {
			t.Fatalf("id = %q, want anonymous- prefix", id)
		}
		if seen[id] {
			t.Fatalf("anonymous id %q repeated", id)
		}
		seen[id] = true
	}
}
