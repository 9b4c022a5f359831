package flow

import (
	"testing"

	"github.com/logward/auth-gateway/internal/payload"
)

func TestSanitizeDropsReservedKeys(t *testing.T) {
	p := payload.NewParams()
	p.Add("client_id", "abc")
	p.Add("CLIENT_SECRET", "xyz")
	p.Add("Access_Token", "tok")
	p.Add("timeframe", "last24h")
	p.Add("AutoFetch", "true")
	p.Add("application", "smartlog")
	p.Add("limit", "50")

	out := sanitize(p, reservedKeys)

	if out.Len() != 2 {
		t.Fatalf("got %d entries, want 2", out.Len())
	}
	if v, _ := out.Get("timeframe"); v != "last24h" {
		t.Errorf("timeframe = %q", v)
	}
	if v, _ := out.Get("limit"); v != "50" {
		t.Errorf("limit = %q", v)
	}
	for _, k := range []string{"client_id", "client_secret", "access_token", "autofetch", "application"} {
		if out.Has(k) {
			t.Errorf("reserved key %q survived sanitization", k)
		}
	}
}

func TestSanitizeDropsBlankValues(t *testing.T) {
	p := payload.NewParams()
	p.Add("keep", "x")
	p.Add("empty", "")
	p.Add("spaces", "   ")

	out := sanitize(p, reservedKeys)
	if out.Len() != 1 || !out.Has("keep") {
		t.Errorf("sanitized = %d entries", out.Len())
	}
}

func TestAuthQueryDropsIncludeCode(t *testing.T) {
	p := payload.NewParams()
	p.Add("code", "authz-code")
	p.Add("auto_fetch", "1")
	p.Add("tenant", "acme")

	out := sanitize(p, authQueryDrops)
	if out.Len() != 1 || !out.Has("tenant") {
		t.Errorf("expected only tenant to survive, got %d entries", out.Len())
	}
}

