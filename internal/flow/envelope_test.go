package flow

import "testing"

func TestBuildEnvelope(t *testing.T) {
	raw := `{"data":{"token":"T1","csrf":"C1","expiresIn":3600}}`

	env, ok := BuildEnvelope(raw)
	if !ok {
		t.Fatal("expected envelope")
	}
	want := `{"access_token":"T1","token_type":"Bearer","csrf":"C1","expires_in":3600}`
	if env.Body != want {
		t.Errorf("Body = %s\nwant  %s", env.Body, want)
	}
	if env.Token != "T1" || env.CSRF != "C1" {
		t.Errorf("Token/CSRF = %q/%q", env.Token, env.CSRF)
	}
}

func TestBuildEnvelopeExpiresFallback(t *testing.T) {
	env, ok := BuildEnvelope(`{"data":{"token":"T1","expires":7200}}`)
	if !ok {
		t.Fatal("expected envelope")
	}
	if env.Body != `{"access_token":"T1","token_type":"Bearer","expires_in":7200}` {
		t.Errorf("Body = %s", env.Body)
	}
}

func TestBuildEnvelopeExpiresInWins(t *testing.T) {
	env, ok := BuildEnvelope(`{"data":{"token":"T1","expiresIn":100,"expires":200}}`)
	if !ok {
		t.Fatal("expected envelope")
	}
	if env.Body != `{"access_token":"T1","token_type":"Bearer","expires_in":100}` {
		t.Errorf("Body = %s", env.Body)
	}
}

func TestBuildEnvelopeMinimal(t *testing.T) {
	env, ok := BuildEnvelope(`{"data":{"token":"T1"}}`)
	if !ok {
		t.Fatal("expected envelope")
	}
	if env.Body != `{"access_token":"T1","token_type":"Bearer"}` {
		t.Errorf("Body = %s", env.Body)
	}
}

func TestBuildEnvelopeStringExpiry(t *testing.T) {
	// A string-typed expiry stays a string.
	env, ok := BuildEnvelope(`{"data":{"token":"T1","expiresIn":"3600"}}`)
	if !ok {
		t.Fatal("expected envelope")
	}
	if env.Body != `{"access_token":"T1","token_type":"Bearer","expires_in":"3600"}` {
		t.Errorf("Body = %s", env.Body)
	}
}

func TestBuildEnvelopeRejects(t *testing.T) {
	tests := []struct {
		name string
		raw  string
	}{
		{"not json", "<html>service unavailable</html>"},
		{"no data", `{"error":"denied"}`},
		{"data without token", `{"data":{"csrf":"C1"}}`},
		{"empty", ""},
	}
	for _, tt := range tests {
		if _, ok := BuildEnvelope(tt.raw); ok {
			t.Errorf("%s: expected rejection", tt.name)
		}
	}
}

func TestBuildEnvelopeBlankCSRFOmitted(t *testing.T) {
	env, ok := BuildEnvelope(`{"data":{"token":"T1","csrf":"  "}}`)
	if !ok {
		t.Fatal("expected envelope")
	}
	if env.Body != `{"access_token":"T1","token_type":"Bearer"}` {
		t.Errorf("blank csrf should be omitted: %s", env.Body)
	}
}
