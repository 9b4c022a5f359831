// Reserved-key sanitization.
//
// DESIGN: One reserved set serves every flow. A key lands here if it is a
// credential, a token, a key/value pair-encoding artifact, or a proxy
// control flag; none of them may ever reach a downstream API in a rewritten
// body or query. The auth flow's query sanitization additionally drops an
// OAuth authorization "code" parameter.
package flow

import (
	"strings"

	"github.com/logward/auth-gateway/internal/payload"
	"github.com/logward/auth-gateway/internal/utils"
)

// reservedKeys are matched case-insensitively. Both the snake_case and the
// folded camelCase spellings of the auto-fetch flag appear because clients
// send either.
var reservedKeys = map[string]bool{
	"client_id":     true,
	"client_secret": true,
	"grant_type":    true,
	"access_token":  true,
	"token":         true,
	"csrf":          true,
	"key":           true,
	"value":         true,
	"application":   true,
	"auto_fetch":    true,
	"autofetch":     true,
}

// authQueryDrops extends the reserved set with the authorization code
// parameter some IdP redirects append to the auth endpoint.
var authQueryDrops = func() map[string]bool {
	m := map[string]bool{"code": true}
	for k := range reservedKeys {
		m[k] = true
	}
	return m
}()

// sanitize copies params, dropping reserved keys and blank values. The
// result is safe to forward and safe to serialize.
func sanitize(p *payload.Params, drop map[string]bool) *payload.Params {
	out := payload.NewParams()
	p.Each(func(k, v string) {
		if drop[strings.ToLower(k)] {
			return
		}
		if utils.IsBlank(v) {
			return
		}
		out.Add(k, v)
	})
	return out
}
