// Canonical token envelope construction.
//
// FLOW: provider JSON {data:{token, csrf?, expiresIn?|expires?}} ->
// {access_token, token_type:"Bearer", csrf?, expires_in?}. Callers return
// the raw upstream body untouched whenever no envelope can be built.
package flow

import (
	"github.com/tidwall/gjson"
	"github.com/tidwall/sjson"

	"github.com/logward/auth-gateway/internal/utils"
)

// Envelope is the canonical token response handed back to the caller.
type Envelope struct {
	// Body is the serialized envelope JSON.
	Body string

	// Token is the extracted access token, empty when the provider sent a
	// blank one.
	Token string

	// CSRF is the session token from the provider response, if any.
	CSRF string
}

// BuildEnvelope reshapes a provider auth response into the canonical token
// envelope. It reports false when rawBody is not JSON or carries no
// data.token field; the caller then passes the raw body through.
func BuildEnvelope(rawBody string) (*Envelope, bool) {
	if !gjson.Valid(rawBody) {
		return nil, false
	}

	token := gjson.Get(rawBody, "data.token")
	if !token.Exists() {
		return nil, false
	}

	body := "{}"
	body, _ = sjson.Set(body, "access_token", token.String())
	body, _ = sjson.Set(body, "token_type", "Bearer")

	csrf := gjson.Get(rawBody, "data.csrf")
	if csrf.Exists() && !utils.IsBlank(csrf.String()) {
		body, _ = sjson.Set(body, "csrf", csrf.String())
	}

	// expiresIn wins over expires when both are present. SetRaw keeps the
	// provider's JSON type: a numeric 3600 stays a number.
	if exp := gjson.Get(rawBody, "data.expiresIn"); exp.Exists() {
		body, _ = sjson.SetRaw(body, "expires_in", exp.Raw)
	} else if exp := gjson.Get(rawBody, "data.expires"); exp.Exists() {
		body, _ = sjson.SetRaw(body, "expires_in", exp.Raw)
	}

	return &Envelope{
		Body:  body,
		Token: token.String(),
		CSRF:  csrf.String(),
	}, true
}
