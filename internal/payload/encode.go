// Params re-encoding for rebuilt requests.
//
// DESIGN: Both encoders preserve insertion order. url.Values.Encode would
// sort keys alphabetically, which reorders form bodies that upstreams
// compare against their documented field order, and map-based JSON
// marshaling would randomize key order between runs.
package payload

import (
	"net/url"
	"strings"

	"github.com/tidwall/sjson"
)

// EncodeJSON serializes params as a flat JSON object of string values.
func EncodeJSON(p *Params) string {
	body := "{}"
	p.Each(func(k, v string) {
		body, _ = sjson.Set(body, sjsonKey(k), v)
	})
	return body
}

// sjsonKey escapes path metacharacters so a literal key like "filter.srcIp"
// sets one top-level field instead of nesting.
func sjsonKey(k string) string {
	var b strings.Builder
	for i := 0; i < len(k); i++ {
		switch k[i] {
		case '.', '\\', '*', '?', '|':
			b.WriteByte('\\')
		}
		b.WriteByte(k[i])
	}
	return b.String()
}

// EncodeQuery serializes params as a percent-encoded query string, usable
// both on URLs and as a form-urlencoded body.
func EncodeQuery(p *Params) string {
	var b strings.Builder
	p.Each(func(k, v string) {
		if b.Len() > 0 {
			b.WriteByte('&')
		}
		b.WriteString(url.QueryEscape(k))
		b.WriteByte('=')
		b.WriteString(url.QueryEscape(v))
	})
	return b.String()
}
