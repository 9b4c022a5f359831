// Snapshot construction: body and query parsing.
//
// FLOW: raw body + raw path-with-query -> Parse -> Snapshot{Body, Query}.
// A Snapshot is built once per intercepted request and discarded when the
// transform returns; nothing here retains references to it.
package payload

import (
	"net/url"
	"strings"

	"github.com/tidwall/gjson"

	"github.com/logward/auth-gateway/internal/utils"
)

// Snapshot is an immutable per-request view of an intercepted exchange.
type Snapshot struct {
	// RawBody is the body exactly as received. Transforms that bail out
	// return it untouched.
	RawBody string

	// Body holds the normalized body mapping; empty when the body could not
	// be interpreted at all.
	Body *Params

	// Query holds the normalized query-string mapping.
	Query *Params

	// Path is the request path with any query stripped.
	Path string

	// RawQuery is the query portion as received, without the leading "?".
	RawQuery string
}

// Parse builds a Snapshot from a raw body and a path-with-query string.
// It never fails: unparseable input just yields empty mappings.
func Parse(rawBody, pathWithQuery string) *Snapshot {
	path, rawQuery, _ := strings.Cut(pathWithQuery, "?")
	return &Snapshot{
		RawBody:  rawBody,
		Body:     parseBody(rawBody),
		Query:    ParseQuery(rawQuery),
		Path:     path,
		RawQuery: rawQuery,
	}
}

// Lookup finds key in the body mapping first, then the query mapping.
// Blank values are treated as absent, so callers only ever see usable data.
func (s *Snapshot) Lookup(key string) (string, bool) {
	if v, ok := s.Body.Get(key); ok && !utils.IsBlank(v) {
		return v, true
	}
	if v, ok := s.Query.Get(key); ok && !utils.IsBlank(v) {
		return v, true
	}
	return "", false
}

// ParseQuery splits a raw query string into Params.
//
// Pairs are &-separated and =-split; a pair with no "=" keeps an empty
// value, and pairs with an empty name are dropped. Percent-decoding failures
// keep the undecoded text rather than discarding the pair.
func ParseQuery(rawQuery string) *Params {
	params := NewParams()
	if rawQuery == "" {
		return params
	}
	for _, pair := range strings.Split(rawQuery, "&") {
		if pair == "" {
			continue
		}
		name, value, _ := strings.Cut(pair, "=")
		params.Add(decodeComponent(name), decodeComponent(value))
	}
	return params
}

func decodeComponent(s string) string {
	decoded, err := url.QueryUnescape(s)
	if err != nil {
		return s
	}
	return decoded
}

// parseBody normalizes a request body. Text that looks like JSON is parsed
// and flattened; everything else (and JSON that fails to parse) goes through
// the query-string rules, which is how form-urlencoded bodies arrive.
func parseBody(rawBody string) *Params {
	trimmed := strings.TrimSpace(rawBody)
	if trimmed == "" {
		return NewParams()
	}
	if trimmed[0] == '{' || trimmed[0] == '[' {
		if gjson.Valid(trimmed) {
			params := NewParams()
			flatten(gjson.Parse(trimmed), params)
			return params
		}
	}
	return ParseQuery(trimmed)
}

// flatten walks a JSON document and records leaf entries into params.
//
// Precedence rule: an object carrying both a "key" and a "value" property
// (any casing) is a key/value-pair encoding and contributes the single entry
// key=value — its other properties, such as "application", contribute
// nothing. Every other object contributes one entry per scalar property,
// recursing into nested objects and arrays. Arrays recurse element-wise.
// Scalars become their string forms (numbers and booleans included), so a
// JSON true lands as "true".
func flatten(doc gjson.Result, params *Params) {
	switch {
	case doc.IsArray():
		doc.ForEach(func(_, item gjson.Result) bool {
			flatten(item, params)
			return true
		})
	case doc.IsObject():
		if k, v, ok := pairEncoding(doc); ok {
			params.Add(k, v)
			return
		}
		doc.ForEach(func(key, value gjson.Result) bool {
			if value.IsObject() || value.IsArray() {
				flatten(value, params)
			} else {
				params.Add(key.String(), value.String())
			}
			return true
		})
	}
}

// pairEncoding detects the {key, value, ...} object shape.
func pairEncoding(doc gjson.Result) (key, value string, ok bool) {
	var keyRes, valueRes gjson.Result
	var hasKey, hasValue bool
	doc.ForEach(func(k, v gjson.Result) bool {
		switch strings.ToLower(k.String()) {
		case "key":
			if !hasKey {
				keyRes, hasKey = v, true
			}
		case "value":
			if !hasValue {
				valueRes, hasValue = v, true
			}
		}
		return true
	})
	if !hasKey || !hasValue {
		return "", "", false
	}
	return keyRes.String(), valueRes.String(), true
}
