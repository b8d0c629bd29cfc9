package keytpl

import (
	"bytes"
	"crypto/sha256"
	"encoding/hex"
	"errors"
	"io"
	"net/http"
	"regexp"
	"sort"
	"strings"

	"github.com/gorilla/mux"
	"github.com/tidwall/gjson"
)

var placeholderPattern = regexp.MustCompile(`\{(body|query|params)\.([^}]+)\}`)

var errBodyTooLarge = errors.New("request body too large")

// RequestBody reads the full request body and restores it so downstream
// handlers can read it again.
func RequestBody(r *http.Request, maxBytes int64) ([]byte, error) {
	if r == nil || r.Body == nil {
		return nil, nil
	}
	if maxBytes <= 0 {
		maxBytes = 1024 * 1024
	}

	limited := io.LimitReader(r.Body, maxBytes+1)
	data, err := io.ReadAll(limited)
	if err != nil {
		return nil, err
	}
	if int64(len(data)) > maxBytes {
		return nil, errBodyTooLarge
	}

	r.Body = io.NopCloser(bytes.NewReader(data))
	return data, nil
}

// Resolve substitutes {body.x}, {query.x} and {params.x} placeholders with
// values from the request. Body paths follow gjson syntax, so nested fields
// like {body.order.id} work. Unresolvable placeholders become the empty
// string.
func Resolve(template string, r *http.Request, body []byte) string {
	return placeholderPattern.ReplaceAllStringFunc(template, func(match string) string {
		groups := placeholderPattern.FindStringSubmatch(match)
		source, path := groups[1], groups[2]
		switch source {
		case "body":
			return gjson.GetBytes(body, path).String()
		case "query":
			return r.URL.Query().Get(path)
		case "params":
			return mux.Vars(r)[path]
		}
		return ""
	})
}

// ResolveStrict is Resolve with completeness reporting: ok is false when
// any placeholder in the template resolved to the empty string. Callers that
// key mutual exclusion on the result should reject incomplete keys, or
// unrelated requests end up contending on the same partially-filled value.
func ResolveStrict(template string, r *http.Request, body []byte) (string, bool) {
	complete := true
	resolved := placeholderPattern.ReplaceAllStringFunc(template, func(match string) string {
		value := Resolve(match, r, body)
		if value == "" {
			complete = false
		}
		return value
	})
	return resolved, complete
}

// Digest fingerprints the whole request payload: method, path, sorted query
// string, route params and body. Used when no explicit key template is
// configured.
func Digest(r *http.Request, body []byte) string {
	h := sha256.New()
	h.Write([]byte(r.Method))
	h.Write([]byte{0})
	h.Write([]byte(r.URL.Path))
	h.Write([]byte{0})
	h.Write([]byte(canonicalQuery(r)))
	h.Write([]byte{0})
	h.Write([]byte(canonicalVars(r)))
	h.Write([]byte{0})
	h.Write(body)
	return hex.EncodeToString(h.Sum(nil))
}

func canonicalQuery(r *http.Request) string {
	query := r.URL.Query()
	keys := make([]string, 0, len(query))
	for key := range query {
		keys = append(keys, key)
	}
	sort.Strings(keys)

	var b strings.Builder
	for _, key := range keys {
		values := append([]string(nil), query[key]...)
		sort.Strings(values)
		for _, value := range values {
			b.WriteString(key)
			b.WriteByte('=')
			b.WriteString(value)
			b.WriteByte('&')
		}
	}
	return b.String()
}

func canonicalVars(r *http.Request) string {
	vars := mux.Vars(r)
	keys := make([]string, 0, len(vars))
	for key := range vars {
		keys = append(keys, key)
	}
	sort.Strings(keys)

	var b strings.Builder
	for _, key := range keys {
		b.WriteString(key)
		b.WriteByte('=')
		b.WriteString(vars[key])
		b.WriteByte('&')
	}
	return b.String()
}
