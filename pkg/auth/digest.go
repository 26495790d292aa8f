// Package auth implements HTTP digest authentication (RFC 2617, qop=auth)
// for the web adapter.
//
// The response hash is
//
//	MD5(MD5(user:realm:password):nonce:nc:cnonce:qop:MD5(method:uri))
//
// with every digest rendered as lowercase hex. Nonces are random but are not
// tracked, so a captured Authorization header can be replayed.
package auth

import (
	"crypto/md5"
	"crypto/subtle"
	"encoding/hex"
	"errors"
	"fmt"
	"strings"

	"github.com/google/uuid"
)

// Scheme is the authentication scheme name.
const Scheme = "Digest"

// QopAuth is the only quality of protection offered.
const QopAuth = "auth"

var (
	// ErrNotDigest is returned when the Authorization header uses another scheme.
	ErrNotDigest = errors.New("authorization scheme is not Digest")

	// ErrMalformed is returned for an unparseable parameter list.
	ErrMalformed = errors.New("malformed digest parameters")
)

// Params are the fields of a Digest Authorization header.
type Params struct {
	Username string
	Realm    string
	Nonce    string
	URI      string
	NC       string
	CNonce   string
	Qop      string
	Response string
}

// ParseDigest parses an Authorization header value of the form
// `Digest k="v", k=v, ...`. Unknown keys are ignored and keys match
// case-insensitively.
func ParseDigest(header string) (*Params, error) {
	header = strings.TrimSpace(header)
	scheme, rest, _ := strings.Cut(header, " ")
	if !strings.EqualFold(scheme, Scheme) {
		return nil, ErrNotDigest
	}

	fields, err := parseParams(rest)
	if err != nil {
		return nil, err
	}

	p := &Params{
		Username: fields["username"],
		Realm:    fields["realm"],
		Nonce:    fields["nonce"],
		URI:      fields["uri"],
		NC:       fields["nc"],
		CNonce:   fields["cnonce"],
		Qop:      fields["qop"],
		Response: fields["response"],
	}
	if p.Username == "" || p.Response == "" {
		return nil, fmt.Errorf("%w: username and response are required", ErrMalformed)
	}
	return p, nil
}

// parseParams splits a comma separated list of key=value pairs where values
// may be quoted strings containing commas and backslash escapes.
func parseParams(s string) (map[string]string, error) {
	out := make(map[string]string)
	i := 0
	for {
		for i < len(s) && (s[i] == ' ' || s[i] == '\t' || s[i] == ',') {
			i++
		}
		if i >= len(s) {
			return out, nil
		}

		eq := strings.IndexByte(s[i:], '=')
		if eq <= 0 {
			return nil, fmt.Errorf("%w: missing '=' near %q", ErrMalformed, s[i:])
		}
		key := strings.ToLower(strings.TrimSpace(s[i : i+eq]))
		i += eq + 1
		for i < len(s) && (s[i] == ' ' || s[i] == '\t') {
			i++
		}

		var val strings.Builder
		if i < len(s) && s[i] == '"' {
			i++
			closed := false
			for i < len(s) {
				c := s[i]
				if c == '\\' && i+1 < len(s) {
					val.WriteByte(s[i+1])
					i += 2
					continue
				}
				i++
				if c == '"' {
					closed = true
					break
				}
				val.WriteByte(c)
			}
			if !closed {
				return nil, fmt.Errorf("%w: unterminated quoted value for %s", ErrMalformed, key)
			}
		} else {
			start := i
			for i < len(s) && s[i] != ',' {
				i++
			}
			val.WriteString(strings.TrimSpace(s[start:i]))
		}

		if _, dup := out[key]; !dup {
			out[key] = val.String()
		}
	}
}

// md5Hex returns the lowercase, zero padded hex MD5 of s.
func md5Hex(s string) string {
	sum := md5.Sum([]byte(s))
	return hex.EncodeToString(sum[:])
}

// ExpectedResponse computes the digest a client knowing password must send
// for a request with the given method and request URI.
func ExpectedResponse(p *Params, password, method, uri string) string {
	ha1 := md5Hex(p.Username + ":" + p.Realm + ":" + password)
	ha2 := md5Hex(method + ":" + uri)
	return md5Hex(strings.Join([]string{ha1, p.Nonce, p.NC, p.CNonce, p.Qop, ha2}, ":"))
}

// Verify reports whether the client's response matches the expected digest.
func Verify(p *Params, password, method, uri string) bool {
	want := ExpectedResponse(p, password, method, uri)
	return subtle.ConstantTimeCompare([]byte(want), []byte(strings.ToLower(p.Response))) == 1
}

// NewNonce returns a fresh random nonce.
func NewNonce() string {
	return strings.ReplaceAll(uuid.NewString(), "-", "")
}

// Challenge renders a WWW-Authenticate header value for realm.
func Challenge(realm, nonce string) string {
	return fmt.Sprintf(`%s realm=%q, qop="%s", nonce=%q`, Scheme, realm, QopAuth, nonce)
}
