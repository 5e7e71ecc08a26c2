package ingest

import (
	"crypto/subtle"
	"errors"
	"net/http"
	"strings"
)

var ErrUnauthorized = errors.New("unauthorized")

const (
	HeaderAPIKey        = "X-API"
	HeaderAuthorization = "Authorization"
)

// SecretAuthenticator gates deliveries on a single shared secret. An empty secret
// disables the check.
type SecretAuthenticator struct {
	Secret string
}

// Authenticate checks the request headers only, so it can run before the body is read.
// X-API takes precedence; Authorization is consulted only when X-API is absent.
func (a *SecretAuthenticator) Authenticate(r *http.Request) error {
	if a == nil || a.Secret == "" {
		return nil
	}
	presented := strings.TrimSpace(r.Header.Get(HeaderAPIKey))
	if presented == "" {
		presented = strings.TrimSpace(r.Header.Get(HeaderAuthorization))
	}
	if presented == "" {
		return ErrUnauthorized
	}
	if subtle.ConstantTimeCompare([]byte(presented), []byte(a.Secret)) != 1 {
		return ErrUnauthorized
	}
	return nil
}
