package auth

import (
	"context"
	"crypto/subtle"
	"errors"
	"log"
	"net/url"

	"watchtower/pkg/interfaces"
)

// Principal is the result of authenticating a connection's query
// parameters. A bound user means the token path succeeded; a claimed
// password is carried verbatim for the admission gate to compare.
type Principal struct {
	UserID          string
	TokenKey        string
	ClaimedPassword string
}

// HasUser reports whether the token path bound a user to this principal.
func (p *Principal) HasUser() bool {
	return p.UserID != ""
}

// Authenticator validates connection credentials before the websocket
// upgrade. An invalid token is not an error: the absence of a bound user is
// itself the rejection signal, applied by Admit.
type Authenticator struct {
	tokens   interfaces.TokenStore
	password string
}

// NewAuthenticator creates an authenticator over the token store with the
// configured shared process password. An empty password disables the
// password path.
func NewAuthenticator(tokens interfaces.TokenStore, password string) *Authenticator {
	return &Authenticator{
		tokens:   tokens,
		password: password,
	}
}

// Authenticate inspects the connection's query parameters and produces a
// principal. Token lookup failures other than not-found are logged and
// treated as anonymous so a store hiccup degrades to a refusal, not a
// crash.
func (a *Authenticator) Authenticate(ctx context.Context, query url.Values) *Principal {
	principal := &Principal{}

	if key := query.Get("token"); key != "" {
		token, err := a.tokens.Lookup(ctx, key)
		switch {
		case err == nil:
			principal.UserID = token.UserID
			principal.TokenKey = token.Key
		case errors.Is(err, interfaces.ErrTokenNotFound):
			// Unbound token: principal stays anonymous.
		default:
			log.Printf("Token lookup failed: %v", err)
		}
	}

	if password := query.Get("password"); password != "" {
		principal.ClaimedPassword = password
	}

	return principal
}

// Admit is the hard authorization gate: a principal is admitted if it
// carries a bound user or its claimed password equals the configured shared
// secret. The comparison is constant-time.
func (a *Authenticator) Admit(p *Principal) bool {
	if p.HasUser() {
		return true
	}
	if a.password == "" || p.ClaimedPassword == "" {
		return false
	}
	return subtle.ConstantTimeCompare([]byte(a.password), []byte(p.ClaimedPassword)) == 1
}
