package auth

import (
	"context"
	"errors"
	"net/url"
	"testing"

	"watchtower/pkg/interfaces"
	"watchtower/pkg/types"
)

// fakeTokenStore serves a fixed token map.
type fakeTokenStore struct {
	tokens map[string]*types.Token
	err    error
}

func (f *fakeTokenStore) Create(ctx context.Context, userID string) (*types.Token, error) {
	return nil, errors.New("not implemented")
}

func (f *fakeTokenStore) Lookup(ctx context.Context, key string) (*types.Token, error) {
	if f.err != nil {
		return nil, f.err
	}
	if token, exists := f.tokens[key]; exists {
		return token, nil
	}
	return nil, interfaces.ErrTokenNotFound
}

func (f *fakeTokenStore) Delete(ctx context.Context, key string) error { return nil }
func (f *fakeTokenStore) OnDelete(hook func(key string))               {}
func (f *fakeTokenStore) Close() error                                 { return nil }

func query(pairs ...string) url.Values {
	values := url.Values{}
	for i := 0; i+1 < len(pairs); i += 2 {
		values.Set(pairs[i], pairs[i+1])
	}
	return values
}

func TestAuthenticate_ValidToken(t *testing.T) {
	store := &fakeTokenStore{tokens: map[string]*types.Token{
		"tok1": {Key: "tok1", UserID: "user1"},
	}}
	authenticator := NewAuthenticator(store, "secret")

	principal := authenticator.Authenticate(context.Background(), query("token", "tok1"))

	if !principal.HasUser() {
		t.Fatal("Expected a bound user")
	}
	if principal.UserID != "user1" || principal.TokenKey != "tok1" {
		t.Errorf("Unexpected principal: %+v", principal)
	}
	if !authenticator.Admit(principal) {
		t.Error("Token-bound principal should be admitted")
	}
}

func TestAuthenticate_UnboundToken(t *testing.T) {
	store := &fakeTokenStore{tokens: map[string]*types.Token{}}
	authenticator := NewAuthenticator(store, "secret")

	principal := authenticator.Authenticate(context.Background(), query("token", "nope"))

	if principal.HasUser() {
		t.Error("Unbound token must not bind a user")
	}
	if authenticator.Admit(principal) {
		t.Error("Anonymous principal must be refused")
	}
}

func TestAuthenticate_StoreFailureDegradesToRefusal(t *testing.T) {
	store := &fakeTokenStore{err: errors.New("database is down")}
	authenticator := NewAuthenticator(store, "")

	principal := authenticator.Authenticate(context.Background(), query("token", "tok1"))

	if principal.HasUser() {
		t.Error("Store failure must not bind a user")
	}
	if authenticator.Admit(principal) {
		t.Error("Store failure must refuse, not crash")
	}
}

func TestAdmit_CorrectPassword(t *testing.T) {
	authenticator := NewAuthenticator(&fakeTokenStore{}, "secret")

	principal := authenticator.Authenticate(context.Background(), query("password", "secret"))

	if principal.HasUser() {
		t.Error("Password principal carries no user")
	}
	if !authenticator.Admit(principal) {
		t.Error("Correct password should be admitted")
	}
}

func TestAdmit_WrongPassword(t *testing.T) {
	authenticator := NewAuthenticator(&fakeTokenStore{}, "secret")

	principal := authenticator.Authenticate(context.Background(), query("password", "wrong"))
	if authenticator.Admit(principal) {
		t.Error("Wrong password must be refused")
	}
}

func TestAdmit_PasswordPathDisabled(t *testing.T) {
	authenticator := NewAuthenticator(&fakeTokenStore{}, "")

	principal := authenticator.Authenticate(context.Background(), query("password", ""))
	if authenticator.Admit(principal) {
		t.Error("Empty configured password disables the password path")
	}

	principal = authenticator.Authenticate(context.Background(), query("password", "anything"))
	if authenticator.Admit(principal) {
		t.Error("No password may match when the path is disabled")
	}
}

func TestAdmit_ValidTokenBeatsWrongPassword(t *testing.T) {
	store := &fakeTokenStore{tokens: map[string]*types.Token{
		"tok1": {Key: "tok1", UserID: "user1"},
	}}
	authenticator := NewAuthenticator(store, "secret")

	principal := authenticator.Authenticate(context.Background(), query("token", "tok1", "password", "wrong"))
	if !authenticator.Admit(principal) {
		t.Error("A bound user admits regardless of the claimed password")
	}
}

func TestAuthenticate_NoCredentials(t *testing.T) {
	authenticator := NewAuthenticator(&fakeTokenStore{}, "secret")

	principal := authenticator.Authenticate(context.Background(), query())
	if principal.HasUser() || principal.ClaimedPassword != "" {
		t.Errorf("Expected anonymous principal, got %+v", principal)
	}
	if authenticator.Admit(principal) {
		t.Error("Anonymous principal must be refused")
	}
}
