package authz

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestAuthorizeLocalhostAlwaysAllowed(t *testing.T) {
	p := &Policy{AdminGroup: "lp-admin", PrintGroup: "lp", PasswordHash: "$argon2id$v=19$m=1,t=1,p=1$aa$bb"}
	err := p.Authorize(Request{IsLocalhost: true, IsTLS: false, Op: OpAdmin})
	assert.NoError(t, err)
}

func TestAuthorizeRemoteHTTPRequiresTLSOptionalAndUnconfigured(t *testing.T) {
	p := &Policy{AllowTLSOptional: true}
	assert.NoError(t, p.Authorize(Request{IsTLS: false, Op: OpPrint}))

	p.AdminGroup = "lp-admin"
	assert.ErrorIs(t, p.Authorize(Request{IsTLS: false, Op: OpPrint}), ErrForbidden)
}

func TestAuthorizeRemoteHTTPDeniedWithoutTLSOptional(t *testing.T) {
	p := &Policy{}
	assert.ErrorIs(t, p.Authorize(Request{IsTLS: false, Op: OpPrint}), ErrForbidden)
}

func TestAuthorizeTLSWithWrongPasswordDenied(t *testing.T) {
	hash, err := HashPassword("Correct1horse")
	require.NoError(t, err)
	p := &Policy{PasswordHash: hash}

	err = p.Authorize(Request{IsTLS: true, Op: OpAdmin, HasBasicCreds: true, BasicUser: "admin", BasicPass: "wrong"})
	assert.ErrorIs(t, err, ErrForbidden)
}

func TestAuthorizeTLSWithCorrectPasswordAllowed(t *testing.T) {
	hash, err := HashPassword("Correct1horse")
	require.NoError(t, err)
	p := &Policy{PasswordHash: hash}

	err = p.Authorize(Request{IsTLS: true, Op: OpAdmin, HasBasicCreds: true, BasicUser: "admin", BasicPass: "Correct1horse"})
	assert.NoError(t, err)
}

func TestAuthorizeTLSWithGroupMembershipAllowed(t *testing.T) {
	backend := NewLocalBackend()
	backend.AddToGroup("alice", "lp")
	p := &Policy{PrintGroup: "lp", Backend: backend}

	err := p.Authorize(Request{IsTLS: true, Op: OpPrint, HasBasicCreds: true, BasicUser: "alice", BasicPass: "irrelevant"})
	assert.NoError(t, err)
}

func TestAuthorizeTLSWithoutCredsDenied(t *testing.T) {
	p := &Policy{PasswordHash: "$argon2id$v=19$m=1,t=1,p=1$aa$bb"}
	err := p.Authorize(Request{IsTLS: true, Op: OpAdmin})
	assert.ErrorIs(t, err, ErrForbidden)
}

func TestValidatePasswordRules(t *testing.T) {
	assert.NoError(t, ValidatePassword("Abcdefg1"))
	assert.Error(t, ValidatePassword("short1A"))
	assert.Error(t, ValidatePassword("alllower1"))
	assert.Error(t, ValidatePassword("ALLUPPER1"))
	assert.Error(t, ValidatePassword("NoDigitsHere"))
}

func TestHashAndVerifyPasswordRoundTrip(t *testing.T) {
	hash, err := HashPassword("Sup3rSecret")
	require.NoError(t, err)

	ok, err := VerifyPassword("Sup3rSecret", hash)
	require.NoError(t, err)
	assert.True(t, ok)

	ok, err = VerifyPassword("WrongPass1", hash)
	require.NoError(t, err)
	assert.False(t, ok)
}

func TestCSRFTokenRoundTrip(t *testing.T) {
	var key [32]byte
	copy(key[:], "some-session-key-bytes-00000000")

	token := CSRFToken(key, "printer.local")
	assert.True(t, VerifyCSRFToken(key, "printer.local", token))
	assert.False(t, VerifyCSRFToken(key, "other-host", token))
}

func TestLocalBackendGroupAndPassword(t *testing.T) {
	b := NewLocalBackend()
	require.NoError(t, b.SetPassword("Abcdefg1"))

	ok, err := b.VerifyPassword("anyone", "Abcdefg1")
	require.NoError(t, err)
	assert.True(t, ok)

	ok, err = b.InGroup("bob", "lp-admin")
	require.NoError(t, err)
	assert.False(t, ok)

	b.AddToGroup("bob", "lp-admin")
	ok, err = b.InGroup("bob", "lp-admin")
	require.NoError(t, err)
	assert.True(t, ok)
}
