// Package authz implements the HTTP listener's authorization policy
// (spec.md §4.G): localhost is always allowed, remote HTTP is allowed only
// under "allow TLS-optional" with no password/group configured, and
// everything else requires HTTPS plus Basic credentials, a digest-style
// password hash match, or group membership. PAM itself is out of scope
// (spec.md §1); AuthBackend is a named interface a real deployment would
// back with PAM, following the teacher's local-role stub in
// server/authz-adjacent storage code (password hash + group membership
// both live in the same SQLite row there too).
package authz

import (
	"crypto/rand"
	"crypto/sha256"
	"crypto/subtle"
	"encoding/base64"
	"errors"
	"fmt"
	"strings"
	"unicode"

	"golang.org/x/crypto/argon2"
)

// Op classifies a request for the admin-group-vs-print-group half of the
// policy matrix (spec.md §4.G "group membership in the admin group (for
// admin operations) or print group (for submit operations)").
type Op int

const (
	OpAdmin Op = iota
	OpPrint
	OpOther
)

// ErrForbidden is returned for every authorization failure; the HTTP layer
// maps it to client-error-forbidden / 403 (spec.md §4.G).
var ErrForbidden = errors.New("authz: forbidden")

// Request describes one incoming connection's authorization-relevant
// facts, gathered by the HTTP listener before dispatch.
type Request struct {
	IsLocalhost bool
	IsTLS       bool
	Op          Op

	BasicUser     string
	BasicPass     string
	HasBasicCreds bool
}

// AuthBackend resolves group membership and, optionally, PAM-style
// password verification for a user. The stub LocalBackend (local.go) backs
// it with an in-memory group membership map and a single self-managed
// password; a production deployment swaps in a PAM-backed implementation
// behind the same interface (spec.md §1 "PAM ... external collaborator").
type AuthBackend interface {
	// InGroup reports whether user is a member of group.
	InGroup(user, group string) (bool, error)
	// VerifyPassword reports whether pass is the correct credential for
	// user (PAM-backed deployments check the system account; LocalBackend
	// checks the single configured admin password against every user).
	VerifyPassword(user, pass string) (bool, error)
}

// Policy evaluates spec.md §4.G's authorization matrix for one configured
// system.
type Policy struct {
	AllowTLSOptional bool
	AdminGroup       string
	PrintGroup       string
	// PasswordHash is the encoded argon2id hash of the self-managed admin
	// password, empty if unset. Used for the "no password / group
	// configured" remote-HTTP carve-out and the digest-style match.
	PasswordHash string

	Backend AuthBackend
}

// configured reports whether a password or group policy is in force,
// which disables the remote-HTTP-without-TLS carve-out (spec.md §4.G
// "allowed only if ... no password / group is configured").
func (p *Policy) configured() bool {
	return p.PasswordHash != "" || p.AdminGroup != "" || p.PrintGroup != ""
}

// Authorize implements the spec.md §4.G decision matrix, returning
// ErrForbidden on any denial.
func (p *Policy) Authorize(req Request) error {
	if req.IsLocalhost {
		return nil
	}
	if !req.IsTLS {
		if p.AllowTLSOptional && !p.configured() {
			return nil
		}
		return ErrForbidden
	}

	group := p.PrintGroup
	if req.Op == OpAdmin {
		group = p.AdminGroup
	}

	if req.HasBasicCreds {
		if p.Backend != nil {
			if ok, _ := p.Backend.VerifyPassword(req.BasicUser, req.BasicPass); ok {
				return nil
			}
		}
		if p.PasswordHash != "" {
			if ok, _ := VerifyPassword(req.BasicPass, p.PasswordHash); ok {
				return nil
			}
		}
		if group != "" && p.Backend != nil {
			if ok, _ := p.Backend.InGroup(req.BasicUser, group); ok {
				return nil
			}
		}
	}
	return ErrForbidden
}

// ValidatePassword enforces spec.md §4.G's self-managed password rule: at
// least 8 characters, containing upper, lower, and digit.
func ValidatePassword(pw string) error {
	if len(pw) < 8 {
		return fmt.Errorf("authz: password must be at least 8 characters")
	}
	var hasUpper, hasLower, hasDigit bool
	for _, r := range pw {
		switch {
		case unicode.IsUpper(r):
			hasUpper = true
		case unicode.IsLower(r):
			hasLower = true
		case unicode.IsDigit(r):
			hasDigit = true
		}
	}
	if !hasUpper || !hasLower || !hasDigit {
		return fmt.Errorf("authz: password must contain upper, lower, and digit characters")
	}
	return nil
}

// Argon2id parameters for the self-managed password hash, matching the
// teacher's server/storage/crypto.go defaults.
const (
	argonTime    = 1
	argonMemory  = 64 * 1024
	argonThreads = 2
	argonKeyLen  = 32
	argonSaltLen = 16
)

// HashPassword encodes pw as "$argon2id$v=19$m=...,t=...,p=...$salt$hash",
// validating it against ValidatePassword first.
func HashPassword(pw string) (string, error) {
	if err := ValidatePassword(pw); err != nil {
		return "", err
	}
	salt := make([]byte, argonSaltLen)
	if _, err := rand.Read(salt); err != nil {
		return "", fmt.Errorf("authz: generate salt: %w", err)
	}
	hash := argon2.IDKey([]byte(pw), salt, argonTime, argonMemory, argonThreads, argonKeyLen)
	return fmt.Sprintf("$argon2id$v=19$m=%d,t=%d,p=%d$%s$%s",
		argonMemory, argonTime, argonThreads,
		base64.RawStdEncoding.EncodeToString(salt),
		base64.RawStdEncoding.EncodeToString(hash)), nil
}

// VerifyPassword checks pw against an encoded hash produced by
// HashPassword, in constant time.
func VerifyPassword(pw, encoded string) (bool, error) {
	parts := strings.Split(encoded, "$")
	if len(parts) < 6 {
		return false, fmt.Errorf("authz: malformed password hash")
	}
	var memory, timeCost uint32
	var threads uint8
	if _, err := fmt.Sscanf(parts[3], "m=%d,t=%d,p=%d", &memory, &timeCost, &threads); err != nil {
		return false, fmt.Errorf("authz: malformed password hash params: %w", err)
	}
	salt, err := base64.RawStdEncoding.DecodeString(parts[4])
	if err != nil {
		return false, fmt.Errorf("authz: decode salt: %w", err)
	}
	expect, err := base64.RawStdEncoding.DecodeString(parts[5])
	if err != nil {
		return false, fmt.Errorf("authz: decode hash: %w", err)
	}
	got := argon2.IDKey([]byte(pw), salt, timeCost, memory, threads, uint32(len(expect)))
	return subtle.ConstantTimeCompare(got, expect) == 1, nil
}

// CSRFToken derives the form-POST session token of spec.md §4.G:
// "SHA-256(session-key + client hostname)".
func CSRFToken(sessionKey [32]byte, hostname string) string {
	sum := sha256.Sum256(append(sessionKey[:], []byte(hostname)...))
	return base64.RawURLEncoding.EncodeToString(sum[:])
}

// VerifyCSRFToken reports whether token matches the expected CSRF token
// for sessionKey and hostname, in constant time.
func VerifyCSRFToken(sessionKey [32]byte, hostname, token string) bool {
	expect := CSRFToken(sessionKey, hostname)
	return subtle.ConstantTimeCompare([]byte(expect), []byte(token)) == 1
}
