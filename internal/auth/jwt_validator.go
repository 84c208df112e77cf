package auth

import (
	"errors"
	"fmt"
	"slices"
	"strings"
	"time"

	"github.com/lestrrat-go/jwx/v2/jwa"
	"github.com/lestrrat-go/jwx/v2/jws"
	"github.com/lestrrat-go/jwx/v2/jwt"
)

// AdminRole is the role claim required to change pricing configuration.
const AdminRole = "pricing_admin"

var (
	// ErrInvalidToken covers signature, structure and registered-claim failures.
	ErrInvalidToken = errors.New("auth: invalid token")
	// ErrMissingRole is returned when a valid token lacks the required role.
	ErrMissingRole = errors.New("auth: required role missing")
)

// TokenValidator validates structural and contextual properties of JWT tokens.
type TokenValidator struct {
	Issuer    string
	Audience  string
	ClockSkew time.Duration
	Algorithm jwa.SignatureAlgorithm
}

// Validate ensures the supplied token satisfies issuer, audience, expiry, and algorithm requirements.
func (v TokenValidator) Validate(tok jwt.Token, algorithm jwa.SignatureAlgorithm, now time.Time) error {
	if tok == nil {
		return errors.New("auth: token is nil")
	}
	if algorithm == "" {
		return errors.New("auth: token missing algorithm")
	}
	if v.Algorithm != "" && algorithm != v.Algorithm {
		return fmt.Errorf("auth: unexpected token algorithm %s", algorithm)
	}

	options := []jwt.ValidateOption{
		jwt.WithClock(jwt.ClockFunc(func() time.Time { return now })),
		jwt.WithRequiredClaim(jwt.SubjectKey),
	}
	if v.ClockSkew > 0 {
		options = append(options, jwt.WithAcceptableSkew(v.ClockSkew))
	}
	if v.Issuer != "" {
		options = append(options, jwt.WithIssuer(v.Issuer))
	}
	if v.Audience != "" {
		options = append(options, jwt.WithAudience(v.Audience))
	}
	return jwt.Validate(tok, options...)
}

// Verifier checks HS256 admin tokens issued by the back office.
type Verifier struct {
	secret    []byte
	validator TokenValidator
	role      string
	now       func() time.Time
}

// NewVerifier returns a Verifier requiring AdminRole.
func NewVerifier(secret string, validator TokenValidator) *Verifier {
	if validator.Algorithm == "" {
		validator.Algorithm = jwa.HS256
	}
	return &Verifier{secret: []byte(secret), validator: validator, role: AdminRole, now: time.Now}
}

// Verify parses and validates raw and returns its subject.
func (v *Verifier) Verify(raw string) (string, error) {
	raw = strings.TrimSpace(raw)
	algorithm, err := tokenAlgorithm(raw)
	if err != nil {
		return "", fmt.Errorf("%w: %v", ErrInvalidToken, err)
	}
	if algorithm != v.validator.Algorithm {
		return "", fmt.Errorf("%w: unexpected algorithm %s", ErrInvalidToken, algorithm)
	}
	tok, err := jwt.ParseString(raw, jwt.WithKey(algorithm, v.secret), jwt.WithValidate(false))
	if err != nil {
		return "", fmt.Errorf("%w: %v", ErrInvalidToken, err)
	}
	if err := v.validator.Validate(tok, algorithm, v.now()); err != nil {
		return "", fmt.Errorf("%w: %v", ErrInvalidToken, err)
	}
	if !hasRole(tok, v.role) {
		return tok.Subject(), ErrMissingRole
	}
	return tok.Subject(), nil
}

func tokenAlgorithm(raw string) (jwa.SignatureAlgorithm, error) {
	message, err := jws.ParseString(raw)
	if err != nil {
		return "", err
	}
	signatures := message.Signatures()
	if len(signatures) != 1 {
		return "", fmt.Errorf("expected one signature, got %d", len(signatures))
	}
	headers := signatures[0].ProtectedHeaders()
	if headers == nil {
		return "", errors.New("token missing protected headers")
	}
	alg := headers.Algorithm()
	if alg == "" || alg == jwa.NoSignature {
		return "", errors.New("token has no usable algorithm")
	}
	return alg, nil
}

// hasRole accepts either a "role" string claim or a "roles" array claim.
func hasRole(tok jwt.Token, role string) bool {
	if v, ok := tok.Get("role"); ok {
		if s, ok := v.(string); ok && s == role {
			return true
		}
	}
	v, ok := tok.Get("roles")
	if !ok {
		return false
	}
	switch roles := v.(type) {
	case []string:
		return slices.Contains(roles, role)
	case []any:
		for _, r := range roles {
			if s, ok := r.(string); ok && s == role {
				return true
			}
		}
	}
	return false
}
