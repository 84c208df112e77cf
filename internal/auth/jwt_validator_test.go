package auth

import (
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/lestrrat-go/jwx/v2/jwa"
	"github.com/lestrrat-go/jwx/v2/jwt"
	"github.com/rs/zerolog"

	"github.com/noah-isme/backend-metrature/internal/common"
)

const testSecret = "pricing-admin-secret"

func adminToken(t *testing.T, now time.Time, mutate func(*jwt.Builder) *jwt.Builder) jwt.Token {
	t.Helper()
	b := jwt.NewBuilder().
		Issuer("erp").
		Audience([]string{"pricing"}).
		Subject("admin@example.com").
		IssuedAt(now).
		NotBefore(now).
		Expiration(now.Add(time.Minute))
	if mutate != nil {
		b = mutate(b)
	}
	tok, err := b.Build()
	if err != nil {
		t.Fatalf("build token: %v", err)
	}
	return tok
}

func sign(t *testing.T, tok jwt.Token, alg jwa.SignatureAlgorithm, key any) string {
	t.Helper()
	signed, err := jwt.Sign(tok, jwt.WithKey(alg, key))
	if err != nil {
		t.Fatalf("sign token: %v", err)
	}
	return string(signed)
}

func TestTokenValidatorValidate(t *testing.T) {
	now := time.Now()
	validator := TokenValidator{Issuer: "erp", Audience: "pricing", ClockSkew: time.Second, Algorithm: jwa.HS256}

	cases := []struct {
		name    string
		mutate  func(*jwt.Builder) *jwt.Builder
		alg     jwa.SignatureAlgorithm
		wantErr bool
	}{
		{name: "valid", alg: jwa.HS256},
		{name: "issuer mismatch", alg: jwa.HS256, wantErr: true, mutate: func(b *jwt.Builder) *jwt.Builder { return b.Issuer("shop") }},
		{name: "expired", alg: jwa.HS256, wantErr: true, mutate: func(b *jwt.Builder) *jwt.Builder {
			return b.IssuedAt(now.Add(-2 * time.Hour)).NotBefore(now.Add(-2 * time.Hour)).Expiration(now.Add(-time.Minute))
		}},
		{name: "not yet valid", alg: jwa.HS256, wantErr: true, mutate: func(b *jwt.Builder) *jwt.Builder {
			return b.NotBefore(now.Add(5 * time.Minute)).Expiration(now.Add(10 * time.Minute))
		}},
		{name: "algorithm mismatch", alg: jwa.RS256, wantErr: true},
		{name: "missing algorithm", alg: "", wantErr: true},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			err := validator.Validate(adminToken(t, now, tc.mutate), tc.alg, now)
			if tc.wantErr && err == nil {
				t.Fatal("expected validation error")
			}
			if !tc.wantErr && err != nil {
				t.Fatalf("validate: %v", err)
			}
		})
	}
}

func TestVerifierAcceptsAdminRole(t *testing.T) {
	now := time.Now()
	v := NewVerifier(testSecret, TokenValidator{Issuer: "erp", Audience: "pricing"})
	v.now = func() time.Time { return now }

	role := adminToken(t, now, func(b *jwt.Builder) *jwt.Builder { return b.Claim("role", AdminRole) })
	sub, err := v.Verify(sign(t, role, jwa.HS256, []byte(testSecret)))
	if err != nil {
		t.Fatalf("verify role claim: %v", err)
	}
	if sub != "admin@example.com" {
		t.Fatalf("unexpected subject %q", sub)
	}

	roles := adminToken(t, now, func(b *jwt.Builder) *jwt.Builder {
		return b.Claim("roles", []string{"viewer", AdminRole})
	})
	if _, err := v.Verify(sign(t, roles, jwa.HS256, []byte(testSecret))); err != nil {
		t.Fatalf("verify roles claim: %v", err)
	}
}

func TestVerifierRejections(t *testing.T) {
	now := time.Now()
	v := NewVerifier(testSecret, TokenValidator{Issuer: "erp", Audience: "pricing"})
	v.now = func() time.Time { return now }
	withRole := func(b *jwt.Builder) *jwt.Builder { return b.Claim("role", AdminRole) }

	viewer := sign(t, adminToken(t, now, nil), jwa.HS256, []byte(testSecret))
	if _, err := v.Verify(viewer); !errors.Is(err, ErrMissingRole) {
		t.Fatalf("expected ErrMissingRole, got %v", err)
	}

	wrongKey := sign(t, adminToken(t, now, withRole), jwa.HS256, []byte("other-secret"))
	if _, err := v.Verify(wrongKey); !errors.Is(err, ErrInvalidToken) {
		t.Fatalf("expected ErrInvalidToken for wrong key, got %v", err)
	}

	otherAlg := sign(t, adminToken(t, now, withRole), jwa.HS512, []byte(testSecret))
	if _, err := v.Verify(otherAlg); !errors.Is(err, ErrInvalidToken) {
		t.Fatalf("expected ErrInvalidToken for HS512, got %v", err)
	}

	if _, err := v.Verify("not-a-token"); !errors.Is(err, ErrInvalidToken) {
		t.Fatalf("expected ErrInvalidToken for garbage, got %v", err)
	}
}

func TestRequireAdmin(t *testing.T) {
	now := time.Now()
	v := NewVerifier(testSecret, TokenValidator{})
	v.now = func() time.Time { return now }
	mw := Middleware{Verifier: v, Logger: zerolog.Nop()}

	var seen string
	h := mw.RequireAdmin(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		seen, _ = common.Subject(r.Context())
		w.WriteHeader(http.StatusNoContent)
	}))

	admin := sign(t, adminToken(t, now, func(b *jwt.Builder) *jwt.Builder { return b.Claim("role", AdminRole) }), jwa.HS256, []byte(testSecret))
	viewer := sign(t, adminToken(t, now, nil), jwa.HS256, []byte(testSecret))

	cases := []struct {
		name   string
		header string
		want   int
	}{
		{name: "admin", header: "Bearer " + admin, want: http.StatusNoContent},
		{name: "lowercase scheme", header: "bearer " + admin, want: http.StatusNoContent},
		{name: "viewer", header: "Bearer " + viewer, want: http.StatusForbidden},
		{name: "missing", header: "", want: http.StatusUnauthorized},
		{name: "basic", header: "Basic YWRtaW46YWRtaW4=", want: http.StatusUnauthorized},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			seen = ""
			req := httptest.NewRequest(http.MethodPut, "/api/v1/items/PANEL/tiers", nil)
			if tc.header != "" {
				req.Header.Set("Authorization", tc.header)
			}
			rec := httptest.NewRecorder()
			h.ServeHTTP(rec, req)
			if rec.Code != tc.want {
				t.Fatalf("status = %d, want %d (%s)", rec.Code, tc.want, rec.Body.String())
			}
			if tc.want == http.StatusNoContent && seen != "admin@example.com" {
				t.Fatalf("subject not propagated: %q", seen)
			}
		})
	}
}
