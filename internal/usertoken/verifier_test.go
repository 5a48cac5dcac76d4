package usertoken

import (
	"testing"
	"time"

	jwt "github.com/golang-jwt/jwt/v5"
)

func newTestVerifier(t *testing.T) *Verifier {
	t.Helper()
	v, err := NewVerifier(Config{Secret: "test-secret"})
	if err != nil {
		t.Fatalf("new verifier: %v", err)
	}
	return v
}

func TestSignAndVerifyRoundTrip(t *testing.T) {
	v := newTestVerifier(t)

	token, err := v.Sign("user-42")
	if err != nil {
		t.Fatalf("sign: %v", err)
	}
	subject, err := v.VerifySubject(token)
	if err != nil {
		t.Fatalf("verify: %v", err)
	}
	if subject != "user-42" {
		t.Fatalf("subject = %q, want user-42", subject)
	}
}

func TestVerifyRejectsWrongSecret(t *testing.T) {
	v := newTestVerifier(t)
	other, err := NewVerifier(Config{Secret: "other-secret"})
	if err != nil {
		t.Fatalf("new verifier: %v", err)
	}

	token, err := other.Sign("user-42")
	if err != nil {
		t.Fatalf("sign: %v", err)
	}
	if _, err := v.VerifySubject(token); err == nil {
		t.Fatal("expected verification failure for wrong secret")
	}
}

func TestVerifyRejectsExpiredToken(t *testing.T) {
	v := newTestVerifier(t)

	now := time.Now().Add(-2 * time.Hour)
	claims := jwt.RegisteredClaims{
		Subject:   "user-42",
		Issuer:    defaultIssuer,
		Audience:  jwt.ClaimStrings{defaultAudience},
		IssuedAt:  jwt.NewNumericDate(now),
		ExpiresAt: jwt.NewNumericDate(now.Add(time.Minute)),
	}
	token, err := jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString([]byte("test-secret"))
	if err != nil {
		t.Fatalf("sign expired token: %v", err)
	}
	if _, err := v.VerifySubject(token); err == nil {
		t.Fatal("expected verification failure for expired token")
	}
}

func TestVerifyRejectsUnsignedToken(t *testing.T) {
	v := newTestVerifier(t)

	claims := jwt.RegisteredClaims{
		Subject:   "user-42",
		Issuer:    defaultIssuer,
		Audience:  jwt.ClaimStrings{defaultAudience},
		ExpiresAt: jwt.NewNumericDate(time.Now().Add(time.Hour)),
	}
	token, err := jwt.NewWithClaims(jwt.SigningMethodNone, claims).SignedString(jwt.UnsafeAllowNoneSignatureType)
	if err != nil {
		t.Fatalf("sign none token: %v", err)
	}
	if _, err := v.VerifySubject(token); err == nil {
		t.Fatal("expected verification failure for alg=none token")
	}
}
