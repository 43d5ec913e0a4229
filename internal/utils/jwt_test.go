package utils

import (
	"encoding/base64"
	"encoding/json"
	"errors"
	"strings"
	"testing"
	"time"

	"github.com/golang-jwt/jwt/v5"
)

func decodeSegment(t *testing.T, token string, i int) map[string]any {
	t.Helper()
	parts := strings.Split(token, ".")
	if len(parts) != 3 {
		t.Fatalf("token has %d segments, want 3", len(parts))
	}
	raw, err := base64.RawURLEncoding.DecodeString(parts[i])
	if err != nil {
		t.Fatalf("segment %d is not base64url: %v", i, err)
	}
	var m map[string]any
	if err := json.Unmarshal(raw, &m); err != nil {
		t.Fatalf("segment %d is not JSON: %v", i, err)
	}
	return m
}

func TestIssueAccessTokenClaims(t *testing.T) {
	s := newTestSigner(t)
	before := time.Now()

	tok, err := s.IssueAccessToken(TokenPayload{SubjectID: 42, Role: "customer"})
	if err != nil {
		t.Fatalf("IssueAccessToken() error = %v", err)
	}

	header := decodeSegment(t, tok, 0)
	if header["alg"] != "RS256" {
		t.Errorf("alg = %v, want RS256", header["alg"])
	}
	if header["kid"] != Thumbprint(&rsaKey(t).PublicKey) {
		t.Errorf("kid = %v, want key thumbprint", header["kid"])
	}

	payload := decodeSegment(t, tok, 1)
	if payload["sub"] != "42" || payload["role"] != "customer" || payload["iss"] != "auth-service" {
		t.Errorf("payload = %v", payload)
	}
	if _, ok := payload["jti"]; ok {
		t.Error("access token must not carry a jti")
	}

	claims, err := s.ParseAccessToken(tok)
	if err != nil {
		t.Fatalf("ParseAccessToken() error = %v", err)
	}
	ttl := claims.ExpiresAt.Sub(before)
	if ttl < AccessTokenTTL-time.Second || ttl > AccessTokenTTL+time.Second {
		t.Errorf("access ttl = %v, want ~1h", ttl)
	}
	if id, err := claims.UserID(); err != nil || id != 42 {
		t.Errorf("UserID() = %d, %v", id, err)
	}
}

func TestIssueRefreshTokenCarriesRecordID(t *testing.T) {
	s := newTestSigner(t)
	before := time.Now()

	tok, err := s.IssueRefreshToken(TokenPayload{SubjectID: 42, Role: "customer", RecordID: 7})
	if err != nil {
		t.Fatalf("IssueRefreshToken() error = %v", err)
	}
	if alg := decodeSegment(t, tok, 0)["alg"]; alg != "HS256" {
		t.Errorf("alg = %v, want HS256", alg)
	}

	claims, err := s.ParseRefreshToken(tok)
	if err != nil {
		t.Fatalf("ParseRefreshToken() error = %v", err)
	}
	if rid, _ := claims.RecordID(); rid != 7 {
		t.Errorf("RecordID() = %d, want 7", rid)
	}
	if uid, _ := claims.UserID(); uid != 42 {
		t.Errorf("UserID() = %d, want 42", uid)
	}
	ttl := claims.ExpiresAt.Sub(before)
	if ttl < RefreshTokenTTL-time.Second || ttl > RefreshTokenTTL+time.Second {
		t.Errorf("refresh ttl = %v, want ~1y", ttl)
	}
}

func TestIssueRefreshTokenRequiresRecordID(t *testing.T) {
	s := newTestSigner(t)
	if _, err := s.IssueRefreshToken(TokenPayload{SubjectID: 1, Role: "customer"}); !errors.Is(err, ErrMissingRecordID) {
		t.Fatalf("error = %v, want ErrMissingRecordID", err)
	}
}

func TestIssueWithoutKeyMaterial(t *testing.T) {
	s := NewSigner(SignerConfig{Issuer: "auth-service"})

	if _, err := s.IssueAccessToken(TokenPayload{SubjectID: 1}); !errors.Is(err, ErrKeyUnavailable) {
		t.Errorf("IssueAccessToken error = %v, want ErrKeyUnavailable", err)
	}
	if _, err := s.IssueRefreshToken(TokenPayload{SubjectID: 1, RecordID: 1}); !errors.Is(err, ErrKeyUnavailable) {
		t.Errorf("IssueRefreshToken error = %v, want ErrKeyUnavailable", err)
	}
	if _, err := s.PublicJWKS(); !errors.Is(err, ErrKeyUnavailable) {
		t.Errorf("PublicJWKS error = %v, want ErrKeyUnavailable", err)
	}
}

func TestParseRejectsCrossedTokenKinds(t *testing.T) {
	s := newTestSigner(t)
	access, _ := s.IssueAccessToken(TokenPayload{SubjectID: 1, Role: "customer"})
	refresh, _ := s.IssueRefreshToken(TokenPayload{SubjectID: 1, Role: "customer", RecordID: 1})

	if _, err := s.ParseRefreshToken(access); err == nil {
		t.Error("access token accepted as refresh token")
	}
	if _, err := s.ParseAccessToken(refresh); err == nil {
		t.Error("refresh token accepted as access token")
	}
}

func TestParseRejectsWrongIssuerAndExpiry(t *testing.T) {
	s := newTestSigner(t)

	other := NewSigner(SignerConfig{Issuer: "someone-else", PrivateKey: rsaKey(t), RefreshSecret: []byte("refresh-secret")})
	foreign, _ := other.IssueAccessToken(TokenPayload{SubjectID: 1, Role: "admin"})
	if _, err := s.ParseAccessToken(foreign); err == nil {
		t.Error("token from another issuer accepted")
	}

	expired := NewSigner(SignerConfig{Issuer: "auth-service", PrivateKey: rsaKey(t), RefreshSecret: []byte("refresh-secret")})
	expired.now = func() time.Time { return time.Now().Add(-2 * AccessTokenTTL) }
	old, _ := expired.IssueAccessToken(TokenPayload{SubjectID: 1, Role: "admin"})
	if _, err := s.ParseAccessToken(old); !errors.Is(err, jwt.ErrTokenExpired) {
		t.Errorf("error = %v, want ErrTokenExpired", err)
	}
}

func TestParseRefreshRejectsWrongSecret(t *testing.T) {
	s := newTestSigner(t)
	other := NewSigner(SignerConfig{Issuer: "auth-service", RefreshSecret: []byte("different")})
	tok, err := other.IssueRefreshToken(TokenPayload{SubjectID: 1, RecordID: 3})
	if err != nil {
		t.Fatalf("IssueRefreshToken() error = %v", err)
	}
	if _, err := s.ParseRefreshToken(tok); !errors.Is(err, jwt.ErrTokenSignatureInvalid) {
		t.Errorf("error = %v, want ErrTokenSignatureInvalid", err)
	}
}

func TestFixedKeyIDOverridesThumbprint(t *testing.T) {
	s := NewSigner(SignerConfig{Issuer: "auth-service", KeyID: "k1", PrivateKey: rsaKey(t)})
	tok, _ := s.IssueAccessToken(TokenPayload{SubjectID: 1})
	if kid := decodeSegment(t, tok, 0)["kid"]; kid != "k1" {
		t.Errorf("kid = %v, want k1", kid)
	}
}
