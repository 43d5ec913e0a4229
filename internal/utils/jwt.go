package utils // package utils provides token signing and password hashing helpers

import (
	"crypto/rsa"
	"errors"
	"fmt"
	"strconv"
	"sync"
	"time"

	"github.com/golang-jwt/jwt/v5"
)

// Token lifetimes.  The refresh ledger uses RefreshTokenTTL for its
// expires_at column, so the row and the exp claim always agree.
const (
	AccessTokenTTL  = time.Hour
	RefreshTokenTTL = 365 * 24 * time.Hour
)

// ErrKeyUnavailable means signing cannot proceed because key material is
// missing or unreadable.  It is a server-side configuration fault and must
// never be reported as a client error.
var ErrKeyUnavailable = errors.New("signing key unavailable")

// ErrMissingRecordID is returned when a refresh token is requested without
// a ledger record to bind it to.
var ErrMissingRecordID = errors.New("refresh token requires a ledger record id")

// TokenPayload is the data signed into a token.  RecordID is only used for
// refresh tokens, where it becomes the jti claim.
type TokenPayload struct {
	SubjectID uint64
	Role      string
	RecordID  uint64
}

// AccessClaims are the claims of an RS256 access token.  The subject is the
// user id in decimal.
type AccessClaims struct {
	Role string `json:"role"`
	jwt.RegisteredClaims
}

// UserID parses the subject claim.
func (c *AccessClaims) UserID() (uint64, error) {
	return strconv.ParseUint(c.Subject, 10, 64)
}

// RefreshClaims are the claims of an HS256 refresh token.  The jti (ID)
// claim is the refresh_tokens row id.
type RefreshClaims struct {
	Role string `json:"role"`
	jwt.RegisteredClaims
}

// UserID parses the subject claim.
func (c *RefreshClaims) UserID() (uint64, error) {
	return strconv.ParseUint(c.Subject, 10, 64)
}

// RecordID parses the jti claim.
func (c *RefreshClaims) RecordID() (uint64, error) {
	return strconv.ParseUint(c.ID, 10, 64)
}

// SignerConfig is the immutable input of NewSigner.  When KeyID is empty the
// RFC 7638 thumbprint of the public key is used.
type SignerConfig struct {
	Issuer        string
	KeyID         string
	PrivateKey    *rsa.PrivateKey
	RefreshSecret []byte
}

// Signer issues and verifies both token kinds.  Access tokens are signed
// with an RSA private key so other services can verify them with the public
// key alone; refresh tokens are signed with a shared secret because only
// this service ever reads them.  The RSA key can be swapped at runtime with
// Rotate; everything else is fixed at construction.
type Signer struct {
	issuer   string
	fixedKID string
	secret   []byte
	now      func() time.Time

	mu  sync.RWMutex
	key *rsa.PrivateKey
	kid string
}

// NewSigner builds a Signer.  A nil PrivateKey or empty RefreshSecret is
// accepted here; the corresponding Issue call fails with ErrKeyUnavailable.
func NewSigner(cfg SignerConfig) *Signer {
	s := &Signer{
		issuer:   cfg.Issuer,
		fixedKID: cfg.KeyID,
		secret:   cfg.RefreshSecret,
		now:      time.Now,
	}
	s.setKey(cfg.PrivateKey)
	return s
}

func (s *Signer) setKey(key *rsa.PrivateKey) {
	kid := s.fixedKID
	if kid == "" && key != nil {
		kid = Thumbprint(&key.PublicKey)
	}
	s.mu.Lock()
	s.key, s.kid = key, kid
	s.mu.Unlock()
}

func (s *Signer) signingKey() (*rsa.PrivateKey, string) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.key, s.kid
}

// Rotate re-reads the private key from src and swaps it in.  On error the
// current key stays active.
func (s *Signer) Rotate(src KeySource) error {
	key, err := src.PrivateKey()
	if err != nil {
		return err
	}
	s.setKey(key)
	return nil
}

// IssueAccessToken signs p as an RS256 access token valid for AccessTokenTTL.
func (s *Signer) IssueAccessToken(p TokenPayload) (string, error) {
	key, kid := s.signingKey()
	if key == nil {
		return "", fmt.Errorf("issue access token: %w", ErrKeyUnavailable)
	}
	now := s.now()
	claims := AccessClaims{
		Role: p.Role,
		RegisteredClaims: jwt.RegisteredClaims{
			Subject:   strconv.FormatUint(p.SubjectID, 10),
			Issuer:    s.issuer,
			IssuedAt:  jwt.NewNumericDate(now),
			ExpiresAt: jwt.NewNumericDate(now.Add(AccessTokenTTL)),
		},
	}
	t := jwt.NewWithClaims(jwt.SigningMethodRS256, claims)
	if kid != "" {
		t.Header["kid"] = kid
	}
	signed, err := t.SignedString(key)
	if err != nil {
		return "", fmt.Errorf("sign access token: %w", err)
	}
	return signed, nil
}

// IssueRefreshToken signs p as an HS256 refresh token valid for
// RefreshTokenTTL.  p.RecordID must be the id of an existing ledger row.
func (s *Signer) IssueRefreshToken(p TokenPayload) (string, error) {
	if len(s.secret) == 0 {
		return "", fmt.Errorf("issue refresh token: %w", ErrKeyUnavailable)
	}
	if p.RecordID == 0 {
		return "", ErrMissingRecordID
	}
	now := s.now()
	claims := RefreshClaims{
		Role: p.Role,
		RegisteredClaims: jwt.RegisteredClaims{
			ID:        strconv.FormatUint(p.RecordID, 10),
			Subject:   strconv.FormatUint(p.SubjectID, 10),
			Issuer:    s.issuer,
			IssuedAt:  jwt.NewNumericDate(now),
			ExpiresAt: jwt.NewNumericDate(now.Add(RefreshTokenTTL)),
		},
	}
	signed, err := jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString(s.secret)
	if err != nil {
		return "", fmt.Errorf("sign refresh token: %w", err)
	}
	return signed, nil
}

// ParseAccessToken verifies an access token's RS256 signature, issuer and
// expiry against the current public key.
func (s *Signer) ParseAccessToken(raw string) (*AccessClaims, error) {
	key, _ := s.signingKey()
	if key == nil {
		return nil, ErrKeyUnavailable
	}
	claims := &AccessClaims{}
	_, err := jwt.ParseWithClaims(raw, claims, func(*jwt.Token) (interface{}, error) {
		return &key.PublicKey, nil
	}, s.parserOptions(jwt.SigningMethodRS256)...)
	if err != nil {
		return nil, err
	}
	return claims, nil
}

// ParseRefreshToken verifies a refresh token's HS256 signature, issuer and
// expiry.  Whether its jti still exists in the ledger is the caller's check.
func (s *Signer) ParseRefreshToken(raw string) (*RefreshClaims, error) {
	if len(s.secret) == 0 {
		return nil, ErrKeyUnavailable
	}
	claims := &RefreshClaims{}
	_, err := jwt.ParseWithClaims(raw, claims, func(*jwt.Token) (interface{}, error) {
		return s.secret, nil
	}, s.parserOptions(jwt.SigningMethodHS256)...)
	if err != nil {
		return nil, err
	}
	if claims.ID == "" {
		return nil, jwt.ErrTokenInvalidId
	}
	return claims, nil
}

func (s *Signer) parserOptions(m jwt.SigningMethod) []jwt.ParserOption {
	opts := []jwt.ParserOption{
		jwt.WithValidMethods([]string{m.Alg()}),
		jwt.WithExpirationRequired(),
		jwt.WithTimeFunc(s.now),
	}
	if s.issuer != "" {
		opts = append(opts, jwt.WithIssuer(s.issuer))
	}
	return opts
}
