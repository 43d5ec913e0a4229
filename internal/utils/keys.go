package utils

import (
	"crypto/rsa"
	"crypto/sha256"
	"encoding/base64"
	"fmt"
	"math/big"
	"os"

	"github.com/golang-jwt/jwt/v5"
)

// KeySource supplies the RSA private key used for access tokens.
type KeySource interface {
	PrivateKey() (*rsa.PrivateKey, error)
}

// PEMKeySource reads the key from an inline PEM string or, when that is
// empty, from a file.  PKCS#1 and PKCS#8 encodings are accepted.
type PEMKeySource struct {
	PEM  string
	Path string
}

// PrivateKey parses the configured key.  Every failure wraps
// ErrKeyUnavailable.
func (s PEMKeySource) PrivateKey() (*rsa.PrivateKey, error) {
	data := []byte(s.PEM)
	if len(data) == 0 {
		if s.Path == "" {
			return nil, fmt.Errorf("%w: no private key configured", ErrKeyUnavailable)
		}
		var err error
		data, err = os.ReadFile(s.Path)
		if err != nil {
			return nil, fmt.Errorf("%w: read %s: %w", ErrKeyUnavailable, s.Path, err)
		}
	}
	key, err := jwt.ParseRSAPrivateKeyFromPEM(data)
	if err != nil {
		return nil, fmt.Errorf("%w: parse private key: %w", ErrKeyUnavailable, err)
	}
	return key, nil
}

// JWK is the public half of an RSA signing key in JSON Web Key form.
type JWK struct {
	Kty string `json:"kty"`
	Use string `json:"use"`
	Alg string `json:"alg"`
	Kid string `json:"kid,omitempty"`
	N   string `json:"n"`
	E   string `json:"e"`
}

// JWKS is a JSON Web Key Set.
type JWKS struct {
	Keys []JWK `json:"keys"`
}

// PublicJWKS returns the verification key for access tokens.
func (s *Signer) PublicJWKS() (JWKS, error) {
	key, kid := s.signingKey()
	if key == nil {
		return JWKS{}, ErrKeyUnavailable
	}
	n, e := rsaComponents(&key.PublicKey)
	return JWKS{Keys: []JWK{{
		Kty: "RSA",
		Use: "sig",
		Alg: jwt.SigningMethodRS256.Alg(),
		Kid: kid,
		N:   n,
		E:   e,
	}}}, nil
}

// Thumbprint computes the RFC 7638 SHA-256 thumbprint of pub, used as the
// default key id.
func Thumbprint(pub *rsa.PublicKey) string {
	n, e := rsaComponents(pub)
	// members in lexicographic order, no whitespace
	canonical := `{"e":"` + e + `","kty":"RSA","n":"` + n + `"}`
	sum := sha256.Sum256([]byte(canonical))
	return base64.RawURLEncoding.EncodeToString(sum[:])
}

func rsaComponents(pub *rsa.PublicKey) (n, e string) {
	n = base64.RawURLEncoding.EncodeToString(pub.N.Bytes())
	e = base64.RawURLEncoding.EncodeToString(big.NewInt(int64(pub.E)).Bytes())
	return n, e
}
