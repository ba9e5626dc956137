package util

import (
	"crypto/ecdsa"
	"crypto/elliptic"
	"crypto/rsa"
	"crypto/x509"
	"encoding/base64"
	"encoding/pem"
	"fmt"
	"math/big"
)

type JWKS struct {
	Keys []JWK `json:"keys"`
}

// JWK is a public key from an identity provider's JWKS document.
type JWK struct {
	Kid string `json:"kid"`
	Kty string `json:"kty"`
	Alg string `json:"alg"`
	Use string `json:"use"`
	// EC
	Crv string `json:"crv"`
	X   string `json:"x"`
	Y   string `json:"y"`
	// RSA
	N string `json:"n"`
	E string `json:"e"`
}

// SigningKey returns the key with the given kid, or the first signing key when kid is empty.
func (s JWKS) SigningKey(kid string) (JWK, error) {
	for _, k := range s.Keys {
		if kid != "" && k.Kid != kid {
			continue
		}
		if k.Use == "" || k.Use == "sig" {
			return k, nil
		}
	}
	if kid != "" {
		return JWK{}, fmt.Errorf("no signing key with kid %q", kid)
	}
	return JWK{}, fmt.Errorf("no signing key in JWKS")
}

// PEM encodes the key as a PKIX "PUBLIC KEY" block, the format ValidateJWT
// accepts for RS* and ES* tokens.
func (k JWK) PEM() (string, error) {
	var pub any
	switch k.Kty {
	case "EC":
		curve, err := curveFor(k.Crv)
		if err != nil {
			return "", err
		}
		x, err := decodeBigInt(k.X)
		if err != nil {
			return "", fmt.Errorf("decode x: %w", err)
		}
		y, err := decodeBigInt(k.Y)
		if err != nil {
			return "", fmt.Errorf("decode y: %w", err)
		}
		pub = &ecdsa.PublicKey{Curve: curve, X: x, Y: y}
	case "RSA":
		n, err := decodeBigInt(k.N)
		if err != nil {
			return "", fmt.Errorf("decode n: %w", err)
		}
		e, err := decodeBigInt(k.E)
		if err != nil {
			return "", fmt.Errorf("decode e: %w", err)
		}
		pub = &rsa.PublicKey{N: n, E: int(e.Int64())}
	default:
		return "", fmt.Errorf("unsupported key type %q", k.Kty)
	}

	der, err := x509.MarshalPKIXPublicKey(pub)
	if err != nil {
		return "", fmt.Errorf("marshal public key: %w", err)
	}
	return string(pem.EncodeToMemory(&pem.Block{Type: "PUBLIC KEY", Bytes: der})), nil
}

func curveFor(crv string) (elliptic.Curve, error) {
	switch crv {
	case "P-256":
		return elliptic.P256(), nil
	case "P-384":
		return elliptic.P384(), nil
	case "P-521":
		return elliptic.P521(), nil
	}
	return nil, fmt.Errorf("unsupported curve %q", crv)
}

func decodeBigInt(s string) (*big.Int, error) {
	b, err := base64.RawURLEncoding.DecodeString(s)
	if err != nil {
		return nil, err
	}
	return new(big.Int).SetBytes(b), nil
}
