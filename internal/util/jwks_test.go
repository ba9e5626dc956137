package util

import (
	"crypto/ecdsa"
	"crypto/elliptic"
	"crypto/rand"
	"crypto/rsa"
	"encoding/base64"
	"math/big"
	"testing"

	"github.com/golang-jwt/jwt/v5"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func b64(b []byte) string { return base64.RawURLEncoding.EncodeToString(b) }

func TestJWKPEMEC(t *testing.T) {
	priv, err := ecdsa.GenerateKey(elliptic.P256(), rand.Reader)
	require.NoError(t, err)

	jwk := JWK{Kid: "k1", Kty: "EC", Alg: "ES256", Use: "sig", Crv: "P-256",
		X: b64(priv.X.Bytes()), Y: b64(priv.Y.Bytes())}
	pemKey, err := jwk.PEM()
	require.NoError(t, err)

	token, err := jwt.NewWithClaims(jwt.SigningMethodES256, validClaims("user-9")).SignedString(priv)
	require.NoError(t, err)
	claims, err := ValidateJWT(token, pemKey)
	require.NoError(t, err)
	assert.Equal(t, "user-9", claims.Subject)
}

func TestJWKPEMRSA(t *testing.T) {
	priv, err := rsa.GenerateKey(rand.Reader, 2048)
	require.NoError(t, err)

	jwk := JWK{Kty: "RSA", Alg: "RS256", N: b64(priv.N.Bytes()), E: b64(big.NewInt(int64(priv.E)).Bytes())}
	pemKey, err := jwk.PEM()
	require.NoError(t, err)

	pub, err := ParseRSAPublicKey(pemKey)
	require.NoError(t, err)
	assert.True(t, pub.Equal(&priv.PublicKey))
}

func TestJWKPEMRejectsUnknownKeys(t *testing.T) {
	_, err := JWK{Kty: "oct"}.PEM()
	assert.Error(t, err)
	_, err = JWK{Kty: "EC", Crv: "secp256k1"}.PEM()
	assert.Error(t, err)
}

func TestJWKSSigningKey(t *testing.T) {
	set := JWKS{Keys: []JWK{
		{Kid: "enc", Use: "enc"},
		{Kid: "a", Use: "sig"},
		{Kid: "b"},
	}}

	k, err := set.SigningKey("")
	require.NoError(t, err)
	assert.Equal(t, "a", k.Kid)

	k, err = set.SigningKey("b")
	require.NoError(t, err)
	assert.Equal(t, "b", k.Kid)

	_, err = set.SigningKey("missing")
	assert.Error(t, err)
}
