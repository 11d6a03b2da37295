package signing

import (
	"crypto/ecdsa"
	"crypto/elliptic"
	"crypto/rand"
	"crypto/sha512"
	"crypto/x509"
	"encoding/pem"
	"math/big"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/deploymenttheory/go-bootimage/internal/types"
)

func generateKey(t *testing.T, curve elliptic.Curve) *ecdsa.PrivateKey {
	t.Helper()
	key, err := ecdsa.GenerateKey(curve, rand.Reader)
	require.NoError(t, err)
	return key
}

func writeKeyPEM(t *testing.T, key *ecdsa.PrivateKey, blockType string) string {
	t.Helper()

	var der []byte
	var err error
	switch blockType {
	case "EC PRIVATE KEY":
		der, err = x509.MarshalECPrivateKey(key)
	case "PRIVATE KEY":
		der, err = x509.MarshalPKCS8PrivateKey(key)
	default:
		t.Fatalf("unsupported block type %q", blockType)
	}
	require.NoError(t, err)

	path := filepath.Join(t.TempDir(), "key.pem")
	pemBytes := pem.EncodeToMemory(&pem.Block{Type: blockType, Bytes: der})
	require.NoError(t, os.WriteFile(path, pemBytes, 0o600))
	return path
}

func TestLoadPrivateKeySEC1(t *testing.T) {
	key := generateKey(t, elliptic.P384())

	signer, err := LoadPrivateKey(writeKeyPEM(t, key, "EC PRIVATE KEY"))
	require.NoError(t, err)
	assert.True(t, signer.Public().Equal(&key.PublicKey))
}

func TestLoadPrivateKeyPKCS8(t *testing.T) {
	key := generateKey(t, elliptic.P384())

	signer, err := LoadPrivateKey(writeKeyPEM(t, key, "PRIVATE KEY"))
	require.NoError(t, err)
	assert.True(t, signer.Public().Equal(&key.PublicKey))
}

func TestLoadPrivateKeyRejectsWrongCurve(t *testing.T) {
	for _, curve := range []elliptic.Curve{elliptic.P224(), elliptic.P256(), elliptic.P521()} {
		key := generateKey(t, curve)
		_, err := LoadPrivateKey(writeKeyPEM(t, key, "EC PRIVATE KEY"))
		require.Error(t, err, "curve %s must be rejected", curve.Params().Name)
		assert.Contains(t, err.Error(), "P-384")
	}
}

func TestLoadPrivateKeyRejectsGarbage(t *testing.T) {
	path := filepath.Join(t.TempDir(), "not-a-key.pem")
	require.NoError(t, os.WriteFile(path, []byte("not PEM at all"), 0o600))

	_, err := LoadPrivateKey(path)
	assert.Error(t, err)
}

func TestSignRoundTrip(t *testing.T) {
	key := generateKey(t, elliptic.P384())
	signer, err := LoadPrivateKey(writeKeyPEM(t, key, "EC PRIVATE KEY"))
	require.NoError(t, err)

	digest := sha512.Sum384([]byte("boot image bytes"))
	sig, err := signer.Sign(digest[:])
	require.NoError(t, err)

	// Components decode as big-endian big integers and validate against the
	// public key.
	r := new(big.Int).SetBytes(sig[:48])
	s := new(big.Int).SetBytes(sig[48:])
	assert.True(t, ecdsa.Verify(&key.PublicKey, digest[:], r, s))
	assert.True(t, Verify(&key.PublicKey, digest[:], sig))

	// A flipped digest bit must not verify.
	digest[0] ^= 0xFF
	assert.False(t, Verify(&key.PublicKey, digest[:], sig))
}

func TestSignRejectsWrongDigestLength(t *testing.T) {
	key := generateKey(t, elliptic.P384())
	signer, err := LoadPrivateKey(writeKeyPEM(t, key, "EC PRIVATE KEY"))
	require.NoError(t, err)

	_, err = signer.Sign(make([]byte, 32))
	assert.Error(t, err)
}

func TestSignatureComponentsAreLeftPadded(t *testing.T) {
	key := generateKey(t, elliptic.P384())
	signer, err := LoadPrivateKey(writeKeyPEM(t, key, "EC PRIVATE KEY"))
	require.NoError(t, err)

	digest := sha512.Sum384([]byte("padding check"))
	sig, err := signer.Sign(digest[:])
	require.NoError(t, err)
	assert.Len(t, sig, types.SignatureLength)

	r := new(big.Int).SetBytes(sig[:48])
	s := new(big.Int).SetBytes(sig[48:])
	assert.LessOrEqual(t, (r.BitLen()+7)/8, 48)
	assert.LessOrEqual(t, (s.BitLen()+7)/8, 48)
}

func TestLoadPublicKeyPKIX(t *testing.T) {
	key := generateKey(t, elliptic.P384())
	der, err := x509.MarshalPKIXPublicKey(&key.PublicKey)
	require.NoError(t, err)

	path := filepath.Join(t.TempDir(), "pub.pem")
	pemBytes := pem.EncodeToMemory(&pem.Block{Type: "PUBLIC KEY", Bytes: der})
	require.NoError(t, os.WriteFile(path, pemBytes, 0o600))

	pub, err := LoadPublicKey(path)
	require.NoError(t, err)
	assert.True(t, pub.Equal(&key.PublicKey))
}

func TestLoadPublicKeyFromPrivateKeyFile(t *testing.T) {
	key := generateKey(t, elliptic.P384())

	pub, err := LoadPublicKey(writeKeyPEM(t, key, "EC PRIVATE KEY"))
	require.NoError(t, err)
	assert.True(t, pub.Equal(&key.PublicKey))
}
