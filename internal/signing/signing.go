// Package signing loads the ECDSA key material for boot image
// authentication and produces the fixed-width signature block stored in the
// image header. Only the P-384 curve is accepted; the loader has the
// matching public key baked in and rejects anything else.
package signing

import (
	"crypto/ecdsa"
	"crypto/elliptic"
	"crypto/rand"
	"crypto/x509"
	"encoding/pem"
	"fmt"
	"math/big"
	"os"

	"github.com/deploymenttheory/go-bootimage/internal/types"
)

const componentLength = types.SignatureLength / 2

// Signer signs image digests with a P-384 private key.
type Signer struct {
	key *ecdsa.PrivateKey
}

// LoadPrivateKey reads a PEM-encoded EC private key (SEC 1 "EC PRIVATE KEY"
// or PKCS#8 "PRIVATE KEY") and verifies it is on the P-384 curve. A key on
// any other curve is a configuration fault, not recoverable.
func LoadPrivateKey(path string) (*Signer, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read private key file: %w", err)
	}

	key, err := parsePrivateKey(data)
	if err != nil {
		return nil, err
	}

	if key.Curve != elliptic.P384() {
		return nil, fmt.Errorf("private key curve is %s, want P-384", key.Curve.Params().Name)
	}

	return &Signer{key: key}, nil
}

func parsePrivateKey(data []byte) (*ecdsa.PrivateKey, error) {
	for {
		block, rest := pem.Decode(data)
		if block == nil {
			return nil, fmt.Errorf("no EC private key found in PEM data")
		}
		data = rest

		switch block.Type {
		case "EC PRIVATE KEY":
			key, err := x509.ParseECPrivateKey(block.Bytes)
			if err != nil {
				return nil, fmt.Errorf("parse EC private key: %w", err)
			}
			return key, nil
		case "PRIVATE KEY":
			parsed, err := x509.ParsePKCS8PrivateKey(block.Bytes)
			if err != nil {
				return nil, fmt.Errorf("parse PKCS#8 private key: %w", err)
			}
			key, ok := parsed.(*ecdsa.PrivateKey)
			if !ok {
				return nil, fmt.Errorf("PKCS#8 key is %T, want ECDSA private key", parsed)
			}
			return key, nil
		}
	}
}

// Public returns the public half of the signing key.
func (s *Signer) Public() *ecdsa.PublicKey {
	return &s.key.PublicKey
}

// Sign produces the image signature block for a SHA-384 digest: the ECDSA
// (r, s) pair with each component encoded as 48 big-endian bytes,
// left-zero-padded when the component is shorter.
func (s *Signer) Sign(digest []byte) ([types.SignatureLength]byte, error) {
	var sig [types.SignatureLength]byte

	if len(digest) != types.DigestLength {
		return sig, fmt.Errorf("digest is %d bytes, want %d", len(digest), types.DigestLength)
	}

	r, sv, err := ecdsa.Sign(rand.Reader, s.key, digest)
	if err != nil {
		return sig, fmt.Errorf("compute ECDSA signature: %w", err)
	}

	r.FillBytes(sig[:componentLength])
	sv.FillBytes(sig[componentLength:])
	return sig, nil
}

// LoadPublicKey reads a PEM-encoded public key ("PUBLIC KEY" PKIX block, or
// the public half of an "EC PRIVATE KEY"/"PRIVATE KEY" block) on the P-384
// curve, for signature verification.
func LoadPublicKey(path string) (*ecdsa.PublicKey, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read public key file: %w", err)
	}

	if block, _ := pem.Decode(data); block != nil && block.Type == "PUBLIC KEY" {
		parsed, err := x509.ParsePKIXPublicKey(block.Bytes)
		if err != nil {
			return nil, fmt.Errorf("parse public key: %w", err)
		}
		pub, ok := parsed.(*ecdsa.PublicKey)
		if !ok {
			return nil, fmt.Errorf("public key is %T, want ECDSA public key", parsed)
		}
		if pub.Curve != elliptic.P384() {
			return nil, fmt.Errorf("public key curve is %s, want P-384", pub.Curve.Params().Name)
		}
		return pub, nil
	}

	key, err := parsePrivateKey(data)
	if err != nil {
		return nil, err
	}
	if key.Curve != elliptic.P384() {
		return nil, fmt.Errorf("private key curve is %s, want P-384", key.Curve.Params().Name)
	}
	return &key.PublicKey, nil
}

// Verify checks an image signature block against a public key and a SHA-384
// digest.
func Verify(pub *ecdsa.PublicKey, digest []byte, sig [types.SignatureLength]byte) bool {
	r := new(big.Int).SetBytes(sig[:componentLength])
	s := new(big.Int).SetBytes(sig[componentLength:])
	return ecdsa.Verify(pub, digest, r, s)
}
