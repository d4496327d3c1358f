// Copyright (c) HashiCorp, Inc.
// SPDX-License-Identifier: BUSL-1.1

package primitives

import (
	"crypto/dsa"
	"crypto/ecdsa"
	"crypto/rand"
	"crypto/sha256"
	"crypto/x509"
	"encoding/asn1"
	"encoding/pem"
	"fmt"
	"math/big"

	jose "github.com/go-jose/go-jose/v3"
)

// --- RSA_PSS and ECC_DSS: signed via go-jose, the same library
// encrypter.go's SignClaims/VerifyClaim uses for workload identity JWTs.
// Here the bare digest is signed as the JWS payload rather than a JWT claim
// set, since signature generation operates on an arbitrary short message.

type rsaPSSSigner struct{}

func (rsaPSSSigner) Sign(privateKeyPEM, digest []byte) ([]byte, error) {
	priv, err := parseRSAPrivateKeyPEM(privateKeyPEM)
	if err != nil {
		return nil, fmt.Errorf("rsa_pss: %w", err)
	}
	signer, err := jose.NewSigner(jose.SigningKey{Algorithm: jose.PS256, Key: priv}, nil)
	if err != nil {
		return nil, fmt.Errorf("rsa_pss: %w", err)
	}
	jws, err := signer.Sign(digest)
	if err != nil {
		return nil, fmt.Errorf("rsa_pss: %w", err)
	}
	return []byte(jws.FullSerialize()), nil
}

func (rsaPSSSigner) Verify(publicKeyPEM, digest, signature []byte) error {
	pub, err := parseRSAPublicKeyPEM(publicKeyPEM)
	if err != nil {
		return fmt.Errorf("rsa_pss: %w", err)
	}
	jws, err := jose.ParseSigned(string(signature))
	if err != nil {
		return fmt.Errorf("rsa_pss: malformed signature: %w", err)
	}
	payload, err := jws.Verify(pub)
	if err != nil {
		return fmt.Errorf("rsa_pss: %w", err)
	}
	if string(payload) != string(digest) {
		return fmt.Errorf("rsa_pss: signature covers a different digest")
	}
	return nil
}

type eccDSSSigner struct{}

func (eccDSSSigner) Sign(privateKeyPEM, digest []byte) ([]byte, error) {
	priv, err := parseECDSAPrivateKeyPEM(privateKeyPEM)
	if err != nil {
		return nil, fmt.Errorf("ecc_dss: %w", err)
	}
	signer, err := jose.NewSigner(jose.SigningKey{Algorithm: jose.ES256, Key: priv}, nil)
	if err != nil {
		return nil, fmt.Errorf("ecc_dss: %w", err)
	}
	jws, err := signer.Sign(digest)
	if err != nil {
		return nil, fmt.Errorf("ecc_dss: %w", err)
	}
	return []byte(jws.FullSerialize()), nil
}

func (eccDSSSigner) Verify(publicKeyPEM, digest, signature []byte) error {
	pub, err := parseECDSAPublicKeyPEM(publicKeyPEM)
	if err != nil {
		return fmt.Errorf("ecc_dss: %w", err)
	}
	jws, err := jose.ParseSigned(string(signature))
	if err != nil {
		return fmt.Errorf("ecc_dss: malformed signature: %w", err)
	}
	payload, err := jws.Verify(pub)
	if err != nil {
		return fmt.Errorf("ecc_dss: %w", err)
	}
	if string(payload) != string(digest) {
		return fmt.Errorf("ecc_dss: signature covers a different digest")
	}
	return nil
}

func parseECDSAPrivateKeyPEM(pemBytes []byte) (*ecdsa.PrivateKey, error) {
	block, _ := pem.Decode(pemBytes)
	if block == nil {
		return nil, fmt.Errorf("invalid PEM block")
	}
	return x509.ParseECPrivateKey(block.Bytes)
}

func parseECDSAPublicKeyPEM(pemBytes []byte) (*ecdsa.PublicKey, error) {
	block, _ := pem.Decode(pemBytes)
	if block == nil {
		return nil, fmt.Errorf("invalid PEM block")
	}
	key, err := x509.ParsePKIXPublicKey(block.Bytes)
	if err != nil {
		return nil, err
	}
	pub, ok := key.(*ecdsa.PublicKey)
	if !ok {
		return nil, fmt.Errorf("PEM block is not an ECDSA public key")
	}
	return pub, nil
}

// MarshalECDSAPrivateKeyPEM / MarshalECDSAPublicKeyPEM mirror the RSA
// helpers for ECC_DSS keypairs on curve P-256.
func MarshalECDSAPrivateKeyPEM(priv *ecdsa.PrivateKey) ([]byte, error) {
	der, err := x509.MarshalECPrivateKey(priv)
	if err != nil {
		return nil, err
	}
	return pem.EncodeToMemory(&pem.Block{Type: "EC PRIVATE KEY", Bytes: der}), nil
}

func MarshalECDSAPublicKeyPEM(pub *ecdsa.PublicKey) ([]byte, error) {
	der, err := x509.MarshalPKIXPublicKey(pub)
	if err != nil {
		return nil, err
	}
	return pem.EncodeToMemory(&pem.Block{Type: "PUBLIC KEY", Bytes: der}), nil
}

// --- DSA_DSS -----------------------------------------------------------
//
// go-jose has no DSA support (DSA is deprecated everywhere), but DSA_DSS
// must stay available as a signature algorithm for format compatibility
// with existing cryptainers, so it's implemented directly against the
// standard library's crypto/dsa.

type dsaSignature struct {
	R, S *big.Int
}

type dsaDSSSigner struct{}

func (dsaDSSSigner) Sign(privateKeyPEM, digest []byte) ([]byte, error) {
	priv, err := parseDSAPrivateKeyPEM(privateKeyPEM)
	if err != nil {
		return nil, fmt.Errorf("dsa_dss: %w", err)
	}
	h := sha256.Sum256(digest)
	r, s, err := dsa.Sign(rand.Reader, priv, h[:])
	if err != nil {
		return nil, fmt.Errorf("dsa_dss: %w", err)
	}
	return asn1.Marshal(dsaSignature{R: r, S: s})
}

func (dsaDSSSigner) Verify(publicKeyPEM, digest, signature []byte) error {
	pub, err := parseDSAPublicKeyPEM(publicKeyPEM)
	if err != nil {
		return fmt.Errorf("dsa_dss: %w", err)
	}
	var sig dsaSignature
	if _, err := asn1.Unmarshal(signature, &sig); err != nil {
		return fmt.Errorf("dsa_dss: malformed signature: %w", err)
	}
	h := sha256.Sum256(digest)
	if !dsa.Verify(pub, h[:], sig.R, sig.S) {
		return fmt.Errorf("dsa_dss: signature verification failed")
	}
	return nil
}

// dsaPrivateKeyASN1 and dsaPublicKeyASN1 are a minimal ASN.1 envelope for
// DSA key material, since crypto/x509 does not marshal crypto/dsa keys.
type dsaPrivateKeyASN1 struct {
	P, Q, G, X, Y *big.Int
}

type dsaPublicKeyASN1 struct {
	P, Q, G, Y *big.Int
}

func parseDSAPrivateKeyPEM(pemBytes []byte) (*dsa.PrivateKey, error) {
	block, _ := pem.Decode(pemBytes)
	if block == nil {
		return nil, fmt.Errorf("invalid PEM block")
	}
	var asn1Key dsaPrivateKeyASN1
	if _, err := asn1.Unmarshal(block.Bytes, &asn1Key); err != nil {
		return nil, err
	}
	priv := &dsa.PrivateKey{
		PublicKey: dsa.PublicKey{
			Parameters: dsa.Parameters{P: asn1Key.P, Q: asn1Key.Q, G: asn1Key.G},
			Y:          asn1Key.Y,
		},
		X: asn1Key.X,
	}
	return priv, nil
}

func parseDSAPublicKeyPEM(pemBytes []byte) (*dsa.PublicKey, error) {
	block, _ := pem.Decode(pemBytes)
	if block == nil {
		return nil, fmt.Errorf("invalid PEM block")
	}
	var asn1Key dsaPublicKeyASN1
	if _, err := asn1.Unmarshal(block.Bytes, &asn1Key); err != nil {
		return nil, err
	}
	return &dsa.PublicKey{
		Parameters: dsa.Parameters{P: asn1Key.P, Q: asn1Key.Q, G: asn1Key.G},
		Y:          asn1Key.Y,
	}, nil
}

// MarshalDSAPrivateKeyPEM / MarshalDSAPublicKeyPEM serialize DSA key
// material through the minimal ASN.1 envelope above.
func MarshalDSAPrivateKeyPEM(priv *dsa.PrivateKey) ([]byte, error) {
	der, err := asn1.Marshal(dsaPrivateKeyASN1{
		P: priv.P, Q: priv.Q, G: priv.G, X: priv.X, Y: priv.Y,
	})
	if err != nil {
		return nil, err
	}
	return pem.EncodeToMemory(&pem.Block{Type: "DSA PRIVATE KEY", Bytes: der}), nil
}

func MarshalDSAPublicKeyPEM(pub *dsa.PublicKey) ([]byte, error) {
	der, err := asn1.Marshal(dsaPublicKeyASN1{P: pub.P, Q: pub.Q, G: pub.G, Y: pub.Y})
	if err != nil {
		return nil, err
	}
	return pem.EncodeToMemory(&pem.Block{Type: "DSA PUBLIC KEY", Bytes: der}), nil
}

// GenerateDSAKey generates a fresh DSA keypair at the L1024N160 parameter
// size, matching what Go's standard library still supports.
func GenerateDSAKey() (*dsa.PrivateKey, error) {
	var params dsa.Parameters
	if err := dsa.GenerateParameters(&params, rand.Reader, dsa.L1024N160); err != nil {
		return nil, err
	}
	priv := &dsa.PrivateKey{PublicKey: dsa.PublicKey{Parameters: params}}
	if err := dsa.GenerateKey(priv, rand.Reader); err != nil {
		return nil, err
	}
	return priv, nil
}
