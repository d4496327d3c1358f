// Copyright (c) HashiCorp, Inc.
// SPDX-License-Identifier: BUSL-1.1

package primitives

import (
	"crypto/rand"
	"crypto/rsa"
	"crypto/sha256"
	"crypto/x509"
	"encoding/json"
	"encoding/pem"
	"fmt"
)

// rsaCipherdict is the serialized cipherdict produced by rsaOAEPCipher.
// It round-trips losslessly through JSON, encoding the ciphertext as a
// base64 byte blob like every other extended-scalar field in this tree.
type rsaCipherdict struct {
	Algo       string `json:"key_cipher_algo"`
	Ciphertext []byte `json:"ciphertext"`
}

type rsaOAEPCipher struct{}

func (rsaOAEPCipher) Encrypt(publicKeyPEM, plaintext []byte) ([]byte, error) {
	pub, err := parseRSAPublicKeyPEM(publicKeyPEM)
	if err != nil {
		return nil, fmt.Errorf("rsa_oaep: %w", err)
	}
	ciphertext, err := rsa.EncryptOAEP(sha256.New(), rand.Reader, pub, plaintext, nil)
	if err != nil {
		return nil, fmt.Errorf("rsa_oaep: encrypt: %w", err)
	}
	return json.Marshal(rsaCipherdict{Algo: "RSA_OAEP", Ciphertext: ciphertext})
}

func (rsaOAEPCipher) Decrypt(privateKeyPEM, cipherdict []byte) ([]byte, error) {
	var cd rsaCipherdict
	if err := json.Unmarshal(cipherdict, &cd); err != nil {
		return nil, fmt.Errorf("rsa_oaep: malformed cipherdict: %w", err)
	}
	priv, err := parseRSAPrivateKeyPEM(privateKeyPEM)
	if err != nil {
		return nil, fmt.Errorf("rsa_oaep: %w", err)
	}
	plaintext, err := rsa.DecryptOAEP(sha256.New(), rand.Reader, priv, cd.Ciphertext, nil)
	if err != nil {
		return nil, fmt.Errorf("rsa_oaep: decrypt: %w", err)
	}
	return plaintext, nil
}

func parseRSAPublicKeyPEM(pemBytes []byte) (*rsa.PublicKey, error) {
	block, _ := pem.Decode(pemBytes)
	if block == nil {
		return nil, fmt.Errorf("invalid PEM block")
	}
	if key, err := x509.ParsePKIXPublicKey(block.Bytes); err == nil {
		if pub, ok := key.(*rsa.PublicKey); ok {
			return pub, nil
		}
		return nil, fmt.Errorf("PEM block is not an RSA public key")
	}
	return x509.ParsePKCS1PublicKey(block.Bytes)
}

func parseRSAPrivateKeyPEM(pemBytes []byte) (*rsa.PrivateKey, error) {
	block, _ := pem.Decode(pemBytes)
	if block == nil {
		return nil, fmt.Errorf("invalid PEM block")
	}
	if key, err := x509.ParsePKCS1PrivateKey(block.Bytes); err == nil {
		return key, nil
	}
	key, err := x509.ParsePKCS8PrivateKey(block.Bytes)
	if err != nil {
		return nil, err
	}
	priv, ok := key.(*rsa.PrivateKey)
	if !ok {
		return nil, fmt.Errorf("PEM block is not an RSA private key")
	}
	return priv, nil
}

// MarshalRSAPublicKeyPEM PEM-encodes an RSA public key the way LocalTrustee
// publishes fetch_public_key results.
func MarshalRSAPublicKeyPEM(pub *rsa.PublicKey) []byte {
	der := x509.MarshalPKCS1PublicKey(pub)
	return pem.EncodeToMemory(&pem.Block{Type: "RSA PUBLIC KEY", Bytes: der})
}

// MarshalRSAPrivateKeyPEM PEM-encodes an RSA private key in unencrypted
// PKCS#1 form. It takes no passphrase: passphrase protection is applied
// separately (see EncryptPrivateKeyPEM), and this only produces the
// cleartext PEM serialization.
func MarshalRSAPrivateKeyPEM(priv *rsa.PrivateKey) []byte {
	der := x509.MarshalPKCS1PrivateKey(priv)
	return pem.EncodeToMemory(&pem.Block{Type: "RSA PRIVATE KEY", Bytes: der})
}
