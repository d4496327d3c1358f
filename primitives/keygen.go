// Copyright (c) HashiCorp, Inc.
// SPDX-License-Identifier: BUSL-1.1

package primitives

import (
	"crypto/ecdsa"
	"crypto/elliptic"
	"crypto/rand"
	"crypto/rsa"
	"fmt"

	"github.com/hashicorp/cryptainer/cryptoconf"
)

const rsaKeyBits = 2048

// GenerateKeyPairPEM generates a fresh keypair for algo (any KeyCipherAlgo
// or SignatureAlgo string value) and returns its PEM-encoded public and
// private halves, ready for Keystore.SetKeys or AddFreeKeypair.
func GenerateKeyPairPEM(algo string) (publicKeyPEM, privateKeyPEM []byte, err error) {
	switch algo {
	case string(cryptoconf.RSAOAEP), string(cryptoconf.RSAPSS):
		priv, err := rsa.GenerateKey(rand.Reader, rsaKeyBits)
		if err != nil {
			return nil, nil, fmt.Errorf("keygen: %s: %w", algo, err)
		}
		return MarshalRSAPublicKeyPEM(&priv.PublicKey), MarshalRSAPrivateKeyPEM(priv), nil

	case string(cryptoconf.ECCDSS):
		priv, err := ecdsa.GenerateKey(elliptic.P256(), rand.Reader)
		if err != nil {
			return nil, nil, fmt.Errorf("keygen: %s: %w", algo, err)
		}
		privPEM, err := MarshalECDSAPrivateKeyPEM(priv)
		if err != nil {
			return nil, nil, fmt.Errorf("keygen: %s: %w", algo, err)
		}
		pubPEM, err := MarshalECDSAPublicKeyPEM(&priv.PublicKey)
		if err != nil {
			return nil, nil, fmt.Errorf("keygen: %s: %w", algo, err)
		}
		return pubPEM, privPEM, nil

	case string(cryptoconf.DSADSS):
		priv, err := GenerateDSAKey()
		if err != nil {
			return nil, nil, fmt.Errorf("keygen: %s: %w", algo, err)
		}
		privPEM, err := MarshalDSAPrivateKeyPEM(priv)
		if err != nil {
			return nil, nil, fmt.Errorf("keygen: %s: %w", algo, err)
		}
		pubPEM, err := MarshalDSAPublicKeyPEM(&priv.PublicKey)
		if err != nil {
			return nil, nil, fmt.Errorf("keygen: %s: %w", algo, err)
		}
		return pubPEM, privPEM, nil

	default:
		return nil, nil, fmt.Errorf("%w: no keypair generator registered for %q", errUnsupported, algo)
	}
}
