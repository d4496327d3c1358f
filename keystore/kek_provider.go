// Copyright (c) HashiCorp, Inc.
// SPDX-License-Identifier: BUSL-1.1

package keystore

import (
	"context"
	"fmt"

	kms "github.com/hashicorp/go-kms-wrapping/v2"
	"github.com/hashicorp/go-kms-wrapping/v2/aead"
	"github.com/hashicorp/go-kms-wrapping/wrappers/awskms/v2"
	"github.com/hashicorp/go-kms-wrapping/wrappers/azurekeyvault/v2"
	"github.com/hashicorp/go-kms-wrapping/wrappers/gcpckms/v2"
	"github.com/hashicorp/go-kms-wrapping/wrappers/transit/v2"
)

// KEKProviderConfig selects which go-kms-wrapping backend wraps a
// FilesystemKeystore's private key material at rest, mirroring
// nomad/encrypter.go's KEKProviderConfig/newKMSWrapper provider switch:
// "aead" (the default, a local key) or one of the cloud-KMS-backed
// wrappers, each configured through its own provider-specific Config map.
type KEKProviderConfig struct {
	// Provider is one of "aead" (default), "awskms", "azurekeyvault",
	// "gcpckms", or "transit".
	Provider string

	// Config is passed through to the selected wrapper's SetConfig via
	// wrapping.WithConfigMap, e.g. region/key_id for awskms, or
	// vault_addr/key_name for transit. Unused for "aead".
	Config map[string]string
}

// newKEKWrapper returns the go-kms-wrapping Wrapper for cfg, falling back to
// a local AEAD wrapper keyed from sealKey when cfg.Provider is empty or
// "aead" -- the same default-to-local-AEAD behavior newKMSWrapper falls
// back to when no cloud KEK provider is configured for a root key.
func newKEKWrapper(cfg KEKProviderConfig, sealKey []byte) (kms.Wrapper, error) {
	var wrapper kms.Wrapper
	switch cfg.Provider {
	case "", "aead":
		w := aead.NewWrapper()
		if _, err := w.SetConfig(context.Background(),
			aead.WithAeadType(kms.AeadTypeAesGcm),
			aead.WithHashType(kms.HashTypeSha256),
		); err != nil {
			return nil, fmt.Errorf("keystore: %w", err)
		}
		if err := w.SetAesGcmKeyBytes(sealKey); err != nil {
			return nil, fmt.Errorf("keystore: %w", err)
		}
		return w, nil
	case "awskms":
		wrapper = awskms.NewWrapper()
	case "azurekeyvault":
		wrapper = azurekeyvault.NewWrapper()
	case "gcpckms":
		wrapper = gcpckms.NewWrapper()
	case "transit":
		wrapper = transit.NewWrapper()
	default:
		return nil, fmt.Errorf("keystore: unknown KEK provider %q", cfg.Provider)
	}

	if len(cfg.Config) > 0 {
		if _, err := wrapper.SetConfig(context.Background(), kms.WithConfigMap(cfg.Config)); err != nil {
			return nil, fmt.Errorf("keystore: failed to configure %s KEK provider: %w", cfg.Provider, err)
		}
	}
	return wrapper, nil
}
