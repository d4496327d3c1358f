// Copyright (c) HashiCorp, Inc.
// SPDX-License-Identifier: BUSL-1.1

package cryptainer

import (
	"fmt"

	"github.com/hashicorp/cryptainer/cryptoconf"
	"github.com/hashicorp/cryptainer/cryptainererrors"
)

// CheckSanity validates the cryptainer-only fields on top of the structural
// cryptoconf validation already applied to its embedded tree: uid, format,
// state, and offloading marker consistency.
func CheckSanity(c Cryptainer, opts cryptoconf.ValidateOptions) error {
	if c.CryptainerUID == "" {
		return cryptainererrors.NewValidationError("cryptainer_uid", "must not be empty")
	}
	if c.CryptainerFormat != CryptainerFormat {
		return fmt.Errorf("%w: Unknown cryptainer format", cryptainererrors.ErrValueError)
	}
	switch c.CryptainerState {
	case StateStarted, StateFinished:
	default:
		return cryptainererrors.NewValidationError("cryptainer_state", "must be STARTED or FINISHED, got %q", c.CryptainerState)
	}
	if c.KeychainUID == "" {
		return cryptainererrors.NewValidationError("keychain_uid", "must not be empty")
	}

	if c.CryptainerState == StateFinished {
		if !c.PayloadCiphertextStruct.Offloaded && c.PayloadCiphertextStruct.CiphertextValue == nil {
			return cryptainererrors.NewValidationError("payload_ciphertext_struct", "a FINISHED cryptainer must carry ciphertext, inline or offloaded")
		}
		for i, layer := range c.PayloadCipherLayers {
			for j, sig := range layer.PayloadSignatures {
				if sig.SignatureValue == nil {
					return cryptainererrors.NewValidationError(
						fmt.Sprintf("payload_cipher_layers[%d].payload_signatures[%d]", i, j),
						"FINISHED cryptainer is missing its signature value",
					)
				}
			}
			if cryptoconf.AuthenticatedPayloadCipherAlgos[layer.PayloadCipherAlgo] && len(layer.PayloadMacs) == 0 {
				return cryptainererrors.NewValidationError(
					fmt.Sprintf("payload_cipher_layers[%d].payload_macs", i),
					"authenticated cipher %q requires payload_macs on a FINISHED cryptainer", layer.PayloadCipherAlgo,
				)
			}
		}
	}

	return cryptoconf.Validate(c.Cryptoconf, opts)
}
