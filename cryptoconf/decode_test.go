// Copyright (c) HashiCorp, Inc.
// SPDX-License-Identifier: BUSL-1.1

package cryptoconf

import (
	"testing"

	"github.com/shoenig/test/must"
)

func TestDecodeMap_SimpleLayer(t *testing.T) {
	raw := map[string]any{
		"payload_cipher_layers": []map[string]any{
			{
				"payload_cipher_algo": "AES_EAX",
				"key_cipher_layers": []map[string]any{
					{
						"key_cipher_algo": "RSA_OAEP",
						"key_cipher_trustee": map[string]any{
							"trustee_type": LocalFactoryTrusteeMarker,
						},
					},
				},
			},
		},
	}

	conf, err := DecodeMap(raw)
	must.NoError(t, err)
	must.Eq(t, 1, len(conf.PayloadCipherLayers))

	layer := conf.PayloadCipherLayers[0]
	must.Eq(t, AESEAX, layer.PayloadCipherAlgo)
	must.Eq(t, 1, len(layer.KeyCipherLayers))
	must.Eq(t, RSAOAEP, layer.KeyCipherLayers[0].KeyCipherAlgo)
	must.Eq(t, LocalFactoryTrusteeMarker, layer.KeyCipherLayers[0].KeyCipherTrustee.TrusteeType)
}

func TestDecodeMap_RejectsWrongShape(t *testing.T) {
	raw := map[string]any{
		"payload_cipher_layers": "not-a-list",
	}
	_, err := DecodeMap(raw)
	must.Error(t, err)
}
