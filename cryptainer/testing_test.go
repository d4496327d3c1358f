// Copyright (c) HashiCorp, Inc.
// SPDX-License-Identifier: BUSL-1.1

package cryptainer

import (
	"github.com/hashicorp/cryptainer/cryptoconf"
	"github.com/hashicorp/cryptainer/keystore"
	"github.com/hashicorp/cryptainer/trustee"
)

// singleTrusteeResolver resolves every TrusteeDescriptor to the same
// LocalTrustee, enough for exercising the encryption/decryption pipeline
// end to end without standing up a keystore pool or RemoteTrustee.
type singleTrusteeResolver struct {
	local *trustee.LocalTrustee
}

func newSingleTrusteeResolver() *singleTrusteeResolver {
	return &singleTrusteeResolver{local: trustee.NewLocalTrustee(keystore.NewMemoryKeystore())}
}

func (r *singleTrusteeResolver) Resolve(cryptoconf.TrusteeDescriptor) (trustee.Trustee, error) {
	return r.local, nil
}

// simpleCryptoconf returns a single-layer, single-wrap, single-signature
// cryptoconf template: one AES_EAX payload layer wrapped by RSA_OAEP and
// signed with ECC_DSS, all against the local factory trustee.
func simpleCryptoconf() cryptoconf.Cryptoconf {
	return cryptoconf.Cryptoconf{
		PayloadCipherLayers: []cryptoconf.PayloadCipherLayer{
			{
				PayloadCipherAlgo: cryptoconf.AESEAX,
				KeyCipherLayers: []cryptoconf.KeyCipherLayer{
					{
						KeyCipherAlgo:    cryptoconf.RSAOAEP,
						KeyCipherTrustee: cryptoconf.LocalFactoryTrustee(),
					},
				},
				PayloadSignatures: []cryptoconf.PayloadSignature{
					{
						PayloadDigestAlgo:       cryptoconf.SHA256,
						PayloadSignatureAlgo:    cryptoconf.ECCDSS,
						PayloadSignatureTrustee: cryptoconf.LocalFactoryTrustee(),
					},
				},
			},
		},
	}
}

// sharedSecretCryptoconf returns a single payload layer whose key is
// wrapped by a 2-of-3 Shamir shared secret, each shard in turn wrapped by
// RSA_OAEP against the local factory trustee.
func sharedSecretCryptoconf() cryptoconf.Cryptoconf {
	shard := func() []cryptoconf.KeyCipherLayer {
		return []cryptoconf.KeyCipherLayer{
			{KeyCipherAlgo: cryptoconf.RSAOAEP, KeyCipherTrustee: cryptoconf.LocalFactoryTrustee()},
		}
	}
	return cryptoconf.Cryptoconf{
		PayloadCipherLayers: []cryptoconf.PayloadCipherLayer{
			{
				PayloadCipherAlgo: cryptoconf.AESEAX,
				KeyCipherLayers: []cryptoconf.KeyCipherLayer{
					{
						KeyCipherAlgo:            cryptoconf.SharedSecretAlgoMarker,
						KeySharedSecretThreshold: 2,
						KeySharedSecretShards:    [][]cryptoconf.KeyCipherLayer{shard(), shard(), shard()},
					},
				},
				PayloadSignatures: []cryptoconf.PayloadSignature{
					{
						PayloadDigestAlgo:       cryptoconf.SHA256,
						PayloadSignatureAlgo:    cryptoconf.ECCDSS,
						PayloadSignatureTrustee: cryptoconf.LocalFactoryTrustee(),
					},
				},
			},
		},
	}
}
