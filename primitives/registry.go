// Copyright (c) HashiCorp, Inc.
// SPDX-License-Identifier: BUSL-1.1

package primitives

import (
	"errors"

	"github.com/hashicorp/cryptainer/cryptoconf"
)

var errUnsupported = errors.New("unsupported algorithm")

var payloadCiphers = map[cryptoconf.PayloadCipherAlgo]PayloadCipher{
	cryptoconf.AESCBC:           aesCBCCipher{},
	cryptoconf.AESEAX:           aesEAXCipher{},
	cryptoconf.ChaCha20Poly1305: chacha20Poly1305Cipher{},
}

var keyCiphers = map[cryptoconf.KeyCipherAlgo]KeyCipher{
	cryptoconf.RSAOAEP: rsaOAEPCipher{},
}

var signers = map[cryptoconf.SignatureAlgo]Signer{
	cryptoconf.RSAPSS: rsaPSSSigner{},
	cryptoconf.ECCDSS: eccDSSSigner{},
	cryptoconf.DSADSS: dsaDSSSigner{},
}
