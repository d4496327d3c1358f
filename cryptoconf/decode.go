// Copyright (c) HashiCorp, Inc.
// SPDX-License-Identifier: BUSL-1.1

package cryptoconf

import (
	"fmt"

	"github.com/mitchellh/mapstructure"
)

// DecodeMap builds a Cryptoconf from a generic map, e.g. one already parsed
// from HCL/JSON/YAML by a caller's own config loader, the same way HashiCorp
// agent configs are decoded from an intermediate map[string]any via
// mapstructure rather than unmarshaling bytes directly into the target
// struct.
func DecodeMap(raw map[string]any) (Cryptoconf, error) {
	var conf Cryptoconf
	decoder, err := mapstructure.NewDecoder(&mapstructure.DecoderConfig{
		Result:           &conf,
		WeaklyTypedInput: true,
		TagName:          "mapstructure",
	})
	if err != nil {
		return Cryptoconf{}, fmt.Errorf("cryptoconf: failed to build decoder: %w", err)
	}
	if err := decoder.Decode(raw); err != nil {
		return Cryptoconf{}, fmt.Errorf("cryptoconf: failed to decode: %w", err)
	}
	return conf, nil
}
