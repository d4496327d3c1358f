// Copyright (c) HashiCorp, Inc.
// SPDX-License-Identifier: BUSL-1.1

package cryptainer

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"

	uuid "github.com/hashicorp/go-uuid"
)

const (
	payloadSidecarExtension = ".payload"
	cryptainerExtension     = ".crypt"
	tempSuffix              = ".tmp"
)

// PayloadOffloadThreshold is the inline ciphertext size above which Dump
// offloads the payload to a sidecar file instead of embedding it in the
// cryptainer JSON.
const PayloadOffloadThreshold = 1 << 20 // 1 MiB

// cryptainerPath and payloadPath return the on-disk locations Dump/Load/
// Delete use for a given cryptainer name (typically the cryptainer_uid),
// rooted at dir.
func cryptainerPath(dir, name string) string {
	return filepath.Join(dir, name+cryptainerExtension)
}

func payloadPath(dir, name string) string {
	return filepath.Join(dir, name+payloadSidecarExtension)
}

// CryptainerFilePath exposes the on-disk path of the cryptainer header
// file for name, for callers (e.g. package storage) that need to stat it
// directly rather than go through Load.
func CryptainerFilePath(dir, name string) string {
	return cryptainerPath(dir, name)
}

// CryptainerExtension is the filename suffix Dump/Load/ListNames use for
// cryptainer header files.
const CryptainerExtension = cryptainerExtension

// Dump serializes c to dir/<name><cryptainerExtension>, offloading the
// payload ciphertext to a sidecar file whenever it's at least
// PayloadOffloadThreshold bytes, or unconditionally when forceOffload is
// set. Both the cryptainer file and, when written, the sidecar file are
// created via a temp-suffix-then-rename so a reader never observes a
// partially written file. (The filesystem keystore instead writes its key
// files with an exclusive create, without a temp file.)
func Dump(dir, name string, c Cryptainer, forceOffload bool) error {
	if err := os.MkdirAll(dir, 0o700); err != nil {
		return err
	}

	out := c.DeepCopy()
	inline := out.PayloadCiphertextStruct.CiphertextValue
	offload := forceOffload || len(inline) >= PayloadOffloadThreshold

	if offload && !out.PayloadCiphertextStruct.Offloaded {
		if err := writeAtomic(payloadPath(dir, name), inline); err != nil {
			return fmt.Errorf("cryptainer: failed to write offloaded payload: %w", err)
		}
		out.PayloadCiphertextStruct = OffloadedCiphertext()
	}

	buf, err := json.Marshal(out)
	if err != nil {
		return fmt.Errorf("cryptainer: failed to serialize: %w", err)
	}
	return writeAtomic(cryptainerPath(dir, name), buf)
}

// writeAtomic writes buf to path by first writing to a uniquely-named
// temp file in the same directory, then renaming it into place, so
// concurrent readers never see a truncated write.
func writeAtomic(path string, buf []byte) error {
	suffix, err := uuid.GenerateUUID()
	if err != nil {
		return err
	}
	tmpPath := path + tempSuffix + "." + suffix
	if err := os.WriteFile(tmpPath, buf, 0o600); err != nil {
		os.Remove(tmpPath)
		return err
	}
	if err := os.Rename(tmpPath, path); err != nil {
		os.Remove(tmpPath)
		return err
	}
	return nil
}

// Load reads the cryptainer named name from dir. If its payload was
// offloaded, the sidecar file is read back in and folded into
// PayloadCiphertextStruct so the result is ready to hand to a Decryptor
// exactly as if it had never been offloaded.
func Load(dir, name string) (Cryptainer, error) {
	raw, err := os.ReadFile(cryptainerPath(dir, name))
	if err != nil {
		return Cryptainer{}, fmt.Errorf("cryptainer: failed to read %s: %w", name, err)
	}
	var c Cryptainer
	if err := json.Unmarshal(raw, &c); err != nil {
		return Cryptainer{}, fmt.Errorf("cryptainer: corrupt cryptainer file %s: %w", name, err)
	}

	if c.PayloadCiphertextStruct.Offloaded {
		payload, err := os.ReadFile(payloadPath(dir, name))
		if err != nil {
			return Cryptainer{}, fmt.Errorf("cryptainer: failed to read offloaded payload for %s: %w", name, err)
		}
		c.PayloadCiphertextStruct = InlineCiphertext(payload)
	}
	return c, nil
}

// Delete removes the cryptainer named name from dir along with its
// sidecar payload file, if any. A missing cryptainer or sidecar file is not
// an error, since offloading is optional; any other failure to remove
// either file is returned.
func Delete(dir, name string) error {
	if err := os.Remove(cryptainerPath(dir, name)); err != nil && !os.IsNotExist(err) {
		return fmt.Errorf("cryptainer: failed to delete %s: %w", name, err)
	}
	if err := os.Remove(payloadPath(dir, name)); err != nil && !os.IsNotExist(err) {
		return fmt.Errorf("cryptainer: failed to delete offloaded payload for %s: %w", name, err)
	}
	return nil
}

// ListNames returns the cryptainer names (without extension) present in
// dir, suitable for feeding into Load or a dependency analysis pass.
func ListNames(dir string) ([]string, error) {
	entries, err := os.ReadDir(dir)
	if err != nil {
		return nil, err
	}
	var names []string
	for _, e := range entries {
		if e.IsDir() {
			continue
		}
		if filepath.Ext(e.Name()) == cryptainerExtension {
			names = append(names, e.Name()[:len(e.Name())-len(cryptainerExtension)])
		}
	}
	return names, nil
}
