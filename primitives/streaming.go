// Copyright (c) HashiCorp, Inc.
// SPDX-License-Identifier: BUSL-1.1

package primitives

import (
	"crypto/aes"
	"crypto/cipher"
	"crypto/hmac"
	"crypto/sha256"
	"fmt"
	"hash"

	"github.com/hashicorp/cryptainer/helper/crypto"
)

// NewEncryptStream implements StreamingPayloadCipher for aesEAXCipher: a CTR
// stream cipher can emit ciphertext as soon as plaintext arrives, with the
// HMAC tag accumulated incrementally and only finalized once the whole
// payload has been seen.
func (c aesEAXCipher) NewEncryptStream(key []byte) PayloadEncryptStream {
	return &aesEAXStream{key: key}
}

type aesEAXStream struct {
	key     []byte
	stream  cipher.Stream
	mac     hash.Hash
	nonce   []byte
	started bool
}

func (s *aesEAXStream) init() error {
	block, err := aes.NewCipher(s.key)
	if err != nil {
		return fmt.Errorf("aes_eax: %w", err)
	}
	nonce, err := crypto.Bytes(aesEAXNonceSize)
	if err != nil {
		return err
	}
	s.nonce = nonce
	s.stream = cipher.NewCTR(block, nonce)
	s.mac = hmac.New(sha256.New, s.key)
	s.mac.Write(nonce)
	s.started = true
	return nil
}

func (s *aesEAXStream) Write(chunk []byte) ([]byte, error) {
	if !s.started {
		if err := s.init(); err != nil {
			return nil, err
		}
	}
	out := make([]byte, len(chunk))
	s.stream.XORKeyStream(out, chunk)
	s.mac.Write(out)
	if len(s.nonce) > 0 {
		// prepend nonce to the very first ciphertext chunk so the format
		// matches the non-streaming Seal output (nonce || ciphertext...)
		combined := append(append([]byte(nil), s.nonce...), out...)
		s.nonce = nil
		return combined, nil
	}
	return out, nil
}

func (s *aesEAXStream) Finalize() ([]byte, map[string][]byte, error) {
	if !s.started {
		if err := s.init(); err != nil {
			return nil, nil, err
		}
	}
	tag := s.mac.Sum(nil)
	var tail []byte
	if len(s.nonce) > 0 {
		tail = s.nonce
		s.nonce = nil
	}
	return tail, map[string][]byte{"tag": tag}, nil
}

// NewEncryptStream implements StreamingPayloadCipher for
// chacha20Poly1305Cipher by buffering plaintext and sealing it in one shot
// at Finalize time: Poly1305's tag depends on the whole ciphertext and
// chacha20poly1305.AEAD exposes no incremental update API, so unlike AES_EAX
// there is no way to emit ciphertext ahead of Finalize without re-deriving
// the raw stream cipher by hand. The sidecar therefore receives its bytes
// all at once, at Finalize, rather than chunk by chunk.
func (c chacha20Poly1305Cipher) NewEncryptStream(key []byte) PayloadEncryptStream {
	return &chacha20Poly1305Stream{key: key}
}

type chacha20Poly1305Stream struct {
	key []byte
	buf []byte
}

func (s *chacha20Poly1305Stream) Write(chunk []byte) ([]byte, error) {
	s.buf = append(s.buf, chunk...)
	return nil, nil
}

func (s *chacha20Poly1305Stream) Finalize() ([]byte, map[string][]byte, error) {
	ciphertext, tags, err := (chacha20Poly1305Cipher{}).Seal(s.key, s.buf)
	if err != nil {
		return nil, nil, err
	}
	return ciphertext, tags, nil
}

// NewEncryptStream implements StreamingPayloadCipher for aesCBCCipher.
// CBC needs the whole final block's padding to be known before it can be
// encrypted, so plaintext is buffered a block at a time and only complete
// blocks are emitted as they arrive.
func (c aesCBCCipher) NewEncryptStream(key []byte) PayloadEncryptStream {
	return &aesCBCStream{key: key}
}

type aesCBCStream struct {
	key     []byte
	mode    cipher.BlockMode
	iv      []byte
	pending []byte
	started bool
}

func (s *aesCBCStream) init() error {
	block, err := aes.NewCipher(s.key)
	if err != nil {
		return fmt.Errorf("aes_cbc: %w", err)
	}
	iv, err := crypto.Bytes(aes.BlockSize)
	if err != nil {
		return err
	}
	s.iv = iv
	s.mode = cipher.NewCBCEncrypter(block, iv)
	s.started = true
	return nil
}

func (s *aesCBCStream) Write(chunk []byte) ([]byte, error) {
	if !s.started {
		if err := s.init(); err != nil {
			return nil, err
		}
	}
	s.pending = append(s.pending, chunk...)

	nBlocks := len(s.pending) / aes.BlockSize
	if nBlocks == 0 {
		return s.maybeWithIV(nil), nil
	}
	toEncrypt := s.pending[:nBlocks*aes.BlockSize]
	s.pending = s.pending[nBlocks*aes.BlockSize:]

	out := make([]byte, len(toEncrypt))
	s.mode.CryptBlocks(out, toEncrypt)
	return s.maybeWithIV(out), nil
}

func (s *aesCBCStream) maybeWithIV(out []byte) []byte {
	if s.iv == nil {
		return out
	}
	iv := s.iv
	s.iv = nil
	return append(append([]byte(nil), iv...), out...)
}

func (s *aesCBCStream) Finalize() ([]byte, map[string][]byte, error) {
	if !s.started {
		if err := s.init(); err != nil {
			return nil, nil, err
		}
	}
	padded := pkcs7Pad(s.pending, aes.BlockSize)
	out := make([]byte, len(padded))
	s.mode.CryptBlocks(out, padded)
	return s.maybeWithIV(out), map[string][]byte{}, nil
}
