// Copyright (c) HashiCorp, Inc.
// SPDX-License-Identifier: BUSL-1.1

package cryptainer

import (
	"fmt"
	"os"

	"github.com/hashicorp/cryptainer/cryptoconf"
	"github.com/hashicorp/cryptainer/primitives"
	uuid "github.com/hashicorp/go-uuid"
)

// IsStreamable reports whether conf can be driven through
// CreateEncryptionStream: today that requires exactly one payload cipher
// layer, whose cipher supports incremental sealing. A multi-layer
// cryptoconf needs the whole assembled ciphertext of layer i before layer
// i+1 can begin, which defeats streaming.
func IsStreamable(conf cryptoconf.Cryptoconf) bool {
	if len(conf.PayloadCipherLayers) != 1 {
		return false
	}
	cipher, err := primitives.PayloadCipherFor(conf.PayloadCipherLayers[0].PayloadCipherAlgo)
	if err != nil {
		return false
	}
	_, ok := cipher.(primitives.StreamingPayloadCipher)
	return ok
}

// EncryptionStream is the streaming counterpart to Encryptor.Encrypt: it
// dumps a STARTED cryptainer immediately, appends ciphertext chunks to an
// offloaded sidecar file as they're produced, and on Finalize computes
// signatures over the assembled ciphertext before atomically rewriting the
// cryptainer header as FINISHED.
type EncryptionStream struct {
	encryptor *Encryptor
	dir       string
	name      string

	layer  *cryptoconf.PayloadCipherLayer
	stream primitives.PayloadEncryptStream
	symkey []byte

	cryptainer Cryptainer
	payloadFile *os.File

	chunkCount int
	byteCount  int
}

// CreateEncryptionStream begins a streaming encryption session for conf,
// writing files under dir named name.crypt (header) and name.payload
// (ciphertext sidecar). When dumpInitial is true the STARTED header is
// written to disk immediately, matching create_cryptainer_encryption_stream's
// default.
func (e *Encryptor) CreateEncryptionStream(dir, name string, conf cryptoconf.Cryptoconf, keychainUID string, metadata map[string]any, dumpInitial bool) (*EncryptionStream, error) {
	if !IsStreamable(conf) {
		return nil, fmt.Errorf("cryptainer: cryptoconf is not streamable")
	}
	if keychainUID == "" {
		generated, err := uuid.GenerateUUID()
		if err != nil {
			return nil, fmt.Errorf("cryptainer: failed to generate keychain_uid: %w", err)
		}
		keychainUID = generated
	}
	cryptainerUID, err := uuid.GenerateUUID()
	if err != nil {
		return nil, fmt.Errorf("cryptainer: failed to generate cryptainer_uid: %w", err)
	}

	out := Cryptainer{
		Cryptoconf:              conf.DeepCopy(),
		CryptainerUID:           cryptainerUID,
		CryptainerFormat:        CryptainerFormat,
		CryptainerState:         StateStarted,
		KeychainUID:             keychainUID,
		CryptainerMetadata:      metadata,
		PayloadCiphertextStruct: OffloadedCiphertext(),
	}

	layer := &out.PayloadCipherLayers[0]
	cipher, err := primitives.PayloadCipherFor(layer.PayloadCipherAlgo)
	if err != nil {
		return nil, err
	}
	streamingCipher := cipher.(primitives.StreamingPayloadCipher)
	symkey, err := primitives.RandomSymkey(cipher.KeySize())
	if err != nil {
		return nil, err
	}
	wrapped, err := e.wrapSymkey(symkey, layer.KeyCipherLayers, keychainUID)
	if err != nil {
		return nil, err
	}
	layer.KeyCiphertext = wrapped

	if dumpInitial {
		if err := Dump(dir, name, out, true); err != nil {
			return nil, err
		}
	}

	f, err := os.OpenFile(payloadPath(dir, name), os.O_WRONLY|os.O_CREATE|os.O_TRUNC, 0o600)
	if err != nil {
		return nil, fmt.Errorf("cryptainer: failed to open payload sidecar: %w", err)
	}

	return &EncryptionStream{
		encryptor:   e,
		dir:         dir,
		name:        name,
		layer:       layer,
		stream:      streamingCipher.NewEncryptStream(symkey),
		symkey:      symkey,
		cryptainer:  out,
		payloadFile: f,
	}, nil
}

// EncryptChunk feeds one plaintext chunk through the stream, appending
// whatever ciphertext the cipher can emit immediately to the sidecar file.
func (s *EncryptionStream) EncryptChunk(chunk []byte) error {
	ciphertext, err := s.stream.Write(chunk)
	if err != nil {
		return fmt.Errorf("cryptainer: streaming encryption failed: %w", err)
	}
	if _, err := s.payloadFile.Write(ciphertext); err != nil {
		return fmt.Errorf("cryptainer: failed to append to payload sidecar: %w", err)
	}
	s.chunkCount++
	s.byteCount += len(chunk)
	return nil
}

// Finalize flushes any remaining ciphertext, signs the assembled payload,
// and atomically rewrites the cryptainer header as FINISHED. It returns
// the finished cryptainer.
func (s *EncryptionStream) Finalize() (Cryptainer, error) {
	tail, tags, err := s.stream.Finalize()
	if err != nil {
		s.payloadFile.Close()
		return Cryptainer{}, fmt.Errorf("cryptainer: streaming finalize failed: %w", err)
	}
	if _, err := s.payloadFile.Write(tail); err != nil {
		s.payloadFile.Close()
		return Cryptainer{}, fmt.Errorf("cryptainer: failed to append final ciphertext chunk: %w", err)
	}
	if err := s.payloadFile.Close(); err != nil {
		return Cryptainer{}, err
	}
	s.layer.PayloadMacs = tags

	assembled, err := os.ReadFile(payloadPath(s.dir, s.name))
	if err != nil {
		return Cryptainer{}, fmt.Errorf("cryptainer: failed to reread assembled payload: %w", err)
	}

	if err := s.encryptor.signLayer(s.layer, assembled, s.cryptainer.KeychainUID); err != nil {
		return Cryptainer{}, err
	}

	s.cryptainer.CryptainerState = StateFinished
	if s.cryptainer.CryptainerMetadata == nil {
		s.cryptainer.CryptainerMetadata = make(map[string]any)
	}
	s.cryptainer.CryptainerMetadata["__stream_info"] = map[string]any{
		"chunk_count": s.chunkCount,
		"byte_count":  s.byteCount,
	}

	if err := Dump(s.dir, s.name, s.cryptainer, true); err != nil {
		return Cryptainer{}, err
	}
	return s.cryptainer, nil
}
