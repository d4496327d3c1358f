// Copyright (c) HashiCorp, Inc.
// SPDX-License-Identifier: BUSL-1.1

package storage

import (
	"strings"
	"testing"

	"github.com/hashicorp/cryptainer/cryptoconf"
	"github.com/hashicorp/cryptainer/keystore"
	"github.com/hashicorp/cryptainer/trustee"
	"github.com/shoenig/test/must"
)

type singleTrusteeResolver struct {
	local *trustee.LocalTrustee
}

func (r *singleTrusteeResolver) Resolve(cryptoconf.TrusteeDescriptor) (trustee.Trustee, error) {
	return r.local, nil
}

func newTestResolver() *singleTrusteeResolver {
	return &singleTrusteeResolver{local: trustee.NewLocalTrustee(keystore.NewMemoryKeystore())}
}

func simpleConf() cryptoconf.Cryptoconf {
	return cryptoconf.Cryptoconf{
		PayloadCipherLayers: []cryptoconf.PayloadCipherLayer{
			{
				PayloadCipherAlgo: cryptoconf.AESEAX,
				KeyCipherLayers: []cryptoconf.KeyCipherLayer{
					{KeyCipherAlgo: cryptoconf.RSAOAEP, KeyCipherTrustee: cryptoconf.LocalFactoryTrustee()},
				},
				PayloadSignatures: []cryptoconf.PayloadSignature{
					{PayloadDigestAlgo: cryptoconf.SHA256, PayloadSignatureAlgo: cryptoconf.ECCDSS, PayloadSignatureTrustee: cryptoconf.LocalFactoryTrustee()},
				},
			},
		},
	}
}

func newTestStorage(t *testing.T, purge PurgePolicy) *Storage {
	t.Helper()
	conf := simpleConf()
	s, err := New(Config{
		Dir:               t.TempDir(),
		Trustees:          newTestResolver(),
		DefaultCryptoconf: &conf,
		Purge:             purge,
		WorkerCount:       2,
	})
	must.NoError(t, err)
	return s
}

func TestEnqueueFileForEncryption_FailsFastWithoutCryptoconf(t *testing.T) {
	s, err := New(Config{Dir: t.TempDir(), Trustees: newTestResolver(), WorkerCount: 1})
	must.NoError(t, err)

	err = s.EnqueueFileForEncryption(EnqueueInput{Filename: "a.txt", Payload: []byte("x")})
	must.Error(t, err)
	must.True(t, strings.Contains(err.Error(), "cryptoconf"))
}

func TestEnqueueFileForEncryption_RoundtripsThroughStorage(t *testing.T) {
	s := newTestStorage(t, PurgePolicy{})

	must.NoError(t, s.EnqueueFileForEncryption(EnqueueInput{Filename: "a.txt", Payload: []byte("hello storage")}))
	s.WaitForIdleState()

	names, err := s.ListCryptainerNames(true)
	must.NoError(t, err)
	must.Eq(t, 1, len(names))

	plaintext, err := s.DecryptCryptainerFromStorage(names[0], nil, true)
	must.NoError(t, err)
	must.Eq(t, []byte("hello storage"), plaintext)
}

func TestEnqueueFileForEncryption_CollisionSuffixIsMonotonic(t *testing.T) {
	s := newTestStorage(t, PurgePolicy{})

	for i := 0; i < 3; i++ {
		must.NoError(t, s.EnqueueFileForEncryption(EnqueueInput{Filename: "same.txt", Payload: []byte("x")}))
	}
	s.WaitForIdleState()

	names, err := s.ListCryptainerNames(true)
	must.NoError(t, err)
	must.Eq(t, 3, len(names))
	must.Eq(t, "same.txt.000", names[0])
	must.Eq(t, "same.txt.001", names[1])
	must.Eq(t, "same.txt.002", names[2])
}

func TestCheckCryptainerSanity(t *testing.T) {
	s := newTestStorage(t, PurgePolicy{})
	must.NoError(t, s.EnqueueFileForEncryption(EnqueueInput{Filename: "a.txt", Payload: []byte("x")}))
	s.WaitForIdleState()

	names, err := s.ListCryptainerNames(true)
	must.NoError(t, err)
	must.NoError(t, s.CheckCryptainerSanity(names[0], cryptoconf.ValidateOptions{}))
}

func TestDeleteCryptainer(t *testing.T) {
	s := newTestStorage(t, PurgePolicy{})
	must.NoError(t, s.EnqueueFileForEncryption(EnqueueInput{Filename: "a.txt", Payload: []byte("x")}))
	s.WaitForIdleState()

	names, err := s.ListCryptainerNames(true)
	must.NoError(t, err)
	must.NoError(t, s.DeleteCryptainer(names[0]))

	names, err = s.ListCryptainerNames(true)
	must.NoError(t, err)
	must.Eq(t, 0, len(names))
}

// TestPurge_ByCount checks that with max_cryptainer_count=3, enqueueing a
// 4th evicts the oldest by mtime.
func TestPurge_ByCount(t *testing.T) {
	maxCount := 3
	s := newTestStorage(t, PurgePolicy{MaxCount: &maxCount})

	for i := 0; i < 3; i++ {
		must.NoError(t, s.EnqueueFileForEncryption(EnqueueInput{Filename: "f", Payload: []byte("x")}))
	}
	s.WaitForIdleState()
	names, err := s.ListCryptainerNames(true)
	must.NoError(t, err)
	must.Eq(t, 3, len(names))

	must.NoError(t, s.EnqueueFileForEncryption(EnqueueInput{Filename: "f", Payload: []byte("x")}))
	s.WaitForIdleState()

	names, err = s.ListCryptainerNames(true)
	must.NoError(t, err)
	must.Eq(t, 3, len(names))
	must.Eq(t, "f.003", names[2])
	must.False(t, nameIn(names, "f.000"))
}

func TestPurge_ZeroLimitPurgesEverything(t *testing.T) {
	maxCount := 0
	s := newTestStorage(t, PurgePolicy{MaxCount: &maxCount})

	must.NoError(t, s.EnqueueFileForEncryption(EnqueueInput{Filename: "f", Payload: []byte("x")}))
	s.WaitForIdleState()

	names, err := s.ListCryptainerNames(true)
	must.NoError(t, err)
	must.Eq(t, 0, len(names))
}

func nameIn(names []string, target string) bool {
	for _, n := range names {
		if n == target {
			return true
		}
	}
	return false
}
