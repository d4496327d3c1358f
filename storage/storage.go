// Copyright (c) HashiCorp, Inc.
// SPDX-License-Identifier: BUSL-1.1

// Package storage implements CryptainerStorage: a bounded background
// worker pool that consumes enqueued (filename, payload, metadata,
// cryptoconf) tuples, runs them through a cryptainer.Encryptor, writes the
// result to disk, and enforces purge policies afterward.
package storage

import (
	"fmt"
	"io"
	"os"
	"sort"
	"sync"
	"time"

	"github.com/armon/go-metrics"
	"github.com/hashicorp/cryptainer/cryptainer"
	"github.com/hashicorp/cryptainer/cryptoconf"
	log "github.com/hashicorp/go-hclog"
	"github.com/hashicorp/go-multierror"
	uuid "github.com/hashicorp/go-uuid"
)

// defaultWorkerCount bounds the background pool: a small fixed worker count
// over one goroutine per task.
const defaultWorkerCount = 4

// EnqueueInput is one unit of work submitted to EnqueueFileForEncryption.
// Exactly one of Payload or Reader should be set; when SourcePath is also
// set, that file is deleted on successful encryption (best-effort).
type EnqueueInput struct {
	Filename    string
	Payload     []byte
	Reader      io.Reader
	SourcePath  string
	Metadata    map[string]any
	Cryptoconf  *cryptoconf.Cryptoconf
	KeychainUID string
}

// Storage is CryptainerStorage: it owns a cryptainer_dir, a bounded worker
// pool, and the purge policy enforced after every successful write.
type Storage struct {
	dir               string
	logger            log.Logger
	encryptor         *cryptainer.Encryptor
	decryptor         *cryptainer.Decryptor
	defaultCryptoconf *cryptoconf.Cryptoconf
	purge             PurgePolicy

	tasks chan enqueueTask
	wg    sync.WaitGroup

	mu        sync.Mutex
	nextIndex int
}

type enqueueTask struct {
	in EnqueueInput
}

// Config configures a new Storage.
type Config struct {
	Dir               string
	Trustees          cryptainer.TrusteeResolver
	DefaultCryptoconf *cryptoconf.Cryptoconf
	Purge             PurgePolicy
	WorkerCount       int
	Logger            log.Logger
}

// New creates a Storage rooted at cfg.Dir and starts its worker pool.
func New(cfg Config) (*Storage, error) {
	if err := os.MkdirAll(cfg.Dir, 0o700); err != nil {
		return nil, err
	}
	if cfg.Logger == nil {
		cfg.Logger = log.NewNullLogger()
	}
	workers := cfg.WorkerCount
	if workers <= 0 {
		workers = defaultWorkerCount
	}

	s := &Storage{
		dir:               cfg.Dir,
		logger:            cfg.Logger.Named("cryptainer.storage"),
		encryptor:         cryptainer.NewEncryptor(cfg.Trustees),
		decryptor:         cryptainer.NewDecryptor(cfg.Trustees),
		defaultCryptoconf: cfg.DefaultCryptoconf,
		purge:             cfg.Purge,
		tasks:             make(chan enqueueTask, 64),
	}

	existing, err := cryptainer.ListNames(cfg.Dir)
	if err != nil {
		return nil, err
	}
	s.nextIndex = len(existing)

	for i := 0; i < workers; i++ {
		go s.worker()
	}
	return s, nil
}

// EnqueueFileForEncryption schedules in for background encryption. It
// fails fast if neither in.Cryptoconf nor the storage's default cryptoconf
// is set; everything else about the task's success or failure is handled
// asynchronously by the worker pool.
func (s *Storage) EnqueueFileForEncryption(in EnqueueInput) error {
	if in.Cryptoconf == nil && s.defaultCryptoconf == nil {
		return fmt.Errorf("storage: no cryptoconf given for %q and no default cryptoconf configured", in.Filename)
	}
	s.wg.Add(1)
	metrics.IncrCounter([]string{"cryptainer", "storage", "enqueue"}, 1)
	s.tasks <- enqueueTask{in: in}
	return nil
}

// WaitForIdleState blocks until every enqueued task has been processed
// (successfully or not). It is a test/inspection aid.
func (s *Storage) WaitForIdleState() {
	s.wg.Wait()
}

func (s *Storage) worker() {
	for task := range s.tasks {
		s.process(task.in)
		s.wg.Done()
	}
}

// process runs one task to completion, catching and logging any error
// under the "Caught exception" prefix rather than propagating it: a single
// bad task must not take down the worker pool or surface to the original
// enqueue call.
func (s *Storage) process(in EnqueueInput) {
	if err := s.processOrError(in); err != nil {
		s.logger.Error("Caught exception", "filename", in.Filename, "error", err)
		return
	}
}

func (s *Storage) processOrError(in EnqueueInput) error {
	payload := in.Payload
	if in.Reader != nil {
		read, err := io.ReadAll(in.Reader)
		if err != nil {
			return fmt.Errorf("storage: failed to read payload for %q: %w", in.Filename, err)
		}
		payload = read
	}

	conf := in.Cryptoconf
	if conf == nil {
		conf = s.defaultCryptoconf
	}

	start := time.Now()
	c, err := s.encryptor.Encrypt(*conf, in.KeychainUID, in.Metadata, payload)
	metrics.MeasureSince([]string{"cryptainer", "storage", "encrypt"}, start)
	if err != nil {
		return fmt.Errorf("storage: encryption failed for %q: %w", in.Filename, err)
	}

	name, err := s.allocateName(in.Filename)
	if err != nil {
		return err
	}
	if err := cryptainer.Dump(s.dir, name, c, false); err != nil {
		return fmt.Errorf("storage: failed to write cryptainer for %q: %w", in.Filename, err)
	}

	if in.SourcePath != "" {
		if err := os.Remove(in.SourcePath); err != nil {
			s.logger.Warn("failed to delete source file after encryption", "path", in.SourcePath, "error", err)
		}
	}

	if s.purge.isConfigured() {
		deleted, err := s.runPurge()
		if err != nil {
			s.logger.Error("purge failed", "error", err)
		}
		if deleted > 0 {
			metrics.IncrCounter([]string{"cryptainer", "storage", "purge", "deleted"}, float32(deleted))
		}
	}
	return nil
}

// allocateName builds the on-disk cryptainer name for filename: the base
// name with a zero-padded 3-digit collision suffix, assigned from a
// monotonically increasing per-storage-instance counter in enqueue order.
func (s *Storage) allocateName(filename string) (string, error) {
	s.mu.Lock()
	index := s.nextIndex
	s.nextIndex++
	s.mu.Unlock()

	base := filename
	if base == "" {
		generated, err := uuid.GenerateUUID()
		if err != nil {
			return "", err
		}
		base = generated
	}
	return fmt.Sprintf("%s.%03d", base, index), nil
}

// ListCryptainerNames returns the cryptainer names present in the storage
// directory, optionally sorted.
func (s *Storage) ListCryptainerNames(sorted bool) ([]string, error) {
	names, err := cryptainer.ListNames(s.dir)
	if err != nil {
		return nil, err
	}
	if sorted {
		sort.Strings(names)
	}
	return names, nil
}

// LoadCryptainerFromStorage reads back the cryptainer named name.
func (s *Storage) LoadCryptainerFromStorage(name string) (cryptainer.Cryptainer, error) {
	return cryptainer.Load(s.dir, name)
}

// DecryptCryptainerFromStorage loads and decrypts the cryptainer named
// name.
func (s *Storage) DecryptCryptainerFromStorage(name string, passphrases cryptainer.PassphraseMapper, verify bool) ([]byte, error) {
	c, err := cryptainer.Load(s.dir, name)
	if err != nil {
		return nil, err
	}
	return s.decryptor.Decrypt(c, passphrases, verify)
}

// DeleteCryptainer removes the cryptainer named name and its sidecar.
func (s *Storage) DeleteCryptainer(name string) error {
	return cryptainer.Delete(s.dir, name)
}

// CheckCryptainerSanity loads the cryptainer named name and runs
// cryptainer.CheckSanity against it.
func (s *Storage) CheckCryptainerSanity(name string, opts cryptoconf.ValidateOptions) error {
	c, err := cryptainer.Load(s.dir, name)
	if err != nil {
		return err
	}
	return cryptainer.CheckSanity(c, opts)
}

// CreateCryptainerEncryptionStream starts a streaming encryption session
// in this storage's directory, optionally dumping the STARTED header
// immediately.
func (s *Storage) CreateCryptainerEncryptionStream(filenameBase string, metadata map[string]any, conf cryptoconf.Cryptoconf, dumpInitial bool) (*cryptainer.EncryptionStream, error) {
	name, err := s.allocateName(filenameBase)
	if err != nil {
		return nil, err
	}
	return s.encryptor.CreateEncryptionStream(s.dir, name, conf, "", metadata, dumpInitial)
}

// multierrorAppend is a small helper so purge.go's accumulation style
// matches the decryptor's multierror usage for shard failures.
func multierrorAppend(err *multierror.Error, errs ...error) *multierror.Error {
	return multierror.Append(err, errs...)
}
