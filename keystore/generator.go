// Copyright (c) HashiCorp, Inc.
// SPDX-License-Identifier: BUSL-1.1

package keystore

import (
	"context"

	log "github.com/hashicorp/go-hclog"
	"golang.org/x/time/rate"
)

// KeyPairGenerator produces a fresh PEM-encoded keypair for algo. It is
// satisfied by primitives.GenerateKeyPairPEM; kept as an interface here so
// this package doesn't import primitives (which in turn doesn't need to
// know about keystore).
type KeyPairGenerator func(algo string) (publicKeyPEM, privateKeyPEM []byte, err error)

// FreeKeyGeneratorConfig controls FreeKeyGenerator's pacing.
type FreeKeyGeneratorConfig struct {
	// Algos is the set of key algorithms the generator keeps topped up.
	Algos []KeyAlgo

	// MaxFreeKeysPerAlgo is the per-algo ceiling the generator tops up to.
	MaxFreeKeysPerAlgo int

	// TickRate bounds how often the generator may attempt a keygen; it
	// sleeps for the rest of a tick once every algo is at its ceiling.
	TickRate rate.Limit
}

// FreeKeyGenerator is a periodic worker that keeps a keystore's free-keypair
// pool topped up, decoupling encryption latency from keygen cost: a
// rate-limited loop started on a cancelable context, stoppable via Stop, in
// the same shape as nomad/keyring.go's KeyringReplicator.run.
//
// Each tick it picks the algo with the fewest free keypairs (ties broken by
// the order Algos lists them) and, if that algo is still below
// MaxFreeKeysPerAlgo, generates and adds one keypair; otherwise every algo
// is topped up and the tick is a no-op, relying on the rate limiter to
// avoid a busy loop.
type FreeKeyGenerator struct {
	ks        Keystore
	generate  KeyPairGenerator
	cfg       FreeKeyGeneratorConfig
	logger    log.Logger
	cancelled context.CancelFunc
}

// NewFreeKeyGenerator starts a FreeKeyGenerator against ks in the
// background and returns a handle to it. logger may be nil, in which case a
// no-op logger is used.
func NewFreeKeyGenerator(ks Keystore, generate KeyPairGenerator, cfg FreeKeyGeneratorConfig, logger log.Logger) *FreeKeyGenerator {
	if logger == nil {
		logger = log.NewNullLogger()
	}
	ctx, cancel := context.WithCancel(context.Background())
	g := &FreeKeyGenerator{
		ks:        ks,
		generate:  generate,
		cfg:       cfg,
		logger:    logger.Named("keystore.free_key_generator"),
		cancelled: cancel,
	}
	go g.run(ctx)
	return g
}

// Stop cancels the background loop. It does not wait for the current tick
// to finish.
func (g *FreeKeyGenerator) Stop() {
	g.cancelled()
}

func (g *FreeKeyGenerator) run(ctx context.Context) {
	g.logger.Debug("starting free key generation")
	defer g.logger.Debug("exiting free key generation")

	limiter := rate.NewLimiter(g.cfg.TickRate, 1)

	for {
		select {
		case <-ctx.Done():
			return
		default:
			if err := limiter.Wait(ctx); err != nil {
				return
			}
			g.tick()
		}
	}
}

func (g *FreeKeyGenerator) tick() {
	algo, count, err := g.smallestAlgo()
	if err != nil {
		g.logger.Error("failed to inspect free keypair counts", "error", err)
		return
	}
	if count >= g.cfg.MaxFreeKeysPerAlgo {
		return
	}

	pub, priv, err := g.generate(string(algo))
	if err != nil {
		g.logger.Error("failed to generate free keypair", "algo", algo, "error", err)
		return
	}
	if err := g.ks.AddFreeKeypair(algo, pub, priv); err != nil {
		g.logger.Error("failed to add free keypair", "algo", algo, "error", err)
	}
}

func (g *FreeKeyGenerator) smallestAlgo() (KeyAlgo, int, error) {
	best := g.cfg.Algos[0]
	bestCount, err := g.ks.GetFreeKeypairsCount(best)
	if err != nil {
		return "", 0, err
	}
	for _, algo := range g.cfg.Algos[1:] {
		count, err := g.ks.GetFreeKeypairsCount(algo)
		if err != nil {
			return "", 0, err
		}
		if count < bestCount {
			best, bestCount = algo, count
		}
	}
	return best, bestCount, nil
}
