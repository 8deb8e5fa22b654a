package game

import (
	"crypto/rand"
	mrand "math/rand/v2"
)

// NewRand returns a ChaCha8 generator seeded from the OS entropy source.
// Draws are server-local and not verifiable by clients.
func NewRand() *mrand.Rand {
	var seed [32]byte
	if _, err := rand.Read(seed[:]); err != nil {
		panic("game: reading random seed: " + err.Error())
	}
	return mrand.New(mrand.NewChaCha8(seed))
}

// NewSeededRand returns a reproducible generator for tests and replays.
func NewSeededRand(seed uint64) *mrand.Rand {
	return mrand.New(mrand.NewPCG(seed, seed^0x9e3779b97f4a7c15))
}
