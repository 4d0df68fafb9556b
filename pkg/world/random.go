package world

import (
	"errors"
	"fmt"
	"math/rand/v2"
	"strconv"
	"strings"
)

const randomStateVersion = "pcg1"

// maxRandomDraws bounds the replay in RestoreRandom. Long games stay far
// below it.
const maxRandomDraws = 1 << 28

// ErrRandomState is returned for an unparseable generator state.
var ErrRandomState = errors.New("invalid random state")

// countingSource wraps a PCG source and counts 64-bit draws so the exact
// position in the stream can be saved.
type countingSource struct {
	pcg   *rand.PCG
	draws uint64
}

func (s *countingSource) Uint64() uint64 {
	s.draws++
	return s.pcg.Uint64()
}

// Random is the world's deterministic generator. Its state is the seed plus
// the number of draws consumed, which is enough to rebuild the exact future
// sequence.
type Random struct {
	seed uint64
	src  *countingSource
	rnd  *rand.Rand
}

// NewRandom creates a generator from a seed.
func NewRandom(seed uint64) *Random {
	src := &countingSource{pcg: rand.NewPCG(seed, seed^0x9e3779b97f4a7c15)}
	return &Random{seed: seed, src: src, rnd: rand.New(src)}
}

// RestoreRandom rebuilds a generator from a string produced by State.
func RestoreRandom(state string) (*Random, error) {
	parts := strings.Split(state, ":")
	if len(parts) != 3 || parts[0] != randomStateVersion {
		return nil, fmt.Errorf("%w: %q", ErrRandomState, state)
	}
	seed, err := strconv.ParseUint(parts[1], 10, 64)
	if err != nil {
		return nil, fmt.Errorf("%w: seed: %v", ErrRandomState, err)
	}
	draws, err := strconv.ParseUint(parts[2], 10, 64)
	if err != nil {
		return nil, fmt.Errorf("%w: count: %v", ErrRandomState, err)
	}
	if draws > maxRandomDraws {
		return nil, fmt.Errorf("%w: %d draws exceeds %d", ErrRandomState, draws, maxRandomDraws)
	}
	r := NewRandom(seed)
	for i := uint64(0); i < draws; i++ {
		r.src.Uint64()
	}
	return r, nil
}

// State serializes the generator as "pcg1:<seed>:<draws>".
func (r *Random) State() string {
	return fmt.Sprintf("%s:%d:%d", randomStateVersion, r.seed, r.src.draws)
}

// IntN returns a value in [0,n).
func (r *Random) IntN(n int) int {
	if n <= 0 {
		return 0
	}
	return r.rnd.IntN(n)
}

// Float64 returns a value in [0,1).
func (r *Random) Float64() float64 {
	return r.rnd.Float64()
}
