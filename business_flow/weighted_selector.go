package businessflow

import (
	crand "crypto/rand"
	"encoding/binary"
	"hash/fnv"
	"math/rand"

	"github.com/opencohort/longwave/utils"
)

// SelectWeighted picks one candidate with probability proportional to its
// weight. Candidates missing from weights default to weight 1; weights <= 0
// exclude the candidate. A non-nil seed makes the selection reproducible: the
// same seed always yields the same candidate. With every candidate excluded
// the first candidate is returned unconditionally.
//
// The implementation expands candidates into a multiset, runs a full
// Fisher-Yates shuffle and takes the first element, which gives selection
// probability exactly weight/sum(weights).
func SelectWeighted(candidates []string, weights map[string]int, seed *string) string {
	if len(candidates) == 0 {
		return ""
	}

	pool := make([]string, 0, len(candidates))
	for _, c := range candidates {
		w, ok := weights[c]
		if !ok {
			w = utils.DefaultArmWeight
		}
		for i := 0; i < w; i++ {
			pool = append(pool, c)
		}
	}
	if len(pool) == 0 {
		return candidates[0]
	}

	rng := rand.New(rand.NewSource(seedValue(seed)))
	rng.Shuffle(len(pool), func(i, j int) {
		pool[i], pool[j] = pool[j], pool[i]
	})

	return pool[0]
}

// seedValue derives the PRNG seed: a stable FNV-1a hash of the seed string
// when given, otherwise entropy from crypto/rand
func seedValue(seed *string) int64 {
	if seed != nil && *seed != "" {
		h := fnv.New64a()
		_, _ = h.Write([]byte(*seed))
		return int64(h.Sum64())
	}

	var buf [8]byte
	if _, err := crand.Read(buf[:]); err == nil {
		return int64(binary.LittleEndian.Uint64(buf[:]))
	}
	// crypto/rand failing is effectively fatal elsewhere; fall back to a
	// time-derived seed rather than panic here
	return utils.UTCNow().UnixNano()
}
