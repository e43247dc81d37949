package engine

// slotStride spreads per-player seeds far enough apart that neighbouring
// slots get unrelated LCG streams.
const slotStride = 7919

// Hand deals a player's cards for the round: handSize distinct ids drawn
// without replacement from pool, fully determined by (roundSeed, slot).
// Hands of different players may overlap; only within-hand uniqueness is
// guaranteed.
func Hand(roundSeed int32, slot, handSize int, pool []string) ([]string, error) {
	if handSize > len(pool) {
		return nil, ErrPoolTooSmall
	}

	rng := newLCG(nonneg(roundSeed) + int64(slot)*slotStride)
	taken := make(map[int]bool, handSize)
	hand := make([]string, 0, handSize)
	for len(hand) < handSize {
		i := rng.intn(len(pool))
		if taken[i] {
			continue
		}
		taken[i] = true
		hand = append(hand, pool[i])
	}
	return hand, nil
}
