package engine

// WolfSlot selects the round's wolf from the roster frozen at round start.
// Always in [0, playerCount) for playerCount > 0; a roster change mid-round
// must not re-invoke this for the round in progress.
func WolfSlot(roundSeed int32, playerCount int) int {
	return int(nonneg(roundSeed) % int64(playerCount))
}

// StartSlot selects which seat opens the placement phase.
func StartSlot(startSeed int32, playerCount int) int {
	return int(nonneg(startSeed) % int64(playerCount))
}
