package engine

import "strconv"

// Hash is the canonical string hash used for every seed derivation in the
// game. It is the classic h = h*31 + c polynomial wrapped to signed 32 bits,
// so the same room code and round produce the same seed on every platform.
// Never swap this for a runtime's native string hash.
func Hash(s string) int32 {
	var h int32
	for _, c := range []byte(s) {
		h = h*31 + int32(c)
	}
	return h
}

// RoundSeed derives the per-round master seed for a room.
func RoundSeed(roomCode string, round int) int32 {
	return Hash(roomCode + "-" + strconv.Itoa(round))
}

// WolfSeed derives the sub-seed that drives axis mutation for the wolf.
func WolfSeed(roomCode string, round int) int32 {
	return Hash(roomCode + "-" + strconv.Itoa(round) + "-wolf")
}

// StartSeed derives the sub-seed that picks the round's starting player.
func StartSeed(roomCode string, round int) int32 {
	return Hash(roomCode + "-" + strconv.Itoa(round) + "-start")
}

// nonneg maps a signed 32-bit seed onto [0, 2^31) so it can be used as a
// modulus operand or LCG state without sign surprises.
func nonneg(v int32) int64 {
	return int64(v) & 0x7fffffff
}

// lcg is a 31-bit linear congruential generator (glibc constants). All
// index drawing in the engine runs through it so the whole derivation
// chain stays reproducible from a single int32 seed.
type lcg struct {
	state int64
}

func newLCG(seed int64) *lcg {
	return &lcg{state: seed & 0x7fffffff}
}

func (l *lcg) next() int64 {
	l.state = (l.state*1103515245 + 12345) & 0x7fffffff
	return l.state
}

// intn returns a value in [0, n). n must be positive.
func (l *lcg) intn(n int) int {
	return int(l.next() % int64(n))
}
