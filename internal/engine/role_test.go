package engine

import "testing"

func TestWolfSlot_AlwaysInRange(t *testing.T) {
	for _, n := range []int{1, 2, 3, 4, 7, 12} {
		for seed := int32(-1000); seed < 1000; seed += 13 {
			slot := WolfSlot(seed, n)
			if slot < 0 || slot >= n {
				t.Fatalf("WolfSlot(%d, %d) = %d, out of range", seed, n, slot)
			}
		}
	}
}

func TestWolfSlot_Deterministic(t *testing.T) {
	seed := RoundSeed("ROOM42", 0)
	if WolfSlot(seed, 4) != WolfSlot(seed, 4) {
		t.Fatalf("WolfSlot is not stable for fixed inputs")
	}
	if got := WolfSlot(609286140, 4); got != 0 {
		t.Fatalf("WolfSlot(609286140, 4): got %d, want 0", got)
	}
}

func TestStartSlot_AlwaysInRange(t *testing.T) {
	for seed := int32(-200); seed < 200; seed++ {
		if s := StartSlot(seed, 5); s < 0 || s >= 5 {
			t.Fatalf("StartSlot(%d, 5) = %d, out of range", seed, s)
		}
	}
}
