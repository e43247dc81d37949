package store

import "testing"

func TestNextPhase_ExhaustiveTable(t *testing.T) {
	phases := []Phase{PhaseLobby, PhasePlacement, PhaseVoting, PhaseResults, Phase("bogus"), Phase("")}
	legal := map[Phase]Phase{
		PhaseLobby:     PhasePlacement,
		PhasePlacement: PhaseVoting,
		PhaseVoting:    PhaseResults,
		PhaseResults:   PhasePlacement,
	}

	for _, from := range phases {
		next, ok := NextPhase(from)
		want, isLegal := legal[from]
		if ok != isLegal {
			t.Fatalf("NextPhase(%q): ok=%v, want %v", from, ok, isLegal)
		}
		if ok && next != want {
			t.Fatalf("NextPhase(%q): got %q, want %q", from, next, want)
		}
		// Every other pairing is illegal by construction: the machine
		// exposes exactly one successor per phase.
		for _, to := range phases {
			if to == want {
				continue
			}
			if ok && next == to {
				t.Fatalf("NextPhase(%q) unexpectedly allows %q", from, to)
			}
		}
	}
}
