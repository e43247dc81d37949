package engine

import "sort"

// Vote is one finalized ballot: Voter accuses Target. Slots, not ids.
type Vote struct {
	Voter  int
	Target int
}

// ScoreResult carries both the round delta and the merged running totals so
// callers persist one value atomically.
type ScoreResult struct {
	Tally      map[int]int `json:"tally"`
	TopVoted   []int       `json:"top_voted"`
	WolfCaught bool        `json:"wolf_caught"`
	Delta      map[int]int `json:"delta"`
	Cumulative map[int]int `json:"cumulative"`
}

// Score tallies a round. The wolf is caught only when the top-voted set is
// exactly {wolfSlot}; any tie, wolf included, counts as an escape.
//
// Caught: every non-wolf seat +1, and each voter who targeted the wolf +1
// more. Escaped: wolf +3, and each voter who targeted the wolf +1 anyway.
func Score(votes []Vote, wolfSlot int, roster []int, cumulative map[int]int) ScoreResult {
	tally := make(map[int]int)
	for _, v := range votes {
		tally[v.Target]++
	}

	max := 0
	for _, c := range tally {
		if c > max {
			max = c
		}
	}
	top := []int{}
	for slot, c := range tally {
		if c == max && max > 0 {
			top = append(top, slot)
		}
	}
	sort.Ints(top)

	caught := len(top) == 1 && top[0] == wolfSlot

	delta := make(map[int]int, len(roster))
	for _, slot := range roster {
		delta[slot] = 0
	}
	if caught {
		for _, slot := range roster {
			if slot != wolfSlot {
				delta[slot]++
			}
		}
	} else {
		delta[wolfSlot] += 3
	}
	for _, v := range votes {
		if v.Target == wolfSlot {
			delta[v.Voter]++
		}
	}

	next := make(map[int]int, len(cumulative))
	for slot, pts := range cumulative {
		next[slot] = pts
	}
	for slot, pts := range delta {
		next[slot] += pts
	}

	return ScoreResult{Tally: tally, TopVoted: top, WolfCaught: caught, Delta: delta, Cumulative: next}
}
