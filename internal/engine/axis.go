package engine

import "errors"

var ErrCatalogTooSmall = errors.New("label catalog too small")
var ErrPoolTooSmall = errors.New("card pool too small")

// Label is one catalog entry: a pair of opposing poles for a single
// placement dimension.
type Label struct {
	Positive string `json:"positive"`
	Negative string `json:"negative"`
}

// AxisLabel is a label as placed on one axis of the board. Index tracks the
// catalog entry so a mutation can avoid re-selecting labels already in play.
// A polarity flip is represented by swapping Positive/Negative, so two
// AxisLabels compare equal iff they render identically.
type AxisLabel struct {
	Index    int    `json:"index"`
	Positive string `json:"positive"`
	Negative string `json:"negative"`
}

// AxisPair is the full board layout for one round: a horizontal and a
// vertical label defining four quadrants.
type AxisPair struct {
	Horizontal AxisLabel `json:"horizontal"`
	Vertical   AxisLabel `json:"vertical"`
}

// Mutator identifies one of the six fixed divergence operators applied to
// produce the wolf's axis.
type Mutator int

const (
	MutReplaceVertical Mutator = iota
	MutReplaceHorizontal
	MutReplaceBoth
	MutSwapAxes
	MutFlipVertical
	MutFlipHorizontal
	mutatorCount
)

const maxResample = 32

// GenerateAxis derives the shared axis layout for a round. The first index
// comes straight from the seed modulus; every subsequent draw (the second
// index and both flip decisions) comes from the LCG stream seeded with the
// same value, so the layout is fully determined by (seed, catalog).
func GenerateAxis(seed int32, catalog []Label) (AxisPair, error) {
	n := len(catalog)
	if n < 2 {
		return AxisPair{}, ErrCatalogTooSmall
	}

	rng := newLCG(nonneg(seed))
	i1 := int(nonneg(seed) % int64(n))
	i2 := pickDistinct(rng, n, i1)

	h := axisLabelAt(catalog, i1)
	v := axisLabelAt(catalog, i2)
	if rng.next()&1 == 1 {
		h = flipLabel(h)
	}
	if rng.next()&1 == 1 {
		v = flipLabel(v)
	}
	return AxisPair{Horizontal: h, Vertical: v}, nil
}

// MutateAxis produces the wolf's divergent variant of a normal axis.
// Exactly one dimension (or the explicit swap) differs from the input; the
// untouched dimension is copied verbatim, flip orientation included.
func MutateAxis(normal AxisPair, zureSeed int32, catalog []Label) (AxisPair, error) {
	op := Mutator(nonneg(zureSeed) % int64(mutatorCount))
	rng := newLCG(nonneg(zureSeed))

	out := normal
	switch op {
	case MutReplaceVertical:
		idx, err := replacementIndex(rng, len(catalog), normal.Horizontal.Index, normal.Vertical.Index)
		if err != nil {
			return AxisPair{}, err
		}
		out.Vertical = axisLabelAt(catalog, idx)
	case MutReplaceHorizontal:
		idx, err := replacementIndex(rng, len(catalog), normal.Horizontal.Index, normal.Vertical.Index)
		if err != nil {
			return AxisPair{}, err
		}
		out.Horizontal = axisLabelAt(catalog, idx)
	case MutReplaceBoth:
		i1, err := replacementIndex(rng, len(catalog), normal.Horizontal.Index, normal.Vertical.Index)
		if err != nil {
			return AxisPair{}, err
		}
		i2, err := replacementIndex(rng, len(catalog), normal.Horizontal.Index, normal.Vertical.Index, i1)
		if err != nil {
			return AxisPair{}, err
		}
		out.Horizontal = axisLabelAt(catalog, i1)
		out.Vertical = axisLabelAt(catalog, i2)
	case MutSwapAxes:
		out.Horizontal, out.Vertical = normal.Vertical, normal.Horizontal
	case MutFlipVertical:
		out.Vertical = flipLabel(normal.Vertical)
	case MutFlipHorizontal:
		out.Horizontal = flipLabel(normal.Horizontal)
	}
	return out, nil
}

func axisLabelAt(catalog []Label, idx int) AxisLabel {
	return AxisLabel{Index: idx, Positive: catalog[idx].Positive, Negative: catalog[idx].Negative}
}

func flipLabel(l AxisLabel) AxisLabel {
	l.Positive, l.Negative = l.Negative, l.Positive
	return l
}

// pickDistinct draws from rng until the value differs from i1, falling back
// to the next index after bounded attempts so the call always terminates.
func pickDistinct(rng *lcg, n, i1 int) int {
	for attempt := 0; attempt < maxResample; attempt++ {
		if i := rng.intn(n); i != i1 {
			return i
		}
	}
	return (i1 + 1) % n
}

// replacementIndex draws an index not present in excluded. It errors when
// the catalog cannot possibly satisfy the exclusions; callers recover by
// retrying with a larger (unfiltered) catalog.
func replacementIndex(rng *lcg, n int, excluded ...int) (int, error) {
	if n <= len(excluded) {
		return 0, ErrCatalogTooSmall
	}
	for attempt := 0; attempt < maxResample; attempt++ {
		i := rng.intn(n)
		if !containsInt(excluded, i) {
			return i, nil
		}
	}
	// Deterministic sweep from a seeded offset.
	start := rng.intn(n)
	for d := 0; d < n; d++ {
		i := (start + d) % n
		if !containsInt(excluded, i) {
			return i, nil
		}
	}
	return 0, ErrCatalogTooSmall
}

func containsInt(xs []int, v int) bool {
	for _, x := range xs {
		if x == v {
			return true
		}
	}
	return false
}
