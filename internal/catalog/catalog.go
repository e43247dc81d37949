// Package catalog holds the built-in label pairs and card pool used when no
// external content service is wired in. Content management itself lives
// outside the room engine; these defaults keep a dev server playable.
package catalog

import (
	"fmt"

	"github.com/hakusai-dev/axiswolf-backend/internal/engine"
)

// Entry is a label pair plus the category tag used for filtered rounds.
type Entry struct {
	engine.Label
	Category string
}

var entries = []Entry{
	{Label: engine.Label{Positive: "あつい", Negative: "つめたい"}, Category: "sense"},
	{Label: engine.Label{Positive: "かたい", Negative: "やわらかい"}, Category: "sense"},
	{Label: engine.Label{Positive: "うるさい", Negative: "しずか"}, Category: "sense"},
	{Label: engine.Label{Positive: "あまい", Negative: "にがい"}, Category: "taste"},
	{Label: engine.Label{Positive: "たかい", Negative: "やすい"}, Category: "value"},
	{Label: engine.Label{Positive: "つよい", Negative: "よわい"}, Category: "value"},
	{Label: engine.Label{Positive: "ふるい", Negative: "あたらしい"}, Category: "time"},
	{Label: engine.Label{Positive: "はやい", Negative: "おそい"}, Category: "time"},
	{Label: engine.Label{Positive: "おもい", Negative: "かるい"}, Category: "sense"},
	{Label: engine.Label{Positive: "あかるい", Negative: "くらい"}, Category: "sense"},
	{Label: engine.Label{Positive: "おしゃれ", Negative: "ダサい"}, Category: "vibe"},
	{Label: engine.Label{Positive: "かわいい", Negative: "こわい"}, Category: "vibe"},
	{Label: engine.Label{Positive: "べんり", Negative: "ふべん"}, Category: "value"},
	{Label: engine.Label{Positive: "レア", Negative: "ありふれた"}, Category: "value"},
	{Label: engine.Label{Positive: "おとな", Negative: "こども"}, Category: "vibe"},
	{Label: engine.Label{Positive: "なつ", Negative: "ふゆ"}, Category: "time"},
}

// Labels returns the full label catalog.
func Labels() []engine.Label {
	out := make([]engine.Label, len(entries))
	for i, e := range entries {
		out[i] = e.Label
	}
	return out
}

// LabelsByCategory returns the labels tagged with category. May be empty or
// too small for axis generation; callers fall back to Labels().
func LabelsByCategory(category string) []engine.Label {
	var out []engine.Label
	for _, e := range entries {
		if e.Category == category {
			out = append(out, e.Label)
		}
	}
	return out
}

// Cards returns the default card pool ids. The presentation layer maps ids
// to artwork; the engine only ever sees the ids.
func Cards() []string {
	out := make([]string, 0, 48)
	for _, prefix := range []string{"f", "a", "p"} {
		for i := 1; i <= 16; i++ {
			out = append(out, fmt.Sprintf("%s%02d", prefix, i))
		}
	}
	return out
}
