// Package praise picks the offline praise shown for a moment before the
// server has enriched it.
package praise

import (
	"hash/fnv"
	"strings"
)

type category struct {
	keywords []string
	lines    []string
}

var categories = []category{
	{
		keywords: []string{"walk", "run", "gym", "yoga", "stretch", "swim", "bike", "workout", "exercise"},
		lines: []string{
			"Moving your body counts. Nice work.",
			"Every step adds up.",
			"Your body will thank you for that.",
		},
	},
	{
		keywords: []string{"read", "book", "learn", "study", "course", "practice"},
		lines: []string{
			"Feeding your mind, one page at a time.",
			"Curiosity looks good on you.",
			"Small lessons become big skills.",
		},
	},
	{
		keywords: []string{"call", "friend", "family", "mom", "dad", "help", "thank", "hug"},
		lines: []string{
			"Showing up for people matters.",
			"That connection was worth the effort.",
			"Kindness travels further than you think.",
		},
	},
	{
		keywords: []string{"clean", "cook", "laundry", "dishes", "tidy", "organize", "groceries"},
		lines: []string{
			"Future you just got a little gift.",
			"Taking care of your space is taking care of you.",
			"Done is better than perfect.",
		},
	},
	{
		keywords: []string{"sleep", "rest", "nap", "meditat", "breath", "relax"},
		lines: []string{
			"Rest is productive too.",
			"You gave yourself a moment of calm.",
		},
	},
}

var fallback = []string{
	"That counts. Well done.",
	"Another good moment on the record.",
	"Small wins make big days.",
	"You did something for yourself today.",
}

// For returns the praise for text. The choice is stable for a given seed,
// so a moment keeps its praise across restarts.
func For(text, seed string) string {
	lower := strings.ToLower(text)
	lines := fallback
	for _, c := range categories {
		if matches(lower, c.keywords) {
			lines = c.lines
			break
		}
	}
	return lines[pick(seed, len(lines))]
}

func matches(text string, keywords []string) bool {
	for _, k := range keywords {
		if strings.Contains(text, k) {
			return true
		}
	}
	return false
}

func pick(seed string, n int) int {
	h := fnv.New32a()
	_, _ = h.Write([]byte(seed))
	return int(h.Sum32() % uint32(n))
}
