package enrichment

import (
	"context"
	"strings"
)

type rule struct {
	tag      string
	keywords []string
	praise   string
	action   string
}

var rules = []rule{
	{
		tag:      "health",
		keywords: []string{"walk", "run", "gym", "yoga", "stretch", "swim", "bike", "workout", "exercise"},
		praise:   "You moved your body today, and that is worth celebrating.",
		action:   "Take a short stretch break tomorrow at the same time.",
	},
	{
		tag:      "learning",
		keywords: []string{"read", "book", "learn", "study", "course", "practice"},
		praise:   "You invested in your mind. Small lessons become big skills.",
		action:   "Write down one thing you learned.",
	},
	{
		tag:      "connection",
		keywords: []string{"call", "friend", "family", "mom", "dad", "help", "thank", "hug"},
		praise:   "Showing up for the people around you matters.",
		action:   "Send a short message to someone you have not talked to in a while.",
	},
	{
		tag:      "home",
		keywords: []string{"clean", "cook", "laundry", "dishes", "tidy", "organize", "groceries"},
		praise:   "You took care of your space, which is taking care of you.",
		action:   "Pick one small chore to finish before bed.",
	},
	{
		tag:      "rest",
		keywords: []string{"sleep", "rest", "nap", "meditat", "breath", "relax"},
		praise:   "Rest is productive too. You gave yourself some calm.",
		action:   "Try five slow breaths before your next task.",
	},
}

// StaticGenerator enriches moments from a fixed keyword table. It is used
// when no model API key is configured.
type StaticGenerator struct{}

func NewStaticGenerator() *StaticGenerator {
	return &StaticGenerator{}
}

func (g *StaticGenerator) Generate(ctx context.Context, text string) (Result, error) {
	if err := ctx.Err(); err != nil {
		return Result{}, err
	}

	lower := strings.ToLower(text)
	var out Result
	for _, r := range rules {
		if !containsAny(lower, r.keywords) {
			continue
		}
		if out.Praise == "" {
			out.Praise, out.Action = r.praise, r.action
		}
		out.Tags = append(out.Tags, r.tag)
	}
	if out.Praise == "" {
		out = Result{
			Praise: "That counts. Another good moment on the record.",
			Action: "Notice one more small win before the day ends.",
			Tags:   []string{"everyday"},
		}
	}
	return normalize(out)
}

func containsAny(text string, keywords []string) bool {
	for _, k := range keywords {
		if strings.Contains(text, k) {
			return true
		}
	}
	return false
}

var _ Generator = (*StaticGenerator)(nil)
