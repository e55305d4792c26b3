package praise

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestFor_StableForSeed(t *testing.T) {
	a := For("Went for a walk", "c1")
	assert.Equal(t, a, For("Went for a walk", "c1"))
	assert.NotEmpty(t, a)
}

func TestFor_UsesCategory(t *testing.T) {
	got := For("Went for a WALK in the park", "seed")
	assert.Contains(t, categories[0].lines, got)

	got = For("called my friend", "seed")
	assert.Contains(t, categories[2].lines, got)
}

func TestFor_Fallback(t *testing.T) {
	assert.Contains(t, fallback, For("zzz", "x"))
	assert.Contains(t, fallback, For("", ""))
}
