package textutil

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestContentTokens_DropsStopwords(t *testing.T) {
	assert.Equal(t, []string{"sky", "blue"}, ContentTokens("The sky is BLUE."))
}

func TestTokens_KeepsApostrophesAndNumbers(t *testing.T) {
	assert.Equal(t, []string{"it's", "route", "66"}, Tokens("It's Route 66"))
}

func TestSentences(t *testing.T) {
	got := Sentences("The sky is blue. Grass is green! Is it?  trailing words")
	assert.Equal(t, []string{"The sky is blue.", "Grass is green!", "Is it?", "trailing words"}, got)
}

func TestSentences_Empty(t *testing.T) {
	assert.Empty(t, Sentences("   "))
}

func TestOverlap_CountsDistinct(t *testing.T) {
	set := TokenSet("What color is the sky?")
	assert.Equal(t, 1, Overlap(set, "The sky, the sky is blue."))
	assert.Equal(t, 0, Overlap(set, "Grass is green."))
}
