package nlp

import (
	"errors"
	"fmt"
	"testing"
	"unicode"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"lms-assistant-go/internal/model"
)

func TestNormalize(t *testing.T) {
	got := Normalize([]string{"  Paris ", "paris", "Paris", "--", "", "  ", "DNA", "#42", "…"})
	assert.Equal(t, []string{"#42", "DNA", "Paris", "paris"}, got)
}

func TestNormalize_Empty(t *testing.T) {
	assert.Empty(t, Normalize(nil))
}

func TestProseExtractor_EmptyText(t *testing.T) {
	ents, err := NewExtractor().Extract("   \n")
	require.NoError(t, err)
	assert.Empty(t, ents)
}

func TestProseExtractor_OutputIsNormalized(t *testing.T) {
	ex := NewExtractor()
	text := "Marie Curie studied radioactivity in Paris. The cells and membranes of organisms contain proteins."

	ents, err := ex.Extract(text)
	require.NoError(t, err)
	require.NotEmpty(t, ents)

	seen := map[string]bool{}
	for _, e := range ents {
		assert.False(t, seen[e], "duplicate entity %q", e)
		seen[e] = true
		assert.Equal(t, e, trimmed(e))
		assert.True(t, hasAlnum(e), "entity %q has no alphanumeric rune", e)
	}
	assert.IsNonDecreasing(t, ents)

	again, err := ex.Extract(text)
	require.NoError(t, err)
	assert.Equal(t, ents, again, "extraction must be deterministic")
}

type failingExtractor struct{}

func (failingExtractor) Extract(string) ([]string, error) {
	return nil, fmt.Errorf("%w: model missing", model.ErrEntityExtraction)
}

func TestExtractOrEmpty_Degrades(t *testing.T) {
	_, err := failingExtractor{}.Extract("x")
	require.True(t, errors.Is(err, model.ErrEntityExtraction))

	assert.Equal(t, []string{}, ExtractOrEmpty(failingExtractor{}, "Paris"))
	assert.Equal(t, []string{}, ExtractOrEmpty(nil, "Paris"))
}

func trimmed(s string) string {
	r := []rune(s)
	for len(r) > 0 && unicode.IsSpace(r[0]) {
		r = r[1:]
	}
	for len(r) > 0 && unicode.IsSpace(r[len(r)-1]) {
		r = r[:len(r)-1]
	}
	return string(r)
}
