package pdf

import (
	"context"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"lms-assistant-go/internal/model"
)

type fakeSource struct {
	pages []string
	fail  int
}

func (f fakeSource) NumPage() int { return len(f.pages) }

func (f fakeSource) PageText(n int) (string, error) {
	if n == f.fail {
		return "", errors.New("bad font")
	}
	return f.pages[n-1], nil
}

func TestReadPages_NumbersFromOne(t *testing.T) {
	pages, err := readPages(context.Background(), fakeSource{pages: []string{"intro", "", "body"}}, "a.pdf")
	require.NoError(t, err)
	assert.Equal(t, []model.Page{
		{Number: 1, Text: "intro"},
		{Number: 2, Text: ""},
		{Number: 3, Text: "body"},
	}, pages)
}

func TestReadPages_NoPages(t *testing.T) {
	_, err := readPages(context.Background(), fakeSource{}, "empty.pdf")
	assert.ErrorIs(t, err, model.ErrIngest)
}

func TestReadPages_PageError(t *testing.T) {
	_, err := readPages(context.Background(), fakeSource{pages: []string{"a", "b"}, fail: 2}, "a.pdf")
	assert.ErrorIs(t, err, model.ErrIngest)
}

func TestReadPages_Canceled(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	_, err := readPages(ctx, fakeSource{pages: []string{"a"}}, "a.pdf")
	assert.ErrorIs(t, err, context.Canceled)
}

func TestExtractPages_InvalidBytes(t *testing.T) {
	ex := NewExtractor()

	_, err := ex.ExtractPages(context.Background(), []byte("this is not a pdf"), "notes.pdf")
	assert.ErrorIs(t, err, model.ErrIngest)

	_, err = ex.ExtractPages(context.Background(), nil, "nothing.pdf")
	assert.ErrorIs(t, err, model.ErrIngest)
}
