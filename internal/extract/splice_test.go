package extract

import (
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/ppiankov/lexicite/internal/model"
)

func TestSplice(t *testing.T) {
	text := "As held in 410 U.S. 113 (1973), abortion..."
	spans, err := Extract(text, "", 0)
	require.NoError(t, err)
	require.Len(t, spans, 1)

	out, err := Splice(text, spans[0], "597 U.S. 215")
	require.NoError(t, err)
	assert.Equal(t, "As held in 597 U.S. 215, abortion...", out)
}

func TestSplice_StaleOffsets(t *testing.T) {
	span := model.NewSpan("410 U.S. 113", 3, model.CitationTypeCase)

	tests := []struct {
		name string
		text string
	}{
		{"text shrank", "abc 410"},
		{"text shifted", "abcd410 U.S. 113"},
		{"text edited", "abc410 U.S. 114"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := Splice(tt.text, span, "x")
			require.Error(t, err)
			assert.True(t, errors.Is(err, ErrStaleOffsets))
		})
	}
}
