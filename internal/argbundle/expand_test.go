package argbundle

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/mirrorkit/fedget/internal/streams"
)

func TestExpand_ScalarAndListMix(t *testing.T) {
	got := Expand(map[string]any{
		"code":      []string{"0000", "0001"},
		"file_type": "txt",
	})

	require.Len(t, got, 2)
	assert.Equal(t, streams.Bundle{streams.IndexKey: int64(0), "code": "0000", "file_type": "txt"}, got[0])
	assert.Equal(t, streams.Bundle{streams.IndexKey: int64(1), "code": "0001", "file_type": "txt"}, got[1])
}

func TestExpand_ShorterListsPadWithNil(t *testing.T) {
	got := Expand(map[string]any{
		"code":  []string{"a", "b", "c"},
		"label": []string{"only-one"},
	})

	require.Len(t, got, 3)
	assert.Equal(t, "only-one", got[0]["label"])
	assert.Nil(t, got[1]["label"])
	assert.Nil(t, got[2]["label"])
}

func TestExpand_NoListsProducesEmpty(t *testing.T) {
	got := Expand(map[string]any{"file_type": "txt"})
	assert.Empty(t, got)
}

func TestExpand_IndexIsOrdered(t *testing.T) {
	got := Expand(map[string]any{"code": []string{"z", "y", "x"}})
	for i, b := range got {
		assert.Equal(t, int64(i), b.Index())
	}
}
