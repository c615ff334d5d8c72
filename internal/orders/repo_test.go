package orders

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestEncodeItemMetadataNilIsEmptyObject(t *testing.T) {
	// A nil slice would be written as SQL NULL and trip the NOT NULL
	// constraint on order_items.metadata; items without metadata must
	// still insert.
	meta, err := encodeItemMetadata(nil)
	require.NoError(t, err)
	assert.Equal(t, []byte("{}"), meta)
}

func TestEncodeItemMetadata(t *testing.T) {
	meta, err := encodeItemMetadata(map[string]any{"size": "L"})
	require.NoError(t, err)
	assert.JSONEq(t, `{"size":"L"}`, string(meta))

	meta, err = encodeItemMetadata(map[string]any{})
	require.NoError(t, err)
	assert.Equal(t, []byte("{}"), meta)
}
