package utils

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestEventKeyIgnoresCodeCase(t *testing.T) {
	assert.Equal(t, "event:AB12CD34", EventKey("ab12cd34"))
	assert.Equal(t, EventKey("AB12CD34"), EventKey(" Ab12cD34 "))
}

func TestCacheWithoutClientIsAMiss(t *testing.T) {
	ctx := context.Background()
	require.NoError(t, SetCache(ctx, nil, "k", 1, 0))
	var v int
	found, err := GetCache(ctx, nil, "k", &v)
	require.NoError(t, err)
	assert.False(t, found)
	assert.NoError(t, DeleteCache(ctx, nil, "k"))
	assert.NoError(t, DeleteCachePrefix(ctx, nil, "k"))
}
