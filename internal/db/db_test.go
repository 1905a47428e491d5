package db

import (
	"context"
	"testing"

	"spray_ledger/internal/config"
	"spray_ledger/internal/store/memstore"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestOpenMemory(t *testing.T) {
	st, err := Open(context.Background(), &config.Config{StoreDriver: config.DriverMemory})
	require.NoError(t, err)
	assert.IsType(t, &memstore.Store{}, st)
	assert.NoError(t, st.Close(context.Background()))
}

func TestOpenUnknownDriver(t *testing.T) {
	_, err := Open(context.Background(), &config.Config{StoreDriver: "sqlite"})
	assert.ErrorContains(t, err, `unknown store driver "sqlite"`)
}

func TestMigrateMemoryIsNoop(t *testing.T) {
	assert.NoError(t, Migrate(context.Background(), &config.Config{StoreDriver: config.DriverMemory}))
}
