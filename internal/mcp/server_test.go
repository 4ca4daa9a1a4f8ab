package mcp

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/kestrelhq/coderag/internal/config"
	"github.com/kestrelhq/coderag/internal/vectorstore"
)

func TestNewStoreMemorySentinel(t *testing.T) {
	for _, url := range []string{"", config.StoreMemory} {
		store, err := newStore(&config.Config{StoreURL: url})
		require.NoError(t, err)
		assert.IsType(t, &vectorstore.MemStore{}, store, "url %q selects the in-process store", url)
	}
}
