package badger

import (
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/melih/servery/internal/adapters/storage/storagetest"
	"github.com/melih/servery/internal/core/domain"
	"github.com/melih/servery/internal/core/ports"
)

func TestRegistryContract(t *testing.T) {
	storagetest.Run(t, "badger", func(t *testing.T, path string) (ports.ServerRegistry, func()) {
		reg, err := Open(path)
		require.NoError(t, err)
		return reg, func() { _ = reg.Close() }
	})
}

func TestServerKey_SortsByID(t *testing.T) {
	require.Less(t, string(serverKey(domain.ID(9))), string(serverKey(domain.ID(10))))
	require.Equal(t, "server:00000000000000000042", string(serverKey(42)))
}
