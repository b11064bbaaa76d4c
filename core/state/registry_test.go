package state

import (
	"errors"
	"fmt"
	"testing"

	"github.com/stretchr/testify/require"

	coreerrors "matchpool/core/errors"
	"matchpool/core/types"
)

func testModule(fill byte) types.ModuleAddress {
	var addr types.ModuleAddress
	for i := range addr {
		addr[i] = fill
	}
	return addr
}

// requireDense checks that the list holds exactly the expected names and every
// entry records its own slot.
func requireDense(t *testing.T, m *Manager, expected ...string) {
	t.Helper()
	names, err := m.RegistryNames()
	require.NoError(t, err)
	require.ElementsMatch(t, expected, names)
	for i, name := range names {
		entry, ok, err := m.RegistryLookup(name)
		require.NoError(t, err)
		require.True(t, ok)
		require.Equal(t, RegistryIndex(i), entry.Index, "name %s", name)
	}
}

func TestRegistryAppendAndLookup(t *testing.T) {
	m, _ := newTestManager(t)
	mod := testModule(0x11)

	require.NoError(t, m.RegistryAppend("createMatch", mod))
	require.NoError(t, m.RegistryAppend("joinMatch", mod))
	err := m.RegistryAppend("createMatch", mod)
	require.True(t, errors.Is(err, coreerrors.ErrOperationAlreadyRegistered))

	entry, ok, err := m.RegistryLookup("joinMatch")
	require.NoError(t, err)
	require.True(t, ok)
	require.Equal(t, mod, entry.Module)
	require.Equal(t, RegistryIndex(1), entry.Index)

	names, err := m.RegistryNames()
	require.NoError(t, err)
	require.Equal(t, []string{"createMatch", "joinMatch"}, names)
}

func TestRegistrySetModuleKeepsPosition(t *testing.T) {
	m, _ := newTestManager(t)
	require.NoError(t, m.RegistryAppend("a", testModule(1)))
	require.NoError(t, m.RegistryAppend("b", testModule(1)))

	require.NoError(t, m.RegistrySetModule("a", testModule(2)))
	entry, _, err := m.RegistryLookup("a")
	require.NoError(t, err)
	require.Equal(t, testModule(2), entry.Module)
	require.Equal(t, RegistryIndex(0), entry.Index)

	err = m.RegistrySetModule("missing", testModule(2))
	require.ErrorIs(t, err, coreerrors.ErrOperationNotFound)
}

func TestRegistryRemoveSwapsLast(t *testing.T) {
	m, _ := newTestManager(t)
	for _, name := range []string{"a", "b", "c", "d"} {
		require.NoError(t, m.RegistryAppend(name, testModule(1)))
	}

	require.NoError(t, m.RegistryRemove("b"))
	names, err := m.RegistryNames()
	require.NoError(t, err)
	require.Equal(t, []string{"a", "d", "c"}, names)
	requireDense(t, m, "a", "c", "d")

	// Removing the tail needs no swap.
	require.NoError(t, m.RegistryRemove("c"))
	requireDense(t, m, "a", "d")

	require.NoError(t, m.RegistryRemove("a"))
	require.NoError(t, m.RegistryRemove("d"))
	requireDense(t, m)

	err = m.RegistryRemove("a")
	require.ErrorIs(t, err, coreerrors.ErrOperationNotFound)
}

func TestRegistryRemoveStaysDenseUnderChurn(t *testing.T) {
	m, _ := newTestManager(t)
	live := map[string]bool{}
	for i := 0; i < 20; i++ {
		name := fmt.Sprintf("op%02d", i)
		require.NoError(t, m.RegistryAppend(name, testModule(byte(i))))
		live[name] = true
	}
	for i := 0; i < 20; i += 3 {
		name := fmt.Sprintf("op%02d", i)
		require.NoError(t, m.RegistryRemove(name))
		delete(live, name)
	}
	expected := make([]string, 0, len(live))
	for name := range live {
		expected = append(expected, name)
	}
	requireDense(t, m, expected...)
	n, err := m.RegistryLen()
	require.NoError(t, err)
	require.Equal(t, uint64(len(live)), n)
}
