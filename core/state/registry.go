package state

import (
	"fmt"

	coreerrors "matchpool/core/errors"
	"matchpool/core/types"
)

// RegistryIndex is a position in the dense list of registered operation
// names.
type RegistryIndex uint64

// RegistryEntry binds an operation name to the module serving it and to the
// name's slot in the dense list.
type RegistryEntry struct {
	Module types.ModuleAddress
	Index  RegistryIndex
}

func registryEntryKey(name string) []byte {
	return withSuffix(registryEntryPrefix, []byte(name))
}

func registrySlotKey(idx RegistryIndex) []byte {
	return uint64Key(registrySlotPrefix, uint64(idx))
}

// RegistryLen returns the number of registered operations.
func (m *Manager) RegistryLen() (uint64, error) {
	var n uint64
	if _, err := m.KVGet(registryLengthKey, &n); err != nil {
		return 0, err
	}
	return n, nil
}

// RegistryLookup returns the entry registered for name.
func (m *Manager) RegistryLookup(name string) (RegistryEntry, bool, error) {
	var entry RegistryEntry
	ok, err := m.KVGet(registryEntryKey(name), &entry)
	if err != nil || !ok {
		return RegistryEntry{}, false, err
	}
	return entry, true, nil
}

// RegistryNameAt returns the operation name stored at idx.
func (m *Manager) RegistryNameAt(idx RegistryIndex) (string, error) {
	var name string
	ok, err := m.KVGet(registrySlotKey(idx), &name)
	if err != nil {
		return "", err
	}
	if !ok {
		return "", fmt.Errorf("state: registry slot %d empty", idx)
	}
	return name, nil
}

// RegistryNames returns the registered operation names in list order.
func (m *Manager) RegistryNames() ([]string, error) {
	n, err := m.RegistryLen()
	if err != nil {
		return nil, err
	}
	names := make([]string, 0, n)
	for i := RegistryIndex(0); uint64(i) < n; i++ {
		name, err := m.RegistryNameAt(i)
		if err != nil {
			return nil, err
		}
		names = append(names, name)
	}
	return names, nil
}

// RegistryAppend registers name at the end of the dense list.
func (m *Manager) RegistryAppend(name string, module types.ModuleAddress) error {
	if _, ok, err := m.RegistryLookup(name); err != nil {
		return err
	} else if ok {
		return fmt.Errorf("%w: %s", coreerrors.ErrOperationAlreadyRegistered, name)
	}
	n, err := m.RegistryLen()
	if err != nil {
		return err
	}
	idx := RegistryIndex(n)
	if err := m.KVPut(registrySlotKey(idx), name); err != nil {
		return err
	}
	if err := m.KVPut(registryEntryKey(name), RegistryEntry{Module: module, Index: idx}); err != nil {
		return err
	}
	return m.KVPut(registryLengthKey, n+1)
}

// RegistrySetModule repoints name at module, keeping its list position.
func (m *Manager) RegistrySetModule(name string, module types.ModuleAddress) error {
	entry, ok, err := m.RegistryLookup(name)
	if err != nil {
		return err
	}
	if !ok {
		return fmt.Errorf("%w: %s", coreerrors.ErrOperationNotFound, name)
	}
	entry.Module = module
	return m.KVPut(registryEntryKey(name), entry)
}

// RegistryRemove deletes name. The last name in the list is moved into the
// vacated slot and its recorded index updated, keeping the list dense.
func (m *Manager) RegistryRemove(name string) error {
	entry, ok, err := m.RegistryLookup(name)
	if err != nil {
		return err
	}
	if !ok {
		return fmt.Errorf("%w: %s", coreerrors.ErrOperationNotFound, name)
	}
	n, err := m.RegistryLen()
	if err != nil {
		return err
	}
	last := RegistryIndex(n - 1)
	if entry.Index != last {
		movedName, err := m.RegistryNameAt(last)
		if err != nil {
			return err
		}
		moved, ok, err := m.RegistryLookup(movedName)
		if err != nil {
			return err
		}
		if !ok {
			return fmt.Errorf("state: registry slot %d names unknown operation %s", last, movedName)
		}
		moved.Index = entry.Index
		if err := m.KVPut(registrySlotKey(entry.Index), movedName); err != nil {
			return err
		}
		if err := m.KVPut(registryEntryKey(movedName), moved); err != nil {
			return err
		}
	}
	if err := m.KVDelete(registrySlotKey(last)); err != nil {
		return err
	}
	if err := m.KVDelete(registryEntryKey(name)); err != nil {
		return err
	}
	return m.KVPut(registryLengthKey, uint64(last))
}
