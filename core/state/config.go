package state

import (
	"fmt"
	"math/big"

	coreerrors "matchpool/core/errors"
	"matchpool/core/types"
)

// MaxFeePercent bounds every fee expressed in whole percent.
const MaxFeePercent = 100

// Administrator returns the configured administrator. The boolean is false
// until the store has been bootstrapped.
func (m *Manager) Administrator() (types.Identity, bool, error) {
	var admin types.Identity
	ok, err := m.KVGet(administratorKey, &admin)
	if err != nil {
		return types.Identity{}, false, err
	}
	if !ok || admin.IsZero() {
		return types.Identity{}, false, nil
	}
	return admin, true, nil
}

// SetAdministrator records the administrator identity. Authorisation is the
// caller's responsibility.
func (m *Manager) SetAdministrator(admin types.Identity) error {
	if admin.IsZero() {
		return fmt.Errorf("state: administrator must not be null")
	}
	return m.KVPut(administratorKey, admin)
}

// PlatformFeePercent returns the configured platform fee in whole percent.
func (m *Manager) PlatformFeePercent() (uint64, error) {
	var fee uint64
	if _, err := m.KVGet(platformFeeKey, &fee); err != nil {
		return 0, err
	}
	return fee, nil
}

func (m *Manager) SetPlatformFeePercent(fee uint64) error {
	if fee > MaxFeePercent {
		return fmt.Errorf("state: platform fee %d exceeds %d", fee, MaxFeePercent)
	}
	return m.KVPut(platformFeeKey, fee)
}

// PlatformFeesRetained returns the platform fees withheld from resolved pools.
func (m *Manager) PlatformFeesRetained() (*big.Int, error) {
	return m.loadAmount(platformFeesRetainedKey)
}

func (m *Manager) SetPlatformFeesRetained(amount *big.Int) error {
	return m.storeAmount(platformFeesRetainedKey, amount)
}

// IsPaused reports whether the named module is paused. Read errors are treated
// as not paused.
func (m *Manager) IsPaused(module string) bool {
	var paused bool
	ok, err := m.KVGet(modulePauseKey(module), &paused)
	if err != nil || !ok {
		return false
	}
	return paused
}

func (m *Manager) SetModulePaused(module string, paused bool) error {
	if paused {
		return m.KVPut(modulePauseKey(module), true)
	}
	return m.KVDelete(modulePauseKey(module))
}

// NextEventSequence reserves and returns the next notification sequence number.
func (m *Manager) NextEventSequence() (uint64, error) {
	var next uint64
	if _, err := m.KVGet(eventSequenceKey, &next); err != nil {
		return 0, err
	}
	if err := m.KVPut(eventSequenceKey, next+1); err != nil {
		return 0, err
	}
	return next, nil
}

// ReentrancyEntered reports whether a guarded operation is in progress.
func (m *Manager) ReentrancyEntered() (bool, error) {
	var entered bool
	if _, err := m.KVGet(reentrancyKey, &entered); err != nil {
		return false, err
	}
	return entered, nil
}

func (m *Manager) SetReentrancyEntered(entered bool) error {
	if entered {
		return m.KVPut(reentrancyKey, true)
	}
	return m.KVDelete(reentrancyKey)
}

// NonReentrant runs fn with the reentrancy flag set and clears it when fn
// returns, whether or not fn failed. It fails with ErrReentrantCall when the
// flag is already set.
func (m *Manager) NonReentrant(fn func() error) error {
	entered, err := m.ReentrancyEntered()
	if err != nil {
		return err
	}
	if entered {
		return coreerrors.ErrReentrantCall
	}
	if err := m.SetReentrancyEntered(true); err != nil {
		return err
	}
	err = fn()
	if clearErr := m.SetReentrancyEntered(false); clearErr != nil && err == nil {
		err = clearErr
	}
	return err
}

func (m *Manager) loadAmount(key []byte) (*big.Int, error) {
	amount := new(big.Int)
	ok, err := m.KVGet(key, amount)
	if err != nil {
		return nil, err
	}
	if !ok {
		return big.NewInt(0), nil
	}
	return amount, nil
}

func (m *Manager) storeAmount(key []byte, amount *big.Int) error {
	if amount == nil || amount.Sign() == 0 {
		return m.KVDelete(key)
	}
	if amount.Sign() < 0 {
		return fmt.Errorf("state: negative amount not allowed")
	}
	return m.KVPut(key, amount)
}
