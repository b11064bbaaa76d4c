package state

import (
	"fmt"
	"math/big"

	ethcrypto "github.com/ethereum/go-ethereum/crypto"

	coreerrors "matchpool/core/errors"
	"matchpool/core/types"
)

// VaultIdentity custodies every stake attached to an invocation until the
// escrow handler releases it.
var VaultIdentity = func() types.Identity {
	var id types.Identity
	copy(id[:], ethcrypto.Keccak256([]byte("matchpool/vault"))[12:])
	return id
}()

// Balance returns the spendable balance of id.
func (m *Manager) Balance(id types.Identity) (*big.Int, error) {
	return m.loadAmount(withSuffix(balancePrefix, id[:]))
}

func (m *Manager) SetBalance(id types.Identity, amount *big.Int) error {
	return m.storeAmount(withSuffix(balancePrefix, id[:]), amount)
}

// Credit increases the balance of id.
func (m *Manager) Credit(id types.Identity, amount *big.Int) error {
	if amount == nil || amount.Sign() == 0 {
		return nil
	}
	if amount.Sign() < 0 {
		return fmt.Errorf("state: negative credit")
	}
	current, err := m.Balance(id)
	if err != nil {
		return err
	}
	return m.SetBalance(id, new(big.Int).Add(current, amount))
}

// Debit decreases the balance of id, failing when funds are insufficient.
func (m *Manager) Debit(id types.Identity, amount *big.Int) error {
	if amount == nil || amount.Sign() == 0 {
		return nil
	}
	if amount.Sign() < 0 {
		return fmt.Errorf("state: negative debit")
	}
	current, err := m.Balance(id)
	if err != nil {
		return err
	}
	if current.Cmp(amount) < 0 {
		return fmt.Errorf("%w: have %s, need %s", coreerrors.ErrInsufficientBalance, current, amount)
	}
	return m.SetBalance(id, new(big.Int).Sub(current, amount))
}

// Move debits from and credits to in one step.
func (m *Manager) Move(from, to types.Identity, amount *big.Int) error {
	if err := m.Debit(from, amount); err != nil {
		return err
	}
	return m.Credit(to, amount)
}

// MatchCustody returns the stake currently held on behalf of a match.
func (m *Manager) MatchCustody(id uint64) (*big.Int, error) {
	return m.loadAmount(uint64Key(matchCustodyPrefix, id))
}

func (m *Manager) SetMatchCustody(id uint64, amount *big.Int) error {
	return m.storeAmount(uint64Key(matchCustodyPrefix, id), amount)
}
