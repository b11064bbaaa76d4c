// Package admin implements the administrator-gated surface: one-time bootstrap,
// operation registry mutation and platform configuration.
package admin

import (
	"fmt"
	"math/big"
	"strings"
	"unicode"

	coreerrors "matchpool/core/errors"
	"matchpool/core/state"
	"matchpool/core/types"
	"matchpool/native/common"
)

// RequireAdministrator fails unless caller is the configured administrator.
func RequireAdministrator(st *state.Manager, caller types.Identity) error {
	admin, ok, err := st.Administrator()
	if err != nil {
		return err
	}
	if !ok {
		return coreerrors.ErrNotInitialized
	}
	if caller != admin {
		return coreerrors.ErrNotAdministrator
	}
	return nil
}

// Bootstrap sets the administrator and platform fee. It succeeds exactly once.
func Bootstrap(st *state.Manager, administrator types.Identity, feePercent uint64) error {
	if _, ok, err := st.Administrator(); err != nil {
		return err
	} else if ok {
		return coreerrors.ErrAlreadyInitialized
	}
	if administrator.IsZero() {
		return coreerrors.ErrInvalidAdministrator
	}
	if feePercent > state.MaxFeePercent {
		return fmt.Errorf("%w: %d", coreerrors.ErrInvalidFee, feePercent)
	}
	if err := st.SetAdministrator(administrator); err != nil {
		return err
	}
	return st.SetPlatformFeePercent(feePercent)
}

// ValidateOperationName rejects empty names and names containing whitespace.
func ValidateOperationName(name string) error {
	if name == "" || strings.IndexFunc(name, unicode.IsSpace) >= 0 {
		return fmt.Errorf("%w: %q", coreerrors.ErrInvalidOperationName, name)
	}
	return nil
}

func checkModule(dir common.ModuleDirectory, module types.ModuleAddress) error {
	if module.IsZero() {
		return coreerrors.ErrZeroModule
	}
	if dir != nil && !dir.IsDeployed(module) {
		return fmt.Errorf("%w: %s", coreerrors.ErrModuleNotDeployed, module)
	}
	return nil
}

// RegisterOperations binds every name to module. The batch is validated in
// full before anything is written, so a rejected batch leaves the registry
// unchanged.
func RegisterOperations(st *state.Manager, dir common.ModuleDirectory, caller types.Identity, module types.ModuleAddress, names []string) error {
	if err := RequireAdministrator(st, caller); err != nil {
		return err
	}
	if err := checkModule(dir, module); err != nil {
		return err
	}
	seen := make(map[string]struct{}, len(names))
	for _, name := range names {
		if err := ValidateOperationName(name); err != nil {
			return err
		}
		if _, dup := seen[name]; dup {
			return fmt.Errorf("%w: %s listed twice", coreerrors.ErrOperationAlreadyRegistered, name)
		}
		seen[name] = struct{}{}
		if _, ok, err := st.RegistryLookup(name); err != nil {
			return err
		} else if ok {
			return fmt.Errorf("%w: %s", coreerrors.ErrOperationAlreadyRegistered, name)
		}
	}
	for _, name := range names {
		if err := st.RegistryAppend(name, module); err != nil {
			return err
		}
	}
	return nil
}

func requireRegistered(st *state.Manager, names []string) error {
	seen := make(map[string]struct{}, len(names))
	for _, name := range names {
		if _, dup := seen[name]; dup {
			return fmt.Errorf("%w: %s listed twice", coreerrors.ErrInvalidArguments, name)
		}
		seen[name] = struct{}{}
		if _, ok, err := st.RegistryLookup(name); err != nil {
			return err
		} else if !ok {
			return fmt.Errorf("%w: %s", coreerrors.ErrOperationNotFound, name)
		}
	}
	return nil
}

// ReplaceOperations repoints registered names at module without moving them in
// the ordered list.
func ReplaceOperations(st *state.Manager, dir common.ModuleDirectory, caller types.Identity, module types.ModuleAddress, names []string) error {
	if err := RequireAdministrator(st, caller); err != nil {
		return err
	}
	if err := checkModule(dir, module); err != nil {
		return err
	}
	if err := requireRegistered(st, names); err != nil {
		return err
	}
	for _, name := range names {
		if err := st.RegistrySetModule(name, module); err != nil {
			return err
		}
	}
	return nil
}

// RemoveOperations unregisters every name.
func RemoveOperations(st *state.Manager, caller types.Identity, names []string) error {
	if err := RequireAdministrator(st, caller); err != nil {
		return err
	}
	if err := requireRegistered(st, names); err != nil {
		return err
	}
	for _, name := range names {
		if err := st.RegistryRemove(name); err != nil {
			return err
		}
	}
	return nil
}

// SetPlatformFee updates the platform fee retained on every resolution.
func SetPlatformFee(st *state.Manager, caller types.Identity, feePercent uint64) error {
	if err := RequireAdministrator(st, caller); err != nil {
		return err
	}
	if feePercent > state.MaxFeePercent {
		return fmt.Errorf("%w: %d", coreerrors.ErrInvalidFee, feePercent)
	}
	return st.SetPlatformFeePercent(feePercent)
}

// TransferAdministrator hands the administrator role to next.
func TransferAdministrator(st *state.Manager, caller, next types.Identity) error {
	if err := RequireAdministrator(st, caller); err != nil {
		return err
	}
	if next.IsZero() {
		return coreerrors.ErrInvalidAdministrator
	}
	return st.SetAdministrator(next)
}

// SetModulePaused pauses or resumes the mutating operations of a module.
func SetModulePaused(st *state.Manager, caller types.Identity, module string, paused bool) error {
	if err := RequireAdministrator(st, caller); err != nil {
		return err
	}
	if strings.TrimSpace(module) == "" {
		return fmt.Errorf("%w: module name required", coreerrors.ErrInvalidArguments)
	}
	return st.SetModulePaused(module, paused)
}

// WithdrawPlatformFees pays every retained platform fee to the recipient and
// returns the amount paid.
func WithdrawPlatformFees(ctx *common.CallContext, to types.Identity) (*big.Int, error) {
	st := ctx.State
	if err := RequireAdministrator(st, ctx.Caller); err != nil {
		return nil, err
	}
	if to.IsZero() {
		return nil, fmt.Errorf("%w: recipient required", coreerrors.ErrInvalidArguments)
	}
	var paid *big.Int
	err := st.NonReentrant(func() error {
		retained, err := st.PlatformFeesRetained()
		if err != nil {
			return err
		}
		if retained.Sign() == 0 {
			return coreerrors.ErrNoFeesRetained
		}
		if err := st.SetPlatformFeesRetained(big.NewInt(0)); err != nil {
			return err
		}
		if err := ctx.Transfer(to, retained); err != nil {
			return fmt.Errorf("admin: withdraw platform fees: %w", err)
		}
		paid = retained
		return nil
	})
	if err != nil {
		return nil, err
	}
	return paid, nil
}
