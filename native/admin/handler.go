package admin

import (
	"fmt"
	"math/big"

	coreerrors "matchpool/core/errors"
	"matchpool/core/state"
	"matchpool/core/types"
	"matchpool/native/common"
)

// ModuleName is the name the administration handler registers under.
const ModuleName = "admin"

const (
	OpRegisterOperations    = "registerOperations"
	OpReplaceOperations     = "replaceOperations"
	OpRemoveOperations      = "removeOperations"
	OpSetPlatformFee        = "setPlatformFee"
	OpTransferAdministrator = "transferAdministrator"
	OpSetModulePaused       = "setModulePaused"
	OpWithdrawPlatformFees  = "withdrawPlatformFees"
	OpGetConfig             = "getConfig"
	OpListOperations        = "listOperations"
)

// Operations returns every operation name served by the administration
// handler.
func Operations() []string {
	return []string{
		OpRegisterOperations, OpReplaceOperations, OpRemoveOperations, OpSetPlatformFee,
		OpTransferAdministrator, OpSetModulePaused, OpWithdrawPlatformFees, OpGetConfig, OpListOperations,
	}
}

type OperationsArgs struct {
	Module     types.ModuleAddress `json:"module,omitempty"`
	Operations []string            `json:"operations"`
}

type SetPlatformFeeArgs struct {
	FeePercent uint64 `json:"feePercent"`
}

type TransferAdministratorArgs struct {
	Administrator types.Identity `json:"administrator"`
}

type SetModulePausedArgs struct {
	Module string `json:"module"`
	Paused bool   `json:"paused"`
}

type WithdrawPlatformFeesArgs struct {
	To types.Identity `json:"to"`
}

type WithdrawPlatformFeesResult struct {
	Amount *big.Int `json:"amount"`
}

// ConfigView is the platform configuration as returned by getConfig.
type ConfigView struct {
	Administrator        types.Identity `json:"administrator"`
	PlatformFeePercent   uint64         `json:"platformFeePercent"`
	PlatformFeesRetained *big.Int       `json:"platformFeesRetained"`
	NextMatchID          uint64         `json:"nextMatchId"`
}

// OperationView is one entry of the ordered registry listing.
type OperationView struct {
	Name   string              `json:"name"`
	Module types.ModuleAddress `json:"module"`
	Index  uint64              `json:"index"`
}

// Module is the administration handler installed behind the router.
type Module struct {
	version string
}

func NewModule(version string) *Module {
	if version == "" {
		version = "v1"
	}
	return &Module{version: version}
}

func (m *Module) Name() string { return ModuleName }

func (m *Module) Version() string { return m.version }

func (m *Module) Operations() []string { return Operations() }

func (m *Module) Invoke(ctx *common.CallContext, op string, args []byte) ([]byte, error) {
	if ctx.HasValue() {
		return nil, fmt.Errorf("%w: %s does not accept value", coreerrors.ErrValueMismatch, op)
	}
	st := ctx.State
	switch op {
	case OpRegisterOperations, OpReplaceOperations, OpRemoveOperations:
		var in OperationsArgs
		if err := common.DecodeArgs(args, &in); err != nil {
			return nil, err
		}
		switch op {
		case OpRegisterOperations:
			return nil, RegisterOperations(st, ctx.Modules, ctx.Caller, in.Module, in.Operations)
		case OpReplaceOperations:
			return nil, ReplaceOperations(st, ctx.Modules, ctx.Caller, in.Module, in.Operations)
		default:
			return nil, RemoveOperations(st, ctx.Caller, in.Operations)
		}
	case OpSetPlatformFee:
		var in SetPlatformFeeArgs
		if err := common.DecodeArgs(args, &in); err != nil {
			return nil, err
		}
		return nil, SetPlatformFee(st, ctx.Caller, in.FeePercent)
	case OpTransferAdministrator:
		var in TransferAdministratorArgs
		if err := common.DecodeArgs(args, &in); err != nil {
			return nil, err
		}
		return nil, TransferAdministrator(st, ctx.Caller, in.Administrator)
	case OpSetModulePaused:
		var in SetModulePausedArgs
		if err := common.DecodeArgs(args, &in); err != nil {
			return nil, err
		}
		return nil, SetModulePaused(st, ctx.Caller, in.Module, in.Paused)
	case OpWithdrawPlatformFees:
		var in WithdrawPlatformFeesArgs
		if err := common.DecodeArgs(args, &in); err != nil {
			return nil, err
		}
		amount, err := WithdrawPlatformFees(ctx, in.To)
		if err != nil {
			return nil, err
		}
		return common.EncodeResult(WithdrawPlatformFeesResult{Amount: amount})
	case OpGetConfig:
		view, err := LoadConfig(st)
		if err != nil {
			return nil, err
		}
		return common.EncodeResult(view)
	case OpListOperations:
		ops, err := ListOperations(st)
		if err != nil {
			return nil, err
		}
		return common.EncodeResult(ops)
	default:
		return nil, fmt.Errorf("%w: %s not served by %s", coreerrors.ErrOperationNotFound, op, ModuleName)
	}
}

// LoadConfig reads the platform configuration.
func LoadConfig(st *state.Manager) (ConfigView, error) {
	admin, _, err := st.Administrator()
	if err != nil {
		return ConfigView{}, err
	}
	fee, err := st.PlatformFeePercent()
	if err != nil {
		return ConfigView{}, err
	}
	retained, err := st.PlatformFeesRetained()
	if err != nil {
		return ConfigView{}, err
	}
	next, err := st.NextMatchID()
	if err != nil {
		return ConfigView{}, err
	}
	return ConfigView{Administrator: admin, PlatformFeePercent: fee, PlatformFeesRetained: retained, NextMatchID: next}, nil
}

// ListOperations returns the registry in list order.
func ListOperations(st *state.Manager) ([]OperationView, error) {
	names, err := st.RegistryNames()
	if err != nil {
		return nil, err
	}
	out := make([]OperationView, 0, len(names))
	for _, name := range names {
		entry, ok, err := st.RegistryLookup(name)
		if err != nil {
			return nil, err
		}
		if !ok {
			return nil, fmt.Errorf("admin: registry lists unknown operation %s", name)
		}
		out = append(out, OperationView{Name: name, Module: entry.Module, Index: uint64(entry.Index)})
	}
	return out, nil
}
