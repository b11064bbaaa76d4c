// Package errors declares the failure kinds surfaced by the router and the
// handler modules. Callers compare with errors.Is; Classify maps any wrapped
// error onto the retry taxonomy.
package errors

import stderrors "errors"

var (
	// Authorization failures.
	ErrNotAdministrator = stderrors.New("admin: caller is not the administrator")
	ErrNotController    = stderrors.New("escrow: caller is not the match controller")

	// Phase and membership violations.
	ErrPhaseViolation             = stderrors.New("escrow: operation not allowed in current phase")
	ErrAlreadyJoined              = stderrors.New("escrow: caller already joined")
	ErrAlreadyForfeited           = stderrors.New("escrow: participant already forfeited")
	ErrAlreadyLoser               = stderrors.New("escrow: participant already marked loser")
	ErrNotParticipant             = stderrors.New("escrow: not a participant")
	ErrParticipantForfeited       = stderrors.New("escrow: participant forfeited")
	ErrNoParticipants             = stderrors.New("escrow: no active participants")
	ErrMatchNotFound              = stderrors.New("escrow: match not found")
	ErrReentrantCall              = stderrors.New("escrow: reentrant call")
	ErrModulePaused               = stderrors.New("module paused")
	ErrAlreadyInitialized         = stderrors.New("admin: already initialized")
	ErrNotInitialized             = stderrors.New("admin: not initialized")
	ErrOperationNotFound          = stderrors.New("router: operation not found")
	ErrOperationAlreadyRegistered = stderrors.New("router: operation already registered")
	ErrModuleNotDeployed          = stderrors.New("router: module not deployed")
	ErrZeroModule                 = stderrors.New("router: module address is null")
	ErrNoFeesRetained             = stderrors.New("admin: no platform fees retained")

	// Value and validation failures.
	ErrValueMismatch        = stderrors.New("escrow: attached value does not match stake")
	ErrInvalidStake         = stderrors.New("escrow: stake must be positive")
	ErrInvalidController    = stderrors.New("escrow: controller is null")
	ErrFeeOverflow          = stderrors.New("escrow: combined fee exceeds 100 percent")
	ErrMatchFull            = stderrors.New("escrow: match full")
	ErrNotAllowed           = stderrors.New("escrow: caller not on allow-list")
	ErrInvalidFee           = stderrors.New("admin: fee percent out of range")
	ErrInvalidAdministrator = stderrors.New("admin: administrator is null")
	ErrInvalidArguments     = stderrors.New("invalid arguments")
	ErrInvalidOperationName = stderrors.New("router: invalid operation name")
	ErrAmountOverflow       = stderrors.New("escrow: amount overflow")

	// Transfer failures.
	ErrInsufficientBalance = stderrors.New("bank: insufficient balance")
	ErrTransferRejected    = stderrors.New("bank: transfer rejected by recipient")
)

// Kind groups failures by how a caller should react to them.
type Kind uint8

const (
	KindInternal Kind = iota
	KindAuthorization
	KindState
	KindValidation
	KindTransfer
)

func (k Kind) String() string {
	switch k {
	case KindAuthorization:
		return "authorization"
	case KindState:
		return "state"
	case KindValidation:
		return "validation"
	case KindTransfer:
		return "transfer"
	default:
		return "internal"
	}
}

var kinds = []struct {
	err  error
	kind Kind
}{
	// A rejection wrapping a receiver failure classifies as a transfer
	// failure whatever the receiver failed with.
	{ErrTransferRejected, KindTransfer},

	{ErrNotAdministrator, KindAuthorization},
	{ErrNotController, KindAuthorization},

	{ErrPhaseViolation, KindState},
	{ErrAlreadyJoined, KindState},
	{ErrAlreadyForfeited, KindState},
	{ErrAlreadyLoser, KindState},
	{ErrNotParticipant, KindState},
	{ErrParticipantForfeited, KindState},
	{ErrNoParticipants, KindState},
	{ErrMatchNotFound, KindState},
	{ErrReentrantCall, KindState},
	{ErrModulePaused, KindState},
	{ErrAlreadyInitialized, KindState},
	{ErrNotInitialized, KindState},
	{ErrOperationNotFound, KindState},
	{ErrOperationAlreadyRegistered, KindState},
	{ErrModuleNotDeployed, KindState},
	{ErrNoFeesRetained, KindState},

	{ErrZeroModule, KindValidation},
	{ErrValueMismatch, KindValidation},
	{ErrInvalidStake, KindValidation},
	{ErrInvalidController, KindValidation},
	{ErrFeeOverflow, KindValidation},
	{ErrMatchFull, KindValidation},
	{ErrNotAllowed, KindValidation},
	{ErrInvalidFee, KindValidation},
	{ErrInvalidAdministrator, KindValidation},
	{ErrInvalidArguments, KindValidation},
	{ErrInvalidOperationName, KindValidation},
	{ErrAmountOverflow, KindValidation},
	{ErrInsufficientBalance, KindValidation},
}

// Classify returns the failure kind of err. Unknown errors are internal.
func Classify(err error) Kind {
	if err == nil {
		return KindInternal
	}
	for _, entry := range kinds {
		if stderrors.Is(err, entry.err) {
			return entry.kind
		}
	}
	return KindInternal
}
