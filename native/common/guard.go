package common

import coreerrors "matchpool/core/errors"

// ErrModulePaused is returned by mutating operations of a paused module.
var ErrModulePaused = coreerrors.ErrModulePaused

type PauseView interface {
	IsPaused(module string) bool
}

func Guard(p PauseView, module string) error {
	if p == nil || module == "" {
		return nil
	}
	if p.IsPaused(module) {
		return ErrModulePaused
	}
	return nil
}
