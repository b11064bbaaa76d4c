package rpc

import (
	"errors"
	"net/http"

	coreerrors "matchpool/core/errors"
)

const (
	jsonRPCVersion = "2.0"

	codeParseError     = -32700
	codeInvalidRequest = -32600
	codeMethodNotFound = -32601
	codeInvalidParams  = -32602
	codeUnauthorized   = -32001
	codeServerError    = -32000
	codeRateLimited    = -32020

	codeForbidden = -32030
	codeConflict  = -32031
	codeTransfer  = -32032
)

// statusFor maps a dispatch failure onto an HTTP status and a JSON-RPC code.
func statusFor(err error) (int, int) {
	if err == nil {
		return http.StatusOK, 0
	}
	switch coreerrors.Classify(err) {
	case coreerrors.KindAuthorization:
		return http.StatusForbidden, codeForbidden
	case coreerrors.KindState:
		if errors.Is(err, coreerrors.ErrOperationNotFound) {
			return http.StatusConflict, codeMethodNotFound
		}
		return http.StatusConflict, codeConflict
	case coreerrors.KindValidation:
		return http.StatusBadRequest, codeInvalidParams
	case coreerrors.KindTransfer:
		return http.StatusBadGateway, codeTransfer
	default:
		return http.StatusInternalServerError, codeServerError
	}
}
