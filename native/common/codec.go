package common

import (
	"bytes"
	"encoding/json"
	"errors"
	"fmt"

	coreerrors "matchpool/core/errors"
)

var errNoTransfer = errors.New("bank: transfers unavailable in this context")

// DecodeArgs strictly decodes a JSON argument payload. An empty payload leaves
// out untouched.
func DecodeArgs(args []byte, out interface{}) error {
	if len(bytes.TrimSpace(args)) == 0 {
		return nil
	}
	dec := json.NewDecoder(bytes.NewReader(args))
	dec.DisallowUnknownFields()
	if err := dec.Decode(out); err != nil {
		return fmt.Errorf("%w: %v", coreerrors.ErrInvalidArguments, err)
	}
	return nil
}

// EncodeResult marshals an operation result.
func EncodeResult(v interface{}) ([]byte, error) {
	if v == nil {
		return nil, nil
	}
	return json.Marshal(v)
}
