package toolerr

import (
	"encoding/json"
	"errors"
	"fmt"
)

// WireError is the error half of a tool result as it crosses the protocol.
type WireError struct {
	Kind    Kind   `json:"kind"`
	Message string `json:"message"`
}

// Wire is the result envelope serialized into every tool result payload.
// Exactly one of Payload and Error is set.
type Wire struct {
	Success bool            `json:"success"`
	Payload json.RawMessage `json:"payload,omitempty"`
	Error   *WireError      `json:"error,omitempty"`
}

// EncodeSuccess marshals a success envelope around payload.
func EncodeSuccess(payload any) ([]byte, error) {
	raw, err := json.Marshal(payload)
	if err != nil {
		return nil, fmt.Errorf("marshaling payload: %w", err)
	}
	return json.Marshal(Wire{Success: true, Payload: raw})
}

// EncodeError marshals an error envelope. Untyped errors are reported as
// UnknownExecutionError so the kind field is always populated.
func EncodeError(err error) ([]byte, error) {
	kind, ok := KindOf(err)
	if !ok {
		kind = KindUnknownExecution
	}
	msg := ""
	var te *Error
	if errors.As(err, &te) {
		msg = te.Message
	} else if err != nil {
		msg = err.Error()
	}
	return json.Marshal(Wire{Success: false, Error: &WireError{Kind: kind, Message: msg}})
}

// Decode parses a result envelope. A malformed envelope is reported as a
// ConnectionClosed-class failure since it means the peer broke contract.
func Decode(data []byte) (*Wire, error) {
	var w Wire
	if err := json.Unmarshal(data, &w); err != nil {
		return nil, New(KindConnectionClosed, "malformed result envelope: %v", err)
	}
	if !w.Success && w.Error == nil {
		return nil, New(KindConnectionClosed, "result envelope missing error detail")
	}
	return &w, nil
}

// Err converts a decoded error envelope back into a typed error.
func (w *Wire) Err() error {
	if w.Success || w.Error == nil {
		return nil
	}
	return &Error{Kind: w.Error.Kind, Message: w.Error.Message}
}
