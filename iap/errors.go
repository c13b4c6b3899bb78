package iap

import (
	"errors"
	"fmt"

	"github.com/moonbird-apps/iap-server/model"
)

// Code classifies a billing failure. The set is closed and shared with
// the native collaborators, so it must stay in sync with what they emit.
type Code string

const (
	CodePlatformNotSupported Code = "PlatformNotSupported"
	CodeBillingClientInit    Code = "BillingClientInitError"
	CodeProductQuery         Code = "ProductQueryError"
	CodePurchase             Code = "PurchaseError"
	CodeConsumption          Code = "ConsumptionError"
	CodeRestore              Code = "RestoreError"
	CodeInvalidPurchaseToken Code = "InvalidPurchaseToken"
	CodeNetwork              Code = "NetworkError"
	CodeUserCancelled        Code = "UserCancelled"
	CodeItemAlreadyOwned     Code = "ItemAlreadyOwned"
	CodeItemNotOwned         Code = "ItemNotOwned"
	CodeServiceDisconnected  Code = "ServiceDisconnected"
	CodeFeatureNotSupported  Code = "FeatureNotSupported"
	CodeInternal             Code = "InternalError"
	CodeIo                   Code = "Io"
	CodeTransport            Code = "TransportError"
)

var messages = map[Code]string{
	CodePlatformNotSupported: "in-app purchases are not supported on this platform",
	CodeBillingClientInit:    "failed to initialize billing client",
	CodeProductQuery:         "product details query failed",
	CodePurchase:             "purchase flow failed",
	CodeConsumption:          "failed to consume purchase",
	CodeRestore:              "purchase restoration failed",
	CodeInvalidPurchaseToken: "invalid purchase token or receipt",
	CodeNetwork:              "network error during billing operation",
	CodeUserCancelled:        "user cancelled the purchase",
	CodeItemAlreadyOwned:     "item already owned",
	CodeItemNotOwned:         "item not owned",
	CodeServiceDisconnected:  "service disconnected",
	CodeFeatureNotSupported:  "feature not supported",
	CodeInternal:             "internal billing error",
	CodeIo:                   "i/o error",
	CodeTransport:            "transport error",
}

// Known returns whether the code is part of the canonical taxonomy.
func (c Code) Known() bool {
	_, ok := messages[c]
	return ok
}

// Error is a classified billing failure. It travels across the wire as a
// model.IAPError and never loses the underlying store detail: raw
// response codes live in Details, wrapped causes are preserved for
// errors.Is and errors.As.
type Error struct {
	Code    Code
	Message string
	Details map[string]any

	cause error
}

// NewError returns an Error for code with the canonical message, extended
// with detail when provided.
func NewError(code Code, detail string) *Error {
	message := messages[code]
	if message == "" {
		message = messages[CodeInternal]
	}
	if detail != "" {
		message = message + ": " + detail
	}
	return &Error{Code: code, Message: message}
}

// WrapError returns an Error for code wrapping cause. The cause remains
// reachable through errors.Unwrap.
func WrapError(code Code, cause error, detail string) *Error {
	wrapped := NewError(code, detail)
	wrapped.cause = cause
	return wrapped
}

// ErrPlatformNotSupported is returned by every operation on platforms
// without a store backend. Callers must treat it as read only.
var ErrPlatformNotSupported = NewError(CodePlatformNotSupported, "")

func (e *Error) Error() string {
	if e.cause != nil {
		return e.Message + ": " + e.cause.Error()
	}
	return e.Message
}

func (e *Error) Unwrap() error {
	return e.cause
}

// Is matches any *Error carrying the same code, so
// errors.Is(err, iap.ErrPlatformNotSupported) works regardless of how the
// error instance was constructed.
func (e *Error) Is(target error) bool {
	other, ok := target.(*Error)
	if !ok {
		return false
	}
	return e.Code == other.Code
}

// Wire converts the error to its wire representation.
func (e *Error) Wire() model.IAPError {
	wireErr := model.IAPError{
		Code:    string(e.Code),
		Message: e.Error(),
	}
	if e.Details != nil {
		wireErr.Details = make(map[string]any, len(e.Details))
		for k, v := range e.Details {
			wireErr.Details[k] = v
		}
	}
	return wireErr
}

// FromWire reconstructs an Error from its wire representation. Unknown
// codes degrade to CodeInternal with the original code preserved in
// Details, so a newer collaborator never causes information loss.
func FromWire(wireErr model.IAPError) *Error {
	code := Code(wireErr.Code)
	reconstructed := &Error{
		Code:    code,
		Message: wireErr.Message,
	}
	if wireErr.Details != nil {
		reconstructed.Details = make(map[string]any, len(wireErr.Details))
		for k, v := range wireErr.Details {
			reconstructed.Details[k] = v
		}
	}

	if !code.Known() {
		reconstructed.Code = CodeInternal
		if reconstructed.Details == nil {
			reconstructed.Details = make(map[string]any, 1)
		}
		reconstructed.Details["rawCode"] = wireErr.Code
	}
	if reconstructed.Message == "" {
		reconstructed.Message = messages[reconstructed.Code]
	}
	return reconstructed
}

// FromResponseCode translates a raw platform billing response code into a
// classified Error. The translation is total: codes outside the known
// range map to CodeInternal, and the raw code is always preserved in
// Details.
func FromResponseCode(responseCode int, detail string) *Error {
	var code Code
	switch responseCode {
	case 1:
		code = CodeUserCancelled
	case 2:
		code = CodeServiceDisconnected
	case 3:
		code = CodeBillingClientInit
	case 4:
		code = CodeItemAlreadyOwned
	case 5:
		code = CodeItemNotOwned
	case 6:
		code = CodeNetwork
	case 7:
		code = CodeFeatureNotSupported
	default:
		code = CodeInternal
		if detail == "" {
			detail = fmt.Sprintf("unknown billing response code %d", responseCode)
		}
	}

	classified := NewError(code, detail)
	classified.Details = map[string]any{"responseCode": responseCode}
	return classified
}

// IsCode reports whether err or any error in its chain is an Error with
// the given code.
func IsCode(err error, code Code) bool {
	var classified *Error
	return errors.As(err, &classified) && classified.Code == code
}
