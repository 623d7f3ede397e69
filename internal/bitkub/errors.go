package bitkub

import (
	"errors"
	"fmt"
)

// CodeTransport is reported by CodeOf for failures that never reached the
// exchange (DNS, TLS, timeouts, undecodable bodies).
const CodeTransport = 999

// Exchange error codes the trading loop branches on.
const (
	CodeOK                  = 0
	CodeInvalidSignature    = 6
	CodeInvalidTimestamp    = 8
	CodeInvalidSymbol       = 11
	CodeAmountTooLow        = 15
	CodeInsufficientBalance = 18
	CodeOrderNotFound       = 21
	CodeServerError         = 90
)

var errorMessages = map[int]string{
	0:  "No error",
	1:  "Invalid JSON payload",
	2:  "Missing X-BTK-APIKEY",
	3:  "Invalid API key",
	4:  "API pending for activation",
	5:  "IP not allowed",
	6:  "Missing / invalid signature",
	7:  "Missing timestamp",
	8:  "Invalid timestamp",
	9:  "Invalid user",
	10: "Invalid parameter",
	11: "Invalid symbol",
	12: "Invalid amount",
	13: "Invalid rate",
	14: "Improper rate",
	15: "Amount too low",
	16: "Failed to get balance",
	17: "Wallet is empty",
	18: "Insufficient balance",
	19: "Failed to insert order into db",
	20: "Failed to deduct balance",
	21: "Invalid order for cancellation",
	22: "Invalid side",
	23: "Failed to update order status",
	24: "Invalid order for lookup",
	25: "KYC level 1 is required to proceed",
	30: "Limit exceeds",
	40: "Pending withdrawal exists",
	41: "Invalid currency for withdrawal",
	42: "Address is not in whitelist",
	43: "Failed to deduct crypto",
	44: "Failed to create withdrawal record",
	45: "Nonce has to be numeric",
	46: "Invalid nonce",
	47: "Withdrawal limit exceeds",
	48: "Invalid bank account",
	49: "Bank limit exceeds",
	50: "Pending withdrawal exists",
	51: "Withdrawal is under maintenance",
	52: "Invalid permission",
	53: "Invalid internal address",
	54: "Address has been deprecated",
	55: "Cancel only mode",
	56: "User has been suspended from purchasing",
	57: "User has been suspended from selling",
	90: "Server error (please contact support)",

	CodeTransport: "Transport error",
}

// ErrorMessage returns the documented description of an exchange error code.
func ErrorMessage(code int) string {
	if msg, ok := errorMessages[code]; ok {
		return msg
	}
	return fmt.Sprintf("Unknown error code %d", code)
}

// APIError is a non-zero "error" field returned by the exchange.
type APIError struct {
	Code    int
	Message string
}

func (e *APIError) Error() string {
	return fmt.Sprintf("bitkub error %d: %s", e.Code, e.Message)
}

// Is matches another *APIError with the same code, so callers can write
// errors.Is(err, &bitkub.APIError{Code: bitkub.CodeInsufficientBalance}).
func (e *APIError) Is(target error) bool {
	t, ok := target.(*APIError)
	return ok && t.Code == e.Code
}

func newAPIError(code int) *APIError {
	return &APIError{Code: code, Message: ErrorMessage(code)}
}

// TransportError wraps a failure to talk to the exchange at all.
type TransportError struct {
	Op  string
	Err error
}

func (e *TransportError) Error() string {
	return fmt.Sprintf("%s: %v", e.Op, e.Err)
}

func (e *TransportError) Unwrap() error { return e.Err }

// IsTransport reports whether err is a network/transport failure.
func IsTransport(err error) bool {
	var te *TransportError
	return errors.As(err, &te)
}

// CodeOf maps err onto the exchange error-code table: 0 for nil, the
// exchange code for an *APIError and CodeTransport for anything else.
func CodeOf(err error) int {
	if err == nil {
		return CodeOK
	}
	var apiErr *APIError
	if errors.As(err, &apiErr) {
		return apiErr.Code
	}
	return CodeTransport
}
