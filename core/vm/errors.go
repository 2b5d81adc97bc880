package vm

import "errors"

// ErrOutOfGas is the recoverable precompile failure for calls whose gas limit
// does not cover the precompile's cost. It is distinguished from other
// recoverable failures so that call frames can apply the correct gas-refund
// behaviour.
var ErrOutOfGas = errors.New("out of gas")

// FatalError aborts the enclosing transaction entirely. It is reserved for
// precompile failures that indicate a broken host environment rather than bad
// call input; it must be propagated, never translated into a call failure.
type FatalError struct {
	Reason string
}

// Error implements the error interface.
func (e *FatalError) Error() string {
	return "fatal precompile error: " + e.Reason
}

// Fatal wraps reason into a FatalError.
func Fatal(reason string) error {
	return &FatalError{Reason: reason}
}

// IsFatal reports whether err carries a FatalError anywhere in its chain.
func IsFatal(err error) bool {
	var fatal *FatalError
	return errors.As(err, &fatal)
}

// InvalidTxError marks backend errors caused by the transaction itself
// (malformed, nonce mismatch, insufficient funds, ...) as opposed to backend
// misconfiguration or database failure. Both are fatal to block execution,
// but callers report them differently.
type InvalidTxError struct {
	Err error
}

// Error implements the error interface.
func (e *InvalidTxError) Error() string {
	return "invalid transaction: " + e.Err.Error()
}

// Unwrap returns the underlying cause.
func (e *InvalidTxError) Unwrap() error {
	return e.Err
}

// IsInvalidTx reports whether err was caused by an invalid transaction.
func IsInvalidTx(err error) bool {
	var invalid *InvalidTxError
	return errors.As(err, &invalid)
}
