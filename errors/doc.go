// Package errors provides structured error types for the webplatform bridge.
//
// Errors are categorized by Phase (where along the call boundary the error
// occurred) and Kind (error category). An Error carries an optional detail
// message, the offending value and a cause chain.
//
// Use the Builder for structured error construction:
//
//	err := errors.New(errors.PhaseEncode, errors.KindInvalidInput).
//		Path("element_query", "$1").
//		Detail("text argument contains NUL").
//		Build()
//
// Or use convenience constructors for common patterns:
//
//	err := errors.AllocationFailed(errors.PhaseMemory, 4096)
//	err := errors.HostException("element_query", cause)
//
// All errors implement the standard error interface and support errors.Is/As.
// Is matches on Phase and Kind only, so a bare &Error{Phase: p, Kind: k} can
// be used as a target.
package errors
