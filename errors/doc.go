// Package errors provides structured error types for the freelan binding.
//
// Errors are categorized by Phase (where the error occurred) and Kind (error category).
// The Error type carries the native type name, the offending value and a cause chain.
//
// Use the Builder for structured error construction:
//
//	err := errors.New(errors.PhaseParse, errors.KindInvalidFormat).
//		TypeName("IPv4Address").
//		Value("127.1").
//		Detail("truncated address").
//		Build()
//
// Or use convenience constructors for the binding's taxonomy:
//
//	err := errors.InvalidValueFormat("IPv4Address", "127.1")
//	err := errors.NativeOperation(snapshot)
//
// Sentinels such as ErrInvalidValueFormat match any error of the same Phase
// and Kind through errors.Is. Native error context snapshots are reachable
// with errors.As on *NativeError.
package errors
