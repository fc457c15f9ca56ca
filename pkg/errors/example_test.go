// Package errors provides examples of structured error handling in arrowlog.
package errors_test

import (
	"fmt"
	"io"

	"github.com/ajitpratap0/arrowlog/pkg/errors"
)

// Example demonstrates basic error creation and wrapping.
func Example() {
	err := errors.New(errors.ErrorTypeInvariant, "the arrow batch is full").
		WithDetail("records", 1024).
		WithDetail("write_limit", 983)

	fmt.Println(err.Error())

	// Output:
	// invariant: the arrow batch is full
}

// ExampleWrap shows how to wrap an output channel failure.
func ExampleWrap() {
	err := errors.Wrap(io.ErrShortWrite, errors.ErrorTypeIO, "failed to write batch body").
		WithDetail("position", 32)

	if errors.IsType(err, errors.ErrorTypeIO) {
		fmt.Println("This is an io error")
	}
	if errors.Is(err, io.ErrShortWrite) {
		fmt.Println("Cause was a short write")
	}

	// Output:
	// This is an io error
	// Cause was a short write
}

// ExampleIsRetryable shows which faults a caller may retry.
func ExampleIsRetryable() {
	ioErr := errors.New(errors.ErrorTypeIO, "page write failed")
	sizeErr := errors.New(errors.ErrorTypeSize, "body exceeds int32")

	fmt.Println(errors.IsRetryable(ioErr))
	fmt.Println(errors.IsRetryable(sizeErr))

	// Output:
	// true
	// false
}

// Example_errorChain shows how to chain multiple error contexts.
func Example_errorChain() {
	err := errors.New(errors.ErrorTypeExhausted, "no free pages")
	err = errors.Wrap(err, errors.ErrorTypeIO, "failed to position output")

	fmt.Println("Full error chain:", err)

	// Output:
	// Full error chain: io: failed to position output: exhausted: no free pages
}

// ExampleIsType demonstrates checking error types.
func ExampleIsType() {
	closedErr := errors.New(errors.ErrorTypeClosed, "writer pool is closed")
	wrapped := errors.Wrap(closedErr, errors.ErrorTypeInternal, "acquire failed")

	fmt.Printf("Is closed error: %v\n", errors.IsType(closedErr, errors.ErrorTypeClosed))
	fmt.Printf("Wrapped error is internal: %v\n", errors.IsType(wrapped, errors.ErrorTypeInternal))
	fmt.Printf("Wrapped error is closed: %v\n", errors.IsType(wrapped, errors.ErrorTypeClosed))

	// Output:
	// Is closed error: true
	// Wrapped error is internal: true
	// Wrapped error is closed: false
}
