package core

import (
	"errors"
	"fmt"

	"github.com/kestrel-network/kestrel/core/types"
)

// ErrNoNativeRuntime is returned when a strategy demands the native runtime
// and no native implementation is linked into the executor.
var ErrNoNativeRuntime = errors.New("no native runtime available")

// ErrUnableToGenerateProof is returned when proof generation is requested
// against a state that does not expose a trie-backed view.
var ErrUnableToGenerateProof = errors.New("state is not trie backed, unable to generate proof")

// InvalidBlockError is returned when a block reference cannot be resolved to
// a state view.
type InvalidBlockError struct {
	Ref types.BlockRef
	Err error
}

func (e *InvalidBlockError) Error() string {
	return fmt.Sprintf("invalid block %s: %v", e.Ref, e.Err)
}

func (e *InvalidBlockError) Unwrap() error { return e.Err }

// MethodNotFoundError is returned when the runtime at the target block does
// not expose the requested method.
type MethodNotFoundError struct {
	Method string
}

func (e *MethodNotFoundError) Error() string {
	return fmt.Sprintf("method %q not found in runtime", e.Method)
}

// ExecutionFailedError normalizes traps and faults from either runtime form.
// Engine identifies the lane that failed ("native" or "interpreted").
type ExecutionFailedError struct {
	Engine string
	Method string
	Err    error
}

func (e *ExecutionFailedError) Error() string {
	return fmt.Sprintf("%s execution of %q failed: %v", e.Engine, e.Method, e.Err)
}

func (e *ExecutionFailedError) Unwrap() error { return e.Err }

// MismatchError is returned when a dual run yields no agreed result: either
// the two implementations returned different outputs and the reconciler
// refused to pick a winner, or the reconciler itself failed.
type MismatchError struct {
	Method      string
	Native      Outcome
	Interpreted Outcome
	Err         error
}

func (e *MismatchError) Error() string {
	return fmt.Sprintf("execution mismatch on %q: native=%s interpreted=%s: %v",
		e.Method, e.Native, e.Interpreted, e.Err)
}

func (e *MismatchError) Unwrap() error { return e.Err }
