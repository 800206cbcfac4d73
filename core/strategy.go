package core

import (
	"bytes"
	"fmt"

	"github.com/ethereum/go-ethereum/common/hexutil"
)

// ExecutionStrategy selects which runtime implementation(s) a call runs.
type ExecutionStrategy uint8

const (
	// NativeOnly requires the native implementation and never falls back.
	NativeOnly ExecutionStrategy = iota

	// NativeElseInterpreted runs native when it is linked and its spec
	// identity matches the block's declared runtime version, interpreted
	// otherwise.
	NativeElseInterpreted

	// InterpretedOnly always runs the portable code, ignoring any linked
	// native implementation.
	InterpretedOnly

	// Both runs interpreted always and native when eligible, reconciling the
	// two results. Used directly it reconciles by strict byte equality; use
	// BothWith to supply a caller reconciler.
	Both
)

func (s ExecutionStrategy) String() string {
	switch s {
	case NativeOnly:
		return "native-only"
	case NativeElseInterpreted:
		return "native-else-interpreted"
	case InterpretedOnly:
		return "interpreted-only"
	case Both:
		return "both"
	}
	return "unknown"
}

// Outcome is the result of one execution lane.
type Outcome struct {
	Output []byte
	Err    error
}

func (o Outcome) String() string {
	if o.Err != nil {
		return fmt.Sprintf("err(%v)", o.Err)
	}
	return hexutil.Encode(o.Output)
}

// Reconciler resolves a dual run. It receives both lanes' outcomes and
// returns the authoritative output. It must be deterministic and
// side-effect-free: repeated invocations with identical inputs must yield
// identical output. A returned error means the run has no agreed result and
// surfaces as a MismatchError.
type Reconciler func(native, interpreted Outcome) ([]byte, error)

// ExecutionManager pairs a strategy with the reconciler applied when both
// lanes run. A dual-run manager always carries a reconciler; there is no
// "pick either" behavior.
type ExecutionManager struct {
	Strategy  ExecutionStrategy
	Reconcile Reconciler
}

// Manager returns the execution manager for a bare strategy. Both gets the
// default strict reconciler.
func (s ExecutionStrategy) Manager() ExecutionManager {
	m := ExecutionManager{Strategy: s}
	if s == Both {
		m.Reconcile = StrictReconcile
	}
	return m
}

// BothWith returns a dual-run manager using the supplied reconciler.
func BothWith(reconcile Reconciler) ExecutionManager {
	if reconcile == nil {
		reconcile = StrictReconcile
	}
	return ExecutionManager{Strategy: Both, Reconcile: reconcile}
}

// StrictReconcile accepts a dual run only when both lanes succeeded with
// byte-identical output. A lane failure is surfaced as that lane's error; a
// divergence yields no result.
func StrictReconcile(native, interpreted Outcome) ([]byte, error) {
	if native.Err != nil {
		return nil, native.Err
	}
	if interpreted.Err != nil {
		return nil, interpreted.Err
	}
	if !bytes.Equal(native.Output, interpreted.Output) {
		return nil, fmt.Errorf("native and interpreted outputs diverge")
	}
	return native.Output, nil
}
