package core

import (
	"github.com/ethereum/go-ethereum/rlp"

	"github.com/kestrel-network/kestrel/core/runtime"
	"github.com/kestrel-network/kestrel/core/state"
	"github.com/kestrel-network/kestrel/core/types"
)

// CallExecutor is an abstraction over a runtime call-execution backend. It
// hides how a method call is dispatched (native, interpreted, dual-run,
// proof-recording, remote) behind a common contract that block builders, RPC
// handlers and light-client servers use without branching on the concrete
// executor.
type CallExecutor interface {
	// Call executes method with args against the state at the referenced
	// block, applying the given strategy. No write persists: the overlay
	// used internally is discarded. The raw encoded result is returned.
	Call(at types.BlockRef, method string, args []byte, strategy ExecutionStrategy, extensions *runtime.Extensions) ([]byte, error)

	// ContextualCall is the overlay-aware variant used for block building
	// and re-execution; see ContextualCallParams.
	ContextualCall(params *ContextualCallParams) (*CallResult, error)

	// RuntimeVersion returns the version descriptor the runtime at the
	// referenced block declares. Read-only; never initializes a block.
	RuntimeVersion(at types.BlockRef) (*runtime.Version, error)

	// ProveAtState executes method against the given state while recording
	// an execution proof. The state must expose a trie-backed view; it fails
	// with ErrUnableToGenerateProof otherwise.
	ProveAtState(view state.StateView, overlay *state.Overlay, method string, args []byte) ([]byte, *state.StorageProof, error)

	// ProveAtTrieState is ProveAtState for an already trie-backed view.
	ProveAtTrieState(ts *state.TrieState, overlay *state.Overlay, method string, args []byte) ([]byte, *state.StorageProof, error)

	// NativeRuntimeVersion returns the version of the natively compiled
	// implementation linked into this executor, or nil if none is linked.
	NativeRuntimeVersion() *runtime.Version
}

// InitializeBlockMode governs whether and how the runtime is told a new
// block has begun before the requested method runs.
type InitializeBlockMode uint8

const (
	// DoNotInitialize runs the method against the state as-is.
	DoNotInitialize InitializeBlockMode = iota

	// InitializeFromHeader installs the supplied header as the in-progress
	// block header before the method runs.
	InitializeFromHeader

	// InitializeAndPushExtrinsics additionally applies the supplied encoded
	// extrinsics to the in-progress block, in order, before the method runs.
	InitializeAndPushExtrinsics
)

// InitializeBlock bundles the mode with its payload.
type InitializeBlock struct {
	Mode       InitializeBlockMode
	Header     *types.Header
	Extrinsics [][]byte
}

// NativeCall is a strongly-typed native shortcut. When the strategy permits
// the native lane, the executor invokes it instead of dispatching through
// the generic encoded path; the returned value must RLP-encode to the same
// bytes the generic path would produce.
type NativeCall func(env *runtime.Env) (any, error)

// ContextualCallParams collects the inputs of one contextual call. The
// zero-value modes are the safe defaults: no block initialization, the
// executor's default strategy, no proof recording.
type ContextualCallParams struct {
	// PrepareBlock, when set, runs before anything else; a returned error
	// aborts the call. Callers use it to lazily import or stage the block
	// the call runs against.
	PrepareBlock func() error

	// At references the block whose state the call runs against.
	At types.BlockRef

	// Method and Args name the runtime entry point and its encoded input.
	Method string
	Args   []byte

	// Overlay receives the call's writes. Required. It is the caller's to
	// keep, commit or discard; the executor never persists it.
	Overlay *state.Overlay

	// TxCache, when set, memoizes the pending storage root computed from the
	// overlay across repeated contextual calls.
	TxCache *state.TransactionCache

	// Initialize controls in-progress block installation.
	Initialize InitializeBlock

	// Manager selects and reconciles the implementation lanes. The zero
	// value means the executor's default strategy.
	Manager *ExecutionManager

	// Native, when set and permitted by the strategy, replaces the generic
	// native dispatch with a typed invocation.
	Native NativeCall

	// Recorder, when set, mirrors every trie node read during execution into
	// a proof. The state at At must be trie-backed.
	Recorder *state.ProofRecorder

	// Extensions are the per-call capability handles.
	Extensions *runtime.Extensions
}

// CallResult holds a call's outcome in whichever form it was produced:
// a typed value from a native shortcut, encoded bytes from the generic path,
// or both when a dual run compared them.
type CallResult struct {
	// Native is the typed result, set only when the native shortcut ran and
	// won.
	Native any

	// Encoded is the raw encoded result.
	Encoded []byte
}

// Bytes returns the encoded form, encoding the typed value on demand.
func (r *CallResult) Bytes() ([]byte, error) {
	if r.Encoded != nil {
		return r.Encoded, nil
	}
	if r.Native == nil {
		return nil, nil
	}
	return rlp.EncodeToBytes(r.Native)
}
