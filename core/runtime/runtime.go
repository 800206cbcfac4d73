// Package runtime defines the boundary between the call executor and the
// state-transition implementations it drives. The runtime logic exists in
// two interchangeable forms: a natively linked Go implementation and a
// portable form stored on-chain under CodeKey and run by a pluggable
// interpreter engine. Both are consumed through the interfaces here; neither
// implementation lives in this module.
package runtime

import (
	"errors"

	"github.com/kestrel-network/kestrel/core/types"
)

// CodeKey is the well-known storage key holding the portable runtime code at
// any given block.
var CodeKey = []byte(":code")

// VersionMethod is the runtime entry point returning the RLP encoded Version
// descriptor.
const VersionMethod = "Core_version"

// InitializeBlockMethod is the runtime entry point that installs a header as
// the in-progress block before other methods run.
const InitializeBlockMethod = "Core_initialize_block"

// ApplyExtrinsicMethod is the runtime entry point applying one encoded
// extrinsic to the in-progress block.
const ApplyExtrinsicMethod = "BlockBuilder_apply_extrinsic"

// ErrMethodNotFound is returned by dispatchers when the runtime does not
// expose the requested method.
var ErrMethodNotFound = errors.New("runtime method not found")

// ErrCodeMissing is returned when no portable runtime code is present in the
// state the call runs against.
var ErrCodeMissing = errors.New("no runtime code in state")

// Storage is the mutable storage surface a runtime sees during one call.
// Reads reflect the call's own pending writes before the underlying
// snapshot.
type Storage interface {
	Get(key []byte) ([]byte, error)
	Set(key, value []byte)
	Delete(key []byte)
	ChildGet(prefix, key []byte) ([]byte, error)
	ChildSet(prefix, key, value []byte)
	ChildDelete(prefix, key []byte)
}

// Env is the execution environment threaded through one runtime call. It is
// created per call and must not be retained by implementations afterwards.
type Env struct {
	// Storage is the overlay-backed storage for this call.
	Storage Storage

	// Header is the in-progress block header, when the caller installed one.
	Header *types.Header

	// Extensions holds the per-call capability handles.
	Extensions *Extensions
}

// Dispatcher executes a runtime method given its name and encoded arguments,
// returning the raw encoded result. Implementations return ErrMethodNotFound
// (possibly wrapped) for unknown methods.
type Dispatcher interface {
	Call(env *Env, method string, args []byte) ([]byte, error)
}

// Native is a natively compiled runtime implementation linked into the
// executor. Native code is third-party-supplied and may assume infallible
// preconditions; callers must invoke it under Guard.
type Native interface {
	Dispatcher

	// Version reports the version descriptor the native implementation was
	// built from.
	Version() *Version
}

// CodeExecutor runs portable runtime code. The engine owns the code format;
// the executor treats code as opaque bytes read from CodeKey.
type CodeExecutor interface {
	// Exec executes method with args against the given code blob.
	Exec(code []byte, method string, args []byte, env *Env) ([]byte, error)
}
