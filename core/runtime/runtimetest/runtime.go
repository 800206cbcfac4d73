// Package runtimetest provides a small reference runtime used by executor
// tests. The same state-transition logic is exposed in both forms the
// executor understands: as a natively linked implementation (Native) and as
// portable code executed by an interpreter engine (Engine). The portable
// code blob is simply the RLP encoded version descriptor; the engine
// recognizes it and dispatches into the shared method table.
package runtimetest

import (
	"errors"
	"fmt"

	"github.com/ethereum/go-ethereum/rlp"
	"github.com/holiman/uint256"

	"github.com/kestrel-network/kestrel/core/runtime"
	"github.com/kestrel-network/kestrel/core/types"
)

// PendingHeaderKey is the storage key the runtime stores the in-progress
// block header under after Core_initialize_block.
var PendingHeaderKey = []byte(":pending_header")

// ExtrinsicCountKey tracks how many extrinsics were applied to the
// in-progress block.
var ExtrinsicCountKey = []byte(":extrinsic_count")

// TrustChild is the child storage prefix used by the child-storage methods.
var TrustChild = []byte("trust")

// RandomnessKey is the extension key under which tests register a randomness
// capability; the registered value must be a [32]byte seed.
type RandomnessKey struct{}

// BalanceKey returns the storage key holding an account's balance, stored as
// a 32-byte big-endian integer.
func BalanceKey(account string) []byte {
	return []byte("balance:" + account)
}

// Transfer is the only extrinsic kind the test runtime understands.
type Transfer struct {
	From   string
	To     string
	Amount uint64
}

// EncodeTransfer returns the RLP encoding of a transfer extrinsic.
func EncodeTransfer(t Transfer) []byte {
	enc, err := rlp.EncodeToBytes(&t)
	if err != nil {
		panic(err)
	}
	return enc
}

type kvArgs struct {
	Key   []byte
	Value []byte
}

// EncodeKV returns the RLP encoding of the arguments for Storage_set and
// Child_storage_set.
func EncodeKV(key, value []byte) []byte {
	enc, err := rlp.EncodeToBytes(&kvArgs{Key: key, Value: value})
	if err != nil {
		panic(err)
	}
	return enc
}

// DefaultVersion is the spec identity both forms of the test runtime declare
// unless overridden.
func DefaultVersion() *runtime.Version {
	return &runtime.Version{
		SpecName:    "kestrel-test",
		SpecVersion: 2,
		ImplName:    "kestrel-test-go",
		ImplVersion: 1,
		APIs:        append([]runtime.APIItem(nil), APIList...),
	}
}

// APIList is the API surface the test runtime advertises.
var APIList = []runtime.APIItem{{ID: "core", Version: 1}, {ID: "block_builder", Version: 1}}

// Code returns the portable code blob declaring the given version.
func Code(v *runtime.Version) []byte {
	enc, err := v.Encode()
	if err != nil {
		panic(err)
	}
	return enc
}

// Genesis returns the top-level and child genesis content for a chain whose
// runtime declares the given version: the code blob, funded accounts and a
// populated child storage.
func Genesis(v *runtime.Version) (map[string][]byte, map[string]map[string][]byte) {
	top := map[string][]byte{
		string(runtime.CodeKey):    Code(v),
		string(BalanceKey("alice")): balanceBytes(1000),
		string(BalanceKey("bob")):   balanceBytes(500),
	}
	children := map[string]map[string][]byte{
		string(TrustChild): {
			"alice": []byte{1},
			"bob":   []byte{1},
		},
	}
	return top, children
}

func balanceBytes(amount uint64) []byte {
	b := uint256.NewInt(amount).Bytes32()
	return b[:]
}

// Method is one entry of the runtime's dispatch table.
type Method func(env *runtime.Env, args []byte) ([]byte, error)

// table builds the shared method table for the given declared version.
func table(version *runtime.Version) map[string]Method {
	return map[string]Method{
		runtime.VersionMethod: func(env *runtime.Env, args []byte) ([]byte, error) {
			return version.Encode()
		},
		runtime.InitializeBlockMethod: func(env *runtime.Env, args []byte) ([]byte, error) {
			if _, err := types.DecodeHeader(args); err != nil {
				return nil, fmt.Errorf("initialize block: %w", err)
			}
			env.Storage.Set(PendingHeaderKey, args)
			env.Storage.Delete(ExtrinsicCountKey)
			return nil, nil
		},
		runtime.ApplyExtrinsicMethod: applyExtrinsic,
		"System_header": func(env *runtime.Env, args []byte) ([]byte, error) {
			return env.Storage.Get(PendingHeaderKey)
		},
		"System_spec_name": func(env *runtime.Env, args []byte) ([]byte, error) {
			return rlp.EncodeToBytes(version.SpecName)
		},
		"Balance_get": func(env *runtime.Env, args []byte) ([]byte, error) {
			return env.Storage.Get(BalanceKey(string(args)))
		},
		"Storage_get": func(env *runtime.Env, args []byte) ([]byte, error) {
			return env.Storage.Get(args)
		},
		"Storage_set": func(env *runtime.Env, args []byte) ([]byte, error) {
			var kv kvArgs
			if err := rlp.DecodeBytes(args, &kv); err != nil {
				return nil, err
			}
			env.Storage.Set(kv.Key, kv.Value)
			return nil, nil
		},
		"Child_storage_get": func(env *runtime.Env, args []byte) ([]byte, error) {
			return env.Storage.ChildGet(TrustChild, args)
		},
		"Child_storage_set": func(env *runtime.Env, args []byte) ([]byte, error) {
			var kv kvArgs
			if err := rlp.DecodeBytes(args, &kv); err != nil {
				return nil, err
			}
			env.Storage.ChildSet(TrustChild, kv.Key, kv.Value)
			return nil, nil
		},
		"Random_seed": func(env *runtime.Env, args []byte) ([]byte, error) {
			impl, ok := env.Extensions.Get(RandomnessKey{})
			if !ok {
				return nil, errors.New("randomness extension not registered")
			}
			seed := impl.([32]byte)
			return seed[:], nil
		},
	}
}

func applyExtrinsic(env *runtime.Env, args []byte) ([]byte, error) {
	var xt Transfer
	if err := rlp.DecodeBytes(args, &xt); err != nil {
		return nil, fmt.Errorf("decode extrinsic: %w", err)
	}
	fromKey, toKey := BalanceKey(xt.From), BalanceKey(xt.To)

	fromBytes, err := env.Storage.Get(fromKey)
	if err != nil {
		return nil, err
	}
	toBytes, err := env.Storage.Get(toKey)
	if err != nil {
		return nil, err
	}
	from := new(uint256.Int).SetBytes(fromBytes)
	to := new(uint256.Int).SetBytes(toBytes)
	amount := uint256.NewInt(xt.Amount)

	if from.Lt(amount) {
		return nil, fmt.Errorf("insufficient balance: %s has %s, needs %s", xt.From, from, amount)
	}
	from.Sub(from, amount)
	to.Add(to, amount)

	fromOut := from.Bytes32()
	toOut := to.Bytes32()
	env.Storage.Set(fromKey, fromOut[:])
	env.Storage.Set(toKey, toOut[:])

	countBytes, err := env.Storage.Get(ExtrinsicCountKey)
	if err != nil {
		return nil, err
	}
	count := new(uint256.Int).SetBytes(countBytes).Uint64() + 1
	countOut := uint256.NewInt(count).Bytes32()
	env.Storage.Set(ExtrinsicCountKey, countOut[:])

	return []byte{1}, nil
}

// Option customizes a runtime form, typically to simulate divergence or
// faults in one of the two implementations.
type Option func(methods map[string]Method, version **runtime.Version)

// WithMethod adds or overrides a method.
func WithMethod(name string, fn Method) Option {
	return func(methods map[string]Method, _ **runtime.Version) {
		methods[name] = fn
	}
}

// WithVersion overrides the declared version.
func WithVersion(v *runtime.Version) Option {
	return func(methods map[string]Method, version **runtime.Version) {
		*version = v
		methods[runtime.VersionMethod] = func(env *runtime.Env, args []byte) ([]byte, error) {
			return v.Encode()
		}
	}
}

// Native is the natively linked form of the test runtime. It implements
// runtime.Native.
type Native struct {
	version *runtime.Version
	methods map[string]Method
}

// NewNative builds the native form with the given options applied.
func NewNative(opts ...Option) *Native {
	version := DefaultVersion()
	methods := table(version)
	for _, opt := range opts {
		opt(methods, &version)
	}
	return &Native{version: version, methods: methods}
}

// Call dispatches a method. Overridden methods may panic to simulate a
// native fault; the executor's guard is expected to contain it.
func (n *Native) Call(env *runtime.Env, method string, args []byte) ([]byte, error) {
	fn, ok := n.methods[method]
	if !ok {
		return nil, fmt.Errorf("%w: %s", runtime.ErrMethodNotFound, method)
	}
	return fn(env, args)
}

// Version reports the version the native form was built from.
func (n *Native) Version() *runtime.Version {
	return n.version
}

// Engine is the interpreter form of the test runtime. It implements
// runtime.CodeExecutor: the code blob is the RLP encoded version descriptor
// and execution dispatches into the shared method table under a trap guard.
type Engine struct {
	opts []Option
}

// NewEngine builds the interpreter engine with the given options applied to
// every execution.
func NewEngine(opts ...Option) *Engine {
	return &Engine{opts: opts}
}

// Exec runs method against the given code blob. The engine models an
// out-of-process interpreter: the environment crosses its boundary as an
// opaque handle and is resolved back through the registry when the hosted
// code calls out, never as a retained Go pointer.
func (e *Engine) Exec(code []byte, method string, args []byte, env *runtime.Env) ([]byte, error) {
	version, err := runtime.DecodeVersion(code)
	if err != nil {
		return nil, &runtime.FaultError{Kind: runtime.FaultTrap, Value: fmt.Sprintf("bad code blob: %v", err)}
	}
	methods := table(version)
	for _, opt := range e.opts {
		opt(methods, &version)
	}
	fn, ok := methods[method]
	if !ok {
		return nil, fmt.Errorf("%w: %s", runtime.ErrMethodNotFound, method)
	}
	handle := runtime.RegisterEnv(env)
	defer runtime.ReleaseEnv(handle)
	return runtime.Guard(func() ([]byte, error) {
		hosted, ok := runtime.LookupEnv(handle)
		if !ok {
			return nil, &runtime.FaultError{Kind: runtime.FaultHostFunction, Value: "stale environment handle"}
		}
		return fn(hosted, args)
	})
}
