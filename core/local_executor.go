package core

import (
	"bytes"
	"errors"
	"fmt"
	"time"

	"github.com/ethereum/go-ethereum/crypto"
	"github.com/ethereum/go-ethereum/log"
	"github.com/ethereum/go-ethereum/rlp"
	lru "github.com/hashicorp/golang-lru"
	"golang.org/x/sync/singleflight"

	"github.com/kestrel-network/kestrel/core/runtime"
	"github.com/kestrel-network/kestrel/core/state"
	"github.com/kestrel-network/kestrel/core/types"
)

// versionCacheSize bounds the per-executor cache of decoded runtime
// versions, keyed by code hash. Runtime upgrades are rare, so a handful of
// entries covers any realistic reorg window.
const versionCacheSize = 16

// Config collects the collaborators of a LocalExecutor.
type Config struct {
	// Backend resolves block references to state views. Required.
	Backend state.Backend

	// Engine executes the portable runtime code. Required.
	Engine runtime.CodeExecutor

	// Native is the natively linked runtime implementation, if any.
	Native runtime.Native

	// DefaultStrategy applies when a contextual call does not carry its own
	// manager. Defaults to NativeElseInterpreted.
	DefaultStrategy *ExecutionStrategy

	// Logger defaults to the package root logger.
	Logger log.Logger
}

// LocalExecutor executes runtime calls against local state. It implements
// CallExecutor.
type LocalExecutor struct {
	backend         state.Backend
	engine          runtime.CodeExecutor
	native          runtime.Native
	defaultStrategy ExecutionStrategy

	versions     *lru.Cache // code hash -> *runtime.Version
	versionGroup singleflight.Group
	logger       log.Logger
}

// NewLocalExecutor builds an executor from the given collaborators.
func NewLocalExecutor(cfg Config) (*LocalExecutor, error) {
	if cfg.Backend == nil {
		return nil, errors.New("executor requires a backend")
	}
	if cfg.Engine == nil {
		return nil, errors.New("executor requires a code executor engine")
	}
	strategy := NativeElseInterpreted
	if cfg.DefaultStrategy != nil {
		strategy = *cfg.DefaultStrategy
	}
	logger := cfg.Logger
	if logger == nil {
		logger = log.Root()
	}
	versions, err := lru.New(versionCacheSize)
	if err != nil {
		return nil, err
	}
	return &LocalExecutor{
		backend:         cfg.Backend,
		engine:          cfg.Engine,
		native:          cfg.Native,
		defaultStrategy: strategy,
		versions:        versions,
		logger:          logger,
	}, nil
}

// Call implements CallExecutor. The overlay used internally is discarded.
func (e *LocalExecutor) Call(at types.BlockRef, method string, args []byte, strategy ExecutionStrategy, extensions *runtime.Extensions) ([]byte, error) {
	view, err := e.stateAt(at)
	if err != nil {
		return nil, err
	}
	result, err := e.executeCall(&callSpec{
		view:       view,
		overlay:    state.NewOverlay(),
		method:     method,
		args:       args,
		manager:    strategy.Manager(),
		extensions: extensions,
	})
	if err != nil {
		return nil, err
	}
	return result.Bytes()
}

// ContextualCall implements CallExecutor.
func (e *LocalExecutor) ContextualCall(params *ContextualCallParams) (*CallResult, error) {
	if params.Overlay == nil {
		return nil, errors.New("contextual call requires an overlay")
	}
	if params.PrepareBlock != nil {
		if err := params.PrepareBlock(); err != nil {
			return nil, err
		}
	}
	view, err := e.stateAt(params.At)
	if err != nil {
		return nil, err
	}
	if params.Recorder != nil {
		tb, ok := view.(state.TrieBacked)
		if !ok {
			return nil, ErrUnableToGenerateProof
		}
		view = tb.TrieState().Recording(params.Recorder)
	}
	manager := e.defaultStrategy.Manager()
	if params.Manager != nil {
		manager = *params.Manager
	}

	header := params.Initialize.Header
	switch params.Initialize.Mode {
	case DoNotInitialize:
		header = nil
	case InitializeFromHeader, InitializeAndPushExtrinsics:
		if header == nil {
			return nil, errors.New("initialize block requires a header")
		}
		encoded, err := header.Encode()
		if err != nil {
			return nil, err
		}
		if _, err := e.executeCall(&callSpec{
			view:       view,
			overlay:    params.Overlay,
			header:     header,
			method:     runtime.InitializeBlockMethod,
			args:       encoded,
			manager:    manager,
			extensions: params.Extensions,
		}); err != nil {
			return nil, err
		}
	}
	if params.Initialize.Mode == InitializeAndPushExtrinsics {
		for i, extrinsic := range params.Initialize.Extrinsics {
			if _, err := e.executeCall(&callSpec{
				view:       view,
				overlay:    params.Overlay,
				header:     header,
				method:     runtime.ApplyExtrinsicMethod,
				args:       extrinsic,
				manager:    manager,
				extensions: params.Extensions,
			}); err != nil {
				return nil, fmt.Errorf("push extrinsic %d: %w", i, err)
			}
		}
	}

	result, err := e.executeCall(&callSpec{
		view:       view,
		overlay:    params.Overlay,
		header:     header,
		method:     params.Method,
		args:       params.Args,
		manager:    manager,
		nativeCall: params.Native,
		extensions: params.Extensions,
	})
	if err != nil {
		return nil, err
	}

	if params.TxCache != nil {
		if err := e.refreshTxCache(view, params.Overlay, params.TxCache); err != nil {
			return nil, err
		}
	}
	return result, nil
}

// refreshTxCache memoizes the pending storage root for the overlay's current
// generation, skipping the trie work when the cached entry is still fresh.
func (e *LocalExecutor) refreshTxCache(view state.StateView, overlay *state.Overlay, cache *state.TransactionCache) error {
	generation := overlay.Generation()
	if _, ok := cache.Lookup(generation); ok {
		return nil
	}
	tb, ok := view.(state.TrieBacked)
	if !ok {
		return nil
	}
	root, err := tb.TrieState().RootWithOverlay(overlay)
	if err != nil {
		return err
	}
	cache.Store(generation, root)
	return nil
}

// RuntimeVersion implements CallExecutor.
func (e *LocalExecutor) RuntimeVersion(at types.BlockRef) (*runtime.Version, error) {
	view, err := e.stateAt(at)
	if err != nil {
		return nil, err
	}
	return e.versionAt(view)
}

// NativeRuntimeVersion implements CallExecutor.
func (e *LocalExecutor) NativeRuntimeVersion() *runtime.Version {
	if e.native == nil {
		return nil
	}
	return e.native.Version()
}

// ProveAtState implements CallExecutor.
func (e *LocalExecutor) ProveAtState(view state.StateView, overlay *state.Overlay, method string, args []byte) ([]byte, *state.StorageProof, error) {
	tb, ok := view.(state.TrieBacked)
	if !ok {
		return nil, nil, ErrUnableToGenerateProof
	}
	return e.ProveAtTrieState(tb.TrieState(), overlay, method, args)
}

// ProveAtTrieState implements CallExecutor. On failure any partial proof is
// discarded together with the result.
func (e *LocalExecutor) ProveAtTrieState(ts *state.TrieState, overlay *state.Overlay, method string, args []byte) ([]byte, *state.StorageProof, error) {
	if overlay == nil {
		overlay = state.NewOverlay()
	}
	recorder := state.NewProofRecorder()
	result, err := e.executeCall(&callSpec{
		view:    ts.Recording(recorder),
		overlay: overlay,
		method:  method,
		args:    args,
		manager: e.defaultStrategy.Manager(),
	})
	if err != nil {
		return nil, nil, err
	}
	output, err := result.Bytes()
	if err != nil {
		return nil, nil, err
	}
	proof := recorder.Proof()
	proofNodesHist.Update(int64(proof.Len()))
	proofBytesHist.Update(int64(proof.Size()))
	return output, proof, nil
}

// stateAt resolves a block reference, normalizing backend failures into
// InvalidBlockError.
func (e *LocalExecutor) stateAt(at types.BlockRef) (state.StateView, error) {
	view, err := e.backend.StateAt(at)
	if err != nil {
		return nil, &InvalidBlockError{Ref: at, Err: err}
	}
	return view, nil
}

// versionAt returns the version descriptor declared by the runtime code in
// the given state. Results are cached by code hash; concurrent lookups for
// the same code are deduplicated.
func (e *LocalExecutor) versionAt(view state.StateView) (*runtime.Version, error) {
	code, err := view.Get(runtime.CodeKey)
	if err != nil {
		return nil, err
	}
	if len(code) == 0 {
		return nil, runtime.ErrCodeMissing
	}
	codeHash := crypto.Keccak256Hash(code)
	if cached, ok := e.versions.Get(codeHash); ok {
		versionCacheHits.Mark(1)
		return cached.(*runtime.Version), nil
	}
	versionCacheMisses.Mark(1)

	value, err, _ := e.versionGroup.Do(codeHash.Hex(), func() (any, error) {
		env := &runtime.Env{Storage: state.NewOverlayView(view, state.NewOverlay())}
		encoded, err := e.engine.Exec(code, runtime.VersionMethod, nil, env)
		if err != nil {
			return nil, classifyLaneErr("interpreted", runtime.VersionMethod, err)
		}
		version, err := runtime.DecodeVersion(encoded)
		if err != nil {
			return nil, err
		}
		e.versions.Add(codeHash, version)
		return version, nil
	})
	if err != nil {
		return nil, err
	}
	return value.(*runtime.Version), nil
}

// callSpec is one resolved invocation: a state view (raw or recording), the
// caller's overlay, and the lane-selection manager.
type callSpec struct {
	view       state.StateView
	overlay    *state.Overlay
	header     *types.Header
	method     string
	args       []byte
	manager    ExecutionManager
	nativeCall NativeCall
	extensions *runtime.Extensions
}

// laneResult is one lane's run over its own overlay fork.
type laneResult struct {
	outcome Outcome
	typed   any
	fork    *state.Overlay
}

// executeCall resolves which lanes to run, executes them on overlay forks
// and adopts the winning fork into the caller's overlay. Failed or losing
// lanes leave no trace in the overlay.
func (e *LocalExecutor) executeCall(spec *callSpec) (*CallResult, error) {
	callCounter.Inc(1)
	defer func(start time.Time) {
		callTimer.UpdateSince(start)
	}(time.Now())

	useNative, useInterpreted, err := e.resolveLanes(spec.manager.Strategy, spec.view)
	if err != nil {
		return nil, err
	}
	e.logger.Trace("Executing runtime call", "method", spec.method,
		"strategy", spec.manager.Strategy, "native", useNative, "interpreted", useInterpreted)

	var nativeRes, interpRes *laneResult
	if useNative {
		nativeRes = e.runNativeLane(spec)
	}
	if useInterpreted {
		interpRes = e.runInterpretedLane(spec)
	}

	switch {
	case useNative && useInterpreted:
		return e.reconcileLanes(spec, nativeRes, interpRes)
	case useNative:
		if nativeRes.outcome.Err != nil {
			callFaultCounter.Inc(1)
			return nil, nativeRes.outcome.Err
		}
		spec.overlay.Adopt(nativeRes.fork)
		return &CallResult{Native: nativeRes.typed, Encoded: nativeRes.outcome.Output}, nil
	default:
		if interpRes.outcome.Err != nil {
			callFaultCounter.Inc(1)
			return nil, interpRes.outcome.Err
		}
		spec.overlay.Adopt(interpRes.fork)
		return &CallResult{Encoded: interpRes.outcome.Output}, nil
	}
}

// resolveLanes applies the strategy table: which implementations run, given
// what is linked and whether the native build's spec identity matches the
// block's declared runtime version.
func (e *LocalExecutor) resolveLanes(strategy ExecutionStrategy, view state.StateView) (useNative, useInterpreted bool, err error) {
	switch strategy {
	case NativeOnly:
		if e.native == nil {
			return false, false, ErrNoNativeRuntime
		}
		return true, false, nil

	case InterpretedOnly:
		return false, true, nil

	case NativeElseInterpreted:
		eligible, err := e.nativeEligible(view)
		if err != nil {
			return false, false, err
		}
		return eligible, !eligible, nil

	case Both:
		eligible, err := e.nativeEligible(view)
		if err != nil {
			return false, false, err
		}
		return eligible, true, nil

	default:
		return false, false, fmt.Errorf("unknown execution strategy %d", strategy)
	}
}

// nativeEligible reports whether the linked native runtime may substitute
// for the on-chain code at the given state.
func (e *LocalExecutor) nativeEligible(view state.StateView) (bool, error) {
	if e.native == nil {
		return false, nil
	}
	declared, err := e.versionAt(view)
	if err != nil {
		return false, err
	}
	eligible := e.native.Version().CompatibleWith(declared)
	if !eligible {
		e.logger.Debug("Native runtime incompatible with block, using interpreted",
			"native", e.native.Version(), "declared", declared)
	}
	return eligible, nil
}

// runNativeLane executes the native implementation on an overlay fork under
// the unwind guard.
func (e *LocalExecutor) runNativeLane(spec *callSpec) *laneResult {
	callNativeCounter.Inc(1)
	fork := spec.overlay.Fork()
	env := &runtime.Env{
		Storage:    state.NewOverlayView(spec.view, fork),
		Header:     spec.header,
		Extensions: spec.extensions,
	}
	type nativeOut struct {
		typed   any
		encoded []byte
	}
	out, err := runtime.Guard(func() (nativeOut, error) {
		if spec.nativeCall != nil {
			typed, err := spec.nativeCall(env)
			if err != nil {
				return nativeOut{}, err
			}
			encoded, err := rlp.EncodeToBytes(typed)
			if err != nil {
				return nativeOut{}, err
			}
			return nativeOut{typed: typed, encoded: encoded}, nil
		}
		encoded, err := e.native.Call(env, spec.method, spec.args)
		return nativeOut{encoded: encoded}, err
	})
	return &laneResult{
		outcome: Outcome{Output: out.encoded, Err: classifyLaneErr("native", spec.method, err)},
		typed:   out.typed,
		fork:    fork,
	}
}

// runInterpretedLane executes the on-chain code on an overlay fork. The code
// itself is read through the fork so that a pending runtime upgrade in the
// overlay takes effect immediately.
func (e *LocalExecutor) runInterpretedLane(spec *callSpec) *laneResult {
	callInterpCounter.Inc(1)
	fork := spec.overlay.Fork()
	storage := state.NewOverlayView(spec.view, fork)
	env := &runtime.Env{
		Storage:    storage,
		Header:     spec.header,
		Extensions: spec.extensions,
	}
	result := &laneResult{fork: fork}
	code, err := storage.Get(runtime.CodeKey)
	if err == nil && len(code) == 0 {
		err = runtime.ErrCodeMissing
	}
	if err != nil {
		result.outcome.Err = classifyLaneErr("interpreted", spec.method, err)
		return result
	}
	output, err := e.engine.Exec(code, spec.method, spec.args, env)
	result.outcome = Outcome{Output: output, Err: classifyLaneErr("interpreted", spec.method, err)}
	return result
}

// reconcileLanes resolves a dual run. The reconciler is the only place
// divergence is resolved; its output decides which lane's writes the
// caller's overlay adopts.
func (e *LocalExecutor) reconcileLanes(spec *callSpec, nativeRes, interpRes *laneResult) (*CallResult, error) {
	output, err := spec.manager.Reconcile(nativeRes.outcome, interpRes.outcome)
	if err != nil {
		// A reconciler may surface one lane's failure verbatim; keep the
		// typed lane error in that case. Anything else means no agreed
		// result.
		var failed *ExecutionFailedError
		var notFound *MethodNotFoundError
		if errors.As(err, &failed) || errors.As(err, &notFound) {
			callFaultCounter.Inc(1)
			return nil, err
		}
		mismatchCounter.Inc(1)
		e.logger.Warn("Dual execution mismatch", "method", spec.method,
			"native", nativeRes.outcome, "interpreted", interpRes.outcome, "err", err)
		return nil, &MismatchError{
			Method:      spec.method,
			Native:      nativeRes.outcome,
			Interpreted: interpRes.outcome,
			Err:         err,
		}
	}

	result := &CallResult{Encoded: output}
	switch {
	case nativeRes.outcome.Err == nil && bytes.Equal(output, nativeRes.outcome.Output):
		spec.overlay.Adopt(nativeRes.fork)
		result.Native = nativeRes.typed
	case interpRes.outcome.Err == nil && bytes.Equal(output, interpRes.outcome.Output):
		spec.overlay.Adopt(interpRes.fork)
	case interpRes.outcome.Err == nil:
		// Synthesized result: keep the canonical implementation's writes.
		spec.overlay.Adopt(interpRes.fork)
	case nativeRes.outcome.Err == nil:
		spec.overlay.Adopt(nativeRes.fork)
	}
	return result, nil
}

// classifyLaneErr normalizes engine errors into the executor's taxonomy.
func classifyLaneErr(lane, method string, err error) error {
	if err == nil {
		return nil
	}
	if errors.Is(err, runtime.ErrMethodNotFound) {
		return &MethodNotFoundError{Method: method}
	}
	return &ExecutionFailedError{Engine: lane, Method: method, Err: err}
}
