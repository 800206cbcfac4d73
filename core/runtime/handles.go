package runtime

import (
	"sync"
	"sync/atomic"
)

// envHandles keeps a global registry of live call environments that can be
// referenced from foreign code via opaque handles. Engines implemented
// behind an FFI boundary cannot hold Go pointers across it; they carry the
// uintptr instead and resolve it back through LookupEnv in their host
// callbacks.
var envHandles sync.Map // map[uintptr]*Env

// envHandleSeq is an atomically-incremented counter that yields unique,
// non-zero handles. Zero is reserved for "null".
var envHandleSeq uintptr

// RegisterEnv registers a call environment and returns a stable handle that
// can safely cross an FFI boundary. The caller must release the handle when
// the call finishes; environments never outlive their call.
func RegisterEnv(env *Env) uintptr {
	if env == nil {
		return 0
	}
	h := atomic.AddUintptr(&envHandleSeq, 1)
	envHandles.Store(h, env)
	return h
}

// ReleaseEnv removes a previously registered handle. Any later foreign
// access through the handle fails the lookup instead of touching freed
// memory.
func ReleaseEnv(h uintptr) {
	envHandles.Delete(h)
}

// LookupEnv resolves a handle back to its call environment. The boolean
// reports whether the handle is still live.
func LookupEnv(h uintptr) (*Env, bool) {
	if v, ok := envHandles.Load(h); ok {
		return v.(*Env), true
	}
	return nil, false
}
