package runtime

// Extensions is a per-call registry of capability implementations
// (randomness sources, offchain storage hooks, ...) made available to the
// runtime for exactly one invocation. Keys follow the context.Context
// convention: any comparable value, typically an unexported key type owned
// by the capability's package.
//
// Extensions are bound to the lifetime of a single call. The executor never
// caches them and implementations must not retain them past the call.
type Extensions struct {
	m map[any]any
}

// NewExtensions returns an empty extension set.
func NewExtensions() *Extensions {
	return &Extensions{m: make(map[any]any)}
}

// Register installs a capability implementation under key, replacing any
// previous registration.
func (e *Extensions) Register(key, impl any) {
	e.m[key] = impl
}

// Get returns the capability registered under key.
func (e *Extensions) Get(key any) (any, bool) {
	if e == nil {
		return nil, false
	}
	impl, ok := e.m[key]
	return impl, ok
}

// Len returns the number of registered capabilities.
func (e *Extensions) Len() int {
	if e == nil {
		return 0
	}
	return len(e.m)
}
