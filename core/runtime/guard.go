package runtime

// Guard invokes fn under unwind protection. A panic inside fn is caught and
// converted into a *FaultError; it never propagates to the caller's
// goroutine. The boundary is local to this invocation, so a fault in one
// call cannot corrupt or abort a concurrent call.
//
// Native runtime implementations are third-party-supplied and may assume
// infallible preconditions that do not hold for arbitrary on-chain input;
// every native invocation must pass through here.
func Guard[T any](fn func() (T, error)) (result T, err error) {
	defer func() {
		if r := recover(); r != nil {
			var zero T
			result = zero
			err = &FaultError{Kind: FaultPanic, Value: r}
		}
	}()
	return fn()
}
