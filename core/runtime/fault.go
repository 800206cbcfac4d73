package runtime

import "fmt"

// FaultKind is a description of the reason why a runtime invocation faulted.
type FaultKind int

const (
	FaultUnspecified FaultKind = iota
	FaultPanic                 // unwind caught at the invocation boundary
	FaultTrap                  // engine-reported trap in portable code
	FaultStackExhausted
	FaultMemoryAccess
	FaultHostFunction // failure inside an injected capability
)

// String returns a human-readable string for the fault kind.
func (k FaultKind) String() string {
	switch k {
	case FaultUnspecified:
		return "unspecified"
	case FaultPanic:
		return "panic"
	case FaultTrap:
		return "trap"
	case FaultStackExhausted:
		return "stack_exhausted"
	case FaultMemoryAccess:
		return "memory_access"
	case FaultHostFunction:
		return "host_function"
	}
	return "unknown"
}

// FaultError is a contained runtime fault. Whatever the implementation did
// (panicked, trapped, violated a precondition), the invocation boundary
// converts it into this typed error instead of letting it propagate as an
// uncontrolled abort.
type FaultError struct {
	Kind  FaultKind
	Value any
}

func (e *FaultError) Error() string {
	return fmt.Sprintf("runtime fault (%s): %v", e.Kind, e.Value)
}
