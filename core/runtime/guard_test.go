package runtime

import (
	"errors"
	"sync"
	"testing"
)

func TestGuardPassesThroughResults(t *testing.T) {
	out, err := Guard(func() ([]byte, error) {
		return []byte("ok"), nil
	})
	if err != nil {
		t.Fatalf("guard altered a clean call: %v", err)
	}
	if string(out) != "ok" {
		t.Fatalf("guard altered the result: %q", out)
	}

	wantErr := errors.New("plain failure")
	_, err = Guard(func() ([]byte, error) {
		return nil, wantErr
	})
	if !errors.Is(err, wantErr) {
		t.Fatalf("guard rewrapped an ordinary error: %v", err)
	}
}

func TestGuardContainsPanics(t *testing.T) {
	out, err := Guard(func() ([]byte, error) {
		panic("runtime invariant violated")
	})
	if out != nil {
		t.Fatalf("faulted call produced output: %v", out)
	}
	var fault *FaultError
	if !errors.As(err, &fault) {
		t.Fatalf("want *FaultError, got %T: %v", err, err)
	}
	if fault.Kind != FaultPanic {
		t.Fatalf("want %s fault, got %s", FaultPanic, fault.Kind)
	}
	if fault.Value != "runtime invariant violated" {
		t.Fatalf("fault lost the panic value: %v", fault.Value)
	}
}

func TestGuardFaultIsLocalToTheCall(t *testing.T) {
	var wg sync.WaitGroup
	results := make([]error, 8)
	for i := range results {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			_, results[i] = Guard(func() (int, error) {
				if i%2 == 0 {
					panic(i)
				}
				return i, nil
			})
		}(i)
	}
	wg.Wait()

	for i, err := range results {
		if i%2 == 0 && err == nil {
			t.Fatalf("call %d should have faulted", i)
		}
		if i%2 == 1 && err != nil {
			t.Fatalf("call %d poisoned by a neighbouring fault: %v", i, err)
		}
	}
}
