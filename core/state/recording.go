package state

import "github.com/ethereum/go-ethereum/common"

// recordingView wraps a trie-backed view so that every read additionally
// streams the trie nodes it visited into a proof recorder. The wrapped view
// behaves identically to the raw one; recording is invisible to the caller.
type recordingView struct {
	ts  *TrieState
	rec *ProofRecorder
}

// Recording returns a view of s that mirrors every node visited during reads
// into rec.
func (s *TrieState) Recording(rec *ProofRecorder) StateView {
	return &recordingView{ts: s, rec: rec}
}

func (v *recordingView) Get(key []byte) ([]byte, error) {
	return v.ts.get(key, v.rec)
}

func (v *recordingView) ChildGet(prefix, key []byte) ([]byte, error) {
	return v.ts.childGet(prefix, key, v.rec)
}

func (v *recordingView) Root() common.Hash {
	return v.ts.Root()
}

// TrieState implements TrieBacked. Recording only intercepts reads; the
// backing trie state is unchanged, so root computation and proof generation
// against the wrapped view remain available.
func (v *recordingView) TrieState() *TrieState {
	return v.ts
}
