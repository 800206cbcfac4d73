package state

import (
	"fmt"
	"sync"

	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/trie"
	"github.com/ethereum/go-ethereum/triedb"

	"github.com/kestrel-network/kestrel/core/types"
)

// ChildStoragePrefix prefixes the main-trie keys under which child storage
// roots are kept. Each child storage is an independent trie; its current root
// hash is stored in the main trie at childRootKey(prefix).
const ChildStoragePrefix = ":child_storage:"

func childRootKey(prefix []byte) []byte {
	return append([]byte(ChildStoragePrefix), prefix...)
}

// TrieState is a StateView backed by a merkle trie. Tries resolved from the
// underlying node database are cached per child root. geth tries mutate
// internal caches on read, so all access is serialized by a mutex; the view
// stays safe for concurrent readers at the cost of per-read locking.
type TrieState struct {
	db   *triedb.Database
	root common.Hash

	mu       sync.Mutex
	tr       *trie.Trie
	children map[common.Hash]*trie.Trie
}

// NewTrieState opens the trie rooted at root from db.
func NewTrieState(db *triedb.Database, root common.Hash) (*TrieState, error) {
	tr, err := trie.New(trie.TrieID(root), db)
	if err != nil {
		return nil, fmt.Errorf("open state trie %s: %w", root.Hex(), err)
	}
	return &TrieState{
		db:       db,
		root:     root,
		tr:       tr,
		children: make(map[common.Hash]*trie.Trie),
	}, nil
}

// Root returns the state root the view was opened at.
func (s *TrieState) Root() common.Hash {
	return s.root
}

// TrieState implements TrieBacked.
func (s *TrieState) TrieState() *TrieState {
	return s
}

// Get returns the value stored under key in the main trie.
func (s *TrieState) Get(key []byte) ([]byte, error) {
	return s.get(key, nil)
}

// ChildGet returns the value stored under key in the child storage
// identified by prefix.
func (s *TrieState) ChildGet(prefix, key []byte) ([]byte, error) {
	return s.childGet(prefix, key, nil)
}

func (s *TrieState) get(key []byte, rec *ProofRecorder) ([]byte, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	value, err := s.tr.Get(key)
	if err != nil {
		return nil, err
	}
	if rec != nil {
		if err := s.tr.Prove(key, rec); err != nil {
			return nil, err
		}
	}
	return value, nil
}

func (s *TrieState) childGet(prefix, key []byte, rec *ProofRecorder) ([]byte, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	rootKey := childRootKey(prefix)
	rootBytes, err := s.tr.Get(rootKey)
	if err != nil {
		return nil, err
	}
	if rec != nil {
		// The path to the child root is part of the evidence: a verifier
		// must be able to tie the child trie back to the main state root.
		if err := s.tr.Prove(rootKey, rec); err != nil {
			return nil, err
		}
	}
	if len(rootBytes) == 0 {
		return nil, nil
	}
	child, err := s.childTrie(common.BytesToHash(rootBytes))
	if err != nil {
		return nil, err
	}
	value, err := child.Get(key)
	if err != nil {
		return nil, err
	}
	if rec != nil {
		if err := child.Prove(key, rec); err != nil {
			return nil, err
		}
	}
	return value, nil
}

// childTrie resolves and caches the child trie with the given root. The
// caller must hold s.mu.
func (s *TrieState) childTrie(root common.Hash) (*trie.Trie, error) {
	if child, ok := s.children[root]; ok {
		return child, nil
	}
	child, err := trie.New(trie.TrieID(root), s.db)
	if err != nil {
		return nil, fmt.Errorf("open child trie %s: %w", root.Hex(), err)
	}
	s.children[root] = child
	return child, nil
}

// RootWithOverlay computes the state root that would result from committing
// the overlay's pending writes on top of this view. The computation operates
// on trie copies; neither the view nor the node database is mutated.
func (s *TrieState) RootWithOverlay(overlay *Overlay) (common.Hash, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	main := s.tr.Copy()

	// Child storages first: their updated roots feed back into the main trie.
	byPrefix := make(map[string]map[string]overlayEntry)
	overlay.forEachChild(func(prefix, key string, entry overlayEntry) {
		child, ok := byPrefix[prefix]
		if !ok {
			child = make(map[string]overlayEntry)
			byPrefix[prefix] = child
		}
		child[key] = entry
	})
	for prefix, entries := range byPrefix {
		rootKey := childRootKey([]byte(prefix))
		rootBytes, err := main.Get(rootKey)
		if err != nil {
			return common.Hash{}, err
		}
		var child *trie.Trie
		if len(rootBytes) == 0 {
			child = trie.NewEmpty(s.db)
		} else {
			resolved, err := s.childTrie(common.BytesToHash(rootBytes))
			if err != nil {
				return common.Hash{}, err
			}
			child = resolved.Copy()
		}
		for key, entry := range entries {
			if entry.deleted {
				err = child.Delete([]byte(key))
			} else {
				err = child.Update([]byte(key), entry.value)
			}
			if err != nil {
				return common.Hash{}, err
			}
		}
		childRoot := child.Hash()
		if childRoot == types.EmptyRootHash {
			err = main.Delete(rootKey)
		} else {
			err = main.Update(rootKey, childRoot.Bytes())
		}
		if err != nil {
			return common.Hash{}, err
		}
	}

	var applyErr error
	overlay.forEach(func(key string, entry overlayEntry) {
		if applyErr != nil {
			return
		}
		if entry.deleted {
			applyErr = main.Delete([]byte(key))
		} else {
			applyErr = main.Update([]byte(key), entry.value)
		}
	})
	if applyErr != nil {
		return common.Hash{}, applyErr
	}
	return main.Hash(), nil
}
