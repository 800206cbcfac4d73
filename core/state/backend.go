package state

import (
	"fmt"
	"sync"

	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/core/rawdb"
	"github.com/ethereum/go-ethereum/trie"
	"github.com/ethereum/go-ethereum/trie/trienode"
	"github.com/ethereum/go-ethereum/triedb"

	"github.com/kestrel-network/kestrel/core/types"
)

// MemoryBackend keeps a chain of trie-backed state snapshots in an in-memory
// node database. It is the reference Backend implementation used by tests
// and block-building fixtures; production deployments supply their own
// disk-backed Backend behind the same interface.
type MemoryBackend struct {
	db *triedb.Database

	mu       sync.RWMutex
	headers  map[common.Hash]*types.Header
	roots    map[common.Hash]common.Hash // block hash -> state root
	byNumber map[uint64]common.Hash      // canonical number -> block hash
	head     common.Hash
}

// NewMemoryBackend builds a backend whose genesis state holds the given top
// and child key-value content.
func NewMemoryBackend(top map[string][]byte, children map[string]map[string][]byte) (*MemoryBackend, error) {
	b := &MemoryBackend{
		db:       triedb.NewDatabase(rawdb.NewMemoryDatabase(), triedb.HashDefaults),
		headers:  make(map[common.Hash]*types.Header),
		roots:    make(map[common.Hash]common.Hash),
		byNumber: make(map[uint64]common.Hash),
	}

	overlay := NewOverlay()
	for key, value := range top {
		overlay.Set([]byte(key), value)
	}
	for prefix, child := range children {
		for key, value := range child {
			overlay.ChildSet([]byte(prefix), []byte(key), value)
		}
	}
	root, err := b.commitState(types.EmptyRootHash, 0, overlay)
	if err != nil {
		return nil, err
	}

	genesis := &types.Header{Number: 0, StateRoot: root, ExtrinsicsRoot: types.EmptyRootHash}
	hash := genesis.Hash()
	b.headers[hash] = genesis
	b.roots[hash] = root
	b.byNumber[0] = hash
	b.head = hash
	return b, nil
}

// Genesis returns the genesis header.
func (b *MemoryBackend) Genesis() *types.Header {
	b.mu.RLock()
	defer b.mu.RUnlock()
	return b.headers[b.byNumber[0]].Copy()
}

// Head returns the current head header.
func (b *MemoryBackend) Head() *types.Header {
	b.mu.RLock()
	defer b.mu.RUnlock()
	return b.headers[b.head].Copy()
}

// StateAt returns the trie-backed state view at the referenced block.
func (b *MemoryBackend) StateAt(ref types.BlockRef) (StateView, error) {
	b.mu.RLock()
	defer b.mu.RUnlock()

	hash := b.head
	if h, ok := ref.Hash(); ok {
		hash = h
	} else if n, ok := ref.Number(); ok {
		blockHash, ok := b.byNumber[n]
		if !ok {
			return nil, fmt.Errorf("unknown block %s", ref)
		}
		hash = blockHash
	}
	root, ok := b.roots[hash]
	if !ok {
		return nil, fmt.Errorf("unknown block %s", ref)
	}
	return NewTrieState(b.db, root)
}

// HeaderAt returns the header at the referenced block.
func (b *MemoryBackend) HeaderAt(ref types.BlockRef) (*types.Header, error) {
	b.mu.RLock()
	defer b.mu.RUnlock()

	hash := b.head
	if h, ok := ref.Hash(); ok {
		hash = h
	} else if n, ok := ref.Number(); ok {
		blockHash, ok := b.byNumber[n]
		if !ok {
			return nil, fmt.Errorf("unknown block %s", ref)
		}
		hash = blockHash
	}
	header, ok := b.headers[hash]
	if !ok {
		return nil, fmt.Errorf("unknown block %s", ref)
	}
	return header.Copy(), nil
}

// ImportBlock commits the overlay on top of the parent block's state and
// registers the header as the new canonical head. Header.StateRoot must
// match the committed root; callers compute it up front via
// TrieState.RootWithOverlay.
func (b *MemoryBackend) ImportBlock(header *types.Header, overlay *Overlay) error {
	b.mu.Lock()
	defer b.mu.Unlock()

	parentRoot, ok := b.roots[header.ParentHash]
	if !ok {
		return fmt.Errorf("unknown parent block %s", header.ParentHash.Hex())
	}
	root, err := b.commitState(parentRoot, header.Number, overlay)
	if err != nil {
		return err
	}
	if root != header.StateRoot {
		return fmt.Errorf("state root mismatch: header %s, committed %s", header.StateRoot.Hex(), root.Hex())
	}
	hash := header.Hash()
	b.headers[hash] = header.Copy()
	b.roots[hash] = root
	b.byNumber[header.Number] = hash
	b.head = hash
	return nil
}

// TrieDatabase exposes the backing node database. Intended for tests that
// open tries directly.
func (b *MemoryBackend) TrieDatabase() *triedb.Database {
	return b.db
}

// commitState applies the overlay on top of parentRoot and persists the
// resulting tries into the node database, returning the new state root.
func (b *MemoryBackend) commitState(parentRoot common.Hash, number uint64, overlay *Overlay) (common.Hash, error) {
	main, err := trie.New(trie.TrieID(parentRoot), b.db)
	if err != nil {
		return common.Hash{}, err
	}

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
		oldRoot := types.EmptyRootHash
		if len(rootBytes) > 0 {
			oldRoot = common.BytesToHash(rootBytes)
		}
		child, err := trie.New(trie.TrieID(oldRoot), b.db)
		if err != nil {
			return common.Hash{}, err
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
		childRoot, nodes := child.Commit(false)
		if nodes != nil && childRoot != types.EmptyRootHash {
			if err := b.db.Update(childRoot, oldRoot, number, trienode.NewWithNodeSet(nodes), nil); err != nil {
				return common.Hash{}, err
			}
			if err := b.db.Commit(childRoot, false); err != nil {
				return common.Hash{}, err
			}
		}
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

	root, nodes := main.Commit(false)
	if nodes != nil {
		if err := b.db.Update(root, parentRoot, number, trienode.NewWithNodeSet(nodes), nil); err != nil {
			return common.Hash{}, err
		}
		if err := b.db.Commit(root, false); err != nil {
			return common.Hash{}, err
		}
	}
	return root, nil
}
