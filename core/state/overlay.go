package state

// overlayEntry is a single pending write. A nil value with exists=true is a
// deletion marker: the key must read as absent without falling through to
// the snapshot below.
type overlayEntry struct {
	value   []byte
	deleted bool
}

// Overlay is a call-scoped set of pending writes layered on top of a
// StateView. Reads consult the overlay first and fall through to the
// underlying view only when the overlay holds no entry for the key. Child
// storage is tracked as a parallel per-prefix overlay with the same
// precedence rule.
//
// An Overlay is not safe for concurrent use; every in-flight call must own
// its own instance. Callers sharing one overlay across sequential calls
// (block building) are responsible for serializing those calls.
type Overlay struct {
	top      map[string]overlayEntry
	children map[string]map[string]overlayEntry

	// generation increments on every mutation. TransactionCache uses it to
	// detect staleness without hashing the overlay contents.
	generation uint64
}

// NewOverlay returns an empty overlay.
func NewOverlay() *Overlay {
	return &Overlay{
		top:      make(map[string]overlayEntry),
		children: make(map[string]map[string]overlayEntry),
	}
}

// Get returns the pending value for key. The second return reports whether
// the overlay holds an entry at all; a (nil, true) result means the key was
// deleted in this overlay.
func (o *Overlay) Get(key []byte) ([]byte, bool) {
	entry, ok := o.top[string(key)]
	if !ok {
		return nil, false
	}
	if entry.deleted {
		return nil, true
	}
	return entry.value, true
}

// Set records a pending write for key.
func (o *Overlay) Set(key, value []byte) {
	o.top[string(key)] = overlayEntry{value: append([]byte(nil), value...)}
	o.generation++
}

// Delete records a pending deletion for key.
func (o *Overlay) Delete(key []byte) {
	o.top[string(key)] = overlayEntry{deleted: true}
	o.generation++
}

// ChildGet returns the pending value for key in the child storage identified
// by prefix, with the same semantics as Get.
func (o *Overlay) ChildGet(prefix, key []byte) ([]byte, bool) {
	child, ok := o.children[string(prefix)]
	if !ok {
		return nil, false
	}
	entry, ok := child[string(key)]
	if !ok {
		return nil, false
	}
	if entry.deleted {
		return nil, true
	}
	return entry.value, true
}

// ChildSet records a pending write for key in the child storage identified
// by prefix.
func (o *Overlay) ChildSet(prefix, key, value []byte) {
	child, ok := o.children[string(prefix)]
	if !ok {
		child = make(map[string]overlayEntry)
		o.children[string(prefix)] = child
	}
	child[string(key)] = overlayEntry{value: append([]byte(nil), value...)}
	o.generation++
}

// ChildDelete records a pending deletion for key in the child storage
// identified by prefix.
func (o *Overlay) ChildDelete(prefix, key []byte) {
	child, ok := o.children[string(prefix)]
	if !ok {
		child = make(map[string]overlayEntry)
		o.children[string(prefix)] = child
	}
	child[string(key)] = overlayEntry{deleted: true}
	o.generation++
}

// Generation returns the overlay's mutation counter.
func (o *Overlay) Generation() uint64 {
	return o.generation
}

// Len returns the number of pending top-level entries.
func (o *Overlay) Len() int {
	return len(o.top)
}

// Fork creates an independent copy of the overlay. When two runtime
// implementations are executed side by side each lane writes into its own
// fork, so the losing lane's writes never reach the caller's overlay. The
// winning fork is merged back via Adopt.
func (o *Overlay) Fork() *Overlay {
	fork := &Overlay{
		top:        make(map[string]overlayEntry, len(o.top)),
		children:   make(map[string]map[string]overlayEntry, len(o.children)),
		generation: o.generation,
	}
	for k, v := range o.top {
		fork.top[k] = v
	}
	for prefix, child := range o.children {
		dup := make(map[string]overlayEntry, len(child))
		for k, v := range child {
			dup[k] = v
		}
		fork.children[prefix] = dup
	}
	return fork
}

// Adopt replaces the overlay's contents with those of a fork previously
// created via Fork. The generation counter is bumped past both so that any
// cached transaction derived from either copy is invalidated.
func (o *Overlay) Adopt(fork *Overlay) {
	o.top = fork.top
	o.children = fork.children
	if fork.generation > o.generation {
		o.generation = fork.generation
	}
	o.generation++
}

// forEach visits every pending top-level entry. Iteration order is
// unspecified.
func (o *Overlay) forEach(fn func(key string, entry overlayEntry)) {
	for k, v := range o.top {
		fn(k, v)
	}
}

// forEachChild visits every pending child entry grouped by prefix.
func (o *Overlay) forEachChild(fn func(prefix, key string, entry overlayEntry)) {
	for prefix, child := range o.children {
		for k, v := range child {
			fn(prefix, k, v)
		}
	}
}
