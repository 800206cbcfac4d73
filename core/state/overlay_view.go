package state

// OverlayView combines a read-only snapshot with a mutable overlay. Reads
// consult the overlay first; writes always land in the overlay. It is the
// storage surface handed to the runtime for the duration of one call.
type OverlayView struct {
	view    StateView
	overlay *Overlay
}

// NewOverlayView layers overlay on top of view.
func NewOverlayView(view StateView, overlay *Overlay) *OverlayView {
	return &OverlayView{view: view, overlay: overlay}
}

// Get returns the pending value for key if one exists, falling through to
// the snapshot otherwise.
func (v *OverlayView) Get(key []byte) ([]byte, error) {
	if value, ok := v.overlay.Get(key); ok {
		return value, nil
	}
	return v.view.Get(key)
}

// Set records a pending write for key.
func (v *OverlayView) Set(key, value []byte) {
	v.overlay.Set(key, value)
}

// Delete records a pending deletion for key.
func (v *OverlayView) Delete(key []byte) {
	v.overlay.Delete(key)
}

// ChildGet returns the pending child value for key if one exists, falling
// through to the snapshot otherwise.
func (v *OverlayView) ChildGet(prefix, key []byte) ([]byte, error) {
	if value, ok := v.overlay.ChildGet(prefix, key); ok {
		return value, nil
	}
	return v.view.ChildGet(prefix, key)
}

// ChildSet records a pending child write for key.
func (v *OverlayView) ChildSet(prefix, key, value []byte) {
	v.overlay.ChildSet(prefix, key, value)
}

// ChildDelete records a pending child deletion for key.
func (v *OverlayView) ChildDelete(prefix, key []byte) {
	v.overlay.ChildDelete(prefix, key)
}
