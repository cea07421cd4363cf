package framegraph

// Frame is a read-only view of the values frozen for one frame. Pass enable
// predicates receive a Frame and must stay pure over it.
//
// All methods are nil-safe: a nil Frame reads as empty, which is what makes
// predicates fail closed when no frame context exists.
type Frame struct {
	reg    *Registry
	number uint64
}

// Number returns the frame counter this view was created for.
func (f *Frame) Number() uint64 {
	if f == nil {
		return 0
	}
	return f.number
}

// Get returns the value frozen for id this frame, or nil. A Frame retained
// across AdvanceFrame reads nil for every id.
func (f *Frame) Get(id string) any {
	if f == nil || f.reg == nil || f.reg.frame != f.number {
		return nil
	}
	return f.reg.Get(id)
}

// IsCaptured reports whether id was successfully captured this frame.
func (f *Frame) IsCaptured(id string) bool {
	if f == nil || f.reg == nil || f.reg.frame != f.number {
		return false
	}
	return f.reg.IsCaptured(id)
}

// Value returns the frozen value for id type-asserted to T. The second
// result is false when the id is not captured this frame or holds a
// different type.
//
//	enabled := func(f *framegraph.Frame) bool {
//	    on, ok := framegraph.Value[bool](f, "bloom.enabled")
//	    return ok && on
//	}
func Value[T any](f *Frame, id string) (T, bool) {
	v, ok := f.Get(id).(T)
	return v, ok
}
