package value

import (
	"fmt"
	"sync"

	"github.com/cespare/xxhash/v2"
	"github.com/wippyai/freelan-binding/errors"
	"github.com/wippyai/freelan-binding/native"
)

// Value owns one native value handle of kind K. The handle is released by
// Close, exactly once; a Value is never released by the garbage collector.
//
// A Value is safe for concurrent use. Native calls hold a read lock on the
// handle, so Close waits for calls in flight and later calls see it closed.
type Value[K Kind] struct {
	reg    *Registry
	typ    *Type
	handle native.Ptr
	mu     sync.RWMutex
	closed bool
}

// Parse builds a value from its text form. Text the native parser rejects
// fails with an InvalidValueFormat error carrying the text verbatim.
func Parse[K Kind](r *Registry, text string) (*Value[K], error) {
	var k K
	t := r.typeOf(k)

	var h native.Ptr
	err := r.contexts.Do(func(ectx native.Ptr) error {
		h = t.fromString(ectx, text)
		if h == 0 {
			return errors.InvalidValueFormat(t.name, text)
		}
		return nil
	})
	if err != nil {
		if h != 0 {
			t.free(h)
		}
		return nil, err
	}
	return &Value[K]{reg: r, typ: t, handle: h}, nil
}

// MustParse is like Parse but panics on error.
func MustParse[K Kind](r *Registry, text string) *Value[K] {
	v, err := Parse[K](r, text)
	if err != nil {
		panic(err)
	}
	return v
}

// TypeName returns the native type name.
func (v *Value[K]) TypeName() string {
	return v.typ.name
}

// Handle returns the native handle. It stays owned by v.
func (v *Value[K]) Handle() native.Ptr {
	return v.handle
}

// Closed reports whether Close was called.
func (v *Value[K]) Closed() bool {
	v.mu.RLock()
	defer v.mu.RUnlock()
	return v.closed
}

// Close releases the native handle. Later calls are no-ops.
func (v *Value[K]) Close() error {
	v.mu.Lock()
	defer v.mu.Unlock()
	if v.closed {
		return nil
	}
	v.closed = true
	v.typ.free(v.handle)
	return nil
}

// use read-locks the handle. It reports false, without holding the lock,
// when v is closed.
func (v *Value[K]) use() bool {
	v.mu.RLock()
	if v.closed {
		v.mu.RUnlock()
		return false
	}
	return true
}

// useBoth read-locks v and o in handle order. Live handles are distinct
// heap addresses, so two callers never wait on each other in a cycle.
func (v *Value[K]) useBoth(o *Value[K]) bool {
	if v == nil || o == nil {
		return false
	}
	if v == o {
		return v.use()
	}
	first, second := v, o
	if o.handle < v.handle {
		first, second = o, v
	}
	if !first.use() {
		return false
	}
	if !second.use() {
		first.mu.RUnlock()
		return false
	}
	return true
}

func (v *Value[K]) doneBoth(o *Value[K]) {
	v.mu.RUnlock()
	if v != o {
		o.mu.RUnlock()
	}
}

// Format returns the canonical text form. The native string is copied and
// then freed.
func (v *Value[K]) Format() (string, error) {
	if !v.use() {
		return "", errors.Released(v.typ.name)
	}
	defer v.mu.RUnlock()

	var s string
	err := v.reg.contexts.Do(func(ectx native.Ptr) error {
		p := v.typ.toString(ectx, v.handle)
		if p == 0 {
			return errors.New(errors.PhaseFormat, errors.KindNativeOperation).
				TypeName(v.typ.name).
				Detail("to_string returned NULL").
				Build()
		}
		defer v.reg.lib.Free(p)

		var err error
		s, err = native.ReadCString(v.reg.lib.Memory(), p)
		if err != nil {
			return errors.Wrap(errors.PhaseFormat, errors.KindInvalidInput, err, "read native string")
		}
		return nil
	})
	if err != nil {
		return "", err
	}
	return s, nil
}

// String returns the canonical text form, or a %!-style marker on failure.
func (v *Value[K]) String() string {
	s, err := v.Format()
	if err != nil {
		return fmt.Sprintf("%%!%s(%v)", v.typ.name, err)
	}
	return s
}

// GoString returns the representation, such as IPv4Address("10.0.0.1").
func (v *Value[K]) GoString() string {
	s, err := v.Format()
	if err != nil {
		return fmt.Sprintf("%s(<%v>)", v.typ.name, err)
	}
	return fmt.Sprintf("%s(%q)", v.typ.name, s)
}

// MarshalText implements encoding.TextMarshaler with the canonical form.
func (v *Value[K]) MarshalText() ([]byte, error) {
	s, err := v.Format()
	if err != nil {
		return nil, err
	}
	return []byte(s), nil
}

// Hash is derived from the canonical form, so equal values hash equally.
func (v *Value[K]) Hash() (uint64, error) {
	s, err := v.Format()
	if err != nil {
		return 0, err
	}
	return xxhash.Sum64String(s), nil
}

// Equal reports whether v and o hold the same value according to the
// native library. A closed or nil operand is never equal.
func (v *Value[K]) Equal(o *Value[K]) bool {
	if !v.useBoth(o) {
		return false
	}
	defer v.doneBoth(o)
	return v.typ.equal(v.handle, o.handle)
}

// Less reports whether v orders before o according to the native library.
// A closed or nil operand orders before nothing.
func (v *Value[K]) Less(o *Value[K]) bool {
	if !v.useBoth(o) {
		return false
	}
	defer v.doneBoth(o)
	return v.typ.less(v.handle, o.handle)
}

// Compare returns -1, 0 or +1, for use with slices.SortFunc. Closed values
// have no order: comparing one panics with a released-handle error.
func (v *Value[K]) Compare(o *Value[K]) int {
	if !v.useBoth(o) {
		panic(errors.New(errors.PhaseNative, errors.KindReleased).
			Detail("compare with a closed or nil value").
			Build())
	}
	defer v.doneBoth(o)
	switch {
	case v.typ.less(v.handle, o.handle):
		return -1
	case v.typ.less(o.handle, v.handle):
		return 1
	default:
		return 0
	}
}

// part copies one part of a composite into a new value of kind P.
func part[P Kind, K Kind](v *Value[K]) (*Value[P], error) {
	var p P
	if !v.use() {
		return nil, errors.Released(v.typ.name)
	}
	defer v.mu.RUnlock()
	get, ok := v.typ.getters[p.TypeName()]
	if !ok {
		return nil, errors.NotFound(errors.PhaseBind, "accessor of "+v.typ.name, p.TypeName())
	}
	h := get(v.handle)
	if h == 0 {
		return nil, errors.NativeAllocation(p.TypeName())
	}
	return &Value[P]{reg: v.reg, typ: v.reg.typeOf(p), handle: h}, nil
}

// EndpointAddress returns a new value holding the endpoint's address.
func EndpointAddress[A AddressKind](ep *Value[EndpointOf[A]]) (*Value[A], error) {
	return part[A](ep)
}

// EndpointPort returns a new value holding the endpoint's port.
func EndpointPort[A AddressKind](ep *Value[EndpointOf[A]]) (*PortNumber, error) {
	return part[Port](ep)
}

// RouteAddress returns a new value holding the route's address.
func RouteAddress[A IPKind](r *Value[RouteOf[A]]) (*Value[A], error) {
	return part[A](r)
}

// RoutePrefixLength returns a new value holding the route's prefix length.
func RoutePrefixLength[A IPKind](r *Value[RouteOf[A]]) (*Value[PrefixLengthOf[A]], error) {
	return part[PrefixLengthOf[A]](r)
}
