package engine

import (
	"errors"
	"math"

	"github.com/dop251/goja"
)

// Value constructors. All are engine-thread confined.

// Undefined returns the undefined value.
func (r *Realm) Undefined() Value { return goja.Undefined() }

// Null returns the null value.
func (r *Realm) Null() Value { return goja.Null() }

// Boolean builds a boolean value.
func (r *Realm) Boolean(b bool) Value { return r.vm.ToValue(b) }

// Int32 builds a number from an int32.
func (r *Realm) Int32(n int32) Value { return r.vm.ToValue(n) }

// Float64 builds a number from a float64.
func (r *Realm) Float64(f float64) Value { return r.vm.ToValue(f) }

// String builds a string value.
func (r *Realm) String(s string) Value { return r.vm.ToValue(s) }

// ArrayBuffer copies b into a fresh ArrayBuffer value.
func (r *Realm) ArrayBuffer(b []byte) Value {
	return r.vm.ToValue(r.vm.NewArrayBuffer(b))
}

// ErrorValue builds an Error object carrying msg.
func (r *Realm) ErrorValue(msg string) Value {
	return r.vm.NewGoError(errors.New(msg))
}

// Throw converts a Go error into a throwable engine object. Ops return
// errors; the install wrapper panics with this value so the engine
// propagates it as a thrown exception.
func (r *Realm) Throw(err error) *goja.Object {
	return r.vm.NewGoError(err)
}

// ThrowTypeError builds a throwable TypeError.
func (r *Realm) ThrowTypeError(format string, args ...any) *goja.Object {
	return r.vm.NewTypeError(append([]any{format}, args...)...)
}

// ToUint32Clamped coerces a numeric argument to a uint32 delay/size:
// NaN, infinities and negatives clamp to 0, values above the uint32
// range clamp to the maximum.
func ToUint32Clamped(v Value) uint32 {
	f := v.ToFloat()
	if math.IsNaN(f) || f < 0 {
		return 0
	}
	if math.IsInf(f, 1) || f > math.MaxUint32 {
		return math.MaxUint32
	}
	return uint32(f)
}

// IsCallable reports whether v is a function value.
func IsCallable(v Value) bool {
	_, ok := goja.AssertFunction(v)
	return ok
}

// ExportBytes extracts the bytes backing an ArrayBuffer or typed-array
// argument. Returns false when the value is neither.
func ExportBytes(vm *goja.Runtime, v Value) ([]byte, bool) {
	if ab, ok := v.Export().(goja.ArrayBuffer); ok {
		return ab.Bytes(), true
	}
	obj := v.ToObject(vm)
	if obj == nil {
		return nil, false
	}
	bufVal := obj.Get("buffer")
	if bufVal == nil {
		return nil, false
	}
	ab, ok := bufVal.Export().(goja.ArrayBuffer)
	if !ok {
		return nil, false
	}
	off := int(obj.Get("byteOffset").ToInteger())
	ln := int(obj.Get("byteLength").ToInteger())
	raw := ab.Bytes()
	if off < 0 || ln < 0 || off+ln > len(raw) {
		return nil, false
	}
	return raw[off : off+ln], true
}
