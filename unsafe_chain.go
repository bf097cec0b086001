package vkm

import (
	"reflect"
	"unsafe"
)

// linkPNext sets prev's PNext field to point at next. prev may be nil (the
// very first node in a chain has no predecessor to update). Both arguments
// are pointers to registered native structs boxed in an interface; their
// exact static type is not known here, which is why this is the one place
// in the package that reaches for unsafe.Pointer directly.
func linkPNext(prev any, next any) {
	if prev == nil {
		return
	}
	pv := reflect.ValueOf(prev).Elem().FieldByName("PNext")
	if !pv.IsValid() || !pv.CanSet() {
		return
	}
	addr := unsafe.Pointer(reflect.ValueOf(next).Pointer())
	pv.Set(reflect.ValueOf(addr))
}
